package main

import (
	"github.com/spf13/cobra"

	"github.com/yungbote/groundwork-backend/internal/modules/coding"
)

var duplicatesCmd = &cobra.Command{
	Use:   "duplicates",
	Short: "List near-duplicate pairs in the definitive vocabulary",
	RunE: func(cmd *cobra.Command, args []string) error {
		project, err := projectID()
		if err != nil {
			return err
		}
		a, err := openApp(cmd.Context())
		if err != nil {
			return err
		}
		out, err := a.Services.Coding.DetectDuplicates(cmd.Context(), coding.DetectDuplicatesInput{
			ProjectID: project,
			Threshold: cfg.GetFloat64("threshold"),
		})
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), out)
	},
}

var mergePairs []string

var autoMergeCmd = &cobra.Command{
	Use:   "auto-merge",
	Short: "Merge candidates by code text (--pair source=target, repeatable)",
	RunE: func(cmd *cobra.Command, args []string) error {
		project, err := projectID()
		if err != nil {
			return err
		}
		pairs, err := parsePairs(mergePairs)
		if err != nil {
			return err
		}
		a, err := openApp(cmd.Context())
		if err != nil {
			return err
		}
		out, err := a.Services.Coding.AutoMerge(cmd.Context(), coding.AutoMergeInput{
			ProjectID: project,
			Pairs:     pairs,
			Memo:      memo(),
			DryRun:    cfg.GetBool("dry-run"),
			Actor:     cfg.GetString("actor"),
		})
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), out)
	},
}

var revertValidatedCmd = &cobra.Command{
	Use:   "revert-validated",
	Short: "Move every validated, unpromoted candidate back to pending",
	RunE: func(cmd *cobra.Command, args []string) error {
		project, err := projectID()
		if err != nil {
			return err
		}
		a, err := openApp(cmd.Context())
		if err != nil {
			return err
		}
		out, err := a.Services.Coding.RevertValidated(cmd.Context(), coding.RevertValidatedInput{
			ProjectID: project,
			Actor:     cfg.GetString("actor"),
			Memo:      memo(),
			DryRun:    cfg.GetBool("dry-run"),
		})
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), out)
	},
}

var promoteAsync bool

var promoteCmd = &cobra.Command{
	Use:   "promote",
	Short: "Promote every validated candidate into the definitive vocabulary",
	RunE: func(cmd *cobra.Command, args []string) error {
		project, err := projectID()
		if err != nil {
			return err
		}
		a, err := openApp(cmd.Context())
		if err != nil {
			return err
		}
		out, err := a.Services.Coding.Promote(cmd.Context(), coding.PromoteInput{
			ProjectID:           project,
			PromoteAllValidated: true,
			Actor:               cfg.GetString("actor"),
			Async:               promoteAsync,
		})
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), out)
	},
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Candidate counts by state, origin and source file",
	RunE: func(cmd *cobra.Command, args []string) error {
		project, err := projectID()
		if err != nil {
			return err
		}
		a, err := openApp(cmd.Context())
		if err != nil {
			return err
		}
		out, err := a.Services.Coding.CandidateStats(cmd.Context(), project)
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), out)
	},
}

func init() {
	autoMergeCmd.Flags().StringArrayVar(&mergePairs, "pair", nil, "source=target code text pair (repeatable)")
	_ = autoMergeCmd.MarkFlagRequired("pair")
	promoteCmd.Flags().BoolVar(&promoteAsync, "async", false, "enqueue a background promotion job instead of running inline")
}
