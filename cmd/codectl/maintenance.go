package main

import (
	"github.com/spf13/cobra"

	"github.com/yungbote/groundwork-backend/internal/modules/coding"
)

var (
	backlogMaxDays  int
	backlogMaxCount int
)

var backlogCmd = &cobra.Command{
	Use:   "backlog",
	Short: "Report pending-candidate backlog health; exits 2 when unhealthy",
	RunE: func(cmd *cobra.Command, args []string) error {
		project, err := projectID()
		if err != nil {
			return err
		}
		a, err := openApp(cmd.Context())
		if err != nil {
			return err
		}
		out, err := a.Services.Coding.BacklogHealth(cmd.Context(), coding.BacklogHealthInput{
			ProjectID: project,
			MaxDays:   backlogMaxDays,
			MaxCount:  backlogMaxCount,
		})
		if err != nil {
			return err
		}
		if err := printJSON(cmd.OutOrStdout(), out); err != nil {
			return err
		}
		if !out.IsHealthy {
			return errUnhealthy
		}
		return nil
	},
}

var gcIdempotencyCmd = &cobra.Command{
	Use:   "gc-idempotency",
	Short: "Delete expired idempotency records",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd.Context())
		if err != nil {
			return err
		}
		// An empty project purges expired records across all projects.
		out, err := a.Services.Coding.PurgeIdempotency(cmd.Context(), cfg.GetString("project"))
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), out)
	},
}

func init() {
	backlogCmd.Flags().IntVar(&backlogMaxDays, "max-days", 0, "oldest pending age allowed (0 uses CODING_BACKLOG_MAX_DAYS)")
	backlogCmd.Flags().IntVar(&backlogMaxCount, "max-count", 0, "pending count allowed (0 uses CODING_BACKLOG_MAX_COUNT)")
}
