package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/yungbote/groundwork-backend/internal/modules/coding"
)

var syncAll bool

var syncGraphCmd = &cobra.Command{
	Use:   "sync-graph",
	Short: "Project definitive codes into the graph store",
	Long: `Projects the project's definitive codes and their fragment links into the graph.
By default only codes not yet marked synced are sent; --all re-projects everything.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		project, err := projectID()
		if err != nil {
			return err
		}
		a, err := openApp(cmd.Context())
		if err != nil {
			return err
		}
		out, err := a.Services.Coding.SyncGraph(cmd.Context(), coding.SyncGraphInput{
			ProjectID:    project,
			OnlyUnsynced: !syncAll,
			Trigger:      coding.SyncTriggerManual,
		})
		if err != nil {
			return err
		}
		if err := printJSON(cmd.OutOrStdout(), out); err != nil {
			return err
		}
		if out.Deferred {
			return fmt.Errorf("graph sync deferred: %s", out.DeferredReason)
		}
		return nil
	},
}

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Compare relational and graph counts; exits 2 when discrepancies are found",
	RunE: func(cmd *cobra.Command, args []string) error {
		project, err := projectID()
		if err != nil {
			return err
		}
		a, err := openApp(cmd.Context())
		if err != nil {
			return err
		}
		out, err := a.Services.Coding.AuditAndNotify(cmd.Context(), project)
		if err != nil {
			return err
		}
		if err := printJSON(cmd.OutOrStdout(), out); err != nil {
			return err
		}
		if !out.Healthy {
			return errUnhealthy
		}
		return nil
	},
}

func init() {
	syncGraphCmd.Flags().BoolVar(&syncAll, "all", false, "re-project every definitive code, not only unsynced ones")
}
