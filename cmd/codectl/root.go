package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/yungbote/groundwork-backend/internal/app"
	"github.com/yungbote/groundwork-backend/internal/platform/logger"
)

var (
	flagConfig    string
	flagProject   string
	flagActor     string
	flagThreshold float64
	flagDryRun    bool
	flagMemo      string

	cfg *viper.Viper

	application *app.App
)

var rootCmd = &cobra.Command{
	Use:           "codectl",
	Short:         "Operate the candidate-code consolidation engine",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		v, err := loadConfig(flagConfig)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		if err := v.BindPFlags(cmd.Flags()); err != nil {
			return fmt.Errorf("bind flags: %w", err)
		}
		cfg = v
		return nil
	},
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&flagConfig, "config", "", "YAML config file; keys map onto the server's environment variables")
	pf.StringVar(&flagProject, "project", "", "project id")
	pf.StringVar(&flagActor, "actor", "codectl", "actor recorded on state changes")
	pf.Float64Var(&flagThreshold, "threshold", 0, "similarity threshold (0 uses the configured default)")
	pf.BoolVar(&flagDryRun, "dry-run", false, "report what would change without writing")
	pf.StringVar(&flagMemo, "memo", "", "memo recorded on state changes")

	rootCmd.AddCommand(
		syncGraphCmd,
		auditCmd,
		duplicatesCmd,
		autoMergeCmd,
		revertValidatedCmd,
		promoteCmd,
		backlogCmd,
		statsCmd,
		gcIdempotencyCmd,
		watchCmd,
	)
}

// openApp builds the shared wiring lazily so that --help never touches the databases.
func openApp(ctx context.Context) (*app.App, error) {
	if application != nil {
		return application, nil
	}
	log, err := logger.New(cfg.GetString("log_mode"))
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	a, err := app.New(ctx, app.WithLogger(log), app.WithoutHTTP())
	if err != nil {
		return nil, err
	}
	application = a
	return a, nil
}

func closeApp() {
	if application != nil {
		application.Close()
		application = nil
	}
}

func projectID() (string, error) {
	p := strings.TrimSpace(cfg.GetString("project"))
	if p == "" {
		return "", fmt.Errorf("--project is required")
	}
	return p, nil
}

func memo() *string {
	m := strings.TrimSpace(cfg.GetString("memo"))
	if m == "" {
		return nil
	}
	return &m
}
