package main

import (
	"context"
	"fmt"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/yungbote/groundwork-backend/internal/clients/redis"
)

var watchTypes []string

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Stream engine events from Redis as JSON lines until interrupted",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		a, err := openApp(ctx)
		if err != nil {
			return err
		}
		bus := a.Clients.EventBus
		if bus == nil {
			return fmt.Errorf("REDIS_ADDR not configured; no events to watch")
		}
		project := strings.TrimSpace(cfg.GetString("project"))
		return watchEvents(ctx, bus, project, watchTypes, func(ev redis.Event) {
			_ = printJSON(cmd.OutOrStdout(), ev)
		})
	},
}

// watchEvents blocks until ctx is done, passing through events that match the project (when
// set) and one of the types (when any are given).
func watchEvents(ctx context.Context, bus redis.EventBus, project string, types []string, emit func(redis.Event)) error {
	allowed := map[string]bool{}
	for _, t := range types {
		if t = strings.TrimSpace(t); t != "" {
			allowed[t] = true
		}
	}
	err := bus.StartForwarder(ctx, func(ev redis.Event) {
		if project != "" && ev.ProjectID != project {
			return
		}
		if len(allowed) > 0 && !allowed[ev.Type] {
			return
		}
		emit(ev)
	})
	if err != nil {
		return err
	}
	<-ctx.Done()
	return nil
}

func init() {
	watchCmd.Flags().StringSliceVar(&watchTypes, "type", nil, "only print these event types (repeatable or comma separated)")
}
