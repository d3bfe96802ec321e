package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/wardenhq/warden/backend/internal/config"
	"github.com/wardenhq/warden/backend/internal/exectracker"
	"github.com/wardenhq/warden/backend/internal/store"
)

// gcCmd exposes the startup dangling-execution sweep as a standalone
// command: an operator can run it against a stopped daemon's database to
// reconcile any "running" rows a crash left behind, without having to
// start the daemon itself just to trigger the same recovery it runs once
// automatically on boot.
func gcCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "gc",
		Short: "Mark dangling executions failed and their tasks in-review",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			s, err := store.Open(cfg.DatabaseURL, slog.Default())
			if err != nil {
				return fmt.Errorf("open store: %w", err)
			}
			defer s.Close()
			if err := s.Migrate(); err != nil {
				return fmt.Errorf("migrate: %w", err)
			}

			recovered, err := exectracker.Recover(context.Background(), s)
			if err != nil {
				return fmt.Errorf("recover: %w", err)
			}
			slog.Info("gc complete", "recovered", recovered)
			return nil
		},
	}
}
