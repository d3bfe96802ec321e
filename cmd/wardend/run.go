package main

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"
	"golang.org/x/sync/errgroup"

	"github.com/wardenhq/warden/backend/internal/approval"
	"github.com/wardenhq/warden/backend/internal/config"
	"github.com/wardenhq/warden/backend/internal/eventbus"
	"github.com/wardenhq/warden/backend/internal/exectracker"
	"github.com/wardenhq/warden/backend/internal/httpapi"
	"github.com/wardenhq/warden/backend/internal/remotesync"
	"github.com/wardenhq/warden/backend/internal/store"
	"github.com/wardenhq/warden/backend/internal/task"
	"github.com/wardenhq/warden/backend/internal/titlegen"
	"github.com/wardenhq/warden/backend/internal/workflow"
)

// runCmd is the daemon entry point: it wires every package this module
// builds into one supervised process and serves the HTTP API until
// interrupted.
func runCmd() *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the orchestrator daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := setupLogger(verbose)
			return run(cmd.Context(), logger, addr)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", ":8420", "HTTP listen address")
	return cmd
}

func run(parentCtx context.Context, logger *slog.Logger, addr string) error {
	ctx, stop := signal.NotifyContext(parentCtx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	s, err := store.Open(cfg.DatabaseURL, logger)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer s.Close()
	if err := s.Migrate(); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}

	tracker := exectracker.New()
	bus := eventbus.New()
	approvals := approval.New(func(req *approval.Request) {
		logger.Info("approval requested", "id", req.ID, "tool", req.ToolName)
		if err := s.SaveApprovalRequest(ctx, *req); err != nil {
			logger.Error("persist approval request", "id", req.ID, "error", err)
		}
		taskID, err := s.TaskIDForExecutionProcess(ctx, req.ExecutionProcessID)
		if err != nil {
			logger.Error("resolve task for approval request", "id", req.ID, "error", err)
			return
		}
		if err := s.MarkTaskInReview(ctx, taskID); err != nil {
			logger.Error("mark task in-review", "task", taskID, "error", err)
		}
	})
	approvals.SetOnResolved(func(req *approval.Request) {
		if err := s.UpdateApprovalStatus(ctx, req.ID, req.Status, req.Reason); err != nil {
			logger.Error("persist approval decision", "id", req.ID, "error", err)
		}
	})
	titles := titlegen.New(ctx, cfg.TitleProvider, cfg.TitleModel)
	manager := task.NewManager(tracker, bus, titles, cfg.WorktreeRoot, cfg.BranchPrefix)
	manager.SetExecutionStore(s)
	manager.SetDraftStore(s)

	// driver is assigned once its initial graph has loaded; the reload
	// callback below only fires from WatchWorkflowGraph's background
	// goroutine, which starts strictly after that initial load returns.
	var driver *workflow.Driver
	graph, err := config.WatchWorkflowGraph(ctx, cfg.WorkflowConfigPath, func(g *workflow.Graph) {
		logger.Info("workflow graph reloaded", "id", g.Workflow.ID)
		if driver != nil {
			driver.SetGraph(g)
		}
	})
	if err != nil {
		return fmt.Errorf("load workflow graph: %w", err)
	}
	driver = workflow.NewDriver(graph, s, manager, manager)

	manager.SetAdvanceFunc(func(ctx context.Context, attemptID string, success bool) {
		stationID, ok, err := s.CurrentStationID(ctx, attemptID)
		if err != nil {
			logger.Error("advance: lookup current station", "attempt", attemptID, "error", err)
			return
		}
		if !ok {
			logger.Warn("advance: no current station for attempt", "attempt", attemptID)
			return
		}
		status := workflow.ExecCompleted
		if !success {
			status = workflow.ExecFailed
		}
		ev := workflow.FinishEvent{AttemptID: attemptID, StationID: stationID, Success: success, Status: status}
		if err := driver.Advance(ctx, ev); err != nil {
			logger.Error("advance failed", "attempt", attemptID, "error", err)
		}
	})

	recovered, err := exectracker.Recover(ctx, s)
	if err != nil {
		logger.Error("startup recovery failed", "error", err)
	} else if recovered > 0 {
		logger.Info("recovered dangling executions", "count", recovered)
	}

	api := httpapi.New(tracker, bus, approvals, manager)
	// h2c lets a single TCP connection multiplex every concurrent raw/
	// normalized execution log stream and the activity feed a client opens,
	// instead of each SSE subscription claiming one of the browser's
	// per-origin HTTP/1.1 connections.
	h2s := &http2.Server{}
	srv := &http.Server{
		Addr:              addr,
		Handler:           h2c.NewHandler(api, h2s),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext: func(_ net.Listener) context.Context {
			return ctx
		},
	}

	g, gctx := errgroup.WithContext(ctx)

	if cfg.RemoteSyncEnabled() {
		client := &remotesync.Client{
			BaseURL: cfg.SharedAPIBase,
			WSURL:   cfg.SharedWSURL,
			OrgID:   cfg.SharedOrganizationID,
			Store:   s,
		}
		g.Go(func() error {
			if err := client.Run(gctx); err != nil && gctx.Err() == nil {
				logger.Error("remote sync stopped", "error", err)
				return err
			}
			return nil
		})
	}

	g.Go(func() error {
		ticker := time.NewTicker(2 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-gctx.Done():
				return nil
			case <-ticker.C:
				for _, attemptID := range manager.InFlightAttemptIDs() {
					manager.PollAttemptDrafts(gctx, attemptID, driver)
				}
			}
		}
	})

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	g.Go(func() error {
		logger.Info("listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return fmt.Errorf("wardend: %w", err)
	}
	return nil
}
