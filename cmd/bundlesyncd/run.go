package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"bundlesync/internal/telemetry"
	"bundlesync/restart"
	"bundlesync/session"

	"github.com/spf13/cobra"
)

const shutdownTimeout = 5 * time.Second

func runCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run a session with its workers and refresh them on service restarts",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return a.run(ctx)
		},
	}
}

func (a *app) run(ctx context.Context) (err error) {
	log := slog.With("component", "bundlesyncd")
	tp := telemetry.Install(slog.Default())

	provider := a.provider()
	initial, err := provider.Bundle(ctx)
	if err != nil {
		return fmt.Errorf("build bundle: %w", err)
	}
	sess := session.New(a.cfg.Session, initial)

	var workers []*session.Worker
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		var errs []error
		for _, w := range workers {
			if cerr := w.Close(closeCtx); cerr != nil && !errors.Is(cerr, session.ErrClosed) {
				errs = append(errs, fmt.Errorf("close worker %s: %w", w.Name(), cerr))
			}
		}
		if cerr := sess.Close(closeCtx); cerr != nil {
			errs = append(errs, fmt.Errorf("close session: %w", cerr))
		}
		if cerr := tp.Close(closeCtx); cerr != nil {
			errs = append(errs, fmt.Errorf("close telemetry: %w", cerr))
		}
		err = errors.Join(append([]error{err}, errs...)...)
	}()

	for i := range a.cfg.Workers {
		w, err := sess.SpawnWorker(ctx, fmt.Sprintf("worker-%d", i))
		if err != nil {
			return fmt.Errorf("spawn worker: %w", err)
		}
		workers = append(workers, w)
	}

	watch, err := provider.Watch()
	if err != nil {
		return fmt.Errorf("watch default target: %w", err)
	}
	defer func() { _ = watch.Close() }()
	conn, err := watch.Conn()
	if err != nil {
		return fmt.Errorf("watch default target: %w", err)
	}

	mon := restart.NewMonitor(conn, provider, sess, restart.WithRetryDelay(a.cfg.RestartRetry))
	log.Info("running", "session", sess.Name(), "workers", len(workers), "watch", watch.Target())

	err = mon.Run(ctx)
	if status, serr := sess.Status(context.Background()); serr == nil {
		log.Info("stopping", "generation", status.Generation, "replicas", status.Replicas, "restarts", mon.Restarts())
	}
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
