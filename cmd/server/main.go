package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/kjannette/trahn-analytics/internal/api"
	"github.com/kjannette/trahn-analytics/internal/app"
	"github.com/kjannette/trahn-analytics/internal/config"
	"github.com/kjannette/trahn-analytics/internal/logging"
	"github.com/kjannette/trahn-analytics/internal/notifications"
	"github.com/kjannette/trahn-analytics/internal/scheduler"
	"github.com/kjannette/trahn-analytics/internal/snapshot"
)

const banner = `
╔══════════════════════════════════════╗
║   TRAHN Competition Analytics v0.3   ║
║                                      ║
╚══════════════════════════════════════╝
`

func main() {
	fmt.Print(banner)

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config load error: %v\n", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}

	log := logging.Must(cfg.Env)
	defer log.Sync()
	cfg.Print(log)

	// Graceful shutdown context
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, nil, log)
	if err != nil {
		log.Fatal("startup failed", zap.Error(err))
	}
	defer a.Close()

	// 1. API server
	srv := api.NewServer(a.Builder, a.Pool, a.Windows, cfg.Port, cfg.CORSAllowOrigin, log)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("api server error", zap.Error(err))
		}
	}()

	// 2. Snapshot scheduler
	var sched *scheduler.Scheduler
	if cfg.SnapshotInterval > 0 {
		writer, err := snapshot.New(cfg.SnapshotPath, log)
		if err != nil {
			log.Fatal("snapshot writer", zap.Error(err))
		}
		sched = scheduler.New(snapshotJob(a, writer), scheduler.Config{
			Name:     "snapshot",
			Interval: cfg.SnapshotInterval,
			Timeout:  cfg.SectionTimeout * 2,
		}, log)
		sched.Start()
	} else {
		log.Info("snapshot scheduler skipped, SNAPSHOT_INTERVAL not set")
	}

	log.Info("all services started")

	// Wait for shutdown signal
	<-ctx.Done()
	log.Info("shutting down")

	if sched != nil {
		sched.Stop()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("api shutdown", zap.Error(err))
	}
	log.Info("shutdown complete")
}

// snapshotJob publishes only complete dashboards; a failed run keeps the
// previous page in place.
func snapshotJob(a *app.App, writer *snapshot.Writer) scheduler.Job {
	return func(ctx context.Context) error {
		d, err := a.Builder.BuildStrict(ctx, a.Windows)
		if err != nil {
			return err
		}
		if err := writer.Write(d); err != nil {
			return err
		}
		if err := a.Notify.Send(ctx, notifications.Summary(d)); err != nil {
			a.Log.Warn("integrity summary not delivered", zap.Error(err))
		}
		return nil
	}
}
