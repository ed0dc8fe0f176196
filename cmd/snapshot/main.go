// Command snapshot builds the full dashboard once and publishes it as a
// static page. Any section failure exits non-zero without touching the
// previous page.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/kjannette/trahn-analytics/internal/app"
	"github.com/kjannette/trahn-analytics/internal/config"
	"github.com/kjannette/trahn-analytics/internal/logging"
	"github.com/kjannette/trahn-analytics/internal/notifications"
	"github.com/kjannette/trahn-analytics/internal/snapshot"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "snapshot: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	// Flags default to the env-derived values so an unset flag keeps them.
	fs := flag.NewFlagSet("snapshot", flag.ContinueOnError)
	fs.StringVar(&cfg.SnapshotPath, "out", cfg.SnapshotPath, "output HTML path")
	fs.StringVar(&cfg.CompetitionStart, "start", cfg.CompetitionStart, "competition start date (YYYY-MM-DD)")
	fs.StringVar(&cfg.CompetitionEnd, "end", cfg.CompetitionEnd, "competition end date, exclusive")
	fs.DurationVar(&cfg.MinHoldTime, "min-hold-time", cfg.MinHoldTime, "drop rapid reversals held less than this")
	fs.Float64Var(&cfg.MinTokenVolume, "min-token-volume", cfg.MinTokenVolume, "ignore tokens below this market volume")
	fs.IntVar(&cfg.MinUniqueTraders, "min-unique-traders", cfg.MinUniqueTraders, "ignore tokens with fewer traders")
	fs.IntVar(&cfg.MinDistinctTokens, "min-distinct-tokens", cfg.MinDistinctTokens, "disqualify traders with fewer tokens")
	fs.Float64Var(&cfg.MaxVolumeDominancePct, "max-volume-dominance", cfg.MaxVolumeDominancePct, "cap on a trader's share of a token's volume (%)")
	fs.Float64Var(&cfg.MaxTokenPnLPct, "max-token-pnl", cfg.MaxTokenPnLPct, "cap on PnL from a single token (%)")
	fs.BoolVar(&cfg.RankDisqualified, "rank-disqualified", cfg.RankDisqualified, "keep disqualified traders in the ranking")
	notify := fs.Bool("notify", true, "post the integrity summary to WEBHOOK_URL")
	if err := fs.Parse(os.Args[1:]); err != nil {
		return err
	}

	if err := cfg.Validate(); err != nil {
		return err
	}
	log := logging.Must(cfg.Env)
	defer log.Sync()

	writer, err := snapshot.New(cfg.SnapshotPath, log)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, nil, log)
	if err != nil {
		return err
	}
	defer a.Close()

	start := time.Now()
	d, err := a.Builder.BuildStrict(ctx, a.Windows)
	if err != nil {
		return fmt.Errorf("build dashboard: %w", err)
	}
	if err := writer.Write(d); err != nil {
		return fmt.Errorf("write snapshot: %w", err)
	}
	log.Info("snapshot complete", zap.String("run_id", d.RunID), zap.Duration("took", time.Since(start)))

	if *notify {
		if err := a.Notify.Send(ctx, notifications.Summary(d)); err != nil {
			log.Warn("integrity summary not delivered", zap.Error(err))
		}
	}
	return nil
}
