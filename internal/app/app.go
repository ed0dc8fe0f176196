// Package app wires configuration into the connected services shared by the
// server and snapshot commands.
package app

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/kjannette/trahn-analytics/internal/config"
	"github.com/kjannette/trahn-analytics/internal/db"
	"github.com/kjannette/trahn-analytics/internal/external"
	"github.com/kjannette/trahn-analytics/internal/models"
	"github.com/kjannette/trahn-analytics/internal/notifications"
	"github.com/kjannette/trahn-analytics/internal/report"
	"github.com/kjannette/trahn-analytics/internal/repository"
)

var (
	_ report.Store              = (*repository.TradeRepo)(nil)
	_ external.UserVolumeSource = (*repository.TradeRepo)(nil)
)

type App struct {
	Config  *config.Config
	Log     *zap.Logger
	Pool    *pgxpool.Pool
	Trades  *repository.TradeRepo
	Builder *report.Builder
	Notify  *notifications.Sender
	Windows models.Windows

	closers []func()
}

// New connects the trade store and the configured segment-row backend.
// opts overrides cfg.ReportOptions() when non-nil.
func New(ctx context.Context, cfg *config.Config, opts *report.Options, log *zap.Logger) (*App, error) {
	ws, err := cfg.Windows()
	if err != nil {
		return nil, err
	}
	a := &App{Config: cfg, Log: log, Windows: ws}

	log.Info("connecting to database", zap.String("host", cfg.DBHost), zap.String("db", cfg.DBName))
	a.Pool, err = db.Connect(cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}
	a.closers = append(a.closers, a.Pool.Close)
	if err := db.TestConnection(a.Pool, log); err != nil {
		a.Close()
		return nil, fmt.Errorf("test database: %w", err)
	}

	a.Trades = repository.NewTradeRepo(a.Pool, cfg.QuoteToken)

	volumes, err := a.volumeSource(ctx)
	if err != nil {
		a.Close()
		return nil, err
	}

	o := cfg.ReportOptions()
	if opts != nil {
		o = *opts
	}
	a.Builder = report.NewBuilder(a.Trades, volumes, o, log)
	a.Notify = notifications.NewSender(cfg.WebhookURL, cfg.ReportName, log)
	return a, nil
}

func (a *App) volumeSource(ctx context.Context) (external.UserVolumeSource, error) {
	cfg := a.Config
	switch cfg.AnalyticsBackend {
	case config.BackendCube:
		var cache external.Cache
		if cfg.RedisAddr != "" {
			client, err := external.DialRedis(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
			if err != nil {
				a.Log.Warn("redis unavailable, cube results will not be cached", zap.Error(err))
			} else {
				a.closers = append(a.closers, func() { client.Close() })
				cache = external.NewRedisCache(client, "trahn-analytics:")
			}
		}
		cube := external.NewCubeClient(external.CubeOptions{
			BaseURL:  cfg.CubeAPIURL,
			APIKey:   cfg.CubeAPIKey,
			CacheTTL: cfg.CacheTTL,
		}, cache, a.Log)
		a.Log.Info("segment rows from cube", zap.String("url", cfg.CubeAPIURL))
		return external.NewCubeVolumeSource(cube), nil

	case config.BackendClickHouse:
		conn, err := external.OpenClickHouse(ctx, external.ClickHouseConfig{
			Addr:     cfg.ClickHouseAddr,
			Database: cfg.ClickHouseDatabase,
			Username: cfg.ClickHouseUser,
			Password: cfg.ClickHousePassword,
		})
		if err != nil {
			return nil, fmt.Errorf("open clickhouse: %w", err)
		}
		a.closers = append(a.closers, func() { conn.Close() })
		a.Log.Info("segment rows from clickhouse", zap.String("addr", cfg.ClickHouseAddr))
		return external.NewClickHouseVolumeSource(conn, a.Log), nil

	default:
		a.Log.Info("segment rows from postgres")
		return a.Trades, nil
	}
}

// Close releases connections in reverse order of opening.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
