package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/kjannette/trahn-analytics/internal/mitigation"
	"github.com/kjannette/trahn-analytics/internal/models"
	"github.com/kjannette/trahn-analytics/internal/report"
	"github.com/kjannette/trahn-analytics/internal/risk"
	"github.com/kjannette/trahn-analytics/internal/segment"
)

const (
	BackendPostgres   = "postgres"
	BackendCube       = "cube"
	BackendClickHouse = "clickhouse"
)

type Config struct {
	// Service
	Env             string
	Port            int
	CORSAllowOrigin string
	WebhookURL      string
	ReportName      string

	// Database
	DatabaseURL string
	DBHost      string
	DBPort      int
	DBName      string
	DBUser      string
	DBPassword  string
	DBSSLMode   string

	// Competition
	QuoteToken       string
	BaselineStart    string
	BaselineEnd      string
	CompetitionStart string
	CompetitionEnd   string
	MinVolume        float64

	// Segment rows backend
	AnalyticsBackend   string
	CubeAPIURL         string
	CubeAPIKey         string
	ClickHouseAddr     string
	ClickHouseDatabase string
	ClickHouseUser     string
	ClickHousePassword string

	// Query cache
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	CacheTTL      time.Duration

	// Detection
	ReversalWindow time.Duration
	FlaggedScore   int
	SQLReversals   bool

	// Mitigation defaults
	MinHoldTime           time.Duration
	MinTokenVolume        float64
	MinUniqueTraders      int
	MinDistinctTokens     int
	MaxVolumeDominancePct float64
	MaxTokenPnLPct        float64
	RankDisqualified      bool

	// Segmentation
	WhaleVolume float64
	RisingRatio float64

	// Report and snapshot
	SectionTimeout   time.Duration
	SnapshotPath     string
	SnapshotInterval time.Duration
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	th := risk.DefaultThresholds()
	mit := mitigation.DefaultConfig()
	seg := segment.DefaultThresholds()

	cfg := &Config{
		Env:             envStr("APP_ENV", "development"),
		Port:            envInt("PORT", 3001),
		CORSAllowOrigin: envStr("CORS_ALLOW_ORIGIN", "*"),
		WebhookURL:      envStr("WEBHOOK_URL", ""),
		ReportName:      envStr("REPORT_NAME", "Trading Competition"),

		DatabaseURL: envStr("DATABASE_URL", ""),
		DBHost:      envStr("DB_HOST", "localhost"),
		DBPort:      envInt("DB_PORT", 5432),
		DBName:      envStr("DB_NAME", "postgres"),
		DBUser:      envStr("DB_USER", ""),
		DBPassword:  envStr("DB_PASSWORD", ""),
		DBSSLMode:   envStr("DB_SSLMODE", "require"),

		QuoteToken:       envStr("QUOTE_TOKEN", "USD1ttGY1N17NEEHLmELoaybftRBUSErhqYiQzvEmuB"),
		BaselineStart:    envStr("BASELINE_START", "2026-01-12"),
		BaselineEnd:      envStr("BASELINE_END", "2026-01-19"),
		CompetitionStart: envStr("COMP_START", "2026-01-19"),
		CompetitionEnd:   envStr("COMP_END", "2026-01-22"),
		MinVolume:        envFloat("MIN_VOLUME", 1000),

		AnalyticsBackend:   strings.ToLower(envStr("ANALYTICS_BACKEND", BackendPostgres)),
		CubeAPIURL:         envStr("CUBE_API_URL", ""),
		CubeAPIKey:         envStr("CUBE_API_KEY", ""),
		ClickHouseAddr:     envStr("CLICKHOUSE_ADDR", ""),
		ClickHouseDatabase: envStr("CLICKHOUSE_DATABASE", "default"),
		ClickHouseUser:     envStr("CLICKHOUSE_USER", "default"),
		ClickHousePassword: envStr("CLICKHOUSE_PASSWORD", ""),

		RedisAddr:     envStr("REDIS_ADDR", ""),
		RedisPassword: envStr("REDIS_PASSWORD", ""),
		RedisDB:       envInt("REDIS_DB", 0),
		CacheTTL:      envDuration("CACHE_TTL", 5*time.Minute),

		ReversalWindow: envDuration("REVERSAL_WINDOW", th.ReversalWindow),
		FlaggedScore:   envInt("FLAGGED_SCORE", th.FlaggedScore),
		SQLReversals:   envBool("SQL_REVERSALS", false),

		MinHoldTime:           envDuration("MIN_HOLD_TIME", mit.MinHoldTime),
		MinTokenVolume:        envFloat("MIN_TOKEN_VOLUME", mit.MinTokenVolume),
		MinUniqueTraders:      envInt("MIN_UNIQUE_TRADERS", mit.MinUniqueTraders),
		MinDistinctTokens:     envInt("MIN_DISTINCT_TOKENS", mit.MinDistinctTokens),
		MaxVolumeDominancePct: envFloat("MAX_VOLUME_DOMINANCE_PCT", mit.MaxVolumeDominancePct),
		MaxTokenPnLPct:        envFloat("MAX_TOKEN_PNL_PCT", mit.MaxTokenPnLPct),
		RankDisqualified:      envBool("RANK_DISQUALIFIED", false),

		WhaleVolume: envFloat("SEGMENT_WHALE_VOLUME", seg.WhaleVolume),
		RisingRatio: envFloat("SEGMENT_RISING_RATIO", seg.RisingRatio),

		SectionTimeout:   envDuration("SECTION_TIMEOUT", 60*time.Second),
		SnapshotPath:     envStr("SNAPSHOT_PATH", "public/index.html"),
		SnapshotInterval: envDuration("SNAPSHOT_INTERVAL", 0),
	}

	return cfg, nil
}

func (c *Config) Validate() error {
	var errs []string

	if c.DatabaseURL == "" && c.DBUser == "" {
		errs = append(errs, "DATABASE_URL or DB_USER is required")
	}
	if c.QuoteToken == "" {
		errs = append(errs, "QUOTE_TOKEN is required")
	}
	if _, err := c.Windows(); err != nil {
		errs = append(errs, err.Error())
	}
	if c.MinVolume < 0 {
		errs = append(errs, "MIN_VOLUME must be >= 0")
	}

	switch c.AnalyticsBackend {
	case BackendPostgres:
	case BackendCube:
		if c.CubeAPIURL == "" {
			errs = append(errs, "CUBE_API_URL is required when ANALYTICS_BACKEND=cube")
		}
	case BackendClickHouse:
		if c.ClickHouseAddr == "" {
			errs = append(errs, "CLICKHOUSE_ADDR is required when ANALYTICS_BACKEND=clickhouse")
		}
	default:
		errs = append(errs, fmt.Sprintf("ANALYTICS_BACKEND must be one of postgres, cube, clickhouse (got %q)", c.AnalyticsBackend))
	}

	if c.ReversalWindow <= 0 {
		errs = append(errs, "REVERSAL_WINDOW must be positive")
	}
	if c.FlaggedScore < 0 || c.FlaggedScore > 100 {
		errs = append(errs, "FLAGGED_SCORE must be between 0 and 100")
	}
	if err := c.Mitigation().Validate(); err != nil {
		errs = append(errs, err.Error())
	}
	if c.WhaleVolume <= 0 || c.RisingRatio <= 1 {
		errs = append(errs, "SEGMENT_WHALE_VOLUME must be positive and SEGMENT_RISING_RATIO above 1")
	}
	if c.SectionTimeout <= 0 {
		errs = append(errs, "SECTION_TIMEOUT must be positive")
	}
	if c.SnapshotInterval < 0 {
		errs = append(errs, "SNAPSHOT_INTERVAL must be >= 0")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  %s", strings.Join(errs, "\n  "))
	}
	return nil
}

// Warnings lists settings that are valid but probably unintended.
func (c *Config) Warnings() []string {
	var w []string
	if c.RedisAddr == "" && c.AnalyticsBackend == BackendCube {
		w = append(w, "REDIS_ADDR not set, Cube results will not be cached")
	}
	if c.CORSAllowOrigin == "*" && c.Env == "production" {
		w = append(w, "CORS_ALLOW_ORIGIN is * in production")
	}
	if c.WebhookURL == "" {
		w = append(w, "WEBHOOK_URL not set, integrity summaries will not be posted")
	}
	return w
}

// Windows parses the configured baseline and competition windows. Both are
// half-open: the end date is excluded.
func (c *Config) Windows() (models.Windows, error) {
	base, err := models.ParseWindow(c.BaselineStart, c.BaselineEnd)
	if err != nil {
		return models.Windows{}, fmt.Errorf("baseline window: %w", err)
	}
	comp, err := models.ParseWindow(c.CompetitionStart, c.CompetitionEnd)
	if err != nil {
		return models.Windows{}, fmt.Errorf("competition window: %w", err)
	}
	if comp.Start.Before(base.End) {
		return models.Windows{}, fmt.Errorf("competition window %s overlaps baseline %s", comp, base)
	}
	return models.Windows{Baseline: base, Competition: comp}, nil
}

func (c *Config) Thresholds() risk.Thresholds {
	th := risk.DefaultThresholds()
	th.ReversalWindow = c.ReversalWindow
	th.FlaggedScore = c.FlaggedScore
	return th
}

func (c *Config) Mitigation() mitigation.Config {
	return mitigation.Config{
		MinHoldTime:           c.MinHoldTime,
		MinTokenVolume:        c.MinTokenVolume,
		MinUniqueTraders:      c.MinUniqueTraders,
		MinDistinctTokens:     c.MinDistinctTokens,
		MaxVolumeDominancePct: c.MaxVolumeDominancePct,
		MaxTokenPnLPct:        c.MaxTokenPnLPct,
		RankDisqualified:      c.RankDisqualified,
	}
}

func (c *Config) Segments() segment.Thresholds {
	th := segment.DefaultThresholds()
	th.WhaleVolume = c.WhaleVolume
	th.RisingRatio = c.RisingRatio
	return th
}

// ReportOptions assembles the builder options from every tunable above.
func (c *Config) ReportOptions() report.Options {
	opts := report.DefaultOptions(c.QuoteToken)
	opts.MinVolume = c.MinVolume
	opts.Thresholds = c.Thresholds()
	opts.Segments = c.Segments()
	opts.Mitigation = c.Mitigation()
	opts.SectionTimeout = c.SectionTimeout
	opts.SQLReversals = c.SQLReversals
	return opts
}

func (c *Config) Print(log *zap.Logger) {
	log.Info("configuration",
		zap.String("env", c.Env),
		zap.String("report", c.ReportName),
		zap.String("quoteToken", truncAddr(c.QuoteToken)),
		zap.String("baseline", c.BaselineStart+" .. "+c.BaselineEnd),
		zap.String("competition", c.CompetitionStart+" .. "+c.CompetitionEnd),
		zap.Float64("minVolume", c.MinVolume),
		zap.String("backend", c.AnalyticsBackend),
		zap.String("cache", boolLabel(c.RedisAddr != "", "redis "+c.RedisAddr, "off")),
		zap.Duration("reversalWindow", c.ReversalWindow),
		zap.Int("flaggedScore", c.FlaggedScore),
		zap.Bool("sqlReversals", c.SQLReversals),
		zap.Any("mitigation", c.Mitigation()),
		zap.String("snapshotPath", c.SnapshotPath),
		zap.Duration("snapshotInterval", c.SnapshotInterval),
		zap.Int("port", c.Port),
	)
	for _, w := range c.Warnings() {
		log.Warn(w)
	}
}

func (c *Config) DSN() string {
	if c.DatabaseURL != "" {
		return c.DatabaseURL
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.DBUser, c.DBPassword, c.DBHost, c.DBPort, c.DBName, c.DBSSLMode)
}

// --- helpers ---

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		v = strings.ToLower(v)
		return v == "true" || v == "1" || v == "yes"
	}
	return fallback
}

// envDuration accepts Go durations ("90s", "5m") or bare seconds.
func envDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	if d, err := time.ParseDuration(v); err == nil {
		return d
	}
	if n, err := strconv.Atoi(v); err == nil {
		return time.Duration(n) * time.Second
	}
	return fallback
}

func truncAddr(addr string) string {
	if len(addr) > 10 {
		return addr[:10]
	}
	return addr
}

func boolLabel(cond bool, ifTrue, ifFalse string) string {
	if cond {
		return ifTrue
	}
	return ifFalse
}
