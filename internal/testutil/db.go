package testutil

import (
	"context"
	"os"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
)

// SetupPool creates a single-connection pool for integration tests, so
// session-scoped TEMP tables are visible to every query. The test is skipped
// unless TEST_DATABASE_URL or DB_HOST is set.
func SetupPool(t *testing.T) *pgxpool.Pool {
	t.Helper()

	_ = godotenv.Load("../../.env")

	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		if os.Getenv("DB_HOST") == "" {
			t.Skip("TEST_DATABASE_URL / DB_HOST not set, skipping")
		}
		host := EnvOr("DB_HOST", "localhost")
		port := EnvOr("DB_PORT", "5432")
		name := EnvOr("DB_NAME", "trahn_analytics")
		user := EnvOr("DB_USER", "postgres")
		pass := EnvOr("DB_PASSWORD", "")
		dsn = "postgres://" + user + ":" + pass + "@" + host + ":" + port + "/" + name + "?sslmode=disable"
	}

	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		t.Fatalf("parse dsn: %v", err)
	}
	cfg.MaxConns = 1
	cfg.MinConns = 1
	cfg.ConnConfig.RuntimeParams["timezone"] = "UTC"

	pool, err := pgxpool.NewWithConfig(context.Background(), cfg)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(func() { pool.Close() })

	if err := pool.Ping(context.Background()); err != nil {
		t.Fatalf("ping: %v", err)
	}
	return pool
}

// CreateTradeTable shadows the swap table with an empty TEMP table of the
// same shape for the lifetime of the pool's connection.
func CreateTradeTable(t *testing.T, pool *pgxpool.Pool) {
	t.Helper()
	_, err := pool.Exec(context.Background(), `
		CREATE TEMP TABLE axiomtrade_partitioned (
			"feePayer"    text        NOT NULL,
			"receivedAt"  timestamp   NOT NULL,
			"tokenIn"     text        NOT NULL,
			"tokenOut"    text        NOT NULL,
			"uiAmountIn"  float8,
			"uiAmountOut" float8,
			"programId"   text
		)`)
	if err != nil {
		t.Fatalf("create temp table: %v", err)
	}
}

func EnvOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
