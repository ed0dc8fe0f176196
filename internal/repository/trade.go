package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/kjannette/trahn-analytics/internal/ethereum"
	"github.com/kjannette/trahn-analytics/internal/flows"
	"github.com/kjannette/trahn-analytics/internal/models"
)

// TradeRepo runs read-only aggregates over the raw swap table. Every query
// takes a half-open window as $1/$2 and the quote token as $3.
type TradeRepo struct {
	pool  *pgxpool.Pool
	quote string
}

func NewTradeRepo(pool *pgxpool.Pool, quote string) *TradeRepo {
	return &TradeRepo{pool: pool, quote: quote}
}

func (r *TradeRepo) Quote() string { return r.quote }

const (
	windowClause = `"receivedAt" >= $1 AND "receivedAt" < $2`
	volumeExpr   = `CASE WHEN "tokenIn" = $3 THEN "uiAmountIn" ELSE "uiAmountOut" END`
	tokenExpr    = `CASE WHEN "tokenIn" = $3 THEN "tokenOut" ELSE "tokenIn" END`
	dirExpr      = `CASE WHEN "tokenIn" = $3 THEN 'BUY' ELSE 'SELL' END`
)

func (r *TradeRepo) args(w models.Window, extra ...any) []any {
	return append([]any{w.Start, w.End, r.quote}, extra...)
}

// DirectionalFlows is flows.Aggregate computed in the database.
func (r *TradeRepo) DirectionalFlows(ctx context.Context, w models.Window) ([]models.DirectionalFlow, error) {
	query := `
		WITH base AS (
			SELECT "feePayer" AS trader,
				` + tokenExpr + ` AS token,
				` + dirExpr + ` AS dir,
				"uiAmountIn"::numeric  AS amt_in,
				"uiAmountOut"::numeric AS amt_out,
				NULLIF("uiAmountIn", 0) IS NOT NULL AND NULLIF("uiAmountOut", 0) IS NOT NULL AS priced
			FROM axiomtrade_partitioned
			WHERE ` + windowClause + `
		)
		SELECT trader, token, dir,
			COALESCE(SUM(CASE WHEN dir = 'BUY'  THEN amt_in  END), 0)::text,
			COALESCE(SUM(CASE WHEN dir = 'SELL' THEN amt_out END), 0)::text,
			COALESCE(SUM(CASE WHEN dir = 'BUY'  THEN amt_out ELSE amt_in END), 0)::text,
			COALESCE(SUM(CASE WHEN priced THEN CASE WHEN dir = 'BUY' THEN amt_in  ELSE amt_out END END), 0)::text,
			COALESCE(SUM(CASE WHEN priced THEN CASE WHEN dir = 'BUY' THEN amt_out ELSE amt_in  END END), 0)::text,
			COUNT(*)
		FROM base
		GROUP BY trader, token, dir`

	rows, err := r.pool.Query(ctx, query, r.args(w)...)
	if err != nil {
		return nil, fmt.Errorf("directional flows: %w", err)
	}
	defer rows.Close()

	out, err := collectFlows(rows)
	if err != nil {
		return nil, fmt.Errorf("directional flows: %w", err)
	}
	flows.Sort(out)
	return out, nil
}

// TraderActivity counts trades and distinct days per trader, marking those
// with any swap before the window as returning.
func (r *TradeRepo) TraderActivity(ctx context.Context, w models.Window) (map[string]models.TraderActivity, error) {
	query := `
		WITH tc AS (
			SELECT "feePayer" AS trader, COUNT(*) AS trades, COUNT(DISTINCT DATE("receivedAt")) AS days
			FROM axiomtrade_partitioned
			WHERE "receivedAt" >= $1 AND "receivedAt" < $2
			GROUP BY 1
		),
		pre AS (
			SELECT DISTINCT "feePayer" AS trader FROM axiomtrade_partitioned WHERE "receivedAt" < $1
		)
		SELECT tc.trader, tc.trades, tc.days, pre.trader IS NOT NULL
		FROM tc LEFT JOIN pre ON pre.trader = tc.trader`

	rows, err := r.pool.Query(ctx, query, w.Start, w.End)
	if err != nil {
		return nil, fmt.Errorf("trader activity: %w", err)
	}
	defer rows.Close()

	out := make(map[string]models.TraderActivity)
	for rows.Next() {
		var a models.TraderActivity
		var days int64
		if err := rows.Scan(&a.Trader, &a.TradeCount, &days, &a.Returning); err != nil {
			return nil, fmt.Errorf("trader activity: %w", err)
		}
		a.Trader = ethereum.NormalizeTrader(a.Trader)
		a.ActiveDays = int(days)
		mergeActivity(out, a)
	}
	return out, rows.Err()
}

// mergeActivity folds rows whose raw ids normalize to the same trader. Days
// were counted per spelling, so the larger count is the closest lower bound.
func mergeActivity(out map[string]models.TraderActivity, a models.TraderActivity) {
	prev, ok := out[a.Trader]
	if !ok {
		out[a.Trader] = a
		return
	}
	prev.TradeCount += a.TradeCount
	prev.ActiveDays = max(prev.ActiveDays, a.ActiveDays)
	prev.Returning = prev.Returning || a.Returning
	out[a.Trader] = prev
}

// ReturningTraders returns the window's traders that also swapped before it.
func (r *TradeRepo) ReturningTraders(ctx context.Context, w models.Window) (map[string]bool, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT DISTINCT c."feePayer"
		FROM axiomtrade_partitioned c
		WHERE c."receivedAt" >= $1 AND c."receivedAt" < $2
			AND EXISTS (
				SELECT 1 FROM axiomtrade_partitioned p
				WHERE p."feePayer" = c."feePayer" AND p."receivedAt" < $1
			)`, w.Start, w.End)
	if err != nil {
		return nil, fmt.Errorf("returning traders: %w", err)
	}
	defer rows.Close()

	out := make(map[string]bool)
	for rows.Next() {
		var trader string
		if err := rows.Scan(&trader); err != nil {
			return nil, fmt.Errorf("returning traders: %w", err)
		}
		out[ethereum.NormalizeTrader(trader)] = true
	}
	return out, rows.Err()
}

// Events returns raw swaps ordered by trader then time.
func (r *TradeRepo) Events(ctx context.Context, w models.Window) ([]models.TradeEvent, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT "feePayer", "receivedAt", "tokenIn", "tokenOut",
			COALESCE("uiAmountIn", 0)::float8, COALESCE("uiAmountOut", 0)::float8,
			COALESCE("programId", '')
		FROM axiomtrade_partitioned
		WHERE "receivedAt" >= $1 AND "receivedAt" < $2
		ORDER BY "feePayer", "receivedAt"`, w.Start, w.End)
	if err != nil {
		return nil, fmt.Errorf("events: %w", err)
	}
	defer rows.Close()

	var out []models.TradeEvent
	for rows.Next() {
		var ev models.TradeEvent
		if err := rows.Scan(&ev.Trader, &ev.ReceivedAt, &ev.TokenIn, &ev.TokenOut,
			&ev.AmountIn, &ev.AmountOut, &ev.ProgramID); err != nil {
			return nil, fmt.Errorf("events: %w", err)
		}
		ev.Trader = ethereum.NormalizeTrader(ev.Trader)
		ev.ReceivedAt = ev.ReceivedAt.UTC()
		out = append(out, ev)
	}
	return out, rows.Err()
}

// RapidReversalCounts counts direction flips on the same token no more than
// within apart, using LAG so raw events never leave the database.
func (r *TradeRepo) RapidReversalCounts(ctx context.Context, w models.Window, within time.Duration) (map[string]int, error) {
	query := `
		WITH s AS (
			SELECT "feePayer" AS trader, ` + tokenExpr + ` AS token, ` + dirExpr + ` AS dir, "receivedAt" AS ts
			FROM axiomtrade_partitioned
			WHERE ` + windowClause + `
		),
		l AS (
			SELECT trader, dir, ts,
				LAG(dir) OVER (PARTITION BY trader, token ORDER BY ts) AS prev_dir,
				LAG(ts)  OVER (PARTITION BY trader, token ORDER BY ts) AS prev_ts
			FROM s
		)
		SELECT trader, COUNT(*)
		FROM l
		WHERE prev_dir IS NOT NULL AND prev_dir <> dir
			AND ts - prev_ts <= make_interval(secs => $4)
		GROUP BY trader`

	rows, err := r.pool.Query(ctx, query, r.args(w, within.Seconds())...)
	if err != nil {
		return nil, fmt.Errorf("rapid reversals: %w", err)
	}
	defer rows.Close()

	out := make(map[string]int)
	for rows.Next() {
		var trader string
		var n int64
		if err := rows.Scan(&trader, &n); err != nil {
			return nil, fmt.Errorf("rapid reversals: %w", err)
		}
		out[ethereum.NormalizeTrader(trader)] += int(n)
	}
	return out, rows.Err()
}

func (r *TradeRepo) DailyActivity(ctx context.Context, w models.Window) ([]models.DailyActivity, error) {
	query := `
		SELECT DATE("receivedAt") AS day, COUNT(*), COUNT(DISTINCT "feePayer"),
			COALESCE(ROUND(SUM(` + volumeExpr + `)::numeric, 2), 0)::float8
		FROM axiomtrade_partitioned
		WHERE ` + windowClause + `
		GROUP BY 1 ORDER BY 1`

	rows, err := r.pool.Query(ctx, query, r.args(w)...)
	if err != nil {
		return nil, fmt.Errorf("daily activity: %w", err)
	}
	defer rows.Close()

	var out []models.DailyActivity
	for rows.Next() {
		var d models.DailyActivity
		if err := rows.Scan(&d.Day, &d.Trades, &d.Traders, &d.Volume); err != nil {
			return nil, fmt.Errorf("daily activity: %w", err)
		}
		d.Day = time.Date(d.Day.Year(), d.Day.Month(), d.Day.Day(), 0, 0, 0, 0, time.UTC)
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return FillDays(w, out), nil
}

// VolumeTiers buckets window traders by volume. Thresholds match
// segment.VolumeTier.
func (r *TradeRepo) VolumeTiers(ctx context.Context, w models.Window) ([]models.TierBreakdown, error) {
	query := `
		WITH uv AS (
			SELECT "feePayer", SUM(` + volumeExpr + `) AS vol
			FROM axiomtrade_partitioned
			WHERE ` + windowClause + `
			GROUP BY "feePayer"
		)
		SELECT CASE WHEN vol >= 100000 THEN 'Whale'
				WHEN vol >= 10000 THEN 'Mid'
				WHEN vol >= 1000 THEN 'Participant'
				ELSE 'Casual' END AS tier,
			COUNT(*), COALESCE(ROUND(SUM(vol)::numeric, 2), 0)::float8
		FROM uv GROUP BY 1`

	rows, err := r.pool.Query(ctx, query, r.args(w)...)
	if err != nil {
		return nil, fmt.Errorf("volume tiers: %w", err)
	}
	defer rows.Close()

	got := make(map[string]models.TierBreakdown)
	for rows.Next() {
		var t models.TierBreakdown
		if err := rows.Scan(&t.Tier, &t.Traders, &t.Volume); err != nil {
			return nil, fmt.Errorf("volume tiers: %w", err)
		}
		got[t.Tier] = t
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	out := make([]models.TierBreakdown, 0, len(TierOrder))
	for _, name := range TierOrder {
		t, ok := got[name]
		if !ok {
			t = models.TierBreakdown{Tier: name}
		}
		out = append(out, t)
	}
	return out, nil
}

// TierOrder is the display order of volume tiers, largest first.
var TierOrder = []string{"Whale", "Mid", "Participant", "Casual"}

func (r *TradeRepo) NewVsReturning(ctx context.Context, w models.Window) (models.NewVsReturning, error) {
	var out models.NewVsReturning
	err := r.pool.QueryRow(ctx, `
		WITH comp AS (
			SELECT DISTINCT "feePayer" FROM axiomtrade_partitioned
			WHERE "receivedAt" >= $1 AND "receivedAt" < $2
		),
		pre AS (
			SELECT DISTINCT "feePayer" FROM axiomtrade_partitioned WHERE "receivedAt" < $1
		)
		SELECT COUNT(*) FILTER (WHERE p."feePayer" IS NULL),
			COUNT(*) FILTER (WHERE p."feePayer" IS NOT NULL)
		FROM comp c LEFT JOIN pre p ON c."feePayer" = p."feePayer"`,
		w.Start, w.End,
	).Scan(&out.New, &out.Returning)
	if err != nil {
		return models.NewVsReturning{}, fmt.Errorf("new vs returning: %w", err)
	}
	return out, nil
}

func (r *TradeRepo) VolumeLeaders(ctx context.Context, w models.Window, limit int) ([]models.TraderVolume, error) {
	query := `
		SELECT "feePayer", ROUND(SUM(` + volumeExpr + `)::numeric, 2)::float8 AS vol
		FROM axiomtrade_partitioned
		WHERE ` + windowClause + `
		GROUP BY 1 ORDER BY vol DESC, 1 ASC LIMIT $4`

	rows, err := r.pool.Query(ctx, query, r.args(w, limit)...)
	if err != nil {
		return nil, fmt.Errorf("volume leaders: %w", err)
	}
	defer rows.Close()

	var out []models.TraderVolume
	for rows.Next() {
		var v models.TraderVolume
		if err := rows.Scan(&v.Trader, &v.Volume); err != nil {
			return nil, fmt.Errorf("volume leaders: %w", err)
		}
		v.Trader = ethereum.NormalizeTrader(v.Trader)
		out = append(out, v)
	}
	return out, rows.Err()
}

func (r *TradeRepo) ProgramBreakdown(ctx context.Context, w models.Window) ([]models.ProgramActivity, error) {
	query := `
		SELECT COALESCE("programId", ''), COUNT(*), COUNT(DISTINCT "feePayer"),
			COALESCE(ROUND(SUM(` + volumeExpr + `)::numeric, 2), 0)::float8 AS vol
		FROM axiomtrade_partitioned
		WHERE ` + windowClause + `
		GROUP BY 1 ORDER BY vol DESC, 1 ASC`

	rows, err := r.pool.Query(ctx, query, r.args(w)...)
	if err != nil {
		return nil, fmt.Errorf("program breakdown: %w", err)
	}
	defer rows.Close()

	var out []models.ProgramActivity
	for rows.Next() {
		var p models.ProgramActivity
		if err := rows.Scan(&p.ProgramID, &p.Trades, &p.Traders, &p.Volume); err != nil {
			return nil, fmt.Errorf("program breakdown: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// HourlyActivity groups by UTC hour of day across the whole window.
func (r *TradeRepo) HourlyActivity(ctx context.Context, w models.Window) ([]models.HourlyActivity, error) {
	query := `
		SELECT EXTRACT(HOUR FROM "receivedAt")::int AS hour, COUNT(*), COUNT(DISTINCT "feePayer"),
			COALESCE(ROUND(SUM(` + volumeExpr + `)::numeric, 2), 0)::float8
		FROM axiomtrade_partitioned
		WHERE ` + windowClause + `
		GROUP BY 1 ORDER BY 1`

	rows, err := r.pool.Query(ctx, query, r.args(w)...)
	if err != nil {
		return nil, fmt.Errorf("hourly activity: %w", err)
	}
	defer rows.Close()

	var out []models.HourlyActivity
	for rows.Next() {
		var h models.HourlyActivity
		if err := rows.Scan(&h.Hour, &h.Trades, &h.Traders, &h.Volume); err != nil {
			return nil, fmt.Errorf("hourly activity: %w", err)
		}
		out = append(out, h)
	}
	return out, rows.Err()
}

// SegmentRows derives per-trader segmentation rows straight from the swap
// table. NetQuoteFlow is quote spent buying less quote received selling.
func (r *TradeRepo) SegmentRows(ctx context.Context, w models.Window) ([]models.SegmentRow, error) {
	query := `
		SELECT "feePayer",
			COALESCE(SUM(` + volumeExpr + `), 0)::float8,
			COUNT(*),
			COALESCE(SUM(CASE WHEN "tokenIn" = $3 THEN "uiAmountIn" ELSE -"uiAmountOut" END), 0)::float8,
			COUNT(DISTINCT DATE("receivedAt"))
		FROM axiomtrade_partitioned
		WHERE ` + windowClause + `
		GROUP BY 1`

	rows, err := r.pool.Query(ctx, query, r.args(w)...)
	if err != nil {
		return nil, fmt.Errorf("segment rows: %w", err)
	}
	defer rows.Close()

	return collectSegmentRows(rows)
}

// --- scan helpers ---

func collectFlows(rows rowsIter) ([]models.DirectionalFlow, error) {
	var out []models.DirectionalFlow
	for rows.Next() {
		var (
			f                                    models.DirectionalFlow
			dir                                  string
			quoteIn, quoteOut, qty, pQuote, pQty string
		)
		if err := rows.Scan(&f.Trader, &f.Token, &dir,
			&quoteIn, &quoteOut, &qty, &pQuote, &pQty, &f.Swaps); err != nil {
			return nil, err
		}
		d, err := decimals(quoteIn, quoteOut, qty, pQuote, pQty)
		if err != nil {
			return nil, err
		}
		f.Trader = ethereum.NormalizeTrader(f.Trader)
		f.Direction = models.Direction(dir)
		f.QuoteIn, f.QuoteOut, f.TokenQty, f.PricedQuote, f.PricedQty = d[0], d[1], d[2], d[3], d[4]
		out = append(out, f)
	}
	return out, rows.Err()
}

func collectSegmentRows(rows rowsIter) ([]models.SegmentRow, error) {
	var out []models.SegmentRow
	for rows.Next() {
		var s models.SegmentRow
		var days int64
		if err := rows.Scan(&s.Trader, &s.TotalUSDVolume, &s.SwapCount, &s.NetQuoteFlow, &days); err != nil {
			return nil, fmt.Errorf("segment rows: %w", err)
		}
		s.Trader = ethereum.NormalizeTrader(s.Trader)
		s.ActiveDays = int(days)
		if s.SwapCount > 0 {
			s.AvgSwapSize = s.TotalUSDVolume / float64(s.SwapCount)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}
