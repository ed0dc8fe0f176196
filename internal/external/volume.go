package external

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"go.uber.org/zap"

	"github.com/kjannette/trahn-analytics/internal/ethereum"
	"github.com/kjannette/trahn-analytics/internal/metrics"
	"github.com/kjannette/trahn-analytics/internal/models"
)

// UserVolumeSource yields one segmentation row per trader for a window.
type UserVolumeSource interface {
	SegmentRows(ctx context.Context, w models.Window) ([]models.SegmentRow, error)
}

// Loader is the part of CubeClient the volume source needs.
type Loader interface {
	Load(ctx context.Context, q Query) ([]map[string]any, error)
}

type CubeVolumeSource struct {
	loader Loader
	limit  int
}

var _ UserVolumeSource = (*CubeVolumeSource)(nil)

func NewCubeVolumeSource(loader Loader) *CubeVolumeSource {
	return &CubeVolumeSource{loader: loader, limit: 50000}
}

func (s *CubeVolumeSource) SegmentRows(ctx context.Context, w models.Window) ([]models.SegmentRow, error) {
	m := UserVolumeSchema.Members
	q := Query{
		Measures:   []string{m[FieldVolume], m[FieldSwaps], m[FieldNetFlow]},
		Dimensions: []string{m[FieldTrader]},
		TimeDimensions: []TimeDimension{{
			Dimension:   "user_axiom_volume.aggregation_date",
			DateRange:   DateRange(w),
			Granularity: "day",
		}},
		Limit: s.limit,
	}
	raw, err := s.loader.Load(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("load user volume: %w", err)
	}
	rows, err := ParseRows(raw, UserVolumeSchema)
	if err != nil {
		return nil, err
	}
	return RollupDaily(rows), nil
}

// RollupDaily folds per-day rows into one row per trader. Active days count
// distinct dates with at least one swap.
func RollupDaily(rows []Row) []models.SegmentRow {
	byTrader := make(map[string]*models.SegmentRow)
	days := make(map[string]map[string]bool)
	for _, r := range rows {
		trader := ethereum.NormalizeTrader(r.Str(FieldTrader))
		acc, ok := byTrader[trader]
		if !ok {
			acc = &models.SegmentRow{Trader: trader}
			byTrader[trader] = acc
			days[trader] = map[string]bool{}
		}
		swaps := int64(r.Num(FieldSwaps))
		acc.TotalUSDVolume += r.Num(FieldVolume)
		acc.SwapCount += swaps
		acc.NetQuoteFlow += r.Num(FieldNetFlow)
		if d := r.Str(FieldDate); d != "" && swaps > 0 {
			days[trader][d] = true
		}
	}

	out := make([]models.SegmentRow, 0, len(byTrader))
	for trader, acc := range byTrader {
		acc.ActiveDays = len(days[trader])
		out = append(out, finish(*acc))
	}
	SortRows(out)
	return out
}

func finish(r models.SegmentRow) models.SegmentRow {
	if r.SwapCount > 0 {
		r.AvgSwapSize = r.TotalUSDVolume / float64(r.SwapCount)
	}
	return r
}

// SortRows orders by volume desc, then trader.
func SortRows(rows []models.SegmentRow) {
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].TotalUSDVolume != rows[j].TotalUSDVolume {
			return rows[i].TotalUSDVolume > rows[j].TotalUSDVolume
		}
		return rows[i].Trader < rows[j].Trader
	})
}

type ClickHouseConfig struct {
	Addr     string
	Database string
	Username string
	Password string
	Timeout  time.Duration
}

// ClickHouseVolumeSource reads the same user_axiom_volume table Cube models,
// directly over the native protocol.
type ClickHouseVolumeSource struct {
	conn driver.Conn
	log  *zap.Logger
}

var _ UserVolumeSource = (*ClickHouseVolumeSource)(nil)

func OpenClickHouse(ctx context.Context, cfg ClickHouseConfig) (driver.Conn, error) {
	db := cfg.Database
	if db == "" {
		db = "default"
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{cfg.Addr},
		Auth: clickhouse.Auth{
			Database: db,
			Username: cfg.Username,
			Password: cfg.Password,
		},
		DialTimeout: timeout,
		Compression: &clickhouse.Compression{
			Method: clickhouse.CompressionLZ4,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("open clickhouse: %w", err)
	}
	if err := conn.Ping(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("ping clickhouse: %w", err)
	}
	return conn, nil
}

func NewClickHouseVolumeSource(conn driver.Conn, log *zap.Logger) *ClickHouseVolumeSource {
	if log == nil {
		log = zap.NewNop()
	}
	return &ClickHouseVolumeSource{conn: conn, log: log.Named("clickhouse")}
}

const segmentRowsSQL = `
	SELECT
		fee_payer,
		toFloat64(sum(total_usd_volume)) AS volume,
		toUInt64(sum(swap_count))        AS swaps,
		toFloat64(sum(net_usd1_flow))    AS net_flow,
		toUInt64(uniqExactIf(aggregation_date, swap_count > 0)) AS active_days
	FROM user_axiom_volume
	WHERE aggregation_date >= toDate(?) AND aggregation_date < toDate(?)
	GROUP BY fee_payer
`

func (s *ClickHouseVolumeSource) SegmentRows(ctx context.Context, w models.Window) (rows []models.SegmentRow, err error) {
	start := time.Now()
	defer func() { metrics.ObserveQuery("clickhouse", "user_axiom_volume", start, err) }()

	res, err := s.conn.Query(ctx, segmentRowsSQL, w.Start, w.End)
	if err != nil {
		return nil, fmt.Errorf("%w: query user_axiom_volume: %v", ErrUpstream, err)
	}
	defer res.Close()

	for res.Next() {
		var (
			r          models.SegmentRow
			swaps      uint64
			activeDays uint64
		)
		if err := res.Scan(&r.Trader, &r.TotalUSDVolume, &swaps, &r.NetQuoteFlow, &activeDays); err != nil {
			return nil, fmt.Errorf("scan user_axiom_volume: %w", err)
		}
		r.Trader = ethereum.NormalizeTrader(r.Trader)
		r.SwapCount = int64(swaps)
		r.ActiveDays = int(activeDays)
		rows = append(rows, finish(r))
	}
	if err := res.Err(); err != nil {
		return nil, fmt.Errorf("iterate user_axiom_volume: %w", err)
	}

	SortRows(rows)
	s.log.Debug("segment rows loaded", zap.Int("traders", len(rows)), zap.Stringer("window", w))
	return rows, nil
}
