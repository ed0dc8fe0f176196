// Package report assembles the competition views: the mitigated leaderboard,
// per-trader detail and the sectioned dashboard.
package report

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/kjannette/trahn-analytics/internal/external"
	"github.com/kjannette/trahn-analytics/internal/metrics"
	"github.com/kjannette/trahn-analytics/internal/mitigation"
	"github.com/kjannette/trahn-analytics/internal/models"
	"github.com/kjannette/trahn-analytics/internal/pnl"
	"github.com/kjannette/trahn-analytics/internal/risk"
	"github.com/kjannette/trahn-analytics/internal/segment"
)

// Store is the read side of the trade table. *repository.TradeRepo satisfies
// it.
type Store interface {
	DirectionalFlows(ctx context.Context, w models.Window) ([]models.DirectionalFlow, error)
	TraderActivity(ctx context.Context, w models.Window) (map[string]models.TraderActivity, error)
	Events(ctx context.Context, w models.Window) ([]models.TradeEvent, error)
	RapidReversalCounts(ctx context.Context, w models.Window, within time.Duration) (map[string]int, error)
	DailyActivity(ctx context.Context, w models.Window) ([]models.DailyActivity, error)
	VolumeTiers(ctx context.Context, w models.Window) ([]models.TierBreakdown, error)
	NewVsReturning(ctx context.Context, w models.Window) (models.NewVsReturning, error)
	VolumeLeaders(ctx context.Context, w models.Window, limit int) ([]models.TraderVolume, error)
	ProgramBreakdown(ctx context.Context, w models.Window) ([]models.ProgramActivity, error)
	HourlyActivity(ctx context.Context, w models.Window) ([]models.HourlyActivity, error)
}

type Options struct {
	Quote          string
	MinVolume      float64
	Thresholds     risk.Thresholds
	Segments       segment.Thresholds
	Mitigation     mitigation.Config
	SectionTimeout time.Duration
	LeaderLimit    int
	TopHours       int

	// SQLReversals counts reversals in the database instead of pulling raw
	// events. Hold-time filtering needs the raw gaps and is skipped.
	SQLReversals bool
}

func DefaultOptions(quote string) Options {
	return Options{
		Quote:          quote,
		MinVolume:      pnl.DefaultMinVolume,
		Thresholds:     risk.DefaultThresholds(),
		Segments:       segment.DefaultThresholds(),
		Mitigation:     mitigation.DefaultConfig(),
		SectionTimeout: 60 * time.Second,
		LeaderLimit:    5,
		TopHours:       5,
	}
}

type Builder struct {
	store    Store
	volumes  external.UserVolumeSource
	opts     Options
	engine   *pnl.Engine
	detector *risk.Detector
	cohorts  *segment.Registry
	log      *zap.Logger
}

// NewBuilder wires the pipeline. volumes may be nil, in which case cohort
// sections report an error.
func NewBuilder(store Store, volumes external.UserVolumeSource, opts Options, log *zap.Logger) *Builder {
	if log == nil {
		log = zap.NewNop()
	}
	if opts.LeaderLimit <= 0 {
		opts.LeaderLimit = 5
	}
	if opts.TopHours <= 0 {
		opts.TopHours = 5
	}
	if opts.SectionTimeout <= 0 {
		opts.SectionTimeout = 60 * time.Second
	}
	return &Builder{
		store:    store,
		volumes:  volumes,
		opts:     opts,
		engine:   pnl.NewEngine(opts.MinVolume, log),
		detector: risk.NewDetector(opts.Thresholds),
		cohorts:  segment.Default(opts.Segments),
		log:      log.Named("report"),
	}
}

func (b *Builder) Options() Options { return b.opts }
func (b *Builder) Cohorts() *segment.Registry { return b.cohorts }

// Analysis is the un-mitigated output of the PnL and detection stages.
type Analysis struct {
	Window    models.Window
	Positions []models.TraderTokenPosition
	Summaries []models.TraderPnLSummary
	Signals   []models.GamingSignals
	Rings     []models.CoordinatedToken
	Market    risk.Market
}

// Analyze runs aggregation, PnL and detection for one window.
func (b *Builder) Analyze(ctx context.Context, w models.Window) (*Analysis, error) {
	if err := w.Validate(); err != nil {
		return nil, err
	}
	start := time.Now()

	flows, err := b.store.DirectionalFlows(ctx, w)
	if err != nil {
		return nil, err
	}
	activity, err := b.store.TraderActivity(ctx, w)
	if err != nil {
		return nil, err
	}

	in := risk.Input{}
	if b.opts.SQLReversals {
		in.Reversals, err = b.store.RapidReversalCounts(ctx, w, b.opts.Thresholds.ReversalWindow)
	} else {
		var events []models.TradeEvent
		events, err = b.store.Events(ctx, w)
		in.Gaps = risk.ReversalGaps(events, b.opts.Quote)
	}
	if err != nil {
		return nil, err
	}

	positions := b.engine.Positions(flows, pnl.VWAP(flows))
	summaries := b.engine.Rollup(positions, activity)
	market := risk.MarketFrom(positions)

	in.Summaries = summaries
	in.Market = market
	res := b.detector.Analyze(in)

	b.log.Debug("window analysed",
		zap.Stringer("window", w),
		zap.Int("flows", len(flows)),
		zap.Int("eligible", len(summaries)),
		zap.Int("rings", len(res.Rings)),
		zap.Duration("took", time.Since(start)))

	return &Analysis{
		Window:    w,
		Positions: positions,
		Summaries: summaries,
		Signals:   res.Signals,
		Rings:     res.Rings,
		Market:    market,
	}, nil
}

// Leaderboard is the mitigated ranking plus everything needed to explain it.
type Leaderboard struct {
	RunID       string                    `json:"runId"`
	Window      models.Window             `json:"window"`
	Config      mitigation.Config         `json:"config"`
	Entries     []mitigation.Ranked       `json:"entries"`
	Impact      mitigation.Impact         `json:"impact"`
	Risk        risk.Summary              `json:"risk"`
	Rings       []models.CoordinatedToken `json:"rings"`
	Reviews     map[string]risk.Review    `json:"reviews"`
	GeneratedAt time.Time                 `json:"generatedAt"`
}

// Leaderboard validates cfg before touching the store, so a bad slider value
// never costs a query.
func (b *Builder) Leaderboard(ctx context.Context, w models.Window, cfg mitigation.Config) (*Leaderboard, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	a, err := b.Analyze(ctx, w)
	if err != nil {
		return nil, fmt.Errorf("analyze %s: %w", w, err)
	}
	return b.rank(a, cfg)
}

func (b *Builder) rank(a *Analysis, cfg mitigation.Config) (*Leaderboard, error) {
	th := b.opts.Thresholds
	if cfg.MinHoldTime > 0 && b.opts.SQLReversals {
		b.log.Warn("hold-time filter ignored: reversal gaps are not loaded in SQL mode")
	}

	entries := make([]mitigation.Entry, len(a.Summaries))
	reviews := make(map[string]risk.Review)
	for i, s := range a.Summaries {
		entries[i] = mitigation.Entry{Summary: s, Signals: a.Signals[i]}
		if a.Signals[i].Band != models.BandClean {
			reviews[s.Trader] = th.Review(a.Signals[i])
		}
	}

	ranked, err := mitigation.NewSimulator(th, a.Market).Run(entries, cfg)
	if err != nil {
		return nil, err
	}

	summary := th.Summarize(a.Signals, a.Summaries)
	metrics.FlaggedTraders.Set(float64(summary.Flagged))

	rings := a.Rings
	if rings == nil {
		rings = []models.CoordinatedToken{}
	}
	return &Leaderboard{
		RunID:       uuid.NewString(),
		Window:      a.Window,
		Config:      cfg,
		Entries:     ranked,
		Impact:      mitigation.Summarize(ranked),
		Risk:        summary,
		Rings:       rings,
		Reviews:     reviews,
		GeneratedAt: time.Now().UTC(),
	}, nil
}

// TraderDetail is one trader's view. Eligible is false when the trader is
// below the volume floor; Positions are still reported then.
type TraderDetail struct {
	Trader    string                       `json:"trader"`
	Found     bool                         `json:"found"`
	Eligible  bool                         `json:"eligible"`
	Summary   *models.TraderPnLSummary     `json:"summary,omitempty"`
	Signals   *models.GamingSignals        `json:"signals,omitempty"`
	Review    *risk.Review                 `json:"review,omitempty"`
	Positions []models.TraderTokenPosition `json:"positions"`
}

// Trader returns an empty detail, not an error, for an unknown trader.
func (b *Builder) Trader(ctx context.Context, w models.Window, trader string) (*TraderDetail, error) {
	a, err := b.Analyze(ctx, w)
	if err != nil {
		return nil, fmt.Errorf("analyze %s: %w", w, err)
	}

	d := &TraderDetail{Trader: trader, Positions: []models.TraderTokenPosition{}}
	for i := range a.Summaries {
		if a.Summaries[i].Trader != trader {
			continue
		}
		sum, sig := a.Summaries[i], a.Signals[i]
		rev := b.opts.Thresholds.Review(sig)
		d.Found, d.Eligible = true, true
		d.Summary, d.Signals, d.Review = &sum, &sig, &rev
		d.Positions = sum.Positions
		return d, nil
	}
	for _, p := range a.Positions {
		if p.Trader == trader {
			d.Found = true
			d.Positions = append(d.Positions, p)
		}
	}
	return d, nil
}
