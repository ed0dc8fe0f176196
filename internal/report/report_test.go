package report

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/kjannette/trahn-analytics/internal/mitigation"
	"github.com/kjannette/trahn-analytics/internal/models"
	"github.com/kjannette/trahn-analytics/internal/segment"
)

func day(d int) time.Time { return time.Date(2026, 1, d, 0, 0, 0, 0, time.UTC) }

var testWindows = models.Windows{
	Baseline:    models.Window{Start: day(5), End: day(7)},
	Competition: models.Window{Start: day(12), End: day(14)},
}

func flow(trader, token string, dir models.Direction, quote, qty float64) models.DirectionalFlow {
	f := models.DirectionalFlow{
		Trader:      trader,
		Token:       token,
		Direction:   dir,
		TokenQty:    decimal.NewFromFloat(qty),
		PricedQuote: decimal.NewFromFloat(quote),
		PricedQty:   decimal.NewFromFloat(qty),
		Swaps:       1,
	}
	if dir == models.Buy {
		f.QuoteIn = decimal.NewFromFloat(quote)
	} else {
		f.QuoteOut = decimal.NewFromFloat(quote)
	}
	return f
}

// fakeStore serves canned rows. fail maps a method name to the error it
// returns; block makes a method wait for cancellation.
type fakeStore struct {
	mu    sync.Mutex
	fail  map[string]error
	block map[string]bool
	calls atomic.Int64
}

func (s *fakeStore) enter(ctx context.Context, name string) error {
	s.calls.Add(1)
	s.mu.Lock()
	err, blocks := s.fail[name], s.block[name]
	s.mu.Unlock()
	if blocks {
		<-ctx.Done()
		return ctx.Err()
	}
	return err
}

func (s *fakeStore) DirectionalFlows(ctx context.Context, _ models.Window) ([]models.DirectionalFlow, error) {
	if err := s.enter(ctx, "flows"); err != nil {
		return nil, err
	}
	return []models.DirectionalFlow{
		flow("alice", "TOK", models.Buy, 2000, 100),
		flow("alice", "TOK", models.Sell, 2500, 100),
		flow("bob", "TOK", models.Buy, 1500, 100),
		flow("carol", "DUST", models.Buy, 500, 10),
	}, nil
}

func (s *fakeStore) TraderActivity(ctx context.Context, _ models.Window) (map[string]models.TraderActivity, error) {
	if err := s.enter(ctx, "activity"); err != nil {
		return nil, err
	}
	return map[string]models.TraderActivity{
		"alice": {Trader: "alice", TradeCount: 2, ActiveDays: 2},
		"bob":   {Trader: "bob", TradeCount: 1, ActiveDays: 1},
	}, nil
}

func (s *fakeStore) Events(ctx context.Context, _ models.Window) ([]models.TradeEvent, error) {
	return nil, s.enter(ctx, "events")
}

func (s *fakeStore) RapidReversalCounts(ctx context.Context, _ models.Window, _ time.Duration) (map[string]int, error) {
	return map[string]int{}, s.enter(ctx, "reversals")
}

func (s *fakeStore) DailyActivity(ctx context.Context, _ models.Window) ([]models.DailyActivity, error) {
	if err := s.enter(ctx, "daily"); err != nil {
		return nil, err
	}
	return []models.DailyActivity{
		{Day: day(5), Trades: 10, Traders: 4, Volume: 100},
		{Day: day(6), Trades: 30, Traders: 6, Volume: 300},
		{Day: day(12), Trades: 20, Traders: 5, Volume: 200},
		{Day: day(13), Trades: 60, Traders: 10, Volume: 600},
	}, nil
}

func (s *fakeStore) VolumeTiers(ctx context.Context, _ models.Window) ([]models.TierBreakdown, error) {
	if err := s.enter(ctx, "tiers"); err != nil {
		return nil, err
	}
	return []models.TierBreakdown{{Tier: "Whale", Traders: 1, Volume: 250000}}, nil
}

func (s *fakeStore) NewVsReturning(ctx context.Context, _ models.Window) (models.NewVsReturning, error) {
	if err := s.enter(ctx, "acquisition"); err != nil {
		return models.NewVsReturning{}, err
	}
	return models.NewVsReturning{New: 1, Returning: 3}, nil
}

func (s *fakeStore) VolumeLeaders(ctx context.Context, _ models.Window, limit int) ([]models.TraderVolume, error) {
	if err := s.enter(ctx, "leaders"); err != nil {
		return nil, err
	}
	out := []models.TraderVolume{{Trader: "alice", Volume: 4500}, {Trader: "bob", Volume: 1500}}
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *fakeStore) ProgramBreakdown(ctx context.Context, _ models.Window) ([]models.ProgramActivity, error) {
	if err := s.enter(ctx, "programs"); err != nil {
		return nil, err
	}
	return []models.ProgramActivity{{ProgramID: "router", Volume: 1000}}, nil
}

func (s *fakeStore) HourlyActivity(ctx context.Context, _ models.Window) ([]models.HourlyActivity, error) {
	if err := s.enter(ctx, "hours"); err != nil {
		return nil, err
	}
	return []models.HourlyActivity{{Hour: 14, Volume: 400}}, nil
}

type fakeVolumes struct {
	byStart map[time.Time][]models.SegmentRow
	err     error
}

func (f *fakeVolumes) SegmentRows(_ context.Context, w models.Window) ([]models.SegmentRow, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.byStart[w.Start], nil
}

func testVolumes() *fakeVolumes {
	comp := testWindows.Competition
	return &fakeVolumes{byStart: map[time.Time][]models.SegmentRow{
		comp.Start: {
			{Trader: "alice", TotalUSDVolume: 250000, SwapCount: 40, ActiveDays: 2},
			{Trader: "bob", TotalUSDVolume: 3000, SwapCount: 1, ActiveDays: 1},
		},
		comp.Previous().Start: {
			{Trader: "alice", TotalUSDVolume: 100000, SwapCount: 20, ActiveDays: 2},
		},
	}}
}

func newTestBuilder(t *testing.T, store Store, vols *fakeVolumes) *Builder {
	opts := DefaultOptions("USD1")
	opts.SectionTimeout = 5 * time.Second
	if vols == nil {
		return NewBuilder(store, nil, opts, zaptest.NewLogger(t))
	}
	return NewBuilder(store, vols, opts, zaptest.NewLogger(t))
}

func TestLeaderboard_RanksEligibleTraders(t *testing.T) {
	b := newTestBuilder(t, &fakeStore{}, nil)

	lb, err := b.Leaderboard(context.Background(), testWindows.Competition, mitigation.DefaultConfig())
	require.NoError(t, err)
	require.Len(t, lb.Entries, 2, "carol is under the volume floor")
	assert.Equal(t, "alice", lb.Entries[0].Trader)
	assert.InDelta(t, 500, lb.Entries[0].TotalPnL, 1e-9)
	assert.Equal(t, "bob", lb.Entries[1].Trader)
	assert.InDelta(t, -1500, lb.Entries[1].TotalPnL, 1e-9)
	assert.NotEmpty(t, lb.RunID)
	assert.NotNil(t, lb.Rings)
	assert.Equal(t, 2, lb.Impact.Traders)
}

func TestLeaderboard_InvalidConfigSkipsStore(t *testing.T) {
	store := &fakeStore{}
	b := newTestBuilder(t, store, nil)

	cfg := mitigation.DefaultConfig()
	cfg.MaxTokenPnLPct = 150
	_, err := b.Leaderboard(context.Background(), testWindows.Competition, cfg)

	var ce *mitigation.ConfigError
	require.ErrorAs(t, err, &ce)
	assert.Zero(t, store.calls.Load())
}

func TestAnalyze_SQLReversalsSkipsEvents(t *testing.T) {
	store := &fakeStore{fail: map[string]error{"events": errors.New("events must not be loaded")}}
	opts := DefaultOptions("USD1")
	opts.SQLReversals = true
	b := NewBuilder(store, nil, opts, zaptest.NewLogger(t))

	a, err := b.Analyze(context.Background(), testWindows.Competition)
	require.NoError(t, err)
	assert.Len(t, a.Summaries, 2)
	assert.Len(t, a.Signals, 2)
}

func TestTrader(t *testing.T) {
	b := newTestBuilder(t, &fakeStore{}, nil)
	ctx := context.Background()

	d, err := b.Trader(ctx, testWindows.Competition, "alice")
	require.NoError(t, err)
	assert.True(t, d.Found)
	assert.True(t, d.Eligible)
	require.NotNil(t, d.Summary)
	require.NotNil(t, d.Signals)
	require.NotNil(t, d.Review)
	assert.Equal(t, d.Signals.Band, d.Review.Status)
	assert.NotEmpty(t, d.Review.Reasons, "single-token trader")
	assert.Len(t, d.Positions, 1)

	d, err = b.Trader(ctx, testWindows.Competition, "carol")
	require.NoError(t, err)
	assert.True(t, d.Found)
	assert.False(t, d.Eligible)
	assert.Nil(t, d.Summary)
	assert.Len(t, d.Positions, 1)

	d, err = b.Trader(ctx, testWindows.Competition, "nobody")
	require.NoError(t, err)
	assert.False(t, d.Found)
	assert.Empty(t, d.Positions)
}

func TestBuild_PartialFailure(t *testing.T) {
	store := &fakeStore{fail: map[string]error{"tiers": errors.New("boom")}}
	b := newTestBuilder(t, store, testVolumes())

	d, err := b.Build(context.Background(), testWindows)
	require.NoError(t, err)
	assert.Equal(t, []string{"tiers"}, d.Failed())
	assert.Equal(t, "boom", d.Tiers.Error)
	assert.Nil(t, d.Tiers.Data)

	require.NotNil(t, d.Leaderboard.Data)
	assert.Len(t, d.Leaderboard.Data.Entries, 2)
	assert.InDelta(t, 25, d.Acquisition.Data.NewRate, 1e-9)
	assert.Len(t, d.VolumeLeaders.Data, 2)
	assert.InDelta(t, 100, d.Daily.Data.Comparison.LiftPct.Volume, 1e-9)

	counts := make(map[segment.Key]int)
	for _, c := range d.Cohorts.Data {
		counts[c.Key] = c.Traders
	}
	assert.Equal(t, 1, counts[segment.Whales])
	assert.Equal(t, 1, counts[segment.OneAndDone])
}

func TestBuild_NoVolumeSource(t *testing.T) {
	b := newTestBuilder(t, &fakeStore{}, nil)

	d, err := b.Build(context.Background(), testWindows)
	require.NoError(t, err)
	assert.Equal(t, []string{"cohorts"}, d.Failed())
	assert.Contains(t, d.Cohorts.Error, ErrNoVolumeSource.Error())
}

func TestBuild_SectionTimeout(t *testing.T) {
	store := &fakeStore{block: map[string]bool{"hours": true}}
	opts := DefaultOptions("USD1")
	opts.SectionTimeout = 50 * time.Millisecond
	b := NewBuilder(store, testVolumes(), opts, zaptest.NewLogger(t))

	d, err := b.Build(context.Background(), testWindows)
	require.NoError(t, err)
	assert.Equal(t, []string{"hours"}, d.Failed())
	assert.Contains(t, d.Hours.Error, context.DeadlineExceeded.Error())
}

func TestBuildStrict_CancelsOnFirstError(t *testing.T) {
	store := &fakeStore{
		fail:  map[string]error{"tiers": errors.New("boom")},
		block: map[string]bool{"hours": true},
	}
	b := newTestBuilder(t, store, testVolumes())

	done := make(chan error, 1)
	go func() {
		_, err := b.BuildStrict(context.Background(), testWindows)
		done <- err
	}()

	select {
	case err := <-done:
		require.Error(t, err)
		assert.Contains(t, err.Error(), "section tiers")
	case <-time.After(2 * time.Second):
		t.Fatal("BuildStrict did not cancel the blocked section")
	}
}

func TestBuild_RejectsBadWindows(t *testing.T) {
	b := newTestBuilder(t, &fakeStore{}, nil)
	ws := testWindows
	ws.Competition.End = ws.Competition.Start

	_, err := b.Build(context.Background(), ws)
	assert.Error(t, err)
}

func TestMembers(t *testing.T) {
	b := newTestBuilder(t, &fakeStore{}, testVolumes())
	ctx := context.Background()

	m, err := b.Members(ctx, testWindows.Competition, segment.RisingStars, 10)
	require.NoError(t, err)
	require.Len(t, m.Members, 1)
	assert.Equal(t, "alice", m.Members[0].Current.Trader)
	assert.Equal(t, 1, m.Total)

	_, err = b.Members(ctx, testWindows.Competition, "nope", 10)
	assert.ErrorIs(t, err, segment.ErrUnknownCohort)
}

func TestCompare(t *testing.T) {
	store := &fakeStore{}
	daily, err := store.DailyActivity(context.Background(), testWindows.Span())
	require.NoError(t, err)

	pc := Compare(daily, testWindows)
	assert.Equal(t, Averages{Trades: 20, Traders: 5, Volume: 200}, pc.Baseline)
	assert.Equal(t, Averages{Trades: 40, Traders: 7.5, Volume: 400}, pc.Competition)
	assert.Equal(t, Averages{Trades: 100, Traders: 50, Volume: 100}, pc.LiftPct)

	require.Len(t, pc.DayOfWeek, 2)
	assert.Equal(t, time.Monday, pc.DayOfWeek[0].Weekday)
	assert.InDelta(t, 100, pc.DayOfWeek[0].Baseline, 1e-9)
	assert.InDelta(t, 100, pc.DayOfWeek[1].LiftPct, 1e-9)

	assert.Equal(t, Attribution{
		ExpectedVolume:    400,
		ActualVolume:      800,
		IncrementalVolume: 400,
		ExpectedTrades:    40,
		ActualTrades:      80,
		IncrementalTrades: 40,
	}, pc.Attribution)
}

func TestCompare_ZeroBaseline(t *testing.T) {
	pc := Compare([]models.DailyActivity{{Day: day(12), Trades: 5, Volume: 50}}, testWindows)
	assert.Zero(t, pc.LiftPct.Volume)
	assert.Empty(t, pc.DayOfWeek)
	assert.InDelta(t, 50, pc.Attribution.IncrementalVolume, 1e-9)
}

func TestProgramLifts(t *testing.T) {
	base := []models.ProgramActivity{{ProgramID: "P1", Volume: 200}}
	comp := []models.ProgramActivity{{ProgramID: "P1", Volume: 600}, {ProgramID: "P2", Volume: 100}}

	got := ProgramLifts(base, comp, testWindows)
	require.Len(t, got, 2)
	assert.Equal(t, ProgramLift{ProgramID: "P1", BaselineDaily: 100, CompetitionDaily: 300, LiftPct: 200}, got[0])
	assert.Equal(t, ProgramLift{ProgramID: "P2", CompetitionDaily: 50}, got[1])
}

func TestTopHours(t *testing.T) {
	base := []models.HourlyActivity{{Hour: 14, Volume: 200}}
	comp := []models.HourlyActivity{{Hour: 14, Volume: 400}, {Hour: 3, Volume: 1000}, {Hour: 5, Volume: 10}}

	got := TopHours(base, comp, testWindows, 2)
	require.Len(t, got, 2)
	assert.Equal(t, 3, got[0].Hour)
	assert.InDelta(t, 500, got[0].CompetitionDaily, 1e-9)
	assert.Equal(t, 14, got[1].Hour)
	assert.InDelta(t, 100, got[1].LiftPct, 1e-9)
}
