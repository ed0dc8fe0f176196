package report

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/kjannette/trahn-analytics/internal/metrics"
	"github.com/kjannette/trahn-analytics/internal/models"
)

// Section carries either data or the error that prevented it. A failed
// section leaves Data at its zero value.
type Section[T any] struct {
	Data  T      `json:"data"`
	Error string `json:"error,omitempty"`
}

func (s Section[T]) OK() bool { return s.Error == "" }

type Daily struct {
	Days       []models.DailyActivity `json:"days"`
	Comparison PeriodComparison       `json:"comparison"`
}

type Acquisition struct {
	models.NewVsReturning
	NewRate float64 `json:"newRate"`
}

// Dashboard is every view of one baseline/competition pair.
type Dashboard struct {
	RunID       string         `json:"runId"`
	GeneratedAt time.Time      `json:"generatedAt"`
	Windows     models.Windows `json:"windows"`
	Quote       string         `json:"quote"`

	Daily         Section[Daily]                  `json:"daily"`
	Tiers         Section[[]models.TierBreakdown] `json:"tiers"`
	Acquisition   Section[Acquisition]            `json:"acquisition"`
	Leaderboard   Section[*Leaderboard]           `json:"leaderboard"`
	VolumeLeaders Section[[]models.TraderVolume]  `json:"volumeLeaders"`
	Programs      Section[[]ProgramLift]          `json:"programs"`
	Hours         Section[[]HourLift]             `json:"hours"`
	Cohorts       Section[[]CohortCount]          `json:"cohorts"`
}

// Failed names the sections that did not build.
func (d *Dashboard) Failed() []string {
	var out []string
	check := func(name string, ok bool) {
		if !ok {
			out = append(out, name)
		}
	}
	check("daily", d.Daily.OK())
	check("tiers", d.Tiers.OK())
	check("acquisition", d.Acquisition.OK())
	check("leaderboard", d.Leaderboard.OK())
	check("volume_leaders", d.VolumeLeaders.OK())
	check("programs", d.Programs.OK())
	check("hours", d.Hours.OK())
	check("cohorts", d.Cohorts.OK())
	return out
}

type task struct {
	name string
	run  func(context.Context) error
}

func section[T any](name string, s *Section[T], fn func(context.Context) (T, error)) task {
	return task{name: name, run: func(ctx context.Context) error {
		v, err := fn(ctx)
		if err != nil {
			s.Error = err.Error()
			return err
		}
		s.Data = v
		return nil
	}}
}

func (b *Builder) tasks(d *Dashboard) []task {
	ws := d.Windows
	comp, base := ws.Competition, ws.Baseline
	return []task{
		section("daily", &d.Daily, func(ctx context.Context) (Daily, error) {
			days, err := b.store.DailyActivity(ctx, ws.Span())
			if err != nil {
				return Daily{}, err
			}
			return Daily{Days: days, Comparison: Compare(days, ws)}, nil
		}),
		section("tiers", &d.Tiers, func(ctx context.Context) ([]models.TierBreakdown, error) {
			return b.store.VolumeTiers(ctx, comp)
		}),
		section("acquisition", &d.Acquisition, func(ctx context.Context) (Acquisition, error) {
			nr, err := b.store.NewVsReturning(ctx, comp)
			if err != nil {
				return Acquisition{}, err
			}
			return Acquisition{NewVsReturning: nr, NewRate: round2(nr.NewRate())}, nil
		}),
		section("leaderboard", &d.Leaderboard, func(ctx context.Context) (*Leaderboard, error) {
			return b.Leaderboard(ctx, comp, b.opts.Mitigation)
		}),
		section("volume_leaders", &d.VolumeLeaders, func(ctx context.Context) ([]models.TraderVolume, error) {
			return b.store.VolumeLeaders(ctx, comp, b.opts.LeaderLimit)
		}),
		section("programs", &d.Programs, func(ctx context.Context) ([]ProgramLift, error) {
			bp, err := b.store.ProgramBreakdown(ctx, base)
			if err != nil {
				return nil, err
			}
			cp, err := b.store.ProgramBreakdown(ctx, comp)
			if err != nil {
				return nil, err
			}
			return ProgramLifts(bp, cp, ws), nil
		}),
		section("hours", &d.Hours, func(ctx context.Context) ([]HourLift, error) {
			bh, err := b.store.HourlyActivity(ctx, base)
			if err != nil {
				return nil, err
			}
			ch, err := b.store.HourlyActivity(ctx, comp)
			if err != nil {
				return nil, err
			}
			return TopHours(bh, ch, ws, b.opts.TopHours), nil
		}),
		section("cohorts", &d.Cohorts, func(ctx context.Context) ([]CohortCount, error) {
			return b.CohortCounts(ctx, comp)
		}),
	}
}

func (b *Builder) newDashboard(ws models.Windows) (*Dashboard, error) {
	if err := ws.Baseline.Validate(); err != nil {
		return nil, fmt.Errorf("baseline: %w", err)
	}
	if err := ws.Competition.Validate(); err != nil {
		return nil, fmt.Errorf("competition: %w", err)
	}
	return &Dashboard{
		RunID:       uuid.NewString(),
		GeneratedAt: time.Now().UTC(),
		Windows:     ws,
		Quote:       b.opts.Quote,
	}, nil
}

// Build runs every section concurrently. A failing section records its
// error and the rest still complete.
func (b *Builder) Build(ctx context.Context, ws models.Windows) (*Dashboard, error) {
	d, err := b.newDashboard(ws)
	if err != nil {
		return nil, err
	}

	var g errgroup.Group
	for _, t := range b.tasks(d) {
		g.Go(func() error {
			sctx, cancel := context.WithTimeout(ctx, b.opts.SectionTimeout)
			defer cancel()
			start := time.Now()
			if err := t.run(sctx); err != nil {
				metrics.SectionFailures.WithLabelValues(t.name).Inc()
				b.log.Warn("section failed", zap.String("section", t.name), zap.Error(err))
				return nil
			}
			b.log.Debug("section built", zap.String("section", t.name), zap.Duration("took", time.Since(start)))
			return nil
		})
	}
	_ = g.Wait()
	return d, nil
}

// BuildStrict fails on the first section error and cancels the others.
func (b *Builder) BuildStrict(ctx context.Context, ws models.Windows) (*Dashboard, error) {
	d, err := b.newDashboard(ws)
	if err != nil {
		return nil, err
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, t := range b.tasks(d) {
		g.Go(func() error {
			sctx, cancel := context.WithTimeout(gctx, b.opts.SectionTimeout)
			defer cancel()
			if err := t.run(sctx); err != nil {
				metrics.SectionFailures.WithLabelValues(t.name).Inc()
				return fmt.Errorf("section %s: %w", t.name, err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return d, nil
}
