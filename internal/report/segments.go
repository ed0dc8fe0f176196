package report

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/kjannette/trahn-analytics/internal/models"
	"github.com/kjannette/trahn-analytics/internal/segment"
)

var ErrNoVolumeSource = errors.New("no user volume source configured")

type CohortCount struct {
	Key         segment.Key `json:"key"`
	Name        string      `json:"name"`
	Description string      `json:"description"`
	Traders     int         `json:"traders"`
}

type CohortMembers struct {
	Cohort  CohortCount           `json:"cohort"`
	Window  models.Window         `json:"window"`
	Members []segment.Observation `json:"members"`
	Total   int                   `json:"total"`
}

// Observations loads w and the equal-length window before it concurrently.
func (b *Builder) Observations(ctx context.Context, w models.Window) ([]segment.Observation, error) {
	if b.volumes == nil {
		return nil, ErrNoVolumeSource
	}
	if err := w.Validate(); err != nil {
		return nil, err
	}

	var cur, prev []models.SegmentRow
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		cur, err = b.volumes.SegmentRows(gctx, w)
		if err != nil {
			return fmt.Errorf("current %s: %w", w, err)
		}
		return nil
	})
	g.Go(func() (err error) {
		p := w.Previous()
		prev, err = b.volumes.SegmentRows(gctx, p)
		if err != nil {
			return fmt.Errorf("previous %s: %w", p, err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return segment.Observe(cur, prev), nil
}

// CohortCounts lists every registered cohort with its size, sorted by key.
func (b *Builder) CohortCounts(ctx context.Context, w models.Window) ([]CohortCount, error) {
	obs, err := b.Observations(ctx, w)
	if err != nil {
		return nil, err
	}
	return countCohorts(b.cohorts, obs), nil
}

func countCohorts(r *segment.Registry, obs []segment.Observation) []CohortCount {
	counts := r.Counts(obs)
	out := make([]CohortCount, 0, len(counts))
	for _, c := range r.Cohorts() {
		out = append(out, CohortCount{Key: c.Key, Name: c.Name, Description: c.Description, Traders: counts[c.Key]})
	}
	return out
}

// Members returns at most limit members of one cohort; limit <= 0 means all.
func (b *Builder) Members(ctx context.Context, w models.Window, key segment.Key, limit int) (*CohortMembers, error) {
	c, ok := b.cohorts.Get(key)
	if !ok {
		return nil, fmt.Errorf("%w %q", segment.ErrUnknownCohort, key)
	}
	obs, err := b.Observations(ctx, w)
	if err != nil {
		return nil, err
	}
	members, err := b.cohorts.Members(key, obs)
	if err != nil {
		return nil, err
	}
	total := len(members)
	if limit > 0 && len(members) > limit {
		members = members[:limit]
	}
	return &CohortMembers{
		Cohort:  CohortCount{Key: c.Key, Name: c.Name, Description: c.Description, Traders: total},
		Window:  w,
		Members: members,
		Total:   total,
	}, nil
}
