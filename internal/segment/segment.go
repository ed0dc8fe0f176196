// Package segment classifies traders into behavioural cohorts from their
// aggregate volume, frequency and flow. Cohorts overlap freely.
package segment

import (
	"errors"
	"fmt"
	"sort"

	"github.com/kjannette/trahn-analytics/internal/models"
)

type Key string

var ErrUnknownCohort = errors.New("unknown cohort")

const (
	Whales        Key = "whales"
	MidTier       Key = "mid_tier"
	StreakMasters Key = "streak_masters"
	Consistent    Key = "consistent"
	ActiveSmall   Key = "active_small"
	Accumulators  Key = "accumulators"
	Distributors  Key = "distributors"
	OneAndDone    Key = "one_and_done"
	SuspectedBots Key = "suspected_bots"
	RisingStars   Key = "rising_stars"
	CoolingDown   Key = "cooling_down"
	LapsedWhales  Key = "lapsed_whales"
)

// Observation is one trader's current row and, for velocity cohorts, the
// row from the preceding window of equal length. Previous is nil when the
// trader had no activity then.
type Observation struct {
	Current  models.SegmentRow
	Previous *models.SegmentRow
}

func (o Observation) PreviousVolume() float64 {
	if o.Previous == nil {
		return 0
	}
	return o.Previous.TotalUSDVolume
}

type Cohort struct {
	Key         Key                         `json:"key"`
	Name        string                      `json:"name"`
	Description string                      `json:"description"`
	Match       func(Observation) bool      `json:"-"`
	Less        func(a, b Observation) bool `json:"-"`
	NeedsPrior  bool                        `json:"needsPrior"`
}

// Registry maps cohort keys to predicates.
type Registry struct {
	cohorts map[Key]Cohort
}

func NewRegistry() *Registry {
	return &Registry{cohorts: make(map[Key]Cohort)}
}

func (r *Registry) Register(c Cohort) error {
	if c.Key == "" || c.Match == nil {
		return fmt.Errorf("cohort needs a key and a predicate")
	}
	if _, dup := r.cohorts[c.Key]; dup {
		return fmt.Errorf("cohort %q already registered", c.Key)
	}
	if c.Less == nil {
		c.Less = byVolume
	}
	r.cohorts[c.Key] = c
	return nil
}

func (r *Registry) Get(k Key) (Cohort, bool) {
	c, ok := r.cohorts[k]
	return c, ok
}

// Cohorts returns every registered cohort sorted by key.
func (r *Registry) Cohorts() []Cohort {
	out := make([]Cohort, 0, len(r.cohorts))
	for _, c := range r.cohorts {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

// Classify returns the sorted keys of every cohort obs matches.
func (r *Registry) Classify(obs Observation) []Key {
	keys := []Key{}
	for k, c := range r.cohorts {
		if c.Match(obs) {
			keys = append(keys, k)
		}
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}

// Observe joins current rows with prior-window rows by trader. Traders only
// present in previous are included with a zero current row so lapsed
// cohorts can see them.
func Observe(current, previous []models.SegmentRow) []Observation {
	prev := make(map[string]models.SegmentRow, len(previous))
	for _, p := range previous {
		prev[p.Trader] = p
	}
	seen := make(map[string]bool, len(current))
	out := make([]Observation, 0, len(current))
	for _, c := range current {
		o := Observation{Current: c}
		if p, ok := prev[c.Trader]; ok {
			p := p
			o.Previous = &p
		}
		seen[c.Trader] = true
		out = append(out, o)
	}
	for _, p := range previous {
		if seen[p.Trader] {
			continue
		}
		p := p
		out = append(out, Observation{Current: models.SegmentRow{Trader: p.Trader}, Previous: &p})
	}
	return out
}

// Members filters observations through one cohort and orders them by the
// cohort's sort, then trader id.
func (r *Registry) Members(k Key, obs []Observation) ([]Observation, error) {
	c, ok := r.cohorts[k]
	if !ok {
		return nil, fmt.Errorf("%w %q", ErrUnknownCohort, k)
	}
	out := []Observation{}
	for _, o := range obs {
		if c.Match(o) {
			out = append(out, o)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if c.Less(out[i], out[j]) {
			return true
		}
		if c.Less(out[j], out[i]) {
			return false
		}
		return out[i].Current.Trader < out[j].Current.Trader
	})
	return out, nil
}

// Counts returns how many observations fall in each registered cohort.
func (r *Registry) Counts(obs []Observation) map[Key]int {
	counts := make(map[Key]int, len(r.cohorts))
	for k := range r.cohorts {
		counts[k] = 0
	}
	for _, o := range obs {
		for _, k := range r.Classify(o) {
			counts[k]++
		}
	}
	return counts
}

func byVolume(a, b Observation) bool {
	return a.Current.TotalUSDVolume > b.Current.TotalUSDVolume
}
