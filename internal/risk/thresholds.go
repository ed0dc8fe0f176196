// Package risk scores traders for leaderboard-gaming patterns: rapid
// reversals, token concentration, market dominance, outsized efficiency and
// coordinated rings.
package risk

import (
	"time"

	"github.com/kjannette/trahn-analytics/internal/models"
)

// Thresholds holds every tunable cutoff the detector and review use.
// A zero saturation value disables that score component.
type Thresholds struct {
	ReversalWindow   time.Duration
	ReversalWarning  int
	ReversalCritical int

	ConcentrationWarning  float64
	ConcentrationCritical float64

	DominanceWarning  float64
	DominanceCritical float64

	HighEfficiencyPer1K    float64
	ExtremeEfficiencyPer1K float64

	RingMinTraders     int
	RingMinSharePct    float64
	RingMemberMinScore int

	WarningScore  int
	CriticalScore int
	FlaggedScore  int
}

func DefaultThresholds() Thresholds {
	return Thresholds{
		ReversalWindow:   60 * time.Second,
		ReversalWarning:  25,
		ReversalCritical: 100,

		ConcentrationWarning:  50,
		ConcentrationCritical: 80,

		DominanceWarning:  50,
		DominanceCritical: 80,

		HighEfficiencyPer1K:    300,
		ExtremeEfficiencyPer1K: 500,

		RingMinTraders:     4,
		RingMinSharePct:    10,
		RingMemberMinScore: 40,

		WarningScore:  60,
		CriticalScore: 80,
		FlaggedScore:  70,
	}
}

// Score weights. They sum to 100.
const (
	weightReversals     = 30
	weightConcentration = 25
	weightDominance     = 25
	weightEfficiency    = 10
	weightRing          = 10
)

// BandOf classifies a score. Every view goes through this.
func (t Thresholds) BandOf(score int) models.Band {
	switch {
	case score >= t.CriticalScore:
		return models.BandCritical
	case score >= t.WarningScore:
		return models.BandWarning
	default:
		return models.BandClean
	}
}
