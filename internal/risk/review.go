package risk

import (
	"fmt"
	"math"

	"github.com/kjannette/trahn-analytics/internal/models"
)

// Review is the per-trader integrity verdict shown next to the leaderboard.
// Status is the score band; Reasons list each signal past its own cutoff.
type Review struct {
	Status      models.Band `json:"status"`
	Reasons     []string    `json:"reasons"`
	Mitigations []string    `json:"mitigations"`
}

func (t Thresholds) Review(s models.GamingSignals) Review {
	r := Review{Status: t.BandOf(s.RiskScore), Reasons: []string{}, Mitigations: []string{}}

	switch {
	case t.ReversalCritical > 0 && s.RapidReversals >= t.ReversalCritical:
		r.Reasons = append(r.Reasons, fmt.Sprintf("%d rapid reversals (critical: >=%d within %s)",
			s.RapidReversals, t.ReversalCritical, t.ReversalWindow))
		r.Mitigations = append(r.Mitigations, "Add cooldown period between buys/sells of same token")
	case t.ReversalWarning > 0 && s.RapidReversals >= t.ReversalWarning:
		r.Reasons = append(r.Reasons, fmt.Sprintf("%d rapid reversals (warning: >=%d within %s)",
			s.RapidReversals, t.ReversalWarning, t.ReversalWindow))
		r.Mitigations = append(r.Mitigations, "Monitor for wash trading patterns")
	}

	switch {
	case t.ConcentrationCritical > 0 && s.TopTokenVolumePct >= t.ConcentrationCritical:
		r.Reasons = append(r.Reasons, fmt.Sprintf("%.1f%% volume in single token (critical: >=%.0f%%)",
			s.TopTokenVolumePct, t.ConcentrationCritical))
		r.Mitigations = append(r.Mitigations, "Require minimum token diversity for rewards")
	case t.ConcentrationWarning > 0 && s.TopTokenVolumePct >= t.ConcentrationWarning:
		r.Reasons = append(r.Reasons, fmt.Sprintf("%.1f%% volume in single token (warning: >=%.0f%%)",
			s.TopTokenVolumePct, t.ConcentrationWarning))
		r.Mitigations = append(r.Mitigations, "Consider token diversification requirements")
	}

	switch {
	case t.DominanceCritical > 0 && s.MaxTokenDominancePct >= t.DominanceCritical:
		r.Reasons = append(r.Reasons, fmt.Sprintf("%.1f%% of %s market volume (critical: >=%.0f%%)",
			s.MaxTokenDominancePct, s.DominantToken, t.DominanceCritical))
		r.Mitigations = append(r.Mitigations, "Exclude tokens below a minimum market volume")
	case t.DominanceWarning > 0 && s.MaxTokenDominancePct >= t.DominanceWarning:
		r.Reasons = append(r.Reasons, fmt.Sprintf("%.1f%% of %s market volume (warning: >=%.0f%%)",
			s.MaxTokenDominancePct, s.DominantToken, t.DominanceWarning))
		r.Mitigations = append(r.Mitigations, "Cap per-token PnL share")
	}

	if s.HasFlag(models.FlagCoordinationRing) {
		r.Reasons = append(r.Reasons, "Shares a thin token with other high-risk traders")
		r.Mitigations = append(r.Mitigations, "Require a minimum number of distinct traders per token")
	}

	if s.ActiveDays == 1 {
		r.Reasons = append(r.Reasons, "Active only 1 day - potential one-and-done trader")
		r.Mitigations = append(r.Mitigations, "Require multi-day participation for top rewards")
	}

	return r
}

// Summary is the headline block above the leaderboard.
type Summary struct {
	Flagged     int     `json:"flagged"`
	RingMembers int     `json:"ringMembers"`
	PnLAtRisk   float64 `json:"pnlAtRisk"`
	High        int     `json:"high"`
	Medium      int     `json:"medium"`
	Low         int     `json:"low"`
}

// Summarize expects signals aligned index-for-index with summaries.
func (t Thresholds) Summarize(signals []models.GamingSignals, summaries []models.TraderPnLSummary) Summary {
	var s Summary
	for i, sig := range signals {
		if sig.RiskScore >= t.FlaggedScore {
			s.Flagged++
			if i < len(summaries) {
				s.PnLAtRisk += summaries[i].TotalPnL
			}
		}
		if sig.HasFlag(models.FlagCoordinationRing) {
			s.RingMembers++
		}
		switch t.BandOf(sig.RiskScore) {
		case models.BandCritical:
			s.High++
		case models.BandWarning:
			s.Medium++
		default:
			s.Low++
		}
	}
	s.PnLAtRisk = math.Round(s.PnLAtRisk*100) / 100
	return s
}
