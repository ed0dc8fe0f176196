// Package mitigation replays the leaderboard under a set of anti-gaming
// filters and reports how ranks and payouts would move.
package mitigation

import (
	"fmt"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/kjannette/trahn-analytics/internal/models"
	"github.com/kjannette/trahn-analytics/internal/risk"
)

// EfficiencyPenalty scales PnL for traders above the extreme efficiency cutoff.
var EfficiencyPenalty = decimal.RequireFromString("0.5")

// Entry pairs a trader's summary with the signals computed for it.
type Entry struct {
	Summary models.TraderPnLSummary
	Signals models.GamingSignals
}

// Ranked is one row of the adjusted leaderboard.
type Ranked struct {
	Trader       string        `json:"trader"`
	TotalPnL     float64       `json:"totalPnl"`
	AdjustedPnL  float64       `json:"adjustedPnl"`
	TotalVolume  float64       `json:"totalVolume"`
	Disqualified bool          `json:"disqualified"`
	OldRank      int           `json:"oldRank"`
	NewRank      int           `json:"newRank"`
	RiskScore    int           `json:"riskScore"`
	Band         models.Band   `json:"band"`
	Flags        []models.Flag `json:"flags"`
	Adjustments  []string      `json:"adjustments"`

	adjusted decimal.Decimal
}

type Simulator struct {
	th     risk.Thresholds
	market risk.Market
}

// NewSimulator needs the market view of the same window the entries came from.
func NewSimulator(th risk.Thresholds, market risk.Market) *Simulator {
	return &Simulator{th: th, market: market}
}

// Run validates cfg, applies every rule per trader and re-ranks. Penalties
// only ever shrink positive PnL, so tightening any threshold cannot raise a
// trader's adjusted PnL or clear a disqualification.
func (s *Simulator) Run(entries []Entry, cfg Config) ([]Ranked, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	oldRank := baselineRanks(entries)
	out := make([]Ranked, 0, len(entries))
	for _, e := range entries {
		if cfg.FlaggedOnly && len(e.Signals.Flags) == 0 {
			continue
		}
		r := s.apply(e, cfg)
		r.OldRank = oldRank[e.Summary.Trader]
		out = append(out, r)
	}

	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if !cfg.RankDisqualified && a.Disqualified != b.Disqualified {
			return !a.Disqualified
		}
		if !a.adjusted.Equal(b.adjusted) {
			return a.adjusted.GreaterThan(b.adjusted)
		}
		return a.Trader < b.Trader
	})
	rank := 0
	for i := range out {
		if out[i].Disqualified && !cfg.RankDisqualified {
			continue
		}
		rank++
		out[i].NewRank = rank
	}
	return out, nil
}

func (s *Simulator) apply(e Entry, cfg Config) Ranked {
	sum, sig := e.Summary, e.Signals
	r := Ranked{
		Trader:      sum.Trader,
		TotalPnL:    sum.TotalPnL,
		TotalVolume: sum.TotalVolume,
		RiskScore:   sig.RiskScore,
		Band:        sig.Band,
		Flags:       sig.Flags,
		Adjustments: []string{},
	}
	adj := decimal.NewFromFloat(sum.TotalPnL)

	// Thin markets: positive PnL earned there does not count, losses do.
	excluded := decimal.Zero
	thinAll := len(sum.Positions) > 0
	for _, p := range sum.Positions {
		if !s.thin(p.Token, cfg) {
			thinAll = false
			continue
		}
		if pnl := p.PnL(); pnl.IsPositive() {
			excluded = excluded.Add(pnl)
		}
	}
	if excluded.IsPositive() {
		adj = adj.Sub(excluded)
		r.Adjustments = append(r.Adjustments, fmt.Sprintf("excluded %s PnL from thin markets", excluded.StringFixed(2)))
	}

	if s.th.ExtremeEfficiencyPer1K > 0 && sig.PnLPer1K > s.th.ExtremeEfficiencyPer1K && adj.IsPositive() {
		adj = adj.Mul(EfficiencyPenalty)
		r.Adjustments = append(r.Adjustments, fmt.Sprintf("efficiency %.1f per 1k above %.0f: x%s",
			sig.PnLPer1K, s.th.ExtremeEfficiencyPer1K, EfficiencyPenalty))
	}

	if sig.TopTokenVolumePct > cfg.MaxTokenPnLPct && adj.IsPositive() {
		f := decimal.NewFromFloat(cfg.MaxTokenPnLPct).Div(decimal.NewFromInt(100))
		adj = adj.Mul(f)
		r.Adjustments = append(r.Adjustments, fmt.Sprintf("top token %.1f%% above cap %.0f%%: x%s",
			sig.TopTokenVolumePct, cfg.MaxTokenPnLPct, f.StringFixed(2)))
	}

	if sig.MaxTokenDominancePct > cfg.MaxVolumeDominancePct && adj.IsPositive() {
		f := decimal.NewFromFloat(cfg.MaxVolumeDominancePct).Div(decimal.NewFromFloat(sig.MaxTokenDominancePct))
		adj = adj.Mul(f)
		r.Adjustments = append(r.Adjustments, fmt.Sprintf("dominance %.1f%% above cap %.0f%%: x%s",
			sig.MaxTokenDominancePct, cfg.MaxVolumeDominancePct, f.StringFixed(2)))
	}

	if cfg.MinHoldTime > 0 && sum.TradeCount > 0 && adj.IsPositive() {
		if short := risk.CountUnder(sig.ReversalGaps, cfg.MinHoldTime); short > 0 {
			share := decimal.NewFromInt(int64(short)).Div(decimal.NewFromInt(sum.TradeCount))
			if share.GreaterThan(decimal.NewFromInt(1)) {
				share = decimal.NewFromInt(1)
			}
			adj = adj.Mul(decimal.NewFromInt(1).Sub(share))
			r.Adjustments = append(r.Adjustments, fmt.Sprintf("%d round trips under %s", short, cfg.MinHoldTime))
		}
	}

	if cfg.MinDistinctTokens > 0 && sum.DistinctTokens < cfg.MinDistinctTokens {
		r.Disqualified = true
		r.Adjustments = append(r.Adjustments, fmt.Sprintf("traded %d tokens, minimum %d",
			sum.DistinctTokens, cfg.MinDistinctTokens))
	}
	if thinAll && (cfg.MinUniqueTraders > 0 || cfg.MinTokenVolume > 0) {
		r.Disqualified = true
		r.Adjustments = append(r.Adjustments, "all volume in thin markets")
	}

	r.adjusted = adj
	r.AdjustedPnL = adj.Round(2).InexactFloat64()
	return r
}

// thin reports whether a token's market is too small to count.
func (s *Simulator) thin(token string, cfg Config) bool {
	if cfg.MinUniqueTraders > 0 && s.market.Traders[token] < cfg.MinUniqueTraders {
		return true
	}
	if cfg.MinTokenVolume > 0 && s.market.Volume[token].LessThan(decimal.NewFromFloat(cfg.MinTokenVolume)) {
		return true
	}
	return false
}

func baselineRanks(entries []Entry) map[string]int {
	idx := make([]int, len(entries))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool {
		x, y := entries[idx[a]].Summary, entries[idx[b]].Summary
		if x.TotalPnL != y.TotalPnL {
			return x.TotalPnL > y.TotalPnL
		}
		return x.Trader < y.Trader
	})
	ranks := make(map[string]int, len(entries))
	for r, i := range idx {
		ranks[entries[i].Summary.Trader] = r + 1
	}
	return ranks
}
