package risk

import (
	"math"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/kjannette/trahn-analytics/internal/models"
)

// Market is per-token volume and participation across every trader in the
// window, eligible or not.
type Market struct {
	Volume  map[string]decimal.Decimal
	Traders map[string]int
}

func MarketFrom(positions []models.TraderTokenPosition) Market {
	m := Market{Volume: make(map[string]decimal.Decimal), Traders: make(map[string]int)}
	for _, p := range positions {
		if !p.Volume.IsPositive() {
			continue
		}
		m.Volume[p.Token] = m.Volume[p.Token].Add(p.Volume)
		m.Traders[p.Token]++
	}
	return m
}

// SharePct is the trader's percentage of a token's market volume.
func (m Market) SharePct(token string, vol decimal.Decimal) float64 {
	total, ok := m.Volume[token]
	if !ok || !total.IsPositive() {
		return 0
	}
	return vol.Div(total).Mul(decimal.NewFromInt(100)).InexactFloat64()
}

type Input struct {
	Summaries []models.TraderPnLSummary
	Market    Market
	Gaps      map[string][]time.Duration

	// Reversals, when set, replaces counts derived from Gaps. The SQL path
	// fills it for windows too large to pull raw events.
	Reversals map[string]int
}

type Result struct {
	Signals []models.GamingSignals
	Rings   []models.CoordinatedToken
}

type Detector struct {
	th Thresholds
}

func NewDetector(th Thresholds) *Detector {
	return &Detector{th: th}
}

func (d *Detector) Thresholds() Thresholds { return d.th }

// Analyze annotates every summary, in input order, and reports coordinated
// tokens sorted by member count then token.
func (d *Detector) Analyze(in Input) Result {
	signals := make([]models.GamingSignals, len(in.Summaries))
	base := make([]float64, len(in.Summaries))

	for i, s := range in.Summaries {
		sig := models.GamingSignals{
			Trader:       s.Trader,
			PnLPer1K:     round1(s.PnLPer1K()),
			ActiveDays:   s.ActiveDays,
			ReversalGaps: in.Gaps[s.Trader],
		}
		if in.Reversals != nil {
			sig.RapidReversals = in.Reversals[s.Trader]
		} else {
			sig.RapidReversals = CountWithin(sig.ReversalGaps, d.th.ReversalWindow)
		}

		total := decimal.Zero
		for _, p := range s.Positions {
			total = total.Add(p.Volume)
		}
		var topVol decimal.Decimal
		for _, p := range s.Positions {
			if p.Volume.GreaterThan(topVol) {
				topVol, sig.TopToken = p.Volume, p.Token
			}
			if share := in.Market.SharePct(p.Token, p.Volume); share > sig.MaxTokenDominancePct {
				sig.MaxTokenDominancePct, sig.DominantToken = share, p.Token
			}
		}
		if total.IsPositive() {
			sig.TopTokenVolumePct = round1(topVol.Div(total).Mul(decimal.NewFromInt(100)).InexactFloat64())
		}
		sig.MaxTokenDominancePct = round1(sig.MaxTokenDominancePct)

		base[i] = d.baseScore(sig)
		signals[i] = sig
	}

	rings, members := d.rings(in, base)

	for i := range signals {
		score := base[i]
		if members[signals[i].Trader] {
			score += weightRing
		}
		signals[i].RiskScore = int(math.Round(math.Min(score, 100)))
		signals[i].Band = d.th.BandOf(signals[i].RiskScore)
		signals[i].Flags = d.flags(signals[i], in.Summaries[i], members[signals[i].Trader])
	}
	return Result{Signals: signals, Rings: rings}
}

// baseScore is every component except ring membership.
func (d *Detector) baseScore(s models.GamingSignals) float64 {
	return weightReversals*saturate(float64(s.RapidReversals), float64(d.th.ReversalCritical)) +
		weightConcentration*saturate(s.TopTokenVolumePct, d.th.ConcentrationCritical) +
		weightDominance*saturate(s.MaxTokenDominancePct, d.th.DominanceCritical) +
		weightEfficiency*saturate(s.PnLPer1K, d.th.ExtremeEfficiencyPer1K)
}

// rings finds tokens where enough independently high-risk traders each hold
// a large share of market volume.
func (d *Detector) rings(in Input, base []float64) ([]models.CoordinatedToken, map[string]bool) {
	members := make(map[string]bool)
	if d.th.RingMinTraders <= 0 {
		return nil, members
	}

	byToken := make(map[string][]string)
	shares := make(map[string]float64)
	for i, s := range in.Summaries {
		if base[i] < float64(d.th.RingMemberMinScore) {
			continue
		}
		for _, p := range s.Positions {
			share := in.Market.SharePct(p.Token, p.Volume)
			if share < d.th.RingMinSharePct {
				continue
			}
			byToken[p.Token] = append(byToken[p.Token], s.Trader)
			shares[p.Token] += share
		}
	}

	var rings []models.CoordinatedToken
	for token, traders := range byToken {
		if len(traders) < d.th.RingMinTraders {
			continue
		}
		sort.Strings(traders)
		for _, t := range traders {
			members[t] = true
		}
		rings = append(rings, models.CoordinatedToken{
			Token:      token,
			Traders:    traders,
			NumTraders: len(traders),
			SharePct:   round1(shares[token]),
		})
	}
	sort.Slice(rings, func(i, j int) bool {
		if rings[i].NumTraders != rings[j].NumTraders {
			return rings[i].NumTraders > rings[j].NumTraders
		}
		return rings[i].Token < rings[j].Token
	})
	return rings, members
}

func (d *Detector) flags(s models.GamingSignals, sum models.TraderPnLSummary, ring bool) []models.Flag {
	flags := []models.Flag{}
	if d.th.ReversalWarning > 0 && s.RapidReversals >= d.th.ReversalWarning {
		flags = append(flags, models.FlagRapidReversals)
	}
	if d.th.ConcentrationWarning > 0 && s.TopTokenVolumePct >= d.th.ConcentrationWarning {
		flags = append(flags, models.FlagTokenConcentration)
	}
	if d.th.DominanceWarning > 0 && s.MaxTokenDominancePct >= d.th.DominanceWarning {
		flags = append(flags, models.FlagVolumeDominance)
	}
	if ring {
		flags = append(flags, models.FlagCoordinationRing)
	}
	switch {
	case d.th.ExtremeEfficiencyPer1K > 0 && s.PnLPer1K > d.th.ExtremeEfficiencyPer1K:
		flags = append(flags, models.FlagExtremeEfficiency)
	case d.th.HighEfficiencyPer1K > 0 && s.PnLPer1K > d.th.HighEfficiencyPer1K:
		flags = append(flags, models.FlagHighEfficiency)
	}
	if sum.DistinctTokens == 1 {
		flags = append(flags, models.FlagSingleToken)
	}
	if s.ActiveDays == 1 {
		flags = append(flags, models.FlagSingleDay)
	}
	return flags
}

func saturate(v, at float64) float64 {
	if at <= 0 || v <= 0 {
		return 0
	}
	return math.Min(v/at, 1)
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
