package mitigation

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kjannette/trahn-analytics/internal/models"
	"github.com/kjannette/trahn-analytics/internal/risk"
)

func position(trader, token string, realized, vol float64) models.TraderTokenPosition {
	return models.TraderTokenPosition{
		Trader: trader, Token: token,
		RealizedPnL: decimal.NewFromFloat(realized),
		Volume:      decimal.NewFromFloat(vol),
	}
}

func entry(trader string, pnl, vol float64, sig models.GamingSignals, positions ...models.TraderTokenPosition) Entry {
	sig.Trader = trader
	return Entry{
		Summary: models.TraderPnLSummary{
			Trader: trader, TotalPnL: pnl, TotalVolume: vol,
			DistinctTokens: len(positions), TradeCount: 40, Positions: positions,
		},
		Signals: sig,
	}
}

func fixture() ([]Entry, risk.Market) {
	entries := []Entry{
		// efficient and concentrated
		entry("CA4k", 13136.98, 41693.36, models.GamingSignals{
			PnLPer1K: 315.1, TopTokenVolumePct: 75.9, MaxTokenDominancePct: 60,
			Flags: []models.Flag{models.FlagTokenConcentration},
		}, position("CA4k", "HANRI", 10000, 31600), position("CA4k", "BIG", 3136.98, 10093.36)),
		// extreme efficiency, single thin token
		entry("29fM", 4696.38, 5859.65, models.GamingSignals{
			PnLPer1K: 801.5, TopTokenVolumePct: 95.2, MaxTokenDominancePct: 95,
			ReversalGaps: []time.Duration{10 * time.Second, 45 * time.Second, 5 * time.Minute},
			Flags:        []models.Flag{models.FlagExtremeEfficiency},
		}, position("29fM", "TINY", 4696.38, 5859.65)),
		// diversified, clean
		entry("CyaE", 9000, 146932.12, models.GamingSignals{
			PnLPer1K: 61.3, TopTokenVolumePct: 20.1, MaxTokenDominancePct: 5,
		}, position("CyaE", "BIG", 4000, 70000), position("CyaE", "HANRI", 3000, 40000), position("CyaE", "OTHER", 2000, 36932.12)),
		// loser
		entry("LOSS", -500, 3000, models.GamingSignals{
			PnLPer1K: -166.7, TopTokenVolumePct: 100, MaxTokenDominancePct: 80,
		}, position("LOSS", "TINY", -500, 3000)),
	}
	market := risk.Market{
		Volume: map[string]decimal.Decimal{
			"HANRI": decimal.NewFromInt(80000),
			"BIG":   decimal.NewFromInt(2000000),
			"OTHER": decimal.NewFromInt(500000),
			"TINY":  decimal.NewFromFloat(8859.65),
		},
		Traders: map[string]int{"HANRI": 12, "BIG": 900, "OTHER": 300, "TINY": 2},
	}
	return entries, market
}

func byTrader(list []Ranked) map[string]Ranked {
	m := make(map[string]Ranked, len(list))
	for _, r := range list {
		m[r.Trader] = r
	}
	return m
}

func TestValidate_RejectsBadConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MinTokenVolume = -1
	cfg.MaxTokenPnLPct = 120
	cfg.MinHoldTime = -time.Second

	err := cfg.Validate()
	require.Error(t, err)
	var ce *ConfigError
	require.True(t, errors.As(err, &ce))
	assert.Len(t, ce.Problems, 3)
	t.Logf("Rejected: %v", err)

	require.NoError(t, DefaultConfig().Validate())
}

func TestRun_InvalidConfigNeverRanks(t *testing.T) {
	entries, market := fixture()
	cfg := DefaultConfig()
	cfg.MaxVolumeDominancePct = -5
	_, err := NewSimulator(risk.DefaultThresholds(), market).Run(entries, cfg)
	require.Error(t, err)
}

func TestRun_ReferenceRules(t *testing.T) {
	entries, market := fixture()
	cfg := Config{MaxVolumeDominancePct: 100, MaxTokenPnLPct: 50}

	list, err := NewSimulator(risk.DefaultThresholds(), market).Run(entries, cfg)
	require.NoError(t, err)
	got := byTrader(list)

	// 75.9% concentration above the 50% cap halves PnL
	assert.InDelta(t, 13136.98*0.5, got["CA4k"].AdjustedPnL, 0.01)
	// extreme efficiency then concentration
	assert.InDelta(t, 4696.38*0.5*0.5, got["29fM"].AdjustedPnL, 0.01)
	// below every cap
	assert.Equal(t, 9000.0, got["CyaE"].AdjustedPnL)
	// losses are never scaled toward zero
	assert.Equal(t, -500.0, got["LOSS"].AdjustedPnL)

	assert.Equal(t, []string{"CyaE", "CA4k", "29fM", "LOSS"},
		[]string{list[0].Trader, list[1].Trader, list[2].Trader, list[3].Trader})
	assert.Equal(t, 1, got["CyaE"].NewRank)
	assert.Equal(t, 2, got["CyaE"].OldRank)
}

func TestRun_ThinMarketsAndDisqualification(t *testing.T) {
	entries, market := fixture()
	cfg := DefaultConfig()
	cfg.MinUniqueTraders = 3

	list, err := NewSimulator(risk.DefaultThresholds(), market).Run(entries, cfg)
	require.NoError(t, err)
	got := byTrader(list)

	// TINY has two traders: 29fM earned only there
	assert.True(t, got["29fM"].Disqualified)
	assert.Equal(t, 0, got["29fM"].NewRank)
	assert.True(t, got["LOSS"].Disqualified)
	assert.False(t, got["CA4k"].Disqualified)

	last := list[len(list)-1]
	assert.True(t, last.Disqualified, "disqualified rows sort last")
}

func TestRun_MinDistinctTokens(t *testing.T) {
	entries, market := fixture()
	cfg := DefaultConfig()
	cfg.MinTokenVolume = 0
	cfg.MinUniqueTraders = 0
	cfg.MinDistinctTokens = 2

	list, err := NewSimulator(risk.DefaultThresholds(), market).Run(entries, cfg)
	require.NoError(t, err)
	got := byTrader(list)
	assert.True(t, got["29fM"].Disqualified)
	assert.True(t, got["LOSS"].Disqualified)
	assert.False(t, got["CyaE"].Disqualified)
}

func TestRun_MinHoldTime(t *testing.T) {
	entries, market := fixture()
	cfg := DefaultConfig()
	cfg.MinTokenVolume = 0
	cfg.MinHoldTime = time.Minute

	list, err := NewSimulator(risk.DefaultThresholds(), market).Run(entries, cfg)
	require.NoError(t, err)
	got := byTrader(list)
	// two of 40 trades reversed inside a minute, after the efficiency penalty
	assert.InDelta(t, 4696.38*0.5*(1-2.0/40), got["29fM"].AdjustedPnL, 0.01)
}

func TestRun_RankDisqualified(t *testing.T) {
	entries, market := fixture()
	cfg := DefaultConfig()
	cfg.MinDistinctTokens = 2
	cfg.RankDisqualified = true

	list, err := NewSimulator(risk.DefaultThresholds(), market).Run(entries, cfg)
	require.NoError(t, err)
	for i, r := range list {
		assert.Equal(t, i+1, r.NewRank)
	}
}

func TestRun_FlaggedOnly(t *testing.T) {
	entries, market := fixture()
	cfg := DefaultConfig()
	cfg.FlaggedOnly = true
	list, err := NewSimulator(risk.DefaultThresholds(), market).Run(entries, cfg)
	require.NoError(t, err)
	require.Len(t, list, 2)
	for _, r := range list {
		assert.NotEmpty(t, r.Flags)
	}
}

// Tightening any one knob must never raise adjusted PnL or clear a
// disqualification.
func TestRun_Monotonic(t *testing.T) {
	entries, market := fixture()
	sim := NewSimulator(risk.DefaultThresholds(), market)

	type knob struct {
		name  string
		steps []func(*Config)
	}
	knobs := []knob{
		{"maxTokenPnlPct", steps(func(c *Config, v float64) { c.MaxTokenPnLPct = v }, 100, 80, 50, 20, 0)},
		{"maxVolumeDominancePct", steps(func(c *Config, v float64) { c.MaxVolumeDominancePct = v }, 100, 90, 60, 10, 0)},
		{"minTokenVolume", steps(func(c *Config, v float64) { c.MinTokenVolume = v }, 0, 1000, 10000, 100000, 1e7)},
		{"minUniqueTraders", steps(func(c *Config, v float64) { c.MinUniqueTraders = int(v) }, 0, 1, 3, 13, 1000)},
		{"minDistinctTokens", steps(func(c *Config, v float64) { c.MinDistinctTokens = int(v) }, 0, 1, 2, 3, 4)},
		{"minHoldTime", steps(func(c *Config, v float64) { c.MinHoldTime = time.Duration(v) * time.Second }, 0, 5, 30, 60, 600)},
	}

	for _, k := range knobs {
		t.Run(k.name, func(t *testing.T) {
			var prev map[string]Ranked
			for i, step := range k.steps {
				cfg := DefaultConfig()
				cfg.MinTokenVolume = 0
				cfg.MinUniqueTraders = 0
				step(&cfg)
				list, err := sim.Run(entries, cfg)
				require.NoError(t, err)
				cur := byTrader(list)
				if prev != nil {
					for trader, p := range prev {
						c := cur[trader]
						assert.LessOrEqual(t, c.AdjustedPnL, p.AdjustedPnL, "step %d trader %s", i, trader)
						if p.Disqualified {
							assert.True(t, c.Disqualified, "step %d trader %s re-qualified", i, trader)
						}
					}
				}
				prev = cur
			}
		})
	}
}

func steps(set func(*Config, float64), values ...float64) []func(*Config) {
	out := make([]func(*Config), len(values))
	for i, v := range values {
		v := v
		out[i] = func(c *Config) { set(c, v) }
	}
	return out
}

func TestSummarize(t *testing.T) {
	list := []Ranked{
		{Trader: "A", TotalPnL: 100, AdjustedPnL: 50, OldRank: 1, NewRank: 2},
		{Trader: "B", TotalPnL: 80, AdjustedPnL: 80, OldRank: 2, NewRank: 1},
		{Trader: "C", TotalPnL: 10, AdjustedPnL: 10, OldRank: 3, Disqualified: true},
	}
	im := Summarize(list)
	assert.Equal(t, Impact{
		Traders: 3, Disqualified: 1,
		BaselinePnL: 190, AdjustedPnL: 130, Delta: -60,
		RankChanges: 3,
	}, im)
}

func ExampleSummarize() {
	im := Summarize([]Ranked{{Trader: "A", TotalPnL: 10, AdjustedPnL: 5, OldRank: 1, NewRank: 1}})
	fmt.Printf("%.2f", im.Delta)
	// Output: -5.00
}
