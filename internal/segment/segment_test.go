package segment

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kjannette/trahn-analytics/internal/models"
)

func row(trader string, vol float64, swaps int64) models.SegmentRow {
	avg := 0.0
	if swaps > 0 {
		avg = vol / float64(swaps)
	}
	return models.SegmentRow{Trader: trader, TotalUSDVolume: vol, SwapCount: swaps, AvgSwapSize: avg, ActiveDays: 3}
}

func obs(cur models.SegmentRow, prev *models.SegmentRow) Observation {
	return Observation{Current: cur, Previous: prev}
}

func prevRow(vol float64) *models.SegmentRow {
	r := row("p", vol, 10)
	return &r
}

func TestVelocity(t *testing.T) {
	ratio, isNew := Velocity(3000, 1000)
	assert.Equal(t, 3.0, ratio)
	assert.False(t, isNew)

	ratio, isNew = Velocity(5000, 0)
	assert.Equal(t, 0.0, ratio)
	assert.True(t, isNew)

	ratio, isNew = Velocity(0, 0)
	assert.Equal(t, 0.0, ratio)
	assert.False(t, isNew)
}

func TestVelocityGuards(t *testing.T) {
	reg := Default(DefaultThresholds())

	newcomer := reg.Classify(obs(row("N", 500000, 10), nil))
	assert.NotContains(t, newcomer, RisingStars)
	assert.NotContains(t, newcomer, CoolingDown)

	idle := reg.Classify(obs(row("I", 0, 0), prevRow(0)))
	assert.NotContains(t, idle, RisingStars)
	assert.NotContains(t, idle, CoolingDown)
}

func TestRisingAndCooling(t *testing.T) {
	reg := Default(DefaultThresholds())

	assert.Contains(t, reg.Classify(obs(row("R", 15000, 20), prevRow(10000))), RisingStars)
	assert.NotContains(t, reg.Classify(obs(row("R", 14999, 20), prevRow(10000))), RisingStars)
	// too small to count as rising
	assert.NotContains(t, reg.Classify(obs(row("R", 900, 20), prevRow(100))), RisingStars)

	assert.Contains(t, reg.Classify(obs(row("C", 25000, 20), prevRow(50000))), CoolingDown)
	assert.NotContains(t, reg.Classify(obs(row("C", 25000, 20), prevRow(49999))), CoolingDown)
	// fully inactive is lapsed, not cooling
	assert.NotContains(t, reg.Classify(obs(row("C", 0, 0), prevRow(200000))), CoolingDown)
	assert.Contains(t, reg.Classify(obs(row("C", 0, 0), prevRow(200000))), LapsedWhales)
}

func TestVolumeAndFrequencyCohorts(t *testing.T) {
	reg := Default(DefaultThresholds())

	whale := reg.Classify(obs(row("W", 196000, 600), nil))
	assert.Contains(t, whale, Whales)
	assert.NotContains(t, whale, MidTier)
	assert.Contains(t, whale, StreakMasters)
	assert.NotContains(t, whale, Consistent)

	mid := reg.Classify(obs(row("M", 53000, 200), nil))
	assert.Contains(t, mid, MidTier)
	assert.Contains(t, mid, Consistent)

	small := reg.Classify(obs(row("S", 15000, 100), nil))
	assert.Contains(t, small, ActiveSmall)

	once := reg.Classify(obs(row("O", 50, 1), nil))
	assert.Equal(t, []Key{OneAndDone}, once)
}

func TestFlowCohorts(t *testing.T) {
	reg := Default(DefaultThresholds())
	buyer := row("B", 5000, 10)
	buyer.NetQuoteFlow = 1200
	seller := row("S", 5000, 10)
	seller.NetQuoteFlow = -300

	assert.Contains(t, reg.Classify(obs(buyer, nil)), Accumulators)
	assert.Contains(t, reg.Classify(obs(seller, nil)), Distributors)
	assert.NotContains(t, reg.Classify(obs(seller, nil)), Accumulators)
}

func TestSuspectedBots(t *testing.T) {
	reg := Default(DefaultThresholds())
	bot := models.SegmentRow{Trader: "X", TotalUSDVolume: 9000, SwapCount: 300, AvgSwapSize: 30, ActiveDays: 2}
	assert.Contains(t, reg.Classify(obs(bot, nil)), SuspectedBots)

	bot.ActiveDays = 0
	assert.NotContains(t, reg.Classify(obs(bot, nil)), SuspectedBots)
}

func TestObserveAndMembers(t *testing.T) {
	reg := Default(DefaultThresholds())
	current := []models.SegmentRow{row("A", 30000, 10), row("B", 20000, 10), row("C", 200, 1)}
	previous := []models.SegmentRow{row("A", 10000, 5), row("B", 10000, 5), row("Z", 150000, 80)}

	all := Observe(current, previous)
	require.Len(t, all, 4)

	rising, err := reg.Members(RisingStars, all)
	require.NoError(t, err)
	require.Len(t, rising, 2)
	assert.Equal(t, "A", rising[0].Current.Trader, "3x ahead of 2x")
	assert.Equal(t, "B", rising[1].Current.Trader)

	lapsed, err := reg.Members(LapsedWhales, all)
	require.NoError(t, err)
	require.Len(t, lapsed, 1)
	assert.Equal(t, "Z", lapsed[0].Current.Trader)

	_, err = reg.Members("nope", all)
	assert.ErrorIs(t, err, ErrUnknownCohort)

	counts := reg.Counts(all)
	assert.Equal(t, 2, counts[RisingStars])
	assert.Equal(t, 1, counts[OneAndDone])
	assert.Equal(t, 0, counts[Whales])
}

func TestRegistry_Extensible(t *testing.T) {
	reg := Default(DefaultThresholds())
	err := reg.Register(Cohort{
		Key:   "weekend_warriors",
		Name:  "Weekend Warriors",
		Match: func(o Observation) bool { return o.Current.ActiveDays <= 2 },
	})
	require.NoError(t, err)
	assert.Error(t, reg.Register(Cohort{Key: Whales, Match: func(Observation) bool { return true }}))
	assert.Error(t, reg.Register(Cohort{Key: "no_pred"}))

	c, ok := reg.Get("weekend_warriors")
	require.True(t, ok)
	assert.NotNil(t, c.Less)
}

func TestVolumeTier(t *testing.T) {
	cases := map[float64]string{
		100000: "Whale", 99999.99: "Mid", 10000: "Mid",
		9999: "Participant", 1000: "Participant", 999.99: "Casual", 0: "Casual",
	}
	for vol, want := range cases {
		assert.Equal(t, want, VolumeTier(vol), "vol %.2f", vol)
	}
}
