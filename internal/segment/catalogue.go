package segment

// Thresholds are the cohort cutoffs, in quote units and swap counts.
type Thresholds struct {
	WhaleVolume      float64
	MidTierVolume    float64
	StreakSwaps      int64
	ConsistentSwaps  int64
	ActiveSmallSwaps int64
	SmallSwapSize    float64
	BotSwapsPerDay   float64
	BotSwapSize      float64

	RisingRatio        float64
	RisingMinVolume    float64
	CoolingRatio       float64
	CoolingMinPrevious float64
	LapsedWhaleVolume  float64
}

func DefaultThresholds() Thresholds {
	return Thresholds{
		WhaleVolume:      196000,
		MidTierVolume:    53000,
		StreakSwaps:      500,
		ConsistentSwaps:  200,
		ActiveSmallSwaps: 100,
		SmallSwapSize:    200,
		BotSwapsPerDay:   50,
		BotSwapSize:      100,

		RisingRatio:        1.5,
		RisingMinVolume:    1000,
		CoolingRatio:       0.5,
		CoolingMinPrevious: 50000,
		LapsedWhaleVolume:  119000,
	}
}

// Velocity is current over previous volume. A trader with no previous volume
// but current activity is new, not infinitely fast; both zero gives 0.
func Velocity(current, previous float64) (ratio float64, isNew bool) {
	if previous <= 0 {
		return 0, current > 0
	}
	return current / previous, false
}

// Default returns the standard cohort catalogue.
func Default(t Thresholds) *Registry {
	r := NewRegistry()
	for _, c := range catalogue(t) {
		// keys are unique and predicates non-nil
		_ = r.Register(c)
	}
	return r
}

func catalogue(t Thresholds) []Cohort {
	vol := func(o Observation) float64 { return o.Current.TotalUSDVolume }
	swaps := func(o Observation) int64 { return o.Current.SwapCount }

	return []Cohort{
		{
			Key: Whales, Name: "Whales",
			Description: "Highest-volume traders",
			Match:       func(o Observation) bool { return vol(o) >= t.WhaleVolume },
		},
		{
			Key: MidTier, Name: "Mid Tier",
			Description: "Steady mid-volume traders",
			Match:       func(o Observation) bool { return vol(o) >= t.MidTierVolume && vol(o) < t.WhaleVolume },
		},
		{
			Key: StreakMasters, Name: "Streak Masters",
			Description: "Very high swap frequency",
			Match:       func(o Observation) bool { return swaps(o) >= t.StreakSwaps },
			Less:        bySwaps,
		},
		{
			Key: Consistent, Name: "Consistent Traders",
			Description: "Regular, frequent activity",
			Match:       func(o Observation) bool { return swaps(o) >= t.ConsistentSwaps && swaps(o) < t.StreakSwaps },
			Less:        bySwaps,
		},
		{
			Key: ActiveSmall, Name: "Active Small Traders",
			Description: "Many swaps with small average size",
			Match: func(o Observation) bool {
				return swaps(o) >= t.ActiveSmallSwaps && o.Current.AvgSwapSize <= t.SmallSwapSize
			},
			Less: bySwaps,
		},
		{
			Key: Accumulators, Name: "Accumulators",
			Description: "Net buyers of tokens",
			Match:       func(o Observation) bool { return o.Current.NetQuoteFlow > 0 },
			Less:        func(a, b Observation) bool { return a.Current.NetQuoteFlow > b.Current.NetQuoteFlow },
		},
		{
			Key: Distributors, Name: "Distributors",
			Description: "Net sellers of tokens",
			Match:       func(o Observation) bool { return o.Current.NetQuoteFlow < 0 },
			Less:        func(a, b Observation) bool { return a.Current.NetQuoteFlow < b.Current.NetQuoteFlow },
		},
		{
			Key: OneAndDone, Name: "One and Done",
			Description: "A single swap in the window",
			Match:       func(o Observation) bool { return swaps(o) == 1 },
		},
		{
			Key: SuspectedBots, Name: "Suspected Bots",
			Description: "High swaps per active day at small size",
			Match: func(o Observation) bool {
				days := o.Current.ActiveDays
				if days <= 0 || swaps(o) == 0 {
					return false
				}
				perDay := float64(swaps(o)) / float64(days)
				return perDay > t.BotSwapsPerDay && o.Current.AvgSwapSize < t.BotSwapSize
			},
			Less: bySwaps,
		},
		{
			Key: RisingStars, Name: "Rising Stars",
			Description: "Volume up sharply on the previous window",
			NeedsPrior:  true,
			Match: func(o Observation) bool {
				ratio, isNew := Velocity(vol(o), o.PreviousVolume())
				return !isNew && ratio >= t.RisingRatio && vol(o) >= t.RisingMinVolume
			},
			Less: byVelocity(true),
		},
		{
			Key: CoolingDown, Name: "Cooling Down",
			Description: "Large previous volume, sharply lower now",
			NeedsPrior:  true,
			Match: func(o Observation) bool {
				if o.PreviousVolume() < t.CoolingMinPrevious {
					return false
				}
				ratio, _ := Velocity(vol(o), o.PreviousVolume())
				return ratio > 0 && ratio <= t.CoolingRatio
			},
			Less: byVelocity(false),
		},
		{
			Key: LapsedWhales, Name: "Lapsed Whales",
			Description: "Whale-sized previously, inactive now",
			NeedsPrior:  true,
			Match: func(o Observation) bool {
				return o.PreviousVolume() >= t.LapsedWhaleVolume && vol(o) == 0
			},
			Less: func(a, b Observation) bool { return a.PreviousVolume() > b.PreviousVolume() },
		},
	}
}

func bySwaps(a, b Observation) bool {
	return a.Current.SwapCount > b.Current.SwapCount
}

func byVelocity(desc bool) func(a, b Observation) bool {
	return func(a, b Observation) bool {
		ra, _ := Velocity(a.Current.TotalUSDVolume, a.PreviousVolume())
		rb, _ := Velocity(b.Current.TotalUSDVolume, b.PreviousVolume())
		if desc {
			return ra > rb
		}
		return ra < rb
	}
}

// VolumeTier buckets a window's volume for the snapshot breakdown.
func VolumeTier(vol float64) string {
	switch {
	case vol >= 100000:
		return "Whale"
	case vol >= 10000:
		return "Mid"
	case vol >= 1000:
		return "Participant"
	default:
		return "Casual"
	}
}
