package models

import "time"

type Flag string

const (
	FlagRapidReversals     Flag = "Rapid Reversals"
	FlagTokenConcentration Flag = "Token Concentration"
	FlagVolumeDominance    Flag = "Volume Dominance"
	FlagCoordinationRing   Flag = "Coordination Ring"
	FlagExtremeEfficiency  Flag = "Extreme PnL Efficiency"
	FlagHighEfficiency     Flag = "High PnL Efficiency"
	FlagSingleToken        Flag = "Single Token"
	FlagSingleDay          Flag = "Single Day"
)

// Band is the risk classification shared by every view.
type Band string

const (
	BandCritical Band = "critical"
	BandWarning  Band = "warning"
	BandClean    Band = "clean"
)

type GamingSignals struct {
	Trader               string  `json:"trader"`
	RapidReversals       int     `json:"rapidReversals"`
	TopToken             string  `json:"topToken"`
	TopTokenVolumePct    float64 `json:"topTokenVolumePct"`
	DominantToken        string  `json:"dominantToken"`
	MaxTokenDominancePct float64 `json:"maxTokenDominancePct"`
	PnLPer1K             float64 `json:"pnlPer1kVolume"`
	ActiveDays           int     `json:"activeDays"`
	RiskScore            int     `json:"riskScore"`
	Band                 Band    `json:"band"`
	Flags                []Flag  `json:"flags"`

	// ReversalGaps holds every opposite-direction gap on the same token.
	ReversalGaps []time.Duration `json:"-"`
}

func (g GamingSignals) HasFlag(f Flag) bool {
	for _, x := range g.Flags {
		if x == f {
			return true
		}
	}
	return false
}

// CoordinatedToken is a token where several high-risk traders each hold a
// large share of market volume.
type CoordinatedToken struct {
	Token      string   `json:"token"`
	Traders    []string `json:"traders"`
	NumTraders int      `json:"numTraders"`
	SharePct   float64  `json:"combinedSharePct"`
}
