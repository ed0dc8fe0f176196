package models

import "time"

type DailyActivity struct {
	Day     time.Time `json:"day"`
	Trades  int64     `json:"trades"`
	Traders int64     `json:"traders"`
	Volume  float64   `json:"volume"`
}

type TierBreakdown struct {
	Tier    string  `json:"tier"`
	Traders int64   `json:"traders"`
	Volume  float64 `json:"volume"`
}

type TraderVolume struct {
	Trader string  `json:"trader"`
	Volume float64 `json:"volume"`
}

type ProgramActivity struct {
	ProgramID string  `json:"programId"`
	Trades    int64   `json:"trades"`
	Traders   int64   `json:"traders"`
	Volume    float64 `json:"volume"`
}

type HourlyActivity struct {
	Hour    int     `json:"hour"`
	Trades  int64   `json:"trades"`
	Traders int64   `json:"traders"`
	Volume  float64 `json:"volume"`
}

type NewVsReturning struct {
	New       int64 `json:"new"`
	Returning int64 `json:"returning"`
}

// NewRate is the share of window participants with no prior activity.
func (n NewVsReturning) NewRate() float64 {
	total := n.New + n.Returning
	if total == 0 {
		return 0
	}
	return float64(n.New) / float64(total) * 100
}
