package mitigation

import "math"

// Impact summarizes an adjusted leaderboard. It is derived from the list
// alone so any client can recompute it.
type Impact struct {
	Traders      int     `json:"traders"`
	Disqualified int     `json:"disqualified"`
	BaselinePnL  float64 `json:"baselinePnl"`
	AdjustedPnL  float64 `json:"adjustedPnl"`
	Delta        float64 `json:"delta"`
	RankChanges  int     `json:"rankChanges"`
}

// Summarize counts disqualified rows as contributing nothing to AdjustedPnL.
func Summarize(list []Ranked) Impact {
	var im Impact
	im.Traders = len(list)
	for _, r := range list {
		im.BaselinePnL += r.TotalPnL
		if r.Disqualified {
			im.Disqualified++
		} else {
			im.AdjustedPnL += r.AdjustedPnL
		}
		if r.NewRank != r.OldRank {
			im.RankChanges++
		}
	}
	im.BaselinePnL = round2(im.BaselinePnL)
	im.AdjustedPnL = round2(im.AdjustedPnL)
	im.Delta = round2(im.AdjustedPnL - im.BaselinePnL)
	return im
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
