package models

// SegmentRow is the per-trader aggregate the analytics backend serves.
type SegmentRow struct {
	Trader         string  `json:"trader"`
	TotalUSDVolume float64 `json:"totalUsdVolume"`
	SwapCount      int64   `json:"swapCount"`
	AvgSwapSize    float64 `json:"avgSwapSize"`
	NetQuoteFlow   float64 `json:"netQuoteFlow"`
	ActiveDays     int     `json:"activeDays"`
}
