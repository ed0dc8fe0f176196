package models

import "github.com/shopspring/decimal"

type TokenVWAP struct {
	Token string           `json:"token"`
	Price *decimal.Decimal `json:"price"`
}

type TraderTokenPosition struct {
	Trader      string          `json:"trader"`
	Token       string          `json:"token"`
	RealizedPnL decimal.Decimal `json:"realizedPnl"`
	NetBalance  decimal.Decimal `json:"netBalance"`
	Volume      decimal.Decimal `json:"volume"`
	Unrealized  decimal.Decimal `json:"unrealizedAdjustment"`
}

// PnL is realized plus the unrealized adjustment.
func (p TraderTokenPosition) PnL() decimal.Decimal {
	return p.RealizedPnL.Add(p.Unrealized)
}

type TraderPnLSummary struct {
	Trader         string  `json:"trader"`
	TotalPnL       float64 `json:"totalPnl"`
	TotalVolume    float64 `json:"totalVolume"`
	DistinctTokens int     `json:"distinctTokens"`
	TradeCount     int64   `json:"tradeCount"`
	ActiveDays     int     `json:"activeDays"`
	Returning      bool    `json:"returning"`

	// Positions carries the per-token breakdown behind TotalPnL.
	Positions []TraderTokenPosition `json:"positions,omitempty"`
}

// PnLPer1K is PnL earned per 1000 quote units traded.
func (s TraderPnLSummary) PnLPer1K() float64 {
	if s.TotalVolume <= 0 {
		return 0
	}
	return s.TotalPnL / s.TotalVolume * 1000
}
