package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Direction of a swap relative to the quote token.
type Direction string

const (
	Buy  Direction = "BUY"
	Sell Direction = "SELL"
)

// TradeEvent is one raw swap as stored in the trade table.
type TradeEvent struct {
	Trader     string    `json:"trader"`
	ReceivedAt time.Time `json:"receivedAt"`
	TokenIn    string    `json:"tokenIn"`
	TokenOut   string    `json:"tokenOut"`
	AmountIn   float64   `json:"amountIn"`
	AmountOut  float64   `json:"amountOut"`
	ProgramID  string    `json:"programId,omitempty"`
}

// DirectionalFlow sums one trader's swaps in one token and direction.
// QuoteIn is quote spent on buys, QuoteOut is quote received on sells and
// TokenQty is the token side of either. PricedQuote and PricedQty repeat the
// sums over swaps whose implied price is defined.
type DirectionalFlow struct {
	Trader      string          `json:"trader"`
	Token       string          `json:"token"`
	Direction   Direction       `json:"direction"`
	QuoteIn     decimal.Decimal `json:"usdIn"`
	QuoteOut    decimal.Decimal `json:"usdOut"`
	TokenQty    decimal.Decimal `json:"tokenQty"`
	PricedQuote decimal.Decimal `json:"-"`
	PricedQty   decimal.Decimal `json:"-"`
	Swaps       int64           `json:"swaps"`
}

// ImpliedPrice is quote per unit token, nil when no swap had a usable price.
func (f DirectionalFlow) ImpliedPrice() *decimal.Decimal {
	if !f.PricedQty.IsPositive() {
		return nil
	}
	p := f.PricedQuote.Div(f.PricedQty)
	return &p
}

// QuoteVolume is the quote-denominated size of the flow.
func (f DirectionalFlow) QuoteVolume() decimal.Decimal {
	if f.Direction == Buy {
		return f.QuoteIn
	}
	return f.QuoteOut
}

// TraderActivity is the per-trader event count joined onto PnL summaries.
type TraderActivity struct {
	Trader     string `json:"trader"`
	TradeCount int64  `json:"tradeCount"`
	ActiveDays int    `json:"activeDays"`
	Returning  bool   `json:"returning"`
}
