package flows

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kjannette/trahn-analytics/internal/models"
)

const quote = "USD1"

var window = models.Window{
	Start: time.Date(2026, 1, 19, 0, 0, 0, 0, time.UTC),
	End:   time.Date(2026, 1, 22, 0, 0, 0, 0, time.UTC),
}

func at(h, m, s int) time.Time {
	return time.Date(2026, 1, 20, h, m, s, 0, time.UTC)
}

func TestClassify(t *testing.T) {
	token, dir := Classify(models.TradeEvent{TokenIn: quote, TokenOut: "HANRI"}, quote)
	assert.Equal(t, "HANRI", token)
	assert.Equal(t, models.Buy, dir)

	token, dir = Classify(models.TradeEvent{TokenIn: "HANRI", TokenOut: quote}, quote)
	assert.Equal(t, "HANRI", token)
	assert.Equal(t, models.Sell, dir)
}

func TestImpliedPrice_Orientation(t *testing.T) {
	buy := models.TradeEvent{TokenIn: quote, TokenOut: "T", AmountIn: 100, AmountOut: 1000}
	p := ImpliedPrice(buy, quote)
	require.NotNil(t, p)
	assert.True(t, p.Equal(decimal.RequireFromString("0.1")), "buy price %s", p)

	sell := models.TradeEvent{TokenIn: "T", TokenOut: quote, AmountIn: 1000, AmountOut: 110}
	p = ImpliedPrice(sell, quote)
	require.NotNil(t, p)
	assert.True(t, p.Equal(decimal.RequireFromString("0.11")), "sell price %s", p)
}

func TestImpliedPrice_ZeroDenominator(t *testing.T) {
	cases := []models.TradeEvent{
		{TokenIn: quote, TokenOut: "T", AmountIn: 100, AmountOut: 0},
		{TokenIn: "T", TokenOut: quote, AmountIn: 0, AmountOut: 5},
		{TokenIn: "T", TokenOut: quote, AmountIn: 10, AmountOut: 0},
	}
	for _, ev := range cases {
		assert.Nil(t, ImpliedPrice(ev, quote), "%+v", ev)
	}
}

func TestAggregate_GroupsAndSums(t *testing.T) {
	events := []models.TradeEvent{
		{Trader: "B", ReceivedAt: at(1, 0, 0), TokenIn: quote, TokenOut: "T", AmountIn: 50, AmountOut: 500},
		{Trader: "A", ReceivedAt: at(1, 0, 0), TokenIn: quote, TokenOut: "T", AmountIn: 100, AmountOut: 1000},
		{Trader: "A", ReceivedAt: at(1, 0, 30), TokenIn: "T", TokenOut: quote, AmountIn: 1000, AmountOut: 110},
		{Trader: "A", ReceivedAt: at(2, 0, 0), TokenIn: quote, TokenOut: "T", AmountIn: 20, AmountOut: 100},
		// outside the window on both sides
		{Trader: "A", ReceivedAt: window.Start.Add(-time.Second), TokenIn: quote, TokenOut: "T", AmountIn: 999, AmountOut: 1},
		{Trader: "A", ReceivedAt: window.End, TokenIn: quote, TokenOut: "T", AmountIn: 999, AmountOut: 1},
	}

	got := Aggregate(events, window, quote)
	require.Len(t, got, 3)

	assert.Equal(t, "A", got[0].Trader)
	assert.Equal(t, models.Buy, got[0].Direction)
	assert.Equal(t, "120", got[0].QuoteIn.String())
	assert.Equal(t, "1100", got[0].TokenQty.String())
	assert.EqualValues(t, 2, got[0].Swaps)

	assert.Equal(t, models.Sell, got[1].Direction)
	assert.Equal(t, "110", got[1].QuoteOut.String())
	assert.Equal(t, "1000", got[1].TokenQty.String())

	assert.Equal(t, "B", got[2].Trader)
}

func TestAggregate_UnpricedSwapsKeptOutOfPricedSums(t *testing.T) {
	events := []models.TradeEvent{
		{Trader: "A", ReceivedAt: at(1, 0, 0), TokenIn: "T", TokenOut: quote, AmountIn: 100, AmountOut: 10},
		{Trader: "A", ReceivedAt: at(1, 5, 0), TokenIn: "T", TokenOut: quote, AmountIn: 50, AmountOut: 0},
	}
	got := Aggregate(events, window, quote)
	require.Len(t, got, 1)
	f := got[0]
	assert.Equal(t, "150", f.TokenQty.String())
	assert.Equal(t, "100", f.PricedQty.String())
	require.NotNil(t, f.ImpliedPrice())
	assert.Equal(t, "0.1", f.ImpliedPrice().String())
}

func TestAggregate_NoPriceWhenNothingPriced(t *testing.T) {
	events := []models.TradeEvent{
		{Trader: "A", ReceivedAt: at(1, 0, 0), TokenIn: "T", TokenOut: quote, AmountIn: 50, AmountOut: 0},
	}
	got := Aggregate(events, window, quote)
	require.Len(t, got, 1)
	assert.Nil(t, got[0].ImpliedPrice())
}

func TestActivityAndReturning(t *testing.T) {
	events := []models.TradeEvent{
		{Trader: "A", ReceivedAt: window.Start.Add(-48 * time.Hour)},
		{Trader: "A", ReceivedAt: at(1, 0, 0)},
		{Trader: "A", ReceivedAt: at(3, 0, 0)},
		{Trader: "A", ReceivedAt: at(3, 0, 0).Add(24 * time.Hour)},
		{Trader: "B", ReceivedAt: at(4, 0, 0)},
	}
	act := Activity(events, window)
	assert.EqualValues(t, 3, act["A"].TradeCount)
	assert.Equal(t, 2, act["A"].ActiveDays)
	assert.EqualValues(t, 1, act["B"].TradeCount)
	assert.Equal(t, 1, act["B"].ActiveDays)

	ret := Returning(events, window)
	assert.True(t, ret["A"])
	assert.False(t, ret["B"])
}
