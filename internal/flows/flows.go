// Package flows turns raw swap events into per-trader, per-token directional
// flow sums.
package flows

import (
	"sort"

	"github.com/shopspring/decimal"

	"github.com/kjannette/trahn-analytics/internal/models"
)

// Classify returns the traded token and direction of a swap. A swap paying
// the quote token is a buy of TokenOut, anything else sells TokenIn.
func Classify(ev models.TradeEvent, quote string) (string, models.Direction) {
	if ev.TokenIn == quote {
		return ev.TokenOut, models.Buy
	}
	return ev.TokenIn, models.Sell
}

// ImpliedPrice returns quote per unit token for a single swap, or nil when
// either amount is zero.
func ImpliedPrice(ev models.TradeEvent, quote string) *decimal.Decimal {
	if ev.AmountIn == 0 || ev.AmountOut == 0 {
		return nil
	}
	in := decimal.NewFromFloat(ev.AmountIn)
	out := decimal.NewFromFloat(ev.AmountOut)
	var p decimal.Decimal
	if _, dir := Classify(ev, quote); dir == models.Buy {
		p = in.Div(out)
	} else {
		p = out.Div(in)
	}
	return &p
}

type flowKey struct {
	trader string
	token  string
	dir    models.Direction
}

// Aggregate groups events inside w by trader, token and direction. Output is
// sorted by trader, token, then BUY before SELL.
func Aggregate(events []models.TradeEvent, w models.Window, quote string) []models.DirectionalFlow {
	acc := make(map[flowKey]*models.DirectionalFlow)

	for _, ev := range events {
		if !w.Contains(ev.ReceivedAt) {
			continue
		}
		token, dir := Classify(ev, quote)
		k := flowKey{trader: ev.Trader, token: token, dir: dir}
		f, ok := acc[k]
		if !ok {
			f = &models.DirectionalFlow{Trader: ev.Trader, Token: token, Direction: dir}
			acc[k] = f
		}
		Add(f, ev)
	}

	out := make([]models.DirectionalFlow, 0, len(acc))
	for _, f := range acc {
		out = append(out, *f)
	}
	Sort(out)
	return out
}

// Add folds one event into an existing flow of the same direction.
func Add(f *models.DirectionalFlow, ev models.TradeEvent) {
	in := decimal.NewFromFloat(ev.AmountIn)
	out := decimal.NewFromFloat(ev.AmountOut)

	var quoteAmt, tokenAmt decimal.Decimal
	if f.Direction == models.Buy {
		quoteAmt, tokenAmt = in, out
		f.QuoteIn = f.QuoteIn.Add(in)
	} else {
		quoteAmt, tokenAmt = out, in
		f.QuoteOut = f.QuoteOut.Add(out)
	}
	f.TokenQty = f.TokenQty.Add(tokenAmt)

	if !quoteAmt.IsZero() && !tokenAmt.IsZero() {
		f.PricedQuote = f.PricedQuote.Add(quoteAmt)
		f.PricedQty = f.PricedQty.Add(tokenAmt)
	}
	f.Swaps++
}

func Sort(fs []models.DirectionalFlow) {
	sort.Slice(fs, func(i, j int) bool {
		a, b := fs[i], fs[j]
		if a.Trader != b.Trader {
			return a.Trader < b.Trader
		}
		if a.Token != b.Token {
			return a.Token < b.Token
		}
		return a.Direction < b.Direction
	})
}

// Activity counts events and distinct UTC days per trader inside w. Returning
// is left false; it needs history before the window.
func Activity(events []models.TradeEvent, w models.Window) map[string]models.TraderActivity {
	days := make(map[string]map[string]struct{})
	out := make(map[string]models.TraderActivity)
	for _, ev := range events {
		if !w.Contains(ev.ReceivedAt) {
			continue
		}
		a := out[ev.Trader]
		a.Trader = ev.Trader
		a.TradeCount++
		out[ev.Trader] = a

		if days[ev.Trader] == nil {
			days[ev.Trader] = make(map[string]struct{})
		}
		days[ev.Trader][ev.ReceivedAt.UTC().Format(models.DateLayout)] = struct{}{}
	}
	for trader, set := range days {
		a := out[trader]
		a.ActiveDays = len(set)
		out[trader] = a
	}
	return out
}

// Returning marks traders with any event before w.Start.
func Returning(events []models.TradeEvent, w models.Window) map[string]bool {
	out := make(map[string]bool)
	for _, ev := range events {
		if ev.ReceivedAt.Before(w.Start) {
			out[ev.Trader] = true
		}
	}
	return out
}
