// Package pnl computes realized and VWAP-marked PnL per trader from
// directional flows.
package pnl

import (
	"sort"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/kjannette/trahn-analytics/internal/models"
)

// DefaultMinVolume is the eligibility floor in quote units.
const DefaultMinVolume = 1000

// VWAP returns the market-wide sell-side average price per token. A token
// with no priced sells maps to nil.
func VWAP(flows []models.DirectionalFlow) map[string]*decimal.Decimal {
	type acc struct{ quote, qty decimal.Decimal }
	sums := make(map[string]*acc)
	for _, f := range flows {
		a, ok := sums[f.Token]
		if !ok {
			a = &acc{}
			sums[f.Token] = a
		}
		if f.Direction != models.Sell {
			continue
		}
		a.quote = a.quote.Add(f.PricedQuote)
		a.qty = a.qty.Add(f.PricedQty)
	}

	out := make(map[string]*decimal.Decimal, len(sums))
	for token, a := range sums {
		if !a.qty.IsPositive() {
			out[token] = nil
			continue
		}
		p := a.quote.Div(a.qty)
		out[token] = &p
	}
	return out
}

type Engine struct {
	minVolume decimal.Decimal
	log       *zap.Logger
}

func NewEngine(minVolume float64, log *zap.Logger) *Engine {
	if minVolume < 0 {
		minVolume = DefaultMinVolume
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Engine{minVolume: decimal.NewFromFloat(minVolume), log: log}
}

type posKey struct{ trader, token string }

// Positions builds per trader and token positions. Only net-short balances
// are marked, against the market VWAP; open longs contribute nothing.
func (e *Engine) Positions(flows []models.DirectionalFlow, vwap map[string]*decimal.Decimal) []models.TraderTokenPosition {
	acc := make(map[posKey]*models.TraderTokenPosition)
	for _, f := range flows {
		k := posKey{f.Trader, f.Token}
		p, ok := acc[k]
		if !ok {
			p = &models.TraderTokenPosition{Trader: f.Trader, Token: f.Token}
			acc[k] = p
		}
		switch f.Direction {
		case models.Buy:
			p.RealizedPnL = p.RealizedPnL.Sub(f.QuoteIn)
			p.NetBalance = p.NetBalance.Add(f.TokenQty)
			p.Volume = p.Volume.Add(f.QuoteIn)
		case models.Sell:
			p.RealizedPnL = p.RealizedPnL.Add(f.QuoteOut)
			p.NetBalance = p.NetBalance.Sub(f.TokenQty)
			p.Volume = p.Volume.Add(f.QuoteOut)
		}
	}

	out := make([]models.TraderTokenPosition, 0, len(acc))
	for _, p := range acc {
		if p.NetBalance.IsNegative() {
			if price := vwap[p.Token]; price != nil {
				p.Unrealized = p.NetBalance.Mul(*price)
			} else {
				e.log.Warn("net short position without market vwap, unrealized set to 0",
					zap.String("trader", p.Trader),
					zap.String("token", p.Token),
					zap.String("balance", p.NetBalance.String()))
			}
		}
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Trader != out[j].Trader {
			return out[i].Trader < out[j].Trader
		}
		return out[i].Token < out[j].Token
	})
	return out
}

// Summaries runs VWAP, Positions and Rollup over one window of flows.
func (e *Engine) Summaries(flows []models.DirectionalFlow, activity map[string]models.TraderActivity) []models.TraderPnLSummary {
	return e.Rollup(e.Positions(flows, VWAP(flows)), activity)
}

// Rollup sums positions per trader, drops traders under the volume floor and
// orders by PnL descending with trader id breaking ties. Positions must be
// sorted by trader.
func (e *Engine) Rollup(positions []models.TraderTokenPosition, activity map[string]models.TraderActivity) []models.TraderPnLSummary {

	type roll struct {
		pnl, vol  decimal.Decimal
		tokens    int
		positions []models.TraderTokenPosition
	}
	byTrader := make(map[string]*roll)
	var order []string
	for _, p := range positions {
		r, ok := byTrader[p.Trader]
		if !ok {
			r = &roll{}
			byTrader[p.Trader] = r
			order = append(order, p.Trader)
		}
		r.pnl = r.pnl.Add(p.PnL())
		r.vol = r.vol.Add(p.Volume)
		if p.Volume.IsPositive() {
			r.tokens++
		}
		r.positions = append(r.positions, p)
	}

	out := make([]models.TraderPnLSummary, 0, len(order))
	for _, trader := range order {
		r := byTrader[trader]
		if r.vol.LessThan(e.minVolume) {
			continue
		}
		act := activity[trader]
		out = append(out, models.TraderPnLSummary{
			Trader:         trader,
			TotalPnL:       r.pnl.Round(2).InexactFloat64(),
			TotalVolume:    r.vol.Round(2).InexactFloat64(),
			DistinctTokens: r.tokens,
			TradeCount:     act.TradeCount,
			ActiveDays:     act.ActiveDays,
			Returning:      act.Returning,
			Positions:      r.positions,
		})
	}
	SortByPnL(out)
	return out
}

func SortByPnL(s []models.TraderPnLSummary) {
	sort.SliceStable(s, func(i, j int) bool {
		if s[i].TotalPnL != s[j].TotalPnL {
			return s[i].TotalPnL > s[j].TotalPnL
		}
		return s[i].Trader < s[j].Trader
	})
}

// Total sums position PnL without rounding.
func Total(positions []models.TraderTokenPosition) decimal.Decimal {
	sum := decimal.Zero
	for _, p := range positions {
		sum = sum.Add(p.PnL())
	}
	return sum
}
