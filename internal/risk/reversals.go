package risk

import (
	"sort"
	"time"

	"github.com/kjannette/trahn-analytics/internal/flows"
	"github.com/kjannette/trahn-analytics/internal/models"
)

// ReversalGaps returns, per trader, the gap between every pair of consecutive
// swaps on the same token that flip direction. Events at the same instant keep
// their input order.
func ReversalGaps(events []models.TradeEvent, quote string) map[string][]time.Duration {
	type key struct{ trader, token string }
	type leg struct {
		at  time.Time
		dir models.Direction
		seq int
	}
	legs := make(map[key][]leg)
	for i, ev := range events {
		token, dir := flows.Classify(ev, quote)
		k := key{ev.Trader, token}
		legs[k] = append(legs[k], leg{at: ev.ReceivedAt, dir: dir, seq: i})
	}

	out := make(map[string][]time.Duration)
	for k, ls := range legs {
		sort.Slice(ls, func(i, j int) bool {
			if !ls[i].at.Equal(ls[j].at) {
				return ls[i].at.Before(ls[j].at)
			}
			return ls[i].seq < ls[j].seq
		})
		for i := 1; i < len(ls); i++ {
			if ls[i].dir != ls[i-1].dir {
				out[k.trader] = append(out[k.trader], ls[i].at.Sub(ls[i-1].at))
			}
		}
	}
	for trader := range out {
		sort.Slice(out[trader], func(i, j int) bool { return out[trader][i] < out[trader][j] })
	}
	return out
}

// CountWithin counts gaps no longer than window. Each reversal counts once,
// repeated reversals on one token are not collapsed.
func CountWithin(gaps []time.Duration, window time.Duration) int {
	n := 0
	for _, g := range gaps {
		if g <= window {
			n++
		}
	}
	return n
}

// CountUnder counts gaps strictly shorter than d.
func CountUnder(gaps []time.Duration, d time.Duration) int {
	n := 0
	for _, g := range gaps {
		if g < d {
			n++
		}
	}
	return n
}
