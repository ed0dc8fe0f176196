package notifications

import (
	"fmt"
	"strings"

	"github.com/kjannette/trahn-analytics/internal/ethereum"
	"github.com/kjannette/trahn-analytics/internal/report"
)

// Summary renders the integrity headline of a dashboard run as plain text.
func Summary(d *report.Dashboard) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Competition %s vs baseline %s\n", d.Windows.Competition, d.Windows.Baseline)

	if lb := d.Leaderboard.Data; lb != nil {
		r := lb.Risk
		fmt.Fprintf(&b, "Eligible traders: %d | flagged: %d (high %d, medium %d, low %d) | ring members: %d\n",
			lb.Impact.Traders, r.Flagged, r.High, r.Medium, r.Low, r.RingMembers)
		fmt.Fprintf(&b, "PnL at risk: $%.2f | adjusted delta: $%.2f | rank changes: %d | disqualified: %d\n",
			r.PnLAtRisk, lb.Impact.Delta, lb.Impact.RankChanges, lb.Impact.Disqualified)
		for i, e := range lb.Entries {
			if i == 3 {
				break
			}
			fmt.Fprintf(&b, "  #%d %s $%.2f (score %d)\n", e.NewRank, ethereum.ShortTrader(e.Trader), e.AdjustedPnL, e.RiskScore)
		}
	} else {
		fmt.Fprintf(&b, "Leaderboard unavailable: %s\n", d.Leaderboard.Error)
	}

	if failed := d.Failed(); len(failed) > 0 {
		fmt.Fprintf(&b, "Failed sections: %s\n", strings.Join(failed, ", "))
	}
	return strings.TrimRight(b.String(), "\n")
}
