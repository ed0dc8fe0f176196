package repository

import (
	"time"

	"github.com/kjannette/trahn-analytics/internal/models"
)

// TradingDay returns the UTC calendar day (YYYY-MM-DD) for a timestamp. The
// trade table's DATE("receivedAt") buckets the same way.
func TradingDay(ts time.Time) string {
	return ts.UTC().Format(models.DateLayout)
}

// DaysIn lists the UTC midnights that start inside w.
func DaysIn(w models.Window) []time.Time {
	var out []time.Time
	d := w.Start.UTC().Truncate(24 * time.Hour)
	if d.Before(w.Start) {
		d = d.Add(24 * time.Hour)
	}
	for ; d.Before(w.End); d = d.Add(24 * time.Hour) {
		out = append(out, d)
	}
	return out
}

// FillDays returns one row per day of w, zero-filled where the query had no
// trades.
func FillDays(w models.Window, rows []models.DailyActivity) []models.DailyActivity {
	have := make(map[string]models.DailyActivity, len(rows))
	for _, r := range rows {
		have[TradingDay(r.Day)] = r
	}
	days := DaysIn(w)
	out := make([]models.DailyActivity, 0, len(days))
	for _, d := range days {
		r, ok := have[TradingDay(d)]
		if !ok {
			r = models.DailyActivity{Day: d}
		}
		out = append(out, r)
	}
	return out
}
