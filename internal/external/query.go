package external

import (
	"time"

	"github.com/kjannette/trahn-analytics/internal/models"
)

// Query is the declarative body Cube accepts on /load.
type Query struct {
	Measures       []string          `json:"measures,omitempty"`
	Dimensions     []string          `json:"dimensions,omitempty"`
	TimeDimensions []TimeDimension   `json:"timeDimensions,omitempty"`
	Filters        []Filter          `json:"filters,omitempty"`
	Order          map[string]string `json:"order,omitempty"`
	Limit          int               `json:"limit,omitempty"`
	Offset         int               `json:"offset,omitempty"`
}

type TimeDimension struct {
	Dimension   string   `json:"dimension"`
	DateRange   []string `json:"dateRange,omitempty"`
	Granularity string   `json:"granularity,omitempty"`
}

type Filter struct {
	Member   string   `json:"member"`
	Operator string   `json:"operator"`
	Values   []string `json:"values"`
}

// DateRange converts a half-open window to Cube's inclusive day range.
func DateRange(w models.Window) []string {
	last := w.End.Add(-24 * time.Hour)
	if last.Before(w.Start) {
		last = w.Start
	}
	return []string{w.Start.Format(models.DateLayout), last.Format(models.DateLayout)}
}
