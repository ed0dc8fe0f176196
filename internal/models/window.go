package models

import (
	"fmt"
	"time"
)

const DateLayout = "2006-01-02"

// Window is a half-open time range [Start, End).
type Window struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

func (w Window) Contains(t time.Time) bool {
	return !t.Before(w.Start) && t.Before(w.End)
}

func (w Window) Duration() time.Duration {
	return w.End.Sub(w.Start)
}

// Days is the number of whole or partial calendar days the window spans.
func (w Window) Days() int {
	d := int(w.Duration().Hours() / 24)
	if w.Duration()%(24*time.Hour) != 0 {
		d++
	}
	return d
}

// Previous returns the window of equal length ending at w.Start.
func (w Window) Previous() Window {
	return Window{Start: w.Start.Add(-w.Duration()), End: w.Start}
}

func (w Window) Validate() error {
	if w.Start.IsZero() || w.End.IsZero() {
		return fmt.Errorf("window bounds must be set")
	}
	if !w.End.After(w.Start) {
		return fmt.Errorf("window end %s must be after start %s",
			w.End.Format(DateLayout), w.Start.Format(DateLayout))
	}
	return nil
}

func (w Window) String() string {
	return fmt.Sprintf("[%s, %s)", w.Start.Format(DateLayout), w.End.Format(DateLayout))
}

// Windows pairs the pre-competition baseline with the competition itself.
type Windows struct {
	Baseline    Window `json:"baseline"`
	Competition Window `json:"competition"`
}

// Span covers both windows.
func (w Windows) Span() Window {
	start, end := w.Baseline.Start, w.Competition.End
	if w.Competition.Start.Before(start) {
		start = w.Competition.Start
	}
	if w.Baseline.End.After(end) {
		end = w.Baseline.End
	}
	return Window{Start: start, End: end}
}

// ParseWindow parses two YYYY-MM-DD dates as UTC midnights.
func ParseWindow(start, end string) (Window, error) {
	s, err := time.Parse(DateLayout, start)
	if err != nil {
		return Window{}, fmt.Errorf("parse start %q: %w", start, err)
	}
	e, err := time.Parse(DateLayout, end)
	if err != nil {
		return Window{}, fmt.Errorf("parse end %q: %w", end, err)
	}
	w := Window{Start: s.UTC(), End: e.UTC()}
	return w, w.Validate()
}
