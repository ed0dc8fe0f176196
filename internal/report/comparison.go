package report

import (
	"math"
	"sort"
	"time"

	"github.com/kjannette/trahn-analytics/internal/models"
)

// Averages are per-day means over a window, zero-activity days included.
type Averages struct {
	Trades  float64 `json:"trades"`
	Traders float64 `json:"traders"`
	Volume  float64 `json:"volume"`
}

type DayLift struct {
	Day         time.Time    `json:"day"`
	Weekday     time.Weekday `json:"weekday"`
	Baseline    float64      `json:"baselineVolume"`
	Competition float64      `json:"competitionVolume"`
	LiftPct     float64      `json:"liftPct"`
}

// Attribution estimates what the competition added over a baseline-rate run
// of the same length.
type Attribution struct {
	ExpectedVolume    float64 `json:"expectedVolume"`
	ActualVolume      float64 `json:"actualVolume"`
	IncrementalVolume float64 `json:"incrementalVolume"`
	ExpectedTrades    float64 `json:"expectedTrades"`
	ActualTrades      float64 `json:"actualTrades"`
	IncrementalTrades float64 `json:"incrementalTrades"`
}

type PeriodComparison struct {
	Baseline    Averages    `json:"baseline"`
	Competition Averages    `json:"competition"`
	LiftPct     Averages    `json:"liftPct"`
	DayOfWeek   []DayLift   `json:"dayOfWeek"`
	Attribution Attribution `json:"attribution"`
}

// Compare splits daily rows by window. Lift against a zero baseline is
// reported as 0. Day-of-week lift only covers competition days whose weekday
// also occurs in the baseline.
func Compare(daily []models.DailyActivity, ws models.Windows) PeriodComparison {
	var base, comp []models.DailyActivity
	for _, d := range daily {
		switch {
		case ws.Baseline.Contains(d.Day):
			base = append(base, d)
		case ws.Competition.Contains(d.Day):
			comp = append(comp, d)
		}
	}

	pc := PeriodComparison{
		Baseline:    average(base, ws.Baseline.Days()),
		Competition: average(comp, ws.Competition.Days()),
		DayOfWeek:   []DayLift{},
	}
	pc.LiftPct = Averages{
		Trades:  liftPct(pc.Competition.Trades, pc.Baseline.Trades),
		Traders: liftPct(pc.Competition.Traders, pc.Baseline.Traders),
		Volume:  liftPct(pc.Competition.Volume, pc.Baseline.Volume),
	}

	type acc struct {
		sum float64
		n   int
	}
	byDow := make(map[time.Weekday]*acc)
	for _, d := range base {
		a := byDow[d.Day.Weekday()]
		if a == nil {
			a = &acc{}
			byDow[d.Day.Weekday()] = a
		}
		a.sum += d.Volume
		a.n++
	}
	for _, d := range comp {
		a, ok := byDow[d.Day.Weekday()]
		if !ok {
			continue
		}
		avg := a.sum / float64(a.n)
		pc.DayOfWeek = append(pc.DayOfWeek, DayLift{
			Day:         d.Day,
			Weekday:     d.Day.Weekday(),
			Baseline:    round2(avg),
			Competition: d.Volume,
			LiftPct:     liftPct(d.Volume, avg),
		})
	}

	days := float64(ws.Competition.Days())
	at := &pc.Attribution
	at.ExpectedVolume = round2(pc.Baseline.Volume * days)
	at.ExpectedTrades = round2(pc.Baseline.Trades * days)
	for _, d := range comp {
		at.ActualVolume += d.Volume
		at.ActualTrades += float64(d.Trades)
	}
	at.ActualVolume = round2(at.ActualVolume)
	at.IncrementalVolume = round2(at.ActualVolume - at.ExpectedVolume)
	at.IncrementalTrades = round2(at.ActualTrades - at.ExpectedTrades)
	return pc
}

func average(rows []models.DailyActivity, days int) Averages {
	if days <= 0 {
		return Averages{}
	}
	var a Averages
	for _, r := range rows {
		a.Trades += float64(r.Trades)
		a.Traders += float64(r.Traders)
		a.Volume += r.Volume
	}
	n := float64(days)
	return Averages{Trades: round2(a.Trades / n), Traders: round2(a.Traders / n), Volume: round2(a.Volume / n)}
}

type ProgramLift struct {
	ProgramID        string  `json:"programId"`
	BaselineDaily    float64 `json:"baselineDaily"`
	CompetitionDaily float64 `json:"competitionDaily"`
	LiftPct          float64 `json:"liftPct"`
}

// ProgramLifts compares per-day volume by program, largest competition
// volume first.
func ProgramLifts(base, comp []models.ProgramActivity, ws models.Windows) []ProgramLift {
	byID := make(map[string]*ProgramLift)
	get := func(id string) *ProgramLift {
		p, ok := byID[id]
		if !ok {
			p = &ProgramLift{ProgramID: id}
			byID[id] = p
		}
		return p
	}
	bd, cd := float64(ws.Baseline.Days()), float64(ws.Competition.Days())
	for _, p := range base {
		get(p.ProgramID).BaselineDaily = p.Volume / bd
	}
	for _, p := range comp {
		get(p.ProgramID).CompetitionDaily = p.Volume / cd
	}

	out := make([]ProgramLift, 0, len(byID))
	for _, p := range byID {
		p.LiftPct = liftPct(p.CompetitionDaily, p.BaselineDaily)
		p.BaselineDaily, p.CompetitionDaily = round2(p.BaselineDaily), round2(p.CompetitionDaily)
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CompetitionDaily != out[j].CompetitionDaily {
			return out[i].CompetitionDaily > out[j].CompetitionDaily
		}
		return out[i].ProgramID < out[j].ProgramID
	})
	return out
}

type HourLift struct {
	Hour             int     `json:"hour"`
	BaselineDaily    float64 `json:"baselineDaily"`
	CompetitionDaily float64 `json:"competitionDaily"`
	LiftPct          float64 `json:"liftPct"`
}

// TopHours returns the n UTC hours with the highest competition per-day
// volume.
func TopHours(base, comp []models.HourlyActivity, ws models.Windows, n int) []HourLift {
	var hours [24]HourLift
	for h := range hours {
		hours[h].Hour = h
	}
	bd, cd := float64(ws.Baseline.Days()), float64(ws.Competition.Days())
	for _, h := range base {
		if h.Hour >= 0 && h.Hour < 24 {
			hours[h.Hour].BaselineDaily = h.Volume / bd
		}
	}
	for _, h := range comp {
		if h.Hour >= 0 && h.Hour < 24 {
			hours[h.Hour].CompetitionDaily = h.Volume / cd
		}
	}

	out := make([]HourLift, 0, 24)
	for _, h := range hours {
		if h.BaselineDaily == 0 && h.CompetitionDaily == 0 {
			continue
		}
		h.LiftPct = liftPct(h.CompetitionDaily, h.BaselineDaily)
		h.BaselineDaily, h.CompetitionDaily = round2(h.BaselineDaily), round2(h.CompetitionDaily)
		out = append(out, h)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CompetitionDaily > out[j].CompetitionDaily })
	if len(out) > n {
		out = out[:n]
	}
	return out
}

func liftPct(cur, base float64) float64 {
	if base == 0 {
		return 0
	}
	return math.Round((cur-base)/base*1000) / 10
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
