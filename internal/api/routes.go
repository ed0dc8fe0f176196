package api

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/kjannette/trahn-analytics/internal/ethereum"
	"github.com/kjannette/trahn-analytics/internal/external"
	"github.com/kjannette/trahn-analytics/internal/mitigation"
	"github.com/kjannette/trahn-analytics/internal/report"
	"github.com/kjannette/trahn-analytics/internal/segment"
)

func (s *Server) handleLeaderboard(w http.ResponseWriter, r *http.Request) {
	win, err := parseWindow(r, s.windows.Competition, "start", "end")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	cfg, err := parseMitigation(r.URL.Query(), s.svc.Options().Mitigation)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	lb, err := s.svc.Leaderboard(r.Context(), win, cfg)
	if err != nil {
		s.fail(w, "leaderboard", err)
		return
	}
	writeJSON(w, http.StatusOK, lb)
}

func (s *Server) handleTrader(w http.ResponseWriter, r *http.Request) {
	win, err := parseWindow(r, s.windows.Competition, "start", "end")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	trader := ethereum.NormalizeTrader(r.PathValue("trader"))
	if trader == "" {
		writeError(w, http.StatusBadRequest, "trader is required")
		return
	}

	d, err := s.svc.Trader(r.Context(), win, trader)
	if err != nil {
		s.fail(w, "trader", err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

func (s *Server) handleSegments(w http.ResponseWriter, r *http.Request) {
	win, err := parseWindow(r, s.windows.Competition, "start", "end")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	counts, err := s.svc.CohortCounts(r.Context(), win)
	if err != nil {
		s.fail(w, "segments", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"window": win, "cohorts": counts})
}

func (s *Server) handleSegmentMembers(w http.ResponseWriter, r *http.Request) {
	win, err := parseWindow(r, s.windows.Competition, "start", "end")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	m, err := s.svc.Members(r.Context(), win, segment.Key(r.PathValue("key")), parseLimit(r, 100))
	if err != nil {
		s.fail(w, "segment members", err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	ws := s.windows
	var err error
	if ws.Competition, err = parseWindow(r, ws.Competition, "start", "end"); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if ws.Baseline, err = parseWindow(r, ws.Baseline, "baseline_start", "baseline_end"); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	d, err := s.svc.Build(r.Context(), ws)
	if err != nil {
		s.fail(w, "dashboard", err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

// fail maps domain errors onto status codes. Unexpected errors are logged
// and reported without detail.
func (s *Server) fail(w http.ResponseWriter, what string, err error) {
	var ce *mitigation.ConfigError
	switch {
	case errors.As(err, &ce):
		writeError(w, http.StatusBadRequest, ce.Error())
	case errors.Is(err, segment.ErrUnknownCohort):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, report.ErrNoVolumeSource):
		writeError(w, http.StatusServiceUnavailable, err.Error())
	case errors.Is(err, external.ErrUpstream):
		s.log.Warn("upstream failure", zap.String("route", what), zap.Error(err))
		writeError(w, http.StatusBadGateway, "analytics backend unavailable")
	default:
		s.log.Error("request failed", zap.String("route", what), zap.Error(err))
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("failed to build %s", what))
	}
}

// parseMitigation applies slider query params over base. Validation of the
// resulting ranges is left to the builder.
func parseMitigation(q url.Values, base mitigation.Config) (mitigation.Config, error) {
	cfg := base
	floats := []struct {
		key string
		dst *float64
	}{
		{"min_token_volume", &cfg.MinTokenVolume},
		{"max_volume_dominance_pct", &cfg.MaxVolumeDominancePct},
		{"max_token_pnl_pct", &cfg.MaxTokenPnLPct},
	}
	for _, f := range floats {
		if v := q.Get(f.key); v != "" {
			n, err := strconv.ParseFloat(v, 64)
			if err != nil {
				return cfg, fmt.Errorf("%s: %q is not a number", f.key, v)
			}
			*f.dst = n
		}
	}

	ints := []struct {
		key string
		dst *int
	}{
		{"min_unique_traders", &cfg.MinUniqueTraders},
		{"min_distinct_tokens", &cfg.MinDistinctTokens},
	}
	for _, f := range ints {
		if v := q.Get(f.key); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				return cfg, fmt.Errorf("%s: %q is not an integer", f.key, v)
			}
			*f.dst = n
		}
	}

	bools := []struct {
		key string
		dst *bool
	}{
		{"flagged_only", &cfg.FlaggedOnly},
		{"rank_disqualified", &cfg.RankDisqualified},
	}
	for _, f := range bools {
		if v := q.Get(f.key); v != "" {
			b, err := strconv.ParseBool(v)
			if err != nil {
				return cfg, fmt.Errorf("%s: %q is not a boolean", f.key, v)
			}
			*f.dst = b
		}
	}

	if v := q.Get("min_hold_time"); v != "" {
		d, err := parseDuration(v)
		if err != nil {
			return cfg, fmt.Errorf("min_hold_time: %w", err)
		}
		cfg.MinHoldTime = d
	}
	return cfg, nil
}

// parseDuration accepts a Go duration ("90s") or bare seconds ("90").
func parseDuration(v string) (time.Duration, error) {
	if secs, err := strconv.ParseFloat(v, 64); err == nil {
		return time.Duration(secs * float64(time.Second)), nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%q is not a duration", v)
	}
	return d, nil
}
