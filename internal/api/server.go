package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"regexp"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/kjannette/trahn-analytics/internal/mitigation"
	"github.com/kjannette/trahn-analytics/internal/models"
	"github.com/kjannette/trahn-analytics/internal/report"
	"github.com/kjannette/trahn-analytics/internal/segment"
)

const maxQueryLimit = 1000

var dateRegexp = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)

// Analytics is the report surface the routes need. *report.Builder
// satisfies it.
type Analytics interface {
	Options() report.Options
	Leaderboard(ctx context.Context, w models.Window, cfg mitigation.Config) (*report.Leaderboard, error)
	Trader(ctx context.Context, w models.Window, trader string) (*report.TraderDetail, error)
	CohortCounts(ctx context.Context, w models.Window) ([]report.CohortCount, error)
	Members(ctx context.Context, w models.Window, key segment.Key, limit int) (*report.CohortMembers, error)
	Build(ctx context.Context, ws models.Windows) (*report.Dashboard, error)
}

type Pinger interface {
	Ping(ctx context.Context) error
}

type Server struct {
	svc        Analytics
	db         Pinger
	windows    models.Windows
	log        *zap.Logger
	handler    http.Handler
	httpServer *http.Server
}

// NewServer serves svc over the configured default windows. db backs the
// health check and may be nil.
func NewServer(svc Analytics, db Pinger, windows models.Windows, port int, corsOrigin string, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	s := &Server{
		svc:     svc,
		db:      db,
		windows: windows,
		log:     log.Named("api"),
	}

	mux := http.NewServeMux()

	mux.HandleFunc("GET /v1/leaderboard", s.handleLeaderboard)
	mux.HandleFunc("GET /v1/traders/{trader}", s.handleTrader)
	mux.HandleFunc("GET /v1/segments", s.handleSegments)
	mux.HandleFunc("GET /v1/segments/{key}", s.handleSegmentMembers)
	mux.HandleFunc("GET /v1/dashboard", s.handleDashboard)

	mux.HandleFunc("GET /health", s.handleHealth)
	mux.Handle("GET /metrics", promhttp.Handler())

	s.handler = corsMiddleware(mux, corsOrigin)
	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      s.handler,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 3 * time.Minute,
	}

	return s
}

func (s *Server) Handler() http.Handler { return s.handler }

func (s *Server) Start() error {
	s.log.Info("REST API server started",
		zap.String("addr", s.httpServer.Addr),
		zap.Stringer("competition", s.windows.Competition),
		zap.Stringer("baseline", s.windows.Baseline))
	return s.httpServer.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// --- middleware ---

func corsMiddleware(next http.Handler, allowOrigin string) http.Handler {
	if allowOrigin == "" {
		allowOrigin = "*"
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", allowOrigin)
		w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// --- validation helpers ---

func validateDate(date string) bool {
	if !dateRegexp.MatchString(date) {
		return false
	}
	_, err := time.Parse(models.DateLayout, date)
	return err == nil
}

func parseLimit(r *http.Request, defaultLimit int) int {
	v := r.URL.Query().Get("limit")
	if v == "" {
		return defaultLimit
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return defaultLimit
	}
	if n > maxQueryLimit {
		return maxQueryLimit
	}
	return n
}

// parseWindow overrides def with the startKey/endKey query dates when both
// are present.
func parseWindow(r *http.Request, def models.Window, startKey, endKey string) (models.Window, error) {
	q := r.URL.Query()
	start, end := q.Get(startKey), q.Get(endKey)
	if start == "" && end == "" {
		return def, nil
	}
	if !validateDate(start) || !validateDate(end) {
		return models.Window{}, fmt.Errorf("%s and %s must both be YYYY-MM-DD", startKey, endKey)
	}
	return models.ParseWindow(start, end)
}

// --- response helpers ---

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
