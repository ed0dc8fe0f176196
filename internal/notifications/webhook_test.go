package notifications

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"go.uber.org/zap/zaptest"

	"github.com/kjannette/trahn-analytics/internal/mitigation"
	"github.com/kjannette/trahn-analytics/internal/report"
	"github.com/kjannette/trahn-analytics/internal/risk"
)

func TestSend_NoWebhook(t *testing.T) {
	s := NewSender("", "TestBot", zaptest.NewLogger(t))
	if s.Enabled() {
		t.Fatal("should not be enabled with empty URL")
	}
	if err := s.Send(context.Background(), "hello from test"); err != nil {
		t.Fatalf("Send: %v", err)
	}
}

func TestSend_SlackFormat(t *testing.T) {
	var received map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		json.Unmarshal(body, &received)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	s := NewSender(srv.URL, "TestBot", zaptest.NewLogger(t))
	if !s.Enabled() {
		t.Fatal("should be enabled")
	}
	if err := s.Send(context.Background(), "snapshot written"); err != nil {
		t.Fatalf("Send: %v", err)
	}

	if received["username"] != "TestBot" {
		t.Fatalf("username: got %s", received["username"])
	}
	if !strings.Contains(received["text"], "snapshot written") {
		t.Fatalf("text: got %q", received["text"])
	}
}

func TestSend_DiscordFormat(t *testing.T) {
	var received map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		json.Unmarshal(body, &received)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	// URL containing "discord" triggers Discord format
	s := NewSender(srv.URL+"/discord/webhook", "TrahnBot", zaptest.NewLogger(t))
	if err := s.Send(context.Background(), "3 traders flagged"); err != nil {
		t.Fatalf("Send: %v", err)
	}

	if received["content"] == "" {
		t.Fatal("content should not be empty for Discord")
	}
	if received["username"] != "TrahnBot" {
		t.Fatalf("username: got %s", received["username"])
	}
	if _, hasText := received["text"]; hasText {
		t.Fatal("Discord payload should not have 'text' field")
	}
}

func TestSend_RejectedStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	s := NewSender(srv.URL, "TestBot", zaptest.NewLogger(t))
	if err := s.Send(context.Background(), "nope"); err == nil {
		t.Fatal("expected error on 403")
	}
}

func TestDefaultName(t *testing.T) {
	s := NewSender("", "", nil)
	if s.name != "TrahnAnalytics" {
		t.Fatalf("expected default name, got %s", s.name)
	}
}

func TestSummary(t *testing.T) {
	d := &report.Dashboard{}
	d.Leaderboard.Data = &report.Leaderboard{
		Entries: []mitigation.Ranked{
			{Trader: "0x52908400098527886E0F7030069857D2E4169EE7", NewRank: 1, AdjustedPnL: 1200, RiskScore: 10},
		},
		Impact: mitigation.Impact{Traders: 1},
		Risk:   risk.Summary{Flagged: 1, High: 1, PnLAtRisk: 1200},
	}
	d.Tiers.Error = "boom"

	got := Summary(d)
	for _, want := range []string{"flagged: 1", "#1 0x5290...9EE7", "Failed sections: tiers"} {
		if !strings.Contains(got, want) {
			t.Fatalf("summary missing %q:\n%s", want, got)
		}
	}
}
