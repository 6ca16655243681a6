package notify

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/alanyoungcy/parimutuel/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type recordingSender struct {
	mu     sync.Mutex
	titles []string
}

func (r *recordingSender) Send(_ context.Context, title, _ string) error {
	r.mu.Lock()
	r.titles = append(r.titles, title)
	r.mu.Unlock()
	return nil
}

func (r *recordingSender) Name() string { return "recording" }

func TestNotifierFiltersEvents(t *testing.T) {
	rec := &recordingSender{}
	n := NewNotifier([]Sender{rec}, []string{"market_resolved", " "}, testLogger())

	ctx := context.Background()
	_ = n.NotifyEvent(ctx, domain.Event{Type: domain.EventMarketResolved, Outcome: "YES", Question: "q"})
	_ = n.NotifyEvent(ctx, domain.Event{Type: domain.EventPositionClaimed, Amount: 1})

	if len(rec.titles) != 1 || rec.titles[0] != "Market resolved: YES" {
		t.Fatalf("titles=%v", rec.titles)
	}
}

func TestFormatClaimable(t *testing.T) {
	title, msg := Format(domain.Event{Type: domain.EventPositionClaimable, Amount: 1_666_666_666, Question: "Rain?"})
	if title != "Winnings ready to claim" {
		t.Fatalf("title=%q", title)
	}
	if !strings.Contains(msg, "1.67 SOL") {
		t.Fatalf("msg=%q", msg)
	}
}

func TestSenders(t *testing.T) {
	var mu sync.Mutex
	bodies := map[string]map[string]string{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		_ = json.NewDecoder(r.Body).Decode(&body)
		mu.Lock()
		bodies[r.URL.Path] = body
		mu.Unlock()
		if r.URL.Path == "/fail" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	tg := NewTelegramSender("TOKEN", "42")
	tg.baseURL = srv.URL
	dc := NewDiscordSender(srv.URL + "/hook")
	bad := NewDiscordSender(srv.URL + "/fail")

	n := NewNotifier([]Sender{tg, dc, bad}, nil, testLogger())
	err := n.NotifyAll(context.Background(), "Title", "body")
	if err == nil || !strings.Contains(err.Error(), "1 sender(s) failed") {
		t.Fatalf("err=%v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if got := bodies["/botTOKEN/sendMessage"]; got["chat_id"] != "42" || got["text"] != "*Title*\nbody" {
		t.Fatalf("telegram body=%v", got)
	}
	if got := bodies["/hook"]; got["content"] != "**Title**\nbody" {
		t.Fatalf("discord body=%v", got)
	}
}
