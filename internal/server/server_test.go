package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/alanyoungcy/parimutuel/internal/action"
	"github.com/alanyoungcy/parimutuel/internal/cache/memory"
	"github.com/alanyoungcy/parimutuel/internal/codec"
	"github.com/alanyoungcy/parimutuel/internal/domain"
	"github.com/alanyoungcy/parimutuel/internal/pipeline"
	"github.com/alanyoungcy/parimutuel/internal/repository"
	"github.com/alanyoungcy/parimutuel/internal/server/handler"
	"github.com/alanyoungcy/parimutuel/internal/server/ws"
	"github.com/alanyoungcy/parimutuel/internal/service"
)

const sol = 1_000_000_000

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func addr(b byte) domain.Address {
	var a domain.Address
	a[0] = b
	a[31] = 0x77
	return a
}

var wallet = addr(150)

type env struct {
	srv     *httptest.Server
	repo    *repository.Repository
	bus     *memory.SignalBus
	tracker *action.Tracker
	audit   *memAudit
}

// memAudit is an in-memory audit log holding entries newest first.
type memAudit struct {
	mu      sync.Mutex
	entries []domain.AuditEntry
	opts    domain.ListOpts
}

func (m *memAudit) lastOpts() domain.ListOpts {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.opts
}

func (m *memAudit) List(_ context.Context, opts domain.ListOpts) ([]domain.AuditEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.opts = opts
	page := m.entries[min(opts.Offset, len(m.entries)):]
	return page[:min(opts.Limit, len(page))], nil
}

func newEnv(t *testing.T, cfg Config, limiter domain.RateLimiter) *env {
	t.Helper()
	logger := testLogger()

	src := repository.NewMemorySource(nil)
	now := time.Now().Unix()
	for _, m := range []domain.Market{
		{Address: addr(1), Question: "open", ResolutionTime: now + 86400*3, YesPool: sol, NoPool: sol},
		{Address: addr(2), Question: "settled", ResolutionTime: now - 10, YesPool: sol, NoPool: 3 * sol, Resolved: true, Outcome: domain.OutcomeYes},
	} {
		b, err := codec.EncodeMarket(m)
		if err != nil {
			t.Fatalf("encode: %v", err)
		}
		src.Put(m.Address, b)
	}
	src.Put(addr(21), codec.EncodeUserPosition(domain.UserPosition{Address: addr(21), Market: addr(1), User: wallet, NoAmount: sol}))
	src.Put(addr(22), codec.EncodeUserPosition(domain.UserPosition{Address: addr(22), Market: addr(2), User: wallet, YesAmount: sol}))

	repo := repository.New(src, logger)
	if _, err := repo.RefreshMarkets(context.Background()); err != nil {
		t.Fatalf("refresh: %v", err)
	}
	poller := pipeline.NewPoller(repo, time.Hour, true, 2, logger)
	svc := service.NewPortfolioService(repo, logger, service.WithWatcher(poller))
	tracker := action.NewTracker(time.Hour, poller.Trigger, logger)
	t.Cleanup(func() { tracker.Close() })
	bus := memory.NewSignalBus(0)
	audit := &memAudit{entries: []domain.AuditEntry{
		{ID: 2, Event: "archive.dump", Detail: map[string]any{"accounts": 4.0}, CreatedAt: time.Unix(200, 0).UTC()},
		{ID: 1, Event: "market.resolved", CreatedAt: time.Unix(100, 0).UTC()},
	}}

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	pub := service.NewPublisher(service.PublisherConfig{Bus: bus}, logger)
	tracker.OnChange(pub.ActionChanged)
	go pub.Run(ctx)
	hub := ws.NewHub(bus, logger, ws.Config{Mode: "watch"})
	go hub.Run(ctx)

	h := NewHandler(cfg, Handlers{
		Health:    handler.NewHealthHandler("watch", poller, nil, logger),
		Markets:   handler.NewMarketHandler(svc, logger),
		Positions: handler.NewPositionHandler(svc, logger),
		Refresh:   handler.NewRefreshHandler(poller, logger),
		Actions:   handler.NewActionHandler(tracker, logger),
		Events:    handler.NewEventHandler(bus, logger),
		Audit:     handler.NewAuditHandler(audit, logger),
	}, hub, limiter, logger)
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return &env{srv: srv, repo: repo, bus: bus, tracker: tracker, audit: audit}
}

func (e *env) do(t *testing.T, method, path string, body any, out any) int {
	t.Helper()
	var rd io.Reader
	if body != nil {
		b, _ := json.Marshal(body)
		rd = bytes.NewReader(b)
	}
	req, _ := http.NewRequest(method, e.srv.URL+path, rd)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("%s %s: decode: %v", method, path, err)
		}
	}
	return resp.StatusCode
}

func TestHealth(t *testing.T) {
	e := newEnv(t, Config{APIKey: "secret"}, nil)
	var body map[string]any
	if code := e.do(t, http.MethodGet, "/api/health", nil, &body); code != http.StatusOK {
		t.Fatalf("status=%d want 200", code)
	}
	if body["status"] != "ok" || body["mode"] != "watch" {
		t.Fatalf("body=%v", body)
	}
}

func TestMarketsEndpoints(t *testing.T) {
	e := newEnv(t, Config{}, nil)

	var list struct {
		Markets []service.MarketView `json:"markets"`
		Total   int                  `json:"total"`
	}
	if code := e.do(t, http.MethodGet, "/api/markets", nil, &list); code != http.StatusOK {
		t.Fatalf("status=%d", code)
	}
	if list.Total != 2 || list.Markets[0].Address != addr(1) || list.Markets[0].YesPercent != 50 {
		t.Fatalf("list=%+v", list)
	}

	e.do(t, http.MethodGet, "/api/markets?phase=resolved", nil, &list)
	if list.Total != 1 || list.Markets[0].Address != addr(2) {
		t.Fatalf("resolved filter=%+v", list)
	}

	var one service.MarketView
	if code := e.do(t, http.MethodGet, "/api/markets/"+addr(2).String(), nil, &one); code != http.StatusOK {
		t.Fatalf("get status=%d", code)
	}
	if one.Phase != domain.MarketPhaseResolved || one.Outcome != domain.OutcomeYes {
		t.Fatalf("market=%+v", one)
	}

	if code := e.do(t, http.MethodGet, "/api/markets/"+addr(9).String(), nil, nil); code != http.StatusNotFound {
		t.Fatalf("missing market status=%d want 404", code)
	}
	if code := e.do(t, http.MethodGet, "/api/markets/not-base58!", nil, nil); code != http.StatusBadRequest {
		t.Fatalf("bad address status=%d want 400", code)
	}
	if code := e.do(t, http.MethodGet, "/api/markets/"+addr(2).String()+"/history", nil, nil); code != http.StatusNotImplemented {
		t.Fatalf("history status=%d want 501", code)
	}
}

func TestPositionsAndPortfolio(t *testing.T) {
	e := newEnv(t, Config{}, nil)

	var resp struct {
		Positions []service.PositionView `json:"positions"`
	}
	path := "/api/positions?wallet=" + wallet.String() + "&tab=claimable"
	if code := e.do(t, http.MethodGet, path, nil, &resp); code != http.StatusOK {
		t.Fatalf("status=%d", code)
	}
	if len(resp.Positions) != 1 {
		t.Fatalf("claimable=%d want 1", len(resp.Positions))
	}
	p := resp.Positions[0]
	if p.Payout == nil || p.Payout.Gross != 4*sol || p.Payout.Profit != 3*sol {
		t.Fatalf("payout=%+v want gross=4e9 profit=3e9", p.Payout)
	}

	if code := e.do(t, http.MethodGet, "/api/positions?wallet="+wallet.String()+"&tab=bogus", nil, nil); code != http.StatusBadRequest {
		t.Fatalf("bad tab status=%d want 400", code)
	}
	if code := e.do(t, http.MethodGet, "/api/positions", nil, nil); code != http.StatusBadRequest {
		t.Fatalf("missing wallet status=%d want 400", code)
	}

	var pv service.PortfolioView
	if code := e.do(t, http.MethodGet, "/api/portfolio?wallet="+wallet.String(), nil, &pv); code != http.StatusOK {
		t.Fatalf("portfolio status=%d", code)
	}
	if pv.Stats.TotalInvested != 2*sol || pv.Stats.TotalWon != 3*sol || pv.Counts.All != 2 {
		t.Fatalf("portfolio=%+v", pv)
	}
}

func TestActionLifecycle(t *testing.T) {
	e := newEnv(t, Config{}, nil)

	var a domain.PendingAction
	code := e.do(t, http.MethodPost, "/api/actions", map[string]any{
		"kind": "claim_winnings", "target": addr(2).String(), "wallet": wallet.String(),
	}, &a)
	if code != http.StatusCreated || a.State != domain.ActionSubmitting {
		t.Fatalf("submit status=%d action=%+v", code, a)
	}

	if code := e.do(t, http.MethodPost, "/api/actions", map[string]any{"kind": "transfer"}, nil); code != http.StatusBadRequest {
		t.Fatalf("unknown kind status=%d want 400", code)
	}

	confirm := "/api/actions/" + a.ID + "/confirm"
	if code := e.do(t, http.MethodPost, confirm, map[string]string{"signature": "5ig"}, &a); code != http.StatusOK {
		t.Fatalf("confirm status=%d", code)
	}
	if a.State != domain.ActionConfirmed || a.Signature != "5ig" {
		t.Fatalf("confirmed action=%+v", a)
	}
	if code := e.do(t, http.MethodPost, "/api/actions/"+a.ID+"/fail", map[string]string{"error": "late"}, nil); code != http.StatusConflict {
		t.Fatalf("fail after confirm status=%d want 409", code)
	}
	if code := e.do(t, http.MethodPost, "/api/actions/nope/confirm", map[string]string{"signature": "x"}, nil); code != http.StatusNotFound {
		t.Fatalf("unknown id status=%d want 404", code)
	}

	var events struct {
		Events []struct {
			Event domain.Event `json:"event"`
		} `json:"events"`
	}
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		e.do(t, http.MethodGet, "/api/events", nil, &events)
		if len(events.Events) >= 2 {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if len(events.Events) != 2 || events.Events[1].Event.Action.State != domain.ActionConfirmed {
		t.Fatalf("events=%+v", events.Events)
	}
}

func TestAuth(t *testing.T) {
	e := newEnv(t, Config{APIKey: "secret"}, nil)

	if code := e.do(t, http.MethodGet, "/api/markets", nil, nil); code != http.StatusUnauthorized {
		t.Fatalf("no key status=%d want 401", code)
	}
	req, _ := http.NewRequest(http.MethodGet, e.srv.URL+"/api/markets", nil)
	req.Header.Set("Authorization", "Bearer secret")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("with key status=%d want 200", resp.StatusCode)
	}
}

func TestAuditEndpoint(t *testing.T) {
	e := newEnv(t, Config{APIKey: "secret"}, nil)

	if code := e.do(t, http.MethodGet, "/api/audit", nil, nil); code != http.StatusUnauthorized {
		t.Fatalf("no key status=%d want 401", code)
	}

	req, _ := http.NewRequest(http.MethodGet, e.srv.URL+"/api/audit?limit=1&since=1970-01-01T00:00:00Z", nil)
	req.Header.Set("X-API-Key", "secret")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status=%d want 200", resp.StatusCode)
	}
	var body struct {
		Entries []domain.AuditEntry `json:"entries"`
		Limit   int                 `json:"limit"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(body.Entries) != 1 || body.Entries[0].ID != 2 || body.Entries[0].Event != "archive.dump" {
		t.Fatalf("entries=%+v", body.Entries)
	}
	if opts := e.audit.lastOpts(); body.Limit != 1 || opts.Since == nil {
		t.Fatalf("limit=%d since=%v", body.Limit, opts.Since)
	}
}

func TestAuditEndpointWithoutStore(t *testing.T) {
	h := handler.NewAuditHandler(nil, testLogger())
	rec := httptest.NewRecorder()
	h.ListAudit(rec, httptest.NewRequest(http.MethodGet, "/api/audit", nil))
	if rec.Code != http.StatusNotImplemented {
		t.Fatalf("status=%d want 501", rec.Code)
	}
}

type denyAll struct{}

func (denyAll) Allow(context.Context, string, int, time.Duration) (bool, error) { return false, nil }

func TestRateLimit(t *testing.T) {
	e := newEnv(t, Config{RateLimit: 1}, denyAll{})
	if code := e.do(t, http.MethodGet, "/api/markets", nil, nil); code != http.StatusTooManyRequests {
		t.Fatalf("status=%d want 429", code)
	}
}

func TestWebSocketStreamsEvents(t *testing.T) {
	e := newEnv(t, Config{}, nil)

	url := "ws" + strings.TrimPrefix(e.srv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	conn.SetReadDeadline(time.Now().Add(3 * time.Second))

	var status map[string]any
	if err := conn.ReadJSON(&status); err != nil || status["type"] != "engine_status" {
		t.Fatalf("status=%v err=%v", status, err)
	}

	payload, _ := json.Marshal(domain.Event{Type: domain.EventMarketResolved, Market: addr(1), Outcome: "YES"})
	done := make(chan struct{})
	defer close(done)
	go func() {
		// The hub subscribes asynchronously; publish until the client hears it.
		tick := time.NewTicker(20 * time.Millisecond)
		defer tick.Stop()
		for {
			select {
			case <-done:
				return
			case <-tick.C:
				_ = e.bus.Publish(context.Background(), service.EventChannel(domain.EventMarketResolved), payload)
			}
		}
	}()

	var ev domain.Event
	if err := conn.ReadJSON(&ev); err != nil {
		t.Fatalf("read: %v", err)
	}
	if ev.Type != domain.EventMarketResolved || ev.Market != addr(1) {
		t.Fatalf("event=%+v", ev)
	}
}
