// Package ws streams engine events to WebSocket clients.
package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/alanyoungcy/parimutuel/internal/domain"
	"github.com/alanyoungcy/parimutuel/internal/service"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096
	sendBufferSize = 256
)

// eventTypes are relayed from the signal bus, one channel each.
var eventTypes = []domain.EventType{
	domain.EventMarketResolved,
	domain.EventPositionClaimable,
	domain.EventPositionClaimed,
	domain.EventActionUpdated,
	domain.EventSnapshot,
}

// defaultSubs is what a new client receives before it sends a subscription
// message. Snapshot ticks are opt-in.
var defaultSubs = []domain.EventType{
	domain.EventMarketResolved,
	domain.EventPositionClaimable,
	domain.EventPositionClaimed,
	domain.EventActionUpdated,
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

type client struct {
	hub     *Hub
	conn    *websocket.Conn
	send    chan []byte
	mu      sync.RWMutex
	subs    map[domain.EventType]bool
	wallets map[string]bool
}

// subscribeMsg changes a client's filters. Channels are event types; a
// non-empty Wallets list restricts wallet-scoped events to those wallets.
type subscribeMsg struct {
	Action   string   `json:"action"`
	Channels []string `json:"channels"`
	Wallets  []string `json:"wallets"`
}

// Hub relays events from the signal bus to connected clients.
type Hub struct {
	bus        domain.SignalBus
	logger     *slog.Logger
	mode       string
	startedAt  time.Time
	clients    map[*client]bool
	broadcast  chan broadcastMsg
	register   chan *client
	unregister chan *client
	done       chan struct{}
	mu         sync.RWMutex
}

type broadcastMsg struct {
	event  domain.EventType
	wallet string
	data   []byte
}

// Config is reported to clients in the status message sent on connect.
type Config struct {
	Mode      string
	StartedAt time.Time
}

// NewHub creates a Hub reading from bus.
func NewHub(bus domain.SignalBus, logger *slog.Logger, cfg Config) *Hub {
	startedAt := cfg.StartedAt
	if startedAt.IsZero() {
		startedAt = time.Now().UTC()
	}
	return &Hub{
		bus:        bus,
		logger:     logger.With(slog.String("component", "ws_hub")),
		mode:       cfg.Mode,
		startedAt:  startedAt,
		clients:    make(map[*client]bool),
		broadcast:  make(chan broadcastMsg, 256),
		register:   make(chan *client),
		unregister: make(chan *client),
		done:       make(chan struct{}),
	}
}

// Run subscribes to every event channel and serves clients until ctx is
// done. Clients connecting after Run returns are turned away.
func (h *Hub) Run(ctx context.Context) error {
	defer close(h.done)
	for _, t := range eventTypes {
		go h.relay(ctx, t)
	}

	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for c := range h.clients {
				close(c.send)
				delete(h.clients, c)
			}
			h.mu.Unlock()
			return ctx.Err()

		case c := <-h.register:
			h.mu.Lock()
			h.clients[c] = true
			n := len(h.clients)
			h.mu.Unlock()
			h.logger.Info("ws: client connected", slog.Int("total_clients", n))

		case c := <-h.unregister:
			h.mu.Lock()
			if h.clients[c] {
				delete(h.clients, c)
				close(c.send)
			}
			n := len(h.clients)
			h.mu.Unlock()
			h.logger.Info("ws: client disconnected", slog.Int("total_clients", n))

		case msg := <-h.broadcast:
			h.mu.RLock()
			for c := range h.clients {
				if !c.wants(msg) {
					continue
				}
				select {
				case c.send <- msg.data:
				default:
					h.logger.Warn("ws: dropping message for slow client")
				}
			}
			h.mu.RUnlock()
		}
	}
}

// relay forwards one event channel to the broadcast loop.
func (h *Hub) relay(ctx context.Context, t domain.EventType) {
	channel := service.EventChannel(t)
	msgs, err := h.bus.Subscribe(ctx, channel)
	if err != nil {
		h.logger.Error("ws: subscribe failed",
			slog.String("channel", channel),
			slog.String("error", err.Error()),
		)
		return
	}
	for {
		select {
		case <-ctx.Done():
			return
		case data, ok := <-msgs:
			if !ok {
				return
			}
			var head struct {
				Wallet string `json:"wallet"`
			}
			_ = json.Unmarshal(data, &head)
			select {
			case h.broadcast <- broadcastMsg{event: t, wallet: head.Wallet, data: data}:
			case <-ctx.Done():
				return
			}
		}
	}
}

// HandleWS upgrades the request and registers the client.
// GET /ws?wallet=<address>
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("ws: upgrade failed", slog.String("error", err.Error()))
		return
	}

	c := &client{
		hub:     h,
		conn:    conn,
		send:    make(chan []byte, sendBufferSize),
		subs:    make(map[domain.EventType]bool, len(defaultSubs)),
		wallets: make(map[string]bool),
	}
	for _, t := range defaultSubs {
		c.subs[t] = true
	}
	for _, wlt := range r.URL.Query()["wallet"] {
		if wlt = strings.TrimSpace(wlt); wlt != "" {
			c.wallets[wlt] = true
		}
	}

	c.sendStatus()
	select {
	case h.register <- c:
	case <-h.done:
		conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
			time.Now().Add(writeWait))
		conn.Close()
		return
	}

	go c.writePump()
	go c.readPump()
}

// wants reports whether msg passes the client's filters. Events without a
// wallet pass any wallet filter.
func (c *client) wants(msg broadcastMsg) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if !c.subs[msg.event] {
		return false
	}
	return len(c.wallets) == 0 || msg.wallet == "" || c.wallets[msg.wallet]
}

func (c *client) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.logger.Warn("ws: unexpected close", slog.String("error", err.Error()))
			}
			return
		}
		var sub subscribeMsg
		if json.Unmarshal(message, &sub) == nil && sub.Action != "" {
			c.apply(sub)
		}
	}
}

func (c *client) apply(msg subscribeMsg) {
	c.mu.Lock()
	defer c.mu.Unlock()

	on := msg.Action == "subscribe"
	if !on && msg.Action != "unsubscribe" {
		return
	}
	for _, ch := range msg.Channels {
		t := domain.EventType(strings.TrimPrefix(ch, service.EventChannelPrefix))
		if on {
			c.subs[t] = true
		} else {
			delete(c.subs, t)
		}
	}
	for _, w := range msg.Wallets {
		if on {
			c.wallets[w] = true
		} else {
			delete(c.wallets, w)
		}
	}
}

// sendStatus tells a new client the connection is live.
func (c *client) sendStatus() {
	uptime := max(0, int64(time.Since(c.hub.startedAt).Seconds()))
	msg, err := json.Marshal(map[string]any{
		"type": "engine_status",
		"payload": map[string]any{
			"mode":           c.hub.mode,
			"uptime_seconds": uptime,
		},
	})
	if err != nil {
		return
	}
	select {
	case c.send <- msg:
	default:
	}
}

func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
