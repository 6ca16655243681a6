package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/alanyoungcy/parimutuel/internal/domain"
	"github.com/alanyoungcy/parimutuel/internal/repository"
)

const (
	// EventChannelPrefix prefixes the pub/sub channel of each event type,
	// e.g. "events:market_resolved".
	EventChannelPrefix = "events:"
	// EventStream is the durable stream every event is appended to.
	EventStream = "events"

	defaultQueueSize = 256
	sinkTimeout      = 10 * time.Second
)

// EventChannel returns the pub/sub channel for t.
func EventChannel(t domain.EventType) string {
	return EventChannelPrefix + string(t)
}

// EventNotifier delivers events to operators.
type EventNotifier interface {
	NotifyEvent(ctx context.Context, ev domain.Event) error
}

// Observable is the part of the repository the publisher listens to.
type Observable interface {
	OnMarkets(fn repository.MarketListener)
	OnPositions(fn repository.PositionListener)
}

// PublisherConfig lists the publisher's sinks. Any of them may be nil.
type PublisherConfig struct {
	Bus        domain.SignalBus
	Notifier   EventNotifier
	Markets    domain.MarketHistoryStore
	Portfolios domain.PortfolioHistoryStore
	Audit      domain.AuditStore
	QueueSize  int
}

// Publisher turns repository snapshot swaps into events and history rows.
// Listeners only enqueue; Run performs the I/O so refreshes never wait on a
// sink. When the queue is full new work is dropped and counted.
type Publisher struct {
	cfg     PublisherConfig
	queue   chan job
	dropped atomic.Uint64
	logger  *slog.Logger
}

type job struct {
	events    []domain.Event
	markets   []domain.Market
	portfolio *domain.PortfolioSnapshot
	at        time.Time
}

// NewPublisher creates a Publisher.
func NewPublisher(cfg PublisherConfig, logger *slog.Logger) *Publisher {
	size := cfg.QueueSize
	if size <= 0 {
		size = defaultQueueSize
	}
	return &Publisher{
		cfg:    cfg,
		queue:  make(chan job, size),
		logger: logger.With(slog.String("component", "publisher")),
	}
}

// Attach registers the publisher's listeners on repo.
func (p *Publisher) Attach(repo Observable) {
	repo.OnMarkets(p.marketsSwapped)
	repo.OnPositions(p.positionsSwapped)
}

// Dropped returns how many jobs were discarded because the queue was full.
func (p *Publisher) Dropped() uint64 {
	return p.dropped.Load()
}

func (p *Publisher) marketsSwapped(prev, next *repository.MarketSnapshot) {
	at := next.FetchedAt
	p.enqueue(job{
		events:  MarketTransitions(prev, next, at),
		markets: ChangedMarkets(prev, next),
		at:      at,
	})
}

func (p *Publisher) positionsSwapped(prev, next *repository.PositionSnapshot) {
	at := next.FetchedAt
	j := job{
		events: append(PositionTransitions(prev, next, at), domain.Event{
			Type:   domain.EventSnapshot,
			Wallet: next.Owner,
			At:     at,
		}),
		at: at,
	}
	if PortfolioChanged(prev, next) {
		v := portfolioView(next)
		j.portfolio = &domain.PortfolioSnapshot{
			Wallet:     v.Wallet,
			Stats:      v.Stats,
			Counts:     v.Counts,
			ObservedAt: at,
		}
	}
	p.enqueue(j)
}

// ActionChanged publishes a pending-action state change.
func (p *Publisher) ActionChanged(a domain.PendingAction) {
	p.enqueue(job{
		events: []domain.Event{{
			Type:   domain.EventActionUpdated,
			Market: a.Target,
			Wallet: a.Wallet,
			Action: &a,
			At:     a.UpdatedAt,
		}},
		at: a.UpdatedAt,
	})
}

func (p *Publisher) enqueue(j job) {
	if len(j.events) == 0 && len(j.markets) == 0 && j.portfolio == nil {
		return
	}
	select {
	case p.queue <- j:
	default:
		n := p.dropped.Add(1)
		p.logger.Warn("publisher: queue full, dropping update",
			slog.Int("events", len(j.events)),
			slog.Uint64("dropped_total", n),
		)
	}
}

// Run processes queued work until ctx is done.
func (p *Publisher) Run(ctx context.Context) error {
	p.logger.InfoContext(ctx, "publisher: started")
	for {
		select {
		case <-ctx.Done():
			p.logger.Info("publisher: stopped")
			return ctx.Err()
		case j := <-p.queue:
			p.handle(ctx, j)
		}
	}
}

func (p *Publisher) handle(ctx context.Context, j job) {
	ctx, cancel := context.WithTimeout(ctx, sinkTimeout)
	defer cancel()

	for _, ev := range j.events {
		p.publish(ctx, ev)
	}

	if len(j.markets) > 0 && p.cfg.Markets != nil {
		if err := p.cfg.Markets.InsertBatch(ctx, j.markets, j.at); err != nil {
			p.logger.ErrorContext(ctx, "publisher: record market history failed",
				slog.Int("markets", len(j.markets)),
				slog.String("error", err.Error()),
			)
		}
	}
	if j.portfolio != nil && p.cfg.Portfolios != nil {
		if err := p.cfg.Portfolios.Insert(ctx, *j.portfolio); err != nil {
			p.logger.ErrorContext(ctx, "publisher: record portfolio history failed",
				slog.String("wallet", j.portfolio.Wallet.String()),
				slog.String("error", err.Error()),
			)
		}
	}
}

func (p *Publisher) publish(ctx context.Context, ev domain.Event) {
	payload, err := json.Marshal(ev)
	if err != nil {
		p.logger.ErrorContext(ctx, "publisher: marshal event failed",
			slog.String("event", string(ev.Type)),
			slog.String("error", err.Error()),
		)
		return
	}

	if bus := p.cfg.Bus; bus != nil {
		if err := bus.Publish(ctx, EventChannel(ev.Type), payload); err != nil {
			p.logger.WarnContext(ctx, "publisher: publish event failed",
				slog.String("event", string(ev.Type)),
				slog.String("error", err.Error()),
			)
		}
		if ev.Type != domain.EventSnapshot {
			if err := bus.StreamAppend(ctx, EventStream, payload); err != nil {
				p.logger.WarnContext(ctx, "publisher: stream append failed",
					slog.String("event", string(ev.Type)),
					slog.String("error", err.Error()),
				)
			}
		}
	}

	if ev.Type == domain.EventSnapshot {
		return
	}
	p.logger.InfoContext(ctx, "publisher: event",
		slog.String("event", string(ev.Type)),
		slog.String("market", ev.Market.String()),
		slog.String("wallet", ev.Wallet.String()),
	)

	if p.cfg.Notifier != nil && ev.Type != domain.EventActionUpdated {
		if err := p.cfg.Notifier.NotifyEvent(ctx, ev); err != nil {
			p.logger.WarnContext(ctx, "publisher: notify failed",
				slog.String("event", string(ev.Type)),
				slog.String("error", err.Error()),
			)
		}
	}
	if p.cfg.Audit != nil && ev.Type != domain.EventActionUpdated {
		if err := p.cfg.Audit.Log(ctx, "event."+string(ev.Type), auditDetail(ev)); err != nil {
			p.logger.WarnContext(ctx, "publisher: audit failed",
				slog.String("event", string(ev.Type)),
				slog.String("error", err.Error()),
			)
		}
	}
}

func auditDetail(ev domain.Event) map[string]any {
	d := map[string]any{"at": ev.At.UTC().Format(time.RFC3339)}
	if !ev.Market.IsZero() {
		d["market"] = ev.Market.String()
	}
	if !ev.Wallet.IsZero() {
		d["wallet"] = ev.Wallet.String()
	}
	if !ev.Position.IsZero() {
		d["position"] = ev.Position.String()
	}
	if ev.Outcome != "" {
		d["outcome"] = ev.Outcome
	}
	if ev.Amount > 0 {
		d["amount"] = fmt.Sprintf("%d", ev.Amount)
	}
	return d
}
