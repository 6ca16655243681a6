package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/parimutuel/internal/domain"
	"github.com/alanyoungcy/parimutuel/internal/repository"
)

// Refresher is the part of the repository the poller drives.
type Refresher interface {
	RefreshMarkets(ctx context.Context) (*repository.MarketSnapshot, error)
	RefreshPositions(ctx context.Context, owner domain.Address) (*repository.PositionSnapshot, error)
	Forget(owner domain.Address)
}

// PollStatus describes the most recent poll cycle.
type PollStatus struct {
	Cycles    uint64    `json:"cycles"`
	LastRun   time.Time `json:"last_run"`
	LastError string    `json:"last_error,omitempty"`
	Wallets   int       `json:"wallets"`
	Evicted   uint64    `json:"evicted,omitempty"`
}

// watched is one wallet in the polling set. Pinned wallets come from
// configuration and are never evicted; lastUse orders the others.
type watched struct {
	pinned  bool
	lastUse uint64
}

// PollerOption configures a Poller.
type PollerOption func(*Poller)

// WithMaxWallets caps the wallets added through Watch. Past the cap the least
// recently watched one is evicted and forgotten by the repository. Zero
// disables the cap.
func WithMaxWallets(n int) PollerOption {
	return func(p *Poller) { p.maxWallets = n }
}

// Poller refreshes markets and every watched wallet on a fixed interval and
// whenever Trigger is called.
type Poller struct {
	repo           Refresher
	interval       time.Duration
	marketsEnabled bool
	concurrency    int
	logger         *slog.Logger
	trigger        chan struct{}
	maxWallets     int

	mu       sync.RWMutex
	wallets  map[domain.Address]*watched
	unpinned int
	clock    uint64
	status   PollStatus
}

// NewPoller creates a Poller. concurrency bounds parallel wallet refreshes.
func NewPoller(repo Refresher, interval time.Duration, marketsEnabled bool, concurrency int, logger *slog.Logger, opts ...PollerOption) *Poller {
	if concurrency < 1 {
		concurrency = 1
	}
	p := &Poller{
		repo:           repo,
		interval:       interval,
		marketsEnabled: marketsEnabled,
		concurrency:    concurrency,
		logger:         logger.With(slog.String("component", "poller")),
		trigger:        make(chan struct{}, 1),
		wallets:        make(map[domain.Address]*watched),
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Pin adds a configured wallet that stays in the set for the poller's life.
func (p *Poller) Pin(wallet domain.Address) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if w, ok := p.wallets[wallet]; ok {
		if !w.pinned {
			w.pinned = true
			p.unpinned--
		}
		return
	}
	p.wallets[wallet] = &watched{pinned: true}
}

// Watch adds a wallet to every future cycle, or marks it recently used if it
// is already watched. It reports whether the wallet was new. When the cap is
// reached the least recently watched unpinned wallet is evicted.
func (p *Poller) Watch(wallet domain.Address) bool {
	p.mu.Lock()
	p.clock++
	if w, ok := p.wallets[wallet]; ok {
		w.lastUse = p.clock
		p.mu.Unlock()
		return false
	}
	var evicted []domain.Address
	for p.maxWallets > 0 && p.unpinned >= p.maxWallets {
		victim, ok := p.oldestUnpinned()
		if !ok {
			break
		}
		delete(p.wallets, victim)
		p.unpinned--
		p.status.Evicted++
		evicted = append(evicted, victim)
	}
	p.wallets[wallet] = &watched{lastUse: p.clock}
	p.unpinned++
	p.mu.Unlock()

	for _, victim := range evicted {
		p.repo.Forget(victim)
		p.logger.Info("poller: evicted idle wallet",
			slog.String("wallet", victim.String()),
			slog.Int("max_wallets", p.maxWallets),
		)
	}
	return true
}

// oldestUnpinned must be called with mu held.
func (p *Poller) oldestUnpinned() (domain.Address, bool) {
	var (
		oldest domain.Address
		use    uint64
		found  bool
	)
	for addr, w := range p.wallets {
		if w.pinned {
			continue
		}
		if !found || w.lastUse < use {
			oldest, use, found = addr, w.lastUse, true
		}
	}
	return oldest, found
}

// Wallets returns the watched wallets in address order.
func (p *Poller) Wallets() []domain.Address {
	p.mu.RLock()
	out := make([]domain.Address, 0, len(p.wallets))
	for w := range p.wallets {
		out = append(out, w)
	}
	p.mu.RUnlock()
	slices.SortFunc(out, func(a, b domain.Address) int { return slices.Compare(a[:], b[:]) })
	return out
}

// Status returns the outcome of the last cycle.
func (p *Poller) Status() PollStatus {
	p.mu.RLock()
	defer p.mu.RUnlock()
	s := p.status
	s.Wallets = len(p.wallets)
	return s
}

// Trigger asks the loop for an extra cycle as soon as possible. Triggers that
// arrive while one is pending are merged.
func (p *Poller) Trigger() {
	select {
	case p.trigger <- struct{}{}:
	default:
	}
}

// Run performs one cycle: markets first so positions resolve against fresh
// markets, then every wallet in parallel. A failed wallet does not stop the
// others; all failures are joined into the returned error.
func (p *Poller) Run(ctx context.Context) error {
	var errs []error
	if p.marketsEnabled {
		if _, err := p.repo.RefreshMarkets(ctx); err != nil {
			errs = append(errs, err)
		}
	}

	wallets := p.Wallets()
	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.concurrency)
	for _, w := range wallets {
		g.Go(func() error {
			if _, err := p.repo.RefreshPositions(gctx, w); err != nil {
				mu.Lock()
				errs = append(errs, err)
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()

	err := errors.Join(errs...)
	p.mu.Lock()
	p.status.Cycles++
	p.status.LastRun = time.Now().UTC()
	p.status.LastError = ""
	if err != nil {
		p.status.LastError = err.Error()
	}
	p.mu.Unlock()

	if err != nil {
		return fmt.Errorf("pipeline: poll cycle: %w", err)
	}
	return nil
}

// RunLoop runs a cycle immediately, then on every tick or trigger until ctx
// is cancelled. Failed cycles are logged; the last good snapshots stay
// served.
func (p *Poller) RunLoop(ctx context.Context) error {
	p.runLogged(ctx)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			p.logger.Info("poller loop stopped")
			return ctx.Err()
		case <-ticker.C:
			p.runLogged(ctx)
		case <-p.trigger:
			p.runLogged(ctx)
			ticker.Reset(p.interval)
		}
	}
}

func (p *Poller) runLogged(ctx context.Context) {
	start := time.Now()
	if err := p.Run(ctx); err != nil {
		if ctx.Err() != nil {
			return
		}
		p.logger.Error("poller: refresh failed", slog.String("error", err.Error()))
		return
	}
	p.logger.Debug("poller: cycle complete", slog.Duration("took", time.Since(start)))
}
