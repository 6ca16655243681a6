// Package repository keeps the latest decoded markets and positions in
// memory. Each refresh builds a complete new snapshot and swaps it in whole,
// so readers never observe a half-applied refresh. When refreshes of the same
// record type overlap, the one started last wins.
package repository

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/alanyoungcy/parimutuel/internal/codec"
	"github.com/alanyoungcy/parimutuel/internal/domain"
)

// MarketListener is called after a new market snapshot is published.
type MarketListener func(prev, next *MarketSnapshot)

// PositionListener is called after a new position snapshot is published.
// prev is nil for the first snapshot of a wallet.
type PositionListener func(prev, next *PositionSnapshot)

// Repository is the polling cache over an AccountSource.
type Repository struct {
	source domain.AccountSource
	logger *slog.Logger
	now    func() time.Time

	marketSeq atomic.Uint64
	markets   atomic.Pointer[MarketSnapshot]

	mu          sync.RWMutex
	positionSeq uint64
	positions   map[domain.Address]*PositionSnapshot
	inflight    map[domain.Address]int
	forgotten   map[domain.Address]uint64
	marketLs    []MarketListener
	positionLs  []PositionListener
}

// Option configures a Repository.
type Option func(*Repository)

// WithClock overrides time.Now for snapshot timestamps.
func WithClock(now func() time.Time) Option {
	return func(r *Repository) { r.now = now }
}

// New creates an empty Repository reading from source.
func New(source domain.AccountSource, logger *slog.Logger, opts ...Option) *Repository {
	r := &Repository{
		source:      source,
		logger:      logger.With(slog.String("component", "repository")),
		now:         time.Now,
		positions:   make(map[domain.Address]*PositionSnapshot),
		inflight:    make(map[domain.Address]int),
		forgotten:   make(map[domain.Address]uint64),
	}
	for _, o := range opts {
		o(r)
	}
	r.markets.Store(newMarketSnapshot(0, time.Time{}, nil, 0))
	return r
}

// OnMarkets registers fn to run after every market snapshot swap.
func (r *Repository) OnMarkets(fn MarketListener) {
	r.mu.Lock()
	r.marketLs = append(r.marketLs, fn)
	r.mu.Unlock()
}

// OnPositions registers fn to run after every position snapshot swap.
func (r *Repository) OnPositions(fn PositionListener) {
	r.mu.Lock()
	r.positionLs = append(r.positionLs, fn)
	r.mu.Unlock()
}

// Markets returns the current market snapshot. It is never nil.
func (r *Repository) Markets() *MarketSnapshot {
	return r.markets.Load()
}

// Positions returns the current snapshot for owner, if one was ever fetched.
func (r *Repository) Positions(owner domain.Address) (*PositionSnapshot, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.positions[owner]
	return s, ok
}

// Snapshot is a consistent read of everything the repository holds.
type Snapshot struct {
	Markets   *MarketSnapshot
	Positions map[domain.Address]*PositionSnapshot
}

// Current returns the latest snapshot of every record type.
func (r *Repository) Current() Snapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()
	pos := make(map[domain.Address]*PositionSnapshot, len(r.positions))
	for k, v := range r.positions {
		pos[k] = v
	}
	return Snapshot{Markets: r.markets.Load(), Positions: pos}
}

// RefreshMarkets fetches and decodes every market account and swaps in the
// result. Malformed accounts are logged and skipped. A transport failure
// leaves the previous snapshot in place.
func (r *Repository) RefreshMarkets(ctx context.Context) (*MarketSnapshot, error) {
	seq := r.marketSeq.Add(1)

	raw, err := r.source.ProgramAccounts(ctx, codec.MarketFilters())
	if err != nil {
		return nil, fmt.Errorf("repository: refresh markets: %w", transportErr(err))
	}

	markets := make([]domain.Market, 0, len(raw))
	skipped := 0
	for _, acc := range raw {
		m, err := codec.DecodeMarket(acc.Address, acc.Data)
		if err != nil {
			skipped++
			r.logger.Warn("repository: skipping malformed market",
				slog.String("address", acc.Address.String()),
				slog.String("error", err.Error()),
			)
			continue
		}
		markets = append(markets, m)
	}
	next := newMarketSnapshot(seq, r.now().UTC(), markets, skipped)

	prev, published := r.publishMarkets(next)
	if !published {
		r.logger.Debug("repository: discarding superseded market refresh", slog.Uint64("seq", seq))
		return r.Markets(), nil
	}
	r.logger.Debug("repository: markets refreshed",
		slog.Int("count", next.Len()),
		slog.Int("skipped", skipped),
	)
	for _, fn := range r.marketListeners() {
		fn(prev, next)
	}
	return next, nil
}

func (r *Repository) publishMarkets(next *MarketSnapshot) (*MarketSnapshot, bool) {
	for {
		prev := r.markets.Load()
		if prev.Seq > next.Seq {
			return prev, false
		}
		if r.markets.CompareAndSwap(prev, next) {
			return prev, true
		}
	}
}

// RefreshPositions fetches owner's position accounts, resolves each market
// reference and swaps in the result. Markets missing from the market
// snapshot are looked up directly; a position whose market still cannot be
// found is kept with a nil Market.
func (r *Repository) RefreshPositions(ctx context.Context, owner domain.Address) (*PositionSnapshot, error) {
	r.mu.Lock()
	r.positionSeq++
	seq := r.positionSeq
	r.inflight[owner]++
	r.mu.Unlock()
	defer r.settle(owner)

	raw, err := r.source.ProgramAccounts(ctx, codec.PositionFilters(owner))
	if err != nil {
		return nil, fmt.Errorf("repository: refresh positions for %s: %w", owner, transportErr(err))
	}

	positions := make([]domain.UserPosition, 0, len(raw))
	skipped := 0
	for _, acc := range raw {
		p, err := codec.DecodeUserPosition(acc.Address, acc.Data)
		if err != nil {
			skipped++
			r.logger.Warn("repository: skipping malformed position",
				slog.String("address", acc.Address.String()),
				slog.String("owner", owner.String()),
				slog.String("error", err.Error()),
			)
			continue
		}
		positions = append(positions, p)
	}
	slices.SortFunc(positions, func(a, b domain.UserPosition) int {
		return slices.Compare(a.Address[:], b.Address[:])
	})

	resolved := r.resolveMarkets(ctx, positions)
	next := &PositionSnapshot{
		Seq:       seq,
		Owner:     owner,
		FetchedAt: r.now().UTC(),
		Skipped:   skipped,
		Entries:   make([]domain.PositionEntry, len(positions)),
	}
	for i, p := range positions {
		m := resolved[p.Market]
		if m == nil {
			next.Unresolved++
		}
		next.Entries[i] = domain.PositionEntry{Position: p, Market: m}
	}

	r.mu.Lock()
	if barrier, ok := r.forgotten[owner]; ok && seq <= barrier {
		r.mu.Unlock()
		r.logger.Debug("repository: discarding refresh of forgotten owner",
			slog.String("owner", owner.String()),
			slog.Uint64("seq", seq),
		)
		return next, nil
	}
	prev := r.positions[owner]
	if prev != nil && prev.Seq > seq {
		r.mu.Unlock()
		r.logger.Debug("repository: discarding superseded position refresh",
			slog.String("owner", owner.String()),
			slog.Uint64("seq", seq),
		)
		return prev, nil
	}
	r.positions[owner] = next
	listeners := slices.Clone(r.positionLs)
	r.mu.Unlock()

	r.logger.Debug("repository: positions refreshed",
		slog.String("owner", owner.String()),
		slog.Int("count", len(next.Entries)),
		slog.Int("skipped", skipped),
		slog.Int("unresolved", next.Unresolved),
	)
	for _, fn := range listeners {
		fn(prev, next)
	}
	return next, nil
}

// resolveMarkets maps every referenced market address to a market, reading
// the market snapshot first and the source for the rest. Lookup failures
// leave the address unmapped; they are retried on the next refresh.
func (r *Repository) resolveMarkets(ctx context.Context, positions []domain.UserPosition) map[domain.Address]*domain.Market {
	snap := r.Markets()
	out := make(map[domain.Address]*domain.Market, len(positions))
	var missing []domain.Address
	for _, p := range positions {
		if _, seen := out[p.Market]; seen {
			continue
		}
		if m, ok := snap.Get(p.Market); ok {
			out[p.Market] = m
			continue
		}
		out[p.Market] = nil
		missing = append(missing, p.Market)
	}
	if len(missing) == 0 {
		return out
	}

	data, err := r.source.MultipleAccounts(ctx, missing)
	if err != nil {
		r.logger.Warn("repository: market lookup failed, positions left unresolved",
			slog.Int("markets", len(missing)),
			slog.String("error", err.Error()),
		)
		return out
	}
	for i, addr := range missing {
		if i >= len(data) || data[i] == nil {
			continue
		}
		m, err := codec.DecodeMarket(addr, data[i])
		if err != nil {
			r.logger.Warn("repository: skipping malformed market",
				slog.String("address", addr.String()),
				slog.String("error", err.Error()),
			)
			continue
		}
		out[addr] = &m
	}
	return out
}

// Forget drops owner's snapshot. Refreshes for owner already in flight
// complete without publishing, so a forgotten owner is not brought back.
func (r *Repository) Forget(owner domain.Address) {
	r.mu.Lock()
	delete(r.positions, owner)
	if r.inflight[owner] > 0 {
		r.forgotten[owner] = r.positionSeq
	}
	r.mu.Unlock()
}

// settle ends one refresh of owner and drops bookkeeping once none remain.
func (r *Repository) settle(owner domain.Address) {
	r.mu.Lock()
	if r.inflight[owner]--; r.inflight[owner] <= 0 {
		delete(r.inflight, owner)
		delete(r.forgotten, owner)
	}
	r.mu.Unlock()
}

func (r *Repository) marketListeners() []MarketListener {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Clone(r.marketLs)
}

func transportErr(err error) error {
	if errors.Is(err, domain.ErrTransport) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return fmt.Errorf("%w: %w", domain.ErrTransport, err)
}
