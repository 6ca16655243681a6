// Package service turns repository snapshots into read models for the API
// and fans snapshot transitions out to the signal bus, notifiers and history
// sinks.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/alanyoungcy/parimutuel/internal/domain"
	"github.com/alanyoungcy/parimutuel/internal/portfolio"
	"github.com/alanyoungcy/parimutuel/internal/repository"
)

// ErrHistoryDisabled is returned by history reads when no store is wired.
var ErrHistoryDisabled = errors.New("service: history store not configured")

// Reader is the part of the repository the service reads.
type Reader interface {
	Markets() *repository.MarketSnapshot
	Positions(owner domain.Address) (*repository.PositionSnapshot, bool)
	RefreshPositions(ctx context.Context, owner domain.Address) (*repository.PositionSnapshot, error)
}

// Watcher adds a wallet to the polling set.
type Watcher interface {
	Watch(wallet domain.Address) bool
}

// PortfolioService serves market, position and portfolio read models.
type PortfolioService struct {
	repo       Reader
	watcher    Watcher
	markets    domain.MarketHistoryStore
	portfolios domain.PortfolioHistoryStore
	now        func() time.Time
	logger     *slog.Logger
}

// Option configures a PortfolioService.
type Option func(*PortfolioService)

// WithWatcher registers wallets queried for the first time with w.
func WithWatcher(w Watcher) Option {
	return func(s *PortfolioService) { s.watcher = w }
}

// WithHistory enables the history reads. Either store may be nil.
func WithHistory(markets domain.MarketHistoryStore, portfolios domain.PortfolioHistoryStore) Option {
	return func(s *PortfolioService) {
		s.markets = markets
		s.portfolios = portfolios
	}
}

// WithClock overrides time.Now for derived time fields.
func WithClock(now func() time.Time) Option {
	return func(s *PortfolioService) { s.now = now }
}

// NewPortfolioService creates a PortfolioService over repo.
func NewPortfolioService(repo Reader, logger *slog.Logger, opts ...Option) *PortfolioService {
	s := &PortfolioService{
		repo:   repo,
		now:    time.Now,
		logger: logger.With(slog.String("component", "portfolio_service")),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Markets returns every known market, latest resolution time first.
func (s *PortfolioService) Markets() []MarketView {
	now := s.now()
	list := s.repo.Markets().List()
	out := make([]MarketView, len(list))
	for i, m := range list {
		out[i] = NewMarketView(*m, now)
	}
	return out
}

// Market returns one market from the current snapshot.
func (s *PortfolioService) Market(addr domain.Address) (MarketView, error) {
	m, ok := s.repo.Markets().Get(addr)
	if !ok {
		return MarketView{}, fmt.Errorf("portfolio_service: market %s: %w", addr, domain.ErrNotFound)
	}
	return NewMarketView(*m, s.now()), nil
}

// Positions returns wallet's positions in tab, ordered by market resolution
// time, latest first.
func (s *PortfolioService) Positions(ctx context.Context, wallet domain.Address, tab domain.Tab) ([]PositionView, error) {
	snap, err := s.snapshot(ctx, wallet)
	if err != nil {
		return nil, err
	}
	now := s.now()
	entries := portfolio.Filter(portfolio.Sorted(snap.Entries), tab)
	out := make([]PositionView, len(entries))
	for i, e := range entries {
		out[i] = NewPositionView(e, now)
	}
	return out, nil
}

// Portfolio returns wallet's aggregate statistics.
func (s *PortfolioService) Portfolio(ctx context.Context, wallet domain.Address) (PortfolioView, error) {
	snap, err := s.snapshot(ctx, wallet)
	if err != nil {
		return PortfolioView{}, err
	}
	return portfolioView(snap), nil
}

func portfolioView(snap *repository.PositionSnapshot) PortfolioView {
	return PortfolioView{
		Wallet:     snap.Owner,
		Stats:      portfolio.Aggregate(snap.Entries),
		Counts:     portfolio.Counts(snap.Entries),
		Unresolved: snap.Unresolved,
		FetchedAt:  snap.FetchedAt,
	}
}

// snapshot returns wallet's current position snapshot. Every query marks the
// wallet as recently watched; a wallet seen for the first time is fetched now
// and added to the polling set.
func (s *PortfolioService) snapshot(ctx context.Context, wallet domain.Address) (*repository.PositionSnapshot, error) {
	if s.watcher != nil && s.watcher.Watch(wallet) {
		s.logger.InfoContext(ctx, "portfolio_service: watching wallet",
			slog.String("wallet", wallet.String()),
		)
	}
	if snap, ok := s.repo.Positions(wallet); ok {
		return snap, nil
	}
	snap, err := s.repo.RefreshPositions(ctx, wallet)
	if err != nil {
		return nil, fmt.Errorf("portfolio_service: load positions: %w", err)
	}
	return snap, nil
}

// MarketHistory returns recorded states of one market, newest first.
func (s *PortfolioService) MarketHistory(ctx context.Context, addr domain.Address, opts domain.ListOpts) ([]domain.MarketObservation, error) {
	if s.markets == nil {
		return nil, ErrHistoryDisabled
	}
	obs, err := s.markets.ListByMarket(ctx, addr, opts)
	if err != nil {
		return nil, fmt.Errorf("portfolio_service: market history: %w", err)
	}
	return obs, nil
}

// PortfolioHistory returns recorded statistics of one wallet, newest first.
func (s *PortfolioService) PortfolioHistory(ctx context.Context, wallet domain.Address, opts domain.ListOpts) ([]domain.PortfolioSnapshot, error) {
	if s.portfolios == nil {
		return nil, ErrHistoryDisabled
	}
	snaps, err := s.portfolios.ListByWallet(ctx, wallet, opts)
	if err != nil {
		return nil, fmt.Errorf("portfolio_service: portfolio history: %w", err)
	}
	return snaps, nil
}
