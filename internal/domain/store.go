package domain

import (
	"context"
	"time"
)

// ListOpts provides pagination and filtering for list queries.
type ListOpts struct {
	Limit  int
	Offset int
	Since  *time.Time
	Until  *time.Time
}

// MarketObservation is one market state as seen by a refresh.
type MarketObservation struct {
	Market     Market
	ObservedAt time.Time
}

// MarketHistoryStore records market states whenever they change.
type MarketHistoryStore interface {
	InsertBatch(ctx context.Context, markets []Market, observedAt time.Time) error
	ListByMarket(ctx context.Context, market Address, opts ListOpts) ([]MarketObservation, error)
}

// PortfolioSnapshot is a wallet's stats at one point in time.
type PortfolioSnapshot struct {
	Wallet     Address
	Stats      PortfolioStats
	Counts     TabCounts
	ObservedAt time.Time
}

// PortfolioHistoryStore records wallet stats after each refresh.
type PortfolioHistoryStore interface {
	Insert(ctx context.Context, snap PortfolioSnapshot) error
	ListByWallet(ctx context.Context, wallet Address, opts ListOpts) ([]PortfolioSnapshot, error)
}

// AuditEntry is a single audit log row.
type AuditEntry struct {
	ID        int64          `json:"id"`
	Event     string         `json:"event"`
	Detail    map[string]any `json:"detail,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

// AuditStore persists an append-only audit log.
type AuditStore interface {
	Log(ctx context.Context, event string, detail map[string]any) error
	List(ctx context.Context, opts ListOpts) ([]AuditEntry, error)
}
