package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/parimutuel/internal/domain"
)

// PortfolioStore implements domain.PortfolioHistoryStore using PostgreSQL.
type PortfolioStore struct {
	pool *pgxpool.Pool
}

// NewPortfolioStore creates a PortfolioStore backed by pool.
func NewPortfolioStore(pool *pgxpool.Pool) *PortfolioStore {
	return &PortfolioStore{pool: pool}
}

// Insert records one wallet snapshot.
func (s *PortfolioStore) Insert(ctx context.Context, snap domain.PortfolioSnapshot) error {
	const query = `
		INSERT INTO portfolio_history (
			wallet, total_invested, total_won, total_claimed, total_lost, roi_percent,
			active_positions, claimable_positions,
			tab_all, tab_active, tab_resolved, tab_claimable, observed_at
		) VALUES ($1, $2::numeric, $3::numeric, $4::numeric, $5::numeric, $6::numeric,
			$7, $8, $9, $10, $11, $12, $13)`

	st := snap.Stats
	_, err := s.pool.Exec(ctx, query,
		snap.Wallet.String(),
		numeric(st.TotalInvested), numeric(st.TotalWon), numeric(st.TotalClaimed), numeric(st.TotalLost),
		st.ROIPercent.StringFixed(2),
		st.ActivePositions, st.ClaimablePositions,
		snap.Counts.All, snap.Counts.Active, snap.Counts.Resolved, snap.Counts.Claimable,
		snap.ObservedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: insert portfolio snapshot %s: %w", snap.Wallet, err)
	}
	return nil
}

// ListByWallet returns the snapshots of one wallet, newest first.
func (s *PortfolioStore) ListByWallet(ctx context.Context, wallet domain.Address, opts domain.ListOpts) ([]domain.PortfolioSnapshot, error) {
	query, args := listQuery(`
		SELECT id, total_invested::text, total_won::text, total_claimed::text, total_lost::text,
		       roi_percent::text, active_positions, claimable_positions,
		       tab_all, tab_active, tab_resolved, tab_claimable, observed_at
		FROM portfolio_history WHERE wallet = $1`,
		[]any{wallet.String()}, "observed_at", opts)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list portfolio history %s: %w", wallet, err)
	}
	defer rows.Close()

	var out []domain.PortfolioSnapshot
	for rows.Next() {
		var (
			id                           int64
			invested, won, claimed, lost string
			roi                          string
			snap                         = domain.PortfolioSnapshot{Wallet: wallet}
		)
		st := &snap.Stats
		if err := rows.Scan(&id, &invested, &won, &claimed, &lost, &roi,
			&st.ActivePositions, &st.ClaimablePositions,
			&snap.Counts.All, &snap.Counts.Active, &snap.Counts.Resolved, &snap.Counts.Claimable,
			&snap.ObservedAt); err != nil {
			return nil, fmt.Errorf("postgres: scan portfolio snapshot: %w", err)
		}
		if st.TotalInvested, err = parseNumeric("total_invested", invested); err != nil {
			return nil, err
		}
		if st.TotalWon, err = parseNumeric("total_won", won); err != nil {
			return nil, err
		}
		if st.TotalClaimed, err = parseNumeric("total_claimed", claimed); err != nil {
			return nil, err
		}
		if st.TotalLost, err = parseNumeric("total_lost", lost); err != nil {
			return nil, err
		}
		if st.ROIPercent, err = decimal.NewFromString(roi); err != nil {
			return nil, fmt.Errorf("postgres: parse roi_percent %q (row %d): %w", roi, id, err)
		}
		out = append(out, snap)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list portfolio history rows: %w", err)
	}
	return out, nil
}
