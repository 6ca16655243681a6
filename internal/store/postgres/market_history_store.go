package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/parimutuel/internal/domain"
)

// MarketHistoryStore implements domain.MarketHistoryStore using PostgreSQL.
type MarketHistoryStore struct {
	pool *pgxpool.Pool
}

// NewMarketHistoryStore creates a MarketHistoryStore backed by pool.
func NewMarketHistoryStore(pool *pgxpool.Pool) *MarketHistoryStore {
	return &MarketHistoryStore{pool: pool}
}

const insertMarketObservation = `
	INSERT INTO market_history (
		address, creator, market_id, question, resolution_time,
		yes_pool, no_pool, resolved, outcome, observed_at
	) VALUES ($1, $2, $3::numeric, $4, $5, $6::numeric, $7::numeric, $8, $9, $10)`

// InsertBatch records one observation per market in a single round trip.
func (s *MarketHistoryStore) InsertBatch(ctx context.Context, markets []domain.Market, observedAt time.Time) error {
	if len(markets) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, m := range markets {
		batch.Queue(insertMarketObservation,
			m.Address.String(), m.Creator.String(), numeric(m.MarketID), m.Question,
			m.ResolutionTime, numeric(m.YesPool), numeric(m.NoPool), m.Resolved,
			outcomeValue(m.Outcome), observedAt)
	}

	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()
	for _, m := range markets {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("postgres: insert market observation %s: %w", m.Address, err)
		}
	}
	return nil
}

// ListByMarket returns the observations of one market, newest first.
func (s *MarketHistoryStore) ListByMarket(ctx context.Context, market domain.Address, opts domain.ListOpts) ([]domain.MarketObservation, error) {
	query, args := listQuery(`
		SELECT id, address, creator, market_id::text, question, resolution_time,
		       yes_pool::text, no_pool::text, resolved, outcome, observed_at
		FROM market_history WHERE address = $1`,
		[]any{market.String()}, "observed_at", opts)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list market history %s: %w", market, err)
	}
	defer rows.Close()

	var out []domain.MarketObservation
	for rows.Next() {
		obs, err := scanMarketObservation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, obs)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list market history rows: %w", err)
	}
	return out, nil
}

func scanMarketObservation(rows pgx.Rows) (domain.MarketObservation, error) {
	var (
		id                        int64
		addr, creator             string
		marketID, yesPool, noPool string
		outcome                   *bool
		obs                       domain.MarketObservation
	)
	m := &obs.Market
	if err := rows.Scan(&id, &addr, &creator, &marketID, &m.Question, &m.ResolutionTime,
		&yesPool, &noPool, &m.Resolved, &outcome, &obs.ObservedAt); err != nil {
		return obs, fmt.Errorf("postgres: scan market observation: %w", err)
	}

	var err error
	if m.Address, err = domain.ParseAddress(addr); err != nil {
		return obs, fmt.Errorf("postgres: market observation %d: %w", id, err)
	}
	if m.Creator, err = domain.ParseAddress(creator); err != nil {
		return obs, fmt.Errorf("postgres: market observation %d: %w", id, err)
	}
	if m.MarketID, err = parseNumeric("market_id", marketID); err != nil {
		return obs, err
	}
	if m.YesPool, err = parseNumeric("yes_pool", yesPool); err != nil {
		return obs, err
	}
	if m.NoPool, err = parseNumeric("no_pool", noPool); err != nil {
		return obs, err
	}
	if outcome != nil {
		m.Outcome = domain.SomeOutcome(*outcome)
	}
	return obs, nil
}

// outcomeValue maps an unset outcome to SQL NULL.
func outcomeValue(o domain.Outcome) *bool {
	yes, ok := o.Get()
	if !ok {
		return nil
	}
	return &yes
}
