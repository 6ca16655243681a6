package repository

import (
	"cmp"
	"slices"
	"time"

	"github.com/alanyoungcy/parimutuel/internal/domain"
)

// MarketSnapshot is an immutable view of every market seen by one refresh.
// Callers must not modify it or anything reachable from it.
type MarketSnapshot struct {
	Seq       uint64
	FetchedAt time.Time
	Skipped   int

	byAddr map[domain.Address]*domain.Market
	sorted []*domain.Market
}

func newMarketSnapshot(seq uint64, at time.Time, markets []domain.Market, skipped int) *MarketSnapshot {
	s := &MarketSnapshot{
		Seq:       seq,
		FetchedAt: at,
		Skipped:   skipped,
		byAddr:    make(map[domain.Address]*domain.Market, len(markets)),
		sorted:    make([]*domain.Market, 0, len(markets)),
	}
	for i := range markets {
		m := &markets[i]
		if _, dup := s.byAddr[m.Address]; dup {
			continue
		}
		s.byAddr[m.Address] = m
		s.sorted = append(s.sorted, m)
	}
	slices.SortFunc(s.sorted, func(a, b *domain.Market) int {
		if c := cmp.Compare(b.ResolutionTime, a.ResolutionTime); c != 0 {
			return c
		}
		return slices.Compare(a.Address[:], b.Address[:])
	})
	return s
}

// Len returns the number of markets.
func (s *MarketSnapshot) Len() int { return len(s.sorted) }

// Get returns the market at addr.
func (s *MarketSnapshot) Get(addr domain.Address) (*domain.Market, bool) {
	m, ok := s.byAddr[addr]
	return m, ok
}

// List returns the markets ordered by resolution time, latest first. The
// slice is shared; do not modify it.
func (s *MarketSnapshot) List() []*domain.Market { return s.sorted }

// PositionSnapshot is an immutable view of one wallet's positions, each paired
// with the market it referenced at refresh time.
type PositionSnapshot struct {
	// Seq orders refreshes; it is shared by all owners.
	Seq       uint64
	Owner     domain.Address
	FetchedAt time.Time
	Skipped   int
	// Unresolved counts entries whose market could not be found.
	Unresolved int

	Entries []domain.PositionEntry
}

// Get returns the entry for a position address.
func (s *PositionSnapshot) Get(addr domain.Address) (domain.PositionEntry, bool) {
	for _, e := range s.Entries {
		if e.Position.Address == addr {
			return e, true
		}
	}
	return domain.PositionEntry{}, false
}
