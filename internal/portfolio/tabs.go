package portfolio

import (
	"cmp"
	"slices"

	"github.com/alanyoungcy/parimutuel/internal/domain"
	"github.com/alanyoungcy/parimutuel/internal/settlement"
)

// InTab reports whether e belongs in tab.
func InTab(e domain.PositionEntry, tab domain.Tab) bool {
	resolved := e.Market != nil && e.Market.Resolved
	switch tab {
	case domain.TabActive:
		return !resolved
	case domain.TabResolved:
		return resolved
	case domain.TabClaimable:
		if !resolved || e.Position.Claimed {
			return false
		}
		winning, _, ok := settlement.Sides(e.Position, e.Market)
		return ok && winning > 0
	default:
		return true
	}
}

// Counts returns the size of every tab.
func Counts(entries []domain.PositionEntry) domain.TabCounts {
	c := domain.TabCounts{All: len(entries)}
	for _, e := range entries {
		if InTab(e, domain.TabActive) {
			c.Active++
		}
		if InTab(e, domain.TabResolved) {
			c.Resolved++
		}
		if InTab(e, domain.TabClaimable) {
			c.Claimable++
		}
	}
	return c
}

// Filter returns the entries in tab, preserving order.
func Filter(entries []domain.PositionEntry, tab domain.Tab) []domain.PositionEntry {
	out := make([]domain.PositionEntry, 0, len(entries))
	for _, e := range entries {
		if InTab(e, tab) {
			out = append(out, e)
		}
	}
	return out
}

// Sorted returns a copy of entries ordered by market resolution time, latest
// first. Entries without a market go last; ties break on position address.
func Sorted(entries []domain.PositionEntry) []domain.PositionEntry {
	out := slices.Clone(entries)
	slices.SortStableFunc(out, func(a, b domain.PositionEntry) int {
		switch {
		case a.Market == nil && b.Market == nil:
		case a.Market == nil:
			return 1
		case b.Market == nil:
			return -1
		default:
			if c := cmp.Compare(b.Market.ResolutionTime, a.Market.ResolutionTime); c != 0 {
				return c
			}
		}
		return slices.Compare(a.Position.Address[:], b.Position.Address[:])
	})
	return out
}
