package service

import (
	"time"

	"github.com/alanyoungcy/parimutuel/internal/domain"
	"github.com/alanyoungcy/parimutuel/internal/portfolio"
	"github.com/alanyoungcy/parimutuel/internal/repository"
	"github.com/alanyoungcy/parimutuel/internal/settlement"
)

// MarketTransitions returns a market_resolved event for every market that
// has an outcome in next but had none in prev. The first snapshot (prev
// with Seq 0) has nothing to compare against and yields no events.
func MarketTransitions(prev, next *repository.MarketSnapshot, at time.Time) []domain.Event {
	if prev == nil || prev.Seq == 0 || next == nil {
		return nil
	}
	var events []domain.Event
	for _, m := range next.List() {
		if !m.Resolved || !m.Outcome.IsSet() {
			continue
		}
		old, ok := prev.Get(m.Address)
		if ok && old.Resolved && old.Outcome.IsSet() {
			continue
		}
		events = append(events, domain.Event{
			Type:     domain.EventMarketResolved,
			Market:   m.Address,
			Question: m.Question,
			Outcome:  m.Outcome.String(),
			Amount:   m.TotalPool(),
			At:       at,
		})
	}
	return events
}

// ChangedMarkets returns the markets in next that are new or differ from
// prev.
func ChangedMarkets(prev, next *repository.MarketSnapshot) []domain.Market {
	if next == nil {
		return nil
	}
	var out []domain.Market
	for _, m := range next.List() {
		if prev != nil {
			if old, ok := prev.Get(m.Address); ok && *old == *m {
				continue
			}
		}
		out = append(out, *m)
	}
	return out
}

// PositionTransitions returns position_claimable for entries that entered
// the claimable tab and position_claimed for entries whose claimed flag was
// set since prev. A wallet's first snapshot yields no events.
func PositionTransitions(prev, next *repository.PositionSnapshot, at time.Time) []domain.Event {
	if prev == nil || next == nil {
		return nil
	}
	var events []domain.Event
	for _, e := range next.Entries {
		old, seen := prev.Get(e.Position.Address)
		ev := domain.Event{
			Market:   e.Position.Market,
			Wallet:   next.Owner,
			Position: e.Position.Address,
			At:       at,
		}
		if e.Market != nil {
			ev.Question = e.Market.Question
			ev.Outcome = e.Market.Outcome.String()
		}
		payout, _ := settlement.Payout(e.Position, e.Market)
		ev.Amount = payout.Gross

		switch {
		case portfolio.InTab(e, domain.TabClaimable) && !(seen && portfolio.InTab(old, domain.TabClaimable)):
			ev.Type = domain.EventPositionClaimable
		case e.Position.Claimed && seen && !old.Position.Claimed:
			ev.Type = domain.EventPositionClaimed
		default:
			continue
		}
		events = append(events, ev)
	}
	return events
}

// PortfolioChanged reports whether the wallet's statistics differ between
// prev and next. A first snapshot always counts as changed.
func PortfolioChanged(prev, next *repository.PositionSnapshot) bool {
	if prev == nil {
		return true
	}
	if portfolio.Counts(prev.Entries) != portfolio.Counts(next.Entries) {
		return true
	}
	return !sameStats(portfolio.Aggregate(prev.Entries), portfolio.Aggregate(next.Entries))
}

func sameStats(a, b domain.PortfolioStats) bool {
	return a.TotalInvested == b.TotalInvested &&
		a.TotalWon == b.TotalWon &&
		a.TotalClaimed == b.TotalClaimed &&
		a.TotalLost == b.TotalLost &&
		a.ROIPercent.Equal(b.ROIPercent) &&
		a.ActivePositions == b.ActivePositions &&
		a.ClaimablePositions == b.ClaimablePositions
}
