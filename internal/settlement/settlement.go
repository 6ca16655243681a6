// Package settlement computes position status and pari-mutuel payouts with
// the same integer arithmetic the market program uses on chain. Every
// function is pure and never fails: impossible pool states clamp the profit
// to zero instead of dividing by zero or overflowing.
package settlement

import (
	"math/bits"

	"github.com/alanyoungcy/parimutuel/internal/domain"
)

// Sides returns the user's stake on the winning and losing side of a resolved
// market. ok is false if the market is absent, unresolved, or has no outcome.
func Sides(p domain.UserPosition, m *domain.Market) (winning, losing uint64, ok bool) {
	if m == nil || !m.Resolved {
		return 0, 0, false
	}
	yesWon, set := m.Outcome.Get()
	if !set {
		return 0, 0, false
	}
	if yesWon {
		return p.YesAmount, p.NoAmount, true
	}
	return p.NoAmount, p.YesAmount, true
}

// Pools returns the winning and losing pool of a resolved market.
func Pools(m domain.Market) (winningPool, losingPool uint64, ok bool) {
	if !m.Resolved {
		return 0, 0, false
	}
	yesWon, set := m.Outcome.Get()
	if !set {
		return 0, 0, false
	}
	if yesWon {
		return m.YesPool, m.NoPool, true
	}
	return m.NoPool, m.YesPool, true
}

// Status classifies a position. A missing or unresolved market is active,
// as is a resolved market whose outcome was never written.
func Status(p domain.UserPosition, m *domain.Market) domain.PositionStatus {
	if m == nil || !m.Resolved {
		return domain.PositionStatusActive
	}
	if p.Claimed {
		return domain.PositionStatusClaimed
	}
	winning, _, ok := Sides(p, m)
	if !ok {
		return domain.PositionStatusActive
	}
	if winning == 0 {
		return domain.PositionStatusLost
	}
	return domain.PositionStatusWon
}

// Payout returns what a winning position receives on claim. ok is false when
// there is nothing to pay: unresolved, no outcome, or no winning stake.
// Claimed positions still report the amount they were paid.
func Payout(p domain.UserPosition, m *domain.Market) (domain.Payout, bool) {
	stake, _, ok := Sides(p, m)
	if !ok || stake == 0 {
		return domain.Payout{}, false
	}
	winningPool, losingPool, _ := Pools(*m)
	return PayoutFor(stake, winningPool, losingPool), true
}

// PayoutFor applies the pari-mutuel split to one winning stake.
func PayoutFor(stake, winningPool, losingPool uint64) domain.Payout {
	profit := Profit(stake, winningPool, losingPool)
	gross, carry := bits.Add64(stake, profit, 0)
	if carry != 0 {
		return domain.Payout{Gross: stake, Profit: 0}
	}
	return domain.Payout{Gross: gross, Profit: profit}
}

// Profit is floor(stake * losingPool / winningPool) computed in 128 bits.
// It is zero when either pool is empty or the quotient would not fit in 64
// bits, which only happens if stake exceeds winningPool.
func Profit(stake, winningPool, losingPool uint64) uint64 {
	if losingPool == 0 || winningPool == 0 || stake == 0 {
		return 0
	}
	hi, lo := bits.Mul64(stake, losingPool)
	if hi >= winningPool {
		return 0
	}
	q, _ := bits.Div64(hi, lo, winningPool)
	return q
}
