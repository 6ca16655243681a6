// Package portfolio folds a wallet's positions into totals and tab counts.
package portfolio

import (
	"math/big"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/parimutuel/internal/domain"
	"github.com/alanyoungcy/parimutuel/internal/settlement"
)

// Aggregate computes portfolio totals in one pass. The result does not depend
// on the order of entries. Totals saturate at the uint64 maximum.
func Aggregate(entries []domain.PositionEntry) domain.PortfolioStats {
	var s domain.PortfolioStats
	for _, e := range entries {
		p := e.Position
		s.TotalInvested = satAdd(s.TotalInvested, p.Invested())

		if e.Market == nil || !e.Market.Resolved {
			s.ActivePositions++
			continue
		}
		winning, losing, ok := settlement.Sides(p, e.Market)
		if !ok {
			continue
		}
		if winning == 0 {
			s.TotalLost = satAdd(s.TotalLost, p.Invested())
			continue
		}
		payout, _ := settlement.Payout(p, e.Market)
		s.TotalWon = satAdd(s.TotalWon, payout.Profit)
		s.TotalLost = satAdd(s.TotalLost, losing)
		if p.Claimed {
			s.TotalClaimed = satAdd(s.TotalClaimed, payout.Gross)
		} else {
			s.ClaimablePositions++
		}
	}
	s.ROIPercent = ROI(s.TotalInvested, s.TotalWon, s.TotalLost)
	return s
}

// ROI is (won-lost)/invested as a percentage with two decimals, truncated
// toward zero. It is zero when nothing was invested.
func ROI(invested, won, lost uint64) decimal.Decimal {
	if invested == 0 {
		return decimal.Zero
	}
	net := new(big.Int).SetUint64(won)
	net.Sub(net, new(big.Int).SetUint64(lost))
	net.Mul(net, big.NewInt(10_000))
	net.Quo(net, new(big.Int).SetUint64(invested))
	return decimal.NewFromBigInt(net, -2)
}

func satAdd(a, b uint64) uint64 {
	if s := a + b; s >= a {
		return s
	}
	return ^uint64(0)
}
