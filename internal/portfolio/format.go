package portfolio

import (
	"math/big"

	"github.com/shopspring/decimal"
)

// LamportsPerSOL is the number of lamports in one SOL.
const LamportsPerSOL = 1_000_000_000

var (
	oneCent = decimal.New(1, -2)
	one     = decimal.New(1, 0)
)

// ToSOL converts lamports to an exact SOL amount.
func ToSOL(lamports uint64) decimal.Decimal {
	return decimal.NewFromBigInt(new(big.Int).SetUint64(lamports), -9)
}

// FormatSOL renders lamports as SOL with precision that grows as the amount
// shrinks: 2 places from 1 SOL, 3 below it, 4 below 0.01.
func FormatSOL(lamports uint64) string {
	if lamports == 0 {
		return "0"
	}
	sol := ToSOL(lamports)
	switch {
	case sol.LessThan(oneCent):
		return sol.StringFixed(4)
	case sol.LessThan(one):
		return sol.StringFixed(3)
	default:
		return sol.StringFixed(2)
	}
}
