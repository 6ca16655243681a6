package settlement

import (
	"fmt"
	"math/bits"
	"time"

	"github.com/alanyoungcy/parimutuel/internal/domain"
)

// Phase returns the display phase of m at now.
func Phase(m domain.Market, now time.Time) domain.MarketPhase {
	switch {
	case m.Resolved:
		return domain.MarketPhaseResolved
	case now.Unix() < m.ResolutionTime:
		return domain.MarketPhaseOpen
	default:
		return domain.MarketPhasePending
	}
}

// YesPercent is the integer share of the pool staked on YES, or 50 for an
// empty pool.
func YesPercent(m domain.Market) uint64 {
	yes, total := m.YesPool, m.YesPool+m.NoPool
	if total < m.YesPool {
		// Pools overflow 64 bits together; halve both to keep the ratio.
		yes, total = m.YesPool/2, m.YesPool/2+m.NoPool/2
	}
	if total == 0 {
		return 50
	}
	hi, lo := bits.Mul64(yes, 100)
	q, _ := bits.Div64(hi, lo, total)
	return q
}

// CanResolve reports whether signer may resolve m at now.
func CanResolve(m domain.Market, signer domain.Address, now time.Time) bool {
	return !m.Resolved && now.Unix() >= m.ResolutionTime && signer == m.Creator
}

// TimeRemaining labels the time until betting closes, or "Ended".
func TimeRemaining(m domain.Market, now time.Time) string {
	return timeLeft(m.ResolutionTime-now.Unix(), "Ended")
}

// PositionTimeInfo labels a position's market: empty once resolved or
// absent, "Pending resolution" after the close.
func PositionTimeInfo(m *domain.Market, now time.Time) string {
	if m == nil || m.Resolved {
		return ""
	}
	return timeLeft(m.ResolutionTime-now.Unix(), "Pending resolution")
}

func timeLeft(diff int64, ended string) string {
	switch {
	case diff <= 0:
		return ended
	case diff < 60:
		return fmt.Sprintf("%ds left", diff)
	case diff < 3600:
		return fmt.Sprintf("%dm left", diff/60)
	case diff < 86400:
		return fmt.Sprintf("%dh left", diff/3600)
	default:
		return fmt.Sprintf("%dd left", diff/86400)
	}
}
