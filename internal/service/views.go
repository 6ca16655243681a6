package service

import (
	"time"

	"github.com/alanyoungcy/parimutuel/internal/domain"
	"github.com/alanyoungcy/parimutuel/internal/settlement"
)

// MarketView is a market with its derived display fields.
type MarketView struct {
	domain.Market
	TotalPool     uint64             `json:"total_pool,string"`
	Phase         domain.MarketPhase `json:"phase"`
	YesPercent    uint64             `json:"yes_percent"`
	TimeRemaining string             `json:"time_remaining"`
}

// NewMarketView derives the display fields of m at now.
func NewMarketView(m domain.Market, now time.Time) MarketView {
	return MarketView{
		Market:        m,
		TotalPool:     m.TotalPool(),
		Phase:         settlement.Phase(m, now),
		YesPercent:    settlement.YesPercent(m),
		TimeRemaining: settlement.TimeRemaining(m, now),
	}
}

// PositionView is a position with its market, derived status and payout.
// Payout is set only for winning positions.
type PositionView struct {
	Position domain.UserPosition   `json:"position"`
	Market   *MarketView           `json:"market"`
	Status   domain.PositionStatus `json:"status"`
	Invested uint64                `json:"invested,string"`
	Payout   *domain.Payout        `json:"payout,omitempty"`
	TimeInfo string                `json:"time_info,omitempty"`
}

// NewPositionView derives the view of e at now.
func NewPositionView(e domain.PositionEntry, now time.Time) PositionView {
	v := PositionView{
		Position: e.Position,
		Status:   settlement.Status(e.Position, e.Market),
		Invested: e.Position.Invested(),
		TimeInfo: settlement.PositionTimeInfo(e.Market, now),
	}
	if e.Market != nil {
		mv := NewMarketView(*e.Market, now)
		v.Market = &mv
	}
	if p, ok := settlement.Payout(e.Position, e.Market); ok {
		v.Payout = &p
	}
	return v
}

// PortfolioView is a wallet's aggregate statistics and tab sizes.
type PortfolioView struct {
	Wallet     domain.Address        `json:"wallet"`
	Stats      domain.PortfolioStats `json:"stats"`
	Counts     domain.TabCounts      `json:"counts"`
	Unresolved int                   `json:"unresolved"`
	FetchedAt  time.Time             `json:"fetched_at"`
}
