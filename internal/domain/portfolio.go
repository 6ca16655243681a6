package domain

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// PortfolioStats summarises a user's positions. All amounts are lamports.
// TotalWon is profit only; TotalClaimed includes the returned principal.
type PortfolioStats struct {
	TotalInvested      uint64          `json:"total_invested,string"`
	TotalWon           uint64          `json:"total_won,string"`
	TotalClaimed       uint64          `json:"total_claimed,string"`
	TotalLost          uint64          `json:"total_lost,string"`
	ROIPercent         decimal.Decimal `json:"roi_percent"`
	ActivePositions    int             `json:"active_positions"`
	ClaimablePositions int             `json:"claimable_positions"`
}

// Tab selects a subset of a position list.
type Tab string

const (
	TabAll       Tab = "all"
	TabActive    Tab = "active"
	TabResolved  Tab = "resolved"
	TabClaimable Tab = "claimable"
)

// ParseTab maps a query value to a Tab. The empty string is TabAll.
func ParseTab(s string) (Tab, error) {
	switch Tab(s) {
	case "", TabAll:
		return TabAll, nil
	case TabActive, TabResolved, TabClaimable:
		return Tab(s), nil
	default:
		return "", fmt.Errorf("domain: unknown tab %q (valid: all, active, resolved, claimable)", s)
	}
}

// TabCounts holds the size of every tab.
type TabCounts struct {
	All       int `json:"all"`
	Active    int `json:"active"`
	Resolved  int `json:"resolved"`
	Claimable int `json:"claimable"`
}

// Get returns the count for tab.
func (c TabCounts) Get(tab Tab) int {
	switch tab {
	case TabActive:
		return c.Active
	case TabResolved:
		return c.Resolved
	case TabClaimable:
		return c.Claimable
	default:
		return c.All
	}
}
