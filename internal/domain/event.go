package domain

import "time"

// EventType names an engine event.
type EventType string

const (
	EventMarketResolved    EventType = "market_resolved"
	EventPositionClaimable EventType = "position_claimable"
	EventPositionClaimed   EventType = "position_claimed"
	EventActionUpdated     EventType = "action_updated"
	EventSnapshot          EventType = "snapshot_refreshed"
)

// Event is published on the signal bus and streamed to WebSocket clients.
// Fields that do not apply to Type are zero and omitted.
type Event struct {
	Type     EventType      `json:"type"`
	Market   Address        `json:"market,omitzero"`
	Wallet   Address        `json:"wallet,omitzero"`
	Position Address        `json:"position,omitzero"`
	Question string         `json:"question,omitempty"`
	Outcome  string         `json:"outcome,omitempty"`
	Amount   uint64         `json:"amount,omitempty,string"`
	Action   *PendingAction `json:"action,omitempty"`
	At       time.Time      `json:"at"`
}
