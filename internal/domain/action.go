package domain

import "time"

// ActionKind is a write the external transaction collaborator can perform.
type ActionKind string

const (
	ActionCreateMarket ActionKind = "create_market"
	ActionPlaceBet     ActionKind = "place_bet"
	ActionResolve      ActionKind = "resolve_market"
	ActionClaim        ActionKind = "claim_winnings"
)

// ValidActionKind reports whether k is a known action kind.
func ValidActionKind(k ActionKind) bool {
	switch k {
	case ActionCreateMarket, ActionPlaceBet, ActionResolve, ActionClaim:
		return true
	}
	return false
}

// ActionState is the state of one pending write as seen by the UI.
type ActionState string

const (
	ActionIdle       ActionState = "idle"
	ActionSubmitting ActionState = "submitting"
	ActionConfirmed  ActionState = "confirmed"
	ActionFailed     ActionState = "failed"
)

// PendingAction tracks a write from submission until its status message
// clears. Signature is the collaborator's confirmation token.
type PendingAction struct {
	ID        string      `json:"id"`
	Kind      ActionKind  `json:"kind"`
	Target    Address     `json:"target"`
	Wallet    Address     `json:"wallet"`
	State     ActionState `json:"state"`
	Signature string      `json:"signature,omitempty"`
	Error     string      `json:"error,omitempty"`
	CreatedAt time.Time   `json:"created_at"`
	UpdatedAt time.Time   `json:"updated_at"`
}
