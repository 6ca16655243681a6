package domain

import "encoding/json"

// MaxQuestionLen is the longest question, in bytes, the program accepts.
const MaxQuestionLen = 200

// Outcome is the result of a market. It is a tagged option: Unset until the
// creator resolves the market, then Yes or No for good. It is never a plain
// bool because "not resolved yet" and "NO won" are different states.
type Outcome struct {
	set bool
	yes bool
}

var (
	// OutcomeUnset is the zero Outcome.
	OutcomeUnset = Outcome{}
	// OutcomeYes means the YES side won.
	OutcomeYes = Outcome{set: true, yes: true}
	// OutcomeNo means the NO side won.
	OutcomeNo = Outcome{set: true, yes: false}
)

// SomeOutcome builds a set Outcome from the winning side.
func SomeOutcome(yesWon bool) Outcome {
	return Outcome{set: true, yes: yesWon}
}

// Get returns the winning side and whether the outcome is set.
func (o Outcome) Get() (yesWon bool, ok bool) {
	return o.yes, o.set
}

// IsSet reports whether the outcome has been decided.
func (o Outcome) IsSet() bool { return o.set }

// String returns "YES", "NO" or "unset".
func (o Outcome) String() string {
	switch {
	case !o.set:
		return "unset"
	case o.yes:
		return "YES"
	default:
		return "NO"
	}
}

// MarshalJSON encodes an unset outcome as null and a set one as a boolean.
func (o Outcome) MarshalJSON() ([]byte, error) {
	if !o.set {
		return []byte("null"), nil
	}
	return json.Marshal(o.yes)
}

// UnmarshalJSON accepts null, true or false.
func (o *Outcome) UnmarshalJSON(data []byte) error {
	var v *bool
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	if v == nil {
		*o = OutcomeUnset
		return nil
	}
	*o = SomeOutcome(*v)
	return nil
}

// Market is one yes/no question as stored on chain. Pool amounts are in
// lamports.
type Market struct {
	Address        Address `json:"address"`
	Creator        Address `json:"creator"`
	MarketID       uint64  `json:"market_id,string"`
	Question       string  `json:"question"`
	ResolutionTime int64   `json:"resolution_time"`
	YesPool        uint64  `json:"yes_pool,string"`
	NoPool         uint64  `json:"no_pool,string"`
	Resolved       bool    `json:"resolved"`
	Outcome        Outcome `json:"outcome"`
	Bump           uint8   `json:"bump"`
}

// TotalPool returns yes+no, saturating at the uint64 maximum.
func (m Market) TotalPool() uint64 {
	t := m.YesPool + m.NoPool
	if t < m.YesPool {
		return ^uint64(0)
	}
	return t
}

// MarketPhase is the display lifecycle of a market.
type MarketPhase string

const (
	// MarketPhaseOpen accepts bets until the resolution time.
	MarketPhaseOpen MarketPhase = "open"
	// MarketPhasePending is past its resolution time and waits for the creator.
	MarketPhasePending MarketPhase = "pending"
	// MarketPhaseResolved has an outcome.
	MarketPhaseResolved MarketPhase = "resolved"
)
