package domain

// PositionStatus is the derived lifecycle state of a position. It is never
// stored; it is recomputed from the position and its market.
type PositionStatus string

const (
	PositionStatusActive  PositionStatus = "active"
	PositionStatusWon     PositionStatus = "won"
	PositionStatusLost    PositionStatus = "lost"
	PositionStatusClaimed PositionStatus = "claimed"
)

// UserPosition is one user's stake in one market. Amounts are in lamports.
type UserPosition struct {
	Address   Address `json:"address"`
	Market    Address `json:"market"`
	User      Address `json:"user"`
	YesAmount uint64  `json:"yes_amount,string"`
	NoAmount  uint64  `json:"no_amount,string"`
	Claimed   bool    `json:"claimed"`
	Bump      uint8   `json:"bump"`
}

// Invested returns yes+no, saturating at the uint64 maximum.
func (p UserPosition) Invested() uint64 {
	t := p.YesAmount + p.NoAmount
	if t < p.YesAmount {
		return ^uint64(0)
	}
	return t
}

// Payout is what a winning position receives on claim: its winning stake back
// plus Profit, a share of the losing pool.
type Payout struct {
	Gross  uint64 `json:"gross,string"`
	Profit uint64 `json:"profit,string"`
}

// PositionEntry pairs a position with its market. Market is nil while the
// market reference is unresolved.
type PositionEntry struct {
	Position UserPosition `json:"position"`
	Market   *Market      `json:"market"`
}
