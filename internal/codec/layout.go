package codec

import "github.com/alanyoungcy/parimutuel/internal/domain"

// Market layout. Fields after the question are at variable offsets.
const (
	MarketCreatorOffset  = DiscriminatorLen
	MarketIDOffset       = MarketCreatorOffset + domain.AddressLen
	MarketQuestionOffset = MarketIDOffset + 8

	// MarketMinSize is a market with an empty question and an unset outcome.
	MarketMinSize = MarketQuestionOffset + 4 + 8 + 8 + 8 + 1 + 1 + 1
	// MarketMaxSize is the account allocation for a market.
	MarketMaxSize = MarketMinSize + domain.MaxQuestionLen + 1
)

// UserPosition layout.
const (
	PositionMarketOffset  = DiscriminatorLen
	PositionUserOffset    = PositionMarketOffset + domain.AddressLen
	PositionYesOffset     = PositionUserOffset + domain.AddressLen
	PositionNoOffset      = PositionYesOffset + 8
	PositionClaimedOffset = PositionNoOffset + 8
	PositionBumpOffset    = PositionClaimedOffset + 1

	UserPositionSize = PositionBumpOffset + 1
)
