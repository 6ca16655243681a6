package codec

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"

	"github.com/alanyoungcy/parimutuel/internal/domain"
)

// DiscriminatorLen is the width of the type tag that prefixes every account.
const DiscriminatorLen = 8

// Discriminator is the leading tag that identifies an account type.
type Discriminator [DiscriminatorLen]byte

// DiscriminatorFor derives the tag for an account type name: the first eight
// bytes of sha256("account:<name>").
func DiscriminatorFor(name string) Discriminator {
	sum := sha256.Sum256([]byte("account:" + name))
	var d Discriminator
	copy(d[:], sum[:DiscriminatorLen])
	return d
}

// String returns the hex form.
func (d Discriminator) String() string {
	return hex.EncodeToString(d[:])
}

var (
	MarketDiscriminator       = DiscriminatorFor("Market")
	UserPositionDiscriminator = DiscriminatorFor("UserPosition")
)

// AccountKind names a decodable account type.
type AccountKind string

const (
	KindUnknown      AccountKind = "unknown"
	KindMarket       AccountKind = "market"
	KindUserPosition AccountKind = "user_position"
)

// KindOf classifies data by its discriminator.
func KindOf(data []byte) AccountKind {
	if len(data) < DiscriminatorLen {
		return KindUnknown
	}
	switch {
	case bytes.Equal(data[:DiscriminatorLen], MarketDiscriminator[:]):
		return KindMarket
	case bytes.Equal(data[:DiscriminatorLen], UserPositionDiscriminator[:]):
		return KindUserPosition
	default:
		return KindUnknown
	}
}

// MarketFilters selects every market account.
func MarketFilters() []domain.AccountFilter {
	return []domain.AccountFilter{{Offset: 0, Bytes: MarketDiscriminator[:]}}
}

// PositionFilters selects the position accounts owned by user.
func PositionFilters(user domain.Address) []domain.AccountFilter {
	return []domain.AccountFilter{
		{Offset: 0, Bytes: UserPositionDiscriminator[:]},
		{Offset: PositionUserOffset, Bytes: user[:]},
	}
}

