package codec

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/alanyoungcy/parimutuel/internal/domain"
)

func addr(b byte) domain.Address {
	var a domain.Address
	for i := range a {
		a[i] = b
	}
	return a
}

func sampleMarket() domain.Market {
	return domain.Market{
		Address:        addr(9),
		Creator:        addr(1),
		MarketID:       42,
		Question:       "Will SOL close above $200 on Friday?",
		ResolutionTime: 1_735_689_600,
		YesPool:        6_000_000_000,
		NoPool:         4_000_000_000,
		Resolved:       true,
		Outcome:        domain.OutcomeYes,
		Bump:           254,
	}
}

func samplePosition() domain.UserPosition {
	return domain.UserPosition{
		Address:   addr(7),
		Market:    addr(9),
		User:      addr(3),
		YesAmount: 1_000_000_000,
		NoAmount:  0,
		Claimed:   false,
		Bump:      253,
	}
}

func TestDiscriminators(t *testing.T) {
	if got := MarketDiscriminator.String(); got != "dbbed53700e3c69a" {
		t.Fatalf("market discriminator=%s want dbbed53700e3c69a", got)
	}
	if got := UserPositionDiscriminator.String(); got != "fbf8d1f553ea111b" {
		t.Fatalf("position discriminator=%s want fbf8d1f553ea111b", got)
	}
}

func TestMarketRoundTrip(t *testing.T) {
	for _, outcome := range []domain.Outcome{domain.OutcomeUnset, domain.OutcomeYes, domain.OutcomeNo} {
		want := sampleMarket()
		want.Outcome = outcome
		want.Resolved = outcome.IsSet()
		data, err := EncodeMarket(want)
		if err != nil {
			t.Fatalf("encode: %v", err)
		}
		got, err := DecodeMarket(want.Address, data)
		if err != nil {
			t.Fatalf("decode outcome=%s: %v", outcome, err)
		}
		if got != want {
			t.Fatalf("outcome=%s got=%+v want=%+v", outcome, got, want)
		}
	}
}

func TestUserPositionRoundTrip(t *testing.T) {
	want := samplePosition()
	data := EncodeUserPosition(want)
	if len(data) != UserPositionSize {
		t.Fatalf("len=%d want %d", len(data), UserPositionSize)
	}
	got, err := DecodeUserPosition(want.Address, data)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got != want {
		t.Fatalf("got=%+v want=%+v", got, want)
	}
}

func TestDecodeIsIdempotent(t *testing.T) {
	data, err := EncodeMarket(sampleMarket())
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	a, errA := DecodeMarket(addr(9), data)
	b, errB := DecodeMarket(addr(9), data)
	if errA != nil || errB != nil {
		t.Fatalf("errA=%v errB=%v", errA, errB)
	}
	if a != b {
		t.Fatalf("decodes differ: %+v vs %+v", a, b)
	}
}

func TestDecodeAllowsTrailingBytes(t *testing.T) {
	data, _ := EncodeMarket(sampleMarket())
	padded := make([]byte, MarketMaxSize+16)
	copy(padded, data)
	got, err := DecodeMarket(addr(9), padded)
	if err != nil {
		t.Fatalf("decode padded: %v", err)
	}
	if got.Question != sampleMarket().Question {
		t.Fatalf("question=%q", got.Question)
	}
}

func TestUserFieldOffset(t *testing.T) {
	p := samplePosition()
	data := EncodeUserPosition(p)
	if !bytes.Equal(data[PositionUserOffset:PositionUserOffset+domain.AddressLen], p.User[:]) {
		t.Fatalf("user not at offset %d", PositionUserOffset)
	}
	if !domain.MatchesAll(data, PositionFilters(p.User)) {
		t.Fatalf("position filters do not match own bytes")
	}
	if domain.MatchesAll(data, PositionFilters(addr(4))) {
		t.Fatalf("position filters match a foreign wallet")
	}
}

func TestDecodeMalformed(t *testing.T) {
	good, _ := EncodeMarket(sampleMarket())
	questionEnd := MarketQuestionOffset + 4 + len(sampleMarket().Question)
	resolvedOff := questionEnd + 24

	mutate := func(f func(b []byte) []byte) []byte {
		b := append([]byte(nil), good...)
		return f(b)
	}

	cases := []struct {
		name string
		data []byte
		kind ErrorKind
	}{
		{"empty", nil, ErrShort},
		{"short discriminator", good[:5], ErrShort},
		{"wrong discriminator", EncodeUserPosition(samplePosition()), ErrDiscriminator},
		{"truncated length prefix", good[:MarketQuestionOffset+2], ErrShort},
		{"string overruns buffer", mutate(func(b []byte) []byte {
			b[MarketQuestionOffset] = 0xff
			b[MarketQuestionOffset+1] = 0xff
			return b
		}), ErrStringLength},
		{"string over max", func() []byte {
			m := sampleMarket()
			m.Question = strings.Repeat("x", domain.MaxQuestionLen)
			b, _ := EncodeMarket(m)
			b[MarketQuestionOffset] = domain.MaxQuestionLen + 1
			return append(b, 0)
		}(), ErrStringLength},
		{"invalid utf8", mutate(func(b []byte) []byte {
			b[MarketQuestionOffset+4] = 0xff
			return b
		}), ErrInvalidUTF8},
		{"resolved not bool", mutate(func(b []byte) []byte {
			b[resolvedOff] = 2
			return b
		}), ErrInvalidBool},
		{"bad option tag", mutate(func(b []byte) []byte {
			b[resolvedOff+1] = 7
			return b
		}), ErrInvalidOption},
		{"option value not bool", mutate(func(b []byte) []byte {
			b[resolvedOff+2] = 3
			return b
		}), ErrInvalidBool},
		{"missing bump", good[:len(good)-1], ErrShort},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := DecodeMarket(addr(9), tc.data)
			if err == nil {
				t.Fatalf("expected error")
			}
			if !errors.Is(err, domain.ErrMalformedAccount) {
				t.Fatalf("err=%v is not ErrMalformedAccount", err)
			}
			var de *DecodeError
			if !errors.As(err, &de) {
				t.Fatalf("err=%T want *DecodeError", err)
			}
			if de.Kind != tc.kind {
				t.Fatalf("kind=%s want %s (%v)", de.Kind, tc.kind, err)
			}
		})
	}
}

func TestDecodeUserPositionMalformed(t *testing.T) {
	good := EncodeUserPosition(samplePosition())
	bad := append([]byte(nil), good...)
	bad[PositionClaimedOffset] = 9
	if _, err := DecodeUserPosition(addr(7), bad); !errors.Is(err, domain.ErrMalformedAccount) {
		t.Fatalf("claimed=9: err=%v", err)
	}
	if _, err := DecodeUserPosition(addr(7), good[:PositionClaimedOffset]); !errors.Is(err, domain.ErrMalformedAccount) {
		t.Fatalf("truncated: err=%v", err)
	}
	market, _ := EncodeMarket(sampleMarket())
	if _, err := DecodeUserPosition(addr(7), market); !errors.Is(err, domain.ErrMalformedAccount) {
		t.Fatalf("market bytes: err=%v", err)
	}
}

func TestEncodeMarketRejectsLongQuestion(t *testing.T) {
	m := sampleMarket()
	m.Question = strings.Repeat("q", domain.MaxQuestionLen+1)
	if _, err := EncodeMarket(m); err == nil {
		t.Fatalf("expected error")
	}
}

func TestKindOf(t *testing.T) {
	market, _ := EncodeMarket(sampleMarket())
	if k := KindOf(market); k != KindMarket {
		t.Fatalf("kind=%s", k)
	}
	if k := KindOf(EncodeUserPosition(samplePosition())); k != KindUserPosition {
		t.Fatalf("kind=%s", k)
	}
	if k := KindOf([]byte{1, 2, 3}); k != KindUnknown {
		t.Fatalf("kind=%s", k)
	}
}
