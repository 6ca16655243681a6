package domain

import (
	"fmt"

	"github.com/mr-tron/base58"
)

// AddressLen is the width of an on-chain account address (an ed25519 public key).
const AddressLen = 32

// Address identifies an account. Its text form is base58.
type Address [AddressLen]byte

// ParseAddress decodes a base58 address string.
func ParseAddress(s string) (Address, error) {
	raw, err := base58.Decode(s)
	if err != nil {
		return Address{}, fmt.Errorf("domain: parse address %q: %w", s, err)
	}
	if len(raw) != AddressLen {
		return Address{}, fmt.Errorf("domain: parse address %q: got %d bytes, want %d", s, len(raw), AddressLen)
	}
	var a Address
	copy(a[:], raw)
	return a, nil
}

// MustParseAddress is ParseAddress for constants and tests. It panics on error.
func MustParseAddress(s string) Address {
	a, err := ParseAddress(s)
	if err != nil {
		panic(err)
	}
	return a
}

// String returns the base58 form.
func (a Address) String() string {
	return base58.Encode(a[:])
}

// IsZero reports whether a is the all-zero address.
func (a Address) IsZero() bool {
	return a == Address{}
}

// MarshalText implements encoding.TextMarshaler.
func (a Address) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (a *Address) UnmarshalText(text []byte) error {
	parsed, err := ParseAddress(string(text))
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}
