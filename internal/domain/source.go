package domain

import (
	"bytes"
	"context"
)

// RawAccount is an account address with its undecoded data.
type RawAccount struct {
	Address Address
	Data    []byte
}

// AccountFilter selects accounts whose data contains Bytes at Offset (a
// memcmp filter).
type AccountFilter struct {
	Offset int
	Bytes  []byte
}

// Matches reports whether data satisfies the filter.
func (f AccountFilter) Matches(data []byte) bool {
	if f.Offset < 0 || f.Offset+len(f.Bytes) > len(data) {
		return false
	}
	return bytes.Equal(data[f.Offset:f.Offset+len(f.Bytes)], f.Bytes)
}

// MatchesAll reports whether data satisfies every filter.
func MatchesAll(data []byte, filters []AccountFilter) bool {
	for _, f := range filters {
		if !f.Matches(data) {
			return false
		}
	}
	return true
}

// AccountSource supplies raw account bytes owned by the market program.
// Transport, retries and rate limiting are the implementation's concern.
// Failures are wrapped with ErrTransport.
type AccountSource interface {
	// ProgramAccounts returns every program account matching all filters.
	ProgramAccounts(ctx context.Context, filters []AccountFilter) ([]RawAccount, error)
	// MultipleAccounts returns the data of each address in order; a missing
	// account is a nil entry.
	MultipleAccounts(ctx context.Context, addrs []Address) ([][]byte, error)
}
