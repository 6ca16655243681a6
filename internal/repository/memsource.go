package repository

import (
	"context"
	"sync"

	"github.com/alanyoungcy/parimutuel/internal/domain"
)

// MemorySource is an AccountSource over a fixed set of accounts. Replay mode
// serves archived dumps through it.
type MemorySource struct {
	mu       sync.RWMutex
	order    []domain.Address
	accounts map[domain.Address][]byte
}

var _ domain.AccountSource = (*MemorySource)(nil)

// NewMemorySource creates a source holding accounts.
func NewMemorySource(accounts []domain.RawAccount) *MemorySource {
	s := &MemorySource{accounts: make(map[domain.Address][]byte, len(accounts))}
	for _, a := range accounts {
		s.Put(a.Address, a.Data)
	}
	return s
}

// Put adds or replaces an account.
func (s *MemorySource) Put(addr domain.Address, data []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.accounts[addr]; !ok {
		s.order = append(s.order, addr)
	}
	s.accounts[addr] = append([]byte(nil), data...)
}

// Len returns the number of accounts held.
func (s *MemorySource) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.order)
}

// ProgramAccounts returns the accounts matching every filter, in insertion
// order.
func (s *MemorySource) ProgramAccounts(ctx context.Context, filters []domain.AccountFilter) ([]domain.RawAccount, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.RawAccount
	for _, addr := range s.order {
		data := s.accounts[addr]
		if domain.MatchesAll(data, filters) {
			out = append(out, domain.RawAccount{Address: addr, Data: append([]byte(nil), data...)})
		}
	}
	return out, nil
}

// MultipleAccounts returns each address's data, or nil if absent.
func (s *MemorySource) MultipleAccounts(ctx context.Context, addrs []domain.Address) ([][]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([][]byte, len(addrs))
	for i, addr := range addrs {
		if data, ok := s.accounts[addr]; ok {
			out[i] = append([]byte(nil), data...)
		}
	}
	return out, nil
}
