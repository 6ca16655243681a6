// Package memory provides in-process stand-ins for the Redis-backed
// collaborators, used when no Redis is configured.
package memory

import (
	"context"
	"path"
	"strconv"
	"strings"
	"sync"

	"github.com/alanyoungcy/parimutuel/internal/domain"
)

// DefaultStreamLen bounds each stream when NewSignalBus is given zero.
const DefaultStreamLen = 1000

// SignalBus is a process-local domain.SignalBus. Subscribers that fall
// behind lose messages rather than block publishers.
type SignalBus struct {
	maxLen int

	mu      sync.Mutex
	subs    map[*subscription]struct{}
	streams map[string]*stream
}

type subscription struct {
	pattern string
	ch      chan []byte
}

type stream struct {
	next    uint64
	entries []domain.StreamMessage
}

var _ domain.SignalBus = (*SignalBus)(nil)

// NewSignalBus creates a bus whose streams keep at most maxLen entries.
func NewSignalBus(maxLen int) *SignalBus {
	if maxLen <= 0 {
		maxLen = DefaultStreamLen
	}
	return &SignalBus{
		maxLen:  maxLen,
		subs:    make(map[*subscription]struct{}),
		streams: make(map[string]*stream),
	}
}

// Publish delivers payload to every subscription whose channel or glob
// pattern matches.
func (b *SignalBus) Publish(_ context.Context, channel string, payload []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for s := range b.subs {
		if !matches(s.pattern, channel) {
			continue
		}
		select {
		case s.ch <- payload:
		default:
		}
	}
	return nil
}

// Subscribe returns payloads published on channel until ctx is done.
func (b *SignalBus) Subscribe(ctx context.Context, channel string) (<-chan []byte, error) {
	s := &subscription{pattern: channel, ch: make(chan []byte, 128)}
	b.mu.Lock()
	b.subs[s] = struct{}{}
	b.mu.Unlock()

	go func() {
		<-ctx.Done()
		b.mu.Lock()
		delete(b.subs, s)
		close(s.ch)
		b.mu.Unlock()
	}()
	return s.ch, nil
}

// StreamAppend adds payload to stream, dropping the oldest entries beyond
// the bound.
func (b *SignalBus) StreamAppend(_ context.Context, name string, payload []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	st := b.streams[name]
	if st == nil {
		st = &stream{}
		b.streams[name] = st
	}
	st.next++
	st.entries = append(st.entries, domain.StreamMessage{
		ID:      strconv.FormatUint(st.next, 10) + "-0",
		Payload: payload,
	})
	if over := len(st.entries) - b.maxLen; over > 0 {
		st.entries = append(st.entries[:0:0], st.entries[over:]...)
	}
	return nil
}

// StreamRead returns up to count entries after lastID ("0" or "" for the
// start).
func (b *SignalBus) StreamRead(_ context.Context, name string, lastID string, count int) ([]domain.StreamMessage, error) {
	after := streamSeq(lastID)

	b.mu.Lock()
	defer b.mu.Unlock()
	st := b.streams[name]
	if st == nil {
		return nil, nil
	}
	var out []domain.StreamMessage
	for _, e := range st.entries {
		if streamSeq(e.ID) <= after {
			continue
		}
		out = append(out, e)
		if count > 0 && len(out) == count {
			break
		}
	}
	return out, nil
}

func streamSeq(id string) uint64 {
	head, _, _ := strings.Cut(id, "-")
	n, err := strconv.ParseUint(head, 10, 64)
	if err != nil {
		return 0
	}
	return n
}

func matches(pattern, channel string) bool {
	if !strings.ContainsAny(pattern, "*?[") {
		return pattern == channel
	}
	ok, err := path.Match(pattern, channel)
	return err == nil && ok
}
