package pipeline

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alanyoungcy/parimutuel/internal/codec"
	"github.com/alanyoungcy/parimutuel/internal/domain"
	"github.com/alanyoungcy/parimutuel/internal/repository"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type countingRefresher struct {
	mu        sync.Mutex
	markets   int
	positions map[domain.Address]int
	failFor   domain.Address
	forgotten []domain.Address
	ran       chan struct{}
}

func newCountingRefresher() *countingRefresher {
	return &countingRefresher{positions: map[domain.Address]int{}, ran: make(chan struct{}, 16)}
}

func (c *countingRefresher) RefreshMarkets(context.Context) (*repository.MarketSnapshot, error) {
	c.mu.Lock()
	c.markets++
	c.mu.Unlock()
	select {
	case c.ran <- struct{}{}:
	default:
	}
	return nil, nil
}

func (c *countingRefresher) RefreshPositions(_ context.Context, owner domain.Address) (*repository.PositionSnapshot, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.positions[owner]++
	if owner == c.failFor {
		return nil, domain.ErrTransport
	}
	return nil, nil
}

func (c *countingRefresher) Forget(owner domain.Address) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.forgotten = append(c.forgotten, owner)
}

func TestPollerRunRefreshesEveryWallet(t *testing.T) {
	r := newCountingRefresher()
	r.failFor = domain.Address{2}
	p := NewPoller(r, time.Hour, true, 2, testLogger())
	for i := byte(1); i <= 3; i++ {
		p.Watch(domain.Address{i})
	}
	if p.Watch(domain.Address{1}) {
		t.Fatalf("duplicate watch reported as new")
	}

	err := p.Run(context.Background())
	if !errors.Is(err, domain.ErrTransport) {
		t.Fatalf("err=%v want ErrTransport", err)
	}
	if r.markets != 1 {
		t.Fatalf("market refreshes=%d want 1", r.markets)
	}
	for i := byte(1); i <= 3; i++ {
		if r.positions[domain.Address{i}] != 1 {
			t.Fatalf("wallet %d refreshed %d times", i, r.positions[domain.Address{i}])
		}
	}
	st := p.Status()
	if st.Cycles != 1 || st.Wallets != 3 || !strings.Contains(st.LastError, "transport") {
		t.Fatalf("status=%+v", st)
	}
}

func TestPollerRunLoopRunsImmediatelyAndOnTrigger(t *testing.T) {
	r := newCountingRefresher()
	p := NewPoller(r, time.Hour, true, 1, testLogger())
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- p.RunLoop(ctx) }()

	wait := func(what string) {
		select {
		case <-r.ran:
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for %s", what)
		}
	}
	wait("initial cycle")
	p.Trigger()
	wait("triggered cycle")

	cancel()
	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Fatalf("loop err=%v", err)
	}
}

func TestPollerDrivesRepository(t *testing.T) {
	wallet := domain.Address{9}
	market, _ := codec.EncodeMarket(domain.Market{Question: "q", ResolutionTime: 5})
	src := repository.NewMemorySource([]domain.RawAccount{
		{Address: domain.Address{1}, Data: market},
		{Address: domain.Address{2}, Data: codec.EncodeUserPosition(domain.UserPosition{Market: domain.Address{1}, User: wallet, YesAmount: 4})},
	})
	repo := repository.New(src, testLogger())
	p := NewPoller(repo, time.Hour, true, 4, testLogger())
	p.Watch(wallet)

	if err := p.Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}
	if repo.Markets().Len() != 1 {
		t.Fatalf("markets=%d", repo.Markets().Len())
	}
	snap, ok := repo.Positions(wallet)
	if !ok || len(snap.Entries) != 1 || snap.Entries[0].Market == nil {
		t.Fatalf("positions not refreshed: %+v", snap)
	}
}

type fakeArchiver struct {
	calls int
}

func (f *fakeArchiver) ArchiveAccounts(context.Context, time.Time) (string, int, error) {
	f.calls++
	return "dumps/x.jsonl", 3, nil
}

type fakeLocks struct {
	held bool
}

func (f *fakeLocks) Acquire(context.Context, string, time.Duration) (func(), error) {
	if f.held {
		return nil, domain.ErrLockHeld
	}
	f.held = true
	return func() { f.held = false }, nil
}

func TestArchiverSkipsWhenLockHeld(t *testing.T) {
	fa := &fakeArchiver{}
	locks := &fakeLocks{}
	a := NewArchiver(fa, locks, time.Minute, testLogger())

	if err := a.Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}
	if err := a.Run(context.Background()); err != nil {
		t.Fatalf("second run: %v", err)
	}
	if fa.calls != 1 {
		t.Fatalf("archive calls=%d want 1", fa.calls)
	}
}

func TestPollerWatchEvictsLeastRecentlyUsed(t *testing.T) {
	r := newCountingRefresher()
	p := NewPoller(r, time.Hour, false, 1, testLogger(), WithMaxWallets(2))
	pinned := domain.Address{100}
	p.Pin(pinned)

	p.Watch(domain.Address{1})
	p.Watch(domain.Address{2})
	p.Watch(domain.Address{1}) // 2 is now the least recently used
	if !p.Watch(domain.Address{3}) {
		t.Fatalf("new wallet reported as known")
	}

	got := p.Wallets()
	want := []domain.Address{{1}, {3}, pinned}
	if len(got) != len(want) {
		t.Fatalf("got=%v want=%v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got=%v want=%v", got, want)
		}
	}
	if len(r.forgotten) != 1 || r.forgotten[0] != (domain.Address{2}) {
		t.Fatalf("forgotten=%v want=[%v]", r.forgotten, domain.Address{2})
	}
	if st := p.Status(); st.Evicted != 1 || st.Wallets != 3 {
		t.Fatalf("status=%+v", st)
	}
}

func TestPollerWatchStaysWithinCap(t *testing.T) {
	r := newCountingRefresher()
	const limit = 16
	p := NewPoller(r, time.Hour, false, 1, testLogger(), WithMaxWallets(limit))
	for i := 0; i < 10_000; i++ {
		var a domain.Address
		a[0], a[1] = byte(i), byte(i>>8)
		p.Watch(a)
	}
	if got := len(p.Wallets()); got != limit {
		t.Fatalf("got=%d want=%d", got, limit)
	}
	if got := len(r.forgotten); got != 10_000-limit {
		t.Fatalf("forgotten=%d want=%d", got, 10_000-limit)
	}
}

func TestPollerPinPromotesWatchedWallet(t *testing.T) {
	r := newCountingRefresher()
	p := NewPoller(r, time.Hour, false, 1, testLogger(), WithMaxWallets(1))
	p.Watch(domain.Address{1})
	p.Pin(domain.Address{1})
	p.Watch(domain.Address{2})
	p.Watch(domain.Address{3})

	got := p.Wallets()
	if len(got) != 2 || got[0] != (domain.Address{1}) || got[1] != (domain.Address{3}) {
		t.Fatalf("got=%v want=[%v %v]", got, domain.Address{1}, domain.Address{3})
	}
}
