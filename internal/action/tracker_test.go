package action

import (
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alanyoungcy/parimutuel/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestConfirmTriggersRefreshAndClears(t *testing.T) {
	var refreshes atomic.Int32
	tr := NewTracker(20*time.Millisecond, func() { refreshes.Add(1) }, testLogger())
	defer tr.Close()

	states := make(chan domain.ActionState, 8)
	tr.OnChange(func(a domain.PendingAction) { states <- a.State })

	a, err := tr.Submit(domain.ActionClaim, domain.Address{1}, domain.Address{2})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if a.State != domain.ActionSubmitting || a.ID == "" {
		t.Fatalf("submitted=%+v", a)
	}
	got, err := tr.Confirm(a.ID, "5sig")
	if err != nil {
		t.Fatalf("confirm: %v", err)
	}
	if got.State != domain.ActionConfirmed || got.Signature != "5sig" {
		t.Fatalf("confirmed=%+v", got)
	}
	if refreshes.Load() != 1 {
		t.Fatalf("refreshes=%d want 1", refreshes.Load())
	}

	want := []domain.ActionState{domain.ActionSubmitting, domain.ActionConfirmed, domain.ActionIdle}
	for _, w := range want {
		select {
		case s := <-states:
			if s != w {
				t.Fatalf("state=%s want %s", s, w)
			}
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for %s", w)
		}
	}
	if _, err := tr.Get(a.ID); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("cleared action still tracked: %v", err)
	}
}

func TestFailDoesNotRefresh(t *testing.T) {
	var refreshes atomic.Int32
	tr := NewTracker(time.Hour, func() { refreshes.Add(1) }, testLogger())
	defer tr.Close()

	a, _ := tr.Submit(domain.ActionPlaceBet, domain.Address{1}, domain.Address{2})
	got, err := tr.Fail(a.ID, "  ")
	if err != nil {
		t.Fatalf("fail: %v", err)
	}
	if got.State != domain.ActionFailed || got.Error != "transaction failed" {
		t.Fatalf("failed=%+v", got)
	}
	if refreshes.Load() != 0 {
		t.Fatalf("failed action triggered a refresh")
	}
	if len(tr.List()) != 1 {
		t.Fatalf("failed action not listed before the clear delay")
	}
}

func TestInvalidTransitions(t *testing.T) {
	tr := NewTracker(time.Hour, nil, testLogger())
	defer tr.Close()

	if _, err := tr.Confirm("missing", "sig"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("err=%v want ErrNotFound", err)
	}
	if _, err := tr.Submit("withdraw", domain.Address{}, domain.Address{}); err == nil {
		t.Fatalf("unknown kind accepted")
	}
	a, _ := tr.Submit(domain.ActionResolve, domain.Address{1}, domain.Address{2})
	if _, err := tr.Confirm(a.ID, "sig"); err != nil {
		t.Fatalf("confirm: %v", err)
	}
	if _, err := tr.Fail(a.ID, "late"); !errors.Is(err, domain.ErrInvalidTransition) {
		t.Fatalf("err=%v want ErrInvalidTransition", err)
	}
	if _, err := tr.Confirm(a.ID, "again"); !errors.Is(err, domain.ErrInvalidTransition) {
		t.Fatalf("err=%v want ErrInvalidTransition", err)
	}
}

func TestListOrder(t *testing.T) {
	tr := NewTracker(time.Hour, nil, testLogger())
	defer tr.Close()
	base := time.Unix(1_000, 0)
	n := 0
	tr.now = func() time.Time { n++; return base.Add(time.Duration(n) * time.Second) }

	first, _ := tr.Submit(domain.ActionCreateMarket, domain.Address{1}, domain.Address{9})
	second, _ := tr.Submit(domain.ActionPlaceBet, domain.Address{1}, domain.Address{9})
	list := tr.List()
	if len(list) != 2 || list[0].ID != first.ID || list[1].ID != second.ID {
		t.Fatalf("list=%+v", list)
	}
}

func TestPendingTimeoutExpiresToFailed(t *testing.T) {
	tr := NewTracker(time.Hour, nil, testLogger(), WithPendingTimeout(20*time.Millisecond))
	defer tr.Close()

	failed := make(chan domain.PendingAction, 1)
	tr.OnChange(func(a domain.PendingAction) {
		if a.State == domain.ActionFailed {
			failed <- a
		}
	})

	a, _ := tr.Submit(domain.ActionClaim, domain.Address{1}, domain.Address{2})
	select {
	case got := <-failed:
		if got.ID != a.ID || !strings.HasPrefix(got.Error, "expired") {
			t.Fatalf("failed=%+v", got)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("submitting action never expired")
	}
	if _, err := tr.Confirm(a.ID, "late"); !errors.Is(err, domain.ErrInvalidTransition) {
		t.Fatalf("err=%v want ErrInvalidTransition", err)
	}
}

func TestPendingTimeoutStoppedByConfirm(t *testing.T) {
	tr := NewTracker(time.Hour, nil, testLogger(), WithPendingTimeout(20*time.Millisecond))
	defer tr.Close()

	a, _ := tr.Submit(domain.ActionClaim, domain.Address{1}, domain.Address{2})
	if _, err := tr.Confirm(a.ID, "sig"); err != nil {
		t.Fatalf("confirm: %v", err)
	}
	time.Sleep(60 * time.Millisecond)
	got, err := tr.Get(a.ID)
	if err != nil || got.State != domain.ActionConfirmed {
		t.Fatalf("got=%+v err=%v want confirmed", got, err)
	}
}
