// Package action tracks writes handed to the external wallet collaborator.
// Each write is a small state machine:
//
//	idle -> submitting -> confirmed -> idle
//	                   -> failed    -> idle
//
// Confirmed and failed are shown for the clear delay, then the action returns
// to idle and is forgotten. A submitting action that is neither confirmed nor
// failed within the pending timeout fails as expired. A confirmation triggers a repository refresh. The
// tracker never touches repository snapshots itself.
package action

import (
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/alanyoungcy/parimutuel/internal/domain"
)

// Listener observes every state change.
type Listener func(domain.PendingAction)

// Option configures a Tracker.
type Option func(*Tracker)

// WithPendingTimeout fails submitting actions that get no outcome within d.
// Zero keeps them until Confirm or Fail.
func WithPendingTimeout(d time.Duration) Option {
	return func(t *Tracker) { t.pendingTimeout = d }
}

// Tracker holds in-flight actions.
type Tracker struct {
	clearDelay     time.Duration
	pendingTimeout time.Duration
	refresh        func()
	logger     *slog.Logger
	now        func() time.Time

	mu        sync.Mutex
	actions   map[string]*domain.PendingAction
	timers    map[string]*time.Timer
	listeners []Listener
	closed    bool
}

// NewTracker creates a Tracker. refresh runs after each confirmation and may
// be nil.
func NewTracker(clearDelay time.Duration, refresh func(), logger *slog.Logger, opts ...Option) *Tracker {
	t := &Tracker{
		clearDelay: clearDelay,
		refresh:    refresh,
		logger:     logger.With(slog.String("component", "action_tracker")),
		now:        time.Now,
		actions:    make(map[string]*domain.PendingAction),
		timers:     make(map[string]*time.Timer),
	}
	for _, o := range opts {
		o(t)
	}
	return t
}

// OnChange registers fn for every transition.
func (t *Tracker) OnChange(fn Listener) {
	t.mu.Lock()
	t.listeners = append(t.listeners, fn)
	t.mu.Unlock()
}

// Submit records a new write as submitting.
func (t *Tracker) Submit(kind domain.ActionKind, target, wallet domain.Address) (domain.PendingAction, error) {
	if !domain.ValidActionKind(kind) {
		return domain.PendingAction{}, fmt.Errorf("action: submit: unknown kind %q", kind)
	}
	now := t.now().UTC()
	a := &domain.PendingAction{
		ID:        uuid.NewString(),
		Kind:      kind,
		Target:    target,
		Wallet:    wallet,
		State:     domain.ActionSubmitting,
		CreatedAt: now,
		UpdatedAt: now,
	}

	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return domain.PendingAction{}, fmt.Errorf("action: submit: tracker closed")
	}
	t.actions[a.ID] = a
	if t.pendingTimeout > 0 {
		id := a.ID
		t.timers[id] = time.AfterFunc(t.pendingTimeout, func() { t.expire(id) })
	}
	snapshot, listeners := *a, slices.Clone(t.listeners)
	t.mu.Unlock()

	t.logger.Info("action: submitted",
		slog.String("id", a.ID),
		slog.String("kind", string(kind)),
		slog.String("target", target.String()),
	)
	notify(listeners, snapshot)
	return snapshot, nil
}

// Confirm marks a submitting action confirmed with the collaborator's
// signature and triggers a refresh.
func (t *Tracker) Confirm(id, signature string) (domain.PendingAction, error) {
	a, err := t.finish(id, domain.ActionConfirmed, func(a *domain.PendingAction) {
		a.Signature = signature
	})
	if err != nil {
		return a, err
	}
	t.logger.Info("action: confirmed", slog.String("id", id), slog.String("signature", signature))
	if t.refresh != nil {
		t.refresh()
	}
	return a, nil
}

// Fail marks a submitting action failed.
func (t *Tracker) Fail(id, reason string) (domain.PendingAction, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		reason = "transaction failed"
	}
	a, err := t.finish(id, domain.ActionFailed, func(a *domain.PendingAction) {
		a.Error = reason
	})
	if err != nil {
		return a, err
	}
	t.logger.Warn("action: failed", slog.String("id", id), slog.String("error", reason))
	return a, nil
}

// expire fails an action still submitting after the pending timeout.
func (t *Tracker) expire(id string) {
	reason := fmt.Sprintf("expired: no outcome within %s", t.pendingTimeout)
	if _, err := t.finish(id, domain.ActionFailed, func(a *domain.PendingAction) {
		a.Error = reason
	}); err != nil {
		return
	}
	t.logger.Warn("action: expired", slog.String("id", id), slog.Duration("timeout", t.pendingTimeout))
}

func (t *Tracker) finish(id string, state domain.ActionState, apply func(*domain.PendingAction)) (domain.PendingAction, error) {
	t.mu.Lock()
	a, ok := t.actions[id]
	if !ok {
		t.mu.Unlock()
		return domain.PendingAction{}, fmt.Errorf("action: %s: %w", id, domain.ErrNotFound)
	}
	if a.State != domain.ActionSubmitting {
		cur := *a
		t.mu.Unlock()
		return cur, fmt.Errorf("action: %s: %s -> %s: %w", id, cur.State, state, domain.ErrInvalidTransition)
	}
	a.State = state
	a.UpdatedAt = t.now().UTC()
	apply(a)
	if tm, ok := t.timers[id]; ok {
		tm.Stop()
	}
	if !t.closed {
		t.timers[id] = time.AfterFunc(t.clearDelay, func() { t.clear(id) })
	}
	snapshot, listeners := *a, slices.Clone(t.listeners)
	t.mu.Unlock()

	notify(listeners, snapshot)
	return snapshot, nil
}

// clear returns a finished action to idle and drops it.
func (t *Tracker) clear(id string) {
	t.mu.Lock()
	a, ok := t.actions[id]
	if !ok {
		t.mu.Unlock()
		return
	}
	delete(t.actions, id)
	delete(t.timers, id)
	a.State = domain.ActionIdle
	a.UpdatedAt = t.now().UTC()
	snapshot, listeners := *a, slices.Clone(t.listeners)
	t.mu.Unlock()

	notify(listeners, snapshot)
}

// Get returns the action with id.
func (t *Tracker) Get(id string) (domain.PendingAction, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	a, ok := t.actions[id]
	if !ok {
		return domain.PendingAction{}, fmt.Errorf("action: %s: %w", id, domain.ErrNotFound)
	}
	return *a, nil
}

// List returns every tracked action, oldest first.
func (t *Tracker) List() []domain.PendingAction {
	t.mu.Lock()
	out := make([]domain.PendingAction, 0, len(t.actions))
	for _, a := range t.actions {
		out = append(out, *a)
	}
	t.mu.Unlock()
	slices.SortFunc(out, func(a, b domain.PendingAction) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
	return out
}

// Close stops pending clear timers. Further submissions fail.
func (t *Tracker) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closed = true
	for id, tm := range t.timers {
		tm.Stop()
		delete(t.timers, id)
	}
	return nil
}

func notify(listeners []Listener, a domain.PendingAction) {
	for _, fn := range listeners {
		fn(a)
	}
}
