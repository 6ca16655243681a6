// Package notify sends engine events to operators over Telegram and Discord.
// Only configured event types are forwarded.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/alanyoungcy/parimutuel/internal/domain"
	"github.com/alanyoungcy/parimutuel/internal/portfolio"
)

// Sender delivers one message to a channel.
type Sender interface {
	Send(ctx context.Context, title, message string) error
	Name() string
}

// Notifier fans a message out to every sender.
type Notifier struct {
	senders []Sender
	events  map[domain.EventType]bool
	logger  *slog.Logger
}

// NewNotifier creates a Notifier. An empty events list forwards every type.
func NewNotifier(senders []Sender, events []string, logger *slog.Logger) *Notifier {
	allowed := make(map[domain.EventType]bool, len(events))
	for _, e := range events {
		if e = strings.TrimSpace(e); e != "" {
			allowed[domain.EventType(e)] = true
		}
	}
	return &Notifier{
		senders: senders,
		events:  allowed,
		logger:  logger.With(slog.String("component", "notifier")),
	}
}

// NotifyEvent formats ev and sends it if its type is allowed.
func (n *Notifier) NotifyEvent(ctx context.Context, ev domain.Event) error {
	if len(n.events) > 0 && !n.events[ev.Type] {
		n.logger.DebugContext(ctx, "notify: event filtered out", slog.String("event", string(ev.Type)))
		return nil
	}
	title, message := Format(ev)
	return n.dispatch(ctx, title, message)
}

// NotifyAll sends a message regardless of the event filter.
func (n *Notifier) NotifyAll(ctx context.Context, title, message string) error {
	return n.dispatch(ctx, title, message)
}

// dispatch tries every sender; one failure does not stop the rest.
func (n *Notifier) dispatch(ctx context.Context, title, message string) error {
	var errs []string
	for _, s := range n.senders {
		if err := s.Send(ctx, title, message); err != nil {
			n.logger.ErrorContext(ctx, "notify: sender failed",
				slog.String("sender", s.Name()),
				slog.String("error", err.Error()),
			)
			errs = append(errs, fmt.Sprintf("%s: %v", s.Name(), err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("notify: %d sender(s) failed: %s", len(errs), strings.Join(errs, "; "))
	}
	return nil
}

// Format renders ev as a title and body.
func Format(ev domain.Event) (title, message string) {
	switch ev.Type {
	case domain.EventMarketResolved:
		return "Market resolved: " + ev.Outcome,
			fmt.Sprintf("%s\nmarket %s", ev.Question, ev.Market)
	case domain.EventPositionClaimable:
		return "Winnings ready to claim",
			fmt.Sprintf("%s SOL on %q\nwallet %s", portfolio.FormatSOL(ev.Amount), ev.Question, ev.Wallet)
	case domain.EventPositionClaimed:
		return "Winnings claimed",
			fmt.Sprintf("%s SOL on %q\nwallet %s", portfolio.FormatSOL(ev.Amount), ev.Question, ev.Wallet)
	case domain.EventActionUpdated:
		if ev.Action != nil {
			msg := fmt.Sprintf("%s %s on %s", ev.Action.Kind, ev.Action.State, ev.Action.Target)
			if ev.Action.Error != "" {
				msg += ": " + ev.Action.Error
			}
			return "Action " + string(ev.Action.State), msg
		}
	}
	return string(ev.Type), ev.At.Format("2006-01-02 15:04:05Z07:00")
}
