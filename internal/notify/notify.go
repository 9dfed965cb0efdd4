// Package notify delivers human-readable status notifications about wallet
// connections and contract invocations to logs and message channels.
package notify

import (
	"context"
	"errors"
	"log/slog"
	"time"

	xerrors "WalletBridge/internal/errors"
)

// Kind classifies a notification.
type Kind string

const (
	KindWalletConnected     Kind = "wallet.connected"
	KindWalletConnectFailed Kind = "wallet.connect_failed"
	KindTxSubmitted         Kind = "contract.submitted"
	KindTxConfirmed         Kind = "contract.confirmed"
	KindTxFailed            Kind = "contract.failed"
)

// Event is a single status notification.
type Event struct {
	Kind         Kind              `json:"kind"`
	Message      string            `json:"message"`
	Severity     xerrors.Severity  `json:"severity"`
	Code         xerrors.Code      `json:"code,omitempty"`
	Accounts     []string          `json:"accounts,omitempty"`
	InvocationID string            `json:"invocation_id,omitempty"`
	TxHash       string            `json:"tx_hash,omitempty"`
	Metadata     map[string]string `json:"metadata,omitempty"`
	OccurredAt   time.Time         `json:"occurred_at"`
}

// Notifier delivers events to one destination.
type Notifier interface {
	Notify(ctx context.Context, event Event) error
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(ctx context.Context, event Event) error

// Notify implements Notifier.
func (f NotifierFunc) Notify(ctx context.Context, event Event) error {
	return f(ctx, event)
}

// Nop discards every event.
var Nop Notifier = NotifierFunc(func(context.Context, Event) error { return nil })

// Fanout broadcasts events to several notifiers and joins their errors.
type Fanout struct {
	notifiers []Notifier
}

// NewFanout skips nil notifiers.
func NewFanout(notifiers ...Notifier) *Fanout {
	list := make([]Notifier, 0, len(notifiers))
	for _, n := range notifiers {
		if n != nil {
			list = append(list, n)
		}
	}
	return &Fanout{notifiers: list}
}

// Notify implements Notifier.
func (f *Fanout) Notify(ctx context.Context, event Event) error {
	if f == nil {
		return nil
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now().UTC()
	}
	var errs error
	for _, n := range f.notifiers {
		if err := n.Notify(ctx, event); err != nil {
			errs = errors.Join(errs, err)
		}
	}
	return errs
}

// LogNotifier writes events to a structured logger.
type LogNotifier struct {
	logger *slog.Logger
}

// NewLogNotifier falls back to slog.Default when logger is nil.
func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogNotifier{logger: logger}
}

// Notify implements Notifier.
func (n *LogNotifier) Notify(ctx context.Context, event Event) error {
	attrs := []slog.Attr{slog.String("kind", string(event.Kind))}
	if event.Code != "" {
		attrs = append(attrs, slog.String("code", string(event.Code)))
	}
	if len(event.Accounts) > 0 {
		attrs = append(attrs, slog.Any("accounts", event.Accounts))
	}
	if event.InvocationID != "" {
		attrs = append(attrs, slog.String("invocation_id", event.InvocationID))
	}
	if event.TxHash != "" {
		attrs = append(attrs, slog.String("tx_hash", event.TxHash))
	}
	for k, v := range event.Metadata {
		attrs = append(attrs, slog.String(k, v))
	}
	n.logger.LogAttrs(ctx, levelOf(event.Severity), event.Message, attrs...)
	return nil
}

func levelOf(sev xerrors.Severity) slog.Level {
	switch sev {
	case xerrors.SeverityWarning:
		return slog.LevelWarn
	case xerrors.SeverityCritical:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
