// Package notify delivers the consent prompt raised when a recording ends.
package notify

import (
	"context"
	"log/slog"
)

// Notifier matches session.Notifier.
type Notifier interface {
	Notify(ctx context.Context, title, body string)
}

// Log writes notifications to the structured log.
type Log struct {
	logger *slog.Logger
}

// NewLog returns a Log notifier. A nil logger uses slog.Default().
func NewLog(logger *slog.Logger) *Log {
	if logger == nil {
		logger = slog.Default()
	}
	return &Log{logger: logger}
}

func (l *Log) Notify(ctx context.Context, title, body string) {
	l.logger.InfoContext(ctx, "consent requested", "title", title, "body", body)
}

// Multi fans a notification out to several notifiers in order.
type Multi []Notifier

func (m Multi) Notify(ctx context.Context, title, body string) {
	for _, n := range m {
		if n != nil {
			n.Notify(ctx, title, body)
		}
	}
}

// logNotifyResult logs the result of a notification attempt.
func logNotifyResult(logger *slog.Logger, fn func() error, notifyType string) {
	if err := fn(); err != nil {
		logger.Error("notification failed", "type", notifyType, "error", err)
	} else {
		logger.Info("notification sent", "type", notifyType)
	}
}
