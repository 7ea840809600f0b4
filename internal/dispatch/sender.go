// Package dispatch delivers normalized notifications to the user-visible
// display surface. The display agent is external; this package only speaks
// its wire contract and reports completion back to the caller so the
// triggering event can be held open until display finishes.
package dispatch

import (
	"context"

	"go.uber.org/zap"

	"github.com/pushlens/pushlens/internal/normalize"
)

// Sender triggers the platform-level notification display.
type Sender interface {
	// Deliver shows a notification with the descriptor's fields as-is and
	// returns the display operation's completion.
	Deliver(ctx context.Context, d normalize.Descriptor) error

	// Close dismisses a displayed notification by tag. Best effort.
	Close(ctx context.Context, tag string) error
}

// LogSender logs deliveries instead of displaying them. Used in development
// and whenever no display agent is configured.
type LogSender struct {
	logger *zap.Logger
}

func NewLogSender(logger *zap.Logger) *LogSender {
	return &LogSender{logger: logger}
}

func (s *LogSender) Deliver(ctx context.Context, d normalize.Descriptor) error {
	s.logger.Info("notification displayed (log sender)",
		zap.String("title", d.Title),
		zap.String("body", d.Body),
		zap.String("tag", d.Tag),
		zap.String("url", d.URL()),
	)
	return nil
}

func (s *LogSender) Close(ctx context.Context, tag string) error {
	s.logger.Info("notification closed (log sender)", zap.String("tag", tag))
	return nil
}
