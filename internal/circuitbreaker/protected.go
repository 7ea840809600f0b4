package circuitbreaker

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/pushlens/pushlens/internal/normalize"
)

// Sender mirrors the dispatch.Sender interface so the breaker can wrap any
// display implementation.
type Sender interface {
	Deliver(ctx context.Context, d normalize.Descriptor) error
	Close(ctx context.Context, tag string) error
}

// ProtectedSender wraps a Sender with a CircuitBreaker. Only Deliver is
// guarded; Close is already best effort and passes through untouched.
type ProtectedSender struct {
	sender  Sender
	breaker *CircuitBreaker
	logger  *zap.Logger
}

// NewProtectedSender wraps a sender with circuit breaker protection.
func NewProtectedSender(sender Sender, breaker *CircuitBreaker, logger *zap.Logger) *ProtectedSender {
	return &ProtectedSender{
		sender:  sender,
		breaker: breaker,
		logger:  logger,
	}
}

// Deliver attempts a display through the circuit breaker. When the circuit
// is open it returns ErrCircuitOpen immediately.
func (p *ProtectedSender) Deliver(ctx context.Context, d normalize.Descriptor) error {
	if !p.breaker.Allow() {
		p.logger.Warn("circuit breaker rejected display - failing fast",
			zap.String("breaker", p.breaker.config.Name),
			zap.String("tag", d.Tag),
			zap.String("state", p.breaker.GetState().String()),
		)
		return fmt.Errorf("%w: %s unavailable", ErrCircuitOpen, p.breaker.config.Name)
	}

	err := p.sender.Deliver(ctx, d)
	if err != nil {
		p.breaker.RecordFailure()
		return err
	}

	p.breaker.RecordSuccess()
	return nil
}

// Close delegates to the underlying sender.
func (p *ProtectedSender) Close(ctx context.Context, tag string) error {
	return p.sender.Close(ctx, tag)
}
