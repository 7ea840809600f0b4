package circuitbreaker

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/pushlens/pushlens/internal/normalize"
)

func testBreaker(maxFailures int, recovery time.Duration) *CircuitBreaker {
	return New(Config{
		Name:                "test",
		MaxFailures:         maxFailures,
		RecoveryTimeout:     recovery,
		HalfOpenMaxRequests: 1,
	}, zap.NewNop())
}

func TestBreaker_StaysClosedUnderThreshold(t *testing.T) {
	cb := testBreaker(3, time.Minute)

	cb.RecordFailure()
	cb.RecordFailure()

	if cb.GetState() != StateClosed {
		t.Errorf("state: got %s, want closed", cb.GetState())
	}
	if !cb.Allow() {
		t.Error("closed breaker must allow requests")
	}
}

func TestBreaker_OpensAtThreshold(t *testing.T) {
	cb := testBreaker(3, time.Minute)

	for i := 0; i < 3; i++ {
		cb.RecordFailure()
	}

	if cb.GetState() != StateOpen {
		t.Fatalf("state: got %s, want open", cb.GetState())
	}
	if cb.Allow() {
		t.Error("open breaker must reject requests")
	}
}

func TestBreaker_SuccessResetsFailureCount(t *testing.T) {
	cb := testBreaker(3, time.Minute)

	cb.RecordFailure()
	cb.RecordFailure()
	cb.RecordSuccess()
	cb.RecordFailure()
	cb.RecordFailure()

	if cb.GetState() != StateClosed {
		t.Errorf("non-consecutive failures must not open the circuit, state: %s", cb.GetState())
	}
}

func TestBreaker_ProbeAfterRecoveryTimeout(t *testing.T) {
	cb := testBreaker(1, 10*time.Millisecond)

	cb.RecordFailure()
	if cb.GetState() != StateOpen {
		t.Fatal("breaker should be open")
	}

	time.Sleep(20 * time.Millisecond)

	if !cb.Allow() {
		t.Fatal("probe should be allowed after recovery timeout")
	}
	if cb.GetState() != StateHalfOpen {
		t.Errorf("state: got %s, want half-open", cb.GetState())
	}
	if cb.Allow() {
		t.Error("only one probe allowed in half-open")
	}

	cb.RecordSuccess()
	if cb.GetState() != StateClosed {
		t.Errorf("successful probe should close, state: %s", cb.GetState())
	}
}

func TestBreaker_ProbeFailureReopens(t *testing.T) {
	cb := testBreaker(1, 10*time.Millisecond)

	cb.RecordFailure()
	time.Sleep(20 * time.Millisecond)
	cb.Allow()
	cb.RecordFailure()

	if cb.GetState() != StateOpen {
		t.Errorf("failed probe should reopen, state: %s", cb.GetState())
	}
}

// failingSender always errors.
type failingSender struct{ calls int }

func (f *failingSender) Deliver(ctx context.Context, d normalize.Descriptor) error {
	f.calls++
	return errors.New("display agent down")
}

func (f *failingSender) Close(ctx context.Context, tag string) error { return nil }

func TestProtectedSender_FailsFastWhenOpen(t *testing.T) {
	inner := &failingSender{}
	cb := testBreaker(2, time.Minute)
	p := NewProtectedSender(inner, cb, zap.NewNop())
	ctx := context.Background()
	d := normalize.Descriptor{Title: "t"}

	for i := 0; i < 2; i++ {
		if err := p.Deliver(ctx, d); err == nil {
			t.Fatal("expected delivery error")
		}
	}

	err := p.Deliver(ctx, d)
	if !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("expected ErrCircuitOpen, got %v", err)
	}
	if inner.calls != 2 {
		t.Errorf("open circuit must not reach the sender, calls: %d", inner.calls)
	}
}

func TestProtectedSender_ClosePassesThrough(t *testing.T) {
	inner := &failingSender{}
	cb := testBreaker(1, time.Minute)
	cb.RecordFailure()
	p := NewProtectedSender(inner, cb, zap.NewNop())

	if err := p.Close(context.Background(), "tag"); err != nil {
		t.Errorf("close must bypass the breaker: %v", err)
	}
}
