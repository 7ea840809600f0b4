// Package broadcast fans out state-changed signals to interested observers.
// Delivery is fire-and-forget over redis pub/sub, with an optional SNS
// mirror for out-of-process observers; no listener being present is a
// normal, silent outcome.
package broadcast

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"github.com/pushlens/pushlens/internal/metrics"
)

// Channel is the pub/sub channel change signals are published on.
const Channel = "pushlens:changes"

// Change is the signal observers receive after a mutating store operation.
type Change struct {
	Changed   bool  `json:"changed"`
	Count     int   `json:"count"`
	Timestamp int64 `json:"timestamp"` // unix millis
}

// Publisher delivers a payload to a pub/sub channel and reports how many
// receivers got it.
type Publisher interface {
	Publish(ctx context.Context, channel string, payload []byte) (int64, error)
}

// Mirror forwards change payloads to a secondary fan-out target.
type Mirror interface {
	Publish(ctx context.Context, payload []byte) (string, error)
}

// Broadcaster implements the store's Notifier contract.
type Broadcaster struct {
	pub    Publisher // nil disables the primary channel
	mirror Mirror    // nil disables mirroring
	logger *zap.Logger
}

// New creates a Broadcaster. Both targets are optional.
func New(pub Publisher, mirror Mirror, logger *zap.Logger) *Broadcaster {
	return &Broadcaster{pub: pub, mirror: mirror, logger: logger}
}

// StateChanged publishes a change signal. Failures are logged and swallowed:
// broadcasting must never fail a store mutation.
func (b *Broadcaster) StateChanged(ctx context.Context, count int) {
	change := Change{
		Changed:   true,
		Count:     count,
		Timestamp: time.Now().UnixMilli(),
	}

	payload, err := json.Marshal(change)
	if err != nil {
		b.logger.Error("failed to marshal change signal", zap.Error(err))
		return
	}

	if b.pub != nil {
		receivers, err := b.pub.Publish(ctx, Channel, payload)
		if err != nil {
			metrics.RecordBroadcast("error")
			b.logger.Warn("change broadcast failed", zap.Error(err))
		} else {
			metrics.RecordBroadcast("ok")
			b.logger.Debug("change broadcast published",
				zap.Int("count", count),
				zap.Int64("receivers", receivers),
			)
		}
	}

	if b.mirror != nil {
		if _, err := b.mirror.Publish(ctx, payload); err != nil {
			metrics.RecordBroadcast("mirror_error")
			b.logger.Warn("change broadcast mirror failed", zap.Error(err))
		}
	}
}
