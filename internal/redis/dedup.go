package redis

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// DedupTTL is how long a push payload fingerprint is remembered. Push
// transports may redeliver the same payload on retry; anything inside this
// window with an identical body is treated as the same delivery.
const DedupTTL = 5 * time.Minute

// Deduper drops duplicate push deliveries using content-hash fingerprints
// reserved atomically with SET NX.
type Deduper struct {
	client *Client
	ttl    time.Duration
	logger *zap.Logger
}

// NewDeduper creates a Deduper. ttl <= 0 selects DedupTTL.
func NewDeduper(client *Client, ttl time.Duration, logger *zap.Logger) *Deduper {
	if ttl <= 0 {
		ttl = DedupTTL
	}
	return &Deduper{client: client, ttl: ttl, logger: logger}
}

// Seen reports whether an identical payload was already ingested inside the
// TTL window, reserving the fingerprint when it was not. Empty payloads are
// never deduplicated: a payload-less push is a legitimate repeated event.
func (d *Deduper) Seen(ctx context.Context, payload []byte) (bool, error) {
	if len(payload) == 0 {
		return false, nil
	}

	sum := sha256.Sum256(payload)
	key := "pushlens:ingest:" + hex.EncodeToString(sum[:])

	reserved, err := d.client.rdb.SetNX(ctx, key, 1, d.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("redis setnx failed: %w", err)
	}

	if !reserved {
		d.logger.Debug("duplicate push delivery dropped",
			zap.String("fingerprint", key),
		)
	}
	return !reserved, nil
}
