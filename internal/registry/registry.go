// Package registry tracks push subscriptions keyed by endpoint. The map is
// persisted as an ordered list of [endpoint, record] entry pairs; insertion
// order is preserved across upserts so inspection output stays stable.
package registry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

const (
	keySubscriptions = "pushlens:subscriptions"
	keyLastUpdate    = "pushlens:subscriptionsLastUpdate"
)

// ErrNotFound indicates the endpoint has no registered subscription.
var ErrNotFound = errors.New("subscription not found")

// Keys holds the subscription's cryptographic material. It is opaque to
// this system: never validated, never used.
type Keys struct {
	P256dh string `json:"p256dh,omitempty"`
	Auth   string `json:"auth,omitempty"`
}

// Subscription is one registered push subscription plus provenance metadata.
type Subscription struct {
	Endpoint  string         `json:"endpoint"`
	Keys      Keys           `json:"keys"`
	Options   map[string]any `json:"options,omitempty"`
	Scope     string         `json:"scope,omitempty"`
	TabID     int            `json:"tabId,omitempty"`
	URL       string         `json:"url,omitempty"`
	Timestamp string         `json:"timestamp"`
}

// Entry is one (endpoint, record) pair. It serializes as a two-element
// JSON array to keep the persisted layout map-entry shaped.
type Entry struct {
	Endpoint string
	Record   Subscription
}

func (e Entry) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]any{e.Endpoint, e.Record})
}

func (e *Entry) UnmarshalJSON(b []byte) error {
	var pair []json.RawMessage
	if err := json.Unmarshal(b, &pair); err != nil {
		return err
	}
	if len(pair) != 2 {
		return fmt.Errorf("subscription entry: expected 2 elements, got %d", len(pair))
	}
	if err := json.Unmarshal(pair[0], &e.Endpoint); err != nil {
		return fmt.Errorf("subscription entry endpoint: %w", err)
	}
	if err := json.Unmarshal(pair[1], &e.Record); err != nil {
		return fmt.Errorf("subscription entry record: %w", err)
	}
	return nil
}

// KV is the durable blob storage the registry persists into. Get returns
// (nil, nil) when the key is absent.
type KV interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
}

// Registry owns the keyed subscription collection.
type Registry struct {
	mu      sync.Mutex
	subs    map[string]Subscription
	order   []string // endpoints in first-seen order
	kv      KV       // nil disables persistence
	logger  *zap.Logger
}

// New creates an empty Registry. kv may be nil.
func New(kv KV, logger *zap.Logger) *Registry {
	return &Registry{
		subs:   map[string]Subscription{},
		kv:     kv,
		logger: logger,
	}
}

// Load restores the persisted entries. A missing blob or read failure
// leaves the registry empty; the error is returned for logging only.
func (r *Registry) Load(ctx context.Context) error {
	if r.kv == nil {
		return nil
	}

	raw, err := r.kv.Get(ctx, keySubscriptions)
	if err != nil {
		return err
	}
	if raw == nil {
		return nil
	}

	var entries []Entry
	if err := json.Unmarshal(raw, &entries); err != nil {
		return err
	}

	r.mu.Lock()
	r.subs = make(map[string]Subscription, len(entries))
	r.order = r.order[:0]
	for _, e := range entries {
		if _, seen := r.subs[e.Endpoint]; !seen {
			r.order = append(r.order, e.Endpoint)
		}
		r.subs[e.Endpoint] = e.Record
	}
	count := len(r.subs)
	r.mu.Unlock()

	r.logger.Info("subscriptions loaded", zap.Int("count", count))
	return nil
}

// Upsert inserts or replaces the record for its endpoint and persists the
// full map. Re-registration keeps the endpoint's original position. The
// stored record, with a stamped timestamp when absent, is returned.
func (r *Registry) Upsert(ctx context.Context, sub Subscription) Subscription {
	if sub.Timestamp == "" {
		sub.Timestamp = time.Now().UTC().Format(time.RFC3339Nano)
	}

	r.mu.Lock()
	if _, seen := r.subs[sub.Endpoint]; !seen {
		r.order = append(r.order, sub.Endpoint)
	}
	r.subs[sub.Endpoint] = sub
	r.persistLocked(ctx)
	r.mu.Unlock()

	r.logger.Info("push subscription registered",
		zap.String("endpoint", sub.Endpoint),
		zap.String("url", sub.URL),
	)
	return sub
}

// Remove deletes the subscription for endpoint. Returns false when the
// endpoint was not registered; nothing is persisted in that case.
func (r *Registry) Remove(ctx context.Context, endpoint string) bool {
	r.mu.Lock()
	if _, ok := r.subs[endpoint]; !ok {
		r.mu.Unlock()
		return false
	}
	delete(r.subs, endpoint)
	r.dropOrderLocked(endpoint)
	r.persistLocked(ctx)
	r.mu.Unlock()

	r.logger.Info("push subscription removed", zap.String("endpoint", endpoint))
	return true
}

// Replace handles push-service-initiated rotation: the old endpoint (if
// given) is dropped and the new record (if given) inserted, with a single
// persist for the combined operation.
func (r *Registry) Replace(ctx context.Context, oldEndpoint string, newSub *Subscription) {
	r.mu.Lock()
	if oldEndpoint != "" {
		if _, ok := r.subs[oldEndpoint]; ok {
			delete(r.subs, oldEndpoint)
			r.dropOrderLocked(oldEndpoint)
		}
	}
	if newSub != nil {
		sub := *newSub
		if sub.Timestamp == "" {
			sub.Timestamp = time.Now().UTC().Format(time.RFC3339Nano)
		}
		if _, seen := r.subs[sub.Endpoint]; !seen {
			r.order = append(r.order, sub.Endpoint)
		}
		r.subs[sub.Endpoint] = sub
	}
	r.persistLocked(ctx)
	r.mu.Unlock()

	r.logger.Info("subscription rotation processed",
		zap.String("old_endpoint", oldEndpoint),
		zap.Bool("replacement", newSub != nil),
	)
}

// Entries returns the (endpoint, record) pairs in first-seen order.
func (r *Registry) Entries() []Entry {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]Entry, 0, len(r.subs))
	for _, ep := range r.order {
		if sub, ok := r.subs[ep]; ok {
			out = append(out, Entry{Endpoint: ep, Record: sub})
		}
	}
	return out
}

// Count returns the number of registered subscriptions.
func (r *Registry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.subs)
}

func (r *Registry) dropOrderLocked(endpoint string) {
	for i, ep := range r.order {
		if ep == endpoint {
			r.order = append(r.order[:i], r.order[i+1:]...)
			return
		}
	}
}

// persistLocked rewrites the full entries blob plus the advisory freshness
// marker. Failures are logged and swallowed. Callers hold r.mu.
func (r *Registry) persistLocked(ctx context.Context) {
	if r.kv == nil {
		return
	}

	entries := make([]Entry, 0, len(r.subs))
	for _, ep := range r.order {
		if sub, ok := r.subs[ep]; ok {
			entries = append(entries, Entry{Endpoint: ep, Record: sub})
		}
	}

	raw, err := json.Marshal(entries)
	if err != nil {
		r.logger.Error("failed to marshal subscriptions", zap.Error(err))
		return
	}

	if err := r.kv.Set(ctx, keySubscriptions, raw); err != nil {
		r.logger.Error("failed to persist subscriptions",
			zap.Error(err),
			zap.Int("count", len(entries)),
		)
		return
	}

	now := time.Now().UTC().Format(time.RFC3339Nano)
	if err := r.kv.Set(ctx, keyLastUpdate, []byte(now)); err != nil {
		r.logger.Warn("failed to persist freshness marker", zap.Error(err))
	}
}
