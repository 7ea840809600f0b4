// Package router coordinates the collector: it receives inbound events
// (push deliveries, subscription reports, interaction events, control
// requests), delegates to the store, registry and dispatcher, and shapes
// structured responses. It is an event-driven reactor; each event kind has
// one handler arm and every failure is converted locally into an error
// response.
package router

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/pushlens/pushlens/internal/dispatch"
	"github.com/pushlens/pushlens/internal/metrics"
	"github.com/pushlens/pushlens/internal/normalize"
	"github.com/pushlens/pushlens/internal/registry"
	"github.com/pushlens/pushlens/internal/store"
)

// Router owns the event dispatch table.
type Router struct {
	normalizer *normalize.Normalizer
	defaults   normalize.Defaults
	store      *store.Store
	registry   *registry.Registry
	sender     dispatch.Sender
	logger     *zap.Logger
}

// New wires a Router. All collaborators are required.
func New(n *normalize.Normalizer, d normalize.Defaults, st *store.Store, reg *registry.Registry, sender dispatch.Sender, logger *zap.Logger) *Router {
	return &Router{
		normalizer: n,
		defaults:   d,
		store:      st,
		registry:   reg,
		sender:     sender,
		logger:     logger,
	}
}

// HandlePush ingests one raw push delivery: normalize, record, display.
// Fire-and-forget towards the push transport - a garbled payload still
// produces a best-effort default notification, and nothing errors back.
func (r *Router) HandlePush(ctx context.Context, raw []byte) {
	desc, source := r.normalizer.Normalize(raw, time.Now().UTC())
	metrics.RecordPushEvent(string(source))

	msg := r.store.Append(ctx, desc, store.TypePush)

	r.logger.Info("push event ingested",
		zap.String("id", msg.ID),
		zap.String("source", string(source)),
		zap.String("title", desc.Title),
	)

	if err := r.sender.Deliver(ctx, desc); err != nil {
		metrics.RecordNotificationDisplayed("error")
		r.logger.Error("failed to display notification",
			zap.Error(err),
			zap.String("id", msg.ID),
		)
		return
	}
	metrics.RecordNotificationDisplayed("ok")
}

// Dispatch routes one control-channel event to its handler. The switch is
// exhaustive over Kind; unknown kinds land in the default arm.
func (r *Router) Dispatch(ctx context.Context, ev Event) Response {
	switch ev.Kind {
	case KindGetMessages:
		return Response{Success: true, Messages: r.store.List()}

	case KindClearMessages:
		r.store.Clear(ctx)
		return Response{Success: true}

	case KindDeleteMessage:
		return r.handleDeleteMessage(ctx, ev)

	case KindGetSubscriptions:
		return Response{Success: true, Subscriptions: r.registry.Entries()}

	case KindDeleteSubscription:
		return r.handleDeleteSubscription(ctx, ev)

	case KindGetStats:
		stats := r.store.Stats()
		stats.Subscriptions = r.registry.Count()
		return Response{Success: true, Stats: &stats}

	case KindSubscriptionFound, KindSubscriptionUpdate:
		return r.handleSubscriptionReport(ctx, ev)

	case KindSubscriptionChange:
		return r.handleRotation(ctx, ev)

	case KindPermissionChanged:
		return r.handlePermissionChange(ev)

	case KindNotificationClicked:
		return r.handleClicked(ctx, ev)

	case KindNotificationClosed:
		return r.handleClosed(ctx, ev)

	case KindTestNotification:
		return r.handleTestNotification(ctx, ev)

	default:
		r.logger.Warn("unrecognized request", zap.String("kind", string(ev.Kind)))
		return errorResponse(fmt.Sprintf("unrecognized request: %s", ev.Kind))
	}
}

// handleSubscriptionReport records a subscription reported by the
// page-context collaborator. Found and update events share this path: both
// are a keyed upsert.
func (r *Router) handleSubscriptionReport(ctx context.Context, ev Event) Response {
	var p subscriptionPayload
	if err := json.Unmarshal(ev.Data, &p); err != nil {
		return errorResponse(fmt.Sprintf("invalid subscription payload: %v", err))
	}
	if p.Endpoint == "" {
		return errorResponse("subscription endpoint is required")
	}

	url := ev.Sender.URL
	if url == "" {
		url = p.URL
	}

	stored := r.registry.Upsert(ctx, registry.Subscription{
		Endpoint: p.Endpoint,
		Keys:     p.Keys,
		Options:  p.Options,
		Scope:    p.Scope,
		TabID:    ev.Sender.TabID,
		URL:      url,
	})

	return Response{Success: true, Subscription: &stored}
}

// handleRotation processes a push-service-initiated subscription change.
func (r *Router) handleRotation(ctx context.Context, ev Event) Response {
	var p rotationPayload
	if err := json.Unmarshal(ev.Data, &p); err != nil {
		return errorResponse(fmt.Sprintf("invalid rotation payload: %v", err))
	}

	var newSub *registry.Subscription
	if p.NewSubscription != nil {
		newSub = &registry.Subscription{
			Endpoint: p.NewSubscription.Endpoint,
			Keys:     p.NewSubscription.Keys,
			Options:  p.NewSubscription.Options,
			Scope:    p.NewSubscription.Scope,
			URL:      p.NewSubscription.URL,
		}
	}

	r.registry.Replace(ctx, p.OldEndpoint, newSub)
	return Response{Success: true}
}

// handlePermissionChange only logs; permission state is not mirrored.
func (r *Router) handlePermissionChange(ev Event) Response {
	var p permissionPayload
	if err := json.Unmarshal(ev.Data, &p); err != nil {
		return errorResponse(fmt.Sprintf("invalid permission payload: %v", err))
	}

	r.logger.Info("notification permission changed",
		zap.String("permission", p.Permission),
		zap.String("url", p.URL),
	)
	return Response{Success: true}
}

// handleClicked dismisses the displayed notification, resolves the
// navigation target for the caller and marks the matching message clicked.
func (r *Router) handleClicked(ctx context.Context, ev Event) Response {
	var p interactionPayload
	if err := json.Unmarshal(ev.Data, &p); err != nil {
		return errorResponse(fmt.Sprintf("invalid interaction payload: %v", err))
	}

	if err := r.sender.Close(ctx, p.Tag); err != nil {
		r.logger.Warn("failed to close notification", zap.Error(err), zap.String("tag", p.Tag))
	}

	target := p.URL
	if target == "" {
		target = r.defaults.TargetURL
	}

	r.store.UpdateStatus(ctx, p.Tag, store.StatusClicked)

	return Response{Success: true, URL: target}
}

// handleClosed marks the matching message dismissed. An unmatched tag is a
// silent no-op.
func (r *Router) handleClosed(ctx context.Context, ev Event) Response {
	var p interactionPayload
	if err := json.Unmarshal(ev.Data, &p); err != nil {
		return errorResponse(fmt.Sprintf("invalid interaction payload: %v", err))
	}

	r.store.UpdateStatus(ctx, p.Tag, store.StatusDismissed)
	return Response{Success: true}
}

// handleTestNotification builds a synthetic descriptor, records it as a
// test message and displays it. A display failure is reported back but the
// message stays recorded.
func (r *Router) handleTestNotification(ctx context.Context, ev Event) Response {
	var p testPayload
	if len(ev.Data) > 0 {
		if err := json.Unmarshal(ev.Data, &p); err != nil {
			return errorResponse(fmt.Sprintf("invalid test payload: %v", err))
		}
	}

	desc := r.buildTestDescriptor(p, time.Now().UTC())
	r.store.Append(ctx, desc, store.TypeTest)

	if err := r.sender.Deliver(ctx, desc); err != nil {
		metrics.RecordNotificationDisplayed("error")
		return errorResponse(fmt.Sprintf("display failed: %v", err))
	}
	metrics.RecordNotificationDisplayed("ok")

	return Response{Success: true}
}

func (r *Router) buildTestDescriptor(p testPayload, now time.Time) normalize.Descriptor {
	d := normalize.Descriptor{
		Title: "Test Push Notification",
		Body:  "This is a test push notification from the collector",
		Icon:  r.defaults.Icon,
		Badge: r.defaults.Badge,
		Tag:   "test-" + strconv.FormatInt(now.UnixMilli(), 10),
		Data: map[string]any{
			"url":    r.defaults.TargetURL,
			"isTest": true,
		},
	}

	if p.Title != "" {
		d.Title = p.Title
	}
	if p.Body != "" {
		d.Body = p.Body
	}
	if p.Icon != "" {
		d.Icon = p.Icon
	}
	for k, v := range p.Data {
		d.Data[k] = v
	}

	return d
}

func (r *Router) handleDeleteMessage(ctx context.Context, ev Event) Response {
	var p idPayload
	if err := json.Unmarshal(ev.Data, &p); err != nil {
		return errorResponse(fmt.Sprintf("invalid delete payload: %v", err))
	}
	if p.ID == "" {
		return errorResponse("message id is required")
	}

	if !r.store.Delete(ctx, p.ID) {
		return errorResponse("message not found")
	}
	return Response{Success: true}
}

func (r *Router) handleDeleteSubscription(ctx context.Context, ev Event) Response {
	var p endpointPayload
	if err := json.Unmarshal(ev.Data, &p); err != nil {
		return errorResponse(fmt.Sprintf("invalid delete payload: %v", err))
	}
	if p.Endpoint == "" {
		return errorResponse("subscription endpoint is required")
	}

	if !r.registry.Remove(ctx, p.Endpoint) {
		return errorResponse(registry.ErrNotFound.Error())
	}
	return Response{Success: true}
}
