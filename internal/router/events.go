package router

import (
	"encoding/json"

	"github.com/pushlens/pushlens/internal/registry"
	"github.com/pushlens/pushlens/internal/store"
)

// Kind enumerates the closed set of control-channel event kinds. Anything
// outside this set gets an explicit "unrecognized request" response.
type Kind string

const (
	KindGetMessages         Kind = "GET_MESSAGES"
	KindClearMessages       Kind = "CLEAR_MESSAGES"
	KindDeleteMessage       Kind = "DELETE_MESSAGE"
	KindGetSubscriptions    Kind = "GET_SUBSCRIPTIONS"
	KindDeleteSubscription  Kind = "DELETE_SUBSCRIPTION"
	KindGetStats            Kind = "GET_STATS"
	KindSubscriptionFound   Kind = "PUSH_SUBSCRIPTION_FOUND"
	KindSubscriptionUpdate  Kind = "PUSH_SUBSCRIPTION_UPDATE"
	KindSubscriptionChange  Kind = "PUSH_SUBSCRIPTION_CHANGE"
	KindPermissionChanged   Kind = "NOTIFICATION_PERMISSION_CHANGED"
	KindNotificationClicked Kind = "NOTIFICATION_CLICKED"
	KindNotificationClosed  Kind = "NOTIFICATION_CLOSED"
	KindTestNotification    Kind = "TEST_NOTIFICATION"
)

// Sender carries provenance about the client that reported an event.
type Sender struct {
	TabID int    `json:"tabId,omitempty"`
	URL   string `json:"url,omitempty"`
}

// Event is one inbound control-channel event.
type Event struct {
	Kind   Kind            `json:"type"`
	Data   json.RawMessage `json:"data,omitempty"`
	Sender Sender          `json:"sender,omitempty"`
}

// Response is the structured reply for control-channel events. Handlers
// that fail convert the failure into the Error field; nothing propagates to
// the calling channel.
type Response struct {
	Success       bool                   `json:"success,omitempty"`
	Error         string                 `json:"error,omitempty"`
	Messages      []store.Message        `json:"messages,omitempty"`
	Subscriptions []registry.Entry       `json:"subscriptions,omitempty"`
	Stats         *store.Stats           `json:"stats,omitempty"`
	Subscription  *registry.Subscription `json:"subscription,omitempty"`
	URL           string                 `json:"url,omitempty"`
}

func errorResponse(msg string) Response {
	return Response{Error: msg}
}

// subscriptionPayload is the data shape of subscription found/update events.
type subscriptionPayload struct {
	Endpoint string         `json:"endpoint"`
	Keys     registry.Keys  `json:"keys"`
	Options  map[string]any `json:"options,omitempty"`
	Scope    string         `json:"scope,omitempty"`
	URL      string         `json:"url,omitempty"`
}

// rotationPayload is the data shape of platform-initiated rotation events.
type rotationPayload struct {
	OldEndpoint     string               `json:"oldEndpoint,omitempty"`
	NewSubscription *subscriptionPayload `json:"newSubscription,omitempty"`
}

// permissionPayload is the data shape of permission change reports.
type permissionPayload struct {
	Permission string `json:"permission"`
	URL        string `json:"url,omitempty"`
}

// interactionPayload is the data shape of click/close events.
type interactionPayload struct {
	Tag string `json:"tag"`
	URL string `json:"url,omitempty"`
}

// testPayload is the data shape of test notification triggers.
type testPayload struct {
	Title string         `json:"title,omitempty"`
	Body  string         `json:"body,omitempty"`
	Icon  string         `json:"icon,omitempty"`
	Data  map[string]any `json:"data,omitempty"`
}

// endpointPayload is the data shape of delete subscription requests.
type endpointPayload struct {
	Endpoint string `json:"endpoint"`
}

// idPayload is the data shape of delete message requests.
type idPayload struct {
	ID string `json:"id"`
}
