package router

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"go.uber.org/zap"

	"github.com/pushlens/pushlens/internal/dispatch"
	"github.com/pushlens/pushlens/internal/normalize"
	"github.com/pushlens/pushlens/internal/registry"
	"github.com/pushlens/pushlens/internal/store"
)

type recordingSender struct {
	delivered []normalize.Descriptor
	closed    []string
	failWith  error
}

func (s *recordingSender) Deliver(_ context.Context, d normalize.Descriptor) error {
	if s.failWith != nil {
		return s.failWith
	}
	s.delivered = append(s.delivered, d)
	return nil
}

func (s *recordingSender) Close(_ context.Context, tag string) error {
	s.closed = append(s.closed, tag)
	return nil
}

var _ dispatch.Sender = (*recordingSender)(nil)

func newTestRouter(t *testing.T) (*Router, *recordingSender, *store.Store, *registry.Registry) {
	t.Helper()
	logger := zap.NewNop()
	defaults := normalize.StandardDefaults("https://app.example.com")
	st := store.New(nil, nil, store.DefaultMaxMessages, logger)
	reg := registry.New(nil, logger)
	sender := &recordingSender{}
	r := New(normalize.New(defaults), defaults, st, reg, sender, logger)
	return r, sender, st, reg
}

func dispatchJSON(t *testing.T, r *Router, kind Kind, data string) Response {
	t.Helper()
	ev := Event{Kind: kind}
	if data != "" {
		ev.Data = json.RawMessage(data)
	}
	return r.Dispatch(context.Background(), ev)
}

func TestHandlePushStoresAndDisplays(t *testing.T) {
	r, sender, st, _ := newTestRouter(t)

	r.HandlePush(context.Background(), []byte(`{"title":"Hi","body":"B","url":"https://x"}`))

	msgs := st.List()
	if len(msgs) != 1 {
		t.Fatalf("expected 1 stored message, got %d", len(msgs))
	}
	m := msgs[0]
	if m.Title != "Hi" || m.Body != "B" || m.URL != "https://x" {
		t.Errorf("unexpected message: %+v", m)
	}
	if m.Type != store.TypePush {
		t.Errorf("expected type %q, got %q", store.TypePush, m.Type)
	}
	if m.Status != store.StatusReceived {
		t.Errorf("expected status %q, got %q", store.StatusReceived, m.Status)
	}

	if len(sender.delivered) != 1 {
		t.Fatalf("expected 1 delivery, got %d", len(sender.delivered))
	}
	if sender.delivered[0].Title != "Hi" {
		t.Errorf("delivered wrong descriptor: %+v", sender.delivered[0])
	}
}

func TestHandlePushPlainText(t *testing.T) {
	r, sender, st, _ := newTestRouter(t)

	r.HandlePush(context.Background(), []byte("hello there"))

	msgs := st.List()
	if len(msgs) != 1 {
		t.Fatalf("expected 1 stored message, got %d", len(msgs))
	}
	if msgs[0].Title != "Push Notification" {
		t.Errorf("expected default title, got %q", msgs[0].Title)
	}
	if msgs[0].Body != "hello there" {
		t.Errorf("expected raw text as body, got %q", msgs[0].Body)
	}
	if len(sender.delivered) != 1 {
		t.Fatalf("expected delivery even for unparsable payload")
	}
}

func TestHandlePushDisplayFailureStillStores(t *testing.T) {
	r, sender, st, _ := newTestRouter(t)
	sender.failWith = context.DeadlineExceeded

	r.HandlePush(context.Background(), []byte(`{"title":"T"}`))

	if st.Count() != 1 {
		t.Fatalf("expected message stored despite display failure, got %d", st.Count())
	}
}

func TestDispatchGetMessages(t *testing.T) {
	r, _, st, _ := newTestRouter(t)
	st.Append(context.Background(), normalize.Descriptor{Title: "one"}, store.TypePush)

	resp := dispatchJSON(t, r, KindGetMessages, "")
	if !resp.Success {
		t.Fatalf("expected success, got %+v", resp)
	}
	if len(resp.Messages) != 1 || resp.Messages[0].Title != "one" {
		t.Errorf("unexpected messages: %+v", resp.Messages)
	}
}

func TestDispatchClearMessages(t *testing.T) {
	r, _, st, _ := newTestRouter(t)
	st.Append(context.Background(), normalize.Descriptor{Title: "one"}, store.TypePush)

	resp := dispatchJSON(t, r, KindClearMessages, "")
	if !resp.Success {
		t.Fatalf("expected success, got %+v", resp)
	}
	if st.Count() != 0 {
		t.Errorf("expected empty store after clear, got %d", st.Count())
	}
}

func TestDispatchDeleteMessage(t *testing.T) {
	r, _, st, _ := newTestRouter(t)
	msg := st.Append(context.Background(), normalize.Descriptor{Title: "one"}, store.TypePush)

	resp := dispatchJSON(t, r, KindDeleteMessage, `{"id":"`+msg.ID+`"}`)
	if !resp.Success {
		t.Fatalf("expected success, got %+v", resp)
	}
	if st.Count() != 0 {
		t.Errorf("message not deleted")
	}

	resp = dispatchJSON(t, r, KindDeleteMessage, `{"id":"missing"}`)
	if resp.Error == "" {
		t.Errorf("expected error for unknown id, got %+v", resp)
	}

	resp = dispatchJSON(t, r, KindDeleteMessage, `{}`)
	if resp.Error == "" {
		t.Errorf("expected error for missing id, got %+v", resp)
	}
}

func TestDispatchSubscriptionLifecycle(t *testing.T) {
	r, _, _, reg := newTestRouter(t)

	resp := r.Dispatch(context.Background(), Event{
		Kind:   KindSubscriptionFound,
		Data:   json.RawMessage(`{"endpoint":"https://push.example/ep1","keys":{"p256dh":"pk","auth":"ak"},"scope":"/app/"}`),
		Sender: Sender{TabID: 7, URL: "https://site.example/page"},
	})
	if !resp.Success {
		t.Fatalf("expected success, got %+v", resp)
	}
	if resp.Subscription == nil {
		t.Fatal("expected stored subscription in response")
	}
	if resp.Subscription.URL != "https://site.example/page" {
		t.Errorf("expected sender URL provenance, got %q", resp.Subscription.URL)
	}
	if resp.Subscription.TabID != 7 {
		t.Errorf("expected sender tab id, got %d", resp.Subscription.TabID)
	}
	if resp.Subscription.Timestamp == "" {
		t.Errorf("expected timestamp to be stamped")
	}

	resp = dispatchJSON(t, r, KindGetSubscriptions, "")
	if len(resp.Subscriptions) != 1 {
		t.Fatalf("expected 1 subscription, got %d", len(resp.Subscriptions))
	}

	resp = dispatchJSON(t, r, KindDeleteSubscription, `{"endpoint":"https://push.example/ep1"}`)
	if !resp.Success {
		t.Fatalf("expected success, got %+v", resp)
	}
	if reg.Count() != 0 {
		t.Errorf("subscription not removed")
	}

	resp = dispatchJSON(t, r, KindDeleteSubscription, `{"endpoint":"https://push.example/ep1"}`)
	if resp.Error == "" {
		t.Errorf("expected error removing unknown endpoint, got %+v", resp)
	}
}

func TestDispatchSubscriptionRequiresEndpoint(t *testing.T) {
	r, _, _, _ := newTestRouter(t)

	resp := dispatchJSON(t, r, KindSubscriptionFound, `{"keys":{"p256dh":"pk"}}`)
	if resp.Error == "" {
		t.Errorf("expected error for missing endpoint, got %+v", resp)
	}
}

func TestDispatchRotation(t *testing.T) {
	r, _, _, reg := newTestRouter(t)
	reg.Upsert(context.Background(), registry.Subscription{Endpoint: "https://push.example/old"})

	resp := dispatchJSON(t, r, KindSubscriptionChange,
		`{"oldEndpoint":"https://push.example/old","newSubscription":{"endpoint":"https://push.example/new","keys":{"p256dh":"pk","auth":"ak"}}}`)
	if !resp.Success {
		t.Fatalf("expected success, got %+v", resp)
	}

	entries := reg.Entries()
	if len(entries) != 1 {
		t.Fatalf("expected 1 subscription after rotation, got %d", len(entries))
	}
	if entries[0].Endpoint != "https://push.example/new" {
		t.Errorf("expected rotated endpoint, got %q", entries[0].Endpoint)
	}
}

func TestDispatchRotationRemovalOnly(t *testing.T) {
	r, _, _, reg := newTestRouter(t)
	reg.Upsert(context.Background(), registry.Subscription{Endpoint: "https://push.example/old"})

	resp := dispatchJSON(t, r, KindSubscriptionChange, `{"oldEndpoint":"https://push.example/old"}`)
	if !resp.Success {
		t.Fatalf("expected success, got %+v", resp)
	}
	if reg.Count() != 0 {
		t.Errorf("expected registry empty after removal-only rotation, got %d", reg.Count())
	}
}

func TestDispatchGetStats(t *testing.T) {
	r, _, st, reg := newTestRouter(t)
	st.Append(context.Background(), normalize.Descriptor{Title: "one"}, store.TypePush)
	reg.Upsert(context.Background(), registry.Subscription{Endpoint: "https://push.example/ep1"})

	resp := dispatchJSON(t, r, KindGetStats, "")
	if !resp.Success || resp.Stats == nil {
		t.Fatalf("expected stats, got %+v", resp)
	}
	if resp.Stats.Total != 1 {
		t.Errorf("expected total 1, got %d", resp.Stats.Total)
	}
	if resp.Stats.Subscriptions != 1 {
		t.Errorf("expected 1 subscription counted, got %d", resp.Stats.Subscriptions)
	}
}

func TestDispatchNotificationClicked(t *testing.T) {
	r, sender, st, _ := newTestRouter(t)
	msg := st.Append(context.Background(), normalize.Descriptor{
		Title: "one",
		Tag:   "tag-1",
		Data:  map[string]any{"tag": "tag-1"},
	}, store.TypePush)

	resp := dispatchJSON(t, r, KindNotificationClicked, `{"tag":"tag-1","url":"https://target.example"}`)
	if !resp.Success {
		t.Fatalf("expected success, got %+v", resp)
	}
	if resp.URL != "https://target.example" {
		t.Errorf("expected payload URL, got %q", resp.URL)
	}
	if len(sender.closed) != 1 || sender.closed[0] != "tag-1" {
		t.Errorf("expected close for tag-1, got %v", sender.closed)
	}

	for _, m := range st.List() {
		if m.ID == msg.ID && m.Status != store.StatusClicked {
			t.Errorf("expected clicked status, got %q", m.Status)
		}
	}
}

func TestDispatchNotificationClickedDefaultTarget(t *testing.T) {
	r, _, _, _ := newTestRouter(t)

	resp := dispatchJSON(t, r, KindNotificationClicked, `{"tag":"whatever"}`)
	if resp.URL != "https://app.example.com" {
		t.Errorf("expected default target, got %q", resp.URL)
	}
}

func TestDispatchNotificationClosed(t *testing.T) {
	r, _, st, _ := newTestRouter(t)
	st.Append(context.Background(), normalize.Descriptor{
		Title: "one",
		Tag:   "tag-2",
		Data:  map[string]any{"tag": "tag-2"},
	}, store.TypePush)

	resp := dispatchJSON(t, r, KindNotificationClosed, `{"tag":"tag-2"}`)
	if !resp.Success {
		t.Fatalf("expected success, got %+v", resp)
	}
	if st.List()[0].Status != store.StatusDismissed {
		t.Errorf("expected dismissed status, got %q", st.List()[0].Status)
	}

	// Unmatched tags are a silent no-op, not an error.
	resp = dispatchJSON(t, r, KindNotificationClosed, `{"tag":"nope"}`)
	if !resp.Success {
		t.Errorf("expected success for unmatched tag, got %+v", resp)
	}
}

func TestDispatchPermissionChanged(t *testing.T) {
	r, _, _, _ := newTestRouter(t)

	resp := dispatchJSON(t, r, KindPermissionChanged, `{"permission":"denied","url":"https://site.example"}`)
	if !resp.Success {
		t.Errorf("expected success, got %+v", resp)
	}
}

func TestDispatchTestNotification(t *testing.T) {
	r, sender, st, _ := newTestRouter(t)

	resp := dispatchJSON(t, r, KindTestNotification, "")
	if !resp.Success {
		t.Fatalf("expected success, got %+v", resp)
	}

	msgs := st.List()
	if len(msgs) != 1 {
		t.Fatalf("expected 1 stored message, got %d", len(msgs))
	}
	m := msgs[0]
	if m.Type != store.TypeTest {
		t.Errorf("expected type %q, got %q", store.TypeTest, m.Type)
	}
	if m.Status != store.StatusSent {
		t.Errorf("expected status %q, got %q", store.StatusSent, m.Status)
	}
	if m.Title != "Test Push Notification" {
		t.Errorf("unexpected title %q", m.Title)
	}

	if len(sender.delivered) != 1 {
		t.Fatalf("expected 1 delivery, got %d", len(sender.delivered))
	}
	d := sender.delivered[0]
	if !strings.HasPrefix(d.Tag, "test-") {
		t.Errorf("expected test- tag prefix, got %q", d.Tag)
	}
	if isTest, _ := d.Data["isTest"].(bool); !isTest {
		t.Errorf("expected isTest marker in data, got %v", d.Data)
	}
}

func TestDispatchTestNotificationOverrides(t *testing.T) {
	r, sender, _, _ := newTestRouter(t)

	resp := dispatchJSON(t, r, KindTestNotification,
		`{"title":"Custom","body":"Custom body","data":{"extra":"x"}}`)
	if !resp.Success {
		t.Fatalf("expected success, got %+v", resp)
	}

	d := sender.delivered[0]
	if d.Title != "Custom" || d.Body != "Custom body" {
		t.Errorf("overrides not applied: %+v", d)
	}
	if d.Data["extra"] != "x" {
		t.Errorf("expected merged data, got %v", d.Data)
	}
	if isTest, _ := d.Data["isTest"].(bool); !isTest {
		t.Errorf("merge must keep the isTest marker, got %v", d.Data)
	}
}

func TestDispatchTestNotificationDisplayFailure(t *testing.T) {
	r, sender, st, _ := newTestRouter(t)
	sender.failWith = context.DeadlineExceeded

	resp := dispatchJSON(t, r, KindTestNotification, "")
	if resp.Error == "" {
		t.Fatalf("expected error response, got %+v", resp)
	}
	if st.Count() != 1 {
		t.Errorf("message should stay recorded on display failure, got %d", st.Count())
	}
}

func TestDispatchUnknownKind(t *testing.T) {
	r, _, _, _ := newTestRouter(t)

	resp := r.Dispatch(context.Background(), Event{Kind: Kind("BOGUS")})
	if resp.Error == "" {
		t.Fatalf("expected error response, got %+v", resp)
	}
	if !strings.Contains(resp.Error, "BOGUS") {
		t.Errorf("error should name the kind, got %q", resp.Error)
	}
}

func TestDispatchMalformedPayload(t *testing.T) {
	r, _, _, _ := newTestRouter(t)

	resp := dispatchJSON(t, r, KindNotificationClicked, `{not json`)
	if resp.Error == "" {
		t.Errorf("expected error for malformed payload, got %+v", resp)
	}
}
