package normalize

import (
	"encoding/json"
	"testing"
	"time"
)

var testNow = time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)

func testNormalizer() *Normalizer {
	return New(StandardDefaults("https://collector.local/inspector"))
}

func TestNormalize_AbsentPayload(t *testing.T) {
	n := testNormalizer()

	d, src := n.Normalize(nil, testNow)

	if src != SourceDefault {
		t.Fatalf("expected default source, got %s", src)
	}
	if d.Title != "Push Notification" {
		t.Errorf("title: got %q", d.Title)
	}
	if d.Body != "You have a new message" {
		t.Errorf("body: got %q", d.Body)
	}
	if d.Tag != "default" {
		t.Errorf("tag: got %q", d.Tag)
	}
	if d.URL() != "https://collector.local/inspector" {
		t.Errorf("url: got %q", d.URL())
	}
	if ts, ok := d.Data["timestamp"].(int64); !ok || ts != testNow.UnixMilli() {
		t.Errorf("data timestamp: got %v", d.Data["timestamp"])
	}
}

func TestNormalize_CustomPayload(t *testing.T) {
	n := testNormalizer()

	tests := []struct {
		name      string
		payload   string
		wantTitle string
		wantBody  string
		wantURL   string
	}{
		{
			name:      "all fields present",
			payload:   `{"title":"Hi","body":"B","url":"https://x"}`,
			wantTitle: "Hi",
			wantBody:  "B",
			wantURL:   "https://x",
		},
		{
			name:      "body falls back to message",
			payload:   `{"title":"Hi","message":"from message"}`,
			wantTitle: "Hi",
			wantBody:  "from message",
			wantURL:   "",
		},
		{
			name:      "body falls back to content",
			payload:   `{"content":"from content"}`,
			wantTitle: "Push Notification",
			wantBody:  "from content",
			wantURL:   "",
		},
		{
			name:      "empty object keeps defaults",
			payload:   `{}`,
			wantTitle: "Push Notification",
			wantBody:  "You have a new message",
			wantURL:   "",
		},
		{
			name:      "navigate used when url absent",
			payload:   `{"navigate":"https://nav"}`,
			wantTitle: "Push Notification",
			wantBody:  "You have a new message",
			wantURL:   "https://nav",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, src := n.Normalize([]byte(tt.payload), testNow)

			if src != SourceCustom {
				t.Fatalf("expected custom source, got %s", src)
			}
			if d.Title != tt.wantTitle {
				t.Errorf("title: got %q, want %q", d.Title, tt.wantTitle)
			}
			if d.Body != tt.wantBody {
				t.Errorf("body: got %q, want %q", d.Body, tt.wantBody)
			}
			if d.URL() != tt.wantURL {
				t.Errorf("url: got %q, want %q", d.URL(), tt.wantURL)
			}
			if d.Tag != "default" {
				t.Errorf("custom payloads keep the default tag, got %q", d.Tag)
			}
		})
	}
}

func TestNormalize_CustomPayloadCarriesDataVerbatim(t *testing.T) {
	n := testNormalizer()

	d, _ := n.Normalize([]byte(`{"title":"t","data":{"orderId":42,"nested":{"a":1}}}`), testNow)

	raw, ok := d.Data["customData"].(json.RawMessage)
	if !ok {
		t.Fatalf("customData missing or wrong type: %T", d.Data["customData"])
	}

	var decoded map[string]any
	if err := json.Unmarshal(raw, &decoded); err != nil {
		t.Fatalf("customData not valid JSON: %v", err)
	}
	if decoded["orderId"] != float64(42) {
		t.Errorf("customData.orderId: got %v", decoded["orderId"])
	}
}

func TestNormalize_DeclarativePush(t *testing.T) {
	n := testNormalizer()

	payload := `{
		"web_push": 8030,
		"notification": {
			"title": "Declared",
			"body": "declared body",
			"icon": "https://cdn/i.png",
			"badge": "https://cdn/b.png",
			"image": "https://cdn/img.png",
			"tag": "promo",
			"dir": "ltr",
			"lang": "en",
			"vibrate": [100, 50, 100],
			"timestamp": 1700000000000,
			"renotify": true,
			"silent": false,
			"requireInteraction": true,
			"actions": [{"action": "open", "title": "Open"}],
			"navigate": "https://example.com/offer",
			"mutable": true,
			"data": {"campaign": "spring"}
		}
	}`

	d, src := n.Normalize([]byte(payload), testNow)

	if src != SourceDeclarative {
		t.Fatalf("expected declarative source, got %s", src)
	}
	if d.Title != "Declared" || d.Body != "declared body" {
		t.Errorf("title/body: got %q/%q", d.Title, d.Body)
	}
	if d.Tag != "promo" {
		t.Errorf("tag: got %q", d.Tag)
	}
	if d.Timestamp != 1700000000000 {
		t.Errorf("timestamp: got %d", d.Timestamp)
	}
	if d.Renotify == nil || !*d.Renotify {
		t.Error("renotify not mapped")
	}
	if d.Silent == nil || *d.Silent {
		t.Error("silent not mapped")
	}
	if len(d.Vibrate) != 3 {
		t.Errorf("vibrate: got %v", d.Vibrate)
	}
	if len(d.Actions) != 1 || d.Actions[0].Action != "open" {
		t.Errorf("actions: got %v", d.Actions)
	}
	if d.URL() != "https://example.com/offer" {
		t.Errorf("url: got %q", d.URL())
	}
	if m, ok := d.Data["mutable"].(bool); !ok || !m {
		t.Errorf("mutable: got %v", d.Data["mutable"])
	}
}

func TestNormalize_DeclarativeDefaultsTagAndTimestamp(t *testing.T) {
	n := testNormalizer()

	d, src := n.Normalize([]byte(`{"web_push":8030,"notification":{"title":"T"}}`), testNow)

	if src != SourceDeclarative {
		t.Fatalf("expected declarative source, got %s", src)
	}
	if d.Tag != "declarative" {
		t.Errorf("tag should default to declarative, got %q", d.Tag)
	}
	if d.Timestamp != testNow.UnixMilli() {
		t.Errorf("timestamp should default to now, got %d", d.Timestamp)
	}
	// Absent fields must stay absent, not fall back to defaults.
	if d.Body != "" || d.Icon != "" || d.Image != "" {
		t.Errorf("absent fields substituted: body=%q icon=%q image=%q", d.Body, d.Icon, d.Image)
	}
	if d.Data != nil {
		t.Errorf("data bag should be absent, got %v", d.Data)
	}
}

func TestNormalize_MarkerWithoutNotificationIsCustom(t *testing.T) {
	n := testNormalizer()

	d, src := n.Normalize([]byte(`{"web_push":8030,"title":"plain"}`), testNow)

	if src != SourceCustom {
		t.Fatalf("expected custom source, got %s", src)
	}
	if d.Title != "plain" {
		t.Errorf("title: got %q", d.Title)
	}
}

func TestNormalize_UnparsablePayloadBecomesTextBody(t *testing.T) {
	n := testNormalizer()

	d, src := n.Normalize([]byte("plain text"), testNow)

	if src != SourceText {
		t.Fatalf("expected text source, got %s", src)
	}
	if d.Body != "plain text" {
		t.Errorf("body: got %q", d.Body)
	}
	if d.Title != "Push Notification" {
		t.Errorf("other defaults must survive, title: got %q", d.Title)
	}
	if d.URL() != "https://collector.local/inspector" {
		t.Errorf("default url must survive, got %q", d.URL())
	}
}

func TestNormalize_Deterministic(t *testing.T) {
	n := testNormalizer()
	payload := []byte(`{"title":"same","body":"same"}`)

	d1, _ := n.Normalize(payload, testNow)
	d2, _ := n.Normalize(payload, testNow)

	b1, _ := json.Marshal(d1)
	b2, _ := json.Marshal(d2)
	if string(b1) != string(b2) {
		t.Errorf("normalize is not deterministic:\n%s\n%s", b1, b2)
	}
}
