// Package normalize turns raw push payloads into canonical notification
// descriptors. It is pure: no storage, no clock beyond the caller-supplied
// reference time, so every branch is unit-testable in isolation.
package normalize

import (
	"encoding/json"
	"time"
)

// Source identifies which normalization branch produced a descriptor.
type Source string

const (
	SourceDefault     Source = "default"     // no payload present
	SourceDeclarative Source = "declarative" // recognized declarative push shape
	SourceCustom      Source = "custom"      // arbitrary JSON merged onto defaults
	SourceText        Source = "text"        // unparsable payload kept as plain text
)

// declarativeMarker is the sentinel value carried by declarative web push
// payloads in their web_push field.
const declarativeMarker = 8030

// Action is a notification action button.
type Action struct {
	Action string `json:"action"`
	Title  string `json:"title"`
	Icon   string `json:"icon,omitempty"`
}

// Descriptor is the normalized notification payload produced from a raw push
// event, before it becomes a stored message or a displayed notification.
// Absent optional fields stay absent; Data is an opaque bag of which
// consumers only project url, tag and customData.
type Descriptor struct {
	Title              string         `json:"title"`
	Body               string         `json:"body"`
	Icon               string         `json:"icon,omitempty"`
	Badge              string         `json:"badge,omitempty"`
	Image              string         `json:"image,omitempty"`
	Tag                string         `json:"tag,omitempty"`
	Dir                string         `json:"dir,omitempty"`
	Lang               string         `json:"lang,omitempty"`
	Vibrate            []int          `json:"vibrate,omitempty"`
	Timestamp          int64          `json:"timestamp,omitempty"` // unix millis
	Renotify           *bool          `json:"renotify,omitempty"`
	Silent             *bool          `json:"silent,omitempty"`
	RequireInteraction *bool          `json:"requireInteraction,omitempty"`
	Actions            []Action       `json:"actions,omitempty"`
	Data               map[string]any `json:"data,omitempty"`
}

// URL returns the navigation target carried in the data bag, if any.
func (d Descriptor) URL() string {
	if d.Data == nil {
		return ""
	}
	if u, ok := d.Data["url"].(string); ok {
		return u
	}
	return ""
}

// Defaults supplies the fixed fallback values used when a payload is absent
// or carries no usable fields.
type Defaults struct {
	Title     string
	Body      string
	Icon      string
	Badge     string
	TargetURL string // default navigation target for clicks
}

// StandardDefaults mirrors the collector's built-in fallback notification.
func StandardDefaults(targetURL string) Defaults {
	return Defaults{
		Title:     "Push Notification",
		Body:      "You have a new message",
		Icon:      "/icons/icon48.png",
		Badge:     "/icons/icon16.png",
		TargetURL: targetURL,
	}
}

// Normalizer maps raw push payloads onto Descriptors.
type Normalizer struct {
	defaults Defaults
}

// New creates a Normalizer with the given fallback values.
func New(d Defaults) *Normalizer {
	return &Normalizer{defaults: d}
}

// rawPayload covers both recognized payload shapes; unknown fields are
// ignored by encoding/json.
type rawPayload struct {
	WebPush      *int             `json:"web_push"`
	Notification *rawNotification `json:"notification"`

	Title    string          `json:"title"`
	Body     string          `json:"body"`
	Message  string          `json:"message"`
	Content  string          `json:"content"`
	Icon     string          `json:"icon"`
	Image    string          `json:"image"`
	URL      string          `json:"url"`
	Navigate string          `json:"navigate"`
	Data     json.RawMessage `json:"data"`
}

type rawNotification struct {
	Title              string          `json:"title"`
	Body               string          `json:"body"`
	Icon               string          `json:"icon"`
	Badge              string          `json:"badge"`
	Image              string          `json:"image"`
	Tag                string          `json:"tag"`
	Dir                string          `json:"dir"`
	Lang               string          `json:"lang"`
	Vibrate            []int           `json:"vibrate"`
	Timestamp          int64           `json:"timestamp"`
	Renotify           *bool           `json:"renotify"`
	Silent             *bool           `json:"silent"`
	RequireInteraction *bool           `json:"requireInteraction"`
	Actions            []Action        `json:"actions"`
	Navigate           string          `json:"navigate"`
	Mutable            *bool           `json:"mutable"`
	Data               json.RawMessage `json:"data"`
}

// Normalize converts a raw push payload into a Descriptor. raw may be nil or
// empty (push events can arrive without a payload). now anchors generated
// timestamps so callers and tests control the clock.
//
// Branches, in order: absent payload -> fixed defaults; declarative push
// (web_push marker plus notification object) -> 1:1 field mapping; any other
// JSON -> merge onto defaults; unparsable bytes -> defaults with the payload
// kept as plain-text body.
func (n *Normalizer) Normalize(raw []byte, now time.Time) (Descriptor, Source) {
	d := n.defaultDescriptor(now)

	if len(raw) == 0 {
		return d, SourceDefault
	}

	var p rawPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		d.Body = string(raw)
		return d, SourceText
	}

	if p.WebPush != nil && *p.WebPush == declarativeMarker && p.Notification != nil {
		return n.declarative(p.Notification, now), SourceDeclarative
	}

	return n.custom(d, &p), SourceCustom
}

func (n *Normalizer) defaultDescriptor(now time.Time) Descriptor {
	return Descriptor{
		Title: n.defaults.Title,
		Body:  n.defaults.Body,
		Icon:  n.defaults.Icon,
		Badge: n.defaults.Badge,
		Tag:   "default",
		Data: map[string]any{
			"url":       n.defaults.TargetURL,
			"timestamp": now.UnixMilli(),
		},
	}
}

// declarative maps every recognized notification sub-field 1:1. Only tag and
// timestamp get substitutes when absent; everything else stays as delivered.
func (n *Normalizer) declarative(nf *rawNotification, now time.Time) Descriptor {
	d := Descriptor{
		Title:              nf.Title,
		Body:               nf.Body,
		Icon:               nf.Icon,
		Badge:              nf.Badge,
		Image:              nf.Image,
		Tag:                nf.Tag,
		Dir:                nf.Dir,
		Lang:               nf.Lang,
		Vibrate:            nf.Vibrate,
		Timestamp:          nf.Timestamp,
		Renotify:           nf.Renotify,
		Silent:             nf.Silent,
		RequireInteraction: nf.RequireInteraction,
		Actions:            nf.Actions,
	}

	if d.Tag == "" {
		d.Tag = "declarative"
	}
	if d.Timestamp == 0 {
		d.Timestamp = now.UnixMilli()
	}

	data := map[string]any{}
	if nf.Navigate != "" {
		data["url"] = nf.Navigate
	}
	if len(nf.Data) > 0 {
		data["customData"] = json.RawMessage(nf.Data)
	}
	if nf.Mutable != nil {
		data["mutable"] = *nf.Mutable
	}
	if len(data) > 0 {
		d.Data = data
	}

	return d
}

// custom merges an arbitrary JSON payload onto the defaults. The body falls
// back through body -> message -> content -> default; the navigation target
// through url -> navigate.
func (n *Normalizer) custom(d Descriptor, p *rawPayload) Descriptor {
	if p.Title != "" {
		d.Title = p.Title
	}

	switch {
	case p.Body != "":
		d.Body = p.Body
	case p.Message != "":
		d.Body = p.Message
	case p.Content != "":
		d.Body = p.Content
	}

	if p.Icon != "" {
		d.Icon = p.Icon
	}
	if p.Image != "" {
		d.Image = p.Image
	}

	switch {
	case p.URL != "":
		d.Data["url"] = p.URL
	case p.Navigate != "":
		d.Data["url"] = p.Navigate
	default:
		// The payload named no target at all; the default one does not
		// survive the merge for custom payloads.
		delete(d.Data, "url")
	}

	if len(p.Data) > 0 {
		d.Data["customData"] = json.RawMessage(p.Data)
	}

	return d
}
