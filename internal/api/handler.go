package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/pushlens/pushlens/internal/metrics"
	"github.com/pushlens/pushlens/internal/router"
)

// maxPushPayload bounds the raw body of a push delivery. Web push payloads
// are capped around 4KB by the push services; 64KB leaves generous slack.
const maxPushPayload = 64 * 1024

// EventRouter defines the interface for routing inbound events.
type EventRouter interface {
	HandlePush(ctx context.Context, raw []byte)
	Dispatch(ctx context.Context, ev router.Event) router.Response
}

// Deduper defines the interface for ingest deduplication.
type Deduper interface {
	Seen(ctx context.Context, payload []byte) (bool, error)
}

// ErrorResponse represents an error in problem+json format
type ErrorResponse struct {
	Type   string `json:"type"`
	Title  string `json:"title"`
	Status int    `json:"status"`
	Detail string `json:"detail,omitempty"`
}

// Handler holds dependencies for API handlers
type Handler struct {
	logger  *zap.Logger
	router  EventRouter
	deduper Deduper // nil if Redis not configured
}

// NewHandler creates a new API handler
func NewHandler(logger *zap.Logger, router EventRouter) *Handler {
	return &Handler{
		logger:  logger,
		router:  router,
		deduper: nil, // Deduplication disabled by default
	}
}

// NewHandlerWithDedup creates a handler with ingest deduplication support
func NewHandlerWithDedup(logger *zap.Logger, router EventRouter, deduper Deduper) *Handler {
	return &Handler{
		logger:  logger,
		router:  router,
		deduper: deduper,
	}
}

// IngestPush handles POST /v1/push. The body is the raw push payload: it
// may be JSON, plain text, or empty, and the request is always accepted.
func (h *Handler) IngestPush(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	raw, err := io.ReadAll(io.LimitReader(r.Body, maxPushPayload))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Failed to read body", err.Error())
		return
	}

	if h.deduper != nil {
		seen, err := h.deduper.Seen(ctx, raw)
		if err != nil {
			h.logger.Warn("dedup check failed, proceeding", zap.Error(err))
		} else if seen {
			metrics.RecordIngestDuplicate()
			h.logger.Info("duplicate push delivery dropped", zap.Int("bytes", len(raw)))
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusAccepted)
			_ = json.NewEncoder(w).Encode(map[string]string{"status": "duplicate"})
			return
		}
	}

	h.router.HandlePush(ctx, raw)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "accepted"})
}

// TriggerTest handles POST /v1/test. An optional JSON body overrides the
// synthetic notification's title, body, icon or data.
func (h *Handler) TriggerTest(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	raw, err := io.ReadAll(io.LimitReader(r.Body, maxPushPayload))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Failed to read body", err.Error())
		return
	}

	resp := h.router.Dispatch(ctx, router.Event{
		Kind: router.KindTestNotification,
		Data: json.RawMessage(raw),
	})
	if resp.Error != "" {
		h.writeError(w, http.StatusBadGateway, "display_error", "Test notification failed", resp.Error)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "sent"})
}

// ListMessages handles GET /v1/messages
func (h *Handler) ListMessages(w http.ResponseWriter, r *http.Request) {
	resp := h.router.Dispatch(r.Context(), router.Event{Kind: router.KindGetMessages})

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"data":  resp.Messages,
		"count": len(resp.Messages),
	})
}

// ClearMessages handles DELETE /v1/messages
func (h *Handler) ClearMessages(w http.ResponseWriter, r *http.Request) {
	h.router.Dispatch(r.Context(), router.Event{Kind: router.KindClearMessages})

	h.logger.Info("message history cleared")

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "cleared"})
}

// DeleteMessage handles DELETE /v1/messages/{id}
func (h *Handler) DeleteMessage(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Missing message ID", "")
		return
	}

	data, _ := json.Marshal(map[string]string{"id": id})
	resp := h.router.Dispatch(r.Context(), router.Event{
		Kind: router.KindDeleteMessage,
		Data: data,
	})
	if resp.Error != "" {
		h.writeError(w, http.StatusNotFound, "not_found", "Message not found", resp.Error)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(map[string]string{
		"id":     id,
		"status": "deleted",
	})
}

// GetStats handles GET /v1/stats
func (h *Handler) GetStats(w http.ResponseWriter, r *http.Request) {
	resp := h.router.Dispatch(r.Context(), router.Event{Kind: router.KindGetStats})

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(resp.Stats)
}

// ListSubscriptions handles GET /v1/subscriptions
func (h *Handler) ListSubscriptions(w http.ResponseWriter, r *http.Request) {
	resp := h.router.Dispatch(r.Context(), router.Event{Kind: router.KindGetSubscriptions})

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"data":  resp.Subscriptions,
		"count": len(resp.Subscriptions),
	})
}

// DeleteSubscription handles DELETE /v1/subscriptions with a JSON body
// naming the endpoint to remove.
func (h *Handler) DeleteSubscription(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Endpoint string `json:"endpoint"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Malformed JSON body", err.Error())
		return
	}
	if req.Endpoint == "" {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Missing endpoint", "endpoint is required")
		return
	}

	data, _ := json.Marshal(req)
	resp := h.router.Dispatch(r.Context(), router.Event{
		Kind: router.KindDeleteSubscription,
		Data: data,
	})
	if resp.Error != "" {
		h.writeError(w, http.StatusNotFound, "not_found", "Subscription not found", resp.Error)
		return
	}

	h.logger.Info("subscription removed", zap.String("endpoint", req.Endpoint))

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "removed"})
}

// HandleEvent handles POST /v1/events: the generic control-channel
// envelope. Routing failures are reported in-band in the response body;
// only a malformed envelope is an HTTP-level error.
func (h *Handler) HandleEvent(w http.ResponseWriter, r *http.Request) {
	var ev router.Event
	if err := json.NewDecoder(r.Body).Decode(&ev); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Malformed JSON body", err.Error())
		return
	}
	if ev.Kind == "" {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Missing event type", "type is required")
		return
	}

	resp := h.router.Dispatch(r.Context(), ev)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(resp)
}

// Health handles GET /health
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

func (h *Handler) writeError(w http.ResponseWriter, status int, errType, title, detail string) {
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(status)

	_ = json.NewEncoder(w).Encode(ErrorResponse{
		Type:   errType,
		Title:  title,
		Status: status,
		Detail: detail,
	})
}
