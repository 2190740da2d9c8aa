package webhook

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
)

// Handler is the HTTP front door for webhook deliveries. It verifies
// the signature, decodes the envelope fields the router needs and
// hands the event off for dispatch.
type Handler struct {
	secret string
	router *Router
	logger *slog.Logger
}

// NewHandler creates a webhook HTTP handler.
func NewHandler(secret string, router *Router, logger *slog.Logger) *Handler {
	return &Handler{
		secret: secret,
		router: router,
		logger: logger.With("component", "webhook"),
	}
}

// envelope holds the payload fields needed to build the dispatch key.
type envelope struct {
	Action string `json:"action"`
	Sender User   `json:"sender"`
	Label  *Label `json:"label,omitempty"`
}

// Handle receives one webhook delivery.
func (h *Handler) Handle(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(r.Body)
	if err != nil {
		h.logger.Error("error reading payload", "error", err)
		http.Error(w, "Error reading payload", http.StatusBadRequest)
		return
	}

	signature := r.Header.Get("X-Hub-Signature-256")
	if err := ValidateSignatureHeader(signature); err != nil {
		h.logger.Warn("invalid signature header", "error", err)
		http.Error(w, "Invalid signature", http.StatusUnauthorized)
		return
	}
	if !VerifySignature(payload, signature, h.secret) {
		h.logger.Warn("signature verification failed")
		http.Error(w, "Invalid signature", http.StatusUnauthorized)
		return
	}

	evt, err := BuildEvent(r.Header.Get("X-GitHub-Event"), payload)
	if err != nil {
		h.logger.Error("error parsing event", "error", err)
		http.Error(w, "Error parsing event", http.StatusBadRequest)
		return
	}

	outcome, err := h.router.Dispatch(r.Context(), evt)
	if err != nil {
		h.logger.Error("handler failed",
			"event", evt.Type, "action", evt.Action, "error", err)
		http.Error(w, "Event handler failed", http.StatusInternalServerError)
		return
	}

	switch outcome {
	case OutcomeRejected:
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("Sender not authorized, event ignored"))
	case OutcomeUnhandled:
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("Event ignored"))
	default:
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("Event handled"))
	}
}

// BuildEvent decodes the envelope of a delivery into a dispatchable
// Event. The full payload stays attached for the handler to decode.
func BuildEvent(eventType string, payload []byte) (*Event, error) {
	if eventType == "" {
		return nil, fmt.Errorf("missing X-GitHub-Event header")
	}

	var env envelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return nil, fmt.Errorf("failed to decode event payload: %w", err)
	}

	evt := &Event{
		Type:    eventType,
		Action:  env.Action,
		Sender:  env.Sender.Login,
		Payload: payload,
	}
	if env.Label != nil {
		evt.Label = env.Label.Name
	}
	return evt, nil
}

// recordedEvent is the on-disk shape of a captured delivery, as
// written by the event recorder: headers plus the JSON payload.
type recordedEvent struct {
	Headers map[string]string `json:"headers"`
	JSON    json.RawMessage   `json:"json"`
}

// ReadEventFromJSON loads a recorded delivery from a file so a single
// event can be replayed through the router without a server.
func ReadEventFromJSON(path string) (*Event, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read event file: %w", err)
	}

	var rec recordedEvent
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("failed to parse event file %s: %w", path, err)
	}

	eventType := rec.Headers["X-GitHub-Event"]
	if eventType == "" {
		eventType = rec.Headers["x-github-event"]
	}

	return BuildEvent(eventType, rec.JSON)
}

// Replay dispatches a recorded event read from path.
func (h *Handler) Replay(ctx context.Context, path string) (Outcome, error) {
	evt, err := ReadEventFromJSON(path)
	if err != nil {
		return OutcomeUnhandled, err
	}
	return h.router.Dispatch(ctx, evt)
}
