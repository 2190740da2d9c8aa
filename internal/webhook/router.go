// Package webhook routes inbound GitHub webhook events to registered
// handlers and exposes the HTTP surface that receives them.
package webhook

import (
	"context"
	"log/slog"

	"github.com/stackforge/layerbot/internal/authz"
)

// Event is one decoded webhook delivery. It is immutable once built
// and lives for a single dispatch cycle.
type Event struct {
	// Type is the X-GitHub-Event header value, e.g. "issue_comment".
	Type string
	// Action is the payload action, e.g. "created" or "labeled".
	Action string
	// Label is the label name for labeled pull_request events; empty
	// otherwise. It acts as a secondary dispatch key.
	Label string
	// Sender is the login of the account that triggered the event.
	Sender string
	// Payload is the raw request body; handlers decode what they need.
	Payload []byte
}

// Outcome classifies how an event left the router.
type Outcome int

const (
	// OutcomeRejected means the sender failed authorization. This is
	// also the path that drops the bot's own comment updates.
	OutcomeRejected Outcome = iota
	// OutcomeDispatched means a handler ran for the event.
	OutcomeDispatched
	// OutcomeUnhandled means no handler matched; the event is
	// acknowledged without action.
	OutcomeUnhandled
)

func (o Outcome) String() string {
	switch o {
	case OutcomeRejected:
		return "rejected"
	case OutcomeDispatched:
		return "dispatched"
	case OutcomeUnhandled:
		return "unhandled"
	default:
		return "unknown"
	}
}

// HandlerFunc processes one dispatched event. A returned error
// propagates to the serving boundary.
type HandlerFunc func(ctx context.Context, evt *Event) error

type routeKey struct {
	event  string
	action string
	label  string
}

// Router maps (event type, action, label) to handlers. The table is
// built once at startup; dispatch holds no state across events.
type Router struct {
	authorizer authz.Authorizer
	routes     map[routeKey]HandlerFunc
	logger     *slog.Logger
}

// NewRouter creates an empty router guarded by the given authorizer.
func NewRouter(authorizer authz.Authorizer, logger *slog.Logger) *Router {
	return &Router{
		authorizer: authorizer,
		routes:     make(map[routeKey]HandlerFunc),
		logger:     logger.With("component", "router"),
	}
}

// Register maps an event type and action to a handler. An empty
// action registers a catch-all for the event type.
func (r *Router) Register(event, action string, fn HandlerFunc) {
	r.routes[routeKey{event: event, action: action}] = fn
}

// RegisterLabeled maps an event type, action and label to a handler.
// Used for pull_request "labeled" events where the label decides the
// path (bot:build vs bot:deploy).
func (r *Router) RegisterLabeled(event, action, label string, fn HandlerFunc) {
	r.routes[routeKey{event: event, action: action, label: label}] = fn
}

// Dispatch authorizes the sender and runs the matching handler.
// Lookup order: exact (type, action, label), then (type, action),
// then the (type) catch-all. Rejected and unhandled events are logged
// and acknowledged; only handler failures return an error.
func (r *Router) Dispatch(ctx context.Context, evt *Event) (Outcome, error) {
	if !r.authorizer.IsAuthorized(evt.Sender) {
		r.logger.Info("account has no permission to send commands to bot",
			"sender", evt.Sender, "event", evt.Type, "action", evt.Action)
		return OutcomeRejected, nil
	}

	keys := []routeKey{
		{event: evt.Type, action: evt.Action, label: evt.Label},
		{event: evt.Type, action: evt.Action},
		{event: evt.Type},
	}
	for _, key := range keys {
		fn, ok := r.routes[key]
		if !ok {
			continue
		}
		if err := fn(ctx, evt); err != nil {
			return OutcomeDispatched, err
		}
		return OutcomeDispatched, nil
	}

	r.logger.Info("no handler for event",
		"event", evt.Type, "action", evt.Action, "label", evt.Label)
	return OutcomeUnhandled, nil
}
