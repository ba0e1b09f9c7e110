package orderflow

import (
	"context"
	"net/http"
)

// HTTPClient is an interface for HTTP client operations.
// This allows for mocking HTTP calls in tests.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Ensure http.Client implements HTTPClient.
var _ HTTPClient = (*http.Client)(nil)

// SessionStore holds in-progress order-collection sessions keyed by session id.
// The form engine is the only writer; implementations must be safe for
// concurrent use across different session ids.
type SessionStore interface {
	// Get returns the session for id, or (nil, nil) when no session is active.
	Get(ctx context.Context, id string) (*Session, error)
	// Put creates or replaces the session.
	Put(ctx context.Context, sess *Session) error
	// Delete removes the session. Deleting an absent session is not an error.
	Delete(ctx context.Context, id string) error
}

// OrderStore is an append-only store of finalized orders. Append must assign
// order ids atomically: concurrent completions receive unique sequential ids.
type OrderStore interface {
	// Append assigns the next order id, stamps the record and stores it.
	// The returned id is also written into ord.OrderID.
	Append(ctx context.Context, ord *Order) (int, error)
	// Orders returns a snapshot of all stored orders in append order.
	Orders(ctx context.Context) ([]Order, error)
	// UpdateStatus applies an admin status transition to a stored order.
	UpdateStatus(ctx context.Context, orderID int, status OrderStatus) error
}

// Responder produces a free-form reply for text outside the order flow.
// Implementations may fail; the engine substitutes a fallback reply.
type Responder interface {
	Respond(ctx context.Context, text string) (string, error)
}

// UserNotifier delivers a text message to a user over the messaging channel.
type UserNotifier interface {
	NotifyUser(ctx context.Context, sessionID, text string) error
}

// AdminNotifier delivers a finalized order to an operator.
type AdminNotifier interface {
	NotifyAdmin(ctx context.Context, ord Order) error
}

// Compile-time interface checks.
var (
	_ SessionStore  = (*MemorySessionStore)(nil)
	_ SessionStore  = (*RedisSessionStore)(nil)
	_ OrderStore    = (*MemoryOrderStore)(nil)
	_ OrderStore    = (*FileOrderStore)(nil)
	_ Responder     = (*ChatResponder)(nil)
	_ UserNotifier  = (*SendAPINotifier)(nil)
	_ AdminNotifier = (*SMTPAdminNotifier)(nil)
)
