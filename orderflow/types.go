package orderflow

import "time"

// InboundMessage is one user message delivered to the form engine:
// an opaque session identifier and the raw text the user typed.
type InboundMessage struct {
	SessionID string
	Text      string
}

// WebhookEvent is the envelope the messaging platform posts to the webhook.
// See https://developers.facebook.com/docs/messenger-platform/webhooks
type WebhookEvent struct {
	Object string         `json:"object"`
	Entry  []WebhookEntry `json:"entry"`
}

// WebhookEntry is one page entry inside a webhook event.
type WebhookEntry struct {
	ID        string           `json:"id"`
	Time      int64            `json:"time"`
	Messaging []MessagingEvent `json:"messaging"`
}

// MessagingEvent is a single messaging event: who sent what to whom.
type MessagingEvent struct {
	Sender    Principal        `json:"sender"`
	Recipient Principal        `json:"recipient"`
	Timestamp int64            `json:"timestamp"`
	Message   *MessagePayload  `json:"message,omitempty"`
	Delivery  *DeliveryReceipt `json:"delivery,omitempty"`
}

// Principal identifies a messaging participant.
type Principal struct {
	ID string `json:"id"`
}

// MessagePayload carries the text of an inbound message.
type MessagePayload struct {
	MID    string `json:"mid,omitempty"`
	Text   string `json:"text,omitempty"`
	IsEcho bool   `json:"is_echo,omitempty"`
}

// DeliveryReceipt is sent by the platform when messages are delivered.
// Carried for completeness; the engine ignores receipts.
type DeliveryReceipt struct {
	MIDs      []string `json:"mids,omitempty"`
	Watermark int64    `json:"watermark"`
}

// OrderStatus is the lifecycle state of a finalized order. The engine only
// ever creates orders as StatusNew; confirmation and rejection are admin
// actions applied through the order store.
type OrderStatus string

const (
	StatusNew       OrderStatus = "new"
	StatusConfirmed OrderStatus = "confirmed"
	StatusRejected  OrderStatus = "rejected"
)

// Valid reports whether s is one of the known order statuses.
func (s OrderStatus) Valid() bool {
	switch s {
	case StatusNew, StatusConfirmed, StatusRejected:
		return true
	}
	return false
}

// Order is the finalized output of a completed order-collection session.
// Immutable after creation except for Status.
type Order struct {
	OrderID        int         `json:"order_id" validate:"required,gt=0"`
	Timestamp      string      `json:"timestamp" validate:"required"`
	SessionID      string      `json:"session_id" validate:"required"`
	Quantity       int         `json:"quantity" validate:"required,gt=0"`
	Phone          string      `json:"phone" validate:"required"`
	DeliveryMethod string      `json:"delivery_method" validate:"required"`
	DeliveryDetail string      `json:"delivery_detail" validate:"required"`
	Status         OrderStatus `json:"status" validate:"required,oneof=new confirmed rejected"`
}

// Session is an in-progress order-collection context for one user.
// Step indexes into the engine's step sequence and only ever moves forward.
type Session struct {
	SessionID string            `json:"session_id"`
	Step      int               `json:"step"`
	Fields    map[string]string `json:"fields"`
	UpdatedAt time.Time         `json:"updated_at"`
}

// NewSession creates an Active session at the first step of the sequence.
func NewSession(sessionID string) *Session {
	return &Session{
		SessionID: sessionID,
		Step:      0,
		Fields:    make(map[string]string),
		UpdatedAt: time.Now(),
	}
}
