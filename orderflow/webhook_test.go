package orderflow

import (
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func newTestWebhookHandler(messages chan InboundMessage, secret string) *WebhookHandler {
	return NewWebhookHandler(
		slog.New(slog.DiscardHandler),
		"verify-me",
		secret,
		"",
		messages,
		100, 100, // generous rate limit for tests
		1048576,
		5, time.Minute, time.Minute,
	)
}

func TestWebhookHandler_Verification(t *testing.T) {
	tests := []struct {
		name     string
		query    string
		wantCode int
		wantBody string
	}{
		{
			name:     "valid subscription",
			query:    "hub.mode=subscribe&hub.verify_token=verify-me&hub.challenge=challenge-123",
			wantCode: http.StatusOK,
			wantBody: "challenge-123",
		},
		{
			name:     "wrong token",
			query:    "hub.mode=subscribe&hub.verify_token=wrong&hub.challenge=challenge-123",
			wantCode: http.StatusForbidden,
		},
		{
			name:     "wrong mode",
			query:    "hub.mode=unsubscribe&hub.verify_token=verify-me&hub.challenge=challenge-123",
			wantCode: http.StatusForbidden,
		},
		{
			name:     "missing parameters",
			query:    "hub.mode=subscribe",
			wantCode: http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			wh := newTestWebhookHandler(make(chan InboundMessage, 10), "")
			req := httptest.NewRequest(http.MethodGet, "/webhook?"+tt.query, nil)
			rec := httptest.NewRecorder()

			wh.ServeHTTP(rec, req)

			if rec.Code != tt.wantCode {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantCode)
			}
			if tt.wantBody != "" && rec.Body.String() != tt.wantBody {
				t.Errorf("body = %q, want %q", rec.Body.String(), tt.wantBody)
			}
		})
	}
}

const eventJSON = `{
	"object": "page",
	"entry": [{
		"id": "page-1",
		"messaging": [
			{"sender": {"id": "u1"}, "recipient": {"id": "page-1"}, "message": {"mid": "m1", "text": "hello"}},
			{"sender": {"id": "u2"}, "recipient": {"id": "page-1"}, "message": {"mid": "m2", "text": "замовити"}},
			{"sender": {"id": "u3"}, "recipient": {"id": "page-1"}, "delivery": {"watermark": 123}},
			{"sender": {"id": "page-1"}, "recipient": {"id": "u1"}, "message": {"mid": "m3", "text": "echo", "is_echo": true}}
		]
	}]
}`

func TestWebhookHandler_ForwardsTextMessages(t *testing.T) {
	messages := make(chan InboundMessage, 10)
	wh := newTestWebhookHandler(messages, "")

	req := httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader(eventJSON))
	rec := httptest.NewRecorder()
	wh.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if len(messages) != 2 {
		t.Fatalf("forwarded %d messages, want 2 (receipts and echoes skipped)", len(messages))
	}

	first := <-messages
	if first.SessionID != "u1" || first.Text != "hello" {
		t.Errorf("first message = %+v", first)
	}
	second := <-messages
	if second.SessionID != "u2" || second.Text != "замовити" {
		t.Errorf("second message = %+v", second)
	}
}

func TestWebhookHandler_Errors(t *testing.T) {
	tests := []struct {
		name     string
		method   string
		body     string
		secret   string
		header   map[string]string
		wantCode int
	}{
		{
			name:     "invalid JSON",
			method:   http.MethodPost,
			body:     "{not json",
			wantCode: http.StatusBadRequest,
		},
		{
			name:     "method not allowed",
			method:   http.MethodPut,
			body:     eventJSON,
			wantCode: http.StatusMethodNotAllowed,
		},
		{
			name:     "secret mismatch",
			method:   http.MethodPost,
			body:     eventJSON,
			secret:   "s3cret",
			header:   map[string]string{"X-Webhook-Secret": "wrong"},
			wantCode: http.StatusUnauthorized,
		},
		{
			name:     "secret match",
			method:   http.MethodPost,
			body:     eventJSON,
			secret:   "s3cret",
			header:   map[string]string{"X-Webhook-Secret": "s3cret"},
			wantCode: http.StatusOK,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			wh := newTestWebhookHandler(make(chan InboundMessage, 10), tt.secret)
			req := httptest.NewRequest(tt.method, "/webhook", strings.NewReader(tt.body))
			for k, v := range tt.header {
				req.Header.Set(k, v)
			}
			rec := httptest.NewRecorder()

			wh.ServeHTTP(rec, req)

			if rec.Code != tt.wantCode {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantCode)
			}
		})
	}
}

func TestWebhookHandler_FullChannelRejectsRequest(t *testing.T) {
	messages := make(chan InboundMessage, 1)
	messages <- InboundMessage{SessionID: "blocker", Text: "x"}
	wh := newTestWebhookHandler(messages, "")

	req := httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader(eventJSON))
	rec := httptest.NewRecorder()
	wh.ServeHTTP(rec, req)

	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", rec.Code)
	}
}
