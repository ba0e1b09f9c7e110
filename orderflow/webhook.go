package orderflow

import (
	"crypto/subtle"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sony/gobreaker/v2"
	"golang.org/x/time/rate"
)

/* ---------- types ---------- */

// WebhookHandler receives the messaging platform's webhook traffic: the GET
// verification handshake and POSTed message events. Accepted messages are
// forwarded on the Messages channel for the engine to consume.
type WebhookHandler struct {
	logger        *slog.Logger
	verifyToken   string
	webhookSecret string
	allowedDomain string

	Messages    chan InboundMessage
	limiter     *rate.Limiter
	breaker     *gobreaker.CircuitBreaker[any]
	bufferPool  sync.Pool
	maxBodySize int64
}

/* ---------- constructor ---------- */

// NewWebhookHandler creates a webhook handler with all tunables injected.
func NewWebhookHandler(
	logger *slog.Logger,
	verifyToken string,
	webhookSecret string,
	allowedDomain string,
	messages chan InboundMessage,

	rateLimitReq float64,
	rateLimitBurst int,
	maxBodySize int64,

	breakerMaxReq uint32,
	breakerInterval time.Duration,
	breakerTimeout time.Duration,
) *WebhookHandler {

	cbSettings := gobreaker.Settings{
		Name:        "WebhookCircuitBreaker",
		MaxRequests: breakerMaxReq,
		Interval:    breakerInterval,
		Timeout:     breakerTimeout,
	}

	return &WebhookHandler{
		logger:        logger,
		verifyToken:   verifyToken,
		webhookSecret: webhookSecret,
		allowedDomain: allowedDomain,
		Messages:      messages,
		limiter:       rate.NewLimiter(rate.Limit(rateLimitReq), rateLimitBurst),
		breaker:       gobreaker.NewCircuitBreaker[any](cbSettings),
		maxBodySize:   maxBodySize,
		bufferPool: sync.Pool{
			New: func() interface{} {
				b := make([]byte, maxBodySize)
				return &b // store pointer to avoid SA6002 allocation warning
			},
		},
	}
}

/* ---------- HTTP handler ---------- */

func (wh *WebhookHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodGet {
		wh.handleVerification(w, r)
		return
	}

	/* rate-limit check */
	if !wh.limiter.Allow() {
		wh.fail(w, "rate limit exceeded", http.StatusTooManyRequests)
		return
	}

	/* everything else (wrapped by circuit-breaker) */
	_, err := wh.breaker.Execute(func() (interface{}, error) {
		if r.Method != http.MethodPost {
			return nil, ErrMethodNotAllowed
		}
		if wh.allowedDomain != "" && r.Host != wh.allowedDomain {
			return nil, &WebhookError{Code: 403, Message: "forbidden"}
		}
		if wh.webhookSecret != "" &&
			subtle.ConstantTimeCompare([]byte(r.Header.Get("X-Webhook-Secret")), []byte(wh.webhookSecret)) != 1 {
			return nil, ErrUnauthorized
		}

		/* pooled buffer */
		bufPtr := wh.bufferPool.Get().(*[]byte)
		buffer := *bufPtr
		defer wh.bufferPool.Put(bufPtr)

		r.Body = http.MaxBytesReader(w, r.Body, wh.maxBodySize)
		n, err := io.ReadFull(r.Body, buffer)
		if err != nil && err != io.EOF && err != io.ErrUnexpectedEOF {
			return nil, &WebhookError{Code: 500, Message: "failed to read request body", Err: err}
		}
		defer r.Body.Close()

		var event WebhookEvent
		if err := json.Unmarshal(buffer[:n], &event); err != nil {
			return nil, &WebhookError{Code: 400, Message: "invalid JSON payload", Err: err}
		}

		return nil, wh.forward(event)
	})

	if err != nil {
		if whErr, ok := err.(*WebhookError); ok {
			wh.fail(w, whErr.Message, whErr.Code)
		} else {
			wh.fail(w, err.Error(), http.StatusInternalServerError)
		}
		return
	}
	w.WriteHeader(http.StatusOK)
}

// handleVerification answers the platform's webhook subscription handshake:
// echo hub.challenge when hub.mode is "subscribe" and the verify token
// matches, 403 otherwise.
func (wh *WebhookHandler) handleVerification(w http.ResponseWriter, r *http.Request) {
	mode := r.URL.Query().Get("hub.mode")
	token := r.URL.Query().Get("hub.verify_token")
	challenge := r.URL.Query().Get("hub.challenge")

	if mode == "" || token == "" || challenge == "" {
		wh.fail(w, "incomplete verification parameters", http.StatusBadRequest)
		return
	}

	if mode != "subscribe" ||
		subtle.ConstantTimeCompare([]byte(token), []byte(wh.verifyToken)) != 1 {
		wh.fail(w, ErrVerifyTokenMismatch.Message, ErrVerifyTokenMismatch.Code)
		return
	}

	wh.logger.Info("webhook verification successful")
	w.Write([]byte(challenge))
}

// forward extracts text messages from the event envelope and pushes them on
// the Messages channel. Echoes and delivery receipts are skipped. A full
// channel rejects the whole request so the platform retries later.
func (wh *WebhookHandler) forward(event WebhookEvent) error {
	requestID := uuid.NewString()
	forwarded := 0

	for _, entry := range event.Entry {
		for _, msg := range entry.Messaging {
			if msg.Message == nil || msg.Message.IsEcho || msg.Message.Text == "" {
				continue
			}
			select {
			case wh.Messages <- InboundMessage{SessionID: msg.Sender.ID, Text: msg.Message.Text}:
				forwarded++
			default:
				wh.logger.Error("messages channel blocked",
					"request_id", requestID, "session_id", msg.Sender.ID)
				return ErrChannelBlocked
			}
		}
	}

	wh.logger.Info("webhook processed",
		"request_id", requestID, "object", event.Object,
		"entries", len(event.Entry), "forwarded", forwarded)
	return nil
}

func (wh *WebhookHandler) fail(w http.ResponseWriter, msg string, code int) {
	wh.logger.Error(msg)
	http.Error(w, msg, code)
}
