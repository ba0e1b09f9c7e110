package orderflow

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/smtp"
	"net/url"
	"strings"
	"time"

	"github.com/sony/gobreaker/v2"
	"golang.org/x/time/rate"
)

/* ---------- user notifier (messaging send API) ---------- */

// sendRequest is the send API payload: who receives which text.
type sendRequest struct {
	Recipient Principal          `json:"recipient"`
	Message   sendMessagePayload `json:"message"`
}

type sendMessagePayload struct {
	Text string `json:"text"`
}

// sendResponse is the subset of the send API response used for diagnostics.
type sendResponse struct {
	MessageID string `json:"message_id,omitempty"`
	Error     *struct {
		Message string `json:"message"`
		Code    int    `json:"code"`
	} `json:"error,omitempty"`
}

// SendAPINotifier delivers texts to users through the platform's send API.
// Outbound calls are throttled with a token-bucket limiter and guarded by a
// circuit breaker so a dead send API does not pile up blocked goroutines.
type SendAPINotifier struct {
	url     string
	token   SecretToken
	client  HTTPClient
	limiter *rate.Limiter
	breaker *gobreaker.CircuitBreaker[string]
	logger  *slog.Logger
}

// NewSendAPINotifier creates a notifier for the configured send API.
func NewSendAPINotifier(cfg *Config, logger *slog.Logger) *SendAPINotifier {
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{
			Timeout: cfg.SendTimeout,
			Transport: &http.Transport{
				MaxIdleConns:        10,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		}
	}

	return &SendAPINotifier{
		url:     cfg.SendAPIURL,
		token:   SecretToken(cfg.PageAccessToken),
		client:  client,
		limiter: rate.NewLimiter(rate.Limit(cfg.SendRateLimit), cfg.SendRateBurst),
		breaker: gobreaker.NewCircuitBreaker[string](gobreaker.Settings{
			Name:        "SendAPICircuitBreaker",
			MaxRequests: cfg.BreakerMaxRequests,
			Interval:    cfg.BreakerInterval,
			Timeout:     cfg.BreakerTimeout,
		}),
		logger: logger,
	}
}

// NotifyUser sends one text message to the given recipient.
func (n *SendAPINotifier) NotifyUser(ctx context.Context, sessionID, text string) error {
	if err := n.limiter.Wait(ctx); err != nil {
		return &APIError{API: "send", Description: "rate limiter wait aborted", Err: err}
	}

	messageID, err := n.breaker.Execute(func() (string, error) {
		return n.send(ctx, sessionID, text)
	})
	if err != nil {
		return err
	}

	n.logger.Debug("message delivered",
		"session_id", sessionID, "message_id", messageID)
	return nil
}

func (n *SendAPINotifier) send(ctx context.Context, sessionID, text string) (string, error) {
	body, err := json.Marshal(sendRequest{
		Recipient: Principal{ID: sessionID},
		Message:   sendMessagePayload{Text: text},
	})
	if err != nil {
		return "", &APIError{API: "send", Description: "failed to marshal request", Err: err}
	}

	endpoint := n.url
	if n.token.Value() != "" {
		endpoint += "?access_token=" + url.QueryEscape(n.token.Value())
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return "", &APIError{API: "send", Description: "failed to create request", Err: err}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return "", &APIError{API: "send", Description: "failed to send request", Err: err}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", &APIError{API: "send", Description: "failed to read response", Err: err}
	}

	var parsed sendResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return "", &APIError{API: "send", Code: resp.StatusCode, Description: "failed to parse response", Err: err}
	}
	if parsed.Error != nil {
		return "", &APIError{API: "send", Code: parsed.Error.Code, Description: parsed.Error.Message}
	}
	if resp.StatusCode != http.StatusOK {
		return "", &APIError{
			API:         "send",
			Code:        resp.StatusCode,
			Description: fmt.Sprintf("unexpected status: %s", http.StatusText(resp.StatusCode)),
		}
	}

	return parsed.MessageID, nil
}

/* ---------- admin notifier (SMTP) ---------- */

// smtpSender abstracts smtp.SendMail for testing.
type smtpSender func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

// SMTPAdminNotifier emails finalized orders to an operator with a fixed
// subject and a plain-text body enumerating every order field.
type SMTPAdminNotifier struct {
	host     string
	port     int
	username string
	password SecretToken
	from     string
	to       string
	subject  string
	timeout  time.Duration
	send     smtpSender
	logger   *slog.Logger
}

// NewSMTPAdminNotifier creates the email notifier from config.
func NewSMTPAdminNotifier(cfg *Config, logger *slog.Logger) *SMTPAdminNotifier {
	return &SMTPAdminNotifier{
		host:     cfg.SMTPHost,
		port:     cfg.SMTPPort,
		username: cfg.SMTPUser,
		password: SecretToken(cfg.SMTPPassword),
		from:     cfg.AdminFrom,
		to:       cfg.AdminTo,
		subject:  cfg.AdminSubject,
		timeout:  cfg.SMTPTimeout,
		send:     smtp.SendMail,
		logger:   logger,
	}
}

// NotifyAdmin emails the order record to the configured operator address.
// The wait is bounded by the configured SMTP timeout and by ctx: smtp.SendMail
// has no deadline of its own, and the caller holds a session lock, so an
// unreachable mail server must not stall message handling. On timeout the
// send goroutine is abandoned to finish on its own.
func (n *SMTPAdminNotifier) NotifyAdmin(ctx context.Context, ord Order) error {
	var auth smtp.Auth
	if n.username != "" {
		auth = smtp.PlainAuth("", n.username, n.password.Value(), n.host)
	}

	addr := fmt.Sprintf("%s:%d", n.host, n.port)
	msg := n.buildMessage(ord)

	ctx, cancel := context.WithTimeout(ctx, n.timeout)
	defer cancel()

	errCh := make(chan error, 1)
	go func() {
		errCh <- n.send(addr, auth, n.from, []string{n.to}, msg)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("sending admin email for order %d: %w", ord.OrderID, err)
		}
	case <-ctx.Done():
		return fmt.Errorf("sending admin email for order %d: %w", ord.OrderID, ctx.Err())
	}

	n.logger.Info("admin notified", "order_id", ord.OrderID, "to", n.to)
	return nil
}

func (n *SMTPAdminNotifier) buildMessage(ord Order) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", n.from)
	fmt.Fprintf(&b, "To: %s\r\n", n.to)
	fmt.Fprintf(&b, "Subject: %s #%d\r\n", n.subject, ord.OrderID)
	b.WriteString("Content-Type: text/plain; charset=utf-8\r\n")
	b.WriteString("\r\n")
	fmt.Fprintf(&b, "Order ID: %d\r\n", ord.OrderID)
	fmt.Fprintf(&b, "Timestamp: %s\r\n", ord.Timestamp)
	fmt.Fprintf(&b, "Session: %s\r\n", ord.SessionID)
	fmt.Fprintf(&b, "Quantity: %d\r\n", ord.Quantity)
	fmt.Fprintf(&b, "Phone: %s\r\n", ord.Phone)
	fmt.Fprintf(&b, "Delivery: %s\r\n", ord.DeliveryMethod)
	fmt.Fprintf(&b, "Detail: %s\r\n", ord.DeliveryDetail)
	fmt.Fprintf(&b, "Status: %s\r\n", ord.Status)
	return []byte(b.String())
}
