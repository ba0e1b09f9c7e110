package orderflow

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"
)

// Client is the main entry point: it owns the webhook handler, the form
// engine and the stores, wired together from one Config.
// Use New() or NewFromConfig() to create a Client.
type Client struct {
	config  Config
	logger  *slog.Logger
	engine  *Engine
	webhook *WebhookHandler
	orders  OrderStore

	messages chan InboundMessage
	closers  []io.Closer
}

// New creates a Client from defaults plus the given options.
//
// Example:
//
//	client, err := orderflow.New(
//	    orderflow.WithVerifyToken(os.Getenv("VERIFY_TOKEN")),
//	    orderflow.WithSendAPI(sendURL, pageToken),
//	    orderflow.WithResponderAPI(aiURL, aiKey, "sonar"),
//	)
func New(opts ...Option) (*Client, error) {
	cfg := DefaultConfig()
	for _, opt := range opts {
		opt.apply(&cfg)
	}
	if err := ValidateConfig(&cfg); err != nil {
		return nil, err
	}
	return newClient(cfg)
}

// NewFromConfig creates a Client by loading configuration from multiple
// sources. Precedence (highest to lowest): programmatic options,
// ORDERFLOW_* environment variables, config file, defaults.
func NewFromConfig(configPath string, opts ...Option) (*Client, error) {
	cfg, err := LoadConfig(configPath, opts...)
	if err != nil {
		return nil, err
	}
	return newClient(*cfg)
}

// newClient builds collaborators from validated config. Injected
// implementations win over config-driven defaults.
func newClient(cfg Config) (*Client, error) {
	logger := cfg.Logger
	if logger == nil {
		var err error
		logger, err = NewLogger(ParseLogLevel(cfg.LogLevel), cfg.LogFilePath)
		if err != nil {
			return nil, fmt.Errorf("creating logger: %w", err)
		}
	}

	c := &Client{
		config:   cfg,
		logger:   logger,
		messages: make(chan InboundMessage, 100),
	}

	sessions := cfg.SessionStore
	if sessions == nil {
		if cfg.RedisAddr != "" {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			store, err := NewRedisSessionStore(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, cfg.SessionTTL)
			if err != nil {
				return nil, err
			}
			c.closers = append(c.closers, store)
			sessions = store
		} else {
			sessions = NewMemorySessionStore()
		}
	}

	orders := cfg.OrderStore
	if orders == nil {
		if cfg.OrderFilePath != "" {
			store, err := NewFileOrderStore(cfg.OrderFilePath)
			if err != nil {
				return nil, err
			}
			c.closers = append(c.closers, store)
			orders = store
		} else {
			orders = NewMemoryOrderStore()
		}
	}
	c.orders = orders

	users := cfg.UserNotifier
	if users == nil {
		users = NewSendAPINotifier(&c.config, logger)
	}

	admin := cfg.AdminNotifier
	if admin == nil && cfg.SMTPHost != "" && cfg.AdminTo != "" {
		admin = NewSMTPAdminNotifier(&c.config, logger)
	}

	responder := cfg.Responder
	if responder == nil && cfg.ResponderURL != "" && cfg.ResponderAPIKey != "" {
		responder = NewChatResponder(&c.config, logger)
	}

	engine, err := NewEngine(&c.config, logger, sessions, orders, users, admin, responder)
	if err != nil {
		return nil, err
	}
	c.engine = engine

	c.webhook = NewWebhookHandler(
		logger,
		cfg.VerifyToken,
		cfg.WebhookSecret,
		cfg.AllowedDomain,
		c.messages,
		cfg.RateLimitRequests,
		cfg.RateLimitBurst,
		cfg.MaxBodySize,
		cfg.BreakerMaxRequests,
		cfg.BreakerInterval,
		cfg.BreakerTimeout,
	)

	return c, nil
}

// Config returns a copy of the client configuration.
func (c *Client) Config() Config {
	return c.config
}

// Engine returns the conversational form engine for direct dispatch,
// e.g. when the caller runs its own inbound transport.
func (c *Client) Engine() *Engine {
	return c.engine
}

// WebhookHandler returns the HTTP handler for the platform webhook.
// Use this to integrate with your own HTTP server.
func (c *Client) WebhookHandler() http.Handler {
	return c.webhook
}

// Orders returns a snapshot of all finalized orders, for an admin view.
func (c *Client) Orders(ctx context.Context) ([]Order, error) {
	return c.orders.Orders(ctx)
}

// UpdateOrderStatus applies an admin confirmation or rejection to an order.
func (c *Client) UpdateOrderStatus(ctx context.Context, orderID int, status OrderStatus) error {
	return c.orders.UpdateStatus(ctx, orderID, status)
}

// Run consumes inbound messages until ctx is cancelled. Messages are handled
// by a single consumer, which together with the engine's per-session locks
// preserves per-session ordering. Engine faults are contained here: the user
// gets the generic try-again text, never an error page.
func (c *Client) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg := <-c.messages:
			if err := c.engine.Handle(ctx, msg.SessionID, msg.Text); err != nil {
				c.logger.Error("message handling failed",
					"session_id", msg.SessionID, "error", err)
				c.engine.notifyUser(ctx, msg.SessionID, c.config.Prompts.TryAgain)
			}
		}
	}
}

// Serve runs the webhook server and the message consumer until ctx is
// cancelled or either fails.
func (c *Client) Serve(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return StartWebhookServer(ctx, &c.config, c.webhook, c.logger)
	})
	g.Go(func() error {
		err := c.Run(ctx)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})
	return g.Wait()
}

// Close releases store resources (Redis connections, order files).
func (c *Client) Close() error {
	var firstErr error
	for _, closer := range c.closers {
		if err := closer.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
