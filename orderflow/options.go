package orderflow

import (
	"log/slog"
	"time"
)

// Option configures a Client. Use With* functions to create options.
// This interface-based approach prevents misuse and enables type safety.
type Option interface {
	apply(*Config)
}

// optionFunc wraps a function to implement Option interface.
type optionFunc func(*Config)

func (f optionFunc) apply(c *Config) { f(c) }

// WithVerifyToken sets the webhook verification token.
func WithVerifyToken(token string) Option {
	return optionFunc(func(c *Config) { c.VerifyToken = token })
}

// WithWebhook configures the webhook listener port and optional shared secret.
func WithWebhook(port int, secret string) Option {
	return optionFunc(func(c *Config) {
		c.WebhookPort = port
		c.WebhookSecret = secret
	})
}

// WithWebhookTLS sets TLS certificate paths for the webhook server.
func WithWebhookTLS(certPath, keyPath string) Option {
	return optionFunc(func(c *Config) {
		c.TLSCertPath = certPath
		c.TLSKeyPath = keyPath
	})
}

// WithAllowedDomain restricts webhook requests to a specific domain.
func WithAllowedDomain(domain string) Option {
	return optionFunc(func(c *Config) { c.AllowedDomain = domain })
}

// WithTriggerPhrases sets the phrases that start the order flow.
func WithTriggerPhrases(phrases ...string) Option {
	return optionFunc(func(c *Config) { c.TriggerPhrases = phrases })
}

// WithCancelPhrases sets the phrases that cancel an active order flow.
func WithCancelPhrases(phrases ...string) Option {
	return optionFunc(func(c *Config) { c.CancelPhrases = phrases })
}

// WithPhonePattern sets the regional phone validation pattern.
func WithPhonePattern(pattern string) Option {
	return optionFunc(func(c *Config) { c.PhonePattern = pattern })
}

// WithDeliveryOptions sets the selectable delivery methods.
func WithDeliveryOptions(opts ...DeliveryOption) Option {
	return optionFunc(func(c *Config) { c.DeliveryOptions = opts })
}

// WithProducts sets the price-list product table.
func WithProducts(products ...Product) Option {
	return optionFunc(func(c *Config) { c.Products = products })
}

// WithResponderAPI configures the chat completion endpoint for free-form replies.
func WithResponderAPI(url, apiKey, model string) Option {
	return optionFunc(func(c *Config) {
		c.ResponderURL = url
		c.ResponderAPIKey = apiKey
		c.ResponderModel = model
	})
}

// WithSendAPI configures the outbound messaging send API.
func WithSendAPI(url, pageAccessToken string) Option {
	return optionFunc(func(c *Config) {
		c.SendAPIURL = url
		c.PageAccessToken = pageAccessToken
	})
}

// WithAdminEmail configures SMTP delivery of finalized orders to an operator.
func WithAdminEmail(host string, port int, from, to string) Option {
	return optionFunc(func(c *Config) {
		c.SMTPHost = host
		c.SMTPPort = port
		c.AdminFrom = from
		c.AdminTo = to
	})
}

// WithOrderFile enables the append-only JSONL order store at the given path.
func WithOrderFile(path string) Option {
	return optionFunc(func(c *Config) { c.OrderFilePath = path })
}

// WithRedis enables the Redis-backed session store.
func WithRedis(addr, password string, db int) Option {
	return optionFunc(func(c *Config) {
		c.RedisAddr = addr
		c.RedisPassword = password
		c.RedisDB = db
	})
}

// WithRateLimit sets webhook rate limiting parameters.
func WithRateLimit(requestsPerSecond float64, burst int) Option {
	return optionFunc(func(c *Config) {
		c.RateLimitRequests = requestsPerSecond
		c.RateLimitBurst = burst
	})
}

// WithBreakerConfig configures the circuit breakers.
func WithBreakerConfig(maxRequests uint32, interval, timeout time.Duration) Option {
	return optionFunc(func(c *Config) {
		c.BreakerMaxRequests = maxRequests
		c.BreakerInterval = interval
		c.BreakerTimeout = timeout
	})
}

// WithTimeouts sets HTTP server timeouts.
func WithTimeouts(read, readHeader, write, idle time.Duration) Option {
	return optionFunc(func(c *Config) {
		c.ReadTimeout = read
		c.ReadHeaderTimeout = readHeader
		c.WriteTimeout = write
		c.IdleTimeout = idle
	})
}

// WithMaxBodySize sets the maximum request body size.
func WithMaxBodySize(size int64) Option {
	return optionFunc(func(c *Config) { c.MaxBodySize = size })
}

// WithLogger sets a custom slog.Logger.
func WithLogger(logger *slog.Logger) Option {
	return optionFunc(func(c *Config) { c.Logger = logger })
}

// WithHTTPClient sets a custom HTTP client (useful for testing).
func WithHTTPClient(client HTTPClient) Option {
	return optionFunc(func(c *Config) { c.HTTPClient = client })
}

// WithSessionStore injects a custom session store.
func WithSessionStore(store SessionStore) Option {
	return optionFunc(func(c *Config) { c.SessionStore = store })
}

// WithOrderStore injects a custom order store.
func WithOrderStore(store OrderStore) Option {
	return optionFunc(func(c *Config) { c.OrderStore = store })
}

// WithResponder injects a custom free-form responder.
func WithResponder(r Responder) Option {
	return optionFunc(func(c *Config) { c.Responder = r })
}

// WithUserNotifier injects a custom user notifier.
func WithUserNotifier(n UserNotifier) Option {
	return optionFunc(func(c *Config) { c.UserNotifier = n })
}

// WithAdminNotifier injects a custom admin notifier.
func WithAdminNotifier(n AdminNotifier) Option {
	return optionFunc(func(c *Config) { c.AdminNotifier = n })
}

// Presets for common configurations

// ProductionPreset returns options suitable for production environments.
func ProductionPreset() Option {
	return optionFunc(func(c *Config) {
		c.BreakerMaxRequests = 5
		c.BreakerInterval = 2 * time.Minute
		c.BreakerTimeout = 60 * time.Second
		c.ShutdownTimeout = 30 * time.Second
		c.ResponderTimeout = 10 * time.Second
	})
}

// DevelopmentPreset returns options suitable for development.
func DevelopmentPreset() Option {
	return optionFunc(func(c *Config) {
		c.BreakerMaxRequests = 2
		c.BreakerInterval = 30 * time.Second
		c.BreakerTimeout = 10 * time.Second
		c.ShutdownTimeout = 5 * time.Second
		c.ResponderTimeout = 5 * time.Second
		c.LogLevel = "debug"
	})
}
