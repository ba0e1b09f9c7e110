package orderflow

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"reflect"
	"regexp"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// validate is the shared validator instance.
var validate *validator.Validate

func init() {
	validate = validator.New(validator.WithRequiredStructEnabled())

	// Use json tags in error messages
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		if name == "" {
			return fld.Name
		}
		return name
	})
}

// DeliveryOption is one selectable delivery method. The user picks an option
// by its Key (typically "1", "2", ...) or by typing the Label; DetailPrompt is
// the follow-up question for that method (branch number vs. street address).
type DeliveryOption struct {
	Key          string `koanf:"key" json:"key" validate:"required"`
	Label        string `koanf:"label" json:"label" validate:"required"`
	DetailPrompt string `koanf:"detail_prompt" json:"detail_prompt" validate:"required"`
}

// Prompts holds the user-facing texts the engine sends at each step.
type Prompts struct {
	Quantity        string `koanf:"quantity" json:"quantity"`
	QuantityInvalid string `koanf:"quantity_invalid" json:"quantity_invalid"`
	Phone           string `koanf:"phone" json:"phone"`
	PhoneInvalid    string `koanf:"phone_invalid" json:"phone_invalid"`
	Delivery        string `koanf:"delivery" json:"delivery"`
	DeliveryInvalid string `koanf:"delivery_invalid" json:"delivery_invalid"`
	DetailInvalid   string `koanf:"detail_invalid" json:"detail_invalid"`
	Cancelled       string `koanf:"cancelled" json:"cancelled"`
	Restart         string `koanf:"restart" json:"restart"`
	TryAgain        string `koanf:"try_again" json:"try_again"`
}

// Config holds all configuration for a Client.
// Use DefaultConfig() to get sensible defaults.
type Config struct {
	// Webhook server
	WebhookPort   int    `koanf:"webhook_port" json:"webhook_port" validate:"min=1,max=65535"`
	VerifyToken   string `koanf:"verify_token" json:"verify_token" validate:"required"`
	WebhookSecret string `koanf:"webhook_secret" json:"webhook_secret"`
	AllowedDomain string `koanf:"allowed_domain" json:"allowed_domain"`
	TLSCertPath   string `koanf:"tls_cert_path" json:"tls_cert_path"`
	TLSKeyPath    string `koanf:"tls_key_path" json:"tls_key_path"`

	// Request settings
	MaxBodySize       int64         `koanf:"max_body_size" json:"max_body_size" validate:"gt=0"`
	ReadTimeout       time.Duration `koanf:"read_timeout" json:"read_timeout"`
	ReadHeaderTimeout time.Duration `koanf:"read_header_timeout" json:"read_header_timeout"`
	WriteTimeout      time.Duration `koanf:"write_timeout" json:"write_timeout"`
	IdleTimeout       time.Duration `koanf:"idle_timeout" json:"idle_timeout"`
	ShutdownTimeout   time.Duration `koanf:"shutdown_timeout" json:"shutdown_timeout"`

	// Rate limiting (inbound webhook)
	RateLimitRequests float64 `koanf:"rate_limit_requests" json:"rate_limit_requests" validate:"gt=0"`
	RateLimitBurst    int     `koanf:"rate_limit_burst" json:"rate_limit_burst" validate:"gt=0"`

	// Circuit breaker (shared tunables for webhook and upstream calls)
	BreakerMaxRequests uint32        `koanf:"breaker_max_requests" json:"breaker_max_requests"`
	BreakerInterval    time.Duration `koanf:"breaker_interval" json:"breaker_interval"`
	BreakerTimeout     time.Duration `koanf:"breaker_timeout" json:"breaker_timeout"`

	// Form engine
	TriggerPhrases  []string         `koanf:"trigger_phrases" json:"trigger_phrases" validate:"min=1"`
	CancelPhrases   []string         `koanf:"cancel_phrases" json:"cancel_phrases" validate:"min=1"`
	PriceKeywords   []string         `koanf:"price_keywords" json:"price_keywords"`
	PhonePattern    string           `koanf:"phone_pattern" json:"phone_pattern" validate:"required"`
	DeliveryOptions []DeliveryOption `koanf:"delivery_options" json:"delivery_options" validate:"min=1,dive"`
	Prompts         Prompts          `koanf:"prompts" json:"prompts"`

	// Price list
	PriceListHeader string    `koanf:"price_list_header" json:"price_list_header"`
	Products        []Product `koanf:"products" json:"products" validate:"dive"`

	// Free-form responder (chat completion API)
	ResponderURL          string        `koanf:"responder_url" json:"responder_url"`
	ResponderAPIKey       string        `koanf:"responder_api_key" json:"responder_api_key"`
	ResponderModel        string        `koanf:"responder_model" json:"responder_model"`
	ResponderSystemPrompt string        `koanf:"responder_system_prompt" json:"responder_system_prompt"`
	ResponderTimeout      time.Duration `koanf:"responder_timeout" json:"responder_timeout" validate:"gt=0"`
	FallbackReply         string        `koanf:"fallback_reply" json:"fallback_reply" validate:"required"`

	// Outbound send API
	SendAPIURL      string        `koanf:"send_api_url" json:"send_api_url"`
	PageAccessToken string        `koanf:"page_access_token" json:"page_access_token"`
	SendTimeout     time.Duration `koanf:"send_timeout" json:"send_timeout" validate:"gt=0"`
	SendRateLimit   float64       `koanf:"send_rate_limit" json:"send_rate_limit" validate:"gt=0"`
	SendRateBurst   int           `koanf:"send_rate_burst" json:"send_rate_burst" validate:"gt=0"`

	// Admin notification (email)
	SMTPHost     string        `koanf:"smtp_host" json:"smtp_host"`
	SMTPPort     int           `koanf:"smtp_port" json:"smtp_port"`
	SMTPUser     string        `koanf:"smtp_user" json:"smtp_user"`
	SMTPPassword string        `koanf:"smtp_password" json:"smtp_password"`
	SMTPTimeout  time.Duration `koanf:"smtp_timeout" json:"smtp_timeout" validate:"gt=0"`
	AdminFrom    string        `koanf:"admin_from" json:"admin_from"`
	AdminTo      string        `koanf:"admin_to" json:"admin_to"`
	AdminSubject string        `koanf:"admin_subject" json:"admin_subject"`

	// Stores
	OrderFilePath string        `koanf:"order_file_path" json:"order_file_path"`
	RedisAddr     string        `koanf:"redis_addr" json:"redis_addr"`
	RedisPassword string        `koanf:"redis_password" json:"redis_password"`
	RedisDB       int           `koanf:"redis_db" json:"redis_db"`
	SessionTTL    time.Duration `koanf:"session_ttl" json:"session_ttl"`

	// Logging
	LogLevel    string `koanf:"log_level" json:"log_level"`
	LogFilePath string `koanf:"log_file_path" json:"log_file_path"`

	// Injected collaborators (not loadable from file or env)
	Logger        *slog.Logger  `koanf:"-" json:"-" validate:"-"`
	HTTPClient    HTTPClient    `koanf:"-" json:"-" validate:"-"`
	SessionStore  SessionStore  `koanf:"-" json:"-" validate:"-"`
	OrderStore    OrderStore    `koanf:"-" json:"-" validate:"-"`
	Responder     Responder     `koanf:"-" json:"-" validate:"-"`
	UserNotifier  UserNotifier  `koanf:"-" json:"-" validate:"-"`
	AdminNotifier AdminNotifier `koanf:"-" json:"-" validate:"-"`
}

// DefaultConfig returns a Config with sensible defaults. The delivery options
// and phrase tables match the store this engine was originally built for and
// are expected to be overridden per deployment.
func DefaultConfig() Config {
	return Config{
		WebhookPort:       8443,
		MaxBodySize:       1048576,
		ReadTimeout:       10 * time.Second,
		ReadHeaderTimeout: 2 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       120 * time.Second,
		ShutdownTimeout:   15 * time.Second,

		RateLimitRequests: 10,
		RateLimitBurst:    20,

		BreakerMaxRequests: 5,
		BreakerInterval:    2 * time.Minute,
		BreakerTimeout:     60 * time.Second,

		TriggerPhrases: []string{"замовити", "замовлення", "order", "buy"},
		CancelPhrases:  []string{"скасувати", "відміна", "cancel"},
		PriceKeywords:  []string{"прайс", "ціна", "price"},
		PhonePattern:   `^\+?380\d{9}$`,
		DeliveryOptions: []DeliveryOption{
			{Key: "1", Label: "Нова пошта", DetailPrompt: "Вкажіть номер відділення Нової пошти:"},
			{Key: "2", Label: "Укрпошта", DetailPrompt: "Вкажіть повну адресу доставки з індексом:"},
		},
		Prompts: Prompts{
			Quantity:        "Вкажіть кількість товару:",
			QuantityInvalid: "Кількість має бути цілим числом більше нуля. Спробуйте ще раз:",
			Phone:           "Вкажіть номер телефону у форматі +380XXXXXXXXX:",
			PhoneInvalid:    "Невірний формат номера телефону. Введіть номер у форматі +380XXXXXXXXX:",
			Delivery:        "Оберіть спосіб доставки:",
			DeliveryInvalid: "Будь ласка, оберіть один із запропонованих способів доставки:",
			DetailInvalid:   "Поле не може бути порожнім. Спробуйте ще раз:",
			Cancelled:       "Замовлення скасовано.",
			Restart:         "Виникла помилка із вашим замовленням. Напишіть \"замовити\", щоб почати знову.",
			TryAgain:        "Вибачте, сталася помилка. Спробуйте, будь ласка, пізніше.",
		},

		PriceListHeader: "Актуальний прайс-лист:",

		ResponderURL:     "https://api.perplexity.ai/chat/completions",
		ResponderModel:   "sonar",
		ResponderTimeout: 10 * time.Second,
		FallbackReply:    "Вибачте, зараз я не можу відповісти. Спробуйте, будь ласка, пізніше.",

		SendAPIURL:    "https://graph.facebook.com/v18.0/me/messages",
		SendTimeout:   10 * time.Second,
		SendRateLimit: 5,
		SendRateBurst: 10,

		SMTPPort:     587,
		SMTPTimeout:  10 * time.Second,
		AdminSubject: "Нове замовлення",

		SessionTTL: 24 * time.Hour,

		LogLevel: "info",
	}
}

// LoadConfig loads configuration from file, env vars, and applies options.
// Configuration precedence (highest to lowest):
//  1. Programmatic options (opts...)
//  2. Environment variables (ORDERFLOW_*)
//  3. Config file (if path provided)
//  4. Default values
func LoadConfig(configPath string, opts ...Option) (*Config, error) {
	k := koanf.New(".")

	// 1. DEFAULTS (lowest priority)
	if err := k.Load(structs.Provider(DefaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("loading defaults: %w", err)
	}

	// 2. CONFIG FILE (if exists)
	if configPath != "" {
		if _, err := os.Stat(configPath); err == nil {
			if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
				return nil, fmt.Errorf("loading config file: %w", err)
			}
		}
	}

	// 3. ENVIRONMENT VARIABLES (ORDERFLOW_*)
	if err := k.Load(env.Provider("ORDERFLOW_", ".", func(s string) string {
		// ORDERFLOW_VERIFY_TOKEN -> verify_token
		return strings.ToLower(strings.TrimPrefix(s, "ORDERFLOW_"))
	}), nil); err != nil {
		return nil, fmt.Errorf("loading env vars: %w", err)
	}

	// Unmarshal to struct
	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unmarshalling config: %w", err)
	}

	// 4. PROGRAMMATIC OPTIONS (highest priority)
	for _, opt := range opts {
		opt.apply(&cfg)
	}

	// Validate
	if err := ValidateConfig(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// ValidateConfig validates the configuration and returns user-friendly errors.
func ValidateConfig(cfg *Config) error {
	if err := validate.Struct(cfg); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			f := verrs[0]
			return fmt.Errorf("config field %s: failed %q validation", f.Field(), f.Tag())
		}
		return fmt.Errorf("config validation: %w", err)
	}

	if _, err := regexp.Compile(cfg.PhonePattern); err != nil {
		return fmt.Errorf("phone_pattern: %w", err)
	}

	if cfg.BreakerMaxRequests == 0 {
		return fmt.Errorf("breaker_max_requests: must be greater than 0")
	}

	seen := make(map[string]bool, len(cfg.DeliveryOptions))
	for _, opt := range cfg.DeliveryOptions {
		key := strings.ToLower(opt.Key)
		if seen[key] {
			return fmt.Errorf("delivery_options: duplicate key %q", opt.Key)
		}
		seen[key] = true
	}

	return nil
}

// ParseLogLevel converts a textual log level into a slog.Level,
// defaulting to info for unknown values.
func ParseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
