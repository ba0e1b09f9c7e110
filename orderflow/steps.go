package orderflow

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Field names used as session field keys and order record columns.
const (
	FieldQuantity       = "quantity"
	FieldPhone          = "phone"
	FieldDeliveryMethod = "delivery_method"
	FieldDeliveryDetail = "delivery_detail"
)

// StepSpec is one stage of the order-collection sequence: the field it fills,
// the prompt to emit on entry, the re-prompt to emit on invalid input, and
// the validator deciding whether input is accepted.
//
// Prompt receives the session so the delivery-detail question can depend on
// the delivery method chosen earlier. Validate returns the normalized value
// to store and whether the input was accepted.
type StepSpec struct {
	Field    string
	Prompt   func(sess *Session) string
	Invalid  func(sess *Session) string
	Validate func(text string, sess *Session) (string, bool)
}

// buildSteps assembles the fixed step sequence
// quantity -> phone -> delivery method -> delivery detail from the config.
func buildSteps(cfg *Config) ([]StepSpec, error) {
	phoneRe, err := regexp.Compile(cfg.PhonePattern)
	if err != nil {
		return nil, fmt.Errorf("compiling phone pattern: %w", err)
	}

	static := func(s string) func(*Session) string {
		return func(*Session) string { return s }
	}

	deliveryPrompt := cfg.Prompts.Delivery
	for _, opt := range cfg.DeliveryOptions {
		deliveryPrompt += fmt.Sprintf("\n%s — %s", opt.Key, opt.Label)
	}

	steps := []StepSpec{
		{
			Field:   FieldQuantity,
			Prompt:  static(cfg.Prompts.Quantity),
			Invalid: static(cfg.Prompts.QuantityInvalid),
			Validate: func(text string, _ *Session) (string, bool) {
				n, err := strconv.Atoi(strings.TrimSpace(text))
				if err != nil || n <= 0 {
					return "", false
				}
				return strconv.Itoa(n), true
			},
		},
		{
			Field:   FieldPhone,
			Prompt:  static(cfg.Prompts.Phone),
			Invalid: static(cfg.Prompts.PhoneInvalid),
			Validate: func(text string, _ *Session) (string, bool) {
				phone := strings.TrimSpace(text)
				if !phoneRe.MatchString(phone) {
					return "", false
				}
				return phone, true
			},
		},
		{
			Field:   FieldDeliveryMethod,
			Prompt:  static(deliveryPrompt),
			Invalid: static(cfg.Prompts.DeliveryInvalid + "\n" + optionList(cfg.DeliveryOptions)),
			Validate: func(text string, _ *Session) (string, bool) {
				opt, ok := matchDeliveryOption(cfg.DeliveryOptions, text)
				if !ok {
					return "", false
				}
				return opt.Label, true
			},
		},
		{
			Field: FieldDeliveryDetail,
			Prompt: func(sess *Session) string {
				if opt, ok := optionByLabel(cfg.DeliveryOptions, sess.Fields[FieldDeliveryMethod]); ok {
					return opt.DetailPrompt
				}
				return cfg.DeliveryOptions[0].DetailPrompt
			},
			Invalid: static(cfg.Prompts.DetailInvalid),
			Validate: func(text string, _ *Session) (string, bool) {
				detail := strings.TrimSpace(text)
				if detail == "" {
					return "", false
				}
				return detail, true
			},
		},
	}
	return steps, nil
}

// matchDeliveryOption accepts either the option key ("1") or its label
// ("Нова пошта"), case-insensitively.
func matchDeliveryOption(opts []DeliveryOption, text string) (DeliveryOption, bool) {
	want := strings.ToLower(strings.TrimSpace(text))
	for _, opt := range opts {
		if want == strings.ToLower(opt.Key) || want == strings.ToLower(opt.Label) {
			return opt, true
		}
	}
	return DeliveryOption{}, false
}

func optionByLabel(opts []DeliveryOption, label string) (DeliveryOption, bool) {
	for _, opt := range opts {
		if opt.Label == label {
			return opt, true
		}
	}
	return DeliveryOption{}, false
}

func optionList(opts []DeliveryOption) string {
	parts := make([]string, len(opts))
	for i, opt := range opts {
		parts[i] = fmt.Sprintf("%s — %s", opt.Key, opt.Label)
	}
	return strings.Join(parts, "\n")
}

// matchesAny reports whether text contains any of the configured phrases,
// case-insensitively. Matching is substring-based to tolerate messages like
// "хочу замовити" triggering the order flow.
func matchesAny(phrases []string, text string) bool {
	lower := strings.ToLower(text)
	for _, p := range phrases {
		if p == "" {
			continue
		}
		if strings.Contains(lower, strings.ToLower(p)) {
			return true
		}
	}
	return false
}
