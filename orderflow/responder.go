package orderflow

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/sony/gobreaker/v2"
)

// chatRequest is the payload for an OpenAI-compatible chat completion API.
type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// chatResponse is the subset of the completion response the responder reads.
type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
		Code    int    `json:"code"`
	} `json:"error,omitempty"`
}

// ChatResponder answers free-form user text through a chat completion API.
// Calls run behind a circuit breaker; when the upstream is down the breaker
// fails fast and the engine falls back to its configured static reply.
type ChatResponder struct {
	url          string
	apiKey       SecretToken
	model        string
	systemPrompt string
	client       HTTPClient
	breaker      *gobreaker.CircuitBreaker[string]
	logger       *slog.Logger
}

// NewChatResponder creates a responder for the configured completion API.
// The system prompt is extended with the rendered price list so the model can
// answer price questions from current data, matching the shop-assistant
// prompt this responder was originally written around.
func NewChatResponder(cfg *Config, logger *slog.Logger) *ChatResponder {
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{
			Timeout: cfg.ResponderTimeout,
			Transport: &http.Transport{
				MaxIdleConns:        10,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		}
	}

	systemPrompt := cfg.ResponderSystemPrompt
	if priceList := RenderPriceList(cfg.PriceListHeader, cfg.Products); priceList != "" {
		if systemPrompt != "" {
			systemPrompt += "\n\n"
		}
		systemPrompt += priceList
	}

	breaker := gobreaker.NewCircuitBreaker[string](gobreaker.Settings{
		Name:        "ResponderCircuitBreaker",
		MaxRequests: cfg.BreakerMaxRequests,
		Interval:    cfg.BreakerInterval,
		Timeout:     cfg.BreakerTimeout,
	})

	return &ChatResponder{
		url:          cfg.ResponderURL,
		apiKey:       SecretToken(cfg.ResponderAPIKey),
		model:        cfg.ResponderModel,
		systemPrompt: systemPrompt,
		client:       client,
		breaker:      breaker,
		logger:       logger,
	}
}

// Respond sends the user text to the completion API and returns the reply.
// Any transport, status or payload problem is returned as an error; the
// caller owns the fallback behavior.
func (r *ChatResponder) Respond(ctx context.Context, text string) (string, error) {
	return r.breaker.Execute(func() (string, error) {
		return r.complete(ctx, text)
	})
}

func (r *ChatResponder) complete(ctx context.Context, text string) (string, error) {
	messages := make([]chatMessage, 0, 2)
	if r.systemPrompt != "" {
		messages = append(messages, chatMessage{Role: "system", Content: r.systemPrompt})
	}
	messages = append(messages, chatMessage{Role: "user", Content: text})

	body, err := json.Marshal(chatRequest{Model: r.model, Messages: messages})
	if err != nil {
		return "", &APIError{API: "completion", Description: "failed to marshal request", Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.url, bytes.NewReader(body))
	if err != nil {
		return "", &APIError{API: "completion", Description: "failed to create request", Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+r.apiKey.Value())

	resp, err := r.client.Do(req)
	if err != nil {
		return "", &APIError{API: "completion", Description: "failed to send request", Err: err}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", &APIError{API: "completion", Description: "failed to read response", Err: err}
	}

	if resp.StatusCode != http.StatusOK {
		return "", &APIError{
			API:         "completion",
			Code:        resp.StatusCode,
			Description: fmt.Sprintf("unexpected status: %s", http.StatusText(resp.StatusCode)),
		}
	}

	var parsed chatResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return "", &APIError{API: "completion", Description: "failed to parse response", Err: err}
	}
	if parsed.Error != nil {
		return "", &APIError{API: "completion", Code: parsed.Error.Code, Description: parsed.Error.Message}
	}
	if len(parsed.Choices) == 0 || parsed.Choices[0].Message.Content == "" {
		return "", &APIError{API: "completion", Description: "empty completion"}
	}

	return parsed.Choices[0].Message.Content, nil
}
