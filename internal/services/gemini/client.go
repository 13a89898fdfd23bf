package gemini

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"google.golang.org/genai"

	"recap/internal/config"
	"recap/internal/logging"
	"recap/internal/services"
)

// GenerateFunc produces the raw model response for a prompt. The production
// implementation calls the Gemini API; tests substitute their own.
type GenerateFunc func(ctx context.Context, model, prompt string) (string, error)

// Client wraps the Gemini API with retry and response-cleaning behavior shared
// by the analysis and script stages.
type Client struct {
	generate   GenerateFunc
	maxRetries int
	timeout    time.Duration
	retryUnit  time.Duration
	logger     *slog.Logger
}

// NewClient builds a Gemini-backed client from configuration.
func NewClient(cfg config.Gemini, logger *slog.Logger) (*Client, error) {
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		return nil, services.Wrap(services.ErrConfiguration, "gemini", "new client", "api key is required", nil)
	}

	client, err := genai.NewClient(context.Background(), &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, services.Wrap(services.ErrConfiguration, "gemini", "new client", "create client", err)
	}

	generate := func(ctx context.Context, model, prompt string) (string, error) {
		resp, err := client.Models.GenerateContent(ctx, model, genai.Text(prompt), nil)
		if err != nil {
			return "", fmt.Errorf("gemini API error: %w", err)
		}
		if resp == nil || len(resp.Candidates) == 0 {
			return "", fmt.Errorf("gemini returned no candidates")
		}
		var content strings.Builder
		if resp.Candidates[0].Content != nil {
			for _, part := range resp.Candidates[0].Content.Parts {
				if part.Text != "" {
					content.WriteString(part.Text)
				}
			}
		}
		return content.String(), nil
	}

	return newClient(generate, cfg, logger), nil
}

// NewClientWithGenerator builds a client around a custom generate function.
// Retries back off on a millisecond scale so tests stay fast.
func NewClientWithGenerator(generate GenerateFunc, cfg config.Gemini, logger *slog.Logger) *Client {
	client := newClient(generate, cfg, logger)
	client.retryUnit = time.Millisecond
	return client
}

func newClient(generate GenerateFunc, cfg config.Gemini, logger *slog.Logger) *Client {
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	return &Client{
		generate:   generate,
		maxRetries: cfg.MaxRetries,
		timeout:    timeout,
		retryUnit:  time.Second,
		logger:     logging.NewComponentLogger(logger, "gemini"),
	}
}

// GenerateText runs a prompt through the model, retrying transient failures
// with exponential backoff.
func (c *Client) GenerateText(ctx context.Context, model, prompt string) (string, error) {
	if strings.TrimSpace(model) == "" {
		return "", services.Wrap(services.ErrConfiguration, "gemini", "generate", "model is required", nil)
	}

	var lastErr error
	attempts := c.maxRetries + 1
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			delay := backoffDelay(attempt, c.retryUnit)
			c.logger.Warn("retrying generation",
				logging.String("model", model),
				logging.Int("attempt", attempt+1),
				logging.Duration("delay", delay),
				logging.Error(lastErr),
			)
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(delay):
			}
		}

		attemptCtx, cancel := context.WithTimeout(ctx, c.timeout)
		text, err := c.generate(attemptCtx, model, prompt)
		cancel()
		if err == nil {
			return text, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		if !services.IsRetryable(err) {
			break
		}
	}
	return "", services.Wrap(services.ErrExternalTool, "gemini", "generate", model, lastErr)
}

// GenerateJSON runs a prompt expected to produce a JSON document and decodes
// the response into out. Markdown code fences around the payload are removed
// before decoding.
func (c *Client) GenerateJSON(ctx context.Context, model, prompt string, out any) error {
	text, err := c.GenerateText(ctx, model, prompt)
	if err != nil {
		return err
	}
	cleaned := StripCodeFence(text)
	if err := json.Unmarshal([]byte(cleaned), out); err != nil {
		return services.Wrap(services.ErrExternalTool, "gemini", "decode response", model, err)
	}
	return nil
}

func backoffDelay(attempt int, unit time.Duration) time.Duration {
	delay := unit << (attempt - 1)
	if max := 30 * unit; delay > max {
		delay = max
	}
	return delay
}

// StripCodeFence removes a surrounding markdown code fence from a model
// response, tolerating a language tag on the opening line.
func StripCodeFence(text string) string {
	trimmed := strings.TrimSpace(text)
	if !strings.HasPrefix(trimmed, "```") {
		return trimmed
	}
	trimmed = strings.TrimPrefix(trimmed, "```")
	if idx := strings.Index(trimmed, "\n"); idx >= 0 {
		// Drop the language tag line (e.g. ```json).
		firstLine := strings.TrimSpace(trimmed[:idx])
		if firstLine == "" || isFenceTag(firstLine) {
			trimmed = trimmed[idx+1:]
		}
	}
	trimmed = strings.TrimSuffix(strings.TrimSpace(trimmed), "```")
	return strings.TrimSpace(trimmed)
}

func isFenceTag(value string) bool {
	for _, r := range value {
		if (r < 'a' || r > 'z') && (r < 'A' || r > 'Z') && (r < '0' || r > '9') {
			return false
		}
	}
	return true
}
