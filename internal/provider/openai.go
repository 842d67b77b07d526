package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"docgen-backend/internal/config"
)

// OpenAI talks to an OpenAI-compatible chat completions endpoint.
type OpenAI struct {
	baseURL    string
	apiKey     string
	model      string
	httpClient *http.Client
	log        *zap.SugaredLogger
}

func NewOpenAI(cfg config.Config, log *zap.SugaredLogger, model string) *OpenAI {
	timeout := cfg.GenerateTimeout
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	return &OpenAI{
		baseURL:    cfg.OpenAIBaseURL,
		apiKey:     cfg.OpenAIAPIKey,
		model:      model,
		httpClient: &http.Client{Timeout: timeout},
		log:        log.With("component", "openai"),
	}
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

// Generate sends a single-turn completion request. All failures, including a
// tripped deadline, come back as a *GenerationError so callers can fail the
// owning job with the provider's detail.
func (c *OpenAI) Generate(ctx context.Context, prompt string) (string, error) {
	body, err := json.Marshal(chatRequest{
		Model:       c.model,
		Messages:    []chatMessage{{Role: "user", Content: prompt}},
		Temperature: 0.6,
		MaxTokens:   1024,
	})
	if err != nil {
		return "", &GenerationError{Provider: "openai", Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", &GenerationError{Provider: "openai", Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", &GenerationError{Provider: "openai", Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", &GenerationError{Provider: "openai", Err: err}
	}

	var parsed chatResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return "", &GenerationError{Provider: "openai", Err: fmt.Errorf("decode response (status %d): %w", resp.StatusCode, err)}
	}
	if resp.StatusCode != http.StatusOK {
		detail := "unexpected status"
		if parsed.Error != nil {
			detail = parsed.Error.Message
		}
		return "", &GenerationError{Provider: "openai", Err: fmt.Errorf("status %d: %s", resp.StatusCode, detail)}
	}
	if len(parsed.Choices) == 0 {
		return "", &GenerationError{Provider: "openai", Err: fmt.Errorf("empty choices in response")}
	}

	c.log.Debugw("completion finished", "model", c.model, "elapsed", time.Since(start))
	return parsed.Choices[0].Message.Content, nil
}
