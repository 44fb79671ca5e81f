package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

const (
	defaultBaseURL = "https://api.openai.com/v1"
	defaultModel   = "gpt-4o-mini"
	defaultTimeout = 90 * time.Second

	// maxResponseBytes caps how much of a completion response is read.
	maxResponseBytes = 4 << 20
)

// OpenAIConfig configures a client for any OpenAI-compatible chat completions API.
type OpenAIConfig struct {
	BaseURL     string
	APIKey      string
	Model       string
	Temperature float64
	HTTPClient  *http.Client
}

// OpenAICompleter calls POST {BaseURL}/chat/completions with a json_schema
// response format.
type OpenAICompleter struct {
	config OpenAIConfig
	client *http.Client
	logger *slog.Logger
}

func NewOpenAICompleter(config OpenAIConfig, logger *slog.Logger) *OpenAICompleter {
	if config.BaseURL == "" {
		config.BaseURL = defaultBaseURL
	}

	if config.Model == "" {
		config.Model = defaultModel
	}

	client := config.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: defaultTimeout}
	}

	return &OpenAICompleter{
		config: config,
		client: client,
		logger: logger.With("module", "openai_completer", "model", config.Model),
	}
}

type chatRequest struct {
	Model          string          `json:"model"`
	Messages       []Message       `json:"messages"`
	Temperature    float64         `json:"temperature"`
	ResponseFormat *responseFormat `json:"response_format,omitempty"`
}

type responseFormat struct {
	Type       string      `json:"type"`
	JSONSchema *jsonSchema `json:"json_schema,omitempty"`
}

type jsonSchema struct {
	Name   string         `json:"name"`
	Schema map[string]any `json:"schema"`
	Strict bool           `json:"strict"`
}

type chatResponse struct {
	Model   string `json:"model"`
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error,omitempty"`
}

func (c *OpenAICompleter) Complete(ctx context.Context, request CompletionRequest) (*CompletionResponse, error) {
	body := chatRequest{
		Model:       c.config.Model,
		Messages:    request.Messages,
		Temperature: c.config.Temperature,
	}

	if request.Schema != nil {
		name := request.SchemaName
		if name == "" {
			name = "response"
		}

		body.ResponseFormat = &responseFormat{
			Type:       "json_schema",
			JSONSchema: &jsonSchema{Name: name, Schema: request.Schema},
		}
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal completion request: %w", err)
	}

	url := strings.TrimSuffix(c.config.BaseURL, "/") + "/chat/completions"

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create completion request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")

	if c.config.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.config.APIKey)
	}

	started := time.Now()

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("completion request failed: %w", err)
	}

	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil {
			c.logger.WarnContext(ctx, "Failed to close response body", "error", closeErr)
		}
	}()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read completion response: %w", err)
	}

	if len(raw) > maxResponseBytes {
		return nil, fmt.Errorf("%w: completion response exceeds %d bytes", ErrResponseTooLarge, maxResponseBytes)
	}

	c.logger.DebugContext(ctx, "Completion received",
		"status", resp.StatusCode,
		"duration", time.Since(started),
	)

	var decoded chatResponse

	if err := json.Unmarshal(raw, &decoded); err != nil {
		if resp.StatusCode >= http.StatusBadRequest {
			return nil, fmt.Errorf("completion service returned status %d", resp.StatusCode)
		}

		return nil, &ParseError{Content: string(raw), Err: err}
	}

	if resp.StatusCode >= http.StatusBadRequest {
		if decoded.Error != nil {
			return nil, fmt.Errorf("completion service returned status %d: %s", resp.StatusCode, decoded.Error.Message)
		}

		return nil, fmt.Errorf("completion service returned status %d", resp.StatusCode)
	}

	if len(decoded.Choices) == 0 || strings.TrimSpace(decoded.Choices[0].Message.Content) == "" {
		return nil, ErrEmptyCompletion
	}

	return &CompletionResponse{
		Content: decoded.Choices[0].Message.Content,
		Model:   decoded.Model,
	}, nil
}
