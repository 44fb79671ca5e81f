package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/dukex/agendaflow/pkg/llm"
	"github.com/dukex/agendaflow/pkg/locker"
	"github.com/dukex/agendaflow/pkg/providers"
	"github.com/dukex/agendaflow/pkg/providers/file"
)

// NewCompleter returns the OpenAI-compatible completer.
func NewCompleter(baseURL, apiKey, model string, logger *slog.Logger) llm.Completer {
	return llm.NewOpenAICompleter(llm.OpenAIConfig{
		BaseURL: baseURL,
		APIKey:  apiKey,
		Model:   model,
	}, logger)
}

// NewLocker returns an in-process locker for an empty or "local" URL and a Redis
// locker for redis:// URLs. The returned close function releases the client.
func NewLocker(ctx context.Context, url string, ttl time.Duration, logger *slog.Logger) (locker.Locker, func() error, error) {
	switch {
	case url == "" || url == "local":
		return locker.NewLocal(), func() error { return nil }, nil
	case strings.HasPrefix(url, "redis://"), strings.HasPrefix(url, "rediss://"):
		l, err := locker.NewRedis(ctx, url, ttl, logger)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to initialize redis locker: %w", err)
		}

		return l, l.Close, nil
	default:
		return nil, nil, fmt.Errorf("unsupported locker URL: %s", url)
	}
}

// NewProviders returns file-backed context providers rooted at path. An empty path
// means no integration is connected.
func NewProviders(path string) providers.Set {
	if path == "" {
		return providers.Set{}
	}

	return file.NewProvider(path).Set()
}
