package transport

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"docbot/internal/config"
	"docbot/internal/logging"
)

const userAgent = "docbot/0.1.0"

// Client sends messages to a chat recipient.
type Client interface {
	SendText(ctx context.Context, to, text string) error
	// SendMedia uploads the file at path as a document and returns the id the
	// gateway assigned to the sent message.
	SendMedia(ctx context.Context, to, path, caption, filename string) (string, error)
}

// NewClient builds an Evolution API client when a base URL is configured.
// Without one a LogClient is returned so the bot can run dry.
func NewClient(cfg *config.Config, logger *slog.Logger) Client {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.Transport.BaseURL), "/")
	if baseURL == "" {
		logging.NewComponentLogger(logger, "transport").Warn("transport base_url not configured; replies are only logged",
			logging.String(logging.FieldEventType, "transport_dry_run"),
			logging.String(logging.FieldErrorHint, "set transport.base_url and transport.api_key"),
		)
		return NewLogClient(logger)
	}

	timeout := time.Duration(cfg.Transport.RequestTimeout) * time.Second
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &EvolutionClient{
		baseURL:  baseURL,
		apiKey:   cfg.Transport.APIKey,
		instance: cfg.Transport.Instance,
		client:   &http.Client{Timeout: timeout},
		logger:   logging.NewComponentLogger(logger, "transport"),
	}
}
