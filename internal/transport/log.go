package transport

import (
	"context"
	"log/slog"
	"path/filepath"
	"sync"

	"github.com/google/uuid"

	"docbot/internal/logging"
)

// Sent records one message handled by a LogClient.
type Sent struct {
	To       string
	Text     string
	Path     string
	Caption  string
	FileName string
	ID       string
}

// LogClient logs outbound messages instead of delivering them. It keeps a
// copy of everything sent so tests can inspect the conversation.
type LogClient struct {
	logger *slog.Logger

	mu   sync.Mutex
	sent []Sent
}

// NewLogClient constructs a LogClient.
func NewLogClient(logger *slog.Logger) *LogClient {
	return &LogClient{logger: logging.NewComponentLogger(logger, "transport")}
}

func (c *LogClient) SendText(ctx context.Context, to, text string) error {
	c.record(Sent{To: to, Text: text})
	logging.WithContext(ctx, c.logger).Info("reply (dry run)", logging.String("to", to), logging.String("text", text))
	return nil
}

func (c *LogClient) SendMedia(ctx context.Context, to, path, caption, filename string) (string, error) {
	if filename == "" {
		filename = filepath.Base(path)
	}
	id := uuid.NewString()
	c.record(Sent{To: to, Path: path, Caption: caption, FileName: filename, ID: id})
	logging.WithContext(ctx, c.logger).Info("media (dry run)",
		logging.String("to", to),
		logging.String("file", filename),
		logging.String("caption", caption),
	)
	return id, nil
}

func (c *LogClient) record(s Sent) {
	c.mu.Lock()
	c.sent = append(c.sent, s)
	c.mu.Unlock()
}

// Sent returns a copy of every message sent so far.
func (c *LogClient) Sent() []Sent {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Sent(nil), c.sent...)
}

// Texts returns the text messages sent so far, in order.
func (c *LogClient) Texts() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []string
	for _, s := range c.sent {
		if s.Path == "" {
			out = append(out, s.Text)
		}
	}
	return out
}

// Media returns the media messages sent so far, in order.
func (c *LogClient) Media() []Sent {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []Sent
	for _, s := range c.sent {
		if s.Path != "" {
			out = append(out, s)
		}
	}
	return out
}
