package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"docbot/internal/config"
)

const userAgent = "docbot/0.1.0"

// Service defines the alert surface exposed to the workflow manager.
type Service interface {
	NotifyWorkflowFailed(ctx context.Context, workflow, sender string, err error) error
	NotifyStoreDegraded(ctx context.Context, backend string, err error) error
	TestNotification(ctx context.Context) error
}

// NewService builds a notification service backed by ntfy when configured.
// When no ntfy topic is configured, a noop implementation is returned.
func NewService(cfg *config.Config) Service {
	topic := strings.TrimSpace(cfg.Notifications.NtfyTopic)
	if topic == "" {
		return noopService{}
	}

	timeout := time.Duration(cfg.Notifications.RequestTimeout) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &ntfyService{
		endpoint: topic,
		client:   &http.Client{Timeout: timeout},
	}
}

// Enabled reports whether svc delivers anywhere.
func Enabled(svc Service) bool {
	if svc == nil {
		return false
	}
	_, noop := svc.(noopService)
	return !noop
}

type payload struct {
	title    string
	message  string
	tags     []string
	priority string
}

type ntfyService struct {
	endpoint string
	client   *http.Client
}

func (n *ntfyService) NotifyWorkflowFailed(ctx context.Context, workflow, sender string, err error) error {
	workflow = strings.TrimSpace(workflow)
	if workflow == "" {
		workflow = "unknown workflow"
	}
	var builder strings.Builder
	builder.WriteString("❌ ")
	builder.WriteString(workflow)
	builder.WriteString(" failed")
	if sender = strings.TrimSpace(sender); sender != "" {
		builder.WriteString(" for ")
		builder.WriteString(maskSender(sender))
	}
	builder.WriteString(": ")
	if err != nil {
		builder.WriteString(strings.TrimSpace(err.Error()))
	} else {
		builder.WriteString("unknown")
	}

	return n.send(ctx, payload{
		title:    "docbot - Workflow Failed",
		message:  builder.String(),
		tags:     []string{"docbot", "workflow", "error"},
		priority: "high",
	})
}

func (n *ntfyService) NotifyStoreDegraded(ctx context.Context, backend string, err error) error {
	message := fmt.Sprintf("⚠️ %s state store unavailable; conversations now live in memory", strings.TrimSpace(backend))
	if err != nil {
		message += "\n" + strings.TrimSpace(err.Error())
	}
	return n.send(ctx, payload{
		title:    "docbot - State Store Degraded",
		message:  message,
		tags:     []string{"docbot", "state", "degraded"},
		priority: "high",
	})
}

func (n *ntfyService) TestNotification(ctx context.Context) error {
	return n.send(ctx, payload{
		title:    "docbot - Test",
		message:  "🧪 Notification system test",
		tags:     []string{"docbot", "test"},
		priority: "low",
	})
}

func (n *ntfyService) send(ctx context.Context, data payload) error {
	if n == nil || n.client == nil {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, strings.NewReader(data.message))
	if err != nil {
		return fmt.Errorf("build ntfy request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	if data.title != "" {
		req.Header.Set("Title", data.title)
	}
	if len(data.tags) > 0 {
		req.Header.Set("Tags", strings.Join(data.tags, ","))
	}
	if data.priority != "" && data.priority != "default" {
		req.Header.Set("Priority", data.priority)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send ntfy notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("ntfy returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

// maskSender keeps the last four digits of a chat id so alerts on a public
// topic do not carry full phone numbers.
func maskSender(sender string) string {
	local, _, _ := strings.Cut(sender, "@")
	if len(local) <= 4 {
		return local
	}
	return strings.Repeat("*", len(local)-4) + local[len(local)-4:]
}

type noopService struct{}

func (noopService) NotifyWorkflowFailed(context.Context, string, string, error) error { return nil }
func (noopService) NotifyStoreDegraded(context.Context, string, error) error          { return nil }
func (noopService) TestNotification(context.Context) error                            { return nil }
