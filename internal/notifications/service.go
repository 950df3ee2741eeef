package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"folio/internal/config"
)

const userAgent = "folio/0.1"

// Service is the notification surface used by the worker runtime.
type Service interface {
	NotifyJobFailed(ctx context.Context, description string, err error) error
	NotifyQueueCompleted(ctx context.Context, processed, failed int, duration time.Duration) error
	TestNotification(ctx context.Context) error
}

// NewService builds an ntfy-backed Service, or a no-op one when
// notifications.ntfy_topic is empty.
func NewService(cfg *config.Config) Service {
	if cfg == nil || cfg.Notifications.NtfyTopic == "" {
		return noopService{}
	}
	timeout := time.Duration(cfg.Notifications.RequestTimeout) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &ntfyService{
		endpoint:       cfg.Notifications.NtfyTopic,
		client:         &http.Client{Timeout: timeout},
		queueCompleted: cfg.Notifications.QueueCompleted,
	}
}

type payload struct {
	title    string
	message  string
	tags     []string
	priority string
}

type ntfyService struct {
	endpoint       string
	client         *http.Client
	queueCompleted bool
}

func (n *ntfyService) NotifyJobFailed(ctx context.Context, description string, err error) error {
	reason := "unknown error"
	if err != nil {
		reason = strings.TrimSpace(err.Error())
	}
	return n.send(ctx, payload{
		title:    "folio - Task Failed",
		message:  fmt.Sprintf("%s failed: %s", strings.TrimSpace(description), reason),
		tags:     []string{"folio", "task", "failed"},
		priority: "high",
	})
}

func (n *ntfyService) NotifyQueueCompleted(ctx context.Context, processed, failed int, duration time.Duration) error {
	if !n.queueCompleted {
		return nil
	}
	duration = max(duration.Round(time.Second), 0)
	title := "folio - Queue Complete"
	message := fmt.Sprintf("%d tasks processed in %s", processed, duration)
	if failed > 0 {
		title = "folio - Queue Complete (with errors)"
		message = fmt.Sprintf("%d succeeded, %d failed in %s", processed, failed, duration)
	}
	return n.send(ctx, payload{
		title:   title,
		message: message,
		tags:    []string{"folio", "queue", "completed"},
	})
}

func (n *ntfyService) TestNotification(ctx context.Context) error {
	return n.send(ctx, payload{
		title:    "folio - Test",
		message:  "Notification system test",
		tags:     []string{"folio", "test"},
		priority: "low",
	})
}

func (n *ntfyService) send(ctx context.Context, data payload) error {
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
	if data.priority != "" {
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

type noopService struct{}

func (noopService) NotifyJobFailed(context.Context, string, error) error                { return nil }
func (noopService) NotifyQueueCompleted(context.Context, int, int, time.Duration) error { return nil }
func (noopService) TestNotification(context.Context) error                              { return nil }
