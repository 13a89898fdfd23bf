package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"recap/internal/config"
)

const userAgent = "Recap-Go/0.1.0"

// Service defines the notification surface exposed to pipeline components.
type Service interface {
	NotifyRunStarted(ctx context.Context, source string, stageCount int) error
	NotifyStageCompleted(ctx context.Context, stageLabel string) error
	NotifyRunCompleted(ctx context.Context, episodeRoot string, duration time.Duration) error
	NotifyRunFailed(ctx context.Context, stageLabel string, err error) error
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

	client := &http.Client{Timeout: timeout}
	return &ntfyService{
		endpoint:   topic,
		client:     client,
		stages:     cfg.Notifications.Stages,
		completion: cfg.Notifications.Completion,
		errors:     cfg.Notifications.Errors,
	}
}

type payload struct {
	title    string
	message  string
	tags     []string
	priority string
}

type ntfyService struct {
	endpoint   string
	client     *http.Client
	stages     bool
	completion bool
	errors     bool
}

func (n *ntfyService) NotifyRunStarted(ctx context.Context, source string, stageCount int) error {
	if !n.stages {
		return nil
	}
	source = strings.TrimSpace(source)
	message := fmt.Sprintf("Started pipeline run with %d stages", stageCount)
	if source != "" {
		message = fmt.Sprintf("%s\nSource: %s", message, source)
	}
	data := payload{
		title:   "Recap - Run Started",
		message: message,
		tags:    []string{"recap", "run", "started"},
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyStageCompleted(ctx context.Context, stageLabel string) error {
	if !n.stages {
		return nil
	}
	stageLabel = strings.TrimSpace(stageLabel)
	data := payload{
		title:   "Recap - Stage Complete",
		message: fmt.Sprintf("Completed: %s", stageLabel),
		tags:    []string{"recap", "stage", "completed"},
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyRunCompleted(ctx context.Context, episodeRoot string, duration time.Duration) error {
	if !n.completion {
		return nil
	}
	duration = duration.Round(time.Second)
	if duration < 0 {
		duration = 0
	}
	durationText := duration.String()
	if duration == 0 {
		durationText = "0s"
	}

	episodeRoot = strings.TrimSpace(episodeRoot)
	message := fmt.Sprintf("Pipeline complete in %s", durationText)
	if episodeRoot != "" {
		message = fmt.Sprintf("%s\nEpisode: %s", message, episodeRoot)
	}
	data := payload{
		title:    "Recap - Complete",
		message:  message,
		tags:     []string{"recap", "run", "completed"},
		priority: "high",
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyRunFailed(ctx context.Context, stageLabel string, err error) error {
	if !n.errors {
		return nil
	}
	var builder strings.Builder
	builder.WriteString("Pipeline failed")
	if stageLabel = strings.TrimSpace(stageLabel); stageLabel != "" {
		builder.WriteString(" at ")
		builder.WriteString(stageLabel)
	}
	builder.WriteString(": ")
	if err != nil {
		builder.WriteString(strings.TrimSpace(err.Error()))
	} else {
		builder.WriteString("unknown")
	}

	data := payload{
		title:    "Recap - Error",
		message:  builder.String(),
		tags:     []string{"recap", "error", "alert"},
		priority: "high",
	}
	return n.send(ctx, data)
}

func (n *ntfyService) TestNotification(ctx context.Context) error {
	data := payload{
		title:    "Recap - Test",
		message:  "Notification system test",
		tags:     []string{"recap", "test"},
		priority: "low",
	}
	return n.send(ctx, data)
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

type noopService struct{}

func (noopService) NotifyRunStarted(context.Context, string, int) error             { return nil }
func (noopService) NotifyStageCompleted(context.Context, string) error              { return nil }
func (noopService) NotifyRunCompleted(context.Context, string, time.Duration) error { return nil }
func (noopService) NotifyRunFailed(context.Context, string, error) error            { return nil }
func (noopService) TestNotification(context.Context) error                          { return nil }
