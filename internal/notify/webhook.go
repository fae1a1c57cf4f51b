package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"
)

// ErrWebhookURLRequired indicates the webhook URL is empty
var ErrWebhookURLRequired = errors.New("webhook URL is required")

const (
	webhookTimeout = 10 * time.Second
	// EventRecordingFinished is the webhook event name
	EventRecordingFinished = "recording_finished"
)

// WebhookPayload is the JSON body posted to the webhook.
type WebhookPayload struct {
	Event     string `json:"event"`
	Title     string `json:"title"`
	Body      string `json:"body"`
	Timestamp string `json:"timestamp"`
}

// Webhook posts notifications as JSON. Notify returns immediately; the
// request runs on its own goroutine and its outcome is logged.
type Webhook struct {
	url    string
	client *http.Client
	logger *slog.Logger
	wg     sync.WaitGroup
}

// NewWebhook creates a webhook notifier for url.
func NewWebhook(url string, logger *slog.Logger) (*Webhook, error) {
	if url == "" {
		return nil, ErrWebhookURLRequired
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Webhook{
		url:    url,
		client: &http.Client{Timeout: webhookTimeout},
		logger: logger,
	}, nil
}

func (w *Webhook) Notify(ctx context.Context, title, body string) {
	payload := &WebhookPayload{
		Event:     EventRecordingFinished,
		Title:     title,
		Body:      body,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
	// The session may be shutting down; delivery outlives the caller.
	ctx = context.WithoutCancel(ctx)

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		logNotifyResult(w.logger, func() error { return w.send(ctx, payload) }, "webhook")
	}()
}

// Wait blocks until every in-flight delivery has finished.
func (w *Webhook) Wait() {
	w.wg.Wait()
}

func (w *Webhook) send(ctx context.Context, payload *WebhookPayload) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("send webhook request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	return nil
}
