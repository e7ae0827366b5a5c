package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/okian/skillboard/pkg/logger"
	"github.com/okian/skillboard/pkg/metrics"
)

const (
	defaultRatePerSec = 1.0
	defaultBurst      = 5
	defaultTimeout    = 10 * time.Second
)

// Webhook posts notifications to a chat webhook URL as {"content": text}.
// Sends are rate limited on the client side.
type Webhook struct {
	url     string
	client  *http.Client
	limiter *rate.Limiter
	logger  logger.Logger
}

// WebhookOption configures a Webhook.
type WebhookOption func(*Webhook)

// WithRate sets the sustained messages per second and the burst size.
func WithRate(perSec float64, burst int) WebhookOption {
	return func(w *Webhook) {
		if perSec > 0 && burst > 0 {
			w.limiter = rate.NewLimiter(rate.Limit(perSec), burst)
		}
	}
}

// WithHTTPClient sets the HTTP client.
func WithHTTPClient(c *http.Client) WebhookOption {
	return func(w *Webhook) {
		if c != nil {
			w.client = c
		}
	}
}

// WithWebhookLogger sets the logger.
func WithWebhookLogger(l logger.Logger) WebhookOption {
	return func(w *Webhook) {
		if l != nil {
			w.logger = l
		}
	}
}

// NewWebhook creates a webhook Notifier for url.
func NewWebhook(url string, opts ...WebhookOption) *Webhook {
	w := &Webhook{
		url:     url,
		client:  &http.Client{Timeout: defaultTimeout},
		limiter: rate.NewLimiter(rate.Limit(defaultRatePerSec), defaultBurst),
		logger:  logger.Get().Named("notify.webhook"),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

type webhookPayload struct {
	Content string `json:"content"`
}

// Notify implements Notifier. Text longer than MaxMessageLen is sent as
// several messages.
func (w *Webhook) Notify(ctx context.Context, channelID, text string) error {
	for _, chunk := range Split(text, MaxMessageLen) {
		if err := w.send(ctx, chunk); err != nil {
			metrics.RecordNotification("error")
			w.logger.Error(ctx, "webhook delivery failed", logger.String("channel_id", channelID), logger.Error(err))
			return err
		}
		metrics.RecordNotification("ok")
	}
	return nil
}

func (w *Webhook) send(ctx context.Context, content string) error {
	if err := w.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("%w: %w", ErrRateLimited, err)
	}
	body, err := json.Marshal(webhookPayload{Content: content})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("post webhook: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%w: %d", ErrStatus, resp.StatusCode)
	}
	return nil
}
