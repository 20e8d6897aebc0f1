// Package notify delivers fire-and-forget wagering events to an external
// webhook. Delivery failures are logged and counted, never propagated:
// notifications have no bearing on wagering or settlement correctness.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/sidepot/sidepot/internal/metrics"
)

// Config holds webhook sink configuration
type Config struct {
	WebhookURL    string
	Timeout       time.Duration
	MaxRetries    int
	RatePerSecond float64
	Burst         int
}

// DefaultConfig returns recommended defaults
func DefaultConfig(webhookURL string) Config {
	return Config{
		WebhookURL:    webhookURL,
		Timeout:       10 * time.Second,
		MaxRetries:    2,
		RatePerSecond: 5.0,
		Burst:         10,
	}
}

// event is the JSON body posted to the webhook
type event struct {
	Type      string                 `json:"type"`
	Payload   map[string]interface{} `json:"payload"`
	EmittedAt time.Time              `json:"emitted_at"`
}

// WebhookSink posts events to a webhook, rate limited, in the background.
type WebhookSink struct {
	client  *retryablehttp.Client
	limiter *rate.Limiter
	url     string
	logger  *logrus.Logger
	wg      sync.WaitGroup
}

// NewWebhookSink creates a new webhook notification sink
func NewWebhookSink(cfg Config, logger *logrus.Logger) *WebhookSink {
	retryClient := retryablehttp.NewClient()
	retryClient.HTTPClient.Timeout = cfg.Timeout
	retryClient.RetryMax = cfg.MaxRetries
	retryClient.Logger = nil

	burst := cfg.Burst
	if burst < 1 {
		burst = 1
	}

	return &WebhookSink{
		client:  retryClient,
		limiter: rate.NewLimiter(rate.Limit(cfg.RatePerSecond), burst),
		url:     cfg.WebhookURL,
		logger:  logger,
	}
}

// Emit queues one event for delivery and returns immediately.
func (s *WebhookSink) Emit(eventType string, payload map[string]interface{}) {
	evt := event{
		Type:      eventType,
		Payload:   payload,
		EmittedAt: time.Now().UTC(),
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := s.deliver(evt); err != nil {
			metrics.NotificationsFailedTotal.Inc()
			s.logger.WithError(err).WithField("event_type", evt.Type).Warn("Notification delivery failed")
		}
	}()
}

func (s *WebhookSink) deliver(evt event) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := s.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter error: %w", err)
	}

	body, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook request failed: %w", err)
	}
	defer func() {
		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
	}()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	return nil
}

// Close waits for in-flight deliveries to finish.
func (s *WebhookSink) Close() {
	s.wg.Wait()
}

// NopSink discards all events. Used when notifications are disabled.
type NopSink struct{}

// Emit discards the event.
func (NopSink) Emit(string, map[string]interface{}) {}
