package events

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// WebhookSink posts events at or above MinLevel as JSON to URL.
type WebhookSink struct {
	URL      string
	MinLevel Level
	client   *http.Client
}

// NewWebhookSink creates a sink that forwards warnings and above.
func NewWebhookSink(url string) *WebhookSink {
	return &WebhookSink{
		URL:      url,
		MinLevel: LevelWarning,
		client:   &http.Client{Timeout: 10 * time.Second},
	}
}

// Record posts e if it is severe enough, logging delivery failures.
func (w *WebhookSink) Record(ctx context.Context, e Event) {
	if w.URL == "" || !e.Level.AtLeast(w.MinLevel) {
		return
	}
	if err := w.send(ctx, e); err != nil {
		zap.L().Error("events: failed to send webhook",
			zap.String("event_id", e.ID),
			zap.String("category", string(e.Category)),
			zap.Error(err),
		)
	}
}

func (w *WebhookSink) send(ctx context.Context, e Event) error {
	payload, err := json.Marshal(e)
	if err != nil {
		return eris.Wrap(err, "events: marshal event")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.URL, bytes.NewReader(payload))
	if err != nil {
		return eris.Wrap(err, "events: create webhook request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		return eris.Wrap(err, "events: webhook request")
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode >= 400 {
		return eris.Errorf("events: webhook returned status %d", resp.StatusCode)
	}
	return nil
}
