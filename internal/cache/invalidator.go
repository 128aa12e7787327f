// Package cache provides the presentation-layer invalidation signal and a
// TTL'd in-memory cache for top-entity snapshot reads.
package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/avast/retry-go"
	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog"
)

// Invalidator signals the presentation layer that a user's data changed.
// Delivery is at-least-once; the receiver treats re-invalidation of an
// already-fresh entry as a no-op.
type Invalidator interface {
	Notify(ctx context.Context, userID string) error
}

// WebhookInvalidator delivers invalidations over HTTP.
type WebhookInvalidator struct {
	client *resty.Client
	url    string
	log    zerolog.Logger
}

// NewWebhookInvalidator creates an invalidator posting to the given URL.
func NewWebhookInvalidator(url string, log zerolog.Logger) *WebhookInvalidator {
	client := resty.New().
		SetTimeout(10*time.Second).
		SetHeader("User-Agent", "soundlens/1.0")
	return &WebhookInvalidator{client: client, url: url, log: log}
}

// Notify posts the invalidation, retrying transient failures so delivery is
// at least once. A still-failing notify is returned to the caller; the sync
// itself has already committed by then.
func (w *WebhookInvalidator) Notify(ctx context.Context, userID string) error {
	err := retry.Do(
		func() error {
			resp, err := w.client.R().
				SetContext(ctx).
				SetBody(map[string]string{"user_id": userID}).
				Post(w.url)
			if err != nil {
				return err
			}
			if resp.IsError() {
				return fmt.Errorf("invalidation endpoint returned %d", resp.StatusCode())
			}
			return nil
		},
		retry.Attempts(3),
		retry.Delay(500*time.Millisecond),
		retry.Context(ctx),
		retry.LastErrorOnly(true),
	)
	if err != nil {
		w.log.Warn().Err(err).Str("user_id", userID).Msg("cache invalidation not delivered")
		return fmt.Errorf("notifying cache invalidation: %w", err)
	}
	return nil
}

// Noop is an Invalidator that does nothing, for deployments without a
// presentation-layer webhook.
type Noop struct{}

// Notify implements Invalidator.
func (Noop) Notify(context.Context, string) error { return nil }

// Multi fans an invalidation out to several invalidators. The first error
// wins but every invalidator still runs.
type Multi []Invalidator

// Notify implements Invalidator.
func (m Multi) Notify(ctx context.Context, userID string) error {
	var first error
	for _, inv := range m {
		if err := inv.Notify(ctx, userID); err != nil && first == nil {
			first = err
		}
	}
	return first
}
