// Package spotify adapts the Spotify Web API to the sync pipeline: a page
// of recent play events plus ranked top-entity lists per time range.
package spotify

import (
	"context"
	"fmt"

	"github.com/zmb3/spotify/v2"
	"golang.org/x/time/rate"

	"github.com/soundlens/go-spotify-soundlens/internal/db"
)

// PageSize is the fixed upstream page size for recent plays and top lists.
const PageSize = 50

// defaultRate spaces outbound API calls; Spotify allows bursts but
// sustained hammering trips its rate limiter.
var defaultRate = rate.NewLimiter(rate.Limit(10), 5)

// Client wraps the Spotify API client with convenience methods.
type Client struct {
	api     *spotify.Client
	limiter *rate.Limiter
}

// Option configures a Client.
type Option func(*Client)

// WithLimiter overrides the outbound rate limiter.
func WithLimiter(l *rate.Limiter) Option {
	return func(c *Client) {
		c.limiter = l
	}
}

// New creates a new Spotify client wrapper.
// The underlying client should already be authenticated.
func New(api *spotify.Client, opts ...Option) *Client {
	c := &Client{
		api:     api,
		limiter: defaultRate,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// UserID returns the current user's Spotify ID.
func (c *Client) UserID(ctx context.Context) (string, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return "", err
	}
	user, err := c.api.CurrentUser(ctx)
	if err != nil {
		return "", fmt.Errorf("getting current user: %w", mapError(err))
	}
	return user.ID, nil
}

// toAPIRange converts a storage time range to the upstream parameter.
func toAPIRange(tr db.TimeRange) spotify.Range {
	switch tr {
	case db.RangeShort:
		return spotify.ShortTermRange
	case db.RangeLong:
		return spotify.LongTermRange
	default:
		return spotify.MediumTermRange
	}
}
