package spotify

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/zmb3/spotify/v2"
	"golang.org/x/oauth2"
)

// Sentinel errors for the upstream failure taxonomy.
var (
	// ErrAuth means the upstream credential is invalid or expired. It is
	// surfaced to the caller unmodified; refreshing credentials is the
	// presentation layer's job, never retried here.
	ErrAuth = errors.New("spotify authentication failed")
)

// defaultRetryAfter is used when the upstream rejects with 429 but gives no
// usable wait hint.
const defaultRetryAfter = 30 * time.Second

// RateLimitedError reports upstream 429 backpressure. The sync attempt is
// aborted and the wait hint carried to the caller rather than retried in a
// loop.
type RateLimitedError struct {
	RetryAfter time.Duration
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("spotify rate limited, retry after %s", e.RetryAfter)
}

// UpstreamError reports a network failure or 5xx from the Spotify API.
// The caller may retry on its next externally-triggered attempt.
type UpstreamError struct {
	Status int
	Err    error
}

func (e *UpstreamError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("spotify API error (status %d): %v", e.Status, e.Err)
	}
	return fmt.Sprintf("spotify API unreachable: %v", e.Err)
}

func (e *UpstreamError) Unwrap() error {
	return e.Err
}

// mapError translates zmb3/spotify and oauth2 failures into the local
// taxonomy. Anything unrecognized is passed through untouched.
func mapError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	var se spotify.Error
	if errors.As(err, &se) {
		switch {
		case se.Status == http.StatusTooManyRequests:
			return &RateLimitedError{RetryAfter: defaultRetryAfter}
		case se.Status == http.StatusUnauthorized || se.Status == http.StatusForbidden:
			return ErrAuth
		case se.Status >= 500:
			return &UpstreamError{Status: se.Status, Err: err}
		}
		return err
	}

	var re *oauth2.RetrieveError
	if errors.As(err, &re) {
		// Token refresh rejected: the stored credential is dead.
		return ErrAuth
	}

	return &UpstreamError{Err: err}
}
