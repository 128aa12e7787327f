package spotify

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/zmb3/spotify/v2"

	"github.com/soundlens/go-spotify-soundlens/internal/aggregate"
)

// RecentlyPlayed retrieves the most recent page of play events, newest
// first. Only a single page is consumed per sync; the aggregation layer is
// built to tolerate overlapping windows, so deeper paging buys nothing.
func (c *Client) RecentlyPlayed(ctx context.Context) ([]aggregate.PlayEvent, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	items, err := c.api.PlayerRecentlyPlayedOpt(ctx, &spotify.RecentlyPlayedOptions{
		Limit: PageSize,
	})
	if err != nil {
		return nil, fmt.Errorf("fetching recent plays: %w", mapError(err))
	}

	events := make([]aggregate.PlayEvent, 0, len(items))
	for _, item := range items {
		events = append(events, convertPlayedItem(item))
	}
	return events, nil
}

// convertPlayedItem converts a Spotify RecentlyPlayedItem to a PlayEvent.
func convertPlayedItem(item spotify.RecentlyPlayedItem) aggregate.PlayEvent {
	var artistID, artistName string
	if len(item.Track.Artists) > 0 {
		// The primary artist carries the play; joined names keep the
		// display value readable for collaborations.
		artistID = item.Track.Artists[0].ID.String()
		names := make([]string, len(item.Track.Artists))
		for i, a := range item.Track.Artists {
			names[i] = a.Name
		}
		artistName = strings.Join(names, ", ")
	}

	return aggregate.PlayEvent{
		TrackID:    item.Track.ID.String(),
		TrackName:  item.Track.Name,
		ArtistID:   artistID,
		ArtistName: artistName,
		PlayedAt:   item.PlayedAt.In(time.UTC),
		DurationMs: int(item.Track.Duration),
	}
}
