package spotify

import (
	"context"
	"fmt"

	"github.com/zmb3/spotify/v2"

	"github.com/soundlens/go-spotify-soundlens/internal/db"
)

// TopArtists retrieves the user's ranked top artists for a time range.
func (c *Client) TopArtists(ctx context.Context, tr db.TimeRange) ([]TopEntity, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	page, err := c.api.CurrentUsersTopArtists(ctx, spotify.Limit(PageSize), spotify.Timerange(toAPIRange(tr)))
	if err != nil {
		return nil, fmt.Errorf("fetching top artists (%s): %w", tr, mapError(err))
	}

	entities := make([]TopEntity, 0, len(page.Artists))
	for i, artist := range page.Artists {
		entities = append(entities, TopEntity{
			ID:         artist.ID.String(),
			Name:       artist.Name,
			ImageURL:   firstImageURL(artist.Images),
			Genres:     artist.Genres,
			Popularity: int(artist.Popularity),
			Rank:       i + 1,
		})
	}
	return entities, nil
}

// TopTracks retrieves the user's ranked top tracks for a time range.
func (c *Client) TopTracks(ctx context.Context, tr db.TimeRange) ([]TopEntity, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	page, err := c.api.CurrentUsersTopTracks(ctx, spotify.Limit(PageSize), spotify.Timerange(toAPIRange(tr)))
	if err != nil {
		return nil, fmt.Errorf("fetching top tracks (%s): %w", tr, mapError(err))
	}

	entities := make([]TopEntity, 0, len(page.Tracks))
	for i, track := range page.Tracks {
		entities = append(entities, TopEntity{
			ID:         track.ID.String(),
			Name:       track.Name,
			ImageURL:   firstImageURL(track.Album.Images),
			Popularity: int(track.Popularity),
			Rank:       i + 1,
		})
	}
	return entities, nil
}

func firstImageURL(images []spotify.Image) string {
	if len(images) == 0 {
		return ""
	}
	return images[0].URL
}
