// Package aggregate buckets raw play events into per-day listening
// aggregates in the user's local calendar.
package aggregate

import (
	"sort"
	"time"
)

// PlayEvent is one play from the upstream recently-played feed. Events are
// transient: they are never stored directly, only through day aggregates.
type PlayEvent struct {
	TrackID    string
	TrackName  string
	ArtistID   string
	ArtistName string
	PlayedAt   time.Time // UTC instant
	DurationMs int
}

// DayStat is a per-local-day aggregate candidate.
type DayStat struct {
	Day           time.Time // local calendar day, encoded as midnight UTC
	Minutes       int
	TrackCount    int
	TopArtistID   string
	TopArtistName string
	TopTrackID    string
	TopTrackName  string
}

// Validate splits events into valid ones and a count of malformed entries.
// A malformed event (missing IDs, zero timestamp, negative duration) is
// skipped rather than aborting the whole batch.
func Validate(events []PlayEvent) (valid []PlayEvent, skipped int) {
	valid = make([]PlayEvent, 0, len(events))
	for _, e := range events {
		if e.TrackID == "" || e.ArtistID == "" || e.PlayedAt.IsZero() || e.DurationMs < 0 {
			skipped++
			continue
		}
		valid = append(valid, e)
	}
	return valid, skipped
}

// BuildDayStats groups events by their local calendar date in loc and
// computes one DayStat per distinct date, sorted by date ascending.
//
// The date conversion happens per event, not per batch: two events from the
// same UTC page can land on different local dates around midnight. Minutes
// use round-half-up so the result is deterministic. The top artist and top
// track for a day are the entities with the highest play count, ties broken
// by the most recent play.
func BuildDayStats(events []PlayEvent, loc *time.Location) []DayStat {
	if loc == nil {
		loc = time.UTC
	}

	byDay := make(map[time.Time][]PlayEvent)
	for _, e := range events {
		day := localDate(e.PlayedAt, loc)
		byDay[day] = append(byDay[day], e)
	}

	stats := make([]DayStat, 0, len(byDay))
	for day, dayEvents := range byDay {
		var totalMs int64
		for _, e := range dayEvents {
			totalMs += int64(e.DurationMs)
		}

		topArtistID, topArtistName := topEntity(dayEvents, func(e PlayEvent) (string, string) {
			return e.ArtistID, e.ArtistName
		})
		topTrackID, topTrackName := topEntity(dayEvents, func(e PlayEvent) (string, string) {
			return e.TrackID, e.TrackName
		})

		stats = append(stats, DayStat{
			Day:           day,
			Minutes:       roundMinutes(totalMs),
			TrackCount:    len(dayEvents),
			TopArtistID:   topArtistID,
			TopArtistName: topArtistName,
			TopTrackID:    topTrackID,
			TopTrackName:  topTrackName,
		})
	}

	sort.Slice(stats, func(i, j int) bool {
		return stats[i].Day.Before(stats[j].Day)
	})
	return stats
}

// localDate returns the calendar date of t in loc, normalized to midnight
// UTC so dates compare and map cleanly.
func localDate(t time.Time, loc *time.Location) time.Time {
	local := t.In(loc)
	return time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, time.UTC)
}

// roundMinutes converts milliseconds to whole minutes using round-half-up.
func roundMinutes(ms int64) int {
	return int((ms + 30_000) / 60_000)
}

// topEntity picks the entity with the most plays among events, breaking
// ties by the most recent PlayedAt.
func topEntity(events []PlayEvent, key func(PlayEvent) (string, string)) (id, name string) {
	counts := make(map[string]int)
	latest := make(map[string]time.Time)
	names := make(map[string]string)

	for _, e := range events {
		k, n := key(e)
		counts[k]++
		names[k] = n
		if e.PlayedAt.After(latest[k]) {
			latest[k] = e.PlayedAt
		}
	}

	for k := range counts {
		switch {
		case id == "":
			id = k
		case counts[k] > counts[id]:
			id = k
		case counts[k] == counts[id] && latest[k].After(latest[id]):
			id = k
		case counts[k] == counts[id] && latest[k].Equal(latest[id]) && k < id:
			// Full tie: fall back to lexicographic ID so the pick is stable.
			id = k
		}
	}
	return id, names[id]
}
