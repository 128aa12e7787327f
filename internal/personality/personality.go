// Package personality derives a user's listening personality from their
// accumulated daily history and top-artist snapshots.
package personality

import (
	"math"
	"sort"
	"time"
)

// DayRecord is the slice of a daily aggregate the engine needs.
type DayRecord struct {
	Day         time.Time // calendar day, midnight UTC
	TopArtistID string
	TopTrackID  string
}

// TopArtist carries the genre and popularity data attached to a ranked
// top-artist snapshot entry.
type TopArtist struct {
	ID         string
	Genres     []string
	Popularity int
}

// Streak is a maximal run of strictly consecutive calendar days sharing the
// same top artist.
type Streak struct {
	Length   int
	ArtistID string
	Start    time.Time
	End      time.Time
}

// Profile is the full recomputed personality for one user.
type Profile struct {
	Tags           []string
	GenreDiversity float64 // normalized Shannon entropy, in [0,1]
	RepeatRate     float64 // fraction of adjacent day pairs sharing a top track, in [0,1]
	UniqueArtists  int
	Longest        Streak
	Current        Streak
}

// Compute recomputes the profile from the full daily history and the top
// artists combined across all time ranges. It is pure: the same inputs
// always produce the same profile.
func Compute(history []DayRecord, topArtists []TopArtist) Profile {
	days := sortedByDay(history)

	longest, current := DetectStreaks(days)
	p := Profile{
		GenreDiversity: GenreDiversity(topArtists),
		RepeatRate:     RepeatRate(days),
		UniqueArtists:  uniqueArtists(days),
		Longest:        longest,
		Current:        current,
	}
	p.Tags = AssignTags(p, topArtists)
	return p
}

// GenreDiversity computes normalized Shannon entropy over the genre
// frequency distribution of the user's top artists, with each artist
// counted once across all time ranges. A single genre (or none) scores 0;
// a uniform spread over K genres scores 1.
func GenreDiversity(topArtists []TopArtist) float64 {
	counts := make(map[string]int)
	seen := make(map[string]bool)
	total := 0
	for _, a := range topArtists {
		if seen[a.ID] {
			continue
		}
		seen[a.ID] = true
		for _, g := range a.Genres {
			counts[g]++
			total++
		}
	}

	if len(counts) <= 1 || total == 0 {
		return 0
	}

	var entropy float64
	for _, c := range counts {
		p := float64(c) / float64(total)
		entropy -= p * math.Log2(p)
	}

	diversity := entropy / math.Log2(float64(len(counts)))
	// Guard against float drift at the boundaries.
	return math.Min(1, math.Max(0, diversity))
}

// RepeatRate is the fraction of adjacent calendar-day pairs, both with
// data, whose top track is identical. Days separated by a gap contribute
// nothing. Fewer than two days of data yields 0.
func RepeatRate(days []DayRecord) float64 {
	if len(days) < 2 {
		return 0
	}

	pairs, repeats := 0, 0
	for i := 1; i < len(days); i++ {
		if !isNextDay(days[i-1].Day, days[i].Day) {
			continue
		}
		pairs++
		if days[i].TopTrackID == days[i-1].TopTrackID {
			repeats++
		}
	}

	if pairs == 0 {
		return 0
	}
	return float64(repeats) / float64(pairs)
}

// DetectStreaks scans the history for maximal runs of strictly consecutive
// days sharing the same top artist. It returns the longest run seen and the
// run ending at the most recent day. With any history at all the current
// streak has length at least 1: the latest day is trivially a run of one.
func DetectStreaks(days []DayRecord) (longest, current Streak) {
	if len(days) == 0 {
		return Streak{}, Streak{}
	}

	run := Streak{Length: 1, ArtistID: days[0].TopArtistID, Start: days[0].Day, End: days[0].Day}
	longest = run

	for i := 1; i < len(days); i++ {
		d := days[i]
		if isNextDay(days[i-1].Day, d.Day) && d.TopArtistID == run.ArtistID {
			run.Length++
			run.End = d.Day
		} else {
			run = Streak{Length: 1, ArtistID: d.TopArtistID, Start: d.Day, End: d.Day}
		}
		if run.Length > longest.Length {
			longest = run
		}
	}

	return longest, run
}

func uniqueArtists(days []DayRecord) int {
	seen := make(map[string]bool)
	for _, d := range days {
		if d.TopArtistID != "" {
			seen[d.TopArtistID] = true
		}
	}
	return len(seen)
}

func sortedByDay(history []DayRecord) []DayRecord {
	days := make([]DayRecord, len(history))
	copy(days, history)
	sort.Slice(days, func(i, j int) bool {
		return days[i].Day.Before(days[j].Day)
	})
	return days
}

// isNextDay reports whether b is the calendar day immediately after a.
func isNextDay(a, b time.Time) bool {
	return a.AddDate(0, 0, 1).Equal(b)
}
