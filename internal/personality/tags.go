package personality

// Personality tag labels.
const (
	TagExplorer       = "Explorer"
	TagLoyalist       = "Loyalist"
	TagRepeatListener = "Repeat Listener"
	TagDiscoverer     = "Discoverer"
	TagMainstream     = "Mainstream"
	TagHipster        = "Hipster"
	TagMusicLover     = "Music Lover"
)

// Tag thresholds. Cut points are a policy decision; they are fixed here as
// named constants so tag assignment is deterministic for given inputs.
const (
	explorerMinDiversity  = 0.75
	loyalistMinStreak     = 7
	repeatListenerMinRate = 0.40
	discovererMinArtists  = 50
	mainstreamMinAvgPop   = 70.0
	hipsterMaxAvgPop      = 30.0
)

// AssignTags maps the computed metrics to a label set. Rules are evaluated
// independently; a user can hold several tags at once. When no rule fires
// and there is any history, the fallback is "Music Lover".
func AssignTags(p Profile, topArtists []TopArtist) []string {
	var tags []string

	if p.GenreDiversity >= explorerMinDiversity {
		tags = append(tags, TagExplorer)
	}
	if p.Longest.Length >= loyalistMinStreak {
		tags = append(tags, TagLoyalist)
	}
	if p.RepeatRate >= repeatListenerMinRate {
		tags = append(tags, TagRepeatListener)
	}
	if p.UniqueArtists >= discovererMinArtists {
		tags = append(tags, TagDiscoverer)
	}

	if avg, ok := meanPopularity(topArtists); ok {
		if avg >= mainstreamMinAvgPop {
			tags = append(tags, TagMainstream)
		} else if avg > 0 && avg <= hipsterMaxAvgPop {
			tags = append(tags, TagHipster)
		}
	}

	if len(tags) == 0 && (p.UniqueArtists > 0 || len(topArtists) > 0) {
		tags = append(tags, TagMusicLover)
	}
	return tags
}

// meanPopularity averages the upstream popularity score over distinct top
// artists. ok is false when there are no artists to average.
func meanPopularity(topArtists []TopArtist) (avg float64, ok bool) {
	sum, n := 0, 0
	seen := make(map[string]bool)
	for _, a := range topArtists {
		if seen[a.ID] {
			continue
		}
		seen[a.ID] = true
		sum += a.Popularity
		n++
	}
	if n == 0 {
		return 0, false
	}
	return float64(sum) / float64(n), true
}
