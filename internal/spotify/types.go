package spotify

// TopEntity is one entry of a ranked top-artist or top-track list as
// returned by the upstream, before storage concerns are attached.
type TopEntity struct {
	ID         string
	Name       string
	ImageURL   string
	Genres     []string // artists only
	Popularity int
	Rank       int // 1-based, contiguous within a list
}
