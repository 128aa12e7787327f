package db

import "time"

// TimeRange identifies one of the three fixed windows over which the
// upstream service computes top artists and tracks.
type TimeRange string

const (
	RangeShort  TimeRange = "short"
	RangeMedium TimeRange = "medium"
	RangeLong   TimeRange = "long"
)

// TimeRanges lists all ranges in short-to-long order.
var TimeRanges = []TimeRange{RangeShort, RangeMedium, RangeLong}

// EntityKind distinguishes artist snapshots from track snapshots.
type EntityKind string

const (
	KindArtist EntityKind = "artist"
	KindTrack  EntityKind = "track"
)

// User represents a Spotify user profile.
type User struct {
	ID          string
	DisplayName string
	Email       string
	Timezone    string // IANA zone name, defaults to UTC
	CreatedAt   time.Time
	UpdatedAt   time.Time
	LastSyncAt  *time.Time // nullable, written only after a successful sync
}

// Session represents an authenticated web session.
type Session struct {
	ID           string
	UserID       string
	AccessToken  string
	RefreshToken string
	TokenExpiry  time.Time
	CreatedAt    time.Time
	ExpiresAt    time.Time
}

// DailyStat is one per-day listening aggregate. Rows are unique per
// (UserID, Day) and are fully replaced on each sync that touches the day.
type DailyStat struct {
	UserID        string
	Day           time.Time // calendar day in the user's local zone
	Minutes       int
	TrackCount    int
	TopArtistID   string
	TopArtistName string
	TopTrackID    string
	TopTrackName  string
	UpdatedAt     time.Time
}

// TopEntity is one row of a ranked top-artist or top-track snapshot.
// The full set for a (UserID, Kind, TimeRange) triple is replaced
// atomically on each refresh.
type TopEntity struct {
	UserID     string
	Kind       EntityKind
	TimeRange  TimeRange
	EntityID   string
	Name       string
	ImageURL   string
	Genres     []string // artists only
	Popularity int
	Rank       int
	CreatedAt  time.Time
}

// Profile is a user's computed listening personality. One row per user,
// always overwritten as a whole.
type Profile struct {
	UserID         string
	Tags           []string
	GenreDiversity float64
	RepeatRate     float64
	UniqueArtists  int
	LongestStreak  int
	CurrentStreak  int
	StreakArtistID string
	ComputedAt     time.Time
}

// Lease is a short-lived per-user sync lease.
type Lease struct {
	UserID     string
	Token      string
	AcquiredAt time.Time
	ExpiresAt  time.Time
}
