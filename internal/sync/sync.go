// Package sync orchestrates one end-to-end synchronization for a user:
// gate, fetch, aggregate, persist, personality recompute, cache
// invalidation.
package sync

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/soundlens/go-spotify-soundlens/internal/aggregate"
	"github.com/soundlens/go-spotify-soundlens/internal/cache"
	"github.com/soundlens/go-spotify-soundlens/internal/db"
	"github.com/soundlens/go-spotify-soundlens/internal/personality"
	"github.com/soundlens/go-spotify-soundlens/internal/spotify"
)

// DefaultCooldown is the default minimum time between allowed syncs.
const DefaultCooldown = 1 * time.Hour

// DefaultLeaseTTL bounds how long a crashed sync can block its user. It
// comfortably exceeds any healthy pipeline run.
const DefaultLeaseTTL = 5 * time.Minute

// leaseRetryHint is the wait suggested when another sync holds the lease.
const leaseRetryHint = 30 * time.Second

// Fetcher supplies the upstream data one sync consumes. It is implemented
// by the spotify client wrapper; syncs receive a per-user authenticated
// instance.
type Fetcher interface {
	RecentlyPlayed(ctx context.Context) ([]aggregate.PlayEvent, error)
	TopArtists(ctx context.Context, tr db.TimeRange) ([]spotify.TopEntity, error)
	TopTracks(ctx context.Context, tr db.TimeRange) ([]spotify.TopEntity, error)
}

// Store is the durable state surface the pipeline writes through.
type Store interface {
	GetUser(ctx context.Context, id string) (*db.User, error)
	AcquireLease(ctx context.Context, userID string, ttl time.Duration) (token string, ok bool, err error)
	ReleaseLease(ctx context.Context, userID, token string) error
	ReplaceDailyStats(ctx context.Context, userID string, stats []db.DailyStat) error
	ReplaceTopEntities(ctx context.Context, userID string, kind db.EntityKind, tr db.TimeRange, entities []db.TopEntity) error
	DailyHistory(ctx context.Context, userID string) ([]db.DailyStat, error)
	SaveProfile(ctx context.Context, profile *db.Profile) error
	SetLastSync(ctx context.Context, userID string, syncTime time.Time) error
}

// Service runs sync pipelines. Per-user serialization comes from the
// store's lease, so Services on different instances coordinate through the
// database, not through in-process state.
type Service struct {
	store       Store
	invalidator cache.Invalidator
	cooldown    time.Duration
	leaseTTL    time.Duration
	now         func() time.Time
	log         zerolog.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithCooldown sets the minimum time between syncs.
func WithCooldown(d time.Duration) Option {
	return func(s *Service) {
		s.cooldown = d
	}
}

// WithLeaseTTL sets the sync lease duration.
func WithLeaseTTL(d time.Duration) Option {
	return func(s *Service) {
		s.leaseTTL = d
	}
}

// WithClock overrides the time source, for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

// New creates a new sync service.
func New(store Store, invalidator cache.Invalidator, log zerolog.Logger, opts ...Option) *Service {
	s := &Service{
		store:       store,
		invalidator: invalidator,
		cooldown:    DefaultCooldown,
		leaseTTL:    DefaultLeaseTTL,
		now:         time.Now,
		log:         log,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Result summarizes one successful sync.
type Result struct {
	DaysAggregated int
	ArtistsSaved   int
	TracksSaved    int
	SkippedEvents  int
	SyncedAt       time.Time
	NextSyncAt     time.Time
}

// CanSync reports whether the gate would admit a sync now, and when the
// next one becomes available if not.
func (s *Service) CanSync(ctx context.Context, userID string) (bool, time.Time, error) {
	user, err := s.store.GetUser(ctx, userID)
	if err != nil {
		return false, time.Time{}, fmt.Errorf("getting user: %w", err)
	}

	if user.LastSyncAt == nil {
		return true, time.Time{}, nil
	}

	next := user.LastSyncAt.Add(s.cooldown)
	if s.now().Before(next) {
		return false, next, nil
	}
	return true, time.Time{}, nil
}

// Run executes the full pipeline for one user. The sync cursor is advanced
// only after every step has succeeded, so a failed attempt never delays the
// retry. Steps that committed before a failure stay committed: the next
// successful sync recomputes and overwrites them.
func (s *Service) Run(ctx context.Context, fetcher Fetcher, userID string, force bool) (*Result, error) {
	log := s.log.With().Str("user_id", userID).Logger()

	user, err := s.store.GetUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("getting user: %w", err)
	}
	if err := s.checkGate(user, force); err != nil {
		return nil, err
	}

	token, acquired, err := s.store.AcquireLease(ctx, userID, s.leaseTTL)
	if err != nil {
		return nil, fmt.Errorf("acquiring lease: %w", err)
	}
	if !acquired {
		return nil, &RateLimitError{RetryAfter: leaseRetryHint}
	}
	defer func() {
		// Release even when the pipeline was cancelled.
		if err := s.store.ReleaseLease(context.WithoutCancel(ctx), userID, token); err != nil {
			log.Warn().Err(err).Msg("sync lease not released, will expire on its own")
		}
	}()

	// The cursor may have advanced between the first read and the lease
	// grant: a concurrent sync can commit and release right before this
	// trigger acquires. Re-read under the lease so only one trigger per
	// window passes the gate.
	user, err = s.store.GetUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("getting user: %w", err)
	}
	if err := s.checkGate(user, force); err != nil {
		return nil, err
	}

	events, err := fetcher.RecentlyPlayed(ctx)
	if err != nil {
		return nil, err
	}

	valid, skipped := aggregate.Validate(events)
	if skipped > 0 {
		log.Warn().Int("skipped", skipped).Msg("dropped malformed play events")
	}

	dayStats := aggregate.BuildDayStats(valid, s.userLocation(user, log))
	if err := s.store.ReplaceDailyStats(ctx, userID, toDBStats(userID, dayStats)); err != nil {
		return nil, err
	}

	artistsSaved, tracksSaved := 0, 0
	var topArtists []personality.TopArtist
	for _, tr := range db.TimeRanges {
		artists, err := fetcher.TopArtists(ctx, tr)
		if err != nil {
			return nil, err
		}
		if err := s.store.ReplaceTopEntities(ctx, userID, db.KindArtist, tr, toDBEntities(userID, db.KindArtist, tr, artists)); err != nil {
			return nil, err
		}
		artistsSaved += len(artists)
		for _, a := range artists {
			topArtists = append(topArtists, personality.TopArtist{
				ID:         a.ID,
				Genres:     a.Genres,
				Popularity: a.Popularity,
			})
		}

		tracks, err := fetcher.TopTracks(ctx, tr)
		if err != nil {
			return nil, err
		}
		if err := s.store.ReplaceTopEntities(ctx, userID, db.KindTrack, tr, toDBEntities(userID, db.KindTrack, tr, tracks)); err != nil {
			return nil, err
		}
		tracksSaved += len(tracks)
	}

	history, err := s.store.DailyHistory(ctx, userID)
	if err != nil {
		return nil, err
	}

	computed := personality.Compute(toDayRecords(history), topArtists)
	syncedAt := s.now()
	if err := s.store.SaveProfile(ctx, &db.Profile{
		UserID:         userID,
		Tags:           computed.Tags,
		GenreDiversity: computed.GenreDiversity,
		RepeatRate:     computed.RepeatRate,
		UniqueArtists:  computed.UniqueArtists,
		LongestStreak:  computed.Longest.Length,
		CurrentStreak:  computed.Current.Length,
		StreakArtistID: computed.Current.ArtistID,
		ComputedAt:     syncedAt,
	}); err != nil {
		return nil, err
	}

	if err := s.store.SetLastSync(ctx, userID, syncedAt); err != nil {
		return nil, err
	}

	// At-least-once: a failed notify is logged, not fatal, because the
	// pipeline is already committed and the next sync notifies again.
	if err := s.invalidator.Notify(ctx, userID); err != nil {
		log.Warn().Err(err).Msg("cache invalidation failed")
	}

	log.Info().
		Int("days", len(dayStats)).
		Int("artists", artistsSaved).
		Int("tracks", tracksSaved).
		Msg("sync completed")

	return &Result{
		DaysAggregated: len(dayStats),
		ArtistsSaved:   artistsSaved,
		TracksSaved:    tracksSaved,
		SkippedEvents:  skipped,
		SyncedAt:       syncedAt,
		NextSyncAt:     syncedAt.Add(s.cooldown),
	}, nil
}

// checkGate enforces the cooldown against the sync cursor.
func (s *Service) checkGate(user *db.User, force bool) error {
	if force || user.LastSyncAt == nil {
		return nil
	}
	elapsed := s.now().Sub(*user.LastSyncAt)
	if elapsed < s.cooldown {
		return &RateLimitError{RetryAfter: s.cooldown - elapsed}
	}
	return nil
}

// userLocation loads the user's IANA zone, falling back to UTC when the
// stored name does not resolve.
func (s *Service) userLocation(user *db.User, log zerolog.Logger) *time.Location {
	if user.Timezone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(user.Timezone)
	if err != nil {
		log.Warn().Str("timezone", user.Timezone).Msg("unknown timezone, using UTC")
		return time.UTC
	}
	return loc
}

func toDBStats(userID string, stats []aggregate.DayStat) []db.DailyStat {
	out := make([]db.DailyStat, len(stats))
	for i, s := range stats {
		out[i] = db.DailyStat{
			UserID:        userID,
			Day:           s.Day,
			Minutes:       s.Minutes,
			TrackCount:    s.TrackCount,
			TopArtistID:   s.TopArtistID,
			TopArtistName: s.TopArtistName,
			TopTrackID:    s.TopTrackID,
			TopTrackName:  s.TopTrackName,
		}
	}
	return out
}

func toDBEntities(userID string, kind db.EntityKind, tr db.TimeRange, entities []spotify.TopEntity) []db.TopEntity {
	out := make([]db.TopEntity, len(entities))
	for i, e := range entities {
		out[i] = db.TopEntity{
			UserID:     userID,
			Kind:       kind,
			TimeRange:  tr,
			EntityID:   e.ID,
			Name:       e.Name,
			ImageURL:   e.ImageURL,
			Genres:     e.Genres,
			Popularity: e.Popularity,
			Rank:       e.Rank,
		}
	}
	return out
}

func toDayRecords(stats []db.DailyStat) []personality.DayRecord {
	records := make([]personality.DayRecord, len(stats))
	for i, s := range stats {
		records[i] = personality.DayRecord{
			Day:         normalizeDay(s.Day),
			TopArtistID: s.TopArtistID,
			TopTrackID:  s.TopTrackID,
		}
	}
	return records
}

// normalizeDay pins a stored date to midnight UTC so consecutive-day
// arithmetic is exact regardless of how the driver decoded the column.
func normalizeDay(d time.Time) time.Time {
	return time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, time.UTC)
}
