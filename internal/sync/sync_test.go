package sync

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soundlens/go-spotify-soundlens/internal/aggregate"
	"github.com/soundlens/go-spotify-soundlens/internal/db"
	"github.com/soundlens/go-spotify-soundlens/internal/spotify"
)

// mockStore implements Store in memory.
type mockStore struct {
	user        *db.User
	leaseHeld   bool
	leaseDenied bool
	onAcquire   func() // runs before the lease is granted

	dailyStats   []db.DailyStat
	topEntities  map[string][]db.TopEntity // key: kind/range
	profile      *db.Profile
	lastSync     *time.Time
	releaseCalls int
}

func newMockStore(user *db.User) *mockStore {
	return &mockStore{
		user:        user,
		topEntities: make(map[string][]db.TopEntity),
	}
}

func (m *mockStore) GetUser(_ context.Context, id string) (*db.User, error) {
	if m.user == nil || m.user.ID != id {
		return nil, db.ErrNotFound
	}
	u := *m.user
	return &u, nil
}

func (m *mockStore) AcquireLease(_ context.Context, _ string, _ time.Duration) (string, bool, error) {
	if m.onAcquire != nil {
		m.onAcquire()
	}
	if m.leaseDenied || m.leaseHeld {
		return "", false, nil
	}
	m.leaseHeld = true
	return "lease-token", true, nil
}

func (m *mockStore) ReleaseLease(_ context.Context, _, token string) error {
	if token == "lease-token" {
		m.leaseHeld = false
		m.releaseCalls++
	}
	return nil
}

func (m *mockStore) ReplaceDailyStats(_ context.Context, _ string, stats []db.DailyStat) error {
	// Replace semantics: keep only rows for untouched days.
	byDay := make(map[time.Time]db.DailyStat)
	for _, s := range m.dailyStats {
		byDay[s.Day] = s
	}
	for _, s := range stats {
		byDay[s.Day] = s
	}
	m.dailyStats = m.dailyStats[:0]
	for _, s := range byDay {
		m.dailyStats = append(m.dailyStats, s)
	}
	return nil
}

func (m *mockStore) ReplaceTopEntities(_ context.Context, _ string, kind db.EntityKind, tr db.TimeRange, entities []db.TopEntity) error {
	m.topEntities[string(kind)+"/"+string(tr)] = entities
	return nil
}

func (m *mockStore) DailyHistory(_ context.Context, _ string) ([]db.DailyStat, error) {
	return m.dailyStats, nil
}

func (m *mockStore) SaveProfile(_ context.Context, profile *db.Profile) error {
	m.profile = profile
	return nil
}

func (m *mockStore) SetLastSync(_ context.Context, _ string, syncTime time.Time) error {
	m.lastSync = &syncTime
	if m.user != nil {
		m.user.LastSyncAt = &syncTime
	}
	return nil
}

// mockFetcher implements Fetcher with canned data.
type mockFetcher struct {
	events     []aggregate.PlayEvent
	eventsErr  error
	topArtists []spotify.TopEntity
	topTracks  []spotify.TopEntity
	topErr     error
}

func (m *mockFetcher) RecentlyPlayed(context.Context) ([]aggregate.PlayEvent, error) {
	return m.events, m.eventsErr
}

func (m *mockFetcher) TopArtists(context.Context, db.TimeRange) ([]spotify.TopEntity, error) {
	return m.topArtists, m.topErr
}

func (m *mockFetcher) TopTracks(context.Context, db.TimeRange) ([]spotify.TopEntity, error) {
	return m.topTracks, m.topErr
}

// mockInvalidator records notifications.
type mockInvalidator struct {
	notified []string
	err      error
}

func (m *mockInvalidator) Notify(_ context.Context, userID string) error {
	m.notified = append(m.notified, userID)
	return m.err
}

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func testUser() *db.User {
	return &db.User{ID: "user1", DisplayName: "Test", Timezone: "UTC"}
}

func testEvents(now time.Time) []aggregate.PlayEvent {
	return []aggregate.PlayEvent{
		{TrackID: "t1", TrackName: "One", ArtistID: "a1", ArtistName: "A", PlayedAt: now.Add(-2 * time.Hour), DurationMs: 180_000},
		{TrackID: "t1", TrackName: "One", ArtistID: "a1", ArtistName: "A", PlayedAt: now.Add(-1 * time.Hour), DurationMs: 180_000},
	}
}

func TestRun_GateBoundary(t *testing.T) {
	now := time.Date(2024, 6, 10, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name        string
		lastSync    time.Duration // how long ago
		wantAllowed bool
	}{
		{"59 minutes ago rejected", 59 * time.Minute, false},
		{"exactly 60 minutes ago allowed", 60 * time.Minute, true},
		{"61 minutes ago allowed", 61 * time.Minute, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			user := testUser()
			last := now.Add(-tt.lastSync)
			user.LastSyncAt = &last

			store := newMockStore(user)
			inv := &mockInvalidator{}
			svc := New(store, inv, zerolog.Nop(), WithClock(fixedClock(now)))

			fetcher := &mockFetcher{events: testEvents(now)}
			result, err := svc.Run(context.Background(), fetcher, "user1", false)

			if tt.wantAllowed {
				require.NoError(t, err)
				assert.NotNil(t, result)
				return
			}

			var rateErr *RateLimitError
			require.ErrorAs(t, err, &rateErr)
			assert.Greater(t, rateErr.Seconds(), 0)
			assert.LessOrEqual(t, rateErr.Seconds(), 60)
			assert.Nil(t, store.lastSync, "rejected sync must not advance the cursor")
		})
	}
}

func TestRun_NeverSyncedAllowed(t *testing.T) {
	now := time.Date(2024, 6, 10, 12, 0, 0, 0, time.UTC)
	store := newMockStore(testUser())
	svc := New(store, &mockInvalidator{}, zerolog.Nop(), WithClock(fixedClock(now)))

	_, err := svc.Run(context.Background(), &mockFetcher{events: testEvents(now)}, "user1", false)
	require.NoError(t, err)
}

func TestRun_ForceBypassesCooldown(t *testing.T) {
	now := time.Date(2024, 6, 10, 12, 0, 0, 0, time.UTC)
	user := testUser()
	last := now.Add(-time.Minute)
	user.LastSyncAt = &last

	store := newMockStore(user)
	svc := New(store, &mockInvalidator{}, zerolog.Nop(), WithClock(fixedClock(now)))

	_, err := svc.Run(context.Background(), &mockFetcher{events: testEvents(now)}, "user1", true)
	require.NoError(t, err)
}

func TestRun_RecheckCursorUnderLease(t *testing.T) {
	// A concurrent sync commits and releases while this trigger waits for
	// the lease. The stale pre-lease cursor read must not let it through.
	now := time.Date(2024, 6, 10, 12, 0, 0, 0, time.UTC)
	store := newMockStore(testUser())
	store.onAcquire = func() {
		committed := now.Add(-time.Second)
		store.user.LastSyncAt = &committed
	}

	inv := &mockInvalidator{}
	svc := New(store, inv, zerolog.Nop(), WithClock(fixedClock(now)))
	_, err := svc.Run(context.Background(), &mockFetcher{events: testEvents(now)}, "user1", false)

	var rateErr *RateLimitError
	require.ErrorAs(t, err, &rateErr)
	assert.Nil(t, store.lastSync, "rejected trigger must not write the cursor")
	assert.False(t, store.leaseHeld, "lease must be released after the re-check rejects")
	assert.Equal(t, 1, store.releaseCalls)
	assert.Empty(t, inv.notified)
}

func TestRun_LeaseConflictRejected(t *testing.T) {
	now := time.Date(2024, 6, 10, 12, 0, 0, 0, time.UTC)
	store := newMockStore(testUser())
	store.leaseDenied = true

	svc := New(store, &mockInvalidator{}, zerolog.Nop(), WithClock(fixedClock(now)))
	_, err := svc.Run(context.Background(), &mockFetcher{events: testEvents(now)}, "user1", false)

	var rateErr *RateLimitError
	require.ErrorAs(t, err, &rateErr)
	assert.Nil(t, store.lastSync)
}

func TestRun_FetchFailureLeavesCursorAndReleasesLease(t *testing.T) {
	now := time.Date(2024, 6, 10, 12, 0, 0, 0, time.UTC)
	store := newMockStore(testUser())
	inv := &mockInvalidator{}
	svc := New(store, inv, zerolog.Nop(), WithClock(fixedClock(now)))

	fetcher := &mockFetcher{eventsErr: spotify.ErrAuth}
	_, err := svc.Run(context.Background(), fetcher, "user1", false)

	require.ErrorIs(t, err, spotify.ErrAuth)
	assert.Nil(t, store.lastSync, "failed sync must not advance the cursor")
	assert.False(t, store.leaseHeld, "lease must be released on failure")
	assert.Equal(t, 1, store.releaseCalls)
	assert.Empty(t, inv.notified, "no invalidation on failure")
}

func TestRun_MalformedEventsSkippedNotFatal(t *testing.T) {
	now := time.Date(2024, 6, 10, 12, 0, 0, 0, time.UTC)
	store := newMockStore(testUser())
	svc := New(store, &mockInvalidator{}, zerolog.Nop(), WithClock(fixedClock(now)))

	events := append(testEvents(now),
		aggregate.PlayEvent{TrackID: "", ArtistID: "a9", PlayedAt: now, DurationMs: 1000},
		aggregate.PlayEvent{TrackID: "t9", ArtistID: "a9", DurationMs: 1000},
	)
	result, err := svc.Run(context.Background(), &mockFetcher{events: events}, "user1", false)

	require.NoError(t, err)
	assert.Equal(t, 2, result.SkippedEvents)
	assert.Equal(t, 1, result.DaysAggregated)
}

func TestRun_SuccessCommitsEverything(t *testing.T) {
	now := time.Date(2024, 6, 10, 12, 0, 0, 0, time.UTC)
	store := newMockStore(testUser())
	inv := &mockInvalidator{}
	svc := New(store, inv, zerolog.Nop(), WithClock(fixedClock(now)))

	fetcher := &mockFetcher{
		events: testEvents(now),
		topArtists: []spotify.TopEntity{
			{ID: "a1", Name: "A", Genres: []string{"rock"}, Popularity: 40, Rank: 1},
			{ID: "a2", Name: "B", Genres: []string{"pop"}, Popularity: 60, Rank: 2},
		},
		topTracks: []spotify.TopEntity{
			{ID: "t1", Name: "One", Popularity: 50, Rank: 1},
		},
	}

	result, err := svc.Run(context.Background(), fetcher, "user1", false)
	require.NoError(t, err)

	assert.Equal(t, 1, result.DaysAggregated)
	assert.Equal(t, 6, result.ArtistsSaved, "2 artists x 3 ranges")
	assert.Equal(t, 3, result.TracksSaved, "1 track x 3 ranges")
	assert.Equal(t, now, result.SyncedAt)
	assert.Equal(t, now.Add(DefaultCooldown), result.NextSyncAt)

	require.NotNil(t, store.lastSync)
	assert.Equal(t, now, *store.lastSync)

	require.NotNil(t, store.profile)
	assert.Equal(t, "user1", store.profile.UserID)
	assert.Equal(t, 1, store.profile.UniqueArtists)
	assert.InDelta(t, 1.0, store.profile.GenreDiversity, 1e-9, "two equally weighted genres")

	assert.Len(t, store.topEntities, 6, "artist and track snapshots for all three ranges")
	assert.Equal(t, []string{"user1"}, inv.notified)
	assert.False(t, store.leaseHeld)
}

func TestRun_InvalidatorFailureDoesNotFailSync(t *testing.T) {
	now := time.Date(2024, 6, 10, 12, 0, 0, 0, time.UTC)
	store := newMockStore(testUser())
	inv := &mockInvalidator{err: errors.New("webhook down")}
	svc := New(store, inv, zerolog.Nop(), WithClock(fixedClock(now)))

	result, err := svc.Run(context.Background(), &mockFetcher{events: testEvents(now)}, "user1", false)
	require.NoError(t, err)
	assert.NotNil(t, result)
	require.NotNil(t, store.lastSync, "sync is committed before the notify")
}

func TestRun_UnknownUser(t *testing.T) {
	store := newMockStore(nil)
	svc := New(store, &mockInvalidator{}, zerolog.Nop())

	_, err := svc.Run(context.Background(), &mockFetcher{}, "ghost", false)
	require.ErrorIs(t, err, db.ErrNotFound)
}

func TestCanSync(t *testing.T) {
	now := time.Date(2024, 6, 10, 12, 0, 0, 0, time.UTC)

	t.Run("never synced", func(t *testing.T) {
		store := newMockStore(testUser())
		svc := New(store, &mockInvalidator{}, zerolog.Nop(), WithClock(fixedClock(now)))

		allowed, _, err := svc.CanSync(context.Background(), "user1")
		require.NoError(t, err)
		assert.True(t, allowed)
	})

	t.Run("within cooldown", func(t *testing.T) {
		user := testUser()
		last := now.Add(-30 * time.Minute)
		user.LastSyncAt = &last
		store := newMockStore(user)
		svc := New(store, &mockInvalidator{}, zerolog.Nop(), WithClock(fixedClock(now)))

		allowed, next, err := svc.CanSync(context.Background(), "user1")
		require.NoError(t, err)
		assert.False(t, allowed)
		assert.Equal(t, last.Add(DefaultCooldown), next)
	})
}
