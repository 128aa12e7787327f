package web

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	spotifyapi "github.com/zmb3/spotify/v2"
	spotifyauth "github.com/zmb3/spotify/v2/auth"

	"github.com/soundlens/go-spotify-soundlens/internal/cache"
	"github.com/soundlens/go-spotify-soundlens/internal/db"
	"github.com/soundlens/go-spotify-soundlens/internal/spotify"
	syncsvc "github.com/soundlens/go-spotify-soundlens/internal/sync"
)

// Syncer is the sync service surface the handlers drive.
type Syncer interface {
	Run(ctx context.Context, fetcher syncsvc.Fetcher, userID string, force bool) (*syncsvc.Result, error)
	CanSync(ctx context.Context, userID string) (bool, time.Time, error)
}

type contextKey string

const sessionContextKey contextKey = "session"

// Handlers contains the HTTP handlers.
type Handlers struct {
	auth      *spotifyauth.Authenticator
	sessions  SessionManager
	database  *db.DB
	syncer    Syncer
	snapshots *cache.SnapshotCache
	log       zerolog.Logger
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(auth *spotifyauth.Authenticator, sessions SessionManager, database *db.DB, syncer Syncer, snapshots *cache.SnapshotCache, log zerolog.Logger) *Handlers {
	return &Handlers{
		auth:      auth,
		sessions:  sessions,
		database:  database,
		syncer:    syncer,
		snapshots: snapshots,
		log:       log,
	}
}

// RequireSession rejects unauthenticated requests and stashes the session
// in the request context.
func (h *Handlers) RequireSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		session := h.sessions.GetFromRequest(r)
		if session == nil {
			writeErrorCode(w, http.StatusUnauthorized, "AUTH_ERROR", 0)
			return
		}
		ctx := context.WithValue(r.Context(), sessionContextKey, session)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func sessionFrom(ctx context.Context) *Session {
	session, _ := ctx.Value(sessionContextKey).(*Session)
	return session
}

// Login initiates the Spotify OAuth flow (GET /auth/login).
func (h *Handlers) Login(w http.ResponseWriter, r *http.Request) {
	state, err := generateOAuthState()
	if err != nil {
		writeError(w, err)
		return
	}

	// Store state in cookie for validation on callback
	http.SetCookie(w, &http.Cookie{
		Name:     "oauth_state",
		Value:    state,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   300,
	})

	http.Redirect(w, r, h.auth.AuthURL(state), http.StatusTemporaryRedirect)
}

// Callback handles the OAuth callback from Spotify (GET /callback).
func (h *Handlers) Callback(w http.ResponseWriter, r *http.Request) {
	stateCookie, err := r.Cookie("oauth_state")
	if err != nil {
		http.Error(w, "Missing state cookie", http.StatusBadRequest)
		return
	}

	state := r.URL.Query().Get("state")
	if state != stateCookie.Value {
		http.Error(w, "State mismatch", http.StatusBadRequest)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     "oauth_state",
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		MaxAge:   -1,
	})

	if errMsg := r.URL.Query().Get("error"); errMsg != "" {
		http.Error(w, "Spotify auth error: "+errMsg, http.StatusBadRequest)
		return
	}

	token, err := h.auth.Token(r.Context(), state, r)
	if err != nil {
		http.Error(w, "Failed to get token", http.StatusInternalServerError)
		return
	}

	client := spotifyapi.New(h.auth.Client(r.Context(), token))
	user, err := client.CurrentUser(r.Context())
	if err != nil {
		http.Error(w, "Failed to get user info", http.StatusInternalServerError)
		return
	}

	dbUser := &db.User{
		ID:          user.ID,
		DisplayName: user.DisplayName,
		Email:       user.Email,
	}
	if err := h.database.Users().Upsert(r.Context(), dbUser); err != nil {
		writeError(w, err)
		return
	}

	session, err := h.sessions.Create(r.Context(), token, user.ID, user.DisplayName)
	if err != nil {
		writeError(w, err)
		return
	}
	h.sessions.SetCookie(w, session)

	respondJSON(w, http.StatusOK, map[string]any{
		"authenticated": true,
		"user": map[string]string{
			"id":   session.UserID,
			"name": session.UserName,
		},
	})
}

// Logout signs the user out everywhere (POST /auth/logout). All of the
// user's sessions are revoked, not just the one behind the cookie.
func (h *Handlers) Logout(w http.ResponseWriter, r *http.Request) {
	if session := h.sessions.GetFromRequest(r); session != nil {
		h.sessions.RevokeUser(r.Context(), session.UserID)
	}
	h.sessions.ClearCookie(w)
	respondJSON(w, http.StatusOK, map[string]bool{"authenticated": false})
}

// Sync triggers a sync for the authenticated user (POST /api/sync).
func (h *Handlers) Sync(w http.ResponseWriter, r *http.Request) {
	session := sessionFrom(r.Context())

	fetcher := spotify.New(spotifyapi.New(h.auth.Client(r.Context(), session.Token)))
	result, err := h.syncer.Run(r.Context(), fetcher, session.UserID, false)
	if err != nil {
		writeError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"success":             true,
		"daysAggregated":      result.DaysAggregated,
		"artistsSaved":        result.ArtistsSaved,
		"tracksSaved":         result.TracksSaved,
		"skippedEvents":       result.SkippedEvents,
		"lastSyncAt":          result.SyncedAt.UTC().Format(time.RFC3339),
		"nextSyncAvailableAt": result.NextSyncAt.UTC().Format(time.RFC3339),
	})
}

// SyncStatus reports whether a sync would be admitted now (GET /api/sync/status).
func (h *Handlers) SyncStatus(w http.ResponseWriter, r *http.Request) {
	session := sessionFrom(r.Context())

	allowed, next, err := h.syncer.CanSync(r.Context(), session.UserID)
	if err != nil {
		writeError(w, err)
		return
	}

	payload := map[string]any{"allowed": allowed}
	if !allowed {
		payload["nextSyncAvailableAt"] = next.UTC().Format(time.RFC3339)
	}
	respondJSON(w, http.StatusOK, payload)
}

// Profile returns the user's personality profile (GET /api/profile).
func (h *Handlers) Profile(w http.ResponseWriter, r *http.Request) {
	session := sessionFrom(r.Context())

	profile, err := h.database.Profiles().Get(r.Context(), session.UserID)
	if err != nil {
		writeError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"tags":           profile.Tags,
		"genreDiversity": profile.GenreDiversity,
		"repeatRate":     profile.RepeatRate,
		"uniqueArtists":  profile.UniqueArtists,
		"longestStreak":  profile.LongestStreak,
		"currentStreak":  profile.CurrentStreak,
		"streakArtistId": profile.StreakArtistID,
		"computedAt":     profile.ComputedAt.UTC().Format(time.RFC3339),
	})
}

// DailyStats returns recent per-day aggregates (GET /api/stats/daily?days=N).
func (h *Handlers) DailyStats(w http.ResponseWriter, r *http.Request) {
	session := sessionFrom(r.Context())

	days := 30
	if v := r.URL.Query().Get("days"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 365 {
			days = n
		}
	}

	stats, err := h.database.DailyStats().Recent(r.Context(), session.UserID, days)
	if err != nil {
		writeError(w, err)
		return
	}

	type dayPayload struct {
		Day           string `json:"day"`
		Minutes       int    `json:"minutes"`
		TrackCount    int    `json:"trackCount"`
		TopArtistID   string `json:"topArtistId"`
		TopArtistName string `json:"topArtistName"`
		TopTrackID    string `json:"topTrackId"`
		TopTrackName  string `json:"topTrackName"`
	}
	payload := make([]dayPayload, len(stats))
	for i, s := range stats {
		payload[i] = dayPayload{
			Day:           s.Day.Format("2006-01-02"),
			Minutes:       s.Minutes,
			TrackCount:    s.TrackCount,
			TopArtistID:   s.TopArtistID,
			TopArtistName: s.TopArtistName,
			TopTrackID:    s.TopTrackID,
			TopTrackName:  s.TopTrackName,
		}
	}
	respondJSON(w, http.StatusOK, payload)
}

// TopEntities returns a ranked snapshot (GET /api/top/{kind}?range=short).
func (h *Handlers) TopEntities(w http.ResponseWriter, r *http.Request) {
	session := sessionFrom(r.Context())

	var kind db.EntityKind
	switch chi.URLParam(r, "kind") {
	case "artists":
		kind = db.KindArtist
	case "tracks":
		kind = db.KindTrack
	default:
		http.Error(w, "kind must be artists or tracks", http.StatusBadRequest)
		return
	}

	tr := db.TimeRange(r.URL.Query().Get("range"))
	switch tr {
	case db.RangeShort, db.RangeMedium, db.RangeLong:
	case "":
		tr = db.RangeMedium
	default:
		http.Error(w, "range must be short, medium or long", http.StatusBadRequest)
		return
	}

	entities, ok := h.snapshots.Get(session.UserID, kind, tr)
	if !ok {
		var err error
		entities, err = h.database.TopEntities().Get(r.Context(), session.UserID, kind, tr)
		if err != nil {
			writeError(w, err)
			return
		}
		h.snapshots.Set(session.UserID, kind, tr, entities)
	}

	type entityPayload struct {
		Rank       int      `json:"rank"`
		ID         string   `json:"id"`
		Name       string   `json:"name"`
		ImageURL   string   `json:"imageUrl,omitempty"`
		Genres     []string `json:"genres,omitempty"`
		Popularity int      `json:"popularity"`
	}
	payload := make([]entityPayload, len(entities))
	for i, e := range entities {
		payload[i] = entityPayload{
			Rank:       e.Rank,
			ID:         e.EntityID,
			Name:       e.Name,
			ImageURL:   e.ImageURL,
			Genres:     e.Genres,
			Popularity: e.Popularity,
		}
	}
	respondJSON(w, http.StatusOK, payload)
}

// SetTimezone updates the user's IANA timezone (PUT /api/timezone).
func (h *Handlers) SetTimezone(w http.ResponseWriter, r *http.Request) {
	session := sessionFrom(r.Context())

	var body struct {
		Timezone string `json:"timezone"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}
	if _, err := time.LoadLocation(body.Timezone); err != nil || body.Timezone == "" {
		http.Error(w, "unknown timezone", http.StatusBadRequest)
		return
	}

	if err := h.database.Users().SetTimezone(r.Context(), session.UserID, body.Timezone); err != nil {
		writeError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"timezone": body.Timezone})
}

// respondJSON writes a JSON response with the given status.
func respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

// writeError maps internal failures to the wire error object
// {code, retryAfter?}. Internal detail never leaks upstream.
func writeError(w http.ResponseWriter, err error) {
	var gateErr *syncsvc.RateLimitError
	if errors.As(err, &gateErr) {
		writeErrorCode(w, http.StatusTooManyRequests, "RATE_LIMIT", gateErr.Seconds())
		return
	}

	var upstreamLimit *spotify.RateLimitedError
	if errors.As(err, &upstreamLimit) {
		writeErrorCode(w, http.StatusTooManyRequests, "RATE_LIMIT", int(upstreamLimit.RetryAfter.Seconds()))
		return
	}

	if errors.Is(err, spotify.ErrAuth) {
		writeErrorCode(w, http.StatusUnauthorized, "AUTH_ERROR", 0)
		return
	}

	var upstream *spotify.UpstreamError
	if errors.As(err, &upstream) {
		writeErrorCode(w, http.StatusBadGateway, "API_ERROR", 0)
		return
	}

	if errors.Is(err, db.ErrNotFound) {
		writeErrorCode(w, http.StatusNotFound, "NOT_FOUND", 0)
		return
	}

	writeErrorCode(w, http.StatusInternalServerError, "UNKNOWN", 0)
}

func writeErrorCode(w http.ResponseWriter, status int, code string, retryAfter int) {
	payload := map[string]any{"code": code}
	if retryAfter > 0 {
		payload["retryAfter"] = retryAfter
		w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
	}
	respondJSON(w, status, map[string]any{"error": payload})
}

// generateOAuthState creates a random state string for OAuth.
func generateOAuthState() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
