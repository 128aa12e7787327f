package web

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"net/http"
	"sync"
	"time"

	"golang.org/x/oauth2"

	"github.com/soundlens/go-spotify-soundlens/internal/db"
)

const (
	sessionCookieName = "session_id"
	sessionTTL        = 24 * time.Hour
)

// Session is an authenticated API session: the cookie-addressed handle to a
// user's OAuth token.
type Session struct {
	ID        string
	Token     *oauth2.Token
	UserID    string
	UserName  string
	CreatedAt time.Time
}

// SessionManager is the session surface the handlers use. RevokeUser drops
// every session the user holds; logout is a full sign-out.
type SessionManager interface {
	Create(ctx context.Context, token *oauth2.Token, userID, userName string) (*Session, error)
	GetFromRequest(r *http.Request) *Session
	RevokeUser(ctx context.Context, userID string)
	UpdateToken(ctx context.Context, id string, token *oauth2.Token)
	SetCookie(w http.ResponseWriter, session *Session)
	ClearCookie(w http.ResponseWriter)
}

// DBSessionStore keeps sessions in PostgreSQL so they survive restarts and
// are shared across instances.
type DBSessionStore struct {
	database *db.DB
}

// NewDBSessionStore creates a database-backed session store.
func NewDBSessionStore(database *db.DB) *DBSessionStore {
	return &DBSessionStore{database: database}
}

// Create stores a new session row and returns the in-memory view of it.
func (s *DBSessionStore) Create(ctx context.Context, token *oauth2.Token, userID, userName string) (*Session, error) {
	id, err := newSessionID()
	if err != nil {
		return nil, err
	}

	now := time.Now()
	if err := s.database.Sessions().Create(ctx, &db.Session{
		ID:           id,
		UserID:       userID,
		AccessToken:  token.AccessToken,
		RefreshToken: token.RefreshToken,
		TokenExpiry:  token.Expiry,
		CreatedAt:    now,
		ExpiresAt:    now.Add(sessionTTL),
	}); err != nil {
		return nil, err
	}

	return &Session{ID: id, Token: token, UserID: userID, UserName: userName, CreatedAt: now}, nil
}

// GetFromRequest resolves the session cookie to a live session, or nil.
func (s *DBSessionStore) GetFromRequest(r *http.Request) *Session {
	cookie, err := r.Cookie(sessionCookieName)
	if err != nil {
		return nil
	}

	ctx := r.Context()
	row, err := s.database.Sessions().Get(ctx, cookie.Value)
	if err != nil {
		return nil
	}
	user, err := s.database.Users().Get(ctx, row.UserID)
	if err != nil {
		return nil
	}

	return &Session{
		ID: row.ID,
		Token: &oauth2.Token{
			AccessToken:  row.AccessToken,
			RefreshToken: row.RefreshToken,
			Expiry:       row.TokenExpiry,
			TokenType:    "Bearer",
		},
		UserID:    row.UserID,
		UserName:  user.DisplayName,
		CreatedAt: row.CreatedAt,
	}
}

// RevokeUser removes all of a user's sessions.
func (s *DBSessionStore) RevokeUser(ctx context.Context, userID string) {
	_ = s.database.Sessions().DeleteForUser(ctx, userID)
}

// UpdateToken persists a refreshed OAuth token.
func (s *DBSessionStore) UpdateToken(ctx context.Context, id string, token *oauth2.Token) {
	_ = s.database.Sessions().UpdateToken(ctx, id, token.AccessToken, token.RefreshToken, token.Expiry)
}

// SetCookie attaches the session cookie to the response.
func (s *DBSessionStore) SetCookie(w http.ResponseWriter, session *Session) {
	setSessionCookie(w, session.ID)
}

// ClearCookie removes the session cookie.
func (s *DBSessionStore) ClearCookie(w http.ResponseWriter) {
	clearSessionCookie(w)
}

// SessionStore is an in-memory SessionManager for tests and local runs
// without a database.
type SessionStore struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewSessionStore creates an empty in-memory session store.
func NewSessionStore() *SessionStore {
	return &SessionStore{sessions: make(map[string]*Session)}
}

// Create registers a new session.
func (s *SessionStore) Create(_ context.Context, token *oauth2.Token, userID, userName string) (*Session, error) {
	id, err := newSessionID()
	if err != nil {
		return nil, err
	}

	session := &Session{ID: id, Token: token, UserID: userID, UserName: userName, CreatedAt: time.Now()}
	s.mu.Lock()
	s.sessions[id] = session
	s.mu.Unlock()
	return session, nil
}

// GetFromRequest resolves the session cookie, treating sessions past the TTL
// as absent.
func (s *SessionStore) GetFromRequest(r *http.Request) *Session {
	cookie, err := r.Cookie(sessionCookieName)
	if err != nil {
		return nil
	}

	s.mu.RLock()
	session, ok := s.sessions[cookie.Value]
	s.mu.RUnlock()
	if !ok || time.Since(session.CreatedAt) > sessionTTL {
		return nil
	}
	return session
}

// RevokeUser removes all of a user's sessions.
func (s *SessionStore) RevokeUser(_ context.Context, userID string) {
	s.mu.Lock()
	for id, session := range s.sessions {
		if session.UserID == userID {
			delete(s.sessions, id)
		}
	}
	s.mu.Unlock()
}

// UpdateToken swaps the OAuth token on a session.
func (s *SessionStore) UpdateToken(_ context.Context, id string, token *oauth2.Token) {
	s.mu.Lock()
	if session, ok := s.sessions[id]; ok {
		session.Token = token
	}
	s.mu.Unlock()
}

// SetCookie attaches the session cookie to the response.
func (s *SessionStore) SetCookie(w http.ResponseWriter, session *Session) {
	setSessionCookie(w, session.ID)
}

// ClearCookie removes the session cookie.
func (s *SessionStore) ClearCookie(w http.ResponseWriter) {
	clearSessionCookie(w)
}

func newSessionID() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

func setSessionCookie(w http.ResponseWriter, id string) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    id,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   int(sessionTTL.Seconds()),
	})
}

func clearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		MaxAge:   -1,
	})
}

var (
	_ SessionManager = (*SessionStore)(nil)
	_ SessionManager = (*DBSessionStore)(nil)
)
