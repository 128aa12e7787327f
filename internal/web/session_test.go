package web

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"golang.org/x/oauth2"
)

func requestWithSession(id string) *http.Request {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: sessionCookieName, Value: id})
	return req
}

func TestSessionStoreRoundtrip(t *testing.T) {
	store := NewSessionStore()
	token := &oauth2.Token{AccessToken: "access"}

	session, err := store.Create(context.Background(), token, "user1", "Test User")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	got := store.GetFromRequest(requestWithSession(session.ID))
	if got == nil {
		t.Fatal("expected session for valid cookie")
	}
	if got.UserID != "user1" || got.UserName != "Test User" {
		t.Errorf("session = %+v", got)
	}

	if store.GetFromRequest(requestWithSession("unknown")) != nil {
		t.Error("unknown cookie should resolve to nil")
	}
	if store.GetFromRequest(httptest.NewRequest(http.MethodGet, "/", nil)) != nil {
		t.Error("missing cookie should resolve to nil")
	}
}

func TestSessionStoreExpiry(t *testing.T) {
	store := NewSessionStore()
	session, err := store.Create(context.Background(), &oauth2.Token{}, "user1", "Test User")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	session.CreatedAt = time.Now().Add(-sessionTTL - time.Minute)
	if store.GetFromRequest(requestWithSession(session.ID)) != nil {
		t.Error("session past the TTL should resolve to nil")
	}
}

func TestSessionStoreRevokeUser(t *testing.T) {
	store := NewSessionStore()
	ctx := context.Background()

	first, _ := store.Create(ctx, &oauth2.Token{}, "user1", "Test User")
	second, _ := store.Create(ctx, &oauth2.Token{}, "user1", "Test User")
	other, _ := store.Create(ctx, &oauth2.Token{}, "user2", "Other User")

	store.RevokeUser(ctx, "user1")

	if store.GetFromRequest(requestWithSession(first.ID)) != nil {
		t.Error("first session survived revocation")
	}
	if store.GetFromRequest(requestWithSession(second.ID)) != nil {
		t.Error("second session survived revocation")
	}
	if store.GetFromRequest(requestWithSession(other.ID)) == nil {
		t.Error("another user's session must survive")
	}
}
