package cache

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/rs/zerolog"
)

func TestWebhookInvalidatorDelivers(t *testing.T) {
	var got struct {
		UserID string `json:"user_id"`
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s, want POST", r.Method)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decoding body: %v", err)
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	inv := NewWebhookInvalidator(srv.URL, zerolog.Nop())
	if err := inv.Notify(context.Background(), "u1"); err != nil {
		t.Fatalf("Notify: %v", err)
	}
	if got.UserID != "u1" {
		t.Errorf("user_id = %q, want u1", got.UserID)
	}
}

func TestWebhookInvalidatorRetriesTransientFailure(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	inv := NewWebhookInvalidator(srv.URL, zerolog.Nop())
	if err := inv.Notify(context.Background(), "u1"); err != nil {
		t.Fatalf("Notify: %v", err)
	}
	if n := calls.Load(); n != 2 {
		t.Errorf("calls = %d, want 2", n)
	}
}

func TestWebhookInvalidatorGivesUpAfterRetries(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	inv := NewWebhookInvalidator(srv.URL, zerolog.Nop())
	if err := inv.Notify(context.Background(), "u1"); err == nil {
		t.Fatal("expected error after exhausted retries")
	}
	if n := calls.Load(); n != 3 {
		t.Errorf("calls = %d, want 3", n)
	}
}

type failingInvalidator struct {
	err error
}

func (f failingInvalidator) Notify(context.Context, string) error { return f.err }

type countingInvalidator struct {
	calls int
}

func (c *countingInvalidator) Notify(context.Context, string) error {
	c.calls++
	return nil
}

func TestMultiRunsAllAndReturnsFirstError(t *testing.T) {
	first := errors.New("first")
	counter := &countingInvalidator{}
	m := Multi{
		failingInvalidator{err: first},
		counter,
		failingInvalidator{err: errors.New("second")},
	}

	err := m.Notify(context.Background(), "u1")
	if !errors.Is(err, first) {
		t.Errorf("err = %v, want first error", err)
	}
	if counter.calls != 1 {
		t.Errorf("later invalidators must still run, calls = %d", counter.calls)
	}
}

func TestNoop(t *testing.T) {
	if err := (Noop{}).Notify(context.Background(), "u1"); err != nil {
		t.Fatalf("Noop returned %v", err)
	}
}
