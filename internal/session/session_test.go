package session

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"
)

func newTestManager(store Store) *Manager {
	return NewManager(store, Options{CookieName: "sid", Secret: "test-secret", TTL: time.Hour})
}

// roundTrip saves s and returns a request carrying the resulting cookie.
func roundTrip(t *testing.T, m *Manager, s *Session) (*http.Request, *http.Cookie) {
	t.Helper()
	rec := httptest.NewRecorder()
	if err := m.Save(context.Background(), rec, s); err != nil {
		t.Fatalf("save: %v", err)
	}
	cookies := rec.Result().Cookies()
	if len(cookies) != 1 {
		t.Fatalf("expected one cookie, got %d", len(cookies))
	}
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(cookies[0])
	return req, cookies[0]
}

func TestLoginLogoutCycle(t *testing.T) {
	store := NewMemoryStore()
	m := newTestManager(store)

	s := m.Load(httptest.NewRequest(http.MethodGet, "/", nil))
	if s.Authenticated() || s.Token() != "" || s.Identity() != "" {
		t.Fatalf("fresh session should be anonymous")
	}

	s.Set("tok-1", "ada@example.com")
	req, c := roundTrip(t, m, s)
	if !c.HttpOnly || c.MaxAge != 3600 {
		t.Fatalf("cookie attributes: %+v", c)
	}

	s2 := m.Load(req)
	if s2.Token() != "tok-1" || s2.Identity() != "ada@example.com" {
		t.Fatalf("loaded session = %q/%q", s2.Token(), s2.Identity())
	}

	s2.Clear()
	rec := httptest.NewRecorder()
	if err := m.Save(context.Background(), rec, s2); err != nil {
		t.Fatalf("save: %v", err)
	}
	expired := rec.Result().Cookies()
	if len(expired) != 1 || expired[0].MaxAge >= 0 {
		t.Fatalf("expected expired cookie, got %+v", expired)
	}
	if store.Len() != 0 {
		t.Fatalf("store should be empty after logout, has %d", store.Len())
	}

	// The pre-logout cookie no longer maps to a token.
	s3 := m.Load(req)
	if s3.Authenticated() {
		t.Fatalf("session still authenticated after logout")
	}
}

func TestLoginRotatesID(t *testing.T) {
	store := NewMemoryStore()
	m := newTestManager(store)

	s := m.Load(httptest.NewRequest(http.MethodGet, "/", nil))
	s.AddFlash("info", "welcome")
	req, _ := roundTrip(t, m, s)
	before := s.ID()

	s2 := m.Load(req)
	if s2.ID() != before {
		t.Fatalf("loaded id %q; want %q", s2.ID(), before)
	}
	s2.Set("tok", "bob")
	roundTrip(t, m, s2)
	if s2.ID() == before {
		t.Fatalf("login must rotate the session id")
	}
	if _, err := store.Load(context.Background(), before); err != ErrNotFound {
		t.Fatalf("old record should be deleted, err=%v", err)
	}
}

func TestTamperedCookieIsAnonymous(t *testing.T) {
	m := newTestManager(NewMemoryStore())
	s := m.Load(httptest.NewRequest(http.MethodGet, "/", nil))
	s.Set("tok", "eve")
	_, c := roundTrip(t, m, s)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: "sid", Value: c.Value + "x"})
	if m.Load(req).Authenticated() {
		t.Fatalf("tampered cookie accepted")
	}

	other := NewManager(NewMemoryStore(), Options{CookieName: "sid", Secret: "other"})
	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(c)
	if other.Load(req).Authenticated() {
		t.Fatalf("cookie signed with another secret accepted")
	}
}

func TestFlashesArePoppedOnce(t *testing.T) {
	m := newTestManager(NewMemoryStore())
	s := m.Load(httptest.NewRequest(http.MethodGet, "/", nil))
	s.AddFlash("danger", "Invalid login")
	req, _ := roundTrip(t, m, s)

	s2 := m.Load(req)
	f := s2.Flashes()
	if len(f) != 1 || f[0].Message != "Invalid login" {
		t.Fatalf("flashes %+v", f)
	}
	if len(s2.Flashes()) != 0 {
		t.Fatalf("flashes should be consumed")
	}
	if s2.Authenticated() {
		t.Fatalf("flash-only session must not be authenticated")
	}
}

func TestUnchangedSessionWritesNothing(t *testing.T) {
	m := newTestManager(NewMemoryStore())
	s := m.Load(httptest.NewRequest(http.MethodGet, "/", nil))
	rec := httptest.NewRecorder()
	if err := m.Save(context.Background(), rec, s); err != nil {
		t.Fatalf("save: %v", err)
	}
	if len(rec.Result().Cookies()) != 0 {
		t.Fatalf("unexpected cookie for untouched session")
	}
}

func TestMemoryStoreExpiry(t *testing.T) {
	store := NewMemoryStore()
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return now }
	ctx := context.Background()

	if err := store.Save(ctx, "a", Data{Token: "t"}, time.Minute); err != nil {
		t.Fatalf("save: %v", err)
	}
	if _, err := store.Load(ctx, "a"); err != nil {
		t.Fatalf("load: %v", err)
	}
	now = now.Add(2 * time.Minute)
	if _, err := store.Load(ctx, "a"); err != ErrNotFound {
		t.Fatalf("expected expiry, got %v", err)
	}
	if n := store.Sweep(); n != 1 || store.Len() != 0 {
		t.Fatalf("sweep removed %d, len %d", n, store.Len())
	}
}

func TestConcurrentSetNeverTears(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	const id = "shared"
	if err := store.Save(ctx, id, Data{Token: "tok-0", Identity: "user-0"}, time.Hour); err != nil {
		t.Fatalf("save: %v", err)
	}

	var wg sync.WaitGroup
	for i := 1; i <= 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				n := i*1000 + j
				_ = store.Save(ctx, id, Data{Token: fmt.Sprintf("tok-%d", n), Identity: fmt.Sprintf("user-%d", n)}, time.Hour)
			}
		}(i)
	}
	errCh := make(chan error, 1)
	wg.Add(1)
	go func() {
		defer wg.Done()
		for j := 0; j < 2000; j++ {
			d, err := store.Load(ctx, id)
			if err != nil {
				continue
			}
			if strings.TrimPrefix(d.Token, "tok-") != strings.TrimPrefix(d.Identity, "user-") {
				select {
				case errCh <- fmt.Errorf("torn read %q/%q", d.Token, d.Identity):
				default:
				}
				return
			}
		}
	}()
	wg.Wait()
	select {
	case err := <-errCh:
		t.Fatal(err)
	default:
	}
}

func TestHandlePassesSession(t *testing.T) {
	m := newTestManager(NewMemoryStore())
	var got *Session
	h := m.Handle(func(w http.ResponseWriter, r *http.Request, s *Session) {
		got = s
		w.WriteHeader(http.StatusNoContent)
	})
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if got == nil || got.Authenticated() {
		t.Fatalf("handler did not receive an anonymous session")
	}
}
