// Package session maps a browser to an opaque backend bearer token.
//
// The browser only holds a signed session id; the token, the display
// identity and pending flash messages live in a Store. Handlers receive the
// per-request *Session explicitly through Manager.Handle.
package session

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/gaspardpetit/chatfront/internal/logx"
)

// Flash is a one-shot message shown on the next rendered page.
type Flash struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// Data is the persisted session record. Identity is only meaningful while
// Token is set.
type Data struct {
	Token    string  `json:"token,omitempty"`
	Identity string  `json:"identity,omitempty"`
	Flashes  []Flash `json:"flashes,omitempty"`
}

func (d Data) empty() bool { return d.Token == "" && len(d.Flashes) == 0 }

func (d Data) clone() Data {
	if d.Flashes != nil {
		d.Flashes = append([]Flash(nil), d.Flashes...)
	}
	return d
}

// Session is the per-request view of a client's session. It is not safe for
// concurrent use; each request gets its own.
type Session struct {
	id      string
	staleID string
	data    Data
	loaded  bool
	dirty   bool
}

// ID returns the current session id.
func (s *Session) ID() string { return s.id }

// Token returns the backend bearer token, or "" when unauthenticated.
func (s *Session) Token() string { return s.data.Token }

// Identity returns the display identity, or "" when unauthenticated.
func (s *Session) Identity() string {
	if s.data.Token == "" {
		return ""
	}
	return s.data.Identity
}

// Authenticated reports whether a bearer token is present.
func (s *Session) Authenticated() bool { return s.data.Token != "" }

// Set stores a token and identity after a successful login. The session id
// is rotated so a pre-login id cannot be reused.
func (s *Session) Set(token, identity string) {
	s.rotate()
	s.data.Token = token
	s.data.Identity = identity
	s.dirty = true
}

// Clear drops the token, identity and flashes.
func (s *Session) Clear() {
	s.rotate()
	s.data = Data{}
	s.dirty = true
}

// AddFlash queues a message for the next rendered page.
func (s *Session) AddFlash(kind, msg string) {
	s.data.Flashes = append(s.data.Flashes, Flash{Kind: kind, Message: msg})
	s.dirty = true
}

// Flashes returns and removes the pending flash messages.
func (s *Session) Flashes() []Flash {
	f := s.data.Flashes
	if len(f) > 0 {
		s.data.Flashes = nil
		s.dirty = true
	}
	return f
}

func (s *Session) rotate() {
	if s.loaded && s.staleID == "" {
		s.staleID = s.id
	}
	s.id = uuid.NewString()
	s.loaded = false
}

// Options configures a Manager.
type Options struct {
	CookieName string
	Secret     string
	TTL        time.Duration
	Secure     bool
}

// Manager loads and saves sessions for HTTP requests.
type Manager struct {
	store  Store
	secret []byte
	name   string
	ttl    time.Duration
	secure bool
	now    func() time.Time
}

// NewManager returns a Manager persisting to store.
func NewManager(store Store, opts Options) *Manager {
	if opts.CookieName == "" {
		opts.CookieName = "chatfront_session"
	}
	if opts.TTL <= 0 {
		opts.TTL = 24 * time.Hour
	}
	return &Manager{
		store:  store,
		secret: []byte(opts.Secret),
		name:   opts.CookieName,
		ttl:    opts.TTL,
		secure: opts.Secure,
		now:    time.Now,
	}
}

// Load returns the session for r. A missing, forged or expired cookie, or a
// store failure, yields a fresh unauthenticated session.
func (m *Manager) Load(r *http.Request) *Session {
	c, err := r.Cookie(m.name)
	if err != nil || c.Value == "" {
		return &Session{id: uuid.NewString()}
	}
	id, err := verifyID(m.secret, c.Value, m.now())
	if err != nil {
		logx.Log.Debug().Err(err).Msg("discarding session cookie")
		return &Session{id: uuid.NewString()}
	}
	d, err := m.store.Load(r.Context(), id)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			logx.Log.Warn().Err(err).Msg("session load")
		}
		return &Session{id: uuid.NewString()}
	}
	return &Session{id: id, data: d, loaded: true}
}

// Save persists s when it changed and sets or expires the cookie. It must
// run before the response status is written.
func (m *Manager) Save(ctx context.Context, w http.ResponseWriter, s *Session) error {
	if !s.dirty {
		return nil
	}
	if s.staleID != "" {
		if err := m.store.Delete(ctx, s.staleID); err != nil {
			logx.Log.Warn().Err(err).Msg("session delete")
		}
		s.staleID = ""
	}
	if s.data.empty() {
		if s.loaded {
			if err := m.store.Delete(ctx, s.id); err != nil {
				return err
			}
		}
		http.SetCookie(w, m.cookie("", -1))
		s.dirty = false
		return nil
	}
	if err := m.store.Save(ctx, s.id, s.data, m.ttl); err != nil {
		return err
	}
	v, err := signID(m.secret, s.id, m.now(), m.ttl)
	if err != nil {
		return err
	}
	http.SetCookie(w, m.cookie(v, int(m.ttl/time.Second)))
	s.loaded = true
	s.dirty = false
	return nil
}

func (m *Manager) cookie(value string, maxAge int) *http.Cookie {
	return &http.Cookie{
		Name:     m.name,
		Value:    value,
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   m.secure,
		SameSite: http.SameSiteLaxMode,
	}
}

// HandlerFunc is an HTTP handler that receives the request's session.
type HandlerFunc func(w http.ResponseWriter, r *http.Request, s *Session)

// Handle adapts fn to http.HandlerFunc, loading the session for each request.
func (m *Manager) Handle(fn HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		fn(w, r, m.Load(r))
	}
}
