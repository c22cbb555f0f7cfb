package api

import (
	"encoding/json"
	"net/http"
	"strings"

	chiMiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/gaspardpetit/chatfront/internal/backend"
	"github.com/gaspardpetit/chatfront/internal/logx"
	"github.com/gaspardpetit/chatfront/internal/metrics"
	"github.com/gaspardpetit/chatfront/internal/session"
)

func decodeCredentials(r *http.Request) (backend.Credentials, bool) {
	var c backend.Credentials
	b, err := readBody(r)
	if err != nil || json.Unmarshal(b, &c) != nil {
		return c, false
	}
	c.Email = strings.TrimSpace(c.Email)
	c.Password = strings.TrimSpace(c.Password)
	return c, true
}

// Register handles POST /api/auth/register.
func (h *Handlers) Register(w http.ResponseWriter, r *http.Request, _ *session.Session) {
	creds, ok := decodeCredentials(r)
	if !ok {
		writeDetail(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	res, err := h.Backend.Do(r.Context(), backend.Request{Method: http.MethodPost, Path: "/auth/register", Body: creds, Op: "register"})
	if err != nil {
		writeTransportError(w, r, err)
		return
	}
	writeBackendResult(w, res)
}

// Login handles POST /api/auth/login. On success the backend token and the
// email are stored in the session; the token never reaches the browser.
func (h *Handlers) Login(w http.ResponseWriter, r *http.Request, s *session.Session) {
	creds, ok := decodeCredentials(r)
	if !ok {
		writeDetail(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	token, res, err := Authenticate(r, h.Backend, creds)
	if err != nil {
		metrics.RecordLogin(false)
		writeTransportError(w, r, err)
		return
	}
	if token == "" {
		metrics.RecordLogin(false)
		if res.OK() {
			writeDetail(w, http.StatusBadGateway, "backend returned no access token")
			return
		}
		writeBackendResult(w, res)
		return
	}
	s.Set(token, creds.Email)
	if err := h.Sessions.Save(r.Context(), w, s); err != nil {
		metrics.RecordLogin(false)
		logx.Log.Error().Err(err).Msg("save session")
		writeDetail(w, http.StatusInternalServerError, "could not store session")
		return
	}
	metrics.RecordLogin(true)
	logx.Log.Info().Str("request_id", chiMiddleware.GetReqID(r.Context())).Str("email", creds.Email).Msg("login")
	writeJSON(w, http.StatusOK, map[string]string{"email": creds.Email})
}

// Authenticate exchanges credentials for a backend token. token is empty
// when the backend refused the login or answered without a token; res then
// carries the backend answer.
func Authenticate(r *http.Request, b Backend, creds backend.Credentials) (token string, res *backend.Result, err error) {
	res, err = b.Do(r.Context(), backend.Request{Method: http.MethodPost, Path: "/auth/login", Body: creds, Op: "login"})
	if err != nil {
		return "", nil, err
	}
	if !res.OK() {
		return "", res, nil
	}
	var lr backend.LoginResponse
	if err := res.Decode(&lr); err != nil {
		logx.Log.Warn().Err(err).Msg("login response")
		return "", res, nil
	}
	return lr.AccessToken, res, nil
}

// Logout handles POST /api/auth/logout.
func (h *Handlers) Logout(w http.ResponseWriter, r *http.Request, s *session.Session) {
	s.Clear()
	if err := h.Sessions.Save(r.Context(), w, s); err != nil {
		logx.Log.Error().Err(err).Msg("clear session")
	}
	w.WriteHeader(http.StatusNoContent)
}

// Me handles GET /api/me.
func (h *Handlers) Me(w http.ResponseWriter, r *http.Request, s *session.Session) {
	if !requireAPI(w, s) {
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"email": s.Identity()})
}
