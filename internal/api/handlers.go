package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	chiMiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/gaspardpetit/chatfront/internal/backend"
	"github.com/gaspardpetit/chatfront/internal/inflight"
	"github.com/gaspardpetit/chatfront/internal/logx"
	"github.com/gaspardpetit/chatfront/internal/session"
)

// maxRequestBody caps JSON bodies accepted from browsers.
const maxRequestBody = 1 << 20

// Backend is the subset of *backend.Client used by the handlers.
type Backend interface {
	Health(ctx context.Context) bool
	Do(ctx context.Context, r backend.Request) (*backend.Result, error)
	Generate(ctx context.Context, token string, g backend.GenerateRequest) (*backend.Result, error)
	OpenStream(ctx context.Context, token string, g backend.GenerateRequest) (*backend.Stream, error)
	Timeouts() backend.Timeouts
}

// Handlers serves the JSON API.
type Handlers struct {
	Backend      Backend
	Sessions     *session.Manager
	DefaultModel string
	// Streams tracks open generation streams for graceful shutdown.
	Streams *inflight.Counter
}

type detailBody struct {
	Detail string `json:"detail"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logx.Log.Error().Err(err).Msg("encode response")
	}
}

// writeRaw forwards a backend body unchanged.
func writeRaw(w http.ResponseWriter, status int, body []byte) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if _, err := w.Write(body); err != nil {
		logx.Log.Error().Err(err).Msg("write response")
	}
}

func writeDetail(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, detailBody{Detail: msg})
}

// requireAPI is the API session guard. It writes 401 and reports false when
// the session holds no token.
func requireAPI(w http.ResponseWriter, s *session.Session) bool {
	if s.Authenticated() {
		return true
	}
	writeDetail(w, http.StatusUnauthorized, "Unauthorized")
	return false
}

// writeBackendResult forwards a backend answer: the body verbatim on 2xx,
// otherwise the original status with a normalized JSON error body.
func writeBackendResult(w http.ResponseWriter, res *backend.Result) {
	if res.Status >= 200 && res.Status < 300 {
		writeRaw(w, res.Status, res.Body)
		return
	}
	writeRaw(w, res.Status, backend.ErrorBody(res.Body))
}

// writeTransportError translates a failed backend call into a 5xx.
func writeTransportError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusBadGateway
	var te *backend.TransportError
	if errors.As(err, &te) && te.Timeout() {
		status = http.StatusGatewayTimeout
	}
	logx.Log.Warn().Str("request_id", chiMiddleware.GetReqID(r.Context())).Err(err).Int("status", status).Msg("backend unavailable")
	writeDetail(w, status, err.Error())
}

func readBody(r *http.Request) ([]byte, error) {
	if r.Body == nil {
		return nil, nil
	}
	return io.ReadAll(io.LimitReader(r.Body, maxRequestBody))
}
