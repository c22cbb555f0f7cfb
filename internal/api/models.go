package api

import (
	"context"
	"net/http"

	"github.com/gaspardpetit/chatfront/internal/backend"
	"github.com/gaspardpetit/chatfront/internal/logx"
	"github.com/gaspardpetit/chatfront/internal/session"
)

// ModelNames lists backend models, falling back to def when the backend is
// unreachable, answers with an error, or lists nothing.
func ModelNames(ctx context.Context, b Backend, token, def string) []string {
	res, err := b.Do(ctx, backend.Request{Method: http.MethodGet, Path: "/models", Token: token, Op: "models"})
	if err != nil {
		logx.Log.Warn().Err(err).Msg("list models")
		return []string{def}
	}
	if !res.OK() {
		return []string{def}
	}
	var l backend.ModelList
	if err := res.Decode(&l); err != nil {
		logx.Log.Warn().Err(err).Msg("list models")
		return []string{def}
	}
	names := l.Names()
	if len(names) == 0 {
		return []string{def}
	}
	return names
}

// Models handles GET /api/models. It works with or without a session.
func (h *Handlers) Models(w http.ResponseWriter, r *http.Request, s *session.Session) {
	writeJSON(w, http.StatusOK, map[string][]string{"models": ModelNames(r.Context(), h.Backend, s.Token(), h.DefaultModel)})
}
