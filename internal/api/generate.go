package api

import (
	"fmt"
	"io"
	"net/http"
	"time"

	chiMiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/gaspardpetit/chatfront/internal/backend"
	"github.com/gaspardpetit/chatfront/internal/logx"
	"github.com/gaspardpetit/chatfront/internal/metrics"
	"github.com/gaspardpetit/chatfront/internal/relay"
	"github.com/gaspardpetit/chatfront/internal/serverstate"
	"github.com/gaspardpetit/chatfront/internal/session"
)

func (h *Handlers) parseGenerate(w http.ResponseWriter, r *http.Request) (backend.GenerateRequest, bool) {
	if serverstate.IsDraining() {
		writeDetail(w, http.StatusServiceUnavailable, "server draining")
		return backend.GenerateRequest{}, false
	}
	b, err := readBody(r)
	if err != nil {
		writeDetail(w, http.StatusBadRequest, "could not read body")
		return backend.GenerateRequest{}, false
	}
	g, err := backend.ParseGenerateInput(b)
	if err != nil {
		writeDetail(w, http.StatusBadRequest, err.Error())
		return backend.GenerateRequest{}, false
	}
	return g, true
}

// Generate handles POST /api/generate. The backend call is bounded and
// always non-streaming.
func (h *Handlers) Generate(w http.ResponseWriter, r *http.Request, s *session.Session) {
	if !requireAPI(w, s) {
		return
	}
	g, ok := h.parseGenerate(w, r)
	if !ok {
		return
	}
	res, err := h.Backend.Generate(r.Context(), s.Token(), g)
	if err != nil {
		logx.Log.Error().Str("request_id", chiMiddleware.GetReqID(r.Context())).Err(err).Msg("generate")
		writeDetail(w, http.StatusInternalServerError, err.Error())
		return
	}
	if res.OK() {
		writeRaw(w, res.Status, res.Body)
		return
	}
	writeRaw(w, res.Status, backend.ErrorBody(res.Body))
}

// Stream handles POST /api/stream. Authentication and input are checked
// before the backend is contacted; once the stream is open every failure is
// reported in-band as a single error event.
func (h *Handlers) Stream(w http.ResponseWriter, r *http.Request, s *session.Session) {
	if !requireAPI(w, s) {
		return
	}
	g, ok := h.parseGenerate(w, r)
	if !ok {
		return
	}
	if h.Streams != nil {
		defer h.Streams.Track()()
	}
	defer metrics.StreamStarted()()

	reqID := chiMiddleware.GetReqID(r.Context())
	start := time.Now()
	relay.SetHeaders(w.Header())

	st, err := h.Backend.OpenStream(r.Context(), s.Token(), g)
	if err != nil {
		logx.Log.Warn().Str("request_id", reqID).Err(err).Msg("stream open failed")
		metrics.RecordStreamError("unavailable")
		w.WriteHeader(http.StatusOK)
		_ = relay.WriteError(w, "Backend unavailable: "+err.Error())
		return
	}
	defer func() { _ = st.Close() }()

	if !st.OK() {
		body, _ := readLimited(st)
		detail := backend.ErrorDetail(body, http.StatusText(st.Status))
		logx.Log.Warn().Str("request_id", reqID).Int("status", st.Status).Str("detail", detail).Msg("stream rejected")
		metrics.RecordStreamError("status")
		w.WriteHeader(http.StatusOK)
		_ = relay.WriteError(w, fmt.Sprintf("Backend error %d: %s", st.Status, detail))
		return
	}

	w.WriteHeader(http.StatusOK)
	sum := relay.Stream(r.Context(), w, st.Body, relay.Options{})
	ev := logx.Log.Info()
	if sum.ReadErr != nil {
		ev = logx.Log.Warn().AnErr("read_error", sum.ReadErr)
	}
	if sum.WriteErr != nil {
		ev = ev.AnErr("write_error", sum.WriteErr)
	}
	ev.Str("request_id", reqID).
		Int64("chat_id", g.ChatID).
		Str("model", g.Model).
		Int("lines", sum.Lines).
		Int("events", sum.Events).
		Int("dropped", sum.Dropped).
		Bool("error_sent", sum.ErrorSent).
		Dur("duration", time.Since(start)).
		Msg("stream finished")
}

// readLimited drains the start of a rejected stream for its error detail.
func readLimited(st *backend.Stream) ([]byte, error) {
	return io.ReadAll(io.LimitReader(st.Body, 64<<10))
}
