package api

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/gaspardpetit/chatfront/internal/backend"
	"github.com/gaspardpetit/chatfront/internal/session"
)

// DefaultChatTitle names chats created without a title.
const DefaultChatTitle = "New chat"

// ListChats handles GET /api/chats.
func (h *Handlers) ListChats(w http.ResponseWriter, r *http.Request, s *session.Session) {
	if !requireAPI(w, s) {
		return
	}
	res, err := h.Backend.Do(r.Context(), backend.Request{Method: http.MethodGet, Path: "/chats", Token: s.Token(), Op: "list_chats"})
	if err != nil {
		writeTransportError(w, r, err)
		return
	}
	writeBackendResult(w, res)
}

// CreateChat handles POST /api/chats.
func (h *Handlers) CreateChat(w http.ResponseWriter, r *http.Request, s *session.Session) {
	if !requireAPI(w, s) {
		return
	}
	var in struct {
		Title string `json:"title"`
	}
	if b, err := readBody(r); err == nil && len(b) > 0 {
		if err := json.Unmarshal(b, &in); err != nil {
			writeDetail(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
	}
	title := strings.TrimSpace(in.Title)
	if title == "" {
		title = DefaultChatTitle
	}
	res, err := h.Backend.Do(r.Context(), backend.Request{
		Method: http.MethodPost,
		Path:   "/chats",
		Token:  s.Token(),
		Body:   map[string]string{"title": title},
		Op:     "create_chat",
	})
	if err != nil {
		writeTransportError(w, r, err)
		return
	}
	writeBackendResult(w, res)
}

// History handles GET /api/history/{id}, forwarding the backend answer with
// its status. Unlike the other API routes it answers 401 in plain text.
func (h *Handlers) History(w http.ResponseWriter, r *http.Request, s *session.Session) {
	if !s.Authenticated() {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}
	id := chi.URLParam(r, "id")
	res, err := h.Backend.Do(r.Context(), backend.Request{
		Method:  http.MethodGet,
		Path:    "/chats/" + id + "/messages",
		Token:   s.Token(),
		Timeout: h.Backend.Timeouts().History,
		Op:      "history",
	})
	if err != nil {
		writeTransportError(w, r, err)
		return
	}
	writeRaw(w, res.Status, res.Body)
}
