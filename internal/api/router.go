package api

import (
	"github.com/go-chi/chi/v5"
)

// Routes mounts the JSON API under r. Paths are relative to /api.
func (h *Handlers) Routes(r chi.Router) {
	s := h.Sessions
	r.Post("/auth/register", s.Handle(h.Register))
	r.Post("/auth/login", s.Handle(h.Login))
	r.Post("/auth/logout", s.Handle(h.Logout))
	r.Get("/me", s.Handle(h.Me))
	r.Get("/chats", s.Handle(h.ListChats))
	r.Post("/chats", s.Handle(h.CreateChat))
	r.Get("/history/{id:[0-9]+}", s.Handle(h.History))
	r.Get("/models", s.Handle(h.Models))
	r.Post("/generate", s.Handle(h.Generate))
	r.Post("/stream", s.Handle(h.Stream))
	r.Get("/openapi.json", OpenAPIHandler())
}
