// Package web serves the server-rendered pages: login, registration, the
// chat list, the chat view and a chat's history. Page routes redirect to
// /login instead of answering 401.
package web

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/gaspardpetit/chatfront/internal/api"
	"github.com/gaspardpetit/chatfront/internal/backend"
	"github.com/gaspardpetit/chatfront/internal/logx"
	"github.com/gaspardpetit/chatfront/internal/metrics"
	"github.com/gaspardpetit/chatfront/internal/session"
)

// Flash kinds.
const (
	FlashSuccess = "success"
	FlashDanger  = "danger"
)

// Pages serves the HTML routes.
type Pages struct {
	Backend      api.Backend
	Sessions     *session.Manager
	Renderer     Renderer
	DefaultModel string
}

// DashboardPage lists the user's chats.
type DashboardPage struct {
	Chats []backend.Chat
}

// ChatPage is the interactive chat view.
type ChatPage struct {
	ChatID int64
	Models []string
}

// HistoryPage shows a chat's messages with display timestamps.
type HistoryPage struct {
	Chat     backend.Chat
	Messages []backend.Message
}

// Routes mounts the page routes on r.
func (p *Pages) Routes(r chi.Router) {
	s := p.Sessions
	r.Get("/", s.Handle(p.Index))
	r.Get("/login", s.Handle(p.LoginForm))
	r.Post("/login", s.Handle(p.Login))
	r.Get("/register", s.Handle(p.RegisterForm))
	r.Post("/register", s.Handle(p.Register))
	r.Get("/logout", s.Handle(p.Logout))
	r.Get("/dashboard", s.Handle(p.requireLogin(p.Dashboard)))
	r.Post("/chats/new", s.Handle(p.requireLogin(p.NewChat)))
	r.Get("/chat/{id:[0-9]+}", s.Handle(p.requireLogin(p.Chat)))
	r.Get("/chat/{id:[0-9]+}/history", s.Handle(p.requireLogin(p.History)))
	r.Handle("/static/*", StaticHandler("/static/"))
}

// requireLogin redirects to /login without contacting the backend when the
// session holds no token.
func (p *Pages) requireLogin(next session.HandlerFunc) session.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request, s *session.Session) {
		if !s.Authenticated() {
			http.Redirect(w, r, "/login", http.StatusSeeOther)
			return
		}
		next(w, r, s)
	}
}

// redirect persists pending session changes and redirects.
func (p *Pages) redirect(w http.ResponseWriter, r *http.Request, s *session.Session, to string) {
	if err := p.Sessions.Save(r.Context(), w, s); err != nil {
		logx.Log.Error().Str("request_id", chiMiddleware.GetReqID(r.Context())).Err(err).Msg("save session")
	}
	http.Redirect(w, r, to, http.StatusSeeOther)
}

func (p *Pages) render(w http.ResponseWriter, r *http.Request, s *session.Session, name, title string, data any) {
	pd := PageData{Title: title, Email: s.Identity(), Flashes: s.Flashes(), Data: data}
	buf := newPageBuffer()
	if err := p.Renderer.Render(buf, r, name, pd); err != nil {
		// The session is left unsaved so the popped flashes stay stored.
		logx.Log.Error().Str("request_id", chiMiddleware.GetReqID(r.Context())).Err(err).Str("page", name).Msg("render")
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	if err := p.Sessions.Save(r.Context(), w, s); err != nil {
		logx.Log.Error().Str("request_id", chiMiddleware.GetReqID(r.Context())).Err(err).Msg("save session")
	}
	buf.writeTo(w)
}

func formCredentials(r *http.Request) backend.Credentials {
	return backend.Credentials{
		Email:    strings.TrimSpace(r.PostFormValue("email")),
		Password: strings.TrimSpace(r.PostFormValue("password")),
	}
}

// Index handles GET /.
func (p *Pages) Index(w http.ResponseWriter, r *http.Request, s *session.Session) {
	if s.Authenticated() {
		http.Redirect(w, r, "/dashboard", http.StatusSeeOther)
		return
	}
	http.Redirect(w, r, "/login", http.StatusSeeOther)
}

// LoginForm handles GET /login.
func (p *Pages) LoginForm(w http.ResponseWriter, r *http.Request, s *session.Session) {
	p.render(w, r, s, "login.html", "Log in", nil)
}

// Login handles POST /login.
func (p *Pages) Login(w http.ResponseWriter, r *http.Request, s *session.Session) {
	creds := formCredentials(r)
	token, res, err := api.Authenticate(r, p.Backend, creds)
	switch {
	case err != nil:
		metrics.RecordLogin(false)
		s.AddFlash(FlashDanger, "Backend unavailable, try again later")
		p.redirect(w, r, s, "/login")
		return
	case token == "":
		metrics.RecordLogin(false)
		s.AddFlash(FlashDanger, res.Detail("Invalid login"))
		p.redirect(w, r, s, "/login")
		return
	}
	s.Set(token, creds.Email)
	metrics.RecordLogin(true)
	logx.Log.Info().Str("request_id", chiMiddleware.GetReqID(r.Context())).Str("email", creds.Email).Msg("login")
	p.redirect(w, r, s, "/dashboard")
}

// RegisterForm handles GET /register.
func (p *Pages) RegisterForm(w http.ResponseWriter, r *http.Request, s *session.Session) {
	p.render(w, r, s, "register.html", "Register", nil)
}

// Register handles POST /register.
func (p *Pages) Register(w http.ResponseWriter, r *http.Request, s *session.Session) {
	res, err := p.Backend.Do(r.Context(), backend.Request{Method: http.MethodPost, Path: "/auth/register", Body: formCredentials(r), Op: "register"})
	switch {
	case err != nil:
		s.AddFlash(FlashDanger, "Backend unavailable, try again later")
	case res.OK():
		s.AddFlash(FlashSuccess, "Registration complete. Please log in.")
		p.redirect(w, r, s, "/login")
		return
	default:
		s.AddFlash(FlashDanger, res.Detail("Registration failed"))
	}
	p.redirect(w, r, s, "/register")
}

// Logout handles GET /logout.
func (p *Pages) Logout(w http.ResponseWriter, r *http.Request, s *session.Session) {
	s.Clear()
	p.redirect(w, r, s, "/login")
}

// listChats returns the user's chats, or nil when the backend fails.
func (p *Pages) listChats(ctx context.Context, token string) []backend.Chat {
	res, err := p.Backend.Do(ctx, backend.Request{Method: http.MethodGet, Path: "/chats", Token: token, Op: "list_chats"})
	if err != nil {
		logx.Log.Warn().Err(err).Msg("list chats")
		return nil
	}
	if !res.OK() {
		return nil
	}
	var chats []backend.Chat
	if err := res.Decode(&chats); err != nil {
		logx.Log.Warn().Err(err).Msg("list chats")
		return nil
	}
	return chats
}

// Dashboard handles GET /dashboard. Backend failures show an empty list.
func (p *Pages) Dashboard(w http.ResponseWriter, r *http.Request, s *session.Session) {
	p.render(w, r, s, "dashboard.html", "Chats", DashboardPage{Chats: p.listChats(r.Context(), s.Token())})
}

// NewChat handles POST /chats/new.
func (p *Pages) NewChat(w http.ResponseWriter, r *http.Request, s *session.Session) {
	title := strings.TrimSpace(r.PostFormValue("title"))
	if title == "" {
		title = api.DefaultChatTitle
	}
	res, err := p.Backend.Do(r.Context(), backend.Request{
		Method: http.MethodPost,
		Path:   "/chats",
		Token:  s.Token(),
		Body:   map[string]string{"title": title},
		Op:     "create_chat",
	})
	if err == nil && res.OK() {
		var c backend.Chat
		if err := res.Decode(&c); err == nil && c.ID != 0 {
			p.redirect(w, r, s, "/chat/"+strconv.FormatInt(c.ID, 10))
			return
		}
	}
	s.AddFlash(FlashDanger, "Could not create chat")
	p.redirect(w, r, s, "/dashboard")
}

// Chat handles GET /chat/{id}.
func (p *Pages) Chat(w http.ResponseWriter, r *http.Request, s *session.Session) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		http.NotFound(w, r)
		return
	}
	models := api.ModelNames(r.Context(), p.Backend, s.Token(), p.DefaultModel)
	p.render(w, r, s, "chat.html", "Chat", ChatPage{ChatID: id, Models: models})
}

// History handles GET /chat/{id}/history. The chat must be in the user's
// own list.
func (p *Pages) History(w http.ResponseWriter, r *http.Request, s *session.Session) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		http.NotFound(w, r)
		return
	}
	var chat *backend.Chat
	for _, c := range p.listChats(r.Context(), s.Token()) {
		if c.ID == id {
			chat = &c
			break
		}
	}
	if chat == nil {
		s.AddFlash(FlashDanger, "Chat not found (or it does not belong to you).")
		p.redirect(w, r, s, "/dashboard")
		return
	}
	res, err := p.Backend.Do(r.Context(), backend.Request{
		Method:  http.MethodGet,
		Path:    "/chats/" + strconv.FormatInt(id, 10) + "/messages",
		Token:   s.Token(),
		Timeout: p.Backend.Timeouts().History,
		Op:      "history",
	})
	var msgs []backend.Message
	if err == nil && res.OK() {
		err = res.Decode(&msgs)
	}
	if err != nil || !res.OK() {
		if err != nil {
			logx.Log.Warn().Err(err).Int64("chat_id", id).Msg("load history")
		}
		s.AddFlash(FlashDanger, "Could not load the chat history.")
		p.redirect(w, r, s, "/dashboard")
		return
	}
	for i := range msgs {
		msgs[i].CreatedAt = FormatTimestamp(msgs[i].CreatedAt)
	}
	view := *chat
	view.CreatedAt = FormatTimestamp(view.CreatedAt)
	p.render(w, r, s, "chat_history.html", "Chat history", HistoryPage{Chat: view, Messages: msgs})
}
