// Package handler exposes the chat service over HTTP and websockets.
package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/johndosdos/skillxchange/internal/auth"
	"github.com/johndosdos/skillxchange/internal/relay"
	"github.com/johndosdos/skillxchange/internal/store"
)

// Deps are the services the routes are built on. Limiter is optional.
type Deps struct {
	Messages store.Messages
	Users    store.Users
	Contacts ContactLister
	Hub      *relay.Hub
	Tokens   auth.Issuer
	Limiter  func(http.Handler) http.Handler
}

func NewRouter(d Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(logRequests)
	r.Use(middleware.Recoverer)
	if d.Limiter != nil {
		r.Use(d.Limiter)
	}

	var notifier Notifier
	if d.Hub != nil {
		notifier = d.Hub
	}

	r.NotFound(NotFound())
	r.MethodNotAllowed(NotFound())

	r.Get("/health", Health())
	r.Get("/ws", ServeWs(d.Hub, d.Tokens))

	r.Route("/api", func(r chi.Router) {
		r.Route("/messages", func(r chi.Router) {
			r.Post("/", SendMessage(d.Messages, notifier))
			r.Post("/mark-read", MarkRead(d.Messages))
			r.Get("/unread-counts/{userId}", UnreadCounts(d.Messages))
			r.Get("/{userId1}/{userId2}", ListMessages(d.Messages))
		})

		r.Get("/chat-contacts/contacts/{userId}", ListContacts(d.Contacts))

		r.Route("/auth", func(r chi.Router) {
			r.Post("/register", Register(d.Users, d.Tokens))
			r.Post("/login", Login(d.Users, d.Tokens))
			r.Get("/user/{id}", GetUser(d.Users))
			r.Get("/users", ListUsers(d.Users))
		})
	})

	return r
}

func logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()

		next.ServeHTTP(ww, r)

		slog.InfoContext(r.Context(), "request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration", time.Since(start),
			"request_id", middleware.GetReqID(r.Context()))
	})
}
