// Package web serves the browser pages and mounts the WebSocket endpoint.
package web

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

func newRouter(log *slog.Logger) chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(log))
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	return r
}

// NewSocketRouter exposes the chat protocol on GET /ws.
func NewSocketRouter(log *slog.Logger, socket http.Handler) http.Handler {
	r := newRouter(log)
	r.Get("/ws", socket.ServeHTTP)
	return r
}

// NewPageRouter serves the landing and chat pages.
func NewPageRouter(log *slog.Logger, pages *Pages) http.Handler {
	r := newRouter(log)
	r.Get("/", pages.Index)
	r.Get("/chat", pages.Chat)
	r.Post("/submit", pages.Submit)
	r.Get("/debug/messages", pages.Messages)
	return r
}
