package handlers

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// NewRouter mounts the HTTP surface of the relay.
func NewRouter(auth *AuthHandler, messages *MessageHandler, ws *WSHandler, authn Authenticator, log *slog.Logger) http.Handler {
	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.Logger)
	router.Use(middleware.Recoverer)

	// Health check endpoints
	router.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	router.Method(http.MethodGet, "/ws", ws)

	router.Route("/api/auth", func(r chi.Router) {
		r.Post("/register", auth.Register)
		r.Post("/login", auth.Login)
		r.Post("/logout", auth.Logout)
		r.With(RequireAuth(authn, log)).Get("/users", auth.ListUsers)
		r.With(RequireAuth(authn, log)).Post("/profile-photo", auth.ProfilePhoto)
	})

	router.Route("/api/messages", func(r chi.Router) {
		r.Use(RequireAuth(authn, log))
		r.Get("/history/{userId}", messages.History)
		r.Post("/send", messages.Send)
	})

	return router
}
