package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

func NewRouter(apiHandler *APIHandler) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.Logger)       // Basic request logging
	r.Use(middleware.Recoverer)    // Recover from panics
	r.Use(middleware.StripSlashes) // Ensure consistent path handling

	// Public routes
	r.Get("/login", apiHandler.LoginPageHandler)
	r.Post("/login", apiHandler.LoginHandler)
	r.Get("/register", apiHandler.RegisterPageHandler)
	r.Post("/register", apiHandler.RegisterHandler)
	r.Get("/logout", apiHandler.LogoutHandler)
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ok"}`))
	})

	// Session-authenticated routes
	r.Group(func(r chi.Router) {
		r.Use(apiHandler.SessionAuthMiddleware)

		r.Get("/", apiHandler.IndexHandler)
		r.Post("/chat", apiHandler.ChatHandler)
		r.Post("/reset_conversation", apiHandler.ResetConversationHandler)
		r.Get("/history", apiHandler.HistoryHandler)
		r.Post("/feedback", apiHandler.FeedbackHandler)
		r.Post("/upload", apiHandler.UploadHandler)
		r.Get("/uploads/{filename}", apiHandler.ServeUploadHandler)
		r.Get("/ws", apiHandler.WebSocketHandler)
	})

	return r
}
