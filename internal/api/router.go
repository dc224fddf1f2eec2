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

	// All API routes will be under /api
	r.Route("/api", func(r chi.Router) {
		// Public routes
		r.Post("/signup", apiHandler.SignupHandler)
		r.Post("/login", apiHandler.LoginHandler)
		r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
			w.Write([]byte(`{"status":"ok"}`))
		})

		// User-authenticated routes
		r.Group(func(r chi.Router) {
			r.Use(apiHandler.JWTAuthMiddleware)

			// Document routes
			r.Post("/pdfs", apiHandler.UploadPDFHandler)
			r.Get("/pdfs", apiHandler.ListPDFsHandler)
			r.Get("/pdfs/{pdfID}", apiHandler.GetPDFHandler)
			r.Delete("/pdfs/{pdfID}", apiHandler.DeletePDFHandler)

			// Conversation routes
			r.Get("/conversations", apiHandler.ListConversationsHandler)
			r.Post("/conversations", apiHandler.CreateConversationHandler)
			r.Get("/conversations/{conversationID}", apiHandler.GetConversationHandler)
			r.Post("/conversations/{conversationID}/messages", apiHandler.PostMessageHandler)

			// Message feedback route
			r.Post("/messages/{messageID}/feedback", apiHandler.MessageFeedbackHandler)
		})
	})

	return r
}
