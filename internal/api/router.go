/**
 * @description
 * This file sets up the HTTP router for the subscription-service using
 * the go-chi/chi router. It defines the API routes, applies middleware
 * for logging, CORS, and authentication, and maps the routes to their
 * corresponding handler functions.
 */
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// NewRouter creates a new Chi router and registers the
// subscription-service routes.
func NewRouter(h *Handler, jwksURL string) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"https://*", "http://*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300, // Maximum value not ignored by any major browsers
	}))

	// Health check endpoint
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("Subscription service is healthy"))
	})

	// Exchange verification endpoints take raw credentials and are used
	// before a user record exists, so they sit outside the auth group.
	r.Post("/exchange/verify", h.handleVerifyAccount)
	r.Post("/exchange/wallet", h.handleWalletBalance)

	// Protected routes that require authentication
	r.Group(func(r chi.Router) {
		r.Use(IdentityAuthMiddleware(jwksURL))

		r.Post("/users", h.handleProvisionUser)
		r.Get("/plans", h.handleListPlans)
		r.Post("/subscriptions", h.handleSubmitSubscription)
		r.Get("/subscriptions/me", h.handleMySubscription)
		r.Get("/referrals/me", h.handleMyReferrals)

		r.Route("/admin/subscriptions", func(r chi.Router) {
			r.Get("/", h.handleListSubscriptions)
			r.Post("/{id}/approve", h.handleApproveSubscription)
			r.Post("/{id}/reject", h.handleRejectSubscription)
		})
	})

	return r
}
