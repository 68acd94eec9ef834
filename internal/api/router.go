/**
 * @description
 * This file sets up the HTTP router for the payments-service. It defines the API
 * endpoints, associates them with their corresponding handlers, and applies any
 * necessary middleware, such as for authentication.
 *
 * @dependencies
 * - net/http: Standard Go library for HTTP functionality.
 * - github.com/go-chi/chi/v5: A lightweight and idiomatic router for Go.
 * - github.com/go-chi/cors: Cross-origin policy for browser clients.
 */

package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// PaymentRoutes creates and returns a new router for the payments service.
func PaymentRoutes(h *PaymentHandlers, jwtSecret string, allowedOrigins []string) http.Handler {
	r := chi.NewRouter()

	// Add standard middleware for logging, panic recovery, and timeouts.
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Health check endpoint
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("healthy"))
	})

	r.Route("/api/v1", func(r chi.Router) {
		// Plan catalog is public so pricing pages can render without a session.
		r.Get("/plans", h.ListPlansHandler)
		r.Get("/plans/{planID}", h.GetPlanHandler)

		// Group routes that require authentication.
		r.Group(func(r chi.Router) {
			r.Use(JWTAuthMiddleware(jwtSecret))

			r.Route("/payments", func(r chi.Router) {
				r.Get("/", h.ListPaymentsHandler)
				r.Post("/create-checkout-session", h.CreateCheckoutSessionHandler)
				r.Get("/verify/{sessionID}", h.VerifyCheckoutHandler)
				r.Post("/complete-upgrade", h.CompleteUpgradeHandler)
				r.Get("/status/{transactionID}", h.PaymentStatusHandler)
			})

			r.Route("/service-payments", func(r chi.Router) {
				r.Post("/create-checkout", h.CreateServiceCheckoutHandler)
				r.Post("/complete", h.CompleteServicePaymentHandler)
				r.Get("/by-work-order/{workOrderID}", h.ServicePaymentByWorkOrderHandler)
				r.Post("/{paymentID}/refund", h.RefundServicePaymentHandler)
			})

			r.Post("/plans/upgrade", h.UpgradePlanHandler)
		})
	})

	return r
}
