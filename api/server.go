/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. Logger:     Request logging
  2. Recoverer:  Panic recovery (500 instead of crash)
  3. RequestID:  Unique ID per request
  4. Tracing:    Continues W3C trace context from inbound headers
  5. CORS:       Cross-origin requests for front-desk clients

ROUTE GROUPS:
  /healthz              Database and cache reachability
  /api/bookings/*       Booking lifecycle and ledgers       (X-Tenant-ID)
  /api/charges/*        Charge voiding                      (X-Tenant-ID)
  /api/payments/*       Payment confirmation/failure        (X-Tenant-ID)
  /api/units/*          Availability and quotes             (X-Tenant-ID)
  /api/admin/*          Tenant, unit and guest seeding      (X-Tenant-ID)
  /api/scenarios/*      Demo scenarios (dev only)

SECURITY NOTE:
  No authentication middleware. X-Tenant-ID is trusted as sent; put the
  service behind a gateway that sets it.

SEE ALSO:
  - handlers.go: Handler implementations
  - cmd/server/main.go: Server startup
*/
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
)

// NewRouter creates a new router with all routes configured. An empty
// origins list allows any origin.
func NewRouter(h *Handler, origins []string) *chi.Mux {
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(traceContext)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", TenantHeader, "traceparent", "tracestate"},
		ExposedHeaders: []string{"X-Cache", "X-Request-Id"},
	}))

	r.Get("/healthz", h.Health)

	// API routes
	r.Route("/api", func(r chi.Router) {
		// Scenario routes load every tenant they need, so they sit outside
		// the tenant scope.
		r.Route("/scenarios", func(r chi.Router) {
			r.Get("/", h.ListScenarios)
			r.Get("/current", h.GetCurrentScenario)
			r.Post("/load", h.LoadScenario)
			r.Post("/reset", h.ResetDatabase)
		})

		r.Group(func(r chi.Router) {
			r.Use(RequireTenant)

			// Booking routes
			r.Route("/bookings", func(r chi.Router) {
				r.Get("/", h.ListBookings)
				r.Post("/", h.CreateBooking)
				r.Get("/{id}", h.GetBooking)
				r.Put("/{id}", h.UpdateBooking)
				r.Delete("/{id}", h.DeleteBooking)
				r.Post("/{id}/check-in", h.CheckIn)
				r.Post("/{id}/check-out", h.CheckOut)
				r.Post("/{id}/cancel", h.CancelBooking)
				r.Post("/{id}/no-show", h.MarkNoShow)
				r.Get("/{id}/balance", h.GetBalance)
				r.Get("/{id}/events", h.ListCheckEvents)
				r.Get("/{id}/charges", h.ListCharges)
				r.Post("/{id}/charges", h.AddCharge)
				r.Get("/{id}/payments", h.ListPayments)
				r.Post("/{id}/payments", h.RecordPayment)
			})

			r.Post("/charges/{id}/void", h.VoidCharge)

			// Payment routes
			r.Route("/payments", func(r chi.Router) {
				r.Post("/{id}/confirm", h.ConfirmPayment)
				r.Post("/{id}/fail", h.FailPayment)
			})

			// Unit routes
			r.Route("/units", func(r chi.Router) {
				r.Get("/{id}/availability", h.CheckAvailability)
				r.Get("/{id}/quote", h.GetQuote)
			})

			// Admin routes
			r.Route("/admin", func(r chi.Router) {
				r.Put("/tenant", h.PutTenant)
				r.Put("/units/{id}", h.PutUnit)
				r.Put("/guests/{id}", h.PutGuest)
			})
		})
	})

	return r
}

// traceContext continues the caller's trace so service spans join it.
func traceContext(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := otel.GetTextMapPropagator().Extract(r.Context(), propagation.HeaderCarrier(r.Header))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
