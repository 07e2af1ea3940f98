/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the chi router, the middleware stack, and the route tree.
  This is the wiring layer connecting URLs to handlers.

MIDDLEWARE STACK:
  1. RequestID:  unique ID per request for log correlation
  2. Recoverer:  panic recovery (500 instead of crash)
  3. requestLogger: zerolog structured request logging
  4. CORS:       admin dashboard origins

ROUTE GROUPS:
  /api/teacher-salary/admin/*   invoicing administration
  /api/invoices/{id}/refund     refund entry point (guardian-facing path)
  /api/scenarios/*              demo scenarios (dev/demo only)
  /api/health                   liveness

SECURITY NOTE:
  No authentication middleware. All endpoints are public; the
  deployment fronts this service with an authenticating gateway.

SEE ALSO:
  - handlers.go: handler implementations
  - cmd/serve.go: server startup and shutdown
*/
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"

	"github.com/meridian/salary-engine/logger"
)

// NewRouter creates a router with all routes configured.
func NewRouter(h *Handler, corsOrigins []string) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger(logger.WithComponent("http")))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   corsOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", h.Health)

		r.Route("/teacher-salary/admin", func(r chi.Router) {
			r.Post("/generate", h.GenerateInvoices)

			r.Route("/invoices", func(r chi.Router) {
				r.Get("/", h.ListInvoices)
				r.Get("/{id}", h.GetInvoice)
				r.Get("/{id}/history", h.GetInvoiceHistory)
				r.Delete("/{id}", h.ArchiveInvoice)
				r.Post("/{id}/publish", h.PublishInvoice)
				r.Post("/{id}/mark-paid", h.MarkInvoicePaid)
				r.Post("/{id}/bonuses", h.AddBonus)
				r.Post("/{id}/extras", h.AddExtra)
				r.Post("/{id}/overrides", h.ApplyOverrides)
			})

			r.Route("/settings", func(r chi.Router) {
				r.Get("/", h.GetSettings)
				r.Put("/rate-partitions", h.SaveRatePartitions)
				r.Put("/transfer-fee", h.SaveTransferFee)
			})

			r.Route("/exchange-rates", func(r chi.Router) {
				r.Get("/", h.ListExchangeRates)
				r.Post("/", h.SaveExchangeRate)
			})

			r.Route("/teachers", func(r chi.Router) {
				r.Get("/", h.ListTeachers)
				r.Post("/", h.CreateTeacher)
				r.Get("/{id}/class-sessions", h.GetTeacherSessions)
			})

			r.Post("/class-sessions", h.ReportSession)
		})

		// Refunds keep the path the guardian-facing tooling calls.
		r.Post("/invoices/{id}/refund", h.RefundInvoice)

		r.Route("/scenarios", func(r chi.Router) {
			r.Get("/", h.ListScenarios)
			r.Get("/current", h.GetCurrentScenario)
			r.Post("/load", h.LoadScenario)
			r.Post("/reset", h.ResetDatabase)
		})
	})

	return r
}

// requestLogger emits one structured log line per request.
func requestLogger(log zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(ww, r)

			log.Info().
				Str("request_id", middleware.GetReqID(r.Context())).
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status", ww.Status()).
				Int("bytes", ww.BytesWritten()).
				Dur("duration", time.Since(start)).
				Msg("request")
		})
	}
}
