/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. RequestID:  Unique ID per request for tracing
  2. Recoverer:  Panic recovery (500 instead of crash)
  3. Logger:     zerolog request logging
  4. CORS:       Cross-origin requests for the frontend

ROUTE GROUPS:
  /api/requisitions/*   Requisition lifecycle
  /api/quotations/*     Quotation cycles and supplier bids
  /api/orders/*         Purchase orders
  /api/invoices/*       Invoice entries and reconciliation
  /api/follow-up/*      Cross-stage projection

SECURITY NOTE:
  No authentication middleware currently; org scoping relies on the
  X-Org-ID header set by the gateway in front of this service.

SEE ALSO:
  - handlers.go: Handler implementations
  - cmd/server/main.go: Server startup
*/
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"
)

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler, allowedOrigin string) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger(h.Log))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{allowedOrigin},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Org-ID"},
		AllowCredentials: true,
	}))

	r.Route("/api", func(r chi.Router) {
		r.Route("/requisitions", func(r chi.Router) {
			r.Get("/", h.ListRequisitions)
			r.Post("/", h.CreateRequisition)
			r.Put("/{id}", h.UpdateRequisition)
			r.Post("/{id}/transition", h.TransitionRequisition)
			r.Post("/{id}/duplicate", h.DuplicateRequisition)
		})

		r.Route("/quotations", func(r chi.Router) {
			r.Post("/", h.StartQuotationCycle)
			r.Post("/{id}/suppliers", h.InviteSupplier)
			r.Put("/quotes/{id}", h.UpsertQuoteResponse)
			r.Post("/{id}/transition", h.TransitionQuotation)
		})

		r.Route("/orders", func(r chi.Router) {
			r.Post("/", h.CreateOrder)
			r.Post("/{id}/transition", h.TransitionOrder)
		})

		r.Route("/invoices", func(r chi.Router) {
			r.Post("/", h.RecordInvoice)
			r.Post("/{id}/compare", h.CompareInvoice)
		})

		r.Route("/follow-up", func(r chi.Router) {
			r.Get("/", h.ListFollowUps)
			r.Get("/{requisitionID}", h.GetFollowUpDetail)
		})
	})

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	return r
}

// requestLogger logs one structured line per request.
func requestLogger(log zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)
			log.Info().
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status", ww.Status()).
				Dur("duration", time.Since(start)).
				Str("request_id", middleware.GetReqID(r.Context())).
				Msg("http request")
		})
	}
}
