/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. RequestID:  Unique ID per request for tracing
  2. Logger:     Request logging through zap
  3. Recoverer:  Panic recovery (500 instead of crash)
  4. CORS:       Cross-origin requests for the back-office frontend

ROUTE GROUPS:
  /api/shifts/*        Shift feed
  /api/payroll/*       Run triggers
  /api/periods/*       Pay periods and export
  /api/contractors/*   Per-contractor queries and admin actions
  /api/audit           Audit trail
  /healthz             Liveness

SEE ALSO:
  - handlers.go: Handler implementations
  - cmd/payroll: serve command
*/
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"
)

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler, allowedOrigins []string) *chi.Mux {
	if len(allowedOrigins) == 0 {
		allowedOrigins = []string{"*"}
	}

	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(requestLogger(h.Logger))
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: allowedOrigins,
		AllowedMethods: []string{"GET", "POST", "PUT", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders: []string{"Content-Disposition"},
	}))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api", func(r chi.Router) {
		r.Route("/shifts", func(r chi.Router) {
			r.Get("/", h.ListShifts)
			r.Post("/", h.ImportShifts)
		})

		r.Route("/payroll", func(r chi.Router) {
			r.Post("/runs", h.RunPayroll)
			r.Post("/bonuses", h.ProcessBonuses)
		})

		r.Route("/periods", func(r chi.Router) {
			r.Get("/", h.ListPeriods)
			r.Get("/export", h.ExportPeriods)
			r.Get("/{id}", h.GetPeriod)
			r.Post("/{id}/approve", h.ApprovePeriod)
			r.Post("/{id}/pay", h.PayPeriod)
		})

		r.Route("/contractors/{id}", func(r chi.Router) {
			r.Get("/periods", h.GetContractorPeriods)
			r.Get("/bonuses", h.GetContractorBonuses)
			r.Get("/placement", h.GetPlacement)
			r.Post("/placement/placed", h.MarkPlaced)
			r.Put("/feedback", h.SetFeedback)
			r.Post("/credits", h.CreditAssignments)
		})

		r.Get("/audit", h.ListAudit)
	})

	return r
}

// requestLogger logs one line per request with zap.
func requestLogger(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)
			logger.Info("http request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Int("bytes", ww.BytesWritten()),
				zap.Duration("latency", time.Since(start)),
				zap.String("request_id", middleware.GetReqID(r.Context())),
			)
		})
	}
}
