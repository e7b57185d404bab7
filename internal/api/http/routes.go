package http

import (
	"anchor/internal/api/http/handlers"
	"anchor/internal/api/http/mw"
	"anchor/internal/security"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// Middlewares are optional, nil ones are skipped
type Middlewares struct {
	Logging   *mw.LoggingMiddleware
	Gzip      *mw.GzipMiddleware
	RateLimit *mw.RateLimitMiddleware
	JWT       *mw.JWTMiddleware
	CORS      *mw.CORSMiddleware
}

func BuildRouter(h *handlers.Handler, metrics http.Handler, mws Middlewares) chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	if mws.Logging != nil {
		r.Use(mws.Logging.Handler)
	}
	r.Use(middleware.Recoverer)
	if mws.CORS != nil {
		r.Use(mws.CORS.Handler())
	}

	// tech endpoints, no auth
	r.Get("/healthz", h.Healthz)
	r.Get("/readiness", h.Readiness)
	if metrics != nil {
		r.Method(http.MethodGet, "/metrics", metrics)
	}

	r.Route("/api", func(api chi.Router) {
		if mws.Gzip != nil {
			api.Use(mws.Gzip.Handler)
		}
		if mws.JWT != nil {
			api.Use(mws.JWT.Handler)
		}
		if mws.RateLimit != nil {
			api.Use(mws.RateLimit.Handler)
		}

		api.Route("/intents", func(ir chi.Router) {
			ir.Post("/", h.SubmitIntent)
			ir.Get("/", h.ListIntents)
			ir.Get("/{id}", h.GetIntent)
		})
		api.Get("/queue/stats", h.QueueStats)

		api.Route("/batches", func(br chi.Router) {
			br.With(mw.RequireScope(security.ScopeBatchWrite)).Post("/process", h.ProcessBatch)
			br.Get("/latest", h.LatestBatch)
			br.Get("/{id}/summary", h.BatchSummary)
			br.Get("/{id}/proofs", h.BatchProofs)
			br.With(mw.RequireScope(security.ScopeBatchWrite)).Post("/{id}/settled", h.ConfirmSettlement)
		})
		api.Post("/proofs/verify", h.VerifyProof)
	})

	return r
}
