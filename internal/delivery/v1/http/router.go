package http

import (
	"errors"
	"net/http"
	"time"

	"github.com/DRSN-tech/kaspi-conveyor/internal/usecase"
	"github.com/DRSN-tech/kaspi-conveyor/pkg/logger"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// Usecases — набор бизнес-сценариев, которые обслуживает HTTP API.
type Usecases struct {
	Conveyor   usecase.ConveyorUC
	Moderation usecase.ModerationUC
	Feed       usecase.FeedUC
	Jobs       usecase.JobUC
	Stats      usecase.StatsUC
	Settings   usecase.SettingsUC
}

// Metrics — middleware и endpoint экспорта метрик.
type Metrics interface {
	Middleware(next http.Handler) http.Handler
	Handler() http.Handler
}

type Router struct {
	router           *chi.Mux
	metrics          Metrics
	feedCacheControl string
	logger           logger.Logger
}

func NewRouter(router *chi.Mux, metrics Metrics, feedCacheControl string, logger logger.Logger) *Router {
	return &Router{router: router, metrics: metrics, feedCacheControl: feedCacheControl, logger: logger}
}

func (r *Router) Init(uc Usecases) {
	r.router.Use(middleware.RequestID)
	r.router.Use(middleware.RealIP)
	r.router.Use(r.recoverer)
	if r.metrics != nil {
		r.router.Use(r.metrics.Middleware)
		r.router.Method(http.MethodGet, "/metrics", r.metrics.Handler())
	}

	feedHandler := NewFeedHandler(uc.Feed, r.feedCacheControl, r.logger)
	r.router.Get("/feed.xml", feedHandler.feed)

	r.router.Route("/api/v1", func(v1 chi.Router) {
		v1.Get("/feed", feedHandler.feed)

		registerProductRoutes(v1, NewProductHandler(uc.Conveyor, uc.Moderation, r.logger))
		registerModerationRoutes(v1, NewModerationHandler(uc.Moderation, r.logger))
		registerJobRoutes(v1, NewJobHandler(uc.Jobs, r.logger))
		registerStatsRoutes(v1, NewStatsHandler(uc.Stats, uc.Settings, r.logger))
	})
}

func registerProductRoutes(router chi.Router, prHandler *ProductHandler) {
	router.Route("/products/{id}", func(pr chi.Router) {
		pr.Post("/force-sync", prHandler.forceSync)
		pr.Post("/mark-in-feed", prHandler.markInFeed)
		pr.Post("/queue", prHandler.queue)
		pr.Post("/apply-fix", prHandler.applyFix)
		pr.Post("/resubmit", prHandler.resubmit)
		pr.Post("/reject", prHandler.reject)
		pr.Get("/pricing", prHandler.pricing)
	})
}

func registerModerationRoutes(router chi.Router, modHandler *ModerationHandler) {
	router.Route("/moderation", func(mr chi.Router) {
		mr.Get("/suggest-fix", modHandler.suggestFix)
		mr.Post("/suggest-fix", modHandler.suggestFix)
	})
}

func registerJobRoutes(router chi.Router, jobHandler *JobHandler) {
	router.Route("/jobs", func(jr chi.Router) {
		jr.Get("/", jobHandler.list)
		jr.Post("/", jobHandler.enqueue)
		jr.Delete("/", jobHandler.stop)
	})
}

func registerStatsRoutes(router chi.Router, statsHandler *StatsHandler) {
	router.Get("/stats", statsHandler.stats)
	router.Get("/health", statsHandler.health)
	router.Get("/settings", statsHandler.getSettings)
	router.Put("/settings", statsHandler.updateSettings)
}

var errPanic = errors.New("handler panic")

// recoverer превращает панику обработчика в 500 без утечки деталей и пишет её в лог.
func (r *Router) recoverer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		start := time.Now()
		defer func() {
			if rec := recover(); rec != nil {
				if rec == http.ErrAbortHandler {
					panic(rec)
				}
				r.logger.Warnf("panic in %s %s after %s: %v", req.Method, req.URL.Path, time.Since(start), rec)
				WriteError(w, errPanic, nil)
			}
		}()
		next.ServeHTTP(w, req)
	})
}
