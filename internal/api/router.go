package api

import (
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// RouterDeps collects what NewRouter wires together. Nil middlewares are skipped.
type RouterDeps struct {
	Handler       *Handler
	Authenticate  func(http.Handler) http.Handler
	RateLimiter   *RateLimiter
	Metrics       http.Handler
	AllowedOrigin string
	Logger        *log.Logger
}

// NewRouter builds the HTTP surface: public probes, then the authenticated and rate limited
// /v1 API.
func NewRouter(deps RouterDeps) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	if deps.Logger != nil {
		r.Use(requestLogger(deps.Logger))
	}
	if deps.AllowedOrigin != "" {
		r.Use(cors(deps.AllowedOrigin))
	}

	r.Get("/healthz", healthz)
	if deps.Metrics != nil {
		r.Handle("/metrics", deps.Metrics)
	}

	h := deps.Handler
	r.Group(func(r chi.Router) {
		if deps.Authenticate != nil {
			r.Use(deps.Authenticate)
		}
		if deps.RateLimiter != nil {
			r.Use(deps.RateLimiter.Middleware)
		}

		r.Route("/v1/tasks", func(r chi.Router) {
			r.Get("/", h.listTasks)
			r.Post("/", h.createTask)
			r.Route("/{id}", func(r chi.Router) {
				r.Patch("/", h.updateTask)
				r.Delete("/", h.deleteTask)
				r.Post("/toggle", h.toggleTask)
			})
		})

		r.Route("/v1/reminders", func(r chi.Router) {
			r.Get("/", h.listReminders)
			r.Post("/", h.createReminder)
			r.Route("/{id}", func(r chi.Router) {
				r.Patch("/", h.updateReminder)
				r.Delete("/", h.deleteReminder)
				r.Put("/status", h.transitionReminder)
			})
		})

		r.Route("/v1/steps", func(r chi.Router) {
			r.Get("/today", h.todaySteps)
			r.Get("/weekly", h.weeklySteps)
			r.Put("/daily/{date}", h.putDailySteps)
		})

		r.Get("/v1/stream", h.stream)
	})
	return r
}

// healthz reports a simple OK status for container health checks.
func healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func cors(origin string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Credentials", "true")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
			w.Header().Set("Access-Control-Allow-Methods", "GET,POST,PUT,PATCH,DELETE,OPTIONS")
			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func requestLogger(logger *log.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			logger.Printf("%s %s", r.Method, r.URL.Path)
			next.ServeHTTP(w, r)
		})
	}
}
