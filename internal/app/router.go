package app

import (
	"log"
	"net/http"
	"time"

	"examconsole/internal/app/apiresp"
	"examconsole/internal/app/observability"
	"examconsole/internal/console"
	"examconsole/internal/content"
	"examconsole/internal/contentapi"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// NewSessions builds the session registry whose screens talk to the content
// API through client.
func NewSessions(cfg Config, client *contentapi.Client, logger *log.Logger) *console.Sessions {
	return console.NewSessions(console.SessionsConfig{
		Idle:        cfg.SessionIdle,
		MaxSessions: cfg.MaxSessions,
		Secure:      cfg.AppEnv == "production",
		Logger:      logger,
		Factory: func() *content.Screen {
			return content.NewScreen(content.ScreenDeps{
				Exams:          client.Exams(),
				Questions:      client.Questions(),
				Options:        client.AnswerOptions(),
				Logger:         logger,
				CollapsePolicy: cfg.CollapsePolicy,
				CacheMaxAge:    cfg.CacheMaxAge,
			})
		},
	})
}

func NewRouter(cfg Config, sessions *console.Sessions, collector *observability.Collector) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(collector.Middleware)

	h := console.NewHandler(sessions)
	limiter := NewRateLimiter(cfg.MutationRateLimitPerMin, time.Minute)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"ok":true}`))
	})
	r.Get("/metrics", collector.MetricsHandler)

	r.Route("/api/v1", func(api chi.Router) {
		api.Get("/csrf", IssueCSRFToken(cfg.AppEnv == "production"))
		api.Get("/exam-tree", h.Tree)

		api.Group(func(post chi.Router) {
			post.Use(CSRFMiddleware(cfg.CSRFEnforced))

			post.Delete("/session", func(w http.ResponseWriter, r *http.Request) {
				sessions.End(w, r)
				apiresp.WriteOK(w, r, http.StatusOK, map[string]string{"status": "ended"})
			})
			post.Post("/exam-tree/refresh", h.RefreshTree)
			post.Post("/exam-tree/exams/{id}/toggle", h.ToggleExam)
			post.Post("/exam-tree/questions/{id}/toggle", h.ToggleQuestion)

			post.Group(func(mut chi.Router) {
				mut.Use(RateLimitMiddleware(limiter))

				mut.Post("/exams", h.CreateExam)
				mut.Put("/exams/{id}", h.UpdateExam)
				mut.Delete("/exams/{id}", h.DeleteExam)

				mut.Post("/questions", h.CreateQuestion)
				mut.Put("/questions/{id}", h.UpdateQuestion)
				mut.Delete("/questions/{id}", h.DeleteQuestion)
				mut.Post("/questions/{id}/duplicate", h.DuplicateQuestion)

				mut.Post("/answer-options", h.CreateAnswerOption)
				mut.Put("/answer-options/{id}", h.UpdateAnswerOption)
				mut.Delete("/answer-options/{id}", h.DeleteAnswerOption)
			})
		})
	})

	return r
}
