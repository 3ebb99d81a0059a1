package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

type RouterConfig struct {
	HealthPath  string
	MetricsPath string
}

// NewRouter assembles the HTTP surface: public session/health/metrics
// routes plus the token-guarded API.
func NewRouter(h *Handlers, cfg RouterConfig, logger zerolog.Logger) http.Handler {
	if cfg.HealthPath == "" {
		cfg.HealthPath = "/healthz"
	}
	if cfg.MetricsPath == "" {
		cfg.MetricsPath = "/metrics"
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(logger))
	r.Use(middleware.Recoverer)

	r.Get(cfg.HealthPath, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle(cfg.MetricsPath, promhttp.Handler())

	r.Post("/api/session", h.CreateSession)

	r.Group(func(r chi.Router) {
		r.Use(h.RequireSession)

		r.Post("/api/chat", h.StreamChat)
		r.Get("/api/history", h.GetHistory)
		r.Get("/api/history/live", h.StreamHistory)
		r.Post("/api/speech", h.Synthesize)
		r.Get("/api/speech/{messageID}", h.GetSpeech)
		r.Post("/api/transcribe", h.Transcribe)
		r.Post("/api/capture", h.NormalizeCapture)
		r.Post("/api/analyze", h.AnalyzeHealthInput)
		r.Post("/api/analyze/image", h.AnalyzeImage)
		r.Post("/api/summarize", h.SummarizeReport)
	})

	return r
}

func requestLogger(logger zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)
			logger.Debug().
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status", ww.Status()).
				Dur("duration", time.Since(start)).
				Msg("request")
		})
	}
}
