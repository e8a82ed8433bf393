package server

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

type RouterOption func(chi.Router)

func RouterOptions(options ...RouterOption) RouterOption {
	return func(r chi.Router) {
		for _, option := range options {
			option(r)
		}
	}
}

func DefaultTechOptions() RouterOption {
	return RouterOptions(
		WithRecover(),
		WithHealth(),
	)
}

func WithRecover() RouterOption {
	return func(r chi.Router) {
		r.Use(middleware.Recoverer)
	}
}

func WithHealth() RouterOption {
	return func(r chi.Router) {
		r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "text/plain; charset=utf-8")
			_, _ = w.Write([]byte("ok"))
		})
	}
}

func WithDebugHandler() RouterOption {
	return func(r chi.Router) {
		r.Mount("/debug", middleware.Profiler())
	}
}

// WithMetrics serves the collectors gathered by g on /metrics
func WithMetrics(g prometheus.Gatherer) RouterOption {
	return func(r chi.Router) {
		r.Handle("/metrics", promhttp.HandlerFor(g, promhttp.HandlerOpts{}))
	}
}

// WithLogger logs one line per request
func WithLogger(logger *zap.SugaredLogger) RouterOption {
	return func(r chi.Router) {
		r.Use(middleware.RequestID)
		r.Use(func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
				ww := middleware.NewWrapResponseWriter(w, req.ProtoMajor)
				start := time.Now()
				next.ServeHTTP(ww, req)
				logger.Infow("request",
					"method", req.Method,
					"path", req.URL.Path,
					"status", ww.Status(),
					"bytes", ww.BytesWritten(),
					"duration", time.Since(start),
					"request_id", middleware.GetReqID(req.Context()),
				)
			})
		})
	}
}
