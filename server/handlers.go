package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/lepinkainen/imgmin/orchestrator"
	"github.com/lepinkainen/imgmin/worker"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

const defaultMaxUpload = 32 << 20

// Settings are the server-side defaults for form fields the client leaves out
type Settings struct {
	Modes          []string
	DefaultMode    string
	Progressive    bool
	MaxUploadBytes int64
}

type HandlerInterface interface {
	Compress(w http.ResponseWriter, r *http.Request)
	Settings(w http.ResponseWriter, r *http.Request)
}

type HandlerObj struct {
	dispatcher orchestrator.Dispatcher
	settings   Settings
	logger     *zap.SugaredLogger
}

func NewHandlers(d orchestrator.Dispatcher, settings Settings, logger *zap.SugaredLogger) *HandlerObj {
	if settings.MaxUploadBytes <= 0 {
		settings.MaxUploadBytes = defaultMaxUpload
	}
	return &HandlerObj{
		dispatcher: d,
		settings:   settings,
		logger:     logger.With("layer", "handlers"),
	}
}

// WithApiHandler mounts the compression API. requests, when not nil, counts
// responses by status code.
func WithApiHandler(api HandlerInterface, requests *prometheus.CounterVec) RouterOption {
	return func(r chi.Router) {
		r.Route("/api", func(r chi.Router) {
			r.Get("/settings", api.Settings)
			if requests != nil {
				r.Post("/compress", promhttp.InstrumentHandlerCounter(requests, http.HandlerFunc(api.Compress)))
			} else {
				r.Post("/compress", api.Compress)
			}
		})
	}
}

// NewRequestCounter registers the API request counter with reg, reusing an existing one
func NewRequestCounter(reg prometheus.Registerer) (*prometheus.CounterVec, error) {
	c := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "imgmin_http_compress_requests_total",
		Help: "Compression requests by response code",
	}, []string{"code"})
	if err := reg.Register(c); err != nil {
		are, ok := err.(prometheus.AlreadyRegisteredError)
		if !ok {
			return nil, fmt.Errorf("failed to register request counter: %w", err)
		}
		c = are.ExistingCollector.(*prometheus.CounterVec)
	}
	return c, nil
}

// Settings reports the available modes and defaults
func (h *HandlerObj) Settings(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"modes":            h.settings.Modes,
		"mode":             h.settings.DefaultMode,
		"progressive":      h.settings.Progressive,
		"max_upload_bytes": h.settings.MaxUploadBytes,
	})
}

// Compress accepts a multipart upload with a "file" part plus optional "mode"
// and "progressive" fields, and streams the worker's messages back as
// newline-delimited JSON envelopes.
func (h *HandlerObj) Compress(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.settings.MaxUploadBytes)
	if err := r.ParseMultipartForm(h.settings.MaxUploadBytes); err != nil {
		h.logger.Infow("bad upload", "error", err)
		writeError(w, http.StatusBadRequest, fmt.Errorf("failed to read upload: %w", err))
		return
	}

	part, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, orchestrator.ErrNoFile)
		return
	}
	data, err := io.ReadAll(part)
	part.Close()
	if err != nil {
		writeError(w, http.StatusBadRequest, &orchestrator.LoadError{Name: header.Filename, Err: err})
		return
	}

	f, err := orchestrator.AcceptFile(orchestrator.FileFromBytes(header.Filename, header.Header.Get("Content-Type"), data))
	if err != nil {
		h.logger.Infow("file rejected", "file", header.Filename, "error", err)
		writeError(w, http.StatusUnsupportedMediaType, err)
		return
	}

	controls := h.controls(r)
	taskID := uuid.NewString()
	req := worker.ImageRequest{
		TaskID:    taskID,
		Arguments: orchestrator.BuildOptions(controls),
		Data:      data,
		FileName:  f.Name,
	}

	// a started compression runs to the end even if the client goes away
	ch, err := h.dispatcher.Submit(context.WithoutCancel(r.Context()), req)
	if errors.Is(err, worker.ErrBusy) {
		writeError(w, http.StatusConflict, err)
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	h.logger.Infow("compression started", "task", taskID, "file", f.Name, "bytes", len(data), "options", req.Arguments)

	w.Header().Set("Content-Type", "application/x-ndjson")
	w.Header().Set("X-Task-Id", taskID)
	w.WriteHeader(http.StatusOK)
	flusher, _ := w.(http.Flusher)
	enc := json.NewEncoder(w)

	for msg := range ch {
		env, err := worker.Encode(msg)
		if err != nil {
			h.logger.Errorw("failed to encode message", "task", taskID, "error", err)
			continue
		}
		if err := enc.Encode(env); err != nil {
			// client gone, keep draining so the worker can finish
			continue
		}
		if flusher != nil {
			flusher.Flush()
		}
	}
}

func (h *HandlerObj) controls(r *http.Request) orchestrator.Controls {
	c := orchestrator.Controls{
		Mode:        h.settings.DefaultMode,
		Progressive: h.settings.Progressive,
	}
	if mode := strings.TrimSpace(r.FormValue("mode")); mode != "" {
		c.Mode = mode
	}
	if v := r.FormValue("progressive"); v != "" {
		c.Progressive = parseBool(v)
	}
	return c
}

func parseBool(v string) bool {
	if strings.EqualFold(v, "on") || strings.EqualFold(v, "yes") {
		return true
	}
	b, err := strconv.ParseBool(v)
	return err == nil && b
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, errorResponse{Error: err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
