package server

import (
	"bufio"
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/lepinkainen/imgmin/worker"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func halvingRunner(ctx context.Context, inv worker.Invocation) error {
	target := filepath.Join(inv.Dir, inv.Args[len(inv.Args)-1])
	data, err := os.ReadFile(target)
	if err != nil {
		return err
	}
	fmt.Fprintf(inv.Stdout, "args: %s\n", strings.Join(inv.Args, " "))
	return os.WriteFile(target, data[:len(data)/2], 0o600)
}

type busyDispatcher struct{}

func (busyDispatcher) Submit(ctx context.Context, req worker.ImageRequest) (<-chan worker.Message, error) {
	return nil, worker.ErrBusy
}

func newTestHandler(t *testing.T, d interface {
	Submit(context.Context, worker.ImageRequest) (<-chan worker.Message, error)
}) (http.Handler, *prometheus.Registry) {
	t.Helper()
	reg := prometheus.NewRegistry()
	requests, err := NewRequestCounter(reg)
	require.NoError(t, err)

	api := NewHandlers(d, Settings{Modes: []string{"lossy", "lossless"}, DefaultMode: "lossy"}, zap.NewNop().Sugar())
	return NewHandler(
		DefaultTechOptions(),
		WithMetrics(reg),
		WithApiHandler(api, requests),
	), reg
}

func uploadRequest(t *testing.T, name string, data []byte, fields map[string]string) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	if name != "" {
		fw, err := mw.CreateFormFile("file", name)
		require.NoError(t, err)
		_, err = fw.Write(data)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/compress", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func readEnvelopes(t *testing.T, body []byte) []worker.Envelope {
	t.Helper()
	var envs []worker.Envelope
	sc := bufio.NewScanner(bytes.NewReader(body))
	for sc.Scan() {
		var env worker.Envelope
		require.NoError(t, json.Unmarshal(sc.Bytes(), &env))
		envs = append(envs, env)
	}
	return envs
}

func newWorker(t *testing.T, runner worker.Runner) *worker.Worker {
	t.Helper()
	return worker.New(runner, worker.NewScratchFSAt(t.TempDir()))
}

func TestCompress_StreamsMessages(t *testing.T) {
	w := newWorker(t, worker.RunnerFunc(halvingRunner))
	h, reg := newTestHandler(t, w)
	input := bytes.Repeat([]byte{0x42}, 2048)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, uploadRequest(t, "cat.png", input, nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/x-ndjson", rec.Header().Get("Content-Type"))
	taskID := rec.Header().Get("X-Task-Id")
	assert.NotEmpty(t, taskID)

	envs := readEnvelopes(t, rec.Body.Bytes())
	require.Len(t, envs, 2)

	assert.Equal(t, worker.KindStdout, envs[0].Type)
	var line string
	require.NoError(t, json.Unmarshal(envs[0].Data, &line))
	assert.Equal(t, "args: -lossy cat.png", line)

	done := envs[1]
	assert.Equal(t, worker.KindDone, done.Type)
	assert.Equal(t, taskID, done.TaskID)
	var payload struct {
		File string  `json:"file"`
		Time float64 `json:"time"`
	}
	require.NoError(t, json.Unmarshal(done.Data, &payload))
	file, err := base64.StdEncoding.DecodeString(payload.File)
	require.NoError(t, err)
	assert.LessOrEqual(t, len(file), len(input))
	assert.GreaterOrEqual(t, payload.Time, 0.0)

	names, err := w.Filesystem().List()
	require.NoError(t, err)
	assert.Empty(t, names, "scratch filesystem should be empty after a request")

	families, err := reg.Gather()
	require.NoError(t, err)
	found := false
	for _, f := range families {
		if f.GetName() == "imgmin_http_compress_requests_total" {
			found = true
		}
	}
	assert.True(t, found, "request counter should be exposed")
}

func TestCompress_FormControls(t *testing.T) {
	w := newWorker(t, worker.RunnerFunc(halvingRunner))
	h, _ := newTestHandler(t, w)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, uploadRequest(t, "photo.jpg", []byte("jpegbytes"), map[string]string{
		"mode":        "lossless",
		"progressive": "on",
	}))

	require.Equal(t, http.StatusOK, rec.Code)
	envs := readEnvelopes(t, rec.Body.Bytes())
	require.NotEmpty(t, envs)

	var line string
	require.NoError(t, json.Unmarshal(envs[0].Data, &line))
	assert.Equal(t, "args: -lossless -progressive photo.jpg", line)
}

func TestCompress_RejectsUnsupportedType(t *testing.T) {
	calls := 0
	w := newWorker(t, worker.RunnerFunc(func(ctx context.Context, inv worker.Invocation) error {
		calls++
		return nil
	}))
	h, _ := newTestHandler(t, w)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, uploadRequest(t, "doc.txt", []byte("hello"), nil))

	assert.Equal(t, http.StatusUnsupportedMediaType, rec.Code)
	assert.Contains(t, rec.Body.String(), "We support only PNG, JPG files.")
	assert.Equal(t, 0, calls, "rejected files must not reach the compressor")
}

func TestCompress_MissingFile(t *testing.T) {
	h, _ := newTestHandler(t, busyDispatcher{})

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, uploadRequest(t, "", nil, map[string]string{"mode": "lossy"}))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "no file selected")
}

func TestCompress_Busy(t *testing.T) {
	h, _ := newTestHandler(t, busyDispatcher{})

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, uploadRequest(t, "cat.png", []byte("png"), nil))

	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Contains(t, rec.Body.String(), "busy")
}

func TestCompress_WorkerFailure(t *testing.T) {
	w := newWorker(t, worker.RunnerFunc(func(ctx context.Context, inv worker.Invocation) error {
		return os.Remove(filepath.Join(inv.Dir, inv.Args[len(inv.Args)-1]))
	}))
	h, _ := newTestHandler(t, w)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, uploadRequest(t, "cat.png", []byte("png"), nil))

	require.Equal(t, http.StatusOK, rec.Code)
	envs := readEnvelopes(t, rec.Body.Bytes())
	require.Len(t, envs, 1)
	assert.Equal(t, worker.KindStderr, envs[0].Type)
	assert.True(t, envs[0].Final)
}

func TestSettingsAndHealth(t *testing.T) {
	h, _ := newTestHandler(t, busyDispatcher{})

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/settings", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var settings struct {
		Modes          []string `json:"modes"`
		Mode           string   `json:"mode"`
		Progressive    bool     `json:"progressive"`
		MaxUploadBytes int64    `json:"max_upload_bytes"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &settings))
	assert.Equal(t, []string{"lossy", "lossless"}, settings.Modes)
	assert.Equal(t, "lossy", settings.Mode)
	assert.False(t, settings.Progressive)
	assert.Equal(t, int64(defaultMaxUpload), settings.MaxUploadBytes)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestSettings_ReportsConfiguredLimits(t *testing.T) {
	api := NewHandlers(busyDispatcher{}, Settings{
		Modes:          []string{"9"},
		DefaultMode:    "9",
		Progressive:    true,
		MaxUploadBytes: 1234,
	}, zap.NewNop().Sugar())
	h := NewHandler(WithApiHandler(api, nil))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/settings", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var settings map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &settings))
	assert.Equal(t, true, settings["progressive"])
	assert.Equal(t, float64(1234), settings["max_upload_bytes"])
}

func TestRunServer_StopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		errCh <- RunServer(ctx, "127.0.0.1:0", zap.NewNop().Sugar(), NewHandler(WithHealth()))
	}()

	cancel()
	assert.NoError(t, <-errCh)
}
