package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http/httptest"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tgcircle/tgcircle/internal/config"
	"github.com/tgcircle/tgcircle/internal/effects"
	"github.com/tgcircle/tgcircle/internal/ffmpeg"
	"github.com/tgcircle/tgcircle/internal/gate"
	"github.com/tgcircle/tgcircle/internal/service"
)

type nopRecorder struct {
	mu     sync.Mutex
	events []string
}

func (r *nopRecorder) UpsertUserSeen(context.Context, int64, string, string) error { return nil }

func (r *nopRecorder) IsBanned(context.Context, int64) (bool, error) { return false, nil }

func (r *nopRecorder) RecordEvent(_ context.Context, _ int64, name string, _ ...service.EventField) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, name)
}

type stubProber struct{}

func (stubProber) Probe(context.Context, string) (*ffmpeg.MediaInfo, error) {
	return &ffmpeg.MediaInfo{DurationSeconds: 5, HasAudio: true, Width: 640, Height: 480}, nil
}

type stubBuilder struct{}

func (stubBuilder) Build(effect effects.Effect, input, output string, _ *ffmpeg.MediaInfo) (*effects.BuildResult, error) {
	return &effects.BuildResult{
		Command: &ffmpeg.Command{Args: []string{"-i", input, output}, Output: output, ExpectedDuration: 5},
		Applied: effect,
	}, nil
}

type stubRunner struct{}

func (stubRunner) Run(_ context.Context, cmd *ffmpeg.Command, onProgress ffmpeg.ProgressFunc) (*ffmpeg.Result, error) {
	onProgress(100, time.Second)
	if err := os.WriteFile(cmd.Output, []byte("converted"), 0o644); err != nil {
		return nil, err
	}
	return &ffmpeg.Result{Status: ffmpeg.StatusSuccess}, nil
}

func setupConvertHandler(t *testing.T) (*ConvertHandler, *nopRecorder) {
	t.Helper()

	recorder := &nopRecorder{}
	limits := config.LimitsConfig{
		MaxFileSize:     config.ByteSize(8 * 1024 * 1024),
		MaxDuration:     60 * time.Second,
		MaxMemeDuration: 55 * time.Second,
	}
	handler := NewConvertHandler(
		gate.New(0), recorder, stubProber{}, stubBuilder{}, stubRunner{},
		limits, t.TempDir(), nil,
	)
	return handler, recorder
}

func multipartBody(t *testing.T, fields map[string]string, video []byte) (*bytes.Buffer, string) {
	t.Helper()

	body := &bytes.Buffer{}
	mw := multipart.NewWriter(body)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	if video != nil {
		part, err := mw.CreateFormFile("video", "clip.mp4")
		require.NoError(t, err)
		_, err = part.Write(video)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())
	return body, mw.FormDataContentType()
}

func TestConvertHandler_Success(t *testing.T) {
	handler, recorder := setupConvertHandler(t)

	router := chi.NewRouter()
	handler.RegisterRoutes(router)

	body, contentType := multipartBody(t, map[string]string{"effect": "normal"}, []byte("fake video"))
	req := httptest.NewRequest("POST", "/v1/convert", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)

	require.Equal(t, 200, rec.Code, rec.Body.String())
	assert.Equal(t, "video/mp4", rec.Header().Get("Content-Type"))
	data, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Equal(t, "converted", string(data))

	assert.Contains(t, recorder.events, "video_start")
	assert.Contains(t, recorder.events, "video_success")
}

func TestConvertHandler_UnknownEffect(t *testing.T) {
	handler, _ := setupConvertHandler(t)

	router := chi.NewRouter()
	handler.RegisterRoutes(router)

	body, contentType := multipartBody(t, map[string]string{"effect": "explode"}, []byte("fake video"))
	req := httptest.NewRequest("POST", "/v1/convert", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)

	assert.Equal(t, 400, rec.Code)
}

func TestConvertHandler_MissingVideo(t *testing.T) {
	handler, _ := setupConvertHandler(t)

	router := chi.NewRouter()
	handler.RegisterRoutes(router)

	body, contentType := multipartBody(t, map[string]string{"effect": "normal"}, nil)
	req := httptest.NewRequest("POST", "/v1/convert", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)

	assert.Equal(t, 400, rec.Code)
}

func TestConvertHandler_RejectsOversizedUpload(t *testing.T) {
	handler, recorder := setupConvertHandler(t)
	handler.limits.MaxFileSize = config.ByteSize(4)

	router := chi.NewRouter()
	handler.RegisterRoutes(router)

	body, contentType := multipartBody(t, nil, []byte("more than four bytes"))
	req := httptest.NewRequest("POST", "/v1/convert", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)

	require.Equal(t, 422, rec.Code)

	var resp map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp["error"])
	assert.Contains(t, recorder.events, "video_rejected")
}

func TestConvertHandler_CleansStagingFile(t *testing.T) {
	handler, _ := setupConvertHandler(t)

	router := chi.NewRouter()
	handler.RegisterRoutes(router)

	body, contentType := multipartBody(t, nil, []byte("fake video"))
	req := httptest.NewRequest("POST", "/v1/convert", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)
	require.Equal(t, 200, rec.Code)

	entries, err := os.ReadDir(handler.tempDir)
	require.NoError(t, err)
	assert.Empty(t, entries, "staging and job files must be removed")
}
