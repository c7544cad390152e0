package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/tgcircle/tgcircle/internal/config"
	"github.com/tgcircle/tgcircle/internal/effects"
	"github.com/tgcircle/tgcircle/internal/gate"
	"github.com/tgcircle/tgcircle/internal/pipeline"
)

// maxUploadMemory bounds the in-memory part of multipart parsing; larger
// uploads spill to disk.
const maxUploadMemory = 4 << 20

// ConvertHandler drives the full conversion pipeline from a multipart
// upload, for local and manual use. Each request runs synchronously and
// answers with the finished note or the rejection text.
type ConvertHandler struct {
	gate    *gate.Gate
	metrics pipeline.Recorder
	prober  pipeline.Prober
	builder pipeline.CommandBuilder
	runner  pipeline.Runner
	limits  config.LimitsConfig
	tempDir string
	logger  *slog.Logger
}

// NewConvertHandler creates a new convert handler.
func NewConvertHandler(
	g *gate.Gate,
	metrics pipeline.Recorder,
	prober pipeline.Prober,
	builder pipeline.CommandBuilder,
	runner pipeline.Runner,
	limits config.LimitsConfig,
	tempDir string,
	logger *slog.Logger,
) *ConvertHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &ConvertHandler{
		gate:    g,
		metrics: metrics,
		prober:  prober,
		builder: builder,
		runner:  runner,
		limits:  limits,
		tempDir: tempDir,
		logger:  logger,
	}
}

// RegisterRoutes registers the convert route on the router. The endpoint
// streams binary media both ways, so it bypasses the typed API layer.
func (h *ConvertHandler) RegisterRoutes(r chi.Router) {
	r.Post("/v1/convert", h.Convert)
}

// Convert accepts a multipart form with a "video" file part and an
// optional "effect" field, runs the pipeline and returns the circle note.
func (h *ConvertHandler) Convert(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUploadMemory); err != nil {
		writeJSONError(w, http.StatusBadRequest, "parsing multipart form: "+err.Error())
		return
	}

	effect := effects.Normal
	if v := r.FormValue("effect"); v != "" {
		parsed, err := effects.Parse(v)
		if err != nil {
			writeJSONError(w, http.StatusBadRequest, err.Error())
			return
		}
		effect = parsed
	}

	userID := int64(1)
	if v := r.FormValue("user_id"); v != "" {
		parsed, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			writeJSONError(w, http.StatusBadRequest, "invalid user_id")
			return
		}
		userID = parsed
	}

	var durationHint float64
	if v := r.FormValue("duration"); v != "" {
		parsed, err := strconv.ParseFloat(v, 64)
		if err != nil {
			writeJSONError(w, http.StatusBadRequest, "invalid duration")
			return
		}
		durationHint = parsed
	}

	file, header, err := r.FormFile("video")
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, "missing video part")
		return
	}
	defer file.Close()

	staging, size, err := h.stageUpload(file)
	if err != nil {
		h.logger.Error("staging upload failed", slog.String("error", err.Error()))
		writeJSONError(w, http.StatusInternalServerError, "storing upload")
		return
	}
	defer os.Remove(staging)

	capture := &captureMessenger{}
	orch := pipeline.NewOrchestrator(
		h.gate,
		h.metrics,
		&stagedDownloader{},
		h.prober,
		h.builder,
		h.runner,
		capture,
		h.limits,
		h.tempDir,
		h.logger,
	)

	sub := &pipeline.Submission{
		UserID:       userID,
		ChatID:       userID,
		Username:     r.FormValue("username"),
		FullName:     header.Filename,
		FileID:       staging,
		SizeBytes:    size,
		DurationHint: durationHint,
		Effect:       effect,
	}

	orch.Process(r.Context(), sub)

	note := capture.noteBytes()
	if note == nil {
		writeJSONError(w, http.StatusUnprocessableEntity, capture.lastText())
		return
	}

	w.Header().Set("Content-Type", "video/mp4")
	w.Header().Set("Content-Disposition", `attachment; filename="circle.mp4"`)
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(note); err != nil {
		h.logger.Warn("writing response failed", slog.String("error", err.Error()))
	}
}

// stageUpload copies the upload to a temp file the downloader can claim.
func (h *ConvertHandler) stageUpload(src io.Reader) (path string, size int64, err error) {
	path = filepath.Join(h.tempDir, "upload_"+uuid.New().String()+".mp4")

	dst, err := os.Create(path)
	if err != nil {
		return "", 0, fmt.Errorf("creating staging file: %w", err)
	}
	defer dst.Close()

	size, err = io.Copy(dst, src)
	if err != nil {
		os.Remove(path)
		return "", 0, fmt.Errorf("writing staging file: %w", err)
	}
	return path, size, nil
}

// stagedDownloader treats the submission file ID as a local staging path.
type stagedDownloader struct{}

func (d *stagedDownloader) Download(_ context.Context, fileID, destPath string) error {
	src, err := os.Open(fileID)
	if err != nil {
		return fmt.Errorf("opening staged upload: %w", err)
	}
	defer src.Close()

	dst, err := os.Create(destPath)
	if err != nil {
		return fmt.Errorf("creating input file: %w", err)
	}
	defer dst.Close()

	if _, err := io.Copy(dst, src); err != nil {
		return fmt.Errorf("copying staged upload: %w", err)
	}
	return nil
}

// captureMessenger collects pipeline replies for the HTTP response. The
// finished note is read into memory before the job's files are cleaned up.
type captureMessenger struct {
	mu    sync.Mutex
	texts []string
	note  []byte
}

func (m *captureMessenger) Send(_ context.Context, _ int64, text string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.texts = append(m.texts, text)
	return nil
}

func (m *captureMessenger) SendStatus(ctx context.Context, chatID int64, text string) (pipeline.StatusEditor, error) {
	if err := m.Send(ctx, chatID, text); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *captureMessenger) Edit(ctx context.Context, text string) error {
	return m.Send(ctx, 0, text)
}

func (m *captureMessenger) SendVideoNote(_ context.Context, _ int64, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading finished note: %w", err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.note = data
	return nil
}

func (m *captureMessenger) noteBytes() []byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.note
}

func (m *captureMessenger) lastText() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.texts) == 0 {
		return "processing failed"
	}
	return m.texts[len(m.texts)-1]
}

func writeJSONError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}
