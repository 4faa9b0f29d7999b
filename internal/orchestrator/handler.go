package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"path/filepath"
	"strings"

	"hls-packager/internal/media"
	"hls-packager/internal/platform/logger"

	"github.com/go-chi/chi/v5"
)

const playlistContentType = "application/vnd.apple.mpegurl"

// Handler exposes orchestrator HTTP endpoints using go-chi.
type Handler struct {
	svc      *Service
	log      *slog.Logger
	mediaDir string
	cdn      http.Handler
}

// NewHandler returns a Handler that uses the given Service and Logger.
// When mediaDir is set, request paths are resolved under it and may not escape it.
func NewHandler(svc *Service, log *slog.Logger, mediaDir string) *Handler {
	return &Handler{
		svc:      svc,
		log:      log,
		mediaDir: mediaDir,
		cdn:      http.FileServer(http.Dir(svc.CDNDir())),
	}
}

// Routes mounts the handler's endpoints on r.
func (h *Handler) Routes(r chi.Router) {
	r.Route("/videos/{id}", func(r chi.Router) {
		r.Post("/play", h.PlayVideo)
		r.Get("/", h.GetJob)
	})
	r.Get("/cdn/*", h.ServeCDN)
}

type playRequest struct {
	Path string `json:"path"`
}

type playResponse struct {
	ID    JobID    `json:"id"`
	State JobState `json:"state"`
}

// PlayVideo handles POST /videos/{id}/play.
// Body: { "path": "movies/film.mkv" }.
func (h *Handler) PlayVideo(w http.ResponseWriter, r *http.Request) {
	id := JobID(chi.URLParam(r, "id"))

	var req playRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.log.Debug("invalid play body", slog.String("error", err.Error()))
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	path, err := h.resolvePath(req.Path)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	state, err := h.svc.PlayVideo(r.Context(), id, path)
	if err != nil {
		status := statusFor(err)
		h.log.Log(r.Context(), levelFor(status), "play video failed",
			slog.String("request_id", logger.RequestID(r.Context())),
			slog.String("job_id", string(id)),
			slog.String("path", path),
			slog.String("error", err.Error()))
		writeError(w, status, err.Error())
		return
	}

	status := http.StatusAccepted
	if state == StateDone {
		status = http.StatusOK
	}
	writeJSON(w, status, playResponse{ID: id, State: state})
}

// GetJob handles GET /videos/{id}.
func (h *Handler) GetJob(w http.ResponseWriter, r *http.Request) {
	id := JobID(chi.URLParam(r, "id"))
	job, ok := h.svc.Job(id)
	if !ok {
		writeError(w, http.StatusNotFound, "job not found")
		return
	}
	writeJSON(w, http.StatusOK, job)
}

// ServeCDN handles GET /cdn/* from the output directory.
func (h *Handler) ServeCDN(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "*")
	if strings.HasSuffix(name, ".m3u8") {
		w.Header().Set("Content-Type", playlistContentType)
	}
	w.Header().Set("Cache-Control", "no-cache")
	http.StripPrefix("/cdn", h.cdn).ServeHTTP(w, r)
}

// resolvePath confines p to the media directory when one is configured.
func (h *Handler) resolvePath(p string) (string, error) {
	if strings.TrimSpace(p) == "" {
		return "", errors.New("path is required")
	}
	if h.mediaDir == "" {
		return p, nil
	}

	full := p
	if !filepath.IsAbs(full) {
		full = filepath.Join(h.mediaDir, full)
	}
	full = filepath.Clean(full)

	rel, err := filepath.Rel(filepath.Clean(h.mediaDir), full)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("path %q is outside the media directory", p)
	}
	return full, nil
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, ErrInvalidRequest):
		return http.StatusBadRequest
	case errors.Is(err, media.ErrProbe), errors.Is(err, media.ErrMalformedStream):
		return http.StatusUnprocessableEntity
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		// The caller stopped waiting; the job itself is unaffected.
		return http.StatusServiceUnavailable
	default:
		// manifest.ErrWrite, encoder.ErrSpawn and anything unexpected.
		return http.StatusInternalServerError
	}
}

func levelFor(status int) slog.Level {
	if status >= http.StatusInternalServerError && status != http.StatusServiceUnavailable {
		return slog.LevelError
	}
	return slog.LevelInfo
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
