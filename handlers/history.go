package handlers

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/mux"

	"bingewatch/models"
	"bingewatch/services/progress"
)

type historyService interface {
	RecordWatched(ctx context.Context, userID string, video models.VideoInfo) (models.VideoInfo, error)
	GetHistory(ctx context.Context, userID string, limit int) ([]models.VideoInfo, error)
	ListAll(ctx context.Context, userID string) ([]models.VideoInfo, error)
	DeleteShow(ctx context.Context, userID, imdbID string, mediaType models.MediaType) (int, error)
	LastWatchedEpisode(ctx context.Context, userID, imdbID string) (*models.VideoInfo, error)
	SaveProgress(ctx context.Context, userID string, video models.VideoInfo, currentTime, duration float64) (models.VideoProgress, error)
	GetProgress(ctx context.Context, userID string, video models.VideoInfo) (*models.VideoProgress, error)
}

var _ historyService = (*progress.Service)(nil)

type HistoryHandler struct {
	Service historyService
}

func NewHistoryHandler(service historyService) *HistoryHandler {
	return &HistoryHandler{Service: service}
}

// List returns the continue watching view.
func (h *HistoryHandler) List(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	limit := 0
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			http.Error(w, "limit must be a non-negative integer", http.StatusBadRequest)
			return
		}
		limit = n
	}

	items, err := h.Service.GetHistory(r.Context(), userID, limit)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, items)
}

func (h *HistoryHandler) ListAll(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	items, err := h.Service.ListAll(r.Context(), userID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, items)
}

func (h *HistoryHandler) Record(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	var video models.VideoInfo
	if err := decodeJSON(r, &video); err != nil {
		http.Error(w, "invalid JSON payload", http.StatusBadRequest)
		return
	}
	if _, err := models.ParseMediaType(string(video.Type)); err != nil {
		writeError(w, err)
		return
	}

	saved, err := h.Service.RecordWatched(r.Context(), userID, video)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, saved)
}

// DeleteShow removes every record of the show. ?type narrows it to the
// series episodes or the movie.
func (h *HistoryHandler) DeleteShow(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	imdbID := strings.TrimSpace(mux.Vars(r)["imdbID"])
	var mediaType models.MediaType
	if raw := strings.TrimSpace(r.URL.Query().Get("type")); raw != "" {
		parsed, err := models.ParseMediaType(raw)
		if err != nil {
			writeError(w, err)
			return
		}
		mediaType = parsed
	}

	removed, err := h.Service.DeleteShow(r.Context(), userID, imdbID, mediaType)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"removed": removed})
}

func (h *HistoryHandler) LastWatched(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	last, err := h.Service.LastWatchedEpisode(r.Context(), userID, mux.Vars(r)["imdbID"])
	if err != nil {
		writeError(w, err)
		return
	}
	if last == nil {
		http.Error(w, "nothing watched for this title", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, last)
}

type saveProgressRequest struct {
	Video       models.VideoInfo `json:"video"`
	CurrentTime float64          `json:"currentTime"`
	Duration    float64          `json:"duration"`
}

func (h *HistoryHandler) SaveProgress(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	var req saveProgressRequest
	if err := decodeJSON(r, &req); err != nil {
		http.Error(w, "invalid JSON payload", http.StatusBadRequest)
		return
	}
	if _, err := models.ParseMediaType(string(req.Video.Type)); err != nil {
		writeError(w, err)
		return
	}

	p, err := h.Service.SaveProgress(r.Context(), userID, req.Video, req.CurrentTime, req.Duration)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// GetProgress looks the video up by ?imdbID&type&season&episode. A video
// without stored progress answers 204.
func (h *HistoryHandler) GetProgress(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	video, err := videoFromQuery(r)
	if err != nil {
		writeError(w, err)
		return
	}

	p, err := h.Service.GetProgress(r.Context(), userID, video)
	if err != nil {
		writeError(w, err)
		return
	}
	if p == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (h *HistoryHandler) Options(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}

// videoFromQuery reads imdbID, type, season and episode query parameters.
func videoFromQuery(r *http.Request) (models.VideoInfo, error) {
	q := r.URL.Query()
	mediaType, err := models.ParseMediaType(q.Get("type"))
	if err != nil {
		return models.VideoInfo{}, err
	}
	video := models.VideoInfo{
		IMDBID: strings.TrimSpace(q.Get("imdbID")),
		Title:  strings.TrimSpace(q.Get("title")),
		Type:   mediaType,
	}
	if video.Season, err = intParam(q.Get("season")); err != nil {
		return models.VideoInfo{}, progress.ErrInvalidEpisode
	}
	if video.Episode, err = intParam(q.Get("episode")); err != nil {
		return models.VideoInfo{}, progress.ErrInvalidEpisode
	}
	if raw := strings.TrimSpace(q.Get("tmdbId")); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return models.VideoInfo{}, fmt.Errorf("%w: tmdbId %q", errBadParameter, raw)
		}
		video.TMDBID = id
	}
	return video, nil
}

func intParam(raw string) (int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, nil
	}
	return strconv.Atoi(raw)
}
