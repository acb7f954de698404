package handlers

import (
	"context"
	"net/http"

	"github.com/gorilla/mux"

	"bingewatch/models"
	"bingewatch/services/embed"
	"bingewatch/services/navigator"
)

type episodeNavigator interface {
	Advance(ctx context.Context, current models.VideoInfo, seasons []models.Season, dir navigator.Direction) (models.VideoInfo, error)
}

var _ episodeNavigator = (*navigator.Navigator)(nil)

// NavigateHandler exposes the stateless navigator and the embed URL builder.
type NavigateHandler struct {
	Navigator episodeNavigator
}

func NewNavigateHandler(nav episodeNavigator) *NavigateHandler {
	return &NavigateHandler{Navigator: nav}
}

type navigateRequest struct {
	Video   models.VideoInfo `json:"video"`
	Seasons []models.Season  `json:"seasons"`
}

func (h *NavigateHandler) Navigate(w http.ResponseWriter, r *http.Request) {
	if _, ok := requireUser(w, r); !ok {
		return
	}

	dir, err := navigator.ParseDirection(mux.Vars(r)["direction"])
	if err != nil {
		writeError(w, err)
		return
	}

	var req navigateRequest
	if err := decodeJSON(r, &req); err != nil {
		http.Error(w, "invalid JSON payload", http.StatusBadRequest)
		return
	}
	req.Video = req.Video.Normalize()
	if !req.Video.Type.Valid() {
		writeError(w, models.ErrUnknownMediaType)
		return
	}

	next, err := h.Navigator.Advance(r.Context(), req.Video, req.Seasons, dir)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, next)
}

func (h *NavigateHandler) Providers(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"default":   embed.DefaultProvider,
		"providers": embed.Providers(),
	})
}

// Embed builds the iframe URL from ?provider&imdbID&type&season&episode.
func (h *NavigateHandler) Embed(w http.ResponseWriter, r *http.Request) {
	video, err := videoFromQuery(r)
	if err != nil {
		writeError(w, err)
		return
	}
	provider := r.URL.Query().Get("provider")

	link, err := embed.URL(provider, video)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"url":     link,
		"timerId": video.TimerID(),
	})
}

func (h *NavigateHandler) Options(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}
