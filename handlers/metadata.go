package handlers

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/mux"

	"bingewatch/models"
	metadatapkg "bingewatch/services/metadata"
)

type metadataService interface {
	Search(ctx context.Context, query string) ([]models.SearchResult, error)
	Title(ctx context.Context, imdbID string) (models.TitleDetails, error)
	Seasons(ctx context.Context, tmdbID int64) ([]models.Season, error)
	EpisodeRuntime(ctx context.Context, tmdbID int64, season, episode int) (int, error)
	FindByIMDB(ctx context.Context, imdbID string) (int64, error)
	Latest(ctx context.Context, kind metadatapkg.LatestKind, page int) (models.LatestPage, error)
	Genres(ctx context.Context, kind models.MediaType) ([]models.Genre, error)
	Discover(ctx context.Context, req metadatapkg.DiscoverRequest) (models.DiscoverPage, error)
}

var _ metadataService = (*metadatapkg.Service)(nil)

type MetadataHandler struct {
	Service metadataService
}

func NewMetadataHandler(s metadataService) *MetadataHandler {
	return &MetadataHandler{Service: s}
}

func (h *MetadataHandler) Search(w http.ResponseWriter, r *http.Request) {
	query := strings.TrimSpace(r.URL.Query().Get("query"))
	if query == "" {
		query = strings.TrimSpace(r.URL.Query().Get("q"))
	}

	results, err := h.Service.Search(r.Context(), query)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, results)
}

func (h *MetadataHandler) Title(w http.ResponseWriter, r *http.Request) {
	imdbID := strings.TrimSpace(mux.Vars(r)["imdbID"])
	if imdbID == "" {
		http.Error(w, "imdb id is required", http.StatusBadRequest)
		return
	}

	details, err := h.Service.Title(r.Context(), imdbID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, details)
}

// Seasons accepts a numeric tmdb id or an imdb id, which is resolved first.
func (h *MetadataHandler) Seasons(w http.ResponseWriter, r *http.Request) {
	tmdbID, err := h.resolveTMDBID(r.Context(), mux.Vars(r)["tmdbID"])
	if err != nil {
		writeError(w, err)
		return
	}

	seasons, err := h.Service.Seasons(r.Context(), tmdbID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, seasons)
}

type runtimeResponse struct {
	TMDBID  int64 `json:"tmdbId"`
	Season  int   `json:"season"`
	Episode int   `json:"episode"`
	Runtime int   `json:"runtime"`
}

func (h *MetadataHandler) Runtime(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	tmdbID, err := h.resolveTMDBID(r.Context(), vars["tmdbID"])
	if err != nil {
		writeError(w, err)
		return
	}
	season, err := strconv.Atoi(vars["season"])
	if err != nil {
		http.Error(w, "season must be a number", http.StatusBadRequest)
		return
	}
	episode, err := strconv.Atoi(vars["episode"])
	if err != nil {
		http.Error(w, "episode must be a number", http.StatusBadRequest)
		return
	}

	minutes, err := h.Service.EpisodeRuntime(r.Context(), tmdbID, season, episode)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, runtimeResponse{TMDBID: tmdbID, Season: season, Episode: episode, Runtime: minutes})
}

func (h *MetadataHandler) Latest(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	kind, err := metadatapkg.ParseLatestKind(vars["kind"])
	if err != nil {
		writeError(w, err)
		return
	}
	page := 1
	if raw := strings.TrimSpace(vars["page"]); raw != "" {
		if page, err = strconv.Atoi(raw); err != nil {
			http.Error(w, "page must be a number", http.StatusBadRequest)
			return
		}
	}

	result, err := h.Service.Latest(r.Context(), kind, page)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *MetadataHandler) Genres(w http.ResponseWriter, r *http.Request) {
	kind, err := models.ParseMediaType(mux.Vars(r)["kind"])
	if err != nil {
		writeError(w, err)
		return
	}

	genres, err := h.Service.Genres(r.Context(), kind)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, genres)
}

// Discover pages through a genre: ?genre=<id>&page=&sort=popularity|release_date&year=
func (h *MetadataHandler) Discover(w http.ResponseWriter, r *http.Request) {
	kind, err := models.ParseMediaType(mux.Vars(r)["kind"])
	if err != nil {
		writeError(w, err)
		return
	}
	q := r.URL.Query()
	genreID, err := strconv.ParseInt(strings.TrimSpace(q.Get("genre")), 10, 64)
	if err != nil {
		http.Error(w, "genre must be a number", http.StatusBadRequest)
		return
	}
	page, err := intParam(q.Get("page"))
	if err != nil {
		http.Error(w, "page must be a number", http.StatusBadRequest)
		return
	}
	year, err := intParam(q.Get("year"))
	if err != nil {
		http.Error(w, "year must be a number", http.StatusBadRequest)
		return
	}

	result, err := h.Service.Discover(r.Context(), metadatapkg.DiscoverRequest{
		Type:    kind,
		GenreID: genreID,
		Page:    page,
		SortBy:  q.Get("sort"),
		Year:    year,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *MetadataHandler) Options(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}

func (h *MetadataHandler) resolveTMDBID(ctx context.Context, raw string) (int64, error) {
	raw = strings.TrimSpace(raw)
	if strings.HasPrefix(strings.ToLower(raw), "tt") {
		return h.Service.FindByIMDB(ctx, raw)
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: tmdb id %q", errBadParameter, raw)
	}
	return id, nil
}
