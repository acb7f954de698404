package handlers_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gorilla/mux"

	"bingewatch/handlers"
	"bingewatch/models"
	"bingewatch/services/metadata"
)

type fakeMetadataService struct {
	searchQuery string
	results     []models.SearchResult
	seasonsFor  int64
	seasons     []models.Season
	runtime     int
	latestKind  metadata.LatestKind
	latestPage  int
	found       map[string]int64
	discovered  metadata.DiscoverRequest
	err         error
}

func (f *fakeMetadataService) Search(_ context.Context, query string) ([]models.SearchResult, error) {
	f.searchQuery = query
	return f.results, f.err
}

func (f *fakeMetadataService) Title(_ context.Context, imdbID string) (models.TitleDetails, error) {
	if f.err != nil {
		return models.TitleDetails{}, f.err
	}
	return models.TitleDetails{IMDBID: imdbID, Title: "Breaking Bad", Type: "series"}, nil
}

func (f *fakeMetadataService) Seasons(_ context.Context, tmdbID int64) ([]models.Season, error) {
	f.seasonsFor = tmdbID
	return f.seasons, f.err
}

func (f *fakeMetadataService) EpisodeRuntime(_ context.Context, tmdbID int64, season, episode int) (int, error) {
	return f.runtime, f.err
}

func (f *fakeMetadataService) FindByIMDB(_ context.Context, imdbID string) (int64, error) {
	if id, ok := f.found[imdbID]; ok {
		return id, nil
	}
	return 0, metadata.ErrNotFound
}

func (f *fakeMetadataService) Genres(_ context.Context, kind models.MediaType) ([]models.Genre, error) {
	if f.err != nil {
		return nil, f.err
	}
	if kind == models.MediaTypeSeries {
		return []models.Genre{{ID: 80, Name: "Crime"}}, nil
	}
	return []models.Genre{{ID: 28, Name: "Action"}}, nil
}

func (f *fakeMetadataService) Discover(_ context.Context, req metadata.DiscoverRequest) (models.DiscoverPage, error) {
	f.discovered = req
	if f.err != nil {
		return models.DiscoverPage{}, f.err
	}
	return models.DiscoverPage{Page: max(req.Page, 1), TotalPages: 3, HasMore: true, Results: f.results}, nil
}

func (f *fakeMetadataService) Latest(_ context.Context, kind metadata.LatestKind, page int) (models.LatestPage, error) {
	f.latestKind, f.latestPage = kind, page
	return models.LatestPage{Page: page, Result: []models.LatestItem{{IMDBID: "tt1", Title: "One"}}}, f.err
}

func TestMetadataHandler_Search(t *testing.T) {
	fake := &fakeMetadataService{results: []models.SearchResult{{IMDBID: "tt0903747", Title: "Breaking Bad", Type: "series"}}}
	h := handlers.NewMetadataHandler(fake)

	rec := httptest.NewRecorder()
	h.Search(rec, httptest.NewRequest(http.MethodGet, "/api/search?query=breaking+bad", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if fake.searchQuery != "breaking bad" {
		t.Fatalf("query not forwarded: %q", fake.searchQuery)
	}

	var got []models.SearchResult
	if err := json.NewDecoder(rec.Body).Decode(&got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(got) != 1 || got[0].IMDBID != "tt0903747" {
		t.Fatalf("unexpected results: %+v", got)
	}
}

func TestMetadataHandler_ErrorStatuses(t *testing.T) {
	cases := []struct {
		err    error
		status int
	}{
		{fmt.Errorf("tmdb: %w", metadata.ErrUpstream), http.StatusBadGateway},
		{metadata.ErrNotConfigured, http.StatusServiceUnavailable},
		{metadata.ErrNotFound, http.StatusNotFound},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		h := handlers.NewMetadataHandler(&fakeMetadataService{err: tc.err})
		rec := httptest.NewRecorder()
		h.Search(rec, httptest.NewRequest(http.MethodGet, "/api/search?query=x", nil))
		if rec.Code != tc.status {
			t.Fatalf("%v: expected %d, got %d", tc.err, tc.status, rec.Code)
		}
	}
}

func TestMetadataHandler_SeasonsResolvesIMDBID(t *testing.T) {
	fake := &fakeMetadataService{
		found:   map[string]int64{"tt0903747": 1396},
		seasons: []models.Season{{SeasonNumber: 1}},
	}
	h := handlers.NewMetadataHandler(fake)

	req := mux.SetURLVars(httptest.NewRequest(http.MethodGet, "/api/tv/tt0903747/seasons", nil), map[string]string{"tmdbID": "tt0903747"})
	rec := httptest.NewRecorder()
	h.Seasons(rec, req)
	if rec.Code != http.StatusOK || fake.seasonsFor != 1396 {
		t.Fatalf("status=%d tmdb=%d", rec.Code, fake.seasonsFor)
	}

	req = mux.SetURLVars(httptest.NewRequest(http.MethodGet, "/api/tv/abc/seasons", nil), map[string]string{"tmdbID": "abc"})
	rec = httptest.NewRecorder()
	h.Seasons(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for a bad id, got %d", rec.Code)
	}
}

func TestMetadataHandler_Runtime(t *testing.T) {
	h := handlers.NewMetadataHandler(&fakeMetadataService{runtime: 47})

	req := mux.SetURLVars(httptest.NewRequest(http.MethodGet, "/api/tv/1396/season/1/episode/2/runtime", nil),
		map[string]string{"tmdbID": "1396", "season": "1", "episode": "2"})
	rec := httptest.NewRecorder()
	h.Runtime(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var got struct {
		Runtime int `json:"runtime"`
		Episode int `json:"episode"`
	}
	json.NewDecoder(rec.Body).Decode(&got)
	if got.Runtime != 47 || got.Episode != 2 {
		t.Fatalf("unexpected runtime: %+v", got)
	}
}

func TestMetadataHandler_Latest(t *testing.T) {
	fake := &fakeMetadataService{}
	h := handlers.NewMetadataHandler(fake)

	req := mux.SetURLVars(httptest.NewRequest(http.MethodGet, "/api/latest/tv/3", nil), map[string]string{"kind": "tv", "page": "3"})
	rec := httptest.NewRecorder()
	h.Latest(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if fake.latestKind != metadata.LatestTVShows || fake.latestPage != 3 {
		t.Fatalf("kind=%s page=%d", fake.latestKind, fake.latestPage)
	}

	req = mux.SetURLVars(httptest.NewRequest(http.MethodGet, "/api/latest/music/1", nil), map[string]string{"kind": "music", "page": "1"})
	rec = httptest.NewRecorder()
	h.Latest(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown kind, got %d", rec.Code)
	}
}

func TestMetadataHandler_Genres(t *testing.T) {
	h := handlers.NewMetadataHandler(&fakeMetadataService{})

	rec := httptest.NewRecorder()
	req := mux.SetURLVars(httptest.NewRequest(http.MethodGet, "/api/genres/tv", nil), map[string]string{"kind": "tv"})
	h.Genres(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d body=%s", rec.Code, rec.Body.String())
	}
	var genres []models.Genre
	if err := json.NewDecoder(rec.Body).Decode(&genres); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(genres) != 1 || genres[0].Name != "Crime" {
		t.Fatalf("tv should map to series genres, got %+v", genres)
	}

	rec = httptest.NewRecorder()
	req = mux.SetURLVars(httptest.NewRequest(http.MethodGet, "/api/genres/music", nil), map[string]string{"kind": "music"})
	h.Genres(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown kind, got %d", rec.Code)
	}
}

func TestMetadataHandler_Discover(t *testing.T) {
	fake := &fakeMetadataService{results: []models.SearchResult{{IMDBID: "tt0133093", Title: "The Matrix", Type: "movie"}}}
	h := handlers.NewMetadataHandler(fake)

	rec := httptest.NewRecorder()
	req := mux.SetURLVars(httptest.NewRequest(http.MethodGet, "/api/discover/movie?genre=28&page=2&sort=release_date&year=1999", nil), map[string]string{"kind": "movie"})
	h.Discover(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d body=%s", rec.Code, rec.Body.String())
	}
	want := metadata.DiscoverRequest{Type: models.MediaTypeMovie, GenreID: 28, Page: 2, SortBy: "release_date", Year: 1999}
	if fake.discovered != want {
		t.Fatalf("discover request = %+v, want %+v", fake.discovered, want)
	}
	var page models.DiscoverPage
	if err := json.NewDecoder(rec.Body).Decode(&page); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if page.Page != 2 || !page.HasMore || len(page.Results) != 1 {
		t.Fatalf("unexpected page: %+v", page)
	}

	for _, target := range []string{"/api/discover/movie", "/api/discover/movie?genre=28&page=two"} {
		rec = httptest.NewRecorder()
		req = mux.SetURLVars(httptest.NewRequest(http.MethodGet, target, nil), map[string]string{"kind": "movie"})
		h.Discover(rec, req)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("%s: expected 400, got %d", target, rec.Code)
		}
	}

	fake.err = fmt.Errorf("%w: tmdb api key", metadata.ErrNotConfigured)
	rec = httptest.NewRecorder()
	req = mux.SetURLVars(httptest.NewRequest(http.MethodGet, "/api/discover/tv?genre=80", nil), map[string]string{"kind": "tv"})
	h.Discover(rec, req)
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 without tmdb, got %d", rec.Code)
	}
}
