package metadata

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"bingewatch/models"
)

func TestGenresAreCachedPerType(t *testing.T) {
	var (
		mu    sync.Mutex
		paths []string
	)
	svc := newTestService(t, Config{TMDBAPIKey: "key"}, func(req *http.Request) *http.Response {
		mu.Lock()
		paths = append(paths, req.URL.Path)
		mu.Unlock()
		switch req.URL.Path {
		case "/3/genre/tv/list":
			return jsonResponse(http.StatusOK, `{"genres":[{"id":18,"name":"Drama"},{"id":80,"name":"Crime"}]}`)
		case "/3/genre/movie/list":
			return jsonResponse(http.StatusOK, `{"genres":[{"id":28,"name":"Action"}]}`)
		}
		return jsonResponse(http.StatusNotFound, `{}`)
	})

	ctx := context.Background()
	for range 2 {
		genres, err := svc.Genres(ctx, models.MediaTypeSeries)
		if err != nil {
			t.Fatalf("Genres: %v", err)
		}
		if len(genres) != 2 || genres[1] != (models.Genre{ID: 80, Name: "Crime"}) {
			t.Fatalf("unexpected genres: %+v", genres)
		}
	}
	if _, err := svc.Genres(ctx, models.MediaTypeMovie); err != nil {
		t.Fatalf("movie genres: %v", err)
	}
	if len(paths) != 2 {
		t.Fatalf("expected one request per type, got %v", paths)
	}

	if _, err := svc.Genres(ctx, "game"); !errors.Is(err, ErrInvalidRequest) {
		t.Fatalf("expected ErrInvalidRequest, got %v", err)
	}
}

func TestDiscoverFiltersReleasedTitlesWithImdbIDs(t *testing.T) {
	svc := newTestService(t, Config{TMDBAPIKey: "key"}, func(req *http.Request) *http.Response {
		switch req.URL.Path {
		case "/3/discover/tv":
			q := req.URL.Query()
			if q.Get("with_genres") != "80" || q.Get("page") != "2" || q.Get("sort_by") != SortPopularity {
				t.Errorf("unexpected discover query %s", req.URL.RawQuery)
			}
			if q.Get("first_air_date.lte") != "2024-05-01" || q.Get("include_null_first_air_dates") != "false" {
				t.Errorf("missing release filter in %s", req.URL.RawQuery)
			}
			return jsonResponse(http.StatusOK, `{"page":2,"total_pages":5,"results":[
				{"id":1396,"name":"Breaking Bad","first_air_date":"2008-01-20","poster_path":"/bb.jpg"},
				{"id":60059,"name":"Better Call Saul","first_air_date":"2015-02-08"},
				{"id":7,"name":"Unaired","first_air_date":"2030-01-01"},
				{"id":8,"name":"Undated"}]}`)
		case "/3/tv/1396/external_ids":
			return jsonResponse(http.StatusOK, `{"imdb_id":"tt0903747"}`)
		case "/3/tv/60059/external_ids":
			return jsonResponse(http.StatusOK, `{"imdb_id":""}`)
		}
		t.Errorf("unexpected request %s", req.URL)
		return jsonResponse(http.StatusNotFound, `{}`)
	})
	svc.now = func() time.Time { return time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC) }

	page, err := svc.Discover(context.Background(), DiscoverRequest{Type: models.MediaTypeSeries, GenreID: 80, Page: 2})
	if err != nil {
		t.Fatalf("Discover: %v", err)
	}
	if page.Page != 2 || page.TotalPages != 5 || !page.HasMore {
		t.Fatalf("unexpected paging: %+v", page)
	}
	if len(page.Results) != 1 {
		t.Fatalf("expected only the released title with an imdb id, got %+v", page.Results)
	}
	got := page.Results[0]
	if got.IMDBID != "tt0903747" || got.Type != "series" || got.Year != "2008" || got.Poster != "https://image.tmdb.org/t/p/w500/bb.jpg" {
		t.Fatalf("unexpected result: %+v", got)
	}
}

func TestDiscoverByYear(t *testing.T) {
	svc := newTestService(t, Config{TMDBAPIKey: "key"}, func(req *http.Request) *http.Response {
		switch req.URL.Path {
		case "/3/discover/movie":
			q := req.URL.Query()
			if q.Get("release_date.gte") != "1999-01-01" || q.Get("release_date.lte") != "1999-12-31" || q.Get("sort_by") != SortReleaseDate {
				t.Errorf("unexpected discover query %s", req.URL.RawQuery)
			}
			return jsonResponse(http.StatusOK, `{"page":1,"total_pages":1,"results":[
				{"id":603,"title":"The Matrix","release_date":"1999-03-30"},
				{"id":604,"title":"Strays","release_date":"2000-01-02"}]}`)
		case "/3/movie/603/external_ids":
			return jsonResponse(http.StatusOK, `{"imdb_id":"tt0133093"}`)
		}
		t.Errorf("unexpected request %s", req.URL)
		return jsonResponse(http.StatusNotFound, `{}`)
	})

	page, err := svc.Discover(context.Background(), DiscoverRequest{Type: models.MediaTypeMovie, GenreID: 28, Year: 1999, SortBy: "release_date"})
	if err != nil {
		t.Fatalf("Discover: %v", err)
	}
	if len(page.Results) != 1 || page.Results[0].IMDBID != "tt0133093" || page.HasMore {
		t.Fatalf("unexpected page: %+v", page)
	}
}

func TestDiscoverValidation(t *testing.T) {
	svc := NewService(Config{TMDBAPIKey: "key"})
	ctx := context.Background()
	bad := []DiscoverRequest{
		{Type: "game", GenreID: 1},
		{Type: models.MediaTypeMovie},
		{Type: models.MediaTypeMovie, GenreID: 1, Page: -1},
		{Type: models.MediaTypeMovie, GenreID: 1, Year: 42},
		{Type: models.MediaTypeMovie, GenreID: 1, SortBy: "vote_count.asc"},
	}
	for _, req := range bad {
		if _, err := svc.Discover(ctx, req); !errors.Is(err, ErrInvalidRequest) {
			t.Fatalf("%+v: expected ErrInvalidRequest, got %v", req, err)
		}
	}

	unconfigured := NewService(Config{})
	if _, err := unconfigured.Discover(ctx, DiscoverRequest{Type: models.MediaTypeMovie, GenreID: 28}); !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("expected ErrNotConfigured, got %v", err)
	}
}

func TestClearCacheForcesRefetch(t *testing.T) {
	var (
		mu    sync.Mutex
		calls int
	)
	svc := newTestService(t, Config{TMDBAPIKey: "key"}, func(req *http.Request) *http.Response {
		mu.Lock()
		calls++
		mu.Unlock()
		return jsonResponse(http.StatusOK, `{"genres":[{"id":18,"name":"Drama"}]}`)
	})

	ctx := context.Background()
	svc.Genres(ctx, models.MediaTypeSeries)
	svc.Genres(ctx, models.MediaTypeSeries)
	svc.ClearCache()
	svc.Genres(ctx, models.MediaTypeSeries)

	mu.Lock()
	defer mu.Unlock()
	if calls != 2 {
		t.Fatalf("expected a refetch after ClearCache, got %d upstream calls", calls)
	}
}
