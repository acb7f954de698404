package metadata

import (
	"context"
	"fmt"
	"log"
	"net/url"
	"strconv"
	"strings"

	"github.com/sourcegraph/conc/pool"

	"bingewatch/models"
)

// Discover sort orders accepted by TMDB.
const (
	SortPopularity  = "popularity.desc"
	SortReleaseDate = "release_date.desc"
)

// DiscoverRequest selects one page of a genre listing. A zero Year limits
// the listing to titles already released.
type DiscoverRequest struct {
	Type    models.MediaType
	GenreID int64
	Page    int
	SortBy  string
	Year    int
}

// ParseSort accepts the TMDB sort names and the short forms "popularity"
// and "release_date". Empty selects SortPopularity.
func ParseSort(value string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "", "popularity", SortPopularity:
		return SortPopularity, nil
	case "release_date", "released", SortReleaseDate:
		return SortReleaseDate, nil
	}
	return "", fmt.Errorf("%w: unknown sort %q", ErrInvalidRequest, value)
}

// Genres lists the TMDB genres of movies or series.
func (s *Service) Genres(ctx context.Context, kind models.MediaType) ([]models.Genre, error) {
	if !kind.Valid() {
		return nil, fmt.Errorf("%w: media type %q", ErrInvalidRequest, kind)
	}
	if cached, ok := s.genres.Get(kind); ok {
		return cached, nil
	}
	genres, err := s.tmdb.genres(ctx, kind)
	if err != nil {
		return nil, err
	}
	if genres == nil {
		genres = []models.Genre{}
	}
	s.genres.Add(kind, genres)
	return genres, nil
}

// Discover returns one page of titles in a genre. Titles without a release
// date, outside the requested year, not yet released, or without an imdb id
// are left out.
func (s *Service) Discover(ctx context.Context, req DiscoverRequest) (models.DiscoverPage, error) {
	if !req.Type.Valid() {
		return models.DiscoverPage{}, fmt.Errorf("%w: media type %q", ErrInvalidRequest, req.Type)
	}
	if req.GenreID <= 0 {
		return models.DiscoverPage{}, fmt.Errorf("%w: genre id must be positive", ErrInvalidRequest)
	}
	if req.Page == 0 {
		req.Page = 1
	}
	if req.Page < 1 {
		return models.DiscoverPage{}, fmt.Errorf("%w: page must be at least 1", ErrInvalidRequest)
	}
	if req.Year != 0 && (req.Year < 1900 || req.Year > 9999) {
		return models.DiscoverPage{}, fmt.Errorf("%w: year %d", ErrInvalidRequest, req.Year)
	}
	sortBy, err := ParseSort(req.SortBy)
	if err != nil {
		return models.DiscoverPage{}, err
	}

	dateField := "release_date"
	if req.Type == models.MediaTypeSeries {
		dateField = "first_air_date"
	}
	today := s.now().UTC().Format("2006-01-02")
	year := ""
	q := url.Values{
		"with_genres":                  {strconv.FormatInt(req.GenreID, 10)},
		"page":                         {strconv.Itoa(req.Page)},
		"sort_by":                      {sortBy},
		"include_adult":                {"false"},
		"include_null_first_air_dates": {"false"},
	}
	if req.Year != 0 {
		year = strconv.Itoa(req.Year)
		q.Set(dateField+".gte", year+"-01-01")
		q.Set(dateField+".lte", year+"-12-31")
	} else {
		q.Set(dateField+".lte", today)
	}

	resp, err := s.tmdb.discover(ctx, req.Type, q)
	if err != nil {
		return models.DiscoverPage{}, err
	}

	var candidates []tmdbSearchItem
	for _, item := range resp.Results {
		date := item.date()
		switch {
		case date == "":
			continue
		case year != "" && item.year() != year:
			continue
		case year == "" && date > today:
			continue
		}
		candidates = append(candidates, item)
	}

	resolved := make([]models.SearchResult, len(candidates))
	p := pool.New().WithMaxGoroutines(s.workers)
	for i, item := range candidates {
		p.Go(func() {
			imdbID, err := s.imdbIDFor(ctx, req.Type, item.ID)
			if err != nil {
				log.Printf("[metadata] external ids %s %d: %v", req.Type, item.ID, err)
				return
			}
			resolved[i] = models.SearchResult{
				IMDBID: imdbID,
				Title:  item.displayTitle(),
				Year:   item.year(),
				Type:   string(req.Type),
				Poster: posterURL(item.PosterPath),
				TMDBID: item.ID,
			}
		})
	}
	p.Wait()

	page := models.DiscoverPage{
		Page:       resp.Page,
		TotalPages: resp.TotalPages,
		Results:    make([]models.SearchResult, 0, len(resolved)),
	}
	if page.Page == 0 {
		page.Page = req.Page
	}
	for _, r := range resolved {
		if r.IMDBID != "" {
			page.Results = append(page.Results, r)
		}
	}
	page.HasMore = len(page.Results) > 0 && page.Page < page.TotalPages
	return page, nil
}
