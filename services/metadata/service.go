package metadata

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/sourcegraph/conc/pool"

	"bingewatch/models"
	"bingewatch/utils/similarity"
)

const (
	defaultCacheSize = 512
	defaultCacheTTL  = 6 * time.Hour
	defaultWorkers   = 8

	// only the best matches per media type get their imdb id resolved
	maxSearchCandidates = 10
)

// Config wires the upstream clients. Empty base URLs select the public APIs.
type Config struct {
	TMDBAPIKey        string
	OMDBAPIKey        string
	Language          string
	TMDBBaseURL       string
	OMDBBaseURL       string
	LatestBaseURL     string
	RequestsPerSecond float64
	CacheSize         int
	CacheTTL          time.Duration
	Workers           int
	HTTPClient        *http.Client
}

// Service answers title, season and runtime lookups from TMDB, OMDB and the
// vidsrc latest listings, caching responses in memory.
type Service struct {
	tmdb    *tmdbClient
	omdb    *omdbClient
	latest  *latestClient
	workers int

	searches *expirable.LRU[string, []models.SearchResult]
	seasons  *expirable.LRU[int64, []models.Season]
	runtimes *expirable.LRU[string, int]
	imdbIDs  *expirable.LRU[string, string]
	tmdbIDs  *expirable.LRU[string, int64]
	titles   *expirable.LRU[string, models.TitleDetails]
	genres   *expirable.LRU[models.MediaType, []models.Genre]

	now func() time.Time
}

func NewService(cfg Config) *Service {
	size := cfg.CacheSize
	if size <= 0 {
		size = defaultCacheSize
	}
	ttl := cfg.CacheTTL
	if ttl <= 0 {
		ttl = defaultCacheTTL
	}
	workers := cfg.Workers
	if workers <= 0 {
		workers = defaultWorkers
	}

	return &Service{
		tmdb:     newTMDBClient(cfg.TMDBAPIKey, cfg.Language, cfg.TMDBBaseURL, cfg.HTTPClient, cfg.RequestsPerSecond),
		omdb:     newOMDBClient(cfg.OMDBAPIKey, cfg.OMDBBaseURL, cfg.HTTPClient, cfg.RequestsPerSecond),
		latest:   newLatestClient(cfg.LatestBaseURL, cfg.HTTPClient, cfg.RequestsPerSecond),
		workers:  workers,
		searches: expirable.NewLRU[string, []models.SearchResult](size, nil, ttl),
		seasons:  expirable.NewLRU[int64, []models.Season](size, nil, ttl),
		runtimes: expirable.NewLRU[string, int](size*4, nil, ttl),
		imdbIDs:  expirable.NewLRU[string, string](size*4, nil, ttl),
		tmdbIDs:  expirable.NewLRU[string, int64](size, nil, ttl),
		titles:   expirable.NewLRU[string, models.TitleDetails](size, nil, ttl),
		genres:   expirable.NewLRU[models.MediaType, []models.Genre](4, nil, ttl),
		now:      time.Now,
	}
}

// ClearCache drops every cached response.
func (s *Service) ClearCache() {
	s.searches.Purge()
	s.seasons.Purge()
	s.runtimes.Purge()
	s.imdbIDs.Purge()
	s.tmdbIDs.Purge()
	s.titles.Purge()
	s.genres.Purge()
}

// Search finds movies and series matching query, best match first. Every
// result carries an imdb id. TMDB is preferred; OMDB answers when no TMDB
// key is configured. Upstream failures yield an empty result.
func (s *Service) Search(ctx context.Context, query string) ([]models.SearchResult, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return []models.SearchResult{}, nil
	}

	key := similarity.Fold(query)
	if cached, ok := s.searches.Get(key); ok {
		return cached, nil
	}

	var (
		results []models.SearchResult
		err     error
	)
	switch {
	case s.tmdb.isConfigured():
		results, err = s.searchTMDB(ctx, query)
	case s.omdb.isConfigured():
		results, err = s.omdb.search(ctx, query)
	default:
		return nil, fmt.Errorf("%w: no search provider", ErrNotConfigured)
	}
	if errors.Is(err, ErrNotFound) {
		results, err = nil, nil
	}
	if err != nil {
		// failures degrade to an empty result and are never cached
		log.Printf("[metadata] search %q failed: %v", query, err)
		return []models.SearchResult{}, nil
	}

	ranked := rankResults(query, results)
	s.searches.Add(key, ranked)
	return ranked, nil
}

type searchCandidate struct {
	item tmdbSearchItem
	kind models.MediaType
}

func (s *Service) searchTMDB(ctx context.Context, query string) ([]models.SearchResult, error) {
	kinds := []models.MediaType{models.MediaTypeSeries, models.MediaTypeMovie}
	lists := make([][]tmdbSearchItem, len(kinds))
	errs := make([]error, len(kinds))

	p := pool.New()
	for i, kind := range kinds {
		p.Go(func() {
			lists[i], errs[i] = s.tmdb.search(ctx, kind, query)
		})
	}
	p.Wait()

	var candidates []searchCandidate
	failed := 0
	for i, kind := range kinds {
		if errs[i] != nil {
			failed++
			log.Printf("[metadata] tmdb %s search failed: %v", kind, errs[i])
			continue
		}
		for j, item := range lists[i] {
			if j == maxSearchCandidates {
				break
			}
			candidates = append(candidates, searchCandidate{item: item, kind: kind})
		}
	}
	if failed == len(kinds) {
		return nil, errs[0]
	}

	resolved := make([]models.SearchResult, len(candidates))
	p = pool.New().WithMaxGoroutines(s.workers)
	for i, c := range candidates {
		p.Go(func() {
			imdbID, err := s.imdbIDFor(ctx, c.kind, c.item.ID)
			if err != nil {
				log.Printf("[metadata] external ids %s %d: %v", c.kind, c.item.ID, err)
				return
			}
			resolved[i] = models.SearchResult{
				IMDBID: imdbID,
				Title:  c.item.displayTitle(),
				Year:   c.item.year(),
				Type:   string(c.kind),
				Poster: posterURL(c.item.PosterPath),
				TMDBID: c.item.ID,
			}
		})
	}
	p.Wait()

	results := make([]models.SearchResult, 0, len(resolved))
	seen := make(map[string]bool, len(resolved))
	for _, r := range resolved {
		if r.IMDBID == "" {
			continue
		}
		key := r.Type + ":" + r.IMDBID
		if seen[key] {
			continue
		}
		seen[key] = true
		results = append(results, r)
	}
	return results, nil
}

func (s *Service) imdbIDFor(ctx context.Context, kind models.MediaType, tmdbID int64) (string, error) {
	key := fmt.Sprintf("%s:%d", kind, tmdbID)
	if id, ok := s.imdbIDs.Get(key); ok {
		return id, nil
	}
	id, err := s.tmdb.externalIMDBID(ctx, kind, tmdbID)
	if err != nil {
		return "", err
	}
	s.imdbIDs.Add(key, id)
	return id, nil
}

func rankResults(query string, results []models.SearchResult) []models.SearchResult {
	scored := similarity.Rank(query, results, func(r models.SearchResult) string { return r.Title })
	out := make([]models.SearchResult, 0, len(scored))
	for _, sc := range scored {
		r := sc.Item
		r.Score = sc.Score
		out = append(out, r)
	}
	return out
}

// Seasons returns every season of a series in season order. Seasons TMDB
// lists but cannot serve are skipped.
func (s *Service) Seasons(ctx context.Context, tmdbID int64) ([]models.Season, error) {
	if tmdbID <= 0 {
		return nil, fmt.Errorf("%w: tmdb id must be positive", ErrInvalidRequest)
	}
	if cached, ok := s.seasons.Get(tmdbID); ok {
		return cached, nil
	}

	series, err := s.tmdb.series(ctx, tmdbID)
	if err != nil {
		return nil, err
	}

	count := series.NumberOfSeasons
	fetched := make([]models.Season, count)
	ok := make([]bool, count)

	p := pool.New().WithErrors().WithContext(ctx).WithCancelOnError().WithMaxGoroutines(s.workers)
	for i := range count {
		p.Go(func(ctx context.Context) error {
			season, err := s.tmdb.season(ctx, tmdbID, i+1)
			if errors.Is(err, ErrNotFound) {
				log.Printf("[metadata] tmdb %d season %d missing", tmdbID, i+1)
				return nil
			}
			if err != nil {
				return fmt.Errorf("season %d: %w", i+1, err)
			}
			if season.Poster == models.PosterUnavailable {
				season.Poster = posterURL(series.PosterPath)
			}
			fetched[i], ok[i] = season, true
			return nil
		})
	}
	if err := p.Wait(); err != nil {
		return nil, err
	}

	seasons := make([]models.Season, 0, count)
	for i, season := range fetched {
		if !ok[i] {
			continue
		}
		for _, ep := range season.Episodes {
			if ep.Runtime > 0 {
				s.runtimes.Add(runtimeKey(tmdbID, season.SeasonNumber, ep.Number()), ep.Runtime)
			}
		}
		seasons = append(seasons, season)
	}
	s.seasons.Add(tmdbID, seasons)
	return seasons, nil
}

// EpisodeRuntime returns the runtime of one episode in minutes. TMDB reports
// 0 when the runtime is unknown.
func (s *Service) EpisodeRuntime(ctx context.Context, tmdbID int64, season, episode int) (int, error) {
	if tmdbID <= 0 || season < 0 || episode < 1 {
		return 0, fmt.Errorf("%w: tmdb=%d %s", ErrInvalidRequest, tmdbID, models.EpisodeCode(season, episode))
	}
	key := runtimeKey(tmdbID, season, episode)
	if minutes, ok := s.runtimes.Get(key); ok {
		return minutes, nil
	}
	minutes, err := s.tmdb.episodeRuntime(ctx, tmdbID, season, episode)
	if err != nil {
		return 0, err
	}
	s.runtimes.Add(key, minutes)
	return minutes, nil
}

func runtimeKey(tmdbID int64, season, episode int) string {
	return fmt.Sprintf("%d:%d:%d", tmdbID, season, episode)
}

// FindByIMDB maps an imdb id to its TMDB id, preferring the series entry
// when TMDB has both.
func (s *Service) FindByIMDB(ctx context.Context, imdbID string) (int64, error) {
	imdbID = strings.ToLower(strings.TrimSpace(imdbID))
	if imdbID == "" {
		return 0, fmt.Errorf("%w: imdb id is required", ErrInvalidRequest)
	}
	if id, ok := s.tmdbIDs.Get(imdbID); ok {
		return id, nil
	}

	tvID, movieID, err := s.tmdb.find(ctx, imdbID)
	if err != nil {
		return 0, err
	}
	id := tvID
	if id == 0 {
		id = movieID
	}
	if id == 0 {
		return 0, fmt.Errorf("%w: no tmdb title for %s", ErrNotFound, imdbID)
	}
	s.tmdbIDs.Add(imdbID, id)
	return id, nil
}

// Title returns OMDB's record for imdbID.
func (s *Service) Title(ctx context.Context, imdbID string) (models.TitleDetails, error) {
	imdbID = strings.TrimSpace(imdbID)
	if imdbID == "" {
		return models.TitleDetails{}, fmt.Errorf("%w: imdb id is required", ErrInvalidRequest)
	}
	key := strings.ToLower(imdbID)
	if details, ok := s.titles.Get(key); ok {
		return details, nil
	}
	details, err := s.omdb.title(ctx, imdbID)
	if err != nil {
		return models.TitleDetails{}, err
	}
	s.titles.Add(key, details)
	return details, nil
}

// Latest returns one page of recently added titles. When OMDB is configured
// each entry is enriched with its title record; entries that fail to enrich
// are returned as listed.
func (s *Service) Latest(ctx context.Context, kind LatestKind, page int) (models.LatestPage, error) {
	if page < 1 {
		return models.LatestPage{}, fmt.Errorf("%w: page must be at least 1", ErrInvalidRequest)
	}
	listing, err := s.latest.page(ctx, kind, page)
	if err != nil {
		return models.LatestPage{}, err
	}
	if !s.omdb.isConfigured() {
		return listing, nil
	}

	p := pool.New().WithMaxGoroutines(s.workers)
	for i := range listing.Result {
		item := &listing.Result[i]
		if item.IMDBID == "" {
			continue
		}
		p.Go(func() {
			details, err := s.Title(ctx, item.IMDBID)
			if err != nil {
				log.Printf("[metadata] enrich %s: %v", item.IMDBID, err)
				return
			}
			item.OMDB = &details
		})
	}
	p.Wait()
	return listing, nil
}
