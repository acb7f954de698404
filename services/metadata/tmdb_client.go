package metadata

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"bingewatch/models"
)

const (
	tmdbBaseURL      = "https://api.themoviedb.org/3"
	tmdbImageBaseURL = "https://image.tmdb.org/t/p"
	tmdbPosterSize   = "w500"
)

type tmdbClient struct {
	apiKey   string
	language string
	baseURL  string
	up       *upstream
}

func newTMDBClient(apiKey, language, baseURL string, httpc *http.Client, rps float64) *tmdbClient {
	c := &tmdbClient{
		apiKey:   strings.TrimSpace(apiKey),
		language: normalizeLanguage(language),
		baseURL:  strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		up:       newUpstream("tmdb", httpc, rps),
	}
	if c.baseURL == "" {
		c.baseURL = tmdbBaseURL
	}
	// v4 read access tokens go in the Authorization header, v3 keys in the query.
	if isBearerToken(c.apiKey) {
		token := c.apiKey
		c.up.decorate = func(req *http.Request) {
			req.Header.Set("Authorization", "Bearer "+token)
		}
	}
	return c
}

func (c *tmdbClient) isConfigured() bool {
	return c != nil && c.apiKey != ""
}

func isBearerToken(key string) bool {
	return strings.HasPrefix(key, "eyJ") && strings.Count(key, ".") == 2
}

type tmdbSearchResponse struct {
	Results []tmdbSearchItem `json:"results"`
}

type tmdbSearchItem struct {
	ID           int64   `json:"id"`
	Name         string  `json:"name"`
	Title        string  `json:"title"`
	PosterPath   string  `json:"poster_path"`
	FirstAirDate string  `json:"first_air_date"`
	ReleaseDate  string  `json:"release_date"`
	Popularity   float64 `json:"popularity"`
}

func (i tmdbSearchItem) displayTitle() string {
	if i.Name != "" {
		return i.Name
	}
	return i.Title
}

func (i tmdbSearchItem) date() string {
	if i.FirstAirDate != "" {
		return i.FirstAirDate
	}
	return i.ReleaseDate
}

func (i tmdbSearchItem) year() string {
	date := i.date()
	if len(date) >= 4 {
		return date[:4]
	}
	return ""
}

type tmdbGenresResponse struct {
	Genres []models.Genre `json:"genres"`
}

type tmdbDiscoverResponse struct {
	Page       int              `json:"page"`
	TotalPages int              `json:"total_pages"`
	Results    []tmdbSearchItem `json:"results"`
}

type tmdbExternalIDsResponse struct {
	IMDBID string `json:"imdb_id"`
}

type tmdbSeriesResponse struct {
	ID              int64  `json:"id"`
	Name            string `json:"name"`
	NumberOfSeasons int    `json:"number_of_seasons"`
	PosterPath      string `json:"poster_path"`
}

type tmdbSeasonResponse struct {
	SeasonNumber int    `json:"season_number"`
	PosterPath   string `json:"poster_path"`
	Episodes     []struct {
		EpisodeNumber int    `json:"episode_number"`
		SeasonNumber  int    `json:"season_number"`
		Name          string `json:"name"`
		AirDate       string `json:"air_date"`
		Runtime       int    `json:"runtime"`
	} `json:"episodes"`
}

type tmdbEpisodeResponse struct {
	Runtime int `json:"runtime"`
}

type tmdbFindResponse struct {
	MovieResults []struct {
		ID int64 `json:"id"`
	} `json:"movie_results"`
	TVResults []struct {
		ID int64 `json:"id"`
	} `json:"tv_results"`
}

// endpoint joins segments onto the base URL and adds the key and language.
func (c *tmdbClient) endpoint(query url.Values, segments ...string) (string, error) {
	endpoint, err := url.JoinPath(c.baseURL, segments...)
	if err != nil {
		return "", err
	}
	if query == nil {
		query = url.Values{}
	}
	if !isBearerToken(c.apiKey) {
		query.Set("api_key", c.apiKey)
	}
	if c.language != "" {
		query.Set("language", c.language)
	}
	return endpoint + "?" + query.Encode(), nil
}

func (c *tmdbClient) get(ctx context.Context, v any, query url.Values, segments ...string) error {
	if !c.isConfigured() {
		return fmt.Errorf("%w: tmdb api key", ErrNotConfigured)
	}
	endpoint, err := c.endpoint(query, segments...)
	if err != nil {
		return err
	}
	return c.up.getJSON(ctx, endpoint, v)
}

// tmdbKind maps a media type onto TMDB's path segment.
func tmdbKind(mediaType models.MediaType) string {
	if mediaType == models.MediaTypeSeries {
		return "tv"
	}
	return "movie"
}

// search queries search/tv or search/movie depending on mediaType.
func (c *tmdbClient) search(ctx context.Context, mediaType models.MediaType, query string) ([]tmdbSearchItem, error) {
	var resp tmdbSearchResponse
	q := url.Values{"query": {query}, "include_adult": {"false"}}
	if err := c.get(ctx, &resp, q, "search", tmdbKind(mediaType)); err != nil {
		return nil, err
	}
	return resp.Results, nil
}

func (c *tmdbClient) externalIMDBID(ctx context.Context, mediaType models.MediaType, tmdbID int64) (string, error) {
	var resp tmdbExternalIDsResponse
	if err := c.get(ctx, &resp, nil, tmdbKind(mediaType), strconv.FormatInt(tmdbID, 10), "external_ids"); err != nil {
		return "", err
	}
	return strings.TrimSpace(resp.IMDBID), nil
}

func (c *tmdbClient) genres(ctx context.Context, mediaType models.MediaType) ([]models.Genre, error) {
	var resp tmdbGenresResponse
	if err := c.get(ctx, &resp, nil, "genre", tmdbKind(mediaType), "list"); err != nil {
		return nil, err
	}
	return resp.Genres, nil
}

func (c *tmdbClient) discover(ctx context.Context, mediaType models.MediaType, query url.Values) (tmdbDiscoverResponse, error) {
	var resp tmdbDiscoverResponse
	err := c.get(ctx, &resp, query, "discover", tmdbKind(mediaType))
	return resp, err
}

func (c *tmdbClient) series(ctx context.Context, tmdbID int64) (tmdbSeriesResponse, error) {
	var resp tmdbSeriesResponse
	err := c.get(ctx, &resp, nil, "tv", strconv.FormatInt(tmdbID, 10))
	return resp, err
}

// season fetches one season listing and maps it onto the client payload
// shape, with synthetic episode ids of the form <tmdbId>_s<season>_e<episode>.
func (c *tmdbClient) season(ctx context.Context, tmdbID int64, number int) (models.Season, error) {
	var resp tmdbSeasonResponse
	if err := c.get(ctx, &resp, nil, "tv", strconv.FormatInt(tmdbID, 10), "season", strconv.Itoa(number)); err != nil {
		return models.Season{}, err
	}

	season := models.Season{
		SeasonNumber: number,
		Poster:       posterURL(resp.PosterPath),
		Episodes:     make([]models.Episode, 0, len(resp.Episodes)),
	}
	for _, ep := range resp.Episodes {
		season.Episodes = append(season.Episodes, models.Episode{
			Title:    ep.Name,
			Episode:  strconv.Itoa(ep.EpisodeNumber),
			IMDBID:   fmt.Sprintf("%d_s%d_e%d", tmdbID, number, ep.EpisodeNumber),
			Released: ep.AirDate,
			Season:   strconv.Itoa(number),
			Runtime:  ep.Runtime,
		})
	}
	return season, nil
}

func (c *tmdbClient) episodeRuntime(ctx context.Context, tmdbID int64, season, episode int) (int, error) {
	var resp tmdbEpisodeResponse
	err := c.get(ctx, &resp, nil,
		"tv", strconv.FormatInt(tmdbID, 10),
		"season", strconv.Itoa(season),
		"episode", strconv.Itoa(episode))
	if err != nil {
		return 0, err
	}
	return resp.Runtime, nil
}

// find resolves an imdb id to TMDB ids. Either id is 0 when TMDB has no
// title of that type.
func (c *tmdbClient) find(ctx context.Context, imdbID string) (tvID, movieID int64, err error) {
	var resp tmdbFindResponse
	q := url.Values{"external_source": {"imdb_id"}}
	if err := c.get(ctx, &resp, q, "find", imdbID); err != nil {
		return 0, 0, err
	}
	if len(resp.TVResults) > 0 {
		tvID = resp.TVResults[0].ID
	}
	if len(resp.MovieResults) > 0 {
		movieID = resp.MovieResults[0].ID
	}
	return tvID, movieID, nil
}

func posterURL(path string) string {
	path = strings.TrimSpace(path)
	if path == "" {
		return models.PosterUnavailable
	}
	return tmdbImageBaseURL + "/" + tmdbPosterSize + "/" + strings.TrimPrefix(path, "/")
}

// normalizeLanguage maps empty and bare "en" onto TMDB's en-US form.
func normalizeLanguage(lang string) string {
	lang = strings.TrimSpace(lang)
	if lang == "" || strings.EqualFold(lang, "en") {
		return "en-US"
	}
	return lang
}
