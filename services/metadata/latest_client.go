package metadata

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"bingewatch/models"
)

const latestBaseURL = "https://vidsrc.xyz"

// LatestKind selects which listing of recent additions to read.
type LatestKind string

const (
	LatestMovies   LatestKind = "movies"
	LatestTVShows  LatestKind = "tvshows"
	LatestEpisodes LatestKind = "episodes"
)

// ParseLatestKind accepts the listing names plus "movie", "tv" and "series".
func ParseLatestKind(value string) (LatestKind, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "movies", "movie":
		return LatestMovies, nil
	case "tvshows", "tv", "series", "shows":
		return LatestTVShows, nil
	case "episodes":
		return LatestEpisodes, nil
	}
	return "", fmt.Errorf("%w: unknown latest listing %q", ErrInvalidRequest, value)
}

type latestClient struct {
	baseURL string
	up      *upstream
}

func newLatestClient(baseURL string, httpc *http.Client, rps float64) *latestClient {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		baseURL = latestBaseURL
	}
	return &latestClient{baseURL: baseURL, up: newUpstream("latest", httpc, rps)}
}

type latestResponse struct {
	Pages  int `json:"pages"`
	Result []struct {
		IMDBID   string `json:"imdb_id"`
		TMDBID   any    `json:"tmdb_id"`
		Title    string `json:"title"`
		ShowName string `json:"show_name"`
		EmbedURL string `json:"embed_url"`
		Quality  string `json:"quality"`
	} `json:"result"`
}

func (c *latestClient) page(ctx context.Context, kind LatestKind, page int) (models.LatestPage, error) {
	endpoint := fmt.Sprintf("%s/%s/latest/page-%d.json", c.baseURL, kind, page)

	var resp latestResponse
	if err := c.up.getJSON(ctx, endpoint, &resp); err != nil {
		return models.LatestPage{}, err
	}

	out := models.LatestPage{Page: page, Pages: resp.Pages, Result: make([]models.LatestItem, 0, len(resp.Result))}
	for _, item := range resp.Result {
		title := item.Title
		if title == "" {
			title = item.ShowName
		}
		entry := models.LatestItem{
			IMDBID:   strings.TrimSpace(item.IMDBID),
			Title:    title,
			EmbedURL: item.EmbedURL,
			Quality:  item.Quality,
		}
		// tmdb_id arrives as a number or a string depending on the listing
		if item.TMDBID != nil {
			switch v := item.TMDBID.(type) {
			case float64:
				entry.TMDBID = fmt.Sprintf("%.0f", v)
			default:
				entry.TMDBID = strings.TrimSpace(fmt.Sprint(v))
			}
		}
		out.Result = append(out.Result, entry)
	}
	return out, nil
}
