package metadata

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"bingewatch/models"
)

const omdbBaseURL = "https://www.omdbapi.com/"

type omdbClient struct {
	apiKey  string
	baseURL string
	up      *upstream
}

func newOMDBClient(apiKey, baseURL string, httpc *http.Client, rps float64) *omdbClient {
	baseURL = strings.TrimSpace(baseURL)
	if baseURL == "" {
		baseURL = omdbBaseURL
	}
	return &omdbClient{
		apiKey:  strings.TrimSpace(apiKey),
		baseURL: baseURL,
		up:      newUpstream("omdb", httpc, rps),
	}
}

func (c *omdbClient) isConfigured() bool {
	return c != nil && c.apiKey != ""
}

// omdbEnvelope carries OMDB's in-band error reporting: failures still answer
// 200 with Response "False".
type omdbEnvelope struct {
	Response string `json:"Response"`
	Error    string `json:"Error"`
}

func (e omdbEnvelope) err() error {
	if strings.EqualFold(e.Response, "false") {
		if strings.Contains(strings.ToLower(e.Error), "not found") {
			return fmt.Errorf("%w: omdb: %s", ErrNotFound, e.Error)
		}
		return fmt.Errorf("%w: omdb: %s", ErrUpstream, e.Error)
	}
	return nil
}

type omdbSearchResponse struct {
	omdbEnvelope
	Search []struct {
		Title  string `json:"Title"`
		Year   string `json:"Year"`
		IMDBID string `json:"imdbID"`
		Type   string `json:"Type"`
		Poster string `json:"Poster"`
	} `json:"Search"`
}

type omdbTitleResponse struct {
	omdbEnvelope
	models.TitleDetails
}

func (c *omdbClient) get(ctx context.Context, query url.Values, v any) error {
	if !c.isConfigured() {
		return fmt.Errorf("%w: omdb api key", ErrNotConfigured)
	}
	query.Set("apikey", c.apiKey)
	return c.up.getJSON(ctx, c.baseURL+"?"+query.Encode(), v)
}

func (c *omdbClient) search(ctx context.Context, query string) ([]models.SearchResult, error) {
	var resp omdbSearchResponse
	if err := c.get(ctx, url.Values{"s": {query}}, &resp); err != nil {
		return nil, err
	}
	if err := resp.err(); err != nil {
		return nil, err
	}

	results := make([]models.SearchResult, 0, len(resp.Search))
	for _, item := range resp.Search {
		if strings.TrimSpace(item.IMDBID) == "" {
			continue
		}
		kind, err := models.ParseMediaType(item.Type)
		if err != nil {
			// OMDB also lists games
			continue
		}
		results = append(results, models.SearchResult{
			IMDBID: item.IMDBID,
			Title:  item.Title,
			Year:   item.Year,
			Type:   string(kind),
			Poster: item.Poster,
		})
	}
	return results, nil
}

func (c *omdbClient) title(ctx context.Context, imdbID string) (models.TitleDetails, error) {
	var resp omdbTitleResponse
	if err := c.get(ctx, url.Values{"i": {imdbID}, "plot": {"short"}}, &resp); err != nil {
		return models.TitleDetails{}, err
	}
	if err := resp.err(); err != nil {
		return models.TitleDetails{}, err
	}
	details := resp.TitleDetails
	if kind, err := models.ParseMediaType(details.Type); err == nil {
		details.Type = string(kind)
	}
	return details, nil
}
