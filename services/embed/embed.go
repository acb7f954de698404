package embed

import (
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strings"

	"bingewatch/models"
)

var (
	ErrUnknownProvider = errors.New("unknown embed provider")
	ErrIMDBIDRequired  = errors.New("imdb id is required")
)

const DefaultProvider = "vidsrc.dev"

type builder struct {
	movie  func(imdbID string) string
	series func(imdbID string, season, episode int) string
}

var providers = map[string]builder{
	"vidsrc.dev": {
		movie: func(imdbID string) string {
			return "https://vidsrc.dev/embed/movie/" + url.PathEscape(imdbID)
		},
		series: func(imdbID string, season, episode int) string {
			return fmt.Sprintf("https://vidsrc.dev/embed/tv/%s/%d/%d", url.PathEscape(imdbID), season, episode)
		},
	},
	"vidsrc.xyz": {
		movie: func(imdbID string) string {
			return "https://vidsrc.xyz/embed/movie?" + url.Values{"imdb": {imdbID}}.Encode()
		},
		series: func(imdbID string, season, episode int) string {
			return fmt.Sprintf("https://vidsrc.xyz/embed/tv?imdb=%s&s=%d&e=%d", url.QueryEscape(imdbID), season, episode)
		},
	},
}

// Providers lists the supported embed hosts.
func Providers() []string {
	names := make([]string, 0, len(providers))
	for name := range providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// URL builds the iframe src for video on provider. An empty provider selects
// DefaultProvider.
func URL(provider string, video models.VideoInfo) (string, error) {
	provider = strings.ToLower(strings.TrimSpace(provider))
	if provider == "" {
		provider = DefaultProvider
	}
	b, ok := providers[provider]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownProvider, provider)
	}
	imdbID := strings.TrimSpace(video.IMDBID)
	if imdbID == "" {
		return "", ErrIMDBIDRequired
	}
	if video.IsSeries() {
		season, episode := video.Season, video.Episode
		if season < 1 {
			season = 1
		}
		if episode < 1 {
			episode = 1
		}
		return b.series(imdbID, season, episode), nil
	}
	return b.movie(imdbID), nil
}
