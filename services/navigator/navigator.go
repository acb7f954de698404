package navigator

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strconv"
	"strings"

	"bingewatch/models"
)

var (
	ErrNotSeries      = errors.New("navigation requires a series episode")
	ErrEpisodeUnknown = errors.New("episode not found in season listing")
	ErrNoNeighbor     = errors.New("no episode in that direction")
	ErrBadDirection   = errors.New("direction must be next or previous")
)

// Direction selects the neighbor to resolve.
type Direction string

const (
	DirectionNext     Direction = "next"
	DirectionPrevious Direction = "previous"
)

// ParseDirection accepts next/previous and the prev shorthand.
func ParseDirection(value string) (Direction, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "next":
		return DirectionNext, nil
	case "previous", "prev":
		return DirectionPrevious, nil
	}
	return "", fmt.Errorf("%w: %q", ErrBadDirection, value)
}

// RuntimeSource looks up an episode's runtime in minutes.
//
//go:generate mockgen -destination=mocks/runtime_source.go -package=mocks bingewatch/services/navigator RuntimeSource
type RuntimeSource interface {
	EpisodeRuntime(ctx context.Context, tmdbID int64, season, episode int) (int, error)
}

// CurrentIndex locates season/episode inside seasons. Seasons are matched by
// number rather than position; episodes by their parsed ordinal.
func CurrentIndex(seasons []models.Season, season, episode int) (seasonIdx, episodeIdx int, ok bool) {
	seasonIdx = findSeason(seasons, season)
	if seasonIdx < 0 {
		return -1, -1, false
	}
	for i, ep := range seasons[seasonIdx].Episodes {
		if ep.Number() == episode {
			return seasonIdx, i, true
		}
	}
	return seasonIdx, -1, false
}

// Next returns the episode after season/episode. Past the last episode of a
// season it moves to the first episode of season+1. The last episode of the
// final season has no successor.
func Next(seasons []models.Season, season, episode int) (models.Episode, bool) {
	si, ei, ok := CurrentIndex(seasons, season, episode)
	if !ok {
		return models.Episode{}, false
	}
	eps := seasons[si].Episodes
	if ei+1 < len(eps) {
		return withSeason(eps[ei+1], season), true
	}

	nextIdx := findSeason(seasons, season+1)
	if nextIdx < 0 || len(seasons[nextIdx].Episodes) == 0 {
		return models.Episode{}, false
	}
	return withSeason(seasons[nextIdx].Episodes[0], season+1), true
}

// Previous returns the episode before season/episode. Before the first
// episode it moves to the last episode of season-1 when season > 1.
func Previous(seasons []models.Season, season, episode int) (models.Episode, bool) {
	si, ei, ok := CurrentIndex(seasons, season, episode)
	if !ok {
		return models.Episode{}, false
	}
	if ei > 0 {
		return withSeason(seasons[si].Episodes[ei-1], season), true
	}
	if season <= 1 {
		return models.Episode{}, false
	}

	prevIdx := findSeason(seasons, season-1)
	if prevIdx < 0 || len(seasons[prevIdx].Episodes) == 0 {
		return models.Episode{}, false
	}
	eps := seasons[prevIdx].Episodes
	return withSeason(eps[len(eps)-1], season-1), true
}

// Navigator resolves neighbors of a playing video and fills in their runtime.
type Navigator struct {
	runtimes RuntimeSource
}

// New returns a Navigator. A nil source leaves runtimes at zero.
func New(runtimes RuntimeSource) *Navigator {
	return &Navigator{runtimes: runtimes}
}

// Advance returns the video for the neighbor of current in the given
// direction. The runtime is fetched lazily; a failed fetch yields 0.
func (n *Navigator) Advance(ctx context.Context, current models.VideoInfo, seasons []models.Season, dir Direction) (models.VideoInfo, error) {
	if !current.IsSeries() {
		return models.VideoInfo{}, ErrNotSeries
	}
	if _, _, ok := CurrentIndex(seasons, current.Season, current.Episode); !ok {
		return models.VideoInfo{}, fmt.Errorf("%w: %s", ErrEpisodeUnknown, models.EpisodeCode(current.Season, current.Episode))
	}

	var (
		ep    models.Episode
		found bool
	)
	switch dir {
	case DirectionNext:
		ep, found = Next(seasons, current.Season, current.Episode)
	case DirectionPrevious:
		ep, found = Previous(seasons, current.Season, current.Episode)
	default:
		return models.VideoInfo{}, ErrBadDirection
	}
	if !found {
		return models.VideoInfo{}, ErrNoNeighbor
	}

	next := models.VideoInfo{
		IMDBID:       current.IMDBID,
		Title:        current.Title,
		Type:         models.MediaTypeSeries,
		Season:       ep.SeasonNumber(),
		Episode:      ep.Number(),
		EpisodeTitle: ep.Title,
		Poster:       current.Poster,
		TMDBID:       current.TMDBID,
		Runtime:      ep.Runtime,
	}
	if next.Runtime == 0 {
		next.Runtime = n.Runtime(ctx, next)
	}
	return next, nil
}

// Runtime fetches the runtime of video, degrading to 0 on any failure.
func (n *Navigator) Runtime(ctx context.Context, video models.VideoInfo) int {
	if n == nil || n.runtimes == nil || video.TMDBID == 0 || !video.IsSeries() {
		return 0
	}
	minutes, err := n.runtimes.EpisodeRuntime(ctx, video.TMDBID, video.Season, video.Episode)
	if err != nil {
		log.Printf("[navigator] runtime lookup failed tmdb=%d %s: %v", video.TMDBID, models.EpisodeCode(video.Season, video.Episode), err)
		return 0
	}
	if minutes < 0 {
		return 0
	}
	return minutes
}

func findSeason(seasons []models.Season, number int) int {
	for i, s := range seasons {
		if s.SeasonNumber == number {
			return i
		}
	}
	return -1
}

// withSeason stamps the season the episode was found in.
func withSeason(ep models.Episode, season int) models.Episode {
	ep.Season = strconv.Itoa(season)
	return ep
}
