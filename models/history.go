package models

import (
	"errors"
	"fmt"
	"strings"
)

// MediaType distinguishes movies from episodic series.
type MediaType string

const (
	MediaTypeMovie  MediaType = "movie"
	MediaTypeSeries MediaType = "series"
)

var ErrUnknownMediaType = errors.New("unknown media type")

// ParseMediaType accepts "movie" and "series" (plus the "tv" and "show" aliases)
// regardless of case or surrounding whitespace.
func ParseMediaType(value string) (MediaType, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "movie", "film":
		return MediaTypeMovie, nil
	case "series", "tv", "show", "episode":
		return MediaTypeSeries, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownMediaType, value)
}

func (t MediaType) Valid() bool {
	return t == MediaTypeMovie || t == MediaTypeSeries
}

// CompletionThreshold is the watched fraction beyond which a video counts as completed.
const CompletionThreshold = 0.9

// VideoProgress is the resume position of a single movie or episode.
type VideoProgress struct {
	CurrentTime float64 `json:"currentTime"`
	Duration    float64 `json:"duration"`
	Completed   bool    `json:"completed"`
	LastWatched int64   `json:"lastWatched"` // unix millis
}

// NewVideoProgress derives Completed from the watched fraction.
func NewVideoProgress(currentTime, duration float64, lastWatched int64) VideoProgress {
	p := VideoProgress{
		CurrentTime: currentTime,
		Duration:    duration,
		LastWatched: lastWatched,
	}
	if duration > 0 {
		p.Completed = currentTime/duration > CompletionThreshold
	}
	return p
}

// Fraction returns the watched share in [0,1].
func (p VideoProgress) Fraction() float64 {
	if p.Duration <= 0 {
		return 0
	}
	f := p.CurrentTime / p.Duration
	if f > 1 {
		return 1
	}
	if f < 0 {
		return 0
	}
	return f
}

// VideoInfo describes a watched movie or series episode. It is both the
// history record persisted per user and the payload clients send.
type VideoInfo struct {
	IMDBID       string         `json:"imdbID"`
	Title        string         `json:"title"`
	Type         MediaType      `json:"type"`
	Season       int            `json:"season,omitempty"`
	Episode      int            `json:"episode,omitempty"`
	EpisodeTitle string         `json:"episodeTitle,omitempty"`
	Poster       string         `json:"poster,omitempty"`
	TMDBID       int64          `json:"tmdbId,omitempty"`
	Timestamp    int64          `json:"timestamp"` // unix millis
	Runtime      int            `json:"runtime,omitempty"` // minutes
	Progress     *VideoProgress `json:"progress,omitempty"`
	URL          string         `json:"url,omitempty"`
}

// Normalize trims identifiers and clears the episode fields on movies.
func (v VideoInfo) Normalize() VideoInfo {
	v.IMDBID = strings.TrimSpace(v.IMDBID)
	v.Title = strings.TrimSpace(v.Title)
	v.EpisodeTitle = strings.TrimSpace(v.EpisodeTitle)
	v.Poster = strings.TrimSpace(v.Poster)
	if t, err := ParseMediaType(string(v.Type)); err == nil {
		v.Type = t
	}
	if v.Type == MediaTypeMovie {
		v.Season = 0
		v.Episode = 0
		v.EpisodeTitle = ""
	}
	return v
}

// Key is the identity of a record: one per episode for series, one per movie.
func (v VideoInfo) Key() string {
	return RecordKey(v.Type, v.IMDBID, v.Season, v.Episode)
}

// GroupKey identifies the show or movie a record belongs to. Series and
// movies sharing an imdbID form separate groups.
func (v VideoInfo) GroupKey() string {
	return string(v.Type) + ":" + strings.ToLower(strings.TrimSpace(v.IMDBID))
}

// TimerID matches the key the web client uses for its episode timers.
func (v VideoInfo) TimerID() string {
	return fmt.Sprintf("%s_s%d_e%d", v.IMDBID, v.Season, v.Episode)
}

func (v VideoInfo) IsSeries() bool {
	return v.Type == MediaTypeSeries
}

// RecordKey builds the identity key without a VideoInfo.
func RecordKey(mediaType MediaType, imdbID string, season, episode int) string {
	id := strings.ToLower(strings.TrimSpace(imdbID))
	if mediaType == MediaTypeSeries {
		return fmt.Sprintf("episode:%s:%s", id, EpisodeCode(season, episode))
	}
	return "movie:" + id
}

// EpisodeCode formats a season/episode pair as s01e02.
func EpisodeCode(season, episode int) string {
	return fmt.Sprintf("s%02de%02d", season, episode)
}
