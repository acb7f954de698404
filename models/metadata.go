package models

import (
	"strconv"
	"strings"
)

// PosterUnavailable is the placeholder poster value used by OMDB and kept for client compatibility.
const PosterUnavailable = "N/A"

// Episode is a single entry of a season listing. Ordinals are kept as strings
// to match the OMDB-shaped payloads clients already consume.
type Episode struct {
	Title    string `json:"Title"`
	Episode  string `json:"Episode"`
	IMDBID   string `json:"imdbID"` // synthetic: <tmdbId>_s<season>_e<episode>
	Released string `json:"Released"`
	Season   string `json:"Season"`
	Runtime  int    `json:"Runtime,omitempty"`
}

// Number parses the episode ordinal, returning 0 for unparseable values.
func (e Episode) Number() int {
	return parseOrdinal(e.Episode)
}

// SeasonNumber parses the season ordinal, returning 0 for unparseable values.
func (e Episode) SeasonNumber() int {
	return parseOrdinal(e.Season)
}

// Season groups the episodes of one season.
type Season struct {
	SeasonNumber int       `json:"seasonNumber"`
	Episodes     []Episode `json:"episodes"`
	Poster       string    `json:"poster"`
}

func parseOrdinal(value string) int {
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil || n < 0 {
		return 0
	}
	return n
}

// SearchResult is a title match with a resolved imdbID.
type SearchResult struct {
	IMDBID string  `json:"imdbID"`
	Title  string  `json:"Title"`
	Year   string  `json:"Year"`
	Type   string  `json:"Type"`
	Poster string  `json:"Poster"`
	TMDBID int64   `json:"tmdbId,omitempty"`
	Score  float64 `json:"score,omitempty"`
}

// TitleDetails is the subset of an OMDB title record exposed to clients.
type TitleDetails struct {
	IMDBID       string `json:"imdbID"`
	Title        string `json:"Title"`
	Year         string `json:"Year"`
	Rated        string `json:"Rated,omitempty"`
	Released     string `json:"Released,omitempty"`
	Runtime      string `json:"Runtime,omitempty"`
	Genre        string `json:"Genre,omitempty"`
	Director     string `json:"Director,omitempty"`
	Actors       string `json:"Actors,omitempty"`
	Plot         string `json:"Plot,omitempty"`
	Poster       string `json:"Poster,omitempty"`
	IMDBRating   string `json:"imdbRating,omitempty"`
	Type         string `json:"Type"`
	TotalSeasons string `json:"totalSeasons,omitempty"`
}

// LatestItem is an entry of a provider's "latest additions" listing.
type LatestItem struct {
	IMDBID   string        `json:"imdb_id"`
	TMDBID   string        `json:"tmdb_id,omitempty"`
	Title    string        `json:"title"`
	EmbedURL string        `json:"embed_url,omitempty"`
	Quality  string        `json:"quality,omitempty"`
	OMDB     *TitleDetails `json:"omdb_data,omitempty"`
}

// LatestPage is one page of the latest listing.
type LatestPage struct {
	Page   int          `json:"page"`
	Pages  int          `json:"pages,omitempty"`
	Result []LatestItem `json:"result"`
}

// Genre is a TMDB genre usable as a discover filter.
type Genre struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// DiscoverPage is one page of titles browsed by genre. Titles without an
// imdb id are dropped, so a page may hold fewer results than TMDB sent.
type DiscoverPage struct {
	Page       int            `json:"page"`
	TotalPages int            `json:"totalPages"`
	HasMore    bool           `json:"hasMore"`
	Results    []SearchResult `json:"results"`
}
