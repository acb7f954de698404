package models

import "time"

// Client state names mirror the keys the web client keeps in browser storage.
const (
	ClientStateCookies       = "cookies"
	ClientStateVideoAppState = "videoAppState"
	ClientStateEpisodeTimers = "episodeTimers"
	ClientStateWatchHistory  = "watchHistory"
)

// ClientStateNames lists the blobs a user may store.
var ClientStateNames = []string{
	ClientStateCookies,
	ClientStateVideoAppState,
	ClientStateEpisodeTimers,
	ClientStateWatchHistory,
}

// ClientState is an opaque per-user blob saved by the web client so a session
// can be restored on another device.
type ClientState struct {
	ID          string    `json:"id"`
	UserID      string    `json:"userId"`
	Name        string    `json:"name"`
	Data        string    `json:"data"`
	LastUpdated time.Time `json:"lastUpdated"`
}
