package handlers

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"bingewatch/internal/auth"
	"bingewatch/models"
	"bingewatch/services/clientstate"
	"bingewatch/services/embed"
	"bingewatch/services/metadata"
	"bingewatch/services/navigator"
	"bingewatch/services/playback"
	"bingewatch/services/progress"
)

var errBadParameter = errors.New("invalid parameter")

// statusFor maps service errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, auth.ErrNoUser),
		errors.Is(err, progress.ErrUserIDRequired),
		errors.Is(err, clientstate.ErrUserIDRequired):
		return http.StatusUnauthorized

	case errors.Is(err, progress.ErrIMDBIDRequired),
		errors.Is(err, progress.ErrInvalidMediaType),
		errors.Is(err, progress.ErrInvalidEpisode),
		errors.Is(err, progress.ErrInvalidProgress),
		errors.Is(err, models.ErrUnknownMediaType),
		errors.Is(err, navigator.ErrNotSeries),
		errors.Is(err, navigator.ErrBadDirection),
		errors.Is(err, embed.ErrUnknownProvider),
		errors.Is(err, embed.ErrIMDBIDRequired),
		errors.Is(err, metadata.ErrInvalidRequest),
		errors.Is(err, clientstate.ErrUnknownName),
		errors.Is(err, errBadParameter):
		return http.StatusBadRequest

	case errors.Is(err, clientstate.ErrDataTooLarge):
		return http.StatusRequestEntityTooLarge

	case errors.Is(err, playback.ErrSessionForbidden):
		return http.StatusForbidden

	case errors.Is(err, playback.ErrSessionNotFound),
		errors.Is(err, navigator.ErrEpisodeUnknown),
		errors.Is(err, metadata.ErrNotFound):
		return http.StatusNotFound

	case errors.Is(err, navigator.ErrNoNeighbor):
		return http.StatusConflict

	case errors.Is(err, metadata.ErrUpstream):
		return http.StatusBadGateway

	case errors.Is(err, metadata.ErrNotConfigured):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

func writeError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		log.Printf("[api] internal error: %v", err)
	}
	http.Error(w, err.Error(), status)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// decodeJSON reads a single JSON document, rejecting unknown fields.
func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, 8<<20))
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

// requireUser writes 401 when the request carries no authenticated user.
func requireUser(w http.ResponseWriter, r *http.Request) (string, bool) {
	userID, err := auth.RequireUser(r.Context())
	if err != nil {
		http.Error(w, "authentication required", http.StatusUnauthorized)
		return "", false
	}
	return userID, true
}
