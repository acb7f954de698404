package handlers

import (
	"context"
	"net/http"
	"strings"

	"github.com/gorilla/mux"

	"bingewatch/models"
	"bingewatch/services/playback"
)

type playbackService interface {
	Start(ctx context.Context, userID string, req playback.StartRequest) (playback.Session, error)
	Get(userID, sessionID string) (playback.Session, error)
	Active() []playback.Session
	Next(ctx context.Context, userID, sessionID string) (playback.Session, error)
	Previous(ctx context.Context, userID, sessionID string) (playback.Session, error)
	Progress(ctx context.Context, userID, sessionID string, currentTime, duration float64) (playback.Session, error)
	Activity(userID, sessionID string) (bool, error)
	End(ctx context.Context, userID, sessionID string) (playback.Session, error)
}

var _ playbackService = (*playback.Service)(nil)

type PlaybackHandler struct {
	Service playbackService
}

func NewPlaybackHandler(s playbackService) *PlaybackHandler {
	return &PlaybackHandler{Service: s}
}

func (h *PlaybackHandler) Start(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	var req playback.StartRequest
	if err := decodeJSON(r, &req); err != nil {
		http.Error(w, "invalid JSON payload", http.StatusBadRequest)
		return
	}
	if _, err := models.ParseMediaType(string(req.Video.Type)); err != nil {
		writeError(w, err)
		return
	}

	session, err := h.Service.Start(r.Context(), userID, req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, session)
}

// List returns the caller's open sessions.
func (h *PlaybackHandler) List(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	sessions := make([]playback.Session, 0)
	for _, s := range h.Service.Active() {
		if s.UserID == userID {
			sessions = append(sessions, s)
		}
	}
	writeJSON(w, http.StatusOK, sessions)
}

func (h *PlaybackHandler) Get(w http.ResponseWriter, r *http.Request) {
	userID, sessionID, ok := sessionRequest(w, r)
	if !ok {
		return
	}

	session, err := h.Service.Get(userID, sessionID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, session)
}

func (h *PlaybackHandler) Next(w http.ResponseWriter, r *http.Request) {
	userID, sessionID, ok := sessionRequest(w, r)
	if !ok {
		return
	}

	session, err := h.Service.Next(r.Context(), userID, sessionID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, session)
}

func (h *PlaybackHandler) Previous(w http.ResponseWriter, r *http.Request) {
	userID, sessionID, ok := sessionRequest(w, r)
	if !ok {
		return
	}

	session, err := h.Service.Previous(r.Context(), userID, sessionID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, session)
}

type sessionProgressRequest struct {
	CurrentTime float64 `json:"currentTime"`
	Duration    float64 `json:"duration"`
}

func (h *PlaybackHandler) Progress(w http.ResponseWriter, r *http.Request) {
	userID, sessionID, ok := sessionRequest(w, r)
	if !ok {
		return
	}

	var req sessionProgressRequest
	if err := decodeJSON(r, &req); err != nil {
		http.Error(w, "invalid JSON payload", http.StatusBadRequest)
		return
	}

	session, err := h.Service.Progress(r.Context(), userID, sessionID, req.CurrentTime, req.Duration)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, session)
}

// Activity reports pointer or key activity so the controls overlay stays visible.
func (h *PlaybackHandler) Activity(w http.ResponseWriter, r *http.Request) {
	userID, sessionID, ok := sessionRequest(w, r)
	if !ok {
		return
	}

	visible, err := h.Service.Activity(userID, sessionID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"controlsVisible": visible})
}

func (h *PlaybackHandler) End(w http.ResponseWriter, r *http.Request) {
	userID, sessionID, ok := sessionRequest(w, r)
	if !ok {
		return
	}

	session, err := h.Service.End(r.Context(), userID, sessionID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, session)
}

func (h *PlaybackHandler) Options(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}

func sessionRequest(w http.ResponseWriter, r *http.Request) (string, string, bool) {
	userID, ok := requireUser(w, r)
	if !ok {
		return "", "", false
	}
	sessionID := strings.TrimSpace(mux.Vars(r)["id"])
	if sessionID == "" {
		http.Error(w, "session id is required", http.StatusBadRequest)
		return "", "", false
	}
	return userID, sessionID, true
}
