package handlers

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/gorilla/mux"

	"bingewatch/internal/storage/remotestore"
	"bingewatch/models"
	"bingewatch/services/progress"
)

// StoreHandler serves the raw record surface another instance mirrors
// through remotestore. Records are stored as given, without the history
// policy.
type StoreHandler struct {
	Store progress.Store
	token string
}

func NewStoreHandler(store progress.Store, token string) *StoreHandler {
	return &StoreHandler{Store: store, token: strings.TrimSpace(token)}
}

// Authorize rejects requests that do not carry the shared bearer token.
func (h *StoreHandler) Authorize(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodOptions {
			next.ServeHTTP(w, r)
			return
		}
		raw, _ := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if h.token == "" || subtle.ConstantTimeCompare([]byte(strings.TrimSpace(raw)), []byte(h.token)) != 1 {
			http.Error(w, "invalid store token", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (h *StoreHandler) List(w http.ResponseWriter, r *http.Request) {
	userID, ok := storeUser(w, r)
	if !ok {
		return
	}

	items, err := h.Store.List(r.Context(), userID)
	if err != nil {
		writeError(w, err)
		return
	}
	if items == nil {
		items = []models.VideoInfo{}
	}
	writeJSON(w, http.StatusOK, items)
}

func (h *StoreHandler) Put(w http.ResponseWriter, r *http.Request) {
	userID, ok := storeUser(w, r)
	if !ok {
		return
	}

	var video models.VideoInfo
	if err := decodeJSON(r, &video); err != nil {
		http.Error(w, "invalid JSON payload", http.StatusBadRequest)
		return
	}
	video = video.Normalize()
	if video.IMDBID == "" || !video.Type.Valid() {
		http.Error(w, "record needs an imdb id and a media type", http.StatusBadRequest)
		return
	}

	if err := h.Store.Put(r.Context(), userID, video); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *StoreHandler) Get(w http.ResponseWriter, r *http.Request) {
	userID, ok := storeUser(w, r)
	if !ok {
		return
	}

	rec, err := h.Store.Get(r.Context(), userID, mux.Vars(r)["key"])
	if err != nil {
		writeError(w, err)
		return
	}
	if rec == nil {
		http.Error(w, "record not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (h *StoreHandler) Delete(w http.ResponseWriter, r *http.Request) {
	userID, ok := storeUser(w, r)
	if !ok {
		return
	}

	if err := h.Store.Delete(r.Context(), userID, mux.Vars(r)["key"]); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func storeUser(w http.ResponseWriter, r *http.Request) (string, bool) {
	userID := strings.TrimSpace(r.Header.Get(remotestore.UserHeader))
	if userID == "" {
		http.Error(w, remotestore.UserHeader+" header is required", http.StatusBadRequest)
		return "", false
	}
	return userID, true
}
