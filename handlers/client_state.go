package handlers

import (
	"net/http"

	"github.com/gorilla/mux"

	"bingewatch/models"
	"bingewatch/services/clientstate"
)

type clientStateService interface {
	Get(userID, name string) (*models.ClientState, error)
	List(userID string) ([]models.ClientState, error)
	Put(userID, name, data string) (models.ClientState, error)
	Delete(userID, name string) error
}

var _ clientStateService = (*clientstate.Service)(nil)

type ClientStateHandler struct {
	Service clientStateService
}

func NewClientStateHandler(s clientStateService) *ClientStateHandler {
	return &ClientStateHandler{Service: s}
}

func (h *ClientStateHandler) List(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	states, err := h.Service.List(userID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, states)
}

func (h *ClientStateHandler) Get(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	state, err := h.Service.Get(userID, mux.Vars(r)["name"])
	if err != nil {
		writeError(w, err)
		return
	}
	if state == nil {
		http.Error(w, "client state not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, state)
}

type putClientStateRequest struct {
	Data string `json:"data"`
}

func (h *ClientStateHandler) Put(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	var req putClientStateRequest
	if err := decodeJSON(r, &req); err != nil {
		http.Error(w, "invalid JSON payload", http.StatusBadRequest)
		return
	}

	state, err := h.Service.Put(userID, mux.Vars(r)["name"], req.Data)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, state)
}

func (h *ClientStateHandler) Delete(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	if err := h.Service.Delete(userID, mux.Vars(r)["name"]); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *ClientStateHandler) Options(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}
