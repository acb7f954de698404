package handlers

import (
	"net/http"
	"time"

	"bingewatch/services/autosync"
)

type syncStatusProvider interface {
	Status() autosync.Status
}

var _ syncStatusProvider = (*autosync.Service)(nil)

type HealthHandler struct {
	Sync    syncStatusProvider
	Version string
	started time.Time
}

func NewHealthHandler(sync syncStatusProvider, version string) *HealthHandler {
	return &HealthHandler{Sync: sync, Version: version, started: time.Now()}
}

type healthResponse struct {
	Status  string           `json:"status"`
	Version string           `json:"version,omitempty"`
	Uptime  string           `json:"uptime"`
	Sync    *autosync.Status `json:"sync,omitempty"`
}

func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{
		Status:  "ok",
		Version: h.Version,
		Uptime:  time.Since(h.started).Round(time.Second).String(),
	}
	if h.Sync != nil {
		status := h.Sync.Status()
		resp.Sync = &status
	}
	writeJSON(w, http.StatusOK, resp)
}
