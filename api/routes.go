package api

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"bingewatch/handlers"
	"bingewatch/internal/auth"
)

// Handlers groups the endpoint handlers mounted under /api. A nil Store
// leaves the raw store surface unregistered.
type Handlers struct {
	Health      *handlers.HealthHandler
	History     *handlers.HistoryHandler
	Metadata    *handlers.MetadataHandler
	Navigate    *handlers.NavigateHandler
	Playback    *handlers.PlaybackHandler
	ClientState *handlers.ClientStateHandler
	Store       *handlers.StoreHandler
}

// Options configures the shared middleware.
type Options struct {
	CORSOrigin string
	Auth       *auth.Middleware
	Limiter    *ClientRateLimiter
	Logger     *slog.Logger
}

// corsMiddleware handles CORS for API routes
func corsMiddleware(origin string) mux.MiddlewareFunc {
	origin = strings.TrimSpace(origin)
	if origin == "" {
		origin = "*"
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Authorization, Content-Type, "+auth.UserHeader)

			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusOK)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

func requestLogger(logger *slog.Logger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rec, r)
			logger.Info("request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", rec.status,
				"duration", time.Since(start).Round(time.Microsecond).String(),
			)
		})
	}
}

// handleOptions handles OPTIONS requests for CORS preflight
func handleOptions(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}

// Register mounts API endpoints onto the provided router.
func Register(r *mux.Router, h Handlers, opts Options) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	r.Use(requestLogger(logger))

	// the store surface authenticates with its own token, so it is mounted
	// before the user-facing subrouter
	if h.Store != nil {
		store := r.PathPrefix("/api/store").Subrouter()
		store.Use(h.Store.Authorize)
		store.HandleFunc("/records", h.Store.List).Methods(http.MethodGet)
		store.HandleFunc("/records", h.Store.Put).Methods(http.MethodPut)
		store.HandleFunc("/records/{key}", h.Store.Get).Methods(http.MethodGet)
		store.HandleFunc("/records/{key}", h.Store.Delete).Methods(http.MethodDelete)
	}

	api := r.PathPrefix("/api").Subrouter()
	api.Use(corsMiddleware(opts.CORSOrigin))

	if h.Health != nil {
		api.HandleFunc("/health", h.Health.Health).Methods(http.MethodGet)
		api.HandleFunc("/health", handleOptions).Methods(http.MethodOptions)
	}

	protected := api.PathPrefix("").Subrouter()
	if opts.Limiter != nil {
		protected.Use(opts.Limiter.Middleware)
	}
	if opts.Auth != nil {
		protected.Use(opts.Auth.Handler)
	}

	if hh := h.History; hh != nil {
		protected.HandleFunc("/history", hh.List).Methods(http.MethodGet)
		protected.HandleFunc("/history", hh.Record).Methods(http.MethodPost)
		protected.HandleFunc("/history", hh.Options).Methods(http.MethodOptions)
		protected.HandleFunc("/history/all", hh.ListAll).Methods(http.MethodGet)
		protected.HandleFunc("/history/all", hh.Options).Methods(http.MethodOptions)
		protected.HandleFunc("/history/{imdbID}", hh.DeleteShow).Methods(http.MethodDelete)
		protected.HandleFunc("/history/{imdbID}", hh.Options).Methods(http.MethodOptions)
		protected.HandleFunc("/history/{imdbID}/last", hh.LastWatched).Methods(http.MethodGet)
		protected.HandleFunc("/history/{imdbID}/last", hh.Options).Methods(http.MethodOptions)
		protected.HandleFunc("/progress", hh.GetProgress).Methods(http.MethodGet)
		protected.HandleFunc("/progress", hh.SaveProgress).Methods(http.MethodPut)
		protected.HandleFunc("/progress", hh.Options).Methods(http.MethodOptions)
	}

	if nh := h.Navigate; nh != nil {
		protected.HandleFunc("/navigate/{direction}", nh.Navigate).Methods(http.MethodPost)
		protected.HandleFunc("/navigate/{direction}", nh.Options).Methods(http.MethodOptions)
		protected.HandleFunc("/embed/providers", nh.Providers).Methods(http.MethodGet)
		protected.HandleFunc("/embed/providers", nh.Options).Methods(http.MethodOptions)
		protected.HandleFunc("/embed", nh.Embed).Methods(http.MethodGet)
		protected.HandleFunc("/embed", nh.Options).Methods(http.MethodOptions)
	}

	if mh := h.Metadata; mh != nil {
		protected.HandleFunc("/search", mh.Search).Methods(http.MethodGet)
		protected.HandleFunc("/search", mh.Options).Methods(http.MethodOptions)
		protected.HandleFunc("/titles/{imdbID}", mh.Title).Methods(http.MethodGet)
		protected.HandleFunc("/titles/{imdbID}", mh.Options).Methods(http.MethodOptions)
		protected.HandleFunc("/tv/{tmdbID}/seasons", mh.Seasons).Methods(http.MethodGet)
		protected.HandleFunc("/tv/{tmdbID}/seasons", mh.Options).Methods(http.MethodOptions)
		protected.HandleFunc("/tv/{tmdbID}/season/{season}/episode/{episode}/runtime", mh.Runtime).Methods(http.MethodGet)
		protected.HandleFunc("/tv/{tmdbID}/season/{season}/episode/{episode}/runtime", mh.Options).Methods(http.MethodOptions)
		protected.HandleFunc("/latest/{kind}", mh.Latest).Methods(http.MethodGet)
		protected.HandleFunc("/latest/{kind}", mh.Options).Methods(http.MethodOptions)
		protected.HandleFunc("/latest/{kind}/{page}", mh.Latest).Methods(http.MethodGet)
		protected.HandleFunc("/latest/{kind}/{page}", mh.Options).Methods(http.MethodOptions)
		protected.HandleFunc("/genres/{kind}", mh.Genres).Methods(http.MethodGet)
		protected.HandleFunc("/genres/{kind}", mh.Options).Methods(http.MethodOptions)
		protected.HandleFunc("/discover/{kind}", mh.Discover).Methods(http.MethodGet)
		protected.HandleFunc("/discover/{kind}", mh.Options).Methods(http.MethodOptions)
	}

	if ph := h.Playback; ph != nil {
		protected.HandleFunc("/playback", ph.List).Methods(http.MethodGet)
		protected.HandleFunc("/playback", ph.Start).Methods(http.MethodPost)
		protected.HandleFunc("/playback", ph.Options).Methods(http.MethodOptions)
		protected.HandleFunc("/playback/{id}", ph.Get).Methods(http.MethodGet)
		protected.HandleFunc("/playback/{id}", ph.End).Methods(http.MethodDelete)
		protected.HandleFunc("/playback/{id}", ph.Options).Methods(http.MethodOptions)
		protected.HandleFunc("/playback/{id}/next", ph.Next).Methods(http.MethodPost)
		protected.HandleFunc("/playback/{id}/next", ph.Options).Methods(http.MethodOptions)
		protected.HandleFunc("/playback/{id}/previous", ph.Previous).Methods(http.MethodPost)
		protected.HandleFunc("/playback/{id}/previous", ph.Options).Methods(http.MethodOptions)
		protected.HandleFunc("/playback/{id}/progress", ph.Progress).Methods(http.MethodPut)
		protected.HandleFunc("/playback/{id}/progress", ph.Options).Methods(http.MethodOptions)
		protected.HandleFunc("/playback/{id}/activity", ph.Activity).Methods(http.MethodPost)
		protected.HandleFunc("/playback/{id}/activity", ph.Options).Methods(http.MethodOptions)
	}

	if ch := h.ClientState; ch != nil {
		protected.HandleFunc("/state", ch.List).Methods(http.MethodGet)
		protected.HandleFunc("/state", ch.Options).Methods(http.MethodOptions)
		protected.HandleFunc("/state/{name}", ch.Get).Methods(http.MethodGet)
		protected.HandleFunc("/state/{name}", ch.Put).Methods(http.MethodPut)
		protected.HandleFunc("/state/{name}", ch.Delete).Methods(http.MethodDelete)
		protected.HandleFunc("/state/{name}", ch.Options).Methods(http.MethodOptions)
	}
}
