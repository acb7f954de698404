package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"gopkg.in/natefinch/lumberjack.v2"

	"bingewatch/api"
	"bingewatch/config"
	"bingewatch/handlers"
	"bingewatch/internal/auth"
	"bingewatch/internal/storage"
	"bingewatch/internal/storage/remotestore"
	"bingewatch/services/autosync"
	"bingewatch/services/clientstate"
	"bingewatch/services/metadata"
	"bingewatch/services/navigator"
	"bingewatch/services/playback"
	"bingewatch/services/progress"
)

var version = "dev"

func main() {
	configFlag := flag.String("config", "", "settings file (yaml or json)")
	portOverride := flag.Int("port", 0, "override server port from config")
	noSync := flag.Bool("no-sync", false, "disable the periodic history sync")
	flag.Parse()

	fmt.Printf("bingewatch %s starting...\n", version)

	if err := config.LoadDotEnv(); err != nil {
		log.Printf("[config] %v", err)
	}

	cfgManager := config.NewManager(config.ResolvePath(*configFlag))
	settings, err := cfgManager.Load()
	if err != nil {
		log.Fatalf("failed to load settings: %v", err)
	}
	if *portOverride > 0 {
		settings.Server.Port = *portOverride
	}
	if err := settings.Validate(); err != nil {
		log.Fatalf("invalid settings in %s: %v", cfgManager.Path(), err)
	}

	logOut := setupLogging(settings.Log)
	logger := slog.New(slog.NewTextHandler(logOut, nil))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store, err := storage.Open(ctx, settings.Storage)
	if err != nil {
		log.Fatalf("failed to open %s store: %v", settings.Storage.Backend, err)
	}
	history, err := progress.NewService(store)
	if err != nil {
		log.Fatalf("failed to init history: %v", err)
	}

	meta := metadata.NewService(metadata.Config{
		TMDBAPIKey:        settings.Metadata.TMDBAPIKey,
		OMDBAPIKey:        settings.Metadata.OMDBAPIKey,
		Language:          settings.Metadata.Language,
		LatestBaseURL:     settings.Metadata.LatestBaseURL,
		RequestsPerSecond: settings.Metadata.RequestsPerSecond,
		CacheSize:         settings.Metadata.CacheSize,
		CacheTTL:          settings.CacheTTL(),
		HTTPClient:        &http.Client{Timeout: 15 * time.Second},
	})
	if settings.Metadata.TMDBAPIKey == "" {
		log.Printf("[metadata] no TMDB key configured, search falls back to OMDB and seasons are unavailable")
	}

	sessions, err := playback.NewService(history, meta, meta, playback.Options{
		DefaultProvider:  settings.Playback.DefaultProvider,
		OverlayHideDelay: settings.OverlayHideDelay(),
	})
	if err != nil {
		log.Fatalf("failed to init playback: %v", err)
	}

	clientState, err := clientstate.NewService(settings.Storage.DataDir)
	if err != nil {
		log.Fatalf("failed to init client state: %v", err)
	}

	syncOpts := autosync.Options{Interval: settings.SyncInterval(), Local: history}
	var mirrorStore *remotestore.Store
	if mirrorURL := strings.TrimSpace(settings.Sync.Mirror.URL); mirrorURL != "" {
		mirrorStore, err = remotestore.New(mirrorURL, remotestore.WithToken(settings.Sync.Mirror.Token))
		if err != nil {
			log.Fatalf("invalid sync mirror: %v", err)
		}
		mirror, err := progress.NewService(mirrorStore)
		if err != nil {
			log.Fatalf("failed to init sync mirror: %v", err)
		}
		syncOpts.Mirror = mirror
		log.Printf("[autosync] mirroring history to %s", mirrorURL)
	}
	syncer := autosync.NewService(sessions, syncOpts)

	authn, err := auth.New(ctx, auth.Config{
		ProviderURL: settings.Auth.OIDCProvider,
		ClientID:    settings.Auth.ClientID,
		AllowHeader: settings.Auth.AllowHeader,
	})
	if err != nil {
		log.Fatalf("failed to init auth: %v", err)
	}

	limiter := api.NewClientRateLimiter(settings.RateLimit.RequestsPerSecond, settings.RateLimit.Burst)
	go limiter.Run(ctx)

	h := api.Handlers{
		History:     handlers.NewHistoryHandler(history),
		Metadata:    handlers.NewMetadataHandler(meta),
		Navigate:    handlers.NewNavigateHandler(navigator.New(meta)),
		Playback:    handlers.NewPlaybackHandler(sessions),
		ClientState: handlers.NewClientStateHandler(clientState),
	}
	if *noSync {
		h.Health = handlers.NewHealthHandler(nil, version)
	} else {
		h.Health = handlers.NewHealthHandler(syncer, version)
	}
	if token := strings.TrimSpace(settings.Server.StoreToken); token != "" {
		h.Store = handlers.NewStoreHandler(store, token)
		log.Printf("[api] store surface enabled at /api/store")
	}

	r := mux.NewRouter()
	api.Register(r, h, api.Options{
		CORSOrigin: settings.Server.CORSOrigin,
		Auth:       authn,
		Limiter:    limiter,
		Logger:     logger,
	})

	if !*noSync {
		if err := syncer.Start(ctx); err != nil {
			log.Fatalf("failed to start autosync: %v", err)
		}
	}

	addr := fmt.Sprintf("%s:%d", settings.Server.Host, settings.Server.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	shutdownChan := make(chan os.Signal, 1)
	signal.Notify(shutdownChan, os.Interrupt, syscall.SIGTERM)

	// SIGHUP drops every cached metadata response
	hupChan := make(chan os.Signal, 1)
	signal.Notify(hupChan, syscall.SIGHUP)
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-hupChan:
				meta.ClearCache()
				log.Println("[metadata] cache cleared")
			}
		}
	}()

	go func() {
		log.Printf("[api] listening on %s", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	<-shutdownChan
	log.Println("[main] shutdown signal received, cleaning up...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if !*noSync {
		if err := syncer.Stop(shutdownCtx); err != nil {
			log.Printf("[autosync] stop: %v", err)
		}
	}

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server shutdown error: %v", err)
	}

	// sessions still open are written to history once more before closing
	if n, err := sessions.Sync(shutdownCtx); err != nil {
		log.Printf("[playback] final sync: %v", err)
	} else if n > 0 {
		log.Printf("[playback] final sync recorded %d sessions", n)
	}
	sessions.Close()
	cancel()

	if mirrorStore != nil {
		mirrorStore.Close()
	}
	if err := store.Close(); err != nil {
		log.Printf("[store] close: %v", err)
	}
	log.Println("[main] shutdown complete")
}

// setupLogging sends the standard logger to stdout and, when configured, a
// rotating file. The returned writer is shared with the request logger.
func setupLogging(cfg config.LogConfig) io.Writer {
	if cfg.File == "" {
		return os.Stdout
	}
	logDir := filepath.Dir(cfg.File)
	if err := os.MkdirAll(logDir, 0o755); err != nil {
		log.Printf("Warning: could not create log directory %s: %v", logDir, err)
		return os.Stdout
	}
	fileWriter := &lumberjack.Logger{
		Filename:   cfg.File,
		MaxSize:    cfg.MaxSize,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAge,
		Compress:   cfg.Compress,
	}
	out := io.MultiWriter(os.Stdout, fileWriter)
	log.SetOutput(out)
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Printf("Logging to file: %s", cfg.File)
	return out
}
