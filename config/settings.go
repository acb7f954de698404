package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	// ConfigEnv overrides the default settings path.
	ConfigEnv         = "BINGEWATCH_CONFIG"
	DefaultConfigPath = "data/settings.yaml"
)

// Storage backends.
const (
	BackendFile     = "file"
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
	BackendRemote   = "remote"
	BackendMemory   = "memory"
)

var ErrUnknownBackend = errors.New("unknown storage backend")

// Settings represents the application configuration persisted to disk.
type Settings struct {
	Server    ServerSettings    `json:"server" yaml:"server"`
	Storage   StorageSettings   `json:"storage" yaml:"storage"`
	Metadata  MetadataSettings  `json:"metadata" yaml:"metadata"`
	Auth      AuthSettings      `json:"auth" yaml:"auth"`
	Sync      SyncSettings      `json:"sync" yaml:"sync"`
	Playback  PlaybackSettings  `json:"playback" yaml:"playback"`
	RateLimit RateLimitSettings `json:"rateLimit" yaml:"rateLimit"`
	Log       LogConfig         `json:"log" yaml:"log"`
}

type ServerSettings struct {
	Host       string `json:"host" yaml:"host"`
	Port       int    `json:"port" yaml:"port"`
	CORSOrigin string `json:"corsOrigin" yaml:"corsOrigin"`
	// StoreToken enables /api/store for other instances. Empty disables it.
	StoreToken string `json:"storeToken,omitempty" yaml:"storeToken,omitempty"`
}

type StorageSettings struct {
	Backend     string `json:"backend" yaml:"backend"`
	DataDir     string `json:"dataDir" yaml:"dataDir"`
	DatabaseURL string `json:"databaseUrl,omitempty" yaml:"databaseUrl,omitempty"`
	SQLitePath  string `json:"sqlitePath,omitempty" yaml:"sqlitePath,omitempty"`
	RemoteURL   string `json:"remoteUrl,omitempty" yaml:"remoteUrl,omitempty"`
	RemoteToken string `json:"remoteToken,omitempty" yaml:"remoteToken,omitempty"`

	MaxOpenConns           int `json:"maxOpenConns" yaml:"maxOpenConns"`
	MaxIdleConns           int `json:"maxIdleConns" yaml:"maxIdleConns"`
	ConnMaxLifetimeMinutes int `json:"connMaxLifetimeMinutes" yaml:"connMaxLifetimeMinutes"`
	ConnMaxIdleTimeMinutes int `json:"connMaxIdleTimeMinutes" yaml:"connMaxIdleTimeMinutes"`
}

type MetadataSettings struct {
	TMDBAPIKey        string  `json:"tmdbApiKey" yaml:"tmdbApiKey"`
	OMDBAPIKey        string  `json:"omdbApiKey" yaml:"omdbApiKey"`
	Language          string  `json:"language" yaml:"language"`
	LatestBaseURL     string  `json:"latestBaseUrl" yaml:"latestBaseUrl"`
	CacheSize         int     `json:"cacheSize" yaml:"cacheSize"`
	CacheTTLMinutes   int     `json:"cacheTtlMinutes" yaml:"cacheTtlMinutes"`
	RequestsPerSecond float64 `json:"requestsPerSecond" yaml:"requestsPerSecond"`
}

type AuthSettings struct {
	OIDCProvider string `json:"oidcProvider" yaml:"oidcProvider"`
	ClientID     string `json:"clientId" yaml:"clientId"`
	// AllowHeader trusts X-User-ID when OIDC is not configured.
	AllowHeader bool `json:"allowHeader" yaml:"allowHeader"`
}

type SyncSettings struct {
	IntervalMinutes int          `json:"intervalMinutes" yaml:"intervalMinutes"`
	Mirror          MirrorConfig `json:"mirror" yaml:"mirror"`
}

// MirrorConfig points at another instance that receives a copy of local history.
type MirrorConfig struct {
	URL   string `json:"url,omitempty" yaml:"url,omitempty"`
	Token string `json:"token,omitempty" yaml:"token,omitempty"`
}

type PlaybackSettings struct {
	DefaultProvider string `json:"defaultProvider" yaml:"defaultProvider"`
	OverlayHideMs   int    `json:"overlayHideMs" yaml:"overlayHideMs"`
}

type RateLimitSettings struct {
	RequestsPerSecond float64 `json:"requestsPerSecond" yaml:"requestsPerSecond"`
	Burst             int     `json:"burst" yaml:"burst"`
}

// LogConfig controls the rotating log file. An empty File logs to stdout only.
type LogConfig struct {
	File       string `json:"file" yaml:"file"`
	MaxSize    int    `json:"maxSize" yaml:"maxSize"`
	MaxBackups int    `json:"maxBackups" yaml:"maxBackups"`
	MaxAge     int    `json:"maxAge" yaml:"maxAge"`
	Compress   bool   `json:"compress" yaml:"compress"`
}

func DefaultSettings() Settings {
	return Settings{
		Server: ServerSettings{Host: "0.0.0.0", Port: 7788, CORSOrigin: "*"},
		Storage: StorageSettings{
			Backend:                BackendFile,
			DataDir:                "data",
			SQLitePath:             "data/history.db",
			MaxOpenConns:           25,
			MaxIdleConns:           10,
			ConnMaxLifetimeMinutes: 5,
			ConnMaxIdleTimeMinutes: 10,
		},
		Metadata: MetadataSettings{
			Language:          "en-US",
			LatestBaseURL:     "https://vidsrc.xyz",
			CacheSize:         512,
			CacheTTLMinutes:   360,
			RequestsPerSecond: 20,
		},
		Auth:      AuthSettings{AllowHeader: true},
		Sync:      SyncSettings{IntervalMinutes: 5},
		Playback:  PlaybackSettings{DefaultProvider: "vidsrc.dev", OverlayHideMs: 3000},
		RateLimit: RateLimitSettings{RequestsPerSecond: 20, Burst: 40},
		Log:       LogConfig{MaxSize: 10, MaxBackups: 5, MaxAge: 28, Compress: true},
	}
}

// Validate checks the settings that cannot be backfilled.
func (s Settings) Validate() error {
	switch s.Storage.Backend {
	case BackendFile, BackendSQLite, BackendMemory:
	case BackendPostgres:
		if strings.TrimSpace(s.Storage.DatabaseURL) == "" {
			return errors.New("storage.databaseUrl is required for the postgres backend")
		}
	case BackendRemote:
		if strings.TrimSpace(s.Storage.RemoteURL) == "" {
			return errors.New("storage.remoteUrl is required for the remote backend")
		}
	default:
		return fmt.Errorf("%w: %q", ErrUnknownBackend, s.Storage.Backend)
	}
	if s.Server.Port <= 0 || s.Server.Port > 65535 {
		return fmt.Errorf("server.port %d out of range", s.Server.Port)
	}
	return nil
}

func (s Settings) SyncInterval() time.Duration {
	return time.Duration(s.Sync.IntervalMinutes) * time.Minute
}

func (s Settings) CacheTTL() time.Duration {
	return time.Duration(s.Metadata.CacheTTLMinutes) * time.Minute
}

func (s Settings) OverlayHideDelay() time.Duration {
	return time.Duration(s.Playback.OverlayHideMs) * time.Millisecond
}

// ResolvePath picks the -config flag value, then BINGEWATCH_CONFIG, then the default.
func ResolvePath(flagValue string) string {
	if p := strings.TrimSpace(flagValue); p != "" {
		return p
	}
	if p := strings.TrimSpace(os.Getenv(ConfigEnv)); p != "" {
		return p
	}
	return DefaultConfigPath
}

// LoadDotEnv loads .env files into the environment when present. Variables
// already set win.
func LoadDotEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if _, err := os.Stat(f); errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err := godotenv.Load(f); err != nil {
			return fmt.Errorf("load %s: %w", f, err)
		}
	}
	return nil
}

// Manager loads and persists settings to a YAML or JSON file.
type Manager struct {
	path   string
	getenv func(string) string
}

func NewManager(configPath string) *Manager {
	return &Manager{path: configPath, getenv: os.Getenv}
}

func (m *Manager) Path() string {
	return m.path
}

// EnsureDir ensures parent directory exists.
func (m *Manager) EnsureDir() error {
	dir := filepath.Dir(m.path)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}

func (m *Manager) isYAML() bool {
	ext := strings.ToLower(filepath.Ext(m.path))
	return ext == ".yaml" || ext == ".yml"
}

// Load reads the settings file or creates it with defaults if missing.
// Zero values are backfilled and environment overrides applied last; the
// overrides are never written back.
func (m *Manager) Load() (Settings, error) {
	if m.path == "" {
		return Settings{}, errors.New("config path not set")
	}
	if _, err := os.Stat(m.path); errors.Is(err, fs.ErrNotExist) {
		defaults := DefaultSettings()
		if err := m.Save(defaults); err != nil {
			return Settings{}, err
		}
		m.applyEnv(&defaults)
		return defaults, nil
	}

	f, err := os.Open(m.path)
	if err != nil {
		return Settings{}, err
	}
	defer f.Close()

	var s Settings
	if m.isYAML() {
		err = yaml.NewDecoder(f).Decode(&s)
	} else {
		err = json.NewDecoder(f).Decode(&s)
	}
	if err != nil && !errors.Is(err, io.EOF) {
		return Settings{}, fmt.Errorf("decode %s: %w", m.path, err)
	}

	backfill(&s)
	m.applyEnv(&s)
	return s, nil
}

func backfill(s *Settings) {
	d := DefaultSettings()

	if strings.TrimSpace(s.Server.Host) == "" {
		s.Server.Host = d.Server.Host
	}
	if s.Server.Port == 0 {
		s.Server.Port = d.Server.Port
	}
	if strings.TrimSpace(s.Server.CORSOrigin) == "" {
		s.Server.CORSOrigin = d.Server.CORSOrigin
	}

	s.Storage.Backend = strings.ToLower(strings.TrimSpace(s.Storage.Backend))
	if s.Storage.Backend == "" {
		s.Storage.Backend = d.Storage.Backend
	}
	if strings.TrimSpace(s.Storage.DataDir) == "" {
		s.Storage.DataDir = d.Storage.DataDir
	}
	if strings.TrimSpace(s.Storage.SQLitePath) == "" {
		s.Storage.SQLitePath = filepath.Join(s.Storage.DataDir, "history.db")
	}
	if s.Storage.MaxOpenConns == 0 {
		s.Storage.MaxOpenConns = d.Storage.MaxOpenConns
	}
	if s.Storage.MaxIdleConns == 0 {
		s.Storage.MaxIdleConns = d.Storage.MaxIdleConns
	}
	if s.Storage.ConnMaxLifetimeMinutes == 0 {
		s.Storage.ConnMaxLifetimeMinutes = d.Storage.ConnMaxLifetimeMinutes
	}
	if s.Storage.ConnMaxIdleTimeMinutes == 0 {
		s.Storage.ConnMaxIdleTimeMinutes = d.Storage.ConnMaxIdleTimeMinutes
	}

	if strings.TrimSpace(s.Metadata.Language) == "" {
		s.Metadata.Language = d.Metadata.Language
	}
	if strings.TrimSpace(s.Metadata.LatestBaseURL) == "" {
		s.Metadata.LatestBaseURL = d.Metadata.LatestBaseURL
	}
	if s.Metadata.CacheSize <= 0 {
		s.Metadata.CacheSize = d.Metadata.CacheSize
	}
	if s.Metadata.CacheTTLMinutes <= 0 {
		s.Metadata.CacheTTLMinutes = d.Metadata.CacheTTLMinutes
	}
	if s.Metadata.RequestsPerSecond == 0 {
		s.Metadata.RequestsPerSecond = d.Metadata.RequestsPerSecond
	}

	if s.Sync.IntervalMinutes <= 0 {
		s.Sync.IntervalMinutes = d.Sync.IntervalMinutes
	}
	if strings.TrimSpace(s.Playback.DefaultProvider) == "" {
		s.Playback.DefaultProvider = d.Playback.DefaultProvider
	}
	if s.Playback.OverlayHideMs <= 0 {
		s.Playback.OverlayHideMs = d.Playback.OverlayHideMs
	}
	if s.RateLimit.Burst <= 0 {
		s.RateLimit.Burst = d.RateLimit.Burst
	}

	if s.Log.MaxSize <= 0 {
		s.Log.MaxSize = d.Log.MaxSize
	}
	if s.Log.MaxBackups <= 0 {
		s.Log.MaxBackups = d.Log.MaxBackups
	}
	if s.Log.MaxAge <= 0 {
		s.Log.MaxAge = d.Log.MaxAge
	}
}

func (m *Manager) applyEnv(s *Settings) {
	if v := strings.TrimSpace(m.getenv("TMDB_API_KEY")); v != "" {
		s.Metadata.TMDBAPIKey = v
	}
	if v := strings.TrimSpace(m.getenv("OMDB_API_KEY")); v != "" {
		s.Metadata.OMDBAPIKey = v
	}
	if v := strings.TrimSpace(m.getenv("DATABASE_URL")); v != "" {
		s.Storage.DatabaseURL = v
	}
	if v := strings.TrimSpace(m.getenv("OIDC_PROVIDER")); v != "" {
		s.Auth.OIDCProvider = v
	}
	if v := strings.TrimSpace(m.getenv("OIDC_CLIENT_ID")); v != "" {
		s.Auth.ClientID = v
	}
	if v := strings.TrimSpace(m.getenv("BINGEWATCH_PORT")); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			s.Server.Port = port
		}
	}
}

// Save writes the provided settings to disk atomically.
func (m *Manager) Save(s Settings) error {
	if m.path == "" {
		return errors.New("config path not set")
	}
	if err := m.EnsureDir(); err != nil {
		return err
	}
	tmp := m.path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return err
	}
	if m.isYAML() {
		enc := yaml.NewEncoder(f)
		enc.SetIndent(2)
		err = enc.Encode(s)
		if err == nil {
			err = enc.Close()
		}
	} else {
		enc := json.NewEncoder(f)
		enc.SetIndent("", "  ")
		err = enc.Encode(s)
	}
	if err != nil {
		f.Close()
		_ = os.Remove(tmp)
		return err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		_ = os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, m.path)
}
