package filestore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/spf13/afero"

	"bingewatch/models"
	"bingewatch/services/progress"
)

var ErrStorageDirRequired = errors.New("storage directory not provided")

// FileName is the history file created inside the storage directory.
const FileName = "watch_history.json"

// Store persists watch records as a single JSON document on an afero filesystem.
type Store struct {
	mu      sync.RWMutex
	fs      afero.Fs
	path    string
	records map[string]map[string]models.VideoInfo // userID -> record key -> record
}

var (
	_ progress.Store      = (*Store)(nil)
	_ progress.UserLister = (*Store)(nil)
)

// New opens (or creates) the history file inside storageDir on the OS filesystem.
func New(storageDir string) (*Store, error) {
	return NewWithFs(afero.NewOsFs(), storageDir)
}

// NewWithFs is New on an arbitrary filesystem.
func NewWithFs(fs afero.Fs, storageDir string) (*Store, error) {
	if strings.TrimSpace(storageDir) == "" {
		return nil, ErrStorageDirRequired
	}
	if err := fs.MkdirAll(storageDir, 0o755); err != nil {
		return nil, fmt.Errorf("create history dir: %w", err)
	}

	s := &Store{
		fs:      fs,
		path:    filepath.Join(storageDir, FileName),
		records: make(map[string]map[string]models.VideoInfo),
	}
	if err := s.load(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) Put(_ context.Context, userID string, video models.VideoInfo) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	perUser := s.ensureUserLocked(userID)
	perUser[video.Key()] = video
	return s.saveLocked()
}

func (s *Store) Get(_ context.Context, userID, key string) (*models.VideoInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.records[userID][strings.ToLower(key)]
	if !ok {
		return nil, nil
	}
	return &rec, nil
}

func (s *Store) List(_ context.Context, userID string) ([]models.VideoInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	perUser := s.records[userID]
	items := make([]models.VideoInfo, 0, len(perUser))
	for _, rec := range perUser {
		items = append(items, rec)
	}
	return items, nil
}

func (s *Store) Delete(_ context.Context, userID string, keys ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	perUser, ok := s.records[userID]
	if !ok {
		return nil
	}
	changed := false
	for _, key := range keys {
		key = strings.ToLower(key)
		if _, exists := perUser[key]; exists {
			delete(perUser, key)
			changed = true
		}
	}
	if !changed {
		return nil
	}
	if len(perUser) == 0 {
		delete(s.records, userID)
	}
	return s.saveLocked()
}

// Users lists every user with at least one record.
func (s *Store) Users(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	users := make([]string, 0, len(s.records))
	for userID := range s.records {
		users = append(users, userID)
	}
	sort.Strings(users)
	return users, nil
}

func (s *Store) Close() error {
	return nil
}

func (s *Store) ensureUserLocked(userID string) map[string]models.VideoInfo {
	perUser, ok := s.records[userID]
	if !ok {
		perUser = make(map[string]models.VideoInfo)
		s.records[userID] = perUser
	}
	return perUser
}

// load reads the file, dropping invalid entries and collapsing records that
// normalize to the same key into the newest one.
func (s *Store) load() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	file, err := s.fs.Open(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("open history: %w", err)
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		return fmt.Errorf("read history: %w", err)
	}
	if len(data) == 0 {
		return nil
	}

	var decoded map[string][]models.VideoInfo
	if err := json.Unmarshal(data, &decoded); err != nil {
		return fmt.Errorf("decode history: %w", err)
	}

	dropped := 0
	for userID, items := range decoded {
		userID = strings.TrimSpace(userID)
		if userID == "" {
			continue
		}
		perUser := s.ensureUserLocked(userID)
		for _, rec := range items {
			rec = rec.Normalize()
			if rec.IMDBID == "" || !rec.Type.Valid() {
				dropped++
				continue
			}
			key := rec.Key()
			if existing, ok := perUser[key]; ok && existing.Timestamp >= rec.Timestamp {
				dropped++
				continue
			}
			perUser[key] = rec
		}
	}
	if dropped > 0 {
		log.Printf("[store] dropped %d invalid or duplicate records from %s", dropped, s.path)
	}
	return nil
}

// saveLocked writes the whole document to a temp file and renames it over the original.
func (s *Store) saveLocked() error {
	toSave := make(map[string][]models.VideoInfo, len(s.records))
	for userID, perUser := range s.records {
		items := make([]models.VideoInfo, 0, len(perUser))
		for _, rec := range perUser {
			items = append(items, rec)
		}
		sort.Slice(items, func(i, j int) bool {
			if items[i].Timestamp == items[j].Timestamp {
				return items[i].Key() < items[j].Key()
			}
			return items[i].Timestamp > items[j].Timestamp
		})
		toSave[userID] = items
	}

	data, err := json.MarshalIndent(toSave, "", "  ")
	if err != nil {
		return fmt.Errorf("encode history: %w", err)
	}

	tmp := s.path + ".tmp"
	f, err := s.fs.Create(tmp)
	if err != nil {
		return fmt.Errorf("write history: %w", err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		_ = s.fs.Remove(tmp)
		return fmt.Errorf("write history: %w", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		_ = s.fs.Remove(tmp)
		return fmt.Errorf("sync history: %w", err)
	}
	if err := f.Close(); err != nil {
		_ = s.fs.Remove(tmp)
		return fmt.Errorf("close history: %w", err)
	}
	if err := s.fs.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("replace history: %w", err)
	}
	return nil
}
