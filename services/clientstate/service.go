package clientstate

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/afero"

	"bingewatch/models"
)

var (
	ErrStorageDirRequired = errors.New("storage directory not provided")
	ErrUserIDRequired     = errors.New("user id is required")
	ErrUnknownName        = errors.New("unknown client state name")
	ErrDataTooLarge       = errors.New("client state exceeds the size limit")
)

// MaxDataBytes bounds a single blob.
const MaxDataBytes = 1 << 20

const fileName = "client_state.json"

// Service persists the browser-side blobs of each user.
type Service struct {
	mu     sync.RWMutex
	fs     afero.Fs
	path   string
	states map[string]map[string]models.ClientState // userID -> name -> state
	now    func() time.Time
}

// NewService stores data inside storageDir on the OS filesystem.
func NewService(storageDir string) (*Service, error) {
	return NewServiceWithFs(afero.NewOsFs(), storageDir)
}

func NewServiceWithFs(fs afero.Fs, storageDir string) (*Service, error) {
	if strings.TrimSpace(storageDir) == "" {
		return nil, ErrStorageDirRequired
	}
	if err := fs.MkdirAll(storageDir, 0o755); err != nil {
		return nil, fmt.Errorf("create client state dir: %w", err)
	}

	svc := &Service{
		fs:     fs,
		path:   filepath.Join(storageDir, fileName),
		states: make(map[string]map[string]models.ClientState),
		now:    time.Now,
	}
	if err := svc.load(); err != nil {
		return nil, err
	}
	return svc, nil
}

// ValidName reports whether name is one of models.ClientStateNames.
func ValidName(name string) bool {
	return slices.Contains(models.ClientStateNames, name)
}

// Get returns the named blob, or nil when none is stored.
func (s *Service) Get(userID, name string) (*models.ClientState, error) {
	userID, name, err := validate(userID, name)
	if err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	state, ok := s.states[userID][name]
	if !ok {
		return nil, nil
	}
	return &state, nil
}

// List returns every blob of the user ordered by name.
func (s *Service) List(userID string) ([]models.ClientState, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, ErrUserIDRequired
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]models.ClientState, 0, len(s.states[userID]))
	for _, state := range s.states[userID] {
		out = append(out, state)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// Put replaces the named blob and stamps lastUpdated. The id of an existing
// blob is kept.
func (s *Service) Put(userID, name, data string) (models.ClientState, error) {
	userID, name, err := validate(userID, name)
	if err != nil {
		return models.ClientState{}, err
	}
	if len(data) > MaxDataBytes {
		return models.ClientState{}, ErrDataTooLarge
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	perUser, ok := s.states[userID]
	if !ok {
		perUser = make(map[string]models.ClientState)
		s.states[userID] = perUser
	}

	state, exists := perUser[name]
	if !exists {
		state = models.ClientState{ID: uuid.NewString(), UserID: userID, Name: name}
	}
	state.Data = data
	state.LastUpdated = s.now().UTC()
	perUser[name] = state

	if err := s.saveLocked(); err != nil {
		return models.ClientState{}, err
	}
	return state, nil
}

// Delete removes the named blob. Deleting a missing blob is not an error.
func (s *Service) Delete(userID, name string) error {
	userID, name, err := validate(userID, name)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	perUser, ok := s.states[userID]
	if !ok {
		return nil
	}
	if _, exists := perUser[name]; !exists {
		return nil
	}
	delete(perUser, name)
	if len(perUser) == 0 {
		delete(s.states, userID)
	}
	return s.saveLocked()
}

func validate(userID, name string) (string, string, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return "", "", ErrUserIDRequired
	}
	name = strings.TrimSpace(name)
	if !ValidName(name) {
		return "", "", fmt.Errorf("%w: %q", ErrUnknownName, name)
	}
	return userID, name, nil
}

func (s *Service) load() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	file, err := s.fs.Open(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("open client state: %w", err)
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		return fmt.Errorf("read client state: %w", err)
	}
	if len(data) == 0 {
		return nil
	}

	var decoded map[string]map[string]models.ClientState
	if err := json.Unmarshal(data, &decoded); err != nil {
		return fmt.Errorf("decode client state: %w", err)
	}
	for userID, perUser := range decoded {
		for name, state := range perUser {
			if !ValidName(name) {
				delete(perUser, name)
				continue
			}
			state.UserID, state.Name = userID, name
			perUser[name] = state
		}
		if len(perUser) > 0 {
			s.states[userID] = perUser
		}
	}
	return nil
}

func (s *Service) saveLocked() error {
	tmp := s.path + ".tmp"
	file, err := s.fs.Create(tmp)
	if err != nil {
		return fmt.Errorf("create client state temp file: %w", err)
	}

	enc := json.NewEncoder(file)
	enc.SetIndent("", "  ")
	if err := enc.Encode(s.states); err != nil {
		file.Close()
		_ = s.fs.Remove(tmp)
		return fmt.Errorf("encode client state: %w", err)
	}

	if err := file.Sync(); err != nil {
		file.Close()
		_ = s.fs.Remove(tmp)
		return fmt.Errorf("sync client state: %w", err)
	}

	if err := file.Close(); err != nil {
		_ = s.fs.Remove(tmp)
		return fmt.Errorf("close client state temp file: %w", err)
	}

	if err := s.fs.Rename(tmp, s.path); err != nil {
		_ = s.fs.Remove(tmp)
		return fmt.Errorf("replace client state file: %w", err)
	}
	return nil
}
