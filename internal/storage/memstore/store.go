package memstore

import (
	"context"
	"sort"
	"strings"
	"sync"

	"bingewatch/models"
	"bingewatch/services/progress"
)

// Store keeps records in memory only.
type Store struct {
	mu      sync.RWMutex
	records map[string]map[string]models.VideoInfo
}

var (
	_ progress.Store      = (*Store)(nil)
	_ progress.UserLister = (*Store)(nil)
)

func New() *Store {
	return &Store{records: make(map[string]map[string]models.VideoInfo)}
}

func (s *Store) Put(_ context.Context, userID string, video models.VideoInfo) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	perUser, ok := s.records[userID]
	if !ok {
		perUser = make(map[string]models.VideoInfo)
		s.records[userID] = perUser
	}
	perUser[video.Key()] = video
	return nil
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
	out := make([]models.VideoInfo, 0, len(perUser))
	for _, rec := range perUser {
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key() < out[j].Key() })
	return out, nil
}

func (s *Store) Delete(_ context.Context, userID string, keys ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	perUser := s.records[userID]
	for _, key := range keys {
		delete(perUser, strings.ToLower(key))
	}
	return nil
}

// Users lists every user with at least one record.
func (s *Store) Users(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	users := make([]string, 0, len(s.records))
	for userID, perUser := range s.records {
		if len(perUser) > 0 {
			users = append(users, userID)
		}
	}
	sort.Strings(users)
	return users, nil
}

func (s *Store) Close() error {
	return nil
}
