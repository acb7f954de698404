package progress

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"sort"
	"strings"
	"sync"
	"time"

	"bingewatch/models"
)

var (
	ErrStoreRequired    = errors.New("progress store not provided")
	ErrUserIDRequired   = errors.New("user id is required")
	ErrIMDBIDRequired   = errors.New("imdb id is required")
	ErrInvalidMediaType = errors.New("media type must be movie or series")
	ErrInvalidEpisode   = errors.New("series records need a season and episode of at least 1")
	ErrInvalidProgress  = errors.New("duration must be positive and position non-negative")
)

// DefaultHistoryLimit caps the continue watching view when no limit is given.
const DefaultHistoryLimit = 50

// Service applies the grouping and dedup policy on top of a Store.
type Service struct {
	mu    sync.Mutex
	store Store
	now   func() time.Time

	// newest timestamp handed out per user, seeded lazily from the store
	lastStamp map[string]int64
}

// NewService wraps the given backend.
func NewService(store Store) (*Service, error) {
	if store == nil {
		return nil, ErrStoreRequired
	}
	return &Service{
		store:     store,
		now:       time.Now,
		lastStamp: make(map[string]int64),
	}, nil
}

// SetClock replaces the time source. Used by tests.
func (s *Service) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

// Store exposes the underlying backend.
func (s *Service) Store() Store {
	return s.store
}

// RecordWatched upserts the video by its identity key and stamps it with the
// current time. Progress and metadata already stored for the key are kept
// when the incoming video leaves them empty.
func (s *Service) RecordWatched(ctx context.Context, userID string, video models.VideoInfo) (models.VideoInfo, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return models.VideoInfo{}, ErrUserIDRequired
	}
	video, err := validateVideo(video)
	if err != nil {
		return models.VideoInfo{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	existing, err := s.store.Get(ctx, userID, video.Key())
	if err != nil {
		return models.VideoInfo{}, fmt.Errorf("load record: %w", err)
	}
	if existing != nil {
		video = mergeRecord(*existing, video)
	}

	stamp, err := s.nextStampLocked(ctx, userID)
	if err != nil {
		return models.VideoInfo{}, err
	}
	video.Timestamp = stamp

	if err := s.store.Put(ctx, userID, video); err != nil {
		return models.VideoInfo{}, fmt.Errorf("save record: %w", err)
	}

	log.Printf("[progress] recorded user=%s key=%s", userID, video.Key())
	return video, nil
}

// GetHistory returns the continue watching view: the newest record of each
// show or movie, strictly descending by timestamp.
func (s *Service) GetHistory(ctx context.Context, userID string, limit int) ([]models.VideoInfo, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, ErrUserIDRequired
	}
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}

	records, err := s.store.List(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list records: %w", err)
	}

	latest := make(map[string]models.VideoInfo, len(records))
	for _, rec := range records {
		group := rec.GroupKey()
		current, ok := latest[group]
		if !ok || newer(rec, current) {
			latest[group] = rec
		}
	}

	items := make([]models.VideoInfo, 0, len(latest))
	for _, rec := range latest {
		items = append(items, rec)
	}
	sortNewestFirst(items, func(v models.VideoInfo) string { return v.GroupKey() })

	if len(items) > limit {
		items = items[:limit]
	}
	return items, nil
}

// ListAll returns every record of the user, newest first.
func (s *Service) ListAll(ctx context.Context, userID string) ([]models.VideoInfo, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, ErrUserIDRequired
	}
	records, err := s.store.List(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list records: %w", err)
	}
	sortNewestFirst(records, func(v models.VideoInfo) string { return v.Key() })
	return records, nil
}

// DeleteShow removes every record sharing imdbID. mediaType narrows the
// deletion to the series episodes or the movie; empty removes both.
func (s *Service) DeleteShow(ctx context.Context, userID, imdbID string, mediaType models.MediaType) (int, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return 0, ErrUserIDRequired
	}
	imdbID = strings.TrimSpace(imdbID)
	if imdbID == "" {
		return 0, ErrIMDBIDRequired
	}
	if mediaType != "" && !mediaType.Valid() {
		return 0, ErrInvalidMediaType
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	records, err := s.store.List(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("list records: %w", err)
	}

	var keys []string
	for _, rec := range records {
		if !strings.EqualFold(rec.IMDBID, imdbID) {
			continue
		}
		if mediaType != "" && rec.Type != mediaType {
			continue
		}
		keys = append(keys, rec.Key())
	}
	if len(keys) == 0 {
		return 0, nil
	}

	if err := s.store.Delete(ctx, userID, keys...); err != nil {
		return 0, fmt.Errorf("delete records: %w", err)
	}
	log.Printf("[progress] deleted user=%s imdb=%s records=%d", userID, imdbID, len(keys))
	return len(keys), nil
}

// SaveProgress stores the resume position of the video and bumps its timestamp.
func (s *Service) SaveProgress(ctx context.Context, userID string, video models.VideoInfo, currentTime, duration float64) (models.VideoProgress, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return models.VideoProgress{}, ErrUserIDRequired
	}
	if duration <= 0 || currentTime < 0 || math.IsNaN(currentTime) || math.IsNaN(duration) || math.IsInf(duration, 0) {
		return models.VideoProgress{}, ErrInvalidProgress
	}
	video, err := validateVideo(video)
	if err != nil {
		return models.VideoProgress{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	existing, err := s.store.Get(ctx, userID, video.Key())
	if err != nil {
		return models.VideoProgress{}, fmt.Errorf("load record: %w", err)
	}
	if existing != nil {
		video = mergeRecord(*existing, video)
	}

	stamp, err := s.nextStampLocked(ctx, userID)
	if err != nil {
		return models.VideoProgress{}, err
	}
	progress := models.NewVideoProgress(currentTime, duration, stamp)
	video.Progress = &progress
	video.Timestamp = stamp

	if err := s.store.Put(ctx, userID, video); err != nil {
		return models.VideoProgress{}, fmt.Errorf("save progress: %w", err)
	}
	return progress, nil
}

// GetProgress returns the stored resume position, or nil when none exists.
func (s *Service) GetProgress(ctx context.Context, userID string, video models.VideoInfo) (*models.VideoProgress, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, ErrUserIDRequired
	}
	video, err := validateVideo(video)
	if err != nil {
		return nil, err
	}

	rec, err := s.store.Get(ctx, userID, video.Key())
	if err != nil {
		return nil, fmt.Errorf("load record: %w", err)
	}
	if rec == nil || rec.Progress == nil {
		return nil, nil
	}
	p := *rec.Progress
	return &p, nil
}

// LastWatchedEpisode returns the newest record carrying imdbID, or nil.
func (s *Service) LastWatchedEpisode(ctx context.Context, userID, imdbID string) (*models.VideoInfo, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, ErrUserIDRequired
	}
	imdbID = strings.TrimSpace(imdbID)
	if imdbID == "" {
		return nil, ErrIMDBIDRequired
	}

	records, err := s.store.List(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list records: %w", err)
	}

	var last *models.VideoInfo
	for i := range records {
		if !strings.EqualFold(records[i].IMDBID, imdbID) {
			continue
		}
		if last == nil || newer(records[i], *last) {
			rec := records[i]
			last = &rec
		}
	}
	return last, nil
}

// Import merges records from another source. A record replaces the stored
// one only when it is newer; timestamps are preserved as given.
func (s *Service) Import(ctx context.Context, userID string, videos []models.VideoInfo) (int, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return 0, ErrUserIDRequired
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	imported := 0
	for _, video := range videos {
		video, err := validateVideo(video)
		if err != nil {
			log.Printf("[progress] skipping import record imdb=%q: %v", video.IMDBID, err)
			continue
		}
		existing, err := s.store.Get(ctx, userID, video.Key())
		if err != nil {
			return imported, fmt.Errorf("load record: %w", err)
		}
		if existing != nil && existing.Timestamp >= video.Timestamp {
			continue
		}
		if err := s.store.Put(ctx, userID, video); err != nil {
			return imported, fmt.Errorf("save record: %w", err)
		}
		if last, ok := s.lastStamp[userID]; ok && video.Timestamp > last {
			s.lastStamp[userID] = video.Timestamp
		}
		imported++
	}
	return imported, nil
}

// nextStampLocked returns the current time in millis, forced above every
// timestamp already given to the user so ordering stays strict.
func (s *Service) nextStampLocked(ctx context.Context, userID string) (int64, error) {
	last, ok := s.lastStamp[userID]
	if !ok {
		records, err := s.store.List(ctx, userID)
		if err != nil {
			return 0, fmt.Errorf("list records: %w", err)
		}
		for _, rec := range records {
			if rec.Timestamp > last {
				last = rec.Timestamp
			}
		}
	}

	stamp := s.now().UnixMilli()
	if stamp <= last {
		stamp = last + 1
	}
	s.lastStamp[userID] = stamp
	return stamp, nil
}

func validateVideo(video models.VideoInfo) (models.VideoInfo, error) {
	video = video.Normalize()
	if video.IMDBID == "" {
		return video, ErrIMDBIDRequired
	}
	if !video.Type.Valid() {
		return video, ErrInvalidMediaType
	}
	if video.IsSeries() && (video.Season < 1 || video.Episode < 1) {
		return video, ErrInvalidEpisode
	}
	return video, nil
}

// mergeRecord fills the blanks of incoming from the stored record.
func mergeRecord(stored, incoming models.VideoInfo) models.VideoInfo {
	if incoming.Title == "" {
		incoming.Title = stored.Title
	}
	if incoming.EpisodeTitle == "" {
		incoming.EpisodeTitle = stored.EpisodeTitle
	}
	if incoming.Poster == "" {
		incoming.Poster = stored.Poster
	}
	if incoming.TMDBID == 0 {
		incoming.TMDBID = stored.TMDBID
	}
	if incoming.Runtime == 0 {
		incoming.Runtime = stored.Runtime
	}
	if incoming.URL == "" {
		incoming.URL = stored.URL
	}
	if incoming.Progress == nil && stored.Progress != nil {
		p := *stored.Progress
		incoming.Progress = &p
	}
	return incoming
}

func newer(a, b models.VideoInfo) bool {
	if a.Timestamp != b.Timestamp {
		return a.Timestamp > b.Timestamp
	}
	return a.Key() > b.Key()
}

func sortNewestFirst(items []models.VideoInfo, tieKey func(models.VideoInfo) string) {
	sort.SliceStable(items, func(i, j int) bool {
		if items[i].Timestamp != items[j].Timestamp {
			return items[i].Timestamp > items[j].Timestamp
		}
		return tieKey(items[i]) < tieKey(items[j])
	})
}

// Users lists the users known to the backend. Backends that cannot enumerate
// users yield an empty list.
func (s *Service) Users(ctx context.Context) ([]string, error) {
	lister, ok := s.store.(UserLister)
	if !ok {
		return nil, nil
	}
	return lister.Users(ctx)
}
