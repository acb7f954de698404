package autosync

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"bingewatch/models"
	"bingewatch/services/playback"
	"bingewatch/services/progress"
)

// DefaultInterval is how often open sessions are flushed to history.
const DefaultInterval = 5 * time.Minute

// SessionSyncer is the playback surface the sync loop drives.
type SessionSyncer interface {
	Sync(ctx context.Context) (int, error)
	Active() []playback.Session
}

// HistorySource reads the local history that is mirrored.
type HistorySource interface {
	ListAll(ctx context.Context, userID string) ([]models.VideoInfo, error)
	Users(ctx context.Context) ([]string, error)
}

// Importer merges records into the mirror, keeping whichever side is newer.
type Importer interface {
	Import(ctx context.Context, userID string, videos []models.VideoInfo) (int, error)
}

var (
	_ SessionSyncer = (*playback.Service)(nil)
	_ HistorySource = (*progress.Service)(nil)
	_ Importer      = (*progress.Service)(nil)
)

// Options configures the loop. Mirror and Local are both needed to mirror.
type Options struct {
	Interval time.Duration
	Local    HistorySource
	Mirror   Importer
}

// Result summarizes one pass.
type Result struct {
	Sessions int `json:"sessions"`
	Users    int `json:"users"`
	Mirrored int `json:"mirrored"`
}

// Status is reported by the health endpoint.
type Status struct {
	Running   bool      `json:"running"`
	Interval  string    `json:"interval"`
	LastRunAt time.Time `json:"lastRunAt,omitzero"`
	LastError string    `json:"lastError,omitempty"`
	Last      Result    `json:"last"`
}

// Service periodically writes the state of open playback sessions to history
// and, when a mirror is configured, reconciles local history into it.
type Service struct {
	sessions SessionSyncer
	local    HistorySource
	mirror   Importer
	interval time.Duration

	// Runtime state
	mu      sync.RWMutex
	running bool
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	statusMu sync.RWMutex
	status   Status

	// newest timestamp already imported into the mirror, per user
	markMu    sync.Mutex
	watermark map[string]int64
}

func NewService(sessions SessionSyncer, opts Options) *Service {
	interval := opts.Interval
	if interval <= 0 {
		interval = DefaultInterval
	}
	s := &Service{
		sessions:  sessions,
		local:     opts.Local,
		mirror:    opts.Mirror,
		interval:  interval,
		watermark: make(map[string]int64),
	}
	s.status.Interval = interval.String()
	return s
}

// Start begins the background loop. Calling it again while running is a no-op.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return nil
	}
	if s.sessions == nil {
		return errors.New("autosync requires a session source")
	}

	s.ctx, s.cancel = context.WithCancel(ctx)
	s.running = true
	s.setRunning(true)

	s.wg.Add(1)
	go s.loop()

	log.Printf("[autosync] started interval=%s mirror=%v", s.interval, s.mirroring())
	return nil
}

// Stop cancels the loop and waits for an in-flight pass or for ctx.
func (s *Service) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return nil
	}

	s.cancel()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	var err error
	select {
	case <-done:
		log.Println("[autosync] stopped")
	case <-ctx.Done():
		err = ctx.Err()
		log.Println("[autosync] stop timed out")
	}

	s.running = false
	s.setRunning(false)
	return err
}

func (s *Service) loop() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.RunOnce(s.ctx); err != nil && s.ctx.Err() == nil {
				log.Printf("[autosync] pass failed: %v", err)
			}
		}
	}
}

// RunOnce flushes every open session and mirrors history once.
func (s *Service) RunOnce(ctx context.Context) (Result, error) {
	var (
		res  Result
		errs []error
	)

	written, err := s.sessions.Sync(ctx)
	res.Sessions = written
	if err != nil {
		errs = append(errs, fmt.Errorf("sync sessions: %w", err))
	}

	if s.mirroring() {
		users, err := s.usersToMirror(ctx)
		if err != nil {
			errs = append(errs, err)
		}
		for _, userID := range users {
			n, err := s.mirrorUser(ctx, userID)
			if err != nil {
				errs = append(errs, fmt.Errorf("mirror user %s: %w", userID, err))
				continue
			}
			res.Users++
			res.Mirrored += n
		}
	}

	err = errors.Join(errs...)
	s.record(res, err)
	if res.Sessions > 0 || res.Mirrored > 0 {
		log.Printf("[autosync] sessions=%d users=%d mirrored=%d", res.Sessions, res.Users, res.Mirrored)
	}
	return res, err
}

func (s *Service) mirroring() bool {
	return s.mirror != nil && s.local != nil
}

// usersToMirror merges the users of open sessions with every user the local
// backend knows about.
func (s *Service) usersToMirror(ctx context.Context) ([]string, error) {
	seen := make(map[string]bool)
	for _, sess := range s.sessions.Active() {
		seen[sess.UserID] = true
	}

	known, err := s.local.Users(ctx)
	for _, userID := range known {
		seen[userID] = true
	}

	users := make([]string, 0, len(seen))
	for userID := range seen {
		users = append(users, userID)
	}
	sort.Strings(users)
	if err != nil {
		return users, fmt.Errorf("list users: %w", err)
	}
	return users, nil
}

// mirrorUser imports the records changed since the last successful pass.
func (s *Service) mirrorUser(ctx context.Context, userID string) (int, error) {
	records, err := s.local.ListAll(ctx, userID)
	if err != nil {
		return 0, err
	}

	s.markMu.Lock()
	since := s.watermark[userID]
	s.markMu.Unlock()

	changed := make([]models.VideoInfo, 0, len(records))
	newest := since
	for _, rec := range records {
		if rec.Timestamp <= since {
			continue
		}
		changed = append(changed, rec)
		newest = max(newest, rec.Timestamp)
	}
	if len(changed) == 0 {
		return 0, nil
	}

	n, err := s.mirror.Import(ctx, userID, changed)
	if err != nil {
		return n, err
	}
	s.markMu.Lock()
	if newest > s.watermark[userID] {
		s.watermark[userID] = newest
	}
	s.markMu.Unlock()
	return n, nil
}

// Status returns the outcome of the last pass.
func (s *Service) Status() Status {
	s.statusMu.RLock()
	defer s.statusMu.RUnlock()
	return s.status
}

func (s *Service) record(res Result, err error) {
	s.statusMu.Lock()
	defer s.statusMu.Unlock()
	s.status.LastRunAt = time.Now()
	s.status.Last = res
	s.status.LastError = ""
	if err != nil {
		s.status.LastError = err.Error()
	}
}

func (s *Service) setRunning(running bool) {
	s.statusMu.Lock()
	defer s.statusMu.Unlock()
	s.status.Running = running
}
