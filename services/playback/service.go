package playback

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"bingewatch/models"
	"bingewatch/services/embed"
	"bingewatch/services/metadata"
	"bingewatch/services/navigator"
	"bingewatch/services/overlay"
	"bingewatch/services/progress"
)

var (
	ErrHistoryRequired  = errors.New("playback requires a history recorder")
	ErrSessionNotFound  = errors.New("playback session not found")
	ErrSessionForbidden = errors.New("playback session belongs to another user")
)

// HistoryRecorder persists what a session plays.
type HistoryRecorder interface {
	RecordWatched(ctx context.Context, userID string, video models.VideoInfo) (models.VideoInfo, error)
	SaveProgress(ctx context.Context, userID string, video models.VideoInfo, currentTime, duration float64) (models.VideoProgress, error)
}

// SeasonSource supplies season listings for series navigation.
type SeasonSource interface {
	Seasons(ctx context.Context, tmdbID int64) ([]models.Season, error)
	FindByIMDB(ctx context.Context, imdbID string) (int64, error)
}

var (
	_ HistoryRecorder         = (*progress.Service)(nil)
	_ SeasonSource            = (*metadata.Service)(nil)
	_ navigator.RuntimeSource = (*metadata.Service)(nil)
)

// Options tunes sessions. Zero values select the defaults.
type Options struct {
	DefaultProvider  string
	OverlayHideDelay time.Duration
}

// StartRequest opens a session on Video using the embed Provider.
type StartRequest struct {
	Video    models.VideoInfo `json:"video"`
	Provider string           `json:"provider,omitempty"`
}

// Session is a point-in-time view of a playing video.
type Session struct {
	ID              string                `json:"id"`
	UserID          string                `json:"userId"`
	Video           models.VideoInfo      `json:"video"`
	Provider        string                `json:"provider"`
	EmbedURL        string                `json:"embedUrl"`
	Progress        *models.VideoProgress `json:"progress,omitempty"`
	Seasons         []models.Season       `json:"seasons,omitempty"`
	HasNext         bool                  `json:"hasNext"`
	HasPrevious     bool                  `json:"hasPrevious"`
	ControlsVisible bool                  `json:"controlsVisible"`
	StartedAt       time.Time             `json:"startedAt"`
	UpdatedAt       time.Time             `json:"updatedAt"`
}

type session struct {
	// op serializes mutations so a superseded navigation cannot overwrite a newer one
	op sync.Mutex

	mu      sync.RWMutex
	state   Session
	overlay *overlay.Timer
	ended   bool
}

// Service keeps the in-memory playback sessions and records their progress.
type Service struct {
	mu       sync.RWMutex
	sessions map[string]*session

	history   HistoryRecorder
	seasons   SeasonSource
	nav       *navigator.Navigator
	provider  string
	hideDelay time.Duration
	now       func() time.Time
}

// NewService wires sessions to history. seasons and runtimes may be nil, in
// which case series cannot be navigated and runtimes stay unknown.
func NewService(history HistoryRecorder, seasons SeasonSource, runtimes navigator.RuntimeSource, opts Options) (*Service, error) {
	if history == nil {
		return nil, ErrHistoryRequired
	}
	provider := strings.TrimSpace(opts.DefaultProvider)
	if provider == "" {
		provider = embed.DefaultProvider
	}
	if _, err := embed.URL(provider, models.VideoInfo{IMDBID: "tt0000000"}); err != nil {
		return nil, err
	}
	return &Service{
		sessions:  make(map[string]*session),
		history:   history,
		seasons:   seasons,
		nav:       navigator.New(runtimes),
		provider:  provider,
		hideDelay: opts.OverlayHideDelay,
		now:       time.Now,
	}, nil
}

// Start opens a session, records the video as watched and returns the
// session with its embed URL and the stored resume position.
func (s *Service) Start(ctx context.Context, userID string, req StartRequest) (Session, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return Session{}, progress.ErrUserIDRequired
	}
	video := req.Video.Normalize()
	if video.IMDBID == "" {
		return Session{}, progress.ErrIMDBIDRequired
	}
	if !video.Type.Valid() {
		return Session{}, progress.ErrInvalidMediaType
	}
	if video.IsSeries() && video.Season == 0 && video.Episode == 0 {
		video.Season, video.Episode = 1, 1
	}

	provider := strings.ToLower(strings.TrimSpace(req.Provider))
	if provider == "" {
		provider = s.provider
	}
	embedURL, err := embed.URL(provider, video)
	if err != nil {
		return Session{}, err
	}
	video.URL = embedURL

	var seasons []models.Season
	if video.IsSeries() {
		video, seasons = s.loadSeasons(ctx, video)
		if video.Runtime == 0 {
			video.Runtime = runtimeFromListing(seasons, video)
		}
		if video.Runtime == 0 {
			video.Runtime = s.nav.Runtime(ctx, video)
		}
	}

	recorded, err := s.history.RecordWatched(ctx, userID, video)
	if err != nil {
		return Session{}, err
	}
	now := s.now()
	sess := &session{
		state: Session{
			ID:        uuid.NewString(),
			UserID:    userID,
			Video:     recorded,
			Provider:  provider,
			EmbedURL:  embedURL,
			Progress:  copyProgress(recorded.Progress),
			Seasons:   seasons,
			StartedAt: now,
			UpdatedAt: now,
		},
	}
	sess.overlay = overlay.New(s.hideDelay, nil)
	sess.overlay.Touch()

	s.mu.Lock()
	s.sessions[sess.state.ID] = sess
	s.mu.Unlock()

	log.Printf("[playback] started session=%s user=%s key=%s", sess.state.ID, userID, recorded.Key())
	return sess.snapshot(), nil
}

// Next moves the session to the following episode.
func (s *Service) Next(ctx context.Context, userID, sessionID string) (Session, error) {
	return s.advance(ctx, userID, sessionID, navigator.DirectionNext)
}

// Previous moves the session to the preceding episode.
func (s *Service) Previous(ctx context.Context, userID, sessionID string) (Session, error) {
	return s.advance(ctx, userID, sessionID, navigator.DirectionPrevious)
}

// Navigate moves the session in dir.
func (s *Service) Navigate(ctx context.Context, userID, sessionID string, dir navigator.Direction) (Session, error) {
	return s.advance(ctx, userID, sessionID, dir)
}

func (s *Service) advance(ctx context.Context, userID, sessionID string, dir navigator.Direction) (Session, error) {
	sess, err := s.lookup(userID, sessionID)
	if err != nil {
		return Session{}, err
	}

	sess.op.Lock()
	defer sess.op.Unlock()

	sess.mu.RLock()
	ended := sess.ended
	current := sess.state.Video
	seasons := sess.state.Seasons
	provider := sess.state.Provider
	sess.mu.RUnlock()
	if ended {
		return Session{}, ErrSessionNotFound
	}

	if current.IsSeries() && len(seasons) == 0 {
		current, seasons = s.loadSeasons(ctx, current)
	}

	next, err := s.nav.Advance(ctx, current, seasons, dir)
	if err != nil {
		return Session{}, err
	}
	embedURL, err := embed.URL(provider, next)
	if err != nil {
		return Session{}, err
	}
	next.URL = embedURL

	recorded, err := s.history.RecordWatched(ctx, sess.userID(), next)
	if err != nil {
		return Session{}, err
	}
	sess.mu.Lock()
	sess.state.Video = recorded
	sess.state.Seasons = seasons
	sess.state.EmbedURL = embedURL
	sess.state.Progress = copyProgress(recorded.Progress)
	sess.state.UpdatedAt = s.now()
	sess.mu.Unlock()
	sess.overlay.Touch()

	log.Printf("[playback] %s session=%s key=%s", dir, sessionID, recorded.Key())
	return sess.snapshot(), nil
}

// Progress saves the playback position of the session's current video.
func (s *Service) Progress(ctx context.Context, userID, sessionID string, currentTime, duration float64) (Session, error) {
	sess, err := s.lookup(userID, sessionID)
	if err != nil {
		return Session{}, err
	}

	sess.op.Lock()
	defer sess.op.Unlock()

	sess.mu.RLock()
	ended := sess.ended
	video := sess.state.Video
	sess.mu.RUnlock()
	if ended {
		return Session{}, ErrSessionNotFound
	}

	saved, err := s.history.SaveProgress(ctx, sess.userID(), video, currentTime, duration)
	if err != nil {
		return Session{}, err
	}

	sess.mu.Lock()
	sess.state.Progress = &saved
	sess.state.Video.Progress = &saved
	sess.state.Video.Timestamp = saved.LastWatched
	sess.state.UpdatedAt = s.now()
	sess.mu.Unlock()
	return sess.snapshot(), nil
}

// Activity reports user activity on the player. The controls show and the
// hide countdown restarts. It returns whether the controls are visible.
func (s *Service) Activity(userID, sessionID string) (bool, error) {
	sess, err := s.lookup(userID, sessionID)
	if err != nil {
		return false, err
	}
	sess.overlay.Touch()
	return sess.overlay.Visible(), nil
}

// End records the final state of the session and drops it.
func (s *Service) End(ctx context.Context, userID, sessionID string) (Session, error) {
	sess, err := s.lookup(userID, sessionID)
	if err != nil {
		return Session{}, err
	}

	sess.op.Lock()
	defer sess.op.Unlock()

	sess.mu.Lock()
	if sess.ended {
		sess.mu.Unlock()
		return Session{}, ErrSessionNotFound
	}
	sess.ended = true
	sess.mu.Unlock()

	s.mu.Lock()
	delete(s.sessions, sessionID)
	s.mu.Unlock()
	sess.overlay.Stop()

	final := sess.snapshot()
	if err := s.flush(ctx, final); err != nil {
		return final, err
	}
	log.Printf("[playback] ended session=%s key=%s", sessionID, final.Video.Key())
	return final, nil
}

// Sync records the current state of every active session. It returns the
// number of sessions written. Each session is flushed under its op lock, so
// a navigation or End in flight finishes first and is never overwritten.
func (s *Service) Sync(ctx context.Context) (int, error) {
	var (
		written int
		errs    []error
	)
	for _, sess := range s.open() {
		if err := ctx.Err(); err != nil {
			return written, err
		}
		ok, err := s.syncSession(ctx, sess)
		if err != nil {
			errs = append(errs, fmt.Errorf("session %s: %w", sess.id(), err))
			continue
		}
		if ok {
			written++
		}
	}
	return written, errors.Join(errs...)
}

func (s *Service) syncSession(ctx context.Context, sess *session) (bool, error) {
	sess.op.Lock()
	defer sess.op.Unlock()

	sess.mu.RLock()
	ended := sess.ended
	sess.mu.RUnlock()
	if ended {
		return false, nil
	}
	return true, s.flush(ctx, sess.snapshot())
}

func (s *Service) flush(ctx context.Context, snap Session) error {
	if p := snap.Progress; p != nil && p.Duration > 0 {
		_, err := s.history.SaveProgress(ctx, snap.UserID, snap.Video, p.CurrentTime, p.Duration)
		return err
	}
	_, err := s.history.RecordWatched(ctx, snap.UserID, snap.Video)
	return err
}

// Get returns the session owned by userID.
func (s *Service) Get(userID, sessionID string) (Session, error) {
	sess, err := s.lookup(userID, sessionID)
	if err != nil {
		return Session{}, err
	}
	return sess.snapshot(), nil
}

// Active lists every open session, oldest first.
func (s *Service) Active() []Session {
	open := s.open()
	out := make([]Session, 0, len(open))
	for _, sess := range open {
		out = append(out, sess.snapshot())
	}
	return out
}

func (s *Service) open() []*session {
	s.mu.RLock()
	out := make([]*session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		out = append(out, sess)
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		a, b := out[i].times(), out[j].times()
		if !a.Equal(b) {
			return a.Before(b)
		}
		return out[i].id() < out[j].id()
	})
	return out
}

// Close stops every overlay timer and drops the sessions without recording.
func (s *Service) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, sess := range s.sessions {
		sess.overlay.Stop()
		delete(s.sessions, id)
	}
}

func (s *Service) lookup(userID, sessionID string) (*session, error) {
	sessionID = strings.TrimSpace(sessionID)
	s.mu.RLock()
	sess, ok := s.sessions[sessionID]
	s.mu.RUnlock()
	if !ok {
		return nil, ErrSessionNotFound
	}
	if sess.userID() != strings.TrimSpace(userID) {
		return nil, ErrSessionForbidden
	}
	return sess, nil
}

// loadSeasons resolves the tmdb id when missing and fetches the season
// listing. Failures are logged and leave the session without navigation.
func (s *Service) loadSeasons(ctx context.Context, video models.VideoInfo) (models.VideoInfo, []models.Season) {
	if s.seasons == nil {
		return video, nil
	}
	if video.TMDBID == 0 {
		id, err := s.seasons.FindByIMDB(ctx, video.IMDBID)
		if err != nil {
			log.Printf("[playback] tmdb lookup failed imdb=%s: %v", video.IMDBID, err)
			return video, nil
		}
		video.TMDBID = id
	}
	seasons, err := s.seasons.Seasons(ctx, video.TMDBID)
	if err != nil {
		log.Printf("[playback] season listing failed tmdb=%d: %v", video.TMDBID, err)
		return video, nil
	}
	if video.EpisodeTitle == "" {
		if si, ei, ok := navigator.CurrentIndex(seasons, video.Season, video.Episode); ok {
			video.EpisodeTitle = seasons[si].Episodes[ei].Title
		}
	}
	return video, seasons
}

func runtimeFromListing(seasons []models.Season, video models.VideoInfo) int {
	si, ei, ok := navigator.CurrentIndex(seasons, video.Season, video.Episode)
	if !ok {
		return 0
	}
	return seasons[si].Episodes[ei].Runtime
}

func (sess *session) userID() string {
	sess.mu.RLock()
	defer sess.mu.RUnlock()
	return sess.state.UserID
}

func (sess *session) id() string {
	sess.mu.RLock()
	defer sess.mu.RUnlock()
	return sess.state.ID
}

func (sess *session) times() time.Time {
	sess.mu.RLock()
	defer sess.mu.RUnlock()
	return sess.state.StartedAt
}

func (sess *session) snapshot() Session {
	sess.mu.RLock()
	out := sess.state
	sess.mu.RUnlock()

	out.Progress = copyProgress(out.Progress)
	out.ControlsVisible = sess.overlay.Visible()
	if out.Video.IsSeries() && len(out.Seasons) > 0 {
		_, out.HasNext = navigator.Next(out.Seasons, out.Video.Season, out.Video.Episode)
		_, out.HasPrevious = navigator.Previous(out.Seasons, out.Video.Season, out.Video.Episode)
	}
	return out
}

func copyProgress(p *models.VideoProgress) *models.VideoProgress {
	if p == nil {
		return nil
	}
	c := *p
	return &c
}
