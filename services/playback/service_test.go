package playback_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bingewatch/internal/storage/memstore"
	"bingewatch/models"
	"bingewatch/services/embed"
	"bingewatch/services/navigator"
	"bingewatch/services/playback"
	"bingewatch/services/progress"
)

type fakeSeasons struct {
	mu       sync.Mutex
	listings map[int64][]models.Season
	ids      map[string]int64
	err      error
	calls    int
}

func (f *fakeSeasons) Seasons(_ context.Context, tmdbID int64) ([]models.Season, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.listings[tmdbID], nil
}

func (f *fakeSeasons) FindByIMDB(_ context.Context, imdbID string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	id, ok := f.ids[imdbID]
	if !ok {
		return 0, errors.New("not found")
	}
	return id, nil
}

// listing builds seasons where season i+1 has counts[i] episodes of 45 minutes.
func listing(counts ...int) []models.Season {
	seasons := make([]models.Season, 0, len(counts))
	for i, n := range counts {
		s := models.Season{SeasonNumber: i + 1}
		for e := 1; e <= n; e++ {
			s.Episodes = append(s.Episodes, models.Episode{
				Title:   fmt.Sprintf("Episode %d.%d", i+1, e),
				Episode: fmt.Sprint(e),
				Season:  fmt.Sprint(i + 1),
				Runtime: 45,
			})
		}
		seasons = append(seasons, s)
	}
	return seasons
}

func newPlayback(t *testing.T, seasons *fakeSeasons) (*playback.Service, *progress.Service) {
	t.Helper()
	history, err := progress.NewService(memstore.New())
	require.NoError(t, err)
	var source playback.SeasonSource
	if seasons != nil {
		source = seasons
	}
	svc, err := playback.NewService(history, source, nil, playback.Options{})
	require.NoError(t, err)
	t.Cleanup(svc.Close)
	return svc, history
}

func breakingBad() *fakeSeasons {
	return &fakeSeasons{
		listings: map[int64][]models.Season{1396: listing(2, 1)},
		ids:      map[string]int64{"tt0903747": 1396},
	}
}

func series(season, episode int) models.VideoInfo {
	return models.VideoInfo{IMDBID: "tt0903747", Title: "Breaking Bad", Type: models.MediaTypeSeries, Season: season, Episode: episode}
}

func TestStartSeriesResolvesSeasonsAndRecords(t *testing.T) {
	ctx := context.Background()
	svc, history := newPlayback(t, breakingBad())

	sess, err := svc.Start(ctx, "user-1", playback.StartRequest{Video: series(1, 1)})
	require.NoError(t, err)

	_, err = uuid.Parse(sess.ID)
	assert.NoError(t, err)
	assert.Equal(t, "https://vidsrc.dev/embed/tv/tt0903747/1/1", sess.EmbedURL)
	assert.Equal(t, int64(1396), sess.Video.TMDBID)
	assert.Equal(t, 45, sess.Video.Runtime)
	assert.Equal(t, "Episode 1.1", sess.Video.EpisodeTitle)
	assert.True(t, sess.HasNext)
	assert.False(t, sess.HasPrevious)
	assert.True(t, sess.ControlsVisible)

	items, err := history.GetHistory(ctx, "user-1", 0)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, sess.Video.Key(), items[0].Key())
	assert.Equal(t, sess.EmbedURL, items[0].URL)
}

func TestStartSeriesWithoutEpisodeBeginsAtPilot(t *testing.T) {
	svc, _ := newPlayback(t, breakingBad())

	sess, err := svc.Start(context.Background(), "user-1", playback.StartRequest{Video: series(0, 0)})
	require.NoError(t, err)
	assert.Equal(t, 1, sess.Video.Season)
	assert.Equal(t, 1, sess.Video.Episode)
}

func TestNextAndPreviousWalkTheSeries(t *testing.T) {
	ctx := context.Background()
	svc, history := newPlayback(t, breakingBad())

	sess, err := svc.Start(ctx, "user-1", playback.StartRequest{Video: series(1, 2)})
	require.NoError(t, err)

	next, err := svc.Next(ctx, "user-1", sess.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, next.Video.Season)
	assert.Equal(t, 1, next.Video.Episode)
	assert.Equal(t, "https://vidsrc.dev/embed/tv/tt0903747/2/1", next.EmbedURL)
	assert.False(t, next.HasNext)
	assert.True(t, next.HasPrevious)

	_, err = svc.Next(ctx, "user-1", sess.ID)
	assert.True(t, errors.Is(err, navigator.ErrNoNeighbor), "got %v", err)

	prev, err := svc.Previous(ctx, "user-1", sess.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, prev.Video.Season)
	assert.Equal(t, 2, prev.Video.Episode)

	all, err := history.ListAll(ctx, "user-1")
	require.NoError(t, err)
	assert.Len(t, all, 2, "navigating records each episode once")

	recent, err := history.GetHistory(ctx, "user-1", 0)
	require.NoError(t, err)
	require.Len(t, recent, 1)
	assert.Equal(t, 2, recent[0].Episode, "continue watching follows the last navigation")
}

func TestConcurrentNavigationIsSerialized(t *testing.T) {
	ctx := context.Background()
	seasons := &fakeSeasons{listings: map[int64][]models.Season{7: listing(6)}}
	svc, _ := newPlayback(t, seasons)

	video := models.VideoInfo{IMDBID: "tt7", Type: models.MediaTypeSeries, Season: 1, Episode: 1, TMDBID: 7}
	sess, err := svc.Start(ctx, "user-1", playback.StartRequest{Video: video})
	require.NoError(t, err)

	var wg sync.WaitGroup
	for range 3 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Next(ctx, "user-1", sess.ID)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	final, err := svc.Get("user-1", sess.ID)
	require.NoError(t, err)
	assert.Equal(t, 4, final.Video.Episode)
}

func TestProgressIsSavedAndResumed(t *testing.T) {
	ctx := context.Background()
	svc, history := newPlayback(t, nil)

	film := models.VideoInfo{IMDBID: "tt0133093", Title: "The Matrix", Type: models.MediaTypeMovie}
	sess, err := svc.Start(ctx, "user-1", playback.StartRequest{Video: film, Provider: "vidsrc.xyz"})
	require.NoError(t, err)
	assert.Equal(t, "https://vidsrc.xyz/embed/movie?imdb=tt0133093", sess.EmbedURL)
	assert.Nil(t, sess.Progress)

	updated, err := svc.Progress(ctx, "user-1", sess.ID, 6500, 7000)
	require.NoError(t, err)
	require.NotNil(t, updated.Progress)
	assert.True(t, updated.Progress.Completed)

	stored, err := history.GetProgress(ctx, "user-1", film)
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, 6500.0, stored.CurrentTime)

	_, err = svc.End(ctx, "user-1", sess.ID)
	require.NoError(t, err)

	again, err := svc.Start(ctx, "user-1", playback.StartRequest{Video: film})
	require.NoError(t, err)
	require.NotNil(t, again.Progress, "a new session resumes from the stored position")
	assert.Equal(t, 6500.0, again.Progress.CurrentTime)
}

func TestProgressRejectsInvalidPositions(t *testing.T) {
	ctx := context.Background()
	svc, _ := newPlayback(t, nil)

	sess, err := svc.Start(ctx, "user-1", playback.StartRequest{Video: models.VideoInfo{IMDBID: "tt1", Type: models.MediaTypeMovie}})
	require.NoError(t, err)

	_, err = svc.Progress(ctx, "user-1", sess.ID, 10, 0)
	assert.ErrorIs(t, err, progress.ErrInvalidProgress)
}

func TestEndDropsTheSession(t *testing.T) {
	ctx := context.Background()
	svc, _ := newPlayback(t, breakingBad())

	sess, err := svc.Start(ctx, "user-1", playback.StartRequest{Video: series(1, 1)})
	require.NoError(t, err)

	final, err := svc.End(ctx, "user-1", sess.ID)
	require.NoError(t, err)
	assert.Equal(t, sess.ID, final.ID)
	assert.False(t, final.ControlsVisible)

	_, err = svc.Get("user-1", sess.ID)
	assert.ErrorIs(t, err, playback.ErrSessionNotFound)
	_, err = svc.End(ctx, "user-1", sess.ID)
	assert.ErrorIs(t, err, playback.ErrSessionNotFound)
	_, err = svc.Next(ctx, "user-1", sess.ID)
	assert.ErrorIs(t, err, playback.ErrSessionNotFound)
	assert.Empty(t, svc.Active())
}

func TestSessionsAreScopedToTheirUser(t *testing.T) {
	ctx := context.Background()
	svc, _ := newPlayback(t, breakingBad())

	sess, err := svc.Start(ctx, "user-1", playback.StartRequest{Video: series(1, 1)})
	require.NoError(t, err)

	_, err = svc.Get("user-2", sess.ID)
	assert.ErrorIs(t, err, playback.ErrSessionForbidden)
	_, err = svc.Activity("user-2", sess.ID)
	assert.ErrorIs(t, err, playback.ErrSessionForbidden)
}

func TestStartValidation(t *testing.T) {
	ctx := context.Background()
	svc, _ := newPlayback(t, nil)

	_, err := svc.Start(ctx, " ", playback.StartRequest{Video: series(1, 1)})
	assert.ErrorIs(t, err, progress.ErrUserIDRequired)

	_, err = svc.Start(ctx, "user-1", playback.StartRequest{Video: models.VideoInfo{Type: models.MediaTypeMovie}})
	assert.ErrorIs(t, err, progress.ErrIMDBIDRequired)

	_, err = svc.Start(ctx, "user-1", playback.StartRequest{Video: models.VideoInfo{IMDBID: "tt1", Type: "podcast"}})
	assert.ErrorIs(t, err, progress.ErrInvalidMediaType)

	_, err = svc.Start(ctx, "user-1", playback.StartRequest{Video: series(1, 1), Provider: "example.com"})
	assert.ErrorIs(t, err, embed.ErrUnknownProvider)
}

func TestSeasonFailureStillPlays(t *testing.T) {
	ctx := context.Background()
	seasons := breakingBad()
	seasons.err = errors.New("tmdb down")
	svc, _ := newPlayback(t, seasons)

	sess, err := svc.Start(ctx, "user-1", playback.StartRequest{Video: series(1, 1)})
	require.NoError(t, err)
	assert.False(t, sess.HasNext)
	assert.Equal(t, 0, sess.Video.Runtime)

	_, err = svc.Next(ctx, "user-1", sess.ID)
	assert.ErrorIs(t, err, navigator.ErrEpisodeUnknown)
	assert.Equal(t, 2, seasons.calls, "navigation retries the season listing")
}

func TestActivityShowsControls(t *testing.T) {
	svc, _ := newPlayback(t, nil)
	sess, err := svc.Start(context.Background(), "user-1", playback.StartRequest{Video: models.VideoInfo{IMDBID: "tt1", Type: models.MediaTypeMovie}})
	require.NoError(t, err)

	visible, err := svc.Activity("user-1", sess.ID)
	require.NoError(t, err)
	assert.True(t, visible)
}

func TestSyncRecordsEveryActiveSession(t *testing.T) {
	ctx := context.Background()
	svc, history := newPlayback(t, breakingBad())

	a, err := svc.Start(ctx, "user-1", playback.StartRequest{Video: series(1, 1)})
	require.NoError(t, err)
	_, err = svc.Progress(ctx, "user-1", a.ID, 120, 2700)
	require.NoError(t, err)
	_, err = svc.Start(ctx, "user-2", playback.StartRequest{Video: models.VideoInfo{IMDBID: "tt1", Type: models.MediaTypeMovie}})
	require.NoError(t, err)

	before, err := history.ListAll(ctx, "user-1")
	require.NoError(t, err)

	written, err := svc.Sync(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, written)

	after, err := history.ListAll(ctx, "user-1")
	require.NoError(t, err)
	require.Len(t, after, 1)
	assert.Greater(t, after[0].Timestamp, before[0].Timestamp)
	require.NotNil(t, after[0].Progress)
	assert.Equal(t, 120.0, after[0].Progress.CurrentTime)
}

// gatedHistory parks the first RecordWatched after arm until release is closed.
type gatedHistory struct {
	*progress.Service
	mu      sync.Mutex
	armed   bool
	entered chan struct{}
	release chan struct{}
}

func (g *gatedHistory) arm() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.armed = true
	g.entered = make(chan struct{})
	g.release = make(chan struct{})
}

func (g *gatedHistory) RecordWatched(ctx context.Context, userID string, video models.VideoInfo) (models.VideoInfo, error) {
	g.mu.Lock()
	armed := g.armed
	g.armed = false
	g.mu.Unlock()
	if armed {
		close(g.entered)
		<-g.release
	}
	return g.Service.RecordWatched(ctx, userID, video)
}

func TestSyncDoesNotOverwriteNewerNavigation(t *testing.T) {
	ctx := context.Background()
	store, err := progress.NewService(memstore.New())
	require.NoError(t, err)
	history := &gatedHistory{Service: store}
	svc, err := playback.NewService(history, breakingBad(), nil, playback.Options{})
	require.NoError(t, err)
	t.Cleanup(svc.Close)

	sess, err := svc.Start(ctx, "user-1", playback.StartRequest{Video: series(1, 1)})
	require.NoError(t, err)

	history.arm()
	synced := make(chan error, 1)
	go func() {
		_, err := svc.Sync(ctx)
		synced <- err
	}()
	<-history.entered

	moved := make(chan error, 1)
	go func() {
		_, err := svc.Next(ctx, "user-1", sess.ID)
		moved <- err
	}()
	close(history.release)
	require.NoError(t, <-synced)
	require.NoError(t, <-moved)

	items, err := store.GetHistory(ctx, "user-1", 0)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, 2, items[0].Episode, "continue watching must show the episode navigated to")

	current, err := svc.Get("user-1", sess.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, current.Video.Episode)
}

func TestSyncSkipsEndedSessions(t *testing.T) {
	ctx := context.Background()
	svc, _ := newPlayback(t, breakingBad())

	sess, err := svc.Start(ctx, "user-1", playback.StartRequest{Video: series(1, 1)})
	require.NoError(t, err)
	_, err = svc.End(ctx, "user-1", sess.ID)
	require.NoError(t, err)

	written, err := svc.Sync(ctx)
	require.NoError(t, err)
	assert.Zero(t, written)
}

func TestNewServiceRequiresHistory(t *testing.T) {
	_, err := playback.NewService(nil, nil, nil, playback.Options{})
	assert.ErrorIs(t, err, playback.ErrHistoryRequired)

	history, err := progress.NewService(memstore.New())
	require.NoError(t, err)
	_, err = playback.NewService(history, nil, nil, playback.Options{DefaultProvider: "nope"})
	assert.ErrorIs(t, err, embed.ErrUnknownProvider)
}
