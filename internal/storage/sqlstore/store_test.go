package sqlstore

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bingewatch/models"
	"bingewatch/services/progress"
)

func openSQLite(t *testing.T) *Store {
	t.Helper()
	dsn := filepath.Join(t.TempDir(), "history.db")
	store, err := Open(context.Background(), DriverSQLite, dsn, PoolOptions{})
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestPutGetRoundTripWithProgress(t *testing.T) {
	ctx := context.Background()
	store := openSQLite(t)

	video := models.VideoInfo{
		IMDBID:       "tt0903747",
		Title:        "Breaking Bad",
		Type:         models.MediaTypeSeries,
		Season:       2,
		Episode:      4,
		EpisodeTitle: "Down",
		TMDBID:       1396,
		Timestamp:    1700000000000,
		Progress:     &models.VideoProgress{CurrentTime: 120, Duration: 2800, LastWatched: 1700000000000},
	}
	require.NoError(t, store.Put(ctx, "user-1", video))

	got, err := store.Get(ctx, "user-1", video.Key())
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, video, *got)

	missing, err := store.Get(ctx, "user-1", "movie:tt0000000")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestPutUpsertsOnConflict(t *testing.T) {
	ctx := context.Background()
	store := openSQLite(t)

	video := models.VideoInfo{IMDBID: "tt0133093", Title: "The Matrix", Type: models.MediaTypeMovie, Timestamp: 1}
	require.NoError(t, store.Put(ctx, "user-1", video))

	video.Timestamp = 2
	video.Progress = &models.VideoProgress{CurrentTime: 10, Duration: 100, LastWatched: 2}
	require.NoError(t, store.Put(ctx, "user-1", video))

	items, err := store.List(ctx, "user-1")
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, int64(2), items[0].Timestamp)
	require.NotNil(t, items[0].Progress)
	assert.Equal(t, 10.0, items[0].Progress.CurrentTime)
}

func TestDeleteAndUsers(t *testing.T) {
	ctx := context.Background()
	store := openSQLite(t)

	a := models.VideoInfo{IMDBID: "tt1", Type: models.MediaTypeSeries, Season: 1, Episode: 1, Timestamp: 1}
	b := models.VideoInfo{IMDBID: "tt1", Type: models.MediaTypeSeries, Season: 1, Episode: 2, Timestamp: 2}
	require.NoError(t, store.Put(ctx, "user-1", a))
	require.NoError(t, store.Put(ctx, "user-1", b))
	require.NoError(t, store.Put(ctx, "user-2", a))

	require.NoError(t, store.Delete(ctx, "user-1", a.Key(), b.Key()))

	items, err := store.List(ctx, "user-1")
	require.NoError(t, err)
	assert.Empty(t, items)

	users, err := store.Users(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"user-2"}, users)
}

func TestServiceOverSQLite(t *testing.T) {
	ctx := context.Background()
	svc, err := progress.NewService(openSQLite(t))
	require.NoError(t, err)

	for _, ep := range []int{1, 2, 3} {
		_, err := svc.RecordWatched(ctx, "user-1", models.VideoInfo{IMDBID: "tt0903747", Type: models.MediaTypeSeries, Season: 1, Episode: ep})
		require.NoError(t, err)
	}

	history, err := svc.GetHistory(ctx, "user-1", 0)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, 3, history[0].Episode)

	removed, err := svc.DeleteShow(ctx, "user-1", "tt0903747", models.MediaTypeSeries)
	require.NoError(t, err)
	assert.Equal(t, 3, removed)
}

func TestRebind(t *testing.T) {
	got := rebind(DriverPostgres, "SELECT 1 WHERE a = ? AND b = ?")
	assert.Equal(t, "SELECT 1 WHERE a = $1 AND b = $2", got)
	assert.Equal(t, "a = ?", rebind(DriverSQLite, "a = ?"))
}

func TestConnectRejectsUnknownDriver(t *testing.T) {
	_, err := Connect(context.Background(), "mysql", "dsn", PoolOptions{})
	assert.ErrorIs(t, err, ErrUnsupportedDriver)
}
