package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"bingewatch/models"
	"bingewatch/services/progress"
)

const recordColumns = `imdb_id, media_type, season, episode, title, episode_title, poster, tmdb_id, runtime, url, watched_at,
	progress_current, progress_duration, progress_completed, progress_last_watched`

// Store keeps watch records in a watch_records table on Postgres or SQLite.
type Store struct {
	db     *sql.DB
	driver string
}

var (
	_ progress.Store      = (*Store)(nil)
	_ progress.UserLister = (*Store)(nil)
)

// Open connects to the database and migrates it.
func Open(ctx context.Context, driver, dsn string, pool PoolOptions) (*Store, error) {
	db, err := Connect(ctx, driver, dsn, pool)
	if err != nil {
		return nil, err
	}
	return &Store{db: db, driver: driver}, nil
}

func (s *Store) Put(ctx context.Context, userID string, video models.VideoInfo) error {
	query := rebind(s.driver, `
		INSERT INTO watch_records (user_id, record_key, `+recordColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (user_id, record_key) DO UPDATE SET
			imdb_id = excluded.imdb_id,
			media_type = excluded.media_type,
			season = excluded.season,
			episode = excluded.episode,
			title = excluded.title,
			episode_title = excluded.episode_title,
			poster = excluded.poster,
			tmdb_id = excluded.tmdb_id,
			runtime = excluded.runtime,
			url = excluded.url,
			watched_at = excluded.watched_at,
			progress_current = excluded.progress_current,
			progress_duration = excluded.progress_duration,
			progress_completed = excluded.progress_completed,
			progress_last_watched = excluded.progress_last_watched`)

	var (
		current, duration sql.NullFloat64
		completed         sql.NullBool
		lastWatched       sql.NullInt64
	)
	if p := video.Progress; p != nil {
		current = sql.NullFloat64{Float64: p.CurrentTime, Valid: true}
		duration = sql.NullFloat64{Float64: p.Duration, Valid: true}
		completed = sql.NullBool{Bool: p.Completed, Valid: true}
		lastWatched = sql.NullInt64{Int64: p.LastWatched, Valid: true}
	}

	_, err := s.db.ExecContext(ctx, query,
		userID, video.Key(),
		video.IMDBID, string(video.Type), video.Season, video.Episode,
		video.Title, video.EpisodeTitle, video.Poster, video.TMDBID, video.Runtime, video.URL,
		video.Timestamp,
		current, duration, completed, lastWatched,
	)
	if err != nil {
		return fmt.Errorf("upsert watch record: %w", err)
	}
	return nil
}

func (s *Store) Get(ctx context.Context, userID, key string) (*models.VideoInfo, error) {
	query := rebind(s.driver, `SELECT `+recordColumns+` FROM watch_records WHERE user_id = ? AND record_key = ?`)
	row := s.db.QueryRowContext(ctx, query, userID, strings.ToLower(key))

	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get watch record: %w", err)
	}
	return &rec, nil
}

func (s *Store) List(ctx context.Context, userID string) ([]models.VideoInfo, error) {
	query := rebind(s.driver, `SELECT `+recordColumns+` FROM watch_records WHERE user_id = ? ORDER BY watched_at DESC`)
	rows, err := s.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("list watch records: %w", err)
	}
	defer rows.Close()

	var items []models.VideoInfo
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan watch record: %w", err)
		}
		items = append(items, rec)
	}
	return items, rows.Err()
}

func (s *Store) Delete(ctx context.Context, userID string, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin delete: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, rebind(s.driver, `DELETE FROM watch_records WHERE user_id = ? AND record_key = ?`))
	if err != nil {
		return fmt.Errorf("prepare delete: %w", err)
	}
	defer stmt.Close()

	for _, key := range keys {
		if _, err := stmt.ExecContext(ctx, userID, strings.ToLower(key)); err != nil {
			return fmt.Errorf("delete watch record %s: %w", key, err)
		}
	}
	return tx.Commit()
}

// Users lists every user with at least one record.
func (s *Store) Users(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT DISTINCT user_id FROM watch_records ORDER BY user_id`)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	var users []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		users = append(users, id)
	}
	return users, rows.Err()
}

func (s *Store) Close() error {
	return s.db.Close()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(row scanner) (models.VideoInfo, error) {
	var (
		rec               models.VideoInfo
		mediaType         string
		current, duration sql.NullFloat64
		completed         sql.NullBool
		lastWatched       sql.NullInt64
	)
	err := row.Scan(
		&rec.IMDBID, &mediaType, &rec.Season, &rec.Episode,
		&rec.Title, &rec.EpisodeTitle, &rec.Poster, &rec.TMDBID, &rec.Runtime, &rec.URL,
		&rec.Timestamp,
		&current, &duration, &completed, &lastWatched,
	)
	if err != nil {
		return models.VideoInfo{}, err
	}
	rec.Type = models.MediaType(mediaType)
	if current.Valid && duration.Valid {
		rec.Progress = &models.VideoProgress{
			CurrentTime: current.Float64,
			Duration:    duration.Float64,
			Completed:   completed.Bool,
			LastWatched: lastWatched.Int64,
		}
	}
	return rec, nil
}
