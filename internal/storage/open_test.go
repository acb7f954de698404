package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"bingewatch/config"
	"bingewatch/internal/storage/filestore"
	"bingewatch/internal/storage/memstore"
	"bingewatch/internal/storage/sqlstore"
	"bingewatch/models"
)

func TestOpenSelectsBackend(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	cases := []struct {
		cfg   config.StorageSettings
		check func(any) bool
	}{
		{config.StorageSettings{Backend: config.BackendFile, DataDir: dir}, func(s any) bool { _, ok := s.(*filestore.Store); return ok }},
		{config.StorageSettings{Backend: config.BackendMemory}, func(s any) bool { _, ok := s.(*memstore.Store); return ok }},
		{config.StorageSettings{Backend: config.BackendSQLite, SQLitePath: filepath.Join(dir, "h.db")}, func(s any) bool { _, ok := s.(*sqlstore.Store); return ok }},
	}
	for _, tc := range cases {
		store, err := Open(ctx, tc.cfg)
		if err != nil {
			t.Fatalf("%s: %v", tc.cfg.Backend, err)
		}
		if !tc.check(store) {
			t.Fatalf("%s: unexpected store type %T", tc.cfg.Backend, store)
		}
		video := models.VideoInfo{IMDBID: "tt0111161", Type: models.MediaTypeMovie, Timestamp: 1}
		if err := store.Put(ctx, "user-1", video); err != nil {
			t.Fatalf("%s: Put: %v", tc.cfg.Backend, err)
		}
		store.Close()
	}
}

func TestOpenUnknownBackend(t *testing.T) {
	_, err := Open(context.Background(), config.StorageSettings{Backend: "cassandra"})
	if !errors.Is(err, config.ErrUnknownBackend) {
		t.Fatalf("expected ErrUnknownBackend, got %v", err)
	}
}
