package filestore

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/spf13/afero"

	"bingewatch/models"
)

func TestPutPersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	fs := afero.NewMemMapFs()

	store, err := NewWithFs(fs, "/data")
	if err != nil {
		t.Fatalf("NewWithFs: %v", err)
	}

	video := models.VideoInfo{IMDBID: "tt0903747", Title: "Breaking Bad", Type: models.MediaTypeSeries, Season: 1, Episode: 3, Timestamp: 100}
	if err := store.Put(ctx, "user-1", video); err != nil {
		t.Fatalf("Put: %v", err)
	}

	reopened, err := NewWithFs(fs, "/data")
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	got, err := reopened.Get(ctx, "user-1", video.Key())
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got == nil || got.Title != "Breaking Bad" || got.Episode != 3 {
		t.Fatalf("unexpected record after reopen: %+v", got)
	}

	if exists, _ := afero.Exists(fs, filepath.Join("/data", FileName+".tmp")); exists {
		t.Fatal("temp file left behind")
	}
}

func TestLoadCollapsesDuplicates(t *testing.T) {
	fs := afero.NewMemMapFs()
	doc := map[string][]models.VideoInfo{
		"user-1": {
			{IMDBID: "TT0133093", Title: "old", Type: "movie", Timestamp: 10},
			{IMDBID: "tt0133093", Title: "new", Type: "Movie", Timestamp: 20},
			{IMDBID: "", Title: "broken", Type: "movie", Timestamp: 30},
		},
		" ": {
			{IMDBID: "tt1", Type: "movie"},
		},
	}
	data, err := json.Marshal(doc)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if err := afero.WriteFile(fs, filepath.Join("/data", FileName), data, 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	store, err := NewWithFs(fs, "/data")
	if err != nil {
		t.Fatalf("NewWithFs: %v", err)
	}
	items, err := store.List(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(items) != 1 {
		t.Fatalf("expected 1 record, got %d", len(items))
	}
	if items[0].Title != "new" {
		t.Fatalf("expected newest duplicate to win, got %q", items[0].Title)
	}
	if users, _ := store.Users(context.Background()); len(users) != 1 || users[0] != "user-1" {
		t.Fatalf("unexpected users: %v", users)
	}
}

func TestDeleteRemovesKeys(t *testing.T) {
	ctx := context.Background()
	store, err := NewWithFs(afero.NewMemMapFs(), "/data")
	if err != nil {
		t.Fatalf("NewWithFs: %v", err)
	}

	a := models.VideoInfo{IMDBID: "tt1", Type: models.MediaTypeSeries, Season: 1, Episode: 1}
	b := models.VideoInfo{IMDBID: "tt1", Type: models.MediaTypeSeries, Season: 1, Episode: 2}
	for _, v := range []models.VideoInfo{a, b} {
		if err := store.Put(ctx, "user-1", v); err != nil {
			t.Fatalf("Put: %v", err)
		}
	}

	if err := store.Delete(ctx, "user-1", a.Key(), "movie:missing"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	items, _ := store.List(ctx, "user-1")
	if len(items) != 1 || items[0].Key() != b.Key() {
		t.Fatalf("unexpected remaining records: %+v", items)
	}

	if err := store.Delete(ctx, "nobody", a.Key()); err != nil {
		t.Fatalf("Delete for unknown user: %v", err)
	}
}

func TestNewRequiresDir(t *testing.T) {
	if _, err := NewWithFs(afero.NewMemMapFs(), "  "); err != ErrStorageDirRequired {
		t.Fatalf("expected ErrStorageDirRequired, got %v", err)
	}
}
