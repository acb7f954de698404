package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"bingewatch/internal/storage/memstore"
	"bingewatch/models"
	"bingewatch/services/progress"
)

func TestExportThenImport(t *testing.T) {
	ctx := context.Background()
	src, _ := progress.NewService(memstore.New())
	src.RecordWatched(ctx, "user-1", models.VideoInfo{IMDBID: "tt0903747", Title: "Breaking Bad", Type: models.MediaTypeSeries, Season: 1, Episode: 1})
	src.RecordWatched(ctx, "user-1", models.VideoInfo{IMDBID: "tt0111161", Title: "The Shawshank Redemption", Type: models.MediaTypeMovie})

	var exported bytes.Buffer
	if err := run(ctx, src, []string{"export", "user-1"}, &exported); err != nil {
		t.Fatalf("export: %v", err)
	}
	file := filepath.Join(t.TempDir(), "history.json")
	if err := os.WriteFile(file, exported.Bytes(), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	dst, _ := progress.NewService(memstore.New())
	var out bytes.Buffer
	if err := run(ctx, dst, []string{"import", "user-2", file}, &out); err != nil {
		t.Fatalf("import: %v", err)
	}
	if !strings.Contains(out.String(), "imported 2 of 2") {
		t.Fatalf("unexpected import output: %q", out.String())
	}

	out.Reset()
	if err := run(ctx, dst, []string{"list", "user-2"}, &out); err != nil {
		t.Fatalf("list: %v", err)
	}
	if !strings.Contains(out.String(), "Breaking Bad s01e01") || !strings.Contains(out.String(), "tt0111161") {
		t.Fatalf("unexpected list output: %q", out.String())
	}
}

func TestDeleteAndUnknownCommand(t *testing.T) {
	ctx := context.Background()
	svc, _ := progress.NewService(memstore.New())
	svc.RecordWatched(ctx, "user-1", models.VideoInfo{IMDBID: "tt1", Type: models.MediaTypeMovie})

	var out bytes.Buffer
	if err := run(ctx, svc, []string{"delete", "user-1", "tt1", "movie"}, &out); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if strings.TrimSpace(out.String()) != "removed 1 record(s)" {
		t.Fatalf("unexpected output: %q", out.String())
	}

	if err := run(ctx, svc, []string{"delete", "user-1"}, &out); err == nil {
		t.Fatalf("expected an argument error")
	}
	if err := run(ctx, svc, []string{"frobnicate"}, &out); err == nil {
		t.Fatalf("expected unknown command error")
	}
}
