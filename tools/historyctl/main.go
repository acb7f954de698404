// Command historyctl inspects and moves watch history on the configured backend.
//
//	historyctl [-config path] users
//	historyctl [-config path] history <user> [limit]
//	historyctl [-config path] list <user>
//	historyctl [-config path] delete <user> <imdbID> [movie|series]
//	historyctl [-config path] export <user> > history.json
//	historyctl [-config path] import <user> history.json
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"strconv"
	"time"

	"bingewatch/config"
	"bingewatch/internal/storage"
	"bingewatch/models"
	"bingewatch/services/progress"
)

func main() {
	configPath := flag.String("config", "", "settings file (defaults to BINGEWATCH_CONFIG or data/settings.yaml)")
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "usage: historyctl [-config path] users|history|list|delete|export|import ...\n")
		flag.PrintDefaults()
	}
	flag.Parse()
	if flag.NArg() == 0 {
		flag.Usage()
		os.Exit(2)
	}

	_ = config.LoadDotEnv()
	settings, err := config.NewManager(config.ResolvePath(*configPath)).Load()
	if err != nil {
		log.Fatalf("load settings: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	store, err := storage.Open(ctx, settings.Storage)
	if err != nil {
		log.Fatalf("open store: %v", err)
	}
	defer store.Close()

	svc, err := progress.NewService(store)
	if err != nil {
		log.Fatalf("init history: %v", err)
	}

	if err := run(ctx, svc, flag.Args(), os.Stdout); err != nil {
		log.Fatalf("%s: %v", flag.Arg(0), err)
	}
}

func run(ctx context.Context, svc *progress.Service, args []string, out io.Writer) error {
	cmd, rest := args[0], args[1:]
	need := func(n int) error {
		if len(rest) < n {
			return fmt.Errorf("expected %d argument(s), got %d", n, len(rest))
		}
		return nil
	}

	switch cmd {
	case "users":
		users, err := svc.Users(ctx)
		if err != nil {
			return err
		}
		for _, u := range users {
			fmt.Fprintln(out, u)
		}
		return nil

	case "history":
		if err := need(1); err != nil {
			return err
		}
		limit := 0
		if len(rest) > 1 {
			n, err := strconv.Atoi(rest[1])
			if err != nil {
				return fmt.Errorf("limit: %w", err)
			}
			limit = n
		}
		items, err := svc.GetHistory(ctx, rest[0], limit)
		if err != nil {
			return err
		}
		printRecords(out, items)
		return nil

	case "list":
		if err := need(1); err != nil {
			return err
		}
		items, err := svc.ListAll(ctx, rest[0])
		if err != nil {
			return err
		}
		printRecords(out, items)
		return nil

	case "delete":
		if err := need(2); err != nil {
			return err
		}
		var mediaType models.MediaType
		if len(rest) > 2 {
			t, err := models.ParseMediaType(rest[2])
			if err != nil {
				return err
			}
			mediaType = t
		}
		n, err := svc.DeleteShow(ctx, rest[0], rest[1], mediaType)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "removed %d record(s)\n", n)
		return nil

	case "export":
		if err := need(1); err != nil {
			return err
		}
		items, err := svc.ListAll(ctx, rest[0])
		if err != nil {
			return err
		}
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(items)

	case "import":
		if err := need(2); err != nil {
			return err
		}
		data, err := os.ReadFile(rest[1])
		if err != nil {
			return err
		}
		var items []models.VideoInfo
		if err := json.Unmarshal(data, &items); err != nil {
			return fmt.Errorf("decode %s: %w", rest[1], err)
		}
		n, err := svc.Import(ctx, rest[0], items)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "imported %d of %d record(s)\n", n, len(items))
		return nil
	}
	return fmt.Errorf("unknown command %q", cmd)
}

func printRecords(out io.Writer, items []models.VideoInfo) {
	for _, v := range items {
		when := time.UnixMilli(v.Timestamp).Format(time.DateTime)
		label := v.Title
		if v.IsSeries() {
			label = fmt.Sprintf("%s %s", v.Title, models.EpisodeCode(v.Season, v.Episode))
		}
		pct := ""
		if v.Progress != nil {
			pct = fmt.Sprintf(" %3.0f%%", v.Progress.Fraction()*100)
		}
		fmt.Fprintf(out, "%s  %-10s %-7s %s%s\n", when, v.IMDBID, v.Type, label, pct)
	}
}
