package engine

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/wikitools/delsort/internal/config"
	"github.com/wikitools/delsort/internal/fetcher"
	"github.com/wikitools/delsort/internal/observability"
	"github.com/wikitools/delsort/internal/storage"
	"github.com/wikitools/delsort/internal/types"
)

// miniWiki serves a tiny deletion sorting archive over the Action API.
func miniWiki(t *testing.T) *httptest.Server {
	t.Helper()

	current := map[string]string{
		afdPrefix + "Oak Tree":  "===[[Oak Tree]]===\n:Delete.",
		afdPrefix + "Pine Cone": "===[[:Pine cone]]===\n:Keep.",
		afdPrefix + "Piped":     "===[[Bar|Baz]]===\n:Merge.",
		"Bar":                   "Not the nominated article.",
		"Oak Tree":              "It''s a tree.",
	}
	deleted := map[string]string{
		"Pine cone": "A cone &amp; a seed<br>holder.",
	}

	revisions := func(text string) []map[string]any {
		return []map[string]any{{"slots": map[string]any{"main": map[string]any{"content": text}}}}
	}

	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		var resp map[string]any
		switch {
		case q.Get("list") == "search":
			resp = map[string]any{"query": map[string]any{"search": []map[string]any{
				{"title": "Wikipedia:WikiProject Deletion sorting/Biology"},
				{"title": biologyArchive},
			}}}
		case q.Get("prop") == "links":
			resp = map[string]any{"query": map[string]any{"pages": []map[string]any{{
				"title": q.Get("titles"),
				"links": []map[string]any{
					{"ns": 4, "title": afdPrefix + "Oak Tree"},
					{"ns": 4, "title": "Wikipedia:WikiProject Deletion sorting/Biology"},
					{"ns": 4, "title": afdPrefix + "Pine Cone"},
					{"ns": 4, "title": afdPrefix + "Piped"},
				},
			}}}}
		case q.Get("prop") == "revisions":
			title := q.Get("titles")
			if strings.Contains(title, "|") {
				t.Errorf("several titles sent in one query: %q", title)
			}
			page := map[string]any{"title": title}
			if text, ok := current[title]; ok {
				page["revisions"] = revisions(text)
			} else {
				page["missing"] = true
			}
			resp = map[string]any{"query": map[string]any{"pages": []map[string]any{page}}}
		case q.Get("prop") == "deletedrevisions":
			title := q.Get("titles")
			page := map[string]any{"title": title, "missing": true}
			if text, ok := deleted[title]; ok {
				page["deletedrevisions"] = revisions(text)
			}
			resp = map[string]any{"query": map[string]any{"pages": []map[string]any{page}}}
		default:
			t.Errorf("unexpected request: %s", r.URL.RawQuery)
			resp = map[string]any{"error": map[string]any{"code": "badvalue", "info": "unexpected"}}
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	}))
}

func TestHarvestEndToEnd(t *testing.T) {
	srv := miniWiki(t)
	defer srv.Close()

	cfg := config.DefaultConfig()
	cfg.Wiki.APIURL = srv.URL + "/w/api.php"
	cfg.Storage.OutputPath = t.TempDir()

	client, err := fetcher.NewClient(cfg, testLogger)
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	defer client.Close()

	store, err := storage.New(&cfg.Storage, testLogger)
	if err != nil {
		t.Fatalf("storage.New: %v", err)
	}
	defer store.Close()

	h, err := NewHarvester(cfg, client, store, testLogger)
	if err != nil {
		t.Fatalf("NewHarvester: %v", err)
	}
	metrics := observability.NewMetrics(testLogger)
	h.SetMetrics(metrics)
	client.SetMetrics(metrics)

	if err := h.Run(context.Background(), nil); err != nil {
		t.Fatalf("Run: %v", err)
	}

	records, err := storage.ReadRecords(filepath.Join(cfg.Storage.OutputPath, "Biology12.json"))
	if err != nil {
		t.Fatalf("ReadRecords: %v", err)
	}
	want := []types.ArticleRecord{
		{Title: "Oak Tree", Text: "Its a tree."},
		{Title: "Pine cone", Text: "A cone & a seed holder."},
	}
	if !slices.Equal(records, want) {
		t.Errorf("records = %v, want %v", records, want)
	}

	errFile, err := os.ReadFile(filepath.Join(cfg.Storage.OutputPath, "Biology12.err"))
	if err != nil {
		t.Fatalf("read .err: %v", err)
	}
	if got := string(errFile); got != afdPrefix+"Piped" {
		t.Errorf(".err = %q, want the piped discussion", got)
	}

	if got := metrics.ArchivesSkipped.Load(); got != 1 {
		t.Errorf("ArchivesSkipped = %d, want 1", got)
	}
	if got := metrics.APIRequests.Load(); got == 0 {
		t.Error("client requests were not counted")
	}
}

// TestLiveHarvest harvests one real archive. It only runs when
// DELSORT_TEST_LIVE_ARCHIVE names an archive page on English Wikipedia.
func TestLiveHarvest(t *testing.T) {
	archive := os.Getenv("DELSORT_TEST_LIVE_ARCHIVE")
	if testing.Short() || archive == "" {
		t.Skip("set DELSORT_TEST_LIVE_ARCHIVE to run against Wikipedia")
	}

	cfg := config.DefaultConfig()
	cfg.Storage.OutputPath = t.TempDir()
	cfg.Harvest.FetchDeleted = false

	client, err := fetcher.NewClient(cfg, testLogger)
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	defer client.Close()

	store, err := storage.NewFileStorage(cfg.Storage.OutputPath, testLogger)
	if err != nil {
		t.Fatalf("NewFileStorage: %v", err)
	}

	h, err := NewHarvester(cfg, client, store, testLogger)
	if err != nil {
		t.Fatalf("NewHarvester: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	if err := h.Run(ctx, []string{archive}); err != nil {
		t.Fatalf("Run: %v", err)
	}

	entries, err := os.ReadDir(cfg.Storage.OutputPath)
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	for _, e := range entries {
		t.Logf("wrote %s", e.Name())
	}
	if len(entries) != 2 {
		t.Errorf("expected a .json and a .err file, got %d files", len(entries))
	}
}
