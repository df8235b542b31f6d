package engine

import (
	"bytes"
	"context"
	"errors"
	"iter"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"

	"github.com/wikitools/delsort/internal/config"
	"github.com/wikitools/delsort/internal/observability"
	"github.com/wikitools/delsort/internal/storage"
	"github.com/wikitools/delsort/internal/types"
)

var testLogger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))

// fakeSource is an in-memory wiki.
type fakeSource struct {
	search  []string
	pages   map[string]string
	deleted map[string]string
	links   map[string][]string
	fail    map[string]error

	fetched []string
}

func (f *fakeSource) Search(ctx context.Context, query string, namespace int) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		for _, t := range f.search {
			if !yield(t, nil) {
				return
			}
		}
	}
}

func (f *fakeSource) PageText(ctx context.Context, title string) (*types.Page, error) {
	f.fetched = append(f.fetched, title)
	if err := f.fail[title]; err != nil {
		return nil, err
	}
	text, ok := f.pages[title]
	if !ok {
		return nil, types.ErrPageNotFound
	}
	return &types.Page{Title: title, Content: text}, nil
}

func (f *fakeSource) DeletedRevision(ctx context.Context, title string) (*types.Page, error) {
	text, ok := f.deleted[title]
	if !ok {
		return nil, types.ErrRevisionUnavailable
	}
	return &types.Page{Title: title, Content: text, Deleted: true}, nil
}

func (f *fakeSource) LinkedPages(ctx context.Context, title string, namespace int) ([]string, error) {
	if err := f.fail[title]; err != nil {
		return nil, err
	}
	return f.links[title], nil
}

const (
	biologyArchive = "Wikipedia:WikiProject Deletion sorting/Biology/archive12"
	afdPrefix      = "Wikipedia:Articles for deletion/"
)

func newTestHarvester(t *testing.T, src *fakeSource) (*Harvester, *storage.FileStorage, *observability.Metrics) {
	t.Helper()
	cfg := config.DefaultConfig()

	store, err := storage.NewFileStorage(t.TempDir(), testLogger)
	if err != nil {
		t.Fatalf("NewFileStorage: %v", err)
	}
	h, err := NewHarvester(cfg, src, store, testLogger)
	if err != nil {
		t.Fatalf("NewHarvester: %v", err)
	}
	m := observability.NewMetrics(testLogger)
	h.SetMetrics(m)
	return h, store, m
}

func readDataset(t *testing.T, store *storage.FileStorage, name string) ([]types.ArticleRecord, []string) {
	t.Helper()
	records, err := storage.ReadRecords(filepath.Join(store.Dir(), name+".json"))
	if err != nil {
		t.Fatalf("ReadRecords: %v", err)
	}
	unparsed, err := storage.ReadUnparsed(filepath.Join(store.Dir(), name+".err"))
	if err != nil {
		t.Fatalf("ReadUnparsed: %v", err)
	}
	return records, unparsed
}

// --- Harvester Tests ---

func TestHarvestBiologyArchive(t *testing.T) {
	src := &fakeSource{
		search: []string{biologyArchive},
		pages: map[string]string{
			afdPrefix + "Oak Tree": "===[[Oak Tree]]===\nDelete, not notable.",
			"Oak Tree":             "It''s a tree.",
		},
		links: map[string][]string{
			biologyArchive: {afdPrefix + "Oak Tree"},
		},
	}
	h, store, m := newTestHarvester(t, src)

	if err := h.Run(context.Background(), nil); err != nil {
		t.Fatalf("Run: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(store.Dir(), "Biology12.json"))
	if err != nil {
		t.Fatalf("read json: %v", err)
	}
	want := "[\n\t[\n\t\t\"Oak Tree\",\n\t\t\"Its a tree.\"\n\t]\n]"
	if string(data) != want {
		t.Errorf("Biology12.json = %q, want %q", data, want)
	}

	errData, err := os.ReadFile(filepath.Join(store.Dir(), "Biology12.err"))
	if err != nil {
		t.Fatalf("read err: %v", err)
	}
	if len(errData) != 0 {
		t.Errorf("Biology12.err = %q, want empty", errData)
	}

	snap := m.Snapshot()
	if snap["archives_processed"] != 1 || snap["articles_live"] != 1 || snap["datasets_written"] != 1 {
		t.Errorf("unexpected metrics: %v", snap)
	}
}

func TestHarvestRecordOrderAndUnparsed(t *testing.T) {
	src := &fakeSource{
		pages: map[string]string{
			afdPrefix + "Alpha":   "===[[Alpha]]===",
			afdPrefix + "Beta":    "no heading here",
			afdPrefix + "Gamma":   "===[[:Gamma]]===",
			afdPrefix + "Ghost":   "===[[Ghost]]===",
			afdPrefix + "Deleted": "===[[Deleted]]===",
			"Alpha":               "First.",
			"Gamma":               "Third.",
		},
		deleted: map[string]string{
			"Deleted": "Was here.",
		},
		links: map[string][]string{
			biologyArchive: {
				afdPrefix + "Gamma",
				"Wikipedia:WikiProject Deletion sorting/Biology",
				afdPrefix + "Beta",
				afdPrefix + "Missing discussion",
				afdPrefix + "Alpha",
				afdPrefix + "Ghost",
				afdPrefix + "Deleted",
				afdPrefix + "Gamma",
			},
		},
	}
	h, store, m := newTestHarvester(t, src)

	if err := h.Run(context.Background(), []string{biologyArchive}); err != nil {
		t.Fatalf("Run: %v", err)
	}

	records, unparsed := readDataset(t, store, "Biology12")
	wantRecords := []types.ArticleRecord{
		{Title: "Gamma", Text: "Third."},
		{Title: "Alpha", Text: "First."},
		{Title: "Deleted", Text: "Was here."},
	}
	if !slices.Equal(records, wantRecords) {
		t.Errorf("records = %v, want %v", records, wantRecords)
	}

	wantUnparsed := []string{
		afdPrefix + "Beta",
		afdPrefix + "Missing discussion",
		afdPrefix + "Ghost",
	}
	if !slices.Equal(unparsed, wantUnparsed) {
		t.Errorf("unparsed = %v, want %v", unparsed, wantUnparsed)
	}

	if got := m.EntriesSeen.Load(); got != 6 {
		t.Errorf("EntriesSeen = %d, want 6 (duplicate and non-discussion links skipped)", got)
	}
	if got := m.ArticlesDeleted.Load(); got != 1 {
		t.Errorf("ArticlesDeleted = %d, want 1", got)
	}
	if got := m.ArticlesUnresolvable.Load(); got != 1 {
		t.Errorf("ArticlesUnresolvable = %d, want 1", got)
	}
}

func TestHarvestWritesEmptyDataset(t *testing.T) {
	archive := "Wikipedia:WikiProject Deletion sorting/Chemistry/archive"
	src := &fakeSource{
		links: map[string][]string{
			archive: {afdPrefix + "Nothing"},
		},
	}
	h, store, _ := newTestHarvester(t, src)

	if err := h.ProcessArchive(context.Background(), archive); err != nil {
		t.Fatalf("ProcessArchive: %v", err)
	}

	records, unparsed := readDataset(t, store, "Chemistry")
	if len(records) != 0 {
		t.Errorf("records = %v, want none", records)
	}
	if !slices.Equal(unparsed, []string{afdPrefix + "Nothing"}) {
		t.Errorf("unparsed = %v", unparsed)
	}
}

func TestHarvestSkipsMalformedTitles(t *testing.T) {
	src := &fakeSource{
		search: []string{
			"Wikipedia:WikiProject Deletion sorting/Biology",
			biologyArchive,
		},
	}
	h, store, m := newTestHarvester(t, src)

	if err := h.Run(context.Background(), nil); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if got := m.ArchivesSkipped.Load(); got != 1 {
		t.Errorf("ArchivesSkipped = %d, want 1", got)
	}
	if _, err := os.Stat(filepath.Join(store.Dir(), "Biology12.json")); err != nil {
		t.Errorf("expected Biology12.json: %v", err)
	}

	err := h.ProcessArchive(context.Background(), "Talk:Biology")
	if !errors.Is(err, types.ErrMalformedTitle) {
		t.Errorf("err = %v, want ErrMalformedTitle", err)
	}
}

func TestHarvestMaxArchives(t *testing.T) {
	src := &fakeSource{
		search: []string{
			"Wikipedia:WikiProject Deletion sorting/Biology/archive1",
			"Wikipedia:WikiProject Deletion sorting/Biology/archive2",
			"Wikipedia:WikiProject Deletion sorting/Biology/archive3",
		},
	}
	h, _, m := newTestHarvester(t, src)
	h.cfg.MaxArchives = 2

	if err := h.Run(context.Background(), nil); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if got := m.ArchivesProcessed.Load(); got != 2 {
		t.Errorf("ArchivesProcessed = %d, want 2", got)
	}
}

func TestHarvestStopsOnSourceError(t *testing.T) {
	boom := &types.FetchError{URL: "https://wiki.test/w/api.php", StatusCode: 500, Err: errors.New("boom")}
	src := &fakeSource{
		pages: map[string]string{},
		links: map[string][]string{
			biologyArchive: {afdPrefix + "Broken"},
		},
		fail: map[string]error{
			afdPrefix + "Broken": boom,
		},
	}
	h, store, _ := newTestHarvester(t, src)

	err := h.Run(context.Background(), []string{biologyArchive})
	var fetchErr *types.FetchError
	if !errors.As(err, &fetchErr) {
		t.Fatalf("err = %v, want FetchError", err)
	}
	if _, statErr := os.Stat(filepath.Join(store.Dir(), "Biology12.json")); statErr == nil {
		t.Error("dataset written despite fatal error")
	}
}

func TestHarvestCancelled(t *testing.T) {
	src := &fakeSource{search: []string{biologyArchive}}
	h, _, _ := newTestHarvester(t, src)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := h.Run(ctx, nil); !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}

// --- Resolver Tests ---

func TestResolverOptions(t *testing.T) {
	src := &fakeSource{
		pages:   map[string]string{"Live": "A <br/>''live'' &amp; well page."},
		deleted: map[string]string{"Gone": "Old text."},
	}

	tests := []struct {
		name    string
		opts    ResolverOptions
		title   string
		want    string
		wantErr error
	}{
		{"normalized", ResolverOptions{Normalize: true}, "Live", "A  live & well page.", nil},
		{"raw", ResolverOptions{}, "Live", "A <br/>''live'' &amp; well page.", nil},
		{"deleted fallback", ResolverOptions{FetchDeleted: true}, "Gone", "Old text.", nil},
		{"deleted disabled", ResolverOptions{}, "Gone", "", types.ErrUnresolvable},
		{"nothing anywhere", ResolverOptions{FetchDeleted: true}, "Never", "", types.ErrUnresolvable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewResolver(src, tt.opts, testLogger)
			rec, err := r.Resolve(context.Background(), tt.title)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("err = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("Resolve: %v", err)
			}
			if rec.Text != tt.want {
				t.Errorf("Text = %q, want %q", rec.Text, tt.want)
			}
		})
	}
}

func TestResolverPropagatesOtherErrors(t *testing.T) {
	apiErr := &types.APIError{Code: "internal_api_error", Info: "database locked"}
	src := &fakeSource{fail: map[string]error{"Oak": apiErr}}
	r := NewResolver(src, ResolverOptions{FetchDeleted: true}, testLogger)

	_, err := r.Resolve(context.Background(), "Oak")
	if errors.Is(err, types.ErrUnresolvable) {
		t.Fatal("transport/API errors must not be reported as unresolvable")
	}
	var got *types.APIError
	if !errors.As(err, &got) || got.Code != "internal_api_error" {
		t.Errorf("err = %v, want the API error", err)
	}
}

func TestNonDiscussionLinksLogged(t *testing.T) {
	src := &fakeSource{
		pages: map[string]string{
			afdPrefix + "Oak Tree": "===[[Oak Tree]]===",
			"Oak Tree":             "An oak.",
		},
		links: map[string][]string{
			biologyArchive: {"Wikipedia:WikiProject Deletion sorting/Biology", afdPrefix + "Oak Tree"},
		},
	}
	store, err := storage.NewFileStorage(t.TempDir(), testLogger)
	if err != nil {
		t.Fatalf("NewFileStorage: %v", err)
	}
	var logs bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&logs, &slog.HandlerOptions{Level: slog.LevelDebug}))
	h, err := NewHarvester(config.DefaultConfig(), src, store, logger)
	if err != nil {
		t.Fatalf("NewHarvester: %v", err)
	}

	if err := h.ProcessArchive(context.Background(), biologyArchive); err != nil {
		t.Fatalf("ProcessArchive: %v", err)
	}
	if !strings.Contains(logs.String(), `msg="skipping non-discussion link" component=harvester title="Wikipedia:WikiProject Deletion sorting/Biology"`) {
		t.Errorf("skip not logged:\n%s", logs.String())
	}
	if slices.Contains(src.fetched, "Wikipedia:WikiProject Deletion sorting/Biology") {
		t.Error("non-discussion link was fetched")
	}
}

// --- Deduplicator Tests ---

func TestDeduplicator(t *testing.T) {
	d := NewDeduplicator(4)

	d.MarkSeen("Wikipedia:Articles for deletion/Oak_tree")
	if !d.IsSeen("Wikipedia:Articles for deletion/Oak tree") {
		t.Error("underscore and space forms should match")
	}
	if d.IsSeen("Wikipedia:Articles for deletion/Pine") {
		t.Error("unseen title reported as seen")
	}
}

func TestCanonicalizeTitle(t *testing.T) {
	tests := map[string]string{
		"oak tree":          "Oak tree",
		"  Oak__tree ":      "Oak tree",
		"Wikipedia:Foo_Bar": "Wikipedia:Foo Bar",
		"éclair":            "Éclair",
		"":                  "",
	}
	for in, want := range tests {
		if got := CanonicalizeTitle(in); got != want {
			t.Errorf("CanonicalizeTitle(%q) = %q, want %q", in, got, want)
		}
	}
}
