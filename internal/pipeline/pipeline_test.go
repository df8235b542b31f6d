package pipeline

import (
	"errors"
	"log/slog"
	"os"
	"testing"

	"github.com/wikitools/delsort/internal/types"
)

var testLogger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))

func normalize(t *testing.T, text string) string {
	t.Helper()
	rec, err := NewNormalizer(testLogger).Process(&types.ArticleRecord{Title: "T", Text: text})
	if err != nil {
		t.Fatalf("pipeline error: %v", err)
	}
	if rec == nil {
		t.Fatal("record unexpectedly dropped")
	}
	return rec.Text
}

func TestNormalizer(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"italics", "It is a ''tree''.", "It is a tree."},
		{"bold italics", "'''''Quercus''''' is a genus", "Quercus is a genus"},
		{"lone apostrophe kept", "It's a ''tree''.", "It's a tree."},
		{"br", "line one<br>line two", "line one line two"},
		{"br self closing", "a<br/>b", "a b"},
		{"br spaced", "a<br />b", "a b"},
		{"br upper", "a<BR>b<Br />c", "a b c"},
		{"named entity", "Fish &amp; chips", "Fish & chips"},
		{"entity encoded br", "a&lt;br&gt;b", "a b"},
		{"entity encoded quotes", "&#39;&#39;bold&#39;&#39;", "bold"},
		{"nbsp", "10&nbsp;km", "10\u00a0km"},
		{"other tags untouched", "<ref>x</ref>", "<ref>x</ref>"},
		{"empty", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := normalize(t, tt.in); got != tt.want {
				t.Errorf("normalize(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestNormalizerIdempotentOnCleanText(t *testing.T) {
	inputs := []string{
		"It is a tree.",
		"The oak is a tree in the genus Quercus.\n\n== Description ==\nOaks have lobed leaves.",
		"{{Infobox tree | name = Oak}} It's common.",
	}
	for _, in := range inputs {
		once := normalize(t, in)
		twice := normalize(t, once)
		if once != twice {
			t.Errorf("not idempotent: %q -> %q -> %q", in, once, twice)
		}
		if once != in {
			t.Errorf("clean text changed: %q -> %q", in, once)
		}
	}
}

func TestNormalizerStageOrder(t *testing.T) {
	p := NewNormalizer(testLogger)
	if p.Len() != 3 {
		t.Fatalf("expected 3 stages, got %d", p.Len())
	}
	want := []string{"entity_decode", "line_break", "quote_markup"}
	for i, mw := range p.middlewares {
		if mw.Name() != want[i] {
			t.Errorf("stage %d = %q, want %q", i, mw.Name(), want[i])
		}
	}
}

type failingMiddleware struct{}

func (failingMiddleware) Name() string { return "failing" }
func (failingMiddleware) Process(*types.ArticleRecord) (*types.ArticleRecord, error) {
	return nil, errors.New("boom")
}

type dropMiddleware struct{}

func (dropMiddleware) Name() string { return "drop" }
func (dropMiddleware) Process(*types.ArticleRecord) (*types.ArticleRecord, error) {
	return nil, nil
}

func TestPipelineError(t *testing.T) {
	p := New(testLogger)
	p.Use(&EntityDecodeMiddleware{})
	p.Use(failingMiddleware{})

	_, err := p.Process(&types.ArticleRecord{Title: "Oak", Text: "x"})
	var perr *types.PipelineError
	if !errors.As(err, &perr) {
		t.Fatalf("expected PipelineError, got %v", err)
	}
	if perr.Stage != "failing" || perr.Title != "Oak" {
		t.Errorf("unexpected error fields: %+v", perr)
	}
}

func TestPipelineDrop(t *testing.T) {
	p := New(testLogger)
	p.Use(dropMiddleware{})
	p.Use(failingMiddleware{})

	rec, err := p.Process(&types.ArticleRecord{Title: "Oak", Text: "x"})
	if err != nil || rec != nil {
		t.Errorf("expected dropped record, got %v, %v", rec, err)
	}
}
