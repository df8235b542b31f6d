package pipeline

import (
	"regexp"

	"golang.org/x/net/html"

	"github.com/wikitools/delsort/internal/types"
)

// EntityDecodeMiddleware decodes HTML character entities (&amp;, &#39;, &nbsp; ...).
// It must run before any markup stripping: entities can spell out markup.
type EntityDecodeMiddleware struct{}

func (m *EntityDecodeMiddleware) Name() string { return "entity_decode" }

func (m *EntityDecodeMiddleware) Process(rec *types.ArticleRecord) (*types.ArticleRecord, error) {
	rec.Text = html.UnescapeString(rec.Text)
	return rec, nil
}

// LineBreakMiddleware replaces <br>, <br/> and <br /> (any case) with a space.
type LineBreakMiddleware struct {
	re *regexp.Regexp
}

func NewLineBreakMiddleware() *LineBreakMiddleware {
	return &LineBreakMiddleware{
		re: regexp.MustCompile(`(?i)<br ?/?>`),
	}
}

func (m *LineBreakMiddleware) Name() string { return "line_break" }

func (m *LineBreakMiddleware) Process(rec *types.ArticleRecord) (*types.ArticleRecord, error) {
	rec.Text = m.re.ReplaceAllString(rec.Text, " ")
	return rec, nil
}

// QuoteMarkupMiddleware removes runs of two or more single quotes, which wiki
// markup uses for italics and bold. A lone apostrophe is kept.
type QuoteMarkupMiddleware struct {
	re *regexp.Regexp
}

func NewQuoteMarkupMiddleware() *QuoteMarkupMiddleware {
	return &QuoteMarkupMiddleware{
		re: regexp.MustCompile(`''+`),
	}
}

func (m *QuoteMarkupMiddleware) Name() string { return "quote_markup" }

func (m *QuoteMarkupMiddleware) Process(rec *types.ArticleRecord) (*types.ArticleRecord, error) {
	rec.Text = m.re.ReplaceAllString(rec.Text, "")
	return rec, nil
}
