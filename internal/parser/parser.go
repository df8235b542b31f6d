// Package parser recognizes deletion-sorting archive titles and pulls the
// nominated article out of a deletion discussion's wikitext.
package parser

import (
	"github.com/wikitools/delsort/internal/types"
)

// KeyMatcher derives a dataset key from an archive page title.
type KeyMatcher interface {
	Match(title string) (types.DatasetKey, bool)
}

// RefExtractor finds the article a discussion entry is about.
type RefExtractor interface {
	Extract(entry *types.Page) (string, bool)
}
