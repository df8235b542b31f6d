package parser

import (
	"regexp"

	"github.com/wikitools/delsort/internal/types"
)

// DefaultEntryPattern matches the level-3 heading that opens a deletion
// discussion, e.g. ===[[Oak Tree]]=== or ===[[:Oak Tree]]===.
const DefaultEntryPattern = `===\[\[:?(.*?)\]\]===`

// EntryExtractor pulls the nominated article title out of a discussion page.
// Only the first heading is used; nested or piped links are not repaired.
type EntryExtractor struct {
	re *regexp.Regexp
}

// NewEntryExtractor creates an extractor for pattern. An empty pattern selects
// DefaultEntryPattern.
func NewEntryExtractor(pattern string) (*EntryExtractor, error) {
	if pattern == "" {
		pattern = DefaultEntryPattern
	}
	re, err := compile(pattern, 1)
	if err != nil {
		return nil, err
	}
	return &EntryExtractor{re: re}, nil
}

// Extract returns the article title referenced by entry, or false when the
// content has no matching heading.
func (e *EntryExtractor) Extract(entry *types.Page) (string, bool) {
	if entry == nil {
		return "", false
	}
	groups, _, ok := firstSubmatch(e.re, entry.Content)
	if !ok || groups[1] == "" {
		return "", false
	}
	return groups[1], true
}
