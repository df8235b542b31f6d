package engine

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// Deduplicator tracks visited page titles to avoid processing a discussion
// twice when an archive links it more than once. It is not safe for
// concurrent use.
type Deduplicator struct {
	seen map[string]struct{}
}

// NewDeduplicator creates a new Deduplicator with the given estimated capacity.
func NewDeduplicator(estimatedCapacity int) *Deduplicator {
	return &Deduplicator{
		seen: make(map[string]struct{}, estimatedCapacity),
	}
}

// IsSeen returns true if the title (after canonicalization) has been seen before.
func (d *Deduplicator) IsSeen(title string) bool {
	_, ok := d.seen[CanonicalizeTitle(title)]
	return ok
}

// MarkSeen marks a title as seen.
func (d *Deduplicator) MarkSeen(title string) {
	d.seen[CanonicalizeTitle(title)] = struct{}{}
}

// CanonicalizeTitle normalizes a page title the way MediaWiki does for
// lookups:
//   - underscores become spaces
//   - runs of spaces collapse, surrounding space is trimmed
//   - the first letter is uppercased
func CanonicalizeTitle(title string) string {
	title = strings.ReplaceAll(title, "_", " ")
	title = strings.Join(strings.Fields(title), " ")
	if title == "" {
		return title
	}
	r, size := utf8.DecodeRuneInString(title)
	return string(unicode.ToUpper(r)) + title[size:]
}
