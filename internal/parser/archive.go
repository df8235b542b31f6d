package parser

import (
	"log/slog"
	"regexp"
	"strconv"

	"github.com/wikitools/delsort/internal/types"
)

// DefaultArchivePattern matches deletion-sorting archive titles. Group 1 is the
// topic, the optional group 2 the archive sequence number.
const DefaultArchivePattern = `Wikipedia:WikiProject Deletion sorting/(.*?)/archive(\d+)?`

// ArchiveMatcher decides whether a page title is a deletion-sorting archive.
type ArchiveMatcher struct {
	re     *regexp.Regexp
	logger *slog.Logger
}

// NewArchiveMatcher creates a matcher for pattern. An empty pattern selects
// DefaultArchivePattern.
func NewArchiveMatcher(pattern string, logger *slog.Logger) (*ArchiveMatcher, error) {
	if pattern == "" {
		pattern = DefaultArchivePattern
	}
	re, err := compile(pattern, 2)
	if err != nil {
		return nil, err
	}
	return &ArchiveMatcher{
		re:     re,
		logger: logger.With("component", "archive_matcher"),
	}, nil
}

// Match returns the dataset key for an archive title. The topic is taken
// verbatim; titles that do not match, or match with an empty topic, report false.
func (m *ArchiveMatcher) Match(title string) (types.DatasetKey, bool) {
	groups, present, ok := firstSubmatch(m.re, title)
	if !ok || groups[1] == "" {
		return types.DatasetKey{}, false
	}

	key := types.DatasetKey{Topic: groups[1]}
	if present[2] && groups[2] != "" {
		seq, err := strconv.Atoi(groups[2])
		if err != nil || seq < 0 {
			m.logger.Debug("archive sequence out of range", "title", title, "sequence", groups[2])
			return types.DatasetKey{}, false
		}
		key.Sequence = &seq
	}
	return key, true
}
