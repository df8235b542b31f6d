package fetcher

import (
	"context"
	"iter"

	"github.com/wikitools/delsort/internal/types"
)

// PageSource is the read side of a wiki that the harvester needs.
type PageSource interface {
	// Search lazily yields titles matching a search query in a namespace.
	Search(ctx context.Context, query string, namespace int) iter.Seq2[string, error]

	// PageText returns the current revision of a page, or types.ErrPageNotFound.
	PageText(ctx context.Context, title string) (*types.Page, error)

	// DeletedRevision returns the newest deleted revision of a page, or
	// types.ErrRevisionUnavailable when there is none or it cannot be read.
	DeletedRevision(ctx context.Context, title string) (*types.Page, error)

	// LinkedPages returns the titles a page links to within a namespace.
	LinkedPages(ctx context.Context, title string, namespace int) ([]string, error)
}
