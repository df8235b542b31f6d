package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/wikitools/delsort/internal/fetcher"
	"github.com/wikitools/delsort/internal/observability"
	"github.com/wikitools/delsort/internal/pipeline"
	"github.com/wikitools/delsort/internal/types"
)

// ResolverOptions controls where article text may come from and whether it
// is normalized.
type ResolverOptions struct {
	// FetchDeleted falls back to the newest deleted revision when the
	// article no longer exists.
	FetchDeleted bool

	// Normalize runs the text through the normalization pipeline.
	Normalize bool
}

// Resolver turns an article title into a record holding the article's text.
type Resolver struct {
	source     fetcher.PageSource
	opts       ResolverOptions
	normalizer *pipeline.Pipeline
	metrics    *observability.Metrics
	logger     *slog.Logger
}

// NewResolver creates a Resolver reading from source.
func NewResolver(source fetcher.PageSource, opts ResolverOptions, logger *slog.Logger) *Resolver {
	r := &Resolver{
		source: source,
		opts:   opts,
		logger: logger.With("component", "resolver"),
	}
	if opts.Normalize {
		r.normalizer = pipeline.NewNormalizer(logger)
	}
	return r
}

// SetMetrics attaches a metrics sink. A nil sink disables counting.
func (r *Resolver) SetMetrics(m *observability.Metrics) {
	r.metrics = m
}

// Resolve fetches the article's current text, or the newest deleted revision
// when the article is gone. It returns types.ErrUnresolvable when neither is
// readable. Any other source error is returned as is.
func (r *Resolver) Resolve(ctx context.Context, title string) (*types.ArticleRecord, error) {
	page, err := r.source.PageText(ctx, title)
	switch {
	case err == nil:
		r.count(func(m *observability.Metrics) { m.ArticlesLive.Add(1) })

	case errors.Is(err, types.ErrPageNotFound) && r.opts.FetchDeleted:
		r.logger.Debug("article missing, trying deleted revisions", "title", title)
		page, err = r.source.DeletedRevision(ctx, title)
		if errors.Is(err, types.ErrRevisionUnavailable) {
			return nil, r.unresolvable(title, err)
		}
		if err != nil {
			return nil, err
		}
		r.count(func(m *observability.Metrics) { m.ArticlesDeleted.Add(1) })

	case errors.Is(err, types.ErrPageNotFound):
		return nil, r.unresolvable(title, err)

	default:
		return nil, err
	}

	rec := &types.ArticleRecord{Title: page.Title, Text: page.Content}
	if r.normalizer == nil {
		return rec, nil
	}

	out, err := r.normalizer.Process(rec)
	if err != nil {
		return nil, err
	}
	if out == nil {
		return nil, r.unresolvable(title, errors.New("dropped by normalizer"))
	}
	return out, nil
}

func (r *Resolver) unresolvable(title string, cause error) error {
	r.count(func(m *observability.Metrics) { m.ArticlesUnresolvable.Add(1) })
	return fmt.Errorf("%w: %s: %v", types.ErrUnresolvable, title, cause)
}

func (r *Resolver) count(fn func(*observability.Metrics)) {
	if r.metrics != nil {
		fn(r.metrics)
	}
}
