package engine

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"slices"
	"strings"

	"github.com/wikitools/delsort/internal/config"
	"github.com/wikitools/delsort/internal/fetcher"
	"github.com/wikitools/delsort/internal/observability"
	"github.com/wikitools/delsort/internal/parser"
	"github.com/wikitools/delsort/internal/storage"
	"github.com/wikitools/delsort/internal/types"
)

// Harvester walks deletion sorting archives and writes one dataset per
// archive. Everything runs sequentially on the calling goroutine, so records
// keep the order in which the archive links their discussions.
type Harvester struct {
	source    fetcher.PageSource
	matcher   parser.KeyMatcher
	extractor parser.RefExtractor
	resolver  *Resolver
	store     storage.Storage

	cfg            config.HarvestConfig
	linksNamespace int

	metrics *observability.Metrics
	logger  *slog.Logger
}

// NewHarvester wires a Harvester from configuration.
func NewHarvester(cfg *config.Config, source fetcher.PageSource, store storage.Storage, logger *slog.Logger) (*Harvester, error) {
	matcher, err := parser.NewArchiveMatcher(cfg.Harvest.ArchivePattern, logger)
	if err != nil {
		return nil, fmt.Errorf("archive pattern: %w", err)
	}
	extractor, err := parser.NewEntryExtractor(cfg.Harvest.EntryPattern)
	if err != nil {
		return nil, fmt.Errorf("entry pattern: %w", err)
	}

	resolver := NewResolver(source, ResolverOptions{
		FetchDeleted: cfg.Harvest.FetchDeleted,
		Normalize:    cfg.Harvest.Normalize,
	}, logger)

	return &Harvester{
		source:         source,
		matcher:        matcher,
		extractor:      extractor,
		resolver:       resolver,
		store:          store,
		cfg:            cfg.Harvest,
		linksNamespace: cfg.Links.Namespace,
		logger:         logger.With("component", "harvester"),
	}, nil
}

// SetMetrics attaches a metrics sink. A nil sink disables counting.
func (h *Harvester) SetMetrics(m *observability.Metrics) {
	h.metrics = m
	h.resolver.SetMetrics(m)
}

// Run harvests the given archive titles, or every search result when titles
// is empty. Titles that are not archive pages are logged and skipped.
// Per-entry failures end up in the dataset's unparsed list; any other error
// stops the run.
func (h *Harvester) Run(ctx context.Context, titles []string) error {
	var archives iter.Seq2[string, error]
	if len(titles) > 0 {
		archives = func(yield func(string, error) bool) {
			for _, t := range titles {
				if !yield(t, nil) {
					return
				}
			}
		}
	} else {
		h.logger.Info("searching for archives", "query", h.cfg.SearchQuery, "namespace", h.cfg.SearchNamespace)
		archives = h.source.Search(ctx, h.cfg.SearchQuery, h.cfg.SearchNamespace)
	}

	processed := 0
	for title, err := range archives {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		err = h.ProcessArchive(ctx, title)
		if errors.Is(err, types.ErrMalformedTitle) {
			h.logger.Warn("malformed archive title", "title", title)
			h.count(func(m *observability.Metrics) { m.ArchivesSkipped.Add(1) })
			continue
		}
		if err != nil {
			return fmt.Errorf("archive %q: %w", title, err)
		}

		processed++
		if h.cfg.MaxArchives > 0 && processed >= h.cfg.MaxArchives {
			h.logger.Info("archive limit reached", "max_archives", h.cfg.MaxArchives)
			break
		}
	}

	return nil
}

// ProcessArchive builds and writes the dataset for one archive page. It
// returns types.ErrMalformedTitle when title is not an archive page. The
// dataset is written even when no entry produced a record.
func (h *Harvester) ProcessArchive(ctx context.Context, title string) error {
	key, ok := h.matcher.Match(title)
	if !ok {
		return fmt.Errorf("%w: %s", types.ErrMalformedTitle, title)
	}

	h.logger.Info("processing archive", "title", title, "dataset", key.Name())

	links, err := h.source.LinkedPages(ctx, title, h.linksNamespace)
	if err != nil {
		return err
	}

	ds := types.NewDataset(key)
	dedup := NewDeduplicator(len(links))

	for _, link := range links {
		if !strings.HasPrefix(link, h.cfg.EntryPrefix) {
			h.logger.Debug("skipping non-discussion link", "title", link)
			continue
		}
		if dedup.IsSeen(link) {
			continue
		}
		dedup.MarkSeen(link)

		if err := ctx.Err(); err != nil {
			return err
		}
		if err := h.processEntry(ctx, link, ds); err != nil {
			return err
		}
	}

	if err := h.store.Write(key, ds); err != nil {
		return err
	}
	h.count(func(m *observability.Metrics) {
		m.ArchivesProcessed.Add(1)
		m.DatasetsWritten.Add(1)
	})

	h.logger.Info("archive complete",
		"dataset", key.Name(),
		"records", ds.Len(),
		"unparsed", len(ds.Unparsed),
	)
	return nil
}

// processEntry adds the article behind one discussion page to ds, or records
// the discussion as unparsed. Only errors that should stop the run are
// returned.
func (h *Harvester) processEntry(ctx context.Context, title string, ds *types.Dataset) error {
	h.count(func(m *observability.Metrics) { m.EntriesSeen.Add(1) })
	h.logger.Debug("processing entry", "title", title)

	entry, err := h.source.PageText(ctx, title)
	if errors.Is(err, types.ErrPageNotFound) {
		h.unparsed(ds, title, "discussion page missing")
		return nil
	}
	if err != nil {
		return err
	}

	article, ok := h.extractor.Extract(entry)
	if !ok {
		h.unparsed(ds, entry.Title, "no article heading")
		return nil
	}

	rec, err := h.resolver.Resolve(ctx, article)
	if errors.Is(err, types.ErrUnresolvable) {
		h.unparsed(ds, entry.Title, "article text unavailable", "article", article)
		return nil
	}
	if err != nil {
		return err
	}

	ds.Add(*rec)
	return nil
}

func (h *Harvester) unparsed(ds *types.Dataset, title, reason string, attrs ...any) {
	h.count(func(m *observability.Metrics) { m.EntriesUnparsed.Add(1) })
	h.logger.Warn("unparsed entry", slices.Concat([]any{"title", title, "reason", reason}, attrs)...)
	ds.AddUnparsed(title)
}

func (h *Harvester) count(fn func(*observability.Metrics)) {
	if h.metrics != nil {
		fn(h.metrics)
	}
}
