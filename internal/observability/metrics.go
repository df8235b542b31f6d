package observability

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"
)

// Metrics tracks counters for a harvest run.
type Metrics struct {
	// API metrics
	APIRequests     atomic.Int64
	APIErrors       atomic.Int64
	BytesDownloaded atomic.Int64

	// Archive metrics
	ArchivesProcessed atomic.Int64
	ArchivesSkipped   atomic.Int64

	// Entry metrics
	EntriesSeen          atomic.Int64
	EntriesUnparsed      atomic.Int64
	ArticlesLive         atomic.Int64
	ArticlesDeleted      atomic.Int64
	ArticlesUnresolvable atomic.Int64

	// Output metrics
	DatasetsWritten atomic.Int64

	logger *slog.Logger
}

// NewMetrics creates a new Metrics instance.
func NewMetrics(logger *slog.Logger) *Metrics {
	return &Metrics{
		logger: logger.With("component", "metrics"),
	}
}

type metric struct {
	name  string
	key   string
	help  string
	value int64
}

func (m *Metrics) all() []metric {
	return []metric{
		{"delsort_api_requests_total", "api_requests", "Total API requests made", m.APIRequests.Load()},
		{"delsort_api_errors_total", "api_errors", "Total failed API requests", m.APIErrors.Load()},
		{"delsort_bytes_downloaded_total", "bytes_downloaded", "Total response bytes read", m.BytesDownloaded.Load()},
		{"delsort_archives_processed_total", "archives_processed", "Archive pages harvested", m.ArchivesProcessed.Load()},
		{"delsort_archives_skipped_total", "archives_skipped", "Search results that were not archive pages", m.ArchivesSkipped.Load()},
		{"delsort_entries_seen_total", "entries_seen", "Deletion discussions visited", m.EntriesSeen.Load()},
		{"delsort_entries_unparsed_total", "entries_unparsed", "Entries recorded as unparsed", m.EntriesUnparsed.Load()},
		{"delsort_articles_live_total", "articles_live", "Articles read from the current revision", m.ArticlesLive.Load()},
		{"delsort_articles_deleted_total", "articles_deleted", "Articles read from a deleted revision", m.ArticlesDeleted.Load()},
		{"delsort_articles_unresolvable_total", "articles_unresolvable", "Articles with no readable revision", m.ArticlesUnresolvable.Load()},
		{"delsort_datasets_written_total", "datasets_written", "Datasets written to storage", m.DatasetsWritten.Load()},
	}
}

// ServeHTTP serves metrics in Prometheus text exposition format.
func (m *Metrics) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")

	for _, mt := range m.all() {
		fmt.Fprintf(w, "# HELP %s %s\n", mt.name, mt.help)
		fmt.Fprintf(w, "# TYPE %s counter\n", mt.name)
		fmt.Fprintf(w, "%s %d\n", mt.name, mt.value)
	}
}

// StartServer starts the metrics HTTP server in the background. The server
// shuts down when ctx is cancelled.
func (m *Metrics) StartServer(ctx context.Context, port int, path string) error {
	mux := http.NewServeMux()
	mux.Handle(path, m)
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprint(w, "ok")
	})

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	m.logger.Info("metrics server starting", "addr", srv.Addr, "path", path)

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			m.logger.Error("metrics server error", "error", err)
		}
	}()
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	return nil
}

// Snapshot returns all metrics as a map.
func (m *Metrics) Snapshot() map[string]int64 {
	all := m.all()
	snap := make(map[string]int64, len(all))
	for _, mt := range all {
		snap[mt.key] = mt.value
	}
	return snap
}
