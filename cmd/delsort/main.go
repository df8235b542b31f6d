package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/wikitools/delsort/internal/config"
	"github.com/wikitools/delsort/internal/engine"
	"github.com/wikitools/delsort/internal/fetcher"
	"github.com/wikitools/delsort/internal/observability"
	"github.com/wikitools/delsort/internal/storage"
)

var (
	cfgFile     string
	verbose     bool
	outputPath  string
	storageType string
	linksMode   string
	maxArchives int
	noDeleted   bool
	noNormalize bool
	showLimit   int
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "delsort",
		Short: "Deletion sorting dataset harvester",
		Long: `delsort builds training data from Wikipedia's deletion sorting archives.

For every "WikiProject Deletion sorting/<topic>/archive<N>" page it follows the
linked "Articles for deletion" discussions, fetches the text of each discussed
article (falling back to its newest deleted revision) and writes one dataset
per archive: <topic><N>.json with [title, text] pairs and <topic><N>.err with
the discussions that yielded no article.`,
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	rootCmd.AddCommand(harvestCmd())
	rootCmd.AddCommand(showCmd())
	rootCmd.AddCommand(configCmd())
	rootCmd.AddCommand(versionCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// harvestCmd creates the "harvest" subcommand.
func harvestCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "harvest [archive-title...]",
		Short: "Harvest datasets from deletion sorting archives",
		Long: `Harvest every archive page found by the configured search, or only the
archive pages named on the command line.`,
		RunE: runHarvest,
	}

	cmd.Flags().StringVarP(&outputPath, "output", "o", "", "output directory for .json/.err files")
	cmd.Flags().StringVar(&storageType, "storage", "", "storage backend: file, mongo, multi")
	cmd.Flags().StringVar(&linksMode, "links-mode", "", "link enumeration: api, html")
	cmd.Flags().IntVarP(&maxArchives, "max-archives", "m", 0, "stop after this many archives (0 = unlimited)")
	cmd.Flags().BoolVar(&noDeleted, "no-deleted", false, "do not fall back to deleted revisions")
	cmd.Flags().BoolVar(&noNormalize, "no-normalize", false, "store article text without normalization")

	return cmd
}

// runHarvest executes the harvest command.
func runHarvest(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	applyCLIOverrides(cfg)

	if err := config.Validate(cfg); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	logger := observability.NewLogger(os.Stderr, cfg.Logging, verbose)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info("starting harvest",
		"api", cfg.Wiki.APIURL,
		"archives", len(args),
		"storage", cfg.Storage.Type,
		"output", cfg.Storage.OutputPath,
		"fetch_deleted", cfg.Harvest.FetchDeleted,
		"normalize", cfg.Harvest.Normalize,
	)

	metrics := observability.NewMetrics(logger)
	if cfg.Metrics.Enabled {
		if err := metrics.StartServer(ctx, cfg.Metrics.Port, cfg.Metrics.Path); err != nil {
			logger.Warn("failed to start metrics server", "error", err)
		}
	}

	client, err := fetcher.NewClient(cfg, logger)
	if err != nil {
		return fmt.Errorf("create client: %w", err)
	}
	defer client.Close()
	client.SetMetrics(metrics)

	if client.HasCredentials() {
		if err := client.Login(ctx); err != nil {
			return err
		}
	} else if cfg.Harvest.FetchDeleted {
		logger.Warn("no credentials configured; deleted revisions will usually be unavailable")
	}

	store, err := storage.New(&cfg.Storage, logger)
	if err != nil {
		return fmt.Errorf("create storage: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Error("close storage", "error", err)
		}
	}()

	harvester, err := engine.NewHarvester(cfg, client, store, logger)
	if err != nil {
		return err
	}
	harvester.SetMetrics(metrics)

	start := time.Now()
	runErr := harvester.Run(ctx, args)
	elapsed := time.Since(start)
	stats := metrics.Snapshot()

	logger.Info("harvest complete",
		"elapsed", elapsed,
		"archives", stats["archives_processed"],
		"entries", stats["entries_seen"],
		"unparsed", stats["entries_unparsed"],
		"api_requests", stats["api_requests"],
		"error", runErr,
	)

	fmt.Printf("\nHarvest finished in %s\n", elapsed.Round(time.Millisecond))
	fmt.Printf("   Archives:  %d written, %d skipped\n", stats["archives_processed"], stats["archives_skipped"])
	fmt.Printf("   Entries:   %d seen, %d unparsed\n", stats["entries_seen"], stats["entries_unparsed"])
	fmt.Printf("   Articles:  %d live, %d deleted, %d unavailable\n",
		stats["articles_live"], stats["articles_deleted"], stats["articles_unresolvable"])
	fmt.Printf("   API:       %d requests, %d errors, %d bytes\n",
		stats["api_requests"], stats["api_errors"], stats["bytes_downloaded"])
	if cfg.Storage.Type != "mongo" {
		fmt.Printf("   Output:    %s\n", cfg.Storage.OutputPath)
	}

	return runErr
}

// showCmd creates the "show" subcommand for inspecting a written dataset.
func showCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <dataset-name>",
		Short: "Print a summary of a written dataset",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			logger := observability.NewLogger(os.Stderr, cfg.Logging, verbose)

			loader, closeFn, err := openLoader(cfg, logger)
			if err != nil {
				return err
			}
			defer closeFn()

			ds, err := loader.Load(cmd.Context(), args[0])
			if err != nil {
				return fmt.Errorf("load dataset %q: %w", args[0], err)
			}

			fmt.Printf("Dataset %s: %d records, %d unparsed\n", args[0], ds.Len(), len(ds.Unparsed))
			for i, rec := range ds.Records {
				if showLimit > 0 && i >= showLimit {
					fmt.Printf("  ... %d more\n", ds.Len()-i)
					break
				}
				fmt.Printf("  %-40s %s\n", rec.Title, preview(rec.Text, 60))
			}
			if len(ds.Unparsed) > 0 {
				fmt.Println("Unparsed:")
				for _, title := range ds.Unparsed {
					fmt.Printf("  %s\n", title)
				}
			}
			return nil
		},
	}
	cmd.Flags().IntVarP(&showLimit, "limit", "n", 20, "maximum records to list (0 = all)")
	return cmd
}

// openLoader opens the backend datasets are read from: mongo when that is the
// only configured sink, otherwise the output directory.
func openLoader(cfg *config.Config, logger *slog.Logger) (storage.Loader, func(), error) {
	if cfg.Storage.Type == "mongo" {
		s, err := storage.NewMongoStorage(cfg.Storage.MongoURI, cfg.Storage.MongoDatabase, cfg.Storage.MongoCollection, logger)
		if err != nil {
			return nil, nil, err
		}
		return s, func() { _ = s.Close() }, nil
	}
	s, err := storage.NewFileStorage(cfg.Storage.OutputPath, logger)
	if err != nil {
		return nil, nil, err
	}
	return s, func() { _ = s.Close() }, nil
}

func preview(text string, n int) string {
	text = strings.Join(strings.Fields(text), " ")
	r := []rune(text)
	if len(r) <= n {
		return text
	}
	return string(r[:n]) + "..."
}

// versionCmd creates the "version" subcommand.
func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("delsort %s\n", config.Version)
		},
	}
}

// configCmd creates the "config" subcommand for inspecting configuration.
func configCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Show current configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return err
			}
			password := ""
			if cfg.Wiki.Password != "" {
				password = "(set)"
			}
			fmt.Printf("Wiki:\n")
			fmt.Printf("  API URL:           %s\n", cfg.Wiki.APIURL)
			fmt.Printf("  User Agent:        %s\n", cfg.Wiki.UserAgent)
			fmt.Printf("  Username:          %s\n", cfg.Wiki.Username)
			fmt.Printf("  Password:          %s\n", password)
			fmt.Printf("  Request Timeout:   %s\n", cfg.Wiki.RequestTimeout)
			fmt.Printf("  Max Body Size:     %d bytes\n", cfg.Wiki.MaxBodySize)
			fmt.Printf("\nHarvest:\n")
			fmt.Printf("  Search Query:      %s\n", cfg.Harvest.SearchQuery)
			fmt.Printf("  Search Namespace:  %d\n", cfg.Harvest.SearchNamespace)
			fmt.Printf("  Archive Pattern:   %s\n", cfg.Harvest.ArchivePattern)
			fmt.Printf("  Entry Pattern:     %s\n", cfg.Harvest.EntryPattern)
			fmt.Printf("  Entry Prefix:      %s\n", cfg.Harvest.EntryPrefix)
			fmt.Printf("  Fetch Deleted:     %v\n", cfg.Harvest.FetchDeleted)
			fmt.Printf("  Normalize:         %v\n", cfg.Harvest.Normalize)
			fmt.Printf("  Max Archives:      %d\n", cfg.Harvest.MaxArchives)
			fmt.Printf("\nLinks:\n")
			fmt.Printf("  Mode:              %s\n", cfg.Links.Mode)
			fmt.Printf("  Namespace:         %d (%s)\n", cfg.Links.Namespace, cfg.Links.NamespaceName)
			fmt.Printf("\nStorage:\n")
			fmt.Printf("  Type:              %s\n", cfg.Storage.Type)
			fmt.Printf("  Output Path:       %s\n", cfg.Storage.OutputPath)
			fmt.Printf("  Mongo Database:    %s\n", cfg.Storage.MongoDatabase)
			fmt.Printf("  Mongo Collection:  %s\n", cfg.Storage.MongoCollection)
			fmt.Printf("\nJobs:\n")
			fmt.Printf("  Table:             %s\n", cfg.Jobs.Table)
			fmt.Printf("  Name Column:       %d (prefix %d)\n", cfg.Jobs.NameColumn, cfg.Jobs.NamePrefixLen)
			fmt.Printf("  Command Column:    %d\n", cfg.Jobs.CommandColumn)
			fmt.Printf("  Shell:             %s\n", cfg.Jobs.Shell)
			fmt.Printf("  Wait:              %v\n", cfg.Jobs.Wait)
			fmt.Printf("\nMetrics:\n")
			fmt.Printf("  Enabled:           %v\n", cfg.Metrics.Enabled)
			fmt.Printf("  Port:              %d\n", cfg.Metrics.Port)
			fmt.Printf("  Path:              %s\n", cfg.Metrics.Path)
			return nil
		},
	}
	return cmd
}

// applyCLIOverrides applies command-line flag values to the config.
func applyCLIOverrides(cfg *config.Config) {
	if outputPath != "" {
		cfg.Storage.OutputPath = outputPath
	}
	if storageType != "" {
		cfg.Storage.Type = strings.ToLower(storageType)
	}
	if linksMode != "" {
		cfg.Links.Mode = strings.ToLower(linksMode)
	}
	if maxArchives > 0 {
		cfg.Harvest.MaxArchives = maxArchives
	}
	if noDeleted {
		cfg.Harvest.FetchDeleted = false
	}
	if noNormalize {
		cfg.Harvest.Normalize = false
	}
}
