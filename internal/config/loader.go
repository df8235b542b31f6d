package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// Load reads configuration from file and environment.
// Priority (highest to lowest): env vars > config file > defaults.
// CLI flags are applied by the caller on the returned Config.
func Load(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	v := viper.New()
	v.SetConfigType("yaml")

	setDefaults(v, cfg)

	v.SetEnvPrefix("DELSORT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("delsort")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		home, err := os.UserHomeDir()
		if err == nil {
			v.AddConfigPath(filepath.Join(home, ".delsort"))
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configPath != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Config file not found is okay if not explicitly specified
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return cfg, nil
}

// setDefaults registers default values in viper so every key is visible to
// AutomaticEnv during Unmarshal.
func setDefaults(v *viper.Viper, cfg *Config) {
	v.SetDefault("wiki.api_url", cfg.Wiki.APIURL)
	v.SetDefault("wiki.user_agent", cfg.Wiki.UserAgent)
	v.SetDefault("wiki.username", cfg.Wiki.Username)
	v.SetDefault("wiki.password", cfg.Wiki.Password)
	v.SetDefault("wiki.request_timeout", cfg.Wiki.RequestTimeout)
	v.SetDefault("wiki.max_body_size", cfg.Wiki.MaxBodySize)
	v.SetDefault("wiki.idle_conn_timeout", cfg.Wiki.IdleConnTimeout)

	v.SetDefault("harvest.search_query", cfg.Harvest.SearchQuery)
	v.SetDefault("harvest.search_namespace", cfg.Harvest.SearchNamespace)
	v.SetDefault("harvest.archive_pattern", cfg.Harvest.ArchivePattern)
	v.SetDefault("harvest.entry_pattern", cfg.Harvest.EntryPattern)
	v.SetDefault("harvest.entry_prefix", cfg.Harvest.EntryPrefix)
	v.SetDefault("harvest.fetch_deleted", cfg.Harvest.FetchDeleted)
	v.SetDefault("harvest.normalize", cfg.Harvest.Normalize)
	v.SetDefault("harvest.max_archives", cfg.Harvest.MaxArchives)

	v.SetDefault("links.mode", cfg.Links.Mode)
	v.SetDefault("links.namespace", cfg.Links.Namespace)
	v.SetDefault("links.namespace_name", cfg.Links.NamespaceName)

	v.SetDefault("storage.type", cfg.Storage.Type)
	v.SetDefault("storage.output_path", cfg.Storage.OutputPath)
	v.SetDefault("storage.mongo_uri", cfg.Storage.MongoURI)
	v.SetDefault("storage.mongo_database", cfg.Storage.MongoDatabase)
	v.SetDefault("storage.mongo_collection", cfg.Storage.MongoCollection)

	v.SetDefault("jobs.table", cfg.Jobs.Table)
	v.SetDefault("jobs.name_column", cfg.Jobs.NameColumn)
	v.SetDefault("jobs.command_column", cfg.Jobs.CommandColumn)
	v.SetDefault("jobs.name_prefix_len", cfg.Jobs.NamePrefixLen)
	v.SetDefault("jobs.shell", cfg.Jobs.Shell)
	v.SetDefault("jobs.wait", cfg.Jobs.Wait)

	v.SetDefault("logging.level", cfg.Logging.Level)
	v.SetDefault("logging.format", cfg.Logging.Format)

	v.SetDefault("metrics.enabled", cfg.Metrics.Enabled)
	v.SetDefault("metrics.port", cfg.Metrics.Port)
	v.SetDefault("metrics.path", cfg.Metrics.Path)
}
