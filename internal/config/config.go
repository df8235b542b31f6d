package config

import (
	"time"
)

// Version is set at build time via ldflags.
var Version = "dev"

// Config is the root configuration shared by delsort and run-job.
type Config struct {
	Wiki    WikiConfig    `mapstructure:"wiki"    yaml:"wiki"`
	Harvest HarvestConfig `mapstructure:"harvest" yaml:"harvest"`
	Links   LinksConfig   `mapstructure:"links"   yaml:"links"`
	Storage StorageConfig `mapstructure:"storage" yaml:"storage"`
	Jobs    JobsConfig    `mapstructure:"jobs"    yaml:"jobs"`
	Logging LoggingConfig `mapstructure:"logging" yaml:"logging"`
	Metrics MetricsConfig `mapstructure:"metrics" yaml:"metrics"`
}

// WikiConfig controls the MediaWiki API client.
type WikiConfig struct {
	APIURL          string        `mapstructure:"api_url"           yaml:"api_url"`
	UserAgent       string        `mapstructure:"user_agent"        yaml:"user_agent"`
	Username        string        `mapstructure:"username"          yaml:"username"`
	Password        string        `mapstructure:"password"          yaml:"password"`
	RequestTimeout  time.Duration `mapstructure:"request_timeout"   yaml:"request_timeout"`
	MaxBodySize     int64         `mapstructure:"max_body_size"     yaml:"max_body_size"`
	IdleConnTimeout time.Duration `mapstructure:"idle_conn_timeout" yaml:"idle_conn_timeout"`
}

// HarvestConfig controls which pages are crawled and how article text is treated.
type HarvestConfig struct {
	SearchQuery     string `mapstructure:"search_query"     yaml:"search_query"`
	SearchNamespace int    `mapstructure:"search_namespace" yaml:"search_namespace"`
	ArchivePattern  string `mapstructure:"archive_pattern"  yaml:"archive_pattern"`
	EntryPattern    string `mapstructure:"entry_pattern"    yaml:"entry_pattern"`
	EntryPrefix     string `mapstructure:"entry_prefix"     yaml:"entry_prefix"`
	FetchDeleted    bool   `mapstructure:"fetch_deleted"    yaml:"fetch_deleted"`
	Normalize       bool   `mapstructure:"normalize"        yaml:"normalize"`
	MaxArchives     int    `mapstructure:"max_archives"     yaml:"max_archives"`
}

// LinksConfig controls how outbound links of an archive page are enumerated.
type LinksConfig struct {
	Mode          string `mapstructure:"mode"           yaml:"mode"` // api, html
	Namespace     int    `mapstructure:"namespace"      yaml:"namespace"`
	NamespaceName string `mapstructure:"namespace_name" yaml:"namespace_name"`
}

// StorageConfig controls where datasets are written.
type StorageConfig struct {
	Type            string `mapstructure:"type"             yaml:"type"` // file, mongo, multi
	OutputPath      string `mapstructure:"output_path"      yaml:"output_path"`
	MongoURI        string `mapstructure:"mongo_uri"        yaml:"mongo_uri"`
	MongoDatabase   string `mapstructure:"mongo_database"   yaml:"mongo_database"`
	MongoCollection string `mapstructure:"mongo_collection" yaml:"mongo_collection"`
}

// JobsConfig describes the job table layout used by run-job.
type JobsConfig struct {
	Table         string `mapstructure:"table"           yaml:"table"`
	NameColumn    int    `mapstructure:"name_column"     yaml:"name_column"`
	CommandColumn int    `mapstructure:"command_column"  yaml:"command_column"`
	NamePrefixLen int    `mapstructure:"name_prefix_len" yaml:"name_prefix_len"`
	Shell         string `mapstructure:"shell"           yaml:"shell"` // empty = exec fields directly
	Wait          bool   `mapstructure:"wait"            yaml:"wait"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	Level  string `mapstructure:"level"  yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
}

// MetricsConfig controls the Prometheus text endpoint.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	Port    int    `mapstructure:"port"    yaml:"port"`
	Path    string `mapstructure:"path"    yaml:"path"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Wiki: WikiConfig{
			APIURL:          "https://en.wikipedia.org/w/api.php",
			UserAgent:       "delsort/" + Version + " (deletion sorting dataset harvester)",
			RequestTimeout:  60 * time.Second,
			MaxBodySize:     32 * 1024 * 1024, // 32MB
			IdleConnTimeout: 90 * time.Second,
		},
		Harvest: HarvestConfig{
			SearchQuery:     `intitle:archive prefix:"Wikipedia:WikiProject Deletion sorting/"`,
			SearchNamespace: 4,
			ArchivePattern:  `Wikipedia:WikiProject Deletion sorting/(.*?)/archive(\d+)?`,
			EntryPattern:    `===\[\[:?(.*?)\]\]===`,
			EntryPrefix:     "Wikipedia:Articles for deletion/",
			FetchDeleted:    true,
			Normalize:       true,
		},
		Links: LinksConfig{
			Mode:          "api",
			Namespace:     4,
			NamespaceName: "Wikipedia",
		},
		Storage: StorageConfig{
			Type:            "file",
			OutputPath:      "./delsort-data",
			MongoDatabase:   "delsort",
			MongoCollection: "datasets",
		},
		Jobs: JobsConfig{
			Table:         "./crontab",
			NameColumn:    8,
			CommandColumn: 5,
			NamePrefixLen: 4,
			Shell:         "/bin/sh",
			Wait:          true,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
		Metrics: MetricsConfig{
			Enabled: false,
			Port:    9090,
			Path:    "/metrics",
		},
	}
}
