package config

import (
	"fmt"
	"net/url"
	"regexp"
)

// Validate checks the configuration for invalid values.
func Validate(cfg *Config) error {
	if err := ValidateAPIURL(cfg.Wiki.APIURL); err != nil {
		return fmt.Errorf("wiki.api_url: %w", err)
	}
	if cfg.Wiki.RequestTimeout <= 0 {
		return fmt.Errorf("wiki.request_timeout must be > 0")
	}
	if cfg.Wiki.MaxBodySize <= 0 {
		return fmt.Errorf("wiki.max_body_size must be > 0")
	}
	if cfg.Wiki.Username != "" && cfg.Wiki.Password == "" {
		return fmt.Errorf("wiki.password is required when wiki.username is set")
	}

	if cfg.Harvest.MaxArchives < 0 {
		return fmt.Errorf("harvest.max_archives must be >= 0, got %d", cfg.Harvest.MaxArchives)
	}
	if err := validatePattern("harvest.archive_pattern", cfg.Harvest.ArchivePattern, 2); err != nil {
		return err
	}
	if err := validatePattern("harvest.entry_pattern", cfg.Harvest.EntryPattern, 1); err != nil {
		return err
	}

	if cfg.Links.Mode != "api" && cfg.Links.Mode != "html" {
		return fmt.Errorf("links.mode must be 'api' or 'html', got %q", cfg.Links.Mode)
	}
	if cfg.Links.Mode == "html" && cfg.Links.NamespaceName == "" {
		return fmt.Errorf("links.namespace_name is required when links.mode is 'html'")
	}

	validStorageTypes := map[string]bool{
		"file": true, "mongo": true, "multi": true,
	}
	if !validStorageTypes[cfg.Storage.Type] {
		return fmt.Errorf("storage.type %q is not supported (valid: file, mongo, multi)", cfg.Storage.Type)
	}
	if cfg.Storage.Type != "mongo" && cfg.Storage.OutputPath == "" {
		return fmt.Errorf("storage.output_path must not be empty")
	}
	if cfg.Storage.Type != "file" && cfg.Storage.MongoURI == "" {
		return fmt.Errorf("storage.mongo_uri is required for storage.type %q", cfg.Storage.Type)
	}

	validLogLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLogLevels[cfg.Logging.Level] {
		return fmt.Errorf("logging.level must be debug/info/warn/error, got %q", cfg.Logging.Level)
	}
	if cfg.Logging.Format != "text" && cfg.Logging.Format != "json" {
		return fmt.Errorf("logging.format must be 'text' or 'json', got %q", cfg.Logging.Format)
	}

	if cfg.Metrics.Enabled {
		if cfg.Metrics.Port < 1 || cfg.Metrics.Port > 65535 {
			return fmt.Errorf("metrics.port must be 1-65535, got %d", cfg.Metrics.Port)
		}
	}

	return nil
}

// ValidateJobs checks the job table layout. It is separate from Validate
// because run-job does not need the harvest settings to be sane.
func ValidateJobs(cfg *JobsConfig) error {
	if cfg.Table == "" {
		return fmt.Errorf("jobs.table must not be empty")
	}
	if cfg.NameColumn < 0 {
		return fmt.Errorf("jobs.name_column must be >= 0, got %d", cfg.NameColumn)
	}
	if cfg.CommandColumn < 0 {
		return fmt.Errorf("jobs.command_column must be >= 0, got %d", cfg.CommandColumn)
	}
	if cfg.NamePrefixLen < 0 {
		return fmt.Errorf("jobs.name_prefix_len must be >= 0, got %d", cfg.NamePrefixLen)
	}
	return nil
}

// ValidateAPIURL checks that a MediaWiki API endpoint is an absolute http(s) URL.
func ValidateAPIURL(rawURL string) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("URL scheme must be http or https, got %q", u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("URL must have a host")
	}
	return nil
}

func validatePattern(key, pattern string, minGroups int) error {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	if re.NumSubexp() < minGroups {
		return fmt.Errorf("%s must have at least %d capture group(s), got %d", key, minGroups, re.NumSubexp())
	}
	return nil
}
