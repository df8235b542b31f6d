package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/wikitools/delsort/internal/types"
)

const (
	recordsExt  = ".json"
	unparsedExt = ".err"
)

// FileStorage writes each dataset as <name>.json plus <name>.err in one directory.
type FileStorage struct {
	dir    string
	count  int
	logger *slog.Logger
}

// NewFileStorage creates a file storage rooted at dir, creating it if needed.
func NewFileStorage(dir string, logger *slog.Logger) (*FileStorage, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}
	return &FileStorage{
		dir:    dir,
		logger: logger.With("component", "file_storage"),
	}, nil
}

func (s *FileStorage) Name() string { return "file" }

// Dir returns the output directory.
func (s *FileStorage) Dir() string { return s.dir }

// RecordsPath returns the path of the .json artifact for key.
func (s *FileStorage) RecordsPath(key types.DatasetKey) string {
	return filepath.Join(s.dir, FileName(key)+recordsExt)
}

// UnparsedPath returns the path of the .err artifact for key.
func (s *FileStorage) UnparsedPath(key types.DatasetKey) string {
	return filepath.Join(s.dir, FileName(key)+unparsedExt)
}

// Write encodes the records as a tab-indented JSON array of [title, text]
// pairs and the unparsed titles as newline-joined text.
func (s *FileStorage) Write(key types.DatasetKey, ds *types.Dataset) error {
	data, err := EncodeRecords(ds.Records)
	if err != nil {
		return &types.StorageError{Backend: s.Name(), Dataset: key.Name(), Err: err}
	}
	if err := os.WriteFile(s.RecordsPath(key), data, 0o644); err != nil {
		return &types.StorageError{Backend: s.Name(), Dataset: key.Name(), Err: err}
	}

	unparsed := strings.Join(ds.Unparsed, "\n")
	if err := os.WriteFile(s.UnparsedPath(key), []byte(unparsed), 0o644); err != nil {
		return &types.StorageError{Backend: s.Name(), Dataset: key.Name(), Err: err}
	}

	s.count++
	s.logger.Info("dataset written",
		"path", s.RecordsPath(key),
		"records", len(ds.Records),
		"unparsed", len(ds.Unparsed),
	)
	return nil
}

func (s *FileStorage) Close() error {
	s.logger.Debug("file storage closing", "datasets", s.count)
	return nil
}

// Load reads the dataset called name back from its .json and .err files.
// The returned key carries the name as its topic.
func (s *FileStorage) Load(ctx context.Context, name string) (*types.Dataset, error) {
	base := filepath.Join(s.dir, SanitizeName(name))
	records, err := ReadRecords(base + recordsExt)
	if err != nil {
		return nil, err
	}
	unparsed, err := ReadUnparsed(base + unparsedExt)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, err
	}

	ds := types.NewDataset(types.DatasetKey{Topic: name})
	ds.Records = append(ds.Records, records...)
	ds.Unparsed = append(ds.Unparsed, unparsed...)
	return ds, nil
}

// EncodeRecords renders records the way the dataset files store them:
// a JSON array, tab-indented, HTML characters left as-is, no trailing newline.
func EncodeRecords(records []types.ArticleRecord) ([]byte, error) {
	if records == nil {
		records = []types.ArticleRecord{}
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "\t")
	if err := enc.Encode(records); err != nil {
		return nil, fmt.Errorf("encode JSON: %w", err)
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}

// ReadRecords reads a .json dataset artifact back into records.
func ReadRecords(path string) ([]types.ArticleRecord, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var records []types.ArticleRecord
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	return records, nil
}

// ReadUnparsed reads a .err artifact back into titles.
func ReadUnparsed(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return []string{}, nil
	}
	return strings.Split(string(data), "\n"), nil
}

// FileName maps a dataset key to a file name. Topics are kept verbatim except
// for path separators, which would otherwise place the file in a subdirectory.
func FileName(key types.DatasetKey) string {
	return SanitizeName(key.Name())
}

// SanitizeName maps a dataset name to the base name of its files.
func SanitizeName(name string) string {
	name = strings.ReplaceAll(name, "/", "_")
	name = strings.ReplaceAll(name, string(filepath.Separator), "_")
	return name
}
