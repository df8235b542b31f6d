package storage

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/wikitools/delsort/internal/types"
)

// MongoStorage writes one document per dataset to a MongoDB collection.
type MongoStorage struct {
	client     *mongo.Client
	collection *mongo.Collection
	count      int
	logger     *slog.Logger
}

type recordDocument struct {
	Title string `bson:"title"`
	Text  string `bson:"text"`
}

type datasetDocument struct {
	ID        string           `bson:"_id"`
	Topic     string           `bson:"topic"`
	Sequence  *int             `bson:"sequence,omitempty"`
	Records   []recordDocument `bson:"records"`
	Unparsed  []string         `bson:"unparsed"`
	WrittenAt time.Time        `bson:"written_at"`
}

// NewMongoStorage creates a new MongoDB storage backend.
func NewMongoStorage(uri, database, collection string, logger *slog.Logger) (*MongoStorage, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("mongodb connect: %w", err)
	}

	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("mongodb ping: %w", err)
	}

	return &MongoStorage{
		client:     client,
		collection: client.Database(database).Collection(collection),
		logger:     logger.With("component", "mongo_storage"),
	}, nil
}

func (s *MongoStorage) Name() string { return "mongodb" }

// Write upserts the dataset under its name so re-runs replace earlier output.
func (s *MongoStorage) Write(key types.DatasetKey, ds *types.Dataset) error {
	doc := newDatasetDocument(key, ds)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	_, err := s.collection.ReplaceOne(ctx, bson.M{"_id": doc.ID}, doc, options.Replace().SetUpsert(true))
	if err != nil {
		return &types.StorageError{Backend: s.Name(), Dataset: doc.ID, Err: fmt.Errorf("mongodb replace: %w", err)}
	}

	s.count++
	s.logger.Debug("dataset stored in mongodb", "dataset", doc.ID, "records", len(doc.Records))
	return nil
}

// Load reads a dataset back by name.
func (s *MongoStorage) Load(ctx context.Context, name string) (*types.Dataset, error) {
	var doc datasetDocument
	if err := s.collection.FindOne(ctx, bson.M{"_id": name}).Decode(&doc); err != nil {
		return nil, fmt.Errorf("mongodb find %q: %w", name, err)
	}

	ds := types.NewDataset(types.DatasetKey{Topic: doc.Topic, Sequence: doc.Sequence})
	for _, r := range doc.Records {
		ds.Add(types.ArticleRecord{Title: r.Title, Text: r.Text})
	}
	ds.Unparsed = append(ds.Unparsed, doc.Unparsed...)
	return ds, nil
}

func (s *MongoStorage) Close() error {
	s.logger.Info("mongodb storage closing", "datasets", s.count)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.client.Disconnect(ctx)
}

func newDatasetDocument(key types.DatasetKey, ds *types.Dataset) datasetDocument {
	records := make([]recordDocument, len(ds.Records))
	for i, r := range ds.Records {
		records[i] = recordDocument{Title: r.Title, Text: r.Text}
	}
	unparsed := ds.Unparsed
	if unparsed == nil {
		unparsed = []string{}
	}
	return datasetDocument{
		ID:        key.Name(),
		Topic:     key.Topic,
		Sequence:  key.Sequence,
		Records:   records,
		Unparsed:  unparsed,
		WrittenAt: time.Now().UTC(),
	}
}

// --- Multi-Storage Fan-Out ---

// MultiStorage writes datasets to multiple backends.
type MultiStorage struct {
	backends []Storage
	logger   *slog.Logger
}

// NewMultiStorage creates a storage that fans out to multiple backends.
func NewMultiStorage(backends []Storage, logger *slog.Logger) *MultiStorage {
	return &MultiStorage{
		backends: backends,
		logger:   logger.With("component", "multi_storage"),
	}
}

func (s *MultiStorage) Name() string { return "multi" }

func (s *MultiStorage) Write(key types.DatasetKey, ds *types.Dataset) error {
	var firstErr error
	for _, backend := range s.backends {
		if err := backend.Write(key, ds); err != nil {
			s.logger.Error("backend write failed", "backend", backend.Name(), "dataset", key.Name(), "error", err)
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

func (s *MultiStorage) Close() error {
	var firstErr error
	for _, backend := range s.backends {
		if err := backend.Close(); err != nil {
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}
