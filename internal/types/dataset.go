package types

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// Page is a wiki page as returned by the page source: archive pages,
// discussion entries and articles all share this shape.
type Page struct {
	Title   string
	Content string

	// Deleted is true when Content came from a deleted revision.
	Deleted bool
}

// DatasetKey names the dataset produced from one archive page.
type DatasetKey struct {
	Topic    string
	Sequence *int
}

// NewDatasetKey creates a key. A negative sequence is treated as absent.
func NewDatasetKey(topic string, sequence int) DatasetKey {
	if sequence < 0 {
		return DatasetKey{Topic: topic}
	}
	return DatasetKey{Topic: topic, Sequence: &sequence}
}

// Name returns the topic followed by the sequence number, if any.
func (k DatasetKey) Name() string {
	if k.Sequence == nil {
		return k.Topic
	}
	return k.Topic + strconv.Itoa(*k.Sequence)
}

func (k DatasetKey) String() string { return k.Name() }

// ArticleRecord is one training example: an article title and its text.
// It serializes as a two-element JSON array.
type ArticleRecord struct {
	Title string
	Text  string
}

// MarshalJSON encodes the record as [title, text]. HTML characters are not
// escaped here; the caller's encoder decides.
func (r ArticleRecord) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode([2]string{r.Title, r.Text}); err != nil {
		return nil, err
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}

// UnmarshalJSON decodes a [title, text] pair.
func (r *ArticleRecord) UnmarshalJSON(data []byte) error {
	var pair []string
	if err := json.Unmarshal(data, &pair); err != nil {
		return err
	}
	if len(pair) != 2 {
		return fmt.Errorf("article record must have 2 elements, got %d", len(pair))
	}
	r.Title, r.Text = pair[0], pair[1]
	return nil
}

// Dataset accumulates the records and unparsed entries of one archive.
type Dataset struct {
	Key      DatasetKey
	Records  []ArticleRecord
	Unparsed []string
}

// NewDataset creates an empty dataset for the given key.
func NewDataset(key DatasetKey) *Dataset {
	return &Dataset{
		Key:      key,
		Records:  make([]ArticleRecord, 0),
		Unparsed: make([]string, 0),
	}
}

// Add appends a resolved record.
func (d *Dataset) Add(rec ArticleRecord) {
	d.Records = append(d.Records, rec)
}

// AddUnparsed records a discussion entry that produced no record.
func (d *Dataset) AddUnparsed(title string) {
	d.Unparsed = append(d.Unparsed, title)
}

// Len returns the number of records.
func (d *Dataset) Len() int {
	return len(d.Records)
}
