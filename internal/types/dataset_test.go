package types

import (
	"encoding/json"
	"testing"
)

func TestDatasetKeyName(t *testing.T) {
	if got := NewDatasetKey("Biology", 12).Name(); got != "Biology12" {
		t.Errorf("expected Biology12, got %q", got)
	}
	if got := NewDatasetKey("Biology", -1).Name(); got != "Biology" {
		t.Errorf("expected Biology, got %q", got)
	}
	if got := (DatasetKey{Topic: "Chess"}).Name(); got != "Chess" {
		t.Errorf("expected Chess, got %q", got)
	}
	if got := NewDatasetKey("Chess", 0).Name(); got != "Chess0" {
		t.Errorf("expected Chess0, got %q", got)
	}
}

func TestArticleRecordJSON(t *testing.T) {
	data, err := json.Marshal([]ArticleRecord{{Title: "Oak Tree", Text: "Its a tree."}})
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != `[["Oak Tree","Its a tree."]]` {
		t.Errorf("unexpected encoding: %s", data)
	}

	var rec ArticleRecord
	if err := json.Unmarshal([]byte(`["A","b"]`), &rec); err != nil {
		t.Fatal(err)
	}
	if rec.Title != "A" || rec.Text != "b" {
		t.Errorf("unexpected record: %+v", rec)
	}

	if err := json.Unmarshal([]byte(`["only"]`), &rec); err == nil {
		t.Error("expected error for single-element array")
	}
}

func TestNewDatasetIsEmptyNotNil(t *testing.T) {
	ds := NewDataset(NewDatasetKey("X", -1))
	data, _ := json.Marshal(ds.Records)
	if string(data) != "[]" {
		t.Errorf("empty dataset should encode as [], got %s", data)
	}
	ds.Add(ArticleRecord{Title: "a"})
	ds.AddUnparsed("Wikipedia:Articles for deletion/b")
	if ds.Len() != 1 || len(ds.Unparsed) != 1 {
		t.Errorf("unexpected dataset: %+v", ds)
	}
}
