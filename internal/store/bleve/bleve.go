// Package blevestore stores work records in an embedded bleve index, either in
// memory or on local disk.
package blevestore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/mapping"

	"github.com/JakeFAU/fandom-data/internal/store"
	"github.com/JakeFAU/fandom-data/internal/work"
)

const sourcePrefix = "source:"

var (
	keywordFields = []string{"id", "author", "relationships", "characters", "freeforms", "language"}
	numericFields = []string{"words", "kudos", "hits"}
)

var _ store.Store = (*Store)(nil)

// Store is a store.Store backed by bleve. The full source of each record is
// kept in the index's internal key space so lookups return it verbatim.
type Store struct {
	idx bleve.Index
}

// NewInMemory creates a store that lives only for the process.
func NewInMemory() (*Store, error) {
	idx, err := bleve.NewMemOnly(newMapping())
	if err != nil {
		return nil, fmt.Errorf("create bleve index: %w", err)
	}
	return &Store{idx: idx}, nil
}

// Open opens the index at path, creating it when missing.
func Open(path string) (*Store, error) {
	if path == "" {
		return NewInMemory()
	}
	idx, err := bleve.Open(path)
	if errors.Is(err, bleve.ErrorIndexPathDoesNotExist) {
		idx, err = bleve.New(path, newMapping())
	}
	if err != nil {
		return nil, fmt.Errorf("open bleve index %s: %w", path, err)
	}
	return &Store{idx: idx}, nil
}

func newMapping() mapping.IndexMapping {
	doc := bleve.NewDocumentMapping()
	for _, f := range keywordFields {
		doc.AddFieldMappingsAt(f, bleve.NewKeywordFieldMapping())
	}
	for _, f := range numericFields {
		doc.AddFieldMappingsAt(f, bleve.NewNumericFieldMapping())
	}
	doc.AddFieldMappingsAt("title", bleve.NewTextFieldMapping())
	doc.AddFieldMappingsAt("date", bleve.NewDateTimeFieldMapping())

	m := bleve.NewIndexMapping()
	m.DefaultMapping = doc
	return m
}

// Close releases the index.
func (s *Store) Close() error {
	return s.idx.Close()
}

// Upsert writes the records in one bleve batch.
func (s *Store) Upsert(ctx context.Context, records []work.Record) error {
	if len(records) == 0 {
		return nil
	}
	if err := store.CheckIDs(records); err != nil {
		return fmt.Errorf("upsert: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("upsert: %w", err)
	}

	batch := s.idx.NewBatch()
	for _, rec := range records {
		source, err := json.Marshal(rec)
		if err != nil {
			return fmt.Errorf("upsert %s: %w", rec.ID, err)
		}
		if err := batch.Index(rec.ID, indexable(rec.Fields)); err != nil {
			return fmt.Errorf("upsert %s: %w", rec.ID, err)
		}
		batch.SetInternal(sourceKey(rec.ID), source)
	}
	if err := s.idx.Batch(batch); err != nil {
		return fmt.Errorf("upsert: %w", err)
	}
	return nil
}

// FindByID returns the stored source for id.
func (s *Store) FindByID(_ context.Context, id string) (work.Record, error) {
	source, err := s.idx.GetInternal(sourceKey(id))
	if err != nil {
		return work.Record{}, fmt.Errorf("find by id %s: %w", id, err)
	}
	if source == nil {
		return work.Record{}, fmt.Errorf("find by id %s: %w", id, store.ErrNotFound)
	}
	rec, err := work.ParseRecord(source)
	if err != nil {
		return work.Record{}, fmt.Errorf("find by id %s: %w", id, err)
	}
	return rec, nil
}

// Count returns the number of indexed documents.
func (s *Store) Count(_ context.Context) (uint64, error) {
	n, err := s.idx.DocCount()
	if err != nil {
		return 0, fmt.Errorf("count: %w", err)
	}
	return n, nil
}

func sourceKey(id string) []byte {
	return []byte(sourcePrefix + id)
}

// indexable converts json.Number values into float64 so bleve maps them as
// numeric fields.
func indexable(fields map[string]any) map[string]any {
	out := make(map[string]any, len(fields))
	for k, v := range fields {
		out[k] = plainValue(v)
	}
	return out
}

func plainValue(v any) any {
	switch t := v.(type) {
	case json.Number:
		if f, err := t.Float64(); err == nil {
			return f
		}
		return t.String()
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = plainValue(e)
		}
		return out
	case map[string]any:
		return indexable(t)
	default:
		return v
	}
}
