// Package es stores work records in Elasticsearch.
package es

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/elastic/go-elasticsearch/v9"
	"github.com/elastic/go-elasticsearch/v9/esapi"
	"github.com/hashicorp/go-multierror"

	"github.com/JakeFAU/fandom-data/internal/store"
	"github.com/JakeFAU/fandom-data/internal/work"
)

// DefaultIndex is used when Config.Index is empty.
const DefaultIndex = "works"

const alreadyExists = "resource_already_exists_exception"

var esMappings = `
{
  "mappings": {
    "properties": {
      "id":            {"type": "keyword"},
      "title":         {"type": "text"},
      "author":        {"type": "keyword"},
      "relationships": {"type": "keyword"},
      "characters":    {"type": "keyword"},
      "freeforms":     {"type": "keyword"},
      "date":          {"type": "date", "format": "strict_date"},
      "language":      {"type": "keyword"},
      "words":         {"type": "long"},
      "kudos":         {"type": "long"},
      "hits":          {"type": "long"}
    }
  }
}`

type esError struct {
	Type   string `json:"type"`
	Reason string `json:"reason"`
}

func (e esError) Error() string {
	return fmt.Sprintf("%s: %s", e.Type, e.Reason)
}

type esErrorRes struct {
	Error esError `json:"error"`
}

type esBulkRes struct {
	Errors bool                         `json:"errors"`
	Items  []map[string]esBulkItemState `json:"items"`
}

type esBulkItemState struct {
	ID     string   `json:"_id"`
	Status int      `json:"status"`
	Error  *esError `json:"error,omitempty"`
}

type esGetRes struct {
	Found  bool            `json:"found"`
	Source json.RawMessage `json:"_source"`
}

type esCountRes struct {
	Count uint64 `json:"count"`
}

// Config selects the cluster and index.
type Config struct {
	Addresses []string
	Username  string
	Password  string
	Index     string
	// Refresh makes every bulk request visible to searches before it returns.
	Refresh bool
	// Transport overrides the HTTP transport, mainly for tests.
	Transport http.RoundTripper
}

var _ store.Store = (*Store)(nil)

// Store is a store.Store backed by one Elasticsearch index.
type Store struct {
	es      *elasticsearch.Client
	index   string
	refresh string
}

// New connects to the cluster, verifies it answers, and creates the index
// with its mapping when missing.
func New(ctx context.Context, cfg Config) (*Store, error) {
	if len(cfg.Addresses) == 0 {
		return nil, fmt.Errorf("at least one elasticsearch address is required")
	}
	index := cfg.Index
	if index == "" {
		index = DefaultIndex
	}

	client, err := elasticsearch.NewClient(elasticsearch.Config{
		Addresses: cfg.Addresses,
		Username:  cfg.Username,
		Password:  cfg.Password,
		Transport: cfg.Transport,
	})
	if err != nil {
		return nil, fmt.Errorf("create elasticsearch client: %w", err)
	}

	s := &Store{es: client, index: index, refresh: "false"}
	if cfg.Refresh {
		s.refresh = "true"
	}
	if err := s.ping(ctx); err != nil {
		return nil, err
	}
	if err := s.ensureIndex(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

// Close is a no-op; the client holds no resources beyond its transport.
func (s *Store) Close() error {
	return nil
}

// Upsert indexes every record in a single bulk request. Per-item rejections
// are aggregated into one error.
func (s *Store) Upsert(ctx context.Context, records []work.Record) error {
	if len(records) == 0 {
		return nil
	}
	if err := store.CheckIDs(records); err != nil {
		return fmt.Errorf("upsert: %w", err)
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	for _, rec := range records {
		action := map[string]any{"index": map[string]any{"_index": s.index, "_id": rec.ID}}
		if err := enc.Encode(action); err != nil {
			return fmt.Errorf("upsert: %w", err)
		}
		if err := enc.Encode(rec); err != nil {
			return fmt.Errorf("upsert %s: %w", rec.ID, err)
		}
	}

	res, err := s.es.Bulk(&buf,
		s.es.Bulk.WithContext(ctx),
		s.es.Bulk.WithIndex(s.index),
		s.es.Bulk.WithRefresh(s.refresh),
	)
	if err != nil {
		return fmt.Errorf("bulk request: %w", err)
	}

	var bulkRes esBulkRes
	if err := unmarshalResponse(res, &bulkRes); err != nil {
		return fmt.Errorf("bulk request: %w", err)
	}
	if !bulkRes.Errors {
		return nil
	}

	var (
		itemErrs *multierror.Error
		rejected []store.Rejection
	)
	for _, item := range bulkRes.Items {
		for _, state := range item {
			switch {
			case state.Error == nil:
			case state.Status >= 400 && state.Status < 500 && state.Status != http.StatusTooManyRequests:
				rejected = append(rejected, store.Rejection{ID: state.ID, Reason: state.Error.Error()})
			default:
				itemErrs = multierror.Append(itemErrs, fmt.Errorf("document %s: status %d: %w", state.ID, state.Status, *state.Error))
			}
		}
	}
	if err := itemErrs.ErrorOrNil(); err != nil {
		return err
	}
	if len(rejected) > 0 {
		return &store.RejectedError{Rejections: rejected}
	}
	return nil
}

// FindByID fetches one document by id.
func (s *Store) FindByID(ctx context.Context, id string) (work.Record, error) {
	res, err := s.es.Get(s.index, id, s.es.Get.WithContext(ctx))
	if err != nil {
		return work.Record{}, fmt.Errorf("find by id: %w", err)
	}
	if res.StatusCode == http.StatusNotFound {
		_ = res.Body.Close()
		return work.Record{}, fmt.Errorf("find by id %s: %w", id, store.ErrNotFound)
	}

	var getRes esGetRes
	if err := unmarshalResponse(res, &getRes); err != nil {
		return work.Record{}, fmt.Errorf("find by id: %w", err)
	}
	if !getRes.Found {
		return work.Record{}, fmt.Errorf("find by id %s: %w", id, store.ErrNotFound)
	}
	rec, err := work.ParseRecord(getRes.Source)
	if err != nil {
		return work.Record{}, fmt.Errorf("find by id %s: %w", id, err)
	}
	return rec, nil
}

// Count returns the number of documents in the index.
func (s *Store) Count(ctx context.Context) (uint64, error) {
	res, err := s.es.Count(s.es.Count.WithContext(ctx), s.es.Count.WithIndex(s.index))
	if err != nil {
		return 0, fmt.Errorf("count: %w", err)
	}
	var countRes esCountRes
	if err := unmarshalResponse(res, &countRes); err != nil {
		return 0, fmt.Errorf("count: %w", err)
	}
	return countRes.Count, nil
}

func (s *Store) ping(ctx context.Context) error {
	res, err := s.es.Ping(s.es.Ping.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("ping elasticsearch: %w", err)
	}
	defer func() {
		_ = res.Body.Close()
	}()
	if res.IsError() {
		return fmt.Errorf("ping elasticsearch: %s", res.Status())
	}
	return nil
}

func (s *Store) ensureIndex(ctx context.Context) error {
	res, err := s.es.Indices.Create(s.index,
		s.es.Indices.Create.WithContext(ctx),
		s.es.Indices.Create.WithBody(strings.NewReader(esMappings)),
	)
	if err != nil {
		return fmt.Errorf("cannot create ES index: %w", err)
	}
	if res.IsError() {
		err := unmarshalError(res)
		var esErr esError
		if errors.As(err, &esErr) && esErr.Type == alreadyExists {
			return nil
		}
		return fmt.Errorf("cannot create ES index: %w", err)
	}
	_ = res.Body.Close()
	return nil
}

func (s *Store) dropIndex(ctx context.Context) error {
	res, err := s.es.Indices.Delete([]string{s.index}, s.es.Indices.Delete.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("delete ES index: %w", err)
	}
	_ = res.Body.Close()
	return nil
}

func unmarshalError(res *esapi.Response) error {
	return unmarshalResponse(res, nil)
}

func unmarshalResponse(res *esapi.Response, to any) error {
	defer func() {
		_ = res.Body.Close()
	}()

	if res.IsError() {
		var errRes esErrorRes
		if err := json.NewDecoder(res.Body).Decode(&errRes); err != nil {
			return fmt.Errorf("%s: %w", res.Status(), err)
		}
		return errRes.Error
	}
	if to == nil {
		return nil
	}
	return json.NewDecoder(res.Body).Decode(to)
}
