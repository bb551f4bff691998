package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/JakeFAU/fandom-data/internal/work"
)

// ErrNotFound signals that no document exists for the requested id.
var ErrNotFound = errors.New("document not found")

// Rejection names one record a backend refused and why.
type Rejection struct {
	ID     string
	Reason string
}

// RejectedError reports records a backend refused as invalid while it accepted
// the rest of the batch. Transient or server-side failures are never reported
// this way.
type RejectedError struct {
	Rejections []Rejection
}

func (e *RejectedError) Error() string {
	if len(e.Rejections) == 1 {
		return fmt.Sprintf("document %s rejected: %s", e.Rejections[0].ID, e.Rejections[0].Reason)
	}
	return fmt.Sprintf("%d documents rejected, first %s: %s",
		len(e.Rejections), e.Rejections[0].ID, e.Rejections[0].Reason)
}

// Store persists work records keyed by their external id. Upsert has replace
// semantics: a record fully overwrites any earlier document with its id.
type Store interface {
	// Upsert writes the batch as one request where the backend supports it.
	// Records the backend refuses as invalid come back as a *RejectedError;
	// the rest of the batch is stored.
	Upsert(ctx context.Context, records []work.Record) error
	// FindByID returns the stored document or ErrNotFound.
	FindByID(ctx context.Context, id string) (work.Record, error)
	// Count returns the number of stored documents.
	Count(ctx context.Context) (uint64, error)
	Close() error
}

// CheckIDs rejects batches containing a record without an id.
func CheckIDs(records []work.Record) error {
	for i, rec := range records {
		if rec.ID == "" {
			return fmt.Errorf("record %d: %w", i, work.ErrMissingID)
		}
	}
	return nil
}
