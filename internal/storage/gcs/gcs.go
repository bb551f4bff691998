// Package gcs provides a storage.Backend backed by Google Cloud Storage.
package gcs

import (
	"context"
	"fmt"
	"io"

	"cloud.google.com/go/storage"

	fstorage "github.com/JakeFAU/fandom-data/internal/storage"
)

// ContentType is set on objects written through the backend.
const ContentType = "application/x-ndjson"

var _ fstorage.Backend = (*Backend)(nil)

// Backend reads and writes GCS objects.
type Backend struct {
	client *storage.Client
}

// New creates a GCS client using Application Default Credentials.
func New(ctx context.Context) (*Backend, error) {
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("create GCS client: %w", err)
	}
	return &Backend{client: client}, nil
}

// NewWithClient wraps an existing client.
func NewWithClient(client *storage.Client) (*Backend, error) {
	if client == nil {
		return nil, fmt.Errorf("storage client is required")
	}
	return &Backend{client: client}, nil
}

// NewReader opens the object for streaming reads.
func (b *Backend) NewReader(ctx context.Context, bucket, object string) (io.ReadCloser, error) {
	r, err := b.client.Bucket(bucket).Object(object).NewReader(ctx)
	if err != nil {
		return nil, fmt.Errorf("read gs://%s/%s: %w", bucket, object, err)
	}
	return r, nil
}

// NewWriter starts an upload that is finalized on Close.
func (b *Backend) NewWriter(ctx context.Context, bucket, object string) (io.WriteCloser, error) {
	if _, err := b.client.Bucket(bucket).Attrs(ctx); err != nil {
		return nil, fmt.Errorf("get GCS bucket %q attributes: %w", bucket, err)
	}
	w := b.client.Bucket(bucket).Object(object).NewWriter(ctx)
	w.ContentType = ContentType
	return w, nil
}

// Close releases the client.
func (b *Backend) Close() error {
	return b.client.Close()
}
