// Package storage opens the line-delimited work files shared by the fetcher
// and the indexer. Plain paths are local files; gs://bucket/object URIs go
// to a remote object backend.
package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// SchemeGCS prefixes Google Cloud Storage locations.
const SchemeGCS = "gs://"

// Location is a parsed file reference.
type Location struct {
	// Bucket is empty for local paths.
	Bucket string
	// Object is the object name or the local path.
	Object string
}

// Remote reports whether the location lives in object storage.
func (l Location) Remote() bool {
	return l.Bucket != ""
}

func (l Location) String() string {
	if l.Remote() {
		return SchemeGCS + l.Bucket + "/" + l.Object
	}
	return l.Object
}

// ParseLocation splits uri into bucket and object, or returns it as a local path.
func ParseLocation(uri string) (Location, error) {
	uri = strings.TrimSpace(uri)
	if uri == "" {
		return Location{}, fmt.Errorf("location is empty")
	}
	rest, ok := strings.CutPrefix(uri, SchemeGCS)
	if !ok {
		return Location{Object: uri}, nil
	}
	bucket, object, _ := strings.Cut(rest, "/")
	if bucket == "" || object == "" {
		return Location{}, fmt.Errorf("location %q must look like gs://bucket/object", uri)
	}
	return Location{Bucket: bucket, Object: object}, nil
}

// Backend reads and writes objects in a remote bucket.
type Backend interface {
	NewReader(ctx context.Context, bucket, object string) (io.ReadCloser, error)
	NewWriter(ctx context.Context, bucket, object string) (io.WriteCloser, error)
}

// Opener resolves locations against the local filesystem or Remote.
type Opener struct {
	// Remote serves gs:// locations; nil rejects them.
	Remote Backend
}

// Open returns a reader for uri.
func (o Opener) Open(ctx context.Context, uri string) (io.ReadCloser, error) {
	loc, err := ParseLocation(uri)
	if err != nil {
		return nil, err
	}
	if !loc.Remote() {
		f, err := os.Open(filepath.Clean(loc.Object))
		if err != nil {
			return nil, fmt.Errorf("open %s: %w", loc, err)
		}
		return f, nil
	}
	if o.Remote == nil {
		return nil, fmt.Errorf("open %s: no object storage backend configured", loc)
	}
	r, err := o.Remote.NewReader(ctx, loc.Bucket, loc.Object)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", loc, err)
	}
	return r, nil
}

// Create returns a writer for uri, truncating local files. Remote objects
// become visible when the writer is closed.
func (o Opener) Create(ctx context.Context, uri string) (io.WriteCloser, error) {
	loc, err := ParseLocation(uri)
	if err != nil {
		return nil, err
	}
	if !loc.Remote() {
		f, err := os.Create(filepath.Clean(loc.Object))
		if err != nil {
			return nil, fmt.Errorf("create %s: %w", loc, err)
		}
		return f, nil
	}
	if o.Remote == nil {
		return nil, fmt.Errorf("create %s: no object storage backend configured", loc)
	}
	w, err := o.Remote.NewWriter(ctx, loc.Bucket, loc.Object)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", loc, err)
	}
	return w, nil
}

// IsRemote reports whether uri names an object storage location.
func IsRemote(uri string) bool {
	return strings.HasPrefix(strings.TrimSpace(uri), SchemeGCS)
}
