package index

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/hashicorp/go-multierror"
	"go.uber.org/zap"

	"github.com/JakeFAU/fandom-data/internal/metrics"
	"github.com/JakeFAU/fandom-data/internal/store"
	"github.com/JakeFAU/fandom-data/internal/work"
)

// DefaultChunkSize is the number of records per bulk request.
const DefaultChunkSize = 1024

// LineError reports a malformed input line.
type LineError struct {
	Line int
	Err  error
}

func (e *LineError) Error() string {
	return fmt.Sprintf("line %d: %v", e.Line, e.Err)
}

func (e *LineError) Unwrap() error {
	return e.Err
}

// Options tune a run.
type Options struct {
	ChunkSize int
	// Strict aborts on the first malformed line or rejected record instead
	// of skipping it. Chunks submitted before that point stay in the store.
	Strict bool
	// Backend labels metrics.
	Backend string
}

// Summary counts what a run did.
type Summary struct {
	Lines   int
	Indexed int
	Skipped int
	Chunks  int
}

// Indexer streams records from a reader into a store in fixed-size chunks.
type Indexer struct {
	store   store.Store
	opts    Options
	logger  *zap.Logger
	maxLine int
}

// New builds an Indexer.
func New(st store.Store, opts Options, logger *zap.Logger) *Indexer {
	if opts.ChunkSize <= 0 {
		opts.ChunkSize = DefaultChunkSize
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Indexer{store: st, opts: opts, logger: logger, maxLine: MaxLineBytes}
}

// Run reads r to the end. Malformed lines and records the store rejects are
// skipped and counted unless Strict is set; any other store failure aborts
// the run.
func (ix *Indexer) Run(ctx context.Context, r io.Reader) (Summary, error) {
	var (
		sum    Summary
		reader = newReaderSize(r, ix.maxLine)
		chunk  = make([]work.Record, 0, ix.opts.ChunkSize)
	)
	for {
		if err := ctx.Err(); err != nil {
			return sum, fmt.Errorf("index canceled: %w", err)
		}
		line, err := reader.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		var lineErr *LineError
		if errors.As(err, &lineErr) {
			sum.Lines++
			if err := ix.malformed(lineErr, &sum); err != nil {
				return sum, err
			}
			continue
		}
		if err != nil {
			// Lines read before the failure are still sent.
			if len(chunk) > 0 {
				if flushErr := ix.flush(ctx, chunk, &sum); flushErr != nil {
					return sum, multierror.Append(err, flushErr)
				}
			}
			return sum, err
		}
		sum.Lines++

		rec, err := work.ParseRecord(line.Data)
		if err != nil {
			if err := ix.malformed(&LineError{Line: line.Number, Err: err}, &sum); err != nil {
				return sum, err
			}
			continue
		}
		metrics.ObserveLine(metrics.StatusOK)

		chunk = append(chunk, rec)
		if len(chunk) == ix.opts.ChunkSize {
			if err := ix.flush(ctx, chunk, &sum); err != nil {
				return sum, err
			}
			chunk = chunk[:0]
		}
	}
	if len(chunk) > 0 {
		if err := ix.flush(ctx, chunk, &sum); err != nil {
			return sum, err
		}
	}
	return sum, nil
}

func (ix *Indexer) malformed(lineErr *LineError, sum *Summary) error {
	if ix.opts.Strict {
		metrics.ObserveLine(metrics.StatusError)
		return lineErr
	}
	metrics.ObserveLine(metrics.StatusSkipped)
	ix.logger.Warn("skipping malformed line", zap.Int("line", lineErr.Line), zap.Error(lineErr.Err))
	sum.Skipped++
	return nil
}

func (ix *Indexer) flush(ctx context.Context, chunk []work.Record, sum *Summary) error {
	start := time.Now()
	err := ix.store.Upsert(ctx, chunk)
	status := metrics.StatusOK
	if err != nil {
		status = metrics.StatusError
	}
	metrics.ObserveBulk(ix.opts.Backend, status, len(chunk), time.Since(start))

	stored := len(chunk)
	var rejected *store.RejectedError
	switch {
	case err == nil:
	case errors.As(err, &rejected) && !ix.opts.Strict:
		for _, rej := range rejected.Rejections {
			ix.logger.Warn("skipping rejected record", zap.String("id", rej.ID), zap.String("reason", rej.Reason))
		}
		stored -= len(rejected.Rejections)
		sum.Skipped += len(rejected.Rejections)
	default:
		return fmt.Errorf("chunk %d: %w", sum.Chunks+1, err)
	}

	sum.Chunks++
	sum.Indexed += stored
	ix.logger.Info("chunk indexed",
		zap.Int("chunk", sum.Chunks),
		zap.Int("documents", stored),
		zap.Int("indexed", sum.Indexed),
		zap.Duration("took", time.Since(start)),
	)
	return nil
}
