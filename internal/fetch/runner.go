package fetch

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/fandom-data/internal/metrics"
	"github.com/JakeFAU/fandom-data/internal/scrape"
	"github.com/JakeFAU/fandom-data/internal/work"
)

// Options describes one fetch run.
type Options struct {
	Endpoint string
	Query    scrape.Query
	// Count caps the number of emitted works; 0 means no cap.
	Count int
	Start int
}

// Runner drives the sequential page loop.
type Runner struct {
	fetcher Fetcher
	pacer   *Pacer
	out     *bufio.Writer
	enc     *json.Encoder
	logger  *zap.Logger
}

// NewRunner wires a Runner writing line-delimited JSON to out.
func NewRunner(fetcher Fetcher, pacer *Pacer, out io.Writer, logger *zap.Logger) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	bw := bufio.NewWriter(out)
	enc := json.NewEncoder(bw)
	enc.SetEscapeHTML(false)
	return &Runner{
		fetcher: fetcher,
		pacer:   pacer,
		out:     bw,
		enc:     enc,
		logger:  logger,
	}
}

// Run fetches pages from opts.Start until Count works were written, a page
// comes back empty, or the listing has no next page. Each page's works are
// flushed before the next request so an aborted run leaves whole lines only.
func (r *Runner) Run(ctx context.Context, opts Options) (Result, error) {
	if opts.Start < 1 {
		return Result{}, fmt.Errorf("start page must be >= 1, got %d", opts.Start)
	}
	if opts.Count < 0 {
		return Result{}, fmt.Errorf("count must be >= 0, got %d", opts.Count)
	}

	result := Result{FirstPage: opts.Start, LastCompletedPage: opts.Start - 1}
	for page := opts.Start; ; page++ {
		abort := func(err error) (Result, error) {
			return result, &PageError{Page: page, LastCompleted: result.LastCompletedPage, Err: err}
		}

		if err := r.pacer.Wait(ctx); err != nil {
			return abort(err)
		}

		listing, err := r.fetchPage(ctx, opts, page)
		if err != nil {
			return abort(err)
		}

		works := listing.Works
		if opts.Count > 0 && result.Emitted+len(works) > opts.Count {
			works = works[:opts.Count-result.Emitted]
		}
		if err := r.emit(works); err != nil {
			return abort(err)
		}

		result.Emitted += len(works)
		result.Pages++
		result.LastCompletedPage = page
		metrics.ObserveWorksEmitted(len(works))
		metrics.SetLastCompletedPage(page)
		r.logger.Info("page completed",
			zap.Int("page", page),
			zap.Int("works", len(works)),
			zap.Int("emitted", result.Emitted),
		)

		switch {
		case opts.Count > 0 && result.Emitted >= opts.Count:
			result.Reason = StopCountReached
		case len(listing.Works) == 0:
			result.Reason = StopEmptyPage
		case !listing.HasNext:
			result.Reason = StopLastPage
		default:
			continue
		}
		return result, nil
	}
}

func (r *Runner) fetchPage(ctx context.Context, opts Options, page int) (scrape.Page, error) {
	pageURL, err := scrape.SearchURL(opts.Endpoint, page, opts.Query)
	if err != nil {
		return scrape.Page{}, err
	}
	r.logger.Debug("fetching page", zap.Int("page", page), zap.String("url", pageURL))

	start := time.Now()
	resp, err := r.fetcher.Fetch(ctx, pageURL)
	if err != nil {
		metrics.ObservePage(pageURL, metrics.StatusError, 0, time.Since(start))
		return scrape.Page{}, fmt.Errorf("fetch: %w", err)
	}
	listing, err := scrape.ParsePage(resp.Body)
	if err != nil {
		metrics.ObservePage(pageURL, metrics.StatusError, len(resp.Body), resp.Duration)
		return scrape.Page{}, fmt.Errorf("parse: %w", err)
	}
	metrics.ObservePage(pageURL, metrics.StatusOK, len(resp.Body), resp.Duration)
	return listing, nil
}

func (r *Runner) emit(works []work.Work) error {
	for _, w := range works {
		if err := w.Validate(); err != nil {
			return fmt.Errorf("work %q: %w", w.Title, err)
		}
		if err := r.enc.Encode(w); err != nil {
			return fmt.Errorf("write work %s: %w", w.ID, err)
		}
	}
	if err := r.out.Flush(); err != nil {
		return fmt.Errorf("flush output: %w", err)
	}
	return nil
}
