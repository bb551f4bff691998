// Package fetch pages through the archive search listing and streams every
// work it finds as one JSON line.
package fetch

import (
	"context"
	"fmt"
	"time"
)

// Fetcher fetches a URL and returns the body plus metadata.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (Response, error)
}

// Response is one fetched listing page.
type Response struct {
	URL        string
	StatusCode int
	Body       []byte
	Duration   time.Duration
}

// StopReason says why a run ended without error.
type StopReason string

// Reasons a run finishes.
const (
	StopCountReached StopReason = "count reached"
	StopEmptyPage    StopReason = "empty page"
	StopLastPage     StopReason = "no next page"
)

// Result summarizes a finished or aborted run.
type Result struct {
	FirstPage         int
	LastCompletedPage int
	Pages             int
	Emitted           int
	Reason            StopReason
}

// PageError aborts a run. Everything up to LastCompleted has been written;
// rerunning with start = Page resumes without gaps or duplicates.
type PageError struct {
	Page          int
	LastCompleted int
	Err           error
}

func (e *PageError) Error() string {
	return fmt.Sprintf("page %d: %v (last completed page %d)", e.Page, e.Err, e.LastCompleted)
}

func (e *PageError) Unwrap() error {
	return e.Err
}

// ResumeFrom is the start page that continues the aborted run.
func (e *PageError) ResumeFrom() int {
	return e.LastCompleted + 1
}
