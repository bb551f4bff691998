package fetch

import (
	"context"
	"fmt"
	"time"

	"github.com/JakeFAU/fandom-data/internal/metrics"
)

// pauseController abstracts how the fetcher sleeps between pages.
type pauseController interface {
	Pause(ctx context.Context, delay time.Duration) error
}

type timerPauseController struct{}

func (timerPauseController) Pause(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return nil
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return fmt.Errorf("pacing interrupted: %w", ctx.Err())
	case <-timer.C:
		return nil
	}
}

// Pacer enforces the fixed inter-request interval. Up to burst page fetches
// are issued back to back; the interval is then honored before the next one.
// With burst 1 every request after the first waits the full interval.
type Pacer struct {
	interval time.Duration
	burst    int
	issued   int
	pauser   pauseController
}

// NewPacer returns a Pacer sleeping interval after every burst requests.
func NewPacer(interval time.Duration, burst int) *Pacer {
	if burst < 1 {
		burst = 1
	}
	return &Pacer{
		interval: interval,
		burst:    burst,
		pauser:   timerPauseController{},
	}
}

// Wait must be called before every request.
func (p *Pacer) Wait(ctx context.Context) error {
	if p.issued > 0 && p.issued%p.burst == 0 && p.interval > 0 {
		start := time.Now()
		if err := p.pauser.Pause(ctx, p.interval); err != nil {
			return err
		}
		metrics.ObservePacingDelay(time.Since(start))
	}
	p.issued++
	return nil
}
