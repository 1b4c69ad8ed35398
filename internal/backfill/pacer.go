package backfill

import (
	"context"
	"time"
)

// Pacer enforces a minimum interval between successive calls to rate-limited
// upstreams. The clock and sleep functions are injectable so tests never wait
// on the wall clock.
type Pacer struct {
	interval time.Duration
	now      func() time.Time
	sleep    func(time.Duration)
	last     time.Time
}

// NewPacer creates a pacer bound to the real clock
func NewPacer(interval time.Duration) *Pacer {
	return NewPacerWithClock(interval, time.Now, time.Sleep)
}

// NewPacerWithClock creates a pacer with injected time functions
func NewPacerWithClock(interval time.Duration, now func() time.Time, sleep func(time.Duration)) *Pacer {
	return &Pacer{
		interval: interval,
		now:      now,
		sleep:    sleep,
	}
}

// Wait blocks until at least the configured interval has passed since the
// previous Wait. The first call never blocks. A canceled context returns
// immediately with its error.
func (p *Pacer) Wait(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if p.interval > 0 && !p.last.IsZero() {
		if remaining := p.interval - p.now().Sub(p.last); remaining > 0 {
			p.sleep(remaining)
		}
	}

	p.last = p.now()
	return ctx.Err()
}
