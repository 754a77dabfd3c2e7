// Package pacer enforces the polite request cadence toward the remote
// service. Every remote fetch in a scan must go through one Wait call,
// it is the single choke point keeping the run under the tolerated
// request rate.
package pacer

import (
	"context"
	"sync"
	"time"
)

// DefaultInterval is a conservative cadence of one request per thirty
// seconds.
const DefaultInterval = time.Second * 30

type Pacer struct {
	mu       sync.Mutex
	interval time.Duration
	last     time.Time
}

// New creates a pacer with the given minimum interval between Wait
// returns. A non-positive interval falls back to DefaultInterval.
func New(interval time.Duration) *Pacer {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Pacer{interval: interval}
}

func (p *Pacer) Interval() time.Duration {
	return p.interval
}

// Wait blocks until at least the configured interval has elapsed since
// the previous Wait returned. The very first call returns immediately.
// Cancelling ctx unblocks the wait and returns ctx.Err() without
// consuming the slot.
func (p *Pacer) Wait(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.last.IsZero() {
		remaining := p.interval - time.Since(p.last)
		if remaining > 0 {
			timer := time.NewTimer(remaining)
			select {
			case <-timer.C:
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			}
		}
	}

	p.last = time.Now()
	return nil
}
