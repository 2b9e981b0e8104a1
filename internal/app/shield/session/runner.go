package session

import (
	"context"
	"time"
)

// Runner drives one session's countdown on a periodic tick. The tick only
// samples the clock; the countdown itself is elapsed wall-clock time, so a
// delayed or skipped tick never skews it.
type Runner struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// Start launches the tick loop. now defaults to time.Now. The loop ends by
// itself once the session has nothing left scheduled.
func Start(ctx context.Context, s *Session, interval time.Duration, now func() time.Time) *Runner {
	if interval <= 0 {
		interval = DefaultTickInterval
	}
	if now == nil {
		now = time.Now
	}

	ctx, cancel := context.WithCancel(ctx)
	r := &Runner{cancel: cancel, done: make(chan struct{})}

	go r.run(ctx, s, interval, now)
	return r
}

func (r *Runner) run(ctx context.Context, s *Session, interval time.Duration, now func() time.Time) {
	defer close(r.done)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for s.needsTicks() {
		select {
		case <-ticker.C:
			s.Tick(ctx, now())
		case <-ctx.Done():
			return
		}
	}
}

// Stop cancels the loop and waits for it to exit. Safe to call more than once.
func (r *Runner) Stop() {
	r.cancel()
	<-r.done
}

// Done is closed when the loop has exited.
func (r *Runner) Done() <-chan struct{} {
	return r.done
}
