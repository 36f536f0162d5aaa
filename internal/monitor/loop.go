package monitor

import (
	"context"
	"time"
)

// Loop serializes all monitor state transitions onto a single goroutine.
// Bus notifications, poll results and timer expiries are delivered as
// ordinary events, so no two fault evaluation passes ever overlap.
type Loop struct {
	events chan func()
}

func NewLoop() *Loop {
	return &Loop{
		events: make(chan func(), 256),
	}
}

// Post schedules fn to run on the loop goroutine.
func (l *Loop) Post(fn func()) {
	l.events <- fn
}

// PostSync runs fn on the loop goroutine and waits for it to finish.
func (l *Loop) PostSync(fn func()) {
	done := make(chan struct{})
	l.events <- func() {
		fn()
		close(done)
	}
	<-done
}

func (l *Loop) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case fn := <-l.events:
			fn()
		}
	}
}

// Timer delivers its callback as an event on the loop. Stop is
// idempotent and an expiry racing a Stop is discarded, the generation
// counter makes sure a cancelled timer never delivers.
type Timer struct {
	loop *Loop
	fn   func()

	interval time.Duration
	timer    *time.Timer
	gen      uint64
	running  bool
}

func NewTimer(loop *Loop, fn func()) *Timer {
	return &Timer{
		loop: loop,
		fn:   fn,
	}
}

// StartOnce (re)arms the timer to fire once after delay.
func (t *Timer) StartOnce(delay time.Duration) {
	t.arm(delay, 0)
}

// StartRepeating (re)arms the timer to fire every interval.
func (t *Timer) StartRepeating(interval time.Duration) {
	t.arm(interval, interval)
}

func (t *Timer) arm(delay time.Duration, interval time.Duration) {
	t.Stop()
	t.running = true
	t.interval = interval
	gen := t.gen
	t.timer = time.AfterFunc(delay, func() {
		t.loop.Post(func() {
			t.fire(gen)
		})
	})
}

func (t *Timer) fire(gen uint64) {
	if gen != t.gen || !t.running {
		return
	}
	if t.interval > 0 {
		next := t.gen
		t.timer = time.AfterFunc(t.interval, func() {
			t.loop.Post(func() {
				t.fire(next)
			})
		})
	} else {
		t.running = false
	}
	t.fn()
}

// Stop disarms the timer. Safe to call even if the timer was never armed.
func (t *Timer) Stop() {
	t.gen++
	if t.timer != nil {
		t.timer.Stop()
		t.timer = nil
	}
	t.running = false
}

func (t *Timer) Running() bool {
	return t.running
}
