package mqtt311

import (
	"sync/atomic"
	"time"
)

// scheduler arms one-shot timers. Callbacks run on the client event loop.
type scheduler interface {
	now() time.Time
	schedule(d time.Duration, f func()) (cancel func())
}

// loopScheduler backs timers with time.AfterFunc and posts the callback to
// the mailbox when the timer fires. A callback cancelled after it was posted
// does not run.
type loopScheduler struct {
	post func(func())
}

func (s loopScheduler) now() time.Time {
	return time.Now()
}

func (s loopScheduler) schedule(d time.Duration, f func()) func() {
	var cancelled atomic.Bool
	t := time.AfterFunc(d, func() {
		s.post(func() {
			if !cancelled.Load() {
				f()
			}
		})
	})
	return func() {
		cancelled.Store(true)
		t.Stop()
	}
}
