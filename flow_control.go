package mqtt311

import (
	"sync/atomic"

	"golang.org/x/sync/semaphore"
)

// FlowController bounds the number of QoS > 0 publishes that are sent but
// not yet acknowledged.
type FlowController struct {
	sem      *semaphore.Weighted
	max      int64
	inFlight atomic.Int64
}

// NewFlowController creates a new flow controller for the given window.
// A window of zero or less means 65535, the packet identifier space.
func NewFlowController(window int) *FlowController {
	if window <= 0 || window > maxPacketID {
		window = maxPacketID
	}
	return &FlowController{
		sem: semaphore.NewWeighted(int64(window)),
		max: int64(window),
	}
}

// Max returns the configured window.
func (f *FlowController) Max() int {
	return int(f.max)
}

// InFlight returns the current number of in-flight messages.
func (f *FlowController) InFlight() int {
	return int(f.inFlight.Load())
}

// Available returns the number of free slots.
func (f *FlowController) Available() int {
	return int(f.max - f.inFlight.Load())
}

// TryAcquire takes a slot without blocking.
func (f *FlowController) TryAcquire() bool {
	if !f.sem.TryAcquire(1) {
		return false
	}
	f.inFlight.Add(1)
	return true
}

// Release returns a slot. Releasing with nothing in flight does nothing.
func (f *FlowController) Release() {
	for {
		n := f.inFlight.Load()
		if n <= 0 {
			return
		}
		if f.inFlight.CompareAndSwap(n, n-1) {
			f.sem.Release(1)
			return
		}
	}
}

// Reset releases every held slot.
func (f *FlowController) Reset() {
	for f.InFlight() > 0 {
		f.Release()
	}
}
