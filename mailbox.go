package mqtt311

import "sync"

// mailbox is an unbounded FIFO of closures consumed by the event loop.
// post never blocks, so timers, connection goroutines and API callers can
// all hand work to the loop without deadlocking on it.
type mailbox struct {
	mu     sync.Mutex
	queue  []func()
	signal chan struct{}
	closed bool
}

func newMailbox() *mailbox {
	return &mailbox{signal: make(chan struct{}, 1)}
}

// post enqueues f. It reports false once the mailbox is closed.
func (m *mailbox) post(f func()) bool {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return false
	}
	m.queue = append(m.queue, f)
	m.mu.Unlock()

	select {
	case m.signal <- struct{}{}:
	default:
	}
	return true
}

// drain takes every queued closure.
func (m *mailbox) drain() []func() {
	m.mu.Lock()
	defer m.mu.Unlock()
	q := m.queue
	m.queue = nil
	return q
}

// ready is signalled after post.
func (m *mailbox) ready() <-chan struct{} {
	return m.signal
}

// close rejects further posts and returns what was still queued.
func (m *mailbox) close() []func() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	q := m.queue
	m.queue = nil
	return q
}
