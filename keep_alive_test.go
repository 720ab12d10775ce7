package mqtt311

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type keepAliveCalls struct {
	pings   int
	expired int
}

func newTestKeepAlive(interval time.Duration) (*keepAliveMonitor, *fakeScheduler, *keepAliveCalls) {
	sched := newFakeScheduler()
	calls := &keepAliveCalls{}
	m := newKeepAliveMonitor(interval, sched,
		func() { calls.pings++ },
		func() { calls.expired++ },
	)
	return m, sched, calls
}

func TestKeepAlivePingsWhenIdle(t *testing.T) {
	m, sched, calls := newTestKeepAlive(10 * time.Second)
	m.start()

	sched.advance(9 * time.Second)
	assert.Zero(t, calls.pings)

	sched.advance(time.Second)
	assert.Equal(t, 1, calls.pings)
	assert.True(t, m.awaitingPong())

	m.pong()
	assert.False(t, m.awaitingPong())
	assert.Zero(t, calls.expired)
}

func TestKeepAliveActivityDefersPing(t *testing.T) {
	m, sched, calls := newTestKeepAlive(10 * time.Second)
	m.start()

	sched.advance(5 * time.Second)
	m.readActivity()
	m.writeActivity()

	sched.advance(5 * time.Second)
	assert.Zero(t, calls.pings)

	sched.advance(5 * time.Second)
	assert.Equal(t, 1, calls.pings)
}

func TestKeepAliveWritesAloneDoNotDeferPing(t *testing.T) {
	m, sched, calls := newTestKeepAlive(10 * time.Second)
	m.start()

	sched.advance(5 * time.Second)
	m.writeActivity()

	sched.advance(5 * time.Second)
	assert.Equal(t, 1, calls.pings)
}

func TestKeepAliveExpiresWithoutPong(t *testing.T) {
	m, sched, calls := newTestKeepAlive(10 * time.Second)
	m.start()

	sched.advance(10 * time.Second)
	assert.Equal(t, 1, calls.pings)

	sched.advance(10 * time.Second)
	assert.Equal(t, 1, calls.expired)
	assert.Equal(t, 1, calls.pings)
	assert.False(t, m.awaitingPong())

	sched.advance(time.Minute)
	assert.Equal(t, 1, calls.pings)
	assert.Zero(t, sched.pending())
}

func TestKeepAlivePongKeepsConnection(t *testing.T) {
	m, sched, calls := newTestKeepAlive(10 * time.Second)
	m.start()

	for range 5 {
		sched.advance(10 * time.Second)
		m.readActivity()
		m.pong()
	}

	assert.Equal(t, 5, calls.pings)
	assert.Zero(t, calls.expired)
}

func TestKeepAliveStop(t *testing.T) {
	m, sched, calls := newTestKeepAlive(10 * time.Second)
	m.start()

	sched.advance(10 * time.Second)
	m.stop()
	assert.False(t, m.awaitingPong())

	sched.advance(time.Minute)
	assert.Equal(t, 1, calls.pings)
	assert.Zero(t, calls.expired)
	assert.Zero(t, sched.pending())
}
