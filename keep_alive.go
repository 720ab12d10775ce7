package mqtt311

import "time"

// keepAliveMonitor sends PINGREQ when the connection has been idle for the
// keep-alive interval in either direction, and expires the connection when
// no PINGRESP follows within another interval. It runs on the event loop.
type keepAliveMonitor struct {
	interval time.Duration
	sched    scheduler

	lastRead  time.Time
	lastWrite time.Time

	check   func()
	timeout func()

	ping   func()
	expire func()
}

func newKeepAliveMonitor(interval time.Duration, sched scheduler, ping, expire func()) *keepAliveMonitor {
	return &keepAliveMonitor{
		interval: interval,
		sched:    sched,
		ping:     ping,
		expire:   expire,
	}
}

// start begins monitoring from now.
func (m *keepAliveMonitor) start() {
	now := m.sched.now()
	m.lastRead = now
	m.lastWrite = now
	m.arm(m.interval)
}

func (m *keepAliveMonitor) arm(d time.Duration) {
	m.check = m.sched.schedule(d, m.tick)
}

func (m *keepAliveMonitor) tick() {
	m.check = nil

	now := m.sched.now()
	readIdle := now.Sub(m.lastRead)
	writeIdle := now.Sub(m.lastWrite)

	if readIdle >= m.interval || writeIdle >= m.interval {
		m.ping()
		if m.timeout == nil {
			m.timeout = m.sched.schedule(m.interval, m.expired)
		}
		m.arm(m.interval)
		return
	}

	m.arm(m.interval - max(readIdle, writeIdle))
}

func (m *keepAliveMonitor) expired() {
	m.timeout = nil
	m.stop()
	m.expire()
}

// readActivity records an inbound packet.
func (m *keepAliveMonitor) readActivity() {
	m.lastRead = m.sched.now()
}

// writeActivity records a completed write.
func (m *keepAliveMonitor) writeActivity() {
	m.lastWrite = m.sched.now()
}

// pong clears the pending PINGRESP timeout.
func (m *keepAliveMonitor) pong() {
	if m.timeout != nil {
		m.timeout()
		m.timeout = nil
	}
}

// awaitingPong reports whether a PINGREQ is unanswered.
func (m *keepAliveMonitor) awaitingPong() bool {
	return m.timeout != nil
}

func (m *keepAliveMonitor) stop() {
	if m.check != nil {
		m.check()
		m.check = nil
	}
	m.pong()
}
