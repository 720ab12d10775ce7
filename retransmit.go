package mqtt311

import (
	"math/rand/v2"
	"time"
)

// RetransmissionConfig controls how unacknowledged packets are resent.
type RetransmissionConfig struct {
	// MaxAttempts is the number of resends before giving up.
	// Zero disables retransmission: the packet is sent once and waits for its ack.
	MaxAttempts int

	// InitialDelay is the wait before the first resend. Each following wait doubles.
	// Zero resends immediately; a negative value is treated as zero.
	InitialDelay time.Duration

	// JitterFactor spreads each wait uniformly over [1-j, 1+j] of its nominal value.
	JitterFactor float64
}

// DefaultRetransmissionConfig returns 3 attempts starting at 10s with 10% jitter.
func DefaultRetransmissionConfig() RetransmissionConfig {
	return RetransmissionConfig{
		MaxAttempts:  3,
		InitialDelay: 10 * time.Second,
		JitterFactor: 0.1,
	}
}

func (c RetransmissionConfig) normalize() RetransmissionConfig {
	if c.MaxAttempts < 0 {
		c.MaxAttempts = 0
	}
	if c.InitialDelay < 0 {
		c.InitialDelay = 0
	}
	if c.JitterFactor < 0 {
		c.JitterFactor = 0
	}
	if c.JitterFactor > 1 {
		c.JitterFactor = 1
	}
	return c
}

// delay returns the wait before the firing that follows attempt.
func (c RetransmissionConfig) delay(attempt int, rnd func() float64) time.Duration {
	if attempt > 30 {
		attempt = 30
	}
	base := float64(c.InitialDelay) * float64(uint64(1)<<attempt)
	if c.JitterFactor > 0 {
		base *= 1 - c.JitterFactor + 2*c.JitterFactor*rnd()
	}
	return time.Duration(base)
}

// retransmitter resends one pending packet until it is stopped or runs out of attempts.
// All methods run on the event loop.
type retransmitter struct {
	cfg    RetransmissionConfig
	sched  scheduler
	rnd    func() float64
	packet PacketType
	id     uint16

	// isCancelled reports whether the owning entry was cancelled elsewhere.
	isCancelled func() bool
	resend      func(attempt int)
	giveUp      func(err *RetransmissionError)

	attempt int
	started time.Time
	running bool
	stopped bool
	cancel  func()
}

func newRetransmitter(cfg RetransmissionConfig, sched scheduler, packet PacketType, id uint16) *retransmitter {
	return &retransmitter{
		cfg:         cfg.normalize(),
		sched:       sched,
		rnd:         rand.Float64,
		packet:      packet,
		id:          id,
		isCancelled: func() bool { return false },
		resend:      func(int) {},
		giveUp:      func(*RetransmissionError) {},
	}
}

// start arms the first firing. Calling start again, or after stop, does nothing.
func (r *retransmitter) start() {
	if r.running || r.stopped || r.cfg.MaxAttempts == 0 {
		return
	}
	r.running = true
	r.started = r.sched.now()
	r.arm()
}

func (r *retransmitter) arm() {
	r.cancel = r.sched.schedule(r.cfg.delay(r.attempt, r.rnd), r.fire)
}

func (r *retransmitter) fire() {
	if r.stopped || r.isCancelled() {
		return
	}

	r.attempt++
	if r.attempt > r.cfg.MaxAttempts {
		r.stop()
		r.giveUp(NewRetransmissionError(r.packet, r.id, r.attempt, r.sched.now().Sub(r.started)))
		return
	}

	r.resend(r.attempt)
	r.arm()
}

// stop cancels any armed firing. It is idempotent.
func (r *retransmitter) stop() {
	if r.stopped {
		return
	}
	r.stopped = true
	if r.cancel != nil {
		r.cancel()
		r.cancel = nil
	}
}

// attempts returns the number of firings so far.
func (r *retransmitter) attempts() int {
	return r.attempt
}
