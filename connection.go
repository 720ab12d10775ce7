package mqtt311

import (
	"bufio"
	"context"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// outbound is an encoded packet waiting for the writer.
type outbound struct {
	buf  *bytesBuffer
	done func(error)
}

// connection runs the reader and writer goroutines of one network
// connection. Everything it reports is posted to the event loop.
type connection struct {
	seq           uint64
	netConn       Conn
	maxPacketSize uint32
	writeTimeout  time.Duration

	post     func(func())
	onPacket func(seq uint64, p Packet)
	onClose  func(seq uint64, cause error)

	mu      sync.Mutex
	queue   []outbound
	closing bool
	cause   error
	signal  chan struct{}

	cancel context.CancelFunc
}

type connectionConfig struct {
	maxPacketSize uint32
	writeTimeout  time.Duration
	post          func(func())
	onPacket      func(seq uint64, p Packet)
	onClose       func(seq uint64, cause error)
}

func newConnection(seq uint64, netConn Conn, cfg connectionConfig) *connection {
	return &connection{
		seq:           seq,
		netConn:       netConn,
		maxPacketSize: cfg.maxPacketSize,
		writeTimeout:  cfg.writeTimeout,
		post:          cfg.post,
		onPacket:      cfg.onPacket,
		onClose:       cfg.onClose,
		signal:        make(chan struct{}, 1),
	}
}

// start launches the goroutines. onClose is posted once both have exited.
func (c *connection) start(ctx context.Context) {
	ctx, c.cancel = context.WithCancel(ctx)
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return c.readLoop()
	})

	g.Go(func() error {
		return c.writeLoop(gctx)
	})

	g.Go(func() error {
		<-gctx.Done()
		return c.netConn.Close()
	})

	go func() {
		err := g.Wait()
		c.failQueued()

		c.mu.Lock()
		if c.cause != nil {
			err = c.cause
		}
		c.mu.Unlock()

		if err == nil {
			err = ErrChannelClosed
		}
		c.post(func() { c.onClose(c.seq, err) })
	}()
}

func (c *connection) readLoop() error {
	r := bufio.NewReader(c.netConn)
	for {
		p, _, err := ReadPacket(r, c.maxPacketSize)
		if err != nil {
			return err
		}
		c.post(func() { c.onPacket(c.seq, p) })
	}
}

func (c *connection) writeLoop(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-c.signal:
		}

		batch := c.take()
		for i, out := range batch {
			if c.writeTimeout > 0 {
				_ = c.netConn.SetWriteDeadline(time.Now().Add(c.writeTimeout))
			}
			_, err := c.netConn.Write(out.buf.Bytes())
			putBytesBuffer(out.buf)
			c.complete(out, err)
			if err != nil {
				for _, rest := range batch[i+1:] {
					putBytesBuffer(rest.buf)
					c.complete(rest, ErrChannelClosed)
				}
				return err
			}
		}
	}
}

func (c *connection) take() []outbound {
	c.mu.Lock()
	defer c.mu.Unlock()
	q := c.queue
	c.queue = nil
	return q
}

func (c *connection) complete(out outbound, err error) {
	if out.done == nil {
		return
	}
	done := out.done
	c.post(func() { done(err) })
}

// failQueued completes everything the writer never got to.
func (c *connection) failQueued() {
	c.mu.Lock()
	c.closing = true
	q := c.queue
	c.queue = nil
	c.mu.Unlock()

	for _, out := range q {
		putBytesBuffer(out.buf)
		c.complete(out, ErrChannelClosed)
	}
}

// send encodes p and queues it for the writer. Encoding errors are returned
// directly; write errors reach done.
func (c *connection) send(p Packet, done func(error)) error {
	buf := getBytesBuffer()
	if _, err := WritePacket(buf, p, c.maxPacketSize); err != nil {
		putBytesBuffer(buf)
		return err
	}

	c.mu.Lock()
	if c.closing {
		c.mu.Unlock()
		putBytesBuffer(buf)
		return ErrChannelClosed
	}
	c.queue = append(c.queue, outbound{buf: buf, done: done})
	c.mu.Unlock()

	select {
	case c.signal <- struct{}{}:
	default:
	}
	return nil
}

// setCause records why the connection is going away without closing it yet.
// The first cause wins.
func (c *connection) setCause(cause error) {
	c.mu.Lock()
	if c.cause == nil {
		c.cause = cause
	}
	c.mu.Unlock()
}

// close shuts the connection down.
func (c *connection) close(cause error) {
	c.setCause(cause)
	if c.cancel != nil {
		c.cancel()
	}
}

func (c *connection) remoteAddr() string {
	if addr := c.netConn.RemoteAddr(); addr != nil {
		return addr.String()
	}
	return ""
}
