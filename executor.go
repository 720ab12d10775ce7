package mqtt311

import (
	"sync"

	"github.com/sourcegraph/conc/panics"
)

// Callback receives connection notifications. Methods run on the handler
// goroutine, in order with message delivery.
type Callback interface {
	// ConnectionLost is called when the connection closes without Disconnect
	// and the broker did not refuse it.
	ConnectionLost(err error)

	// OnSuccessfulReconnect is called after every accepted CONNACK but the first.
	OnSuccessfulReconnect()
}

// ServerDisconnectCallback is implemented by callbacks that want to know
// when the broker sent DISCONNECT.
type ServerDisconnectCallback interface {
	ServerDisconnected()
}

// PacketObserver is implemented by callbacks that want to see every packet
// read from or written to the connection.
type PacketObserver interface {
	PacketReceived(p Packet)
	PacketSent(p Packet)
}

// CallbackFuncs adapts functions to Callback. Nil fields are skipped.
type CallbackFuncs struct {
	OnConnectionLost func(err error)
	OnReconnect      func()
}

// ConnectionLost calls OnConnectionLost.
func (f CallbackFuncs) ConnectionLost(err error) {
	if f.OnConnectionLost != nil {
		f.OnConnectionLost(err)
	}
}

// OnSuccessfulReconnect calls OnReconnect.
func (f CallbackFuncs) OnSuccessfulReconnect() {
	if f.OnReconnect != nil {
		f.OnReconnect()
	}
}

// executor runs handlers and callbacks one at a time on its own goroutine.
type executor struct {
	queue    *mailbox
	logger   Logger
	quit     chan struct{}
	quitOnce sync.Once
	done     chan struct{}
}

func newExecutor(logger Logger) *executor {
	e := &executor{
		queue:  newMailbox(),
		logger: logger,
		quit:   make(chan struct{}),
		done:   make(chan struct{}),
	}
	go e.run()
	return e
}

// submit queues f. It reports false after stop.
func (e *executor) submit(f func()) bool {
	return e.queue.post(f)
}

func (e *executor) run() {
	defer close(e.done)

	for {
		select {
		case <-e.queue.ready():
			e.runAll(e.queue.drain())
		case <-e.quit:
			e.runAll(e.queue.close())
			return
		}
	}
}

func (e *executor) runAll(tasks []func()) {
	for _, task := range tasks {
		var pc panics.Catcher
		pc.Try(task)
		if r := pc.Recovered(); r != nil {
			e.logger.Error("handler panic", LogFields{LogFieldError: r.AsError()})
		}
	}
}

// stop runs the tasks already queued and waits for the goroutine to exit.
func (e *executor) stop() {
	e.quitOnce.Do(func() { close(e.quit) })
	<-e.done
}
