package mqtt311

import "sync/atomic"

// payloadBuffer holds a message payload for the lifetime of a pending
// operation. Release returns the backing storage exactly once.
type payloadBuffer struct {
	buf      *bytesBuffer
	released atomic.Bool
	onFree   func()
}

func newPayloadBuffer(payload []byte, onFree func()) *payloadBuffer {
	b := getBytesBuffer()
	b.Write(payload)
	return &payloadBuffer{buf: b, onFree: onFree}
}

// Bytes returns the payload. It must not be used after Release.
func (p *payloadBuffer) Bytes() []byte {
	if p == nil || p.released.Load() {
		return nil
	}
	return p.buf.Bytes()
}

// Release frees the buffer. It reports true on the first call only.
func (p *payloadBuffer) Release() bool {
	if p == nil || !p.released.CompareAndSwap(false, true) {
		return false
	}
	putBytesBuffer(p.buf)
	p.buf = nil
	if p.onFree != nil {
		p.onFree()
	}
	return true
}

// Released reports whether Release has been called.
func (p *payloadBuffer) Released() bool {
	return p == nil || p.released.Load()
}
