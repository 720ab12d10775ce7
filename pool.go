package mqtt311

import "sync"

// typedPool is a sync.Pool that hands out *T values.
type typedPool[T any] struct {
	p sync.Pool
}

func (tp *typedPool[T]) get() *T {
	if v, ok := tp.p.Get().(*T); ok {
		return v
	}
	return new(T)
}

func (tp *typedPool[T]) put(v *T) {
	if v != nil {
		tp.p.Put(v)
	}
}

// Encode buffers larger than this are left to the garbage collector so a
// single large PUBLISH does not pin its memory in the pool.
const maxPooledBuffer = 64 * 1024

var (
	readers typedPool[bytesReader]
	buffers typedPool[bytesBuffer]
)

func getBytesReader(data []byte) *bytesReader {
	r := readers.get()
	r.data, r.pos = data, 0
	return r
}

func putBytesReader(r *bytesReader) {
	if r == nil {
		return
	}
	r.data, r.pos = nil, 0
	readers.put(r)
}

func getBytesBuffer() *bytesBuffer {
	b := buffers.get()
	b.data = b.data[:0]
	return b
}

func putBytesBuffer(b *bytesBuffer) {
	if b == nil || cap(b.data) > maxPooledBuffer {
		return
	}
	b.data = b.data[:0]
	buffers.put(b)
}
