package mqtt311

import (
	"io"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBytesReader(t *testing.T) {
	r := getBytesReader([]byte("hello world"))
	defer putBytesReader(r)

	buf := make([]byte, 5)
	n, err := r.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, 5, n)
	assert.Equal(t, "hello", string(buf))

	assert.Equal(t, " world", string(r.rest()))
	assert.Nil(t, r.rest())

	_, err = r.Read(buf)
	assert.ErrorIs(t, err, io.EOF)
}

func TestPutBytesReaderClears(t *testing.T) {
	r := getBytesReader([]byte("x"))
	putBytesReader(r)
	assert.Nil(t, r.data)
	assert.Zero(t, r.pos)

	putBytesReader(nil)
}

func TestBytesBuffer(t *testing.T) {
	b := getBytesBuffer()
	assert.Zero(t, b.Len())

	_, _ = b.Write([]byte("ab"))
	_ = b.WriteByte('c')
	assert.Equal(t, "abc", string(b.Bytes()))
	assert.Equal(t, 3, b.Len())

	putBytesBuffer(b)
	assert.Zero(t, b.Len())

	putBytesBuffer(nil)
}

func TestPutBytesBufferOversized(t *testing.T) {
	b := getBytesBuffer()
	_, _ = b.Write(make([]byte, maxPooledBuffer+1))
	putBytesBuffer(b)

	// Oversized buffers are left to the garbage collector untouched.
	assert.Equal(t, maxPooledBuffer+1, b.Len())
}

func TestPoolConcurrency(t *testing.T) {
	var wg sync.WaitGroup
	for i := range 16 {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for range 100 {
				b := getBytesBuffer()
				_ = b.WriteByte(byte(i))
				assert.Equal(t, []byte{byte(i)}, b.Bytes())
				putBytesBuffer(b)
			}
		}(i)
	}
	wg.Wait()
}

func TestTypedPool(t *testing.T) {
	var p typedPool[bytesReader]

	r := p.get()
	require.NotNil(t, r)
	r.pos = 3
	p.put(r)
	p.put(nil)

	// Values are reused as-is; callers reset them.
	assert.NotNil(t, p.get())
}
