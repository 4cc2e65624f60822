package jsonmap

import (
	"bytes"
	"sync"
)

// bytesBufPool reuses scratch buffers for number literals, raw values and
// Marshal output.
var bytesBufPool = sync.Pool{
	New: func() any {
		return bytes.NewBuffer(make([]byte, 0, BUFFER_SIZE))
	},
}

// maxPooledBuffer keeps one huge document from pinning its buffer in the pool.
const maxPooledBuffer = 64 * 1024

func getBuffer() *bytes.Buffer {
	buf := bytesBufPool.Get().(*bytes.Buffer)
	buf.Reset()
	return buf
}

func putBuffer(buf *bytes.Buffer) {
	if buf.Cap() > maxPooledBuffer {
		return
	}
	bytesBufPool.Put(buf)
}
