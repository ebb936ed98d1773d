// File: pool/bytepool.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Fixed-size byte chunk pool backing the stream socket read path.

package pool

import "sync"

// ReadChunkSize is the read chunk used by stream sockets. SSL decodes
// blocks of 16 KiB, so for efficiency the plain path uses the same.
const ReadChunkSize = 16 * 1024

// BytePool recycles fixed-size byte slices.
type BytePool struct {
	size int
	pool sync.Pool
}

// NewBytePool creates a pool of slices of the given size.
func NewBytePool(size int) *BytePool {
	b := &BytePool{size: size}
	b.pool.New = func() any {
		return make([]byte, size)
	}
	return b
}

// GetBuffer returns a buffer from the pool.
func (b *BytePool) GetBuffer() []byte {
	return b.pool.Get().([]byte)
}

// PutBuffer returns a buffer to the pool. Buffers of the wrong size are
// dropped for the GC.
func (b *BytePool) PutBuffer(buf []byte) {
	if cap(buf) != b.size {
		return
	}
	b.pool.Put(buf[:b.size])
}

// Size returns the chunk size served by this pool.
func (b *BytePool) Size() int { return b.size }

// ReadChunks is the shared pool for socket read chunks.
var ReadChunks = NewBytePool(ReadChunkSize)
