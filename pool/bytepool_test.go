// File: pool/bytepool_test.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package pool_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/momentics/collabio/pool"
)

func TestBytePool(t *testing.T) {
	p := pool.NewBytePool(1024)

	buf := p.GetBuffer()
	require.Len(t, buf, 1024)

	// Returning a shrunk slice must restore the full chunk.
	p.PutBuffer(buf[:10])
	again := p.GetBuffer()
	require.Len(t, again, 1024)

	// Foreign-sized buffers are dropped, not pooled.
	p.PutBuffer(make([]byte, 16))
	require.Len(t, p.GetBuffer(), 1024)
}

func TestReadChunksSize(t *testing.T) {
	require.Equal(t, pool.ReadChunkSize, pool.ReadChunks.Size())
	require.Len(t, pool.ReadChunks.GetBuffer(), pool.ReadChunkSize)
}
