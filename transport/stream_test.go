//go:build unix

// File: transport/stream_test.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package transport_test

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"

	"github.com/momentics/collabio/api"
	"github.com/momentics/collabio/transport"
)

// socketPair returns a connected, non-blocking AF_UNIX stream pair.
func socketPair(t *testing.T) (int, int) {
	t.Helper()
	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM, 0)
	require.NoError(t, err)
	require.NoError(t, unix.SetNonblock(fds[0], true))
	require.NoError(t, unix.SetNonblock(fds[1], true))
	return fds[0], fds[1]
}

// recordingHandler consumes whole input chunks and optionally echoes them.
type recordingHandler struct {
	sock        api.Stream
	connects    int
	disconnects int
	messages    []string
	echo        bool
	// consume bounds how many bytes one HandleIncomingMessage eats;
	// 0 means everything, -1 means nothing.
	consume int
	calls   int
}

func (h *recordingHandler) OnConnect(sock api.Stream) {
	h.sock = sock
	h.connects++
}

func (h *recordingHandler) HandleIncomingMessage() {
	h.calls++
	in := h.sock.InBuffer()
	if h.consume < 0 {
		return
	}
	n := len(in)
	if h.consume > 0 && h.consume < n {
		n = h.consume
	}
	h.messages = append(h.messages, string(in[:n]))
	h.sock.ConsumeInput(n)
	if h.echo {
		h.sock.Send([]byte(h.messages[len(h.messages)-1]), true)
	}
}

func (h *recordingHandler) HasQueuedWrites() bool { return false }
func (h *recordingHandler) PerformWrites()        {}
func (h *recordingHandler) OnDisconnect()         { h.disconnects++ }

func TestStreamSocketConnectThenRead(t *testing.T) {
	local, peer := socketPair(t)
	defer unix.Close(peer)

	h := &recordingHandler{}
	s, err := transport.NewStreamSocket(local, h)
	require.NoError(t, err)
	defer s.Close()

	require.Equal(t, 1, h.connects, "onConnect fires exactly once, before any data")

	_, err = unix.Write(peer, []byte("hello"))
	require.NoError(t, err)

	res := s.HandleEvent(time.Now(), unix.POLLIN)
	require.Equal(t, api.Continue, res)
	require.Equal(t, []string{"hello"}, h.messages)
	require.Equal(t, 1, h.connects)
	require.Zero(t, h.disconnects)
}

func TestStreamSocketNilHandlerRejected(t *testing.T) {
	local, peer := socketPair(t)
	defer unix.Close(peer)
	defer unix.Close(local)

	_, err := transport.NewStreamSocket(local, nil)
	require.Error(t, err)
}

func TestStreamSocketEcho(t *testing.T) {
	local, peer := socketPair(t)
	defer unix.Close(peer)

	h := &recordingHandler{echo: true}
	s, err := transport.NewStreamSocket(local, h)
	require.NoError(t, err)
	defer s.Close()

	_, err = unix.Write(peer, []byte("ping"))
	require.NoError(t, err)
	s.HandleEvent(time.Now(), unix.POLLIN)

	buf := make([]byte, 64)
	n, err := unix.Read(peer, buf)
	require.NoError(t, err)
	require.Equal(t, "ping", string(buf[:n]))
}

func TestStreamSocketFixedPointLoop(t *testing.T) {
	t.Run("one byte per call", func(t *testing.T) {
		local, peer := socketPair(t)
		defer unix.Close(peer)

		h := &recordingHandler{consume: 1}
		s, err := transport.NewStreamSocket(local, h)
		require.NoError(t, err)
		defer s.Close()

		_, err = unix.Write(peer, []byte("abc"))
		require.NoError(t, err)
		s.HandleEvent(time.Now(), unix.POLLIN)

		require.Equal(t, 3, h.calls, "loop runs until the buffer drains")
		require.Equal(t, []string{"a", "b", "c"}, h.messages)
	})

	t.Run("non-consuming handler breaks the loop", func(t *testing.T) {
		local, peer := socketPair(t)
		defer unix.Close(peer)

		h := &recordingHandler{consume: -1}
		s, err := transport.NewStreamSocket(local, h)
		require.NoError(t, err)
		defer s.Close()

		_, err = unix.Write(peer, []byte("stuck"))
		require.NoError(t, err)
		s.HandleEvent(time.Now(), unix.POLLIN)

		require.Equal(t, 1, h.calls, "no progress, no further calls")
		require.Equal(t, "stuck", string(s.InBuffer()))
	})
}

func TestStreamSocketCleanClose(t *testing.T) {
	local, peer := socketPair(t)

	h := &recordingHandler{}
	s, err := transport.NewStreamSocket(local, h)
	require.NoError(t, err)

	require.NoError(t, unix.Close(peer))

	res := s.HandleEvent(time.Now(), unix.POLLIN)
	require.Equal(t, api.SocketClosed, res)
	require.Equal(t, 1, h.disconnects)

	// Destroying the socket must not fire onDisconnect again.
	s.Close()
	require.Equal(t, 1, h.disconnects)
}

func TestStreamSocketCloseWithoutEvent(t *testing.T) {
	local, peer := socketPair(t)
	defer unix.Close(peer)

	h := &recordingHandler{}
	s, err := transport.NewStreamSocket(local, h)
	require.NoError(t, err)

	s.Close()
	require.Equal(t, 1, h.disconnects, "destructor path fires onDisconnect once")
}

func TestStreamSocketPollEvents(t *testing.T) {
	local, peer := socketPair(t)
	defer unix.Close(peer)

	h := &recordingHandler{}
	s, err := transport.NewStreamSocket(local, h)
	require.NoError(t, err)
	defer s.Close()

	require.Equal(t, int16(unix.POLLIN), s.PollEvents())

	s.Send([]byte("queued"), false)
	require.Equal(t, int16(unix.POLLIN|unix.POLLOUT), s.PollEvents())
}

func TestStreamSocketSendRoundTrip(t *testing.T) {
	local, peer := socketPair(t)
	defer unix.Close(peer)

	h := &recordingHandler{}
	s, err := transport.NewStreamSocket(local, h)
	require.NoError(t, err)
	defer s.Close()

	// Large enough to exceed the kernel socket buffer, forcing partial
	// writes and POLLOUT-driven drains.
	payload := bytes.Repeat([]byte("0123456789abcdef"), 64*1024)
	s.Send(payload, true)

	var received []byte
	buf := make([]byte, 64*1024)
	for len(received) < len(payload) {
		n, err := unix.Read(peer, buf)
		if err == unix.EAGAIN || err == unix.EWOULDBLOCK {
			// Nothing readable until the next drain.
			s.HandleEvent(time.Now(), unix.POLLOUT)
			continue
		}
		require.NoError(t, err)
		received = append(received, buf[:n]...)
	}
	require.True(t, bytes.Equal(payload, received), "all bytes arrive in order")
	require.Equal(t, int16(unix.POLLIN), s.PollEvents(), "output buffer fully drained")
}

func TestStreamSocketPerformWritesGating(t *testing.T) {
	local, peer := socketPair(t)
	defer unix.Close(peer)

	performed := 0
	h := &hookHandler{performWrites: func(sock api.Stream) {
		performed++
		sock.Send([]byte("topped-up"), false)
	}}
	s, err := transport.NewStreamSocket(local, h)
	require.NoError(t, err)
	defer s.Close()

	s.HandleEvent(time.Now(), unix.POLLOUT)
	require.Equal(t, 1, performed, "performWrites runs when writable and buffer empty")

	buf := make([]byte, 64)
	n, err := unix.Read(peer, buf)
	require.NoError(t, err)
	require.Equal(t, "topped-up", string(buf[:n]))
}

// hookHandler delegates performWrites to a closure.
type hookHandler struct {
	sock          api.Stream
	performWrites func(api.Stream)
}

func (h *hookHandler) OnConnect(sock api.Stream) { h.sock = sock }
func (h *hookHandler) HandleIncomingMessage() {
	h.sock.ConsumeInput(len(h.sock.InBuffer()))
}
func (h *hookHandler) HasQueuedWrites() bool { return h.performWrites != nil }
func (h *hookHandler) PerformWrites() {
	if h.performWrites != nil {
		h.performWrites(h.sock)
	}
}
func (h *hookHandler) OnDisconnect() {}
