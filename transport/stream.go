//go:build unix

// File: transport/stream.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Buffered, bidirectional byte-stream socket driving a SocketHandler on
// read/write readiness.

package transport

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sys/unix"

	"github.com/momentics/collabio/api"
	"github.com/momentics/collabio/pool"
)

// StreamSocket is a plain, non-blocking, data streaming socket.
//
// The input buffer is appended by the loop goroutine and drained by the
// handler; the output buffer is appended from any goroutine under the
// write lock and drained by the loop goroutine.
type StreamSocket struct {
	*Sock

	// handler receives the data callbacks. Owned by the socket; the
	// handler keeps only a non-owning api.Stream handle back.
	handler api.SocketHandler

	inBuffer []byte

	writeMu   sync.Mutex
	outBuffer []byte

	// closed is monotonic: once true, no handler callback follows.
	closed bool
}

var _ api.Socket = (*StreamSocket)(nil)
var _ api.Stream = (*StreamSocket)(nil)

// NewStreamSocket takes ownership of fd and handler, and fires OnConnect
// exactly once before returning.
func NewStreamSocket(fd int, handler api.SocketHandler) (*StreamSocket, error) {
	// Without a handler the socket makes no sense.
	if handler == nil {
		return nil, fmt.Errorf("stream socket #%d: nil handler", fd)
	}
	s := &StreamSocket{
		Sock:    NewSock(fd),
		handler: handler,
	}
	slog.Debugf("stream socket ctor #%d", fd)
	s.handler.OnConnect(s)
	return s, nil
}

// PollEvents declares read interest always, plus write interest while
// outgoing data is pending.
func (s *StreamSocket) PollEvents() int16 {
	if s.pendingWrites() > 0 || s.handler.HasQueuedWrites() {
		return unix.POLLIN | unix.POLLOUT
	}
	return unix.POLLIN
}

// UpdateTimeout keeps the poll deadline unchanged.
func (s *StreamSocket) UpdateTimeout(deadline time.Time) time.Time {
	return deadline
}

// Send appends data to the output buffer. With flush set it also attempts
// an immediate non-blocking drain; any remainder is flushed by the poll
// once the socket reports POLLOUT.
func (s *StreamSocket) Send(data []byte, flush bool) {
	if len(data) == 0 {
		return
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	s.outBuffer = append(s.outBuffer, data...)
	if flush {
		_ = s.writeOutgoingData()
	}
}

// SendHTTPResponse queues a pre-serialized response through the regular
// non-blocking write path. The socket stays non-blocking throughout; any
// remainder is drained on POLLOUT like every other write.
func (s *StreamSocket) SendHTTPResponse(data []byte) {
	s.Send(data, true)
}

// InBuffer returns a view of the buffered input. Loop goroutine only.
func (s *StreamSocket) InBuffer() []byte {
	return s.inBuffer
}

// ConsumeInput discards the first n buffered input bytes.
func (s *StreamSocket) ConsumeInput(n int) {
	if n >= len(s.inBuffer) {
		s.inBuffer = s.inBuffer[:0]
		return
	}
	s.inBuffer = append(s.inBuffer[:0], s.inBuffer[n:]...)
}

// ReadIncomingData reads all available data into the input buffer.
// Returns false iff the peer closed cleanly (read returned 0). Errors are
// left for the next poll round to observe.
func (s *StreamSocket) ReadIncomingData() bool {
	buf := pool.ReadChunks.GetBuffer()
	defer pool.ReadChunks.PutBuffer(buf)

	var n int
	for {
		var err error
		for {
			n, err = unix.Read(s.fd, buf)
			if err != unix.EINTR {
				break
			}
		}
		if n > 0 {
			s.inBuffer = append(s.inBuffer, buf[:n]...)
		}
		if n != len(buf) {
			break
		}
	}
	// Zero is EOF, a clean socket close; negative returns are handled by
	// the next poll.
	return n != 0
}

// HandleEvent processes one poll round's realized events:
// read everything available, let the handler consume framed messages
// until the input stops shrinking, top up and drain the output buffer,
// and fire OnDisconnect exactly once when the stream is finished.
func (s *StreamSocket) HandleEvent(now time.Time, events int16) api.HandleResult {
	closed := events&(unix.POLLHUP|unix.POLLERR|unix.POLLNVAL) != 0

	// Always try to read.
	if !s.ReadIncomingData() {
		closed = true
	}

	slog.Tracef("#%d: incoming data buffer %d bytes, closeSocket? %v",
		s.fd, len(s.inBuffer), closed)

	// Let the handler consume as many framed messages as it can; stop as
	// soon as a pass consumes nothing.
	oldSize := 0
	for len(s.inBuffer) > 0 && oldSize != len(s.inBuffer) {
		oldSize = len(s.inBuffer)
		s.handler.HandleIncomingMessage()
	}

	// If we have space for writing and that was requested.
	if events&unix.POLLOUT != 0 && s.pendingWrites() == 0 {
		s.handler.PerformWrites()
	}

	if events&unix.POLLOUT != 0 || s.pendingWrites() > 0 {
		// The buffer could have been flushed while we waited for the lock.
		if s.writeMu.TryLock() {
			var err error
			if len(s.outBuffer) > 0 {
				err = s.writeOutgoingData()
			}
			s.writeMu.Unlock()
			if errors.Is(err, unix.EPIPE) {
				closed = true
			}
		}
	}

	if closed {
		slog.Tracef("#%d: closed", s.fd)
		s.closed = true
		s.handler.OnDisconnect()
		return api.SocketClosed
	}
	return api.Continue
}

// Close fires OnDisconnect if the stream never saw one, then releases the
// descriptor.
func (s *StreamSocket) Close() error {
	slog.Debugf("stream socket dtor #%d", s.fd)
	if !s.closed {
		s.closed = true
		s.handler.OnDisconnect()
	}
	return s.Sock.Close()
}

// writeOutgoingData drains the output buffer until it empties or the
// write stops making progress. Callers hold the write lock.
func (s *StreamSocket) writeOutgoingData() error {
	for len(s.outBuffer) > 0 {
		var n int
		var err error
		for {
			n, err = unix.Write(s.fd, s.outBuffer)
			if err != unix.EINTR {
				break
			}
		}
		if n <= 0 {
			// The poll handles transient errors; EPIPE is the caller's
			// signal that the peer is gone.
			slog.Tracef("#%d: wrote outgoing data %d bytes: %v", s.fd, n, err)
			return err
		}
		slog.Tracef("#%d: wrote outgoing data %d bytes", s.fd, n)
		s.outBuffer = s.outBuffer[n:]
	}
	s.outBuffer = nil
	return nil
}

func (s *StreamSocket) pendingWrites() int {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return len(s.outBuffer)
}

// DumpState logs the stream buffers on top of the base socket state.
func (s *StreamSocket) DumpState() {
	s.Sock.DumpState()
	slog.Debugf("stream #%d in=%d out=%d closed=%v",
		s.fd, len(s.inBuffer), s.pendingWrites(), s.closed)
}
