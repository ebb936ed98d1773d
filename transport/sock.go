//go:build unix

// File: transport/sock.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Non-blocking socket base: exclusive fd ownership, socket options,
// half-close. Concrete sockets (stream, server) embed Sock and add their
// poll-event declaration and event dispatch.

package transport

import (
	"fmt"

	"golang.org/x/sys/unix"

	"github.com/momentics/collabio/internal/log"
)

var slog = log.NewLogger("socket")

// Sock owns one OS socket descriptor from construction until Close.
// All read/write/poll operations observe non-blocking semantics.
type Sock struct {
	fd int
	// Name of the owning poll, recorded on insertion. Diagnostics only.
	owner string
}

// NewStreamFD creates a non-blocking TCP socket descriptor with
// TCP_NODELAY set.
func NewStreamFD() (int, error) {
	fd, err := unix.Socket(unix.AF_INET, unix.SOCK_STREAM|unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC, unix.IPPROTO_TCP)
	if err != nil {
		return -1, fmt.Errorf("socket create: %w", err)
	}
	_ = unix.SetsockoptInt(fd, unix.IPPROTO_TCP, unix.TCP_NODELAY, 1)
	return fd, nil
}

// NewSock wraps an existing descriptor, typically from accept, and sets
// no-delay to manage latency around packet aggregation.
func NewSock(fd int) *Sock {
	s := &Sock{fd: fd}
	s.SetNoDelay(true)
	return s
}

// FD returns the OS native socket descriptor.
func (s *Sock) FD() int { return s.fd }

// Close releases the descriptor.
func (s *Sock) Close() error {
	return unix.Close(s.fd)
}

// Shutdown half-closes both directions, best-effort.
func (s *Sock) Shutdown() {
	_ = unix.Shutdown(s.fd, unix.SHUT_RDWR)
}

// SetNoDelay toggles TCP_NODELAY. Returns true on success.
func (s *Sock) SetNoDelay(noDelay bool) bool {
	val := 0
	if noDelay {
		val = 1
	}
	return unix.SetsockoptInt(s.fd, unix.IPPROTO_TCP, unix.TCP_NODELAY, val) == nil
}

// SetSendBufferSize sets the send buffer in size bytes.
// Must be called before accept or connect. The kernel allocates twice
// this size for admin purposes, so a subsequent GetSendBufferSize returns
// the larger (actual) buffer size, if this succeeds.
// Returns true on success only.
func (s *Sock) SetSendBufferSize(size int) bool {
	return unix.SetsockoptInt(s.fd, unix.SOL_SOCKET, unix.SO_SNDBUF, size) == nil
}

// GetSendBufferSize returns the actual send buffer size in bytes, -1 on
// failure.
func (s *Sock) GetSendBufferSize() int {
	size, err := unix.GetsockoptInt(s.fd, unix.SOL_SOCKET, unix.SO_SNDBUF)
	if err != nil {
		return -1
	}
	return size
}

// SetReceiveBufferSize sets the receive buffer in size bytes.
// Must be called before accept or connect. Returns true on success only.
func (s *Sock) SetReceiveBufferSize(size int) bool {
	return unix.SetsockoptInt(s.fd, unix.SOL_SOCKET, unix.SO_RCVBUF, size) == nil
}

// GetReceiveBufferSize returns the actual receive buffer size in bytes,
// -1 on failure.
func (s *Sock) GetReceiveBufferSize() int {
	size, err := unix.GetsockoptInt(s.fd, unix.SOL_SOCKET, unix.SO_RCVBUF)
	if err != nil {
		return -1
	}
	return size
}

// GetError reads and returns the pending socket error, logging it so the
// failure is visible even when the caller ignores the result. Returns -1
// when the error code cannot be read.
func (s *Sock) GetError() int {
	code, err := unix.GetsockoptInt(s.fd, unix.SOL_SOCKET, unix.SO_ERROR)
	if err != nil {
		return -1
	}
	if code != 0 {
		slog.Errorf("socket #%d error: %s", s.fd, unix.Errno(code).Error())
	}
	return code
}

// SetThreadOwner records the name of the owning poll.
func (s *Sock) SetThreadOwner(name string) {
	s.owner = name
}

// ThreadOwner returns the name of the owning poll, empty before insertion.
func (s *Sock) ThreadOwner() string { return s.owner }

// DumpState logs the socket descriptor state.
func (s *Sock) DumpState() {
	slog.Debugf("socket #%d owner=%q sndbuf=%d rcvbuf=%d",
		s.fd, s.owner, s.GetSendBufferSize(), s.GetReceiveBufferSize())
}
