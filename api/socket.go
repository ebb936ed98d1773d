// File: api/socket.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Pollable socket contract consumed by the reactor.

package api

import "time"

// HandleResult tells the reactor what to do with a socket after an event.
type HandleResult int

const (
	// Continue keeps the socket in the active set.
	Continue HandleResult = iota
	// SocketClosed removes the socket from the active set; the reactor
	// closes it afterwards.
	SocketClosed
)

// Socket is a non-blocking file descriptor pollable by a SocketPoll.
//
// PollEvents and HandleEvent are invoked only on the owning loop
// goroutine. The event masks use poll(2) bits (POLLIN, POLLOUT, ...).
type Socket interface {
	// FD returns the OS native socket descriptor.
	FD() int

	// PollEvents returns the mask of events the socket wants polled.
	PollEvents() int16

	// UpdateTimeout may contract the poll deadline to match the socket's
	// needs. It returns the (possibly earlier) deadline to use.
	UpdateTimeout(deadline time.Time) time.Time

	// HandleEvent processes the realized event mask for one poll round.
	HandleEvent(now time.Time, events int16) HandleResult

	// Shutdown half-closes both directions, best-effort.
	Shutdown()

	// Close releases the descriptor. The fd is owned exclusively by the
	// socket and is valid until Close.
	Close() error

	// SetThreadOwner records the name of the owning poll, for diagnostics.
	SetThreadOwner(name string)
}
