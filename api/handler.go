// File: api/handler.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Handler contract between a stream socket and the protocol layer above.

package api

// Stream is the non-owning handle a handler keeps to its stream socket.
// It must only be resolved on demand; the socket owns the handler, never
// the other way around.
type Stream interface {
	// FD returns the OS native socket descriptor.
	FD() int

	// Send appends data to the output buffer. With flush set it also
	// attempts an immediate non-blocking drain.
	Send(data []byte, flush bool)

	// InBuffer returns a view of the buffered input. Loop goroutine only;
	// the view is invalidated by ConsumeInput.
	InBuffer() []byte

	// ConsumeInput discards the first n buffered input bytes.
	ConsumeInput(n int)

	// Shutdown half-closes the socket.
	Shutdown()
}

// SocketHandler processes the data of one stream socket. Callbacks must not
// block. OnConnect runs on the goroutine that constructs the socket, and an
// OnDisconnect fired by Close runs on the goroutine that calls Close; all
// other callbacks run on the owning loop goroutine.
type SocketHandler interface {
	// OnConnect is called exactly once, immediately after the socket is
	// constructed, before any other callback.
	OnConnect(sock Stream)

	// HandleIncomingMessage is called while the input buffer is non-empty
	// and shrinking. A handler that cannot make progress must consume
	// nothing and return to break the loop.
	HandleIncomingMessage()

	// HasQueuedWrites reports whether the handler has data it wants to
	// write. Consulted to compute poll interest; must be cheap.
	HasQueuedWrites() bool

	// PerformWrites is called when the socket is writable and the output
	// buffer is empty, to top up outgoing data via Send.
	PerformWrites()

	// OnDisconnect is called exactly once, before the socket is
	// destroyed. No callbacks follow it.
	OnDisconnect()
}
