//go:build unix

// File: transport/server.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Listening socket: accepts non-blocking connections and hands them to a
// socket factory, inserting the result into a destination poll.

package transport

import (
	"fmt"
	"net"
	"strconv"
	"time"

	"golang.org/x/sys/unix"

	"github.com/momentics/collabio/api"
)

// SocketInserter is the slice of the poll API the acceptor needs.
type SocketInserter interface {
	InsertNewSocket(api.Socket)
}

// SocketFactory builds a pollable socket around a freshly accepted fd.
type SocketFactory func(fd int) (api.Socket, error)

// ServerSocket accepts connections on a bound TCP address and dispatches
// each accepted fd through the factory into the client poll.
type ServerSocket struct {
	*Sock
	clientPoll SocketInserter
	factory    SocketFactory
}

var _ api.Socket = (*ServerSocket)(nil)

// NewServerSocket binds and listens on addr ("host:port"), non-blocking.
func NewServerSocket(addr string, clientPoll SocketInserter, factory SocketFactory) (*ServerSocket, error) {
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return nil, fmt.Errorf("server socket: bad address %q: %w", addr, err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return nil, fmt.Errorf("server socket: bad port %q: %w", portStr, err)
	}
	sa := &unix.SockaddrInet4{Port: port}
	if host != "" {
		ip := net.ParseIP(host)
		if ip == nil || ip.To4() == nil {
			return nil, fmt.Errorf("server socket: bad IPv4 host %q", host)
		}
		copy(sa.Addr[:], ip.To4())
	}

	fd, err := NewStreamFD()
	if err != nil {
		return nil, err
	}
	_ = unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1)
	if err := unix.Bind(fd, sa); err != nil {
		_ = unix.Close(fd)
		return nil, fmt.Errorf("server socket: bind %s: %w", addr, err)
	}
	if err := unix.Listen(fd, unix.SOMAXCONN); err != nil {
		_ = unix.Close(fd)
		return nil, fmt.Errorf("server socket: listen %s: %w", addr, err)
	}

	slog.Infof("listening on %s (fd #%d)", addr, fd)
	return &ServerSocket{
		Sock:       NewSock(fd),
		clientPoll: clientPoll,
		factory:    factory,
	}, nil
}

// PollEvents declares read interest only; accepting never writes.
func (s *ServerSocket) PollEvents() int16 {
	return unix.POLLIN
}

// UpdateTimeout keeps the poll deadline unchanged.
func (s *ServerSocket) UpdateTimeout(deadline time.Time) time.Time {
	return deadline
}

// HandleEvent accepts every pending connection. Accept errors other than
// the transient ones are logged and the socket stays in the poll.
func (s *ServerSocket) HandleEvent(now time.Time, events int16) api.HandleResult {
	for {
		nfd, _, err := unix.Accept4(s.fd, unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC)
		if err == unix.EINTR {
			continue
		}
		if err == unix.EAGAIN || err == unix.EWOULDBLOCK {
			return api.Continue
		}
		if err != nil {
			slog.Errorf("accept on fd #%d: %v", s.fd, err)
			return api.Continue
		}

		sock, err := s.factory(nfd)
		if err != nil {
			slog.Errorf("socket factory for fd #%d: %v", nfd, err)
			_ = unix.Close(nfd)
			continue
		}
		s.clientPoll.InsertNewSocket(sock)
	}
}
