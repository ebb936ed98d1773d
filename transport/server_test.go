//go:build unix

// File: transport/server_test.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package transport_test

import (
	"fmt"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"

	"github.com/momentics/collabio/api"
	"github.com/momentics/collabio/transport"
)

// collectingInserter stands in for the client poll.
type collectingInserter struct {
	mu  sync.Mutex
	got []api.Socket
}

func (c *collectingInserter) InsertNewSocket(s api.Socket) {
	c.mu.Lock()
	c.got = append(c.got, s)
	c.mu.Unlock()
}

func (c *collectingInserter) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.got)
}

func TestServerSocketAccept(t *testing.T) {
	ins := &collectingInserter{}
	server, err := transport.NewServerSocket("127.0.0.1:0", ins, func(fd int) (api.Socket, error) {
		return transport.NewStreamSocket(fd, &recordingHandler{})
	})
	require.NoError(t, err)
	defer server.Close()

	sa, err := unix.Getsockname(server.FD())
	require.NoError(t, err)
	port := sa.(*unix.SockaddrInet4).Port

	conn, err := net.Dial("tcp", fmt.Sprintf("127.0.0.1:%d", port))
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool {
		server.HandleEvent(time.Now(), unix.POLLIN)
		return ins.count() == 1
	}, 2*time.Second, 10*time.Millisecond)
}

func TestServerSocketBadAddress(t *testing.T) {
	_, err := transport.NewServerSocket("nonsense", nil, nil)
	require.Error(t, err)

	_, err = transport.NewServerSocket("[::1]:9980", nil, nil)
	require.Error(t, err, "IPv6 hosts are rejected by the IPv4 acceptor")
}
