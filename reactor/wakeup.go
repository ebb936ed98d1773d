//go:build unix

// File: reactor/wakeup.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Self-pipe wakeup: the read end sits in every poll round, the write end
// is safe for one-byte writes from any goroutine.

package reactor

import (
	"fmt"
	"sync"

	"golang.org/x/sys/unix"
)

// newWakeupPipe returns a non-blocking pipe pair [read, write].
func newWakeupPipe() ([2]int, error) {
	fds := make([]int, 2)
	if err := unix.Pipe2(fds, unix.O_NONBLOCK|unix.O_CLOEXEC); err != nil {
		return [2]int{-1, -1}, fmt.Errorf("wakeup pipe: %w", err)
	}
	return [2]int{fds[0], fds[1]}, nil
}

// wakeupFD writes one byte to a wakeup descriptor. EINTR is retried;
// EAGAIN/EWOULDBLOCK mean the pipe is full and a wake is already pending.
func wakeupFD(fd int) {
	for {
		_, err := unix.Write(fd, []byte{'w'})
		if err == unix.EINTR {
			continue
		}
		if err != nil && err != unix.EAGAIN && err != unix.EWOULDBLOCK {
			plog.Warnf("wakeup write on fd #%d: %v", fd, err)
		}
		return
	}
}

// world tracks every live poll so WakeupWorld can reach them all.
var (
	worldMu sync.Mutex
	world   []*SocketPoll
)

func registerPoll(p *SocketPoll) {
	worldMu.Lock()
	world = append(world, p)
	worldMu.Unlock()
}

func unregisterPoll(p *SocketPoll) {
	worldMu.Lock()
	for i, q := range world {
		if q == p {
			world = append(world[:i], world[i+1:]...)
			break
		}
	}
	worldMu.Unlock()
}

// WakeupWorld wakes all socket polls.
func WakeupWorld() {
	worldMu.Lock()
	polls := append([]*SocketPoll(nil), world...)
	worldMu.Unlock()
	for _, p := range polls {
		p.Wakeup()
	}
}
