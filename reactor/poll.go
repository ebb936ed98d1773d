//go:build unix

// File: reactor/poll.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// SocketPoll: a single-goroutine poll(2) reactor over a dynamic socket
// set. Cross-goroutine insertion, release and callbacks are staged under
// one mutex and realized on the loop goroutine after a wakeup byte, so
// the active set never needs locking during dispatch.
//
// poll(2) is used instead of epoll: it performs well up to a few hundred
// sockets, and this poll runs per document, which never hosts that many
// users; epoll's add/remove overhead buys nothing here.

package reactor

import (
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/eapache/queue"
	"golang.org/x/sys/unix"

	"github.com/momentics/collabio/api"
	"github.com/momentics/collabio/internal/log"
)

var plog = log.NewLogger("reactor")

// DefaultPollTimeoutMs bounds one poll round when no socket shortens it.
const DefaultPollTimeoutMs = 5000

// SocketPoll owns a dedicated polling goroutine, locked to one OS thread.
// All socket handler callbacks run on that goroutine.
type SocketPoll struct {
	// Debug name used for logging.
	name string

	// Main-loop wakeup pipe: [read, write].
	wakeupFDs [2]int

	// The sockets we are polling. Loop goroutine only.
	pollSockets []api.Socket
	// The fds to poll, rebuilt each round. Loop goroutine only.
	pollFds []unix.PollFd

	// mu protects the staged state below.
	mu           sync.Mutex
	newSockets   []api.Socket
	relSockets   []api.Socket
	newCallbacks *queue.Queue
	wakeupHook   func()

	stop atomic.Bool
	wg   sync.WaitGroup
	done sync.Once
}

var _ api.GracefulShutdown = (*SocketPoll)(nil)

// NewSocketPoll creates the poll and starts its polling goroutine.
// Called rather infrequently.
func NewSocketPoll(name string) (*SocketPoll, error) {
	fds, err := newWakeupPipe()
	if err != nil {
		return nil, err
	}
	p := &SocketPoll{
		name:         name,
		wakeupFDs:    fds,
		newCallbacks: queue.New(),
	}
	registerPoll(p)
	p.wg.Add(1)
	go p.pollingThread()
	return p, nil
}

// Name returns the poll's diagnostic name.
func (p *SocketPoll) Name() string { return p.name }

// ContinuePolling reports whether the loop should keep running.
func (p *SocketPoll) ContinuePolling() bool {
	return !p.stop.Load()
}

// Stop flags the polling goroutine to exit and wakes it.
func (p *SocketPoll) Stop() {
	p.stop.Store(true)
	p.Wakeup()
}

// Shutdown stops the loop, joins the goroutine, closes all owned sockets
// and the wakeup pipe. Idempotent.
func (p *SocketPoll) Shutdown() error {
	p.done.Do(func() {
		p.Stop()
		p.wg.Wait()
		unregisterPoll(p)
		for _, s := range p.pollSockets {
			_ = s.Close()
		}
		p.pollSockets = nil
		_ = unix.Close(p.wakeupFDs[0])
		_ = unix.Close(p.wakeupFDs[1])
	})
	return nil
}

// Wakeup interrupts the current poll wait from any goroutine.
func (p *SocketPoll) Wakeup() {
	wakeupFD(p.wakeupFDs[1])
}

// SetWakeupHook installs a function invoked on the loop goroutine at the
// end of every wake drain, after the staged callbacks.
func (p *SocketPoll) SetWakeupHook(fn func()) {
	p.mu.Lock()
	p.wakeupHook = fn
	p.mu.Unlock()
}

// InsertNewSocket stages a socket for insertion and wakes the loop. The
// socket joins the active set no later than the next wake drain.
func (p *SocketPoll) InsertNewSocket(sock api.Socket) {
	if sock == nil {
		return
	}
	p.mu.Lock()
	sock.SetThreadOwner(p.name)
	plog.Debugf("inserting socket #%d into %s", sock.FD(), p.name)
	p.newSockets = append(p.newSockets, sock)
	p.mu.Unlock()
	p.Wakeup()
}

// ReleaseSocket stages a socket for removal and wakes the loop. The
// socket is removed without closing; ownership returns to the caller. An
// in-flight handler invocation may still complete once.
func (p *SocketPoll) ReleaseSocket(sock api.Socket) {
	if sock == nil {
		return
	}
	p.mu.Lock()
	plog.Tracef("queuing to release socket #%d from %s", sock.FD(), p.name)
	p.relSockets = append(p.relSockets, sock)
	p.mu.Unlock()
	p.Wakeup()
}

// AddCallback schedules fn to run on the loop goroutine after the next
// wake, in staging order, never concurrently with socket dispatch.
func (p *SocketPoll) AddCallback(fn func()) {
	p.mu.Lock()
	p.newCallbacks.Add(fn)
	p.mu.Unlock()
	p.Wakeup()
}

// pollingThread is the loop body; one OS thread for the poll's lifetime.
func (p *SocketPoll) pollingThread() {
	defer p.wg.Done()
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	plog.Infof("starting polling thread [%s]", p.name)
	for p.ContinuePolling() {
		p.Poll(DefaultPollTimeoutMs)
	}
	plog.Infof("exiting polling thread [%s]", p.name)
}

// Poll runs one round: build the fd vector, wait for readiness or the
// deadline, dispatch ready sockets in reverse index order, then drain the
// wakeup pipe and realize staged insertions and callbacks.
func (p *SocketPoll) Poll(timeoutMaxMs int) {
	now := time.Now()
	deadline := now.Add(time.Duration(timeoutMaxMs) * time.Millisecond)

	// The events to poll on change each spin of the loop.
	deadline = p.setupPollFds(deadline)
	size := len(p.pollSockets)

	for {
		remainingMs := int(time.Until(deadline) / time.Millisecond)
		if remainingMs < 0 {
			remainingMs = 0
		}
		_, err := unix.Poll(p.pollFds, remainingMs)
		if err == unix.EINTR {
			continue
		}
		if err != nil {
			// Transient failure; the loop itself never terminates on it.
			plog.Errorf("poll failed in %s: %v", p.name, err)
		}
		break
	}

	// Fire the callbacks and remove dead fds, newest first so in-place
	// erasure stays safe.
	newNow := time.Now()
	for i := size - 1; i >= 0; i-- {
		sock := p.pollSockets[i]

		// A release staged while we slept wins over dispatch.
		if p.takeStagedRelease(sock) {
			plog.Debugf("releasing socket #%d (of %d) from %s",
				sock.FD(), len(p.pollSockets), p.name)
			p.pollSockets = append(p.pollSockets[:i], p.pollSockets[i+1:]...)
			continue
		}

		if p.pollFds[i].Revents == 0 {
			continue
		}
		res := p.dispatch(sock, newNow, p.pollFds[i].Revents)
		if res == api.SocketClosed {
			plog.Debugf("removing socket #%d (of %d) from %s",
				sock.FD(), len(p.pollSockets), p.name)
			p.pollSockets = append(p.pollSockets[:i], p.pollSockets[i+1:]...)
			_ = sock.Close()
		}
	}

	// Process the wakeup pipe (always the last entry).
	if p.pollFds[size].Revents != 0 {
		var drain [64]byte
		_, _ = unix.Read(p.wakeupFDs[0], drain[:])

		var invoke []func()
		p.mu.Lock()
		p.pollSockets = append(p.pollSockets, p.newSockets...)
		p.newSockets = nil
		for p.newCallbacks.Length() > 0 {
			invoke = append(invoke, p.newCallbacks.Remove().(func()))
		}
		hook := p.wakeupHook
		p.mu.Unlock()

		for _, fn := range invoke {
			p.safeCall(fn)
		}
		if hook != nil {
			hook()
		}
	}
}

// dispatch invokes one socket's event handling; a panic is contained and
// treated as a closed socket so it never escapes the loop goroutine.
func (p *SocketPoll) dispatch(sock api.Socket, now time.Time, revents int16) (res api.HandleResult) {
	res = api.SocketClosed
	defer func() {
		if r := recover(); r != nil {
			plog.Errorf("error while handling poll for socket #%d in %s: %v",
				sock.FD(), p.name, r)
		}
	}()
	return sock.HandleEvent(now, revents)
}

func (p *SocketPoll) safeCall(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			plog.Errorf("callback panic in %s: %v", p.name, r)
		}
	}()
	fn()
}

// takeStagedRelease consumes a staged release for sock, if any.
func (p *SocketPoll) takeStagedRelease(sock api.Socket) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i, rel := range p.relSockets {
		if rel == sock {
			p.relSockets = append(p.relSockets[:i], p.relSockets[i+1:]...)
			return true
		}
	}
	return false
}

// setupPollFds drains staged releases and rebuilds the fd vector: one
// entry per active socket plus the wakeup read end last. Each socket may
// contract the deadline; the earliest wins.
func (p *SocketPoll) setupPollFds(deadline time.Time) time.Time {
	p.mu.Lock()
	rel := p.relSockets
	p.relSockets = nil
	p.mu.Unlock()

	for _, sock := range rel {
		for i, active := range p.pollSockets {
			if active == sock {
				plog.Debugf("releasing socket #%d (of %d) from %s",
					sock.FD(), len(p.pollSockets), p.name)
				p.pollSockets = append(p.pollSockets[:i], p.pollSockets[i+1:]...)
				break
			}
		}
	}

	p.pollFds = p.pollFds[:0]
	for _, sock := range p.pollSockets {
		p.pollFds = append(p.pollFds, unix.PollFd{
			Fd:     int32(sock.FD()),
			Events: sock.PollEvents(),
		})
		if earlier := sock.UpdateTimeout(deadline); earlier.Before(deadline) {
			deadline = earlier
		}
	}
	p.pollFds = append(p.pollFds, unix.PollFd{
		Fd:     int32(p.wakeupFDs[0]),
		Events: unix.POLLIN,
	})
	return deadline
}

// DumpState logs the poll's active set.
func (p *SocketPoll) DumpState() {
	plog.Debugf("poll [%s]: %d active sockets", p.name, len(p.pollSockets))
}
