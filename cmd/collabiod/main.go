//go:build unix

// File: cmd/collabiod/main.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// collabiod: demo document server on the collabio core. Accepts TCP
// connections, frames newline-delimited messages, routes tile traffic
// through a TileQueue consumed by a worker, applies "cursor" lines to the
// view's cursor rectangle, and echoes other non-empty lines.

package main

import (
	"os"
	"os/signal"
	"strconv"
	"strings"
	"sync"
	"syscall"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/momentics/collabio/api"
	"github.com/momentics/collabio/control"
	"github.com/momentics/collabio/internal/log"
	"github.com/momentics/collabio/queue"
	"github.com/momentics/collabio/reactor"
	"github.com/momentics/collabio/tile"
	"github.com/momentics/collabio/transport"
)

var dlog = log.NewLogger("collabiod")

type flags struct {
	Listen        string
	PollTimeoutMs int
	Verbose       bool
}

func main() {
	f := new(flags)

	command := &cobra.Command{
		Use:   "collabiod",
		Short: "collaborative document server core demo",
		Run: func(cmd *cobra.Command, args []string) {
			run(f)
		},
	}
	command.Flags().StringVarP(&f.Listen, "listen", "l", "127.0.0.1:9980", "Set the listen address.")
	command.Flags().IntVar(&f.PollTimeoutMs, "poll-timeout-ms", reactor.DefaultPollTimeoutMs, "Poll timeout in ms, stored in the configuration; the polls run with the default timeout.")
	command.Flags().BoolVarP(&f.Verbose, "verbose", "v", false, "Enable debug logging.")

	if err := command.Execute(); err != nil {
		dlog.Fatal(err)
	}
}

func run(f *flags) {
	if f.Verbose {
		logrus.SetLevel(logrus.DebugLevel)
	}

	cfg := control.NewConfigStore()
	cfg.SetConfig(map[string]any{
		control.KeyListenAddr:    f.Listen,
		control.KeyPollTimeoutMs: f.PollTimeoutMs,
	})
	cfg.OnReload(func() {
		dlog.Info("configuration reloaded")
	})

	tiles := queue.NewTileQueue(tile.Parser{})
	sessions := newSessionRegistry()

	clientPoll, err := reactor.NewSocketPoll("client")
	if err != nil {
		dlog.Fatalf("client poll: %v", err)
	}
	acceptPoll, err := reactor.NewSocketPoll("accept")
	if err != nil {
		dlog.Fatalf("accept poll: %v", err)
	}

	server, err := transport.NewServerSocket(
		cfg.GetString(control.KeyListenAddr, f.Listen),
		clientPoll,
		func(fd int) (api.Socket, error) {
			h := &sessionHandler{
				id:       uuid.NewString(),
				tiles:    tiles,
				sessions: sessions,
			}
			return transport.NewStreamSocket(fd, h)
		},
	)
	if err != nil {
		dlog.Fatalf("server socket: %v", err)
	}
	acceptPoll.InsertNewSocket(server)

	// The tile worker: one consumer per document queue. Replies are
	// bounced back onto the loop goroutine via AddCallback, so sends race
	// with nothing.
	var workers sync.WaitGroup
	workers.Add(1)
	go func() {
		defer workers.Done()
		for {
			payload, ok := tiles.Get()
			if !ok {
				return
			}
			reply := append([]byte("rendered: "), payload...)
			reply = append(reply, '\n')
			clientPoll.AddCallback(func() {
				sessions.broadcast(reply)
			})
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop
	dlog.Info("shutting down")

	tiles.Close()
	workers.Wait()
	_ = acceptPoll.Shutdown()
	_ = clientPoll.Shutdown()
}

// sessionRegistry tracks connected sessions so the tile worker can reach
// them. Sessions are added from the accept poll's goroutine (OnConnect runs
// where the socket is constructed) and removed and broadcast to on the
// client loop goroutine; the mutex serializes these.
type sessionRegistry struct {
	mu       sync.Mutex
	sessions map[string]api.Stream
}

func newSessionRegistry() *sessionRegistry {
	return &sessionRegistry{sessions: make(map[string]api.Stream)}
}

func (r *sessionRegistry) add(id string, sock api.Stream) {
	r.mu.Lock()
	r.sessions[id] = sock
	r.mu.Unlock()
}

func (r *sessionRegistry) remove(id string) {
	r.mu.Lock()
	delete(r.sessions, id)
	r.mu.Unlock()
}

func (r *sessionRegistry) broadcast(data []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, sock := range r.sessions {
		sock.Send(data, true)
	}
}

// sessionHandler frames newline-delimited messages and routes tile
// traffic into the document's TileQueue.
type sessionHandler struct {
	id       string
	sock     api.Stream
	tiles    *queue.TileQueue
	sessions *sessionRegistry
}

var _ api.SocketHandler = (*sessionHandler)(nil)

func (h *sessionHandler) OnConnect(sock api.Stream) {
	h.sock = sock
	h.sessions.add(h.id, sock)
	dlog.Infof("session %s connected on fd #%d", h.id, sock.FD())
}

func (h *sessionHandler) HandleIncomingMessage() {
	in := h.sock.InBuffer()
	nl := -1
	for i, b := range in {
		if b == '\n' {
			nl = i
			break
		}
	}
	if nl < 0 {
		// No complete line yet; consume nothing to break the loop.
		return
	}
	line := strings.TrimRight(string(in[:nl]), "\r")
	h.sock.ConsumeInput(nl + 1)
	h.route(line)
}

func (h *sessionHandler) route(line string) {
	switch {
	case line == "canceltiles",
		strings.HasPrefix(line, "tile "),
		strings.HasPrefix(line, "tilecombine "):
		h.tiles.Put([]byte(line))
	case strings.HasPrefix(line, "cursor "):
		h.cursor(line)
	case line == "":
	default:
		h.sock.Send([]byte("recv: "+line+"\n"), true)
	}
}

// cursor updates this view's cursor rectangle: "cursor <x> <y> <w> <h>".
func (h *sessionHandler) cursor(line string) {
	fields := strings.Fields(line)
	if len(fields) != 5 {
		h.sock.Send([]byte("error: cursor <x> <y> <w> <h>\n"), true)
		return
	}
	vals := make([]int, 4)
	for i, f := range fields[1:] {
		n, err := strconv.Atoi(f)
		if err != nil {
			h.sock.Send([]byte("error: bad cursor coordinate "+f+"\n"), true)
			return
		}
		vals[i] = n
	}
	h.tiles.UpdateCursorPosition(h.id, queue.CursorPosition{
		X: vals[0], Y: vals[1], Width: vals[2], Height: vals[3],
	})
}

func (h *sessionHandler) HasQueuedWrites() bool { return false }

func (h *sessionHandler) PerformWrites() {}

func (h *sessionHandler) OnDisconnect() {
	h.sessions.remove(h.id)
	h.tiles.RemoveCursor(h.id)
	dlog.Infof("session %s disconnected", h.id)
}
