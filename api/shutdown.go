// File: api/shutdown.go
// Package api defines unified graceful shutdown contract.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package api

// GracefulShutdown is implemented by components that stop cleanly, such as
// the socket poll (stop flag, wakeup, thread join, socket teardown). The
// demo daemon calls it on its polls at exit.
type GracefulShutdown interface {
	// Shutdown stops all internal services and releases resources.
	// It is idempotent.
	Shutdown() error
}
