// Copyright (c) 2025
// Author: momentics <momentics@gmail.com>

// Package reactor provides the single-goroutine poll(2) socket reactor:
// a dynamic active set, a self-pipe wakeup, and mutex-staged cross-thread
// insertion, release, and callback delivery.
package reactor
