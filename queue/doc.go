// File: queue/doc.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Message queues for the tile rendering protocol: a plain FIFO with a
// blocking Get, and a tile-aware specialization that deduplicates,
// cancels, and reorders payloads around registered cursor rectangles.
package queue
