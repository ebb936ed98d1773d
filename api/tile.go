// File: api/tile.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Tile descriptor capability consumed by the tile message queue.

package api

// TileDescriptor is a parsed tile payload positioned in document pixels.
type TileDescriptor interface {
	// IntersectsWithRect reports whether the tile's rectangle touches the
	// given rectangle.
	IntersectsWithRect(x, y, w, h int) bool
}

// TileParser parses textual tile payloads. Parse must tolerate trailing
// parameters after the " ver" marker.
type TileParser interface {
	Parse(text string) (TileDescriptor, error)
}
