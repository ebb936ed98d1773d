// File: queue/tilequeue.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Tile-aware message queue: deduplicates tile payloads by their version-
// stripped key, purges stale tiles on "canceltiles", and bumps tiles that
// touch a registered cursor rectangle to the front.

package queue

import (
	"strings"

	"github.com/momentics/collabio/api"
	"github.com/momentics/collabio/internal/log"
)

var tlog = log.NewLogger("tilequeue")

// CursorPosition is a view's cursor rectangle in document pixels.
type CursorPosition struct {
	X      int
	Y      int
	Width  int
	Height int
}

// TileQueue specializes MessageQueue for the tile rendering protocol.
//
// The payload text is interpreted only for policy: "canceltiles" purges
// pending non-preview tiles, "tile"/"tilecombine" payloads deduplicate on
// their normalized key and may be prioritized by cursor proximity.
// Payloads that fail tile parsing are never prioritized; tile-prefixed ones
// still deduplicate on their normalized key.
type TileQueue struct {
	*MessageQueue
	parser          api.TileParser
	cursorPositions map[string]CursorPosition
}

// NewTileQueue creates a tile queue using the given parser capability.
func NewTileQueue(parser api.TileParser) *TileQueue {
	return &TileQueue{
		MessageQueue:    NewMessageQueue(),
		parser:          parser,
		cursorPositions: make(map[string]CursorPosition),
	}
}

// Put enqueues a payload according to the tile insertion policy.
func (q *TileQueue) Put(value Payload) {
	q.mu.Lock()
	q.putTileLocked(value)
	q.mu.Unlock()
	q.cv.Signal()
}

func (q *TileQueue) putTileLocked(value Payload) {
	msg := string(value)
	tlog.Tracef("putting [%s]", msg)

	if msg == "canceltiles" {
		// Drop all pending tiles except the ones with 'id=', they are
		// special, used eg. for previews.
		kept := q.items[:0]
		for _, it := range q.items {
			text := string(it.payload)
			if strings.HasPrefix(text, "tile ") && !strings.Contains(text, "id=") {
				continue
			}
			kept = append(kept, it)
		}
		for i := len(kept); i < len(q.items); i++ {
			q.items[i] = entry{}
		}
		q.items = kept

		// The cancellation goes in front of everything else.
		q.pushFrontLocked(entry{payload: value})
		return
	}

	if strings.HasPrefix(msg, "tile") || strings.HasPrefix(msg, "tilecombine") {
		newKey := normalizedKey(msg)
		for i := range q.items {
			oldKey := normalizedKey(string(q.items[i].payload))
			if newKey != oldKey {
				continue
			}
			tlog.Debugf("replacing duplicate tile: %s -> %s", oldKey, newKey)
			e := entry{payload: value}
			if q.priorityLocked(&e) {
				tlog.Debugf("and bumping tile to top: %s", msg)
				q.items = append(q.items[:i], q.items[i+1:]...)
				q.pushFrontLocked(e)
			} else {
				q.items[i] = e
			}
			return
		}
	}

	e := entry{payload: value}
	if q.priorityLocked(&e) {
		tlog.Debugf("priority tile [%s]", msg)
		q.pushFrontLocked(e)
	} else {
		q.items = append(q.items, e)
	}
}

func (q *TileQueue) pushFrontLocked(e entry) {
	q.items = append(q.items, entry{})
	copy(q.items[1:], q.items)
	q.items[0] = e
}

// normalizedKey truncates a tile payload at the first " ver" occurrence,
// yielding the dedup key shared by all versions of the same tile.
func normalizedKey(msg string) string {
	if i := strings.Index(msg, " ver"); i >= 0 {
		return msg[:i]
	}
	return msg
}

// descLocked parses the entry's payload once and caches the result; nil
// means the payload is not a well-formed tile.
func (q *TileQueue) descLocked(e *entry) api.TileDescriptor {
	if !e.parsed {
		e.parsed = true
		d, err := q.parser.Parse(string(e.payload))
		if err == nil {
			e.desc = d
		}
	}
	return e.desc
}

// priorityLocked reports whether the payload's tile touches any registered
// cursor rectangle.
func (q *TileQueue) priorityLocked(e *entry) bool {
	d := q.descLocked(e)
	if d == nil {
		return false
	}
	for _, pos := range q.cursorPositions {
		if d.IntersectsWithRect(pos.X, pos.Y, pos.Width, pos.Height) {
			return true
		}
	}
	return false
}

// UpdateCursorPosition installs or moves the cursor rectangle of a view.
func (q *TileQueue) UpdateCursorPosition(viewID string, pos CursorPosition) {
	q.mu.Lock()
	q.cursorPositions[viewID] = pos
	q.mu.Unlock()
}

// RemoveCursor forgets a view's cursor when its session ends.
func (q *TileQueue) RemoveCursor(viewID string) {
	q.mu.Lock()
	delete(q.cursorPositions, viewID)
	q.mu.Unlock()
}

// Reprioritize brings the first tile overlapping the cursor (if any) to
// the top. There should be only one overlapping tile at most.
func (q *TileQueue) Reprioritize(pos CursorPosition) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for i := range q.items {
		d := q.descLocked(&q.items[i])
		if d == nil || !d.IntersectsWithRect(pos.X, pos.Y, pos.Width, pos.Height) {
			continue
		}
		if i != 0 {
			tlog.Tracef("bumping tile to top: %s", q.items[i].payload)
			e := q.items[i]
			q.items = append(q.items[:i], q.items[i+1:]...)
			q.pushFrontLocked(e)
		}
		return
	}
}
