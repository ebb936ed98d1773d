// File: api/doc.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

// Package api holds the capability interfaces of the collabio core.
//
// The packages below (reactor, transport, queue) depend only on these
// contracts, never on each other's concrete types. Higher protocol layers
// (HTTP, WebSocket, document sessions) plug in through SocketHandler and
// TileParser.
package api
