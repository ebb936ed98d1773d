// File: transport/doc.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Non-blocking stream sockets: the fd-owning socket base, the buffered
// handler-driven stream socket, and the accepting server socket.
package transport
