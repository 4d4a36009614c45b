// Package pubsub is an in-memory room broker for browser clients.
//
// Contract:
//   - Emit MUST be non-blocking.
//   - Connections use buffered channels; a slow connection drops messages.
//   - Namespaces are fully isolated: an emit in one namespace never reaches a
//     connection of another, even when room or event names collide.
//
// Each dashboard gets its own Namespace, and the websocket transport creates
// one Conn per socket.
package pubsub
