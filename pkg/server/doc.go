// Package server is the connection factory of the session server.
//
// It accepts raw TCP connections and WebSocket upgrades, asks the hub for a
// client id, and runs two goroutines per client:
//
//   - the read pump decodes frames and delivers them to the client's inbound
//     bridge queue
//   - the write pump pops the outbound bridge queue and writes frames
//
// Both transports share the pumps through the frameConn interface. The read
// pump owns the teardown: when the stream ends it releases the id, waits for
// the write pump to flush what is already queued, then closes the socket.
//
// Admission is decided before an id is allocated: a rate limiter, the game's
// admission gate and the size of the id space can each refuse a connection,
// in which case the socket is closed and a rejection is counted.
//
// The admin HTTP router serves /healthz, /status, /metrics and /ws.
package server
