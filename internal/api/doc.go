// Package api implements the HTTP REST API and the WebSocket sync channel
// for the typepilot core.
//
// This package provides:
//   - REST endpoints to trigger actions, drive sessions and resolve reviews
//   - WebSocket hub that mirrors session state to every observer surface
//   - JWT bearer authentication with ticket-based WebSocket auth
//   - Middleware stack (request ID, logging, recovery, CORS, body limit)
//
// # Architecture
//
// The session machine, the delivery router and the dispatcher publish their
// changes into the Hub, which fans them out to subscribed observers. A new
// subscriber always receives a full snapshot of its channel before any
// event, and observers apply events by session revision, so a reconnecting
// surface converges within one round trip.
//
// Observers send control commands (pause, resume, stop) over the same
// connection. Commands are forwarded into the session machine; the reply
// carries the machine's result, including stale no-ops.
//
// # Security
//
// Surfaces authenticate with HS256 JWTs minted from the shared secret.
// WebSocket connections use single-use tickets to keep tokens out of URLs.
// A slow observer is disconnected rather than silently dropped, so it
// resynchronises from a snapshot when it reconnects.
package api
