// Package observer is the client side of the Sync Channel.
//
// An observer surface (the overlay, a second window, a remote panel) runs a
// Client against a core's websocket endpoint. The Client obtains a ticket,
// subscribes, and keeps a Projection: the latest known state of every
// session, pending review and flag for one target. Events are merged by
// session revision, so a delayed event never rolls a session back.
//
// When the transport fails the Client reconnects with bounded exponential
// backoff, subscribes again and rebuilds the projection from the fresh
// snapshot. Observers hold no authority: commands are forwarded to the core
// and its reply is the only truth.
//
// # Thread Safety
//
// Client and Projection methods are safe for concurrent use. States handed
// out are copies.
package observer
