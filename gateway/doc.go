// Copyright 2026 The Januskit Authors
// SPDX-License-Identifier: Apache-2.0

// Package gateway implements the client runtime for the Janus WebRTC
// gateway's JSON signaling protocol.
//
// One [Connection] owns one transport link and multiplexes any number
// of server-allocated [Session] values over it; each Session holds
// plugin-bound [Handle] values. Every outgoing request carries a
// locally generated transaction id, and a per-connection transaction
// table correlates it with the eventual definitive response: an
// explicit success, an error, or (for keepalive and trickle requests)
// the gateway's bare acknowledgment. Responses may arrive in any order
// relative to requests; the transaction id is the only correlation key.
//
// Lifecycle is strictly parent-to-child: destroying a Connection
// force-destroys every Session and Handle beneath it, closing their
// pending transactions with an error so no caller is ever left
// hanging. The same cascade runs when the transport reports an
// unexpected closure. A Connection never reconnects on its own;
// callers observe the connection-closed or connection-error event and
// decide their own policy.
//
// Sessions send periodic keepalives on an injected clock. A keepalive
// round trip that misses its deadline destroys the session through the
// same teardown path as a server-announced session timeout.
//
// Handles are plugin-agnostic. Each is attached with a
// [PluginDescriptor] whose classifier recognizes that plugin's event
// shapes and names them; the handle never branches on plugin identity.
// Unclaimed frames fall back to the generic lifecycle events (webrtcup,
// media, slowlink, hangup, detached, trickle). Connection, Session, and
// Handle each expose a subscribe-by-name event surface returning a
// disposer; a panicking listener is recovered and logged without
// corrupting runtime state.
//
// In admin mode (transport.Config.Admin) the Connection speaks the
// gateway's admin API instead: listing sessions and handles,
// inspecting handle state, and toggling packet capture.
package gateway
