// Copyright 2026 The Januskit Authors
// SPDX-License-Identifier: Apache-2.0

// Package transport moves raw Janus signaling frames between the client
// and one gateway endpoint over a persistent duplex link.
//
// The package defines the [Transport] interface (Open, Send, Inbound,
// Close) plus three implementations. [WebSocket] is the production
// transport: a gorilla/websocket connection speaking the janus-protocol
// subprotocol (janus-admin-protocol in admin mode), with a periodic
// ping/pong cycle that detects half-dead links through intermediary
// proxies and NAT bindings. [Unix] speaks the gateway's Unix datagram
// transport for same-host deployments. [Memory] is an in-process
// implementation for tests: the test injects inbound frames and reads
// the frames the client sent.
//
// [Config] validates and normalizes an ordered list of candidate
// gateway addresses into a failover pool. Open walks the pool
// circularly: each failed attempt advances to the next address and
// waits Config.RetryInterval before trying again (the wait is skipped
// before the very first attempt). After Config.MaxRetries failed
// attempts Open gives up with a terminal error; zero means retry
// forever. Exactly one open attempt is ever in flight; a concurrent
// Open while opening or open fails immediately with [ErrAlreadyOpen].
//
// A transport never reconnects on its own. When the link dies, the
// Inbound channel closes and Err reports why; the owning connection is
// responsible for tearing down its sessions and surfacing the failure.
// Reconnection policy belongs to the caller.
package transport
