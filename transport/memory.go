// Copyright 2026 The Januskit Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"context"
	"sync"
)

// Compile-time interface check.
var _ Transport = (*Memory)(nil)

// Memory is an in-process Transport for tests. The test plays the
// gateway: it reads the client's frames from Outbound, injects replies
// with Deliver, and simulates a dead link with Fail. No network is
// involved, so connection, session, and handle behavior can be tested
// deterministically.
type Memory struct {
	mu       sync.Mutex
	state    linkState
	terminal error
	addr     Address

	inbound  chan []byte
	outbound chan []byte
}

// NewMemory creates an in-process transport. Open always succeeds on
// the first attempt.
func NewMemory() *Memory {
	return &Memory{
		addr:     Address{URL: "memory://gateway"},
		inbound:  make(chan []byte, 16),
		outbound: make(chan []byte, 64),
	}
}

// SetConnectedAddress overrides the address reported to the client,
// letting tests exercise credential stamping.
func (t *Memory) SetConnectedAddress(addr Address) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.addr = addr
}

// Open marks the transport connected. Fails with ErrAlreadyOpen on a
// second call, matching the production transports' single-attempt
// guarantee.
func (t *Memory) Open(_ context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	switch t.state {
	case linkOpening, linkOpen:
		return ErrAlreadyOpen
	case linkClosed:
		return ErrClosed
	}
	t.state = linkOpen
	return nil
}

// Send hands the frame to the test through Outbound.
func (t *Memory) Send(_ context.Context, frame []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state != linkOpen {
		return ErrNotOpen
	}
	t.outbound <- frame
	return nil
}

// Inbound returns the channel of frames the test has delivered.
func (t *Memory) Inbound() <-chan []byte { return t.inbound }

// Outbound returns the channel of frames the client has sent.
func (t *Memory) Outbound() <-chan []byte { return t.outbound }

// Deliver injects one gateway frame into the client's inbound stream.
func (t *Memory) Deliver(frame []byte) {
	t.inbound <- frame
}

// Fail simulates an unexpected transport failure: records err as the
// terminal error and closes the inbound stream, exactly as the
// production read pumps do when the link dies.
func (t *Memory) Fail(err error) {
	t.mu.Lock()
	if t.state == linkClosed {
		t.mu.Unlock()
		return
	}
	t.state = linkClosed
	t.terminal = err
	t.mu.Unlock()
	close(t.inbound)
}

// Err returns the error passed to Fail, nil after a requested Close.
func (t *Memory) Err() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.terminal
}

// Close marks the transport closed and closes the inbound stream.
// Idempotent.
func (t *Memory) Close() error {
	t.mu.Lock()
	if t.state == linkClosed {
		t.mu.Unlock()
		return nil
	}
	t.state = linkClosed
	t.mu.Unlock()
	close(t.inbound)
	return nil
}

// RemoteHostname identifies the fake endpoint.
func (t *Memory) RemoteHostname() string { return "memory" }

// ConnectedAddress returns the configured fake address.
func (t *Memory) ConnectedAddress() Address {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.addr
}
