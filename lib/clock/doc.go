// Copyright 2026 The Januskit Authors
// SPDX-License-Identifier: Apache-2.0

// Package clock provides an injectable time abstraction for testability.
//
// The signaling runtime is full of timers: the session keepalive ticker,
// the keepalive round-trip deadline, the WebSocket ping cycle, and the
// wait between connection attempts during address-pool failover. Testing
// any of these against the real clock means sleeping in tests and hoping
// the scheduler cooperates. Instead, production code accepts a Clock
// parameter and calls Real(); tests inject Fake() and advance time
// deterministically.
//
// # Wiring Pattern
//
// Add a Clock field to structs that schedule work:
//
//	type Session struct {
//	    clock clock.Clock
//	    // ...
//	}
//
// In production:
//
//	s := &Session{clock: clock.Real()}
//
// In tests:
//
//	c := clock.Fake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
//	s := &Session{clock: c}
//	// ... start the keepalive goroutine ...
//	c.WaitForTimers(1)          // keepalive ticker registered
//	c.Advance(30 * time.Second) // fire one keepalive cycle
//
// # FakeClock Synchronization
//
// When a goroutine calls After, NewTicker, or AfterFunc on a FakeClock,
// it registers a pending timer. Use WaitForTimers to block until a
// specific number of timers are registered before calling Advance. This
// eliminates the race between timer registration and time advancement.
package clock
