// Copyright 2026 The Januskit Authors
// SPDX-License-Identifier: Apache-2.0

// Package testutil provides channel helpers shared by the runtime's
// tests.
//
// Most gateway tests assert on lifecycle events and teardown signals
// delivered over channels. Every such wait needs a timeout safety
// valve so a routing bug hangs one test instead of the whole run; the
// Require helpers encapsulate that select-with-timeout pattern.
package testutil
