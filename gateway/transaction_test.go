// Copyright 2026 The Januskit Authors
// SPDX-License-Identifier: Apache-2.0

package gateway

import (
	"errors"
	"testing"
)

func TestTransactionIDsUnique(t *testing.T) {
	gen := NewTransactionIDs()
	seen := make(map[string]bool)
	for i := 0; i < 1000; i++ {
		id := gen.Next()
		if len(id) != 16 {
			t.Fatalf("id %q has length %d, want 16", id, len(id))
		}
		if seen[id] {
			t.Fatalf("duplicate id %q", id)
		}
		seen[id] = true
	}
}

func TestTransactionTableCollision(t *testing.T) {
	table := newTransactionTable()
	owner := &struct{}{}
	if table.create("t1", owner, KindCreate) == nil {
		t.Fatal("first create returned nil")
	}
	if table.create("t1", owner, KindCreate) != nil {
		t.Fatal("second create with the same id succeeded")
	}
	if table.size() != 1 {
		t.Fatalf("table size = %d, want 1", table.size())
	}
}

func TestTransactionTableOwnerAuthorization(t *testing.T) {
	table := newTransactionTable()
	alice := &struct{ name string }{"alice"}
	mallory := &struct{ name string }{"mallory"}

	pending := table.create("t1", alice, KindMessage)
	if pending == nil {
		t.Fatal("create returned nil")
	}

	// A mismatched owner cannot close the transaction, and the
	// attempt leaves it intact.
	if table.closeSuccess("t1", mallory, &Frame{Janus: frameSuccess}) {
		t.Fatal("foreign owner closed the transaction")
	}
	if table.size() != 1 {
		t.Fatalf("table size = %d after denied close, want 1", table.size())
	}

	if !table.closeSuccess("t1", alice, &Frame{Janus: frameSuccess}) {
		t.Fatal("rightful owner could not close the transaction")
	}
	result := <-pending.result
	if result.err != nil || result.frame == nil {
		t.Fatalf("result = %+v", result)
	}
	if table.size() != 0 {
		t.Fatalf("table size = %d after close, want 0", table.size())
	}
}

func TestTransactionTableNilOwnerMatchesAny(t *testing.T) {
	table := newTransactionTable()
	owner := &struct{}{}
	pending := table.create("t1", owner, KindCreate)

	cause := errors.New("shutting down")
	if !table.closeError("t1", nil, cause) {
		t.Fatal("nil owner could not close the transaction")
	}
	result := <-pending.result
	if !errors.Is(result.err, cause) {
		t.Fatalf("result error = %v, want %v", result.err, cause)
	}
}

func TestTransactionTableCloseAll(t *testing.T) {
	table := newTransactionTable()
	alice := &struct{ name string }{"alice"}
	bob := &struct{ name string }{"bob"}

	pendingA1 := table.create("a1", alice, KindMessage)
	pendingA2 := table.create("a2", alice, KindTrickle)
	pendingB := table.create("b1", bob, KindMessage)

	cause := errors.New("session destroyed")
	table.closeAll(alice, cause)

	for _, pending := range []*pendingTransaction{pendingA1, pendingA2} {
		result := <-pending.result
		if !errors.Is(result.err, cause) {
			t.Fatalf("alice result error = %v, want %v", result.err, cause)
		}
	}
	select {
	case <-pendingB.result:
		t.Fatal("closeAll for alice resolved bob's transaction")
	default:
	}
	if table.size() != 1 {
		t.Fatalf("table size = %d, want 1", table.size())
	}

	table.closeAll(nil, cause)
	result := <-pendingB.result
	if !errors.Is(result.err, cause) {
		t.Fatalf("bob result error = %v, want %v", result.err, cause)
	}
	if table.size() != 0 {
		t.Fatalf("table size = %d, want 0", table.size())
	}
}
