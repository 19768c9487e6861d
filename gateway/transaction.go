// Copyright 2026 The Januskit Authors
// SPDX-License-Identifier: Apache-2.0

package gateway

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"sync/atomic"

	"github.com/puzpuzpuz/xsync/v3"
)

// TransactionIDs generates the correlation ids stamped on outgoing
// requests. Ids are 16 hex characters of crypto/rand entropy; if the
// system entropy source fails, a per-generator counter keeps ids
// unique within the connection, which is all correlation requires.
//
// One generator is constructed per connection; there is no shared
// package state, so tests need no teardown hook.
type TransactionIDs struct {
	fallback atomic.Uint64
}

// NewTransactionIDs creates an id generator.
func NewTransactionIDs() *TransactionIDs {
	return &TransactionIDs{}
}

// Next returns a fresh transaction id.
func (g *TransactionIDs) Next() string {
	var buffer [8]byte
	if _, err := rand.Read(buffer[:]); err != nil {
		return fmt.Sprintf("txn-%d", g.fallback.Add(1))
	}
	return hex.EncodeToString(buffer[:])
}

// transactionResult is the definitive outcome delivered to the caller
// blocked on a request.
type transactionResult struct {
	frame *Frame
	err   error
}

// pendingTransaction is one in-flight request awaiting its definitive
// response. The owner reference authorizes closure: only the entity
// that created the transaction (or the bulk teardown of that entity)
// may resolve it, so one session can never resolve another's
// transaction even with a guessed id.
type pendingTransaction struct {
	id    string
	owner any
	kind  string

	// result is buffered so the resolver never blocks on a caller
	// that already gave up.
	result chan transactionResult
}

// transactionTable is the per-connection table of pending
// transactions. The table is concurrent because callers register
// transactions from their own goroutines while the connection's read
// loop resolves them; xsync.MapOf gives atomic owner-checked removal
// without a table-wide lock.
type transactionTable struct {
	entries *xsync.MapOf[string, *pendingTransaction]
}

func newTransactionTable() *transactionTable {
	return &transactionTable{entries: xsync.NewMapOf[string, *pendingTransaction]()}
}

// create registers a pending transaction. Returns nil on id collision:
// at most one pending transaction per id, callers must use unique ids.
func (t *transactionTable) create(id string, owner any, kind string) *pendingTransaction {
	pending := &pendingTransaction{
		id:     id,
		owner:  owner,
		kind:   kind,
		result: make(chan transactionResult, 1),
	}
	if _, collided := t.entries.LoadOrStore(id, pending); collided {
		return nil
	}
	return pending
}

// take atomically removes and returns the pending transaction for id,
// but only when owner matches the record's creator (a nil owner
// matches any). A mismatched owner leaves the record untouched and
// returns nil.
func (t *transactionTable) take(id string, owner any) *pendingTransaction {
	var taken *pendingTransaction
	t.entries.Compute(id, func(old *pendingTransaction, loaded bool) (*pendingTransaction, bool) {
		if !loaded {
			return nil, true
		}
		if owner != nil && old.owner != owner {
			return old, false
		}
		taken = old
		return nil, true
	})
	return taken
}

// peek returns the pending transaction for id without removing it.
func (t *transactionTable) peek(id string) *pendingTransaction {
	pending, _ := t.entries.Load(id)
	return pending
}

// closeSuccess removes the transaction and delivers frame to its
// caller, if id exists and owner matches. Reports whether a
// transaction was closed.
func (t *transactionTable) closeSuccess(id string, owner any, frame *Frame) bool {
	pending := t.take(id, owner)
	if pending == nil {
		return false
	}
	pending.result <- transactionResult{frame: frame}
	return true
}

// closeError removes the transaction and rejects its caller with err,
// if id exists and owner matches. Reports whether a transaction was
// closed.
func (t *transactionTable) closeError(id string, owner any, err error) bool {
	pending := t.take(id, owner)
	if pending == nil {
		return false
	}
	pending.result <- transactionResult{err: err}
	return true
}

// closeAll rejects every transaction belonging to owner (all
// transactions when owner is nil) with err. Used during cascading
// teardown so no caller is left hanging.
func (t *transactionTable) closeAll(owner any, err error) {
	var ids []string
	t.entries.Range(func(id string, pending *pendingTransaction) bool {
		if owner == nil || pending.owner == owner {
			ids = append(ids, id)
		}
		return true
	})
	for _, id := range ids {
		t.closeError(id, owner, err)
	}
}

// size reports the number of pending transactions.
func (t *transactionTable) size() int {
	return t.entries.Size()
}
