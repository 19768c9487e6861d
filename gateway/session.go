// Copyright 2026 The Januskit Authors
// SPDX-License-Identifier: Apache-2.0

package gateway

import (
	"context"
	"sync"
	"time"
)

// Session is one gateway session: the unit of keepalive accounting
// and the parent of plugin handles. Sessions are created with
// Connection.Create and end through Destroy, a gateway timeout, a
// keepalive failure or the connection's own teardown. Whatever the
// cause, teardown cascades to every attached handle first.
type Session struct {
	conn   *Connection
	id     uint64
	events *emitter

	mu      sync.Mutex
	handles map[uint64]*Handle

	destroyed   chan struct{}
	destroyOnce sync.Once
}

func newSession(c *Connection, id uint64) *Session {
	return &Session{
		conn:      c,
		id:        id,
		events:    newEmitter(c.logger),
		handles:   make(map[uint64]*Handle),
		destroyed: make(chan struct{}),
	}
}

// ID returns the gateway-assigned session id.
func (s *Session) ID() uint64 { return s.id }

// On subscribes listener to the named session event and returns a
// disposer.
func (s *Session) On(event string, listener Listener) func() {
	return s.events.on(event, listener)
}

// Done closes when the session has been destroyed.
func (s *Session) Done() <-chan struct{} {
	return s.destroyed
}

// Attach binds a new plugin handle to the session. The descriptor's
// classifier, when present, interprets the plugin's asynchronous
// events for subscribers.
func (s *Session) Attach(ctx context.Context, plugin *PluginDescriptor) (*Handle, error) {
	select {
	case <-s.destroyed:
		return nil, ErrSessionNotAvailable
	default:
	}
	req := NewRequest(KindAttach)
	req["session_id"] = s.id
	req["plugin"] = plugin.Name
	frame, err := s.conn.roundTrip(ctx, s, req)
	if err != nil {
		return nil, err
	}
	id, err := assignedID(frame)
	if err != nil {
		return nil, err
	}
	h := newHandle(s, id, plugin)
	s.mu.Lock()
	s.handles[id] = h
	s.mu.Unlock()
	// The session may have been torn down while the attach was in
	// flight; the handle must not outlive it.
	select {
	case <-s.destroyed:
		h.forceDetach(ErrSessionNotAvailable)
		return nil, ErrSessionNotAvailable
	default:
	}
	return h, nil
}

// KeepAlive pings the gateway once, resetting the session's idle
// timer. The automatic schedule makes explicit calls unnecessary
// unless keepalives were disabled in Options.
func (s *Session) KeepAlive(ctx context.Context) error {
	req := NewRequest(KindKeepAlive)
	req["session_id"] = s.id
	_, err := s.conn.roundTrip(ctx, s, req)
	return err
}

// SendRequest sends a raw session-scoped request, stamping the
// session id when the caller has not set one.
func (s *Session) SendRequest(ctx context.Context, req Request) (*Frame, error) {
	req.setDefault("session_id", s.id)
	return s.conn.roundTrip(ctx, s, req)
}

// Destroy ends the session on the gateway and tears down every
// attached handle. Concurrent calls collapse into one: later callers
// wait for the first teardown to finish and return nil.
func (s *Session) Destroy(ctx context.Context) error {
	var err error
	s.destroyOnce.Do(func() {
		req := NewRequest(KindDestroy)
		req["session_id"] = s.id
		_, err = s.conn.roundTrip(ctx, s, req)
		s.teardown(nil)
	})
	<-s.destroyed
	return err
}

// forceDestroy tears the session down locally without asking the
// gateway, for timeouts, keepalive failures and connection cascades.
func (s *Session) forceDestroy(cause error) {
	s.destroyOnce.Do(func() { s.teardown(cause) })
}

// teardown runs exactly once, under destroyOnce. Handles are detached
// before the session's own destroyed event fires, so subscribers see
// child teardown strictly before parent teardown.
func (s *Session) teardown(cause error) {
	close(s.destroyed)
	rejection := cause
	if rejection == nil {
		rejection = ErrSessionNotAvailable
	}
	for _, h := range s.snapshotHandles() {
		h.forceDetach(cause)
	}
	s.conn.txns.closeAll(s, rejection)
	s.conn.removeSession(s.id)
	s.events.emit(EventSessionDestroyed, cause)
}

func (s *Session) snapshotHandles() []*Handle {
	s.mu.Lock()
	defer s.mu.Unlock()
	handles := make([]*Handle, 0, len(s.handles))
	for _, h := range s.handles {
		handles = append(handles, h)
	}
	return handles
}

func (s *Session) removeHandle(id uint64) {
	s.mu.Lock()
	delete(s.handles, id)
	s.mu.Unlock()
}

func (s *Session) lookupHandle(id uint64) *Handle {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.handles[id]
}

// handleFrame routes a session-scoped frame: gateway timeouts destroy
// the session, frames naming a handle go to that handle, acks resolve
// against the pending table and anything else is a late arrival.
func (s *Session) handleFrame(frame *Frame) {
	if frame.Janus == frameTimeout {
		s.forceDestroy(ErrSessionTimeout)
		return
	}
	if frame.Sender != 0 {
		h := s.lookupHandle(frame.Sender)
		if h == nil {
			s.conn.logger.Debug("dropping frame for unknown handle",
				"janus", frame.Janus,
				"session_id", s.id,
				"sender", frame.Sender)
			return
		}
		h.handleFrame(frame)
		return
	}
	if frame.IsAck() {
		s.resolveAck(frame)
		return
	}
	if frame.Transaction != "" && frame.IsDefinitive() {
		if !s.resolveOwned(frame) {
			s.conn.logger.Debug("dropping frame for unknown transaction",
				"janus", frame.Janus,
				"session_id", s.id,
				"transaction", frame.Transaction)
		}
		return
	}
	s.conn.logger.Debug("dropping unroutable session frame",
		"janus", frame.Janus,
		"session_id", s.id)
}

// resolveAck completes transactions for which the ack is the
// definitive response. Acks for plugin messages are a mid-flight
// notification and leave the transaction pending.
func (s *Session) resolveAck(frame *Frame) {
	pending := s.conn.txns.peek(frame.Transaction)
	if pending == nil {
		s.conn.logger.Debug("dropping ack for unknown transaction",
			"session_id", s.id,
			"transaction", frame.Transaction)
		return
	}
	if !ackCompletes(pending.kind) {
		return
	}
	s.resolveOwned(frame)
}

// resolveOwned completes a transaction recorded for this session or
// one of its handles. Responses to handle requests like detach and
// trickle name the session but not the handle, so the owner must be
// recovered from the pending record; resolving through that recorded
// owner keeps the authorization check intact, since a transaction
// owned by another session's handle still cannot be completed from
// here.
func (s *Session) resolveOwned(frame *Frame) bool {
	pending := s.conn.txns.peek(frame.Transaction)
	if pending == nil {
		return false
	}
	owner := pending.owner
	if owner != s {
		h, ok := owner.(*Handle)
		if !ok || h.session != s {
			s.conn.logger.Debug("dropping frame owned elsewhere",
				"session_id", s.id,
				"transaction", frame.Transaction)
			return false
		}
	}
	return s.conn.txns.closeSuccess(frame.Transaction, owner, frame)
}

// keepAliveLoop pings the gateway on the configured interval until
// the session is destroyed. A ping that the gateway does not
// acknowledge within keepAliveTimeout destroys the session the same
// way a gateway-reported timeout does.
func (s *Session) keepAliveLoop(interval time.Duration) {
	ticker := s.conn.clock.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-s.destroyed:
			return
		case <-ticker.C:
		}
		req := NewRequest(KindKeepAlive)
		req["session_id"] = s.id
		pending, err := s.conn.sendAsync(context.Background(), s, req)
		if err != nil {
			// A dead transport cascades through the read loop; the
			// loop only needs to stop sending.
			return
		}
		expired := make(chan struct{})
		deadline := s.conn.clock.AfterFunc(keepAliveTimeout, func() { close(expired) })
		select {
		case result := <-pending.result:
			deadline.Stop()
			if result.err != nil {
				return
			}
		case <-expired:
			s.conn.txns.take(pending.id, s)
			s.conn.logger.Warn("keepalive unacknowledged, destroying session",
				"session_id", s.id)
			s.forceDestroy(ErrSessionTimeout)
			return
		case <-s.destroyed:
			deadline.Stop()
			s.conn.txns.take(pending.id, s)
			return
		}
	}
}
