// Copyright 2026 The Januskit Authors
// SPDX-License-Identifier: Apache-2.0

package gateway

import (
	"log/slog"
	"sync"
)

// Lifecycle and media event names published by connections, sessions
// and handles. Subscribe with Connection.On, Session.On or Handle.On.
const (
	// EventConnectionClosed fires after a graceful Close finishes.
	EventConnectionClosed = "connection-closed"
	// EventConnectionError fires when the underlying transport fails.
	EventConnectionError = "connection-error"
	// EventSessionDestroyed fires when a session ends for any reason:
	// explicit destroy, server timeout, keepalive failure or cascade.
	EventSessionDestroyed = "session-destroyed"
	// EventHandleDetached fires when a handle ends for any reason.
	EventHandleDetached = "handle-detached"

	// EventWebRTCUp signals the peer connection is established.
	EventWebRTCUp = "webrtcup"
	// EventMedia signals the gateway started or stopped receiving
	// audio or video on the handle.
	EventMedia = "media"
	// EventSlowLink signals packet loss on the handle's link.
	EventSlowLink = "slowlink"
	// EventHangup signals the peer connection was torn down.
	EventHangup = "hangup"
	// EventTrickle carries a trickled ICE candidate from the gateway.
	EventTrickle = "trickle"

	// EventPlugin carries a PluginEvent produced by a handle's
	// classifier, or the raw frame when no classifier claimed it.
	EventPlugin = "plugin"
)

// Listener receives event payloads. The payload type depends on the
// event: *Frame for media events, *PluginEvent for EventPlugin, error
// for EventConnectionError, nil for pure lifecycle signals.
type Listener func(payload any)

// emitter is a minimal synchronous pub/sub fan-out embedded in
// connections, sessions and handles. Listeners run on the emitting
// goroutine; a panicking listener is logged and does not stop
// delivery to the rest.
type emitter struct {
	mu        sync.Mutex
	logger    *slog.Logger
	sequence  int
	listeners map[string]map[int]Listener
}

func newEmitter(logger *slog.Logger) *emitter {
	return &emitter{
		logger:    logger,
		listeners: make(map[string]map[int]Listener),
	}
}

// on registers listener for the named event and returns a disposer
// that unregisters it. Disposing twice is harmless.
func (e *emitter) on(event string, listener Listener) func() {
	e.mu.Lock()
	defer e.mu.Unlock()
	group := e.listeners[event]
	if group == nil {
		group = make(map[int]Listener)
		e.listeners[event] = group
	}
	e.sequence++
	id := e.sequence
	group[id] = listener
	return func() {
		e.mu.Lock()
		defer e.mu.Unlock()
		delete(e.listeners[event], id)
	}
}

// emit delivers payload to every listener registered for event. The
// listener set is snapshotted under the lock, so listeners may
// subscribe or dispose from inside a callback.
func (e *emitter) emit(event string, payload any) {
	e.mu.Lock()
	snapshot := make([]Listener, 0, len(e.listeners[event]))
	for _, listener := range e.listeners[event] {
		snapshot = append(snapshot, listener)
	}
	e.mu.Unlock()
	for _, listener := range snapshot {
		e.dispatch(event, listener, payload)
	}
}

func (e *emitter) dispatch(event string, listener Listener, payload any) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("event listener panicked",
				"event", event,
				"panic", r)
		}
	}()
	listener(payload)
}
