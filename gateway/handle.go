// Copyright 2026 The Januskit Authors
// SPDX-License-Identifier: Apache-2.0

package gateway

import (
	"context"
	"sync"

	"github.com/pion/webrtc/v4"
)

// Handle is one plugin attachment on a session. Plugin requests,
// trickled ICE candidates and the plugin's asynchronous events all
// flow through it. Handles end through Detach, a gateway-side detach
// or the teardown of their session.
type Handle struct {
	session *Session
	id      uint64
	plugin  *PluginDescriptor
	events  *emitter

	detached   chan struct{}
	detachOnce sync.Once
}

func newHandle(s *Session, id uint64, plugin *PluginDescriptor) *Handle {
	return &Handle{
		session:  s,
		id:       id,
		plugin:   plugin,
		events:   newEmitter(s.conn.logger),
		detached: make(chan struct{}),
	}
}

// ID returns the gateway-assigned handle id.
func (h *Handle) ID() uint64 { return h.id }

// Plugin returns the descriptor the handle was attached with.
func (h *Handle) Plugin() *PluginDescriptor { return h.plugin }

// On subscribes listener to the named handle event and returns a
// disposer.
func (h *Handle) On(event string, listener Listener) func() {
	return h.events.on(event, listener)
}

// Done closes when the handle has been detached.
func (h *Handle) Done() <-chan struct{} {
	return h.detached
}

// Message sends a plugin request and waits for the plugin's response.
// The gateway acknowledges asynchronous requests immediately; Message
// keeps waiting for the definitive event frame carrying the plugin's
// answer. jsep may be nil.
func (h *Handle) Message(ctx context.Context, body map[string]any, jsep *webrtc.SessionDescription) (*Frame, error) {
	if err := h.alive(); err != nil {
		return nil, err
	}
	if body == nil {
		body = map[string]any{}
	}
	req := h.request(KindMessage)
	req["body"] = body
	if jsep != nil {
		req["jsep"] = jsep
	}
	return h.session.conn.roundTrip(ctx, h, req)
}

func (h *Handle) alive() error {
	select {
	case <-h.detached:
		return ErrHandleNotAvailable
	default:
		return nil
	}
}

// Trickle forwards one ICE candidate to the plugin.
func (h *Handle) Trickle(ctx context.Context, candidate webrtc.ICECandidateInit) error {
	if err := h.alive(); err != nil {
		return err
	}
	req := h.request(KindTrickle)
	req["candidate"] = candidate
	_, err := h.session.conn.roundTrip(ctx, h, req)
	return err
}

// TrickleComplete tells the plugin no further candidates are coming.
func (h *Handle) TrickleComplete(ctx context.Context) error {
	if err := h.alive(); err != nil {
		return err
	}
	req := h.request(KindTrickle)
	req["candidate"] = map[string]any{"completed": true}
	_, err := h.session.conn.roundTrip(ctx, h, req)
	return err
}

// SendRequest sends a raw handle-scoped request, stamping the session
// and handle ids when the caller has not set them.
func (h *Handle) SendRequest(ctx context.Context, req Request) (*Frame, error) {
	if err := h.alive(); err != nil {
		return nil, err
	}
	req.setDefault("session_id", h.session.id)
	req.setDefault("handle_id", h.id)
	return h.session.conn.roundTrip(ctx, h, req)
}

// Detach releases the handle on the gateway. Concurrent calls
// collapse into one; later callers wait for the teardown and return
// nil.
func (h *Handle) Detach(ctx context.Context) error {
	var err error
	h.detachOnce.Do(func() {
		_, err = h.session.conn.roundTrip(ctx, h, h.request(KindDetach))
		h.teardown(nil)
	})
	<-h.detached
	return err
}

// forceDetach tears the handle down locally, for gateway-side
// detaches and session cascades.
func (h *Handle) forceDetach(cause error) {
	h.detachOnce.Do(func() { h.teardown(cause) })
}

func (h *Handle) teardown(cause error) {
	close(h.detached)
	rejection := cause
	if rejection == nil {
		rejection = ErrHandleNotAvailable
	}
	h.session.conn.txns.closeAll(h, rejection)
	h.session.removeHandle(h.id)
	h.events.emit(EventHandleDetached, cause)
}

func (h *Handle) request(kind string) Request {
	req := NewRequest(kind)
	req["session_id"] = h.session.id
	req["handle_id"] = h.id
	return req
}

// handleFrame routes a frame addressed to this handle. Frames bearing
// a transaction resolve pending requests; the rest are unsolicited
// notifications fanned out to subscribers.
func (h *Handle) handleFrame(frame *Frame) {
	if frame.Transaction != "" {
		if frame.IsAck() {
			if pending := h.session.conn.txns.peek(frame.Transaction); pending != nil && ackCompletes(pending.kind) {
				h.session.conn.txns.closeSuccess(frame.Transaction, h, frame)
			}
			return
		}
		if frame.IsDefinitive() {
			if !h.session.conn.txns.closeSuccess(frame.Transaction, h, frame) {
				h.session.conn.logger.Debug("dropping frame for unknown transaction",
					"janus", frame.Janus,
					"sender", h.id,
					"transaction", frame.Transaction)
			}
			return
		}
	}
	switch frame.Janus {
	case frameEvent:
		h.dispatchPluginEvent(frame)
	case frameWebRTCUp:
		h.events.emit(EventWebRTCUp, frame)
	case frameMedia:
		h.events.emit(EventMedia, frame)
	case frameSlowLink:
		h.events.emit(EventSlowLink, frame)
	case frameHangup:
		h.events.emit(EventHangup, frame)
	case frameTrickle:
		h.events.emit(EventTrickle, frame)
	case frameDetached:
		h.forceDetach(nil)
	default:
		h.session.conn.logger.Debug("dropping unroutable handle frame",
			"janus", frame.Janus,
			"sender", h.id)
	}
}

// dispatchPluginEvent runs the descriptor's classifier over an
// unsolicited plugin event. A classified event is delivered as a
// *PluginEvent; an unclaimed one as the raw *Frame.
func (h *Handle) dispatchPluginEvent(frame *Frame) {
	if h.plugin.Classify != nil {
		if event := h.plugin.Classify(frame); event != nil {
			h.events.emit(EventPlugin, event)
			return
		}
	}
	h.events.emit(EventPlugin, frame)
}
