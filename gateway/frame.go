// Copyright 2026 The Januskit Authors
// SPDX-License-Identifier: Apache-2.0

package gateway

import (
	"encoding/json"
	"fmt"

	"github.com/pion/webrtc/v4"
)

// Request kinds the runtime sends. Plugin bodies ride inside a
// KindMessage request; everything else is gateway-level.
const (
	KindCreate    = "create"
	KindAttach    = "attach"
	KindMessage   = "message"
	KindTrickle   = "trickle"
	KindKeepAlive = "keepalive"
	KindDestroy   = "destroy"
	KindDetach    = "detach"
	KindClaim     = "claim"
	KindInfo      = "info"
)

// Inbound frame discriminants (the "janus" field).
const (
	frameAck        = "ack"
	frameSuccess    = "success"
	frameError      = "error"
	frameEvent      = "event"
	frameServerInfo = "server_info"
	frameWebRTCUp   = "webrtcup"
	frameMedia      = "media"
	frameSlowLink   = "slowlink"
	frameHangup     = "hangup"
	frameDetached   = "detached"
	frameTimeout    = "timeout"
	frameTrickle    = "trickle"
)

// Request is one outbound signaling request. The connection layer
// stamps the transaction id and the connected address's apisecret and
// token onto it; session and handle layers stamp their server-assigned
// ids. Fields already present are never overwritten.
type Request map[string]any

// NewRequest creates a request of the given kind.
func NewRequest(kind string) Request {
	return Request{"janus": kind}
}

// Kind returns the request's "janus" field.
func (r Request) Kind() string {
	kind, _ := r["janus"].(string)
	return kind
}

// setDefault stamps key to value only when the request does not
// already carry it.
func (r Request) setDefault(key string, value any) {
	if _, present := r[key]; !present {
		r[key] = value
	}
}

// PluginData is the plugin-scoped payload of an event or success
// frame.
type PluginData struct {
	// Plugin is the originating plugin's package name
	// (e.g., "janus.plugin.videoroom").
	Plugin string `json:"plugin"`
	// Data is the plugin-defined payload.
	Data map[string]any `json:"data"`
}

// Frame is one inbound message from the gateway. Classification is by
// the Janus discriminant, never by transaction bookkeeping alone: an
// ack leaves its transaction pending (unless the request kind completes
// on ack), while success, error, and transaction-bearing event frames
// are definitive.
type Frame struct {
	// Janus is the frame discriminant.
	Janus string `json:"janus"`

	// Transaction correlates the frame with a pending request. Empty
	// on unsolicited events.
	Transaction string `json:"transaction,omitempty"`

	// SessionID routes the frame to a session. Zero for
	// connection-level frames.
	SessionID uint64 `json:"session_id,omitempty"`

	// Sender routes the frame to a handle within its session.
	Sender uint64 `json:"sender,omitempty"`

	// Data carries the payload of a success frame (e.g., the
	// server-assigned id on create and attach responses).
	Data json.RawMessage `json:"data,omitempty"`

	// PluginData carries a plugin's payload on event and success
	// frames.
	PluginData *PluginData `json:"plugindata,omitempty"`

	// Jsep is the SDP offer or answer riding on the frame.
	Jsep *webrtc.SessionDescription `json:"jsep,omitempty"`

	// Error is set on error frames.
	Error *ServerError `json:"error,omitempty"`

	// Candidate is the ICE candidate on a server-pushed trickle frame.
	Candidate json.RawMessage `json:"candidate,omitempty"`

	// Reason is set on hangup frames.
	Reason string `json:"reason,omitempty"`

	// Type and Receiving describe a media frame ("audio"/"video" and
	// whether the gateway is receiving it).
	Type      string `json:"type,omitempty"`
	Receiving *bool  `json:"receiving,omitempty"`

	// Uplink and Lost describe a slowlink frame.
	Uplink *bool `json:"uplink,omitempty"`
	Lost   int64 `json:"lost,omitempty"`

	// Raw is the undecoded frame, for responses whose interesting
	// fields live outside the common set (server_info, admin API).
	Raw json.RawMessage `json:"-"`
}

// parseFrame decodes one wire frame, retaining the raw bytes.
func parseFrame(data []byte) (*Frame, error) {
	var frame Frame
	if err := json.Unmarshal(data, &frame); err != nil {
		return nil, fmt.Errorf("gateway: malformed frame: %w", err)
	}
	if frame.Janus == "" {
		return nil, fmt.Errorf("gateway: frame missing janus discriminant")
	}
	frame.Raw = append(json.RawMessage(nil), data...)
	return &frame, nil
}

// IsAck reports whether the frame is a bare acknowledgment: the
// request was merely enqueued server-side and its transaction stays
// pending, except for request kinds that complete on ack.
func (f *Frame) IsAck() bool { return f.Janus == frameAck }

// IsDefinitive reports whether the frame closes its transaction: an
// explicit success or error, a server_info response, or a
// transaction-bearing plugin event (the asynchronous completion of a
// message request).
func (f *Frame) IsDefinitive() bool {
	switch f.Janus {
	case frameSuccess, frameError, frameServerInfo:
		return true
	case frameEvent:
		return f.Transaction != ""
	}
	return false
}

// ackCompletes reports whether a bare ack is the definitive response
// for the given request kind. Keepalive, trickle, and claim requests
// have no richer response; everything else keeps its transaction
// pending until a success, error, or event arrives.
func ackCompletes(kind string) bool {
	switch kind {
	case KindKeepAlive, KindTrickle, KindClaim:
		return true
	}
	return false
}

// serverID is the payload of a create or attach success frame.
type serverID struct {
	ID uint64 `json:"id"`
}

// assignedID extracts the server-assigned id from a success frame.
func assignedID(frame *Frame) (uint64, error) {
	var payload serverID
	if err := json.Unmarshal(frame.Data, &payload); err != nil {
		return 0, fmt.Errorf("gateway: response carries no id: %w", err)
	}
	if payload.ID == 0 {
		return 0, fmt.Errorf("gateway: response carries a zero id")
	}
	return payload.ID, nil
}

// PluginInfo describes one plugin or transport module in a server_info
// response.
type PluginInfo struct {
	Name          string `json:"name"`
	Author        string `json:"author"`
	Description   string `json:"description"`
	Version       int    `json:"version"`
	VersionString string `json:"version_string"`
}

// ServerInfo is the gateway's response to an info request.
type ServerInfo struct {
	Name           string                `json:"name"`
	Version        int                   `json:"version"`
	VersionString  string                `json:"version_string"`
	Author         string                `json:"author"`
	DataChannels   bool                  `json:"data_channels"`
	FullTrickle    bool                  `json:"full-trickle"`
	LocalIP        string                `json:"local-ip"`
	SessionTimeout int                   `json:"session-timeout"`
	Transports     map[string]PluginInfo `json:"transports"`
	Plugins        map[string]PluginInfo `json:"plugins"`
}
