// Copyright 2026 The Januskit Authors
// SPDX-License-Identifier: Apache-2.0

package gateway

import (
	"context"
	"encoding/json"
	"fmt"
)

// Admin API request kinds. Only valid on connections opened with
// Options.Admin, against the gateway's admin endpoint.
const (
	kindListSessions = "list_sessions"
	kindListHandles  = "list_handles"
	kindHandleInfo   = "handle_info"
	kindStartPCap    = "start_pcap"
	kindStopPCap     = "stop_pcap"
)

func (c *Connection) adminRoundTrip(ctx context.Context, req Request) (*Frame, error) {
	if !c.opts.Admin {
		return nil, ErrNotAdmin
	}
	return c.roundTrip(ctx, c, req)
}

// ListSessions returns the ids of every session alive on the gateway.
func (c *Connection) ListSessions(ctx context.Context) ([]uint64, error) {
	frame, err := c.adminRoundTrip(ctx, NewRequest(kindListSessions))
	if err != nil {
		return nil, err
	}
	var body struct {
		Sessions []uint64 `json:"sessions"`
	}
	if err := json.Unmarshal(frame.Raw, &body); err != nil {
		return nil, fmt.Errorf("gateway: parse session list: %w", err)
	}
	return body.Sessions, nil
}

// ListHandles returns the ids of every handle attached to the given
// session.
func (c *Connection) ListHandles(ctx context.Context, sessionID uint64) ([]uint64, error) {
	req := NewRequest(kindListHandles)
	req["session_id"] = sessionID
	frame, err := c.adminRoundTrip(ctx, req)
	if err != nil {
		return nil, err
	}
	var body struct {
		Handles []uint64 `json:"handles"`
	}
	if err := json.Unmarshal(frame.Raw, &body); err != nil {
		return nil, fmt.Errorf("gateway: parse handle list: %w", err)
	}
	return body.Handles, nil
}

// HandleInfo returns the gateway's diagnostic dump for one handle:
// plugin state, ICE state, flow counters.
func (c *Connection) HandleInfo(ctx context.Context, sessionID, handleID uint64) (map[string]any, error) {
	req := NewRequest(kindHandleInfo)
	req["session_id"] = sessionID
	req["handle_id"] = handleID
	frame, err := c.adminRoundTrip(ctx, req)
	if err != nil {
		return nil, err
	}
	var body struct {
		Info map[string]any `json:"info"`
	}
	if err := json.Unmarshal(frame.Raw, &body); err != nil {
		return nil, fmt.Errorf("gateway: parse handle info: %w", err)
	}
	return body.Info, nil
}

// PCapOptions configures a packet capture started with StartPCap.
type PCapOptions struct {
	// Folder is the directory on the gateway host where the capture
	// file is written.
	Folder string
	// Filename names the capture file.
	Filename string
	// Truncate caps captured packets to this many bytes; zero keeps
	// whole packets.
	Truncate int
}

// StartPCap asks the gateway to start capturing the handle's packets.
func (c *Connection) StartPCap(ctx context.Context, sessionID, handleID uint64, opts PCapOptions) error {
	req := NewRequest(kindStartPCap)
	req["session_id"] = sessionID
	req["handle_id"] = handleID
	req["folder"] = opts.Folder
	req["filename"] = opts.Filename
	if opts.Truncate > 0 {
		req["truncate"] = opts.Truncate
	}
	_, err := c.adminRoundTrip(ctx, req)
	return err
}

// StopPCap stops a capture started with StartPCap.
func (c *Connection) StopPCap(ctx context.Context, sessionID, handleID uint64) error {
	req := NewRequest(kindStopPCap)
	req["session_id"] = sessionID
	req["handle_id"] = handleID
	_, err := c.adminRoundTrip(ctx, req)
	return err
}
