// Copyright 2026 The Januskit Authors
// SPDX-License-Identifier: Apache-2.0

package gateway

import (
	"github.com/pion/webrtc/v4"
)

// ClassifierFunc interprets an unsolicited plugin event frame.
// Returning nil leaves the frame unclaimed; it is then delivered raw.
// Classifiers must not retain the frame.
type ClassifierFunc func(frame *Frame) *PluginEvent

// PluginDescriptor names a Janus plugin and optionally supplies a
// classifier for its asynchronous events. The plugin package provides
// descriptors for the stock Janus plugins.
type PluginDescriptor struct {
	Name     string
	Classify ClassifierFunc
}

// Plugin returns a bare descriptor for the named plugin, with no
// classifier. Events on its handles are delivered as raw frames.
func Plugin(name string) *PluginDescriptor {
	return &PluginDescriptor{Name: name}
}

// PluginEvent is a classified asynchronous plugin event delivered to
// EventPlugin subscribers.
type PluginEvent struct {
	// Name is the classifier-assigned event name, such as
	// "joined" or "webrtc-state".
	Name string

	// Data carries the event's plugin-specific payload.
	Data map[string]any

	// Jsep carries the offer or answer attached to the event, when
	// present.
	Jsep *webrtc.SessionDescription
}
