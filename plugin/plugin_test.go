// Copyright 2026 The Januskit Authors
// SPDX-License-Identifier: Apache-2.0

package plugin

import (
	"testing"

	"github.com/pion/webrtc/v4"

	"github.com/januskit/januskit/gateway"
)

func eventFrame(pluginName string, data map[string]any) *gateway.Frame {
	return &gateway.Frame{
		Janus:      "event",
		PluginData: &gateway.PluginData{Plugin: pluginName, Data: data},
	}
}

func TestVideoRoomClassifier(t *testing.T) {
	classify := VideoRoom().Classify

	tests := []struct {
		name string
		data map[string]any
		want string
	}{
		{"joined", map[string]any{"videoroom": "joined", "room": float64(1234)}, "joined"},
		{"publishers", map[string]any{"videoroom": "event", "publishers": []any{}}, "publishers"},
		{"unpublished", map[string]any{"videoroom": "event", "unpublished": float64(7)}, "unpublished"},
		{"leaving", map[string]any{"videoroom": "event", "leaving": float64(7)}, "leaving"},
		{"plain event", map[string]any{"videoroom": "event"}, "event"},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			event := classify(eventFrame(VideoRoomName, test.data))
			if event == nil {
				t.Fatal("event not claimed")
			}
			if event.Name != test.want {
				t.Fatalf("name = %q, want %q", event.Name, test.want)
			}
		})
	}
}

func TestClassifierIgnoresForeignPlugin(t *testing.T) {
	event := VideoRoom().Classify(eventFrame(EchoTestName, map[string]any{"echotest": "event"}))
	if event != nil {
		t.Fatalf("claimed a foreign plugin's event: %+v", event)
	}
}

func TestClassifierLeavesUnnamedEventsUnclaimed(t *testing.T) {
	event := EchoTest().Classify(eventFrame(EchoTestName, map[string]any{"result": "ok"}))
	if event != nil {
		t.Fatalf("claimed an event without a discriminant: %+v", event)
	}
}

func TestClassifierCarriesJsep(t *testing.T) {
	frame := eventFrame(EchoTestName, map[string]any{"echotest": "event", "result": "ok"})
	frame.Jsep = &webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: "v=0\r\n"}
	event := EchoTest().Classify(frame)
	if event == nil || event.Jsep == nil || event.Jsep.Type != webrtc.SDPTypeAnswer {
		t.Fatalf("event = %+v", event)
	}
}

func TestSIPClassifier(t *testing.T) {
	event := SIP().Classify(eventFrame(SIPName, map[string]any{
		"sip": "event",
		"result": map[string]any{
			"event":    "incomingcall",
			"username": "sip:alice@example.com",
		},
	}))
	if event == nil || event.Name != "incomingcall" {
		t.Fatalf("event = %+v", event)
	}

	if SIP().Classify(eventFrame(SIPName, map[string]any{"sip": "event"})) != nil {
		t.Fatal("claimed a SIP event without a result")
	}
}

func TestAudioBridgeParticipants(t *testing.T) {
	event := AudioBridge().Classify(eventFrame(AudioBridgeName, map[string]any{
		"audiobridge":  "event",
		"participants": []any{map[string]any{"id": float64(1)}},
	}))
	if event == nil || event.Name != "participants" {
		t.Fatalf("event = %+v", event)
	}
}
