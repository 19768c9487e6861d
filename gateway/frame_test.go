// Copyright 2026 The Januskit Authors
// SPDX-License-Identifier: Apache-2.0

package gateway

import (
	"testing"

	"github.com/pion/webrtc/v4"
)

func TestParseFrame(t *testing.T) {
	payload := []byte(`{
		"janus": "event",
		"transaction": "abcd",
		"session_id": 12,
		"sender": 34,
		"plugindata": {
			"plugin": "janus.plugin.echotest",
			"data": {"echotest": "event", "result": "ok"}
		},
		"jsep": {"type": "answer", "sdp": "v=0\r\n"}
	}`)
	frame, err := parseFrame(payload)
	if err != nil {
		t.Fatalf("parse frame: %v", err)
	}
	if frame.Janus != "event" || frame.Transaction != "abcd" {
		t.Fatalf("frame = %+v", frame)
	}
	if frame.SessionID != 12 || frame.Sender != 34 {
		t.Fatalf("ids = %d/%d, want 12/34", frame.SessionID, frame.Sender)
	}
	if frame.PluginData == nil || frame.PluginData.Plugin != "janus.plugin.echotest" {
		t.Fatalf("plugindata = %+v", frame.PluginData)
	}
	if frame.Jsep == nil || frame.Jsep.Type != webrtc.SDPTypeAnswer {
		t.Fatalf("jsep = %+v", frame.Jsep)
	}
	if len(frame.Raw) == 0 {
		t.Fatal("raw payload not retained")
	}
}

func TestParseFrameRejectsGarbage(t *testing.T) {
	if _, err := parseFrame([]byte("not json")); err == nil {
		t.Fatal("garbage parsed without error")
	}
	if _, err := parseFrame([]byte(`{"transaction": "t"}`)); err == nil {
		t.Fatal("frame without janus field parsed without error")
	}
}

func TestIsDefinitive(t *testing.T) {
	tests := []struct {
		name  string
		frame Frame
		want  bool
	}{
		{"success", Frame{Janus: frameSuccess}, true},
		{"error", Frame{Janus: frameError, Transaction: "t"}, true},
		{"server info", Frame{Janus: frameServerInfo, Transaction: "t"}, true},
		{"ack", Frame{Janus: frameAck, Transaction: "t"}, false},
		{"event with transaction", Frame{Janus: frameEvent, Transaction: "t"}, true},
		{"unsolicited event", Frame{Janus: frameEvent}, false},
		{"media", Frame{Janus: frameMedia}, false},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			if got := test.frame.IsDefinitive(); got != test.want {
				t.Fatalf("IsDefinitive = %v, want %v", got, test.want)
			}
		})
	}
}

func TestAckCompletes(t *testing.T) {
	completing := map[string]bool{
		KindKeepAlive: true,
		KindTrickle:   true,
		KindClaim:     true,
		KindMessage:   false,
		KindCreate:    false,
		KindAttach:    false,
	}
	for kind, want := range completing {
		if got := ackCompletes(kind); got != want {
			t.Fatalf("ackCompletes(%q) = %v, want %v", kind, got, want)
		}
	}
}

func TestAssignedID(t *testing.T) {
	frame, err := parseFrame([]byte(`{"janus": "success", "transaction": "t", "data": {"id": 98765}}`))
	if err != nil {
		t.Fatalf("parse frame: %v", err)
	}
	id, err := assignedID(frame)
	if err != nil {
		t.Fatalf("assigned id: %v", err)
	}
	if id != 98765 {
		t.Fatalf("id = %d, want 98765", id)
	}

	frame, err = parseFrame([]byte(`{"janus": "success", "transaction": "t"}`))
	if err != nil {
		t.Fatalf("parse frame: %v", err)
	}
	if _, err := assignedID(frame); err == nil {
		t.Fatal("missing data block produced no error")
	}
}
