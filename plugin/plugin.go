// Copyright 2026 The Januskit Authors
// SPDX-License-Identifier: Apache-2.0

package plugin

import (
	"github.com/januskit/januskit/gateway"
)

// Stock plugin package names.
const (
	EchoTestName    = "janus.plugin.echotest"
	VideoRoomName   = "janus.plugin.videoroom"
	AudioBridgeName = "janus.plugin.audiobridge"
	StreamingName   = "janus.plugin.streaming"
	SIPName         = "janus.plugin.sip"
)

// EchoTest returns a descriptor for the echo test plugin.
func EchoTest() *gateway.PluginDescriptor {
	return &gateway.PluginDescriptor{
		Name:     EchoTestName,
		Classify: classifier(EchoTestName, "echotest", nil),
	}
}

// VideoRoom returns a descriptor for the video room SFU plugin.
// Generic "event" frames are refined by their payload: publisher
// lists, unpublish and leave notifications get their own names.
func VideoRoom() *gateway.PluginDescriptor {
	return &gateway.PluginDescriptor{
		Name: VideoRoomName,
		Classify: classifier(VideoRoomName, "videoroom", func(name string, data map[string]any) string {
			if name != "event" {
				return name
			}
			switch {
			case data["publishers"] != nil:
				return "publishers"
			case data["unpublished"] != nil:
				return "unpublished"
			case data["leaving"] != nil:
				return "leaving"
			case data["configured"] != nil:
				return "configured"
			}
			return name
		}),
	}
}

// AudioBridge returns a descriptor for the audio bridge MCU plugin.
func AudioBridge() *gateway.PluginDescriptor {
	return &gateway.PluginDescriptor{
		Name: AudioBridgeName,
		Classify: classifier(AudioBridgeName, "audiobridge", func(name string, data map[string]any) string {
			if name == "event" && data["participants"] != nil {
				return "participants"
			}
			return name
		}),
	}
}

// Streaming returns a descriptor for the streaming plugin.
func Streaming() *gateway.PluginDescriptor {
	return &gateway.PluginDescriptor{
		Name:     StreamingName,
		Classify: classifier(StreamingName, "streaming", nil),
	}
}

// SIP returns a descriptor for the SIP gateway plugin. SIP events use
// a nested result object; the classifier surfaces the result's event
// name.
func SIP() *gateway.PluginDescriptor {
	return &gateway.PluginDescriptor{
		Name: SIPName,
		Classify: func(frame *gateway.Frame) *gateway.PluginEvent {
			data := pluginData(frame, SIPName)
			if data == nil {
				return nil
			}
			result, _ := data["result"].(map[string]any)
			if result == nil {
				return nil
			}
			name, _ := result["event"].(string)
			if name == "" {
				return nil
			}
			return &gateway.PluginEvent{Name: name, Data: data, Jsep: frame.Jsep}
		},
	}
}

// classifier builds a ClassifierFunc for plugins whose events carry
// their name in a top-level discriminant field, like
// {"videoroom": "joined", ...}. refine, when non-nil, may rename an
// event based on the rest of the payload.
func classifier(pluginName, discriminant string, refine func(name string, data map[string]any) string) gateway.ClassifierFunc {
	return func(frame *gateway.Frame) *gateway.PluginEvent {
		data := pluginData(frame, pluginName)
		if data == nil {
			return nil
		}
		name, _ := data[discriminant].(string)
		if name == "" {
			return nil
		}
		if refine != nil {
			name = refine(name, data)
		}
		return &gateway.PluginEvent{Name: name, Data: data, Jsep: frame.Jsep}
	}
}

// pluginData returns the frame's payload when it belongs to the named
// plugin, nil otherwise.
func pluginData(frame *gateway.Frame, pluginName string) map[string]any {
	if frame.PluginData == nil || frame.PluginData.Plugin != pluginName {
		return nil
	}
	return frame.PluginData.Data
}
