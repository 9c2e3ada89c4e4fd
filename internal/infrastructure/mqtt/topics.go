package mqtt

import (
	"fmt"
	"strings"
)

// Topic prefixes for the TypePilot bus.
//
//	typepilot/core/...    published by the core
//	typepilot/engine/...  exchanged with the entry engine
//	typepilot/hotkey/...  delivered by the global hotkey listener
const (
	TopicPrefix       = "typepilot"
	TopicPrefixCore   = TopicPrefix + "/core"
	TopicPrefixEngine = TopicPrefix + "/engine"
	TopicPrefixHotkey = TopicPrefix + "/hotkey"
)

// Topics builds TypePilot MQTT topics.
//
//	topic := mqtt.Topics{}.EngineCommand("start")
//	// Returns: "typepilot/engine/command/start"
type Topics struct{}

// CoreStatus is the retained online/offline status of the core.
//
// Example: typepilot/core/status
func (Topics) CoreStatus() string {
	return TopicPrefixCore + "/status"
}

// CoreSession carries the retained projection of a target's sessions.
//
// Example: typepilot/core/session/desktop
func (Topics) CoreSession(target string) string {
	return fmt.Sprintf("%s/session/%s", TopicPrefixCore, target)
}

// EngineCommand is where the core sends a verb to the entry engine.
//
// Example: typepilot/engine/command/start
func (Topics) EngineCommand(verb string) string {
	return fmt.Sprintf("%s/command/%s", TopicPrefixEngine, verb)
}

// EngineResponse carries the engine's reply to one request.
//
// Example: typepilot/engine/response/2f0c...
func (Topics) EngineResponse(requestID string) string {
	return fmt.Sprintf("%s/response/%s", TopicPrefixEngine, requestID)
}

// EngineProgress carries progress telemetry for one engine session.
//
// Example: typepilot/engine/progress/eng-42
func (Topics) EngineProgress(engineSessionID string) string {
	return fmt.Sprintf("%s/progress/%s", TopicPrefixEngine, engineSessionID)
}

// EngineStatus is the engine's retained online/offline status.
//
// Example: typepilot/engine/status
func (Topics) EngineStatus() string {
	return TopicPrefixEngine + "/status"
}

// Hotkey carries hotkey deliveries for one target.
//
// Example: typepilot/hotkey/desktop
func (Topics) Hotkey(target string) string {
	return fmt.Sprintf("%s/%s", TopicPrefixHotkey, target)
}

// AllEngineResponses matches every engine response.
//
// Pattern: typepilot/engine/response/+
func (Topics) AllEngineResponses() string {
	return TopicPrefixEngine + "/response/+"
}

// AllEngineProgress matches progress telemetry for every engine session.
//
// Pattern: typepilot/engine/progress/+
func (Topics) AllEngineProgress() string {
	return TopicPrefixEngine + "/progress/+"
}

// LastSegment returns the final path element of topic, which for the
// response and progress topics is the request or session ID.
func LastSegment(topic string) string {
	if i := strings.LastIndexByte(topic, '/'); i >= 0 {
		return topic[i+1:]
	}
	return topic
}
