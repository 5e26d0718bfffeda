package mqtt

import "fmt"

// Topic prefixes for Gray Logic Sync MQTT traffic.
//
// Scheme: graysync/{category}/{qualifier...}
const (
	// TopicPrefix is the base for all panel topics.
	TopicPrefix = "graysync"

	// TopicPrefixVoice is the base for voice bridge topics.
	TopicPrefixVoice = "graysync/voice"

	// TopicPrefixSystem is the base for system topics.
	TopicPrefixSystem = "graysync/system"
)

// Topics provides builders for Gray Logic Sync MQTT topics.
// Using these helpers ensures consistent topic naming across the codebase.
//
//	topics := mqtt.Topics{}
//	intents := topics.AllVoiceIntents()
//	// Returns: "graysync/voice/intent/+"
type Topics struct{}

// VoiceIntent returns the topic the voice pipeline publishes intents on.
//
// Example: graysync/voice/intent/alexa
func (Topics) VoiceIntent(platform string) string {
	return fmt.Sprintf("%s/intent/%s", TopicPrefixVoice, platform)
}

// AllVoiceIntents returns the wildcard topic matching every platform's intents.
//
// Example: graysync/voice/intent/+
func (Topics) AllVoiceIntents() string {
	return TopicPrefixVoice + "/intent/+"
}

// VoiceResult returns the topic for publishing a command's outcome back to
// the voice pipeline.
//
// Example: graysync/voice/result/cmd-abc123
func (Topics) VoiceResult(correlationID string) string {
	return fmt.Sprintf("%s/result/%s", TopicPrefixVoice, correlationID)
}

// SystemStatus returns the topic for panel online/offline status.
//
// Example: graysync/system/status
func (Topics) SystemStatus() string {
	return TopicPrefixSystem + "/status"
}
