package mqtt

import (
	"fmt"
	"strings"
)

// Topic defaults.
const (
	// DefaultReadingsFilter matches <owner>/groups/<greenhouse>/<field>-<token>.
	DefaultReadingsFilter = "+/groups/+/+"

	// TopicPrefixService is the base for topics the service itself owns.
	TopicPrefixService = "plantcare"
)

// Topics builds plantcare MQTT topics from the configured prefixes.
//
//	topics := mqtt.Topics{ControlPrefix: "farmer/feeds/"}
//	topics.Control("gh_1", 0, "fan")
//	// Returns: "farmer/feeds/gh_1.0-fan"
type Topics struct {
	// ControlPrefix is prepended verbatim to control feeds.
	ControlPrefix string
}

// Control returns the command feed for one device of one field.
//
// Example: farmer/feeds/gh_1.2-pump
func (t Topics) Control(greenhouseID string, fieldIndex int, device string) string {
	return fmt.Sprintf("%s%s.%d-%s", t.ControlPrefix, greenhouseID, fieldIndex, device)
}

// Readings returns the subscription filter for one owner's sensor feeds.
//
// Example: alice/groups/+/+
func (Topics) Readings(owner string) string {
	if owner == "" {
		return DefaultReadingsFilter
	}
	return fmt.Sprintf("%s/groups/+/+", owner)
}

// SystemStatus returns the retained service status topic.
//
// Example: plantcare/system/status
func (Topics) SystemStatus() string {
	return TopicPrefixService + "/system/status"
}

// Matches reports whether topic matches the subscription filter, honouring
// the + and # wildcards.
func Matches(filter, topic string) bool {
	fParts := strings.Split(filter, "/")
	tParts := strings.Split(topic, "/")

	for i, f := range fParts {
		if f == "#" {
			return true
		}
		if i >= len(tParts) {
			return false
		}
		if f != "+" && f != tParts[i] {
			return false
		}
	}
	return len(fParts) == len(tParts)
}
