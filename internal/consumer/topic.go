package consumer

import "strings"

// TopicMatches reports whether a published topic matches a subscription
// topic filter under MQTT wildcard semantics: "+" matches exactly one
// level, a final "#" matches the remaining levels (zero or more). The
// matcher is reimplemented here rather than delegated to the transport
// library because application-level routing needs it after delivery, to
// find which configured subscription owns an inbound message.
func TopicMatches(filter, topic string) bool {
	if filter == "" || topic == "" {
		return filter == topic
	}

	filterParts := strings.Split(filter, "/")
	topicParts := strings.Split(topic, "/")

	// Multi-level wildcard: the segments before "#" form a fixed prefix.
	if filterParts[len(filterParts)-1] == "#" {
		prefix := filterParts[:len(filterParts)-1]
		if len(topicParts) < len(prefix) {
			return false
		}
		for i, part := range prefix {
			if part != "+" && part != topicParts[i] {
				return false
			}
		}
		return true
	}

	if len(filterParts) != len(topicParts) {
		return false
	}
	for i, part := range filterParts {
		if part != "+" && part != topicParts[i] {
			return false
		}
	}
	return true
}
