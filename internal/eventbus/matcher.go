// Bookcore - Tour Booking and Availability Engine
// Copyright 2026 OpenVoyage
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/openvoyage/bookcore

package eventbus

import "strings"

// MatchTopic reports whether a dotted event type matches a subscription
// pattern. "*" as a full pattern matches everything; "*" as a segment matches
// exactly one segment, so "booking.*" matches "booking.created" but not
// "booking.payment.failed".
func MatchTopic(pattern, topic string) bool {
	if pattern == "*" || pattern == topic {
		return true
	}
	if !strings.Contains(pattern, "*") {
		return false
	}

	patternParts := strings.Split(pattern, ".")
	topicParts := strings.Split(topic, ".")
	if len(patternParts) != len(topicParts) {
		return false
	}
	for i, p := range patternParts {
		if p != "*" && p != topicParts[i] {
			return false
		}
	}
	return true
}
