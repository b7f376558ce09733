// Package natsbus carries discussion envelopes over NATS core pub/sub.
//
// Each thread uses two subjects: the server publishes inbound events on
// discussion.<token>.events and clients publish their intents on
// discussion.<token>.intents, with their identity in message headers.
package natsbus

import (
	"encoding/base64"
	"regexp"
	"strings"
)

const (
	subjectPrefix = "discussion"

	// HeaderParticipant and HeaderRole identify the publisher of an intent.
	HeaderParticipant = "Threadsync-Participant"
	HeaderRole        = "Threadsync-Role"

	encodedPrefix = "b64-"
)

var plainToken = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// Token maps a thread id onto a single NATS subject token.
// Ids made of safe characters are used as-is; anything else (dots, spaces,
// wildcards) is base64url-encoded behind a "b64-" marker.
func Token(threadID string) string {
	if plainToken.MatchString(threadID) && !strings.HasPrefix(threadID, encodedPrefix) {
		return threadID
	}
	return encodedPrefix + base64.RawURLEncoding.EncodeToString([]byte(threadID))
}

// EventsSubject is where the server publishes a thread's inbound events.
func EventsSubject(threadID string) string {
	return subjectPrefix + "." + Token(threadID) + ".events"
}

// IntentsSubject is where clients publish a thread's outbound intents.
func IntentsSubject(threadID string) string {
	return subjectPrefix + "." + Token(threadID) + ".intents"
}
