package events

import (
	"context"
	"strings"
)

// Topic prefixes. Gate and user identifiers are single subject tokens
// (see model.ValidID), so every topic below has a fixed depth.
const (
	topicGate   = "gatekeep.gate."
	topicUsers  = "gatekeep.users."
	topicNotify = "gatekeep.notify."

	// TopicAllGates matches the document snapshots of every gate.
	TopicAllGates = "gatekeep.gate.*"
	// TopicAllNotifications matches operator notifications for every gate.
	TopicAllNotifications = "gatekeep.notify.*"
)

// GateTopic is the subject carrying snapshots of the gates/{gateID} document.
func GateTopic(gateID string) string {
	return topicGate + gateID
}

// UsersTopic is the subject carrying snapshots of the gates/{gateID}/users collection.
func UsersTopic(gateID string) string {
	return topicUsers + gateID
}

// NotifyTopic is the subject carrying operator notifications for a gate.
func NotifyTopic(gateID string) string {
	return topicNotify + gateID
}

// GateIDFromTopic extracts the gate identifier from any per-gate topic.
// It returns "" for topics outside the gatekeep namespace.
func GateIDFromTopic(topic string) string {
	for _, prefix := range []string{topicGate, topicUsers, topicNotify} {
		if id, ok := strings.CutPrefix(topic, prefix); ok && id != "" && !strings.Contains(id, ".") {
			return id
		}
	}
	return ""
}

// Publisher emits JSON events on a topic.
type Publisher interface {
	Publish(ctx context.Context, topic string, event any) error
	Close() error
}

// Subscriber delivers raw payloads for a topic pattern until the returned
// cancel func is called, which also closes the channel.
type Subscriber interface {
	Subscribe(topic string) (<-chan []byte, func(), error)
	Close() error
}

// NoopPublisher drops every event. Servers run with it when no NATS URL is
// configured and clients fall back to polling.
type NoopPublisher struct{}

func (*NoopPublisher) Publish(context.Context, string, any) error { return nil }

func (*NoopPublisher) Close() error { return nil }
