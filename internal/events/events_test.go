package events

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/nats-io/nats.go"
)

type testPayload struct {
	Path     string `json:"path"`
	Revision int64  `json:"revision"`
}

func TestTopics(t *testing.T) {
	if got := GateTopic("g1"); got != "gatekeep.gate.g1" {
		t.Errorf("GateTopic = %q", got)
	}
	if got := UsersTopic("g1"); got != "gatekeep.users.g1" {
		t.Errorf("UsersTopic = %q", got)
	}
	if got := NotifyTopic("g1"); got != "gatekeep.notify.g1" {
		t.Errorf("NotifyTopic = %q", got)
	}
}

func TestGateIDFromTopic(t *testing.T) {
	for _, tc := range []struct {
		topic string
		want  string
	}{
		{"gatekeep.gate.g1", "g1"},
		{"gatekeep.users.gate-7", "gate-7"},
		{"gatekeep.notify.G_2", "G_2"},
		{"gatekeep.gate.", ""},
		{"gatekeep.gate.g1.extra", ""},
		{"other.gate.g1", ""},
		{"", ""},
	} {
		if got := GateIDFromTopic(tc.topic); got != tc.want {
			t.Errorf("GateIDFromTopic(%q) = %q, want %q", tc.topic, got, tc.want)
		}
	}
}

func TestNoopPublisher_Publish(t *testing.T) {
	pub := &NoopPublisher{}
	err := pub.Publish(context.Background(), GateTopic("g1"), testPayload{})
	if err != nil {
		t.Fatalf("NoopPublisher.Publish returned unexpected error: %v", err)
	}
}

func TestNoopPublisher_Close(t *testing.T) {
	pub := &NoopPublisher{}
	if err := pub.Close(); err != nil {
		t.Fatalf("NoopPublisher.Close returned unexpected error: %v", err)
	}
}

func TestNoopPublisher_ImplementsPublisher(t *testing.T) {
	var _ Publisher = (*NoopPublisher)(nil)
}

func TestNATSPublisher_ImplementsPublisher(t *testing.T) {
	var _ Publisher = (*NATSPublisher)(nil)
}

func TestNATSPublisher_Publish(t *testing.T) {
	url := startTestNATS(t)

	pub, err := NewNATSPublisher(url)
	if err != nil {
		t.Fatalf("creating publisher: %v", err)
	}
	defer pub.Close()

	nc, err := nats.Connect(url)
	if err != nil {
		t.Fatalf("connecting subscriber: %v", err)
	}
	defer nc.Close()

	ch := make(chan *nats.Msg, 1)
	sub, err := nc.ChanSubscribe(GateTopic("g1"), ch)
	if err != nil {
		t.Fatalf("subscribing: %v", err)
	}
	defer sub.Unsubscribe() //nolint:errcheck
	nc.Flush()

	event := testPayload{Path: "gates/g1", Revision: 7}
	if err := pub.Publish(context.Background(), GateTopic("g1"), event); err != nil {
		t.Fatalf("Publish error: %v", err)
	}
	pub.conn.Flush()

	select {
	case msg := <-ch:
		var got testPayload
		if err := json.Unmarshal(msg.Data, &got); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		if got != event {
			t.Errorf("got %+v, want %+v", got, event)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for published message")
	}
}

func TestNATSPublisher_PublishMultipleTopics(t *testing.T) {
	url := startTestNATS(t)

	pub, err := NewNATSPublisher(url)
	if err != nil {
		t.Fatalf("creating publisher: %v", err)
	}
	defer pub.Close()

	nc, err := nats.Connect(url)
	if err != nil {
		t.Fatalf("connecting subscriber: %v", err)
	}
	defer nc.Close()

	ch := make(chan *nats.Msg, 3)
	sub, err := nc.ChanSubscribe("gatekeep.>", ch)
	if err != nil {
		t.Fatalf("subscribing: %v", err)
	}
	defer sub.Unsubscribe() //nolint:errcheck
	nc.Flush()

	for _, topic := range []string{GateTopic("g1"), UsersTopic("g1"), NotifyTopic("g2")} {
		if err := pub.Publish(context.Background(), topic, testPayload{Path: topic}); err != nil {
			t.Fatalf("Publish(%s): %v", topic, err)
		}
	}
	pub.conn.Flush()

	seen := map[string]bool{}
	for i := 0; i < 3; i++ {
		select {
		case msg := <-ch:
			seen[msg.Subject] = true
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for message %d", i)
		}
	}
	if !seen["gatekeep.users.g1"] || !seen["gatekeep.notify.g2"] {
		t.Errorf("missing subjects, saw %v", seen)
	}
}

func TestNATSPublisher_Close(t *testing.T) {
	url := startTestNATS(t)

	pub, err := NewNATSPublisher(url)
	if err != nil {
		t.Fatalf("creating publisher: %v", err)
	}

	if err := pub.Close(); err != nil {
		t.Fatalf("Close error: %v", err)
	}

	// Publishing after close should fail.
	err = pub.Publish(context.Background(), GateTopic("g1"), testPayload{})
	if err == nil {
		t.Error("expected error publishing after close")
	}
}
