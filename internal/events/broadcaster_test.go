package events

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/keenon/AddBiomechanics-sub000/pkg/models"
)

func TestMatch(t *testing.T) {
	tests := []struct {
		pattern, topic string
		want           bool
	}{
		{"/DEV/UPDATE/#", "/DEV/UPDATE/a/b", true},
		{"/DEV/UPDATE/#", "/DEV/DELETE/a/b", false},
		{"/DEV/#", "/DEV/DELETE/a", true},
		{"/DEV/UPDATE/a", "/DEV/UPDATE/a", true},
		{"/DEV/UPDATE/a", "/DEV/UPDATE/a/b", false},
	}
	for _, tt := range tests {
		if got := Match(tt.pattern, tt.topic); got != tt.want {
			t.Errorf("Match(%q, %q) = %v, want %v", tt.pattern, tt.topic, got, tt.want)
		}
	}
}

func TestParseTopic(t *testing.T) {
	dep, typ, key, err := ParseTopic("/DEV/UPDATE/protected/us-west-2:abc/data/file.json")
	if err != nil {
		t.Fatal(err)
	}
	if dep != "DEV" || typ != TypeUpdate || key != "protected/us-west-2:abc/data/file.json" {
		t.Errorf("ParseTopic = %q %q %q", dep, typ, key)
	}

	for _, bad := range []string{"", "/DEV", "/DEV/RENAME/x", "//UPDATE/x"} {
		if _, _, _, err := ParseTopic(bad); err == nil {
			t.Errorf("ParseTopic(%q) should fail", bad)
		}
	}
}

func TestChangeMessageRoundTrip(t *testing.T) {
	msg, err := NewChangeMessage("DEV", TypeDelete, models.ChangePayload{Key: "a/b", Size: 3, LastModified: 42})
	if err != nil {
		t.Fatal(err)
	}
	if msg.Topic != "/DEV/DELETE/a/b" {
		t.Errorf("topic = %q", msg.Topic)
	}
	typ, payload, err := DecodeChange(msg)
	if err != nil {
		t.Fatal(err)
	}
	if typ != TypeDelete || payload.Key != "a/b" || payload.Size != 3 || payload.LastModified != 42 {
		t.Errorf("decoded %s %+v", typ, payload)
	}
}

func TestDecodeChangeRejectsMalformed(t *testing.T) {
	cases := []Message{
		{Topic: "/DEV/UPDATE/a", Message: json.RawMessage(`not json`)},
		{Topic: "/DEV/UPDATE/a", Message: json.RawMessage(`{"size":1}`)},
		{Topic: "garbage", Message: json.RawMessage(`{"key":"a"}`)},
	}
	for _, msg := range cases {
		if _, _, err := DecodeChange(msg); err == nil {
			t.Errorf("DecodeChange(%s, %s) should fail", msg.Topic, msg.Message)
		}
	}
}

func TestBroadcasterSubscribeUnsubscribe(t *testing.T) {
	b := NewBroadcaster()

	un1, _ := b.Subscribe("/#", func(Message) {})
	un2, _ := b.Subscribe("/#", func(Message) {})

	if b.Count() != 2 {
		t.Fatalf("expected 2 subscribers, got %d", b.Count())
	}

	un1()
	if b.Count() != 1 {
		t.Fatalf("expected 1 subscriber after unsubscribe, got %d", b.Count())
	}

	un2()
	un2()
	if b.Count() != 0 {
		t.Fatalf("expected 0 subscribers, got %d", b.Count())
	}
}

func TestBroadcasterPublishFiltersByPattern(t *testing.T) {
	b := NewBroadcaster()
	updates := make(chan Message, 4)
	unsub, _ := b.Subscribe("/DEV/UPDATE/#", func(m Message) { updates <- m })
	defer unsub()

	b.Publish(context.Background(), Message{Topic: "/DEV/DELETE/x"})
	b.Publish(context.Background(), Message{Topic: "/DEV/UPDATE/x"})

	select {
	case received := <-updates:
		if received.Topic != "/DEV/UPDATE/x" {
			t.Errorf("expected /DEV/UPDATE/x, got %s", received.Topic)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
	}

	select {
	case extra := <-updates:
		t.Errorf("unexpected extra message %s", extra.Topic)
	case <-time.After(20 * time.Millisecond):
	}
}

func TestBroadcasterDropsForSlowConsumer(t *testing.T) {
	b := NewBroadcaster()
	ch, cancel := b.Channel("/#")
	defer cancel()

	// Fill the channel buffer
	for i := 0; i < 100; i++ {
		b.Publish(context.Background(), Message{Topic: "/DEV/UPDATE/overflow"})
	}

	count := 0
	for {
		select {
		case <-ch:
			count++
		default:
			goto done
		}
	}
done:
	if count != subscriberBuffer {
		t.Errorf("expected %d buffered events, got %d", subscriberBuffer, count)
	}
}
