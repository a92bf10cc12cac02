// Package events provides the publish/subscribe feed that keeps live
// directories converged across clients.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/keenon/AddBiomechanics-sub000/pkg/models"
)

const (
	TypeUpdate = "UPDATE"
	TypeDelete = "DELETE"
)

// Wildcard matches any suffix when it ends a topic pattern.
const Wildcard = "#"

// Message is one publication on the bus.
type Message struct {
	Topic   string          `json:"topic"`
	Message json.RawMessage `json:"message"`
}

// Handler receives messages matching a subscription.
type Handler func(Message)

// Bus is the interface for event transports.
// Implementations: Broadcaster (in-process) and Client (relay over SSE).
type Bus interface {
	// Subscribe registers h for topics matching pattern. The returned
	// function removes the subscription.
	Subscribe(pattern string, h Handler) (unsubscribe func(), err error)

	// Publish delivers msg to every matching subscriber, possibly including
	// the publisher itself.
	Publish(ctx context.Context, msg Message) error
}

// Topic builds "/{deployment}/{eventType}/{key}".
func Topic(deployment, eventType, key string) string {
	return "/" + deployment + "/" + eventType + "/" + key
}

// UpdateTopic is the topic for an UPDATE of key.
func UpdateTopic(deployment, key string) string {
	return Topic(deployment, TypeUpdate, key)
}

// DeleteTopic is the topic for a DELETE of key.
func DeleteTopic(deployment, key string) string {
	return Topic(deployment, TypeDelete, key)
}

// DeploymentPattern matches every change topic of a deployment. A single
// subscription keeps UPDATE and DELETE for the same key in publish order.
func DeploymentPattern(deployment string) string {
	return "/" + deployment + "/" + Wildcard
}

// Match reports whether topic matches pattern. A pattern ending in "#"
// matches every topic sharing the text before it; anything else is exact.
func Match(pattern, topic string) bool {
	if prefix, ok := strings.CutSuffix(pattern, Wildcard); ok {
		return strings.HasPrefix(topic, prefix)
	}
	return pattern == topic
}

// ParseTopic splits a topic into deployment, event type and key.
func ParseTopic(topic string) (deployment, eventType, key string, err error) {
	parts := strings.SplitN(strings.TrimPrefix(topic, "/"), "/", 3)
	if len(parts) < 3 || parts[0] == "" {
		return "", "", "", fmt.Errorf("malformed topic %q", topic)
	}
	if parts[1] != TypeUpdate && parts[1] != TypeDelete {
		return "", "", "", fmt.Errorf("unknown event type %q in topic %q", parts[1], topic)
	}
	return parts[0], parts[1], parts[2], nil
}

// NewChangeMessage encodes a change payload on the matching topic.
func NewChangeMessage(deployment, eventType string, payload models.ChangePayload) (Message, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return Message{}, fmt.Errorf("encode payload: %w", err)
	}
	return Message{Topic: Topic(deployment, eventType, payload.Key), Message: body}, nil
}

// DecodeChange parses a change message. The payload key must be present.
func DecodeChange(msg Message) (eventType string, payload models.ChangePayload, err error) {
	_, eventType, _, err = ParseTopic(msg.Topic)
	if err != nil {
		return "", payload, err
	}
	if err := json.Unmarshal(msg.Message, &payload); err != nil {
		return "", payload, fmt.Errorf("decode payload on %s: %w", msg.Topic, err)
	}
	if payload.Key == "" {
		return "", payload, fmt.Errorf("payload on %s has no key", msg.Topic)
	}
	return eventType, payload, nil
}
