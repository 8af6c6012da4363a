// Package pubsub publishes scrape-run events to Google Cloud Pub/Sub.
package pubsub

import (
	"context"
	"encoding/json"
	"fmt"

	"cloud.google.com/go/pubsub"
)

// Topic is the subset of *pubsub.Topic used by Publisher.
type Topic interface {
	Publish(ctx context.Context, msg *pubsub.Message) PublishResult
}

// PublishResult resolves the server-assigned message ID.
type PublishResult interface {
	Get(ctx context.Context) (string, error)
}

// Publisher marshals payloads to JSON and publishes them to one topic.
type Publisher struct {
	topic      Topic
	attributes map[string]string
}

// New creates a Publisher for the provided topic. Attributes are attached to
// every message.
func New(topic Topic, attributes map[string]string) *Publisher {
	return &Publisher{topic: topic, attributes: attributes}
}

// Publish marshals the payload to JSON and waits for the broker to accept it.
func (p *Publisher) Publish(ctx context.Context, payload any) (string, error) {
	if p.topic == nil {
		return "", fmt.Errorf("pubsub topic is not configured")
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal payload: %w", err)
	}

	msg := &pubsub.Message{Data: data}
	if len(p.attributes) > 0 {
		msg.Attributes = make(map[string]string, len(p.attributes))
		for k, v := range p.attributes {
			msg.Attributes[k] = v
		}
	}

	id, err := p.topic.Publish(ctx, msg).Get(ctx)
	if err != nil {
		return "", fmt.Errorf("publish message: %w", err)
	}
	return id, nil
}

// TopicAdapter wraps a *pubsub.Topic so it satisfies Topic.
type TopicAdapter struct {
	Topic *pubsub.Topic
}

// Publish forwards to the wrapped topic.
func (a TopicAdapter) Publish(ctx context.Context, msg *pubsub.Message) PublishResult {
	return a.Topic.Publish(ctx, msg)
}
