// Package memory keeps published scrape-run events in process. It is the
// event sink when no Pub/Sub topic is configured, and the ops server lists
// what it holds.
package memory

import (
	"context"
	"fmt"
	"sync"
)

// Publisher stores published payloads for inspection.
type Publisher struct {
	topic    string
	capacity int

	mu       sync.RWMutex
	seq      int
	messages []PublishedMessage
}

// PublishedMessage captures one publish call.
type PublishedMessage struct {
	ID      string `json:"id"`
	Topic   string `json:"topic"`
	Payload any    `json:"payload"`
}

// New returns an unbounded Publisher bound to topic.
func New(topic string) *Publisher {
	return NewBounded(topic, 0)
}

// NewBounded returns a Publisher that keeps only the most recent capacity
// messages. capacity <= 0 keeps everything.
func NewBounded(topic string, capacity int) *Publisher {
	return &Publisher{topic: topic, capacity: capacity}
}

// Publish records the payload and returns its sequence ID.
func (p *Publisher) Publish(_ context.Context, payload any) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.seq++
	id := fmt.Sprintf("memory-%d", p.seq)
	p.messages = append(p.messages, PublishedMessage{ID: id, Topic: p.topic, Payload: payload})
	if p.capacity > 0 && len(p.messages) > p.capacity {
		// Drop the oldest without letting the backing array grow forever.
		kept := make([]PublishedMessage, p.capacity)
		copy(kept, p.messages[len(p.messages)-p.capacity:])
		p.messages = kept
	}
	return id, nil
}

// Messages returns a copy of the retained publishes, oldest first.
func (p *Publisher) Messages() []PublishedMessage {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]PublishedMessage, len(p.messages))
	copy(out, p.messages)
	return out
}
