// Package memory records published events in-process. It backs the service
// when no Pub/Sub topic is configured and doubles as a test fake.
package memory

import (
	"context"
	"fmt"
	"sync"
)

// DefaultHistory is how many messages a Publisher keeps.
const DefaultHistory = 1000

// Publisher keeps the most recent published payloads for inspection.
type Publisher struct {
	mu       sync.RWMutex
	limit    int
	total    int
	messages []PublishedMessage
}

// PublishedMessage captures one publish call.
type PublishedMessage struct {
	ID      string
	Topic   string
	Payload any
}

// New returns a Publisher holding up to DefaultHistory messages.
func New() *Publisher {
	return NewWithLimit(DefaultHistory)
}

// NewWithLimit returns a Publisher that drops the oldest message once limit
// messages are held. limit <= 0 means DefaultHistory.
func NewWithLimit(limit int) *Publisher {
	if limit <= 0 {
		limit = DefaultHistory
	}
	return &Publisher{limit: limit}
}

// Publish records the message and returns a sequential ID.
func (p *Publisher) Publish(_ context.Context, topic string, payload any) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.total++
	id := fmt.Sprintf("memory-%d", p.total)
	if len(p.messages) == p.limit {
		p.messages = append(p.messages[:0], p.messages[1:]...)
	}
	p.messages = append(p.messages, PublishedMessage{ID: id, Topic: topic, Payload: payload})
	return id, nil
}

// Messages returns the retained publishes, oldest first.
func (p *Publisher) Messages() []PublishedMessage {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]PublishedMessage, len(p.messages))
	copy(out, p.messages)
	return out
}

// Total returns how many messages were ever published.
func (p *Publisher) Total() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.total
}
