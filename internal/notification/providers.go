package notification

import (
	"context"
	"fmt"
	"log"
	"sync"
)

// Provider delivers messages over one channel
type Provider interface {
	Send(ctx context.Context, msg *Message) error
}

// ConsoleProvider logs messages instead of delivering them. Used in
// development and as the default when no real provider is configured.
type ConsoleProvider struct {
	channel Channel
}

// NewConsoleProvider creates a console logging provider
func NewConsoleProvider(channel Channel) *ConsoleProvider {
	return &ConsoleProvider{channel: channel}
}

// Send logs the message
func (p *ConsoleProvider) Send(_ context.Context, msg *Message) error {
	log.Printf("[%s] to=%s subject=%q", p.channel, msg.RecipientID, msg.Subject)
	return nil
}

// MockProvider records sent messages for tests
type MockProvider struct {
	mu         sync.Mutex
	sent       []*Message
	failOnSend bool
}

// NewMockProvider creates a recording provider
func NewMockProvider() *MockProvider {
	return &MockProvider{}
}

// Send records the message, or fails when configured to
func (p *MockProvider) Send(_ context.Context, msg *Message) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.failOnSend {
		return fmt.Errorf("mock send failure")
	}
	p.sent = append(p.sent, msg)
	return nil
}

// SetFailOnSend makes subsequent sends fail
func (p *MockProvider) SetFailOnSend(fail bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.failOnSend = fail
}

// Sent returns the recorded messages
func (p *MockProvider) Sent() []*Message {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make([]*Message, len(p.sent))
	copy(out, p.sent)
	return out
}
