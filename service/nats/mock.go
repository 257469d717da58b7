package nats

import (
	"context"
	"sync"
)

// MockPublisher is a test implementation of the Publisher interface.
// It records published events in memory for inspection.
type MockPublisher struct {
	mu     sync.Mutex
	events []*DistributionEvent
	closed bool

	// PublishErr, when set, is returned from PublishDistribution.
	PublishErr error
}

// NewMockPublisher creates a new mock publisher.
func NewMockPublisher() *MockPublisher {
	return &MockPublisher{}
}

// PublishDistribution records the event in memory.
func (m *MockPublisher) PublishDistribution(_ context.Context, event *DistributionEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.PublishErr != nil {
		return m.PublishErr
	}
	m.events = append(m.events, event)
	return nil
}

// Close marks the publisher as closed.
func (m *MockPublisher) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// Events returns a copy of all recorded events.
func (m *MockPublisher) Events() []*DistributionEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*DistributionEvent, len(m.events))
	copy(out, m.events)
	return out
}

// IsClosed reports whether Close has been called.
func (m *MockPublisher) IsClosed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

// Reset clears all recorded events.
func (m *MockPublisher) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = nil
	m.closed = false
}
