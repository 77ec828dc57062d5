package testutil

import (
	"fmt"
	"sync"
)

// MockConn is an in-memory stand-in for a NATS connection. It records every
// published message for verification and matches the distribute package's
// publisher connection contract. Thread-safe for concurrent use.
type MockConn struct {
	mu         sync.RWMutex
	messages   map[string][][]byte
	closed     bool
	publishErr error
}

// SetPublishErr makes every subsequent Publish return err; nil clears it.
func (c *MockConn) SetPublishErr(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.publishErr = err
}

// NewMockConn creates an empty mock connection.
func NewMockConn() *MockConn {
	return &MockConn{
		messages: make(map[string][][]byte),
	}
}

// Publish records a message under the subject.
func (c *MockConn) Publish(subject string, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return fmt.Errorf("connection is closed")
	}
	if c.publishErr != nil {
		return c.publishErr
	}
	buf := make([]byte, len(data))
	copy(buf, data)
	c.messages[subject] = append(c.messages[subject], buf)
	return nil
}

// Flush is a no-op on the mock.
func (c *MockConn) Flush() error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return fmt.Errorf("connection is closed")
	}
	return nil
}

// Drain marks the connection closed.
func (c *MockConn) Drain() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

// Messages returns copies of all messages published to the subject.
func (c *MockConn) Messages(subject string) [][]byte {
	c.mu.RLock()
	defer c.mu.RUnlock()

	msgs := c.messages[subject]
	out := make([][]byte, len(msgs))
	copy(out, msgs)
	return out
}

// Subjects returns every subject that has received at least one message.
func (c *MockConn) Subjects() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	subjects := make([]string, 0, len(c.messages))
	for s := range c.messages {
		subjects = append(subjects, s)
	}
	return subjects
}
