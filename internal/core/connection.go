package core

import "sync"

const (
	// DefaultCommandBuffer is the inbound queue depth of a connection.
	DefaultCommandBuffer = 32
	// DefaultEventBuffer is the outbound queue depth of a connection.
	DefaultEventBuffer = 64
)

// Connection is one live client channel as seen by the core layer.
// Attributes such as the user id and room memberships live in the Registry.
type Connection struct {
	ID       string
	Commands chan *Command
	Events   chan *Event

	mu     sync.Mutex
	closed bool
	done   chan struct{}
}

// NewConnection constructs a connection with default queue sizes.
func NewConnection(id string) *Connection {
	return NewConnectionSize(id, DefaultCommandBuffer, DefaultEventBuffer)
}

// NewConnectionSize constructs a connection with explicit queue sizes.
func NewConnectionSize(id string, commandBuffer, eventBuffer int) *Connection {
	if commandBuffer <= 0 {
		commandBuffer = DefaultCommandBuffer
	}
	if eventBuffer <= 0 {
		eventBuffer = DefaultEventBuffer
	}
	return &Connection{
		ID:       id,
		Commands: make(chan *Command, commandBuffer),
		Events:   make(chan *Event, eventBuffer),
		done:     make(chan struct{}),
	}
}

// Done is closed once the connection has been torn down.
func (c *Connection) Done() <-chan struct{} {
	return c.done
}

// Submit queues a command for the connection's coordinating goroutine.
// It returns false if the connection is already closed.
func (c *Connection) Submit(cmd *Command) bool {
	select {
	case <-c.done:
		return false
	default:
	}

	select {
	case c.Commands <- cmd:
		return true
	case <-c.done:
		return false
	}
}

// deliver queues an event without blocking. A full queue drops the event.
func (c *Connection) deliver(ev *Event) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return false
	}

	select {
	case c.Events <- ev:
		return true
	default:
		return false
	}
}

// Close releases the outbound queue. Safe to call more than once.
func (c *Connection) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}
	c.closed = true
	close(c.done)
	close(c.Events)
}

// IsClosed reports whether Close has been called.
func (c *Connection) IsClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}
