// Package coordinator implements the real-time session coordinator: the room
// registry, the per-room state machine, and the broadcast dispatcher that
// fans state changes back out to connections.
package coordinator

import (
	"fmt"
	"sync"
)

// Outbox is a connection's outbound frame queue. The dispatcher enqueues
// marshalled events; the connection's single writer goroutine drains them,
// preserving enqueue order.
type Outbox struct {
	connID string
	frames chan []byte
	mu     sync.Mutex
	closed bool
}

// NewOutbox creates an Outbox for the given connection id.
//
// Precondition: connID must be non-empty.
// Postcondition: Returns an Outbox with an open frames channel.
func NewOutbox(connID string, bufferSize int) *Outbox {
	if bufferSize <= 0 {
		bufferSize = 64
	}
	return &Outbox{
		connID: connID,
		frames: make(chan []byte, bufferSize),
	}
}

// ConnID returns the owning connection's id.
func (o *Outbox) ConnID() string {
	return o.connID
}

// Push enqueues a frame for delivery.
//
// Postcondition: The frame is queued, or an error if the outbox is closed or
// full. A full outbox indicates a client that has stopped reading; the caller
// drops the frame for this connection only.
func (o *Outbox) Push(frame []byte) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.closed {
		return fmt.Errorf("outbox %s is closed", o.connID)
	}
	select {
	case o.frames <- frame:
		return nil
	default:
		return fmt.Errorf("outbox %s is full", o.connID)
	}
}

// Frames returns the read-only frame channel. The connection's writer
// goroutine ranges over it until it is closed.
func (o *Outbox) Frames() <-chan []byte {
	return o.frames
}

// Close marks the outbox as closed and closes the frames channel.
//
// Postcondition: Further Push calls return an error. Safe to call repeatedly.
func (o *Outbox) Close() {
	o.mu.Lock()
	defer o.mu.Unlock()

	if !o.closed {
		o.closed = true
		close(o.frames)
	}
}

// IsClosed reports whether the outbox has been closed.
func (o *Outbox) IsClosed() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.closed
}
