package live

import "sync"

// Conn is a buffered Sink drained by exactly one transport goroutine.
type Conn struct {
	mu     sync.Mutex
	events chan Event
	closed bool
}

func NewConn(buffer int) *Conn {
	return &Conn{events: make(chan Event, buffer)}
}

// Send queues an event without blocking. A full buffer drops the event.
func (c *Conn) Send(evt Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrConnectionClosed
	}

	select {
	case c.events <- evt:
		return nil
	default:
		return ErrSlowConsumer
	}
}

// Events is closed once Close has been called.
func (c *Conn) Events() <-chan Event {
	return c.events
}

func (c *Conn) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.closed {
		c.closed = true
		close(c.events)
	}
}
