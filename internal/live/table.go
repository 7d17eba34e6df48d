// Package live holds the process-local side of counter streaming: the table of
// open connections and the buffered handle each transport drains.
package live

import (
	"errors"
	"sync"
)

var (
	ErrDuplicateConnection = errors.New("connection id already registered")
	ErrConnectionClosed    = errors.New("connection closed")
	ErrSlowConsumer        = errors.New("connection send buffer full")
)

// Sink accepts events for one open stream. Send must not block.
type Sink interface {
	Send(Event) error
}

// Table maps connection ids to their open sinks. Only the streaming endpoints
// write to it; the fan-out engine only reads.
type Table struct {
	mu    sync.RWMutex
	conns map[string]Sink
}

func NewTable() *Table {
	return &Table{conns: make(map[string]Sink)}
}

func (t *Table) Register(connectionID string, sink Sink) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, exists := t.conns[connectionID]; exists {
		return ErrDuplicateConnection
	}
	t.conns[connectionID] = sink
	return nil
}

// Deregister removes the connection and reports whether it was present.
func (t *Table) Deregister(connectionID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	_, ok := t.conns[connectionID]
	delete(t.conns, connectionID)
	return ok
}

func (t *Table) Lookup(connectionID string) (Sink, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	sink, ok := t.conns[connectionID]
	return sink, ok
}

// IDs returns a snapshot of the registered connection ids.
func (t *Table) IDs() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()

	ids := make([]string, 0, len(t.conns))
	for id := range t.conns {
		ids = append(ids, id)
	}
	return ids
}

func (t *Table) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.conns)
}
