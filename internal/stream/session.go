// Package stream implements the lifecycle shared by every live counter
// transport: a connection is registered in the shared registry and the local
// table when it opens, refreshed while it is open, and removed exactly once
// when it closes.
package stream

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/yedhukrishnan/performance-backend/internal/live"
	"go.uber.org/zap"
)

const closeTimeout = 5 * time.Second

type State int32

const (
	StateConnecting State = iota
	StateOpen
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "CONNECTING"
	case StateOpen:
		return "OPEN"
	case StateClosed:
		return "CLOSED"
	default:
		return "UNKNOWN"
	}
}

// Registry is the shared membership store.
type Registry interface {
	Subscribe(ctx context.Context, articleID uuid.UUID, connectionID, clientID string) error
	Refresh(ctx context.Context, articleID uuid.UUID, connectionID, clientID string) error
	Unsubscribe(ctx context.Context, articleID uuid.UUID, connectionID string) error
}

type Manager struct {
	registry  Registry
	table     *live.Table
	buffer    int
	heartbeat time.Duration
	logger    *zap.Logger
}

func NewManager(registry Registry, table *live.Table, buffer int, heartbeat time.Duration, logger *zap.Logger) *Manager {
	return &Manager{
		registry:  registry,
		table:     table,
		buffer:    buffer,
		heartbeat: heartbeat,
		logger:    logger.Named("stream"),
	}
}

func (m *Manager) HeartbeatInterval() time.Duration {
	return m.heartbeat
}

// Session is one open stream for one article.
type Session struct {
	id        string
	articleID uuid.UUID
	clientID  string
	conn      *live.Conn
	manager   *Manager
	state     atomic.Int32
	closeOnce sync.Once

	// mu serializes registry writes so a refresh cannot re-add a closed
	// connection.
	mu sync.Mutex
}

// Open registers a new connection. Each call mints a fresh connection id, so
// reconnects never reuse one. If the registry cannot be reached the session
// is not opened.
func (m *Manager) Open(ctx context.Context, articleID uuid.UUID, clientID string) (*Session, error) {
	s := &Session{
		id:        uuid.NewString(),
		articleID: articleID,
		clientID:  clientID,
		conn:      live.NewConn(m.buffer),
		manager:   m,
	}
	s.state.Store(int32(StateConnecting))

	if err := m.table.Register(s.id, s.conn); err != nil {
		return nil, fmt.Errorf("failed to register connection: %w", err)
	}

	if err := m.registry.Subscribe(ctx, articleID, s.id, clientID); err != nil {
		m.table.Deregister(s.id)
		s.conn.Close()
		s.state.Store(int32(StateClosed))
		return nil, err
	}

	s.state.Store(int32(StateOpen))
	m.logger.Debug("Stream opened",
		zap.String("connection_id", s.id),
		zap.String("article_id", articleID.String()),
		zap.Int("local_connections", m.table.Len()))
	return s, nil
}

func (s *Session) ID() string           { return s.id }
func (s *Session) ArticleID() uuid.UUID { return s.articleID }
func (s *Session) State() State         { return State(s.state.Load()) }

// Events yields counter events until the session closes.
func (s *Session) Events() <-chan live.Event {
	return s.conn.Events()
}

// Refresh keeps the registry entry from expiring. Failures are logged only.
func (s *Session) Refresh(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.State() != StateOpen {
		return
	}
	if err := s.manager.registry.Refresh(ctx, s.articleID, s.id, s.clientID); err != nil {
		s.manager.logger.Warn("Failed to refresh subscription",
			zap.String("connection_id", s.id),
			zap.Error(err))
	}
}

// Close removes the session from the registry and the local table. Only the
// first call does anything, so disconnect and error paths may both call it.
// The request context is usually already cancelled here, so cleanup runs on
// a detached context.
func (s *Session) Close(ctx context.Context) {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		defer s.mu.Unlock()

		s.state.Store(int32(StateClosed))

		s.manager.table.Deregister(s.id)
		s.conn.Close()

		cleanupCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), closeTimeout)
		defer cancel()

		if err := s.manager.registry.Unsubscribe(cleanupCtx, s.articleID, s.id); err != nil {
			s.manager.logger.Warn("Failed to unsubscribe closed stream",
				zap.String("connection_id", s.id),
				zap.String("article_id", s.articleID.String()),
				zap.Error(err))
		}

		s.manager.logger.Debug("Stream closed",
			zap.String("connection_id", s.id),
			zap.Int("local_connections", s.manager.table.Len()))
	})
}
