package system

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/yedhukrishnan/performance-backend/internal/fanout"
	"github.com/yedhukrishnan/performance-backend/internal/interfaces"
	"github.com/yedhukrishnan/performance-backend/internal/live"
	"github.com/yedhukrishnan/performance-backend/internal/relay"
	"go.uber.org/zap"
)

const drainTimeout = 5 * time.Second

// Runner is a background loop that stops when its context ends.
type Runner interface {
	Run(ctx context.Context)
}

type Sweeper interface {
	Sweep(ctx context.Context) (int, error)
}

type RelayConsumer interface {
	Consume(ctx context.Context, deliver relay.DeliverFunc) error
	Close() error
}

// ConnectionUnsubscriber drops a registry entry knowing only its
// connection id.
type ConnectionUnsubscriber interface {
	UnsubscribeConnection(ctx context.Context, connectionID string) error
}

type LocalDeliverer interface {
	DeliverLocal(ctx context.Context, evt live.Event) fanout.Report
}

// Components are the long-running parts of the process. Nil entries are
// skipped.
type Components struct {
	REST            interfaces.Service
	GRPC            interfaces.Service
	Hub             Runner
	Janitor         Sweeper
	JanitorInterval time.Duration
	Relay           RelayConsumer
	Publisher       LocalDeliverer
	Connections     interfaces.ConnectionSet
	Registry        ConnectionUnsubscriber
}

type LifecycleManager struct {
	components Components
	logger     *zap.Logger

	stateMu      sync.RWMutex
	currentState SystemState
	lastError    error

	background     sync.WaitGroup
	stopBackground context.CancelFunc

	shutdownChan chan struct{}
	shutdownOnce sync.Once
}

func NewLifecycleManager(components Components, logger *zap.Logger) *LifecycleManager {
	return &LifecycleManager{
		components:     components,
		logger:         logger.Named("system"),
		currentState:   StateInitializing,
		stopBackground: func() {},
		shutdownChan:   make(chan struct{}),
	}
}

// Start launches the background loops and then the network servers.
func (lm *LifecycleManager) Start() error {
	lm.logger.Info("Starting performance backend")

	ctx, cancel := context.WithCancel(context.Background())
	lm.stopBackground = cancel

	if lm.components.Hub != nil {
		lm.goBackground(func() { lm.components.Hub.Run(ctx) })
	}
	if lm.components.Janitor != nil && lm.components.JanitorInterval > 0 {
		lm.goBackground(func() { lm.runJanitor(ctx) })
	}
	if lm.components.Relay != nil && lm.components.Publisher != nil {
		lm.goBackground(func() { lm.runRelay(ctx) })
	}

	if lm.components.GRPC != nil {
		if err := lm.components.GRPC.Start(); err != nil {
			err = fmt.Errorf("failed to start gRPC: %w", err)
			lm.setError(err)
			return err
		}
	}
	if lm.components.REST != nil {
		if err := lm.components.REST.Start(); err != nil {
			err = fmt.Errorf("failed to start REST API: %w", err)
			lm.setError(err)
			return err
		}
	}

	if err := lm.setState(StateRunning); err != nil {
		return err
	}
	lm.logger.Info("System started successfully",
		zap.Bool("relay_enabled", lm.components.Relay != nil),
		zap.Duration("janitor_interval", lm.components.JanitorInterval))
	return nil
}

func (lm *LifecycleManager) goBackground(fn func()) {
	lm.background.Add(1)
	go func() {
		defer lm.background.Done()
		fn()
	}()
}

// runJanitor removes registry entries left behind by processes that died
// without running their close handlers.
func (lm *LifecycleManager) runJanitor(ctx context.Context) {
	ticker := time.NewTicker(lm.components.JanitorInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			removed, err := lm.components.Janitor.Sweep(ctx)
			if err != nil {
				if ctx.Err() == nil {
					lm.logger.Warn("Subscription sweep failed", zap.Error(err))
				}
				continue
			}
			lm.logger.Debug("Subscription sweep finished", zap.Int("removed", removed))
		}
	}
}

func (lm *LifecycleManager) runRelay(ctx context.Context) {
	deliver := func(ctx context.Context, evt live.Event) {
		lm.components.Publisher.DeliverLocal(ctx, evt)
	}
	if err := lm.components.Relay.Consume(ctx, deliver); err != nil {
		lm.logger.Error("Relay consumer stopped", zap.Error(err))
	}
}

// Shutdown stops the servers first so open streams end and unsubscribe,
// then the background loops. Safe to call more than once.
func (lm *LifecycleManager) Shutdown(ctx context.Context) error {
	var shutdownErr error

	lm.shutdownOnce.Do(func() {
		lm.logger.Info("Shutting down system")
		if err := lm.setState(StateStopping); err != nil {
			lm.logger.Warn("Unexpected state during shutdown", zap.Error(err))
		}

		shutdownErr = lm.gracefulShutdown(ctx)
		lm.drainConnections(ctx)

		lm.stopBackground()
		lm.waitBackground(ctx)

		if lm.components.Relay != nil {
			if err := lm.components.Relay.Close(); err != nil {
				lm.logger.Warn("Failed to close relay", zap.Error(err))
			}
		}

		if shutdownErr != nil {
			lm.setError(shutdownErr)
		}
		if err := lm.setState(StateStopped); err != nil {
			lm.logger.Warn("Unexpected state during shutdown", zap.Error(err))
		}
		close(lm.shutdownChan)
	})

	return shutdownErr
}

func (lm *LifecycleManager) gracefulShutdown(ctx context.Context) error {
	var wg sync.WaitGroup
	errChan := make(chan error, 2)

	if lm.components.REST != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := lm.components.REST.Shutdown(ctx); err != nil {
				errChan <- fmt.Errorf("rest api shutdown failed: %w", err)
			}
		}()
	}

	if lm.components.GRPC != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := lm.components.GRPC.Shutdown(ctx); err != nil {
				errChan <- fmt.Errorf("grpc shutdown failed: %w", err)
			}
		}()
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		lm.logger.Warn("Shutdown timeout, forcing stop")
		return fmt.Errorf("shutdown timeout exceeded")
	}

	close(errChan)
	var errs []error
	for err := range errChan {
		errs = append(errs, err)
	}
	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	lm.logger.Info("Graceful shutdown completed")
	return nil
}

// drainConnections unsubscribes streams whose handlers did not finish before
// the servers stopped, so other nodes stop counting them as subscribers.
func (lm *LifecycleManager) drainConnections(ctx context.Context) {
	if lm.components.Connections == nil || lm.components.Registry == nil {
		return
	}

	cleanupCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), drainTimeout)
	defer cancel()

	ids := lm.components.Connections.IDs()
	for _, id := range ids {
		if err := lm.components.Registry.UnsubscribeConnection(cleanupCtx, id); err != nil {
			lm.logger.Warn("Failed to drain connection",
				zap.String("connection_id", id),
				zap.Error(err))
		}
	}
	if len(ids) > 0 {
		lm.logger.Info("Drained open connections", zap.Int("count", len(ids)))
	}
}

func (lm *LifecycleManager) waitBackground(ctx context.Context) {
	done := make(chan struct{})
	go func() {
		lm.background.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		lm.logger.Warn("Background loops did not stop in time")
	}
}

// Done is closed once Shutdown has finished.
func (lm *LifecycleManager) Done() <-chan struct{} {
	return lm.shutdownChan
}

func (lm *LifecycleManager) State() SystemState {
	lm.stateMu.RLock()
	defer lm.stateMu.RUnlock()
	return lm.currentState
}

func (lm *LifecycleManager) setState(state SystemState) error {
	lm.stateMu.Lock()
	defer lm.stateMu.Unlock()
	if err := ValidateTransition(lm.currentState, state); err != nil {
		return err
	}
	lm.currentState = state
	return nil
}

func (lm *LifecycleManager) setError(err error) {
	lm.stateMu.Lock()
	defer lm.stateMu.Unlock()
	lm.currentState = StateError
	lm.lastError = err
}

// GetCurrentStatus returns the current state and the number of live streams
// held by this process.
func (lm *LifecycleManager) GetCurrentStatus() SystemStatus {
	lm.stateMu.RLock()
	defer lm.stateMu.RUnlock()

	status := SystemStatus{
		State:     lm.currentState,
		Timestamp: time.Now().Unix(),
	}
	if lm.components.Connections != nil {
		status.LiveStreams = lm.components.Connections.Len()
	}
	if lm.lastError != nil {
		status.Error = lm.lastError.Error()
	}
	return status
}
