package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
)

// State is the lifecycle state of the responder.
type State string

// There is no transition from StatePolling back to StateUnauthenticated.
const (
	StateUnauthenticated State = "unauthenticated"
	StatePolling         State = "polling"
)

// ErrShutdown is returned when polling is requested after Shutdown.
var ErrShutdown = errors.New("server is shutting down")

// ActivateFunc prepares the mailbox and starts the polling loop. It receives
// the server-lifetime context.
type ActivateFunc func(ctx context.Context) error

// ServerContext holds the server-lifetime context and the responder state.
type ServerContext struct {
	ctx      context.Context
	cancel   context.CancelFunc
	activate ActivateFunc
	logger   *slog.Logger

	// activateMu serializes StartPolling so activation runs at most once
	// successfully, even across concurrent callbacks.
	activateMu sync.Mutex

	mu       sync.RWMutex
	state    State
	shutdown bool
}

// NewServerContext creates a new server context in StateUnauthenticated.
func NewServerContext(ctx context.Context, activate ActivateFunc, logger *slog.Logger) *ServerContext {
	if logger == nil {
		logger = slog.Default()
	}
	shutdownCtx, cancel := context.WithCancel(ctx)

	return &ServerContext{
		ctx:      shutdownCtx,
		cancel:   cancel,
		activate: activate,
		logger:   logger,
		state:    StateUnauthenticated,
	}
}

// Context returns the server context. It is canceled by Shutdown.
func (sc *ServerContext) Context() context.Context {
	return sc.ctx
}

// State returns the current state.
func (sc *ServerContext) State() State {
	sc.mu.RLock()
	defer sc.mu.RUnlock()
	return sc.state
}

// IsPolling reports whether polling has started.
func (sc *ServerContext) IsPolling() bool {
	return sc.State() == StatePolling
}

// StartPolling runs the activation function unless polling is already
// running. It reports whether this call started polling. On error the state
// stays StateUnauthenticated and a later call may try again.
func (sc *ServerContext) StartPolling() (bool, error) {
	sc.activateMu.Lock()
	defer sc.activateMu.Unlock()

	if sc.IsPolling() {
		sc.logger.Info("polling already running, credential updated")
		return false, nil
	}
	if sc.IsShutdown() {
		return false, ErrShutdown
	}

	if err := sc.activate(sc.ctx); err != nil {
		return false, fmt.Errorf("failed to start polling: %w", err)
	}

	sc.mu.Lock()
	sc.state = StatePolling
	sc.mu.Unlock()

	sc.logger.Info("polling started")
	return true, nil
}

// IsShutdown returns whether the server has been shutdown
func (sc *ServerContext) IsShutdown() bool {
	sc.mu.RLock()
	defer sc.mu.RUnlock()
	return sc.shutdown
}

// Shutdown cancels the server context, which stops the polling loop.
func (sc *ServerContext) Shutdown() error {
	sc.mu.Lock()
	defer sc.mu.Unlock()

	if sc.shutdown {
		return nil
	}

	sc.shutdown = true
	sc.cancel()
	return nil
}
