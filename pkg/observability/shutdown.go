package observability

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

const defaultShutdownTimeout = 30 * time.Second

// ShutdownFunc releases one resource
type ShutdownFunc func(context.Context) error

// Phase orders shutdown steps. All steps of a phase finish before the next
// phase starts; steps within a phase run concurrently.
type Phase int

const (
	// PhaseDrain stops producers of work: schedulers and async writers
	PhaseDrain Phase = iota
	// PhaseRelease closes the connections the drained work depended on
	PhaseRelease
)

type shutdownStep struct {
	phase Phase
	name  string
	fn    ShutdownFunc
}

// ShutdownManager stops the HTTP server, then runs the registered steps
// phase by phase within one overall timeout
type ShutdownManager struct {
	logger  *Logger
	server  *http.Server
	timeout time.Duration

	mu    sync.Mutex
	steps []shutdownStep
}

// NewShutdownManager creates a ShutdownManager. A zero timeout means 30s.
func NewShutdownManager(logger *Logger, server *http.Server, timeout time.Duration) *ShutdownManager {
	if timeout <= 0 {
		timeout = defaultShutdownTimeout
	}
	if logger == nil {
		logger = NewLogger(InfoLevel, nil)
	}
	return &ShutdownManager{logger: logger, server: server, timeout: timeout}
}

// Register adds a step to a phase. Nil functions are ignored.
func (sm *ShutdownManager) Register(phase Phase, name string, fn ShutdownFunc) {
	if fn == nil {
		return
	}
	sm.mu.Lock()
	sm.steps = append(sm.steps, shutdownStep{phase: phase, name: name, fn: fn})
	sm.mu.Unlock()
}

// WaitAndShutdown blocks until ctx is done, then calls Shutdown
func (sm *ShutdownManager) WaitAndShutdown(ctx context.Context) error {
	<-ctx.Done()
	sm.logger.Info("Shutdown requested")
	return sm.Shutdown()
}

// Shutdown stops accepting requests and runs every phase. A failed step does
// not stop later phases; all failures are returned joined.
func (sm *ShutdownManager) Shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), sm.timeout)
	defer cancel()

	if sm.server != nil {
		if err := sm.server.Shutdown(ctx); err != nil {
			sm.logger.WithError(err).Error("HTTP server did not drain")
			return fmt.Errorf("failed to shut down HTTP server: %w", err)
		}
		sm.logger.Info("HTTP server stopped")
	}

	var errs []error
	for _, phase := range sm.phases() {
		if err := sm.runPhase(ctx, phase); err != nil {
			errs = append(errs, err)
		}
		if ctx.Err() != nil {
			sm.logger.Warn("Shutdown timed out, skipping remaining steps")
			return errors.Join(append(errs, fmt.Errorf("shutdown timed out after %s", sm.timeout))...)
		}
	}
	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	sm.logger.Info("Shutdown complete")
	return nil
}

// phases groups the registered steps by phase in ascending order
func (sm *ShutdownManager) phases() [][]shutdownStep {
	sm.mu.Lock()
	steps := append([]shutdownStep(nil), sm.steps...)
	sm.mu.Unlock()

	sort.SliceStable(steps, func(i, j int) bool { return steps[i].phase < steps[j].phase })
	var out [][]shutdownStep
	for i, s := range steps {
		if i == 0 || s.phase != steps[i-1].phase {
			out = append(out, nil)
		}
		out[len(out)-1] = append(out[len(out)-1], s)
	}
	return out
}

// runPhase runs the steps concurrently and returns once they finish or ctx
// expires. Steps still running past the deadline are abandoned.
func (sm *ShutdownManager) runPhase(ctx context.Context, steps []shutdownStep) error {
	var (
		mu   sync.Mutex
		errs []error
		g    errgroup.Group
	)
	for _, s := range steps {
		g.Go(func() error {
			log := sm.logger.WithField("component", s.name)
			if err := s.fn(ctx); err != nil {
				log.WithError(err).Error("Shutdown step failed")
				mu.Lock()
				errs = append(errs, fmt.Errorf("%s: %w", s.name, err))
				mu.Unlock()
				return nil
			}
			log.Debug("Shutdown step complete")
			return nil
		})
	}

	done := make(chan struct{})
	go func() {
		_ = g.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
	}

	mu.Lock()
	defer mu.Unlock()
	return errors.Join(errs...)
}
