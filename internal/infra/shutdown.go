package infra

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"
)

// ShutdownPhase orders shutdown work. Handlers registered with earlier
// phases run first.
type ShutdownPhase int

const (
	// PhasePreShutdown runs first - stop accepting new work.
	PhasePreShutdown ShutdownPhase = iota
	// PhaseServices stops background services (worker pools).
	PhaseServices
	// PhaseConnections closes external connections (HTTP server, store pool).
	PhaseConnections
	// PhaseCleanup performs final cleanup.
	PhaseCleanup
	phaseCount // sentinel for iteration
)

func (p ShutdownPhase) String() string {
	switch p {
	case PhasePreShutdown:
		return "pre-shutdown"
	case PhaseServices:
		return "services"
	case PhaseConnections:
		return "connections"
	case PhaseCleanup:
		return "cleanup"
	default:
		return fmt.Sprintf("phase-%d", p)
	}
}

// ShutdownFunc performs one component's cleanup. It receives a context
// that is cancelled if the shutdown times out.
type ShutdownFunc func(ctx context.Context) error

// ShutdownHandler is one registered shutdown hook.
type ShutdownHandler struct {
	Name    string
	Phase   ShutdownPhase
	Func    ShutdownFunc
	Timeout time.Duration // optional per-handler timeout (0 = default)
}

// ShutdownCoordinator runs registered handlers phase by phase on shutdown.
// Build one at startup and pass it down; there is no package-level
// instance.
type ShutdownCoordinator struct {
	mu             sync.Mutex
	handlers       [phaseCount][]ShutdownHandler
	defaultTimeout time.Duration
	logger         *slog.Logger
	shutdownOnce   sync.Once
}

// ShutdownResult records one handler's outcome.
type ShutdownResult struct {
	Name     string
	Phase    ShutdownPhase
	Duration time.Duration
	Error    error
}

// NewShutdownCoordinator creates a coordinator with the given default
// per-handler timeout.
func NewShutdownCoordinator(defaultTimeout time.Duration, logger *slog.Logger) *ShutdownCoordinator {
	if defaultTimeout <= 0 {
		defaultTimeout = 30 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &ShutdownCoordinator{
		defaultTimeout: defaultTimeout,
		logger:         logger,
	}
}

// Register adds a shutdown handler.
func (c *ShutdownCoordinator) Register(handler ShutdownHandler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if handler.Phase < 0 || handler.Phase >= phaseCount {
		handler.Phase = PhaseCleanup
	}
	c.handlers[handler.Phase] = append(c.handlers[handler.Phase], handler)
}

// RegisterService registers a background-service stop in PhaseServices.
func (c *ShutdownCoordinator) RegisterService(name string, fn ShutdownFunc) {
	c.Register(ShutdownHandler{Name: name, Phase: PhaseServices, Func: fn})
}

// RegisterConnection registers a connection close in PhaseConnections.
func (c *ShutdownCoordinator) RegisterConnection(name string, fn ShutdownFunc) {
	c.Register(ShutdownHandler{Name: name, Phase: PhaseConnections, Func: fn})
}

// OnSignal runs Shutdown when one of the given signals arrives (SIGINT and
// SIGTERM when none are named). The returned channel is closed when that
// shutdown completes.
func (c *ShutdownCoordinator) OnSignal(signals ...os.Signal) <-chan struct{} {
	if len(signals) == 0 {
		signals = []os.Signal{syscall.SIGINT, syscall.SIGTERM}
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, signals...)

	done := make(chan struct{})
	go func() {
		sig := <-sigCh
		c.logger.Info("received shutdown signal", "signal", sig)

		ctx, cancel := context.WithTimeout(context.Background(), c.defaultTimeout)
		defer cancel()

		c.Shutdown(ctx)
		close(done)
	}()
	return done
}

// Shutdown runs every registered handler, phase by phase. Handlers within
// one phase run concurrently. Only the first call does anything.
func (c *ShutdownCoordinator) Shutdown(ctx context.Context) []ShutdownResult {
	var results []ShutdownResult

	c.shutdownOnce.Do(func() {
		c.logger.Info("starting graceful shutdown")
		start := time.Now()

		for phase := ShutdownPhase(0); phase < phaseCount; phase++ {
			c.mu.Lock()
			handlers := c.handlers[phase]
			c.mu.Unlock()

			if len(handlers) == 0 {
				continue
			}

			c.logger.Info("executing shutdown phase", "phase", phase.String(), "handlers", len(handlers))
			results = append(results, c.runPhase(ctx, handlers)...)

			if ctx.Err() != nil {
				c.logger.Warn("shutdown context cancelled", "phase", phase.String())
				break
			}
		}

		c.logger.Info("graceful shutdown complete", "duration", time.Since(start))
	})

	return results
}

func (c *ShutdownCoordinator) runPhase(ctx context.Context, handlers []ShutdownHandler) []ShutdownResult {
	results := make([]ShutdownResult, len(handlers))
	var wg sync.WaitGroup

	for i, handler := range handlers {
		wg.Add(1)
		go func(idx int, h ShutdownHandler) {
			defer wg.Done()
			results[idx] = c.runHandler(ctx, h)
		}(i, handler)
	}

	wg.Wait()
	return results
}

func (c *ShutdownCoordinator) runHandler(ctx context.Context, handler ShutdownHandler) ShutdownResult {
	result := ShutdownResult{Name: handler.Name, Phase: handler.Phase}
	start := time.Now()

	timeout := handler.Timeout
	if timeout <= 0 {
		timeout = c.defaultTimeout
	}
	handlerCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- handler.Func(handlerCtx)
	}()

	select {
	case err := <-done:
		result.Duration = time.Since(start)
		result.Error = err
		if err != nil {
			c.logger.Warn("shutdown handler error",
				"handler", handler.Name,
				"phase", handler.Phase.String(),
				"error", err,
			)
		}
	case <-handlerCtx.Done():
		result.Duration = time.Since(start)
		result.Error = handlerCtx.Err()
		c.logger.Warn("shutdown handler timed out",
			"handler", handler.Name,
			"phase", handler.Phase.String(),
			"timeout", timeout,
		)
	}

	return result
}
