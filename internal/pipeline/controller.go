package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"sync"
)

// State is the lifecycle state of the ingestion loop.
type State string

const (
	StateStopped  State = "stopped"
	StateRunning  State = "running"
	StateDisabled State = "disabled" // source unavailable; only an explicit Start resumes
)

// Status reports the ingestion loop state together with the pipeline snapshot.
type Status struct {
	State   State  `json:"state"`
	Source  string `json:"source"`
	Message string `json:"message,omitempty"`
	Snapshot
}

// Controller owns the goroutine that runs the pipeline and lets callers start and stop it.
type Controller struct {
	pipeline *Pipeline
	logger   *slog.Logger

	mu      sync.Mutex
	state   State
	message string
	cancel  context.CancelFunc
	done    chan struct{}
}

// NewController creates a stopped controller for p.
func NewController(p *Pipeline, logger *slog.Logger) *Controller {
	return &Controller{pipeline: p, logger: logger, state: StateStopped}
}

// Start launches the ingestion loop if it is not already running. The loop is detached
// from ctx's cancellation so request-scoped contexts may be passed; use Stop to end it.
func (c *Controller) Start(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state == StateRunning {
		return
	}

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	done := make(chan struct{})
	c.state = StateRunning
	c.message = ""
	c.cancel = cancel
	c.done = done

	go c.run(runCtx, done)
}

func (c *Controller) run(ctx context.Context, done chan struct{}) {
	defer close(done)
	err := c.pipeline.Run(ctx)

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.done != done {
		return
	}
	c.cancel = nil
	if errors.Is(err, ErrSourceUnavailable) {
		c.state = StateDisabled
		c.message = err.Error()
		c.logger.Warn("telemetry ingestion disabled", "error", err)
		return
	}
	c.state = StateStopped
	if err != nil {
		c.message = err.Error()
		c.logger.Error("telemetry ingestion ended", "error", err)
	}
}

// Stop cancels the ingestion loop and waits for the current window to finish or for ctx
// to expire. Stopping a loop that is not running is a no-op.
func (c *Controller) Stop(ctx context.Context) error {
	c.mu.Lock()
	if c.state != StateRunning || c.cancel == nil {
		c.mu.Unlock()
		return nil
	}
	c.cancel()
	done := c.done
	c.mu.Unlock()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Status returns the current state and the pipeline snapshot.
func (c *Controller) Status() Status {
	c.mu.Lock()
	state, message := c.state, c.message
	c.mu.Unlock()

	return Status{
		State:    state,
		Source:   c.pipeline.SourceName(),
		Message:  message,
		Snapshot: c.pipeline.Snapshot(),
	}
}
