package controller

import (
	"os"
	"os/exec"

	"github.com/rs/zerolog"
)

// HandleState tracks a subprocess handle through its lifecycle.
type HandleState int

const (
	HandleNotStarted HandleState = iota
	HandleRunning
	HandleStopping
	HandleExited
)

// String returns the state name for logs.
func (s HandleState) String() string {
	switch s {
	case HandleNotStarted:
		return "not-started"
	case HandleRunning:
		return "running"
	case HandleStopping:
		return "stopping"
	case HandleExited:
		return "exited"
	default:
		return "unknown"
	}
}

// Handle owns one spawned subprocess: either the sampler or a target
// the controller launched itself. All methods are called from the
// controller's single run loop, so no locking is needed.
type Handle struct {
	name    string
	cmd     *exec.Cmd
	state   HandleState
	done    chan error
	waitErr error
	logger  zerolog.Logger
}

func newHandle(name string, cmd *exec.Cmd, logger zerolog.Logger) *Handle {
	return &Handle{
		name:   name,
		cmd:    cmd,
		state:  HandleNotStarted,
		logger: logger.With().Str("proc", name).Logger(),
	}
}

// Start spawns the subprocess and begins reaping its exit in the
// background. The exit result is delivered on Done exactly once.
func (h *Handle) Start() error {
	if err := h.cmd.Start(); err != nil {
		h.state = HandleExited
		h.waitErr = err
		return err
	}

	h.state = HandleRunning
	h.done = make(chan error, 1)
	go func() {
		h.done <- h.cmd.Wait()
	}()

	h.logger.Debug().Int("pid", h.cmd.Process.Pid).Msg("Subprocess started")
	return nil
}

// PID returns the subprocess PID. Only valid after a successful Start.
func (h *Handle) PID() int {
	return h.cmd.Process.Pid
}

// State returns the handle's lifecycle state.
func (h *Handle) State() HandleState {
	return h.state
}

// Done exposes the exit notification channel. A caller that receives
// from it directly must pass the result to finish.
func (h *Handle) Done() <-chan error {
	return h.done
}

// Interrupt asks the subprocess to terminate gracefully. Exit must
// still be awaited with Wait.
func (h *Handle) Interrupt() error {
	h.state = HandleStopping
	h.logger.Debug().Int("pid", h.PID()).Msg("Sending interrupt")
	return h.cmd.Process.Signal(os.Interrupt)
}

// Signal delivers an arbitrary signal to the subprocess.
func (h *Handle) Signal(sig os.Signal) error {
	return h.cmd.Process.Signal(sig)
}

// Wait blocks until the subprocess exits and reaps it. Safe to call
// after the exit was already observed via Done and finish.
func (h *Handle) Wait() error {
	if h.state == HandleExited {
		return h.waitErr
	}
	err := <-h.done
	h.finish(err)
	return err
}

// finish records an exit result observed on Done.
func (h *Handle) finish(err error) {
	h.state = HandleExited
	h.waitErr = err
	h.logger.Debug().Err(err).Msg("Subprocess exited")
}
