// Package controller drives one profiling session: it starts and
// stops the sampler in lockstep with the target process, reacts to
// operator and handshake signals, and hands completed raw samples to
// the artifact pipeline.
package controller

import (
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v4/process"

	"github.com/flamerun/flamerun/internal/config"
	"github.com/flamerun/flamerun/internal/errdefs"
	"github.com/flamerun/flamerun/internal/pipeline"
	"github.com/flamerun/flamerun/internal/session"
)

// State is the controller's lifecycle state.
type State int

const (
	StateIdle State = iota
	StateSampling
	StateStopping
	StateDone
	StateFailed
)

// String returns the state name for logs.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateSampling:
		return "sampling"
	case StateStopping:
		return "stopping"
	case StateDone:
		return "done"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// rawFileName is the fixed name the sampler records into; the
// timestamped artifacts are derived from it by the pipeline.
const rawFileName = "perf.data"

// counterEvents is the fixed event set collected in interactive
// counter mode.
var counterEvents = []string{
	"cycles",
	"instructions",
	"cache-references",
	"cache-misses",
	"branches",
	"branch-misses",
	"task-clock",
	"context-switches",
}

// Handshake signals for interactive mode. The target sends begin/end
// to the controller; the controller acknowledges a running collector
// by sending SIGCONT back, and the target convention is to pause
// until that acknowledgment arrives.
const (
	sigBeginCollection = syscall.SIGUSR1
	sigEndCollection   = syscall.SIGUSR2
	sigAckCollection   = syscall.SIGCONT
)

// Controller owns the subprocess lifecycle for one session. It is the
// only writer of its own state: all signal reactions are serialized
// through a single run loop receiving from the signals channel, so
// there are no reentrant signal handlers.
type Controller struct {
	cfg    *config.Config
	sess   *session.Session
	logger zerolog.Logger
	runner *pipeline.Runner

	state   State
	sampler *Handle
	target  *Handle

	// signals receives operator and handshake signals. Buffered so a
	// burst of duplicate signals never blocks the sender; duplicates
	// left in the buffer after a stop transition are ignored.
	signals chan os.Signal
}

// New creates a controller for a resolved session.
func New(cfg *config.Config, sess *session.Session, logger zerolog.Logger) *Controller {
	return &Controller{
		cfg:  cfg,
		sess: sess,
		logger: logger.With().
			Str("component", "controller").
			Str("session_id", sess.ID.String()).
			Str("mode", sess.Mode.String()).
			Logger(),
		runner:  pipeline.NewRunner(cfg, logger),
		state:   StateIdle,
		signals: make(chan os.Signal, 4),
	}
}

// State returns the controller state. Only meaningful once Run has
// returned.
func (c *Controller) State() State {
	return c.state
}

// Run drives the session to completion and returns the rendered
// flamegraph path for modes that produce artifacts. Every failure is
// terminal: nothing is retried.
func (c *Controller) Run() (string, error) {
	c.logger.Info().Msg("Session starting")

	image, err := c.run()
	if err != nil {
		c.setState(StateFailed)
		return "", err
	}

	c.logger.Info().Msg("Session complete")
	return image, nil
}

func (c *Controller) run() (string, error) {
	switch c.sess.Mode {
	case session.ModePidTimed:
		return c.runPidTimed()
	case session.ModePidUntilInterrupt:
		return c.runPidUntilInterrupt()
	case session.ModeExecRecord:
		return c.runExecRecord()
	case session.ModeExecInteractive:
		return "", c.runExecInteractive()
	default:
		return "", errdefs.Argumentf("unknown mode %v", c.sess.Mode)
	}
}

// runPidTimed attaches a bounded sampler to the target: the sampler
// invocation itself carries the duration, so completion is fully
// synchronous and no signal handling is involved.
func (c *Controller) runPidTimed() (string, error) {
	if err := c.checkTargetAlive(); err != nil {
		return "", err
	}

	secs := int(c.sess.Duration / time.Second)
	args := c.recordArgs()
	args = append(args, "-p", strconv.Itoa(int(c.sess.TargetPID)), "--", "sleep", strconv.Itoa(secs))

	if err := c.startSampler(args); err != nil {
		return "", err
	}
	c.setState(StateSampling)

	// Block on the bounded run; the sampler stops itself.
	if err := c.sampler.Wait(); err != nil {
		return "", errdefs.Spawnf("sampler exited abnormally: %v", err)
	}

	return c.generateArtifacts()
}

// runPidUntilInterrupt attaches an unbounded sampler and waits for
// the operator's interrupt to drive the stop sequence. The sampler
// may also exit on its own when the target terminates.
func (c *Controller) runPidUntilInterrupt() (string, error) {
	if err := c.checkTargetAlive(); err != nil {
		return "", err
	}

	args := c.recordArgs()
	args = append(args, "-p", strconv.Itoa(int(c.sess.TargetPID)))

	if err := c.startSampler(args); err != nil {
		return "", err
	}
	c.setState(StateSampling)

	signal.Notify(c.signals, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(c.signals)

	c.logger.Info().Int32("pid", c.sess.TargetPID).Msg("Sampling until interrupted (Ctrl+C to stop)")

	select {
	case err := <-c.sampler.Done():
		c.sampler.finish(err)
		if err != nil {
			return "", errdefs.Spawnf("sampler exited abnormally: %v", err)
		}
		// Target gone; the sampler finished on its own.
		c.logger.Info().Msg("Sampler finished before interrupt; target likely exited")

	case sig := <-c.signals:
		c.logger.Info().Str("signal", sig.String()).Msg("Stop requested")
		c.setState(StateStopping)
		if err := c.sampler.Interrupt(); err != nil {
			c.logger.Warn().Err(err).Msg("Interrupt delivery failed; sampler may already be exiting")
		}
		if err := c.sampler.Wait(); err != nil {
			c.logger.Warn().Err(err).Msg("Sampler exited with error after stop request")
		}
	}

	return c.generateArtifacts()
}

// runExecRecord launches the executable under the sampler's
// supervision: one combined child that both runs and records the
// target, awaited synchronously.
func (c *Controller) runExecRecord() (string, error) {
	args := c.recordArgs()
	args = append(args, "--", c.sess.ExecPath)
	args = append(args, c.sess.ExecArgs...)

	if err := c.startSampler(args); err != nil {
		return "", err
	}
	c.setState(StateSampling)

	if err := c.sampler.Wait(); err != nil {
		// The recorded executable's own exit status propagates through
		// the sampler; samples up to exit are still usable.
		c.logger.Warn().Err(err).Msg("Recorded executable exited with error")
	}

	return c.generateArtifacts()
}

// runExecInteractive launches the target directly and collects
// hardware counters between the target's begin/end handshake signals.
// Counter collection reports live statistics; no artifacts are
// produced.
func (c *Controller) runExecInteractive() error {
	//nolint:gosec // G204: The target executable is operator-supplied.
	cmd := exec.Command(c.sess.ExecPath, c.sess.ExecArgs...)
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr

	c.target = newHandle("target", cmd, c.logger)
	if err := c.target.Start(); err != nil {
		return errdefs.Spawnf("target launch failed: %v", err)
	}

	signal.Notify(c.signals, sigBeginCollection, sigEndCollection, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(c.signals)

	c.logger.Info().
		Int("target_pid", c.target.PID()).
		Str("begin", sigBeginCollection.String()).
		Str("end", sigEndCollection.String()).
		Msg("Target launched; waiting for handshake signals")

	for {
		select {
		case sig := <-c.signals:
			done, err := c.handleInteractiveSignal(sig)
			if err != nil {
				return err
			}
			if done {
				c.setState(StateDone)
				return nil
			}

		case err := <-c.target.Done():
			c.target.finish(err)
			c.logger.Info().Err(err).Msg("Target exited")
			// Reap the sampler before tearing the session down.
			c.stopSamplerIfRunning()
			c.setState(StateDone)
			return nil
		}
	}
}

// handleInteractiveSignal applies one handshake or stop signal.
// Returns done=true when the session is complete.
func (c *Controller) handleInteractiveSignal(sig os.Signal) (bool, error) {
	switch sig {
	case sigBeginCollection:
		if c.sampler != nil && c.sampler.State() == HandleRunning {
			c.logger.Debug().Msg("Duplicate begin-collection signal ignored")
			return false, nil
		}

		args := []string{"stat", "-e", strings.Join(counterEvents, ","),
			"-p", strconv.Itoa(c.target.PID())}
		if err := c.startSampler(args); err != nil {
			// The collector refused to start; tear the owned target down.
			_ = c.target.Signal(syscall.SIGTERM)
			_ = c.target.Wait()
			return false, err
		}
		c.setState(StateSampling)

		// Acknowledge so the paused target resumes.
		if err := c.target.Signal(sigAckCollection); err != nil {
			c.logger.Warn().Err(err).Msg("Failed to acknowledge collection start to target")
		}
		c.logger.Info().Msg("Counter collection started")
		return false, nil

	case sigEndCollection:
		if c.sampler == nil || c.sampler.State() != HandleRunning {
			c.logger.Debug().Msg("End-collection signal with no active collector ignored")
			return false, nil
		}
		c.setState(StateStopping)
		c.stopSamplerIfRunning()

		if err := c.target.Wait(); err != nil {
			c.logger.Warn().Err(err).Msg("Target exited with error")
		}
		c.logger.Info().Msg("Counter collection complete")
		return true, nil

	default:
		// Operator-driven teardown: stop the collector first, then
		// the target.
		c.logger.Info().Str("signal", sig.String()).Msg("Forced stop requested")
		c.setState(StateStopping)
		c.stopSamplerIfRunning()

		if err := c.target.Signal(syscall.SIGTERM); err != nil {
			c.logger.Debug().Err(err).Msg("Target already exiting")
		}
		_ = c.target.Wait()
		return true, nil
	}
}

// checkTargetAlive verifies the attach target exists before any
// sampler spawn. Attach targets are not owned: the controller never
// terminates them.
func (c *Controller) checkTargetAlive() error {
	proc, err := process.NewProcess(c.sess.TargetPID)
	if err != nil {
		return errdefs.Spawnf("target pid %d not found: %v", c.sess.TargetPID, err)
	}

	if name, err := proc.Name(); err == nil {
		c.logger.Info().Int32("pid", c.sess.TargetPID).Str("name", name).Msg("Attaching to target")
	}
	return nil
}

// recordArgs builds the common stack-sampling argument prefix.
func (c *Controller) recordArgs() []string {
	return []string{
		"record",
		"-F", strconv.Itoa(c.cfg.CaptureFrequency),
		"-g",
		"-o", c.rawPath(),
	}
}

func (c *Controller) rawPath() string {
	return filepath.Join(c.cfg.OutputDir, rawFileName)
}

// startSampler spawns the sampler with inherited stdio so live
// progress and counter statistics reach the operator.
func (c *Controller) startSampler(args []string) error {
	//nolint:gosec // G204: Sampler path comes from the injected config.
	cmd := exec.Command(c.cfg.SamplerPath, args...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr

	c.sampler = newHandle("sampler", cmd, c.logger)
	if err := c.sampler.Start(); err != nil {
		return errdefs.Spawnf("sampler failed to start: %v", err)
	}
	return nil
}

// stopSamplerIfRunning interrupts and reaps the sampler. Always
// called before any target teardown so buffered samples are flushed.
func (c *Controller) stopSamplerIfRunning() {
	if c.sampler == nil || c.sampler.State() == HandleExited {
		return
	}
	if err := c.sampler.Interrupt(); err != nil {
		c.logger.Debug().Err(err).Msg("Sampler already exiting")
	}
	if err := c.sampler.Wait(); err != nil {
		c.logger.Warn().Err(err).Msg("Sampler exited with error after stop request")
	}
}

// generateArtifacts runs the pipeline on the recorded raw samples and
// finishes the session.
func (c *Controller) generateArtifacts() (string, error) {
	set, err := c.runner.Run(c.rawPath(), c.sess.Mode.Tag())
	if err != nil {
		return "", err
	}
	c.setState(StateDone)
	return set.Image, nil
}

func (c *Controller) setState(s State) {
	c.logger.Debug().Str("from", c.state.String()).Str("to", s.String()).Msg("State transition")
	c.state = s
}
