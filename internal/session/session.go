// Package session defines the operating modes and resolves CLI flags
// into a validated Session.
package session

import (
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/flamerun/flamerun/internal/errdefs"
)

// Mode is one of the four mutually exclusive operating modes.
type Mode int

const (
	// ModePidTimed attaches to an existing process and samples for a
	// fixed duration.
	ModePidTimed Mode = iota

	// ModePidUntilInterrupt attaches to an existing process and
	// samples until the operator interrupts.
	ModePidUntilInterrupt

	// ModeExecRecord launches an executable under the sampler and
	// records it for its whole lifetime.
	ModeExecRecord

	// ModeExecInteractive launches an executable and collects
	// hardware counters between the target's begin/end handshake
	// signals. No flamegraph is produced.
	ModeExecInteractive
)

// String returns the mode name for logs.
func (m Mode) String() string {
	switch m {
	case ModePidTimed:
		return "pid-timed"
	case ModePidUntilInterrupt:
		return "pid-until-interrupt"
	case ModeExecRecord:
		return "exec-record"
	case ModeExecInteractive:
		return "exec-interactive"
	default:
		return "unknown"
	}
}

// Tag returns the artifact filename token for the mode.
func (m Mode) Tag() string {
	switch m {
	case ModeExecRecord, ModeExecInteractive:
		return "exec"
	default:
		return "pid"
	}
}

// ProducesArtifacts reports whether the mode runs the artifact
// pipeline after sampling. Counter collection reports live statistics
// instead of producing a flamegraph.
func (m Mode) ProducesArtifacts() bool {
	return m != ModeExecInteractive
}

// Session is the logical run of the controller: one target, one mode,
// never reused.
type Session struct {
	ID        uuid.UUID
	Mode      Mode
	TargetPID int32
	Duration  time.Duration
	ExecPath  string
	ExecArgs  []string
}

// Options is the raw flag set consumed by Resolve.
type Options struct {
	PID         int32
	Duration    int // seconds, 0 means unset
	ExecPath    string
	ExecArgs    []string
	Interactive bool
}

// Resolve validates the flag set and maps it to exactly one mode.
// Contradictory combinations fail with errdefs.ErrArgument before any
// subprocess is started. Duration with an executable target and the
// interactive flag with a PID target are accepted with a warning and
// have no effect.
func Resolve(opts Options, logger zerolog.Logger) (*Session, error) {
	hasPID := opts.PID != 0
	hasExec := opts.ExecPath != ""

	if hasPID && hasExec {
		return nil, errdefs.Argumentf("mutually exclusive targets: use either --pid or --exec, not both")
	}
	if !hasPID && !hasExec {
		return nil, errdefs.Argumentf("no target specified: use --pid or --exec")
	}
	if hasPID && opts.PID < 0 {
		return nil, errdefs.Argumentf("invalid pid %d", opts.PID)
	}
	if opts.Duration < 0 {
		return nil, errdefs.Argumentf("invalid duration %d", opts.Duration)
	}

	if hasExec && opts.Duration > 0 {
		logger.Warn().Int("duration_secs", opts.Duration).
			Msg("--duration has no effect with --exec; recording lasts for the executable's lifetime")
	}
	if hasPID && opts.Interactive {
		logger.Warn().Msg("--interactive has no effect with --pid; flag ignored")
	}

	sess := &Session{
		ID:       uuid.New(),
		ExecArgs: opts.ExecArgs,
	}

	switch {
	case hasPID && opts.Duration > 0:
		sess.Mode = ModePidTimed
		sess.TargetPID = opts.PID
		sess.Duration = time.Duration(opts.Duration) * time.Second
	case hasPID:
		sess.Mode = ModePidUntilInterrupt
		sess.TargetPID = opts.PID
	case opts.Interactive:
		sess.Mode = ModeExecInteractive
		sess.ExecPath = opts.ExecPath
	default:
		sess.Mode = ModeExecRecord
		sess.ExecPath = opts.ExecPath
	}

	return sess, nil
}
