// Package errdefs defines the error taxonomy shared across flamerun.
//
// Every failure in the controller belongs to exactly one kind, and every
// kind is terminal for the session: nothing is retried. Callers match
// kinds with errors.Is and report the wrapped message to the operator.
package errdefs

import (
	"errors"
	"fmt"
	"io"

	"github.com/rs/zerolog"
)

var (
	// ErrArgument marks invalid or contradictory CLI flags, detected
	// before any subprocess is started.
	ErrArgument = errors.New("argument error")

	// ErrEnvironment marks a missing external tool or directory,
	// checked once at startup.
	ErrEnvironment = errors.New("environment error")

	// ErrSpawn marks a subprocess that failed to start or attach.
	ErrSpawn = errors.New("spawn error")

	// ErrPipeline marks a failed artifact pipeline stage.
	ErrPipeline = errors.New("pipeline error")
)

// Argumentf wraps ErrArgument with a formatted message.
func Argumentf(format string, args ...any) error {
	return wrapf(ErrArgument, format, args...)
}

// Environmentf wraps ErrEnvironment with a formatted message.
func Environmentf(format string, args ...any) error {
	return wrapf(ErrEnvironment, format, args...)
}

// Spawnf wraps ErrSpawn with a formatted message.
func Spawnf(format string, args ...any) error {
	return wrapf(ErrSpawn, format, args...)
}

// Pipelinef wraps ErrPipeline with a formatted message.
func Pipelinef(format string, args ...any) error {
	return wrapf(ErrPipeline, format, args...)
}

func wrapf(kind error, format string, args ...any) error {
	return fmt.Errorf("%w: %s", kind, fmt.Sprintf(format, args...))
}

// DeferClose properly closes an io.Closer with logging.
// Use this in defer statements to avoid suppressing close errors.
func DeferClose(logger zerolog.Logger, closer io.Closer, msg string) {
	if closer == nil {
		return
	}
	if err := closer.Close(); err != nil {
		logger.Warn().Err(err).Msg(msg)
	}
}
