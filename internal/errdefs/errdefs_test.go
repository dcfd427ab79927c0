package errdefs

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKinds_MatchWithErrorsIs(t *testing.T) {
	tests := []struct {
		name string
		err  error
		kind error
	}{
		{"argument", Argumentf("mutually exclusive targets"), ErrArgument},
		{"environment", Environmentf("sampler not installed"), ErrEnvironment},
		{"spawn", Spawnf("target pid %d not found", 999999), ErrSpawn},
		{"pipeline", Pipelinef("collapse failed"), ErrPipeline},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.True(t, errors.Is(tt.err, tt.kind))

			// A wrapped error must still match its kind.
			wrapped := fmt.Errorf("session aborted: %w", tt.err)
			assert.True(t, errors.Is(wrapped, tt.kind))
		})
	}
}

func TestKinds_MessagePrefix(t *testing.T) {
	err := Argumentf("no target specified")
	require.Error(t, err)
	assert.Equal(t, "argument error: no target specified", err.Error())

	err = Spawnf("sampler exited with status %d", 2)
	assert.Equal(t, "spawn error: sampler exited with status 2", err.Error())
}

func TestKinds_DoNotCrossMatch(t *testing.T) {
	err := Pipelinef("render failed")
	assert.False(t, errors.Is(err, ErrSpawn))
	assert.False(t, errors.Is(err, ErrArgument))
}
