package session

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flamerun/flamerun/internal/errdefs"
	"github.com/flamerun/flamerun/internal/testutil"
)

func TestResolve_ModeMapping(t *testing.T) {
	logger := testutil.NewTestLogger(t)

	tests := []struct {
		name string
		opts Options
		mode Mode
	}{
		{"pid with duration", Options{PID: 1234, Duration: 5}, ModePidTimed},
		{"pid without duration", Options{PID: 1234}, ModePidUntilInterrupt},
		{"exec alone", Options{ExecPath: "/bin/true"}, ModeExecRecord},
		{"exec interactive", Options{ExecPath: "/bin/true", Interactive: true}, ModeExecInteractive},
		{"duration ignored with exec", Options{ExecPath: "/bin/true", Duration: 5}, ModeExecRecord},
		{"interactive ignored with pid", Options{PID: 1234, Interactive: true}, ModePidUntilInterrupt},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sess, err := Resolve(tt.opts, logger)
			require.NoError(t, err)
			assert.Equal(t, tt.mode, sess.Mode)
			assert.NotEqual(t, "", sess.ID.String())
		})
	}
}

func TestResolve_InvalidCombinations(t *testing.T) {
	logger := testutil.NewTestLogger(t)

	tests := []struct {
		name string
		opts Options
		msg  string
	}{
		{"both targets", Options{PID: 1234, ExecPath: "/bin/true"}, "mutually exclusive targets"},
		{"no target", Options{}, "no target specified"},
		{"negative pid", Options{PID: -7}, "invalid pid"},
		{"negative duration", Options{PID: 1234, Duration: -1}, "invalid duration"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sess, err := Resolve(tt.opts, logger)
			require.Error(t, err)
			assert.Nil(t, sess)
			assert.True(t, errors.Is(err, errdefs.ErrArgument))
			assert.Contains(t, err.Error(), tt.msg)
		})
	}
}

func TestResolve_SessionFields(t *testing.T) {
	logger := testutil.NewTestLogger(t)

	sess, err := Resolve(Options{PID: 42, Duration: 30}, logger)
	require.NoError(t, err)
	assert.Equal(t, int32(42), sess.TargetPID)
	assert.Equal(t, 30*time.Second, sess.Duration)
	assert.Empty(t, sess.ExecPath)

	sess, err = Resolve(Options{ExecPath: "/usr/bin/work", ExecArgs: []string{"--fast"}}, logger)
	require.NoError(t, err)
	assert.Equal(t, "/usr/bin/work", sess.ExecPath)
	assert.Equal(t, []string{"--fast"}, sess.ExecArgs)
	assert.Zero(t, sess.TargetPID)
}

func TestMode_Tag(t *testing.T) {
	assert.Equal(t, "pid", ModePidTimed.Tag())
	assert.Equal(t, "pid", ModePidUntilInterrupt.Tag())
	assert.Equal(t, "exec", ModeExecRecord.Tag())
	assert.Equal(t, "exec", ModeExecInteractive.Tag())
}

func TestMode_ProducesArtifacts(t *testing.T) {
	assert.True(t, ModePidTimed.ProducesArtifacts())
	assert.True(t, ModePidUntilInterrupt.ProducesArtifacts())
	assert.True(t, ModeExecRecord.ProducesArtifacts())
	assert.False(t, ModeExecInteractive.ProducesArtifacts())
}
