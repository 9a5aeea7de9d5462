package agent

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func shRunner(script string, timeout time.Duration) *Runner {
	return NewRunner(RunnerOptions{
		Command: "/bin/sh",
		Args:    []string{"-c", script},
		Timeout: timeout,
	})
}

func TestRunOK(t *testing.T) {
	r := shRunner(`cat >/dev/null; echo progress; echo '{"ok":true,"reply":"hi"}'`, 5*time.Second)

	resp, err := r.Run(context.Background(), []byte(`{"content":"x"}`))
	require.NoError(t, err)
	assert.True(t, resp.OK)
	assert.Equal(t, "hi", resp.Reply)
}

func TestRunStructuredRejectionOnNonZeroExit(t *testing.T) {
	r := shRunner(`cat >/dev/null; echo '{"ok":false,"error":{"code":"busy","message":"try later"}}'; exit 3`, 5*time.Second)

	resp, err := r.Run(context.Background(), nil)
	require.NoError(t, err)
	assert.False(t, resp.OK)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "busy", resp.Error.Code)
}

func TestRunUnstructuredFailure(t *testing.T) {
	r := shRunner(`echo boom >&2; exit 2`, 5*time.Second)

	_, err := r.Run(context.Background(), nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "code 2")
}

func TestRunZeroExitWithoutResponse(t *testing.T) {
	r := shRunner(`cat >/dev/null; echo done`, 5*time.Second)

	resp, err := r.Run(context.Background(), nil)
	require.NoError(t, err)
	assert.True(t, resp.OK)
}

func TestRunLaunchError(t *testing.T) {
	r := NewRunner(RunnerOptions{Command: "/nonexistent/agent-binary"})

	_, err := r.Run(context.Background(), nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "start agent")
}

func TestRunTimeout(t *testing.T) {
	r := shRunner(`exec sleep 5`, 100*time.Millisecond)

	_, err := r.Run(context.Background(), nil)
	assert.True(t, errors.Is(err, ErrTimeout))
}

func TestParseResponseIgnoresNoise(t *testing.T) {
	_, ok := parseResponse([]byte("{\"progress\":1}\nnot json\n"))
	assert.False(t, ok)

	resp, ok := parseResponse([]byte("{\"ok\":false}\n{\"progress\":2}\n"))
	assert.True(t, ok)
	assert.False(t, resp.OK)
}
