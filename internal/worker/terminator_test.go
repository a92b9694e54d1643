package worker

import (
	"os/exec"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/DimaJoyti/queue-autoscaler/internal/queue"
)

func TestTerminatorGracefulExit(t *testing.T) {
	key := queue.NewKey("redis", "emails")
	cmd := exec.Command("sleep", "5")
	require.NoError(t, cmd.Start())
	proc := newProcess(cmd, key, time.Now())
	go func() {
		_ = cmd.Wait()
		proc.markExited()
	}()
	t.Cleanup(func() { _ = cmd.Process.Kill() })

	term := NewTerminator(2*time.Second, zap.NewNop())
	graceful := term.Terminate(proc)

	assert.True(t, graceful)
	assert.False(t, proc.IsRunning())
}

func TestTerminatorEscalatesToSigkill(t *testing.T) {
	key := queue.NewKey("redis", "emails")
	// trap SIGTERM so the worker ignores it and forces the SIGKILL path
	cmd := exec.Command("sh", "-c", "trap '' TERM; sleep 5")
	require.NoError(t, cmd.Start())
	proc := newProcess(cmd, key, time.Now())
	go func() {
		_ = cmd.Wait()
		proc.markExited()
	}()
	t.Cleanup(func() { _ = cmd.Process.Kill() })

	term := NewTerminator(300*time.Millisecond, zap.NewNop())
	graceful := term.Terminate(proc)

	assert.False(t, graceful)
	require.Eventually(t, func() bool { return !proc.IsRunning() }, 2*time.Second, 10*time.Millisecond)
}
