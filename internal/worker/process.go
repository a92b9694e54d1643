// Package worker owns the lifetime of worker child processes: the
// pool that indexes them by queue, and the spawner/terminator that
// start and stop them (spec.md §3, §4.8, §4.9).
package worker

import (
	"os"
	"os/exec"
	"sync/atomic"
	"time"

	"github.com/DimaJoyti/queue-autoscaler/internal/queue"
)

// Process is one live worker child process.
type Process struct {
	cmd       *exec.Cmd
	key       queue.Key
	spawnedAt time.Time
	exited    int32 // atomic bool, flipped by the Wait goroutine in Spawner
}

// newProcess wraps a started *exec.Cmd.
func newProcess(cmd *exec.Cmd, key queue.Key, spawnedAt time.Time) *Process {
	return &Process{cmd: cmd, key: key, spawnedAt: spawnedAt}
}

// markExited is called once by the goroutine that reaps this
// process's exit status.
func (p *Process) markExited() {
	atomic.StoreInt32(&p.exited, 1)
}

// PID returns the OS process ID.
func (p *Process) PID() int {
	if p.cmd.Process == nil {
		return 0
	}
	return p.cmd.Process.Pid
}

// Key returns the queue this worker serves.
func (p *Process) Key() queue.Key {
	return p.key
}

// SpawnedAt returns when the worker was started.
func (p *Process) SpawnedAt() time.Time {
	return p.spawnedAt
}

// IsRunning reports whether the process has not yet exited.
func (p *Process) IsRunning() bool {
	return atomic.LoadInt32(&p.exited) == 0
}

// UptimeSeconds returns how long the worker has been running.
func (p *Process) UptimeSeconds() float64 {
	return time.Since(p.spawnedAt).Seconds()
}

// Matches reports whether this worker serves the given connection and
// queue name.
func (p *Process) Matches(connection, queueName string) bool {
	return p.key.Connection == connection && p.key.Queue == queueName
}

// signal sends sig to the OS process. Exposed to the terminator only.
func (p *Process) signal(sig os.Signal) error {
	if p.cmd.Process == nil {
		return nil
	}
	return p.cmd.Process.Signal(sig)
}
