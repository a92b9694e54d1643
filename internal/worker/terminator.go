package worker

import (
	"syscall"
	"time"

	"go.uber.org/zap"
)

// Terminator sends a graceful-then-forceful shutdown signal sequence
// to worker processes (spec.md §4.8).
type Terminator struct {
	shutdownTimeout time.Duration
	pollInterval    time.Duration
	logger          *zap.Logger
}

// NewTerminator builds a Terminator. The poll interval is fixed at
// 100ms (spec.md §4.8).
func NewTerminator(shutdownTimeout time.Duration, logger *zap.Logger) *Terminator {
	return &Terminator{
		shutdownTimeout: shutdownTimeout,
		pollInterval:    100 * time.Millisecond,
		logger:          logger,
	}
}

// Terminate sends SIGTERM, polls for exit, and escalates to SIGKILL
// if the worker hasn't exited within the shutdown timeout. It returns
// true if the worker exited gracefully (without needing SIGKILL).
func (t *Terminator) Terminate(proc *Process) bool {
	if err := proc.signal(syscall.SIGTERM); err != nil {
		t.logger.Warn("SIGTERM delivery failed, attempting SIGKILL",
			zap.Int("pid", proc.PID()), zap.Error(err))
		return t.forceKill(proc)
	}

	deadline := time.Now().Add(t.shutdownTimeout)
	for time.Now().Before(deadline) {
		if !proc.IsRunning() {
			return true
		}
		time.Sleep(t.pollInterval)
	}

	if !proc.IsRunning() {
		return true
	}

	t.logger.Warn("worker did not exit within shutdown timeout, sending SIGKILL",
		zap.Int("pid", proc.PID()), zap.Duration("timeout", t.shutdownTimeout))
	return t.forceKill(proc)
}

func (t *Terminator) forceKill(proc *Process) bool {
	if err := proc.signal(syscall.SIGKILL); err != nil {
		t.logger.Error("SIGKILL delivery failed, worker left in pool for next sweep",
			zap.Int("pid", proc.PID()), zap.Error(err))
	}
	return false
}
