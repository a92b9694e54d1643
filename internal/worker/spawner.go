package worker

import (
	"fmt"
	"os/exec"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/DimaJoyti/queue-autoscaler/internal/queue"
)

// Options configures how a worker's argument vector is built
// (spec.md §6 workers.*).
type Options struct {
	// RuntimeBinary is the worker executable, e.g. the path to the
	// application binary that knows how to run a single queue worker.
	RuntimeBinary string
	// Subcommand is the worker-invoking subcommand, e.g. "queue:work".
	Subcommand string
	Tries      int
	MaxTime    int
	Sleep      int
}

// Spawner starts worker child processes.
type Spawner struct {
	opts   Options
	logger *zap.Logger
}

// NewSpawner builds a Spawner.
func NewSpawner(opts Options, logger *zap.Logger) *Spawner {
	return &Spawner{opts: opts, logger: logger}
}

// Spawn starts n worker processes for the given queue and returns the
// ones that started successfully. A spawn failure is logged and
// skipped rather than aborting the whole batch (spec.md §7).
func (s *Spawner) Spawn(key queue.Key, n int) []*Process {
	procs := make([]*Process, 0, n)
	for i := 0; i < n; i++ {
		proc, err := s.spawnOne(key)
		if err != nil {
			s.logger.Error("failed to spawn worker",
				zap.String("connection", key.Connection),
				zap.String("queue", key.Queue),
				zap.Error(err))
			continue
		}
		procs = append(procs, proc)
	}
	return procs
}

func (s *Spawner) spawnOne(key queue.Key) (*Process, error) {
	args := s.argv(key)

	// #nosec G204 -- argv is built from an explicit vector, never a
	// shell string, so there is no shell-interpolation risk here.
	cmd := exec.Command(s.opts.RuntimeBinary, args...)

	// Detach from the supervisor's controlling terminal (own process
	// group) so signals delivered to the foreground terminal don't
	// also reach the worker. The worker stays a child of the
	// supervisor, but no parent-death signal is set: if the
	// supervisor exits without draining the pool, the worker is not
	// signalled and keeps running as an orphan.
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	now := time.Now()
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start worker for %s: %w", key, err)
	}

	proc := newProcess(cmd, key, now)

	// Reap the child asynchronously once it exits so IsRunning stays
	// accurate without the pool needing its own wait loop.
	go func() {
		_ = cmd.Wait()
		proc.markExited()
	}()

	s.logger.Info("spawned worker",
		zap.String("connection", key.Connection),
		zap.String("queue", key.Queue),
		zap.Int("pid", cmd.Process.Pid))

	return proc, nil
}

func (s *Spawner) argv(key queue.Key) []string {
	return []string{
		s.opts.Subcommand,
		key.Connection,
		fmt.Sprintf("--queue=%s", key.Queue),
		fmt.Sprintf("--tries=%d", s.opts.Tries),
		fmt.Sprintf("--max-time=%d", s.opts.MaxTime),
		fmt.Sprintf("--sleep=%d", s.opts.Sleep),
	}
}
