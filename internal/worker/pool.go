package worker

import (
	"sync"

	"github.com/DimaJoyti/queue-autoscaler/internal/queue"
)

// Pool is the owning container of live worker processes, indexed by
// insertion order so removal can prefer the oldest worker for a key
// (spec.md §3, §4.9). All of the control loop's own calls happen on
// the single loop goroutine (spec.md §5); the mutex here only guards
// against a supervisor's signal handler or health-check HTTP server
// reading pool state concurrently, mirroring the defensive locking
// go-coffee's DynamicWorkerPool applies throughout.
type Pool struct {
	mu        sync.RWMutex
	processes []*Process
}

// NewPool creates an empty pool.
func NewPool() *Pool {
	return &Pool{}
}

// Add inserts a single worker.
func (p *Pool) Add(proc *Process) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.processes = append(p.processes, proc)
}

// AddMany inserts several workers in order.
func (p *Pool) AddMany(procs []*Process) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.processes = append(p.processes, procs...)
}

// CountRunningByKey returns how many live workers currently serve key.
func (p *Pool) CountRunningByKey(key queue.Key) int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	n := 0
	for _, proc := range p.processes {
		if proc.key == key && proc.IsRunning() {
			n++
		}
	}
	return n
}

// CountTotal returns the number of workers tracked, running or not.
func (p *Pool) CountTotal() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.processes)
}

// RemoveByKey removes up to n workers serving key, oldest first, and
// returns the removed processes so the caller can terminate them.
func (p *Pool) RemoveByKey(key queue.Key, n int) []*Process {
	p.mu.Lock()
	defer p.mu.Unlock()

	var removed []*Process
	var kept []*Process

	for _, proc := range p.processes {
		if len(removed) < n && proc.key == key {
			removed = append(removed, proc)
			continue
		}
		kept = append(kept, proc)
	}

	p.processes = kept
	return removed
}

// RemoveSpecific removes one known process from the pool, e.g. after
// the sweep or terminator confirms it is gone.
func (p *Pool) RemoveSpecific(target *Process) {
	p.mu.Lock()
	defer p.mu.Unlock()

	kept := p.processes[:0:0]
	for _, proc := range p.processes {
		if proc != target {
			kept = append(kept, proc)
		}
	}
	p.processes = kept
}

// CollectDead returns every tracked worker whose process has exited.
// Callers must remove them from the pool (spec.md §4.9).
func (p *Pool) CollectDead() []*Process {
	p.mu.RLock()
	defer p.mu.RUnlock()

	var dead []*Process
	for _, proc := range p.processes {
		if !proc.IsRunning() {
			dead = append(dead, proc)
		}
	}
	return dead
}

// FindByPID looks up a tracked worker by OS process ID.
func (p *Pool) FindByPID(pid int) (*Process, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	for _, proc := range p.processes {
		if proc.PID() == pid {
			return proc, true
		}
	}
	return nil, false
}

// Iterate calls fn for every tracked worker. fn must not call back
// into the pool.
func (p *Pool) Iterate(fn func(*Process)) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	for _, proc := range p.processes {
		fn(proc)
	}
}
