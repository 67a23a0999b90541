// Package pool provides a named-task worker pool with lifecycle tracking,
// capacity enforcement, and aggregated result reporting. Each task runs in
// its own goroutine; the pool records its status, captured result, and
// captured error in a mutex-guarded registry.
package pool

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Sentinel errors returned by Start.
var (
	// ErrAlreadyRunning is returned when a task with the same name is
	// currently active.
	ErrAlreadyRunning = errors.New("task already running")

	// ErrCapacityExceeded is returned when the pool is at its configured
	// maximum of active tasks.
	ErrCapacityExceeded = errors.New("pool capacity exceeded")
)

// Status is the lifecycle state of a managed task.
type Status string

const (
	StatusRunning  Status = "running"
	StatusStopping Status = "stopping"
	StatusStopped  Status = "stopped"
	StatusError    Status = "error"
)

// terminal reports whether the status is a final state.
func (s Status) terminal() bool { return s == StatusStopped || s == StatusError }

// Task is the unit of work the pool executes. The returned value is
// captured on the task record; a non-nil error (or a panic) moves the task
// to the error state. The pool itself never fails because a task did.
type Task func() (any, error)

// Outcome is implemented by structured task results that carry their own
// success flag. A completed task whose result implements Outcome and
// reports false is counted as failed in ResultsSummary; any other completed
// task counts as successful. This counting rule is load-bearing for batch
// reporting — keep it as is.
type Outcome interface {
	Succeeded() bool
}

// TaskStatus is a point-in-time snapshot of one managed task.
type TaskStatus struct {
	Name      string
	Alive     bool
	StartedAt time.Time
	Status    Status
	Error     string
	Result    any
}

// Summary aggregates the pool's task results.
type Summary struct {
	Successful int
	Failed     int
	Running    int
	Total      int
}

// Config holds pool limits.
type Config struct {
	// MaxTasks is the maximum number of simultaneously active tasks.
	MaxTasks int
	// Timeout is the default wait timeout used when Wait/WaitAll are
	// called with a non-positive duration.
	Timeout time.Duration
}

type taskRecord struct {
	name      string
	startedAt time.Time
	status    Status
	err       error
	result    any
	done      chan struct{} // closed when the goroutine exits
}

// alive reports whether the task's goroutine is still executing.
func (r *taskRecord) alive() bool {
	select {
	case <-r.done:
		return false
	default:
		return true
	}
}

// Pool manages named task lifecycles under a capacity limit. All registry
// access is guarded by a single mutex; task bodies run outside the lock.
type Pool struct {
	mu      sync.Mutex
	tasks   map[string]*taskRecord
	counter int
	cfg     Config
	log     *slog.Logger
}

// New creates a Pool with the given limits. A MaxTasks of zero or less is
// treated as 1.
func New(cfg Config, log *slog.Logger) *Pool {
	if cfg.MaxTasks <= 0 {
		cfg.MaxTasks = 1
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Minute
	}
	if log == nil {
		log = slog.Default()
	}
	p := &Pool{
		tasks: make(map[string]*taskRecord),
		cfg:   cfg,
		log:   log.With("component", "pool"),
	}
	p.log.Info("pool initialized", "maxTasks", cfg.MaxTasks)
	return p
}

// Start registers and launches a named task. An empty name gets a generated
// "task-N" name. It returns ErrAlreadyRunning if a task with the same name
// is currently active, and ErrCapacityExceeded if the pool is full. A
// record left behind by a previously completed task of the same name is
// replaced.
func (p *Pool) Start(name string, task Task) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if name == "" {
		p.counter++
		name = fmt.Sprintf("task-%d", p.counter)
	}

	if existing, ok := p.tasks[name]; ok {
		if existing.status == StatusRunning && existing.alive() {
			return fmt.Errorf("%w: %q", ErrAlreadyRunning, name)
		}
	}

	active := 0
	for _, rec := range p.tasks {
		if rec.status == StatusRunning && rec.alive() {
			active++
		}
	}
	if active >= p.cfg.MaxTasks {
		return fmt.Errorf("%w: %d active", ErrCapacityExceeded, active)
	}

	rec := &taskRecord{
		name:      name,
		startedAt: time.Now().UTC(),
		status:    StatusRunning,
		done:      make(chan struct{}),
	}
	p.tasks[name] = rec

	go p.run(rec, task)
	p.log.Debug("task started", "task", name)
	return nil
}

// run executes the task body, capturing its result, error, or panic on the
// record. The done channel closes only after the terminal status is set.
func (p *Pool) run(rec *taskRecord, task Task) {
	defer close(rec.done)
	defer func() {
		if r := recover(); r != nil {
			p.log.Error("task panicked", "task", rec.name, "panic", r)
			p.mu.Lock()
			rec.status = StatusError
			rec.err = fmt.Errorf("task panicked: %v", r)
			p.mu.Unlock()
		}
	}()

	result, err := task()

	p.mu.Lock()
	defer p.mu.Unlock()
	if err != nil {
		p.log.Error("task failed", "task", rec.name, "err", err)
		rec.status = StatusError
		rec.err = err
		return
	}
	p.log.Debug("task completed", "task", rec.name)
	rec.status = StatusStopped
	rec.result = result
}

// Status returns a snapshot of the named task, and whether it was found.
func (p *Pool) Status(name string) (TaskStatus, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	rec, ok := p.tasks[name]
	if !ok {
		return TaskStatus{}, false
	}
	return snapshot(rec), true
}

// AllStatuses returns snapshots for every managed task, keyed by name.
func (p *Pool) AllStatuses() map[string]TaskStatus {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make(map[string]TaskStatus, len(p.tasks))
	for name, rec := range p.tasks {
		out[name] = snapshot(rec)
	}
	return out
}

func snapshot(rec *taskRecord) TaskStatus {
	st := TaskStatus{
		Name:      rec.name,
		Alive:     rec.alive(),
		StartedAt: rec.startedAt,
		Status:    rec.status,
		Result:    rec.result,
	}
	if rec.err != nil {
		st.Error = rec.err.Error()
	}
	return st
}

// Wait blocks until the named task reaches a terminal state or the timeout
// elapses. A non-positive timeout uses the configured default. It returns
// true if the task completed, false on timeout or unknown name.
func (p *Pool) Wait(name string, timeout time.Duration) bool {
	if timeout <= 0 {
		timeout = p.cfg.Timeout
	}

	p.mu.Lock()
	rec, ok := p.tasks[name]
	p.mu.Unlock()
	if !ok {
		p.log.Warn("wait for unknown task", "task", name)
		return false
	}

	select {
	case <-rec.done:
		return true
	case <-time.After(timeout):
		p.log.Warn("task did not complete within timeout", "task", name, "timeout", timeout)
		return false
	}
}

// WaitAll waits for every currently running task, applying the timeout per
// task. It returns true only if all of them completed.
func (p *Pool) WaitAll(timeout time.Duration) bool {
	p.mu.Lock()
	var names []string
	for name, rec := range p.tasks {
		if rec.status == StatusRunning {
			names = append(names, name)
		}
	}
	p.mu.Unlock()

	if len(names) == 0 {
		return true
	}
	p.log.Info("waiting for tasks", "count", len(names))

	all := true
	for _, name := range names {
		if !p.Wait(name, timeout) {
			all = false
		}
	}
	return all
}

// ActiveCount returns the number of tasks whose goroutine is still
// executing.
func (p *Pool) ActiveCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, rec := range p.tasks {
		if rec.alive() {
			n++
		}
	}
	return n
}

// Stop flags the named task as stopping. Cancellation is advisory only: a
// running goroutine cannot be interrupted, and its own completion will
// overwrite the status with the real terminal state. Returns false if the
// task is unknown.
func (p *Pool) Stop(name string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	rec, ok := p.tasks[name]
	if !ok {
		p.log.Warn("stop for unknown task", "task", name)
		return false
	}
	if rec.status.terminal() || !rec.alive() {
		rec.status = StatusStopped
		return true
	}
	rec.status = StatusStopping
	p.log.Warn("task flagged stopping; no preemption available", "task", name)
	return true
}

// Cleanup removes every task that is both no longer alive and in a
// terminal status. It returns the number of records removed. Read any
// summary or results you need before calling this.
func (p *Pool) Cleanup() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	var dead []string
	for name, rec := range p.tasks {
		if !rec.alive() && rec.status.terminal() {
			dead = append(dead, name)
		}
	}
	for _, name := range dead {
		delete(p.tasks, name)
	}
	if len(dead) > 0 {
		p.log.Info("cleaned up tasks", "count", len(dead))
	}
	return len(dead)
}

// Result returns the captured result of the named task, and whether the
// task exists.
func (p *Pool) Result(name string) (any, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	rec, ok := p.tasks[name]
	if !ok {
		return nil, false
	}
	return rec.result, true
}

// Results returns the captured results of every task that has reached a
// terminal status, keyed by task name.
func (p *Pool) Results() map[string]any {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make(map[string]any)
	for name, rec := range p.tasks {
		if rec.status.terminal() {
			out[name] = rec.result
		}
	}
	return out
}

// ResultsSummary counts task outcomes. A task is failed if it errored, or
// if its captured result is an Outcome reporting false; a completed task
// with no Outcome result counts as successful.
func (p *Pool) ResultsSummary() Summary {
	p.mu.Lock()
	defer p.mu.Unlock()

	var s Summary
	s.Total = len(p.tasks)
	for _, rec := range p.tasks {
		switch {
		case rec.status == StatusError:
			s.Failed++
		case rec.status.terminal():
			if o, ok := rec.result.(Outcome); ok && !o.Succeeded() {
				s.Failed++
			} else {
				s.Successful++
			}
		default:
			s.Running++
		}
	}
	return s
}
