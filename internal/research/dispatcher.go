package research

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
)

// ErrDispatcherClosed is the error of a task dispatched after Shutdown began.
var ErrDispatcherClosed = errors.New("dispatcher is shut down")

// Task is the handle of one dispatched unit of work.
type Task struct {
	JobID string

	done   chan struct{}
	err    error
	cancel context.CancelFunc
}

// Done is closed once the unit of work has returned.
func (t *Task) Done() <-chan struct{} { return t.done }

// Err is the unit of work's result. Only meaningful after Done is closed.
func (t *Task) Err() error {
	select {
	case <-t.done:
		return t.err
	default:
		return nil
	}
}

// Wait blocks until the task finishes or ctx is done.
func (t *Task) Wait(ctx context.Context) error {
	select {
	case <-t.done:
		return t.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Cancel cancels the task's context. The unit of work still runs to a
// terminal state.
func (t *Task) Cancel() { t.cancel() }

// Dispatcher runs one goroutine per job, detached from the caller. When
// built with a positive limit, at most that many run at once.
type Dispatcher struct {
	ctx  context.Context
	stop context.CancelFunc
	sem  *semaphore.Weighted
	log  *zap.Logger

	wg     sync.WaitGroup
	mu     sync.Mutex
	closed bool
	tasks  map[string]*Task
}

// NewDispatcher returns a Dispatcher. maxConcurrent <= 0 means unbounded.
func NewDispatcher(maxConcurrent int64, log *zap.Logger) *Dispatcher {
	if log == nil {
		log = zap.NewNop()
	}
	ctx, stop := context.WithCancel(context.Background())
	d := &Dispatcher{ctx: ctx, stop: stop, log: log, tasks: make(map[string]*Task)}
	if maxConcurrent > 0 {
		d.sem = semaphore.NewWeighted(maxConcurrent)
	}
	return d
}

// Dispatch starts fn for jobID and returns immediately. A panic in fn is
// recovered and reported as the task's error. Once Shutdown has begun, fn is
// not run and the returned task has already finished with
// ErrDispatcherClosed.
func (d *Dispatcher) Dispatch(jobID string, fn func(ctx context.Context) error) *Task {
	ctx, cancel := context.WithCancel(d.ctx)
	t := &Task{JobID: jobID, done: make(chan struct{}), cancel: cancel}

	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		cancel()
		t.err = ErrDispatcherClosed
		close(t.done)
		return t
	}
	d.tasks[jobID] = t
	d.wg.Add(1)
	d.mu.Unlock()

	go func() {
		defer d.wg.Done()
		defer close(t.done)
		defer d.forget(jobID)
		defer cancel()
		defer func() {
			if r := recover(); r != nil {
				t.err = fmt.Errorf("panic: %v", r)
				d.log.Error("job panicked", zap.String("job_id", jobID), zap.Any("panic", r))
			}
		}()

		if d.sem != nil {
			// On failure ctx is already cancelled; fn still runs so the job
			// reaches a terminal state.
			if err := d.sem.Acquire(ctx, 1); err == nil {
				defer d.sem.Release(1)
			}
		}
		t.err = fn(ctx)
	}()
	return t
}

// Task returns the in-flight task for jobID.
func (d *Dispatcher) Task(jobID string) (*Task, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	t, ok := d.tasks[jobID]
	return t, ok
}

// InFlight reports how many tasks have not finished yet.
func (d *Dispatcher) InFlight() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.tasks)
}

// Wait blocks until every dispatched task has finished.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

// Closed reports whether Shutdown has begun.
func (d *Dispatcher) Closed() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.closed
}

// Shutdown refuses new work, cancels all in-flight tasks and waits for them,
// or for ctx.
func (d *Dispatcher) Shutdown(ctx context.Context) error {
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()
	d.stop()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("dispatcher shutdown: %w", ctx.Err())
	}
}

func (d *Dispatcher) forget(jobID string) {
	d.mu.Lock()
	delete(d.tasks, jobID)
	d.mu.Unlock()
}
