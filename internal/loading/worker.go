// Package loading runs long snapshot operations on a single background worker.
package loading

import (
	"context"
	"errors"
	"fmt"
	"io"
	"runtime/debug"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
)

var (
	ErrBusy   = errors.New("another operation is still running")
	ErrClosed = errors.New("worker is closed")
)

// Task is the body of an operation. It must return promptly once ctx is done.
type Task func(ctx context.Context) (any, error)

// PanicError is returned for a task that panicked
type PanicError struct {
	Value any
	Stack []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("operation panicked: %v", e.Value)
}

// Detail returns the full diagnostic text for err: the message, and for a panic
// the goroutine stack.
func Detail(err error) string {
	var p *PanicError
	if errors.As(err, &p) {
		return err.Error() + "\n\n" + string(p.Stack)
	}
	return err.Error()
}

// Operation is one submitted task
type Operation struct {
	ID      string
	Name    string
	Started time.Time

	ctx    context.Context
	cancel context.CancelFunc
	task   Task
	done   chan struct{}

	value   any
	err     error
	elapsed time.Duration
}

// Done is closed when the operation has finished, successfully or not
func (op *Operation) Done() <-chan struct{} {
	return op.done
}

// Cancel asks the task to stop. It is safe to call at any time.
func (op *Operation) Cancel() {
	op.cancel()
}

// Wait blocks until the operation finishes and returns its result
func (op *Operation) Wait() (any, error) {
	<-op.done
	return op.value, op.err
}

// Cancelled reports whether the operation finished because it was cancelled
func (op *Operation) Cancelled() bool {
	select {
	case <-op.done:
		return errors.Is(op.err, context.Canceled)
	default:
		return false
	}
}

func (op *Operation) Elapsed() time.Duration {
	select {
	case <-op.done:
		return op.elapsed
	default:
		return time.Since(op.Started)
	}
}

func (op *Operation) finished() bool {
	select {
	case <-op.done:
		return true
	default:
		return false
	}
}

type Option func(*Worker)

func WithLogger(l *log.Logger) Option {
	return func(w *Worker) {
		if l != nil {
			w.logger = l
		}
	}
}

// Worker executes at most one operation at a time on a dedicated goroutine
type Worker struct {
	logger *log.Logger
	jobs   chan *Operation
	quit   chan struct{}
	wg     sync.WaitGroup

	mu      sync.Mutex
	current *Operation
	closed  bool
}

func NewWorker(opts ...Option) *Worker {
	w := &Worker{
		logger: log.New(io.Discard),
		jobs:   make(chan *Operation, 1),
		quit:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}

	w.wg.Add(1)
	go w.run()
	return w
}

// Submit queues task for the worker. It fails with ErrBusy while a previous
// operation is outstanding.
func (w *Worker) Submit(ctx context.Context, name string, task Task) (*Operation, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return nil, ErrClosed
	}
	if w.current != nil && !w.current.finished() {
		return nil, ErrBusy
	}

	opCtx, cancel := context.WithCancel(ctx)
	op := &Operation{
		ID:      uuid.NewString()[:8],
		Name:    name,
		Started: time.Now(),
		ctx:     opCtx,
		cancel:  cancel,
		task:    task,
		done:    make(chan struct{}),
	}
	w.current = op
	w.jobs <- op
	return op, nil
}

// Current returns the last submitted operation, or nil
func (w *Worker) Current() *Operation {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.current
}

// Close cancels the running operation and stops the worker
func (w *Worker) Close() {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return
	}
	w.closed = true
	if w.current != nil {
		w.current.Cancel()
	}
	w.mu.Unlock()

	close(w.quit)
	w.wg.Wait()
}

func (w *Worker) run() {
	defer w.wg.Done()
	for {
		select {
		case op := <-w.jobs:
			w.execute(op)
		case <-w.quit:
			// an operation submitted just before Close never started
			select {
			case op := <-w.jobs:
				op.err = ErrClosed
				op.cancel()
				close(op.done)
			default:
			}
			return
		}
	}
}

func (w *Worker) execute(op *Operation) {
	logger := w.logger.With("op", op.ID, "name", op.Name)
	logger.Debug("operation started")

	value, err := w.call(op)
	if err == nil && op.ctx.Err() != nil {
		err = op.ctx.Err()
	}

	op.value, op.err = value, err
	op.elapsed = time.Since(op.Started)
	op.cancel()
	close(op.done)

	switch {
	case err == nil:
		logger.Info("operation finished", "elapsed", op.elapsed)
	case errors.Is(err, context.Canceled):
		logger.Info("operation cancelled", "elapsed", op.elapsed)
	default:
		logger.Error("operation failed", "err", err, "elapsed", op.elapsed)
	}
}

func (w *Worker) call(op *Operation) (value any, err error) {
	defer func() {
		if r := recover(); r != nil {
			value = nil
			err = &PanicError{Value: r, Stack: debug.Stack()}
		}
	}()
	return op.task(op.ctx)
}
