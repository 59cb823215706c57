// Copyright 2025 UMH Systems GmbH
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package taskqueue serializes asynchronous work for one identity.
//
// A Queue runs at most one task at a time, in strict enqueue order. A task
// starts only after every earlier task has settled, whatever its outcome, and
// a failing task rejects only its own Future.
//
// Each queue is driven by an explicit two-state machine:
//
//	idle --run--> running --drain--> idle
//
// "run" fires when a task is enqueued on an idle queue; the queue then stays
// running while tasks remain and fires "drain" when the last one settles.
// An idle queue holds no goroutine.
package taskqueue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/looplab/fsm"
	"go.uber.org/zap"

	"github.com/united-manufacturing-hub/entitystate/pkg/metrics"
)

const (
	StateIdle    = "idle"
	StateRunning = "running"

	EventRun   = "run"
	EventDrain = "drain"
)

// Task is one unit of asynchronous work. It receives the context passed to
// Enqueue.
type Task func(ctx context.Context) (any, error)

// TaskError is the rejection of a task's Future.
type TaskError struct {
	Err   error
	Panic any
}

func (e *TaskError) Error() string {
	if e.Panic != nil {
		return fmt.Sprintf("task panicked: %v", e.Panic)
	}

	return fmt.Sprintf("task failed: %v", e.Err)
}

func (e *TaskError) Unwrap() error { return e.Err }

// Future is the eventual outcome of an enqueued task.
type Future struct {
	done   chan struct{}
	result any
	err    error
}

func newFuture() *Future {
	return &Future{done: make(chan struct{})}
}

func (f *Future) settle(result any, err error) {
	f.result = result
	f.err = err
	close(f.done)
}

// Done is closed once the task has settled.
func (f *Future) Done() <-chan struct{} {
	return f.done
}

// Wait blocks until the task settles or ctx ends. Giving up on the wait does
// not cancel the task.
func (f *Future) Wait(ctx context.Context) (any, error) {
	select {
	case <-f.done:
		return f.result, f.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Settled reports whether the task has finished.
func (f *Future) Settled() bool {
	select {
	case <-f.done:
		return true
	default:
		return false
	}
}

type record struct {
	ctx        context.Context
	task       Task
	future     *Future
	enqueuedAt time.Time
}

// Queue is the FIFO serializer of one identity.
type Queue struct {
	mu      sync.Mutex
	machine *fsm.FSM
	pending []*record
	name    string
	logger  *zap.SugaredLogger
}

// New creates an idle queue. name only labels log lines.
func New(name string, logger *zap.SugaredLogger) *Queue {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}

	q := &Queue{
		name:   name,
		logger: logger,
	}

	q.machine = fsm.NewFSM(
		StateIdle,
		fsm.Events{
			{Name: EventRun, Src: []string{StateIdle}, Dst: StateRunning},
			{Name: EventDrain, Src: []string{StateRunning}, Dst: StateIdle},
		},
		fsm.Callbacks{
			"enter_state": func(_ context.Context, e *fsm.Event) {
				q.logger.Debugf("task queue %s: %s -> %s", q.name, e.Src, e.Dst)
			},
		},
	)

	return q
}

// Enqueue appends task and returns its Future. If the queue is idle the task
// starts immediately on a new goroutine.
func (q *Queue) Enqueue(ctx context.Context, task Task) *Future {
	if ctx == nil {
		ctx = context.Background()
	}

	f := newFuture()

	metrics.RecordTaskEnqueued()

	q.mu.Lock()
	q.pending = append(q.pending, &record{ctx: ctx, task: task, future: f, enqueuedAt: time.Now()})

	start := q.machine.Is(StateIdle)
	if start {
		q.transition(EventRun)
	}
	q.mu.Unlock()

	if start {
		metrics.QueueStarted()

		go q.run()
	}

	return f
}

// Name returns the label the queue was created with.
func (q *Queue) Name() string {
	return q.name
}

// State returns StateIdle or StateRunning.
func (q *Queue) State() string {
	q.mu.Lock()
	defer q.mu.Unlock()

	return q.machine.Current()
}

// Len returns the number of tasks waiting behind the running one.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()

	return len(q.pending)
}

// transition must be called with q.mu held.
func (q *Queue) transition(event string) {
	if err := q.machine.Event(context.Background(), event); err != nil {
		q.logger.Errorw("invalid task queue transition", "queue", q.name, "event", event, "error", err)
	}
}

func (q *Queue) run() {
	for {
		q.mu.Lock()
		if len(q.pending) == 0 {
			q.transition(EventDrain)
			q.mu.Unlock()
			metrics.QueueDrained()

			return
		}

		rec := q.pending[0]
		q.pending[0] = nil
		q.pending = q.pending[1:]
		q.mu.Unlock()

		q.execute(rec)
	}
}

func (q *Queue) execute(rec *record) {
	started := time.Now()
	metrics.RecordTaskStarted(started.Sub(rec.enqueuedAt))

	if err := rec.ctx.Err(); err != nil {
		taskErr := &TaskError{Err: err}
		metrics.RecordTaskSettled(taskErr, 0)
		rec.future.settle(nil, taskErr)

		return
	}

	result, err := invoke(rec)

	if err != nil {
		var taskErr *TaskError
		if !errors.As(err, &taskErr) {
			taskErr = &TaskError{Err: err}
		}

		q.logger.Debugw("task failed", "queue", q.name, "error", err)
		metrics.RecordTaskSettled(taskErr, time.Since(started))
		rec.future.settle(nil, taskErr)

		return
	}

	metrics.RecordTaskSettled(nil, time.Since(started))
	rec.future.settle(result, nil)
}

func invoke(rec *record) (result any, err error) {
	defer func() {
		if r := recover(); r != nil {
			result = nil
			err = &TaskError{Panic: r}
		}
	}()

	return rec.task(rec.ctx)
}
