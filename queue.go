package livecam

import (
	"context"
	"sync"
)

// Task is a unit of work run by a Queue. ctx is canceled once the queue is
// closed; tasks still in the backlog at that point run with the canceled
// context so they can report ErrManagerDeallocated instead of vanishing.
type Task func(ctx context.Context)

// Queue serializes tasks onto a single goroutine.
//
// Every task submitted to one Queue runs on the same goroutine, in
// submission order, one at a time. This is how the engine's single-thread
// affinity requirement is modeled.
type Queue struct {
	name string

	mu     sync.Mutex
	tasks  []Task
	closed bool

	wake   chan struct{}
	done   chan struct{}
	ctx    context.Context
	cancel context.CancelFunc
}

// NewQueue creates a queue and starts its worker goroutine.
func NewQueue(name string) *Queue {
	ctx, cancel := context.WithCancel(context.Background())
	q := &Queue{
		name:   name,
		wake:   make(chan struct{}, 1),
		done:   make(chan struct{}),
		ctx:    ctx,
		cancel: cancel,
	}
	go q.loop()
	return q
}

// Name returns the queue name.
func (q *Queue) Name() string { return q.name }

// Async appends task to the queue and returns without waiting.
func (q *Queue) Async(task Task) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return ErrQueueClosed
	}
	q.tasks = append(q.tasks, task)
	q.mu.Unlock()

	select {
	case q.wake <- struct{}{}:
	default:
	}
	return nil
}

// Sync appends task and blocks until it has run or ctx is done. If ctx ends
// first the task still runs later; only the wait is abandoned.
//
// Sync must not be called from a task running on the same queue.
func (q *Queue) Sync(ctx context.Context, task Task) error {
	finished := make(chan struct{})
	err := q.Async(func(qctx context.Context) {
		defer close(finished)
		task(qctx)
	})
	if err != nil {
		return err
	}
	select {
	case <-finished:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops accepting tasks, runs the backlog with a canceled context and
// waits for the worker to exit. Close is idempotent.
func (q *Queue) Close() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()

	q.cancel()
	select {
	case q.wake <- struct{}{}:
	default:
	}
	<-q.done
}

func (q *Queue) loop() {
	defer close(q.done)
	for {
		q.mu.Lock()
		if len(q.tasks) == 0 {
			closed := q.closed
			q.mu.Unlock()
			if closed {
				return
			}
			<-q.wake
			continue
		}
		task := q.tasks[0]
		q.tasks[0] = nil
		q.tasks = q.tasks[1:]
		q.mu.Unlock()

		task(q.ctx)
	}
}

// Coordinator routes work across the three logical queues a Manager uses.
type Coordinator struct {
	// Prepare runs setup work that does not touch the engine.
	Prepare *Queue
	// Engine is the only queue allowed to call into the Engine.
	Engine *Queue
	// Discovery runs device enumeration.
	Discovery *Queue
}

// NewCoordinator starts the three queues.
func NewCoordinator() *Coordinator {
	return &Coordinator{
		Prepare:   NewQueue("prepare"),
		Engine:    NewQueue("engine"),
		Discovery: NewQueue("discovery"),
	}
}

// Close closes the queues, preparation first so that nothing new reaches
// the engine queue while it drains.
func (c *Coordinator) Close() {
	c.Prepare.Close()
	c.Engine.Close()
	c.Discovery.Close()
}
