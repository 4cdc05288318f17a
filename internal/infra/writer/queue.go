// Package writer runs fire-and-forget writes on a single goroutine so that
// writes to the same key land in the order they were issued.
package writer

import (
	"context"
	"fmt"
	"sync"
)

type job struct {
	op string
	fn func(ctx context.Context) error
}

// Queue is an unbounded FIFO of writes drained by at most one goroutine.
// Submit never blocks. The drain goroutine exits when the queue is empty and
// is restarted by the next Submit.
type Queue struct {
	mu      sync.Mutex
	jobs    []job
	running bool
	pending sync.WaitGroup

	onError func(op string, err error)
}

// New creates a Queue. onError is called from the drain goroutine for every
// failed write and may be nil.
func New(onError func(op string, err error)) *Queue {
	return &Queue{onError: onError}
}

// Submit appends a write. It runs after every write submitted before it.
func (q *Queue) Submit(op string, fn func(ctx context.Context) error) {
	q.pending.Add(1)

	q.mu.Lock()
	q.jobs = append(q.jobs, job{op: op, fn: fn})
	if !q.running {
		q.running = true
		go q.drain()
	}
	q.mu.Unlock()
}

// Wait blocks until every write submitted so far has finished.
func (q *Queue) Wait() {
	q.pending.Wait()
}

func (q *Queue) drain() {
	for {
		q.mu.Lock()
		if len(q.jobs) == 0 {
			q.running = false
			q.mu.Unlock()
			return
		}
		j := q.jobs[0]
		q.jobs[0] = job{}
		q.jobs = q.jobs[1:]
		q.mu.Unlock()

		q.run(j)
	}
}

func (q *Queue) run(j job) {
	defer q.pending.Done()
	defer func() {
		if r := recover(); r != nil {
			q.fail(j.op, fmt.Errorf("panic: %v", r))
		}
	}()
	if err := j.fn(context.Background()); err != nil {
		q.fail(j.op, err)
	}
}

func (q *Queue) fail(op string, err error) {
	if q.onError != nil {
		q.onError(op, err)
	}
}
