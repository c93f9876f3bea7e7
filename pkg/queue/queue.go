package queue

import (
	"math"
	"sync"
	"sync/atomic"

	"github.com/rotisserie/eris"
)

// Unlimited disables the concurrency limit
const Unlimited = math.MaxInt

// Callback receives the result of a task or a whole batch
type Callback func(err error)

// Task is a unit of work. It has to call done exactly once.
type Task func(done Callback)

// Queue runs deferred tasks with at most limit tasks in flight.
// A Queue is meant for a single batch; create a new one for each batch.
type Queue struct {
	lock     sync.Mutex
	limit    int
	waiting  []Task
	running  int
	firstErr error
	awaited  Callback
	fired    bool
}

// New creates a queue. A limit below 1 selects the default of 1 (serial execution).
func New(limit int) *Queue {
	if limit < 1 {
		limit = 1
	}

	return &Queue{limit: limit}
}

// Func adapts a blocking function to a Task
func Func(fn func() error) Task {
	return func(done Callback) {
		done(fn())
	}
}

// Defer adds a task to the queue. It's started right away if the limit allows it.
func (q *Queue) Defer(task Task) {
	if task == nil {
		panic(eris.New("queue: nil task"))
	}

	q.lock.Lock()
	if q.fired {
		q.lock.Unlock()
		panic(eris.New("queue: Defer called after the queue completed"))
	}

	if q.running < q.limit {
		q.running++
		q.lock.Unlock()
		q.start(task)
		return
	}

	q.waiting = append(q.waiting, task)
	q.lock.Unlock()
}

// Await registers the terminal callback. It's called once every deferred task finished,
// with the first error any task reported. The callback is never called from within Await.
func (q *Queue) Await(cb Callback) {
	if cb == nil {
		panic(eris.New("queue: nil callback"))
	}

	q.lock.Lock()
	if q.awaited != nil {
		q.lock.Unlock()
		panic(eris.New("queue: Await called twice"))
	}

	q.awaited = cb
	if q.running > 0 || len(q.waiting) > 0 {
		q.lock.Unlock()
		return
	}

	q.fired = true
	err := q.firstErr
	q.lock.Unlock()

	go cb(err)
}

// Wait awaits the queue and blocks until all tasks finished
func (q *Queue) Wait() error {
	result := make(chan error, 1)
	q.Await(func(err error) {
		result <- err
	})

	return <-result
}

func (q *Queue) start(task Task) {
	var called int32
	go task(func(err error) {
		if !atomic.CompareAndSwapInt32(&called, 0, 1) {
			panic(eris.New("queue: task callback invoked more than once"))
		}

		q.finish(err)
	})
}

func (q *Queue) finish(err error) {
	q.lock.Lock()
	q.running--
	if err != nil && q.firstErr == nil {
		q.firstErr = err
	}

	var next Task
	if len(q.waiting) > 0 {
		next = q.waiting[0]
		q.waiting[0] = nil
		q.waiting = q.waiting[1:]
		q.running++
	}

	var cb Callback
	if q.running == 0 && q.awaited != nil && !q.fired {
		q.fired = true
		cb = q.awaited
	}
	firstErr := q.firstErr
	q.lock.Unlock()

	if next != nil {
		q.start(next)
	}

	if cb != nil {
		cb(firstErr)
	}
}
