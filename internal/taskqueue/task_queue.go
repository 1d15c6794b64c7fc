package taskqueue

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"
)

// Task is a named unit of work. attemptCount is mutated only by the
// processing loop.
type Task struct {
	ID           string
	Operation    func(ctx context.Context) error
	attemptCount int
}

// TaskQueue executes tasks strictly in FIFO order, one at a time. A failed
// head task is retried in place with a fixed delay until the attempt budget
// is spent, then dropped; later tasks never overtake it.
type TaskQueue struct {
	mu         sync.Mutex
	tasks      []*Task
	processing bool
	maxRetries int
	retryDelay time.Duration
	logger     *log.Logger

	sleep func(time.Duration)
}

func NewTaskQueue(maxRetries int, retryDelay time.Duration, logger *log.Logger) *TaskQueue {
	return &TaskQueue{
		maxRetries: maxRetries,
		retryDelay: retryDelay,
		logger:     logger,
		sleep:      time.Sleep,
	}
}

// Add appends a task and starts the processing loop if it is idle. The
// caller is never blocked on the task itself.
func (q *TaskQueue) Add(id string, op func(ctx context.Context) error) {
	q.mu.Lock()
	q.tasks = append(q.tasks, &Task{ID: id, Operation: op})
	start := !q.processing
	if start {
		q.processing = true
	}
	q.mu.Unlock()

	if start {
		go q.process()
	}
}

// Len reports the number of queued tasks, including the one in flight.
func (q *TaskQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.tasks)
}

func (q *TaskQueue) process() {
	for {
		q.mu.Lock()
		if len(q.tasks) == 0 {
			q.processing = false
			q.mu.Unlock()
			return
		}
		task := q.tasks[0]
		q.mu.Unlock()

		err := q.run(task)
		if err == nil {
			q.dequeue()
			continue
		}

		task.attemptCount++
		if task.attemptCount < q.maxRetries {
			q.logger.Printf("task %s failed (attempt %d/%d), retrying in %s: %v",
				task.ID, task.attemptCount, q.maxRetries, q.retryDelay, err)
			q.sleep(q.retryDelay)
			continue
		}

		q.logger.Printf("task %s dropped after %d attempts: %v", task.ID, task.attemptCount, err)
		q.dequeue()
	}
}

func (q *TaskQueue) run(task *Task) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic in task %s: %v", task.ID, r)
		}
	}()
	return task.Operation(context.Background())
}

func (q *TaskQueue) dequeue() {
	q.mu.Lock()
	q.tasks = q.tasks[1:]
	q.mu.Unlock()
}
