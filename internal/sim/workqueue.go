package sim

import (
	"log/slog"
	"sync"
)

// Action is a unit of work that must run in the simulation domain.
type Action func()

type queuedAction struct {
	owner string
	fn    Action
}

// WorkQueue carries actions from network goroutines to the simulation loop.
// Actions run in FIFO order, one at a time, on whichever goroutine calls Drain.
type WorkQueue struct {
	mu     sync.Mutex
	items  []queuedAction
	logger *slog.Logger
}

func NewWorkQueue(logger *slog.Logger) *WorkQueue {
	if logger == nil {
		logger = slog.Default()
	}
	return &WorkQueue{logger: logger}
}

// Enqueue appends fn. The owner tag lets Discard drop it if the owner is
// torn down before the next drain.
func (q *WorkQueue) Enqueue(owner string, fn Action) {
	if fn == nil {
		return
	}
	q.mu.Lock()
	q.items = append(q.items, queuedAction{owner: owner, fn: fn})
	q.mu.Unlock()
}

// Drain runs the actions that were queued when it was called. Actions
// enqueued while draining run on the next call. A panicking action is
// logged and skipped.
func (q *WorkQueue) Drain() int {
	q.mu.Lock()
	n := len(q.items)
	q.mu.Unlock()

	ran := 0
	for i := 0; i < n; i++ {
		q.mu.Lock()
		if len(q.items) == 0 {
			q.mu.Unlock()
			break
		}
		item := q.items[0]
		q.items[0] = queuedAction{}
		q.items = q.items[1:]
		q.mu.Unlock()

		q.run(item)
		ran++
	}
	return ran
}

func (q *WorkQueue) run(item queuedAction) {
	defer func() {
		if r := recover(); r != nil {
			q.logger.Error("queued_action_panic",
				"owner", item.owner,
				"panic", r,
			)
		}
	}()
	item.fn()
}

// Discard drops every pending action tagged with owner.
func (q *WorkQueue) Discard(owner string) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	kept := q.items[:0]
	dropped := 0
	for _, it := range q.items {
		if it.owner == owner {
			dropped++
			continue
		}
		kept = append(kept, it)
	}
	for i := len(kept); i < len(q.items); i++ {
		q.items[i] = queuedAction{}
	}
	q.items = kept
	return dropped
}

// Len returns the number of pending actions.
func (q *WorkQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}
