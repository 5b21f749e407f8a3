package orchestration

import (
	"container/heap"
	"context"
	"sync"
	"time"

	"github.com/itsneelabh/gomind-learning/core"
)

// priorityQueue is a bounded max-priority queue. Tasks of equal priority
// come out in insertion order.
//
// ready holds one token per queued task, so waiting workers block on a
// channel receive (with timeout) instead of polling the heap.
type priorityQueue struct {
	mu       sync.Mutex
	items    taskHeap
	seq      uint64
	capacity int
	ready    chan struct{}
}

func newPriorityQueue(capacity int) *priorityQueue {
	if capacity <= 0 {
		capacity = 1000
	}
	return &priorityQueue{
		capacity: capacity,
		ready:    make(chan struct{}, capacity),
	}
}

// Push adds task without blocking. It returns false when the queue is full.
func (q *priorityQueue) Push(task *core.ProcessingTask) bool {
	q.mu.Lock()
	if len(q.items) >= q.capacity {
		q.mu.Unlock()
		return false
	}
	q.seq++
	heap.Push(&q.items, &queueItem{task: task, priority: task.Priority, seq: q.seq})
	q.mu.Unlock()

	// Never blocks: tokens never exceed queued items, which never exceed capacity.
	q.ready <- struct{}{}
	return true
}

// Pop waits up to timeout for the highest-priority task. It returns early
// with ok=false when ctx is done or stop is closed.
func (q *priorityQueue) Pop(ctx context.Context, stop <-chan struct{}, timeout time.Duration) (*core.ProcessingTask, bool) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-q.ready:
	case <-timer.C:
		return nil, false
	case <-stop:
		return nil, false
	case <-ctx.Done():
		return nil, false
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return nil, false
	}
	item := heap.Pop(&q.items).(*queueItem)
	return item.task, true
}

// Len returns the number of queued tasks.
func (q *priorityQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

type queueItem struct {
	task     *core.ProcessingTask
	priority core.TaskPriority
	seq      uint64
}

// taskHeap implements heap.Interface ordered by priority desc, then seq asc.
type taskHeap []*queueItem

func (h taskHeap) Len() int { return len(h) }

func (h taskHeap) Less(i, j int) bool {
	if h[i].priority != h[j].priority {
		return h[i].priority > h[j].priority
	}
	return h[i].seq < h[j].seq
}

func (h taskHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *taskHeap) Push(x interface{}) {
	*h = append(*h, x.(*queueItem))
}

func (h *taskHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return item
}
