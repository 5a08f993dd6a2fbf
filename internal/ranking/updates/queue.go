package updates

import (
	"sort"
	"sync"

	"github.com/strengthstats/rankengine/internal/ranking"
)

// Queue is the bounded, priority-ordered queue of pending update items.
// Items are drained by priority (critical first) and, within equal priority,
// oldest first. When full, the oldest item of the lowest priority present is
// evicted to make room.
//
// All mutations happen under the mutex: enqueue producers and the batch
// processor run on separate goroutines.
type Queue struct {
	mu      sync.Mutex
	items   []Item
	maxSize int
	evicted int64
}

func NewQueue(maxSize int) *Queue {
	if maxSize <= 0 {
		maxSize = ranking.DefaultMaxQueueSize
	}
	return &Queue{
		items:   make([]Item, 0),
		maxSize: maxSize,
	}
}

// Enqueue adds an item, evicting if the queue is at capacity. It returns the
// evicted item, if any. Eviction is silent (no error), observable only via
// statistics.
func (q *Queue) Enqueue(item Item) *Item {
	q.mu.Lock()
	defer q.mu.Unlock()

	var evicted *Item
	if len(q.items) >= q.maxSize {
		evicted = q.evictLocked()
	}

	q.items = append(q.items, item)
	return evicted
}

// evictLocked removes and returns the oldest item of the lowest priority
// class present in the queue.
func (q *Queue) evictLocked() *Item {
	victim := -1
	for i, item := range q.items {
		if victim == -1 {
			victim = i
			continue
		}
		v := q.items[victim]
		if item.Priority < v.Priority ||
			(item.Priority == v.Priority && item.CreatedAt.Before(v.CreatedAt)) {
			victim = i
		}
	}
	if victim == -1 {
		return nil
	}

	evicted := q.items[victim]
	q.items = append(q.items[:victim], q.items[victim+1:]...)
	q.evicted++
	return &evicted
}

// DequeueBatch removes and returns up to maxItems items, priority-sorted
// with FIFO tie-break.
func (q *Queue) DequeueBatch(maxItems int) []Item {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.sortLocked()

	n := maxItems
	if n > len(q.items) {
		n = len(q.items)
	}
	if n <= 0 {
		return nil
	}

	batch := make([]Item, n)
	copy(batch, q.items[:n])
	q.items = q.items[n:]
	return batch
}

// DequeueUrgent removes and returns all items at or above the given
// priority, sorted like DequeueBatch.
func (q *Queue) DequeueUrgent(minPriority ranking.Priority) []Item {
	q.mu.Lock()
	defer q.mu.Unlock()

	var urgent, rest []Item
	for _, item := range q.items {
		if item.Priority >= minPriority {
			urgent = append(urgent, item)
		} else {
			rest = append(rest, item)
		}
	}
	q.items = rest

	sortItems(urgent)
	return urgent
}

func (q *Queue) Size() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Clear discards all pending work unconditionally and returns the number of
// removed items.
func (q *Queue) Clear() int {
	q.mu.Lock()
	defer q.mu.Unlock()

	removed := len(q.items)
	q.items = q.items[:0]
	return removed
}

// EvictedTotal returns how many items were dropped by capacity eviction.
func (q *Queue) EvictedTotal() int64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.evicted
}

// PendingByKey counts queued items per (segment, exercise) key.
func (q *Queue) PendingByKey() map[string]int {
	q.mu.Lock()
	defer q.mu.Unlock()

	pending := make(map[string]int)
	for _, item := range q.items {
		pending[item.Key()]++
	}
	return pending
}

func (q *Queue) sortLocked() {
	sortItems(q.items)
}

func sortItems(items []Item) {
	sort.SliceStable(items, func(i, j int) bool {
		if items[i].Priority != items[j].Priority {
			return items[i].Priority > items[j].Priority
		}
		return items[i].CreatedAt.Before(items[j].CreatedAt)
	})
}
