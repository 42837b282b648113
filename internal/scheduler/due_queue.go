package scheduler

import (
	"container/heap"
	"time"
)

// dueItem is one pair waiting in the queue
type dueItem struct {
	key     pairKey
	nextDue time.Time
	index   int // index in the heap
}

// dueQueue is a min-heap of pairs ordered by (next due, company, source).
// In-flight pairs are not in the queue. Not safe for concurrent use; the
// poller guards it with its own mutex.
// ⭐ SSOT: 다음 poll 대상 선택은 이 큐에서만
type dueQueue struct {
	items []*dueItem
	index map[pairKey]int // key -> heap index for O(1) lookup
}

func newDueQueue() *dueQueue {
	q := &dueQueue{index: make(map[pairKey]int)}
	heap.Init(q)
	return q
}

// Len implements heap.Interface
func (q *dueQueue) Len() int {
	return len(q.items)
}

// Less implements heap.Interface: earliest due first, then company, then source
func (q *dueQueue) Less(i, j int) bool {
	a, b := q.items[i], q.items[j]
	if !a.nextDue.Equal(b.nextDue) {
		return a.nextDue.Before(b.nextDue)
	}
	if a.key.company != b.key.company {
		return a.key.company < b.key.company
	}
	return a.key.source < b.key.source
}

// Swap implements heap.Interface
func (q *dueQueue) Swap(i, j int) {
	q.items[i], q.items[j] = q.items[j], q.items[i]
	q.items[i].index = i
	q.items[j].index = j
	q.index[q.items[i].key] = i
	q.index[q.items[j].key] = j
}

// Push implements heap.Interface; use schedule instead
func (q *dueQueue) Push(x any) {
	item := x.(*dueItem)
	item.index = len(q.items)
	q.items = append(q.items, item)
	q.index[item.key] = item.index
}

// Pop implements heap.Interface; use popDue instead
func (q *dueQueue) Pop() any {
	old := q.items
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	item.index = -1
	q.items = old[:n-1]
	delete(q.index, item.key)
	return item
}

// schedule inserts key or moves it to a new due time
func (q *dueQueue) schedule(key pairKey, due time.Time) {
	if idx, ok := q.index[key]; ok {
		q.items[idx].nextDue = due
		heap.Fix(q, idx)
		return
	}
	heap.Push(q, &dueItem{key: key, nextDue: due})
}

// remove drops key if queued
func (q *dueQueue) remove(key pairKey) {
	if idx, ok := q.index[key]; ok {
		heap.Remove(q, idx)
	}
}

// popDue removes and returns the earliest pair due at or before now
func (q *dueQueue) popDue(now time.Time) (pairKey, bool) {
	if len(q.items) == 0 || now.Before(q.items[0].nextDue) {
		return pairKey{}, false
	}
	item := heap.Pop(q).(*dueItem)
	return item.key, true
}

// contains reports whether key is queued
func (q *dueQueue) contains(key pairKey) bool {
	_, ok := q.index[key]
	return ok
}
