package pack

import "container/heap"

// expQueue is the expiration priority queue: a binary min-heap over
// entries ordered by expires_at, with each entry's heapIndex kept in
// sync on every swap so an admitted entry can be deleted directly
// without a linear scan (spec.md §3, §4.6).
//
// container/heap's index-tracking pattern (see e.g.
// daglabs-btcd/mining/mining.go's txPriorityQueue) is the idiomatic Go
// equivalent of the source's hand-rolled fd_prq with a back-pointer
// field; the teacher's own dependency tree has no generic delete-aware
// priority queue (common/prque only pops the minimum), so this is
// built directly on the standard library (see DESIGN.md).
type expQueue struct {
	items []*entry
}

func (q *expQueue) Len() int { return len(q.items) }

func (q *expQueue) Less(i, j int) bool {
	return q.items[i].expiresAt < q.items[j].expiresAt
}

func (q *expQueue) Swap(i, j int) {
	q.items[i], q.items[j] = q.items[j], q.items[i]
	q.items[i].heapIndex = i
	q.items[j].heapIndex = j
}

func (q *expQueue) Push(x any) {
	e := x.(*entry)
	e.heapIndex = len(q.items)
	q.items = append(q.items, e)
}

func (q *expQueue) Pop() any {
	old := q.items
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	q.items = old[:n-1]
	e.heapIndex = -1
	return e
}

func newExpQueue() *expQueue {
	q := &expQueue{}
	heap.Init(q)
	return q
}

func (q *expQueue) insert(e *entry) {
	heap.Push(q, e)
}

// remove deletes e from the heap using its tracked heapIndex.
func (q *expQueue) remove(e *entry) {
	heap.Remove(q, e.heapIndex)
}

// peek returns the minimum-expires_at entry without removing it, or
// nil if the heap is empty.
func (q *expQueue) peek() *entry {
	if len(q.items) == 0 {
		return nil
	}
	return q.items[0]
}

func (q *expQueue) len() int { return len(q.items) }

func (q *expQueue) clear() {
	for _, e := range q.items {
		e.heapIndex = -1
	}
	q.items = q.items[:0]
}
