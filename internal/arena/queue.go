package arena

// queue is the arena waiting list: strict FIFO, one entry per
// connection. Owned by the dispatcher goroutine, so no locking.
type queue struct {
	order []string
	seen  map[string]bool
}

func newQueue() *queue {
	return &queue{seen: make(map[string]bool)}
}

// Enqueue appends connID unless it is already waiting. Reports whether
// the queue changed.
func (q *queue) Enqueue(connID string) bool {
	if q.seen[connID] {
		return false
	}
	q.seen[connID] = true
	q.order = append(q.order, connID)
	return true
}

// Remove drops connID if present; no-op otherwise.
func (q *queue) Remove(connID string) bool {
	if !q.seen[connID] {
		return false
	}
	delete(q.seen, connID)
	for i, id := range q.order {
		if id == connID {
			q.order = append(q.order[:i], q.order[i+1:]...)
			break
		}
	}
	return true
}

func (q *queue) Len() int { return len(q.order) }

// Snapshot returns the waiting list oldest first.
func (q *queue) Snapshot() []string {
	out := make([]string, len(q.order))
	copy(out, q.order)
	return out
}
