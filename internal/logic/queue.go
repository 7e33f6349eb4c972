package logic

import "sync"

// DefaultQueueCapacity is used when NewQueue is given a non-positive capacity.
const DefaultQueueCapacity = 32

// Queue is a fixed-capacity FIFO of application events. Any goroutine may
// Push; exactly one goroutine may Pop. When full, the oldest event is dropped.
type Queue struct {
	mu       sync.Mutex
	buf      []Event
	capacity int
	head     int // next write position
	count    int
	dropped  uint64
	ready    chan struct{}
}

// NewQueue creates a queue holding at most capacity events.
func NewQueue(capacity int) *Queue {
	if capacity <= 0 {
		capacity = DefaultQueueCapacity
	}
	return &Queue{
		buf:      make([]Event, capacity),
		capacity: capacity,
		ready:    make(chan struct{}, 1),
	}
}

// Push appends ev. It never blocks.
func (q *Queue) Push(ev Event) {
	q.mu.Lock()
	if q.count == q.capacity {
		// Overwrite oldest: head is already pointing at it
		q.buf[q.head] = ev
		q.head = (q.head + 1) % q.capacity
		q.dropped++
	} else {
		q.buf[q.head] = ev
		q.head = (q.head + 1) % q.capacity
		q.count++
	}
	q.mu.Unlock()

	select {
	case q.ready <- struct{}{}:
	default:
	}
}

// Pop removes and returns the oldest event.
func (q *Queue) Pop() (Event, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.count == 0 {
		return Event{}, false
	}
	start := (q.head - q.count + q.capacity) % q.capacity
	ev := q.buf[start]
	q.buf[start] = Event{}
	q.count--
	return ev, true
}

// Ready is signalled after every Push. A receive means the queue may be
// non-empty; consumers drain with Pop until it reports false.
func (q *Queue) Ready() <-chan struct{} {
	return q.ready
}

// Len returns the number of queued events.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.count
}

// Dropped returns the number of events discarded due to overflow since start.
func (q *Queue) Dropped() uint64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.dropped
}
