package scheduler

import "github.com/parcadei/ouros/internal/value"

// Queue, Event, and Lock are hand-rolled FIFO wait-queues over []TaskID
// (§4.7): no channel/goroutine-based primitive from the ecosystem models
// Python's single-thread cooperative semantics, where "blocked" means
// "parked in the scheduler's bookkeeping," never "a goroutine parked on a
// channel receive." A caller (the asyncio builtin glue) drives each
// primitive's methods and, whenever one reports a task is now unblocked,
// passes that TaskID to Scheduler.Wake.

// Queue is asyncio.Queue: a bounded (maxSize > 0) or unbounded FIFO of
// values, with separate wait-lines for producers blocked on a full queue
// and consumers blocked on an empty one.
type Queue struct {
	items      []value.Value
	maxSize    int
	putWaiters []queuePut
	getWaiters []TaskID
}

type queuePut struct {
	task  TaskID
	value value.Value
}

func NewQueue(maxSize int) *Queue { return &Queue{maxSize: maxSize} }

// Put enqueues v immediately if there's room, handing it directly to the
// longest-waiting Get if one is parked. ok=false means the queue is full
// and task must block: v is already parked with task, and a later Get
// moves it into the queue and reports task as woken, so the caller does
// not retry Put.
func (q *Queue) Put(task TaskID, v value.Value) (ok bool, woken TaskID, wokeSomeone bool) {
	if len(q.getWaiters) > 0 {
		woken = q.getWaiters[0]
		q.getWaiters = q.getWaiters[1:]
		q.items = append(q.items, v)
		return true, woken, true
	}
	if q.maxSize > 0 && len(q.items) >= q.maxSize {
		q.putWaiters = append(q.putWaiters, queuePut{task, v})
		return false, 0, false
	}
	q.items = append(q.items, v)
	return true, 0, false
}

// Get dequeues the oldest item if any is available, immediately admitting
// the longest-waiting blocked Put (if any) into the space just freed.
// ok=false means the queue is empty and task must block.
func (q *Queue) Get(task TaskID) (v value.Value, ok bool, woken TaskID, wokeSomeone bool) {
	if len(q.items) == 0 {
		q.getWaiters = append(q.getWaiters, task)
		return value.None, false, 0, false
	}
	v = q.items[0]
	q.items = q.items[1:]
	if len(q.putWaiters) > 0 {
		w := q.putWaiters[0]
		q.putWaiters = q.putWaiters[1:]
		q.items = append(q.items, w.value)
		return v, true, w.task, true
	}
	return v, true, 0, false
}

func (q *Queue) Len() int { return len(q.items) }

// Event is asyncio.Event: set() wakes every current waiter at once;
// clear() resets state without retroactively blocking those already
// woken (matching CPython's Event semantics).
type Event struct {
	isSet   bool
	waiters []TaskID
}

func NewEvent() *Event { return &Event{} }

// Wait returns true immediately if the event is already set, otherwise
// parks task and returns false.
func (e *Event) Wait(task TaskID) bool {
	if e.isSet {
		return true
	}
	e.waiters = append(e.waiters, task)
	return false
}

// Set marks the event and returns every task that was waiting, for the
// caller to Wake.
func (e *Event) Set() []TaskID {
	e.isSet = true
	woken := e.waiters
	e.waiters = nil
	return woken
}

func (e *Event) Clear()       { e.isSet = false }
func (e *Event) IsSet() bool  { return e.isSet }

// Lock is asyncio.Lock: a single holder plus a FIFO of waiters; release
// hands the lock directly to the next waiter rather than ever observing
// an unheld state in between, matching CPython's fairness guarantee.
type Lock struct {
	held    bool
	waiters []TaskID
}

func NewLock() *Lock { return &Lock{} }

func (l *Lock) Acquire(task TaskID) bool {
	if !l.held {
		l.held = true
		return true
	}
	l.waiters = append(l.waiters, task)
	return false
}

// Release returns the next waiter to hand the lock to, if any.
func (l *Lock) Release() (next TaskID, handedOff bool) {
	if len(l.waiters) == 0 {
		l.held = false
		return 0, false
	}
	next = l.waiters[0]
	l.waiters = l.waiters[1:]
	return next, true
}

func (l *Lock) Locked() bool { return l.held }

// Semaphore is asyncio.Semaphore: a counting permit pool, hand-rolled
// like Queue/Event/Lock above rather than backed by
// golang.org/x/sync/semaphore.Weighted, since that type blocks the
// calling goroutine on Acquire and has no non-blocking "who's next"
// notion of its own for the scheduler's park-and-resume model (x/sync's
// semaphore is used instead for vmLock in scheduler.go, where blocking
// the goroutine is exactly what's wanted).
type Semaphore struct {
	permits int64
	waiters []TaskID
}

func NewSemaphore(n int64) *Semaphore { return &Semaphore{permits: n} }

func (s *Semaphore) Acquire(task TaskID) bool {
	if s.permits > 0 {
		s.permits--
		return true
	}
	s.waiters = append(s.waiters, task)
	return false
}

// Release returns a permit to the pool, handing it straight to the next
// waiter if one exists instead of making it compete for the freed permit.
func (s *Semaphore) Release() (next TaskID, handedOff bool) {
	if len(s.waiters) == 0 {
		s.permits++
		return 0, false
	}
	next = s.waiters[0]
	s.waiters = s.waiters[1:]
	return next, true
}
