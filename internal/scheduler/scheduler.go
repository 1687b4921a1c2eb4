// Package scheduler implements the cooperative async scheduler that sits
// above the VM (§4.7): Task bookkeeping, a CallId-keyed future table, and
// the FIFO readiness/wait-queue mechanics asyncio.gather/Queue/Event/Lock/
// Semaphore are built from. At most one task ever executes VM bytecode at
// a time; concurrency here is scheduling order, not parallel execution.
package scheduler

import (
	"context"
	"sync"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/parcadei/ouros/internal/errtax"
	"github.com/parcadei/ouros/internal/value"
)

// TaskID names one scheduler-managed coroutine within a session.
type TaskID uint32

// TaskState is a task's scheduling status.
type TaskState uint8

const (
	TaskReady TaskState = iota
	TaskBlocked
	TaskDone
	TaskCancelled
)

// Task is the scheduler's bookkeeping for one coroutine; the actual frame
// stack it drives lives in the VM's heap as a heap.Coroutine (§9) - the
// scheduler only tracks *when* that coroutine is allowed to run.
type Task struct {
	ID        TaskID
	State     TaskState
	BlockedOn []value.CallID
	Result    value.Value
	Err       *errtax.Exception
}

// FutureState is a pending external call's resolution status.
type FutureState uint8

const (
	FuturePending FutureState = iota
	FutureResolved
	FutureFailed
)

// Future is one entry of the CallId -> (owner, state) table (§4.7).
type Future struct {
	Owner     TaskID
	State     FutureState
	Value     value.Value
	Err       *errtax.Exception
	Resolved  bool
	Cancelled bool // owner was cancelled: any late result is dropped, never delivered
}

// StepOutcome is what Driver.Step reports after running a task for one
// scheduling quantum.
type StepOutcome struct {
	Done      bool
	Result    value.Value
	Err       *errtax.Exception
	BlockedOn []value.CallID // non-empty: task is now waiting on these call ids
}

// Driver runs one task's coroutine body until it completes, blocks on a
// pending call, or voluntarily yields to let another task run. The VM
// package supplies the concrete implementation (its GeneratorNext/
// awaitValue frame-snapshot resume machinery, §9, generalized to
// scheduler-owned coroutines instead of a single synchronous await).
type Driver interface {
	Step(task TaskID) (StepOutcome, error)
}

// Scheduler holds the task table, the future table, and the readiness
// queue for one running session (§4.7).
type Scheduler struct {
	driver  Driver
	tasks   map[TaskID]*Task
	ready   []TaskID
	futures map[value.CallID]*Future
	nextID  TaskID
	vmLock  *semaphore.Weighted
}

func New(driver Driver) *Scheduler {
	return &Scheduler{
		driver:  driver,
		tasks:   make(map[TaskID]*Task),
		futures: make(map[value.CallID]*Future),
		vmLock:  semaphore.NewWeighted(1),
	}
}

// Spawn registers a new ready task (asyncio.create_task, §4.7).
func (s *Scheduler) Spawn() TaskID {
	s.nextID++
	id := s.nextID
	s.tasks[id] = &Task{ID: id, State: TaskReady}
	s.ready = append(s.ready, id)
	return id
}

func (s *Scheduler) Task(id TaskID) (*Task, bool) {
	t, ok := s.tasks[id]
	return t, ok
}

// Cancel marks a task cancelled (§4.7 "cancellation... so that when
// results arrive they are ignored"): its pending futures are flagged so
// ApplyResult drops late deliveries instead of waking a dead task.
func (s *Scheduler) Cancel(id TaskID) {
	t, ok := s.tasks[id]
	if !ok || t.State == TaskDone {
		return
	}
	for _, cid := range t.BlockedOn {
		if f, ok := s.futures[cid]; ok {
			f.Cancelled = true
		}
	}
	t.State = TaskCancelled
	t.BlockedOn = nil
	filtered := s.ready[:0]
	for _, rid := range s.ready {
		if rid != id {
			filtered = append(filtered, rid)
		}
	}
	s.ready = filtered
}

// Wake moves a blocked task back onto the ready queue; used by Queue/Event/
// Lock/Semaphore (hand-rolled wait-queue primitives, §4.7) once their
// condition is satisfied, as opposed to ApplyResult which wakes a task
// blocked on a host-provided future.
func (s *Scheduler) Wake(id TaskID) {
	t, ok := s.tasks[id]
	if !ok || t.State != TaskBlocked {
		return
	}
	t.State = TaskReady
	t.BlockedOn = nil
	s.ready = append(s.ready, id)
}

func (s *Scheduler) block(id TaskID, on []value.CallID) {
	t := s.tasks[id]
	t.State = TaskBlocked
	t.BlockedOn = on
	for _, cid := range on {
		if f, ok := s.futures[cid]; ok {
			f.Owner = id
			continue
		}
		s.futures[cid] = &Future{Owner: id, State: FuturePending}
	}
}

// RunReady drains the ready queue in FIFO order (§4.7 "ready tasks run in
// FIFO order of readiness"), stepping each one until it finishes, blocks,
// or voluntarily yields back to the end of the queue. It returns once
// nothing is ready: either every task has terminated, or some are blocked
// and the caller must emit ResolveFutures(pending) (§4.6).
func (s *Scheduler) RunReady() (quiescent bool, pending []value.CallID, err error) {
	for len(s.ready) > 0 {
		id := s.ready[0]
		s.ready = s.ready[1:]
		t, ok := s.tasks[id]
		if !ok || t.State != TaskReady {
			continue
		}
		outcome, stepErr := s.driver.Step(id)
		if stepErr != nil {
			return false, nil, stepErr
		}
		switch {
		case outcome.Done:
			t.State = TaskDone
			t.Result = outcome.Result
			t.Err = outcome.Err
		case len(outcome.BlockedOn) > 0:
			s.block(id, outcome.BlockedOn)
		default:
			// voluntary yield (bare `await asyncio.sleep(0)`-equivalent):
			// still ready, cycles to the back for FIFO fairness.
			s.ready = append(s.ready, id)
		}
	}
	return s.collectPending()
}

func (s *Scheduler) collectPending() (quiescent bool, pending []value.CallID, err error) {
	for cid, f := range s.futures {
		if f.State == FuturePending && !f.Cancelled {
			pending = append(pending, cid)
		}
	}
	return len(pending) == 0, pending, nil
}

// ApplyResult delivers one (CallId, result) pair from a FutureSnapshot
// resume (§4.8): results are applied exactly once, and an unknown call id
// is a protocol violation rather than a silent no-op.
func (s *Scheduler) ApplyResult(id value.CallID, result value.Value, exc *errtax.Exception) error {
	f, ok := s.futures[id]
	if !ok {
		return &errtax.HostProtocolError{Msg: "resume given an unknown call_id"}
	}
	if f.Resolved {
		return &errtax.HostProtocolError{Msg: "call_id already resolved"}
	}
	f.Resolved = true
	if exc != nil {
		f.State = FutureFailed
		f.Err = exc
	} else {
		f.State = FutureResolved
		f.Value = result
	}
	if f.Cancelled {
		return nil
	}
	t, ok := s.tasks[f.Owner]
	if !ok || t.State != TaskBlocked {
		return nil
	}
	for _, cid := range t.BlockedOn {
		other := s.futures[cid]
		if other == nil || (other.State == FuturePending && !other.Cancelled) {
			return nil // still waiting on at least one more
		}
	}
	t.State = TaskReady
	t.BlockedOn = nil
	s.ready = append(s.ready, f.Owner)
	return nil
}

// Gather drives a set of tasks concurrently to a quiescent point within a
// single scheduling pass (asyncio.gather, §4.7), using errgroup.Group to
// collect each member's result/error and semaphore.Weighted(1) to enforce
// "at most one task runs in the VM at a time" across the goroutines
// errgroup spawns. No goroutine ever blocks on a real external event: the
// moment any member needs a future the host hasn't resolved yet, Gather
// cancels its internal context, lets every in-flight member unwind, and
// reports the combined set of pending call ids - exactly as if each
// member had been stepped individually through RunReady. Re-invoking
// Gather on the next Resume (after the host answers those futures) picks
// up where each member left off, since task/future state - not any
// goroutine - is what's actually suspended.
func (s *Scheduler) Gather(ids []TaskID) (results []value.Value, excs []*errtax.Exception, pending []value.CallID, err error) {
	results = make([]value.Value, len(ids))
	excs = make([]*errtax.Exception, len(ids))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	g, gctx := errgroup.WithContext(ctx)

	var mu sync.Mutex
	blocked := make(map[value.CallID]struct{})

	for i, id := range ids {
		i, id := i, id
		g.Go(func() error {
			for {
				select {
				case <-gctx.Done():
					return nil
				default:
				}
				if acqErr := s.vmLock.Acquire(gctx, 1); acqErr != nil {
					return nil
				}
				outcome, stepErr := s.driver.Step(id)
				s.vmLock.Release(1)
				if stepErr != nil {
					cancel()
					return stepErr
				}
				if outcome.Done {
					mu.Lock()
					results[i] = outcome.Result
					excs[i] = outcome.Err
					mu.Unlock()
					return nil
				}
				if len(outcome.BlockedOn) > 0 {
					mu.Lock()
					s.block(id, outcome.BlockedOn)
					for _, cid := range outcome.BlockedOn {
						blocked[cid] = struct{}{}
					}
					mu.Unlock()
					cancel()
					return nil
				}
				// voluntary yield inside the gathered set: loop so other
				// members' goroutines get a turn at vmLock before this one
				// re-acquires it.
			}
		})
	}

	if waitErr := g.Wait(); waitErr != nil {
		return nil, nil, nil, waitErr
	}
	if len(blocked) > 0 {
		pending = make([]value.CallID, 0, len(blocked))
		for cid := range blocked {
			pending = append(pending, cid)
		}
		return nil, nil, pending, nil
	}
	return results, excs, nil, nil
}
