package vm

import (
	"github.com/parcadei/ouros/internal/errtax"
	"github.com/parcadei/ouros/internal/heap"
	"github.com/parcadei/ouros/internal/scheduler"
	"github.com/parcadei/ouros/internal/value"
)

// SpawnTask registers co (a Coroutine value produced by calling an `async
// def` function, §9) as a new scheduler task (asyncio.create_task, §4.7).
// co's reference is retained by the VM for the task's lifetime and
// dropped when the task finishes or is cancelled.
func (vm *VM[T]) SpawnTask(co value.Value) (scheduler.TaskID, bool) {
	if _, ok := asHeapType[*heap.Coroutine](vm.Heap, co); !ok {
		return 0, false
	}
	if co.IsRef() {
		vm.Heap.IncRef(co.AsHeapID())
	}
	taskID := vm.Scheduler.Spawn()
	vm.taskCoroutine[taskID] = co.AsHeapID()
	return taskID, true
}

// CancelTask cancels a scheduler task and releases the VM's reference to
// its backing coroutine.
func (vm *VM[T]) CancelTask(id scheduler.TaskID) {
	vm.Scheduler.Cancel(id)
	if hid, ok := vm.taskCoroutine[id]; ok {
		vm.Heap.DropWithHeap(value.Ref(hid))
		delete(vm.taskCoroutine, id)
	}
}

// Step implements scheduler.Driver (§4.7): it resumes task's coroutine
// from wherever it last left off and runs it to completion. A task whose
// body issues a pausing host/proxy call before finishing is out of scope
// for the representative scheduler, same as awaitValue's single-coroutine
// case (§9) - true interleaving of a host round trip with more than one
// live task would require per-task frame stacks instead of the single
// shared vm.frames the core uses, which this representative core does not
// build. Step reports that case as an error rather than silently
// mishandling it.
func (vm *VM[T]) Step(task scheduler.TaskID) (scheduler.StepOutcome, error) {
	hid, ok := vm.taskCoroutine[task]
	if !ok {
		return scheduler.StepOutcome{}, &errtax.HostProtocolError{Msg: "step given an unknown task id"}
	}
	if _, ok := vm.Heap.Get(hid).(*heap.Coroutine); !ok {
		return scheduler.StepOutcome{}, &errtax.HostProtocolError{Msg: "task is not backed by a coroutine"}
	}

	result, err := vm.awaitValue(value.Ref(hid))
	if err != nil {
		if runErr, ok := err.(*errtax.RunError); ok {
			delete(vm.taskCoroutine, task)
			return scheduler.StepOutcome{Done: true, Err: runErr.Exc}, nil
		}
		if _, ok := err.(*errtax.HostProtocolError); ok {
			// the coroutine body paused on a host call mid-step; the
			// representative scheduler cannot interleave that with other
			// tasks (see doc comment above), so it surfaces as an error
			// up through Gather/RunReady rather than hanging forever.
			return scheduler.StepOutcome{}, err
		}
		return scheduler.StepOutcome{}, err
	}
	delete(vm.taskCoroutine, task)
	return scheduler.StepOutcome{Done: true, Result: result}, nil
}
