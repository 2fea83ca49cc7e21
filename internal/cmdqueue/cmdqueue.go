// Package cmdqueue implements the single-producer/single-consumer command
// bridge between a non-RT control thread and the RT audio-processing loop
// (spec.md §4.11, §5): an execute/cleanup pair of bounded ring buffers, plus
// a pointer-swap helper for publishing new layer/program data to the RT
// side without locking it.
//
// Grounded on original_source/fifo.h (the atomic read/write counters and
// wraparound ring-buffer algorithm, translated from __sync_synchronize
// memory fences to sync/atomic) and rt.h (the prepare/execute/cleanup
// command shape and cbox_rt_swap_pointers idiom). The Go port replaces
// fifo.h's raw byte ring with a ring of typed Cmd closures, since Go does
// not need the original's manual struct-serialization step.
package cmdqueue

import (
	"sync/atomic"
)

// Cmd is one RT-bridge command: Execute runs on the RT thread and returns a
// cost (RT_MAX_COST_PER_CALL-style cooperative budgeting — see Queue.Drain);
// Cleanup runs later on the submitting (non-RT) thread once Execute has run,
// mirroring the original's rb_execute/rb_cleanup split so that anything the
// RT thread must not free (GC pressure aside, any blocking teardown) happens
// off the audio thread.
type Cmd struct {
	// Execute performs the mutation on the RT thread. Returning a cost > 0
	// tells Drain the command did real work this call; a cost of 0 means
	// the command is done and can be retired.
	Execute func() (cost int)
	Cleanup func()
}

const defaultCapacity = 1024 // RT_CMD_QUEUE_ITEMS

// Queue is a bounded SPSC ring buffer of pending Cmds. One Queue instance is
// shared between exactly one submitter goroutine (the control/API side) and
// exactly one RT-thread consumer (the audio callback).
type Queue struct {
	buf        []Cmd
	mask       uint32
	writeCount atomic.Uint32
	readCount  atomic.Uint32

	pending []pendingCmd // commands still accruing cost, drained across Drain calls
}

type pendingCmd struct {
	cmd Cmd
}

// NewQueue creates a Queue with room for at least capacity commands,
// rounded up to the next power of two (fifo.h requires a power-of-two ring
// size so mask-based wraparound works without a modulo).
func NewQueue(capacity int) *Queue {
	if capacity <= 0 {
		capacity = defaultCapacity
	}
	n := 1
	for n < capacity {
		n <<= 1
	}
	return &Queue{buf: make([]Cmd, n), mask: uint32(n - 1)}
}

// WriteSpace reports how many additional commands can be submitted before
// the ring is full, mirroring cbox_fifo_writespace.
func (q *Queue) WriteSpace() int {
	w := q.writeCount.Load()
	r := q.readCount.Load()
	return len(q.buf) - int(w-r)
}

// Submit enqueues a command for the RT thread. Reports false if the ring is
// full (the caller should retry once the RT thread has drained more).
func (q *Queue) Submit(cmd Cmd) bool {
	if q.WriteSpace() <= 0 {
		return false
	}
	w := q.writeCount.Load()
	q.buf[w&q.mask] = cmd
	// Publish the slot before advancing writeCount so a concurrent Drain
	// never observes a write index past a command that isn't fully
	// written yet (the fifo.h __sync_synchronize pairing, expressed as
	// atomic.Uint32's release-acquire semantics in Go's memory model).
	q.writeCount.Store(w + 1)
	return true
}

// Drain runs every pending command once on the RT thread, honoring a total
// cost budget per call (RT_MAX_COST_PER_CALL): a command whose Execute
// returns a nonzero cost is re-queued into pending and retried on a later
// Drain call, rather than blocking the current audio block indefinitely.
// Finished commands (cost == 0, or Execute == nil) have their Cleanup
// appended to the returned slice for the caller to run off the RT thread.
func (q *Queue) Drain(costBudget int) []Cmd {
	var finished []Cmd
	spent := 0

	// First, retry anything left over from a previous call.
	var stillPending []pendingCmd
	for _, p := range q.pending {
		if spent >= costBudget {
			stillPending = append(stillPending, p)
			continue
		}
		cost := 0
		if p.cmd.Execute != nil {
			cost = p.cmd.Execute()
		}
		spent += cost
		if cost > 0 {
			stillPending = append(stillPending, p)
		} else {
			finished = append(finished, p.cmd)
		}
	}
	q.pending = stillPending

	r := q.readCount.Load()
	w := q.writeCount.Load()
	for r != w {
		if spent >= costBudget {
			break
		}
		cmd := q.buf[r&q.mask]
		r++
		cost := 0
		if cmd.Execute != nil {
			cost = cmd.Execute()
		}
		spent += cost
		if cost > 0 {
			q.pending = append(q.pending, pendingCmd{cmd: cmd})
		} else {
			finished = append(finished, cmd)
		}
		q.readCount.Store(r)
	}
	return finished
}

// RunCleanups invokes Cleanup for every command Drain reported finished.
// Call this from the non-RT submitter thread, never from the RT callback.
func RunCleanups(finished []Cmd) {
	for _, c := range finished {
		if c.Cleanup != nil {
			c.Cleanup()
		}
	}
}

// SwapPointer atomically replaces *ptr with newValue and returns the
// previous value, mirroring cbox_rt_swap_pointers: the RT-safe way to
// publish a freshly finalized layer/program tree for the audio thread to
// pick up without taking a lock on the hot path.
func SwapPointer[T any](ptr *atomic.Pointer[T], newValue *T) *T {
	return ptr.Swap(newValue)
}
