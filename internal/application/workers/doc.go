// Package workers implements the bounded worker pool that runs variable
// loads.
//
// The pool manages a fixed number of goroutines that:
//   - Take load tasks from a bounded queue
//   - Run each task with panic recovery
//   - Report idle/busy/stopped counts and queue depth
//
// Submit never blocks. A task that finds the queue full runs on an overflow
// goroutine, which keeps cascading loads (a load submitting its children)
// from deadlocking a saturated pool.
package workers
