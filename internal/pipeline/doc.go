// Package pipeline fans a multi-page comparison job out into independent page
// units, runs them on a bounded worker pool and streams each finished unit to
// subscribers as soon as it is done.
//
// # State Machine
//
// A job moves Created → InProgress when dispatch of its units begins, before
// the first unit waits for a worker slot, and ends in exactly one of:
//
//   - Completed: every unit completed.
//   - PartiallyFailed: some units completed and some failed.
//   - Failed: every unit failed, or the job was rejected before dispatch
//     (empty document or differing page counts). Only a rejected job goes
//     from Created straight to Failed; a job cancelled before any unit
//     started passes through InProgress and fails with all units cancelled.
//
// A unit moves Pending → InProgress → Completed | Failed. Terminal states
// are final; a unit that times out stays Failed even if its computation
// later returns. Units that were never started because the job was
// cancelled end Failed with kind "cancelled", so every submitted page pair
// reaches exactly one terminal state.
//
// # Concurrency
//
// All jobs of an Engine share one compute pool of Workers slots. Decoding
// additionally takes one of DecodeSlots permits, which caps the number of
// rasters being decoded at once independently of the compute pool. Units
// share no mutable state; job state is changed only through the per-unit
// transition methods of the job aggregate, under its lock.
//
// A unit that exceeds UnitTimeout is marked Failed and its slot is handed to
// the next pending unit straight away. Cancelling a job stops dispatch of
// pending units; units already running finish or fail on their own.
//
// # Streaming
//
// Each job keeps an append-only log of finished units. Subscribe first
// replays the log to the new subscriber, in completion order, and then
// delivers live events. Every subscriber has its own goroutine, so a slow
// callback delays only itself. Delivery is in completion order, not page
// order.
//
// Resubmission is explicit: Retry creates a new job containing only the
// chosen failed pages of a finished job, optionally with a different
// comparer.
package pipeline
