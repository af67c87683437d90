// Package scheduler turns a resolved plan into one-shot timers.
//
// A Load replaces the whole pending set at once. Each job moves
// Pending -> Fired -> Completed exactly once; Shutdown moves every job still
// Pending to Cancelled. Running the bound action happens on the task engine,
// never on the timer goroutine.
package scheduler
