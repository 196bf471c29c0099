// Package scheduler provides the Admission Scheduler: a single-node
// resource gate that decides, on each call to Schedule, which pending
// tasks and jobs may start against a fixed memory and CPU-model capacity.
// Reservations persist across restarts via pkg/storage so an interrupted
// run does not forget what it had already admitted.
package scheduler
