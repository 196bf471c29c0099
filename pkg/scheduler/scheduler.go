// Package scheduler implements the Admission Scheduler (C3): a pure,
// synchronous gate that decides which pending tasks and jobs may start,
// given a fixed node capacity and a caller-supplied priority ordering.
// Grounded on scheduler/schedulers/native.py's Scheduler.__try_to_schedule
// and Scheduler.schedule.
package scheduler

import (
	"sort"
	"sync"

	"github.com/klever-verify/core/pkg/log"
	"github.com/klever-verify/core/pkg/metrics"
	"github.com/klever-verify/core/pkg/storage"
	"github.com/klever-verify/core/pkg/types"
	"github.com/rs/zerolog"
)

// NodeCapacity is the canonical resource figure every admission decision is
// gated against. It is loaded once from the "resource limits" section of
// the job configuration (spec.md §6); no external capacity service is
// queried (see SPEC_FULL.md for why this replaces the original's Consul
// lookup).
type NodeCapacity struct {
	MemoryBytes int64
	CPUModel    string
}

// Pending describes one task or job waiting for admission.
type Pending struct {
	ID     string
	Limits types.ResourceLimits
}

// PriorityFunc ranks pending entries for the ascending sort spec.md §4.2
// describes; lower return value schedules first. Ties keep the caller's
// original relative order (Go's sort.SliceStable).
type PriorityFunc func(id string) int

// Scheduler is the admission gate. One Scheduler instance serves a single
// node; it is safe for concurrent use.
type Scheduler struct {
	store    storage.Store
	capacity NodeCapacity
	logger   zerolog.Logger

	mu       sync.Mutex
	reserved map[string]types.AdmissionRecord
}

// New creates a Scheduler gated by capacity, restoring any reservations
// still recorded in store from a previous run.
func New(store storage.Store, capacity NodeCapacity) (*Scheduler, error) {
	s := &Scheduler{
		store:    store,
		capacity: capacity,
		logger:   log.WithComponent("scheduler"),
		reserved: make(map[string]types.AdmissionRecord),
	}

	existing, err := store.ListAdmissions()
	if err != nil {
		return nil, err
	}
	for _, rec := range existing {
		s.reserved[rec.ID] = rec
	}
	return s, nil
}

// reservedMemory returns the sum of memory reserved by every active record.
// Caller must hold s.mu.
func (s *Scheduler) reservedMemory() int64 {
	var total int64
	for _, rec := range s.reserved {
		total += rec.Memory
	}
	return total
}

// ReservedMemoryBytes implements metrics.Source.
func (s *Scheduler) ReservedMemoryBytes() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reservedMemory()
}

// TasksInFlight implements metrics.Source.
func (s *Scheduler) TasksInFlight() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.reserved)
}

// tryToSchedule admits identifier if its memory request fits in whatever
// headroom remains. Caller must hold s.mu.
func (s *Scheduler) tryToSchedule(identifier string, limits types.ResourceLimits) bool {
	if limits.MemorySize > s.capacity.MemoryBytes-s.reservedMemory() {
		return false
	}
	rec := types.AdmissionRecord{
		ID:       identifier,
		Memory:   limits.MemorySize,
		CPUs:     limits.CPUsNum,
		CPUModel: limits.CPUModel,
	}
	// The original native.py writes self.__reserved[identifier] both before
	// and after bumping the running total; same record both times, so the
	// second assignment is a no-op. Reproduced faithfully rather than
	// "fixed" since nothing downstream depends on which write wins.
	s.reserved[identifier] = rec
	s.reserved[identifier] = rec
	return true
}

// Schedule runs one admission cycle: pending tasks are tried first, sorted
// ascending by priorityFn, then pending jobs that are not already reserved.
// It returns the identifiers admitted this cycle in each category.
func (s *Scheduler) Schedule(pendingTasks, pendingJobs []Pending, priorityFn PriorityFunc) (tasksToStart, jobsToStart []string, err error) {
	if err := s.checkLimits(pendingTasks); err != nil {
		return nil, nil, err
	}
	if err := s.checkLimits(pendingJobs); err != nil {
		return nil, nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	ordered := append([]Pending(nil), pendingTasks...)
	sort.SliceStable(ordered, func(i, j int) bool {
		return priorityFn(ordered[i].ID) < priorityFn(ordered[j].ID)
	})
	for _, task := range ordered {
		if s.tryToSchedule(task.ID, task.Limits) {
			tasksToStart = append(tasksToStart, task.ID)
			metrics.TasksAdmittedTotal.Inc()
		} else {
			metrics.TasksRejectedTotal.Inc()
		}
	}

	for _, job := range pendingJobs {
		if _, already := s.reserved[job.ID]; already {
			continue
		}
		if s.tryToSchedule(job.ID, job.Limits) {
			jobsToStart = append(jobsToStart, job.ID)
			metrics.TasksAdmittedTotal.Inc()
		} else {
			metrics.TasksRejectedTotal.Inc()
		}
	}

	for _, rec := range s.reserved {
		if err := s.store.PutAdmission(rec); err != nil {
			return tasksToStart, jobsToStart, err
		}
	}

	return tasksToStart, jobsToStart, nil
}

// checkLimits validates every entry against node capacity before any
// reservation is attempted, raising *types.SchedulerError on the first
// infeasible request (spec.md §4.2 failure conditions).
func (s *Scheduler) checkLimits(entries []Pending) error {
	for _, e := range entries {
		if e.Limits.CPUModel != "" && e.Limits.CPUModel != s.capacity.CPUModel {
			return &types.SchedulerError{
				Identifier: e.ID,
				Msg:        "requested CPU model " + e.Limits.CPUModel + " differs from node " + s.capacity.CPUModel,
			}
		}
		if e.Limits.MemorySize > s.capacity.MemoryBytes {
			return &types.SchedulerError{
				Identifier: e.ID,
				Msg:        "requested memory exceeds node physical memory",
			}
		}
	}
	return nil
}

// Release frees identifier's reservation. Releasing an absent key, including
// one already removed by Cancel, is an accounting bug: Release always
// reports it as a *types.SchedulerError rather than silently ignoring it.
func (s *Scheduler) Release(identifier string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.reserved[identifier]; !ok {
		s.logger.Error().Str("identifier", identifier).Msg("double release of admission record")
		return &types.SchedulerError{Identifier: identifier, Msg: "double release: record is not active"}
	}
	delete(s.reserved, identifier)
	return s.store.DeleteAdmission(identifier)
}

// Cancel removes identifier's reservation if present, without error if it
// is already absent — the one path where a missing record is expected.
func (s *Scheduler) Cancel(identifier string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.reserved[identifier]; !ok {
		return nil
	}
	delete(s.reserved, identifier)
	return s.store.DeleteAdmission(identifier)
}
