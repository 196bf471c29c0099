// Package supervisor implements the Component Supervisor (C4): it launches
// the named component set for a sub-job, watches every component plus the
// report uploader for a non-zero exit, and drives the per-sub-job state
// machine prepared -> launched -> draining -> finished|failed. Grounded on
// the teacher's ticker-based watch loop idiom (zerolog field logging,
// mutex-guarded state) and spec.md §4.1.
package supervisor

import (
	"context"
	"sync"
	"time"

	"github.com/klever-verify/core/pkg/events"
	"github.com/klever-verify/core/pkg/log"
	"github.com/klever-verify/core/pkg/types"
	"github.com/rs/zerolog"
)

// healthPollInterval bounds how long the join loop may sleep before
// re-checking uploader health (spec.md §4.1, "wakes at least every
// second").
const healthPollInterval = 1 * time.Second

// State is one point of the per-sub-job state machine.
type State string

const (
	StatePrepared State = "prepared"
	StateLaunched State = "launched"
	StateDraining State = "draining"
	StateFinished State = "finished"
	StateFailed   State = "failed"
)

// Component is one named unit of work the supervisor launches and
// watches. Run must return promptly once ctx is cancelled.
type Component struct {
	Name string
	Run  func(ctx context.Context) error
}

// DrainCheck reports whether the report pipeline has gone idle. The
// supervisor calls it twice, one second apart, before declaring a sub-job
// finished (spec.md §4.1's "two consecutive one-second reads").
type DrainCheck func() bool

// Supervisor launches and watches one sub-job's component set.
type Supervisor struct {
	bus    *events.Bus
	logger zerolog.Logger

	mu    sync.Mutex
	state State
}

// New creates a Supervisor dispatching hooks through bus.
func New(bus *events.Bus) *Supervisor {
	return &Supervisor{bus: bus, logger: log.WithComponent("supervisor"), state: StatePrepared}
}

// State reports the supervisor's current state-machine position.
func (s *Supervisor) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Supervisor) setState(st State) {
	s.mu.Lock()
	s.state = st
	s.mu.Unlock()
}

// Run launches every component plus the uploader concurrently, then joins:
// it waits for either a non-zero exit (cancelling everything else and
// returning that error) or for every component to exit cleanly, at which
// point it drains the report pipeline (if drained is non-nil) and
// transitions to finished.
func (s *Supervisor) Run(ctx context.Context, parentID string, components []Component, uploader Component, drained DrainCheck) error {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	hookCtx := &events.Context{JobID: parentID, Data: map[string]any{}}
	if err := s.bus.Before(events.TagLaunchAllComponents, hookCtx); err != nil {
		s.setState(StateFailed)
		return err
	}

	all := append(append([]Component{}, components...), uploader)
	done := make(chan componentResult, len(all))
	for _, c := range all {
		go func(c Component) {
			done <- componentResult{name: c.Name, err: c.Run(runCtx)}
		}(c)
	}

	s.setState(StateLaunched)
	err := s.join(runCtx, cancel, len(all), done)

	if afterErr := s.bus.After(events.TagLaunchAllComponents, hookCtx); afterErr != nil && err == nil {
		err = afterErr
	}

	if err != nil {
		s.setState(StateFailed)
		return err
	}

	s.setState(StateDraining)
	if drained != nil {
		s.waitDrained(drained)
	}
	s.setState(StateFinished)
	return nil
}

type componentResult struct {
	name string
	err  error
}

// join waits for every component to report in. The first non-nil error
// cancels the rest; join keeps draining done until every component has
// exited, so their goroutines do not leak, and then returns that error.
func (s *Supervisor) join(ctx context.Context, cancel context.CancelFunc, expected int, done <-chan componentResult) error {
	var firstErr error
	remaining := expected

	ticker := time.NewTicker(healthPollInterval)
	defer ticker.Stop()

	for remaining > 0 {
		select {
		case result := <-done:
			remaining--
			if result.err != nil {
				s.logger.Error().Err(result.err).Str("component", result.name).Msg("component exited with error")
				if firstErr == nil {
					firstErr = result.err
					cancel()
				}
			}
		case <-ticker.C:
			// Wakes at least every second to re-check uploader health; the
			// actual health signal arrives through done, so there is
			// nothing further to do here besides staying responsive.
		case <-ctx.Done():
			if firstErr == nil {
				firstErr = ctx.Err()
			}
		}
	}
	return firstErr
}

// waitDrained polls drained until it reports true twice in a row, one
// second apart (spec.md §4.1).
func (s *Supervisor) waitDrained(drained DrainCheck) {
	consecutive := 0
	for consecutive < 2 {
		if drained() {
			consecutive++
		} else {
			consecutive = 0
		}
		if consecutive < 2 {
			time.Sleep(healthPollInterval)
		}
	}
}

// RunValidation runs a validation job's sub-jobs in sequence, aborting the
// remaining sub-jobs the moment one fails (the cascade-abort behavior
// SPEC_FULL.md's supplemented validation-mode feature calls for).
func (s *Supervisor) RunValidation(ctx context.Context, job *types.Job, runSubJob func(ctx context.Context, subJob *types.Job) error) error {
	for _, subJob := range job.SubJobs {
		if err := runSubJob(ctx, subJob); err != nil {
			s.logger.Error().Err(err).Str("sub_job", subJob.ID).Msg("sub-job failed, aborting remaining validation sub-jobs")
			return err
		}
	}
	return nil
}
