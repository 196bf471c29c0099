// Package reconciler periodically sweeps the scheduler over whatever
// tasks and jobs are currently pending, the Go equivalent of how the
// original's VTG strategy loop repeatedly calls into the native scheduler
// rather than scheduling once per submission. Grounded on the teacher's
// ticker-loop idiom (a single goroutine woken on a fixed interval,
// zerolog field logging per cycle).
package reconciler

import (
	"context"
	"errors"
	"time"

	"github.com/klever-verify/core/pkg/log"
	"github.com/klever-verify/core/pkg/metrics"
	"github.com/klever-verify/core/pkg/scheduler"
	"github.com/klever-verify/core/pkg/types"
	"github.com/rs/zerolog"
)

// Source supplies one sweep's worth of pending work. It is called once per
// tick; the reconciler does not cache results between ticks.
type Source func() (pendingTasks, pendingJobs []scheduler.Pending, priority scheduler.PriorityFunc)

// Reconciler drives scheduler.Schedule on a fixed interval.
type Reconciler struct {
	sched    *scheduler.Scheduler
	interval time.Duration
	logger   zerolog.Logger
}

// New creates a Reconciler that sweeps sched every interval.
func New(sched *scheduler.Scheduler, interval time.Duration) *Reconciler {
	return &Reconciler{sched: sched, interval: interval, logger: log.WithComponent("reconciler")}
}

// Run sweeps until ctx is cancelled. admitted is called once per cycle
// that admits at least one task or job; a *types.SchedulerError from an
// infeasible request is logged and that cycle admits nothing, since
// Schedule checks every pending entry against the node limits before
// admitting any of them.
func (r *Reconciler) Run(ctx context.Context, source Source, admitted func(tasks, jobs []string)) error {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			r.sweep(source, admitted)
		}
	}
}

func (r *Reconciler) sweep(source Source, admitted func(tasks, jobs []string)) {
	timer := metrics.NewTimer()
	defer timer.ObserveDuration(metrics.SchedulingDuration)

	pendingTasks, pendingJobs, priority := source()
	if len(pendingTasks) == 0 && len(pendingJobs) == 0 {
		return
	}

	tasks, jobs, err := r.sched.Schedule(pendingTasks, pendingJobs, priority)
	if err != nil {
		var schedErr *types.SchedulerError
		if errors.As(err, &schedErr) {
			r.logger.Warn().Err(err).Msg("scheduling cycle rejected an infeasible request")
		} else {
			r.logger.Error().Err(err).Msg("scheduling cycle failed")
		}
	}

	if len(tasks) > 0 || len(jobs) > 0 {
		r.logger.Debug().Int("tasks", len(tasks)).Int("jobs", len(jobs)).Msg("admitted pending work")
		admitted(tasks, jobs)
	}
}
