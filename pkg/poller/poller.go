// Package poller implements the Task Poller (C5): it accepts generated task
// descriptors from a pending queue, polls the Bridge for their remote
// status, and multiplexes finished/errored tasks onto a processing queue
// for the worker pool. Grounded on klever/core/vrp/__init__.py's
// VRP.__result_processing.
package poller

import (
	"context"
	"fmt"
	"time"

	"github.com/klever-verify/core/pkg/client"
	"github.com/klever-verify/core/pkg/log"
	"github.com/klever-verify/core/pkg/metrics"
	"github.com/klever-verify/core/pkg/queue"
	"github.com/klever-verify/core/pkg/registry"
	"github.com/klever-verify/core/pkg/types"
	"github.com/rs/zerolog"
)

// generationTimeout bounds how long the poller waits for a batch of newly
// generated tasks before checking statuses anyway (spec.md §4.3/§5).
const generationTimeout = 1 * time.Second

// solutionTimeout is the sleep between Bridge status polls.
const solutionTimeout = 1 * time.Second

// ProcessingItem is one multiplexed result the poller hands to the worker
// pool: the terminal status observed, the task that reached it, the
// attempt number (always 1; retried tasks are not part of this spec), and
// the configured source trees to trim witness/coverage paths against
// (spec.md §4.3's `(status, descriptor, attempt_no, source_paths)` tuple).
type ProcessingItem struct {
	Status      types.RemoteStatus
	Descriptor  types.TaskDescriptor
	AttemptNo   int
	SourcePaths []string
}

// Poller drains a pending-task queue and emits a processing queue.
type Poller struct {
	bridge      *client.Client
	registry    *registry.Registry
	workers     int
	sourcePaths []string
	logger      zerolog.Logger
}

// New creates a Poller. workers is the worker-pool size; it determines how
// many sentinels are emitted when the pending queue and in-flight map both
// drain (spec.md §4.3). sourcePaths is the job's configured working source
// trees, carried on every emitted ProcessingItem unchanged.
func New(bridge *client.Client, reg *registry.Registry, workers int, sourcePaths []string) *Poller {
	return &Poller{
		bridge:      bridge,
		registry:    reg,
		workers:     workers,
		sourcePaths: sourcePaths,
		logger:      log.WithComponent("poller"),
	}
}

// Run drains pending until its sentinel, polling the Bridge for status on
// every in-flight task, and writes to processing until both the pending
// queue is exhausted and no task remains in flight, at which point it
// closes processing with one sentinel per worker.
func (p *Poller) Run(ctx context.Context, pending *queue.Queue[types.TaskDescriptor], processing *queue.Queue[ProcessingItem]) error {
	inFlight := make(map[string]types.TaskDescriptor)
	receiving := true

	for {
		if receiving {
			drained := p.drainWithTimeout(ctx, pending, generationTimeout)
			for _, item := range drained {
				if item.sentinel {
					receiving = false
					p.logger.Info().Msg("expect no further tasks to be generated")
					continue
				}
				inFlight[item.descriptor.TaskID] = item.descriptor
				if err := p.registry.Create(item.descriptor.Key()); err != nil {
					return err
				}
			}
		}

		if len(inFlight) > 0 {
			if err := p.pollOnce(ctx, inFlight, processing, p.sourcePaths); err != nil {
				return err
			}
		}

		if !receiving && len(inFlight) == 0 {
			processing.Close(p.workers)
			p.logger.Debug().Msg("shutting down result processing gracefully")
			return nil
		}

		metrics.PollCyclesTotal.Inc()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(solutionTimeout):
		}
	}
}

type drainedItem struct {
	descriptor types.TaskDescriptor
	sentinel   bool
}

// drainWithTimeout mirrors drain_queue/get_waiting_first: if nothing is
// pending yet it blocks up to timeout for the first item; once something is
// flowing it drains everything immediately available without blocking.
func (p *Poller) drainWithTimeout(ctx context.Context, pending *queue.Queue[types.TaskDescriptor], timeout time.Duration) []drainedItem {
	var out []drainedItem

	timeoutCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	first, ok := pending.Get(timeoutCtx)
	if !ok {
		if timeoutCtx.Err() != nil {
			return out
		}
		out = append(out, drainedItem{sentinel: true})
		return out
	}
	out = append(out, drainedItem{descriptor: first})

	for {
		v, ok, end := pending.TryGet()
		if end {
			out = append(out, drainedItem{sentinel: true})
			return out
		}
		if !ok {
			return out
		}
		out = append(out, drainedItem{descriptor: v})
	}
}

func (p *Poller) pollOnce(ctx context.Context, inFlight map[string]types.TaskDescriptor, processing *queue.Queue[ProcessingItem], sourcePaths []string) error {
	timer := metrics.NewTimer()
	ids := make([]string, 0, len(inFlight))
	for id := range inFlight {
		ids = append(ids, id)
	}

	statuses, err := p.bridge.GetTasksStatuses(ctx, ids)
	timer.ObserveDuration(metrics.PollLatency)
	if err != nil {
		return err
	}

	for _, item := range statuses {
		descriptor, tracked := inFlight[item.ID]
		if !tracked {
			continue
		}

		switch item.Status {
		case types.StatusFinished:
			processing.Put(ProcessingItem{Status: types.StatusFinished, Descriptor: descriptor, AttemptNo: 1, SourcePaths: sourcePaths})
			delete(inFlight, item.ID)
		case types.StatusError:
			processing.Put(ProcessingItem{Status: types.StatusError, Descriptor: descriptor, AttemptNo: 1, SourcePaths: sourcePaths})
			delete(inFlight, item.ID)
		case types.StatusPending, types.StatusProcessing:
			// Still running; keep polling. The source treats these two
			// statuses as equivalent (see SPEC_FULL.md Open Questions).
		default:
			return fmt.Errorf("unknown remote status %q for task %s", item.Status, item.ID)
		}
	}

	metrics.TasksInFlight.Set(float64(len(inFlight)))
	return nil
}
