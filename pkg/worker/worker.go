// Package worker implements the Result Worker Pool (C6): N workers drain a
// processing queue of finished/errored tasks, run the per-element RP
// algorithm over each (patch report, verdict dispatch, witness and
// coverage post-processing, closing report), and emit the final solution
// triple on a processed queue. Grounded on klever/core/vrp/__init__.py's
// RP component and its __vrp_worker dispatch loop.
package worker

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	"github.com/klever-verify/core/pkg/client"
	"github.com/klever-verify/core/pkg/log"
	"github.com/klever-verify/core/pkg/poller"
	"github.com/klever-verify/core/pkg/queue"
	"github.com/klever-verify/core/pkg/registry"
	"github.com/klever-verify/core/pkg/reports"
	"github.com/klever-verify/core/pkg/types"
	"github.com/rs/zerolog"
)

// ProcessingItem is the element type the pool consumes: the poller's
// multiplexed result for one task.
type ProcessingItem = poller.ProcessingItem

// ProcessedItem is the tuple ("Task", descriptor, triple) the pool emits
// once a task has been fully handled (spec.md §4.4's worker loop).
type ProcessedItem struct {
	Descriptor types.TaskDescriptor
	Triple     types.SolutionTriple
}

// Pool is the Result Worker Pool: a fixed number of workers draining the
// same processing queue.
type Pool struct {
	bridge      *client.Client
	registry    *registry.Registry
	reportsSink *reports.Sink
	workDir     string
	sourceTrees []string
	logger      zerolog.Logger
}

// New creates a Pool. workDir is where decision archives are unpacked;
// sourceTrees is forwarded to pkg/witness for file-name trimming.
func New(bridge *client.Client, reg *registry.Registry, sink *reports.Sink, workDir string, sourceTrees []string) *Pool {
	return &Pool{
		bridge:      bridge,
		registry:    reg,
		reportsSink: sink,
		workDir:     workDir,
		sourceTrees: sourceTrees,
		logger:      log.WithComponent("worker"),
	}
}

// Run starts workers goroutines, each draining processing until its
// sentinel, and blocks until every worker has exited. The processed queue
// is left open; the caller closes it once every worker goroutine spawned
// here has returned, since only the caller knows how many consumers read
// from it.
func (p *Pool) Run(ctx context.Context, workers int, processing *queue.Queue[ProcessingItem], processed *queue.Queue[ProcessedItem]) error {
	var wg sync.WaitGroup
	errs := make(chan error, workers)

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			if err := p.runWorker(ctx, id, processing, processed); err != nil {
				errs <- err
			}
		}(i)
	}

	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}

func (p *Pool) runWorker(ctx context.Context, id int, processing *queue.Queue[ProcessingItem], processed *queue.Queue[ProcessedItem]) error {
	logger := p.logger.With().Int("worker_id", id).Logger()
	for {
		item, ok := processing.Get(ctx)
		if !ok {
			logger.Debug().Msg("processing queue drained, exiting")
			return nil
		}

		triple, procErr := p.processElement(ctx, item)

		if err := p.registry.Update(item.Descriptor.Key(), func(types.SolutionTriple) types.SolutionTriple {
			return triple
		}); err != nil {
			return err
		}

		processed.Put(ProcessedItem{Descriptor: item.Descriptor, Triple: triple})

		if procErr != nil {
			return procErr
		}
	}
}

// writeErrorTrace marshals trace to JSON inside destDir, named after its
// witness ordinal (empty ordinal means the single-witness case).
func writeErrorTrace(destDir, ordinal string, trace *types.ErrorTrace) (*types.FileRef, error) {
	name := "error trace.json"
	if ordinal != "" {
		name = "error trace " + ordinal + ".json"
	}
	path := filepath.Join(destDir, name)

	data, err := json.Marshal(trace)
	if err != nil {
		return nil, err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return nil, err
	}
	return &types.FileRef{Path: path, ArcName: "error trace.json"}, nil
}
