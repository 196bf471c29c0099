// Command klever-core runs the verification pipeline core: the admission
// scheduler, task poller, result worker pool, witness/coverage
// post-processing, and report uploader wired together for a single job.
//
// Task generation (the C-preprocessing/merging front end and the
// per-requirement plugin chain that turns a job into task descriptors) is
// out of scope for this repo (spec.md §1); klever-core consumes whatever
// descriptors a generator places as JSON files in --tasks-dir and admits
// them through the scheduler exactly as it would admit descriptors handed
// to it by a live generator process.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/klever-verify/core/pkg/client"
	"github.com/klever-verify/core/pkg/config"
	"github.com/klever-verify/core/pkg/events"
	"github.com/klever-verify/core/pkg/log"
	"github.com/klever-verify/core/pkg/metrics"
	"github.com/klever-verify/core/pkg/poller"
	"github.com/klever-verify/core/pkg/queue"
	"github.com/klever-verify/core/pkg/reconciler"
	"github.com/klever-verify/core/pkg/registry"
	"github.com/klever-verify/core/pkg/reports"
	"github.com/klever-verify/core/pkg/scheduler"
	"github.com/klever-verify/core/pkg/storage"
	"github.com/klever-verify/core/pkg/supervisor"
	"github.com/klever-verify/core/pkg/types"
	"github.com/klever-verify/core/pkg/uploader"
	"github.com/klever-verify/core/pkg/worker"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

var (
	configPath  string
	tasksDir    string
	workerCount int
	metricsAddr string

	logLevel string
	logJSON  bool
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:     "klever-core",
	Short:   "Run the verification pipeline core",
	Version: "0.1.0",
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().BoolVar(&logJSON, "log-json", false, "emit structured JSON logs")
	cobra.OnInitialize(initLogging)

	runCmd.Flags().StringVar(&configPath, "config", "", "path to the job configuration document (required)")
	runCmd.Flags().StringVar(&tasksDir, "tasks-dir", "", "directory of generated task descriptor JSON files to admit")
	runCmd.Flags().IntVar(&workerCount, "workers", 4, "result worker pool size")
	runCmd.Flags().StringVar(&metricsAddr, "metrics-addr", ":9090", "address the Prometheus metrics endpoint listens on")
	_ = runCmd.MarkFlagRequired("config")

	rootCmd.AddCommand(runCmd)
}

func initLogging() {
	log.Init(log.Config{
		Level:      log.Level(logLevel),
		JSONOutput: logJSON,
	})
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run one job through the pipeline core",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runJob(cmd.Context())
	},
}

func runJob(ctx context.Context) error {
	logger := log.WithComponent("main")

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	go serveMetrics(metricsAddr, logger)

	store, err := storage.NewBoltStore(filepath.Join(cfg.MainWorkingDirectory, "state"))
	if err != nil {
		return fmt.Errorf("opening state store: %w", err)
	}
	defer store.Close()

	capacity := scheduler.NodeCapacity{
		MemoryBytes: cfg.ResourceLimits.MemorySize,
		CPUModel:    cfg.ResourceLimits.CPUModel,
	}
	sched, err := scheduler.New(store, capacity)
	if err != nil {
		return fmt.Errorf("starting scheduler: %w", err)
	}
	metrics.RegisterComponent("scheduler", true, "")

	reg := registry.New(store)

	bridge := client.New(cfg.Bridge)
	if err := bridge.SignIn(ctx, cfg.Bridge); err != nil {
		return fmt.Errorf("signing in to bridge: %w", err)
	}

	reportQueue := queue.New[types.Report]()
	sink := reports.NewSink(reportQueue)

	pendingQueue := queue.New[types.TaskDescriptor]()
	processingQueue := queue.New[poller.ProcessingItem]()
	processedQueue := queue.New[worker.ProcessedItem]()

	taskPoller := poller.New(bridge, reg, workerCount, cfg.WorkingSourceTrees)
	workerPool := worker.New(bridge, reg, sink, cfg.WorkingDirectory, cfg.WorkingSourceTrees)
	reportUploader := uploader.New(reportQueue, bridge)
	bus := events.NewBus()
	sup := supervisor.New(bus)
	recon := reconciler.New(sched, time.Second)

	tasks, err := loadPendingTasks(tasksDir)
	if err != nil {
		return fmt.Errorf("loading generated tasks: %w", err)
	}

	go runAdmission(ctx, recon, tasks, cfg.VTGStrategy.ResourceLimits, pendingQueue, logger)
	go drainProcessed(ctx, processedQueue, logger)

	metrics.SetVersion(rootCmd.Version)
	components := []supervisor.Component{
		{Name: "poller", Run: withHealth("poller", func(ctx context.Context) error {
			return taskPoller.Run(ctx, pendingQueue, processingQueue)
		})},
		{Name: "worker", Run: withHealth("worker", func(ctx context.Context) error {
			err := workerPool.Run(ctx, workerCount, processingQueue, processedQueue)
			processedQueue.Close(1)
			return err
		})},
	}
	uploaderComponent := supervisor.Component{Name: "uploader", Run: withHealth("uploader", reportUploader.Run)}

	drained := func() bool {
		_, ok, _ := reportQueue.TryGet()
		return !ok
	}

	if err := sup.Run(ctx, cfg.Identifier, components, uploaderComponent, drained); err != nil {
		return fmt.Errorf("pipeline run failed: %w", err)
	}

	logger.Info().Str("job_id", cfg.Identifier).Msg("job finished")
	return nil
}

// loadPendingTasks reads the task descriptors a generator has already
// placed in dir. This is the hand-off point described in spec.md §1: this
// repo does not produce these files itself.
func loadPendingTasks(dir string) ([]types.TaskDescriptor, error) {
	if dir == "" {
		return nil, nil
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var tasks []types.TaskDescriptor
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".json" {
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, e.Name()))
		if err != nil {
			return nil, err
		}
		var descriptor types.TaskDescriptor
		if err := json.Unmarshal(data, &descriptor); err != nil {
			return nil, fmt.Errorf("%s: %w", e.Name(), err)
		}
		tasks = append(tasks, descriptor)
	}
	return tasks, nil
}

// runAdmission feeds the reconciler's periodic sweep from the fixed batch
// of tasks loaded at startup, forwarding every admitted descriptor onto
// pendingQueue. It cancels its own sweep loop once every task has been
// admitted and closes pendingQueue with the single sentinel the poller
// expects.
func runAdmission(ctx context.Context, recon *reconciler.Reconciler, tasks []types.TaskDescriptor, limits types.ResourceLimits, pendingQueue *queue.Queue[types.TaskDescriptor], logger zerolog.Logger) {
	defer pendingQueue.Close(1)

	if len(tasks) == 0 {
		return
	}

	byID := make(map[string]types.TaskDescriptor, len(tasks))
	for _, t := range tasks {
		byID[t.TaskID] = t
	}

	sweepCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	source := func() ([]scheduler.Pending, []scheduler.Pending, scheduler.PriorityFunc) {
		pending := make([]scheduler.Pending, 0, len(byID))
		for _, t := range tasks {
			if _, outstanding := byID[t.TaskID]; outstanding {
				pending = append(pending, scheduler.Pending{ID: t.TaskID, Limits: limits})
			}
		}
		return pending, nil, func(string) int { return 0 }
	}

	admitted := func(taskIDs, jobIDs []string) {
		for _, id := range taskIDs {
			if descriptor, ok := byID[id]; ok {
				pendingQueue.Put(descriptor)
				delete(byID, id)
			}
		}
		if len(byID) == 0 {
			cancel()
		}
	}

	if err := recon.Run(sweepCtx, source, admitted); err != nil && !errors.Is(err, context.Canceled) {
		logger.Warn().Err(err).Msg("task admission sweep ended early")
		metrics.UpdateComponent("scheduler", false, err.Error())
	}
}

// withHealth wraps a component's Run function so the health checker
// reflects whether it is currently running, and why it stopped if it
// exited with an error.
func withHealth(name string, run func(ctx context.Context) error) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		metrics.RegisterComponent(name, true, "running")
		err := run(ctx)
		if err != nil {
			metrics.UpdateComponent(name, false, err.Error())
		} else {
			metrics.UpdateComponent(name, true, "finished")
		}
		return err
	}
}

// drainProcessed logs every solution triple the worker pool produces until
// the processed queue closes or ctx is cancelled. Persisting triples
// durably is the registry's job (pkg/worker already records each task's
// terminal state there); this loop only observes the stream for
// operational visibility.
func drainProcessed(ctx context.Context, processed *queue.Queue[worker.ProcessedItem], logger zerolog.Logger) {
	for {
		item, ok := processed.Get(ctx)
		if !ok {
			return
		}
		logger.Info().
			Str("task_id", item.Descriptor.TaskID).
			Str("status", string(item.Triple.RemoteStatus)).
			Str("termination_reason", item.Triple.TerminationReason).
			Msg("task solution recorded")
	}
}

func serveMetrics(addr string, logger zerolog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	mux.HandleFunc("/health", metrics.HealthHandler())
	mux.HandleFunc("/ready", metrics.ReadyHandler())
	mux.HandleFunc("/live", metrics.LivenessHandler())
	server := &http.Server{Addr: addr, Handler: mux}
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error().Err(err).Msg("metrics server exited")
	}
}
