package worker

import (
	"archive/zip"
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/klever-verify/core/pkg/client"
	"github.com/klever-verify/core/pkg/poller"
	"github.com/klever-verify/core/pkg/queue"
	"github.com/klever-verify/core/pkg/registry"
	"github.com/klever-verify/core/pkg/reports"
	"github.com/klever-verify/core/pkg/storage"
	"github.com/klever-verify/core/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const safeBenchExecXML = `<?xml version="1.0"?>
<result>
  <run>
    <column title="status" value="true"/>
    <column title="walltime" value="1.5"/>
    <column title="cputime" value="1.0"/>
    <column title="memUsage" value="1048576"/>
  </run>
</result>`

const unsafeBenchExecXML = `<?xml version="1.0"?>
<result>
  <run>
    <column title="status" value="false (reach_error)"/>
  </run>
</result>`

const sampleWitness = `<?xml version="1.0"?>
<graphml>
  <graph>
    <node id="n0"><data key="entry">true</data></node>
    <node id="n1"><data key="violation">true</data></node>
    <edge source="n0" target="n1"/>
  </graph>
</graphml>`

func zipWith(t *testing.T, files map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	w := zip.NewWriter(&buf)
	for name, content := range files {
		f, err := w.Create(name)
		require.NoError(t, err)
		_, err = f.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())
	return buf.Bytes()
}

func newTestPool(t *testing.T, decisionArchive []byte) (*Pool, *queue.Queue[types.Report], *storage.BoltStore) {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/jobs/downloaddecision/", func(w http.ResponseWriter, r *http.Request) {
		w.Write(decisionArchive)
	})
	mux.HandleFunc("/jobs/get_task_error/", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("verifier crashed"))
	})
	srv := httptest.NewTLSServer(mux)
	t.Cleanup(srv.Close)

	bridge := client.New(types.BridgeConfig{Host: "bridge.local"}, client.WithBaseURL(srv.URL), client.WithHTTPClient(srv.Client()))

	store, err := storage.NewBoltStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	reg := registry.New(store)

	reportQueue := queue.New[types.Report]()
	sink := reports.NewSink(reportQueue)

	pool := New(bridge, reg, sink, t.TempDir(), nil)
	return pool, reportQueue, store
}

func descriptorFor(taskID string, opts types.TaskOptions) types.TaskDescriptor {
	return types.TaskDescriptor{
		TaskID:   taskID,
		Spec:     types.RequirementSpec{ID: "req-1"},
		Fragment: types.ProgramFragment{ID: "frag-1"},
		Verifier: "CPAchecker",
		Options:  opts,
	}
}

func drainReports(q *queue.Queue[types.Report], n int) []types.Report {
	var out []types.Report
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	for i := 0; i < n; i++ {
		r, ok := q.Get(ctx)
		if !ok {
			break
		}
		out = append(out, r)
	}
	return out
}

func TestProcessSafeVerdictEmitsSafeReport(t *testing.T) {
	archive := zipWith(t, map[string]string{"output/run.results.xml": safeBenchExecXML})
	pool, reportQueue, _ := newTestPool(t, archive)

	descriptor := descriptorFor("task-1", types.TaskOptions{})
	triple, err := pool.processElement(context.Background(), poller.ProcessingItem{Status: types.StatusFinished, Descriptor: descriptor})
	require.NoError(t, err)

	assert.Equal(t, types.StatusFinished, triple.RemoteStatus)
	require.NotNil(t, triple.Resources)
	assert.Equal(t, int64(1048576), triple.Resources.MemoryBytes)

	reportQueue.Close(1)
	found := drainReports(reportQueue, 10)
	var kinds []types.ReportKind
	for _, r := range found {
		kinds = append(kinds, r.Kind)
	}
	assert.Contains(t, kinds, types.ReportSafe)
	assert.Contains(t, kinds, types.ReportVerificationFinish)
}

func TestProcessErrorStatusMarksNonVerifierUnknown(t *testing.T) {
	pool, reportQueue, _ := newTestPool(t, nil)
	descriptor := descriptorFor("task-2", types.TaskOptions{})
	triple, err := pool.processElement(context.Background(), poller.ProcessingItem{Status: types.StatusError, Descriptor: descriptor})

	assert.Equal(t, types.StatusError, triple.RemoteStatus)
	assert.Equal(t, "verifier crashed", triple.TerminationReason)

	var taskErr *types.RemoteTaskError
	require.ErrorAs(t, err, &taskErr)
	assert.Equal(t, "task-2", taskErr.TaskID)
	assert.Equal(t, "verifier crashed", taskErr.Text)

	reportQueue.Close(1)
	found := drainReports(reportQueue, 10)
	var kinds []types.ReportKind
	for _, r := range found {
		kinds = append(kinds, r.Kind)
	}
	assert.Contains(t, kinds, types.ReportPatch)
	assert.Contains(t, kinds, types.ReportUnknown)
}

func TestProcessUnsafeSingleWitnessBuildsErrorTrace(t *testing.T) {
	archive := zipWith(t, map[string]string{
		"output/run.results.xml":    unsafeBenchExecXML,
		"output/witness.0.graphml":  sampleWitness,
	})
	pool, reportQueue, _ := newTestPool(t, archive)

	descriptor := descriptorFor("task-3", types.TaskOptions{ExpectSeveralWitnesses: false})
	triple, err := pool.processElement(context.Background(), poller.ProcessingItem{Status: types.StatusFinished, Descriptor: descriptor})
	require.NoError(t, err)

	assert.Equal(t, types.StatusFinished, triple.RemoteStatus)

	reportQueue.Close(1)
	found := drainReports(reportQueue, 10)
	var kinds []types.ReportKind
	for _, r := range found {
		kinds = append(kinds, r.Kind)
	}
	assert.Contains(t, kinds, types.ReportUnsafe)
}

func TestRunDrainsUntilSentinelAndEmitsProcessed(t *testing.T) {
	archive := zipWith(t, map[string]string{"output/run.results.xml": safeBenchExecXML})
	pool, _, _ := newTestPool(t, archive)

	processing := queue.New[ProcessingItem]()
	processed := queue.New[ProcessedItem]()

	processing.Put(ProcessingItem{Status: types.StatusFinished, Descriptor: descriptorFor("task-4", types.TaskOptions{})})
	processing.Close(1)

	done := make(chan error, 1)
	go func() { done <- pool.Run(context.Background(), 1, processing, processed) }()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	item, ok := processed.Get(ctx)
	require.True(t, ok)
	assert.Equal(t, "task-4", item.Descriptor.TaskID)

	require.NoError(t, <-done)
}

func TestRunPropagatesRemoteTaskErrorAfterRecordingTriple(t *testing.T) {
	pool, _, _ := newTestPool(t, nil)

	processing := queue.New[ProcessingItem]()
	processed := queue.New[ProcessedItem]()

	processing.Put(ProcessingItem{Status: types.StatusError, Descriptor: descriptorFor("task-5", types.TaskOptions{})})
	processing.Close(1)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	err := pool.Run(ctx, 1, processing, processed)
	var taskErr *types.RemoteTaskError
	require.ErrorAs(t, err, &taskErr)
	assert.Equal(t, "task-5", taskErr.TaskID)

	item, ok := processed.Get(ctx)
	require.True(t, ok)
	assert.Equal(t, "task-5", item.Descriptor.TaskID)
	assert.Equal(t, types.StatusError, item.Triple.RemoteStatus)
}
