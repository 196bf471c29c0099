// Package reports builds the tagged Report variants the pipeline emits and
// sinks them onto the report-files queue C1 drains. Grounded on the report
// dictionaries klever/core/vrp/__init__.py builds before calling
// report(..., self.mqs['report files'], ...).
package reports

import (
	"strconv"
	"time"

	"github.com/klever-verify/core/pkg/queue"
	"github.com/klever-verify/core/pkg/types"
)

// Sink enqueues reports in the order components build them. Callers are
// responsible for the parent-before-child, finish-after-descendants
// ordering invariant (spec.md §3); Sink itself does no reordering, the same
// as the original's report-files message queue.
type Sink struct {
	q *queue.Queue[types.Report]
}

// NewSink wraps q as a report sink.
func NewSink(q *queue.Queue[types.Report]) *Sink {
	return &Sink{q: q}
}

// Emit enqueues a single report.
func (s *Sink) Emit(r types.Report) {
	s.q.Put(r)
}

// Close terminates the sink with one sentinel per expected consumer
// (normally one: the uploader).
func (s *Sink) Close(consumers int) {
	s.q.Close(consumers)
}

// Start builds a job- or sub-job-level "start" report.
func Start(identifier, parent string, attrs []Attr) types.Report {
	return types.Report{Kind: types.ReportStart, Identifier: identifier, Parent: parent, Attrs: toTypeAttrs(attrs)}
}

// Finish builds the closing report for a "start"/"verification" report.
// It must be enqueued after every descendant report of identifier.
func Finish(identifier string, files []types.FileRef) types.Report {
	return types.Report{Kind: types.ReportFinish, Identifier: identifier, Files: files}
}

// Patch augments a pending report with program-fragment and requirement
// attributes, plus the file-list manifest as data (spec.md §4.4 step 1).
func Patch(identifier string, attrs []Attr, fileList []string) types.Report {
	data := map[string]string{}
	if len(fileList) > 0 {
		data["file list"] = joinLines(fileList)
	}
	return types.Report{Kind: types.ReportPatch, Identifier: identifier, Attrs: toTypeAttrs(attrs), Data: data}
}

// Attrs builds a standalone attrs report.
func Attrs(identifier string, attrs []Attr) types.Report {
	return types.Report{Kind: types.ReportAttrs, Identifier: identifier, Attrs: toTypeAttrs(attrs)}
}

// Verification builds the "verification" start report for a task, carrying
// resource usage, the log file, and optional task-input archive.
func Verification(identifier, parent string, attrs []Attr, files []types.FileRef) types.Report {
	return types.Report{Kind: types.ReportVerification, Identifier: identifier, Parent: parent, Attrs: toTypeAttrs(attrs), Files: files}
}

// VerificationFinish closes a verification report, carrying the resources
// measured and termination reason if any.
func VerificationFinish(identifier string, resources *types.ResourceUsage, terminationReason string) types.Report {
	data := map[string]string{}
	if resources != nil {
		data["wall time"] = durationString(resources.WallTime)
		data["cpu time"] = durationString(resources.CPUTime)
		data["memory"] = bytesString(resources.MemoryBytes)
	}
	if terminationReason != "" {
		data["termination reason"] = terminationReason
	}
	return types.Report{Kind: types.ReportVerificationFinish, Identifier: identifier, Data: data}
}

// Safe builds a verdict=safe report.
func Safe(identifier, parent string, attrs []Attr) types.Report {
	return types.Report{Kind: types.ReportSafe, Identifier: identifier, Parent: parent, Attrs: toTypeAttrs(attrs)}
}

// Unsafe builds a verdict=unsafe report carrying the trimmed error trace.
func Unsafe(identifier, parent string, attrs []Attr, errorTrace types.FileRef) types.Report {
	return types.Report{Kind: types.ReportUnsafe, Identifier: identifier, Parent: parent, Attrs: toTypeAttrs(attrs), Files: []types.FileRef{errorTrace}}
}

// Unknown builds a verdict=unknown report carrying the problem description.
func Unknown(identifier, parent string, attrs []Attr, problem types.FileRef) types.Report {
	return types.Report{Kind: types.ReportUnknown, Identifier: identifier, Parent: parent, Attrs: toTypeAttrs(attrs), Files: []types.FileRef{problem}}
}

// Data builds a component-internal data report, used for coverage records.
func Data(identifier string, data map[string]string) types.Report {
	return types.Report{Kind: types.ReportData, Identifier: identifier, Data: data}
}

// Attr is the constructor-facing form of types.Attr (name/value only; the
// compare/associate flags of every attr built from it are left false).
type Attr struct {
	Name  string
	Value string
}

func toTypeAttrs(attrs []Attr) []types.Attr {
	out := make([]types.Attr, len(attrs))
	for i, a := range attrs {
		out[i] = types.Attr{Name: a.Name, Value: a.Value}
	}
	return out
}

func durationString(d time.Duration) string {
	return strconv.FormatFloat(d.Seconds(), 'f', -1, 64)
}

func bytesString(n int64) string {
	return strconv.FormatInt(n, 10)
}

func joinLines(lines []string) string {
	out := ""
	for i, l := range lines {
		if i > 0 {
			out += "\n"
		}
		out += l
	}
	return out
}
