// Package types holds the data model shared by every pipeline component:
// jobs, tasks, reports, witnesses, and the error taxonomy they raise.
package types

import (
	"fmt"
	"time"
)

// Verdict is the final classification of a verification task.
type Verdict string

const (
	VerdictSafe               Verdict = "safe"
	VerdictUnsafe              Verdict = "unsafe"
	VerdictUnknown             Verdict = "unknown"
	VerdictNonVerifierUnknown  Verdict = "non-verifier unknown"
)

// RemoteStatus mirrors the status vocabulary of the Bridge task-status API.
type RemoteStatus string

const (
	StatusPending    RemoteStatus = "PENDING"
	StatusProcessing RemoteStatus = "PROCESSING"
	StatusFinished   RemoteStatus = "FINISHED"
	StatusError      RemoteStatus = "ERROR"
)

// CoverageDetail selects how much code coverage detail a task should collect.
type CoverageDetail string

const (
	CoverageNone       CoverageDetail = "None"
	CoverageLines      CoverageDetail = "lines"
	CoverageConditions CoverageDetail = "conditions"
)

// Job is the top-level unit submitted to the pipeline. It owns an ordered
// list of sub-jobs; sub-jobs share no mutable state with one another.
type Job struct {
	ID      string
	Class   JobClass
	Config  *Config
	SubJobs []*Job
}

// JobClass selects which component chain processes a job.
type JobClass string

const (
	JobClassVerification JobClass = "verification"
	JobClassValidation   JobClass = "validation"
)

// ProgramFragment is an opaque artifact key plus its file manifest.
type ProgramFragment struct {
	ID       string
	FileList []string
}

// RequirementSpec is a correctness property that parameterises a task.
type RequirementSpec struct {
	ID       string
	EnvModel map[string]string
	Class    string
}

// TaskDescriptor is the generator's output, owned by the poller until it
// completes or errors, then handed once to the worker pool.
type TaskDescriptor struct {
	TaskID            string
	Spec              RequirementSpec
	Options           TaskOptions
	Fragment          ProgramFragment
	Verifier          string
	AdditionalSources string
	TaskFiles         []string
}

// TaskOptions carries the per-task behavioral switches the worker pool reads
// when interpreting a decision (spec.md §4.4).
type TaskOptions struct {
	ExpectSeveralWitnesses bool
	CodeCoverageDetails    CoverageDetail
}

// ResourceUsage is the resource triple reported in a decision archive.
type ResourceUsage struct {
	WallTime    time.Duration
	CPUTime     time.Duration
	MemoryBytes int64
}

// SolutionTriple is the per-(fragment,env,requirement) shared record
// written by the poller and filled in by the worker that owns the key.
type SolutionTriple struct {
	RemoteStatus      RemoteStatus
	Resources         *ResourceUsage
	TerminationReason string
}

// Key returns the solution-triple registry key for a task descriptor.
func (t TaskDescriptor) Key() string {
	env := ""
	for k, v := range t.Spec.EnvModel {
		env = k + "=" + v
	}
	return fmt.Sprintf("%s:%s:%s", t.Fragment.ID, env, t.Spec.ID)
}

// AdmissionRecord is the scheduler's per-identifier reservation.
type AdmissionRecord struct {
	ID       string
	Memory   int64
	CPUs     int
	CPUModel string
}

// ReportKind tags the variant of a Report.
type ReportKind string

const (
	ReportStart              ReportKind = "start"
	ReportFinish             ReportKind = "finish"
	ReportPatch              ReportKind = "patch"
	ReportAttrs              ReportKind = "attrs"
	ReportVerification       ReportKind = "verification"
	ReportVerificationFinish ReportKind = "verification finish"
	ReportSafe               ReportKind = "safe"
	ReportUnsafe             ReportKind = "unsafe"
	ReportUnknown            ReportKind = "unknown"
	ReportData               ReportKind = "data"
)

// Attr is a free-form name/value pair attached to a report.
type Attr struct {
	Name      string
	Value     string
	Compare   bool
	Associate bool
}

// FileRef names a file on disk and the member name it should take inside an
// uploaded archive (mirrors the original's ArchiveFiles helper).
type FileRef struct {
	Path    string
	ArcName string
}

// Report is a tagged variant of the report kinds the pipeline emits. A
// parent start/verification report must be enqueued before any child, and
// the parent's closing report after all descendants (spec.md §3 invariant).
type Report struct {
	Kind       ReportKind
	Identifier string
	Parent     string
	Attrs      []Attr
	Files      []FileRef
	Data       map[string]string
}
