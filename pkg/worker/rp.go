package worker

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"

	"github.com/google/uuid"
	"github.com/klever-verify/core/pkg/coverage"
	"github.com/klever-verify/core/pkg/metrics"
	"github.com/klever-verify/core/pkg/reports"
	"github.com/klever-verify/core/pkg/types"
	"github.com/klever-verify/core/pkg/witness"
)

var (
	statusTruePattern  = regexp.MustCompile(`true`)
	statusFalsePattern = regexp.MustCompile(`false`)
)

// processElement runs the single-element RP algorithm (spec.md §4.4) for
// one finished or errored task and returns the triple to persist plus any
// error that must propagate upward once the triple has been recorded and
// emitted (spec.md §4.4 step 2, scenario S4).
func (p *Pool) processElement(ctx context.Context, item ProcessingItem) (types.SolutionTriple, error) {
	descriptor := item.Descriptor
	identifier := descriptor.TaskID

	p.reportsSink.Emit(reports.Patch(identifier, taskAttrs(descriptor), descriptor.TaskFiles))

	switch item.Status {
	case types.StatusError:
		return p.processError(ctx, identifier, descriptor)
	case types.StatusFinished:
		return p.processFinished(ctx, identifier, descriptor, p.sourcePathsFor(item)), nil
	default:
		return types.SolutionTriple{RemoteStatus: item.Status}, nil
	}
}

// sourcePathsFor resolves the source trees a task's witnesses should be
// trimmed against: the poller's per-item source_paths (spec.md §4.3)
// override the pool's own configured default when present.
func (p *Pool) sourcePathsFor(item ProcessingItem) []string {
	if len(item.SourcePaths) > 0 {
		return item.SourcePaths
	}
	return p.sourceTrees
}

// processError fetches the remote error text for a task the Bridge marked
// ERROR, emits an unknown report carrying that text as the problem
// description, and returns the non-verifier-unknown triple alongside a
// *types.RemoteTaskError for the caller to propagate after recording the
// triple (spec.md §4.4 step 2, scenario S4).
func (p *Pool) processError(ctx context.Context, identifier string, descriptor types.TaskDescriptor) (types.SolutionTriple, error) {
	text, err := p.bridge.GetTaskError(ctx, descriptor.TaskID)
	if err != nil {
		p.logger.Warn().Err(err).Str("task_id", descriptor.TaskID).Msg("could not fetch remote task error text")
		text = err.Error()
	}
	metrics.VerdictsTotal.WithLabelValues(string(types.VerdictNonVerifierUnknown)).Inc()

	destDir := filepath.Join(p.workDir, sanitizeForPath(identifier))
	if desc, descErr := writeProblemDescription(destDir, text); descErr != nil {
		p.logger.Warn().Err(descErr).Str("task_id", descriptor.TaskID).Msg("failed to write problem description for remote task error")
	} else {
		p.reportsSink.Emit(reports.Unknown(identifier+"/", identifier, nil, *desc))
	}

	triple := types.SolutionTriple{RemoteStatus: types.StatusError, TerminationReason: text}
	return triple, &types.RemoteTaskError{TaskID: descriptor.TaskID, Text: text}
}

// processFinished downloads and interprets a finished task's decision
// archive (spec.md §4.4 step 3). The verification-finish closing report is
// always emitted, even when an earlier step fails.
func (p *Pool) processFinished(ctx context.Context, identifier string, descriptor types.TaskDescriptor, sourceTrees []string) types.SolutionTriple {
	verificationID := identifier + "/verification"
	destDir := filepath.Join(p.workDir, sanitizeForPath(identifier))

	var resources *types.ResourceUsage
	var terminationReason string
	var firstErr error

	defer func() {
		p.reportsSink.Emit(reports.VerificationFinish(verificationID, resources, terminationReason))
	}()

	files, err := p.bridge.DownloadDecision(ctx, descriptor.TaskID, destDir)
	if err != nil {
		return types.SolutionTriple{RemoteStatus: types.StatusFinished, TerminationReason: err.Error()}
	}

	reportPath, err := findBenchExecReport(destDir)
	if err != nil {
		return types.SolutionTriple{RemoteStatus: types.StatusFinished, TerminationReason: err.Error()}
	}
	result, err := parseBenchExecResult(reportPath)
	if err != nil {
		return types.SolutionTriple{RemoteStatus: types.StatusFinished, TerminationReason: err.Error()}
	}
	resources = result.resources()

	verificationAttrs := append(taskAttrs(descriptor), reports.Attr{
		Name:  "original sources",
		Value: originalSourcesFingerprint(descriptor),
	})
	p.reportsSink.Emit(reports.Verification(verificationID, identifier, verificationAttrs, logFiles(destDir, files)))

	verdict, termination, err := p.dispatchVerdict(verificationID, destDir, descriptor, result.Status, sourceTrees)
	terminationReason = termination
	if err != nil {
		firstErr = err
	}

	if descriptor.Options.CodeCoverageDetails != types.CoverageNone {
		if covErr := p.assembleCoverage(verificationID, destDir, descriptor.Options.CodeCoverageDetails); covErr != nil {
			metrics.CoverageAssembledTotal.WithLabelValues("failed").Inc()
			if verdict != types.VerdictUnknown {
				firstErr = covErr
			}
		} else {
			metrics.CoverageAssembledTotal.WithLabelValues("ok").Inc()
		}
	}

	metrics.VerdictsTotal.WithLabelValues(string(verdict)).Inc()

	triple := types.SolutionTriple{RemoteStatus: types.StatusFinished, Resources: resources, TerminationReason: termination}
	if firstErr != nil {
		triple.TerminationReason = firstErr.Error()
	}
	return triple
}

// dispatchVerdict implements spec.md §4.4 step 3.d: it interprets the
// BenchExec status column, emits the safe/unsafe/unknown report, and
// returns the verdict reached plus an optional termination reason.
func (p *Pool) dispatchVerdict(verificationID, destDir string, descriptor types.TaskDescriptor, status string, sourceTrees []string) (types.Verdict, string, error) {
	switch {
	case statusTruePattern.MatchString(status):
		p.reportsSink.Emit(reports.Safe(verificationID+"/", verificationID, nil))
		return types.VerdictSafe, "", nil

	case statusFalsePattern.MatchString(status):
		return p.dispatchUnsafe(verificationID, destDir, descriptor, sourceTrees)

	case status == "OUT OF MEMORY", status == "TIMEOUT":
		desc, err := writeProblemDescription(destDir, terminationMessage(status))
		if err != nil {
			return types.VerdictUnknown, status, err
		}
		p.reportsSink.Emit(reports.Unknown(verificationID+"/", verificationID, nil, *desc))
		return types.VerdictUnknown, status, nil

	default:
		desc := &types.FileRef{Path: filepath.Join(destDir, "output", "verifier.log"), ArcName: "problem desc.txt"}
		p.reportsSink.Emit(reports.Unknown(verificationID+"/", verificationID, nil, *desc))
		return types.VerdictUnknown, "", nil
	}
}

// dispatchUnsafe handles the "false" branch: single or multiple witnesses,
// each routed through the witness post-processor (spec.md §4.4 step 3.d).
func (p *Pool) dispatchUnsafe(verificationID, destDir string, descriptor types.TaskDescriptor, sourceTrees []string) (types.Verdict, string, error) {
	witnesses, _ := filepath.Glob(filepath.Join(destDir, "output", "witness.*.graphml"))
	sort.Strings(witnesses)

	verdict := types.VerdictUnsafe
	var firstErr error

	if descriptor.Options.ExpectSeveralWitnesses {
		if len(witnesses) == 0 {
			return types.VerdictNonVerifierUnknown, "", fmt.Errorf("verifier reported false without violation witnesses")
		}
		for i, w := range witnesses {
			if err := p.reportWitness(verificationID, fmt.Sprintf("%d", i+1), destDir, w, sourceTrees); err != nil {
				p.logger.Warn().Err(err).Str("witness", w).Msg("failed to process a witness")
				verdict = types.VerdictNonVerifierUnknown
				if firstErr == nil {
					firstErr = err
				}
			}
		}
		return verdict, "", firstErr
	}

	if len(witnesses) != 1 {
		return types.VerdictNonVerifierUnknown, "", fmt.Errorf("expected exactly one witness, found %d", len(witnesses))
	}
	if err := p.reportWitness(verificationID, "", destDir, witnesses[0], sourceTrees); err != nil {
		return types.VerdictNonVerifierUnknown, "", err
	}
	return verdict, "", nil
}

func (p *Pool) reportWitness(verificationID, ordinal, destDir, witnessPath string, sourceTrees []string) error {
	graph, err := witness.ParseGraphML(witnessPath)
	if err != nil {
		metrics.WitnessesProcessedTotal.WithLabelValues("failed").Inc()
		return err
	}
	trace, err := witness.Build(graph, sourceTrees)
	if err != nil {
		metrics.WitnessesProcessedTotal.WithLabelValues("failed").Inc()
		return err
	}

	traceFile, err := writeErrorTrace(destDir, ordinal, trace)
	if err != nil {
		metrics.WitnessesProcessedTotal.WithLabelValues("failed").Inc()
		return err
	}

	identifier := verificationID + "/" + ordinal
	if ordinal == "" {
		identifier = verificationID + "/"
	}
	p.reportsSink.Emit(reports.Unsafe(identifier, verificationID, nil, *traceFile))
	metrics.WitnessesProcessedTotal.WithLabelValues("ok").Inc()
	return nil
}

func (p *Pool) assembleCoverage(verificationID, destDir string, detail types.CoverageDetail) error {
	patterns := []string{"coverage.info"}
	if witnesses, _ := filepath.Glob(filepath.Join(destDir, "output", "witness.*.graphml")); len(witnesses) == 1 {
		patterns = []string{"Counterexample.*.additionalCoverage.info", "coverage.info"}
	}
	var matches []string
	for _, pattern := range patterns {
		found, err := filepath.Glob(filepath.Join(destDir, "output", pattern))
		if err != nil {
			return &types.CoverageError{Source: destDir, Err: err}
		}
		if len(found) > 0 {
			matches = found
			break
		}
	}
	if len(matches) == 0 {
		return nil
	}
	outPath, err := coverage.Assemble(matches[0], filepath.Join(destDir, "coverage"), detail)
	if err != nil {
		return err
	}
	if outPath == "" {
		return nil
	}
	p.reportsSink.Emit(reports.Data(verificationID, map[string]string{"coverage": outPath}))
	return nil
}

func taskAttrs(descriptor types.TaskDescriptor) []reports.Attr {
	attrs := []reports.Attr{
		{Name: "Program fragment", Value: descriptor.Fragment.ID},
		{Name: "Requirements specification", Value: descriptor.Spec.ID},
		{Name: "Verifier", Value: descriptor.Verifier},
	}
	for k, v := range descriptor.Spec.EnvModel {
		attrs = append(attrs, reports.Attr{Name: k, Value: v})
	}
	return attrs
}

// originalSourcesFingerprint identifies the program fragment's source
// snapshot as a build-base UUID plus a 12-hex prefix of the fragment's
// metadata checksum (spec.md §4.4 step 3.c). The build-base UUID is
// generated fresh per task rather than reused across a job's tasks, since
// no shared build-base identity is threaded through TaskDescriptor.
func originalSourcesFingerprint(descriptor types.TaskDescriptor) string {
	sum := sha256.Sum256([]byte(descriptor.Fragment.ID))
	return uuid.New().String() + "-" + hex.EncodeToString(sum[:])[:12]
}

func logFiles(destDir string, extracted []string) []types.FileRef {
	var out []types.FileRef
	for _, f := range extracted {
		if filepath.Base(f) == "verifier.log" {
			out = append(out, types.FileRef{Path: f, ArcName: "log.txt"})
		}
	}
	return out
}

func terminationMessage(status string) string {
	if status == "OUT OF MEMORY" {
		return "memory exhausted"
	}
	return "CPU time exhausted"
}

func writeProblemDescription(destDir, message string) (*types.FileRef, error) {
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return nil, err
	}
	path := filepath.Join(destDir, "problem desc.txt")
	if err := os.WriteFile(path, []byte(message), 0o644); err != nil {
		return nil, err
	}
	return &types.FileRef{Path: path, ArcName: "problem desc.txt"}, nil
}

func sanitizeForPath(id string) string {
	out := make([]rune, 0, len(id))
	for _, r := range id {
		if r == '/' || r == '\\' {
			out = append(out, '-')
			continue
		}
		out = append(out, r)
	}
	return string(out)
}
