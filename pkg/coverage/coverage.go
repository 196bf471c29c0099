// Package coverage implements the Coverage Assembler (C8): it turns a
// verifier's LCOV-format coverage blob into a per-file summary the worker
// pool attaches to a task's verification report. Coverage is always
// best-effort (spec.md §4.4's closing paragraph): callers decide whether a
// *types.CoverageError here should survive or be swallowed.
//
// The original klever.core.coverage.LCOV implementation was not retrieved
// in original_source/ (only klever/core/vrp/__init__.py imports it), so
// this is a from-spec implementation of the LCOV tracefile format rather
// than a port. LCOV has no package in the retrieved corpus; bufio reads the
// tracefile line by line and encoding/json writes the summary (see
// DESIGN.md).
package coverage

import (
	"bufio"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/klever-verify/core/pkg/types"
)

// FileSummary is one source file's coverage as parsed from an LCOV
// tracefile: the hit count for each line that carries a DA: record, plus
// the totals LCOV itself reports (LF/LH).
type FileSummary struct {
	Path       string      `json:"path"`
	LinesTotal int         `json:"lines_total"`
	LinesHit   int         `json:"lines_hit"`
	Lines      map[int]int `json:"lines"`
}

// Summary is the full per-file breakdown of one LCOV tracefile.
type Summary struct {
	Files []FileSummary `json:"files"`
}

// Parse reads an LCOV tracefile (SF:/DA:.../end_of_record records) from r.
func Parse(r io.Reader) (*Summary, error) {
	summary := &Summary{}
	var current *FileSummary

	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		switch {
		case strings.HasPrefix(line, "SF:"):
			summary.Files = append(summary.Files, FileSummary{
				Path:  strings.TrimPrefix(line, "SF:"),
				Lines: make(map[int]int),
			})
			current = &summary.Files[len(summary.Files)-1]
		case strings.HasPrefix(line, "DA:"):
			if current == nil {
				continue
			}
			fields := strings.SplitN(strings.TrimPrefix(line, "DA:"), ",", 2)
			if len(fields) != 2 {
				continue
			}
			lineNo, err := strconv.Atoi(fields[0])
			if err != nil {
				continue
			}
			hits, err := strconv.Atoi(fields[1])
			if err != nil {
				continue
			}
			current.Lines[lineNo] = hits
		case strings.HasPrefix(line, "LF:"):
			if current != nil {
				current.LinesTotal, _ = strconv.Atoi(strings.TrimPrefix(line, "LF:"))
			}
		case strings.HasPrefix(line, "LH:"):
			if current != nil {
				current.LinesHit, _ = strconv.Atoi(strings.TrimPrefix(line, "LH:"))
			}
		case line == "end_of_record":
			current = nil
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return summary, nil
}

// Assemble parses the LCOV tracefile at lcovPath and writes a JSON summary
// into outputDir/coverage.json, returning the written file's path for the
// caller to attach as a report archive member. CoverageNone means the
// caller should not have invoked Assemble in the first place, so it is
// treated as a no-op returning "". Every other detail level produces the
// same line-level summary; condition-level records are not assembled.
func Assemble(lcovPath, outputDir string, detail types.CoverageDetail) (string, error) {
	if detail == types.CoverageNone {
		return "", nil
	}

	f, err := os.Open(lcovPath)
	if err != nil {
		return "", &types.CoverageError{Source: lcovPath, Err: err}
	}
	defer f.Close()

	summary, err := Parse(f)
	if err != nil {
		return "", &types.CoverageError{Source: lcovPath, Err: err}
	}

	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return "", &types.CoverageError{Source: lcovPath, Err: err}
	}

	out := filepath.Join(outputDir, "coverage.json")
	data, err := json.Marshal(summary)
	if err != nil {
		return "", &types.CoverageError{Source: lcovPath, Err: err}
	}
	if err := os.WriteFile(out, data, 0o644); err != nil {
		return "", &types.CoverageError{Source: lcovPath, Err: err}
	}
	return out, nil
}
