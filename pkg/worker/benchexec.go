package worker

import (
	"encoding/xml"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/klever-verify/core/pkg/types"
)

// benchExecResult is the subset of a BenchExec *.results.xml report the
// worker pool reads: the single run's status and measured resources.
// Grounded on klever/core/vrp/__init__.py's process_single_verdict, which
// walks the same ElementTree structure column by column.
type benchExecResult struct {
	Status      string
	WallTime    time.Duration
	CPUTime     time.Duration
	MemoryBytes int64
}

type benchExecDocument struct {
	XMLName xml.Name       `xml:"result"`
	Runs    []benchExecRun `xml:"run"`
}

type benchExecRun struct {
	Columns []benchExecColumn `xml:"column"`
}

type benchExecColumn struct {
	Title string `xml:"title,attr"`
	Value string `xml:"value,attr"`
}

// findBenchExecReport locates the single *.results.xml BenchExec report
// under dir. Exactly one is expected; anything else is a fatal mismatch
// (spec.md §4.4 step 3.b).
func findBenchExecReport(dir string) (string, error) {
	matches, err := filepath.Glob(filepath.Join(dir, "output", "*.results.xml"))
	if err != nil {
		return "", err
	}
	if len(matches) != 1 {
		return "", fmt.Errorf("expected exactly one BenchExec report file, found %d", len(matches))
	}
	return matches[0], nil
}

// parseBenchExecResult reads path and extracts the status and resource
// columns of its single run.
func parseBenchExecResult(path string) (*benchExecResult, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var doc benchExecDocument
	if err := xml.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	if len(doc.Runs) == 0 {
		return nil, fmt.Errorf("BenchExec report %s has no run element", path)
	}

	result := &benchExecResult{}
	for _, col := range doc.Runs[0].Columns {
		switch col.Title {
		case "status":
			result.Status = col.Value
		case "walltime":
			if seconds, err := strconv.ParseFloat(col.Value, 64); err == nil {
				result.WallTime = time.Duration(seconds * float64(time.Second))
			}
		case "cputime":
			if seconds, err := strconv.ParseFloat(col.Value, 64); err == nil {
				result.CPUTime = time.Duration(seconds * float64(time.Second))
			}
		case "memUsage":
			if bytesUsed, err := strconv.ParseInt(col.Value, 10, 64); err == nil {
				result.MemoryBytes = bytesUsed
			}
		}
	}

	if result.Status == "" {
		return nil, fmt.Errorf("no solution status in BenchExec report %s", path)
	}
	return result, nil
}

func (r *benchExecResult) resources() *types.ResourceUsage {
	return &types.ResourceUsage{WallTime: r.WallTime, CPUTime: r.CPUTime, MemoryBytes: r.MemoryBytes}
}
