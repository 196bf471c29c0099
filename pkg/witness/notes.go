package witness

import (
	"bufio"
	"os"
	"regexp"
	"strings"
)

// noteKind is one of the structured-comment kinds a source file may carry
// (spec.md §4.5 step 2).
type noteKind string

const (
	kindModelFuncDef noteKind = "MODEL_FUNC_DEF"
	kindAssert       noteKind = "ASSERT"
	kindChangeState  noteKind = "CHANGE_STATE"
	kindReturn       noteKind = "RETURN"
	kindModelFuncCall noteKind = "MODEL_FUNC_CALL"
	kindOther        noteKind = "OTHER"
)

var commentPattern = regexp.MustCompile(`/\*\s*(MODEL_FUNC_DEF|ASSERT|CHANGE_STATE|RETURN|MODEL_FUNC_CALL|OTHER)\s+(.*?)\s*\*/`)
var funcNamePattern = regexp.MustCompile(`(ldv_\w+)`)

// fileNotes holds what scanComments found in one source file: notes keyed
// by 1-based line number, notes keyed by model-function name, and the
// lines that carry an ASSERT warning.
type fileNotes struct {
	byLine     map[int]string
	byFunction map[string]string
	asserts    map[int]string
}

// scanComments scans path line-by-line for the structured comments
// spec.md §4.5 step 2 describes. MODEL_FUNC_DEF attaches to the function
// name found on the following non-empty line; everything else attaches to
// the next source line in the same file. ASSERT additionally records a
// warning for its line.
func scanComments(path string) (*fileNotes, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	notes := &fileNotes{
		byLine:     make(map[int]string),
		byFunction: make(map[string]string),
		asserts:    make(map[int]string),
	}

	scanner := bufio.NewScanner(f)
	lineNo := 0
	var pendingKind noteKind
	var pendingText string
	for scanner.Scan() {
		lineNo++
		line := scanner.Text()

		if pendingKind != "" {
			trimmed := strings.TrimSpace(line)
			if trimmed != "" {
				switch pendingKind {
				case kindModelFuncDef:
					if m := funcNamePattern.FindString(trimmed); m != "" {
						notes.byFunction[m] = pendingText
					}
				case kindAssert:
					notes.byLine[lineNo] = pendingText
					notes.asserts[lineNo] = pendingText
				default:
					notes.byLine[lineNo] = pendingText
				}
				pendingKind = ""
				pendingText = ""
			}
			continue
		}

		if m := commentPattern.FindStringSubmatch(line); m != nil {
			pendingKind = noteKind(m[1])
			pendingText = m[2]
		}
	}
	return notes, scanner.Err()
}
