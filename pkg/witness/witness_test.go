package witness

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/klever-verify/core/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleGraphML = `<?xml version="1.0"?>
<graphml>
  <key id="d0" attr.name="originfile"/>
  <key id="d1" attr.name="startline"/>
  <key id="d2" attr.name="entry"/>
  <key id="d3" attr.name="violation"/>
  <graph edgedefault="directed">
    <node id="n0"><data key="d2">true</data></node>
    <node id="n1"></node>
    <node id="n2"><data key="d3">true</data></node>
    <edge source="n0" target="n1">
      <data key="d0">main.c</data>
      <data key="d1">3</data>
    </edge>
    <edge source="n1" target="n2">
      <data key="d0">main.c</data>
      <data key="d1">10</data>
    </edge>
  </graph>
</graphml>`

func writeGraphML(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "witness.graphml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestParseGraphMLFindsEntryAndViolation(t *testing.T) {
	path := writeGraphML(t, sampleGraphML)
	graph, err := ParseGraphML(path)
	require.NoError(t, err)
	assert.Equal(t, "n0", graph.EntryID)
	assert.Equal(t, "n2", graph.ViolationID)
	assert.Len(t, graph.Nodes, 3)
	assert.Len(t, graph.Edges, 2)
}

func TestParseGraphMLMissingEntryFails(t *testing.T) {
	content := `<graphml><graph><node id="n0"/></graph></graphml>`
	path := writeGraphML(t, content)
	_, err := ParseGraphML(path)
	require.Error(t, err)
	var parseErr *types.WitnessParseError
	assert.ErrorAs(t, err, &parseErr)
}

func TestParseGraphMLUnresolvedEdgeFails(t *testing.T) {
	content := `<graphml><graph>
    <node id="n0"><data key="d2">true</data></node>
    <edge source="n0" target="ghost"/>
  </graph></graphml>`
	path := writeGraphML(t, content)
	_, err := ParseGraphML(path)
	require.Error(t, err)
}

func TestScanCommentsAttachesAssertAndModelFuncDef(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "main.c")
	content := "int main() {\n/* ASSERT bad state */\n    do_something();\n    return 0;\n}\n" +
		"/* MODEL_FUNC_DEF allocator */\nint ldv_malloc(int size) {\n  return 0;\n}\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	notes, err := scanComments(path)
	require.NoError(t, err)
	assert.Equal(t, "bad state", notes.byLine[3])
	assert.Equal(t, "bad state", notes.asserts[3])
	assert.Equal(t, "allocator", notes.byFunction["ldv_malloc"])
}

func TestBuildComputesViolationPathAndTrimsFiles(t *testing.T) {
	graphPath := writeGraphML(t, sampleGraphML)
	graph, err := ParseGraphML(graphPath)
	require.NoError(t, err)

	trace, err := Build(graph, nil)
	require.NoError(t, err)

	assert.Equal(t, "n0", trace.Entry)
	assert.Equal(t, "n2", trace.Violation)
	require.Len(t, trace.Edges, 2)
	assert.True(t, trace.Edges[0].OnPath)
	assert.True(t, trace.Edges[1].OnPath)
	require.GreaterOrEqual(t, trace.Edges[0].FileIndex, 0)
	assert.Equal(t, "main.c", trace.Files[trace.Edges[0].FileIndex])
}

func TestTrimFileNameUsesSourceTree(t *testing.T) {
	root := t.TempDir()
	file := filepath.Join(root, "src", "main.c")
	got := trimFileName(file, []string{root})
	assert.Equal(t, filepath.Join("src", "main.c"), got)
}

// TestTrimFileNameIsIdempotent covers invariant 7: running an already-
// trimmed, source-tree-relative path back through trimFileName must return
// it unchanged rather than falling through to the generated-models
// fallback.
func TestTrimFileNameIsIdempotent(t *testing.T) {
	root := t.TempDir()
	file := filepath.Join(root, "src", "main.c")
	once := trimFileName(file, []string{root})
	twice := trimFileName(once, []string{root})
	assert.Equal(t, once, twice)
}

// TestTrimFileNameFindsSpecificationsSegment exercises the multi-segment
// "specifications/..." branch, which filepath.SplitList (a PATH-separator
// splitter) could never match.
func TestTrimFileNameFindsSpecificationsSegment(t *testing.T) {
	file := filepath.Join(string(filepath.Separator), "var", "lib", "klever", "specifications", "linux", "alloc.c")
	got := trimFileName(file, nil)
	assert.Equal(t, filepath.Join("specifications", "linux", "alloc.c"), got)
}
