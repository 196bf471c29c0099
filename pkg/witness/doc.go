// Package witness parses a GraphML counterexample graph, normalises the
// file paths it references, and emits a trimmed error-trace with notes and
// warnings inlaid from structured comments in the referenced source files.
package witness
