// Package storage persists the two pieces of state the pipeline core
// needs to survive a restart without corrupting its invariants: the
// solution-triple registry (pkg/registry) and the admission scheduler's
// reservation map (pkg/scheduler). Everything else — jobs, tasks, reports
// — is transient and owned by the Bridge.
package storage

import "github.com/klever-verify/core/pkg/types"

// Store is the persistence interface the registry and scheduler depend on.
type Store interface {
	PutTriple(key string, triple types.SolutionTriple) error
	GetTriple(key string) (types.SolutionTriple, bool, error)
	DeleteTriple(key string) error
	ListTriples() (map[string]types.SolutionTriple, error)

	PutAdmission(rec types.AdmissionRecord) error
	DeleteAdmission(id string) error
	ListAdmissions() ([]types.AdmissionRecord, error)

	Close() error
}
