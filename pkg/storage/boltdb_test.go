package storage

import (
	"testing"

	"github.com/klever-verify/core/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *BoltStore {
	t.Helper()
	store, err := NewBoltStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestBoltStoreTripleRoundTrip(t *testing.T) {
	store := newTestStore(t)

	triple := types.SolutionTriple{
		RemoteStatus:      types.StatusFinished,
		Resources:         &types.ResourceUsage{MemoryBytes: 1024},
		TerminationReason: "",
	}
	require.NoError(t, store.PutTriple("frag:env:req", triple))

	got, ok, err := store.GetTriple("frag:env:req")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, triple.RemoteStatus, got.RemoteStatus)
	assert.Equal(t, triple.Resources.MemoryBytes, got.Resources.MemoryBytes)

	require.NoError(t, store.DeleteTriple("frag:env:req"))
	_, ok, err = store.GetTriple("frag:env:req")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestBoltStoreListTriples(t *testing.T) {
	store := newTestStore(t)
	require.NoError(t, store.PutTriple("a", types.SolutionTriple{RemoteStatus: types.StatusFinished}))
	require.NoError(t, store.PutTriple("b", types.SolutionTriple{RemoteStatus: types.StatusError}))

	all, err := store.ListTriples()
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestBoltStoreAdmissions(t *testing.T) {
	store := newTestStore(t)
	rec := types.AdmissionRecord{ID: "task-1", Memory: 2048, CPUs: 2, CPUModel: "x86_64"}
	require.NoError(t, store.PutAdmission(rec))

	all, err := store.ListAdmissions()
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, rec, all[0])

	require.NoError(t, store.DeleteAdmission("task-1"))
	all, err = store.ListAdmissions()
	require.NoError(t, err)
	assert.Empty(t, all)
}
