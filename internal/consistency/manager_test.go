package consistency

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ltmc-engine/pkg/types"
)

type fakeProbe struct {
	role     types.BackendRole
	docs     map[string]types.DataVersion
	failSync bool
}

func newFakeProbe(role types.BackendRole) *fakeProbe {
	return &fakeProbe{role: role, docs: make(map[string]types.DataVersion)}
}

func (f *fakeProbe) Role() types.BackendRole { return f.role }

func (f *fakeProbe) Probe(ctx context.Context, docID string) (bool, types.DataVersion, error) {
	v, ok := f.docs[docID]
	return ok, v, nil
}

func (f *fakeProbe) Sync(ctx context.Context, docID string, source types.DataVersion, content string) error {
	if f.failSync {
		return errors.New("sync failed")
	}
	f.docs[docID] = source
	return nil
}

func TestCheckConsistencyAgreeingBackendsAreConsistent(t *testing.T) {
	primary := newFakeProbe(types.RolePrimaryTransactional)
	v := NewDataVersion("doc-1", "hello", time.Now())
	primary.docs["doc-1"] = v

	vector := newFakeProbe(types.RoleVectorSearch)
	vector.docs["doc-1"] = v

	mgr := New(primary, []BackendProbe{vector}, types.ConsistencyQuorum)
	report, err := mgr.CheckConsistency(context.Background(), "doc-1")
	require.NoError(t, err)
	assert.True(t, report.Consistent)
}

func TestCheckConsistencyDetectsMissingBackend(t *testing.T) {
	primary := newFakeProbe(types.RolePrimaryTransactional)
	v := NewDataVersion("doc-2", "hello", time.Now())
	primary.docs["doc-2"] = v

	vector := newFakeProbe(types.RoleVectorSearch) // doesn't have doc-2

	mgr := New(primary, []BackendProbe{vector}, types.ConsistencyQuorum)
	report, err := mgr.CheckConsistency(context.Background(), "doc-2")
	require.NoError(t, err)
	assert.False(t, report.Consistent)
	require.Len(t, report.Conflicts, 1)
	assert.Equal(t, "missing_entries", report.Conflicts[0].Type)
}

func TestSynchronizeDocumentAlreadyConsistentSkipsSync(t *testing.T) {
	primary := newFakeProbe(types.RolePrimaryTransactional)
	v := NewDataVersion("doc-3", "hello", time.Now())
	primary.docs["doc-3"] = v
	vector := newFakeProbe(types.RoleVectorSearch)
	vector.docs["doc-3"] = v

	mgr := New(primary, []BackendProbe{vector}, types.ConsistencyStrong)
	result, err := mgr.SynchronizeDocument(context.Background(), "doc-3", types.ResolutionLastWriteWins, "",
		func() (string, time.Time, error) { return "hello", time.Now(), nil })
	require.NoError(t, err)
	assert.Equal(t, "already_consistent", result.Status)
}

func TestSynchronizeDocumentRepairsMissingBackend(t *testing.T) {
	primary := newFakeProbe(types.RolePrimaryTransactional)
	now := time.Now()
	v := NewDataVersion("doc-4", "hello", now)
	primary.docs["doc-4"] = v
	vector := newFakeProbe(types.RoleVectorSearch)

	mgr := New(primary, []BackendProbe{vector}, types.ConsistencyStrong)
	result, err := mgr.SynchronizeDocument(context.Background(), "doc-4", types.ResolutionLastWriteWins, types.ConsistencyStrong,
		func() (string, time.Time, error) { return "hello", now, nil })
	require.NoError(t, err)
	assert.Equal(t, "success", result.Status)
	assert.Contains(t, vector.docs, "doc-4")
}

func TestSynchronizeDocumentPartialFailureUnderStrong(t *testing.T) {
	primary := newFakeProbe(types.RolePrimaryTransactional)
	now := time.Now()
	v := NewDataVersion("doc-5", "hello", now)
	primary.docs["doc-5"] = v
	vector := newFakeProbe(types.RoleVectorSearch)
	vector.failSync = true

	mgr := New(primary, []BackendProbe{vector}, types.ConsistencyStrong)
	result, err := mgr.SynchronizeDocument(context.Background(), "doc-5", types.ResolutionLastWriteWins, types.ConsistencyStrong,
		func() (string, time.Time, error) { return "hello", now, nil })
	require.NoError(t, err)
	assert.Equal(t, "partial_failure", result.Status)
}

func TestConflictReportTracksMetrics(t *testing.T) {
	primary := newFakeProbe(types.RolePrimaryTransactional)
	v := NewDataVersion("doc-6", "hello", time.Now())
	primary.docs["doc-6"] = v
	vector := newFakeProbe(types.RoleVectorSearch) // missing

	mgr := New(primary, []BackendProbe{vector}, types.ConsistencyQuorum)
	_, err := mgr.CheckConsistency(context.Background(), "doc-6")
	require.NoError(t, err)

	metrics, reports := mgr.ConflictReport()
	assert.EqualValues(t, 1, metrics.ConflictsDetected)
	assert.Len(t, reports, 1)
}
