package persistence

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ltmc-engine/pkg/types"
)

type mockStore struct {
	chunks      []types.Chunk
	shouldError bool
}

func (m *mockStore) GetAllChunks(ctx context.Context) ([]types.Chunk, error) {
	if m.shouldError {
		return nil, errors.New("mock error")
	}
	return m.chunks, nil
}

func (m *mockStore) StoreChunk(ctx context.Context, chunk *types.Chunk) error {
	if m.shouldError {
		return errors.New("mock error")
	}
	m.chunks = append(m.chunks, *chunk)
	return nil
}

func TestCreateAndRestoreBackupRoundTrips(t *testing.T) {
	dir := t.TempDir()
	store := &mockStore{chunks: []types.Chunk{
		{ID: 1, ResourceID: 10, Text: "first chunk", VectorID: 100},
		{ID: 2, ResourceID: 10, Text: "second chunk", VectorID: 101},
	}}

	bm := NewBackupManager(store, dir)

	meta, err := bm.CreateBackup(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, meta.ChunkCount)

	restoreStore := &mockStore{}
	restoreBM := NewBackupManager(restoreStore, dir)

	backupFile, ok := meta.Metadata["backup_file"].(string)
	require.True(t, ok)

	err = restoreBM.RestoreBackup(context.Background(), backupFile)
	require.NoError(t, err)
	assert.Len(t, restoreStore.chunks, 2)
}

func TestCreateBackupPropagatesStoreError(t *testing.T) {
	dir := t.TempDir()
	store := &mockStore{shouldError: true}
	bm := NewBackupManager(store, dir)

	_, err := bm.CreateBackup(context.Background())
	require.Error(t, err)
}

func TestListBackupsEmptyDirReturnsNoError(t *testing.T) {
	dir := t.TempDir()
	store := &mockStore{}
	bm := NewBackupManager(store, dir)

	backups, err := bm.ListBackups()
	require.NoError(t, err)
	assert.Empty(t, backups)
}

func TestVerifyIntegrityRejectsMissingVectorID(t *testing.T) {
	dir := t.TempDir()
	store := &mockStore{chunks: []types.Chunk{{ID: 1, Text: "no vector", VectorID: 0}}}
	bm := NewBackupManager(store, dir)

	err := bm.VerifyIntegrity(context.Background())
	require.Error(t, err)
}

func TestCleanupOldBackupsRemovesExpiredArchives(t *testing.T) {
	dir := t.TempDir()
	store := &mockStore{chunks: []types.Chunk{{ID: 1, Text: "x", VectorID: 1}}}
	bm := NewBackupManager(store, dir)
	bm.SetRetentionDays(0)

	_, err := bm.CreateBackup(context.Background())
	require.NoError(t, err)

	require.NoError(t, bm.CleanupOldBackups())

	backups, err := bm.ListBackups()
	require.NoError(t, err)
	assert.Empty(t, backups)
}
