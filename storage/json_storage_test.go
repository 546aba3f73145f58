package storage

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"votex-ledger/blockchain/ledger"
	"votex-ledger/models"
)

func sealedLedger(t *testing.T) *ledger.Ledger {
	t.Helper()
	l, err := ledger.New(ledger.DefaultConfig())
	require.NoError(t, err)

	txs := []models.Transaction{
		{VoterID: "V12345", ElectionID: 1, CandidateID: 101, Timestamp: models.NumericTimestamp(1700000000.123456)},
		{VoterID: "V67890", ElectionID: 1, CandidateID: 102, Timestamp: models.TextTimestamp("2025-05-01T10:00:00Z")},
		{VoterID: "V54321", ElectionID: 2, CandidateID: 203, Timestamp: models.NumericTimestamp(-0.0)},
	}
	for _, tx := range txs {
		require.True(t, l.AddTransaction(tx))
	}
	_, err = l.MineBlock(context.Background())
	require.NoError(t, err)
	return l
}

func TestSnapshotRoundTripKeepsChainValid(t *testing.T) {
	l := sealedLedger(t)
	store, err := NewJSONStore(filepath.Join(t.TempDir(), "snapshots"))
	require.NoError(t, err)

	require.NoError(t, store.SaveChain("election-day", l.Hasher().Name(), l.Blocks()))

	snap, err := store.LoadChain("election-day")
	require.NoError(t, err)
	assert.Equal(t, l.Hasher().Name(), snap.Hash)
	assert.Equal(t, l.Blocks(), snap.Blocks)
	assert.Empty(t, ledger.VerifyChain(snap.Blocks, l.Hasher(), false))

	names, err := store.List()
	require.NoError(t, err)
	assert.Equal(t, []string{"election-day"}, names)
}

func TestLoadMissingSnapshot(t *testing.T) {
	store, err := NewJSONStore(t.TempDir())
	require.NoError(t, err)

	_, err = store.LoadChain("nope")
	assert.True(t, errors.Is(err, ErrSnapshotNotFound))
}

func TestSaveChainRejectsBadNames(t *testing.T) {
	store, err := NewJSONStore(t.TempDir())
	require.NoError(t, err)

	assert.Error(t, store.SaveChain("", "sha256", nil))
	assert.Error(t, store.SaveChain("../escape", "sha256", nil))
}

func TestSaveChainOverwritesAndLeavesNoTempFile(t *testing.T) {
	dir := t.TempDir()
	store, err := NewJSONStore(dir)
	require.NoError(t, err)

	require.NoError(t, store.SaveChain("c", "sha256", nil))
	l := sealedLedger(t)
	require.NoError(t, store.SaveChain("c", "sha256", l.Blocks()))

	snap, err := store.LoadChain("c")
	require.NoError(t, err)
	assert.Len(t, snap.Blocks, 2)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "c_chain.json", entries[0].Name())
}

func TestReadSnapshotRejectsGarbage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.json")
	require.NoError(t, os.WriteFile(path, []byte("{"), 0644))

	_, err := ReadSnapshot(path)
	assert.Error(t, err)
}

func TestReadSnapshotRequiresGenesis(t *testing.T) {
	dir := t.TempDir()

	empty := filepath.Join(dir, "empty.json")
	require.NoError(t, os.WriteFile(empty, []byte("{}"), 0644))
	_, err := ReadSnapshot(empty)
	assert.True(t, errors.Is(err, ErrInvalidSnapshot))

	blocks := sealedLedger(t).Blocks()
	headless := filepath.Join(dir, "headless.json")
	require.NoError(t, WriteSnapshot(headless, Snapshot{Hash: "sha256", Blocks: blocks[1:]}))
	_, err = ReadSnapshot(headless)
	assert.True(t, errors.Is(err, ErrInvalidSnapshot))

	full := filepath.Join(dir, "full.json")
	require.NoError(t, WriteSnapshot(full, Snapshot{Hash: "sha256", Blocks: blocks}))
	snap, err := ReadSnapshot(full)
	require.NoError(t, err)
	assert.Len(t, snap.Blocks, 2)
}
