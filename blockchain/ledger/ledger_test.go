package ledger

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"votex-ledger/blockchain/merkle"
	"votex-ledger/encryption"
	"votex-ledger/models"
)

func newTestLedger(t *testing.T) *Ledger {
	t.Helper()
	l, err := New(DefaultConfig())
	require.NoError(t, err)
	return l
}

func vote(voter string, election, candidate int64) models.Transaction {
	return models.Transaction{
		VoterID:     voter,
		ElectionID:  election,
		CandidateID: candidate,
		Timestamp:   models.NumericTimestamp(1700000000.25),
	}
}

// mineVotes admits n votes and seals them into one block.
func mineVotes(t *testing.T, l *Ledger, prefix string, n int) *models.Block {
	t.Helper()
	for i := 0; i < n; i++ {
		require.True(t, l.AddTransaction(vote(fmt.Sprintf("%s-%d", prefix, i), 1, 101+int64(i%3))))
	}
	block, err := l.MineBlock(context.Background())
	require.NoError(t, err)
	require.NotNil(t, block)
	return block
}

func TestGenesisInvariants(t *testing.T) {
	l := newTestLedger(t)

	require.Equal(t, 1, l.Len())
	genesis := l.GetLatestBlock()
	assert.Equal(t, uint64(0), genesis.Index)
	assert.Equal(t, "0", genesis.PreviousHash)
	assert.Empty(t, genesis.Transactions)
	assert.Equal(t, "", genesis.MerkleRoot)
	assert.Equal(t, genesis.CalculateHash(l.Hasher()), genesis.Hash)
	assert.Equal(t, "", l.GetMerkleRoot())
	assert.True(t, l.IsChainValid())
	assert.Empty(t, l.Audit())
}

func TestNewRejectsBadConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Difficulty = 65
	_, err := New(cfg)
	assert.Error(t, err)

	cfg = DefaultConfig()
	cfg.NodeCount = 0
	_, err = New(cfg)
	assert.Error(t, err)

	cfg = DefaultConfig()
	cfg.Hash = "md5"
	_, err = New(cfg)
	assert.Error(t, err)
}

func TestMineEmptyPoolIsNoOp(t *testing.T) {
	l := newTestLedger(t)

	block, err := l.MineBlock(context.Background())
	require.NoError(t, err)
	assert.Nil(t, block)
	assert.Equal(t, 1, l.Len())
}

func TestAddTransactionRejectsMalformed(t *testing.T) {
	l := newTestLedger(t)

	assert.False(t, l.AddTransaction(models.Transaction{VoterID: "V1", ElectionID: 1}))
	assert.Empty(t, l.Pending())

	block, err := l.MineBlock(context.Background())
	require.NoError(t, err)
	assert.Nil(t, block)
}

func TestMineBlockSealsPending(t *testing.T) {
	l := newTestLedger(t)
	genesis := l.GetLatestBlock()

	require.True(t, l.AddTransaction(vote("V1", 1, 101)))
	require.True(t, l.AddTransaction(vote("V2", 1, 102)))
	require.Len(t, l.Pending(), 2)

	block, err := l.MineBlock(context.Background())
	require.NoError(t, err)
	require.NotNil(t, block)

	assert.Equal(t, uint64(1), block.Index)
	assert.Equal(t, genesis.Hash, block.PreviousHash)
	assert.Len(t, block.Transactions, 2)
	assert.Equal(t, "V1", block.Transactions[0].VoterID)
	assert.True(t, block.MeetsDifficulty(1))
	assert.Equal(t, "0", block.Hash[:1])
	assert.Equal(t, block.CalculateHash(l.Hasher()), block.Hash)
	assert.Equal(t, merkle.New(l.Hasher(), block.Transactions).Root(), block.MerkleRoot)

	assert.Empty(t, l.Pending())
	assert.Equal(t, 2, l.Len())
	assert.Equal(t, block.MerkleRoot, l.GetMerkleRoot())
	assert.True(t, l.IsChainValid())
}

func TestReturnedBlockIsACopy(t *testing.T) {
	l := newTestLedger(t)
	block := mineVotes(t, l, "V", 2)

	block.Transactions[0].CandidateID = 999
	latest := l.GetLatestBlock()
	latest.Transactions[1].CandidateID = 999

	assert.True(t, l.IsChainValid())
}

func TestHigherDifficulty(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Difficulty = 3
	l, err := New(cfg)
	require.NoError(t, err)

	block := mineVotes(t, l, "V", 1)
	assert.Equal(t, "000", block.Hash[:3])
	assert.True(t, l.IsChainValid())
}

func TestMiningBoundKeepsPending(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Difficulty = 64
	cfg.MaxNonceAttempts = 50
	l, err := New(cfg)
	require.NoError(t, err)

	require.True(t, l.AddTransaction(vote("V1", 1, 101)))
	block, err := l.MineBlock(context.Background())
	assert.Nil(t, block)
	assert.True(t, errors.Is(err, ErrNonceSpaceExhausted))
	assert.Equal(t, 1, l.Len())
	assert.Len(t, l.Pending(), 1)
}

func TestMiningHonoursCancellation(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Difficulty = 64
	cfg.MaxNonceAttempts = 0
	l, err := New(cfg)
	require.NoError(t, err)

	require.True(t, l.AddTransaction(vote("V1", 1, 101)))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	block, err := l.MineBlock(ctx)
	assert.Nil(t, block)
	assert.True(t, errors.Is(err, context.Canceled))
	assert.Len(t, l.Pending(), 1)
}

func TestTamperedTransactionInvalidatesChain(t *testing.T) {
	l := newTestLedger(t)
	mineVotes(t, l, "A", 3)
	mineVotes(t, l, "B", 2)
	require.True(t, l.IsChainValid())

	l.chain[1].Transactions[1].CandidateID = 103
	assert.False(t, l.IsChainValid())

	// recomputing the root alone still leaves the block hash stale
	l.chain[1].MerkleRoot = merkle.New(l.Hasher(), l.chain[1].Transactions).Root()
	assert.False(t, l.IsChainValid())

	issues := l.Audit()
	require.NotEmpty(t, issues)
	assert.Equal(t, 1, issues[0].BlockIndex)
	assert.Equal(t, IssueHashMismatch, issues[0].Kind)
}

func TestAuditReportsEveryViolation(t *testing.T) {
	l := newTestLedger(t)
	mineVotes(t, l, "A", 3)

	l.chain[1].Transactions[0].VoterID = "MALLORY"
	issues := l.Audit()
	kinds := make([]IssueKind, 0, len(issues))
	for _, issue := range issues {
		kinds = append(kinds, issue.Kind)
	}
	assert.Contains(t, kinds, IssueHashMismatch)
	assert.Contains(t, kinds, IssueMerkleRoot)
}

func TestBrokenLinkInvalidatesChain(t *testing.T) {
	l := newTestLedger(t)
	mineVotes(t, l, "A", 1)
	mineVotes(t, l, "B", 1)
	mineVotes(t, l, "C", 1)
	require.True(t, l.IsChainValid())

	l.chain[2].PreviousHash = l.Hasher().HashHex([]byte("forged"))
	assert.False(t, l.IsChainValid())

	issues := l.Audit()
	require.NotEmpty(t, issues)
	assert.Equal(t, 2, issues[0].BlockIndex)
	assert.Equal(t, IssueBrokenLink, issues[0].Kind)
}

func TestTransactionProofs(t *testing.T) {
	l := newTestLedger(t)
	mineVotes(t, l, "A", 5)
	mineVotes(t, l, "B", 3)

	for blockIndex, n := range map[int]int{1: 5, 2: 3} {
		for txIndex := 0; txIndex < n; txIndex++ {
			bundle, err := l.GetTransactionProof(blockIndex, txIndex)
			require.NoError(t, err)
			assert.Equal(t, blockIndex, bundle.BlockIndex)
			assert.Equal(t, txIndex, bundle.TxIndex)
			assert.Equal(t, merkle.LeafHash(l.Hasher(), bundle.Transaction), bundle.LeafHash)
			assert.True(t, l.VerifyTransaction(bundle.LeafHash, bundle.MerkleProof, bundle.MerkleRoot))
			assert.True(t, bundle.Verify(l.Hasher()))
		}
	}
}

func TestTransactionProofNotFound(t *testing.T) {
	l := newTestLedger(t)
	mineVotes(t, l, "A", 2)

	for _, c := range []struct{ block, tx int }{{0, 0}, {-1, 0}, {2, 0}, {1, 2}, {1, -1}} {
		bundle, err := l.GetTransactionProof(c.block, c.tx)
		assert.Nil(t, bundle)
		assert.True(t, errors.Is(err, ErrNotFound), "block=%d tx=%d", c.block, c.tx)
	}
}

func TestVerifyTransactionNeedsNoChain(t *testing.T) {
	h := encryption.NewSHA256Hasher()
	txs := []models.Transaction{vote("V1", 1, 101), vote("V2", 1, 102), vote("V3", 1, 103)}
	tree := merkle.New(h, txs)

	l := newTestLedger(t)
	leaf, _ := tree.Leaf(2)
	assert.True(t, l.VerifyTransaction(leaf, tree.Proof(2), tree.Root()))
	assert.False(t, l.VerifyTransaction(leaf, tree.Proof(1), tree.Root()))
}

func TestByzantineValidatorsDoNotBlockWellFormedVotes(t *testing.T) {
	l := newTestLedger(t)
	assert.Equal(t, 2, l.Validators().SetByzantine(5))

	for i := 0; i < 20; i++ {
		assert.True(t, l.AddTransaction(vote(fmt.Sprintf("V%d", i), 2, 201)))
	}
	block, err := l.MineBlock(context.Background())
	require.NoError(t, err)
	assert.Len(t, block.Transactions, 20)
	assert.Len(t, l.Validators().Committed(6), 20)
	assert.Empty(t, l.Validators().Committed(0))
}

func TestKeccakLedger(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Hash = encryption.Keccak256
	l, err := New(cfg)
	require.NoError(t, err)
	assert.Equal(t, encryption.Keccak256, l.Hasher().Name())

	mineVotes(t, l, "K", 4)
	assert.True(t, l.IsChainValid())
	assert.NotEmpty(t, VerifyChain(l.Blocks(), encryption.NewSHA256Hasher(), true))
}

func TestConcurrentAdmissionAndMining(t *testing.T) {
	l := newTestLedger(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 25; i++ {
				assert.True(t, l.AddTransaction(vote(fmt.Sprintf("W%d-%d", w, i), 1, 101)))
				if i%5 == 0 {
					_, err := l.MineBlock(ctx)
					assert.NoError(t, err)
				}
			}
		}(w)
	}
	for r := 0; r < 2; r++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				assert.True(t, l.IsChainValid())
				_ = l.GetMerkleRoot()
			}
		}()
	}
	wg.Wait()

	_, err := l.MineBlock(ctx)
	require.NoError(t, err)

	total := 0
	for _, b := range l.Blocks() {
		total += len(b.Transactions)
	}
	assert.Equal(t, 100, total)
	assert.True(t, l.IsChainValid())
}
