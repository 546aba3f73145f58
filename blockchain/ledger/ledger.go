package ledger

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"

	"votex-ledger/blockchain/consensus"
	"votex-ledger/blockchain/merkle"
	"votex-ledger/encryption"
	"votex-ledger/logger"
	"votex-ledger/models"
)

const (
	DefaultDifficulty       = 1
	DefaultMaxNonceAttempts = 10_000_000
)

// ErrNonceSpaceExhausted is returned by MineBlock when the attempt budget
// runs out before the difficulty target is met.
var ErrNonceSpaceExhausted = models.ErrNonceSpaceExhausted

// Config is the construction-time configuration of a Ledger.
type Config struct {
	NodeCount        int    `yaml:"node_count"`
	Difficulty       int    `yaml:"difficulty"`
	MaxNonceAttempts uint64 `yaml:"max_nonce_attempts"`
	Hash             string `yaml:"hash"`
	ByzantineSeed    uint64 `yaml:"byzantine_seed"`
}

// DefaultConfig returns seven validators, one leading zero and SHA-256.
func DefaultConfig() Config {
	return Config{
		NodeCount:        consensus.DefaultNodeCount,
		Difficulty:       DefaultDifficulty,
		MaxNonceAttempts: DefaultMaxNonceAttempts,
		Hash:             encryption.SHA256,
	}
}

type Option func(*Ledger)

// WithLogger sets the ledger and validator pool logger.
func WithLogger(l logger.Logger) Option {
	return func(lg *Ledger) { lg.log = l }
}

// WithHasher overrides the hasher selected by Config.Hash.
func WithHasher(h encryption.Hasher) Option {
	return func(lg *Ledger) { lg.hasher = h }
}

// Ledger owns the block chain and the pending pool. AddTransaction and
// MineBlock are serialized by mutex; queries run under the read lock and
// return copies, so a block is either fully appended or invisible.
type Ledger struct {
	cfg     Config
	hasher  encryption.Hasher
	log     logger.Logger
	pool    *consensus.Pool
	mutex   sync.RWMutex
	chain   []models.Block
	pending []models.Transaction
}

// New builds a ledger holding only the genesis block.
func New(cfg Config, opts ...Option) (*Ledger, error) {
	if cfg.Difficulty < 0 || cfg.Difficulty > 2*encryption.DigestSize {
		return nil, errors.Errorf("difficulty %d out of range [0, %d]", cfg.Difficulty, 2*encryption.DigestSize)
	}
	if cfg.NodeCount < 1 {
		return nil, errors.Errorf("node count must be positive, got %d", cfg.NodeCount)
	}

	l := &Ledger{cfg: cfg}
	for _, opt := range opts {
		opt(l)
	}

	if l.log == nil {
		l.log = logger.NewNoOpLogger()
	}
	if l.hasher == nil {
		h, err := encryption.NewHasher(cfg.Hash)
		if err != nil {
			return nil, errors.Wrap(err, "failed to create ledger hasher")
		}
		l.hasher = h
	}

	l.pool = consensus.NewPool(cfg.NodeCount, cfg.ByzantineSeed, l.log)
	l.chain = []models.Block{models.NewGenesisBlock(l.hasher)}
	l.pending = make([]models.Transaction, 0)

	l.log.Info("Ledger initialized",
		"nodes", l.pool.Size(),
		"tolerance", l.pool.Tolerance(),
		"difficulty", cfg.Difficulty,
		"hash", l.hasher.Name(),
		"genesis", l.chain[0].Hash,
	)

	return l, nil
}

// Hasher returns the hasher used for leaves, nodes and block hashes.
func (l *Ledger) Hasher() encryption.Hasher {
	return l.hasher
}

// Validators exposes the pool for operator actions (SetByzantine, Reset).
func (l *Ledger) Validators() *consensus.Pool {
	return l.pool
}

// Difficulty is the number of leading zero hex characters a sealed block
// hash carries.
func (l *Ledger) Difficulty() int {
	return l.cfg.Difficulty
}

// AddTransaction puts tx through a quorum round and queues it for the next
// block on acceptance.
func (l *Ledger) AddTransaction(tx models.Transaction) bool {
	return l.Admit(tx).Accepted()
}

// Admit is AddTransaction returning the full round decision.
func (l *Ledger) Admit(tx models.Transaction) consensus.Decision {
	l.mutex.Lock()
	defer l.mutex.Unlock()

	decision := l.pool.Vote(tx)
	if !decision.Accepted() {
		l.log.Warn("Transaction rejected by consensus",
			"voter_id", tx.VoterID,
			"election_id", tx.ElectionID,
			"outcome", string(decision.Outcome),
			"true_votes", decision.TrueVotes,
			"false_votes", decision.FalseVotes,
		)
		return decision
	}

	l.pending = append(l.pending, tx)
	l.log.Debug("Transaction admitted", "voter_id", tx.VoterID, "pending", len(l.pending))
	return decision
}

// MineBlock seals all pending transactions into a new block. It returns a nil
// block and nil error when nothing is pending. On any error the chain and the
// pending pool are left unchanged.
func (l *Ledger) MineBlock(ctx context.Context) (*models.Block, error) {
	l.mutex.Lock()
	defer l.mutex.Unlock()

	if len(l.pending) == 0 {
		return nil, nil
	}

	txs := make([]models.Transaction, len(l.pending))
	copy(txs, l.pending)

	latest := l.chain[len(l.chain)-1]
	block := models.Block{
		Index:        latest.Index + 1,
		Timestamp:    time.Now().UnixNano(),
		Transactions: txs,
		MerkleRoot:   merkle.New(l.hasher, txs).Root(),
		PreviousHash: latest.Hash,
	}

	started := time.Now()
	if err := block.Mine(ctx, l.hasher, l.cfg.Difficulty, l.cfg.MaxNonceAttempts); err != nil {
		l.log.Error("Mining failed", "index", block.Index, "pending", len(txs), "error", err)
		return nil, errors.Wrapf(err, "failed to mine block %d", block.Index)
	}

	l.chain = append(l.chain, block)
	l.pending = make([]models.Transaction, 0)

	l.log.Info("Block sealed",
		"index", block.Index,
		"transactions", len(block.Transactions),
		"nonce", block.Nonce,
		"hash", block.Hash,
		"elapsed", time.Since(started),
	)

	sealed := block.Clone()
	return &sealed, nil
}

// IsChainValid walks the whole chain; any broken link, hash or Merkle root
// makes it false.
func (l *Ledger) IsChainValid() bool {
	l.mutex.RLock()
	defer l.mutex.RUnlock()

	issues := VerifyChain(l.chain, l.hasher, true)
	if len(issues) > 0 {
		l.log.Warn("Chain integrity check failed", "block", issues[0].BlockIndex, "kind", string(issues[0].Kind))
		return false
	}
	return true
}

// Audit is the diagnostic form of IsChainValid: the same rules, every
// violation reported with its block.
func (l *Ledger) Audit() []ChainIssue {
	l.mutex.RLock()
	defer l.mutex.RUnlock()

	return VerifyChain(l.chain, l.hasher, false)
}

// GetMerkleRoot returns the Merkle root of the latest block, empty while only
// genesis exists.
func (l *Ledger) GetMerkleRoot() string {
	l.mutex.RLock()
	defer l.mutex.RUnlock()

	return l.chain[len(l.chain)-1].MerkleRoot
}

// GetLatestBlock returns a copy of the chain tip.
func (l *Ledger) GetLatestBlock() models.Block {
	l.mutex.RLock()
	defer l.mutex.RUnlock()

	return l.chain[len(l.chain)-1].Clone()
}

// Blocks returns a deep copy of the chain.
func (l *Ledger) Blocks() []models.Block {
	l.mutex.RLock()
	defer l.mutex.RUnlock()

	out := make([]models.Block, len(l.chain))
	for i, b := range l.chain {
		out[i] = b.Clone()
	}
	return out
}

// Len is the number of blocks including genesis.
func (l *Ledger) Len() int {
	l.mutex.RLock()
	defer l.mutex.RUnlock()

	return len(l.chain)
}

// Pending returns a copy of the transactions waiting for the next block.
func (l *Ledger) Pending() []models.Transaction {
	l.mutex.RLock()
	defer l.mutex.RUnlock()

	out := make([]models.Transaction, len(l.pending))
	copy(out, l.pending)
	return out
}

// GetTransactionProof builds the inclusion proof of one sealed transaction.
// Errors wrap ErrNotFound.
func (l *Ledger) GetTransactionProof(blockIndex, txIndex int) (*ProofBundle, error) {
	l.mutex.RLock()
	defer l.mutex.RUnlock()

	return ProofFor(l.chain, l.hasher, blockIndex, txIndex)
}

// VerifyTransaction checks a proof without touching the chain.
func (l *Ledger) VerifyTransaction(leafHash string, proof []merkle.ProofStep, root string) bool {
	return merkle.VerifyProof(l.hasher, leafHash, proof, root)
}
