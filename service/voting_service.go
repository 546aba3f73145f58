package service

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"votex-ledger/blockchain/consensus"
	"votex-ledger/blockchain/ledger"
	"votex-ledger/logger"
	"votex-ledger/models"
	"votex-ledger/registry"
)

var (
	ErrAlreadyVoted        = errors.New("voter has already voted in this election")
	ErrRejectedByConsensus = errors.New("vote rejected by validator consensus")
	ErrSessionClosed       = errors.New("voting session is closed")
	ErrUnknownVoter        = errors.New("voter is not registered")
	ErrUnknownCandidate    = errors.New("candidate does not stand in this election")
)

// Policy decides what happens to a vote the validators refuse.
type Policy string

const (
	// PolicyStrict returns ErrRejectedByConsensus and records nothing.
	PolicyStrict Policy = "strict"
	// PolicyPermissive logs the rejection, records the vote locally and
	// still mines whatever is pending. The vote itself never reaches a block.
	PolicyPermissive Policy = "permissive"
)

// ParsePolicy maps a config string to a Policy. Empty means strict.
func ParsePolicy(s string) (Policy, error) {
	switch Policy(strings.ToLower(s)) {
	case "", PolicyStrict:
		return PolicyStrict, nil
	case PolicyPermissive:
		return PolicyPermissive, nil
	default:
		return "", errors.Errorf("unknown policy %q", s)
	}
}

// Receipt is handed back for every recorded vote.
type Receipt struct {
	ID          uuid.UUID          `json:"id"`
	Transaction models.Transaction `json:"transaction"`
	Decision    consensus.Decision `json:"decision"`
	Accepted    bool               `json:"accepted"`
}

// VoteRecord is one recorded vote and where it landed on the chain.
// BlockIndex is -1 until the vote is sealed; only sealed votes have a proof.
type VoteRecord struct {
	ReceiptID   uuid.UUID          `json:"receipt_id"`
	Transaction models.Transaction `json:"transaction"`
	Accepted    bool               `json:"accepted"`
	BlockIndex  int                `json:"block_index"`
	TxIndex     int                `json:"tx_index"`
	BlockHash   string             `json:"block_hash,omitempty"`
	HasProof    bool               `json:"has_proof"`
}

type voteKey struct {
	voterID    string
	electionID int64
}

type Options struct {
	Policy  Policy
	Session *VotingSession
	Metrics *MetricsCollector
	Logger  logger.Logger
	// Now stamps new transactions; defaults to time.Now.
	Now func() time.Time
}

// VotingService turns (voter, election, candidate) choices into ledger
// transactions and owns the per-election double-vote guard.
type VotingService struct {
	ledger    *ledger.Ledger
	directory registry.Directory
	policy    Policy
	session   *VotingSession
	metrics   *MetricsCollector
	log       logger.Logger
	now       func() time.Time

	mu      sync.RWMutex
	voted   map[voteKey]int
	records []VoteRecord
}

func NewVotingService(l *ledger.Ledger, directory registry.Directory, opts Options) *VotingService {
	if opts.Policy == "" {
		opts.Policy = PolicyStrict
	}
	if opts.Metrics == nil {
		opts.Metrics = NewMetricsCollector()
	}
	if opts.Logger == nil {
		opts.Logger = logger.NewNoOpLogger()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	return &VotingService{
		ledger:    l,
		directory: directory,
		policy:    opts.Policy,
		session:   opts.Session,
		metrics:   opts.Metrics,
		log:       opts.Logger,
		now:       opts.Now,
		voted:     make(map[voteKey]int),
	}
}

func (vs *VotingService) Ledger() *ledger.Ledger {
	return vs.ledger
}

func (vs *VotingService) Metrics() *MetricsCollector {
	return vs.metrics
}

func (vs *VotingService) Policy() Policy {
	return vs.policy
}

// CastVote validates the choice against the registry, runs the quorum round
// and records the vote. Sealing is left to Seal or the queue.
func (vs *VotingService) CastVote(voterID string, electionID, candidateID int64) (*Receipt, error) {
	if vs.session != nil && !vs.session.IsActive() {
		return nil, ErrSessionClosed
	}
	if vs.directory != nil {
		if !vs.directory.VoterExists(voterID) {
			return nil, errors.Wrapf(ErrUnknownVoter, "voter %s", voterID)
		}
		if !vs.directory.CandidateInElection(electionID, candidateID) {
			return nil, errors.Wrapf(ErrUnknownCandidate, "candidate %d in election %d", candidateID, electionID)
		}
	}

	key := voteKey{voterID: voterID, electionID: electionID}

	// guard check and admission are one critical section
	vs.mu.Lock()
	defer vs.mu.Unlock()

	if _, exists := vs.voted[key]; exists {
		return nil, errors.Wrapf(ErrAlreadyVoted, "voter %s in election %d", voterID, electionID)
	}

	tx := models.Transaction{
		VoterID:     voterID,
		ElectionID:  electionID,
		CandidateID: candidateID,
		Timestamp:   models.TimestampFromTime(vs.now()),
	}

	started := time.Now()
	decision := vs.ledger.Admit(tx)
	vs.metrics.RecordAdmission(decision.Accepted(), time.Since(started))

	if !decision.Accepted() {
		if vs.policy == PolicyStrict {
			return nil, errors.Wrapf(ErrRejectedByConsensus, "round %s: %d/%d true votes",
				decision.RoundID, decision.TrueVotes, decision.Quorum)
		}
		vs.log.Warn("Recording vote rejected by consensus",
			"voter_id", voterID,
			"election_id", electionID,
			"outcome", string(decision.Outcome),
		)
	}

	receipt := &Receipt{
		ID:          uuid.New(),
		Transaction: tx,
		Decision:    decision,
		Accepted:    decision.Accepted(),
	}

	vs.voted[key] = len(vs.records)
	vs.records = append(vs.records, VoteRecord{
		ReceiptID:   receipt.ID,
		Transaction: tx,
		Accepted:    receipt.Accepted,
		BlockIndex:  -1,
		TxIndex:     -1,
	})

	vs.log.Debug("Vote recorded", "receipt", receipt.ID.String(), "voter_id", voterID, "accepted", receipt.Accepted)
	return receipt, nil
}

// RecordVote is CastVote followed by an immediate Seal. Under the permissive
// policy a rejected vote still triggers mining of whatever else is pending.
func (vs *VotingService) RecordVote(ctx context.Context, voterID string, electionID, candidateID int64) (*Receipt, *models.Block, error) {
	receipt, err := vs.CastVote(voterID, electionID, candidateID)
	if err != nil {
		return nil, nil, err
	}

	block, err := vs.Seal(ctx)
	if err != nil {
		return receipt, nil, err
	}
	return receipt, block, nil
}

// Seal mines the pending pool. A nil block means nothing was pending.
func (vs *VotingService) Seal(ctx context.Context) (*models.Block, error) {
	started := time.Now()
	block, err := vs.ledger.MineBlock(ctx)
	elapsed := time.Since(started)
	if err != nil {
		vs.metrics.RecordMiningFailure(elapsed)
		return nil, err
	}
	if block == nil {
		return nil, nil
	}

	vs.metrics.RecordBlock(len(block.Transactions), block.Nonce, elapsed)
	return block, nil
}

// HasVoted reports whether voterID already has a recorded vote in electionID.
func (vs *VotingService) HasVoted(voterID string, electionID int64) bool {
	vs.mu.RLock()
	defer vs.mu.RUnlock()

	_, exists := vs.voted[voteKey{voterID: voterID, electionID: electionID}]
	return exists
}

// Votes lists every recorded vote in submission order, resolved against the
// current chain.
func (vs *VotingService) Votes() []VoteRecord {
	blocks := vs.ledger.Blocks()

	type location struct {
		block int
		tx    int
		hash  string
	}
	sealed := make(map[voteKey]location)
	for bi, block := range blocks {
		for ti, tx := range block.Transactions {
			sealed[voteKey{voterID: tx.VoterID, electionID: tx.ElectionID}] = location{block: bi, tx: ti, hash: block.Hash}
		}
	}

	vs.mu.RLock()
	defer vs.mu.RUnlock()

	out := make([]VoteRecord, len(vs.records))
	for i, record := range vs.records {
		key := voteKey{voterID: record.Transaction.VoterID, electionID: record.Transaction.ElectionID}
		if loc, ok := sealed[key]; ok && record.Accepted {
			record.BlockIndex = loc.block
			record.TxIndex = loc.tx
			record.BlockHash = loc.hash
			record.HasProof = true
		}
		out[i] = record
	}
	return out
}

// Proof returns the inclusion proof of a sealed vote.
func (vs *VotingService) Proof(voterID string, electionID int64) (*ledger.ProofBundle, error) {
	for _, record := range vs.Votes() {
		if record.Transaction.VoterID != voterID || record.Transaction.ElectionID != electionID {
			continue
		}
		if !record.HasProof {
			return nil, errors.Wrapf(ledger.ErrNotFound, "vote of %s in election %d is not sealed", voterID, electionID)
		}
		return vs.ledger.GetTransactionProof(record.BlockIndex, record.TxIndex)
	}
	return nil, errors.Wrapf(ledger.ErrNotFound, "no vote of %s in election %d", voterID, electionID)
}

// MerkleRoot is the Merkle root of the latest block.
func (vs *VotingService) MerkleRoot() string {
	return vs.ledger.GetMerkleRoot()
}

func (vs *VotingService) ChainValid() bool {
	return vs.ledger.IsChainValid()
}

// SimulateByzantine marks up to count validators faulty and returns how many
// were marked.
func (vs *VotingService) SimulateByzantine(count int) int {
	n := vs.ledger.Validators().SetByzantine(count)
	vs.log.Info("Byzantine validators simulated", "requested", count, "marked", n)
	return n
}

func (vs *VotingService) ResetValidators() {
	vs.ledger.Validators().Reset()
}
