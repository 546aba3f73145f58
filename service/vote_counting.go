package service

import (
	"sort"
	"sync"

	"votex-ledger/blockchain/ledger"
	"votex-ledger/blockchain/merkle"
	"votex-ledger/encryption"
	"votex-ledger/logger"
	"votex-ledger/models"
)

// VoteCountingService tallies sealed votes. Every vote is re-checked against
// its block's Merkle root before it counts.
type VoteCountingService struct {
	ledger  *ledger.Ledger
	metrics *MetricsCollector
	log     logger.Logger

	mu     sync.RWMutex
	latest *VotingResults
}

// CandidateTally is one line of an election result.
type CandidateTally struct {
	CandidateID int64 `json:"candidate_id"`
	Votes       int   `json:"votes"`
}

type ElectionResults struct {
	ElectionID int64            `json:"election_id"`
	TotalVotes int              `json:"total_votes"`
	Candidates []CandidateTally `json:"candidates"`
}

// VotingResults is the outcome of one counting pass.
type VotingResults struct {
	TotalVotes int `json:"total_votes"`
	// ProcessedVotes counts every sealed transaction seen, including the
	// ones that were skipped.
	ProcessedVotes int               `json:"processed_votes"`
	Unverified     int               `json:"unverified"`
	Duplicates     int               `json:"duplicates"`
	ChainValid     bool              `json:"chain_valid"`
	Elections      []ElectionResults `json:"elections"`
}

// Election returns the results of one election, or nil if it had no votes.
func (r *VotingResults) Election(electionID int64) *ElectionResults {
	for i := range r.Elections {
		if r.Elections[i].ElectionID == electionID {
			return &r.Elections[i]
		}
	}
	return nil
}

// VoteVerification compares turnout against the roll size.
type VoteVerification struct {
	RegisteredVoters int  `json:"registered_voters"`
	ActualVotes      int  `json:"actual_votes"`
	CountedVotes     int  `json:"counted_votes"`
	IsValid          bool `json:"is_valid"`
}

func NewVoteCountingService(l *ledger.Ledger, metrics *MetricsCollector, log logger.Logger) *VoteCountingService {
	if metrics == nil {
		metrics = NewMetricsCollector()
	}
	if log == nil {
		log = logger.NewNoOpLogger()
	}
	return &VoteCountingService{ledger: l, metrics: metrics, log: log}
}

// CountVotes tallies every sealed vote on the chain.
func (vcs *VoteCountingService) CountVotes() (*VotingResults, error) {
	vcs.metrics.RecordCountingStart()
	defer vcs.metrics.RecordCountingEnd()

	blocks := vcs.ledger.Blocks()
	results := Tally(blocks, vcs.ledger.Hasher())

	vcs.log.Info("Votes counted",
		"total", results.TotalVotes,
		"processed", results.ProcessedVotes,
		"unverified", results.Unverified,
		"chain_valid", results.ChainValid,
	)

	vcs.mu.Lock()
	vcs.latest = results
	vcs.mu.Unlock()

	return results, nil
}

// Tally counts blocks without touching a live ledger, so it also runs over
// snapshots.
func Tally(blocks []models.Block, h encryption.Hasher) *VotingResults {
	results := &VotingResults{
		ChainValid: len(ledger.VerifyChain(blocks, h, true)) == 0,
	}

	counted := make(map[voteKey]bool)
	tallies := make(map[int64]map[int64]int)

	for _, block := range blocks {
		if len(block.Transactions) == 0 {
			continue
		}
		tree := merkle.New(h, block.Transactions)

		for i, tx := range block.Transactions {
			results.ProcessedVotes++

			if !merkle.VerifyProof(h, merkle.LeafHash(h, tx), tree.Proof(i), block.MerkleRoot) {
				results.Unverified++
				continue
			}

			key := voteKey{voterID: tx.VoterID, electionID: tx.ElectionID}
			if counted[key] {
				results.Duplicates++
				continue
			}
			counted[key] = true

			if tallies[tx.ElectionID] == nil {
				tallies[tx.ElectionID] = make(map[int64]int)
			}
			tallies[tx.ElectionID][tx.CandidateID]++
			results.TotalVotes++
		}
	}

	for electionID, candidates := range tallies {
		er := ElectionResults{ElectionID: electionID}
		for candidateID, votes := range candidates {
			er.Candidates = append(er.Candidates, CandidateTally{CandidateID: candidateID, Votes: votes})
			er.TotalVotes += votes
		}
		sort.Slice(er.Candidates, func(i, j int) bool {
			if er.Candidates[i].Votes != er.Candidates[j].Votes {
				return er.Candidates[i].Votes > er.Candidates[j].Votes
			}
			return er.Candidates[i].CandidateID < er.Candidates[j].CandidateID
		})
		results.Elections = append(results.Elections, er)
	}
	sort.Slice(results.Elections, func(i, j int) bool {
		return results.Elections[i].ElectionID < results.Elections[j].ElectionID
	})

	return results
}

// VerifyVoteCount checks that no election counted more votes than there are
// voters and that nothing was skipped.
func (vcs *VoteCountingService) VerifyVoteCount(registeredVoters int) (*VoteVerification, error) {
	results, err := vcs.GetLatestResults()
	if err != nil {
		return nil, err
	}

	isValid := results.ChainValid && results.ProcessedVotes == results.TotalVotes
	for _, election := range results.Elections {
		if election.TotalVotes > registeredVoters {
			isValid = false
		}
	}

	return &VoteVerification{
		RegisteredVoters: registeredVoters,
		ActualVotes:      results.ProcessedVotes,
		CountedVotes:     results.TotalVotes,
		IsValid:          isValid,
	}, nil
}

// GetLatestResults returns the last count, counting first if there is none.
func (vcs *VoteCountingService) GetLatestResults() (*VotingResults, error) {
	vcs.mu.RLock()
	latest := vcs.latest
	vcs.mu.RUnlock()

	if latest == nil {
		return vcs.CountVotes()
	}
	return latest, nil
}
