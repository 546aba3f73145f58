package ledger

import (
	"votex-ledger/blockchain/merkle"
	"votex-ledger/encryption"
	"votex-ledger/models"
)

// IssueKind names the integrity rule a block broke.
type IssueKind string

const (
	IssueBrokenLink   IssueKind = "broken_link"
	IssueHashMismatch IssueKind = "hash_mismatch"
	IssueMerkleRoot   IssueKind = "merkle_root_mismatch"
)

// ChainIssue is one integrity violation found by VerifyChain.
type ChainIssue struct {
	BlockIndex int       `json:"block_index"`
	Kind       IssueKind `json:"kind"`
	Expected   string    `json:"expected"`
	Actual     string    `json:"actual"`
}

// VerifyChain checks every block after genesis: previous_hash links to the
// prior block hash, the stored hash matches a recomputation, and a non-empty
// block's Merkle root matches its transactions. With stopAtFirst it returns
// after the first violation.
func VerifyChain(blocks []models.Block, h encryption.Hasher, stopAtFirst bool) []ChainIssue {
	var issues []ChainIssue
	report := func(issue ChainIssue) bool {
		issues = append(issues, issue)
		return stopAtFirst
	}

	for i := 1; i < len(blocks); i++ {
		current := &blocks[i]
		previous := &blocks[i-1]

		if current.PreviousHash != previous.Hash {
			if report(ChainIssue{BlockIndex: i, Kind: IssueBrokenLink, Expected: previous.Hash, Actual: current.PreviousHash}) {
				return issues
			}
		}

		if calculated := current.CalculateHash(h); calculated != current.Hash {
			if report(ChainIssue{BlockIndex: i, Kind: IssueHashMismatch, Expected: calculated, Actual: current.Hash}) {
				return issues
			}
		}

		if len(current.Transactions) > 0 {
			if root := merkle.New(h, current.Transactions).Root(); root != current.MerkleRoot {
				if report(ChainIssue{BlockIndex: i, Kind: IssueMerkleRoot, Expected: root, Actual: current.MerkleRoot}) {
					return issues
				}
			}
		}
	}

	return issues
}
