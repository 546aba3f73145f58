package ledger

import (
	"github.com/pkg/errors"

	"votex-ledger/blockchain/merkle"
	"votex-ledger/encryption"
	"votex-ledger/models"
)

// ErrNotFound is wrapped by every lookup miss.
var ErrNotFound = errors.New("not found")

// ProofBundle carries everything a light client needs to check that a
// transaction is part of a block.
type ProofBundle struct {
	Transaction models.Transaction `json:"transaction"`
	LeafHash    string             `json:"leaf_hash"`
	MerkleProof []merkle.ProofStep `json:"merkle_proof"`
	MerkleRoot  string             `json:"merkle_root"`
	BlockIndex  int                `json:"block_index"`
	TxIndex     int                `json:"tx_index"`
}

// Verify checks the bundle against its own root.
func (b *ProofBundle) Verify(h encryption.Hasher) bool {
	return merkle.VerifyProof(h, b.LeafHash, b.MerkleProof, b.MerkleRoot)
}

// ProofFor builds the inclusion proof of blocks[blockIndex].Transactions[txIndex].
// Genesis has no transactions and is always rejected. The root returned is
// the one stored in the block.
func ProofFor(blocks []models.Block, h encryption.Hasher, blockIndex, txIndex int) (*ProofBundle, error) {
	if blockIndex <= 0 || blockIndex >= len(blocks) {
		return nil, errors.Wrapf(ErrNotFound, "block %d", blockIndex)
	}

	block := blocks[blockIndex]
	if txIndex < 0 || txIndex >= len(block.Transactions) {
		return nil, errors.Wrapf(ErrNotFound, "transaction %d in block %d", txIndex, blockIndex)
	}

	tree := merkle.New(h, block.Transactions)
	leaf, _ := tree.Leaf(txIndex)

	return &ProofBundle{
		Transaction: block.Transactions[txIndex],
		LeafHash:    leaf,
		MerkleProof: tree.Proof(txIndex),
		MerkleRoot:  block.MerkleRoot,
		BlockIndex:  blockIndex,
		TxIndex:     txIndex,
	}, nil
}
