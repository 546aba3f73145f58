// Package merkle builds binary hash trees over ordered vote transactions and
// produces and checks inclusion proofs against their roots.
//
// An odd node at any level is paired with itself. As a consequence the tree
// does not bind its own shape: a list with a duplicated tail transaction can
// produce the same root as the list without it. Roots are only meaningful
// together with the transaction count recorded in the block.
package merkle

import (
	"votex-ledger/encryption"
	"votex-ledger/models"
)

// EmptyTreeSeed is hashed to produce the root of a tree with no leaves.
const EmptyTreeSeed = "empty_tree"

// Position tells which side of the running hash a proof sibling sits on.
type Position int

const (
	SiblingRight Position = 0
	SiblingLeft  Position = 1
)

func (p Position) String() string {
	if p == SiblingLeft {
		return "left"
	}
	return "right"
}

// ProofStep is one level of an inclusion proof.
type ProofStep struct {
	Position Position `json:"position"`
	Hash     string   `json:"hash"`
}

// Tree is immutable once built. levels[0] holds the leaves and the last level
// holds only the root.
type Tree struct {
	hasher encryption.Hasher
	leaves int
	levels [][]string
}

// New builds the tree over txs in order.
func New(h encryption.Hasher, txs []models.Transaction) *Tree {
	leaves := make([]string, len(txs))
	for i, tx := range txs {
		leaves[i] = LeafHash(h, tx)
	}
	return FromLeaves(h, leaves)
}

// FromLeaves builds the tree over precomputed leaf hashes. The slice is
// copied.
func FromLeaves(h encryption.Hasher, leaves []string) *Tree {
	t := &Tree{hasher: h, leaves: len(leaves)}
	if len(leaves) == 0 {
		t.levels = [][]string{{h.HashHex([]byte(EmptyTreeSeed))}}
		return t
	}

	level := make([]string, len(leaves))
	copy(level, leaves)
	t.levels = append(t.levels, level)

	for len(level) > 1 {
		next := make([]string, 0, (len(level)+1)/2)
		for i := 0; i < len(level); i += 2 {
			left := level[i]
			right := left
			if i+1 < len(level) {
				right = level[i+1]
			}
			next = append(next, hashPair(h, left, right))
		}
		t.levels = append(t.levels, next)
		level = next
	}

	return t
}

// LeafHash is the level-0 hash of a single transaction.
func LeafHash(h encryption.Hasher, tx models.Transaction) string {
	return h.HashHex(tx.Canonical())
}

// Root returns the single top-level hash, or the empty-tree sentinel.
func (t *Tree) Root() string {
	top := t.levels[len(t.levels)-1]
	return top[0]
}

// Len is the number of leaves.
func (t *Tree) Len() int {
	return t.leaves
}

// Depth is the number of levels including leaves and root.
func (t *Tree) Depth() int {
	return len(t.levels)
}

// Leaf returns the leaf hash at index.
func (t *Tree) Leaf(index int) (string, bool) {
	if index < 0 || index >= t.leaves {
		return "", false
	}
	return t.levels[0][index], true
}

// Level returns a copy of one level of the tree.
func (t *Tree) Level(i int) []string {
	if i < 0 || i >= len(t.levels) {
		return nil
	}
	out := make([]string, len(t.levels[i]))
	copy(out, t.levels[i])
	return out
}

// Proof returns the sibling path from the leaf at index up to the root, or
// nil when index is out of range.
func (t *Tree) Proof(index int) []ProofStep {
	if index < 0 || index >= t.leaves {
		return nil
	}

	proof := make([]ProofStep, 0, len(t.levels)-1)
	for depth := 0; depth < len(t.levels)-1; depth++ {
		level := t.levels[depth]

		var step ProofStep
		if index%2 == 0 {
			sibling := index + 1
			switch {
			case sibling < len(level):
				step = ProofStep{Position: SiblingRight, Hash: level[sibling]}
			case sibling == len(level):
				// unpaired tail, hashed with itself during construction
				step = ProofStep{Position: SiblingRight, Hash: level[index]}
			default:
				index /= 2
				continue
			}
		} else {
			step = ProofStep{Position: SiblingLeft, Hash: level[index-1]}
		}

		proof = append(proof, step)
		index /= 2
	}

	return proof
}

// VerifyProof folds proof over leaf and compares the result with root. It
// needs no tree instance.
func VerifyProof(h encryption.Hasher, leaf string, proof []ProofStep, root string) bool {
	current := leaf
	for _, step := range proof {
		if step.Position == SiblingRight {
			current = hashPair(h, current, step.Hash)
		} else {
			current = hashPair(h, step.Hash, current)
		}
	}
	return current == root
}

// hashPair hashes the concatenated hex text of two nodes.
func hashPair(h encryption.Hasher, left, right string) string {
	return h.HashHex([]byte(left), []byte(right))
}
