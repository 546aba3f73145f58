package consensus

import (
	"encoding/binary"

	"github.com/ethereum/go-ethereum/crypto"

	"votex-ledger/models"
)

// Validator is one logical voter in the quorum round. It has no network
// presence; the pool calls it directly.
type Validator struct {
	ID        uint32
	byzantine bool
	committed []models.Transaction
}

func newValidator(id uint32) *Validator {
	return &Validator{ID: id}
}

// IsByzantine reports whether the validator is currently marked faulty.
func (v *Validator) IsByzantine() bool {
	return v.byzantine
}

// evaluate is the validator's vote. Honest validators check well-formedness.
// Byzantine validators answer with a pseudo-random bit derived from
// Keccak-256(seed || canonical tx || id): stable for the same input but
// unrelated to validity. The bit carries no security meaning.
func (v *Validator) evaluate(tx models.Transaction, seed uint64, byzantine bool) bool {
	if !byzantine {
		return tx.WellFormed()
	}

	var seedBytes [8]byte
	binary.BigEndian.PutUint64(seedBytes[:], seed)
	var idBytes [4]byte
	binary.BigEndian.PutUint32(idBytes[:], v.ID)

	digest := crypto.Keccak256(seedBytes[:], tx.Canonical(), idBytes[:])
	return digest[len(digest)-1]&1 == 1
}

// commit records an accepted transaction. Byzantine validators never commit.
func (v *Validator) commit(tx models.Transaction) {
	if v.byzantine {
		return
	}
	v.committed = append(v.committed, tx)
}

func (v *Validator) clear() {
	v.byzantine = false
	v.committed = nil
}
