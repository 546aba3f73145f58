package models

import (
	"bytes"
	"context"
	"encoding/binary"
	"strings"
	"time"

	"github.com/pkg/errors"

	"votex-ledger/encryption"
)

// GenesisPrevHash is the previous_hash carried by block 0.
const GenesisPrevHash = "0"

// ErrNonceSpaceExhausted is returned by Mine when no nonce within the attempt
// budget satisfies the difficulty target.
var ErrNonceSpaceExhausted = errors.New("nonce space exhausted before reaching difficulty target")

type Block struct {
	Index        uint64        `json:"index"`
	Timestamp    int64         `json:"timestamp"`
	Transactions []Transaction `json:"transactions"`
	MerkleRoot   string        `json:"merkle_root"`
	PreviousHash string        `json:"previous_hash"`
	Nonce        uint64        `json:"nonce"`
	Hash         string        `json:"hash"`
}

// NewGenesisBlock builds and hashes block 0. Genesis is not mined.
func NewGenesisBlock(h encryption.Hasher) Block {
	genesis := Block{
		Index:        0,
		Timestamp:    time.Now().UnixNano(),
		Transactions: []Transaction{},
		MerkleRoot:   "",
		PreviousHash: GenesisPrevHash,
	}
	genesis.Hash = genesis.CalculateHash(h)
	return genesis
}

// Mine searches nonces from zero until the block hash has difficulty leading
// '0' hex characters, then seals the block. maxAttempts of zero means no
// bound; ctx is polled every 1024 attempts.
func (b *Block) Mine(ctx context.Context, h encryption.Hasher, difficulty int, maxAttempts uint64) error {
	target := DifficultyTarget(difficulty)
	preimage := b.preimage()

	var nonce [8]byte
	for attempt := uint64(0); maxAttempts == 0 || attempt < maxAttempts; attempt++ {
		if attempt%1024 == 0 {
			if err := ctx.Err(); err != nil {
				return err
			}
		}

		binary.BigEndian.PutUint64(nonce[:], attempt)
		hash := h.HashHex(preimage, nonce[:])
		if strings.HasPrefix(hash, target) {
			b.Nonce = attempt
			b.Hash = hash
			return nil
		}
	}

	return errors.Wrapf(ErrNonceSpaceExhausted, "difficulty %d after %d attempts", difficulty, maxAttempts)
}

// CalculateHash recomputes the block hash from every field except Hash.
func (b *Block) CalculateHash(h encryption.Hasher) string {
	var nonce [8]byte
	binary.BigEndian.PutUint64(nonce[:], b.Nonce)
	return h.HashHex(b.preimage(), nonce[:])
}

// MeetsDifficulty reports whether the stored hash satisfies the target.
func (b *Block) MeetsDifficulty(difficulty int) bool {
	return strings.HasPrefix(b.Hash, DifficultyTarget(difficulty))
}

// Clone returns a copy that shares no slices with b.
func (b Block) Clone() Block {
	txs := make([]Transaction, len(b.Transactions))
	copy(txs, b.Transactions)
	b.Transactions = txs
	return b
}

// preimage encodes every hashed field except the nonce, which always comes
// last so the mining loop can reuse this prefix.
func (b *Block) preimage() []byte {
	buf := new(bytes.Buffer)
	writeUint64(buf, b.Index)
	writeInt64(buf, b.Timestamp)
	writeUint64(buf, uint64(len(b.Transactions)))
	for _, tx := range b.Transactions {
		writeBytes(buf, tx.Canonical())
	}
	writeString(buf, b.MerkleRoot)
	writeString(buf, b.PreviousHash)
	return buf.Bytes()
}

// DifficultyTarget is the required hex prefix for a difficulty level.
func DifficultyTarget(difficulty int) string {
	if difficulty <= 0 {
		return ""
	}
	return strings.Repeat("0", difficulty)
}
