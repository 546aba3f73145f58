package encryption

import (
	"crypto/sha256"
	"encoding/hex"
	"hash"
	"strings"

	"github.com/pkg/errors"
	"golang.org/x/crypto/sha3"
)

const (
	SHA256    = "sha256"
	Keccak256 = "keccak256"

	// DigestSize is the length in bytes of every supported digest.
	DigestSize = 32
)

// Hasher produces the 256-bit digests used for transaction leaves, Merkle
// nodes and block hashes.
type Hasher interface {
	Name() string
	Digest(data ...[]byte) []byte
	HashHex(data ...[]byte) string
}

type digestHasher struct {
	name string
	new  func() hash.Hash
}

// NewSHA256Hasher returns the default ledger hasher.
func NewSHA256Hasher() Hasher {
	return &digestHasher{name: SHA256, new: sha256.New}
}

// NewKeccak256Hasher returns a hasher over legacy Keccak-256, the variant
// used by Ethereum.
func NewKeccak256Hasher() Hasher {
	return &digestHasher{name: Keccak256, new: sha3.NewLegacyKeccak256}
}

// NewHasher resolves a hasher by its configured name. An empty name selects
// SHA-256.
func NewHasher(name string) (Hasher, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", SHA256:
		return NewSHA256Hasher(), nil
	case Keccak256, "keccak":
		return NewKeccak256Hasher(), nil
	default:
		return nil, errors.Errorf("unsupported hash algorithm %q", name)
	}
}

func (h *digestHasher) Name() string {
	return h.name
}

// Digest hashes the concatenation of data.
func (h *digestHasher) Digest(data ...[]byte) []byte {
	d := h.new()
	for _, b := range data {
		d.Write(b)
	}
	return d.Sum(nil)
}

// HashHex is Digest rendered as lowercase hex.
func (h *digestHasher) HashHex(data ...[]byte) string {
	return hex.EncodeToString(h.Digest(data...))
}
