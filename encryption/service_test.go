package encryption

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSHA256KnownVector(t *testing.T) {
	h := NewSHA256Hasher()
	assert.Equal(t, "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855", h.HashHex(nil))
	assert.Equal(t, "ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad", h.HashHex([]byte("abc")))
}

func TestKeccak256KnownVector(t *testing.T) {
	h := NewKeccak256Hasher()
	assert.Equal(t, "c5d2460186f7233c927e7db2dcc703c0e500b653ca82273b7bfad8045d85a470", h.HashHex(nil))
}

func TestDigestConcatenates(t *testing.T) {
	for _, h := range []Hasher{NewSHA256Hasher(), NewKeccak256Hasher()} {
		assert.Equal(t, h.HashHex([]byte("ab"), []byte("cd")), h.HashHex([]byte("abcd")), h.Name())
		assert.Len(t, h.Digest([]byte("x")), DigestSize)
		assert.Len(t, h.HashHex([]byte("x")), 2*DigestSize)
	}
}

func TestNewHasher(t *testing.T) {
	h, err := NewHasher("")
	require.NoError(t, err)
	assert.Equal(t, SHA256, h.Name())

	h, err = NewHasher("Keccak256")
	require.NoError(t, err)
	assert.Equal(t, Keccak256, h.Name())

	_, err = NewHasher("md5")
	assert.Error(t, err)
}
