// Package security wires the teacher's AEAD/session-key primitives
// (internal/crypto) into the transfer roles: a role given a ChunkCipher
// sends chunk bytes sealed under a session key derived once per upload
// (the per-file Encrypted flag is not consulted), while the Merkle tree
// (and its proofs) stays over the
// plaintext chunks so content addressing is unaffected by whether a
// given transfer happens to be encrypted.
package security

import (
	"encoding/binary"
	"fmt"

	"github.com/quantarax/wiretransport/internal/crypto"
)

// ChunkCipher seals and opens chunk payloads for one upload/download
// session, under the session keys derived for that session's Merkle
// root (see EstablishSessionKeys).
type ChunkCipher struct {
	keys *crypto.SessionKeys
}

// NewChunkCipher wraps already-derived session keys.
func NewChunkCipher(keys *crypto.SessionKeys) *ChunkCipher {
	return &ChunkCipher{keys: keys}
}

// EstablishSessionKeys derives a ChunkCipher's keys via X25519 ECDH plus
// HKDF, salted with the transfer's Merkle root (manifestHash) so keys
// never carry over between files, per the teacher's
// internal/crypto.DeriveSessionKeys (internal/crypto/session.go).
func EstablishSessionKeys(ourPrivate, theirPublic *[32]byte, merkleRoot []byte) (*ChunkCipher, error) {
	keys, err := crypto.DeriveSessionKeys(ourPrivate, theirPublic, merkleRoot)
	if err != nil {
		return nil, err
	}
	return NewChunkCipher(keys), nil
}

func chunkAAD(index uint64) []byte {
	aad := make([]byte, 8)
	binary.BigEndian.PutUint64(aad, index)
	return aad
}

// Encrypt seals plaintext for chunk index, binding the index as AAD so a
// ciphertext cannot be replayed under a different index.
func (c *ChunkCipher) Encrypt(index uint64, plaintext []byte) ([]byte, error) {
	nonce := crypto.DeriveChunkNonce(c.keys.IVBase, uint32(index))
	ct, err := crypto.Seal(c.keys.PayloadKey[:], nonce[:], chunkAAD(index), plaintext)
	if err != nil {
		return nil, fmt.Errorf("security: encrypt chunk %d: %w", index, err)
	}
	return ct, nil
}

// Decrypt opens ciphertext for chunk index, returning the plaintext the
// Merkle proof was built against.
func (c *ChunkCipher) Decrypt(index uint64, ciphertext []byte) ([]byte, error) {
	nonce := crypto.DeriveChunkNonce(c.keys.IVBase, uint32(index))
	pt, err := crypto.Open(c.keys.PayloadKey[:], nonce[:], chunkAAD(index), ciphertext)
	if err != nil {
		return nil, fmt.Errorf("security: decrypt chunk %d: %w", index, err)
	}
	return pt, nil
}
