package security

import (
	"bytes"
	"crypto/ed25519"
	"encoding/json"
	"fmt"
	"time"
)

// VerificationStatus is the outcome of recomputing a transfer's Merkle
// root from its assembled chunks and comparing it against the root the
// uploader declared up front.
type VerificationStatus int

const (
	VerificationSuccess VerificationStatus = iota + 1
	VerificationRootMismatch
)

func (s VerificationStatus) String() string {
	switch s {
	case VerificationSuccess:
		return "SUCCESS"
	case VerificationRootMismatch:
		return "ROOT_MISMATCH"
	default:
		return "UNKNOWN"
	}
}

// VerificationReceipt is an optionally Ed25519-signed attestation that a
// completed upload's assembled content hashes to the root it declared,
// grounded on the teacher's daemon/manager.VerificationResult — adapted
// from a per-session identifier to the content id this module addresses
// transfers by.
type VerificationReceipt struct {
	ContentID       string
	Status          VerificationStatus
	ComputedRoot    []byte
	ExpectedRoot    []byte
	Timestamp       time.Time
	Signature       []byte `json:",omitempty"`
	SigningKey      []byte `json:",omitempty"`
}

// canonicalJSON is the exact byte sequence a receipt's signature covers.
// Timestamp is truncated to Unix seconds so re-marshaling the same
// receipt for verification reproduces this deterministically.
func canonicalJSON(r *VerificationReceipt) ([]byte, error) {
	return json.Marshal(map[string]any{
		"content_id":    r.ContentID,
		"status":        r.Status.String(),
		"computed_root": r.ComputedRoot,
		"expected_root": r.ExpectedRoot,
		"timestamp":     r.Timestamp.Unix(),
	})
}

// NewVerificationReceipt compares computed against expected and builds
// the (unsigned) receipt.
func NewVerificationReceipt(contentID string, computed, expected []byte) *VerificationReceipt {
	status := VerificationRootMismatch
	if bytes.Equal(computed, expected) {
		status = VerificationSuccess
	}
	return &VerificationReceipt{
		ContentID:    contentID,
		Status:       status,
		ComputedRoot: computed,
		ExpectedRoot: expected,
		Timestamp:    time.Now(),
	}
}

// Sign attaches an Ed25519 signature over the receipt's canonical form.
func (r *VerificationReceipt) Sign(priv ed25519.PrivateKey) error {
	canonical, err := canonicalJSON(r)
	if err != nil {
		return fmt.Errorf("security: canonicalize receipt: %w", err)
	}
	r.Signature = ed25519.Sign(priv, canonical)
	r.SigningKey = priv.Public().(ed25519.PublicKey)
	return nil
}

// VerifySignature reports whether the receipt's signature is valid under
// its embedded public key. Callers that pin a known peer key should
// compare r.SigningKey against it themselves; this only checks the
// signature is internally consistent.
func (r *VerificationReceipt) VerifySignature() bool {
	if len(r.Signature) == 0 || len(r.SigningKey) == 0 {
		return false
	}
	canonical, err := canonicalJSON(r)
	if err != nil {
		return false
	}
	return ed25519.Verify(r.SigningKey, canonical, r.Signature)
}
