package transfer

import "errors"

var (
	// ErrSessionAlreadyExists mirrors the teacher's SessionStore.Add
	// behavior (daemon/manager/store.go): a client-supplied id colliding
	// with an open session is rejected rather than silently overwritten.
	ErrSessionAlreadyExists = errors.New("transfer: upload session already exists")

	// ErrSessionNotFound is returned for operations against an id that
	// names no open session (it never existed, already completed, or was
	// garbage-collected). Per spec.md §7, the wire-level response to a
	// stray chunk is to ignore it, not to surface this error to a peer.
	ErrSessionNotFound = errors.New("transfer: no such upload session")

	// ErrSizeExceeded is returned when a declared upload size exceeds the
	// configured MaxFileSize.
	ErrSizeExceeded = errors.New("transfer: declared size exceeds maximum allowed")

	// ErrProofVerificationFailed is returned when a chunk's Merkle
	// inclusion proof does not verify against the session's disclosed
	// root. The session is terminated on this error.
	ErrProofVerificationFailed = errors.New("transfer: chunk failed merkle proof verification")

	// ErrChunkIndexOutOfRange is returned for a chunk index at or beyond
	// the metadata's declared TotalChunks.
	ErrChunkIndexOutOfRange = errors.New("transfer: chunk index out of range")

	// ErrDownloadVerificationFailed is returned by Downloader when a
	// received chunk fails to verify against the content id; the whole
	// download is discarded.
	ErrDownloadVerificationFailed = errors.New("transfer: downloaded chunk failed verification")
)
