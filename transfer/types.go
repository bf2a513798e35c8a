// Package transfer implements the file-transfer state machines
// (component C7 of SPEC_FULL.md): Uploader/Receiver and Downloader/Sender,
// riding rpcmux's request/stream/response multiplex and merkle's
// inclusion proofs. Session bookkeeping (bitmap of received chunks,
// bytes-transferred accounting) is grounded on the teacher's
// daemon/manager Session/ChunkBitmap pattern, adapted from a generic
// "transfer session" abstraction to this protocol's upload/download
// sessions specifically.
package transfer

import "time"

// UploadMetadata describes a file being uploaded, as declared by the
// client before any chunk is sent.
type UploadMetadata struct {
	ClientFileID string
	Filename     string
	Size         uint64
	MimeType     string
	Encrypted    bool
	TotalChunks  uint64
	MerkleRoot   []byte // disclosed up front so chunks verify incrementally
}

// UploadProgress is a point-in-time snapshot of an in-progress upload
// session, returned by TemporaryUploadStore.GetUploadProgress.
type UploadProgress struct {
	Metadata      UploadMetadata
	ChunksPresent map[uint64][]byte
	BytesUploaded uint64
}

// UploadResult is what an upload session becomes once every chunk has
// arrived and verified: the assembled chunk list plus its metadata,
// ready to be promoted into durable storage under its content id.
type UploadResult struct {
	ContentID string // base64 Merkle root
	Chunks    [][]byte
	Metadata  UploadMetadata
}

// StoredFile is a file as FileStore returns it for download.
type StoredFile struct {
	Chunks   [][]byte
	Metadata UploadMetadata
}

// PermissionResult is the uniform answer shape for both upload and
// download permission hooks (spec.md §6).
type PermissionResult struct {
	Allowed  bool
	Reason   string
	Metadata map[string]any
}

// Allow is a convenience constructor for an unconditional grant.
func Allow() PermissionResult { return PermissionResult{Allowed: true} }

// Deny is a convenience constructor for a denial with a reason.
func Deny(reason string) PermissionResult { return PermissionResult{Reason: reason} }

// UploadPermissionFunc decides whether an upload may proceed.
// fileID is the client-declared clientFileId; it is not yet the
// content id, since the server has not yet verified the upload.
type UploadPermissionFunc func(fileID string, metadata UploadMetadata) (PermissionResult, error)

// DownloadPermissionFunc decides whether a download may proceed.
// A reason of exactly "not found" maps to a 404 rather than a 403
// (spec.md §6).
type DownloadPermissionFunc func(contentID string) (PermissionResult, error)

// Clock abstracts wall-clock access so session TTLs are deterministic in
// tests, matching the teacher's time.Now()-based session timestamps
// (daemon/manager/session.go) but injectable rather than hardwired.
type Clock interface {
	Now() time.Time
}

// SystemClock is the production Clock, backed by time.Now.
type SystemClock struct{}

// Now implements Clock.
func (SystemClock) Now() time.Time { return time.Now() }
