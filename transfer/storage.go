package transfer

// TemporaryUploadStore is the extrinsic capability an upload session is
// built on (spec.md §6). Implementations live in the storage package
// (in-memory, BoltDB-backed); this interface is declared
// here, at the point of use, per Go convention.
type TemporaryUploadStore interface {
	// BeginUpload opens a new upload session keyed by id. Returns an
	// error if id is already open.
	BeginUpload(id string, metadata UploadMetadata) error

	// StoreChunk records chunk index's bytes and proof for session id.
	// A duplicate index is an idempotent no-op (the first delivery wins).
	StoreChunk(id string, index uint64, data []byte, proof [][]byte) error

	// GetUploadProgress returns the session's current state, or
	// (nil, nil) if id names no open session.
	GetUploadProgress(id string) (*UploadProgress, error)

	// CompleteUpload assembles every stored chunk in index order and
	// removes the session. Callers must have already verified all
	// chunks are present.
	CompleteUpload(id string) (*UploadResult, error)

	// CleanupExpiredUploads removes sessions past their TTL and reports
	// how many were removed.
	CleanupExpiredUploads() (int, error)
}

// FileStore is the extrinsic capability a completed upload is promoted
// into, and a download is read from.
type FileStore interface {
	// GetFile returns the stored file for contentID, or (nil, nil) if
	// absent.
	GetFile(contentID string) (*StoredFile, error)

	// StoreFileFromUpload durably stores an upload's result, returning
	// its content id (the same value as result.ContentID).
	StoreFileFromUpload(result *UploadResult) (string, error)

	// DeleteFile removes a stored file. Deleting an absent file is not
	// an error.
	DeleteFile(contentID string) error
}
