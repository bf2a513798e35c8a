// Package storage provides concrete TemporaryUploadStore and FileStore
// implementations for the transfer package: an in-memory pair for tests
// and ephemeral daemons, a BoltDB-backed upload store adapted from the
// teacher's content-addressed chunk store (daemon/manager/cas_bolt.go),
// and a SQLite-backed file store adapted from its session persistence
// layer (daemon/manager/persistence.go).
package storage

import (
	"sync"
	"time"

	"github.com/quantarax/wiretransport/transfer"
)

type memSession struct {
	metadata  transfer.UploadMetadata
	chunks    map[uint64][]byte
	bytes     uint64
	createdAt time.Time
}

// MemoryUploadStore is a process-local TemporaryUploadStore with no
// durability across restarts; suitable for a daemon that re-uploads on
// crash recovery, or for tests.
type MemoryUploadStore struct {
	mu       sync.Mutex
	sessions map[string]*memSession
	clock    transfer.Clock
	ttl      time.Duration
}

// NewMemoryUploadStore returns an empty MemoryUploadStore whose sessions
// expire after ttl (see CleanupExpiredUploads).
func NewMemoryUploadStore(ttl time.Duration) *MemoryUploadStore {
	return &MemoryUploadStore{
		sessions: make(map[string]*memSession),
		clock:    transfer.SystemClock{},
		ttl:      ttl,
	}
}

// WithClock overrides the store's Clock, for deterministic TTL tests.
func (s *MemoryUploadStore) WithClock(c transfer.Clock) *MemoryUploadStore {
	s.clock = c
	return s
}

func (s *MemoryUploadStore) BeginUpload(id string, metadata transfer.UploadMetadata) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.sessions[id]; exists {
		return transfer.ErrSessionAlreadyExists
	}
	s.sessions[id] = &memSession{
		metadata:  metadata,
		chunks:    make(map[uint64][]byte),
		createdAt: s.clock.Now(),
	}
	return nil
}

func (s *MemoryUploadStore) StoreChunk(id string, index uint64, data []byte, proof [][]byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok {
		return transfer.ErrSessionNotFound
	}
	if index >= sess.metadata.TotalChunks {
		return transfer.ErrChunkIndexOutOfRange
	}
	if _, exists := sess.chunks[index]; exists {
		return nil
	}
	cp := append([]byte(nil), data...)
	sess.chunks[index] = cp
	sess.bytes += uint64(len(cp))
	return nil
}

func (s *MemoryUploadStore) GetUploadProgress(id string) (*transfer.UploadProgress, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok {
		return nil, nil
	}
	present := make(map[uint64][]byte, len(sess.chunks))
	for k, v := range sess.chunks {
		present[k] = v
	}
	return &transfer.UploadProgress{Metadata: sess.metadata, ChunksPresent: present, BytesUploaded: sess.bytes}, nil
}

func (s *MemoryUploadStore) CompleteUpload(id string) (*transfer.UploadResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok {
		return nil, transfer.ErrSessionNotFound
	}
	chunks := make([][]byte, sess.metadata.TotalChunks)
	for i := range chunks {
		chunks[i] = sess.chunks[uint64(i)]
	}
	delete(s.sessions, id)
	return &transfer.UploadResult{
		ContentID: contentIDFromRoot(sess.metadata.MerkleRoot),
		Chunks:    chunks,
		Metadata:  sess.metadata,
	}, nil
}

// CleanupExpiredUploads removes every session whose createdAt is older
// than the store's ttl (spec.md §6, uploadSessionTtlMs), matching the
// teacher's BoltCAS.GC age-cutoff sweep but over in-memory sessions.
func (s *MemoryUploadStore) CleanupExpiredUploads() (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ttl <= 0 {
		return 0, nil
	}
	cutoff := s.clock.Now().Add(-s.ttl)
	removed := 0
	for id, sess := range s.sessions {
		if sess.createdAt.Before(cutoff) {
			delete(s.sessions, id)
			removed++
		}
	}
	return removed, nil
}

// MemoryFileStore is a process-local FileStore with no durability across
// restarts.
type MemoryFileStore struct {
	mu    sync.RWMutex
	files map[string]*transfer.StoredFile
}

// NewMemoryFileStore returns an empty MemoryFileStore.
func NewMemoryFileStore() *MemoryFileStore {
	return &MemoryFileStore{files: make(map[string]*transfer.StoredFile)}
}

func (f *MemoryFileStore) GetFile(contentID string) (*transfer.StoredFile, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	sf, ok := f.files[contentID]
	if !ok {
		return nil, nil
	}
	return sf, nil
}

func (f *MemoryFileStore) StoreFileFromUpload(result *transfer.UploadResult) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.files[result.ContentID] = &transfer.StoredFile{Chunks: result.Chunks, Metadata: result.Metadata}
	return result.ContentID, nil
}

func (f *MemoryFileStore) DeleteFile(contentID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.files, contentID)
	return nil
}
