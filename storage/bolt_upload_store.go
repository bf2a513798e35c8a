package storage

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"path/filepath"
	"time"

	"github.com/boltdb/bolt"
	"github.com/zeebo/blake3"

	"github.com/quantarax/wiretransport/transfer"
)

var (
	bucketUploadMeta   = []byte("upload_meta")
	bucketUploadChunks = []byte("upload_chunks")
	bucketChunkBlobs   = []byte("chunk_blobs")
)

// chunkFingerprint is the storage-layer dedup key for a chunk's plaintext
// bytes: a fast BLAKE3 digest, distinct from the protocol-mandated SHA-256
// Merkle id (merkle.Build never sees this value, so it cannot affect
// content addressing). Grounded on the teacher's
// daemon/transport/chunk_receiver.go, which hashes each verified chunk
// with blake3 for its own cache lookups.
func chunkFingerprint(data []byte) [32]byte {
	return blake3.Sum256(data)
}

// BoltUploadStore is a durable TemporaryUploadStore, so an in-flight
// upload survives a daemon restart. Adapted from the teacher's
// content-addressed chunk store (daemon/manager/cas_bolt.go): one bucket
// keyed by session id holding JSON session metadata plus a creation
// timestamp for GC, a second bucket keyed by "id/index" holding each
// chunk's BLAKE3 fingerprint, and a chunk_blobs bucket mapping that
// fingerprint to the raw chunk bytes.
type BoltUploadStore struct {
	db  *bolt.DB
	ttl time.Duration
}

type boltSessionRecord struct {
	Metadata  transfer.UploadMetadata
	Received  map[uint64]bool
	Bytes     uint64
	CreatedAt int64 // unix seconds, matching the teacher's GC timestamp encoding
}

// OpenBoltUploadStore opens (creating if absent) a BoltDB file at path
// with a TTL-eligible-for-cleanup window of ttl.
func OpenBoltUploadStore(path string, ttl time.Duration) (*BoltUploadStore, error) {
	db, err := bolt.Open(filepath.Clean(path), 0600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, err
	}
	err = db.Update(func(tx *bolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(bucketUploadMeta); err != nil {
			return err
		}
		if _, err := tx.CreateBucketIfNotExists(bucketUploadChunks); err != nil {
			return err
		}
		_, err := tx.CreateBucketIfNotExists(bucketChunkBlobs)
		return err
	})
	if err != nil {
		db.Close()
		return nil, err
	}
	return &BoltUploadStore{db: db, ttl: ttl}, nil
}

// Close closes the underlying BoltDB handle.
func (s *BoltUploadStore) Close() error { return s.db.Close() }

func chunkKey(id string, index uint64) []byte {
	buf := make([]byte, len(id)+1+8)
	copy(buf, id)
	buf[len(id)] = '/'
	binary.BigEndian.PutUint64(buf[len(id)+1:], index)
	return buf
}

func (s *BoltUploadStore) BeginUpload(id string, metadata transfer.UploadMetadata) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		bk := tx.Bucket(bucketUploadMeta)
		if bk.Get([]byte(id)) != nil {
			return transfer.ErrSessionAlreadyExists
		}
		rec := boltSessionRecord{Metadata: metadata, Received: make(map[uint64]bool), CreatedAt: time.Now().Unix()}
		buf, err := json.Marshal(rec)
		if err != nil {
			return err
		}
		return bk.Put([]byte(id), buf)
	})
}

func (s *BoltUploadStore) loadRecord(tx *bolt.Tx, id string) (*boltSessionRecord, error) {
	bk := tx.Bucket(bucketUploadMeta)
	raw := bk.Get([]byte(id))
	if raw == nil {
		return nil, transfer.ErrSessionNotFound
	}
	var rec boltSessionRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

func (s *BoltUploadStore) StoreChunk(id string, index uint64, data []byte, proof [][]byte) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		rec, err := s.loadRecord(tx, id)
		if err != nil {
			return err
		}
		if index >= rec.Metadata.TotalChunks {
			return transfer.ErrChunkIndexOutOfRange
		}
		if rec.Received[index] {
			return nil
		}
		fp := chunkFingerprint(data)
		blobs := tx.Bucket(bucketChunkBlobs)
		if blobs.Get(fp[:]) == nil {
			if err := blobs.Put(fp[:], data); err != nil {
				return err
			}
		}
		if err := tx.Bucket(bucketUploadChunks).Put(chunkKey(id, index), fp[:]); err != nil {
			return err
		}
		rec.Received[index] = true
		rec.Bytes += uint64(len(data))
		buf, err := json.Marshal(rec)
		if err != nil {
			return err
		}
		return tx.Bucket(bucketUploadMeta).Put([]byte(id), buf)
	})
}

func (s *BoltUploadStore) GetUploadProgress(id string) (*transfer.UploadProgress, error) {
	var progress *transfer.UploadProgress
	err := s.db.View(func(tx *bolt.Tx) error {
		rec, err := s.loadRecord(tx, id)
		if err == transfer.ErrSessionNotFound {
			return nil
		}
		if err != nil {
			return err
		}
		present := make(map[uint64][]byte, len(rec.Received))
		bk := tx.Bucket(bucketUploadChunks)
		blobs := tx.Bucket(bucketChunkBlobs)
		for idx := range rec.Received {
			fp := bk.Get(chunkKey(id, idx))
			present[idx] = append([]byte(nil), blobs.Get(fp)...)
		}
		progress = &transfer.UploadProgress{Metadata: rec.Metadata, ChunksPresent: present, BytesUploaded: rec.Bytes}
		return nil
	})
	return progress, err
}

func (s *BoltUploadStore) CompleteUpload(id string) (*transfer.UploadResult, error) {
	var result *transfer.UploadResult
	err := s.db.Update(func(tx *bolt.Tx) error {
		rec, err := s.loadRecord(tx, id)
		if err != nil {
			return err
		}
		chunks := make([][]byte, rec.Metadata.TotalChunks)
		bk := tx.Bucket(bucketUploadChunks)
		blobs := tx.Bucket(bucketChunkBlobs)
		for i := range chunks {
			key := chunkKey(id, uint64(i))
			fp := bk.Get(key)
			chunks[i] = append([]byte(nil), blobs.Get(fp)...)
			if err := bk.Delete(key); err != nil {
				return err
			}
			// Blobs are left in bucketChunkBlobs: another session's chunk
			// may share this fingerprint, and the blob bucket has no
			// refcounting (spec.md does not require upload-store disk
			// reclamation beyond the session TTL sweep).
		}
		if err := tx.Bucket(bucketUploadMeta).Delete([]byte(id)); err != nil {
			return err
		}
		result = &transfer.UploadResult{
			ContentID: contentIDFromRoot(rec.Metadata.MerkleRoot),
			Chunks:    chunks,
			Metadata:  rec.Metadata,
		}
		return nil
	})
	return result, err
}

// CleanupExpiredUploads drops sessions whose CreatedAt predates the
// store's ttl, following the teacher's BoltCAS.GC cursor-delete sweep.
func (s *BoltUploadStore) CleanupExpiredUploads() (int, error) {
	if s.ttl <= 0 {
		return 0, nil
	}
	cutoff := time.Now().Add(-s.ttl).Unix()
	removed := 0
	err := s.db.Update(func(tx *bolt.Tx) error {
		meta := tx.Bucket(bucketUploadMeta)
		chunks := tx.Bucket(bucketUploadChunks)
		c := meta.Cursor()
		var stale [][]byte
		for k, v := c.First(); k != nil; k, v = c.Next() {
			var rec boltSessionRecord
			if err := json.Unmarshal(v, &rec); err != nil {
				continue
			}
			if rec.CreatedAt < cutoff {
				stale = append(stale, append([]byte(nil), k...))
			}
		}
		for _, id := range stale {
			prefix := append(append([]byte(nil), id...), '/')
			cc := chunks.Cursor()
			for k, _ := cc.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, _ = cc.Next() {
				if err := cc.Delete(); err != nil {
					return err
				}
			}
			if err := meta.Delete(id); err != nil {
				return err
			}
			removed++
		}
		return nil
	})
	return removed, err
}
