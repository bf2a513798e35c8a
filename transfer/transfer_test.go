package transfer

import (
	"context"
	"crypto/ed25519"
	"encoding/base64"
	"sync"
	"testing"
	"time"

	"github.com/quantarax/wiretransport/config"
	"github.com/quantarax/wiretransport/internal/crypto"
	"github.com/quantarax/wiretransport/merkle"
	"github.com/quantarax/wiretransport/rpcmux"
	"github.com/quantarax/wiretransport/security"
	"github.com/quantarax/wiretransport/wire"
)

// --- in-memory TemporaryUploadStore / FileStore test doubles ---

type memUploadSession struct {
	metadata  UploadMetadata
	chunks    map[uint64][]byte
	bytes     uint64
	createdAt time.Time
}

type memUploadStore struct {
	mu       sync.Mutex
	sessions map[string]*memUploadSession
	clock    Clock
	ttl      time.Duration
}

func newMemUploadStore() *memUploadStore {
	return &memUploadStore{sessions: make(map[string]*memUploadSession), clock: SystemClock{}, ttl: time.Hour}
}

func (s *memUploadStore) BeginUpload(id string, metadata UploadMetadata) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.sessions[id]; exists {
		return ErrSessionAlreadyExists
	}
	s.sessions[id] = &memUploadSession{metadata: metadata, chunks: make(map[uint64][]byte), createdAt: s.clock.Now()}
	return nil
}

func (s *memUploadStore) StoreChunk(id string, index uint64, data []byte, proof [][]byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok {
		return ErrSessionNotFound
	}
	if _, exists := sess.chunks[index]; exists {
		return nil
	}
	cp := append([]byte(nil), data...)
	sess.chunks[index] = cp
	sess.bytes += uint64(len(cp))
	return nil
}

func (s *memUploadStore) GetUploadProgress(id string) (*UploadProgress, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok {
		return nil, nil
	}
	return &UploadProgress{Metadata: sess.metadata, ChunksPresent: sess.chunks, BytesUploaded: sess.bytes}, nil
}

func (s *memUploadStore) CompleteUpload(id string) (*UploadResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	chunks := make([][]byte, sess.metadata.TotalChunks)
	for i := range chunks {
		chunks[i] = sess.chunks[uint64(i)]
	}
	delete(s.sessions, id)
	return &UploadResult{
		ContentID: base64.StdEncoding.EncodeToString(sess.metadata.MerkleRoot),
		Chunks:    chunks,
		Metadata:  sess.metadata,
	}, nil
}

func (s *memUploadStore) CleanupExpiredUploads() (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cutoff := s.clock.Now().Add(-s.ttl)
	n := 0
	for id, sess := range s.sessions {
		if sess.createdAt.Before(cutoff) {
			delete(s.sessions, id)
			n++
		}
	}
	return n, nil
}

type memFileStore struct {
	mu    sync.Mutex
	files map[string]*StoredFile
}

func newMemFileStore() *memFileStore { return &memFileStore{files: make(map[string]*StoredFile)} }

func (f *memFileStore) GetFile(contentID string) (*StoredFile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	sf, ok := f.files[contentID]
	if !ok {
		return nil, nil
	}
	return sf, nil
}

func (f *memFileStore) StoreFileFromUpload(result *UploadResult) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.files[result.ContentID] = &StoredFile{Chunks: result.Chunks, Metadata: result.Metadata}
	return result.ContentID, nil
}

func (f *memFileStore) DeleteFile(contentID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.files, contentID)
	return nil
}

// --- transport plumbing: routes RPC envelopes to a Mux, Ack envelopes to an AckTracker ---

type demuxSender struct {
	rpcMux *rpcmux.Mux
	acks   *AckTracker
}

func (d *demuxSender) Send(env *wire.Envelope) error {
	switch env.Target {
	case wire.TargetRPC:
		return d.rpcMux.Dispatch(env)
	case wire.TargetAck:
		if d.acks != nil {
			d.acks.HandleAck(env)
		}
		return nil
	default:
		return nil
	}
}

func newHarness(t *testing.T) (*Uploader, *Downloader, *memFileStore) {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.ChunkSize = 8 // tiny, to force multiple chunks in tests

	clientAcks := NewAckTracker()

	clientToServer := &demuxSender{}
	serverToClient := &demuxSender{acks: clientAcks}

	clientMux := rpcmux.NewMux("doc", clientToServer, rpcmux.WithDefaultTimeout(2*time.Second))
	serverMux := rpcmux.NewMux("doc", serverToClient, rpcmux.WithDefaultTimeout(2*time.Second))
	clientToServer.rpcMux = serverMux
	serverToClient.rpcMux = clientMux

	uploadStore := newMemUploadStore()
	fileStore := newMemFileStore()

	NewReceiver(serverMux, uploadStore, fileStore, cfg)
	NewSender(serverMux, fileStore)

	uploader := NewUploader(clientMux, clientAcks, cfg)
	downloader := NewDownloader(clientMux)

	return uploader, downloader, fileStore
}

func TestUploadThenDownloadRoundTrip(t *testing.T) {
	uploader, downloader, _ := newHarness(t)

	data := []byte("the quick brown fox jumps over the lazy dog, repeatedly, to make multiple chunks")
	ctx := context.Background()

	contentID, err := uploader.Upload(ctx, "client-file-1", "fox.txt", "text/plain", false, data)
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}

	got, meta, err := downloader.Download(ctx, contentID)
	if err != nil {
		t.Fatalf("Download: %v", err)
	}
	if string(got) != string(data) {
		t.Fatalf("downloaded data mismatch: got %d bytes, want %d", len(got), len(data))
	}
	if meta.Filename != "fox.txt" || meta.MimeType != "text/plain" {
		t.Fatalf("unexpected metadata: %+v", meta)
	}
}

func TestUploadEmptyFile(t *testing.T) {
	uploader, downloader, _ := newHarness(t)
	ctx := context.Background()

	contentID, err := uploader.Upload(ctx, "client-file-empty", "empty.bin", "application/octet-stream", false, nil)
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}
	got, _, err := downloader.Download(ctx, contentID)
	if err != nil {
		t.Fatalf("Download: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("expected empty file, got %d bytes", len(got))
	}
}

func TestDownloadMissingContentDenied(t *testing.T) {
	_, downloader, _ := newHarness(t)
	ctx := context.Background()

	root := make([]byte, merkle.HashSize)
	fakeID := base64.StdEncoding.EncodeToString(root)

	_, _, err := downloader.Download(ctx, fakeID)
	ce, ok := err.(*rpcmux.CallError)
	if !ok {
		t.Fatalf("expected *rpcmux.CallError, got %T: %v", err, err)
	}
	if ce.StatusCode != rpcmux.StatusNotFound {
		t.Fatalf("status = %d, want %d", ce.StatusCode, rpcmux.StatusNotFound)
	}
}

func TestUploadDeniedByPermissionHook(t *testing.T) {
	cfg := config.DefaultConfig()
	clientAcks := NewAckTracker()
	clientToServer := &demuxSender{}
	serverToClient := &demuxSender{acks: clientAcks}
	clientMux := rpcmux.NewMux("doc", clientToServer)
	serverMux := rpcmux.NewMux("doc", serverToClient)
	clientToServer.rpcMux = serverMux
	serverToClient.rpcMux = clientMux

	NewReceiver(serverMux, newMemUploadStore(), newMemFileStore(), cfg,
		WithUploadPermission(func(fileID string, metadata UploadMetadata) (PermissionResult, error) {
			return Deny("no access"), nil
		}))

	uploader := NewUploader(clientMux, clientAcks, cfg)
	_, err := uploader.Upload(context.Background(), "cf1", "f.txt", "text/plain", false, []byte("hi"))
	ce, ok := err.(*rpcmux.CallError)
	if !ok {
		t.Fatalf("expected *rpcmux.CallError, got %T: %v", err, err)
	}
	if ce.StatusCode != rpcmux.StatusDenied {
		t.Fatalf("status = %d, want %d", ce.StatusCode, rpcmux.StatusDenied)
	}
}

// matchingCiphers derives the same session keys from both ends of an
// X25519 exchange (ECDH is symmetric), salted with an arbitrary shared
// manifest hash, so the test's uploader/receiver and sender/downloader
// each see what a real handshake would hand them.
func matchingCiphers(t *testing.T) (up, down *security.ChunkCipher) {
	t.Helper()
	a, err := crypto.GenerateX25519()
	if err != nil {
		t.Fatalf("generate keypair a: %v", err)
	}
	b, err := crypto.GenerateX25519()
	if err != nil {
		t.Fatalf("generate keypair b: %v", err)
	}
	manifestHash := make([]byte, 32)
	for i := range manifestHash {
		manifestHash[i] = byte(i)
	}
	clientCipher, err := security.EstablishSessionKeys(&a.PrivateKey, &b.PublicKey, manifestHash)
	if err != nil {
		t.Fatalf("derive client keys: %v", err)
	}
	serverCipher, err := security.EstablishSessionKeys(&b.PrivateKey, &a.PublicKey, manifestHash)
	if err != nil {
		t.Fatalf("derive server keys: %v", err)
	}
	return clientCipher, serverCipher
}

func TestUploadThenDownloadRoundTripEncrypted(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.ChunkSize = 8

	clientAcks := NewAckTracker()
	clientToServer := &demuxSender{}
	serverToClient := &demuxSender{acks: clientAcks}
	clientMux := rpcmux.NewMux("doc", clientToServer, rpcmux.WithDefaultTimeout(2*time.Second))
	serverMux := rpcmux.NewMux("doc", serverToClient, rpcmux.WithDefaultTimeout(2*time.Second))
	clientToServer.rpcMux = serverMux
	serverToClient.rpcMux = clientMux

	uploadStore := newMemUploadStore()
	fileStore := newMemFileStore()

	uploadCipher, receiverCipher := matchingCiphers(t)
	senderCipher, downloadCipher := matchingCiphers(t)

	NewReceiver(serverMux, uploadStore, fileStore, cfg, WithReceiverCipher(receiverCipher))
	NewSender(serverMux, fileStore, WithSenderCipher(senderCipher))

	uploader := NewUploader(clientMux, clientAcks, cfg, WithUploaderCipher(uploadCipher))
	downloader := NewDownloader(clientMux, WithDownloaderCipher(downloadCipher))

	data := []byte("the quick brown fox jumps over the lazy dog, repeatedly, to make multiple chunks")
	ctx := context.Background()

	contentID, err := uploader.Upload(ctx, "client-file-enc", "fox.txt", "text/plain", true, data)
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}

	stored, err := fileStore.GetFile(contentID)
	if err != nil || stored == nil {
		t.Fatalf("GetFile: %v", err)
	}
	for i, c := range stored.Chunks {
		want := SplitChunks(data, cfg.ChunkSize)[i]
		if string(c) != string(want) {
			t.Fatalf("stored chunk %d not plaintext: got %q want %q", i, c, want)
		}
	}

	got, _, err := downloader.Download(ctx, contentID)
	if err != nil {
		t.Fatalf("Download: %v", err)
	}
	if string(got) != string(data) {
		t.Fatalf("downloaded data mismatch: got %d bytes, want %d", len(got), len(data))
	}
}

func TestVerificationReceiptRoundTrip(t *testing.T) {
	cfg := config.DefaultConfig()
	clientAcks := NewAckTracker()
	clientToServer := &demuxSender{}
	serverToClient := &demuxSender{acks: clientAcks}
	clientMux := rpcmux.NewMux("doc", clientToServer)
	serverMux := rpcmux.NewMux("doc", serverToClient)
	clientToServer.rpcMux = serverMux
	serverToClient.rpcMux = clientMux

	signPub, signPriv, err := ed25519.GenerateKey(nil)
	if err != nil {
		t.Fatalf("generate signing key: %v", err)
	}

	NewReceiver(serverMux, newMemUploadStore(), newMemFileStore(), cfg, WithVerificationSigning(signPriv))
	uploader := NewUploader(clientMux, clientAcks, cfg)

	contentID, err := uploader.Upload(context.Background(), "cf1", "f.txt", "text/plain", false, []byte("payload bytes"))
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}

	receipt, err := FetchVerificationReceipt(context.Background(), clientMux, contentID)
	if err != nil {
		t.Fatalf("FetchVerificationReceipt: %v", err)
	}
	if receipt.Status != security.VerificationSuccess {
		t.Fatalf("status = %v, want success", receipt.Status)
	}
	if !receipt.VerifySignature() {
		t.Fatalf("signature did not verify")
	}
	if string(receipt.SigningKey) != string(signPub) {
		t.Fatalf("signing key mismatch")
	}
}

func TestSplitChunksAndCount(t *testing.T) {
	if n := ChunkCount(0, 10); n != 1 {
		t.Fatalf("ChunkCount(0,10) = %d, want 1", n)
	}
	if n := ChunkCount(25, 10); n != 3 {
		t.Fatalf("ChunkCount(25,10) = %d, want 3", n)
	}
	chunks := SplitChunks([]byte("0123456789"), 4)
	if len(chunks) != 3 || len(chunks[2]) != 2 {
		t.Fatalf("unexpected split: %v", chunks)
	}
}
