package transfer

import (
	"context"
	"crypto/ed25519"
	"sync"

	"github.com/quantarax/wiretransport/config"
	"github.com/quantarax/wiretransport/merkle"
	"github.com/quantarax/wiretransport/rpcmux"
	"github.com/quantarax/wiretransport/security"
	"github.com/quantarax/wiretransport/wire"
	"github.com/rs/zerolog"
)

// receiverSession is the server-side, in-memory half of one upload: the
// durable chunk bytes live in the TemporaryUploadStore, but which
// indices have arrived and whether the session has already terminated
// is tracked here, under one mutex, following the teacher's Session
// pattern (daemon/manager/session.go) of a single owner mutating state.
type receiverSession struct {
	mu       sync.Mutex
	meta     uploadRequest
	received map[uint64]bool
	count    uint64
	done     bool
}

// Receiver is the server side of the upload protocol (spec.md §4.7.1).
type Receiver struct {
	mux        *rpcmux.Mux
	codec      rpcmux.PayloadCodec
	store      TemporaryUploadStore
	fileStore  FileStore
	cfg        *config.Config
	permission UploadPermissionFunc
	log        zerolog.Logger
	cipher     *security.ChunkCipher
	signingKey ed25519.PrivateKey

	mu       sync.Mutex
	sessions map[string]*receiverSession

	receiptsMu sync.Mutex
	receipts   map[string]*security.VerificationReceipt
}

// ReceiverOption configures a Receiver at construction time.
type ReceiverOption func(*Receiver)

// WithUploadPermission installs the permission hook denials become 403
// RPC errors (spec.md §6).
func WithUploadPermission(fn UploadPermissionFunc) ReceiverOption {
	return func(r *Receiver) { r.permission = fn }
}

// WithReceiverCipher decrypts inbound chunk payloads under cipher before
// they are verified against the (plaintext) Merkle root.
func WithReceiverCipher(cipher *security.ChunkCipher) ReceiverOption {
	return func(r *Receiver) { r.cipher = cipher }
}

// WithVerificationSigning has completed uploads produce an Ed25519-signed
// VerificationReceipt, fetchable via transfer.verify, attesting that the
// assembled content's recomputed Merkle root matches what the uploader
// declared. Without this option receipts are still produced, just unsigned.
func WithVerificationSigning(key ed25519.PrivateKey) ReceiverOption {
	return func(r *Receiver) { r.signingKey = key }
}

// WithReceiverLogger attaches a logger; the zero value is a no-op logger.
func WithReceiverLogger(log zerolog.Logger) ReceiverOption {
	return func(r *Receiver) { r.log = log }
}

// NewReceiver builds a Receiver and registers its upload handler on mux.
func NewReceiver(mux *rpcmux.Mux, store TemporaryUploadStore, fileStore FileStore, cfg *config.Config, opts ...ReceiverOption) *Receiver {
	r := &Receiver{
		mux:       mux,
		codec:     rpcmux.JSONCodec{},
		store:     store,
		fileStore: fileStore,
		cfg:       cfg,
		sessions:  make(map[string]*receiverSession),
		receipts:  make(map[string]*security.VerificationReceipt),
	}
	for _, opt := range opts {
		opt(r)
	}
	mux.Handle(MethodUpload, r.handleUploadRequest)
	mux.Handle(MethodVerify, r.handleVerifyRequest)
	return r
}

// handleVerifyRequest answers a transfer.verify call with the receipt
// recorded for contentID at upload completion, if any.
func (r *Receiver) handleVerifyRequest(ctx context.Context, req *rpcmux.Request, stream *rpcmux.StreamSink) (any, error) {
	v, err := req.Decode()
	if err != nil {
		return nil, &rpcmux.CallError{StatusCode: rpcmux.StatusInternal, Details: "malformed verify request"}
	}
	vr, err := decodeAs[verifyRequest](v)
	if err != nil {
		return nil, &rpcmux.CallError{StatusCode: rpcmux.StatusInternal, Details: "malformed verify request"}
	}

	r.receiptsMu.Lock()
	receipt, ok := r.receipts[vr.ContentID]
	r.receiptsMu.Unlock()
	if !ok {
		return nil, &rpcmux.CallError{StatusCode: rpcmux.StatusNotFound, Details: "no receipt for content id"}
	}

	return verifyResponse{
		ContentID:    receipt.ContentID,
		Status:       receipt.Status.String(),
		ComputedRoot: receipt.ComputedRoot,
		ExpectedRoot: receipt.ExpectedRoot,
		TimestampUTC: receipt.Timestamp.Unix(),
		Signature:    receipt.Signature,
		SigningKey:   receipt.SigningKey,
	}, nil
}

const statusRequestEntityTooLarge uint64 = 413

func (r *Receiver) handleUploadRequest(ctx context.Context, req *rpcmux.Request, stream *rpcmux.StreamSink) (any, error) {
	v, err := req.Decode()
	if err != nil {
		return nil, &rpcmux.CallError{StatusCode: rpcmux.StatusInternal, Details: "malformed upload request"}
	}
	ur, err := decodeAs[uploadRequest](v)
	if err != nil {
		return nil, &rpcmux.CallError{StatusCode: rpcmux.StatusInternal, Details: "malformed upload request"}
	}

	if r.cfg != nil && r.cfg.MaxFileSize > 0 && ur.Size > uint64(r.cfg.MaxFileSize) {
		return nil, &rpcmux.CallError{StatusCode: statusRequestEntityTooLarge, Details: "declared size exceeds maximum allowed"}
	}

	metadata := UploadMetadata{
		ClientFileID: ur.ClientFileID, Filename: ur.Filename, Size: ur.Size,
		MimeType: ur.MimeType, Encrypted: ur.Encrypted, TotalChunks: ur.TotalChunks,
		MerkleRoot: ur.MerkleRoot,
	}

	if r.permission != nil {
		result, err := r.permission(ur.ClientFileID, metadata)
		if err != nil {
			return nil, &rpcmux.CallError{StatusCode: rpcmux.StatusInternal, Details: err.Error()}
		}
		if !result.Allowed {
			return nil, &rpcmux.CallError{StatusCode: rpcmux.StatusDenied, Details: result.Reason}
		}
	}

	if err := r.store.BeginUpload(req.ID, metadata); err != nil {
		return nil, &rpcmux.CallError{StatusCode: rpcmux.StatusInternal, Details: err.Error()}
	}

	sess := &receiverSession{meta: ur, received: make(map[uint64]bool)}
	r.mu.Lock()
	r.sessions[req.ID] = sess
	r.mu.Unlock()

	r.mux.Subscribe(req.ID, func(env *wire.Envelope) { r.handleChunkFrame(req.ID, sess, env) })

	r.log.Info().Str("client_file_id", ur.ClientFileID).Str("request_id", req.ID).Uint64("total_chunks", ur.TotalChunks).Msg("upload accepted")
	return uploadAccepted{ClientFileID: ur.ClientFileID}, nil
}

func (r *Receiver) handleChunkFrame(reqID string, sess *receiverSession, env *wire.Envelope) {
	frame := env.RPC
	if frame.Status != wire.RPCStatusSuccess {
		return
	}
	v, err := r.codec.Decode(MethodUpload, frame.Payload)
	if err != nil {
		return
	}
	chunk, err := decodeAs[uploadChunk](v)
	if err != nil {
		return
	}

	sess.mu.Lock()
	if sess.done || chunk.Index >= sess.meta.TotalChunks {
		sess.mu.Unlock()
		return
	}
	if sess.received[chunk.Index] {
		sess.mu.Unlock()
		r.ackChunk(env)
		return // duplicate delivery, already merged
	}
	sess.mu.Unlock()

	plaintext := chunk.Data
	if r.cipher != nil {
		pt, err := r.cipher.Decrypt(chunk.Index, chunk.Data)
		if err != nil {
			r.failSession(reqID, sess, "chunk decryption failed: "+err.Error())
			return
		}
		plaintext = pt
	}

	if !merkle.Verify(plaintext, chunk.Proof, sess.meta.MerkleRoot, int(chunk.Index)) {
		r.failSession(reqID, sess, "chunk failed merkle proof verification")
		return
	}

	if err := r.store.StoreChunk(reqID, chunk.Index, plaintext, chunk.Proof); err != nil {
		r.failSession(reqID, sess, "storage error: "+err.Error())
		return
	}
	r.ackChunk(env)

	sess.mu.Lock()
	sess.received[chunk.Index] = true
	sess.count++
	complete := sess.count == sess.meta.TotalChunks
	sess.mu.Unlock()

	if complete {
		r.finalize(reqID, sess)
	}
}

func (r *Receiver) ackChunk(env *wire.Envelope) {
	idBytes, err := env.IDBytes()
	if err != nil {
		return
	}
	_ = r.mux.SendEnvelope(AckEnvelope(r.mux.Document(), idBytes))
}

func (r *Receiver) failSession(reqID string, sess *receiverSession, reason string) {
	sess.mu.Lock()
	if sess.done {
		sess.mu.Unlock()
		return
	}
	sess.done = true
	sess.mu.Unlock()

	r.mux.Unsubscribe(reqID)
	r.mu.Lock()
	delete(r.sessions, reqID)
	r.mu.Unlock()
	r.log.Warn().Str("request_id", reqID).Str("reason", reason).Msg("upload session terminated")
	_ = r.mux.RespondError(reqID, MethodUpload, rpcmux.StatusInternal, reason)
}

func (r *Receiver) finalize(reqID string, sess *receiverSession) {
	sess.mu.Lock()
	if sess.done {
		sess.mu.Unlock()
		return
	}
	sess.done = true
	sess.mu.Unlock()

	r.mux.Unsubscribe(reqID)
	r.mu.Lock()
	delete(r.sessions, reqID)
	r.mu.Unlock()

	result, err := r.store.CompleteUpload(reqID)
	if err != nil {
		r.log.Error().Err(err).Str("request_id", reqID).Msg("failed to complete upload")
		return
	}
	contentID, err := r.fileStore.StoreFileFromUpload(result)
	if err != nil {
		r.log.Error().Err(err).Str("request_id", reqID).Msg("failed to store completed upload")
		return
	}
	r.log.Info().Str("request_id", reqID).Str("content_id", contentID).Msg("upload complete")
	r.recordVerificationReceipt(contentID, result)
}

// recordVerificationReceipt recomputes the Merkle root over the
// assembled chunks and compares it to what the uploader declared
// up front, recording the result for later retrieval via
// transfer.verify. Each chunk's own inclusion proof was already
// checked as it arrived; this is a whole-file cross-check that the
// assembled sequence as a unit still hashes to the declared root.
func (r *Receiver) recordVerificationReceipt(contentID string, result *UploadResult) {
	tree, err := merkle.Build(result.Chunks)
	if err != nil {
		r.log.Error().Err(err).Str("content_id", contentID).Msg("failed to build verification tree")
		return
	}
	receipt := security.NewVerificationReceipt(contentID, tree.Root(), result.Metadata.MerkleRoot)
	if r.signingKey != nil {
		if err := receipt.Sign(r.signingKey); err != nil {
			r.log.Error().Err(err).Str("content_id", contentID).Msg("failed to sign verification receipt")
		}
	}
	if receipt.Status != security.VerificationSuccess {
		r.log.Warn().Str("content_id", contentID).Msg("verification receipt recorded a root mismatch")
	}
	r.receiptsMu.Lock()
	r.receipts[contentID] = receipt
	r.receiptsMu.Unlock()
}

// CleanupExpired scans the upload store for expired sessions, also
// dropping any local bookkeeping and mux subscription for ones no longer
// present. Call periodically (spec.md §6, uploadCleanupIntervalMs).
func (r *Receiver) CleanupExpired() (int, error) {
	n, err := r.store.CleanupExpiredUploads()
	if err != nil {
		return n, err
	}

	r.mu.Lock()
	stale := make([]string, 0)
	for id := range r.sessions {
		if progress, _ := r.store.GetUploadProgress(id); progress == nil {
			stale = append(stale, id)
		}
	}
	for _, id := range stale {
		delete(r.sessions, id)
	}
	r.mu.Unlock()

	for _, id := range stale {
		r.mux.Unsubscribe(id)
	}
	return n, nil
}
