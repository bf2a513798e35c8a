package transfer

import (
	"context"
	"encoding/base64"
	"sync"

	"github.com/quantarax/wiretransport/config"
	"github.com/quantarax/wiretransport/merkle"
	"github.com/quantarax/wiretransport/rpcmux"
	"github.com/quantarax/wiretransport/security"
	"github.com/quantarax/wiretransport/wire"
)

// Uploader is the client side of the upload protocol (spec.md §4.7.1).
type Uploader struct {
	mux    *rpcmux.Mux
	acks   *AckTracker
	cfg    *config.Config
	codec  rpcmux.PayloadCodec
	cipher *security.ChunkCipher
}

// UploaderOption configures an Uploader at construction time.
type UploaderOption func(*Uploader)

// WithUploaderCipher encrypts chunk payloads on the wire under cipher.
// The Merkle tree is still built over the plaintext chunks; only the
// bytes placed in the wire frame are sealed (security.ChunkCipher).
func WithUploaderCipher(cipher *security.ChunkCipher) UploaderOption {
	return func(u *Uploader) { u.cipher = cipher }
}

// NewUploader builds an Uploader sending through mux, acknowledging
// chunks tracked by acks.
func NewUploader(mux *rpcmux.Mux, acks *AckTracker, cfg *config.Config, opts ...UploaderOption) *Uploader {
	u := &Uploader{mux: mux, acks: acks, cfg: cfg, codec: rpcmux.JSONCodec{}}
	for _, opt := range opts {
		opt(u)
	}
	return u
}

// Upload sends data as clientFileID, blocking until every chunk has been
// acknowledged (or the upload is denied, a chunk fails verification on
// the receiver, or ctx is done). It returns the content id (the base64
// Merkle root) on success.
func (u *Uploader) Upload(ctx context.Context, clientFileID, filename, mimeType string, encrypted bool, data []byte) (string, error) {
	chunkSize := int64(65536)
	if u.cfg != nil && u.cfg.ChunkSize > 0 {
		chunkSize = u.cfg.ChunkSize
	}
	chunks := SplitChunks(data, chunkSize)

	tree, err := merkle.Build(chunks)
	if err != nil {
		return "", err
	}
	root := tree.Root()

	reqPayload := uploadRequest{
		ClientFileID: clientFileID, Filename: filename, Size: uint64(len(data)),
		MimeType: mimeType, Encrypted: encrypted, TotalChunks: uint64(len(chunks)), MerkleRoot: root,
	}
	id, _, err := u.mux.CallAndKeepID(ctx, MethodUpload, reqPayload)
	if err != nil {
		return "", err
	}

	failCtx, cancelFail := context.WithCancel(ctx)
	var failMu sync.Mutex
	var failErr error
	u.mux.Subscribe(id, func(env *wire.Envelope) {
		if env.RPC.Status == wire.RPCStatusError {
			failMu.Lock()
			if failErr == nil {
				failErr = &rpcmux.CallError{StatusCode: env.RPC.ErrStatusCode, Details: env.RPC.ErrDetails}
			}
			failMu.Unlock()
			cancelFail()
		}
	})
	defer u.mux.Unsubscribe(id)
	defer cancelFail()

	inFlight := len(chunks)
	if u.cfg != nil && u.cfg.MaxInFlightChunks > 0 {
		inFlight = u.cfg.MaxInFlightChunks
	}
	if inFlight == 0 {
		inFlight = 1
	}
	sem := make(chan struct{}, inFlight)

	var wg sync.WaitGroup
	errCh := make(chan error, len(chunks))
	for i := range chunks {
		proof, err := tree.Proof(i)
		if err != nil {
			return "", err
		}
		wireData := chunks[i]
		if u.cipher != nil {
			wireData, err = u.cipher.Encrypt(uint64(i), chunks[i])
			if err != nil {
				return "", err
			}
		}
		payload := uploadChunk{Index: uint64(i), Data: wireData, Proof: proof}

		sem <- struct{}{}
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer func() { <-sem }()
			errCh <- u.sendAndAwaitAck(failCtx, id, payload)
		}()
	}

	wg.Wait()
	close(errCh)
	for err := range errCh {
		if err != nil {
			failMu.Lock()
			fe := failErr
			failMu.Unlock()
			if fe != nil {
				return "", fe
			}
			return "", err
		}
	}

	return base64.StdEncoding.EncodeToString(root), nil
}

func (u *Uploader) sendAndAwaitAck(ctx context.Context, id string, payload uploadChunk) error {
	body, err := u.codec.Encode(MethodUpload, payload)
	if err != nil {
		return err
	}
	env := &wire.Envelope{Document: u.mux.Document(), Target: wire.TargetRPC, RPC: &wire.RPCFrame{
		Method: MethodUpload, ReqType: wire.RPCStreamKind, CorrelationID: id,
		Status: wire.RPCStatusSuccess, Payload: body,
	}}
	idBytes, err := env.IDBytes()
	if err != nil {
		return err
	}
	ackCh := u.acks.RegisterWait(idBytes)
	if err := u.mux.SendEnvelope(env); err != nil {
		u.acks.Forget(idBytes)
		return err
	}

	select {
	case <-ackCh:
		return nil
	case <-ctx.Done():
		u.acks.Forget(idBytes)
		return ctx.Err()
	}
}
