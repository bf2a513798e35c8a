package transfer

import (
	"bytes"
	"context"
	"encoding/base64"

	"github.com/quantarax/wiretransport/merkle"
	"github.com/quantarax/wiretransport/rpcmux"
	"github.com/quantarax/wiretransport/security"
)

// Downloader is the client side of the download protocol (spec.md
// §4.7.2).
type Downloader struct {
	mux    *rpcmux.Mux
	codec  rpcmux.PayloadCodec
	cipher *security.ChunkCipher
}

// DownloaderOption configures a Downloader at construction time.
type DownloaderOption func(*Downloader)

// WithDownloaderCipher decrypts inbound chunk payloads under cipher
// before they are verified against the (plaintext) Merkle root.
func WithDownloaderCipher(cipher *security.ChunkCipher) DownloaderOption {
	return func(d *Downloader) { d.cipher = cipher }
}

// NewDownloader builds a Downloader calling through mux.
func NewDownloader(mux *rpcmux.Mux, opts ...DownloaderOption) *Downloader {
	d := &Downloader{mux: mux, codec: rpcmux.JSONCodec{}}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Download fetches and verifies every chunk of contentID, returning the
// assembled file and its metadata. A verification failure on any chunk
// discards the whole session (spec.md §4.7.2 step 4); the remainder of
// the stream is still drained so it cannot stall the receive loop.
func (d *Downloader) Download(ctx context.Context, contentID string) ([]byte, UploadMetadata, error) {
	var zero UploadMetadata

	root, err := base64.StdEncoding.DecodeString(contentID)
	if err != nil {
		return nil, zero, err
	}

	handle, err := d.mux.CallStream(ctx, MethodDownload, downloadRequest{ContentID: contentID})
	if err != nil {
		return nil, zero, err
	}

	chunks := make(map[uint64][]byte)
	var failErr error
	for raw := range handle.Stream {
		if failErr != nil {
			continue // drain without verifying; the session is already doomed
		}
		v, err := d.codec.Decode(MethodDownload, raw)
		if err != nil {
			failErr = err
			continue
		}
		dc, err := decodeAs[downloadChunk](v)
		if err != nil {
			failErr = err
			continue
		}
		plaintext := dc.Data
		if d.cipher != nil {
			pt, err := d.cipher.Decrypt(dc.Index, dc.Data)
			if err != nil {
				failErr = err
				continue
			}
			plaintext = pt
		}
		if !merkle.Verify(plaintext, dc.Proof, root, int(dc.Index)) {
			failErr = ErrDownloadVerificationFailed
			continue
		}
		chunks[dc.Index] = plaintext
	}
	if failErr != nil {
		return nil, zero, failErr
	}

	result, err := handle.Result()
	if err != nil {
		return nil, zero, err
	}
	meta, err := decodeAs[downloadMetadata](result)
	if err != nil {
		return nil, zero, err
	}

	assembled := make([][]byte, len(chunks))
	for i := 0; i < len(chunks); i++ {
		c, ok := chunks[uint64(i)]
		if !ok {
			return nil, zero, ErrDownloadVerificationFailed
		}
		assembled[i] = c
	}

	return bytes.Join(assembled, nil), UploadMetadata{
		Filename: meta.Filename, Size: meta.Size, MimeType: meta.MimeType, Encrypted: meta.Encrypted,
	}, nil
}
