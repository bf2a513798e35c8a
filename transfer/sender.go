package transfer

import (
	"context"

	"github.com/quantarax/wiretransport/merkle"
	"github.com/quantarax/wiretransport/rpcmux"
	"github.com/quantarax/wiretransport/security"
)

// Sender is the server side of the download protocol (spec.md §4.7.2).
// Unlike the upload protocol, download's chunk stream flows from the
// handler to the caller before its terminal response, which is exactly
// what rpcmux's Handler/StreamSink already model — no extra
// subscription bookkeeping needed on this side.
type Sender struct {
	fileStore  FileStore
	permission DownloadPermissionFunc
	cipher     *security.ChunkCipher
}

// SenderOption configures a Sender at construction time.
type SenderOption func(*Sender)

// WithDownloadPermission installs the permission hook; a denial whose
// Reason is exactly "not found" maps to a 404, any other denial to 403
// (spec.md §6).
func WithDownloadPermission(fn DownloadPermissionFunc) SenderOption {
	return func(s *Sender) { s.permission = fn }
}

// WithSenderCipher encrypts outbound chunk payloads under cipher. The
// Merkle tree is still built over the plaintext chunks held by the
// FileStore; only the bytes placed in the wire frame are sealed.
func WithSenderCipher(cipher *security.ChunkCipher) SenderOption {
	return func(s *Sender) { s.cipher = cipher }
}

// NewSender builds a Sender and registers its download handler on mux.
func NewSender(mux *rpcmux.Mux, fileStore FileStore, opts ...SenderOption) *Sender {
	s := &Sender{fileStore: fileStore}
	for _, opt := range opts {
		opt(s)
	}
	mux.Handle(MethodDownload, s.handleDownloadRequest)
	return s
}

func (s *Sender) handleDownloadRequest(ctx context.Context, req *rpcmux.Request, stream *rpcmux.StreamSink) (any, error) {
	v, err := req.Decode()
	if err != nil {
		return nil, &rpcmux.CallError{StatusCode: rpcmux.StatusInternal, Details: "malformed download request"}
	}
	dr, err := decodeAs[downloadRequest](v)
	if err != nil {
		return nil, &rpcmux.CallError{StatusCode: rpcmux.StatusInternal, Details: "malformed download request"}
	}

	if s.permission != nil {
		result, err := s.permission(dr.ContentID)
		if err != nil {
			return nil, &rpcmux.CallError{StatusCode: rpcmux.StatusInternal, Details: err.Error()}
		}
		if !result.Allowed {
			code := rpcmux.StatusDenied
			if result.Reason == "not found" {
				code = rpcmux.StatusNotFound
			}
			return nil, &rpcmux.CallError{StatusCode: code, Details: result.Reason}
		}
	}

	file, err := s.fileStore.GetFile(dr.ContentID)
	if err != nil {
		return nil, &rpcmux.CallError{StatusCode: rpcmux.StatusInternal, Details: err.Error()}
	}
	if file == nil {
		return nil, &rpcmux.CallError{StatusCode: rpcmux.StatusNotFound, Details: "not found"}
	}

	tree, err := merkle.Build(file.Chunks)
	if err != nil {
		return nil, &rpcmux.CallError{StatusCode: rpcmux.StatusInternal, Details: err.Error()}
	}

	for i, data := range file.Chunks {
		proof, err := tree.Proof(i)
		if err != nil {
			return nil, &rpcmux.CallError{StatusCode: rpcmux.StatusInternal, Details: err.Error()}
		}
		wireData := data
		if s.cipher != nil {
			wireData, err = s.cipher.Encrypt(uint64(i), data)
			if err != nil {
				return nil, &rpcmux.CallError{StatusCode: rpcmux.StatusInternal, Details: err.Error()}
			}
		}
		if err := stream.Send(downloadChunk{Index: uint64(i), Data: wireData, Proof: proof}); err != nil {
			return nil, &rpcmux.CallError{StatusCode: rpcmux.StatusInternal, Details: err.Error()}
		}
	}

	return downloadMetadata{
		Filename: file.Metadata.Filename, Size: file.Metadata.Size,
		MimeType: file.Metadata.MimeType, Encrypted: file.Metadata.Encrypted,
	}, nil
}
