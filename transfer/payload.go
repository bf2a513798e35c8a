package transfer

import "encoding/json"

// RPC method names the upload/download protocols register on a shared
// rpcmux.Mux. Both peers must agree on these strings out of band (there
// is no method-discovery mechanism in v1).
const (
	MethodUpload   = "transfer.upload"
	MethodDownload = "transfer.download"
	MethodVerify   = "transfer.verify"
)

// uploadRequest is the payload of the client's upload RPC request
// (spec.md §4.7.1 step 1). The Merkle root is disclosed up front so the
// receiver can verify each chunk incrementally rather than only once the
// last one arrives.
type uploadRequest struct {
	ClientFileID string `json:"clientFileId"`
	Filename     string `json:"filename"`
	Size         uint64 `json:"size"`
	MimeType     string `json:"mimeType"`
	Encrypted    bool   `json:"encrypted"`
	TotalChunks  uint64 `json:"totalChunks"`
	MerkleRoot   []byte `json:"merkleRoot"`
}

// uploadAccepted is the success payload of the server's response to an
// upload request (step 2): the same clientFileId, echoed back.
type uploadAccepted struct {
	ClientFileID string `json:"clientFileId"`
}

// uploadChunk is the payload of each client-to-server stream frame
// carrying one chunk (step 3).
type uploadChunk struct {
	Index uint64   `json:"index"`
	Data  []byte   `json:"data"`
	Proof [][]byte `json:"proof"`
}

// downloadRequest is the payload of the client's download RPC request
// (spec.md §4.7.2 step 1).
type downloadRequest struct {
	ContentID string `json:"contentId"`
}

// downloadMetadata is the success payload of the server's response to a
// download request (step 2).
type downloadMetadata struct {
	Filename  string `json:"filename"`
	Size      uint64 `json:"size"`
	MimeType  string `json:"mimeType"`
	Encrypted bool   `json:"encrypted"`
}

// downloadChunk is the payload of each server-to-client stream frame
// carrying one chunk (step 3).
type downloadChunk struct {
	Index uint64   `json:"index"`
	Data  []byte   `json:"data"`
	Proof [][]byte `json:"proof"`
}

// verifyRequest is the payload of a client's request for a completed
// upload's verification receipt (transfer.verify).
type verifyRequest struct {
	ContentID string `json:"contentId"`
}

// verifyResponse carries a VerificationReceipt's fields flattened for
// the JSON codec; security.VerificationReceipt itself is not JSON-tagged
// since it is shared with non-wire callers.
type verifyResponse struct {
	ContentID    string `json:"contentId"`
	Status       string `json:"status"`
	ComputedRoot []byte `json:"computedRoot"`
	ExpectedRoot []byte `json:"expectedRoot"`
	TimestampUTC int64  `json:"timestampUtc"`
	Signature    []byte `json:"signature,omitempty"`
	SigningKey   []byte `json:"signingKey,omitempty"`
}

// decodeAs re-marshals a JSONCodec-decoded any (a map[string]any tree)
// into a concrete struct via JSON, since the generic codec's Decode
// returns an untyped value rather than the caller's struct.
func decodeAs[T any](v any) (T, error) {
	var out T
	b, err := json.Marshal(v)
	if err != nil {
		return out, err
	}
	err = json.Unmarshal(b, &out)
	return out, err
}
