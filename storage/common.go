package storage

import "encoding/base64"

// contentIDFromRoot is the canonical content id for a finished upload: the
// base64 encoding of its Merkle root, matching Downloader's decoding of a
// content id back into a root (transfer/downloader.go).
func contentIDFromRoot(root []byte) string {
	return base64.StdEncoding.EncodeToString(root)
}
