package transfer

import (
	"bytes"
	"fmt"
	"sort"
)

// ChunkRangeCompressor renders a set of received chunk indices as a
// compact range notation ("0-3,7,9-12") for progress reporting, instead
// of a full index list — useful once a file's chunk count runs into the
// thousands. Grounded on the teacher's
// daemon/transport/control_stream.go ChunkRangeCompressor, generalized
// from int64 to the uint64 chunk indices this module uses throughout.
type ChunkRangeCompressor struct{}

// Compress renders chunks (not required to be sorted or unique) as
// comma-separated ranges in ascending order.
func (ChunkRangeCompressor) Compress(chunks []uint64) string {
	if len(chunks) == 0 {
		return ""
	}
	sorted := append([]uint64(nil), chunks...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	var buf bytes.Buffer
	start, prev := sorted[0], sorted[0]
	flush := func() {
		if buf.Len() > 0 {
			buf.WriteByte(',')
		}
		if start == prev {
			fmt.Fprintf(&buf, "%d", start)
		} else {
			fmt.Fprintf(&buf, "%d-%d", start, prev)
		}
	}
	for _, c := range sorted[1:] {
		if c == prev || c == prev+1 {
			prev = c
			continue
		}
		flush()
		start, prev = c, c
	}
	flush()
	return buf.String()
}

// ReceivedRanges returns the compact range notation for an upload
// progress snapshot's present chunk indices.
func (p *UploadProgress) ReceivedRanges() string {
	indices := make([]uint64, 0, len(p.ChunksPresent))
	for idx := range p.ChunksPresent {
		indices = append(indices, idx)
	}
	return ChunkRangeCompressor{}.Compress(indices)
}
