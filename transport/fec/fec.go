// Package fec provides optional forward error correction over groups of
// transfer chunks, for transports where a lost frame is cheaper to
// reconstruct from parity than to retransmit (e.g. unreliable datagrams
// rather than a QUIC stream's own retransmission). Grounded on the
// teacher's internal/fec.Encoder/Decoder (Reed-Solomon over
// github.com/klauspost/reedsolomon), generalized here from raw
// equal-size shards to groups of the transfer package's chunks, which
// may vary in size (every chunk is ChunkSize bytes except the last).
package fec

import (
	"fmt"

	"github.com/klauspost/reedsolomon"
)

// Group encodes/decodes one batch of K data chunks plus R parity shards.
// A Group's k/r apply to every group it processes; building one per
// upload (sized to that upload's chunk count) amortizes the
// reedsolomon.New setup cost across the whole transfer.
type Group struct {
	k, r     int
	shardLen int
	rs       reedsolomon.Encoder
}

// NewGroup builds a Group for k data chunks, r parity chunks, each chunk
// padded/truncated to exactly shardLen bytes (callers pass the upload's
// chunk size; only the final, possibly short, chunk needs padding).
func NewGroup(k, r, shardLen int) (*Group, error) {
	if k < 1 || k > 256 {
		return nil, fmt.Errorf("fec: data shards must be between 1 and 256, got %d", k)
	}
	if r < 1 || r > 256 {
		return nil, fmt.Errorf("fec: parity shards must be between 1 and 256, got %d", r)
	}
	rs, err := reedsolomon.New(k, r)
	if err != nil {
		return nil, fmt.Errorf("fec: construct reed-solomon(%d,%d): %w", k, r, err)
	}
	return &Group{k: k, r: r, shardLen: shardLen, rs: rs}, nil
}

// pad returns chunk extended with trailing zeros to shardLen, or chunk
// unchanged if it is already that length. Reed-Solomon requires every
// shard in a group to be the same size; the transfer protocol's own
// Merkle verification runs against the original, unpadded chunk, so
// padding here never touches content addressing.
func (g *Group) pad(chunk []byte) []byte {
	if len(chunk) == g.shardLen {
		return chunk
	}
	out := make([]byte, g.shardLen)
	copy(out, chunk)
	return out
}

// Encode computes r parity shards from the group's k data chunks. Each
// data chunk is padded to shardLen for the computation; the returned
// parity shards are always exactly shardLen bytes.
func (g *Group) Encode(chunks [][]byte) ([][]byte, error) {
	if len(chunks) != g.k {
		return nil, fmt.Errorf("fec: expected %d data chunks, got %d", g.k, len(chunks))
	}
	all := make([][]byte, g.k+g.r)
	for i, c := range chunks {
		all[i] = g.pad(c)
	}
	for i := g.k; i < g.k+g.r; i++ {
		all[i] = make([]byte, g.shardLen)
	}
	if err := g.rs.Encode(all); err != nil {
		return nil, fmt.Errorf("fec: encode: %w", err)
	}
	return all[g.k:], nil
}

// Reconstruct fills in any nil entries of shards (length k+r, data
// chunks followed by parity shards, each already padded to shardLen) in
// place, given at most r are missing.
func (g *Group) Reconstruct(shards [][]byte) error {
	if len(shards) != g.k+g.r {
		return fmt.Errorf("fec: expected %d shards (k=%d + r=%d), got %d", g.k+g.r, g.k, g.r, len(shards))
	}
	missing := 0
	for _, s := range shards {
		if s == nil {
			missing++
		}
	}
	if missing == 0 {
		return nil
	}
	if missing > g.r {
		return fmt.Errorf("fec: %d shards missing, can only recover up to %d", missing, g.r)
	}
	if err := g.rs.Reconstruct(shards); err != nil {
		return fmt.Errorf("fec: reconstruct: %w", err)
	}
	return nil
}

// Parameters returns the group's data/parity shard counts.
func (g *Group) Parameters() (k, r int) {
	return g.k, g.r
}
