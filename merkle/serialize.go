package merkle

import (
	"fmt"

	"github.com/quantarax/wiretransport/wire"
)

// levelSizes returns the node count of every level, leaves first, root
// last, for a tree built over chunkCount leaves. It mirrors Build's
// halving-with-duplication rule without touching any hash.
func levelSizes(chunkCount int) []int {
	sizes := []int{chunkCount}
	cur := chunkCount
	for cur > 1 {
		cur = (cur + 1) / 2
		sizes = append(sizes, cur)
	}
	return sizes
}

// Serialize writes the tree's nodes breadth-first (leaves first, root
// last) as a flat byte string: chunk count, hash size, total node count,
// then each node's raw hash with no per-node length prefix since every
// hash is HashSize bytes.
func (t *Tree) Serialize() []byte {
	e := wire.NewEncoder()
	e.WriteVarUint(uint64(t.chunkCount))
	e.WriteVarUint(uint64(HashSize))

	total := 0
	for _, lvl := range t.levels {
		total += len(lvl)
	}
	e.WriteVarUint(uint64(total))

	for _, lvl := range t.levels {
		for _, node := range lvl {
			e.WriteRaw(node)
		}
	}
	return e.Bytes()
}

// Deserialize reconstructs a Tree from bytes produced by Serialize. The
// caller-supplied chunkCount is cross-checked against the header's own
// count, so a tree can't silently be reattached to the wrong file.
func Deserialize(b []byte, chunkCount int) (*Tree, error) {
	d := wire.NewDecoder(b)

	headerCount, err := d.ReadVarUint()
	if err != nil {
		return nil, fmt.Errorf("merkle: deserialize: %w", err)
	}
	if int(headerCount) != chunkCount {
		return nil, fmt.Errorf("merkle: deserialize: chunk count mismatch: header says %d, caller says %d", headerCount, chunkCount)
	}

	hashSize, err := d.ReadVarUint()
	if err != nil {
		return nil, fmt.Errorf("merkle: deserialize: %w", err)
	}
	if hashSize != HashSize {
		return nil, fmt.Errorf("merkle: deserialize: unexpected hash size %d, want %d", hashSize, HashSize)
	}

	totalNodes, err := d.ReadVarUint()
	if err != nil {
		return nil, fmt.Errorf("merkle: deserialize: %w", err)
	}

	sizes := levelSizes(chunkCount)
	wantTotal := 0
	for _, s := range sizes {
		wantTotal += s
	}
	if int(totalNodes) != wantTotal {
		return nil, fmt.Errorf("merkle: deserialize: node count mismatch: header says %d, expected %d for %d chunks", totalNodes, wantTotal, chunkCount)
	}

	levels := make([][][]byte, len(sizes))
	for li, size := range sizes {
		lvl := make([][]byte, size)
		for i := 0; i < size; i++ {
			raw, err := d.ReadRaw(HashSize)
			if err != nil {
				return nil, fmt.Errorf("merkle: deserialize: %w", err)
			}
			lvl[i] = raw
		}
		levels[li] = lvl
	}
	if !d.Done() {
		return nil, fmt.Errorf("merkle: deserialize: trailing bytes after expected %d nodes", totalNodes)
	}

	return &Tree{levels: levels, chunkCount: chunkCount}, nil
}
