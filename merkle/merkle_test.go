package merkle

import (
	"bytes"
	"crypto/sha256"
	"testing"
)

func sum(b []byte) []byte {
	h := sha256.Sum256(b)
	return h[:]
}

func TestTwoChunkConcreteVectors(t *testing.T) {
	chunkA := []byte{1, 2, 3}
	chunkB := []byte{4, 5}

	tree, err := Build([][]byte{chunkA, chunkB})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	wantRoot := sum(append(append([]byte{}, sum(chunkA)...), sum(chunkB)...))
	if !bytes.Equal(tree.Root(), wantRoot) {
		t.Fatalf("root = % X, want % X", tree.Root(), wantRoot)
	}

	proof0, err := tree.Proof(0)
	if err != nil {
		t.Fatalf("Proof(0): %v", err)
	}
	if len(proof0) != 1 || !bytes.Equal(proof0[0], sum(chunkB)) {
		t.Fatalf("proof(0) = %v, want [sha256(chunkB)]", proof0)
	}

	proof1, err := tree.Proof(1)
	if err != nil {
		t.Fatalf("Proof(1): %v", err)
	}
	if len(proof1) != 1 || !bytes.Equal(proof1[0], sum(chunkA)) {
		t.Fatalf("proof(1) = %v, want [sha256(chunkA)]", proof1)
	}

	if !Verify(chunkA, proof0, tree.Root(), 0) {
		t.Fatal("verify(chunkA, proof0) should succeed")
	}
	if !Verify(chunkB, proof1, tree.Root(), 1) {
		t.Fatal("verify(chunkB, proof1) should succeed")
	}
}

func TestSingleChunkConcreteVector(t *testing.T) {
	chunk := []byte{7, 8, 9}
	tree, err := Build([][]byte{chunk})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	wantRoot := sum(chunk)
	if !bytes.Equal(tree.Root(), wantRoot) {
		t.Fatalf("root = % X, want % X", tree.Root(), wantRoot)
	}

	proof, err := tree.Proof(0)
	if err != nil {
		t.Fatalf("Proof(0): %v", err)
	}
	if len(proof) != 0 {
		t.Fatalf("expected empty proof for single-chunk tree, got %v", proof)
	}
	if !Verify(chunk, proof, tree.Root(), 0) {
		t.Fatal("verify should succeed for single-chunk tree")
	}
}

func TestBuildRejectsEmptyInput(t *testing.T) {
	if _, err := Build(nil); err != ErrEmptyInput {
		t.Fatalf("Build(nil) error = %v, want ErrEmptyInput", err)
	}
}

func TestVerifyEveryIndexOddChunkCounts(t *testing.T) {
	for _, n := range []int{1, 2, 3, 4, 5, 7, 8, 13} {
		chunks := make([][]byte, n)
		for i := range chunks {
			chunks[i] = []byte{byte(i), byte(i * 7), byte(i*13 + 1)}
		}
		tree, err := Build(chunks)
		if err != nil {
			t.Fatalf("n=%d: Build: %v", n, err)
		}
		for i := 0; i < n; i++ {
			proof, err := tree.Proof(i)
			if err != nil {
				t.Fatalf("n=%d: Proof(%d): %v", n, i, err)
			}
			if !Verify(chunks[i], proof, tree.Root(), i) {
				t.Fatalf("n=%d: Verify failed for index %d", n, i)
			}
		}
	}
}

func TestVerifyRejectsTamperedChunk(t *testing.T) {
	chunks := [][]byte{{1, 2, 3}, {4, 5}, {6}}
	tree, _ := Build(chunks)
	proof, _ := tree.Proof(1)

	tampered := []byte{4, 5, 0xFF}
	if Verify(tampered, proof, tree.Root(), 1) {
		t.Fatal("verify should fail for a tampered chunk")
	}
}

func TestVerifyRejectsTamperedRoot(t *testing.T) {
	chunks := [][]byte{{1, 2, 3}, {4, 5}, {6}}
	tree, _ := Build(chunks)
	proof, _ := tree.Proof(1)

	badRoot := append([]byte{}, tree.Root()...)
	badRoot[0] ^= 0xFF
	if Verify(chunks[1], proof, badRoot, 1) {
		t.Fatal("verify should fail for a tampered root")
	}
}

func TestProofOutOfRange(t *testing.T) {
	tree, _ := Build([][]byte{{1}, {2}})
	if _, err := tree.Proof(-1); err == nil {
		t.Fatal("expected error for negative index")
	}
	if _, err := tree.Proof(2); err == nil {
		t.Fatal("expected error for out-of-range index")
	}
}

func TestSerializeDeserializeRoundTrip(t *testing.T) {
	for _, n := range []int{1, 2, 3, 4, 9} {
		chunks := make([][]byte, n)
		for i := range chunks {
			chunks[i] = []byte{byte(i), byte(255 - i)}
		}
		tree, err := Build(chunks)
		if err != nil {
			t.Fatalf("n=%d: Build: %v", n, err)
		}

		blob := tree.Serialize()
		restored, err := Deserialize(blob, n)
		if err != nil {
			t.Fatalf("n=%d: Deserialize: %v", n, err)
		}
		if !bytes.Equal(restored.Root(), tree.Root()) {
			t.Fatalf("n=%d: root mismatch after round trip", n)
		}

		for i := 0; i < n; i++ {
			proof, err := restored.Proof(i)
			if err != nil {
				t.Fatalf("n=%d: Proof(%d) on restored tree: %v", n, i, err)
			}
			if !Verify(chunks[i], proof, restored.Root(), i) {
				t.Fatalf("n=%d: restored tree failed to verify index %d", n, i)
			}
		}
	}
}

func TestDeserializeRejectsChunkCountMismatch(t *testing.T) {
	tree, _ := Build([][]byte{{1}, {2}, {3}})
	blob := tree.Serialize()
	if _, err := Deserialize(blob, 4); err == nil {
		t.Fatal("expected chunk-count mismatch error")
	}
}
