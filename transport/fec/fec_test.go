package fec

import (
	"bytes"
	"testing"
	"time"
)

func TestGroupEncodeReconstruct(t *testing.T) {
	g, err := NewGroup(4, 2, 8)
	if err != nil {
		t.Fatalf("NewGroup: %v", err)
	}
	data := [][]byte{
		[]byte("aaaaaaaa"),
		[]byte("bbbbbbbb"),
		[]byte("cccc"), // shorter than shardLen, needs padding
		[]byte("dddddddd"),
	}
	parity, err := g.Encode(data)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if len(parity) != 2 {
		t.Fatalf("expected 2 parity shards, got %d", len(parity))
	}

	shards := make([][]byte, 6)
	for i, c := range data {
		shards[i] = g.pad(c)
	}
	copy(shards[4:], parity)

	// Drop two data shards; within recovery budget (r=2).
	lost := append([][]byte(nil), shards...)
	lost[1] = nil
	lost[2] = nil
	if err := g.Reconstruct(lost); err != nil {
		t.Fatalf("Reconstruct: %v", err)
	}
	for i := range data {
		if !bytes.Equal(lost[i], shards[i]) {
			t.Errorf("shard %d = %q, want %q", i, lost[i], shards[i])
		}
	}
}

func TestGroupReconstructTooManyMissing(t *testing.T) {
	g, err := NewGroup(4, 2, 8)
	if err != nil {
		t.Fatalf("NewGroup: %v", err)
	}
	shards := make([][]byte, 6)
	for i := range shards {
		shards[i] = nil
	}
	shards[3] = make([]byte, 8)
	if err := g.Reconstruct(shards); err == nil {
		t.Fatal("expected error when more shards are missing than r allows")
	}
}

func TestGroupEncodeWrongChunkCount(t *testing.T) {
	g, err := NewGroup(4, 2, 8)
	if err != nil {
		t.Fatalf("NewGroup: %v", err)
	}
	if _, err := g.Encode([][]byte{{1, 2, 3}}); err == nil {
		t.Fatal("expected error for wrong chunk count")
	}
}

type fakeClock struct {
	t time.Time
}

func (f *fakeClock) now() time.Time { return f.t }

func (f *fakeClock) advance(d time.Duration) { f.t = f.t.Add(d) }

func TestAdaptivePolicyEnablesOnSustainedLoss(t *testing.T) {
	clock := &fakeClock{t: time.Unix(0, 0)}
	cfg := DefaultPolicyConfig()
	cfg.MinObservation = time.Second
	ap := newAdaptivePolicy(cfg, clock.now)

	if enabled, _, _ := ap.Parameters(); enabled {
		t.Fatal("policy should start disabled")
	}

	clock.t = clock.t.Add(2 * time.Second)
	ap.Observe(2.0) // above EnableThreshold (1.0) and MinObservation elapsed

	enabled, k, r := ap.Parameters()
	if !enabled {
		t.Fatal("expected policy to enable after sustained loss")
	}
	if k != cfg.DefaultK || r != cfg.DefaultR {
		t.Fatalf("Parameters() = (%d, %d), want (%d, %d)", k, r, cfg.DefaultK, cfg.DefaultR)
	}
}

func TestAdaptivePolicyStaysDisabledBeforeMinObservation(t *testing.T) {
	clock := &fakeClock{t: time.Unix(0, 0)}
	cfg := DefaultPolicyConfig()
	cfg.MinObservation = time.Minute
	ap := newAdaptivePolicy(cfg, clock.now)

	ap.Observe(10.0) // high loss, but no time has passed since construction
	if enabled, _, _ := ap.Parameters(); enabled {
		t.Fatal("policy should not enable before MinObservation has elapsed")
	}
}

func TestAdaptivePolicySetParityShardsValidatesRange(t *testing.T) {
	ap := NewAdaptivePolicy(DefaultPolicyConfig())
	if err := ap.SetParityShards(0); err == nil {
		t.Fatal("expected error for r < 1")
	}
	if err := ap.SetParityShards(100); err == nil {
		t.Fatal("expected error for r beyond MaxR")
	}
	if err := ap.SetParityShards(3); err != nil {
		t.Fatalf("SetParityShards(3): %v", err)
	}
	if _, _, r := ap.Parameters(); r != 3 {
		t.Fatalf("r = %d, want 3", r)
	}
}
