package transfer

import "testing"

func TestChunkRangeCompressorCompress(t *testing.T) {
	cases := []struct {
		in   []uint64
		want string
	}{
		{nil, ""},
		{[]uint64{5}, "5"},
		{[]uint64{0, 1, 2, 3}, "0-3"},
		{[]uint64{3, 1, 0, 2, 7, 9, 10, 12}, "0-3,7,9-10,12"},
	}
	c := ChunkRangeCompressor{}
	for _, tc := range cases {
		if got := c.Compress(tc.in); got != tc.want {
			t.Errorf("Compress(%v) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestUploadProgressReceivedRanges(t *testing.T) {
	p := &UploadProgress{ChunksPresent: map[uint64][]byte{
		0: {}, 1: {}, 2: {}, 5: {},
	}}
	if got := p.ReceivedRanges(); got != "0-2,5" {
		t.Fatalf("ReceivedRanges() = %q, want %q", got, "0-2,5")
	}
}
