// Command chunkstat computes a file's content id (Merkle root) and chunk
// layout without transferring it, grounded on the teacher's cmd/chunker
// manifest tool but riding the merkle/transfer packages directly instead
// of a separate internal/chunker manifest type.
package main

import (
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"github.com/quantarax/wiretransport/merkle"
	"github.com/quantarax/wiretransport/transfer"
)

type manifest struct {
	FileSize   int64    `json:"file_size"`
	ChunkSize  int64    `json:"chunk_size"`
	ChunkCount int      `json:"chunk_count"`
	ContentID  string   `json:"content_id"`
	ChunkHashes []string `json:"chunk_hashes,omitempty"`
}

func main() {
	chunkSize := flag.Int64("chunk-size", 65536, "Chunk size in bytes (default: 64 KiB)")
	output := flag.String("output", "", "Output manifest to file (default: stdout)")
	pretty := flag.Bool("pretty", true, "Pretty-print JSON output")
	withHashes := flag.Bool("with-hashes", false, "Include each chunk's leaf hash")
	flag.Parse()

	if flag.NArg() < 1 {
		fmt.Fprintln(os.Stderr, "Usage: chunkstat [options] <file_path>")
		fmt.Fprintln(os.Stderr, "")
		fmt.Fprintln(os.Stderr, "Options:")
		flag.PrintDefaults()
		os.Exit(1)
	}

	filePath := flag.Arg(0)
	data, err := os.ReadFile(filePath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error reading file: %v\n", err)
		os.Exit(2)
	}

	chunks := transfer.SplitChunks(data, *chunkSize)
	tree, err := merkle.Build(chunks)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error building merkle tree: %v\n", err)
		os.Exit(3)
	}

	m := manifest{
		FileSize:   int64(len(data)),
		ChunkSize:  *chunkSize,
		ChunkCount: len(chunks),
		ContentID:  tree.RootBase64(),
	}
	if *withHashes {
		for _, c := range chunks {
			leaf := sha256.Sum256(c)
			m.ChunkHashes = append(m.ChunkHashes, base64.StdEncoding.EncodeToString(leaf[:]))
		}
	}

	fmt.Fprintf(os.Stderr, "File size: %d bytes\n", m.FileSize)
	fmt.Fprintf(os.Stderr, "Chunk size: %d bytes\n", m.ChunkSize)
	fmt.Fprintf(os.Stderr, "Chunks: %d\n", m.ChunkCount)
	fmt.Fprintf(os.Stderr, "Content id: %s\n\n", m.ContentID)

	var jsonData []byte
	if *pretty {
		jsonData, err = json.MarshalIndent(m, "", "  ")
	} else {
		jsonData, err = json.Marshal(m)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error serializing manifest: %v\n", err)
		os.Exit(5)
	}

	if *output != "" {
		if err := os.WriteFile(*output, jsonData, 0644); err != nil {
			fmt.Fprintf(os.Stderr, "Error writing to file: %v\n", err)
			os.Exit(6)
		}
		fmt.Fprintf(os.Stderr, "Manifest written to: %s\n", *output)
		return
	}
	fmt.Println(string(jsonData))
}
