// Command wireclient dials a wireserver and drives the upload, download,
// or verify RPCs against a single file, following the teacher's
// cmd/quic_send / cmd/quic_recv flag-per-run shape but riding the
// envelope-native transport instead of the teacher's ad-hoc chunk header.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/quantarax/wiretransport/config"
	"github.com/quantarax/wiretransport/internal/validation"
	"github.com/quantarax/wiretransport/observability"
	"github.com/quantarax/wiretransport/rpcmux"
	"github.com/quantarax/wiretransport/transfer"
	"github.com/quantarax/wiretransport/transport/quictransport"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}
	cmd := os.Args[1]
	args := os.Args[2:]

	switch cmd {
	case "upload":
		runUpload(args)
	case "download":
		runDownload(args)
	case "verify":
		runVerify(args)
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n", cmd)
		usage()
		os.Exit(1)
	}
}

func usage() {
	fmt.Println("wireclient - wiretransport protocol CLI")
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  wireclient upload   -addr host:port -file path [-mime type]")
	fmt.Println("  wireclient download -addr host:port -content-id id -out path")
	fmt.Println("  wireclient verify   -addr host:port -content-id id")
}

// dial opens a connection to addr, wires an RPC mux over it, and starts
// the transport's read loop. The caller must cancel ctx (or Close tr)
// when done to stop the background Serve goroutine.
func dial(ctx context.Context, addr string) (tr *quictransport.Transport, mux *rpcmux.Mux, acks *transfer.AckTracker, err error) {
	tr, err = quictransport.Dial(ctx, addr, quictransport.ClientTLSConfig())
	if err != nil {
		return nil, nil, nil, fmt.Errorf("dial %s: %w", addr, err)
	}
	mux = rpcmux.NewMux("wireclient", tr)
	acks = transfer.NewAckTracker()
	tr.Bind(mux, acks)
	go func() {
		_ = tr.Serve(ctx)
	}()
	return tr, mux, acks, nil
}

func runUpload(args []string) {
	fs := flag.NewFlagSet("upload", flag.ExitOnError)
	addr := fs.String("addr", "", "wireserver address (host:port)")
	filePath := fs.String("file", "", "file to upload")
	mimeType := fs.String("mime", "application/octet-stream", "MIME type to record")
	clientFileID := fs.String("client-file-id", "", "client-chosen file id (defaults to the file's basename)")
	timeout := fs.Duration("timeout", 60*time.Second, "upload deadline")
	fs.Parse(args)

	if *addr == "" || *filePath == "" {
		fmt.Fprintln(os.Stderr, "upload requires -addr and -file")
		os.Exit(1)
	}
	if err := validation.ValidateAddr(*addr); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	if err := validation.ValidateFilePath(*filePath, true); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	fileID := *clientFileID
	if fileID == "" {
		fileID = filepath.Base(*filePath)
	}

	data, err := os.ReadFile(*filePath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "read %s: %v\n", *filePath, err)
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	tr, mux, acks, err := dial(ctx, *addr)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer tr.Close()

	uploader := transfer.NewUploader(mux, acks, config.DefaultConfig())
	contentID, err := uploader.Upload(ctx, fileID, filepath.Base(*filePath), *mimeType, false, data)
	if err != nil {
		fmt.Fprintf(os.Stderr, "upload failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(contentID)
}

func runDownload(args []string) {
	fs := flag.NewFlagSet("download", flag.ExitOnError)
	addr := fs.String("addr", "", "wireserver address (host:port)")
	contentID := fs.String("content-id", "", "content id to download")
	out := fs.String("out", "", "output file path")
	timeout := fs.Duration("timeout", 60*time.Second, "download deadline")
	fs.Parse(args)

	if *addr == "" || *contentID == "" || *out == "" {
		fmt.Fprintln(os.Stderr, "download requires -addr, -content-id and -out")
		os.Exit(1)
	}
	if err := validation.ValidateAddr(*addr); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	tr, mux, _, err := dial(ctx, *addr)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer tr.Close()

	downloader := transfer.NewDownloader(mux)
	data, meta, err := downloader.Download(ctx, *contentID)
	if err != nil {
		fmt.Fprintf(os.Stderr, "download failed: %v\n", err)
		os.Exit(1)
	}
	if err := os.WriteFile(*out, data, 0644); err != nil {
		fmt.Fprintf(os.Stderr, "write %s: %v\n", *out, err)
		os.Exit(1)
	}
	fmt.Printf("downloaded %s (%d bytes, %s)\n", meta.Filename, meta.Size, meta.MimeType)
}

func runVerify(args []string) {
	fs := flag.NewFlagSet("verify", flag.ExitOnError)
	addr := fs.String("addr", "", "wireserver address (host:port)")
	contentID := fs.String("content-id", "", "content id to verify")
	timeout := fs.Duration("timeout", 30*time.Second, "verify call deadline")
	fs.Parse(args)

	if *addr == "" || *contentID == "" {
		fmt.Fprintln(os.Stderr, "verify requires -addr and -content-id")
		os.Exit(1)
	}
	if err := validation.ValidateAddr(*addr); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	tr, mux, _, err := dial(ctx, *addr)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer tr.Close()

	receipt, err := transfer.FetchVerificationReceipt(ctx, mux, *contentID)
	if err != nil {
		fmt.Fprintf(os.Stderr, "verify failed: %v\n", err)
		os.Exit(1)
	}
	log := observability.NewLogger("wireclient", "v1", os.Stdout)
	if receipt.VerifySignature() {
		log.Info(fmt.Sprintf("receipt for %s: %s (signature valid)", receipt.ContentID, receipt.Status))
	} else {
		log.Info(fmt.Sprintf("receipt for %s: %s (unsigned or unverifiable)", receipt.ContentID, receipt.Status))
	}
}
