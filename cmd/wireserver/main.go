// Command wireserver accepts QUIC connections carrying the envelope
// protocol and answers transfer.upload / transfer.download / transfer.verify
// calls against a chosen storage backend, following the teacher's
// relay/main.go daemon shape (flag-configured, signal-driven shutdown,
// an HTTP side-channel for health and metrics).
package main

import (
	"context"
	"crypto/ed25519"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/quantarax/wiretransport/config"
	"github.com/quantarax/wiretransport/internal/crypto"
	"github.com/quantarax/wiretransport/internal/quicutil"
	"github.com/quantarax/wiretransport/internal/ratelimit"
	"github.com/quantarax/wiretransport/internal/validation"
	"github.com/quantarax/wiretransport/observability"
	"github.com/quantarax/wiretransport/rpcmux"
	"github.com/quantarax/wiretransport/storage"
	"github.com/quantarax/wiretransport/transfer"
	"github.com/quantarax/wiretransport/transport/quictransport"
)

func main() {
	listen := flag.String("listen", ":4433", "QUIC listen address")
	httpAddr := flag.String("http", ":8083", "health/metrics HTTP listen address")
	storageKind := flag.String("storage", "memory", "upload/file storage backend: memory or durable")
	boltPath := flag.String("bolt-path", "wireserver-uploads.db", "BoltDB path for --storage=durable in-flight uploads")
	sqlitePath := flag.String("sqlite-path", "wireserver-files.db", "SQLite path for --storage=durable completed files")
	chunkSize := flag.Int64("chunk-size", config.DefaultConfig().ChunkSize, "expected upload chunk size in bytes")
	maxFileSize := flag.Int64("max-file-size", config.DefaultConfig().MaxFileSize, "largest file size an upload may declare")
	uploadTTL := flag.Duration("upload-ttl", config.DefaultConfig().UploadSessionTTL, "TTL of an in-flight upload session, measured from its start")
	cleanupInterval := flag.Duration("cleanup-interval", config.DefaultConfig().UploadCleanupInterval, "how often expired upload sessions are swept")
	rateLimit := flag.Float64("upload-rate-limit", 0, "admitted new uploads per second (0 disables)")
	rateBurst := flag.Int("upload-rate-burst", 10, "burst size for --upload-rate-limit")
	signVerification := flag.Bool("sign-verification-receipts", false, "sign completed-upload verification receipts with a generated Ed25519 key")
	logLevel := flag.String("log-level", "info", "logging level (unused beyond being recorded; zerolog level wiring follows the teacher's logger)")
	flag.Parse()

	if err := validation.ValidateAddr(*listen); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	log := observability.NewLogger("wireserver", "v1", os.Stderr)
	log.Info(fmt.Sprintf("wiretransport server starting, log level %s", *logLevel))

	if shutdown, err := observability.InitTracing(context.Background(), "wireserver"); err == nil {
		defer shutdown(context.Background())
	}

	reg := prometheus.NewRegistry()
	metrics := observability.NewMetrics(reg)
	rpcSink := observability.NewRPCMetricsSink(metrics)

	cfg := config.DefaultConfig()
	cfg.ChunkSize = *chunkSize
	cfg.MaxFileSize = *maxFileSize
	cfg.UploadSessionTTL = *uploadTTL
	cfg.UploadCleanupInterval = *cleanupInterval

	uploadStore, fileStore, closeStorage := buildStorage(*storageKind, *boltPath, *sqlitePath, cfg.UploadSessionTTL, log)
	defer closeStorage()

	var receiverOpts []transfer.ReceiverOption
	if *rateLimit > 0 {
		limiter := ratelimit.NewTokenBucket(*rateLimit, *rateBurst)
		receiverOpts = append(receiverOpts, transfer.WithRateLimitedUploadPermission(limiter, nil))
		log.Info(fmt.Sprintf("upload admission rate-limited to %.1f/s burst %d", *rateLimit, *rateBurst))
	}
	var signingKey ed25519.PrivateKey
	if *signVerification {
		kp, err := crypto.GenerateEd25519()
		if err != nil {
			log.Fatal(err, "failed to generate verification signing key")
		}
		signingKey = kp.PrivateKey
		receiverOpts = append(receiverOpts, transfer.WithVerificationSigning(signingKey))
		log.Info(fmt.Sprintf("signing verification receipts, fingerprint %s", crypto.ComputeFingerprint(kp.PublicKey)))
	}

	certPEM, keyPEM, err := quicutil.GenerateSelfSignedCert()
	if err != nil {
		log.Fatal(err, "failed to generate server certificate")
	}
	tlsConfig, err := quictransport.ServerTLSConfig(certPEM, keyPEM)
	if err != nil {
		log.Fatal(err, "failed to build server TLS config")
	}

	listener, err := quictransport.Listen(*listen, tlsConfig)
	if err != nil {
		log.Fatal(err, "failed to start QUIC listener")
	}
	log.Info(fmt.Sprintf("listening on %s", listener.Addr()))

	health := observability.NewHealthChecker("v1")
	health.RegisterCheck("quic_listener", observability.QUICListenerCheck(listener.Addr()))
	go serveHTTP(*httpAddr, health, reg, log)

	ctx, cancel := context.WithCancel(context.Background())
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Info("shutdown signal received")
		cancel()
		listener.Close()
	}()

	go runCleanupLoop(ctx, uploadStore, cfg.UploadCleanupInterval, log)

	for {
		tr, err := listener.Accept(ctx)
		if err != nil {
			if ctx.Err() != nil {
				break
			}
			log.Error(err, "failed to accept connection")
			continue
		}
		document := uuid.NewString()
		go serveConnection(ctx, document, tr, uploadStore, fileStore, cfg, receiverOpts, rpcSink, log)
	}
	log.Info("wireserver stopped")
}

func buildStorage(kind, boltPath, sqlitePath string, ttl time.Duration, log *observability.Logger) (transfer.TemporaryUploadStore, transfer.FileStore, func()) {
	switch kind {
	case "durable":
		up, err := storage.OpenBoltUploadStore(boltPath, ttl)
		if err != nil {
			log.Fatal(err, "failed to open durable upload store")
		}
		fs, err := storage.NewSQLiteFileStore(sqlitePath)
		if err != nil {
			log.Fatal(err, "failed to open durable file store")
		}
		log.Info(fmt.Sprintf("durable storage: uploads=%s files=%s", boltPath, sqlitePath))
		return up, fs, func() {
			up.Close()
			fs.Close()
		}
	default:
		log.Info("in-memory storage (no durability across restarts)")
		return storage.NewMemoryUploadStore(ttl), storage.NewMemoryFileStore(), func() {}
	}
}

func serveConnection(ctx context.Context, document string, tr *quictransport.Transport, uploadStore transfer.TemporaryUploadStore, fileStore transfer.FileStore, cfg *config.Config, receiverOpts []transfer.ReceiverOption, rpcSink rpcmux.MetricsSink, log *observability.Logger) {
	defer tr.Close()
	mux := rpcmux.NewMux(document, tr, rpcmux.WithDefaultTimeout(cfg.RPCDefaultTimeout), rpcmux.WithMetrics(rpcSink))
	acks := transfer.NewAckTracker()
	tr.Bind(mux, acks)

	transfer.NewReceiver(mux, uploadStore, fileStore, cfg, receiverOpts...)
	transfer.NewSender(mux, fileStore)

	log.Info(fmt.Sprintf("%s: accepted connection", document))
	if err := tr.Serve(ctx); err != nil && ctx.Err() == nil {
		log.Error(err, fmt.Sprintf("%s: connection serve loop ended", document))
	}
}

func runCleanupLoop(ctx context.Context, store transfer.TemporaryUploadStore, interval time.Duration, log *observability.Logger) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			removed, err := store.CleanupExpiredUploads()
			if err != nil {
				log.Error(err, "upload cleanup sweep failed")
				continue
			}
			if removed > 0 {
				log.Info(fmt.Sprintf("cleanup sweep removed %d expired upload sessions", removed))
			}
		}
	}
}

func serveHTTP(addr string, health *observability.HealthChecker, reg *prometheus.Registry, log *observability.Logger) {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", health.Handler())
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	log.Info(fmt.Sprintf("health/metrics listening on %s", addr))
	if err := http.ListenAndServe(addr, mux); err != nil {
		log.Error(err, "health/metrics server stopped")
	}
}
