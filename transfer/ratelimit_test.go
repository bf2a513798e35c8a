package transfer

import (
	"context"
	"testing"

	"github.com/quantarax/wiretransport/config"
	"github.com/quantarax/wiretransport/internal/ratelimit"
	"github.com/quantarax/wiretransport/rpcmux"
)

func TestRateLimitedUploadPermissionDeniesOverBurst(t *testing.T) {
	cfg := config.DefaultConfig()
	clientAcks := NewAckTracker()
	clientToServer := &demuxSender{}
	serverToClient := &demuxSender{acks: clientAcks}
	clientMux := rpcmux.NewMux("doc", clientToServer)
	serverMux := rpcmux.NewMux("doc", serverToClient)
	clientToServer.rpcMux = serverMux
	serverToClient.rpcMux = clientMux

	limiter := ratelimit.NewTokenBucket(0, 1) // one token, no refill
	NewReceiver(serverMux, newMemUploadStore(), newMemFileStore(), cfg,
		WithRateLimitedUploadPermission(limiter, nil))

	uploader := NewUploader(clientMux, clientAcks, cfg)

	if _, err := uploader.Upload(context.Background(), "cf1", "a.txt", "text/plain", false, []byte("hi")); err != nil {
		t.Fatalf("first upload should consume the sole token without denial: %v", err)
	}

	_, err := uploader.Upload(context.Background(), "cf2", "b.txt", "text/plain", false, []byte("hi"))
	ce, ok := err.(*rpcmux.CallError)
	if !ok {
		t.Fatalf("expected *rpcmux.CallError, got %T: %v", err, err)
	}
	if ce.StatusCode != rpcmux.StatusDenied {
		t.Fatalf("status = %d, want %d", ce.StatusCode, rpcmux.StatusDenied)
	}
}
