package quictransport

import (
	"context"
	"testing"
	"time"

	"github.com/quantarax/wiretransport/internal/quicutil"
	"github.com/quantarax/wiretransport/wire"
)

type recordingDispatcher struct {
	got chan *wire.Envelope
}

func (d *recordingDispatcher) Dispatch(env *wire.Envelope) error {
	d.got <- env
	return nil
}

type recordingAcks struct {
	got chan *wire.Envelope
}

func (a *recordingAcks) HandleAck(env *wire.Envelope) {
	a.got <- env
}

func TestTransportRoundTrip(t *testing.T) {
	certPEM, keyPEM, err := quicutil.GenerateSelfSignedCert()
	if err != nil {
		t.Fatalf("cert: %v", err)
	}
	serverTLS, err := ServerTLSConfig(certPEM, keyPEM)
	if err != nil {
		t.Fatalf("server tls: %v", err)
	}

	ln, err := Listen("127.0.0.1:0", serverTLS)
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	serverCh := make(chan *Transport, 1)
	serverErrCh := make(chan error, 1)
	go func() {
		srv, err := ln.Accept(ctx)
		if err != nil {
			serverErrCh <- err
			return
		}
		serverCh <- srv
	}()

	client, err := Dial(ctx, ln.Addr(), ClientTLSConfig())
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer client.Close()

	var server *Transport
	select {
	case server = <-serverCh:
	case err := <-serverErrCh:
		t.Fatalf("accept: %v", err)
	case <-ctx.Done():
		t.Fatal("timed out waiting for accept")
	}
	defer server.Close()

	dispatcher := &recordingDispatcher{got: make(chan *wire.Envelope, 1)}
	acks := &recordingAcks{got: make(chan *wire.Envelope, 1)}
	server.Bind(dispatcher, acks)
	go server.Serve(ctx)

	rpcEnv := &wire.Envelope{
		Document: "doc-1",
		Target:   wire.TargetRPC,
		RPC: &wire.RPCFrame{
			Method:  "Transfer.BeginUpload",
			ReqType: wire.RPCRequestKind,
			Status:  wire.RPCStatusSuccess,
			Payload: []byte("hello"),
		},
	}
	if err := client.Send(rpcEnv); err != nil {
		t.Fatalf("send rpc: %v", err)
	}

	select {
	case got := <-dispatcher.got:
		if got.RPC.Method != "Transfer.BeginUpload" {
			t.Fatalf("method = %q", got.RPC.Method)
		}
	case <-ctx.Done():
		t.Fatal("timed out waiting for rpc dispatch")
	}

	id, err := rpcEnv.IDBytes()
	if err != nil {
		t.Fatalf("id: %v", err)
	}
	ackEnv := &wire.Envelope{
		Document: "doc-1",
		Target:   wire.TargetAck,
		Ack:      &wire.AckBody{MessageID: id},
	}
	if err := client.Send(ackEnv); err != nil {
		t.Fatalf("send ack: %v", err)
	}

	select {
	case <-acks.got:
	case <-ctx.Done():
		t.Fatal("timed out waiting for ack")
	}
}
