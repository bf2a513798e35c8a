package quictransport

import (
	"context"
	"crypto/tls"
	"fmt"

	"github.com/quic-go/quic-go"

	"github.com/quantarax/wiretransport/internal/quicutil"
)

// ClientTLSConfig returns a development TLS config for Dial, mirroring the
// teacher's quicutil.MakeClientTLSConfig but pinned to this substrate's
// ALPN.
func ClientTLSConfig() *tls.Config {
	cfg := quicutil.MakeClientTLSConfig()
	cfg.NextProtos = []string{ALPN}
	return cfg
}

// ServerTLSConfig wraps a PEM cert/key pair for Listen, pinned to this
// substrate's ALPN.
func ServerTLSConfig(certPEM, keyPEM []byte) (*tls.Config, error) {
	cfg, err := quicutil.MakeTLSConfig(certPEM, keyPEM)
	if err != nil {
		return nil, err
	}
	cfg.NextProtos = []string{ALPN}
	return cfg, nil
}

// Dial opens a QUIC connection to addr and opens the single bidirectional
// stream this substrate carries envelopes over. The caller must Bind
// handlers and call Serve before any inbound frame can be routed.
func Dial(ctx context.Context, addr string, tlsConfig *tls.Config) (*Transport, error) {
	conn, err := quic.DialAddr(ctx, addr, tlsConfig, &quic.Config{EnableDatagrams: false})
	if err != nil {
		return nil, fmt.Errorf("quictransport: dial %s: %w", addr, err)
	}
	stream, err := conn.OpenStreamSync(ctx)
	if err != nil {
		_ = conn.CloseWithError(0, "stream open failed")
		return nil, fmt.Errorf("quictransport: open stream: %w", err)
	}
	return newTransport(conn, stream), nil
}

// Listener accepts inbound peer connections, each yielding one Transport.
type Listener struct {
	ql *quic.Listener
}

// Listen binds addr for inbound connections.
func Listen(addr string, tlsConfig *tls.Config) (*Listener, error) {
	ql, err := quic.ListenAddr(addr, tlsConfig, &quic.Config{EnableDatagrams: false})
	if err != nil {
		return nil, fmt.Errorf("quictransport: listen %s: %w", addr, err)
	}
	return &Listener{ql: ql}, nil
}

// Addr reports the listener's bound address.
func (l *Listener) Addr() string {
	return l.ql.Addr().String()
}

// Close stops accepting new connections.
func (l *Listener) Close() error {
	return l.ql.Close()
}

// Accept blocks for the next inbound connection and its first stream,
// returning a Transport the caller must Bind and Serve.
func (l *Listener) Accept(ctx context.Context) (*Transport, error) {
	conn, err := l.ql.Accept(ctx)
	if err != nil {
		return nil, fmt.Errorf("quictransport: accept connection: %w", err)
	}
	stream, err := conn.AcceptStream(ctx)
	if err != nil {
		_ = conn.CloseWithError(0, "stream accept failed")
		return nil, fmt.Errorf("quictransport: accept stream: %w", err)
	}
	return newTransport(conn, stream), nil
}
