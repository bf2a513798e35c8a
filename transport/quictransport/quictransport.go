// Package quictransport carries the envelope protocol (wire.Envelope) over
// a single long-lived QUIC stream per peer, grounded on the teacher's
// cmd/quic_send, cmd/quic_recv and relay packages — but replacing their
// ad-hoc 32-byte chunk header with the envelope's own canonical
// Encode/DecodeEnvelope framing, length-prefixed, since the wire package
// already defines the identity and codec this substrate should carry
// verbatim rather than reinvent.
package quictransport

import (
	"bufio"
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/quic-go/quic-go"

	"github.com/quantarax/wiretransport/wire"
)

// ALPN is the protocol identifier negotiated during the TLS handshake,
// replacing the teacher's per-tool strings ("quantarax-quic", "quic-relay")
// with one name for the single envelope substrate.
const ALPN = "wiretransport-envelope/1"

// maxFrameSize bounds a single envelope's wire length, rejecting a runaway
// or malicious length prefix before it drives an allocation.
const maxFrameSize = 64 << 20

// Dispatcher routes an inbound RPC-target envelope to its handler. rpcmux.Mux
// satisfies this directly.
type Dispatcher interface {
	Dispatch(env *wire.Envelope) error
}

// AckHandler routes an inbound Ack-target envelope. transfer.AckTracker
// satisfies this directly.
type AckHandler interface {
	HandleAck(env *wire.Envelope)
}

// Transport is one peer's end of a single QUIC stream carrying envelopes
// in both directions. It implements rpcmux.Sender.
type Transport struct {
	conn   *quic.Conn
	stream *quic.Stream
	reader *bufio.Reader

	writeMu sync.Mutex

	dispatch Dispatcher
	acks     AckHandler
}

// Bind attaches the handlers that route inbound frames once Serve starts.
// Must be called before Serve.
func (t *Transport) Bind(dispatch Dispatcher, acks AckHandler) {
	t.dispatch = dispatch
	t.acks = acks
}

// Send implements rpcmux.Sender: it writes env as one length-prefixed
// frame. Concurrent Send calls are serialized so frames are never
// interleaved on the wire.
func (t *Transport) Send(env *wire.Envelope) error {
	body, err := env.Encode()
	if err != nil {
		return fmt.Errorf("quictransport: encode envelope: %w", err)
	}
	if len(body) > maxFrameSize {
		return fmt.Errorf("quictransport: envelope of %d bytes exceeds frame limit", len(body))
	}

	t.writeMu.Lock()
	defer t.writeMu.Unlock()

	var lenPrefix [4]byte
	binary.BigEndian.PutUint32(lenPrefix[:], uint32(len(body)))
	if _, err := t.stream.Write(lenPrefix[:]); err != nil {
		return fmt.Errorf("quictransport: write length prefix: %w", err)
	}
	if _, err := t.stream.Write(body); err != nil {
		return fmt.Errorf("quictransport: write envelope body: %w", err)
	}
	return nil
}

// Serve reads frames from the stream until ctx is done or the stream
// errors, routing each decoded envelope to the bound Dispatcher or
// AckHandler by Target. Unrecognized targets (Doc/Awareness/File) are
// dropped with no error: this substrate only carries the RPC-based
// transfer protocol and its acks, per spec.md's canonical-RPC decision.
func (t *Transport) Serve(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		_ = t.stream.SetReadDeadline(time.Now())
	}()

	for {
		env, err := t.readEnvelope()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return err
		}
		switch env.Target {
		case wire.TargetRPC:
			if t.dispatch != nil {
				if err := t.dispatch.Dispatch(env); err != nil {
					// A malformed or unroutable frame does not tear down
					// the stream; the peer simply never sees a response.
					continue
				}
			}
		case wire.TargetAck:
			if t.acks != nil {
				t.acks.HandleAck(env)
			}
		default:
			continue
		}
	}
}

func (t *Transport) readEnvelope() (*wire.Envelope, error) {
	var lenPrefix [4]byte
	if _, err := io.ReadFull(t.reader, lenPrefix[:]); err != nil {
		return nil, err
	}
	n := binary.BigEndian.Uint32(lenPrefix[:])
	if n > maxFrameSize {
		return nil, fmt.Errorf("quictransport: peer sent frame of %d bytes, exceeds limit", n)
	}
	body := make([]byte, n)
	if _, err := io.ReadFull(t.reader, body); err != nil {
		return nil, err
	}
	return wire.DecodeEnvelope(body)
}

// Close tears down the stream and its connection.
func (t *Transport) Close() error {
	_ = t.stream.Close()
	return t.conn.CloseWithError(0, "done")
}

func newTransport(conn *quic.Conn, stream *quic.Stream) *Transport {
	return &Transport{
		conn:   conn,
		stream: stream,
		reader: bufio.NewReaderSize(stream, 32*1024),
	}
}
