// Package rpcmux implements the RPC multiplex (component C8 of
// SPEC_FULL.md): request/stream/response correlation riding the wire
// package's envelope, with a pluggable payload codec and an HTTP-like
// error taxonomy. A call's id is never a random token, it is the
// content-defined id (SHA-256+base64) of the request frame's own encoded
// bytes — the same identity scheme the envelope uses throughout.
package rpcmux

import (
	"context"
	"sync"
	"time"

	"github.com/quantarax/wiretransport/wire"
)

// Sender delivers an already-built envelope to the peer. Transports (QUIC,
// a test in-memory pipe, anything else) implement this.
type Sender interface {
	Send(env *wire.Envelope) error
}

// Handler answers one RPC method. It may emit zero or more stream frames
// via stream before returning; its return value becomes the terminal
// response payload, or a *CallError (or any other error) becomes the
// terminal error response.
type Handler func(ctx context.Context, req *Request, stream *StreamSink) (any, error)

// Request is the decoded view of an inbound request handed to a Handler.
type Request struct {
	ID      string
	Method  string
	Payload []byte
	mux     *Mux
}

// Decode runs the Mux's PayloadCodec over the request's raw payload.
func (r *Request) Decode() (any, error) {
	return r.mux.codec.Decode(r.Method, r.Payload)
}

// StreamSink lets a Handler emit stream frames correlated to the request
// it is answering, before its terminal response.
type StreamSink struct {
	mux    *Mux
	reqID  string
	method string
}

// Send encodes payload with the Mux's codec and emits it as a stream
// frame correlated to the originating request.
func (s *StreamSink) Send(payload any) error {
	body, err := s.mux.codec.Encode(s.method, payload)
	if err != nil {
		return err
	}
	frame := &wire.RPCFrame{
		Method:        s.method,
		ReqType:       wire.RPCStreamKind,
		CorrelationID: s.reqID,
		Status:        wire.RPCStatusSuccess,
		Payload:       body,
	}
	return s.mux.sender.Send(&wire.Envelope{Document: s.mux.document, Target: wire.TargetRPC, RPC: frame})
}

// Mux is one peer's view of the RPC multiplex: it tracks outstanding
// client calls and dispatches inbound frames to registered handlers.
// A single Mux serves both roles (caller and callee) simultaneously,
// matching spec.md's "symmetric on server" call-state description.
type Mux struct {
	document       string
	sender         Sender
	codec          PayloadCodec
	defaultTimeout time.Duration

	calls *callTable

	handlersMu sync.RWMutex
	handlers   map[string]Handler

	subsMu sync.Mutex
	subs   map[string]ServerStreamFunc

	closeMu sync.Mutex
	closed  bool

	metrics MetricsSink
}

// ServerStreamFunc receives a subsequent stream frame addressed to a
// request id the server already answered — the upload protocol's
// client-to-server chunk stream is the motivating case: the server
// answers the upload request once, then subscribes to hear the chunks
// the client streams afterward under that same request id.
type ServerStreamFunc func(env *wire.Envelope)

// Subscribe registers fn to receive every subsequent stream frame whose
// correlation id is id. Call Unsubscribe once no more are expected
// (typically when the corresponding session completes or is GC'd).
func (m *Mux) Subscribe(id string, fn ServerStreamFunc) {
	m.subsMu.Lock()
	defer m.subsMu.Unlock()
	m.subs[id] = fn
}

// Unsubscribe removes a subscription registered with Subscribe.
func (m *Mux) Unsubscribe(id string) {
	m.subsMu.Lock()
	defer m.subsMu.Unlock()
	delete(m.subs, id)
}

// SendEnvelope delivers env via the Mux's underlying Sender, for
// payloads outside the RPC taxonomy that nonetheless need to ride the
// same transport (Ack envelopes acknowledging a streamed chunk, in
// particular).
func (m *Mux) SendEnvelope(env *wire.Envelope) error {
	return m.sender.Send(env)
}

// Document returns the document name new envelopes built by the caller
// (e.g. an Ack) should be tagged with, matching this Mux's own.
func (m *Mux) Document() string {
	return m.document
}

// Option configures a Mux at construction time.
type Option func(*Mux)

// WithCodec overrides the default JSONCodec.
func WithCodec(c PayloadCodec) Option {
	return func(m *Mux) { m.codec = c }
}

// WithDefaultTimeout overrides the default 30s call timeout
// (rpcDefaultTimeoutMs in SPEC_FULL.md's configuration section).
func WithDefaultTimeout(d time.Duration) Option {
	return func(m *Mux) { m.defaultTimeout = d }
}

// NewMux returns a Mux that sends envelopes for document via sender.
func NewMux(document string, sender Sender, opts ...Option) *Mux {
	m := &Mux{
		document:       document,
		sender:         sender,
		codec:          JSONCodec{},
		defaultTimeout: 30 * time.Second,
		calls:          newCallTable(),
		handlers:       make(map[string]Handler),
		subs:           make(map[string]ServerStreamFunc),
		metrics:        noopMetricsSink{},
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Handle registers h as the handler for method. Re-registering a method
// replaces its handler.
func (m *Mux) Handle(method string, h Handler) {
	m.handlersMu.Lock()
	defer m.handlersMu.Unlock()
	m.handlers[method] = h
}

// Close cancels every outstanding call with ErrClosed and rejects future
// calls. It does not close the underlying transport.
func (m *Mux) Close() {
	m.closeMu.Lock()
	m.closed = true
	m.closeMu.Unlock()

	for _, c := range m.calls.drain() {
		c.timer.Stop()
		m.resolve(c, callResult{err: ErrClosed})
	}

	m.subsMu.Lock()
	m.subs = make(map[string]ServerStreamFunc)
	m.subsMu.Unlock()
}

func (m *Mux) isClosed() bool {
	m.closeMu.Lock()
	defer m.closeMu.Unlock()
	return m.closed
}

// resolve delivers a result to a call: it closes the stream channel (if
// any), then pushes to resultCh and closes it. Callers run it once per
// call, after removing the call from the table.
func (m *Mux) resolve(c *pendingCall, res callResult) {
	outcome := "ok"
	if res.err != nil {
		outcome = "error"
	}
	m.metrics.CallFinished(c.method, outcome, time.Since(c.startedAt))

	if c.streamCh != nil {
		close(c.streamCh)
	}
	c.resultCh <- res
	close(c.resultCh)
}

// Call makes a unary (non-streaming) RPC call and blocks for the terminal
// response, or ctx's deadline / the Mux's default timeout, whichever is
// sooner.
func (m *Mux) Call(ctx context.Context, method string, payload any) (any, error) {
	_, raw, err := m.call(ctx, method, payload, nil)
	if err != nil {
		return nil, err
	}
	return m.codec.Decode(method, raw)
}

// CallAndKeepID behaves like Call but also returns the request's
// content-defined id, for callers (the upload protocol, specifically)
// that need to correlate further frames — sent outside this Mux's normal
// Call/CallStream bookkeeping — to the same request after it resolves.
func (m *Mux) CallAndKeepID(ctx context.Context, method string, payload any) (id string, result any, err error) {
	id, raw, err := m.call(ctx, method, payload, nil)
	if err != nil {
		return id, nil, err
	}
	v, err := m.codec.Decode(method, raw)
	return id, v, err
}

// EmitClientStream sends a stream frame correlated to id directly, for a
// caller that already received its terminal response (via CallAndKeepID)
// and now wants to push further frames under the same request id — the
// upload protocol's post-acceptance chunk stream.
func (m *Mux) EmitClientStream(id, method string, payload any) (*wire.Envelope, error) {
	body, err := m.codec.Encode(method, payload)
	if err != nil {
		return nil, err
	}
	frame := &wire.RPCFrame{
		Method: method, ReqType: wire.RPCStreamKind, CorrelationID: id,
		Status: wire.RPCStatusSuccess, Payload: body,
	}
	env := &wire.Envelope{Document: m.document, Target: wire.TargetRPC, RPC: frame}
	if err := m.sender.Send(env); err != nil {
		return nil, err
	}
	return env, nil
}

// CallStreamHandle is the client-side handle for a streaming call: Stream
// yields each stream frame's raw payload as it arrives, then closes once
// the terminal response lands; Result blocks for that terminal outcome.
type CallStreamHandle struct {
	Stream <-chan []byte
	result chan callResult
	codec  PayloadCodec
	method string
}

// Result blocks for the call's terminal response (after the Stream
// channel has been drained), decoding its payload with the Mux's codec.
func (h *CallStreamHandle) Result() (any, error) {
	res := <-h.result
	if res.err != nil {
		return nil, res.err
	}
	return h.codec.Decode(h.method, res.payload)
}

// CallStream makes an RPC call whose handler may emit stream frames
// before its terminal response.
func (m *Mux) CallStream(ctx context.Context, method string, payload any) (*CallStreamHandle, error) {
	streamCh := make(chan []byte, 16)
	resultCh := make(chan callResult, 1)
	if _, err := m.dispatchCall(ctx, method, payload, streamCh, resultCh); err != nil {
		return nil, err
	}
	return &CallStreamHandle{Stream: streamCh, result: resultCh, codec: m.codec, method: method}, nil
}

func (m *Mux) call(ctx context.Context, method string, payload any, streamCh chan []byte) (id string, raw []byte, err error) {
	resultCh := make(chan callResult, 1)
	id, err = m.dispatchCall(ctx, method, payload, streamCh, resultCh)
	if err != nil {
		return id, nil, err
	}
	res := <-resultCh
	return id, res.payload, res.err
}

func (m *Mux) dispatchCall(ctx context.Context, method string, payload any, streamCh chan []byte, resultCh chan callResult) (string, error) {
	if m.isClosed() {
		return "", ErrClosed
	}

	body, err := m.codec.Encode(method, payload)
	if err != nil {
		return "", err
	}
	frame := &wire.RPCFrame{Method: method, ReqType: wire.RPCRequestKind, Status: wire.RPCStatusSuccess, Payload: body}
	env, id, err := envelopeForRequest(m.document, frame)
	if err != nil {
		return "", err
	}

	timeout := m.defaultTimeout
	if dl, ok := ctx.Deadline(); ok {
		if d := time.Until(dl); d < timeout {
			timeout = d
		}
	}

	c := &pendingCall{id: id, method: method, streamCh: streamCh, resultCh: resultCh, startedAt: time.Now()}
	c.timer = time.AfterFunc(timeout, func() { m.onTimeout(id) })
	if err := m.calls.add(c); err != nil {
		c.timer.Stop()
		return "", err
	}

	if err := m.sender.Send(env); err != nil {
		if c, ok := m.calls.takeForResponse(id); ok {
			m.resolve(c, callResult{err: err})
		}
		return "", err
	}
	m.metrics.CallStarted(method)
	return id, nil
}

func (m *Mux) onTimeout(id string) {
	c, ok := m.calls.takeForTimeout(id)
	if !ok {
		return
	}
	m.resolve(c, callResult{err: ErrTimeout})
}

// Dispatch routes one inbound envelope whose Target is TargetRPC. Request
// frames invoke a registered handler (spawned on its own goroutine, so a
// slow handler cannot stall the receive loop); stream and response
// frames route to the matching outstanding call by correlation id.
func (m *Mux) Dispatch(env *wire.Envelope) error {
	frame := env.RPC
	switch frame.ReqType {
	case wire.RPCRequestKind:
		reqID, err := env.ID()
		if err != nil {
			return err
		}
		go m.serve(reqID, frame)
		return nil

	case wire.RPCStreamKind:
		if c, ok := m.calls.get(frame.CorrelationID); ok && c.streamCh != nil {
			if frame.Status == wire.RPCStatusSuccess {
				c.streamCh <- frame.Payload
			}
			return nil
		}
		m.subsMu.Lock()
		fn, ok := m.subs[frame.CorrelationID]
		m.subsMu.Unlock()
		if !ok {
			return nil // stray or unrecognized stream; ignore per SessionNotFound policy
		}
		fn(env)
		return nil

	case wire.RPCResponseKind:
		c, ok := m.calls.takeForResponse(frame.CorrelationID)
		if !ok {
			// No outstanding call: either a stray/duplicate response, or a
			// late out-of-band notification against an id whose original
			// call already resolved (the upload protocol's "chunk failed
			// verification" notice, sent well after the upload's initial
			// accept response). Both share the subscription mechanism.
			m.subsMu.Lock()
			fn, subOK := m.subs[frame.CorrelationID]
			m.subsMu.Unlock()
			if subOK {
				fn(env)
			}
			return nil
		}
		if frame.Status == wire.RPCStatusError {
			var errPayload []byte
			if frame.ErrHasPayload {
				errPayload = frame.ErrPayload
			}
			_ = errPayload
			m.resolve(c, callResult{err: &CallError{StatusCode: frame.ErrStatusCode, Details: frame.ErrDetails}})
			return nil
		}
		m.resolve(c, callResult{payload: frame.Payload})
		return nil

	default:
		return nil
	}
}

func (m *Mux) serve(reqID string, frame *wire.RPCFrame) {
	m.handlersMu.RLock()
	h, ok := m.handlers[frame.Method]
	m.handlersMu.RUnlock()

	if !ok {
		m.sendErrorResponse(reqID, frame.Method, StatusNotFound, "unknown method: "+frame.Method)
		return
	}

	req := &Request{ID: reqID, Method: frame.Method, Payload: frame.Payload, mux: m}
	sink := &StreamSink{mux: m, reqID: reqID, method: frame.Method}

	result, err := h(context.Background(), req, sink)
	if err != nil {
		if ce, ok := err.(*CallError); ok {
			m.sendErrorResponse(reqID, frame.Method, ce.StatusCode, ce.Details)
			return
		}
		m.sendErrorResponse(reqID, frame.Method, StatusInternal, err.Error())
		return
	}

	body, err := m.codec.Encode(frame.Method, result)
	if err != nil {
		m.sendErrorResponse(reqID, frame.Method, StatusInternal, err.Error())
		return
	}
	respFrame := &wire.RPCFrame{
		Method: frame.Method, ReqType: wire.RPCResponseKind, CorrelationID: reqID,
		Status: wire.RPCStatusSuccess, Payload: body,
	}
	_ = m.sender.Send(&wire.Envelope{Document: m.document, Target: wire.TargetRPC, RPC: respFrame})
}

func (m *Mux) sendErrorResponse(reqID, method string, statusCode uint64, details string) {
	m.RespondError(reqID, method, statusCode, details)
}

// RespondError sends a response frame carrying an error, correlated to
// id. Exported so a handler that already returned its initial response
// can still deliver a later out-of-band failure notice correlated to the
// same id — the upload protocol's "chunk failed verification" notice
// (spec.md §4.7.1), sent long after the initial accept response.
func (m *Mux) RespondError(id, method string, statusCode uint64, details string) error {
	frame := &wire.RPCFrame{
		Method: method, ReqType: wire.RPCResponseKind, CorrelationID: id,
		Status: wire.RPCStatusError, ErrStatusCode: statusCode, ErrDetails: details,
	}
	return m.sender.Send(&wire.Envelope{Document: m.document, Target: wire.TargetRPC, RPC: frame})
}
