package rpcmux

import (
	"context"
	"testing"
	"time"

	"github.com/quantarax/wiretransport/wire"
)

// pipe wires one Mux's outbound envelopes directly into a peer Mux's
// Dispatch, simulating a lossless FIFO transport for tests.
type pipe struct {
	peer *Mux
}

func (p *pipe) Send(env *wire.Envelope) error {
	return p.peer.Dispatch(env)
}

func newLinkedMuxes(opts ...Option) (client *Mux, server *Mux) {
	toServer := &pipe{}
	toClient := &pipe{}
	client = NewMux("doc", toServer, opts...)
	server = NewMux("doc", toClient, opts...)
	toServer.peer = server
	toClient.peer = client
	return client, server
}

func TestCallSuccess(t *testing.T) {
	client, server := newLinkedMuxes()
	defer client.Close()
	defer server.Close()

	server.Handle("echo", func(ctx context.Context, req *Request, stream *StreamSink) (any, error) {
		v, err := req.Decode()
		if err != nil {
			return nil, err
		}
		return v, nil
	})

	result, err := client.Call(context.Background(), "echo", map[string]any{"hello": "world"})
	if err != nil {
		t.Fatalf("Call: %v", err)
	}
	m, ok := result.(map[string]any)
	if !ok || m["hello"] != "world" {
		t.Fatalf("unexpected result: %#v", result)
	}
}

func TestCallUnknownMethod(t *testing.T) {
	client, server := newLinkedMuxes()
	defer client.Close()
	defer server.Close()

	_, err := client.Call(context.Background(), "nope", nil)
	ce, ok := err.(*CallError)
	if !ok {
		t.Fatalf("expected *CallError, got %T: %v", err, err)
	}
	if ce.StatusCode != StatusNotFound {
		t.Fatalf("status = %d, want %d", ce.StatusCode, StatusNotFound)
	}
}

func TestCallHandlerError(t *testing.T) {
	client, server := newLinkedMuxes()
	defer client.Close()
	defer server.Close()

	server.Handle("denied", func(ctx context.Context, req *Request, stream *StreamSink) (any, error) {
		return nil, &CallError{StatusCode: StatusDenied, Details: "no access"}
	})

	_, err := client.Call(context.Background(), "denied", nil)
	ce, ok := err.(*CallError)
	if !ok {
		t.Fatalf("expected *CallError, got %T: %v", err, err)
	}
	if ce.StatusCode != StatusDenied || ce.Details != "no access" {
		t.Fatalf("unexpected call error: %+v", ce)
	}
}

func TestCallStream(t *testing.T) {
	client, server := newLinkedMuxes()
	defer client.Close()
	defer server.Close()

	server.Handle("count", func(ctx context.Context, req *Request, stream *StreamSink) (any, error) {
		for i := 0; i < 3; i++ {
			if err := stream.Send(float64(i)); err != nil {
				return nil, err
			}
		}
		return "done", nil
	})

	handle, err := client.CallStream(context.Background(), "count", nil)
	if err != nil {
		t.Fatalf("CallStream: %v", err)
	}

	var got []float64
	for raw := range handle.Stream {
		v, err := JSONCodec{}.Decode("count", raw)
		if err != nil {
			t.Fatalf("decode stream frame: %v", err)
		}
		got = append(got, v.(float64))
	}

	result, err := handle.Result()
	if err != nil {
		t.Fatalf("Result: %v", err)
	}
	if result != "done" {
		t.Fatalf("result = %v, want done", result)
	}
	if len(got) != 3 || got[0] != 0 || got[1] != 1 || got[2] != 2 {
		t.Fatalf("unexpected stream values: %v", got)
	}
}

func TestCallTimeout(t *testing.T) {
	client, server := newLinkedMuxes(WithDefaultTimeout(30 * time.Millisecond))
	defer client.Close()
	defer server.Close()

	released := make(chan struct{})
	server.Handle("slow", func(ctx context.Context, req *Request, stream *StreamSink) (any, error) {
		<-released
		return "late", nil
	})

	_, err := client.Call(context.Background(), "slow", nil)
	if err != ErrTimeout {
		t.Fatalf("err = %v, want ErrTimeout", err)
	}
	close(released)
	// give the late response a moment to arrive and be silently dropped
	time.Sleep(20 * time.Millisecond)
}

func TestCloseRejectsOutstandingCalls(t *testing.T) {
	client, server := newLinkedMuxes(WithDefaultTimeout(time.Second))
	defer server.Close()

	block := make(chan struct{})
	server.Handle("block", func(ctx context.Context, req *Request, stream *StreamSink) (any, error) {
		<-block
		return nil, nil
	})

	go func() {
		time.Sleep(10 * time.Millisecond)
		client.Close()
		close(block)
	}()

	_, err := client.Call(context.Background(), "block", nil)
	if err != ErrClosed {
		t.Fatalf("err = %v, want ErrClosed", err)
	}
}
