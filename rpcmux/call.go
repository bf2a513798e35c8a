package rpcmux

import (
	"sync"
	"time"

	"github.com/quantarax/wiretransport/wire"
)

// pendingCall is the client-side bookkeeping for one outstanding request,
// grounded on the teacher's Session/SessionStore pattern (daemon/manager):
// a single owning map mutates state, and removal is the race-winner
// barrier between a late response and a firing timeout.
type pendingCall struct {
	id       string
	method   string
	streamed bool // never set by Mux
	streamCh chan []byte
	resultCh  chan callResult
	timer     *time.Timer
	done      bool
	startedAt time.Time
}

type callResult struct {
	payload []byte
	err     error
}

// callTable is the map of outstanding RPC calls, keyed by request id. Only
// the owning Mux mutates it; takeForTimeout/takeForResponse remove a call
// exactly once, which is how a concurrent response and timeout avoid
// double-firing the caller's callback.
type callTable struct {
	mu    sync.Mutex
	calls map[string]*pendingCall
}

func newCallTable() *callTable {
	return &callTable{calls: make(map[string]*pendingCall)}
}

func (t *callTable) add(c *pendingCall) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, exists := t.calls[c.id]; exists {
		return ErrDuplicateCall
	}
	t.calls[c.id] = c
	return nil
}

// takeForTimeout removes the call for id only if it is still present,
// reporting whether it actually did so. Called from the timer goroutine;
// a false return means a response already won the race and handled
// removal itself.
func (t *callTable) takeForTimeout(id string) (*pendingCall, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	c, ok := t.calls[id]
	if !ok {
		return nil, false
	}
	delete(t.calls, id)
	return c, true
}

// get returns the call for id without removing it (used to route stream
// frames, which do not terminate the call).
func (t *callTable) get(id string) (*pendingCall, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	c, ok := t.calls[id]
	return c, ok
}

// takeForResponse removes and returns the call for id, for routing a
// terminal response. Stops the call's timeout timer so it cannot fire
// after this.
func (t *callTable) takeForResponse(id string) (*pendingCall, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	c, ok := t.calls[id]
	if !ok {
		return nil, false
	}
	delete(t.calls, id)
	c.timer.Stop()
	return c, true
}

func (t *callTable) drain() []*pendingCall {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]*pendingCall, 0, len(t.calls))
	for _, c := range t.calls {
		out = append(out, c)
	}
	t.calls = make(map[string]*pendingCall)
	return out
}

// envelopeForRequest assigns a request its content-defined id per
// spec.md: the id is SHA-256+base64 of the request frame's own encoded
// bytes, never a random UUID or sequence counter.
func envelopeForRequest(document string, frame *wire.RPCFrame) (*wire.Envelope, string, error) {
	env := &wire.Envelope{Document: document, Target: wire.TargetRPC, RPC: frame}
	id, err := env.ID()
	if err != nil {
		return nil, "", err
	}
	return env, id, nil
}
