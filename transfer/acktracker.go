package transfer

import (
	"encoding/base64"
	"sync"

	"github.com/quantarax/wiretransport/wire"
)

// AckTracker resolves outstanding chunk acknowledgements. Upload liveness
// (spec.md §4.7.1: "resolution of the whole upload requires all
// outstanding chunk-ids to be acknowledged") is built on it: Uploader
// registers a wait for each chunk envelope's id before sending it, and
// the transport's receive loop feeds every inbound Ack-target envelope
// through HandleAck.
type AckTracker struct {
	mu      sync.Mutex
	waiters map[string]chan struct{}
}

// NewAckTracker returns an empty AckTracker.
func NewAckTracker() *AckTracker {
	return &AckTracker{waiters: make(map[string]chan struct{})}
}

// RegisterWait returns a channel that closes once HandleAck observes an
// Ack whose messageId matches idBytes (the raw, pre-base64 content id of
// the envelope being acknowledged).
func (t *AckTracker) RegisterWait(idBytes []byte) <-chan struct{} {
	key := base64.StdEncoding.EncodeToString(idBytes)
	ch := make(chan struct{})
	t.mu.Lock()
	t.waiters[key] = ch
	t.mu.Unlock()
	return ch
}

// Forget removes a registered wait without closing its channel, for a
// caller that gave up (e.g. on context cancellation) before the Ack
// arrived.
func (t *AckTracker) Forget(idBytes []byte) {
	key := base64.StdEncoding.EncodeToString(idBytes)
	t.mu.Lock()
	delete(t.waiters, key)
	t.mu.Unlock()
}

// HandleAck resolves the wait matching env's AckBody, if any. env must
// have Target == TargetAck.
func (t *AckTracker) HandleAck(env *wire.Envelope) {
	if env.Ack == nil {
		return
	}
	key := base64.StdEncoding.EncodeToString(env.Ack.MessageID)
	t.mu.Lock()
	ch, ok := t.waiters[key]
	if ok {
		delete(t.waiters, key)
	}
	t.mu.Unlock()
	if ok {
		close(ch)
	}
}

// AckEnvelope builds the Ack envelope a receiver sends back for a chunk
// frame it accepted, per spec.md §4.7.1 step 4: the Ack's messageId is
// the acknowledged envelope's raw (pre-base64) content id.
func AckEnvelope(document string, chunkEnvIDBytes []byte) *wire.Envelope {
	return &wire.Envelope{
		Document: document,
		Target:   wire.TargetAck,
		Ack:      &wire.AckBody{MessageID: chunkEnvIDBytes},
	}
}
