package wire

import "testing"

func TestHeartbeatDistinguishability(t *testing.T) {
	ping := EncodePing()
	if !IsPingMessage(ping) {
		t.Fatal("EncodePing() should satisfy IsPingMessage")
	}
	if !IsBinaryMessage(ping) {
		t.Fatal("ping frame should satisfy IsBinaryMessage (shares YJS prefix)")
	}
	if ping[3] != 0x70 {
		t.Fatalf("ping byte 3 = %#x, want 0x70", ping[3])
	}
	if _, err := DecodeEnvelope(ping); err == nil {
		t.Fatal("decoding a ping frame as an envelope must fail")
	}

	pong := EncodePong()
	if !IsPongMessage(pong) {
		t.Fatal("EncodePong() should satisfy IsPongMessage")
	}
	if IsPingMessage(pong) || IsPongMessage(ping) {
		t.Fatal("ping/pong frames must not cross-match")
	}

	env := &Envelope{Target: TargetAck, Ack: &AckBody{MessageID: []byte{1}}}
	eb, _ := env.Encode()
	if eb[3] != 0x01 {
		t.Fatalf("envelope byte 3 = %#x, want 0x01", eb[3])
	}
	if !IsBinaryMessage(eb) {
		t.Fatal("envelope should satisfy IsBinaryMessage")
	}
}
