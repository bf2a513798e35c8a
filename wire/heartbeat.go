package wire

// Ping and Pong are fixed 7-byte heartbeat frames, distinguishable from an
// envelope by byte 3 alone (0x01 for an envelope, 0x70 for a heartbeat)
// without parsing the rest of the frame. They carry no fields and must
// never be passed to DecodeEnvelope.
var (
	pingFrame = []byte("YJSping")
	pongFrame = []byte("YJSpong")
)

// EncodePing returns the fixed ping heartbeat frame.
func EncodePing() []byte {
	out := make([]byte, len(pingFrame))
	copy(out, pingFrame)
	return out
}

// EncodePong returns the fixed pong heartbeat frame.
func EncodePong() []byte {
	out := make([]byte, len(pongFrame))
	copy(out, pongFrame)
	return out
}

// IsBinaryMessage reports whether b begins with the "YJS" magic shared by
// both envelopes and heartbeats (the first three bytes only).
func IsBinaryMessage(b []byte) bool {
	return len(b) >= 3 && b[0] == magic[0] && b[1] == magic[1] && b[2] == magic[2]
}

// IsPingMessage reports whether b is exactly the ping heartbeat frame.
func IsPingMessage(b []byte) bool {
	return bytesEqual(b, pingFrame)
}

// IsPongMessage reports whether b is exactly the pong heartbeat frame.
func IsPongMessage(b []byte) bool {
	return bytesEqual(b, pongFrame)
}

func bytesEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
