package wire

import (
	"crypto/sha256"
	"encoding/base64"
	"fmt"
)

// magic is the 4-byte prefix of every non-heartbeat frame: "YJS" plus the
// protocol version byte.
var magic = [4]byte{0x59, 0x4A, 0x53, 0x01}

const protocolVersion byte = 0x01

// merkleHashSize is the digest length of the SHA-256 hashes carried in a
// FileStep's inclusion proof.
const merkleHashSize = 32

// Envelope is the decoded, tagged-product form of every non-heartbeat
// frame. Exactly one of Doc/Awareness/Ack/File/RPC is non-nil, selected by
// Target. A decoded Envelope is untrusted: it has been neither
// authenticated nor authorized; that is a downstream concern.
//
// Encoded bytes and the content-defined id are memoized lazily, mirroring
// the source implementation's cached `encoded`/`id` getters. The cache is
// not cleared by mutating an exported field; call Invalidate after doing
// so following a first Encode()/ID() call.
type Envelope struct {
	Document  string
	Encrypted bool
	Target    TargetType

	Doc       *DocStep
	Awareness *AwarenessStep
	Ack       *AckBody
	File      *FileStep
	RPC       *RPCFrame

	encoded []byte
	id      string
}

// Invalidate clears the memoized encoded bytes and id. Call after mutating
// an Envelope that was previously encoded or had its ID read.
func (env *Envelope) Invalidate() {
	env.encoded = nil
	env.id = ""
}

// Encode serializes the envelope to its wire form. The result is
// memoized: subsequent calls return the same slice without re-encoding,
// until Invalidate is called.
func (env *Envelope) Encode() ([]byte, error) {
	if env.encoded != nil {
		return env.encoded, nil
	}

	e := NewEncoder()
	e.WriteRaw(magic[:])
	e.WriteString(env.Document)
	e.WriteBool(env.Encrypted)
	e.WriteUint8(uint8(env.Target))

	switch env.Target {
	case TargetDoc:
		if env.Doc == nil {
			return nil, fmt.Errorf("wire: Doc target with nil DocStep")
		}
		if err := encodeDocStep(e, env.Doc); err != nil {
			return nil, err
		}
	case TargetAwareness:
		if env.Awareness == nil {
			return nil, fmt.Errorf("wire: Awareness target with nil AwarenessStep")
		}
		if err := encodeAwarenessStep(e, env.Awareness); err != nil {
			return nil, err
		}
	case TargetAck:
		if env.Ack == nil {
			return nil, fmt.Errorf("wire: Ack target with nil AckBody")
		}
		e.WriteVarBytes(env.Ack.MessageID)
	case TargetFile:
		if env.File == nil {
			return nil, fmt.Errorf("wire: File target with nil FileStep")
		}
		if err := encodeFileStep(e, env.File); err != nil {
			return nil, err
		}
	case TargetRPC:
		if env.RPC == nil {
			return nil, fmt.Errorf("wire: Rpc target with nil RPCFrame")
		}
		if err := encodeRPCFrame(e, env.RPC); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("wire: unknown target type %#x", uint8(env.Target))
	}

	env.encoded = e.Bytes()
	return env.encoded, nil
}

// ID returns the envelope's content-defined identity: the base64 (standard
// encoding) of the SHA-256 of its encoded bytes. Two encodings of
// semantically equal envelopes collide by design.
func (env *Envelope) ID() (string, error) {
	if env.id != "" {
		return env.id, nil
	}
	sum, err := env.IDBytes()
	if err != nil {
		return "", err
	}
	env.id = base64.StdEncoding.EncodeToString(sum)
	return env.id, nil
}

// IDBytes returns the raw SHA-256 digest underlying ID, unencoded. Ack's
// messageId field carries this raw form rather than the base64 string, to
// avoid re-encoding a digest that is already the cheapest possible
// representation on the wire.
func (env *Envelope) IDBytes() ([]byte, error) {
	b, err := env.Encode()
	if err != nil {
		return nil, err
	}
	sum := sha256.Sum256(b)
	return sum[:], nil
}

// DecodeEnvelope parses b as a single envelope. Heartbeats (IsPingMessage/
// IsPongMessage) must never be passed here.
func DecodeEnvelope(b []byte) (*Envelope, error) {
	d := NewDecoder(b)

	hdr, err := d.ReadRaw(4)
	if err != nil {
		return nil, malformed(0, "truncated magic/version header")
	}
	if hdr[0] != magic[0] || hdr[1] != magic[1] || hdr[2] != magic[2] {
		return nil, malformed(0, "bad magic, expected YJS")
	}
	if hdr[3] != protocolVersion {
		return nil, &UnsupportedVersionError{Got: hdr[3]}
	}

	doc, err := d.ReadString()
	if err != nil {
		return nil, err
	}
	encrypted, err := d.ReadBool()
	if err != nil {
		return nil, err
	}
	targetOffset := d.Offset()
	targetByte, err := d.ReadUint8()
	if err != nil {
		return nil, err
	}

	env := &Envelope{
		Document:  doc,
		Encrypted: encrypted,
		Target:    TargetType(targetByte),
	}

	switch env.Target {
	case TargetDoc:
		env.Doc, err = decodeDocStep(d)
	case TargetAwareness:
		env.Awareness, err = decodeAwarenessStep(d)
	case TargetAck:
		var mid []byte
		mid, err = d.ReadVarBytes()
		if err == nil {
			env.Ack = &AckBody{MessageID: append([]byte(nil), mid...)}
		}
	case TargetFile:
		env.File, err = decodeFileStep(d)
	case TargetRPC:
		env.RPC, err = decodeRPCFrame(d)
	default:
		return nil, &UnknownTargetTypeError{Offset: targetOffset, Got: targetByte}
	}
	if err != nil {
		return nil, err
	}

	if !d.Done() {
		return nil, malformed(d.Offset(), "trailing bytes after envelope body")
	}

	env.encoded = append([]byte(nil), b...)
	return env, nil
}
