package rpcmux

import "encoding/json"

// PayloadCodec controls how RPC payloads are serialized onto and parsed off
// an RPCFrame's opaque Payload bytes. Most methods can use the default
// codec; a method with a bespoke wire form (e.g. a chunk carrying a
// length-prefixed blob alongside a Merkle proof) can register its own.
type PayloadCodec interface {
	// Encode turns payload into bytes for the given method. method is
	// provided so a single codec can switch behavior per call.
	Encode(method string, payload any) ([]byte, error)

	// Decode turns raw bytes for the given method back into a value. The
	// caller type-asserts the result; by convention a method's client and
	// server agree on the concrete type out of band.
	Decode(method string, raw []byte) (any, error)
}

// JSONCodec is the default PayloadCodec: it marshals/unmarshals payloads as
// JSON, matching the teacher's control-message convention
// (daemon/transport's control stream) rather than inventing a bespoke "any"
// tagged encoding. A nil payload round-trips as nil.
type JSONCodec struct{}

// Encode implements PayloadCodec.
func (JSONCodec) Encode(method string, payload any) ([]byte, error) {
	if payload == nil {
		return nil, nil
	}
	return json.Marshal(payload)
}

// Decode implements PayloadCodec. Callers that need a concrete type should
// wrap JSONCodec and unmarshal into it themselves (Decode here returns a
// generic map/slice/scalar per encoding/json's default unmarshal target).
func (JSONCodec) Decode(method string, raw []byte) (any, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, err
	}
	return v, nil
}

// RawBytesCodec is a PayloadCodec that treats payloads as opaque []byte,
// for methods that manage their own framing inside the payload (file
// chunks riding the RPC stream alongside a Merkle proof, for example).
type RawBytesCodec struct{}

// Encode implements PayloadCodec. payload must be a []byte or nil.
func (RawBytesCodec) Encode(method string, payload any) ([]byte, error) {
	if payload == nil {
		return nil, nil
	}
	b, ok := payload.([]byte)
	if !ok {
		return nil, errPayloadNotBytes
	}
	return b, nil
}

// Decode implements PayloadCodec: returns raw bytes verbatim.
func (RawBytesCodec) Decode(method string, raw []byte) (any, error) {
	return raw, nil
}
