package wire

import "fmt"

// MalformedFrameError is returned when a frame cannot be decoded: truncated
// input, a length field exceeding the remaining buffer, or non-UTF-8 bytes
// in a string field. Offset points at the byte where decoding stopped
// making sense, for diagnostics.
type MalformedFrameError struct {
	Offset int
	Reason string
}

func (e *MalformedFrameError) Error() string {
	return fmt.Sprintf("malformed frame at offset %d: %s", e.Offset, e.Reason)
}

// UnsupportedVersionError is returned when an envelope's version byte is not
// the one this codec understands.
type UnsupportedVersionError struct {
	Got byte
}

func (e *UnsupportedVersionError) Error() string {
	return fmt.Sprintf("unsupported protocol version %#x", e.Got)
}

// UnknownTargetTypeError is returned when an envelope's target type byte
// does not match any known target.
type UnknownTargetTypeError struct {
	Offset int
	Got    byte
}

func (e *UnknownTargetTypeError) Error() string {
	return fmt.Sprintf("unknown target type %#x at offset %d", e.Got, e.Offset)
}

func malformed(offset int, reason string) error {
	return &MalformedFrameError{Offset: offset, Reason: reason}
}
