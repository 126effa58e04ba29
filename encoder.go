package imremote

import (
	"encoding/binary"

	"github.com/pkg/errors"
)

// PacketType is the first byte of every payload.
type PacketType uint8

// Packet types.
const (
	PacketFontAtlas PacketType = 255
	PacketFrameKey  PacketType = 254
	PacketFrameDiff PacketType = 253
)

// String returns the string representation of the packet type.
func (t PacketType) String() string {
	switch t {
	case PacketFontAtlas:
		return "font_atlas"
	case PacketFrameKey:
		return "frame_key"
	case PacketFrameDiff:
		return "frame_diff"
	default:
		return "unknown"
	}
}

// ErrUnknownPacketType is returned when decoding a payload with an unknown type byte.
var ErrUnknownPacketType = errors.New("unknown packet type")

// Encoder builds packet payloads either verbatim (keyframe) or as a
// byte-wise delta against the previously built payload.
//
// Diffing is positional: byte i of the new payload is subtracted (mod 256)
// from byte i of the previous one, or from zero past its end. The type byte
// at position 0 is always written raw.
//
// An Encoder is not safe for concurrent use.
type Encoder struct {
	packet   []byte
	prev     []byte
	prevSize int
	keyframe bool
}

// Begin starts a new payload of type t with room for bodySize bytes.
func (e *Encoder) Begin(t PacketType, keyframe bool, bodySize int) {
	size := 1 + bodySize
	if cap(e.packet) < size {
		e.packet = make([]byte, 0, size)
	}
	e.packet = e.packet[:0]
	if len(e.prev) < size {
		e.prev = append(e.prev, make([]byte, size-len(e.prev))...)
	}
	e.keyframe = keyframe
	e.packet = append(e.packet, byte(t))
}

// Keyframe reports whether the payload being built is a keyframe.
func (e *Encoder) Keyframe() bool {
	return e.keyframe
}

// Write appends p, diffed unless the payload is a keyframe. The previous
// payload buffer always receives the raw bytes.
func (e *Encoder) Write(p []byte) {
	for _, c := range p {
		pos := len(e.packet)
		if pos >= len(e.prev) {
			e.prev = append(e.prev, 0)
		}
		if e.keyframe {
			e.packet = append(e.packet, c)
		} else {
			var old byte
			if pos < e.prevSize {
				old = e.prev[pos]
			}
			e.packet = append(e.packet, c-old)
		}
		e.prev[pos] = c
	}
}

// WriteUint32 appends v as 4 little-endian bytes.
func (e *Encoder) WriteUint32(v uint32) {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	e.Write(b[:])
}

// Bytes returns the payload built since Begin. The slice is reused by the
// next Begin.
func (e *Encoder) Bytes() []byte {
	return e.packet
}

// Commit records the current payload as the one the next diff is taken against.
func (e *Encoder) Commit() {
	e.prevSize = len(e.packet)
}

// Reset forgets the previous payload.
func (e *Encoder) Reset() {
	e.packet = e.packet[:0]
	e.prevSize = 0
	clear(e.prev)
}

// Decoder reverses Encoder on the receiving side.
type Decoder struct {
	prev []byte
}

// Decode restores the raw payload from an encoded one. Diff payloads are
// added back to the previously decoded payload; other types are verbatim.
func (d *Decoder) Decode(payload []byte) ([]byte, error) {
	if len(payload) == 0 {
		return nil, errors.Wrap(ErrUnknownPacketType, "empty payload")
	}

	out := make([]byte, len(payload))
	out[0] = payload[0]

	switch PacketType(payload[0]) {
	case PacketFontAtlas, PacketFrameKey:
		copy(out[1:], payload[1:])
	case PacketFrameDiff:
		for i := 1; i < len(payload); i++ {
			var old byte
			if i < len(d.prev) {
				old = d.prev[i]
			}
			out[i] = payload[i] + old
		}
	default:
		return nil, errors.Wrapf(ErrUnknownPacketType, "type %d", payload[0])
	}

	d.prev = out
	return out, nil
}
