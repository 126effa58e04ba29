package imremote

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

// encodeBody builds a payload of type t whose body is body.
func encodeBody(e *Encoder, t PacketType, keyframe bool, body []byte) []byte {
	e.Begin(t, keyframe, len(body))
	e.Write(body)
	out := append([]byte(nil), e.Bytes()...)
	e.Commit()
	return out
}

func TestEncoder_KeyframeIsVerbatim(t *testing.T) {
	var e Encoder
	encodeBody(&e, PacketFrameKey, true, []byte{9, 9, 9, 9})

	body := []byte{1, 2, 3}
	got := encodeBody(&e, PacketFrameKey, true, body)

	require.Equal(t, append([]byte{byte(PacketFrameKey)}, body...), got)
}

func TestEncoder_DiffAgainstPrevious(t *testing.T) {
	var e Encoder
	encodeBody(&e, PacketFrameKey, true, []byte{10, 20, 30})

	got := encodeBody(&e, PacketFrameDiff, false, []byte{11, 20, 5})

	// 5 - 30 wraps modulo 256.
	require.Equal(t, []byte{byte(PacketFrameDiff), 1, 0, 231}, got)
}

func TestEncoder_DiffPastPreviousLengthUsesZero(t *testing.T) {
	var e Encoder
	encodeBody(&e, PacketFrameKey, true, []byte{1, 1})

	got := encodeBody(&e, PacketFrameDiff, false, []byte{2, 2, 7, 8})

	require.Equal(t, []byte{byte(PacketFrameDiff), 1, 1, 7, 8}, got)
}

func TestEncoder_DiffUsesImmediatelyPrecedingLength(t *testing.T) {
	var e Encoder
	encodeBody(&e, PacketFrameKey, true, []byte{5, 5, 5, 5})
	encodeBody(&e, PacketFrameDiff, false, []byte{6})

	// Bytes 2..4 of the first payload are still buffered but the previous
	// payload was only 2 bytes long.
	got := encodeBody(&e, PacketFrameDiff, false, []byte{6, 3, 3})

	require.Equal(t, []byte{byte(PacketFrameDiff), 0, 3, 3}, got)
}

func TestEncoder_PreviousHoldsRawBytes(t *testing.T) {
	var e Encoder
	encodeBody(&e, PacketFrameKey, true, []byte{100})
	encodeBody(&e, PacketFrameDiff, false, []byte{150})

	got := encodeBody(&e, PacketFrameDiff, false, []byte{160})

	require.Equal(t, []byte{byte(PacketFrameDiff), 10}, got)
}

func TestEncoder_Reset(t *testing.T) {
	var e Encoder
	encodeBody(&e, PacketFrameKey, true, []byte{1, 2, 3})
	e.Reset()

	got := encodeBody(&e, PacketFrameDiff, false, []byte{1, 2, 3})

	require.Equal(t, []byte{byte(PacketFrameDiff), 1, 2, 3}, got)
}

func TestEncoder_WriteUint32(t *testing.T) {
	var e Encoder
	e.Begin(PacketFrameKey, true, 4)
	e.WriteUint32(0x01020304)

	require.Equal(t, []byte{byte(PacketFrameKey), 4, 3, 2, 1}, e.Bytes())
	require.True(t, e.Keyframe())
}

func TestEncoderDecoder_RoundTrip(t *testing.T) {
	sizes := [][2]int{{0, 5}, {5, 5}, {5, 0}, {3, 17}, {17, 3}, {64, 63}}

	for _, sz := range sizes {
		prev := bytes.Repeat([]byte{0xa5}, sz[0])
		for i := range prev {
			prev[i] += byte(i * 7)
		}
		cur := make([]byte, sz[1])
		for i := range cur {
			cur[i] = byte(i*13 + 1)
		}

		var (
			e Encoder
			d Decoder
		)
		first, err := d.Decode(encodeBody(&e, PacketFrameKey, true, prev))
		require.NoError(t, err)
		require.Equal(t, prev, first[1:])

		second, err := d.Decode(encodeBody(&e, PacketFrameDiff, false, cur))
		require.NoError(t, err)
		require.Equal(t, cur, second[1:], "prev %d bytes, cur %d bytes", sz[0], sz[1])
	}
}

func TestDecoder_UnknownType(t *testing.T) {
	var d Decoder

	_, err := d.Decode([]byte{1, 2, 3})
	require.ErrorIs(t, err, ErrUnknownPacketType)

	_, err = d.Decode(nil)
	require.ErrorIs(t, err, ErrUnknownPacketType)
}

func TestPacketType_String(t *testing.T) {
	require.Equal(t, "font_atlas", PacketFontAtlas.String())
	require.Equal(t, "frame_key", PacketFrameKey.String())
	require.Equal(t, "frame_diff", PacketFrameDiff.String())
	require.Equal(t, "unknown", PacketType(1).String())
}
