package imremote

import (
	"encoding/binary"

	"github.com/pierrec/lz4/v4"
	"github.com/pkg/errors"
)

// Wire header constants.
const (
	// Magic identifies an LZ4-compressed packet stream.
	Magic uint32 = 0xBAADFEED
	// HeaderSize is magic + uncompressed size + compressed size.
	HeaderSize = 12
	// DefaultMaxPacketSize bounds the compressed payload of a single packet.
	DefaultMaxPacketSize = 65536*4 - HeaderSize
)

var (
	// ErrCompressionOverflow is returned when a payload does not compress into the packet bound.
	ErrCompressionOverflow = errors.New("compressed payload exceeds packet bound")
	// ErrInvalidHeader is returned when a packet header is short or has the wrong magic.
	ErrInvalidHeader = errors.New("invalid packet header")
	// ErrInvalidAtlas is returned when the atlas pixels do not cover width*height.
	ErrInvalidAtlas = errors.New("invalid font atlas")
)

// Compressor is a bounded-output block compressor.
type Compressor interface {
	// Compress returns the compressed form of src, or ErrCompressionOverflow
	// when it cannot be stored in maxOut bytes.
	Compress(src []byte, maxOut int) ([]byte, error)
}

// LZ4Compressor produces raw LZ4 blocks. It is not safe for concurrent use.
type LZ4Compressor struct {
	c lz4.Compressor
}

// Compress implements Compressor.
func (l *LZ4Compressor) Compress(src []byte, maxOut int) ([]byte, error) {
	size := lz4.CompressBlockBound(len(src))
	if size > maxOut {
		size = maxOut
	}
	if size <= 0 {
		return nil, ErrCompressionOverflow
	}

	dst := make([]byte, size)
	n, err := l.c.CompressBlock(src, dst)
	if err != nil {
		return nil, errors.WithMessage(ErrCompressionOverflow, err.Error())
	}
	// (0, nil) means incompressible within dst.
	if n == 0 && len(src) > 0 {
		return nil, ErrCompressionOverflow
	}
	return dst[:n], nil
}

// Header precedes the compressed payload of every binary message.
type Header struct {
	Magic            uint32
	UncompressedSize uint32
	CompressedSize   uint32
}

// Put writes the header into b, which must hold HeaderSize bytes.
func (h Header) Put(b []byte) {
	_ = b[HeaderSize-1]
	binary.LittleEndian.PutUint32(b[0:], h.Magic)
	binary.LittleEndian.PutUint32(b[4:], h.UncompressedSize)
	binary.LittleEndian.PutUint32(b[8:], h.CompressedSize)
}

// DecodeHeader reads a packet header and checks its magic and sizes.
func DecodeHeader(b []byte) (Header, error) {
	if len(b) < HeaderSize {
		return Header{}, errors.Wrapf(ErrInvalidHeader, "short packet: %d bytes", len(b))
	}
	h := Header{
		Magic:            binary.LittleEndian.Uint32(b[0:]),
		UncompressedSize: binary.LittleEndian.Uint32(b[4:]),
		CompressedSize:   binary.LittleEndian.Uint32(b[8:]),
	}
	if h.Magic != Magic {
		return Header{}, errors.Wrapf(ErrInvalidHeader, "magic %#x", h.Magic)
	}
	if int(h.CompressedSize) != len(b)-HeaderSize {
		return Header{}, errors.Wrapf(ErrInvalidHeader, "compressed size %d, have %d", h.CompressedSize, len(b)-HeaderSize)
	}
	return h, nil
}

// Framer compresses payloads and prefixes them with a Header.
type Framer struct {
	compressor Compressor
	maxSize    int
}

// NewFramer creates a Framer bounded to maxPacketSize compressed bytes.
// A nil compressor selects LZ4, a non-positive size selects DefaultMaxPacketSize.
func NewFramer(c Compressor, maxPacketSize int) *Framer {
	if c == nil {
		c = new(LZ4Compressor)
	}
	if maxPacketSize <= 0 {
		maxPacketSize = DefaultMaxPacketSize
	}
	return &Framer{compressor: c, maxSize: maxPacketSize}
}

// Frame returns a new buffer holding the header and the compressed payload.
func (f *Framer) Frame(payload []byte) ([]byte, error) {
	return f.frame(payload, f.maxSize)
}

// FrameFit is Frame with the bound raised to the worst-case compressed size
// of payload when that exceeds the packet bound. Used for one-off payloads
// such as the font atlas, which may be far larger than any frame.
func (f *Framer) FrameFit(payload []byte) ([]byte, error) {
	return f.frame(payload, max(f.maxSize, lz4.CompressBlockBound(len(payload))))
}

func (f *Framer) frame(payload []byte, maxSize int) ([]byte, error) {
	compressed, err := f.compressor.Compress(payload, maxSize)
	if err != nil {
		return nil, err
	}
	if len(compressed) > maxSize {
		return nil, ErrCompressionOverflow
	}

	out := make([]byte, HeaderSize+len(compressed))
	Header{
		Magic:            Magic,
		UncompressedSize: uint32(len(payload)),
		CompressedSize:   uint32(len(compressed)),
	}.Put(out)
	copy(out[HeaderSize:], compressed)
	return out, nil
}

// BuildFontAtlas writes an alpha8 font atlas payload into e. Atlas payloads
// are always keyframes.
func BuildFontAtlas(e *Encoder, pixels []byte, width, height int) error {
	if width < 0 || height < 0 || len(pixels) < width*height {
		return errors.WithMessagef(ErrInvalidAtlas, "%dx%d with %d bytes", width, height, len(pixels))
	}
	e.Begin(PacketFontAtlas, true, 8+width*height)
	e.WriteUint32(uint32(width))
	e.WriteUint32(uint32(height))
	e.Write(pixels[:width*height])
	return nil
}

// BuildFrame writes the draw lists of one frame into e: command count,
// vertex count, every command record, then every vertex record.
func BuildFrame(e *Encoder, lists []DrawList, keyframe bool) {
	var cmdCount, vtxCount int
	for i := range lists {
		cmdCount += len(lists[i].Commands)
		vtxCount += len(lists[i].Vertices)
	}

	t := PacketFrameDiff
	if keyframe {
		t = PacketFrameKey
	}
	e.Begin(t, keyframe, 8+cmdCount*DrawCommandSize+vtxCount*VertexSize)
	e.WriteUint32(uint32(cmdCount))
	e.WriteUint32(uint32(vtxCount))

	var (
		cmd    DrawCommand
		cmdBuf [DrawCommandSize]byte
	)
	for i := range lists {
		for _, c := range lists[i].Commands {
			cmd.Set(c)
			cmd.Put(cmdBuf[:])
			e.Write(cmdBuf[:])
		}
	}

	var (
		vtx    Vertex
		vtxBuf [VertexSize]byte
	)
	for i := range lists {
		for _, v := range lists[i].Vertices {
			vtx.Set(v)
			vtx.Put(vtxBuf[:])
			e.Write(vtxBuf[:])
		}
	}
}
