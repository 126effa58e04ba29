package imremote

import (
	"encoding/binary"
	"math"
)

// Record sizes on the wire.
const (
	// DrawCommandSize is the encoded size of a DrawCommand: i32 vertex count + 4 x f32 clip rect.
	DrawCommandSize = 4 + 4*4
	// VertexSize is the encoded size of a Vertex: 4 x i16 + 4 x u8.
	VertexSize = 2*4 + 4
)

// uvScale maps a texture coordinate in [0,1) onto [0,32767].
const uvScale = 32767

// DrawCmd is a draw call as produced by the rendering library.
type DrawCmd struct {
	VtxCount uint32
	// ClipRect is x1, y1, x2, y2.
	ClipRect [4]float32
}

// DrawVert is a vertex as produced by the rendering library.
type DrawVert struct {
	Pos [2]float32
	UV  [2]float32
	// Col is packed 0xAABBGGRR, red in the low byte.
	Col uint32
}

// DrawList is one command list with its vertex buffer.
type DrawList struct {
	Commands []DrawCmd
	Vertices []DrawVert
}

// DrawCommand is the fixed-layout record sent for each draw call.
type DrawCommand struct {
	VtxCount int32
	ClipRect [4]float32
}

// Set fills the record from a native draw command.
func (c *DrawCommand) Set(cmd DrawCmd) {
	c.VtxCount = int32(cmd.VtxCount)
	c.ClipRect = cmd.ClipRect
}

// Put writes the record into b, which must hold DrawCommandSize bytes.
func (c *DrawCommand) Put(b []byte) {
	_ = b[DrawCommandSize-1]
	binary.LittleEndian.PutUint32(b[0:], uint32(c.VtxCount))
	for i, f := range c.ClipRect {
		binary.LittleEndian.PutUint32(b[4+4*i:], math.Float32bits(f))
	}
}

// Vertex is the fixed-layout record sent for each rendered vertex.
// Positions are truncated to integers, texture coordinates are 1.15 fixed point.
type Vertex struct {
	X, Y       int16
	U, V       int16
	R, G, B, A uint8
}

// Set quantizes a native vertex. The conversion is lossy and truncates.
func (v *Vertex) Set(vtx DrawVert) {
	v.X = truncate16(vtx.Pos[0])
	v.Y = truncate16(vtx.Pos[1])
	v.U = truncate16(vtx.UV[0] * uvScale)
	v.V = truncate16(vtx.UV[1] * uvScale)
	v.R = uint8(vtx.Col)
	v.G = uint8(vtx.Col >> 8)
	v.B = uint8(vtx.Col >> 16)
	v.A = uint8(vtx.Col >> 24)
}

// Put writes the record into b, which must hold VertexSize bytes.
func (v *Vertex) Put(b []byte) {
	_ = b[VertexSize-1]
	binary.LittleEndian.PutUint16(b[0:], uint16(v.X))
	binary.LittleEndian.PutUint16(b[2:], uint16(v.Y))
	binary.LittleEndian.PutUint16(b[4:], uint16(v.U))
	binary.LittleEndian.PutUint16(b[6:], uint16(v.V))
	b[8] = v.R
	b[9] = v.G
	b[10] = v.B
	b[11] = v.A
}

// truncate16 converts toward zero and wraps into 16 bits.
func truncate16(f float32) int16 {
	if math.IsNaN(float64(f)) || f >= math.MaxInt32 || f <= math.MinInt32 {
		return 0
	}
	return int16(int32(f))
}
