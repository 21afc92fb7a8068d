package render

import (
	"encoding/binary"
	"math"

	"github.com/gogpu/sparsetex"
)

// frameUniformSize is the byte size of the FrameUniforms GPU block.
// Matches the std140 layout of FrameUniforms in composite.wgsl: two
// mat3x3<f32> (each three vec4-padded columns, 48 bytes), three
// vec2<u32>, one u32, padded to a 16-byte multiple.
const frameUniformSize = 128

// FrameUniforms is the per-frame uniform block shared by the composite
// and present passes.
type FrameUniforms struct {
	// CanvasToScreen maps canvas pixels to screen pixels.
	CanvasToScreen sparsetex.Matrix

	// ScreenToCanvas is its inverse, applied per output pixel by the
	// composite shader.
	ScreenToCanvas sparsetex.Matrix

	// TargetSize is the output surface size in pixels.
	TargetSize [2]uint32

	// CanvasSize is the canvas size in pixels.
	CanvasSize [2]uint32

	// Grid is the canvas tile-grid size in tiles.
	Grid [2]uint32

	// TileSize is the tile edge length in pixels.
	TileSize uint32
}

// toBytes serializes the uniforms into the shader's std140 layout.
func (u FrameUniforms) toBytes() []byte {
	buf := make([]byte, frameUniformSize)
	le := binary.LittleEndian

	putMat3(buf[0:48], u.CanvasToScreen)
	putMat3(buf[48:96], u.ScreenToCanvas)
	le.PutUint32(buf[96:100], u.TargetSize[0])
	le.PutUint32(buf[100:104], u.TargetSize[1])
	le.PutUint32(buf[104:108], u.CanvasSize[0])
	le.PutUint32(buf[108:112], u.CanvasSize[1])
	le.PutUint32(buf[112:116], u.Grid[0])
	le.PutUint32(buf[116:120], u.Grid[1])
	le.PutUint32(buf[120:124], u.TileSize)
	return buf
}

// putMat3 writes an affine matrix as a WGSL mat3x3<f32>: three column
// vectors, each padded to 16 bytes. The affine rows [A B C; D E F] map to
// columns (A,D,0), (B,E,0), (C,F,1).
func putMat3(buf []byte, m sparsetex.Matrix) {
	le := binary.LittleEndian
	cols := [3][3]float64{
		{m.A, m.D, 0},
		{m.B, m.E, 0},
		{m.C, m.F, 1},
	}
	for c := 0; c < 3; c++ {
		for r := 0; r < 3; r++ {
			le.PutUint32(buf[c*16+r*4:], math.Float32bits(float32(cols[c][r])))
		}
	}
}
