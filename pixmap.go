package sparsetex

import (
	"encoding/binary"
	"image"
	"math"

	xdraw "golang.org/x/image/draw"
)

// Pixmap is a CPU-side pixel buffer holding fully-resolved floating-point
// RGBA values, 4 float32 per pixel in row-major order. It is the input
// format of the tile upload path.
type Pixmap struct {
	width  int
	height int
	data   []float32
}

// NewPixmap creates a transparent pixmap with the given dimensions.
func NewPixmap(width, height int) *Pixmap {
	if width < 0 {
		width = 0
	}
	if height < 0 {
		height = 0
	}
	return &Pixmap{
		width:  width,
		height: height,
		data:   make([]float32, width*height*4),
	}
}

// PixmapFromImage converts a decoded image to a float RGBA pixmap.
// Color model conversion goes through 16-bit RGBA so higher-depth
// sources keep their precision.
func PixmapFromImage(img image.Image) *Pixmap {
	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()

	tmp := image.NewRGBA64(image.Rect(0, 0, w, h))
	xdraw.Copy(tmp, image.Point{}, img, bounds, xdraw.Src, nil)

	p := NewPixmap(w, h)
	for y := 0; y < h; y++ {
		row := tmp.Pix[y*tmp.Stride : y*tmp.Stride+w*8]
		for x := 0; x < w; x++ {
			i := (y*w + x) * 4
			for c := 0; c < 4; c++ {
				v := binary.BigEndian.Uint16(row[x*8+c*2:])
				p.data[i+c] = float32(v) / 65535
			}
		}
	}
	return p
}

// Width returns the pixmap width in pixels.
func (p *Pixmap) Width() int { return p.width }

// Height returns the pixmap height in pixels.
func (p *Pixmap) Height() int { return p.height }

// Data returns the raw float RGBA data.
func (p *Pixmap) Data() []float32 { return p.data }

// SetPixel sets one pixel. Out-of-range coordinates are ignored.
func (p *Pixmap) SetPixel(x, y int, r, g, b, a float32) {
	if x < 0 || x >= p.width || y < 0 || y >= p.height {
		return
	}
	i := (y*p.width + x) * 4
	p.data[i+0] = r
	p.data[i+1] = g
	p.data[i+2] = b
	p.data[i+3] = a
}

// Pixel returns one pixel. Out-of-range coordinates return transparent black.
func (p *Pixmap) Pixel(x, y int) (r, g, b, a float32) {
	if x < 0 || x >= p.width || y < 0 || y >= p.height {
		return 0, 0, 0, 0
	}
	i := (y*p.width + x) * 4
	return p.data[i+0], p.data[i+1], p.data[i+2], p.data[i+3]
}

// Rgba16Data encodes the sub-rectangle as tightly packed rgba16float
// texels (8 bytes per pixel, little-endian), the tile texel format.
// The sub-rectangle must lie within the pixmap.
func (p *Pixmap) Rgba16Data(sub RectU) []byte {
	out := make([]byte, int(sub.Width)*int(sub.Height)*8)
	o := 0
	for y := uint32(0); y < sub.Height; y++ {
		rowBase := (int(sub.Y+y)*p.width + int(sub.X)) * 4
		for x := uint32(0); x < sub.Width; x++ {
			i := rowBase + int(x)*4
			for c := 0; c < 4; c++ {
				binary.LittleEndian.PutUint16(out[o:], float16bits(p.data[i+c]))
				o += 2
			}
		}
	}
	return out
}

// SetRgba16Data decodes tightly packed rgba16float texels (8 bytes per
// pixel, little-endian) into the sub-rectangle, the inverse of Rgba16Data.
// The sub-rectangle must lie within the pixmap and data must hold
// sub.Width*sub.Height texels.
func (p *Pixmap) SetRgba16Data(sub RectU, data []byte) {
	o := 0
	for y := uint32(0); y < sub.Height; y++ {
		rowBase := (int(sub.Y+y)*p.width + int(sub.X)) * 4
		for x := uint32(0); x < sub.Width; x++ {
			i := rowBase + int(x)*4
			for c := 0; c < 4; c++ {
				p.data[i+c] = float16value(binary.LittleEndian.Uint16(data[o:]))
				o += 2
			}
		}
	}
}

// float16bits converts a float32 to IEEE 754 binary16 bits with
// round-to-nearest-even. Values beyond the half range become infinity.
func float16bits(f float32) uint16 {
	b := math.Float32bits(f)
	sign := uint16(b>>16) & 0x8000
	exp := int32(b>>23&0xff) - 127 + 15
	mant := b & 0x7fffff

	switch {
	case exp >= 0x1f:
		// Overflow, infinity, or NaN.
		if int32(b>>23&0xff) == 0xff && mant != 0 {
			return sign | 0x7e00
		}
		return sign | 0x7c00
	case exp <= 0:
		// Subnormal half or underflow to zero.
		if exp < -10 {
			return sign
		}
		mant |= 0x800000
		shift := uint32(14 - exp)
		half := uint16(mant >> shift)
		// Round to nearest, ties to even.
		rem := mant & ((1 << shift) - 1)
		mid := uint32(1) << (shift - 1)
		if rem > mid || (rem == mid && half&1 == 1) {
			half++
		}
		return sign | half
	default:
		half := sign | uint16(exp)<<10 | uint16(mant>>13)
		rem := mant & 0x1fff
		if rem > 0x1000 || (rem == 0x1000 && half&1 == 1) {
			half++ // may carry into the exponent, which is correct
		}
		return half
	}
}

// float16value converts IEEE 754 binary16 bits to float32. The conversion
// is exact, every half value is representable as a float32.
func float16value(h uint16) float32 {
	sign := uint32(h&0x8000) << 16
	exp := uint32(h >> 10 & 0x1f)
	mant := uint32(h & 0x3ff)

	switch {
	case exp == 0x1f:
		// Infinity or NaN.
		return math.Float32frombits(sign | 0x7f800000 | mant<<13)
	case exp == 0:
		if mant == 0 {
			return math.Float32frombits(sign)
		}
		// Subnormal half, normalize.
		e := uint32(127 - 15 + 1)
		for mant&0x400 == 0 {
			mant <<= 1
			e--
		}
		return math.Float32frombits(sign | e<<23 | (mant&0x3ff)<<13)
	default:
		return math.Float32frombits(sign | (exp+127-15)<<23 | mant<<13)
	}
}
