package sparsetex

import (
	"image"
	"image/color"
	"math"
	"testing"
)

func TestFloat16Bits(t *testing.T) {
	tests := []struct {
		in   float32
		want uint16
	}{
		{0, 0x0000},
		{1, 0x3c00},
		{0.5, 0x3800},
		{-2, 0xc000},
		{65504, 0x7bff}, // largest finite half
		{100000, 0x7c00},
		{float32(math.Inf(1)), 0x7c00},
		{float32(math.Inf(-1)), 0xfc00},
	}
	for _, tt := range tests {
		if got := float16bits(tt.in); got != tt.want {
			t.Errorf("float16bits(%v) = %#04x, want %#04x", tt.in, got, tt.want)
		}
	}
}

func TestFloat16RoundTrip(t *testing.T) {
	// Values exactly representable in binary16 survive the round trip.
	values := []float32{0, 1, -1, 0.25, 0.5, 0.75, 2, 1024, -0.125, 65504}
	for _, v := range values {
		if got := float16value(float16bits(v)); got != v {
			t.Errorf("round trip of %v = %v", v, got)
		}
	}
}

func TestPixmapSetGetPixel(t *testing.T) {
	p := NewPixmap(4, 3)
	p.SetPixel(2, 1, 0.25, 0.5, 0.75, 1)
	r, g, b, a := p.Pixel(2, 1)
	if r != 0.25 || g != 0.5 || b != 0.75 || a != 1 {
		t.Errorf("Pixel(2,1) = (%v, %v, %v, %v)", r, g, b, a)
	}

	// Out-of-range access is a no-op / transparent black.
	p.SetPixel(-1, 0, 1, 1, 1, 1)
	p.SetPixel(4, 0, 1, 1, 1, 1)
	if r, g, b, a := p.Pixel(9, 9); r != 0 || g != 0 || b != 0 || a != 0 {
		t.Error("out-of-range Pixel should be transparent black")
	}
}

func TestRgba16DataRoundTrip(t *testing.T) {
	src := NewPixmap(5, 4)
	for y := 0; y < 4; y++ {
		for x := 0; x < 5; x++ {
			v := float32(x+y*5) / 32
			src.SetPixel(x, y, v, v*0.5, v*0.25, 1)
		}
	}

	sub := RectU{X: 1, Y: 1, Width: 3, Height: 2}
	data := src.Rgba16Data(sub)
	if want := 3 * 2 * 8; len(data) != want {
		t.Fatalf("len(data) = %d, want %d", len(data), want)
	}

	dst := NewPixmap(5, 4)
	dst.SetRgba16Data(sub, data)
	for y := 1; y < 3; y++ {
		for x := 1; x < 4; x++ {
			sr, sg, sb, sa := src.Pixel(x, y)
			dr, dg, db, da := dst.Pixel(x, y)
			if sr != dr || sg != dg || sb != db || sa != da {
				t.Errorf("pixel (%d,%d): got (%v,%v,%v,%v), want (%v,%v,%v,%v)",
					x, y, dr, dg, db, da, sr, sg, sb, sa)
			}
		}
	}
	// Pixels outside the sub-rectangle stay untouched.
	if r, _, _, _ := dst.Pixel(0, 0); r != 0 {
		t.Error("pixel outside the sub-rectangle was modified")
	}
}

func TestPixmapFromImage(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 2, 2))
	img.Set(0, 0, color.RGBA{R: 255, A: 255})
	img.Set(1, 1, color.RGBA{G: 255, A: 255})

	p := PixmapFromImage(img)
	if p.Width() != 2 || p.Height() != 2 {
		t.Fatalf("size = %dx%d, want 2x2", p.Width(), p.Height())
	}
	if r, _, _, a := p.Pixel(0, 0); math.Abs(float64(r-1)) > 1e-3 || math.Abs(float64(a-1)) > 1e-3 {
		t.Errorf("pixel (0,0) = r=%v a=%v, want opaque red", r, a)
	}
	if _, g, _, _ := p.Pixel(1, 1); math.Abs(float64(g-1)) > 1e-3 {
		t.Errorf("pixel (1,1) green = %v, want 1", g)
	}
	if _, _, _, a := p.Pixel(1, 0); a != 0 {
		t.Errorf("pixel (1,0) alpha = %v, want 0", a)
	}
}
