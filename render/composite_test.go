package render

import (
	"encoding/binary"
	"testing"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
	"github.com/gogpu/wgpu/hal/noop"

	"github.com/gogpu/sparsetex/tilestore"
)

// createNoopDevice creates a noop device and queue for testing.
// Returns the device, queue, and a cleanup function.
func createNoopDevice(t *testing.T) (hal.Device, hal.Queue, func()) {
	t.Helper()
	api := noop.API{}
	instance, err := api.CreateInstance(nil)
	if err != nil {
		t.Fatalf("CreateInstance failed: %v", err)
	}
	adapters := instance.EnumerateAdapters(nil)
	openDev, err := adapters[0].Adapter.Open(0, gputypes.DefaultLimits())
	if err != nil {
		instance.Destroy()
		t.Fatalf("Open failed: %v", err)
	}
	cleanup := func() {
		openDev.Device.Destroy()
		instance.Destroy()
	}
	return openDev.Device, openDev.Queue, cleanup
}

func TestBuildMapping(t *testing.T) {
	grid := tilestore.GridDims{W: 3, H: 2}
	group := tilestore.TileGroup{
		Pile: 1,
		Tiles: []tilestore.TileRef{
			{Coord: tilestore.TileCoord{X: 0, Y: 0}, Layer: 5},
			{Coord: tilestore.TileCoord{X: 2, Y: 1}, Layer: 7},
			{Coord: tilestore.TileCoord{X: 9, Y: 9}, Layer: 1}, // out of grid, ignored
		},
	}

	buf := buildMapping(grid, group)
	if want := 3 * 2 * 4; len(buf) != want {
		t.Fatalf("len = %d, want %d", len(buf), want)
	}

	le := binary.LittleEndian
	want := []uint32{5, NoTile, NoTile, NoTile, NoTile, 7}
	for i, w := range want {
		if got := le.Uint32(buf[i*4:]); got != w {
			t.Errorf("mapping[%d] = %#x, want %#x", i, got, w)
		}
	}
}

func TestNewCompositePass(t *testing.T) {
	device, queue, cleanup := createNoopDevice(t)
	defer cleanup()

	p, err := NewCompositePass(device, queue)
	if err != nil {
		t.Fatalf("NewCompositePass failed: %v", err)
	}
	defer p.Destroy()

	if p.pipeline == nil || p.bgLayout == nil {
		t.Error("pipeline resources not created")
	}
	p.Destroy()
	p.Destroy() // idempotent
}

func TestNewPresentPass(t *testing.T) {
	device, _, cleanup := createNoopDevice(t)
	defer cleanup()

	p, err := NewPresentPass(device, gputypes.TextureFormatBGRA8Unorm)
	if err != nil {
		t.Fatalf("NewPresentPass failed: %v", err)
	}
	defer p.Destroy()

	if p.Format() != gputypes.TextureFormatBGRA8Unorm {
		t.Errorf("Format() = %v", p.Format())
	}
	if p.pipeline == nil {
		t.Error("pipeline not created")
	}
}

func TestNewSamplers(t *testing.T) {
	device, _, cleanup := createNoopDevice(t)
	defer cleanup()

	s, err := NewSamplers(device)
	if err != nil {
		t.Fatalf("NewSamplers failed: %v", err)
	}
	if s.Linear == nil || s.Nearest == nil {
		t.Error("samplers not created")
	}
	s.Destroy(device)
	s.Destroy(device) // idempotent
}
