package tilestore

import (
	"errors"
	"sync"
	"testing"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
	"github.com/gogpu/wgpu/hal/noop"

	"github.com/gogpu/sparsetex"
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

// newTestStore creates a store on a noop device with the given config and
// registers cleanup.
func newTestStore(t *testing.T, cfg Config) *Store {
	t.Helper()
	device, queue, cleanup := createNoopDevice(t)
	t.Cleanup(cleanup)

	s, err := New(device, queue, cfg)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	t.Cleanup(s.Close)
	return s
}

func TestNewValidation(t *testing.T) {
	device, queue, cleanup := createNoopDevice(t)
	defer cleanup()

	if _, err := New(nil, nil, Config{}); !errors.Is(err, ErrNilDevice) {
		t.Errorf("New(nil, nil) error = %v, want ErrNilDevice", err)
	}
	if _, err := New(device, queue, Config{TilesPerPile: -1}); !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("negative TilesPerPile error = %v, want ErrInvalidConfig", err)
	}
}

func TestNewDefaults(t *testing.T) {
	s := newTestStore(t, Config{})
	if s.tilesPerPile != DefaultTilesPerPile {
		t.Errorf("tilesPerPile = %d, want %d", s.tilesPerPile, DefaultTilesPerPile)
	}
	if s.PileCount() != 0 {
		t.Errorf("fresh store PileCount = %d, want 0 (piles are lazy)", s.PileCount())
	}
	if s.TileCount() != 0 {
		t.Errorf("fresh store TileCount = %d, want 0", s.TileCount())
	}
}

func TestGetMissReturnsSentinel(t *testing.T) {
	s := newTestStore(t, Config{})

	key := TileKey{Layer: sparsetex.NewLayerID(), Coord: TileCoord{X: 7, Y: 3}}
	tile := s.Get(key)

	if tile.Key != key {
		t.Errorf("sentinel tile Key = %+v, want the requested key %+v", tile.Key, key)
	}
	if tile.Slot != (Slot{Pile: 0, Layer: 0}) {
		t.Errorf("sentinel tile Slot = %+v, want the sentinel slot", tile.Slot)
	}
	if tile.View == nil {
		t.Error("sentinel tile must carry a usable view")
	}
	if s.TileCount() != 0 || s.PileCount() != 0 {
		t.Error("Get must never allocate")
	}
}

func TestGetOrAllocateIdempotent(t *testing.T) {
	s := newTestStore(t, Config{})

	key := TileKey{Layer: sparsetex.NewLayerID(), Coord: TileCoord{X: 1, Y: 2}}
	first, err := s.GetOrAllocate(key)
	if err != nil {
		t.Fatalf("GetOrAllocate failed: %v", err)
	}
	second, err := s.GetOrAllocate(key)
	if err != nil {
		t.Fatalf("second GetOrAllocate failed: %v", err)
	}

	if first != second {
		t.Errorf("repeated GetOrAllocate returned different tiles: %+v vs %+v", first, second)
	}
	if s.TileCount() != 1 {
		t.Errorf("TileCount = %d, want 1", s.TileCount())
	}
	if first.Slot.Pile == 0 {
		t.Error("allocated tile must not live in the sentinel pile")
	}

	// Get now resolves to the same tile.
	if got := s.Get(key); got != first {
		t.Errorf("Get after allocate = %+v, want %+v", got, first)
	}
}

func TestGetOrAllocateDistinctSlots(t *testing.T) {
	s := newTestStore(t, Config{})
	layer := sparsetex.NewLayerID()

	seen := make(map[Slot]TileKey)
	for x := uint32(0); x < 4; x++ {
		for y := uint32(0); y < 4; y++ {
			key := TileKey{Layer: layer, Coord: TileCoord{X: x, Y: y}}
			tile, err := s.GetOrAllocate(key)
			if err != nil {
				t.Fatalf("GetOrAllocate(%+v) failed: %v", key, err)
			}
			if prev, dup := seen[tile.Slot]; dup {
				t.Fatalf("slot %+v assigned to both %+v and %+v", tile.Slot, prev, key)
			}
			seen[tile.Slot] = key
		}
	}
}

func TestGetOrAllocateConcurrent(t *testing.T) {
	s := newTestStore(t, Config{})
	layer := sparsetex.NewLayerID()

	const workers = 8
	const gridSide = 8

	// All workers race over the same key set.
	var wg sync.WaitGroup
	results := make([]map[TileKey]Slot, workers)
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			local := make(map[TileKey]Slot)
			for x := uint32(0); x < gridSide; x++ {
				for y := uint32(0); y < gridSide; y++ {
					key := TileKey{Layer: layer, Coord: TileCoord{X: x, Y: y}}
					tile, err := s.GetOrAllocate(key)
					if err != nil {
						t.Errorf("GetOrAllocate(%+v) failed: %v", key, err)
						return
					}
					local[key] = tile.Slot
				}
			}
			results[w] = local
		}(w)
	}
	wg.Wait()

	// Every worker observed the same key->slot assignment.
	for w := 1; w < workers; w++ {
		for key, slot := range results[0] {
			if results[w][key] != slot {
				t.Errorf("worker %d saw %+v -> %+v, worker 0 saw %+v", w, key, results[w][key], slot)
			}
		}
	}

	// Exactly one slot per key, no duplicates, no leaks.
	if got, want := s.TileCount(), gridSide*gridSide; got != want {
		t.Errorf("TileCount = %d, want %d", got, want)
	}
	slots := make(map[Slot]bool)
	for key, slot := range results[0] {
		if slots[slot] {
			t.Errorf("slot %+v assigned twice (key %+v)", slot, key)
		}
		slots[slot] = true
	}
	if got, want := s.FreeSlots(), s.PileCount()*s.tilesPerPile-s.TileCount(); got != want {
		t.Errorf("FreeSlots = %d, want %d (a losing racer leaked a slot)", got, want)
	}
}

func TestPileGrowthIsLazy(t *testing.T) {
	s := newTestStore(t, Config{TilesPerPile: 4})
	layer := sparsetex.NewLayerID()

	for i := uint32(0); i < 4; i++ {
		if _, err := s.GetOrAllocate(TileKey{Layer: layer, Coord: TileCoord{X: i}}); err != nil {
			t.Fatalf("GetOrAllocate %d failed: %v", i, err)
		}
	}
	if s.PileCount() != 1 {
		t.Fatalf("after filling one pile: PileCount = %d, want 1", s.PileCount())
	}

	// The N+1th allocation creates the second pile, not before.
	if _, err := s.GetOrAllocate(TileKey{Layer: layer, Coord: TileCoord{Y: 9}}); err != nil {
		t.Fatalf("overflow allocation failed: %v", err)
	}
	if s.PileCount() != 2 {
		t.Errorf("after overflow: PileCount = %d, want 2", s.PileCount())
	}
	if got, want := s.FreeSlots(), 3; got != want {
		t.Errorf("FreeSlots = %d, want %d", got, want)
	}
}

func TestMemoryBudget(t *testing.T) {
	// TilesPerPile=2 makes one pile cost exactly 1 MB
	// (256*256 texels * 8 bytes * 2 layers).
	s := newTestStore(t, Config{TilesPerPile: 2, MemoryBudgetMB: 1})
	layer := sparsetex.NewLayerID()

	for i := uint32(0); i < 2; i++ {
		if _, err := s.GetOrAllocate(TileKey{Layer: layer, Coord: TileCoord{X: i}}); err != nil {
			t.Fatalf("GetOrAllocate %d failed: %v", i, err)
		}
	}

	_, err := s.GetOrAllocate(TileKey{Layer: layer, Coord: TileCoord{X: 5}})
	if !errors.Is(err, ErrOutOfDeviceMemory) {
		t.Fatalf("over-budget allocation error = %v, want ErrOutOfDeviceMemory", err)
	}

	// The store stays usable for reads and existing tiles.
	if got := s.Get(TileKey{Layer: layer, Coord: TileCoord{X: 0}}); got.Slot.Pile == 0 {
		t.Error("existing tile lost after failed allocation")
	}
	if got := s.Get(TileKey{Layer: layer, Coord: TileCoord{X: 5}}); got.Slot != (Slot{}) {
		t.Error("failed allocation must not leave a tile behind")
	}
}

func TestStats(t *testing.T) {
	s := newTestStore(t, Config{TilesPerPile: 4, MemoryBudgetMB: 64})
	layer := sparsetex.NewLayerID()

	if _, err := s.GetOrAllocate(TileKey{Layer: layer}); err != nil {
		t.Fatalf("GetOrAllocate failed: %v", err)
	}

	stats := s.Stats()
	if stats.PileCount != 1 || stats.TileCount != 1 || stats.FreeSlots != 3 {
		t.Errorf("stats = %+v", stats)
	}
	if stats.UsedBytes != uint64(TileSize)*TileSize*tileTexelBytes*4 {
		t.Errorf("UsedBytes = %d", stats.UsedBytes)
	}
	if stats.TotalBytes != 64*1024*1024 {
		t.Errorf("TotalBytes = %d", stats.TotalBytes)
	}
	if stats.Utilization <= 0 || stats.Utilization > 1 {
		t.Errorf("Utilization = %v", stats.Utilization)
	}
	if stats.String() == "" {
		t.Error("String() should not be empty")
	}
}

func TestCloseRejectsAllocation(t *testing.T) {
	s := newTestStore(t, Config{})
	s.Close()
	s.Close() // idempotent

	if _, err := s.GetOrAllocate(TileKey{Layer: sparsetex.NewLayerID()}); !errors.Is(err, ErrStoreClosed) {
		t.Errorf("GetOrAllocate after Close error = %v, want ErrStoreClosed", err)
	}
}

func TestCalcGridDims(t *testing.T) {
	tests := []struct {
		w, h uint32
		want GridDims
	}{
		{600, 400, GridDims{W: 3, H: 2}},
		{256, 256, GridDims{W: 1, H: 1}},
		{257, 1, GridDims{W: 2, H: 1}},
		{1024, 768, GridDims{W: 4, H: 3}},
	}
	for _, tt := range tests {
		if got := CalcGridDims(tt.w, tt.h); got != tt.want {
			t.Errorf("CalcGridDims(%d, %d) = %+v, want %+v", tt.w, tt.h, got, tt.want)
		}
	}
}
