package tilestore

import (
	"errors"
	"fmt"
	"sync"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/sparsetex"
)

// Store errors.
var (
	// ErrNilDevice is returned when constructing a store without a device.
	ErrNilDevice = errors.New("tilestore: device and queue are required")

	// ErrStoreClosed is returned when operating on a closed store.
	ErrStoreClosed = errors.New("tilestore: store closed")

	// ErrInvalidConfig is returned for non-positive configuration values.
	ErrInvalidConfig = errors.New("tilestore: invalid configuration")
)

// Config holds construction parameters for a Store.
type Config struct {
	// TilesPerPile is the slot capacity of each pile (default: 256).
	TilesPerPile int

	// MemoryBudgetMB is the device-memory budget for pile textures in MB
	// (default: 512). Pile creation past the budget fails with
	// ErrOutOfDeviceMemory; the store stays usable for reads.
	MemoryBudgetMB int
}

// pile is one texture array acting as a slab of tile slots.
type pile struct {
	texture hal.Texture
	// arrayView is a D2Array view over all layers, bound by the
	// compositing pass for a whole group of tiles at once.
	arrayView hal.TextureView
}

// Store owns all GPU tile storage: the piles, the free-slot list, the
// index from TileKey to physical slot, and the sentinel empty tile.
//
// A single lock guards the index, the pile list, and the free-slot list
// together, so every (pile, slot) pair is observed as either occupied by
// exactly one tile or present in the free list, never both and never
// neither. Reads take the lock shared; Get never allocates.
//
// Store is safe for concurrent use. Uploads may run from a background
// goroutine while a render thread resolves tiles.
type Store struct {
	device hal.Device
	queue  hal.Queue

	tilesPerPile int
	pileBytes    uint64
	budgetBytes  uint64

	mu sync.RWMutex
	// piles[0] is the sentinel pile backing the empty tile; allocation
	// piles start at index 1 and are never destroyed or shrunk.
	piles     []pile
	tiles     map[TileKey]Tile
	freeSlots []Slot
	usedBytes uint64
	closed    bool

	sentinel Tile
}

// sentinelKey is the reserved index entry of the empty tile.
var sentinelKey = TileKey{Layer: sparsetex.EmptyLayer, Coord: TileCoord{}}

// New creates a tile store on the given device and queue. The store does
// not own the device; Close releases only the store's own resources.
func New(device hal.Device, queue hal.Queue, cfg Config) (*Store, error) {
	if device == nil || queue == nil {
		return nil, ErrNilDevice
	}
	if cfg.TilesPerPile < 0 || cfg.MemoryBudgetMB < 0 {
		return nil, ErrInvalidConfig
	}
	if cfg.TilesPerPile == 0 {
		cfg.TilesPerPile = DefaultTilesPerPile
	}
	if cfg.MemoryBudgetMB == 0 {
		cfg.MemoryBudgetMB = DefaultMemoryBudgetMB
	}

	s := &Store{
		device:       device,
		queue:        queue,
		tilesPerPile: cfg.TilesPerPile,
		pileBytes:    uint64(TileSize) * TileSize * tileTexelBytes * uint64(cfg.TilesPerPile),
		budgetBytes:  uint64(cfg.MemoryBudgetMB) * 1024 * 1024,
		tiles:        make(map[TileKey]Tile),
	}

	if err := s.createSentinel(); err != nil {
		return nil, err
	}
	return s, nil
}

// createSentinel creates the permanent 1x1 empty tile and registers it as
// pile 0 so that sentinel-backed lookups group and composite like any
// other tile (sampling it yields transparent black).
func (s *Store) createSentinel() error {
	tex, err := s.device.CreateTexture(&hal.TextureDescriptor{
		Label:         "tile_empty",
		Size:          hal.Extent3D{Width: 1, Height: 1, DepthOrArrayLayers: 1},
		MipLevelCount: 1,
		SampleCount:   1,
		Dimension:     gputypes.TextureDimension2D,
		Format:        gputypes.TextureFormatRGBA16Float,
		Usage:         gputypes.TextureUsageTextureBinding | gputypes.TextureUsageCopyDst,
	})
	if err != nil {
		return fmt.Errorf("tilestore: create empty tile: %w", err)
	}

	arrayView, err := s.device.CreateTextureView(tex, &hal.TextureViewDescriptor{
		Label:           "tile_empty_pile_view",
		Format:          gputypes.TextureFormatRGBA16Float,
		Dimension:       gputypes.TextureViewDimension2DArray,
		Aspect:          gputypes.TextureAspectAll,
		MipLevelCount:   1,
		BaseArrayLayer:  0,
		ArrayLayerCount: 1,
	})
	if err != nil {
		s.device.DestroyTexture(tex)
		return fmt.Errorf("tilestore: create empty pile view: %w", err)
	}

	tileView, err := s.device.CreateTextureView(tex, &hal.TextureViewDescriptor{
		Label:           "tile_empty_view",
		Format:          gputypes.TextureFormatRGBA16Float,
		Dimension:       gputypes.TextureViewDimension2D,
		Aspect:          gputypes.TextureAspectAll,
		MipLevelCount:   1,
		BaseArrayLayer:  0,
		ArrayLayerCount: 1,
	})
	if err != nil {
		s.device.DestroyTextureView(arrayView)
		s.device.DestroyTexture(tex)
		return fmt.Errorf("tilestore: create empty tile view: %w", err)
	}

	s.piles = []pile{{texture: tex, arrayView: arrayView}}
	s.sentinel = Tile{Key: sentinelKey, Slot: Slot{Pile: 0, Layer: 0}, View: tileView}
	s.tiles[sentinelKey] = s.sentinel
	return nil
}

// Get returns the tile stored under key, or a sentinel-backed tile when
// the coordinate was never allocated. The sentinel copy carries the
// requested key so the result stays addressable. Get never allocates.
func (s *Store) Get(key TileKey) Tile {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if t, ok := s.tiles[key]; ok {
		return t
	}
	t := s.sentinel
	t.Key = key
	return t
}

// GetOrAllocate returns the tile stored under key, allocating a slot and
// inserting a new tile if the key is missing. Lookup, slot allocation, and
// insertion happen under one critical section, so concurrent calls racing
// on the same missing key see exactly one allocation and no slot can leak.
func (s *Store) GetOrAllocate(key TileKey) (Tile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return Tile{}, ErrStoreClosed
	}
	if t, ok := s.tiles[key]; ok {
		return t, nil
	}

	slot, err := s.allocateSlotLocked()
	if err != nil {
		return Tile{}, err
	}

	view, err := s.device.CreateTextureView(s.piles[slot.Pile].texture, &hal.TextureViewDescriptor{
		Label:           "tile_view",
		Format:          gputypes.TextureFormatRGBA16Float,
		Dimension:       gputypes.TextureViewDimension2D,
		Aspect:          gputypes.TextureAspectAll,
		MipLevelCount:   1,
		BaseArrayLayer:  slot.Layer,
		ArrayLayerCount: 1,
	})
	if err != nil {
		// The slot was never published; hand it back to the free list.
		s.freeSlots = append(s.freeSlots, slot)
		return Tile{}, fmt.Errorf("tilestore: create tile view: %w", err)
	}

	t := Tile{Key: key, Slot: slot, View: view}
	s.tiles[key] = t
	return t, nil
}

// allocateSlotLocked pops a free slot, creating a new pile first when the
// free list is exhausted. Pile creation is the heavyweight step and happens
// at most once per TilesPerPile allocations.
func (s *Store) allocateSlotLocked() (Slot, error) {
	if len(s.freeSlots) == 0 {
		if err := s.createPileLocked(); err != nil {
			return Slot{}, err
		}
	}
	slot := s.freeSlots[len(s.freeSlots)-1]
	s.freeSlots = s.freeSlots[:len(s.freeSlots)-1]
	return slot, nil
}

// createPileLocked creates one pile texture and enqueues all of its slots
// as free. Fails with ErrOutOfDeviceMemory when the budget is exhausted.
func (s *Store) createPileLocked() error {
	if s.usedBytes+s.pileBytes > s.budgetBytes {
		return fmt.Errorf("%w: pile needs %d MB, %d of %d MB in use",
			ErrOutOfDeviceMemory,
			s.pileBytes/(1024*1024),
			s.usedBytes/(1024*1024),
			s.budgetBytes/(1024*1024))
	}

	tex, err := s.device.CreateTexture(&hal.TextureDescriptor{
		Label:         fmt.Sprintf("tile_pile_%d", len(s.piles)),
		Size:          hal.Extent3D{Width: TileSize, Height: TileSize, DepthOrArrayLayers: uint32(s.tilesPerPile)},
		MipLevelCount: 1,
		SampleCount:   1,
		Dimension:     gputypes.TextureDimension2D,
		Format:        gputypes.TextureFormatRGBA16Float,
		Usage: gputypes.TextureUsageTextureBinding |
			gputypes.TextureUsageCopyDst |
			gputypes.TextureUsageCopySrc,
	})
	if err != nil {
		return fmt.Errorf("tilestore: create pile texture: %w", err)
	}

	arrayView, err := s.device.CreateTextureView(tex, &hal.TextureViewDescriptor{
		Label:           fmt.Sprintf("tile_pile_%d_view", len(s.piles)),
		Format:          gputypes.TextureFormatRGBA16Float,
		Dimension:       gputypes.TextureViewDimension2DArray,
		Aspect:          gputypes.TextureAspectAll,
		MipLevelCount:   1,
		BaseArrayLayer:  0,
		ArrayLayerCount: uint32(s.tilesPerPile),
	})
	if err != nil {
		s.device.DestroyTexture(tex)
		return fmt.Errorf("tilestore: create pile view: %w", err)
	}

	pileIndex := len(s.piles)
	s.piles = append(s.piles, pile{texture: tex, arrayView: arrayView})
	s.usedBytes += s.pileBytes
	for i := 0; i < s.tilesPerPile; i++ {
		s.freeSlots = append(s.freeSlots, Slot{Pile: pileIndex, Layer: uint32(i)})
	}

	sparsetex.Logger().Info("tilestore: allocated new pile",
		"piles", pileIndex,
		"slots", s.tilesPerPile,
		"usedMB", s.usedBytes/(1024*1024))
	return nil
}

// TileCount returns the number of allocated tiles (excluding the sentinel).
func (s *Store) TileCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.tiles) - 1
}

// PileCount returns the number of allocation piles (excluding the
// sentinel pile backing the empty tile).
func (s *Store) PileCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.piles) - 1
}

// FreeSlots returns the current length of the free-slot list.
func (s *Store) FreeSlots() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.freeSlots)
}

// Close releases all GPU resources owned by the store. Tiles obtained
// earlier must not be used afterwards.
//
// Close must not be called while an UploadImage or ReadTile is in flight:
// both hand pile textures to the queue outside the store lock, and
// destroying those textures mid-operation is a device fault. Stop producer
// goroutines first; operations started after Close fail with
// ErrStoreClosed.
func (s *Store) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}
	for _, t := range s.tiles {
		s.device.DestroyTextureView(t.View)
	}
	s.tiles = nil
	for _, p := range s.piles {
		s.device.DestroyTextureView(p.arrayView)
		s.device.DestroyTexture(p.texture)
	}
	s.piles = nil
	s.freeSlots = nil
	s.closed = true
}
