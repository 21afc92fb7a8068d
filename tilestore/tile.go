package tilestore

import (
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/sparsetex"
)

const (
	// TileSize is the width and height of one tile in pixels.
	TileSize = 256

	// DefaultTilesPerPile is the default number of tile slots per pile.
	DefaultTilesPerPile = 256

	// tileTexelBytes is the byte size of one rgba16float texel.
	tileTexelBytes = 8
)

// TileCoord is an integer grid position within a layer's tile grid.
type TileCoord struct {
	X, Y uint32
}

// TileKey uniquely identifies one tile: a layer plus a grid coordinate.
type TileKey struct {
	Layer sparsetex.LayerID
	Coord TileCoord
}

// Slot identifies physical tile storage: a pile index and an array layer
// within that pile's texture.
type Slot struct {
	Pile  int
	Layer uint32
}

// Tile is the result of a lookup: the key, the physical slot, and a
// bindable 2D view over the slot. Tiles are value copies; the underlying
// GPU resources are owned by the Store and live for its lifetime.
//
// A lookup miss returns a sentinel-backed Tile whose Key carries the
// requested coordinate, not the sentinel's own, so the result is still
// addressable by the caller.
type Tile struct {
	Key  TileKey
	Slot Slot
	View hal.TextureView
}

// GridDims is the tile-grid size of a layer, per axis.
type GridDims struct {
	W, H uint32
}

// CalcGridDims returns the tile-grid dimensions covering an image of the
// given pixel size: ceil(size / TileSize) per axis.
func CalcGridDims(width, height uint32) GridDims {
	return GridDims{
		W: (width + TileSize - 1) / TileSize,
		H: (height + TileSize - 1) / TileSize,
	}
}
