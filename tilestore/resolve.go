package tilestore

import (
	"sort"

	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/sparsetex"
)

// TileRef locates one visible tile inside its pile.
type TileRef struct {
	// Coord is the tile's grid coordinate on the canvas.
	Coord TileCoord

	// Layer is the array layer of the tile inside the group's pile.
	Layer uint32
}

// TileGroup is the set of visible tiles sharing one pile, ready to be
// bound as a single texture array by a compositing pass. Unpainted
// coordinates land in the sentinel pile's group, whose 1x1 transparent
// texture makes them composite as empty rather than stale.
type TileGroup struct {
	// Pile is the pile index (0 is the sentinel pile).
	Pile int

	// View is the D2Array view over the whole pile.
	View hal.TextureView

	// Tiles are the visible tiles stored in this pile, in canvas scan
	// order.
	Tiles []TileRef
}

// VisibleTiles resolves which tiles of layer are visible through a
// viewport and returns them grouped by pile, ordered by pile index.
//
// The viewport rectangle is given in screen space; inverse maps screen
// space back to canvas space. The canvas-space footprint is the bounding
// box of the viewport's transformed corners, so rotated views resolve a
// superset of the exactly-visible tiles, never a subset. grid clamps the
// range to tiles that exist on the canvas.
//
// VisibleTiles only reads: coordinates that were never painted resolve to
// the sentinel group and no allocation takes place, so it is safe to call
// from a render loop racing against background uploads.
func (s *Store) VisibleTiles(layer sparsetex.LayerID, viewport sparsetex.Rect, inverse sparsetex.Matrix, grid GridDims) []TileGroup {
	visible := viewport.TransformBounds(inverse).ClampToPixels()
	if visible.Empty() || grid.W == 0 || grid.H == 0 {
		return nil
	}

	// Tile range covered by the visible rect, exclusive upper bound,
	// clamped to the canvas grid.
	tx0 := min(visible.X/TileSize, grid.W)
	ty0 := min(visible.Y/TileSize, grid.H)
	tx1 := min(ceilDiv(visible.X+visible.Width, TileSize), grid.W)
	ty1 := min(ceilDiv(visible.Y+visible.Height, TileSize), grid.H)

	s.mu.RLock()
	defer s.mu.RUnlock()

	groups := make(map[int]*TileGroup)
	for ty := ty0; ty < ty1; ty++ {
		for tx := tx0; tx < tx1; tx++ {
			coord := TileCoord{X: tx, Y: ty}
			slot := s.sentinel.Slot
			if t, ok := s.tiles[TileKey{Layer: layer, Coord: coord}]; ok {
				slot = t.Slot
			}
			g, ok := groups[slot.Pile]
			if !ok {
				g = &TileGroup{Pile: slot.Pile, View: s.piles[slot.Pile].arrayView}
				groups[slot.Pile] = g
			}
			g.Tiles = append(g.Tiles, TileRef{Coord: coord, Layer: slot.Layer})
		}
	}

	out := make([]TileGroup, 0, len(groups))
	for _, g := range groups {
		out = append(out, *g)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Pile < out[j].Pile })
	return out
}

func ceilDiv(a, b uint32) uint32 {
	return (a + b - 1) / b
}
