// Package tilestore implements sparse GPU storage for canvas tiles.
//
// Tiles are fixed-size square chunks of a layer's image. GPU memory for a
// tile is allocated lazily from "piles": texture arrays whose layers act as
// slab slots. A Store owns the piles, the free-slot list, and the index from
// (layer, tile coordinate) to physical slot, all guarded by one lock so that
// a lookup can never observe a slot that is both free and occupied.
//
// Lookups of coordinates that were never painted resolve to a shared
// sentinel empty tile, so callers composite unpainted regions without
// special cases. Reads never allocate; only GetOrAllocate and UploadImage
// create GPU resources.
package tilestore
