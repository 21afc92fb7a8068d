package sparsetex

import "sync/atomic"

// LayerID names one image layer of the canvas. IDs are opaque,
// process-unique, and immutable once created.
//
// The zero value is reserved: tile storage uses it for the sentinel
// empty tile that backs lookups of never-painted coordinates.
type LayerID uint64

// EmptyLayer is the reserved identity of the sentinel empty tile.
const EmptyLayer LayerID = 0

var layerCounter atomic.Uint64

// NewLayerID returns a fresh process-unique layer identity.
func NewLayerID() LayerID {
	return LayerID(layerCounter.Add(1))
}

// Valid reports whether the id names a real layer (not the sentinel).
func (id LayerID) Valid() bool { return id != EmptyLayer }
