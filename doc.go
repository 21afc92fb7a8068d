// Package sparsetex implements sparse GPU tile storage for paint canvases
// whose logical image may be far larger than any single GPU texture.
//
// The canvas is partitioned into fixed-size square tiles. GPU storage for a
// tile is allocated lazily, on first upload or first writable lookup, from
// "piles": texture arrays acting as slab allocators of tile slots. A
// viewport query resolves to the minimal set of resident tiles, which a
// compute pass composites into an intermediate surface before a final blit
// to the render target.
//
// The root package holds the value types shared by the subpackages:
// transforms, rectangles, layer identities, and the CPU-side pixel buffer.
// Tile storage lives in package tilestore; the two-stage rendering pipeline
// lives in package render.
//
// Nothing here creates a GPU device. Both subpackages take an explicit
// hal.Device and hal.Queue (or a gpucontext.DeviceProvider) supplied by the
// host application.
package sparsetex
