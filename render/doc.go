// Package render draws a sparse tiled canvas to a presentation surface.
//
// A frame runs two GPU passes recorded into one command buffer. The
// composite pass is a compute shader dispatched once per visible pile:
// it maps every output pixel back onto the canvas through the inverse
// view transform, looks the pixel's tile up in a per-pile mapping
// buffer, and samples the pile's texture array into an intermediate
// rgba16float texture. Tiles held by other piles are marked NoTile in
// the mapping and skipped, so each pixel is written exactly once.
// The present pass then blits the intermediate texture to the surface
// with a single scissored fullscreen triangle.
//
// The renderer takes its hal.Device and hal.Queue explicitly; shared-
// device applications can go through NewCanvasRendererFromProvider.
package render
