package tilestore

import (
	"errors"
	"fmt"
	"time"

	"github.com/gogpu/wgpu/hal"
	"github.com/google/hilbert"

	"github.com/gogpu/sparsetex"
)

// Upload errors.
var (
	// ErrEmptyImage is returned when uploading a nil or zero-sized pixmap.
	ErrEmptyImage = errors.New("tilestore: empty image")

	// ErrInvalidLayer is returned when uploading to the reserved layer ID.
	ErrInvalidLayer = errors.New("tilestore: invalid layer")
)

// uploadFenceTimeout bounds the wait for upload completion.
const uploadFenceTimeout = 5 * time.Second

// UploadImage writes pm into the tile grid of layer at pixel position
// (x, y), allocating any tile the image touches that does not exist yet.
// Chunks that only partially cover a tile write just the covered texels;
// the rest of the tile keeps whatever it held before.
//
// All chunk writes of one call are enqueued together and the call returns
// only after the GPU has consumed the staging data, so the caller may
// reuse or free pm immediately.
func (s *Store) UploadImage(layer sparsetex.LayerID, pm *sparsetex.Pixmap, x, y uint32) error {
	if !layer.Valid() {
		return ErrInvalidLayer
	}
	if pm == nil || pm.Width() <= 0 || pm.Height() <= 0 {
		return ErrEmptyImage
	}

	w := uint32(pm.Width())
	h := uint32(pm.Height())

	// Inclusive tile range covered by the image.
	tx0 := x / TileSize
	ty0 := y / TileSize
	tx1 := (x + w - 1) / TileSize
	ty1 := (y + h - 1) / TileSize

	chunks := 0
	for _, c := range chunkOrder(tx1-tx0+1, ty1-ty0+1) {
		tileX := tx0 + c.X
		tileY := ty0 + c.Y

		// Overlap of the image with this tile, in canvas pixels.
		tilePxX := tileX * TileSize
		tilePxY := tileY * TileSize
		x0 := max(x, tilePxX)
		y0 := max(y, tilePxY)
		x1 := min(x+w, tilePxX+TileSize)
		y1 := min(y+h, tilePxY+TileSize)
		if x0 >= x1 || y0 >= y1 {
			continue
		}

		tile, err := s.GetOrAllocate(TileKey{Layer: layer, Coord: TileCoord{X: tileX, Y: tileY}})
		if err != nil {
			return fmt.Errorf("tilestore: upload chunk (%d,%d): %w", tileX, tileY, err)
		}

		data := pm.Rgba16Data(sparsetex.RectU{
			X: x0 - x, Y: y0 - y,
			Width: x1 - x0, Height: y1 - y0,
		})

		s.queue.WriteTexture(
			&hal.ImageCopyTexture{
				Texture:  s.pileTexture(tile.Slot.Pile),
				MipLevel: 0,
				Origin:   hal.Origin3D{X: x0 - tilePxX, Y: y0 - tilePxY, Z: tile.Slot.Layer},
			},
			data,
			&hal.ImageDataLayout{
				Offset:       0,
				BytesPerRow:  (x1 - x0) * tileTexelBytes,
				RowsPerImage: y1 - y0,
			},
			&hal.Extent3D{Width: x1 - x0, Height: y1 - y0, DepthOrArrayLayers: 1},
		)
		chunks++
	}

	if err := s.syncQueue("tile_upload"); err != nil {
		return err
	}

	sparsetex.Logger().Debug("tilestore: uploaded image",
		"layer", layer, "x", x, "y", y, "w", w, "h", h, "chunks", chunks)
	return nil
}

// pileTexture returns the backing texture of pile i.
func (s *Store) pileTexture(i int) hal.Texture {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.piles[i].texture
}

// syncQueue submits an empty command buffer with a fence and blocks until
// the GPU signals it, draining any queued texture writes.
func (s *Store) syncQueue(label string) error {
	encoder, err := s.device.CreateCommandEncoder(&hal.CommandEncoderDescriptor{Label: label})
	if err != nil {
		return fmt.Errorf("tilestore: create encoder: %w", err)
	}
	if err := encoder.BeginEncoding(label); err != nil {
		return fmt.Errorf("tilestore: begin encoding: %w", err)
	}
	cmdBuf, err := encoder.EndEncoding()
	if err != nil {
		return fmt.Errorf("tilestore: end encoding: %w", err)
	}
	defer s.device.FreeCommandBuffer(cmdBuf)

	fence, err := s.device.CreateFence()
	if err != nil {
		return fmt.Errorf("tilestore: create fence: %w", err)
	}
	defer s.device.DestroyFence(fence)

	if err := s.queue.Submit([]hal.CommandBuffer{cmdBuf}, fence, 1); err != nil {
		return fmt.Errorf("tilestore: submit: %w", err)
	}
	ok, err := s.device.Wait(fence, 1, uploadFenceTimeout)
	if err != nil {
		return fmt.Errorf("tilestore: wait for upload: %w", err)
	}
	if !ok {
		return fmt.Errorf("tilestore: upload fence timed out after %v", uploadFenceTimeout)
	}
	return nil
}

// chunkOrder enumerates a w x h chunk grid along a Hilbert curve so that
// consecutive chunks stay spatially adjacent, which keeps staging writes
// for large images local. Falls back to row-major for degenerate grids.
func chunkOrder(w, h uint32) []TileCoord {
	order := make([]TileCoord, 0, w*h)

	n := 1
	for uint32(n) < w || uint32(n) < h {
		n *= 2
	}
	if curve, err := hilbert.NewHilbert(n); err == nil {
		for t := 0; t < n*n; t++ {
			cx, cy, err := curve.Map(t)
			if err != nil {
				break
			}
			if uint32(cx) < w && uint32(cy) < h {
				order = append(order, TileCoord{X: uint32(cx), Y: uint32(cy)})
			}
		}
		if uint32(len(order)) == w*h {
			return order
		}
		order = order[:0]
	}

	for cy := uint32(0); cy < h; cy++ {
		for cx := uint32(0); cx < w; cx++ {
			order = append(order, TileCoord{X: cx, Y: cy})
		}
	}
	return order
}
