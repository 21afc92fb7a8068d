package tilestore

import (
	"fmt"
	"time"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/sparsetex"
)

// readbackFenceTimeout bounds the wait for a tile readback.
const readbackFenceTimeout = 5 * time.Second

// ReadTile copies the tile stored under key back to the CPU. A key that
// was never allocated returns a transparent pixmap without touching the
// device, the same content the empty tile composites as.
func (s *Store) ReadTile(key TileKey) (*sparsetex.Pixmap, error) {
	s.mu.RLock()
	if s.closed {
		s.mu.RUnlock()
		return nil, ErrStoreClosed
	}
	tile, ok := s.tiles[key]
	var tex hal.Texture
	if ok {
		tex = s.piles[tile.Slot.Pile].texture
	}
	s.mu.RUnlock()

	pm := sparsetex.NewPixmap(TileSize, TileSize)
	if !ok {
		return pm, nil
	}

	// WebGPU requires BytesPerRow aligned to 256 bytes; a tile row of
	// rgba16float texels already is, but compute it the general way.
	const copyPitchAlignment = 256
	bytesPerRow := uint32(TileSize * tileTexelBytes)
	alignedBytesPerRow := (bytesPerRow + copyPitchAlignment - 1) &^ (copyPitchAlignment - 1)
	stagingSize := uint64(alignedBytesPerRow) * TileSize

	staging, err := s.device.CreateBuffer(&hal.BufferDescriptor{
		Label: "tile_readback",
		Size:  stagingSize,
		Usage: gputypes.BufferUsageMapRead | gputypes.BufferUsageCopyDst,
	})
	if err != nil {
		return nil, fmt.Errorf("tilestore: create readback buffer: %w", err)
	}
	defer s.device.DestroyBuffer(staging)

	encoder, err := s.device.CreateCommandEncoder(&hal.CommandEncoderDescriptor{Label: "tile_readback"})
	if err != nil {
		return nil, fmt.Errorf("tilestore: create encoder: %w", err)
	}
	if err := encoder.BeginEncoding("tile_readback"); err != nil {
		return nil, fmt.Errorf("tilestore: begin encoding: %w", err)
	}
	encoder.CopyTextureToBuffer(tex, staging, []hal.BufferTextureCopy{{
		BufferLayout: hal.ImageDataLayout{Offset: 0, BytesPerRow: alignedBytesPerRow, RowsPerImage: TileSize},
		TextureBase: hal.ImageCopyTexture{
			Texture:  tex,
			MipLevel: 0,
			Origin:   hal.Origin3D{Z: tile.Slot.Layer},
		},
		Size: hal.Extent3D{Width: TileSize, Height: TileSize, DepthOrArrayLayers: 1},
	}})
	cmdBuf, err := encoder.EndEncoding()
	if err != nil {
		return nil, fmt.Errorf("tilestore: end encoding: %w", err)
	}
	defer s.device.FreeCommandBuffer(cmdBuf)

	fence, err := s.device.CreateFence()
	if err != nil {
		return nil, fmt.Errorf("tilestore: create fence: %w", err)
	}
	defer s.device.DestroyFence(fence)

	if err := s.queue.Submit([]hal.CommandBuffer{cmdBuf}, fence, 1); err != nil {
		return nil, fmt.Errorf("tilestore: submit readback: %w", err)
	}
	ok, err = s.device.Wait(fence, 1, readbackFenceTimeout)
	if err != nil {
		return nil, fmt.Errorf("tilestore: wait for readback: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("tilestore: readback fence timed out after %v", readbackFenceTimeout)
	}

	readback := make([]byte, stagingSize)
	if err := s.queue.ReadBuffer(staging, 0, readback); err != nil {
		return nil, fmt.Errorf("tilestore: read staging buffer: %w", err)
	}

	if alignedBytesPerRow == bytesPerRow {
		pm.SetRgba16Data(sparsetex.RectU{Width: TileSize, Height: TileSize}, readback[:uint64(bytesPerRow)*TileSize])
		return pm, nil
	}
	for row := uint32(0); row < TileSize; row++ {
		off := uint64(row) * uint64(alignedBytesPerRow)
		pm.SetRgba16Data(sparsetex.RectU{Y: row, Width: TileSize, Height: 1}, readback[off:off+uint64(bytesPerRow)])
	}
	return pm, nil
}
