package render

import (
	"errors"
	"fmt"
	"time"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/sparsetex"
	"github.com/gogpu/sparsetex/tilestore"
)

// Renderer errors.
var (
	// ErrNilDevice is returned when constructing a renderer without a device.
	ErrNilDevice = errors.New("render: device and queue are required")

	// ErrNilStore is returned when constructing a renderer without a tile store.
	ErrNilStore = errors.New("render: tile store is required")

	// ErrZeroCanvas is returned for a zero-sized canvas.
	ErrZeroCanvas = errors.New("render: canvas size must be positive")

	// ErrZeroTarget is returned when rendering to a zero-sized target.
	ErrZeroTarget = errors.New("render: target size must be positive")
)

// frameFenceTimeout bounds the wait for frame completion.
const frameFenceTimeout = 5 * time.Second

// Config holds construction parameters for a CanvasRenderer.
type Config struct {
	// CanvasWidth and CanvasHeight are the canvas size in pixels.
	CanvasWidth  uint32
	CanvasHeight uint32

	// SurfaceFormat is the presentation surface format
	// (default: BGRA8Unorm).
	SurfaceFormat gputypes.TextureFormat
}

// CanvasRenderer draws a tiled canvas to a presentation surface. Each
// frame resolves the tiles visible through the current view transform,
// composites them onto an intermediate texture with one compute dispatch
// per pile, and blits the result to the target with a scissored
// fullscreen triangle. All passes of a frame are recorded into a single
// command buffer and submitted once.
//
// The renderer owns its pipelines and intermediate texture but not the
// device, the queue, or the tile store.
//
// CanvasRenderer is not safe for concurrent use: a single render thread
// drives frames. The tile store it reads from may be fed by background
// uploads concurrently.
type CanvasRenderer struct {
	device hal.Device
	queue  hal.Queue
	store  *tilestore.Store

	canvasW uint32
	canvasH uint32
	grid    tilestore.GridDims

	composite *CompositePass
	present   *PresentPass
	samplers  *Samplers

	uniforms *DynamicUniform

	// Intermediate canvas texture, recreated only when the target size
	// changes.
	targetW          uint32
	targetH          uint32
	intermediateTex  hal.Texture
	intermediateView hal.TextureView
}

// NewCanvasRenderer creates a renderer for the given canvas on an
// explicitly provided device and queue.
func NewCanvasRenderer(device hal.Device, queue hal.Queue, store *tilestore.Store, cfg Config) (*CanvasRenderer, error) {
	if device == nil || queue == nil {
		return nil, ErrNilDevice
	}
	if store == nil {
		return nil, ErrNilStore
	}
	if cfg.CanvasWidth == 0 || cfg.CanvasHeight == 0 {
		return nil, ErrZeroCanvas
	}
	if cfg.SurfaceFormat == 0 {
		cfg.SurfaceFormat = gputypes.TextureFormatBGRA8Unorm
	}

	r := &CanvasRenderer{
		device:  device,
		queue:   queue,
		store:   store,
		canvasW: cfg.CanvasWidth,
		canvasH: cfg.CanvasHeight,
		grid:    tilestore.CalcGridDims(cfg.CanvasWidth, cfg.CanvasHeight),
	}

	composite, err := NewCompositePass(device, queue)
	if err != nil {
		return nil, err
	}
	r.composite = composite

	present, err := NewPresentPass(device, cfg.SurfaceFormat)
	if err != nil {
		r.Destroy()
		return nil, err
	}
	r.present = present

	samplers, err := NewSamplers(device)
	if err != nil {
		r.Destroy()
		return nil, err
	}
	r.samplers = samplers

	r.uniforms = NewDynamicUniform(device, queue, "frame_uniforms")

	sparsetex.Logger().Info("render: canvas renderer created",
		"canvas_w", cfg.CanvasWidth,
		"canvas_h", cfg.CanvasHeight,
		"grid_w", r.grid.W,
		"grid_h", r.grid.H)
	return r, nil
}

// CanvasSize returns the canvas dimensions in pixels.
func (r *CanvasRenderer) CanvasSize() (uint32, uint32) { return r.canvasW, r.canvasH }

// Grid returns the canvas tile-grid dimensions.
func (r *CanvasRenderer) Grid() tilestore.GridDims { return r.grid }

// RenderFrame draws the canvas layer onto target, a texture view of
// size targetW x targetH in the renderer's surface format. view maps
// canvas pixels to screen pixels and must be invertible.
func (r *CanvasRenderer) RenderFrame(
	target hal.TextureView,
	targetW, targetH uint32,
	layer sparsetex.LayerID,
	view sparsetex.Matrix,
) error {
	if targetW == 0 || targetH == 0 {
		return ErrZeroTarget
	}

	inverse := view.Invert()

	if err := r.ensureIntermediate(targetW, targetH); err != nil {
		return err
	}

	viewport := sparsetex.Rect{Width: float64(targetW), Height: float64(targetH)}
	groups := r.store.VisibleTiles(layer, viewport, inverse, r.grid)

	frame := FrameUniforms{
		CanvasToScreen: view,
		ScreenToCanvas: inverse,
		TargetSize:     [2]uint32{targetW, targetH},
		CanvasSize:     [2]uint32{r.canvasW, r.canvasH},
		Grid:           [2]uint32{r.grid.W, r.grid.H},
		TileSize:       tilestore.TileSize,
	}
	r.uniforms.Clear()
	r.uniforms.Append(frame.toBytes())
	if err := r.uniforms.Flush(); err != nil {
		return err
	}

	sampler := r.samplers.Linear
	if view.IsIdentity() {
		sampler = r.samplers.Nearest
	}

	encoder, err := r.device.CreateCommandEncoder(&hal.CommandEncoderDescriptor{
		Label: "canvas_frame",
	})
	if err != nil {
		return fmt.Errorf("render: create command encoder: %w", err)
	}
	if err := encoder.BeginEncoding("canvas_frame"); err != nil {
		return fmt.Errorf("render: begin encoding: %w", err)
	}

	compositeRes, err := r.composite.record(encoder, groups, r.grid,
		r.uniforms.Buffer(), sampler, r.intermediateView, targetW, targetH)
	if err != nil {
		encoder.DiscardEncoding()
		return err
	}
	defer compositeRes.cleanup()

	scissor := r.canvasScissor(view, targetW, targetH)
	presentBG, err := r.present.record(encoder, target, r.intermediateView, sampler, scissor)
	if err != nil {
		encoder.DiscardEncoding()
		return err
	}
	defer r.device.DestroyBindGroup(presentBG)

	cmdBuf, err := encoder.EndEncoding()
	if err != nil {
		return fmt.Errorf("render: end encoding: %w", err)
	}
	defer r.device.FreeCommandBuffer(cmdBuf)

	fence, err := r.device.CreateFence()
	if err != nil {
		return fmt.Errorf("render: create fence: %w", err)
	}
	defer r.device.DestroyFence(fence)

	if err := r.queue.Submit([]hal.CommandBuffer{cmdBuf}, fence, 1); err != nil {
		return fmt.Errorf("render: submit frame: %w", err)
	}
	ok, err := r.device.Wait(fence, 1, frameFenceTimeout)
	if err != nil {
		return fmt.Errorf("render: wait for frame: %w", err)
	}
	if !ok {
		return fmt.Errorf("render: frame fence timed out after %v", frameFenceTimeout)
	}

	sparsetex.Logger().Debug("render: frame complete",
		"target_w", targetW,
		"target_h", targetH,
		"groups", len(groups))
	return nil
}

// canvasScissor returns the canvas footprint on screen, clamped to the
// target. Pixels outside it are untouched by the blit and stay cleared.
func (r *CanvasRenderer) canvasScissor(view sparsetex.Matrix, targetW, targetH uint32) sparsetex.RectU {
	canvasRect := sparsetex.Rect{
		Width:  float64(r.canvasW),
		Height: float64(r.canvasH),
	}
	s := canvasRect.TransformBounds(view).ClampToPixels()
	if s.X >= targetW || s.Y >= targetH {
		return sparsetex.RectU{}
	}
	s.Width = min(s.Width, targetW-s.X)
	s.Height = min(s.Height, targetH-s.Y)
	return s
}

// ensureIntermediate recreates the intermediate canvas texture when the
// target size changes. Same-size frames reuse the existing texture.
func (r *CanvasRenderer) ensureIntermediate(w, h uint32) error {
	if r.intermediateTex != nil && r.targetW == w && r.targetH == h {
		return nil
	}
	r.destroyIntermediate()

	tex, err := r.device.CreateTexture(&hal.TextureDescriptor{
		Label:         "canvas_intermediate",
		Size:          hal.Extent3D{Width: w, Height: h, DepthOrArrayLayers: 1},
		MipLevelCount: 1,
		SampleCount:   1,
		Dimension:     gputypes.TextureDimension2D,
		Format:        gputypes.TextureFormatRGBA16Float,
		Usage:         gputypes.TextureUsageStorageBinding | gputypes.TextureUsageTextureBinding,
	})
	if err != nil {
		return fmt.Errorf("render: create intermediate texture: %w", err)
	}

	view, err := r.device.CreateTextureView(tex, &hal.TextureViewDescriptor{
		Label:         "canvas_intermediate_view",
		Format:        gputypes.TextureFormatRGBA16Float,
		Dimension:     gputypes.TextureViewDimension2D,
		Aspect:        gputypes.TextureAspectAll,
		MipLevelCount: 1,
	})
	if err != nil {
		r.device.DestroyTexture(tex)
		return fmt.Errorf("render: create intermediate view: %w", err)
	}

	r.intermediateTex = tex
	r.intermediateView = view
	r.targetW = w
	r.targetH = h

	sparsetex.Logger().Debug("render: intermediate texture resized", "w", w, "h", h)
	return nil
}

func (r *CanvasRenderer) destroyIntermediate() {
	if r.intermediateView != nil {
		r.device.DestroyTextureView(r.intermediateView)
		r.intermediateView = nil
	}
	if r.intermediateTex != nil {
		r.device.DestroyTexture(r.intermediateTex)
		r.intermediateTex = nil
	}
	r.targetW = 0
	r.targetH = 0
}

// Destroy releases all GPU resources owned by the renderer. The tile
// store is left untouched.
func (r *CanvasRenderer) Destroy() {
	r.destroyIntermediate()
	if r.uniforms != nil {
		r.uniforms.Destroy()
		r.uniforms = nil
	}
	if r.samplers != nil {
		r.samplers.Destroy(r.device)
		r.samplers = nil
	}
	if r.present != nil {
		r.present.Destroy()
		r.present = nil
	}
	if r.composite != nil {
		r.composite.Destroy()
		r.composite = nil
	}
}
