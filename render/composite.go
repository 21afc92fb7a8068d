package render

import (
	"fmt"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/sparsetex"
	"github.com/gogpu/sparsetex/tilestore"
)

// NoTile is the mapping-buffer sentinel for a canvas tile that is not
// stored in the currently bound pile. The composite shader skips it, so
// each output pixel is written by exactly one pile dispatch.
const NoTile uint32 = 0xffffffff

// compositeWorkgroupSize matches @workgroup_size in composite.wgsl.
const compositeWorkgroupSize = 16

// CompositePass owns the compute pipeline that resolves visible tiles
// onto the intermediate canvas texture, one dispatch per pile group.
type CompositePass struct {
	device hal.Device
	queue  hal.Queue

	shader     hal.ShaderModule
	bgLayout   hal.BindGroupLayout
	pipeLayout hal.PipelineLayout
	pipeline   hal.ComputePipeline
}

// NewCompositePass compiles the composite shader and creates the compute
// pipeline.
func NewCompositePass(device hal.Device, queue hal.Queue) (*CompositePass, error) {
	p := &CompositePass{device: device, queue: queue}

	shader, err := device.CreateShaderModule(&hal.ShaderModuleDescriptor{
		Label:  "composite_shader",
		Source: hal.ShaderSource{WGSL: compositeShaderSource},
	})
	if err != nil {
		return nil, fmt.Errorf("render: compile composite shader: %w", err)
	}
	p.shader = shader

	// Bindings match @group(0) @binding(N) in composite.wgsl:
	//   0: pile texture array
	//   1: sampler
	//   2: FrameUniforms
	//   3: tile mapping buffer
	//   4: intermediate canvas storage texture
	bgLayout, err := device.CreateBindGroupLayout(&hal.BindGroupLayoutDescriptor{
		Label: "composite_bgl",
		Entries: []gputypes.BindGroupLayoutEntry{
			{
				Binding:    0,
				Visibility: gputypes.ShaderStageCompute,
				Texture: &gputypes.TextureBindingLayout{
					SampleType:    gputypes.TextureSampleTypeFloat,
					ViewDimension: gputypes.TextureViewDimension2DArray,
				},
			},
			{
				Binding:    1,
				Visibility: gputypes.ShaderStageCompute,
				Sampler:    &gputypes.SamplerBindingLayout{Type: gputypes.SamplerBindingTypeFiltering},
			},
			{
				Binding:    2,
				Visibility: gputypes.ShaderStageCompute,
				Buffer:     &gputypes.BufferBindingLayout{Type: gputypes.BufferBindingTypeUniform},
			},
			{
				Binding:    3,
				Visibility: gputypes.ShaderStageCompute,
				Buffer:     &gputypes.BufferBindingLayout{Type: gputypes.BufferBindingTypeReadOnlyStorage},
			},
			{
				Binding:    4,
				Visibility: gputypes.ShaderStageCompute,
				StorageTexture: &gputypes.StorageTextureBindingLayout{
					Access:        gputypes.StorageTextureAccessReadWrite,
					Format:        gputypes.TextureFormatRGBA16Float,
					ViewDimension: gputypes.TextureViewDimension2D,
				},
			},
		},
	})
	if err != nil {
		p.Destroy()
		return nil, fmt.Errorf("render: create composite bind group layout: %w", err)
	}
	p.bgLayout = bgLayout

	pipeLayout, err := device.CreatePipelineLayout(&hal.PipelineLayoutDescriptor{
		Label:            "composite_pl",
		BindGroupLayouts: []hal.BindGroupLayout{bgLayout},
	})
	if err != nil {
		p.Destroy()
		return nil, fmt.Errorf("render: create composite pipeline layout: %w", err)
	}
	p.pipeLayout = pipeLayout

	pipeline, err := device.CreateComputePipeline(&hal.ComputePipelineDescriptor{
		Label:  "composite",
		Layout: pipeLayout,
		Compute: hal.ComputeState{
			Module:     shader,
			EntryPoint: "main",
		},
	})
	if err != nil {
		p.Destroy()
		return nil, fmt.Errorf("render: create composite pipeline: %w", err)
	}
	p.pipeline = pipeline

	return p, nil
}

// compositeFrameResources tracks per-frame buffers and bind groups so they
// outlive the submit that uses them.
type compositeFrameResources struct {
	device      hal.Device
	mappingBufs []hal.Buffer
	bindGroups  []hal.BindGroup
}

func (r *compositeFrameResources) cleanup() {
	for _, g := range r.bindGroups {
		r.device.DestroyBindGroup(g)
	}
	for _, b := range r.mappingBufs {
		r.device.DestroyBuffer(b)
	}
	r.bindGroups = nil
	r.mappingBufs = nil
}

// record encodes one compute dispatch per pile group into encoder. The
// returned resources must stay alive until the command buffer has executed.
func (p *CompositePass) record(
	encoder hal.CommandEncoder,
	groups []tilestore.TileGroup,
	grid tilestore.GridDims,
	uniformBuf hal.Buffer,
	sampler hal.Sampler,
	output hal.TextureView,
	targetW, targetH uint32,
) (*compositeFrameResources, error) {
	res := &compositeFrameResources{device: p.device}

	wgX := (targetW + compositeWorkgroupSize - 1) / compositeWorkgroupSize
	wgY := (targetH + compositeWorkgroupSize - 1) / compositeWorkgroupSize

	for _, group := range groups {
		mappingBuf, err := p.device.CreateBuffer(&hal.BufferDescriptor{
			Label: fmt.Sprintf("composite_mapping_%d", group.Pile),
			Size:  uint64(grid.W) * uint64(grid.H) * 4,
			Usage: gputypes.BufferUsageStorage | gputypes.BufferUsageCopyDst,
		})
		if err != nil {
			res.cleanup()
			return nil, fmt.Errorf("render: create mapping buffer: %w", err)
		}
		res.mappingBufs = append(res.mappingBufs, mappingBuf)
		p.queue.WriteBuffer(mappingBuf, 0, buildMapping(grid, group))

		bg, err := p.device.CreateBindGroup(&hal.BindGroupDescriptor{
			Label:  fmt.Sprintf("composite_bg_%d", group.Pile),
			Layout: p.bgLayout,
			Entries: []gputypes.BindGroupEntry{
				{Binding: 0, Resource: gputypes.TextureViewBinding{TextureView: group.View.NativeHandle()}},
				{Binding: 1, Resource: gputypes.SamplerBinding{Sampler: sampler.NativeHandle()}},
				{Binding: 2, Resource: gputypes.BufferBinding{Buffer: uniformBuf.NativeHandle(), Offset: 0, Size: frameUniformSize}},
				{Binding: 3, Resource: gputypes.BufferBinding{Buffer: mappingBuf.NativeHandle(), Offset: 0, Size: 0}},
				{Binding: 4, Resource: gputypes.TextureViewBinding{TextureView: output.NativeHandle()}},
			},
		})
		if err != nil {
			res.cleanup()
			return nil, fmt.Errorf("render: create composite bind group: %w", err)
		}
		res.bindGroups = append(res.bindGroups, bg)

		pass := encoder.BeginComputePass(&hal.ComputePassDescriptor{
			Label: fmt.Sprintf("composite_pile_%d", group.Pile),
		})
		pass.SetPipeline(p.pipeline)
		pass.SetBindGroup(0, bg, nil)
		pass.Dispatch(wgX, wgY, 1)
		pass.End()

		sparsetex.Logger().Debug("render: composite dispatch",
			"pile", group.Pile,
			"tiles", len(group.Tiles),
			"workgroups_x", wgX,
			"workgroups_y", wgY)
	}

	return res, nil
}

// buildMapping serializes a pile group into its tile mapping buffer:
// grid.W*grid.H u32 entries, NoTile everywhere except the coordinates the
// group actually holds, which carry the tile's array layer.
func buildMapping(grid tilestore.GridDims, group tilestore.TileGroup) []byte {
	buf := make([]byte, uint64(grid.W)*uint64(grid.H)*4)
	for i := 0; i < len(buf); i += 4 {
		buf[i] = 0xff
		buf[i+1] = 0xff
		buf[i+2] = 0xff
		buf[i+3] = 0xff
	}
	for _, t := range group.Tiles {
		if t.Coord.X >= grid.W || t.Coord.Y >= grid.H {
			continue
		}
		off := (uint64(t.Coord.Y)*uint64(grid.W) + uint64(t.Coord.X)) * 4
		buf[off] = byte(t.Layer)
		buf[off+1] = byte(t.Layer >> 8)
		buf[off+2] = byte(t.Layer >> 16)
		buf[off+3] = byte(t.Layer >> 24)
	}
	return buf
}

// Destroy releases the pipeline resources in reverse creation order.
func (p *CompositePass) Destroy() {
	if p.pipeline != nil {
		p.device.DestroyComputePipeline(p.pipeline)
		p.pipeline = nil
	}
	if p.pipeLayout != nil {
		p.device.DestroyPipelineLayout(p.pipeLayout)
		p.pipeLayout = nil
	}
	if p.bgLayout != nil {
		p.device.DestroyBindGroupLayout(p.bgLayout)
		p.bgLayout = nil
	}
	if p.shader != nil {
		p.device.DestroyShaderModule(p.shader)
		p.shader = nil
	}
}
