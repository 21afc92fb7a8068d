package render

import (
	"fmt"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/sparsetex"
)

// PresentPass owns the render pipeline that blits the composited canvas
// texture to the presentation surface. It draws a single fullscreen
// triangle and relies on a scissor rectangle to restrict the blit to the
// canvas footprint on screen.
type PresentPass struct {
	device hal.Device

	format     gputypes.TextureFormat
	shader     hal.ShaderModule
	bgLayout   hal.BindGroupLayout
	pipeLayout hal.PipelineLayout
	pipeline   hal.RenderPipeline
}

// NewPresentPass compiles the present shader and creates the render
// pipeline targeting the given surface format.
func NewPresentPass(device hal.Device, format gputypes.TextureFormat) (*PresentPass, error) {
	p := &PresentPass{device: device, format: format}

	shader, err := device.CreateShaderModule(&hal.ShaderModuleDescriptor{
		Label:  "present_shader",
		Source: hal.ShaderSource{WGSL: presentShaderSource},
	})
	if err != nil {
		return nil, fmt.Errorf("render: compile present shader: %w", err)
	}
	p.shader = shader

	bgLayout, err := device.CreateBindGroupLayout(&hal.BindGroupLayoutDescriptor{
		Label: "present_bgl",
		Entries: []gputypes.BindGroupLayoutEntry{
			{
				Binding:    0,
				Visibility: gputypes.ShaderStageFragment,
				Texture: &gputypes.TextureBindingLayout{
					SampleType:    gputypes.TextureSampleTypeFloat,
					ViewDimension: gputypes.TextureViewDimension2D,
				},
			},
			{
				Binding:    1,
				Visibility: gputypes.ShaderStageFragment,
				Sampler:    &gputypes.SamplerBindingLayout{Type: gputypes.SamplerBindingTypeFiltering},
			},
		},
	})
	if err != nil {
		p.Destroy()
		return nil, fmt.Errorf("render: create present bind group layout: %w", err)
	}
	p.bgLayout = bgLayout

	pipeLayout, err := device.CreatePipelineLayout(&hal.PipelineLayoutDescriptor{
		Label:            "present_pl",
		BindGroupLayouts: []hal.BindGroupLayout{bgLayout},
	})
	if err != nil {
		p.Destroy()
		return nil, fmt.Errorf("render: create present pipeline layout: %w", err)
	}
	p.pipeLayout = pipeLayout

	premulBlend := gputypes.BlendStatePremultiplied()
	pipeline, err := device.CreateRenderPipeline(&hal.RenderPipelineDescriptor{
		Label:  "present",
		Layout: pipeLayout,
		Vertex: hal.VertexState{
			Module:     shader,
			EntryPoint: "vs_main",
		},
		Fragment: &hal.FragmentState{
			Module:     shader,
			EntryPoint: "fs_main",
			Targets: []gputypes.ColorTargetState{
				{
					Format:    format,
					Blend:     &premulBlend,
					WriteMask: gputypes.ColorWriteMaskAll,
				},
			},
		},
		Primitive: gputypes.PrimitiveState{
			Topology: gputypes.PrimitiveTopologyTriangleList,
			CullMode: gputypes.CullModeNone,
		},
		Multisample: gputypes.MultisampleState{
			Count: 1,
			Mask:  0xFFFFFFFF,
		},
	})
	if err != nil {
		p.Destroy()
		return nil, fmt.Errorf("render: create present pipeline: %w", err)
	}
	p.pipeline = pipeline

	return p, nil
}

// record encodes the fullscreen blit into encoder. scissor is the canvas
// footprint in screen pixels, already clamped to the target; an empty
// scissor records only the clear. The returned bind group must stay alive
// until the command buffer has executed.
func (p *PresentPass) record(
	encoder hal.CommandEncoder,
	target hal.TextureView,
	canvas hal.TextureView,
	sampler hal.Sampler,
	scissor sparsetex.RectU,
) (hal.BindGroup, error) {
	bg, err := p.device.CreateBindGroup(&hal.BindGroupDescriptor{
		Label:  "present_bg",
		Layout: p.bgLayout,
		Entries: []gputypes.BindGroupEntry{
			{Binding: 0, Resource: gputypes.TextureViewBinding{TextureView: canvas.NativeHandle()}},
			{Binding: 1, Resource: gputypes.SamplerBinding{Sampler: sampler.NativeHandle()}},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("render: create present bind group: %w", err)
	}

	rp := encoder.BeginRenderPass(&hal.RenderPassDescriptor{
		Label: "present",
		ColorAttachments: []hal.RenderPassColorAttachment{{
			View:       target,
			LoadOp:     gputypes.LoadOpClear,
			StoreOp:    gputypes.StoreOpStore,
			ClearValue: gputypes.Color{R: 0, G: 0, B: 0, A: 0},
		}},
	})

	if !scissor.Empty() {
		rp.SetPipeline(p.pipeline)
		rp.SetBindGroup(0, bg, nil)
		rp.SetScissorRect(scissor.X, scissor.Y, scissor.Width, scissor.Height)
		rp.Draw(3, 1, 0, 0)
	}
	rp.End()

	return bg, nil
}

// Format returns the surface format the pipeline targets.
func (p *PresentPass) Format() gputypes.TextureFormat { return p.format }

// Destroy releases the pipeline resources in reverse creation order.
func (p *PresentPass) Destroy() {
	if p.pipeline != nil {
		p.device.DestroyRenderPipeline(p.pipeline)
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
