package render

import (
	"fmt"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
)

// Samplers holds the shared samplers used by the compositing and present
// passes. Both clamp to edge so tile borders never bleed into neighbors.
type Samplers struct {
	// Linear interpolates between texels, used when the canvas is scaled
	// or rotated on screen.
	Linear hal.Sampler

	// Nearest snaps to texel centers, used at identity zoom for exact
	// pixel reproduction.
	Nearest hal.Sampler
}

// NewSamplers creates the shared sampler pair.
func NewSamplers(device hal.Device) (*Samplers, error) {
	linear, err := device.CreateSampler(&hal.SamplerDescriptor{
		Label:        "canvas_sampler_linear",
		AddressModeU: gputypes.AddressModeClampToEdge,
		AddressModeV: gputypes.AddressModeClampToEdge,
		AddressModeW: gputypes.AddressModeClampToEdge,
		MagFilter:    gputypes.FilterModeLinear,
		MinFilter:    gputypes.FilterModeLinear,
		MipmapFilter: gputypes.FilterModeNearest,
	})
	if err != nil {
		return nil, fmt.Errorf("render: create linear sampler: %w", err)
	}

	nearest, err := device.CreateSampler(&hal.SamplerDescriptor{
		Label:        "canvas_sampler_nearest",
		AddressModeU: gputypes.AddressModeClampToEdge,
		AddressModeV: gputypes.AddressModeClampToEdge,
		AddressModeW: gputypes.AddressModeClampToEdge,
		MagFilter:    gputypes.FilterModeNearest,
		MinFilter:    gputypes.FilterModeNearest,
		MipmapFilter: gputypes.FilterModeNearest,
	})
	if err != nil {
		device.DestroySampler(linear)
		return nil, fmt.Errorf("render: create nearest sampler: %w", err)
	}

	return &Samplers{Linear: linear, Nearest: nearest}, nil
}

// Destroy releases both samplers. Safe to call multiple times.
func (s *Samplers) Destroy(device hal.Device) {
	if s.Linear != nil {
		device.DestroySampler(s.Linear)
		s.Linear = nil
	}
	if s.Nearest != nil {
		device.DestroySampler(s.Nearest)
		s.Nearest = nil
	}
}
