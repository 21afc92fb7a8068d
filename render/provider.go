package render

import (
	"fmt"

	"github.com/gogpu/gpucontext"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/sparsetex/tilestore"
)

// HalFromProvider extracts the hal device and queue from a
// gpucontext.DeviceProvider. The provider must additionally implement
// HalDevice() any and HalQueue() any returning hal.Device and hal.Queue,
// which the gogpu providers do.
func HalFromProvider(provider gpucontext.DeviceProvider) (hal.Device, hal.Queue, error) {
	type halProvider interface {
		HalDevice() any
		HalQueue() any
	}
	hp, ok := provider.(halProvider)
	if !ok {
		return nil, nil, fmt.Errorf("render: provider does not expose HAL types")
	}
	device, ok := hp.HalDevice().(hal.Device)
	if !ok || device == nil {
		return nil, nil, fmt.Errorf("render: provider HalDevice is not hal.Device")
	}
	queue, ok := hp.HalQueue().(hal.Queue)
	if !ok || queue == nil {
		return nil, nil, fmt.Errorf("render: provider HalQueue is not hal.Queue")
	}
	return device, queue, nil
}

// NewCanvasRendererFromProvider creates a store and renderer pair on a
// shared GPU device obtained from a gpucontext provider (e.g. a gogpu
// application). This is the integrated-mode entry point; standalone code
// uses tilestore.New and NewCanvasRenderer with explicit device handles.
func NewCanvasRendererFromProvider(
	provider gpucontext.DeviceProvider,
	storeCfg tilestore.Config,
	cfg Config,
) (*tilestore.Store, *CanvasRenderer, error) {
	device, queue, err := HalFromProvider(provider)
	if err != nil {
		return nil, nil, err
	}

	store, err := tilestore.New(device, queue, storeCfg)
	if err != nil {
		return nil, nil, err
	}

	renderer, err := NewCanvasRenderer(device, queue, store, cfg)
	if err != nil {
		store.Close()
		return nil, nil, err
	}
	return store, renderer, nil
}
