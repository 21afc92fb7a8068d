package render

import (
	"fmt"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
)

// uniformOffsetAlignment is the minimum offset alignment for uniform
// bindings required by WebGPU.
const uniformOffsetAlignment = 256

// DynamicUniform accumulates uniform blocks on the CPU and uploads them as
// one GPU buffer. Each appended block starts at a 256-byte-aligned offset
// so it can be bound individually. The accumulator is cleared and refilled
// every frame; the GPU buffer is recreated only when the frame's data
// outgrows it.
type DynamicUniform struct {
	device hal.Device
	queue  hal.Queue
	label  string

	data []byte
	buf  hal.Buffer
	cap  uint64
}

// NewDynamicUniform creates an empty accumulator. No GPU buffer exists
// until the first Flush.
func NewDynamicUniform(device hal.Device, queue hal.Queue, label string) *DynamicUniform {
	return &DynamicUniform{device: device, queue: queue, label: label}
}

// Clear drops the accumulated blocks. The GPU buffer is kept for reuse.
func (d *DynamicUniform) Clear() {
	d.data = d.data[:0]
}

// Append adds one uniform block and returns its byte offset within the
// buffer, usable as a binding offset after Flush.
func (d *DynamicUniform) Append(block []byte) uint64 {
	if rem := len(d.data) % uniformOffsetAlignment; rem != 0 {
		d.data = append(d.data, make([]byte, uniformOffsetAlignment-rem)...)
	}
	off := uint64(len(d.data))
	d.data = append(d.data, block...)
	return off
}

// Len returns the accumulated byte size, padding included.
func (d *DynamicUniform) Len() int { return len(d.data) }

// Flush uploads the accumulated data to the GPU buffer, growing it first
// when the data no longer fits. A Flush with nothing appended is a no-op.
func (d *DynamicUniform) Flush() error {
	if len(d.data) == 0 {
		return nil
	}
	need := (uint64(len(d.data)) + uniformOffsetAlignment - 1) &^ uint64(uniformOffsetAlignment-1)
	if d.buf == nil || need > d.cap {
		if d.buf != nil {
			d.device.DestroyBuffer(d.buf)
			d.buf = nil
		}
		buf, err := d.device.CreateBuffer(&hal.BufferDescriptor{
			Label: d.label,
			Size:  need,
			Usage: gputypes.BufferUsageUniform | gputypes.BufferUsageCopyDst,
		})
		if err != nil {
			return fmt.Errorf("render: create %s buffer: %w", d.label, err)
		}
		d.buf = buf
		d.cap = need
	}
	d.queue.WriteBuffer(d.buf, 0, d.data)
	return nil
}

// Buffer returns the GPU buffer holding the last flushed data, or nil
// before the first Flush.
func (d *DynamicUniform) Buffer() hal.Buffer { return d.buf }

// Destroy releases the GPU buffer. The accumulator can be reused after.
func (d *DynamicUniform) Destroy() {
	if d.buf != nil {
		d.device.DestroyBuffer(d.buf)
		d.buf = nil
		d.cap = 0
	}
}
