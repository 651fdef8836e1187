package rhi

import (
	"fmt"
	"sort"
	"sync"

	"github.com/gogpu/rhi/shader"
)

// DeviceLimits holds the device capabilities the binding and layout machinery
// consults. Drivers report their real limits; tests use [DefaultLimits].
type DeviceLimits struct {
	// MaxPushConstantSize is the byte budget for one pipeline's merged
	// push-constant block.
	MaxPushConstantSize uint32

	// MaxDynamicUniformBuffers bounds dynamic-offset uniform buffer
	// bindings across one pipeline layout.
	MaxDynamicUniformBuffers uint32

	// MaxDynamicStorageBuffers bounds dynamic-offset storage buffer
	// bindings across one pipeline layout.
	MaxDynamicStorageBuffers uint32

	// MaxBindlessDescriptors is the capacity of the bindless texture set.
	// Zero means the device does not support bindless.
	MaxBindlessDescriptors uint32
}

// DefaultLimits returns conservative limits that every supported device
// meets. Values follow the Vulkan required minimums.
func DefaultLimits() DeviceLimits {
	return DeviceLimits{
		MaxPushConstantSize:      128,
		MaxDynamicUniformBuffers: 8,
		MaxDynamicStorageBuffers: 4,
		MaxBindlessDescriptors:   0,
	}
}

// Driver is the backend seam. It exposes the handful of operations the
// binding, barrier and command machinery needs, keyed entirely by opaque
// handles; everything above it is backend-independent.
//
// A Driver implementation is not required to be safe for concurrent use on
// the same command buffer, matching the one-goroutine-per-command-buffer
// ownership rule. Object creation and destruction must be safe to call from
// multiple goroutines.
type Driver interface {
	// Name identifies the backend, e.g. "webgpu" or "vulkan".
	Name() string

	// Limits reports the device capabilities.
	Limits() DeviceLimits

	// Queues lists the queue types the device was created with. QueueGraphics
	// is always present.
	Queues() []QueueType

	// CreateBindGroupLayout creates a native layout for the given slots. The
	// slice is ordered by slot index and never mutated after the call.
	CreateBindGroupLayout(slots []LayoutSlot) (BindGroupLayoutID, error)

	// DestroyBindGroupLayout releases a native layout.
	DestroyBindGroupLayout(id BindGroupLayoutID)

	// CreatePipelineLayout creates a native pipeline layout from up to
	// SetCount set layouts (nil entries are empty sets) and the merged
	// push-constant ranges.
	CreatePipelineLayout(sets [SetCount]BindGroupLayoutID, push []PushConstantRange) (PipelineLayoutID, error)

	// DestroyPipelineLayout releases a native pipeline layout.
	DestroyPipelineLayout(id PipelineLayoutID)

	// CreateBindGroupPool creates a pool that bind groups are allocated
	// from. Transient pools may use cheaper free-on-reset allocation.
	CreateBindGroupPool(transient bool) (BindGroupPoolID, error)

	// ResetBindGroupPool bulk-frees every bind group allocated from the pool.
	ResetBindGroupPool(id BindGroupPoolID)

	// DestroyBindGroupPool releases the pool and everything allocated from it.
	DestroyBindGroupPool(id BindGroupPoolID)

	// AllocateBindGroup allocates a bind group from the pool and writes the
	// given resources into it. bindings[i] corresponds to slots[i] of the
	// layout. Returns ErrPoolExhausted when the pool is full.
	AllocateBindGroup(pool BindGroupPoolID, layout BindGroupLayoutID, slots []LayoutSlot, bindings []BoundResource) (BindGroupID, error)

	// FreeBindGroup returns one bind group to its pool. Only groups from
	// non-transient pools are freed individually.
	FreeBindGroup(pool BindGroupPoolID, group BindGroupID)

	// CreateCommandBuffer allocates a command buffer on the given queue.
	// Secondary command buffers record inside an inherited render pass.
	CreateCommandBuffer(queue QueueType, secondary bool) (CommandBufferID, error)

	// DestroyCommandBuffer releases a command buffer.
	DestroyCommandBuffer(id CommandBufferID)

	// Begin puts the command buffer into the recording state. inheritance is
	// non-nil only for secondary command buffers.
	Begin(id CommandBufferID, inheritance *RenderPassInheritance) error

	// End closes recording and makes the command buffer submittable.
	End(id CommandBufferID) error

	// Reset returns a finished or completed command buffer to its initial
	// state so it can record again.
	Reset(id CommandBufferID) error

	// WaitFence blocks until the timeline fence reaches value.
	WaitFence(fence FenceID, value uint64) error

	// FenceValue reports the last value the fence has reached.
	FenceValue(fence FenceID) uint64

	// Recording commands. All Cmd methods require the command buffer to be
	// in the recording state; the core enforces this before calling.

	CmdSetPipeline(cb CommandBufferID, p *Pipeline)
	CmdBindGroup(cb CommandBufferID, kind PipelineKind, set uint32, group BindGroupID, dynamicOffsets []uint32)
	CmdPushConstants(cb CommandBufferID, stages shader.StageMask, offset uint32, data []byte)
	CmdBarrier(cb CommandBufferID, batch *BarrierBatch)

	CmdBeginRenderPass(cb CommandBufferID, info *RenderPassInfo)
	CmdEndRenderPass(cb CommandBufferID)
	CmdExecuteCommands(cb CommandBufferID, inner []CommandBufferID)

	CmdSetViewport(cb CommandBufferID, vp Viewport)
	CmdSetScissor(cb CommandBufferID, sc Scissor)
	CmdSetVertexBuffer(cb CommandBufferID, slot uint32, buffer BufferID, offset uint64)
	CmdSetIndexBuffer(cb CommandBufferID, buffer BufferID, offset uint64, format IndexFormat)

	CmdDraw(cb CommandBufferID, vertexCount, instanceCount, firstVertex, firstInstance uint32)
	CmdDrawIndexed(cb CommandBufferID, indexCount, instanceCount, firstIndex uint32, vertexOffset int32, firstInstance uint32)
	CmdDrawIndirect(cb CommandBufferID, buffer BufferID, offset uint64, drawCount, stride uint32)
	CmdDrawIndexedIndirect(cb CommandBufferID, buffer BufferID, offset uint64, drawCount, stride uint32)
	CmdDispatch(cb CommandBufferID, x, y, z uint32)

	CmdCopyBuffer(cb CommandBufferID, src, dst BufferID, region BufferCopy)
	CmdCopyBufferToTexture(cb CommandBufferID, src BufferID, dst TextureID, region BufferTextureCopy)
	CmdCopyTextureToBuffer(cb CommandBufferID, src TextureID, dst BufferID, region BufferTextureCopy)
	CmdBlit(cb CommandBufferID, src, dst TextureID, region TextureBlit)

	CmdBeginLabel(cb CommandBufferID, label string)
	CmdEndLabel(cb CommandBufferID)
}

// DriverFactory creates a Driver instance. Options are backend-specific and
// may be nil.
type DriverFactory func(opts any) (Driver, error)

var (
	driversMu sync.RWMutex
	drivers   = map[string]DriverFactory{}
)

// RegisterDriver makes a backend available under the given name. It is
// intended to be called from the init function of a backend package.
//
// RegisterDriver panics if name is empty, factory is nil, or the name is
// already registered: double registration indicates a programmer error that
// should be caught at startup.
func RegisterDriver(name string, factory DriverFactory) {
	if name == "" {
		panic("rhi: RegisterDriver with empty name")
	}
	if factory == nil {
		panic("rhi: RegisterDriver with nil factory for " + name)
	}
	driversMu.Lock()
	defer driversMu.Unlock()
	if _, dup := drivers[name]; dup {
		panic("rhi: RegisterDriver called twice for " + name)
	}
	drivers[name] = factory
	Logger().Info("rhi: driver registered", "name", name)
}

// Drivers returns the sorted names of all registered backends.
func Drivers() []string {
	driversMu.RLock()
	defer driversMu.RUnlock()
	names := make([]string, 0, len(drivers))
	for name := range drivers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// NewDriver instantiates a registered backend by name.
func NewDriver(name string, opts any) (Driver, error) {
	driversMu.RLock()
	factory, ok := drivers[name]
	driversMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("rhi: unknown driver %q (registered: %v)", name, Drivers())
	}
	return factory(opts)
}
