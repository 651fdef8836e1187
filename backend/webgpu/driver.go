package webgpu

import (
	"fmt"
	"sync"
	"time"

	"github.com/gogpu/gpucontext"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/rhi"
)

// fenceWaitTimeout bounds every blocking fence wait. GPU work that takes
// longer than this indicates a hang, not a slow frame.
const fenceWaitTimeout = 5 * time.Second

func init() {
	rhi.RegisterDriver("webgpu", func(opts any) (rhi.Driver, error) {
		var o *Options
		switch v := opts.(type) {
		case nil:
			o = &Options{}
		case *Options:
			o = v
		case Options:
			o = &v
		default:
			return nil, fmt.Errorf("webgpu: unsupported options type %T", opts)
		}
		return New(o)
	})
}

// Options configures the webgpu driver.
type Options struct {
	// Device and Queue are the HAL objects the driver records against. They
	// take precedence over Provider when set.
	Device hal.Device
	Queue  hal.Queue

	// Provider is an alternative device source, typically obtained from a
	// windowing integration. It must expose HalDevice() any and
	// HalQueue() any returning hal.Device and hal.Queue.
	Provider gpucontext.DeviceProvider

	// Limits overrides the reported device limits. Push-constant and
	// bindless capacities are forced to zero regardless: WebGPU has
	// neither.
	Limits *rhi.DeviceLimits
}

// textureEntry pairs a texture with the default view bound to descriptors
// and attachments, plus the texel size copies need for row pitch math.
type textureEntry struct {
	texture       hal.Texture
	view          hal.TextureView
	bytesPerTexel uint32
}

// bindGroupPool tracks the groups allocated through it so a reset or destroy
// can release them in bulk. WebGPU has no native descriptor pools; groups
// are individually created device objects.
type bindGroupPool struct {
	mu        sync.Mutex
	transient bool
	groups    []rhi.BindGroupID
}

// fenceState augments a hal.Fence with the timeline bookkeeping the core
// asks for. hal exposes waits but no value query, so the driver remembers
// the last submitted and last observed values and probes with a zero-timeout
// wait when asked.
type fenceState struct {
	fence hal.Fence

	mu        sync.Mutex
	submitted uint64
	reached   uint64
}

// Driver implements rhi.Driver on gogpu/wgpu's HAL.
//
// Object creation and destruction are safe for concurrent use; recording
// into one command buffer is single-goroutine, matching the rhi contract.
type Driver struct {
	device hal.Device
	queue  hal.Queue
	limits rhi.DeviceLimits

	buffers     rhi.Registry[hal.Buffer]
	textures    rhi.Registry[textureEntry]
	samplers    rhi.Registry[hal.Sampler]
	layouts     rhi.Registry[hal.BindGroupLayout]
	pipeLayouts rhi.Registry[hal.PipelineLayout]
	groups      rhi.Registry[hal.BindGroup]
	pools       rhi.Registry[*bindGroupPool]
	renderPipes rhi.Registry[hal.RenderPipeline]
	computePipes rhi.Registry[hal.ComputePipeline]
	commands    rhi.Registry[*commandState]
	fences      rhi.Registry[*fenceState]

	// emptyLayout fills holes in pipeline layout set lists; WebGPU wants a
	// dense list with empty layouts, not gaps.
	emptyMu     sync.Mutex
	emptyLayout hal.BindGroupLayout
}

// New creates a webgpu driver from the given options.
func New(o *Options) (*Driver, error) {
	if o == nil {
		o = &Options{}
	}
	device, queue := o.Device, o.Queue
	if device == nil && o.Provider != nil {
		type halProvider interface {
			HalDevice() any
			HalQueue() any
		}
		hp, ok := any(o.Provider).(halProvider)
		if !ok {
			return nil, ErrBadProvider
		}
		device, ok = hp.HalDevice().(hal.Device)
		if !ok || device == nil {
			return nil, ErrBadProvider
		}
		queue, ok = hp.HalQueue().(hal.Queue)
		if !ok || queue == nil {
			return nil, ErrBadProvider
		}
	}
	if device == nil || queue == nil {
		return nil, ErrNoDevice
	}

	limits := rhi.DefaultLimits()
	if o.Limits != nil {
		limits = *o.Limits
	}
	// WebGPU has no push constants and no bindless descriptor arrays.
	limits.MaxPushConstantSize = 0
	limits.MaxBindlessDescriptors = 0

	d := &Driver{
		device: device,
		queue:  queue,
		limits: limits,
	}
	rhi.Logger().Info("webgpu: driver created",
		"dynamicUniform", limits.MaxDynamicUniformBuffers,
		"dynamicStorage", limits.MaxDynamicStorageBuffers)
	return d, nil
}

// Name identifies the backend.
func (d *Driver) Name() string { return "webgpu" }

// Limits reports the device capabilities.
func (d *Driver) Limits() rhi.DeviceLimits { return d.limits }

// Queues reports the queue types. The HAL exposes a single universal queue.
func (d *Driver) Queues() []rhi.QueueType { return []rhi.QueueType{rhi.QueueGraphics} }

// Device returns the underlying HAL device for resource creation.
func (d *Driver) Device() hal.Device { return d.device }

// Queue returns the underlying HAL queue.
func (d *Driver) Queue() hal.Queue { return d.queue }

// RegisterBuffer makes a caller-owned buffer addressable through an rhi ID.
func (d *Driver) RegisterBuffer(buf hal.Buffer) rhi.BufferID {
	return rhi.BufferID(d.buffers.Register(buf))
}

// UnregisterBuffer invalidates a buffer ID. The caller destroys the buffer.
func (d *Driver) UnregisterBuffer(id rhi.BufferID) {
	d.buffers.Unregister(uint64(id))
}

// RegisterTexture makes a caller-owned texture addressable through an rhi
// ID. The view is what descriptors and attachments bind; bytesPerTexel
// drives the row pitch of buffer-texture copies.
func (d *Driver) RegisterTexture(tex hal.Texture, view hal.TextureView, bytesPerTexel uint32) rhi.TextureID {
	return rhi.TextureID(d.textures.Register(textureEntry{texture: tex, view: view, bytesPerTexel: bytesPerTexel}))
}

// UnregisterTexture invalidates a texture ID.
func (d *Driver) UnregisterTexture(id rhi.TextureID) {
	d.textures.Unregister(uint64(id))
}

// RegisterSampler makes a caller-owned sampler addressable through an rhi ID.
func (d *Driver) RegisterSampler(s hal.Sampler) rhi.SamplerID {
	return rhi.SamplerID(d.samplers.Register(s))
}

// UnregisterSampler invalidates a sampler ID.
func (d *Driver) UnregisterSampler(id rhi.SamplerID) {
	d.samplers.Unregister(uint64(id))
}

// RegisterRenderPipeline makes a compiled render pipeline addressable
// through an rhi ID, for wrapping in rhi.NewGraphicsPipeline.
func (d *Driver) RegisterRenderPipeline(p hal.RenderPipeline) rhi.PipelineID {
	return rhi.PipelineID(d.renderPipes.Register(p))
}

// UnregisterRenderPipeline invalidates a render pipeline ID.
func (d *Driver) UnregisterRenderPipeline(id rhi.PipelineID) {
	d.renderPipes.Unregister(uint64(id))
}

// RegisterComputePipeline makes a compiled compute pipeline addressable
// through an rhi ID, for wrapping in rhi.NewComputePipeline.
func (d *Driver) RegisterComputePipeline(p hal.ComputePipeline) rhi.PipelineID {
	return rhi.PipelineID(d.computePipes.Register(p))
}

// UnregisterComputePipeline invalidates a compute pipeline ID.
func (d *Driver) UnregisterComputePipeline(id rhi.PipelineID) {
	d.computePipes.Unregister(uint64(id))
}

// CreateBindGroupLayout creates a HAL bind group layout for the given slots.
func (d *Driver) CreateBindGroupLayout(slots []rhi.LayoutSlot) (rhi.BindGroupLayoutID, error) {
	entries, err := convertLayoutSlots(slots)
	if err != nil {
		return rhi.InvalidID, err
	}
	layout, err := d.device.CreateBindGroupLayout(&hal.BindGroupLayoutDescriptor{
		Entries: entries,
	})
	if err != nil {
		return rhi.InvalidID, fmt.Errorf("webgpu: create bind group layout: %w", err)
	}
	return rhi.BindGroupLayoutID(d.layouts.Register(layout)), nil
}

// DestroyBindGroupLayout releases a layout.
func (d *Driver) DestroyBindGroupLayout(id rhi.BindGroupLayoutID) {
	if layout, ok := d.layouts.Resolve(uint64(id)); ok {
		d.device.DestroyBindGroupLayout(layout)
		d.layouts.Unregister(uint64(id))
	}
}

// CreatePipelineLayout creates a HAL pipeline layout. Push-constant ranges
// are rejected upstream by the zero push limit, so push is always empty.
func (d *Driver) CreatePipelineLayout(sets [rhi.SetCount]rhi.BindGroupLayoutID, push []rhi.PushConstantRange) (rhi.PipelineLayoutID, error) {
	if len(push) > 0 {
		return rhi.InvalidID, fmt.Errorf("webgpu: push constants are not supported")
	}
	// Find the last used set; WebGPU wants a dense layout list, so holes
	// below it are filled with a shared empty layout.
	last := -1
	for i := 0; i < rhi.SetCount; i++ {
		if sets[i] != rhi.InvalidID {
			last = i
		}
	}
	halLayouts := make([]hal.BindGroupLayout, 0, last+1)
	for i := 0; i <= last; i++ {
		if sets[i] == rhi.InvalidID {
			empty, err := d.ensureEmptyLayout()
			if err != nil {
				return rhi.InvalidID, err
			}
			halLayouts = append(halLayouts, empty)
			continue
		}
		layout, ok := d.layouts.Resolve(uint64(sets[i]))
		if !ok {
			return rhi.InvalidID, fmt.Errorf("%w: bind group layout %d", ErrUnknownHandle, sets[i])
		}
		halLayouts = append(halLayouts, layout)
	}
	layout, err := d.device.CreatePipelineLayout(&hal.PipelineLayoutDescriptor{
		BindGroupLayouts: halLayouts,
	})
	if err != nil {
		return rhi.InvalidID, fmt.Errorf("webgpu: create pipeline layout: %w", err)
	}
	return rhi.PipelineLayoutID(d.pipeLayouts.Register(layout)), nil
}

func (d *Driver) ensureEmptyLayout() (hal.BindGroupLayout, error) {
	d.emptyMu.Lock()
	defer d.emptyMu.Unlock()
	if d.emptyLayout != nil {
		return d.emptyLayout, nil
	}
	layout, err := d.device.CreateBindGroupLayout(&hal.BindGroupLayoutDescriptor{})
	if err != nil {
		return nil, fmt.Errorf("webgpu: create empty bind group layout: %w", err)
	}
	d.emptyLayout = layout
	return layout, nil
}

// DestroyPipelineLayout releases a pipeline layout.
func (d *Driver) DestroyPipelineLayout(id rhi.PipelineLayoutID) {
	if layout, ok := d.pipeLayouts.Resolve(uint64(id)); ok {
		d.device.DestroyPipelineLayout(layout)
		d.pipeLayouts.Unregister(uint64(id))
	}
}

// CreateBindGroupPool creates a bookkeeping pool. Bind groups are plain
// device objects in WebGPU, so pools never exhaust; they exist to give the
// reset path something to bulk-free.
func (d *Driver) CreateBindGroupPool(transient bool) (rhi.BindGroupPoolID, error) {
	return rhi.BindGroupPoolID(d.pools.Register(&bindGroupPool{transient: transient})), nil
}

// ResetBindGroupPool destroys every group allocated from the pool.
func (d *Driver) ResetBindGroupPool(id rhi.BindGroupPoolID) {
	pool, ok := d.pools.Resolve(uint64(id))
	if !ok {
		return
	}
	pool.mu.Lock()
	groups := pool.groups
	pool.groups = nil
	pool.mu.Unlock()
	for _, gid := range groups {
		if group, ok := d.groups.Resolve(uint64(gid)); ok {
			d.device.DestroyBindGroup(group)
			d.groups.Unregister(uint64(gid))
		}
	}
}

// DestroyBindGroupPool releases the pool and everything allocated from it.
func (d *Driver) DestroyBindGroupPool(id rhi.BindGroupPoolID) {
	d.ResetBindGroupPool(id)
	d.pools.Unregister(uint64(id))
}

// AllocateBindGroup creates a bind group for the layout with the given
// resources written in.
func (d *Driver) AllocateBindGroup(poolID rhi.BindGroupPoolID, layoutID rhi.BindGroupLayoutID, slots []rhi.LayoutSlot, bindings []rhi.BoundResource) (rhi.BindGroupID, error) {
	pool, ok := d.pools.Resolve(uint64(poolID))
	if !ok {
		return rhi.InvalidID, fmt.Errorf("%w: bind group pool %d", ErrUnknownHandle, poolID)
	}
	layout, ok := d.layouts.Resolve(uint64(layoutID))
	if !ok {
		return rhi.InvalidID, fmt.Errorf("%w: bind group layout %d", ErrUnknownHandle, layoutID)
	}
	entries, err := d.convertBindings(slots, bindings)
	if err != nil {
		return rhi.InvalidID, err
	}
	group, err := d.device.CreateBindGroup(&hal.BindGroupDescriptor{
		Layout:  layout,
		Entries: entries,
	})
	if err != nil {
		return rhi.InvalidID, fmt.Errorf("webgpu: create bind group: %w", err)
	}
	gid := rhi.BindGroupID(d.groups.Register(group))
	pool.mu.Lock()
	pool.groups = append(pool.groups, gid)
	pool.mu.Unlock()
	return gid, nil
}

// FreeBindGroup destroys one bind group and forgets it in its pool.
func (d *Driver) FreeBindGroup(poolID rhi.BindGroupPoolID, gid rhi.BindGroupID) {
	group, ok := d.groups.Resolve(uint64(gid))
	if !ok {
		return
	}
	d.device.DestroyBindGroup(group)
	d.groups.Unregister(uint64(gid))
	if pool, ok := d.pools.Resolve(uint64(poolID)); ok {
		pool.mu.Lock()
		for i, g := range pool.groups {
			if g == gid {
				pool.groups[i] = pool.groups[len(pool.groups)-1]
				pool.groups = pool.groups[:len(pool.groups)-1]
				break
			}
		}
		pool.mu.Unlock()
	}
}

// CreateFence creates a timeline fence.
func (d *Driver) CreateFence() (rhi.FenceID, error) {
	fence, err := d.device.CreateFence()
	if err != nil {
		return rhi.InvalidID, fmt.Errorf("webgpu: create fence: %w", err)
	}
	return rhi.FenceID(d.fences.Register(&fenceState{fence: fence})), nil
}

// DestroyFence releases a fence.
func (d *Driver) DestroyFence(id rhi.FenceID) {
	if fs, ok := d.fences.Resolve(uint64(id)); ok {
		d.device.DestroyFence(fs.fence)
		d.fences.Unregister(uint64(id))
	}
}

// WaitFence blocks until the fence reaches value.
func (d *Driver) WaitFence(id rhi.FenceID, value uint64) error {
	fs, ok := d.fences.Resolve(uint64(id))
	if !ok {
		return fmt.Errorf("%w: fence %d", ErrUnknownHandle, id)
	}
	ok, err := d.device.Wait(fs.fence, value, fenceWaitTimeout)
	if err != nil {
		return fmt.Errorf("webgpu: fence wait: %w", err)
	}
	if !ok {
		return ErrFenceTimeout
	}
	fs.mu.Lock()
	if value > fs.reached {
		fs.reached = value
	}
	fs.mu.Unlock()
	return nil
}

// FenceValue reports the last value the fence is known to have reached. The
// HAL has no value query, so the driver probes pending submissions with a
// zero-timeout wait.
func (d *Driver) FenceValue(id rhi.FenceID) uint64 {
	fs, ok := d.fences.Resolve(uint64(id))
	if !ok {
		return 0
	}
	fs.mu.Lock()
	submitted, reached := fs.submitted, fs.reached
	fs.mu.Unlock()
	if submitted <= reached {
		return reached
	}
	if ok, err := d.device.Wait(fs.fence, submitted, 0); err == nil && ok {
		fs.mu.Lock()
		if submitted > fs.reached {
			fs.reached = submitted
		}
		reached = fs.reached
		fs.mu.Unlock()
	}
	return reached
}

// Submit hands a finished command buffer to the queue, signaling the fence
// with value when execution completes.
func (d *Driver) Submit(cb rhi.CommandBufferID, fence rhi.FenceID, value uint64) error {
	state, ok := d.commands.Resolve(uint64(cb))
	if !ok {
		return fmt.Errorf("%w: command buffer %d", ErrUnknownHandle, cb)
	}
	if state.encoded == nil {
		return ErrNotEncoded
	}
	fs, ok := d.fences.Resolve(uint64(fence))
	if !ok {
		return fmt.Errorf("%w: fence %d", ErrUnknownHandle, fence)
	}
	if err := d.queue.Submit([]hal.CommandBuffer{state.encoded}, fs.fence, value); err != nil {
		return fmt.Errorf("webgpu: submit: %w", err)
	}
	fs.mu.Lock()
	if value > fs.submitted {
		fs.submitted = value
	}
	fs.mu.Unlock()
	return nil
}
