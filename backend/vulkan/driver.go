package vulkan

import (
	"fmt"
	"sync"
	"time"

	vk "github.com/goki/vulkan"

	"github.com/gogpu/rhi"
)

// fenceWaitTimeout bounds every blocking fence wait. GPU work that takes
// longer than this indicates a hang, not a slow frame.
const fenceWaitTimeout = 5 * time.Second

// poolMaxSets is the descriptor set capacity of one driver pool. The bind
// group cache above grows by adding pools, so one pool stays modest.
const poolMaxSets = 256

func init() {
	rhi.RegisterDriver("vulkan", func(opts any) (rhi.Driver, error) {
		var o *Options
		switch v := opts.(type) {
		case nil:
			o = &Options{}
		case *Options:
			o = v
		case Options:
			o = &v
		default:
			return nil, fmt.Errorf("vulkan: unsupported options type %T", opts)
		}
		return New(o)
	})
}

// Options configures the vulkan driver.
type Options struct {
	// Device is the logical device the driver records against.
	Device vk.Device

	// Queue is the graphics queue and its family index. Required.
	Queue               vk.Queue
	GraphicsQueueFamily uint32

	// ComputeQueue and TransferQueue expose async queues when the device
	// has them. Leave nil to record everything on the graphics queue.
	ComputeQueue        vk.Queue
	ComputeQueueFamily  uint32
	TransferQueue       vk.Queue
	TransferQueueFamily uint32

	// Limits overrides the reported device limits. Bindless capacity is
	// forced to zero: the driver does not enable descriptor indexing.
	Limits *rhi.DeviceLimits
}

// TextureInfo carries the image properties the driver needs for attachment
// descriptions, barriers and copy row pitch.
type TextureInfo struct {
	Format        vk.Format
	Aspect        vk.ImageAspectFlags
	Width, Height uint32
	Samples       vk.SampleCountFlagBits
	BytesPerTexel uint32
}

// textureEntry pairs an image with its default view and properties.
type textureEntry struct {
	image vk.Image
	view  vk.ImageView
	info  TextureInfo
}

// queueInfo is one queue the driver submits and records on. The command
// pool is guarded because pools are externally synchronized in Vulkan.
type queueInfo struct {
	kind   rhi.QueueType
	queue  vk.Queue
	family uint32

	mu   sync.Mutex
	pool vk.CommandPool
}

// descriptorPool wraps a native pool with the bookkeeping ResetBindGroupPool
// needs to invalidate handles in bulk.
type descriptorPool struct {
	pool      vk.DescriptorPool
	transient bool

	mu     sync.Mutex
	groups []rhi.BindGroupID
}

// Driver implements rhi.Driver on goki/vulkan.
//
// Object creation and destruction are safe for concurrent use; recording
// into one command buffer is single-goroutine, matching the rhi contract.
type Driver struct {
	device vk.Device
	limits rhi.DeviceLimits
	queues []*queueInfo

	buffers      rhi.Registry[vk.Buffer]
	textures     rhi.Registry[textureEntry]
	samplers     rhi.Registry[vk.Sampler]
	layouts      rhi.Registry[vk.DescriptorSetLayout]
	pipeLayouts  rhi.Registry[vk.PipelineLayout]
	groups       rhi.Registry[vk.DescriptorSet]
	pools        rhi.Registry[*descriptorPool]
	renderPipes  rhi.Registry[vk.Pipeline]
	computePipes rhi.Registry[vk.Pipeline]
	commands     rhi.Registry[*commandState]
	fences       rhi.Registry[*fenceState]

	// emptyLayout fills holes in pipeline layout set lists; Vulkan wants a
	// dense list with empty layouts, not gaps.
	emptyMu     sync.Mutex
	emptyLayout vk.DescriptorSetLayout
	hasEmpty    bool

	passes *passCache
}

// New creates a vulkan driver from the given options.
func New(o *Options) (*Driver, error) {
	if o == nil {
		o = &Options{}
	}
	if o.Device == nil {
		return nil, ErrNoDevice
	}
	if o.Queue == nil {
		return nil, ErrNoQueue
	}
	limits := rhi.DefaultLimits()
	if o.Limits != nil {
		limits = *o.Limits
	}
	limits.MaxBindlessDescriptors = 0

	d := &Driver{
		device: o.Device,
		limits: limits,
	}
	d.passes = newPassCache(o.Device)

	add := func(kind rhi.QueueType, queue vk.Queue, family uint32) error {
		pool, err := d.createCommandPool(family)
		if err != nil {
			return err
		}
		d.queues = append(d.queues, &queueInfo{kind: kind, queue: queue, family: family, pool: pool})
		return nil
	}
	if err := add(rhi.QueueGraphics, o.Queue, o.GraphicsQueueFamily); err != nil {
		return nil, err
	}
	if o.ComputeQueue != nil {
		if err := add(rhi.QueueCompute, o.ComputeQueue, o.ComputeQueueFamily); err != nil {
			return nil, err
		}
	}
	if o.TransferQueue != nil {
		if err := add(rhi.QueueTransfer, o.TransferQueue, o.TransferQueueFamily); err != nil {
			return nil, err
		}
	}

	rhi.Logger().Info("vulkan: driver created",
		"queues", len(d.queues),
		"pushConstantBytes", limits.MaxPushConstantSize)
	return d, nil
}

func (d *Driver) createCommandPool(family uint32) (vk.CommandPool, error) {
	var pool vk.CommandPool
	res := vk.CreateCommandPool(d.device, &vk.CommandPoolCreateInfo{
		SType:            vk.StructureTypeCommandPoolCreateInfo,
		QueueFamilyIndex: family,
		Flags:            vk.CommandPoolCreateFlags(vk.CommandPoolCreateResetCommandBufferBit),
	}, nil, &pool)
	if err := vkError("create command pool", res); err != nil {
		return nil, err
	}
	return pool, nil
}

// Destroy releases every driver-owned object. Registered resources stay
// with their owners.
func (d *Driver) Destroy() {
	d.passes.destroy()
	for _, q := range d.queues {
		vk.DestroyCommandPool(d.device, q.pool, nil)
	}
	if d.hasEmpty {
		vk.DestroyDescriptorSetLayout(d.device, d.emptyLayout, nil)
	}
}

// Name implements rhi.Driver.
func (d *Driver) Name() string { return "vulkan" }

// Limits implements rhi.Driver.
func (d *Driver) Limits() rhi.DeviceLimits { return d.limits }

// Queues implements rhi.Driver.
func (d *Driver) Queues() []rhi.QueueType {
	out := make([]rhi.QueueType, len(d.queues))
	for i, q := range d.queues {
		out[i] = q.kind
	}
	return out
}

// Device returns the logical device the driver was created with.
func (d *Driver) Device() vk.Device { return d.device }

func (d *Driver) queueInfo(kind rhi.QueueType) *queueInfo {
	for _, q := range d.queues {
		if q.kind == kind {
			return q
		}
	}
	return nil
}

// familyFor resolves a queue type to its family index for ownership
// transfers.
func (d *Driver) familyFor(kind rhi.QueueType) (uint32, bool) {
	if q := d.queueInfo(kind); q != nil {
		return q.family, true
	}
	return 0, false
}

// RegisterBuffer makes an externally created buffer visible to recording.
func (d *Driver) RegisterBuffer(buf vk.Buffer) rhi.BufferID {
	return rhi.BufferID(d.buffers.Register(buf))
}

// UnregisterBuffer removes a buffer registration. The buffer itself is not
// destroyed.
func (d *Driver) UnregisterBuffer(id rhi.BufferID) {
	d.buffers.Unregister(uint64(id))
}

// RegisterTexture makes an externally created image and its default view
// visible to recording.
func (d *Driver) RegisterTexture(image vk.Image, view vk.ImageView, info TextureInfo) rhi.TextureID {
	if info.Aspect == 0 {
		info.Aspect = vk.ImageAspectFlags(vk.ImageAspectColorBit)
	}
	if info.Samples == 0 {
		info.Samples = vk.SampleCount1Bit
	}
	return rhi.TextureID(d.textures.Register(textureEntry{image: image, view: view, info: info}))
}

// UnregisterTexture removes a texture registration.
func (d *Driver) UnregisterTexture(id rhi.TextureID) {
	d.textures.Unregister(uint64(id))
}

// RegisterSampler makes an externally created sampler visible to recording.
func (d *Driver) RegisterSampler(s vk.Sampler) rhi.SamplerID {
	return rhi.SamplerID(d.samplers.Register(s))
}

// UnregisterSampler removes a sampler registration.
func (d *Driver) UnregisterSampler(id rhi.SamplerID) {
	d.samplers.Unregister(uint64(id))
}

// RegisterRenderPipeline makes a graphics pipeline visible to recording.
func (d *Driver) RegisterRenderPipeline(p vk.Pipeline) rhi.PipelineID {
	return rhi.PipelineID(d.renderPipes.Register(p))
}

// RegisterComputePipeline makes a compute pipeline visible to recording.
func (d *Driver) RegisterComputePipeline(p vk.Pipeline) rhi.PipelineID {
	return rhi.PipelineID(d.computePipes.Register(p))
}

// CreateBindGroupLayout implements rhi.Driver.
func (d *Driver) CreateBindGroupLayout(slots []rhi.LayoutSlot) (rhi.BindGroupLayoutID, error) {
	bindings := make([]vk.DescriptorSetLayoutBinding, 0, len(slots))
	for i := range slots {
		s := &slots[i]
		dt, err := convertDescriptorType(s)
		if err != nil {
			return rhi.InvalidID, err
		}
		count := s.Count
		if count == 0 {
			count = 1
		}
		bindings = append(bindings, vk.DescriptorSetLayoutBinding{
			Binding:         s.Slot,
			DescriptorType:  dt,
			DescriptorCount: count,
			StageFlags:      convertStageMask(s.Visibility),
		})
	}
	var layout vk.DescriptorSetLayout
	res := vk.CreateDescriptorSetLayout(d.device, &vk.DescriptorSetLayoutCreateInfo{
		SType:        vk.StructureTypeDescriptorSetLayoutCreateInfo,
		BindingCount: uint32(len(bindings)),
		PBindings:    bindings,
	}, nil, &layout)
	if err := vkError("create descriptor set layout", res); err != nil {
		return rhi.InvalidID, err
	}
	return rhi.BindGroupLayoutID(d.layouts.Register(layout)), nil
}

// DestroyBindGroupLayout implements rhi.Driver.
func (d *Driver) DestroyBindGroupLayout(id rhi.BindGroupLayoutID) {
	if layout, ok := d.layouts.Resolve(uint64(id)); ok {
		vk.DestroyDescriptorSetLayout(d.device, layout, nil)
		d.layouts.Unregister(uint64(id))
	}
}

// ensureEmptyLayout returns the shared zero-binding layout used to fill
// holes in pipeline layout set lists.
func (d *Driver) ensureEmptyLayout() (vk.DescriptorSetLayout, error) {
	d.emptyMu.Lock()
	defer d.emptyMu.Unlock()
	if d.hasEmpty {
		return d.emptyLayout, nil
	}
	var layout vk.DescriptorSetLayout
	res := vk.CreateDescriptorSetLayout(d.device, &vk.DescriptorSetLayoutCreateInfo{
		SType: vk.StructureTypeDescriptorSetLayoutCreateInfo,
	}, nil, &layout)
	if err := vkError("create empty descriptor set layout", res); err != nil {
		return nil, err
	}
	d.emptyLayout = layout
	d.hasEmpty = true
	return layout, nil
}

// CreatePipelineLayout implements rhi.Driver.
func (d *Driver) CreatePipelineLayout(sets [rhi.SetCount]rhi.BindGroupLayoutID, push []rhi.PushConstantRange) (rhi.PipelineLayoutID, error) {
	used := -1
	for i, id := range sets {
		if id != rhi.InvalidID {
			used = i
		}
	}
	native := make([]vk.DescriptorSetLayout, 0, used+1)
	for i := 0; i <= used; i++ {
		if sets[i] == rhi.InvalidID {
			empty, err := d.ensureEmptyLayout()
			if err != nil {
				return rhi.InvalidID, err
			}
			native = append(native, empty)
			continue
		}
		layout, ok := d.layouts.Resolve(uint64(sets[i]))
		if !ok {
			return rhi.InvalidID, fmt.Errorf("%w: set layout %d", ErrUnknownHandle, sets[i])
		}
		native = append(native, layout)
	}
	ranges := make([]vk.PushConstantRange, 0, len(push))
	for _, r := range push {
		ranges = append(ranges, vk.PushConstantRange{
			StageFlags: convertStageMask(r.Stages),
			Offset:     r.Offset,
			Size:       r.Size,
		})
	}
	var layout vk.PipelineLayout
	res := vk.CreatePipelineLayout(d.device, &vk.PipelineLayoutCreateInfo{
		SType:                  vk.StructureTypePipelineLayoutCreateInfo,
		SetLayoutCount:         uint32(len(native)),
		PSetLayouts:            native,
		PushConstantRangeCount: uint32(len(ranges)),
		PPushConstantRanges:    ranges,
	}, nil, &layout)
	if err := vkError("create pipeline layout", res); err != nil {
		return rhi.InvalidID, err
	}
	return rhi.PipelineLayoutID(d.pipeLayouts.Register(layout)), nil
}

// DestroyPipelineLayout implements rhi.Driver.
func (d *Driver) DestroyPipelineLayout(id rhi.PipelineLayoutID) {
	if layout, ok := d.pipeLayouts.Resolve(uint64(id)); ok {
		vk.DestroyPipelineLayout(d.device, layout, nil)
		d.pipeLayouts.Unregister(uint64(id))
	}
}
