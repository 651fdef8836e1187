package rhi

import "github.com/gogpu/rhi/shader"

// Handle represents an opaque reference to a driver-owned object. Handles are
// allocated by a [Registry] (or directly by a [Driver]) and are stable for the
// lifetime of the object. The zero value is never a valid handle.
//
// Handles pack a slot index in the low 32 bits and a generation counter in
// the high 32 bits, so a recycled slot invalidates all outstanding handles
// that pointed at its previous occupant.
type Handle = uint64

// Typed handles for every driver object class. Using distinct types keeps
// buffer and texture handles from being mixed up at compile time.
type (
	// BufferID identifies a GPU buffer.
	BufferID uint64

	// TextureID identifies a GPU texture.
	TextureID uint64

	// SamplerID identifies a sampler object.
	SamplerID uint64

	// AccelerationStructureID identifies a ray-tracing acceleration structure.
	AccelerationStructureID uint64

	// BindGroupLayoutID identifies a driver bind-group layout object.
	BindGroupLayoutID uint64

	// BindGroupID identifies a driver bind-group (descriptor set) object.
	BindGroupID uint64

	// BindGroupPoolID identifies a pool that bind groups are allocated from.
	BindGroupPoolID uint64

	// PipelineLayoutID identifies a driver pipeline layout object.
	PipelineLayoutID uint64

	// PipelineID identifies a compiled graphics or compute pipeline.
	PipelineID uint64

	// CommandBufferID identifies a driver command buffer.
	CommandBufferID uint64

	// FenceID identifies a timeline fence used to track submission completion.
	FenceID uint64
)

// InvalidID is the zero value for all handle types. A handle equal to
// InvalidID refers to no object.
const InvalidID = 0

// BindingFrequency partitions resource bindings by their expected update
// rate. Each frequency maps to one descriptor set index, so bindings that
// change together are flushed together.
type BindingFrequency uint8

const (
	// FrequencyPerDraw is for bindings rebound for nearly every draw,
	// such as transform or object-constant buffers. Set index 0.
	FrequencyPerDraw BindingFrequency = iota

	// FrequencyPerMaterial is for bindings shared across the draws of one
	// material, such as material textures. Set index 1.
	FrequencyPerMaterial

	// FrequencyPerFrame is for bindings stable across a whole frame, such
	// as camera and lighting data. Set index 2.
	FrequencyPerFrame

	// FrequencyBindless is the reserved set index for the bindless texture
	// array. It is bound directly, never through the binding table.
	FrequencyBindless
)

// String returns the lowercase name of the frequency.
func (f BindingFrequency) String() string {
	switch f {
	case FrequencyPerDraw:
		return "per-draw"
	case FrequencyPerMaterial:
		return "per-material"
	case FrequencyPerFrame:
		return "per-frame"
	case FrequencyBindless:
		return "bindless"
	default:
		return "unknown"
	}
}

const (
	// NonBindlessSetCount is the number of descriptor sets managed through
	// the binding table. The bindless set sits above these.
	NonBindlessSetCount = 3

	// SetCount is the total number of descriptor set indices, including
	// the reserved bindless set.
	SetCount = shader.SetCount

	// PerSetBindings is the number of binding slots in each set.
	PerSetBindings = shader.PerSetBindings
)

// QueueType names a hardware queue class on the device.
type QueueType uint8

const (
	// QueueGraphics is the universal graphics+compute+transfer queue.
	QueueGraphics QueueType = iota

	// QueueCompute is an async compute queue, when the device exposes one.
	QueueCompute

	// QueueTransfer is a dedicated copy queue, when the device exposes one.
	QueueTransfer
)

// String returns the lowercase name of the queue type.
func (q QueueType) String() string {
	switch q {
	case QueueGraphics:
		return "graphics"
	case QueueCompute:
		return "compute"
	case QueueTransfer:
		return "transfer"
	default:
		return "unknown"
	}
}

// IndexFormat is the element width of an index buffer.
type IndexFormat uint8

const (
	// IndexUint16 selects 16-bit indices.
	IndexUint16 IndexFormat = iota

	// IndexUint32 selects 32-bit indices.
	IndexUint32
)

// Viewport describes the viewport transform for rasterization.
type Viewport struct {
	X, Y          float32
	Width, Height float32
	MinDepth      float32
	MaxDepth      float32
}

// Scissor describes the scissor rectangle in framebuffer pixels.
type Scissor struct {
	X, Y          int32
	Width, Height uint32
}

// BufferCopy describes one region of a buffer-to-buffer copy.
type BufferCopy struct {
	SrcOffset uint64
	DstOffset uint64
	Size      uint64
}

// BufferTextureCopy describes one region of a buffer-to-texture or
// texture-to-buffer copy. RowLength and ImageHeight are in texels; zero
// means tightly packed.
type BufferTextureCopy struct {
	BufferOffset uint64
	RowLength    uint32
	ImageHeight  uint32
	MipLevel     uint32
	ArrayLayer   uint32
	Origin       [3]uint32
	Extent       [3]uint32
}

// TextureBlit describes a filtered copy between two texture subresources.
type TextureBlit struct {
	SrcMipLevel   uint32
	SrcArrayLayer uint32
	DstMipLevel   uint32
	DstArrayLayer uint32
	SrcExtent     [3]uint32
	DstExtent     [3]uint32
}
