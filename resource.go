package rhi

import "github.com/gogpu/rhi/shader"

// BoundResourceKind discriminates the payload of a [BoundResource].
type BoundResourceKind uint8

const (
	// BoundNone marks an empty binding slot.
	BoundNone BoundResourceKind = iota

	// BoundUniformBuffer is a uniform buffer range.
	BoundUniformBuffer

	// BoundStorageBuffer is a storage buffer range.
	BoundStorageBuffer

	// BoundSampledTexture is a texture sampled in shaders.
	BoundSampledTexture

	// BoundStorageTexture is a texture written through image stores.
	BoundStorageTexture

	// BoundCombinedTextureSampler is a texture paired with a sampler in a
	// single slot.
	BoundCombinedTextureSampler

	// BoundSampler is a standalone sampler.
	BoundSampler

	// BoundSampledTextureArray is an array of sampled textures.
	BoundSampledTextureArray

	// BoundStorageTextureArray is an array of storage textures.
	BoundStorageTextureArray

	// BoundAccelerationStructure is a ray-tracing acceleration structure.
	BoundAccelerationStructure
)

// String returns the lowercase name of the kind.
func (k BoundResourceKind) String() string {
	switch k {
	case BoundNone:
		return "none"
	case BoundUniformBuffer:
		return "uniform-buffer"
	case BoundStorageBuffer:
		return "storage-buffer"
	case BoundSampledTexture:
		return "sampled-texture"
	case BoundStorageTexture:
		return "storage-texture"
	case BoundCombinedTextureSampler:
		return "combined-texture-sampler"
	case BoundSampler:
		return "sampler"
	case BoundSampledTextureArray:
		return "sampled-texture-array"
	case BoundStorageTextureArray:
		return "storage-texture-array"
	case BoundAccelerationStructure:
		return "acceleration-structure"
	default:
		return "unknown"
	}
}

// BufferBinding is a range of a buffer bound to a descriptor slot.
type BufferBinding struct {
	Buffer BufferID
	Offset uint64
	Size   uint64
}

// TextureSampler pairs a texture with the sampler used to sample it.
type TextureSampler struct {
	Texture TextureID
	Sampler SamplerID
}

// BoundResource is the tagged union stored in a binding-table slot. Only the
// fields selected by Kind are meaningful; constructors keep the rest zeroed
// so values compare correctly.
type BoundResource struct {
	Kind BoundResourceKind

	// Buffer is set for BoundUniformBuffer and BoundStorageBuffer.
	Buffer BufferBinding

	// Texture is set for BoundSampledTexture and BoundStorageTexture.
	Texture TextureID

	// Sampler is set for BoundSampler and BoundCombinedTextureSampler.
	Sampler SamplerID

	// Textures is set for the texture-array kinds.
	Textures []TextureID

	// AccelStruct is set for BoundAccelerationStructure.
	AccelStruct AccelerationStructureID
}

// UniformBufferBinding returns a BoundResource for a uniform buffer range.
func UniformBufferBinding(buf BufferID, offset, size uint64) BoundResource {
	return BoundResource{Kind: BoundUniformBuffer, Buffer: BufferBinding{Buffer: buf, Offset: offset, Size: size}}
}

// StorageBufferBinding returns a BoundResource for a storage buffer range.
func StorageBufferBinding(buf BufferID, offset, size uint64) BoundResource {
	return BoundResource{Kind: BoundStorageBuffer, Buffer: BufferBinding{Buffer: buf, Offset: offset, Size: size}}
}

// SampledTextureBinding returns a BoundResource for a sampled texture.
func SampledTextureBinding(tex TextureID) BoundResource {
	return BoundResource{Kind: BoundSampledTexture, Texture: tex}
}

// StorageTextureBinding returns a BoundResource for a storage texture.
func StorageTextureBinding(tex TextureID) BoundResource {
	return BoundResource{Kind: BoundStorageTexture, Texture: tex}
}

// CombinedTextureSamplerBinding returns a BoundResource for a texture paired
// with a sampler.
func CombinedTextureSamplerBinding(tex TextureID, smp SamplerID) BoundResource {
	return BoundResource{Kind: BoundCombinedTextureSampler, Texture: tex, Sampler: smp}
}

// SamplerBinding returns a BoundResource for a standalone sampler.
func SamplerBinding(smp SamplerID) BoundResource {
	return BoundResource{Kind: BoundSampler, Sampler: smp}
}

// SampledTextureArrayBinding returns a BoundResource for an array of sampled
// textures. The slice is retained, not copied; callers must not mutate it
// while it is bound.
func SampledTextureArrayBinding(texs []TextureID) BoundResource {
	return BoundResource{Kind: BoundSampledTextureArray, Textures: texs}
}

// StorageTextureArrayBinding returns a BoundResource for an array of storage
// textures.
func StorageTextureArrayBinding(texs []TextureID) BoundResource {
	return BoundResource{Kind: BoundStorageTextureArray, Textures: texs}
}

// AccelerationStructureBinding returns a BoundResource for an acceleration
// structure.
func AccelerationStructureBinding(as AccelerationStructureID) BoundResource {
	return BoundResource{Kind: BoundAccelerationStructure, AccelStruct: as}
}

// Equal reports whether two bound resources have identical content. Array
// kinds compare element-wise.
func (r *BoundResource) Equal(o *BoundResource) bool {
	if r.Kind != o.Kind {
		return false
	}
	switch r.Kind {
	case BoundNone:
		return true
	case BoundUniformBuffer, BoundStorageBuffer:
		return r.Buffer == o.Buffer
	case BoundSampledTexture, BoundStorageTexture:
		return r.Texture == o.Texture
	case BoundSampler:
		return r.Sampler == o.Sampler
	case BoundCombinedTextureSampler:
		return r.Texture == o.Texture && r.Sampler == o.Sampler
	case BoundAccelerationStructure:
		return r.AccelStruct == o.AccelStruct
	case BoundSampledTextureArray, BoundStorageTextureArray:
		if len(r.Textures) != len(o.Textures) {
			return false
		}
		for i, t := range r.Textures {
			if t != o.Textures[i] {
				return false
			}
		}
		return true
	default:
		return false
	}
}

// Matches reports whether the binding satisfies slot. For dynamic-offset
// buffer slots the offset is excluded from the comparison, because the offset
// is supplied at bind time rather than baked into the bind group. All other
// kinds fall back to full content equality.
func (r *BoundResource) Matches(o *BoundResource, dynamicOffset bool) bool {
	if !dynamicOffset {
		return r.Equal(o)
	}
	switch r.Kind {
	case BoundUniformBuffer, BoundStorageBuffer:
		return r.Kind == o.Kind &&
			r.Buffer.Buffer == o.Buffer.Buffer &&
			r.Buffer.Size == o.Buffer.Size
	default:
		return r.Equal(o)
	}
}

// satisfies reports whether the binding's kind is acceptable for a slot
// declared with the given resource type.
func (r *BoundResource) satisfies(t shader.ResourceType) bool {
	switch t {
	case shader.ResourceUniformBuffer:
		return r.Kind == BoundUniformBuffer
	case shader.ResourceStorageBuffer:
		return r.Kind == BoundStorageBuffer
	case shader.ResourceSampledTexture:
		return r.Kind == BoundSampledTexture || r.Kind == BoundSampledTextureArray
	case shader.ResourceStorageTexture:
		return r.Kind == BoundStorageTexture || r.Kind == BoundStorageTextureArray
	case shader.ResourceCombinedTextureSampler:
		return r.Kind == BoundCombinedTextureSampler
	case shader.ResourceSampler:
		return r.Kind == BoundSampler
	case shader.ResourceAccelerationStructure:
		return r.Kind == BoundAccelerationStructure
	default:
		return false
	}
}

// arrayLen returns the number of descriptors the binding occupies.
func (r *BoundResource) arrayLen() uint32 {
	switch r.Kind {
	case BoundSampledTextureArray, BoundStorageTextureArray:
		return uint32(len(r.Textures))
	default:
		return 1
	}
}
