package webgpu

import (
	"fmt"

	"github.com/gogpu/gputypes"

	"github.com/gogpu/rhi"
	"github.com/gogpu/rhi/shader"
)

// convertStageMask maps shader stage visibility to gputypes flags.
func convertStageMask(m shader.StageMask) gputypes.ShaderStage {
	var out gputypes.ShaderStage
	if m.Has(shader.StageVertex) {
		out |= gputypes.ShaderStageVertex
	}
	if m.Has(shader.StageFragment) {
		out |= gputypes.ShaderStageFragment
	}
	if m.Has(shader.StageCompute) {
		out |= gputypes.ShaderStageCompute
	}
	return out
}

// convertLayoutSlots maps merged layout slots to HAL layout entries.
// Dynamic-offset slots keep their buffer type; offsets are supplied per bind
// through SetBindGroup.
func convertLayoutSlots(slots []rhi.LayoutSlot) ([]gputypes.BindGroupLayoutEntry, error) {
	entries := make([]gputypes.BindGroupLayoutEntry, 0, len(slots))
	for i := range slots {
		s := &slots[i]
		entry := gputypes.BindGroupLayoutEntry{
			Binding:    s.Slot,
			Visibility: convertStageMask(s.Visibility),
		}
		switch s.Type {
		case shader.ResourceUniformBuffer:
			entry.Buffer = &gputypes.BufferBindingLayout{
				Type: gputypes.BufferBindingTypeUniform,
			}
		case shader.ResourceStorageBuffer:
			typ := gputypes.BufferBindingTypeReadOnlyStorage
			if s.Writable {
				typ = gputypes.BufferBindingTypeStorage
			}
			entry.Buffer = &gputypes.BufferBindingLayout{Type: typ}
		case shader.ResourceSampledTexture:
			entry.Texture = &gputypes.TextureBindingLayout{
				SampleType:    gputypes.TextureSampleTypeFloat,
				ViewDimension: gputypes.TextureViewDimension2D,
			}
		case shader.ResourceStorageTexture:
			entry.StorageTexture = &gputypes.StorageTextureBindingLayout{
				Access:        gputypes.StorageTextureAccessReadWrite,
				Format:        gputypes.TextureFormatRGBA8Unorm,
				ViewDimension: gputypes.TextureViewDimension2D,
			}
		case shader.ResourceSampler:
			entry.Sampler = &gputypes.SamplerBindingLayout{
				Type: gputypes.SamplerBindingTypeFiltering,
			}
		case shader.ResourceCombinedTextureSampler:
			return nil, fmt.Errorf("%w: slot %d", ErrCombinedSamplerUnsupported, s.Slot)
		case shader.ResourceAccelerationStructure:
			return nil, fmt.Errorf("%w: slot %d", ErrAccelStructUnsupported, s.Slot)
		default:
			return nil, fmt.Errorf("webgpu: slot %d has unknown resource type %v", s.Slot, s.Type)
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

// convertBindings resolves bound resources into HAL bind group entries.
// bindings[i] corresponds to slots[i]; the rhi core has already validated
// types and array counts against the layout.
func (d *Driver) convertBindings(slots []rhi.LayoutSlot, bindings []rhi.BoundResource) ([]gputypes.BindGroupEntry, error) {
	entries := make([]gputypes.BindGroupEntry, 0, len(bindings))
	for i := range bindings {
		b := &bindings[i]
		entry := gputypes.BindGroupEntry{Binding: slots[i].Slot}
		switch b.Kind {
		case rhi.BoundUniformBuffer, rhi.BoundStorageBuffer:
			buf, ok := d.buffers.Resolve(uint64(b.Buffer.Buffer))
			if !ok {
				return nil, fmt.Errorf("%w: buffer %d", ErrUnknownHandle, b.Buffer.Buffer)
			}
			offset := b.Buffer.Offset
			if slots[i].DynamicOffset {
				// Dynamic slots bake offset zero; the live offset rides
				// along with every SetBindGroup.
				offset = 0
			}
			entry.Resource = gputypes.BufferBinding{
				Buffer: buf.NativeHandle(),
				Offset: offset,
				Size:   b.Buffer.Size,
			}
		case rhi.BoundSampledTexture, rhi.BoundStorageTexture:
			tex, ok := d.textures.Resolve(uint64(b.Texture))
			if !ok {
				return nil, fmt.Errorf("%w: texture %d", ErrUnknownHandle, b.Texture)
			}
			entry.Resource = gputypes.TextureViewBinding{TextureView: tex.view.NativeHandle()}
		case rhi.BoundSampler:
			smp, ok := d.samplers.Resolve(uint64(b.Sampler))
			if !ok {
				return nil, fmt.Errorf("%w: sampler %d", ErrUnknownHandle, b.Sampler)
			}
			entry.Resource = gputypes.SamplerBinding{Sampler: smp.NativeHandle()}
		case rhi.BoundCombinedTextureSampler:
			return nil, fmt.Errorf("%w: binding %d", ErrCombinedSamplerUnsupported, slots[i].Slot)
		case rhi.BoundAccelerationStructure:
			return nil, fmt.Errorf("%w: binding %d", ErrAccelStructUnsupported, slots[i].Slot)
		case rhi.BoundSampledTextureArray, rhi.BoundStorageTextureArray:
			return nil, fmt.Errorf("webgpu: texture arrays are not supported at binding %d", slots[i].Slot)
		default:
			return nil, fmt.Errorf("webgpu: binding %d has unknown resource kind %v", slots[i].Slot, b.Kind)
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

// convertLoadOp maps an rhi load op to gputypes.
func convertLoadOp(op rhi.LoadOp) gputypes.LoadOp {
	if op == rhi.LoadOpLoad {
		return gputypes.LoadOpLoad
	}
	// DontCare has no HAL equivalent; clearing is the closest defined
	// behavior.
	return gputypes.LoadOpClear
}

// convertStoreOp maps an rhi store op to gputypes.
func convertStoreOp(op rhi.StoreOp) gputypes.StoreOp {
	if op == rhi.StoreOpStore {
		return gputypes.StoreOpStore
	}
	return gputypes.StoreOpDiscard
}

// layoutUsage maps a texture layout to the HAL usage state that
// TransitionTextures transitions between. LayoutUndefined maps to zero,
// which the HAL treats as "no prior contents".
func layoutUsage(l rhi.TextureLayout) gputypes.TextureUsage {
	switch l {
	case rhi.LayoutSampled:
		return gputypes.TextureUsageTextureBinding
	case rhi.LayoutStorage, rhi.LayoutGeneral:
		return gputypes.TextureUsageStorageBinding
	case rhi.LayoutRenderTarget, rhi.LayoutDepthRead, rhi.LayoutDepthWrite, rhi.LayoutPresent:
		return gputypes.TextureUsageRenderAttachment
	case rhi.LayoutCopySrc, rhi.LayoutResolveSrc:
		return gputypes.TextureUsageCopySrc
	case rhi.LayoutCopyDst, rhi.LayoutResolveDst:
		return gputypes.TextureUsageCopyDst
	default:
		return 0
	}
}
