package vulkan

import (
	vk "github.com/goki/vulkan"

	"github.com/gogpu/rhi"
	"github.com/gogpu/rhi/shader"
)

// convertStageMask maps shader stage visibility to Vulkan stage flags.
func convertStageMask(m shader.StageMask) vk.ShaderStageFlags {
	var out vk.ShaderStageFlags
	if m&shader.StageMaskVertex != 0 {
		out |= vk.ShaderStageFlags(vk.ShaderStageVertexBit)
	}
	if m&shader.StageMaskFragment != 0 {
		out |= vk.ShaderStageFlags(vk.ShaderStageFragmentBit)
	}
	if m&shader.StageMaskCompute != 0 {
		out |= vk.ShaderStageFlags(vk.ShaderStageComputeBit)
	}
	return out
}

// convertDescriptorType maps a layout slot to its Vulkan descriptor type.
// Acceleration structures need the ray-tracing extension, which the driver
// does not enable.
func convertDescriptorType(s *rhi.LayoutSlot) (vk.DescriptorType, error) {
	switch s.Type {
	case shader.ResourceUniformBuffer:
		if s.DynamicOffset {
			return vk.DescriptorTypeUniformBufferDynamic, nil
		}
		return vk.DescriptorTypeUniformBuffer, nil
	case shader.ResourceStorageBuffer:
		if s.DynamicOffset {
			return vk.DescriptorTypeStorageBufferDynamic, nil
		}
		return vk.DescriptorTypeStorageBuffer, nil
	case shader.ResourceSampledTexture:
		return vk.DescriptorTypeSampledImage, nil
	case shader.ResourceStorageTexture:
		return vk.DescriptorTypeStorageImage, nil
	case shader.ResourceCombinedTextureSampler:
		return vk.DescriptorTypeCombinedImageSampler, nil
	case shader.ResourceSampler:
		return vk.DescriptorTypeSampler, nil
	default:
		return 0, ErrAccelStructUnsupported
	}
}

// convertImageLayout maps a tracked texture layout to a Vulkan image layout.
func convertImageLayout(l rhi.TextureLayout) vk.ImageLayout {
	switch l {
	case rhi.LayoutUndefined:
		return vk.ImageLayoutUndefined
	case rhi.LayoutGeneral, rhi.LayoutStorage:
		return vk.ImageLayoutGeneral
	case rhi.LayoutSampled:
		return vk.ImageLayoutShaderReadOnlyOptimal
	case rhi.LayoutRenderTarget:
		return vk.ImageLayoutColorAttachmentOptimal
	case rhi.LayoutDepthRead:
		return vk.ImageLayoutDepthStencilReadOnlyOptimal
	case rhi.LayoutDepthWrite:
		return vk.ImageLayoutDepthStencilAttachmentOptimal
	case rhi.LayoutCopySrc, rhi.LayoutResolveSrc:
		return vk.ImageLayoutTransferSrcOptimal
	case rhi.LayoutCopyDst, rhi.LayoutResolveDst:
		return vk.ImageLayoutTransferDstOptimal
	case rhi.LayoutPresent:
		return vk.ImageLayoutPresentSrc
	default:
		return vk.ImageLayoutGeneral
	}
}

// convertSync maps barrier sync scopes to pipeline stage flags. An empty
// scope becomes top-of-pipe so the barrier stays valid.
func convertSync(s rhi.BarrierSync) vk.PipelineStageFlags {
	if s == rhi.SyncNone {
		return vk.PipelineStageFlags(vk.PipelineStageTopOfPipeBit)
	}
	var out vk.PipelineStageFlags
	if s&rhi.SyncIndirect != 0 {
		out |= vk.PipelineStageFlags(vk.PipelineStageDrawIndirectBit)
	}
	if s&(rhi.SyncIndexInput|rhi.SyncVertexInput) != 0 {
		out |= vk.PipelineStageFlags(vk.PipelineStageVertexInputBit)
	}
	if s&rhi.SyncVertexShader != 0 {
		out |= vk.PipelineStageFlags(vk.PipelineStageVertexShaderBit)
	}
	if s&rhi.SyncFragmentShader != 0 {
		out |= vk.PipelineStageFlags(vk.PipelineStageFragmentShaderBit)
	}
	if s&rhi.SyncEarlyDepth != 0 {
		out |= vk.PipelineStageFlags(vk.PipelineStageEarlyFragmentTestsBit)
	}
	if s&rhi.SyncLateDepth != 0 {
		out |= vk.PipelineStageFlags(vk.PipelineStageLateFragmentTestsBit)
	}
	if s&rhi.SyncRenderTarget != 0 {
		out |= vk.PipelineStageFlags(vk.PipelineStageColorAttachmentOutputBit)
	}
	if s&rhi.SyncComputeShader != 0 {
		out |= vk.PipelineStageFlags(vk.PipelineStageComputeShaderBit)
	}
	if s&(rhi.SyncCopy|rhi.SyncResolve) != 0 {
		out |= vk.PipelineStageFlags(vk.PipelineStageTransferBit)
	}
	if s&rhi.SyncHost != 0 {
		out |= vk.PipelineStageFlags(vk.PipelineStageHostBit)
	}
	// Acceleration-structure stages are not enabled; fold them into the
	// widest scope so the ordering still holds.
	if s&(rhi.SyncAccelStructBuild|rhi.SyncRayTracing) != 0 {
		out |= vk.PipelineStageFlags(vk.PipelineStageAllCommandsBit)
	}
	return out
}

// convertAccess maps barrier access classes to Vulkan access flags.
func convertAccess(a rhi.BarrierAccess) vk.AccessFlags {
	var out vk.AccessFlags
	if a&rhi.AccessIndirectRead != 0 {
		out |= vk.AccessFlags(vk.AccessIndirectCommandReadBit)
	}
	if a&rhi.AccessIndexRead != 0 {
		out |= vk.AccessFlags(vk.AccessIndexReadBit)
	}
	if a&rhi.AccessVertexInputRead != 0 {
		out |= vk.AccessFlags(vk.AccessVertexAttributeReadBit)
	}
	if a&rhi.AccessConstantRead != 0 {
		out |= vk.AccessFlags(vk.AccessUniformReadBit)
	}
	if a&(rhi.AccessSampledRead|rhi.AccessStorageRead) != 0 {
		out |= vk.AccessFlags(vk.AccessShaderReadBit)
	}
	if a&rhi.AccessStorageWrite != 0 {
		out |= vk.AccessFlags(vk.AccessShaderWriteBit)
	}
	if a&rhi.AccessRenderTargetRead != 0 {
		out |= vk.AccessFlags(vk.AccessColorAttachmentReadBit)
	}
	if a&rhi.AccessRenderTargetWrite != 0 {
		out |= vk.AccessFlags(vk.AccessColorAttachmentWriteBit)
	}
	if a&rhi.AccessDepthStencilRead != 0 {
		out |= vk.AccessFlags(vk.AccessDepthStencilAttachmentReadBit)
	}
	if a&rhi.AccessDepthStencilWrite != 0 {
		out |= vk.AccessFlags(vk.AccessDepthStencilAttachmentWriteBit)
	}
	if a&(rhi.AccessCopyRead|rhi.AccessResolveRead) != 0 {
		out |= vk.AccessFlags(vk.AccessTransferReadBit)
	}
	if a&(rhi.AccessCopyWrite|rhi.AccessResolveWrite) != 0 {
		out |= vk.AccessFlags(vk.AccessTransferWriteBit)
	}
	if a&rhi.AccessHostRead != 0 {
		out |= vk.AccessFlags(vk.AccessHostReadBit)
	}
	if a&rhi.AccessHostWrite != 0 {
		out |= vk.AccessFlags(vk.AccessHostWriteBit)
	}
	if a&rhi.AccessAccelStructRead != 0 {
		out |= vk.AccessFlags(vk.AccessMemoryReadBit)
	}
	if a&rhi.AccessAccelStructWrite != 0 {
		out |= vk.AccessFlags(vk.AccessMemoryWriteBit)
	}
	return out
}

// convertLoadOp maps a load op. Unlike WebGPU, Vulkan expresses DontCare
// directly.
func convertLoadOp(op rhi.LoadOp) vk.AttachmentLoadOp {
	switch op {
	case rhi.LoadOpLoad:
		return vk.AttachmentLoadOpLoad
	case rhi.LoadOpClear:
		return vk.AttachmentLoadOpClear
	default:
		return vk.AttachmentLoadOpDontCare
	}
}

func convertStoreOp(op rhi.StoreOp) vk.AttachmentStoreOp {
	if op == rhi.StoreOpStore {
		return vk.AttachmentStoreOpStore
	}
	return vk.AttachmentStoreOpDontCare
}

func convertIndexType(f rhi.IndexFormat) vk.IndexType {
	if f == rhi.IndexUint32 {
		return vk.IndexTypeUint32
	}
	return vk.IndexTypeUint16
}

// bufferImageCopy builds the Vulkan copy region for a buffer/texture
// transfer, resolving the tight-packing defaults.
func bufferImageCopy(aspect vk.ImageAspectFlags, region rhi.BufferTextureCopy) vk.BufferImageCopy {
	return vk.BufferImageCopy{
		BufferOffset:      vk.DeviceSize(region.BufferOffset),
		BufferRowLength:   region.RowLength,
		BufferImageHeight: region.ImageHeight,
		ImageSubresource: vk.ImageSubresourceLayers{
			AspectMask:     aspect,
			MipLevel:       region.MipLevel,
			BaseArrayLayer: region.ArrayLayer,
			LayerCount:     1,
		},
		ImageOffset: vk.Offset3D{
			X: int32(region.Origin[0]),
			Y: int32(region.Origin[1]),
			Z: int32(region.Origin[2]),
		},
		ImageExtent: vk.Extent3D{
			Width:  region.Extent[0],
			Height: region.Extent[1],
			Depth:  max(region.Extent[2], 1),
		},
	}
}
