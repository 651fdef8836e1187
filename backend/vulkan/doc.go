// Package vulkan implements the rhi driver seam on goki/vulkan.
//
// The driver registers itself under the name "vulkan":
//
//	drv, err := rhi.NewDriver("vulkan", &vulkan.Options{
//		Device:              device,
//		Queue:               graphicsQueue,
//		GraphicsQueueFamily: gfxFamily,
//	})
//
// Unlike the webgpu backend, Vulkan supports the full command surface:
// push constants, secondary command buffers, indirect draws, blits and
// explicit buffer and global memory barriers all map directly.
//
// The driver does not own resource creation. Buffers, images, samplers and
// pipelines are created by the caller (or a higher allocation layer) and
// registered to obtain the opaque handles the recording machinery consumes.
// Descriptor set layouts, pipeline layouts, descriptor pools and descriptor
// sets are created by the driver itself, since the rhi core drives their
// lifecycle.
//
// Timeline fences are emulated over binary VkFences: every submission
// carries its own fence tagged with the timeline value, and waits retire
// pending fences in submission order.
package vulkan
