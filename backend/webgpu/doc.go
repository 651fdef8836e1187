// Package webgpu implements the rhi.Driver interface on top of the pure Go
// gogpu/wgpu HAL.
//
// The driver registers itself under the name "webgpu". Construct it through
// rhi.NewDriver with an [Options] value carrying an already-opened hal.Device
// and hal.Queue, or a provider that exposes them:
//
//	drv, err := rhi.NewDriver("webgpu", &webgpu.Options{
//		Device: device,
//		Queue:  queue,
//	})
//
// WebGPU has no push constants, no secondary command buffers, no combined
// image samplers and no ray tracing. The driver reports limits that steer the
// layout builder away from those features and returns errors when a caller
// requests them anyway; see the package errors for the exact surface.
//
// Resources are owned by the caller. Register hal buffers, textures and
// samplers with the driver to obtain the typed IDs the rhi core traffics in,
// and unregister them before destroying the underlying objects.
package webgpu
