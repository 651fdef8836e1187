package webgpu

import "errors"

var (
	// ErrNoDevice is returned when Options carry neither a device nor a
	// provider that exposes one.
	ErrNoDevice = errors.New("webgpu: no hal device supplied")

	// ErrBadProvider is returned when the configured provider does not
	// expose hal.Device and hal.Queue values.
	ErrBadProvider = errors.New("webgpu: provider does not expose HAL types")

	// ErrSecondaryUnsupported is returned from CreateCommandBuffer: WebGPU
	// has no secondary command buffer concept.
	ErrSecondaryUnsupported = errors.New("webgpu: secondary command buffers are not supported")

	// ErrCombinedSamplerUnsupported is returned when a layout declares a
	// combined texture-sampler slot. WebGPU separates textures and samplers.
	ErrCombinedSamplerUnsupported = errors.New("webgpu: combined texture-sampler bindings are not supported")

	// ErrAccelStructUnsupported is returned when a layout declares an
	// acceleration-structure slot.
	ErrAccelStructUnsupported = errors.New("webgpu: acceleration structures are not supported")

	// ErrUnknownHandle is returned when an ID does not resolve to a
	// registered object.
	ErrUnknownHandle = errors.New("webgpu: unknown handle")

	// ErrFenceTimeout is returned when a fence wait exceeds the driver
	// timeout.
	ErrFenceTimeout = errors.New("webgpu: fence wait timed out")

	// ErrNotEncoded is returned from Submit when the command buffer has not
	// been finished.
	ErrNotEncoded = errors.New("webgpu: command buffer has not finished encoding")
)
