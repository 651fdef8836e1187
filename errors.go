package rhi

import "errors"

// Recoverable device-limit and capacity errors. Callers are expected to
// degrade (fewer dynamic buffers, smaller push-constant block) and retry.
var (
	// ErrPushConstantRange is returned when the merged push-constant block
	// of a pipeline exceeds the device's push-constant budget.
	ErrPushConstantRange = errors.New("rhi: push constant block exceeds device limit")

	// ErrDynamicBufferLimit is returned when promoting a buffer binding to
	// dynamic-offset form would exceed the device's dynamic buffer budget.
	// Layout building never returns this; promotion simply stops. It is
	// surfaced only when a caller explicitly requests a dynamic slot.
	ErrDynamicBufferLimit = errors.New("rhi: dynamic buffer count exceeds device limit")

	// ErrArrayCountMismatch is returned when a bound resource array's length
	// does not match the descriptor count declared by the set layout.
	ErrArrayCountMismatch = errors.New("rhi: resource array length does not match layout count")

	// ErrBindlessUnsupported is returned when a pipeline requests the
	// bindless texture set on a device whose bindless capacity is zero.
	ErrBindlessUnsupported = errors.New("rhi: device does not support bindless descriptors")

	// ErrPoolExhausted is returned by a Driver when a bind-group pool has no
	// capacity left for an allocation. The bind-group cache treats it as a
	// signal to grow the pool list and retry; it should not normally escape
	// to callers.
	ErrPoolExhausted = errors.New("rhi: bind group pool exhausted")

	// ErrDeviceLost is returned when the underlying device has been lost and
	// no further GPU work can be recorded or submitted.
	ErrDeviceLost = errors.New("rhi: device lost")
)

// Validation errors for externally supplied data.
var (
	// ErrUnknownQueue is returned when a queue-ownership transfer names a
	// queue type the device was not created with.
	ErrUnknownQueue = errors.New("rhi: unknown queue type")

	// ErrStaleResource is returned when a handle refers to a resource that
	// has been unregistered, or to a recycled slot of a different generation.
	ErrStaleResource = errors.New("rhi: stale or unregistered resource handle")
)
