package vulkan

import (
	"errors"
	"fmt"

	vk "github.com/goki/vulkan"
)

var (
	// ErrNoDevice is returned by New when no logical device was supplied.
	ErrNoDevice = errors.New("vulkan: no device in options")

	// ErrNoQueue is returned by New when no graphics queue was supplied.
	ErrNoQueue = errors.New("vulkan: no graphics queue in options")

	// ErrUnknownHandle is returned when a handle does not resolve to a live
	// registered object.
	ErrUnknownHandle = errors.New("vulkan: unknown handle")

	// ErrFenceTimeout is returned when a fence wait exceeds the driver
	// timeout.
	ErrFenceTimeout = errors.New("vulkan: fence wait timed out")

	// ErrNotEncoded is returned by Submit when the command buffer has not
	// been ended.
	ErrNotEncoded = errors.New("vulkan: command buffer not ended")

	// ErrAccelStructUnsupported is returned for acceleration-structure
	// bindings; the driver does not enable the ray-tracing extension.
	ErrAccelStructUnsupported = errors.New("vulkan: acceleration structures not enabled")
)

// vkError wraps a non-success VkResult into a Go error, nil on success.
func vkError(op string, res vk.Result) error {
	if res == vk.Success {
		return nil
	}
	return fmt.Errorf("vulkan: %s: %w", op, vk.Error(res))
}
