// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package shader defines the reflection metadata exchanged between shader
// compilers and the rhi core.
//
// A compiler (or an offline pipeline) produces one Metadata value per
// compiled stage. The rhi pipeline-layout builder consumes these to derive
// descriptor-set layouts and push-constant ranges. Field meaning is
// bit-exact: Set and Slot must match the numbering baked into the compiled
// bytecode, or the resulting native layout will not line up with the shader.
package shader

import (
	"errors"
	"fmt"
)

// Validation errors.
var (
	// ErrSetOutOfRange is returned when a binding names a set index outside
	// the supported range.
	ErrSetOutOfRange = errors.New("shader: binding set index out of range")

	// ErrSlotOutOfRange is returned when a binding names a slot index outside
	// the per-set table.
	ErrSlotOutOfRange = errors.New("shader: binding slot index out of range")

	// ErrZeroArrayCount is returned when a binding declares an array of zero
	// elements.
	ErrZeroArrayCount = errors.New("shader: binding array count must be >= 1")

	// ErrDuplicateBinding is returned when two bindings in one stage share a
	// (set, slot) pair.
	ErrDuplicateBinding = errors.New("shader: duplicate (set, slot) binding")
)

// SetCount is the number of descriptor sets addressable by a stage,
// including the bindless set.
const SetCount = 4

// PerSetBindings is the number of slots in each descriptor set.
const PerSetBindings = 16

// Stage identifies a single programmable pipeline stage.
type Stage uint8

// Pipeline stages.
const (
	// StageVertex is the vertex shader stage.
	StageVertex Stage = iota

	// StageFragment is the fragment shader stage.
	StageFragment

	// StageCompute is the compute shader stage.
	StageCompute
)

// String returns a human-readable stage name.
func (s Stage) String() string {
	switch s {
	case StageVertex:
		return "vertex"
	case StageFragment:
		return "fragment"
	case StageCompute:
		return "compute"
	default:
		return fmt.Sprintf("stage(%d)", uint8(s))
	}
}

// Mask returns the single-bit stage mask for this stage.
func (s Stage) Mask() StageMask {
	return StageMask(1) << s
}

// StageMask is a bitmask of pipeline stages a binding is visible to.
type StageMask uint8

// Stage visibility masks.
const (
	// StageMaskVertex marks a binding visible to the vertex stage.
	StageMaskVertex StageMask = 1 << StageVertex

	// StageMaskFragment marks a binding visible to the fragment stage.
	StageMaskFragment StageMask = 1 << StageFragment

	// StageMaskCompute marks a binding visible to the compute stage.
	StageMaskCompute StageMask = 1 << StageCompute
)

// Has reports whether the mask includes the given stage.
func (m StageMask) Has(s Stage) bool {
	return m&s.Mask() != 0
}

// ResourceType classifies a declared shader resource binding.
type ResourceType uint8

// Resource types.
const (
	// ResourceUniformBuffer is a read-only constant buffer.
	ResourceUniformBuffer ResourceType = iota + 1

	// ResourceStorageBuffer is a read-write (or read-only) storage buffer.
	ResourceStorageBuffer

	// ResourceSampledTexture is a texture view read through a separate sampler.
	ResourceSampledTexture

	// ResourceStorageTexture is a texture view with shader image load/store.
	ResourceStorageTexture

	// ResourceCombinedTextureSampler is a texture paired with its sampler in
	// one slot (the GL/Metal style combined binding).
	ResourceCombinedTextureSampler

	// ResourceSampler is a standalone sampler.
	ResourceSampler

	// ResourceAccelerationStructure is a ray-tracing acceleration structure.
	ResourceAccelerationStructure
)

// String returns a human-readable resource type name.
func (t ResourceType) String() string {
	switch t {
	case ResourceUniformBuffer:
		return "uniform-buffer"
	case ResourceStorageBuffer:
		return "storage-buffer"
	case ResourceSampledTexture:
		return "sampled-texture"
	case ResourceStorageTexture:
		return "storage-texture"
	case ResourceCombinedTextureSampler:
		return "combined-texture-sampler"
	case ResourceSampler:
		return "sampler"
	case ResourceAccelerationStructure:
		return "acceleration-structure"
	default:
		return fmt.Sprintf("resource(%d)", uint8(t))
	}
}

// IsBuffer reports whether the type is a buffer binding.
func (t ResourceType) IsBuffer() bool {
	return t == ResourceUniformBuffer || t == ResourceStorageBuffer
}

// Binding is one declared resource binding in a compiled stage.
type Binding struct {
	// Set is the descriptor set index (binding frequency ordinal).
	Set uint32

	// Slot is the binding index within the set.
	Slot uint32

	// Type is the declared resource type.
	Type ResourceType

	// Count is the array size; 1 for non-array bindings.
	Count uint32

	// Writable reports whether the stage writes through this binding.
	Writable bool

	// Name is the source-level identifier. Debug only; not part of layout
	// identity.
	Name string
}

// Metadata describes everything the layout builder needs to know about one
// compiled shader stage.
type Metadata struct {
	// Stage is the pipeline stage this metadata describes.
	Stage Stage

	// Bindings lists every resource binding the stage declares, in no
	// particular order.
	Bindings []Binding

	// PushConstantSize is the size in bytes of the stage's push-constant
	// block, or 0 if the stage declares none.
	PushConstantSize uint32

	// UsesBindless reports whether the stage indexes the global bindless
	// texture array.
	UsesBindless bool
}

// Validate checks the metadata against the addressable set/slot ranges.
// It returns the first violation found.
func (m *Metadata) Validate() error {
	type key struct{ set, slot uint32 }
	seen := make(map[key]struct{}, len(m.Bindings))
	for _, b := range m.Bindings {
		if b.Set >= SetCount {
			return fmt.Errorf("%w: set %d (stage %s)", ErrSetOutOfRange, b.Set, m.Stage)
		}
		if b.Slot >= PerSetBindings {
			return fmt.Errorf("%w: slot %d (stage %s)", ErrSlotOutOfRange, b.Slot, m.Stage)
		}
		if b.Count == 0 {
			return fmt.Errorf("%w: set %d slot %d (stage %s)", ErrZeroArrayCount, b.Set, b.Slot, m.Stage)
		}
		k := key{b.Set, b.Slot}
		if _, dup := seen[k]; dup {
			return fmt.Errorf("%w: set %d slot %d (stage %s)", ErrDuplicateBinding, b.Set, b.Slot, m.Stage)
		}
		seen[k] = struct{}{}
	}
	return nil
}
