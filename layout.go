package rhi

import (
	"encoding/binary"

	"github.com/gogpu/rhi/shader"
)

// LayoutSlot is one binding slot of a descriptor set layout, produced by
// merging the per-stage declarations of a pipeline's shaders.
type LayoutSlot struct {
	// Slot is the binding index within the set.
	Slot uint32

	// Type is the merged resource type. All stages that declare the slot
	// must agree on it, except that a buffer type and its dynamic-offset
	// form count as the same declaration.
	Type shader.ResourceType

	// Count is the descriptor array length, 1 for non-arrays.
	Count uint32

	// Visibility is the union of the stages that declare the slot.
	Visibility shader.StageMask

	// DynamicOffset marks buffer slots whose offset is supplied at bind
	// time instead of being baked into the bind group.
	DynamicOffset bool

	// Writable marks storage slots any stage writes through.
	Writable bool
}

// DescriptorSetLayout describes the shape of one descriptor set. Layouts are
// interned per device: structurally identical layouts are the same instance,
// so bind-group compatibility checks reduce to pointer comparison.
type DescriptorSetLayout struct {
	slots  []LayoutSlot
	bySlot [PerSetBindings]int16
	native BindGroupLayoutID

	dynamicSlots int
	key          string
}

func newDescriptorSetLayout(slots []LayoutSlot, native BindGroupLayoutID, key string) *DescriptorSetLayout {
	l := &DescriptorSetLayout{
		slots:  slots,
		native: native,
		key:    key,
	}
	for i := range l.bySlot {
		l.bySlot[i] = -1
	}
	for i := range slots {
		l.bySlot[slots[i].Slot] = int16(i)
		if slots[i].DynamicOffset {
			l.dynamicSlots++
		}
	}
	return l
}

// Empty reports whether the layout has no slots.
func (l *DescriptorSetLayout) Empty() bool { return l == nil || len(l.slots) == 0 }

// Slots returns the layout's slots in ascending slot order. The returned
// slice must not be modified.
func (l *DescriptorSetLayout) Slots() []LayoutSlot {
	if l == nil {
		return nil
	}
	return l.slots
}

// Slot returns the layout entry for a binding index, or nil when the slot is
// not declared.
func (l *DescriptorSetLayout) Slot(index uint32) *LayoutSlot {
	if l == nil || index >= PerSetBindings || l.bySlot[index] < 0 {
		return nil
	}
	return &l.slots[l.bySlot[index]]
}

// DynamicSlotCount returns the number of dynamic-offset slots.
func (l *DescriptorSetLayout) DynamicSlotCount() int {
	if l == nil {
		return 0
	}
	return l.dynamicSlots
}

// NativeID returns the driver layout handle.
func (l *DescriptorSetLayout) NativeID() BindGroupLayoutID {
	if l == nil {
		return InvalidID
	}
	return l.native
}

// PushConstantRange is one stage's slice of the pipeline's push-constant
// block.
type PushConstantRange struct {
	Stages shader.StageMask
	Offset uint32
	Size   uint32
}

// PipelineLayout is the merged binding interface of one pipeline: up to
// SetCount interned set layouts plus the push-constant ranges. Pipeline
// layouts are interned per device like set layouts.
type PipelineLayout struct {
	sets             [SetCount]*DescriptorSetLayout
	push             []PushConstantRange
	pushConstantSize uint32
	native           PipelineLayoutID
	key              string
}

// SetLayout returns the interned layout for a set index, or nil when the
// pipeline uses no bindings at that index.
func (l *PipelineLayout) SetLayout(set BindingFrequency) *DescriptorSetLayout {
	if l == nil || int(set) >= SetCount {
		return nil
	}
	return l.sets[set]
}

// PushConstantRanges returns the per-stage push-constant ranges.
func (l *PipelineLayout) PushConstantRanges() []PushConstantRange { return l.push }

// PushConstantSize returns the size in bytes of the merged push-constant
// block, zero when the pipeline uses none.
func (l *PipelineLayout) PushConstantSize() uint32 { return l.pushConstantSize }

// NativeID returns the driver pipeline layout handle.
func (l *PipelineLayout) NativeID() PipelineLayoutID {
	if l == nil {
		return InvalidID
	}
	return l.native
}

// setLayoutKey builds the canonical interning key for a slot list. The key
// encodes every field that affects descriptor compatibility, so two layouts
// share a key exactly when they are structurally identical.
func setLayoutKey(slots []LayoutSlot) string {
	buf := make([]byte, 0, len(slots)*12)
	for i := range slots {
		s := &slots[i]
		buf = binary.LittleEndian.AppendUint32(buf, s.Slot)
		buf = binary.LittleEndian.AppendUint32(buf, s.Count)
		buf = append(buf, byte(s.Type), byte(s.Visibility))
		var flags byte
		if s.DynamicOffset {
			flags |= 1
		}
		if s.Writable {
			flags |= 2
		}
		buf = append(buf, flags)
	}
	return string(buf)
}

// pipelineLayoutKey builds the interning key for a pipeline layout from its
// already-interned set layouts and push-constant ranges.
func pipelineLayoutKey(sets [SetCount]*DescriptorSetLayout, push []PushConstantRange) string {
	buf := make([]byte, 0, 64)
	for _, s := range sets {
		if s == nil {
			buf = append(buf, 0)
			continue
		}
		buf = append(buf, 1)
		buf = binary.LittleEndian.AppendUint32(buf, uint32(len(s.key)))
		buf = append(buf, s.key...)
	}
	for _, r := range push {
		buf = append(buf, byte(r.Stages))
		buf = binary.LittleEndian.AppendUint32(buf, r.Offset)
		buf = binary.LittleEndian.AppendUint32(buf, r.Size)
	}
	return string(buf)
}
