package rhi

import (
	"fmt"
	"sort"

	"github.com/gogpu/rhi/shader"
)

// BuildPipelineLayout merges the reflection metadata of a pipeline's shader
// stages into an interned [PipelineLayout].
//
// Merging is deterministic: stages are processed in a fixed order (vertex,
// fragment, compute), and slots are promoted to dynamic-offset form greedily
// in ascending (set, slot) order while the device's dynamic buffer budgets
// allow. The same stage set therefore always produces the same layout
// instance.
//
// Stages that declare the same (set, slot) must agree on the resource type
// and array count; a mismatch is a programmer error and panics. The merged
// push-constant block is validated against the device budget and returns
// ErrPushConstantRange when exceeded.
func (d *Device) BuildPipelineLayout(stages ...*shader.Metadata) (*PipelineLayout, error) {
	ordered := make([]*shader.Metadata, 0, len(stages))
	for _, m := range stages {
		if m != nil {
			ordered = append(ordered, m)
		}
	}
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].Stage < ordered[j].Stage })

	var merged [SetCount][PerSetBindings]mergeSlot
	usesBindless := false
	var pushSize uint32
	var push []PushConstantRange

	for _, m := range ordered {
		for i := range m.Bindings {
			b := &m.Bindings[i]
			mergeBinding(&merged[b.Set][b.Slot], m.Stage, b)
		}
		if m.PushConstantSize > 0 {
			// Stage blocks pack back to back, so one upload of the whole
			// merged block feeds every stage its own slice.
			push = append(push, PushConstantRange{
				Stages: m.Stage.Mask(),
				Offset: pushSize,
				Size:   m.PushConstantSize,
			})
			pushSize += m.PushConstantSize
		}
		usesBindless = usesBindless || m.UsesBindless
	}

	if pushSize > d.limits.MaxPushConstantSize {
		return nil, fmt.Errorf("%w: %d bytes, limit %d", ErrPushConstantRange, pushSize, d.limits.MaxPushConstantSize)
	}

	d.promoteDynamicSlots(&merged)

	var sets [SetCount]*DescriptorSetLayout
	for set := 0; set < NonBindlessSetCount; set++ {
		slots := collectSlots(&merged[set])
		layout, err := d.SetLayout(slots)
		if err != nil {
			return nil, err
		}
		sets[set] = layout
	}
	if usesBindless {
		layout, err := d.bindlessSetLayout()
		if err != nil {
			return nil, err
		}
		sets[FrequencyBindless] = layout
	}

	return d.pipelineLayout(sets, push, pushSize)
}

// mergeSlot is the working state for one (set, slot) during a merge.
type mergeSlot struct {
	present    bool
	typ        shader.ResourceType
	count      uint32
	visibility shader.StageMask
	writable   bool
	dyn        bool
}

func mergeBinding(slot *mergeSlot, stage shader.Stage, b *shader.Binding) {
	if !slot.present {
		slot.present = true
		slot.typ = b.Type
		slot.count = b.Count
		slot.visibility = stage.Mask()
		slot.writable = b.Writable
		return
	}
	if slot.typ != b.Type {
		panic(fmt.Sprintf("rhi: shader stages disagree on set %d slot %d: %v vs %v (%s)",
			b.Set, b.Slot, slot.typ, b.Type, b.Name))
	}
	if slot.count != b.Count {
		panic(fmt.Sprintf("rhi: shader stages disagree on array count of set %d slot %d: %d vs %d (%s)",
			b.Set, b.Slot, slot.count, b.Count, b.Name))
	}
	slot.visibility |= stage.Mask()
	slot.writable = slot.writable || b.Writable
}

// promoteDynamicSlots walks the merged sets in ascending (set, slot) order
// and flags buffer slots for dynamic offsets while the per-type device
// budgets allow. Greedy promotion in a fixed order keeps the resulting
// layout, and therefore the interned instance, deterministic.
func (d *Device) promoteDynamicSlots(merged *[SetCount][PerSetBindings]mergeSlot) {
	var dynUniform, dynStorage uint32
	for set := 0; set < NonBindlessSetCount; set++ {
		for slot := range merged[set] {
			s := &merged[set][slot]
			if !s.present || s.count != 1 {
				continue
			}
			switch s.typ {
			case shader.ResourceUniformBuffer:
				if dynUniform < d.limits.MaxDynamicUniformBuffers {
					dynUniform++
					s.dyn = true
				}
			case shader.ResourceStorageBuffer:
				if dynStorage < d.limits.MaxDynamicStorageBuffers {
					dynStorage++
					s.dyn = true
				}
			}
		}
	}
}

func collectSlots(set *[PerSetBindings]mergeSlot) []LayoutSlot {
	var slots []LayoutSlot
	for i := range set {
		s := &set[i]
		if !s.present {
			continue
		}
		slots = append(slots, LayoutSlot{
			Slot:          uint32(i),
			Type:          s.typ,
			Count:         s.count,
			Visibility:    s.visibility,
			DynamicOffset: s.dyn,
			Writable:      s.writable,
		})
	}
	return slots
}

// bindlessSetLayout returns the interned layout of the reserved bindless
// texture set: a single runtime-sized sampled texture array.
func (d *Device) bindlessSetLayout() (*DescriptorSetLayout, error) {
	if d.limits.MaxBindlessDescriptors == 0 {
		return nil, ErrBindlessUnsupported
	}
	return d.SetLayout([]LayoutSlot{{
		Slot:       0,
		Type:       shader.ResourceSampledTexture,
		Count:      d.limits.MaxBindlessDescriptors,
		Visibility: shader.StageVertex.Mask() | shader.StageFragment.Mask() | shader.StageCompute.Mask(),
	}})
}
