package rhi

// BindGroup is one allocated descriptor set together with the content
// snapshot it was written with. The snapshot is what the cache compares
// against to find a reusable group for the current table content.
type BindGroup struct {
	native    BindGroupID
	layout    *DescriptorSetLayout
	pool      BindGroupPoolID
	transient bool

	// bindings holds one entry per layout slot, in layout slot order.
	// For dynamic-offset slots the stored offset is not significant.
	bindings []BoundResource

	lastUsedFrame uint64
}

// NativeID returns the driver bind group handle.
func (g *BindGroup) NativeID() BindGroupID { return g.native }

// Layout returns the interned layout the group was allocated for.
func (g *BindGroup) Layout() *DescriptorSetLayout { return g.layout }

// matches reports whether the group can represent the resolved bindings.
// Layouts are interned, so identity comparison suffices; content compares
// per slot, ignoring offsets on dynamic slots.
func (g *BindGroup) matches(layout *DescriptorSetLayout, resolved []BoundResource) bool {
	if g.layout != layout || len(g.bindings) != len(resolved) {
		return false
	}
	slots := layout.Slots()
	for i := range resolved {
		if !g.bindings[i].Matches(&resolved[i], slots[i].DynamicOffset) {
			return false
		}
	}
	return true
}

// BindGroupBinding is the result of flushing one frequency: the descriptor
// set to bind plus the dynamic offsets to bind it with, in layout slot
// order.
type BindGroupBinding struct {
	Group          *BindGroup
	DynamicOffsets []uint32
}
