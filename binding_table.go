package rhi

import (
	"fmt"
	"math/bits"
)

// BindingTable is the CPU-side shadow of the descriptor sets a command
// buffer has bound. It holds one [BoundResource] per (frequency, slot) and a
// per-frequency bitmask of slots changed since the last flush.
//
// Binding an identical resource is a no-op and leaves the dirty mask
// untouched, so redundant per-draw rebinds cost one comparison.
type BindingTable struct {
	slots [NonBindlessSetCount][PerSetBindings]BoundResource
	dirty [NonBindlessSetCount]uint16
}

// Bind stores a resource in a slot and reports whether the slot content
// changed. Frequency and slot indices outside the table are programmer
// errors and panic.
func (t *BindingTable) Bind(freq BindingFrequency, slot uint32, res BoundResource) bool {
	if freq >= NonBindlessSetCount {
		panic(fmt.Sprintf("rhi: bind to frequency %v: only per-draw, per-material and per-frame slots go through the binding table", freq))
	}
	if slot >= PerSetBindings {
		panic(fmt.Sprintf("rhi: bind to slot %d: slot indices are 0..%d", slot, PerSetBindings-1))
	}
	cur := &t.slots[freq][slot]
	if cur.Equal(&res) {
		return false
	}
	*cur = res
	t.dirty[freq] |= 1 << slot
	return true
}

// Get returns the resource currently stored in a slot. The returned pointer
// is valid until the next Bind or Reset.
func (t *BindingTable) Get(freq BindingFrequency, slot uint32) *BoundResource {
	return &t.slots[freq][slot]
}

// Dirty returns the bitmask of slots changed at a frequency since the last
// Acknowledge.
func (t *BindingTable) Dirty(freq BindingFrequency) uint16 { return t.dirty[freq] }

// DirtyCount returns the number of dirty slots at a frequency.
func (t *BindingTable) DirtyCount(freq BindingFrequency) int {
	return bits.OnesCount16(t.dirty[freq])
}

// AnyDirty reports whether any slot at any frequency is dirty.
func (t *BindingTable) AnyDirty() bool {
	for _, m := range t.dirty {
		if m != 0 {
			return true
		}
	}
	return false
}

// Acknowledge clears the dirty mask for a frequency after its descriptor set
// has been flushed.
func (t *BindingTable) Acknowledge(freq BindingFrequency) { t.dirty[freq] = 0 }

// MarkAllDirty flags every slot at every frequency as dirty, forcing the
// next flush to re-resolve all sets. Called when the pipeline layout changes
// or a new descriptor stream begins.
func (t *BindingTable) MarkAllDirty() {
	for i := range t.dirty {
		t.dirty[i] = 1<<PerSetBindings - 1
	}
}

// Reset clears all slots and marks everything dirty.
func (t *BindingTable) Reset() {
	for i := range t.slots {
		for j := range t.slots[i] {
			t.slots[i][j] = BoundResource{}
		}
	}
	t.MarkAllDirty()
}
