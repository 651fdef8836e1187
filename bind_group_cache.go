package rhi

import (
	"errors"
	"fmt"
)

// maxFramesUnused is how many frames a permanent bind group may go unused
// before the cache frees it back to its pool.
const maxFramesUnused = 16

// poolList is an ordered list of same-kind bind group pools. nextNonFull
// remembers where the last successful allocation happened so repeated
// allocations skip pools already known to be full.
type poolList struct {
	pools       []BindGroupPoolID
	nextNonFull int
}

// BindingManager owns the bind-group cache of one command buffer: the pools
// groups are allocated from, the content-addressed reuse caches, and the
// per-frequency record of what is currently bound.
//
// Groups resolved for per-draw bindings come from transient pools, which are
// bulk-reset every frame; per-material and per-frame groups come from
// permanent pools and survive until they go unused for [maxFramesUnused]
// frames.
//
// A BindingManager is owned by a single command buffer and is not safe for
// concurrent use.
type BindingManager struct {
	device *Device

	transientPools poolList
	permanentPools poolList

	// cache maps an interned layout to the live groups allocated for it.
	transientCache map[*DescriptorSetLayout][]*BindGroup
	permanentCache map[*DescriptorSetLayout][]*BindGroup

	// current is what was last flushed per frequency, used to skip both
	// allocation and rebinding when the table content is unchanged.
	current [NonBindlessSetCount]*BindGroupBinding

	// scratch avoids per-flush allocation when resolving table content.
	scratch []BoundResource
}

// NewBindingManager creates a manager with one transient and one permanent
// pool. Pool creation failure is fatal at this point in setup, so errors are
// returned rather than deferred.
func NewBindingManager(device *Device) (*BindingManager, error) {
	m := &BindingManager{
		device:         device,
		transientCache: make(map[*DescriptorSetLayout][]*BindGroup),
		permanentCache: make(map[*DescriptorSetLayout][]*BindGroup),
	}
	if err := m.growPool(&m.transientPools, true); err != nil {
		return nil, err
	}
	if err := m.growPool(&m.permanentPools, false); err != nil {
		m.Destroy()
		return nil, err
	}
	return m, nil
}

func (m *BindingManager) growPool(list *poolList, transient bool) error {
	id, err := m.device.driver.CreateBindGroupPool(transient)
	if err != nil {
		return err
	}
	list.pools = append(list.pools, id)
	if len(list.pools) > 1 {
		Logger().Debug("rhi: bind group pool grown", "transient", transient, "pools", len(list.pools))
	}
	return nil
}

// FinishSet resolves the table content of one frequency into a descriptor
// set, reusing a cached group when the content already has one. It returns
// nil when the layout is empty. The returned binding, including its offset
// slice, is valid until the next FinishSet for the same frequency.
func (m *BindingManager) FinishSet(frame uint64, freq BindingFrequency, layout *DescriptorSetLayout, table *BindingTable) (*BindGroupBinding, error) {
	if layout.Empty() {
		table.Acknowledge(freq)
		m.current[freq] = nil
		return nil, nil
	}

	dirty := table.Dirty(freq) != 0
	cur := m.current[freq]
	if !dirty && cur != nil && cur.Group.layout == layout {
		cur.Group.lastUsedFrame = frame
		return cur, nil
	}

	resolved, err := m.resolve(freq, layout, table)
	if err != nil {
		return nil, err
	}

	// The dirty bits only say slots were written, not that content really
	// changed since the group was built. Rebinding A, then B, then A again
	// still reuses the current group.
	if cur != nil && cur.Group.matches(layout, resolved) {
		binding := m.rebind(cur.Group, layout, resolved, frame, freq)
		table.Acknowledge(freq)
		return binding, nil
	}

	transient := freq == FrequencyPerDraw
	group, err := m.getOrCreate(frame, layout, resolved, transient)
	if err != nil {
		return nil, err
	}
	binding := m.rebind(group, layout, resolved, frame, freq)
	table.Acknowledge(freq)
	return binding, nil
}

// resolve gathers and validates the table content for every slot the layout
// declares. A missing binding or a kind that contradicts the layout is a
// programmer error and panics; an array length mismatch is reported as an
// error because array contents typically come from data.
func (m *BindingManager) resolve(freq BindingFrequency, layout *DescriptorSetLayout, table *BindingTable) ([]BoundResource, error) {
	slots := layout.Slots()
	m.scratch = m.scratch[:0]
	for i := range slots {
		s := &slots[i]
		res := table.Get(freq, s.Slot)
		if res.Kind == BoundNone {
			panic(fmt.Sprintf("rhi: %v slot %d required by pipeline but nothing bound", freq, s.Slot))
		}
		if !res.satisfies(s.Type) {
			panic(fmt.Sprintf("rhi: %v slot %d: bound %v where layout declares %v", freq, s.Slot, res.Kind, s.Type))
		}
		if res.arrayLen() != s.Count {
			return nil, fmt.Errorf("%w: %v slot %d has %d elements, layout declares %d",
				ErrArrayCountMismatch, freq, s.Slot, res.arrayLen(), s.Count)
		}
		m.scratch = append(m.scratch, *res)
	}
	return m.scratch, nil
}

// rebind records a group as current for the frequency and computes its
// dynamic offsets from the freshly resolved content.
func (m *BindingManager) rebind(group *BindGroup, layout *DescriptorSetLayout, resolved []BoundResource, frame uint64, freq BindingFrequency) *BindGroupBinding {
	group.lastUsedFrame = frame

	binding := m.current[freq]
	if binding == nil {
		binding = &BindGroupBinding{}
		m.current[freq] = binding
	}
	binding.Group = group
	binding.DynamicOffsets = binding.DynamicOffsets[:0]
	slots := layout.Slots()
	for i := range slots {
		if slots[i].DynamicOffset {
			binding.DynamicOffsets = append(binding.DynamicOffsets, uint32(resolved[i].Buffer.Offset))
		}
	}
	return binding
}

// getOrCreate returns a live group whose content matches resolved, scanning
// the partition's cache first and allocating a fresh group on a miss. Each
// distinct content has at most one live group per partition.
func (m *BindingManager) getOrCreate(frame uint64, layout *DescriptorSetLayout, resolved []BoundResource, transient bool) (*BindGroup, error) {
	cache := m.permanentCache
	if transient {
		cache = m.transientCache
	}
	for _, g := range cache[layout] {
		if g.matches(layout, resolved) {
			g.lastUsedFrame = frame
			return g, nil
		}
	}

	group, err := m.allocate(layout, resolved, transient)
	if err != nil {
		return nil, err
	}
	group.lastUsedFrame = frame
	cache[layout] = append(cache[layout], group)
	return group, nil
}

// allocate carves a new group out of the partition's pools, walking from the
// last pool known to have space and growing the pool list when every pool
// reports exhaustion.
func (m *BindingManager) allocate(layout *DescriptorSetLayout, resolved []BoundResource, transient bool) (*BindGroup, error) {
	list := &m.permanentPools
	if transient {
		list = &m.transientPools
	}

	grown := false
	for {
		for i := list.nextNonFull; i < len(list.pools); i++ {
			id, err := m.device.driver.AllocateBindGroup(list.pools[i], layout.NativeID(), layout.Slots(), resolved)
			if errors.Is(err, ErrPoolExhausted) {
				list.nextNonFull = i + 1
				continue
			}
			if err != nil {
				return nil, err
			}
			list.nextNonFull = i
			bindings := make([]BoundResource, len(resolved))
			copy(bindings, resolved)
			return &BindGroup{
				native:    id,
				layout:    layout,
				pool:      list.pools[i],
				transient: transient,
				bindings:  bindings,
			}, nil
		}
		if grown {
			return nil, ErrPoolExhausted
		}
		if err := m.growPool(list, transient); err != nil {
			return nil, err
		}
		list.nextNonFull = len(list.pools) - 1
		grown = true
	}
}

// Reset returns the manager to its start-of-frame state: the transient
// partition is dropped wholesale and its pools bulk-reset, stale permanent
// groups are freed, and the current bindings are forgotten.
func (m *BindingManager) Reset(frame uint64) {
	for layout := range m.transientCache {
		delete(m.transientCache, layout)
	}
	for _, id := range m.transientPools.pools {
		m.device.driver.ResetBindGroupPool(id)
	}
	m.transientPools.nextNonFull = 0

	m.pruneStale(frame)

	for i := range m.current {
		m.current[i] = nil
	}
}

// pruneStale frees permanent groups that have not been used for
// maxFramesUnused frames.
func (m *BindingManager) pruneStale(frame uint64) {
	if frame < maxFramesUnused {
		return
	}
	cutoff := frame - maxFramesUnused
	freed := 0
	for layout, groups := range m.permanentCache {
		kept := groups[:0]
		for _, g := range groups {
			if g.lastUsedFrame < cutoff {
				m.device.driver.FreeBindGroup(g.pool, g.native)
				freed++
				continue
			}
			kept = append(kept, g)
		}
		if len(kept) == 0 {
			delete(m.permanentCache, layout)
			continue
		}
		m.permanentCache[layout] = kept
	}
	if freed > 0 {
		Logger().Debug("rhi: stale bind groups freed", "count", freed, "frame", frame)
	}
}

// Destroy releases every pool, and with them every group the manager ever
// allocated. In-flight GPU work must have completed.
func (m *BindingManager) Destroy() {
	for _, id := range m.transientPools.pools {
		m.device.driver.DestroyBindGroupPool(id)
	}
	for _, id := range m.permanentPools.pools {
		m.device.driver.DestroyBindGroupPool(id)
	}
	m.transientPools = poolList{}
	m.permanentPools = poolList{}
	m.transientCache = nil
	m.permanentCache = nil
}
