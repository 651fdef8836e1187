package rhi

import "sync"

// Registry maps opaque handles to externally owned native objects. Backends
// use one per resource class to translate the IDs flowing through the core
// back into their own object types.
//
// Handles pack a slot index in the low 32 bits (offset by one so the zero
// handle is never valid) and a generation in the high 32 bits. Unregistering
// bumps the slot's generation, so handles to recycled slots resolve to
// nothing instead of to the new occupant.
//
// All methods are safe for concurrent use.
type Registry[T any] struct {
	mu    sync.RWMutex
	slots []registrySlot[T]
	free  []uint32
}

type registrySlot[T any] struct {
	value      T
	generation uint32
	live       bool
}

// Register stores a value and returns its handle.
func (r *Registry[T]) Register(v T) uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()

	var index uint32
	if n := len(r.free); n > 0 {
		index = r.free[n-1]
		r.free = r.free[:n-1]
	} else {
		r.slots = append(r.slots, registrySlot[T]{})
		index = uint32(len(r.slots) - 1)
	}
	slot := &r.slots[index]
	slot.value = v
	slot.live = true
	return makeHandle(index, slot.generation)
}

// Resolve returns the value for a handle. It reports false for the zero
// handle, for unregistered handles, and for handles whose slot has been
// recycled.
func (r *Registry[T]) Resolve(h uint64) (T, bool) {
	index, generation, ok := splitHandle(h)
	var zero T
	if !ok {
		return zero, false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	if index >= uint32(len(r.slots)) {
		return zero, false
	}
	slot := &r.slots[index]
	if !slot.live || slot.generation != generation {
		return zero, false
	}
	return slot.value, true
}

// Unregister removes a handle's value and invalidates the handle. It
// reports whether the handle was live.
func (r *Registry[T]) Unregister(h uint64) bool {
	index, generation, ok := splitHandle(h)
	if !ok {
		return false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if index >= uint32(len(r.slots)) {
		return false
	}
	slot := &r.slots[index]
	if !slot.live || slot.generation != generation {
		return false
	}
	var zero T
	slot.value = zero
	slot.live = false
	slot.generation++
	r.free = append(r.free, index)
	return true
}

// Len returns the number of live entries.
func (r *Registry[T]) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.slots) - len(r.free)
}

func makeHandle(index, generation uint32) uint64 {
	return uint64(generation)<<32 | uint64(index+1)
}

func splitHandle(h uint64) (index, generation uint32, ok bool) {
	low := uint32(h)
	if low == 0 {
		return 0, 0, false
	}
	return low - 1, uint32(h >> 32), true
}
