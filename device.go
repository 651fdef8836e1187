package rhi

import (
	"sync"
	"sync/atomic"
)

// Device wraps a [Driver] with the shared, device-lifetime state: the
// interning caches for descriptor set layouts and pipeline layouts. All
// methods are safe for concurrent use.
type Device struct {
	driver Driver
	limits DeviceLimits
	queues map[QueueType]bool

	mu              sync.RWMutex
	setLayouts      map[string]*DescriptorSetLayout
	pipelineLayouts map[string]*PipelineLayout

	layoutHits   atomic.Uint64
	layoutMisses atomic.Uint64
}

// NewDevice creates a Device on top of a driver.
func NewDevice(driver Driver) *Device {
	queues := make(map[QueueType]bool)
	for _, q := range driver.Queues() {
		queues[q] = true
	}
	// The universal queue always exists.
	queues[QueueGraphics] = true
	d := &Device{
		driver:          driver,
		limits:          driver.Limits(),
		queues:          queues,
		setLayouts:      make(map[string]*DescriptorSetLayout),
		pipelineLayouts: make(map[string]*PipelineLayout),
	}
	Logger().Info("rhi: device created", "driver", driver.Name())
	return d
}

// Driver returns the underlying backend driver.
func (d *Device) Driver() Driver { return d.driver }

// Limits returns the device capabilities captured at creation.
func (d *Device) Limits() DeviceLimits { return d.limits }

// HasQueue reports whether the device was created with the given queue type.
func (d *Device) HasQueue(q QueueType) bool { return d.queues[q] }

// SetLayout interns a descriptor set layout. Structurally identical slot
// lists return the same *DescriptorSetLayout instance, so compatibility
// checks elsewhere are pointer comparisons.
//
// The slots slice must be sorted by ascending slot index; it is retained by
// the returned layout on a cache miss.
func (d *Device) SetLayout(slots []LayoutSlot) (*DescriptorSetLayout, error) {
	if len(slots) == 0 {
		return nil, nil
	}
	key := setLayoutKey(slots)

	d.mu.RLock()
	layout, ok := d.setLayouts[key]
	d.mu.RUnlock()
	if ok {
		d.layoutHits.Add(1)
		return layout, nil
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	// Double-check: another goroutine may have created it while we
	// were waiting for the write lock.
	if layout, ok := d.setLayouts[key]; ok {
		d.layoutHits.Add(1)
		return layout, nil
	}

	native, err := d.driver.CreateBindGroupLayout(slots)
	if err != nil {
		return nil, err
	}
	layout = newDescriptorSetLayout(slots, native, key)
	d.setLayouts[key] = layout
	d.layoutMisses.Add(1)
	Logger().Debug("rhi: set layout created", "slots", len(slots), "cached", len(d.setLayouts))
	return layout, nil
}

// pipelineLayout interns a pipeline layout over already-interned set layouts.
func (d *Device) pipelineLayout(sets [SetCount]*DescriptorSetLayout, push []PushConstantRange, pushSize uint32) (*PipelineLayout, error) {
	key := pipelineLayoutKey(sets, push)

	d.mu.RLock()
	layout, ok := d.pipelineLayouts[key]
	d.mu.RUnlock()
	if ok {
		d.layoutHits.Add(1)
		return layout, nil
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if layout, ok := d.pipelineLayouts[key]; ok {
		d.layoutHits.Add(1)
		return layout, nil
	}

	var nativeSets [SetCount]BindGroupLayoutID
	for i, s := range sets {
		nativeSets[i] = s.NativeID()
	}
	native, err := d.driver.CreatePipelineLayout(nativeSets, push)
	if err != nil {
		return nil, err
	}
	layout = &PipelineLayout{
		sets:             sets,
		push:             push,
		pushConstantSize: pushSize,
		native:           native,
		key:              key,
	}
	d.pipelineLayouts[key] = layout
	d.layoutMisses.Add(1)
	return layout, nil
}

// LayoutCacheStats reports interning cache hits and misses for both layout
// caches combined.
func (d *Device) LayoutCacheStats() (hits, misses uint64) {
	return d.layoutHits.Load(), d.layoutMisses.Load()
}

// Destroy releases every interned layout. The device must not be used
// afterwards; in-flight GPU work referencing the layouts must have completed.
func (d *Device) Destroy() {
	d.mu.Lock()
	defer d.mu.Unlock()
	for key, l := range d.pipelineLayouts {
		d.driver.DestroyPipelineLayout(l.native)
		delete(d.pipelineLayouts, key)
	}
	for key, l := range d.setLayouts {
		d.driver.DestroyBindGroupLayout(l.native)
		delete(d.setLayouts, key)
	}
}
