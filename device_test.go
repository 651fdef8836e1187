package rhi

import (
	"sync"
	"testing"

	"github.com/gogpu/rhi/shader"
)

func TestDeviceSetLayoutInterning(t *testing.T) {
	drv := newMockDriver()
	device := NewDevice(drv)

	slots := []LayoutSlot{
		{Slot: 0, Type: shader.ResourceUniformBuffer, Count: 1, Visibility: shader.StageVertex.Mask()},
		{Slot: 1, Type: shader.ResourceSampledTexture, Count: 1, Visibility: shader.StageFragment.Mask()},
	}

	a, err := device.SetLayout(slots)
	if err != nil {
		t.Fatalf("SetLayout: %v", err)
	}
	b, err := device.SetLayout([]LayoutSlot{slots[0], slots[1]})
	if err != nil {
		t.Fatalf("SetLayout: %v", err)
	}
	if a != b {
		t.Error("structurally identical layouts must be the same instance")
	}
	if drv.layoutsCreated != 1 {
		t.Errorf("driver layouts created = %d, want 1", drv.layoutsCreated)
	}

	// Any field difference produces a distinct layout.
	changed := []LayoutSlot{slots[0], slots[1]}
	changed[1].Visibility |= shader.StageVertex.Mask()
	c, err := device.SetLayout(changed)
	if err != nil {
		t.Fatalf("SetLayout: %v", err)
	}
	if c == a {
		t.Error("layouts differing in visibility must be distinct instances")
	}

	hits, misses := device.LayoutCacheStats()
	if hits != 1 || misses != 2 {
		t.Errorf("stats = %d hits, %d misses, want 1, 2", hits, misses)
	}
}

func TestDeviceSetLayoutEmpty(t *testing.T) {
	device := NewDevice(newMockDriver())
	layout, err := device.SetLayout(nil)
	if err != nil {
		t.Fatalf("SetLayout: %v", err)
	}
	if !layout.Empty() {
		t.Error("nil slots must produce an empty layout")
	}
}

func TestDeviceSetLayoutConcurrent(t *testing.T) {
	drv := newMockDriver()
	device := NewDevice(drv)

	slots := []LayoutSlot{
		{Slot: 0, Type: shader.ResourceStorageBuffer, Count: 1, Visibility: shader.StageCompute.Mask()},
	}

	const workers = 16
	results := make([]*DescriptorSetLayout, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			l, err := device.SetLayout(slots)
			if err != nil {
				t.Errorf("SetLayout: %v", err)
				return
			}
			results[i] = l
		}(i)
	}
	wg.Wait()

	for i := 1; i < workers; i++ {
		if results[i] != results[0] {
			t.Fatal("concurrent interning must converge on one instance")
		}
	}
	if drv.layoutsCreated != 1 {
		t.Errorf("driver layouts created = %d, want 1", drv.layoutsCreated)
	}
}

func TestDeviceQueues(t *testing.T) {
	drv := newMockDriver()
	drv.queues = []QueueType{QueueGraphics}
	device := NewDevice(drv)

	if !device.HasQueue(QueueGraphics) {
		t.Error("graphics queue must always be present")
	}
	if device.HasQueue(QueueTransfer) {
		t.Error("transfer queue must be absent")
	}
}
