package rhi

import (
	"errors"
	"testing"

	"github.com/gogpu/rhi/shader"
)

func testSetLayout(t *testing.T, device *Device, dynamic bool) *DescriptorSetLayout {
	t.Helper()
	layout, err := device.SetLayout([]LayoutSlot{
		{Slot: 0, Type: shader.ResourceUniformBuffer, Count: 1,
			Visibility: shader.StageVertex.Mask(), DynamicOffset: dynamic},
	})
	if err != nil {
		t.Fatalf("SetLayout: %v", err)
	}
	return layout
}

func testManager(t *testing.T, device *Device) *BindingManager {
	t.Helper()
	m, err := NewBindingManager(device)
	if err != nil {
		t.Fatalf("NewBindingManager: %v", err)
	}
	return m
}

func TestBindingManagerReusesGroupForSameContent(t *testing.T) {
	drv := newMockDriver()
	device := NewDevice(drv)
	layout := testSetLayout(t, device, false)
	m := testManager(t, device)

	var table BindingTable
	table.Bind(FrequencyPerDraw, 0, UniformBufferBinding(1, 0, 256))

	a, err := m.FinishSet(1, FrequencyPerDraw, layout, &table)
	if err != nil {
		t.Fatalf("FinishSet: %v", err)
	}
	if drv.allocated != 1 {
		t.Fatalf("allocated = %d, want 1", drv.allocated)
	}

	// Clean table: the hot path returns the current binding untouched.
	b, err := m.FinishSet(1, FrequencyPerDraw, layout, &table)
	if err != nil {
		t.Fatalf("FinishSet: %v", err)
	}
	if b != a || b.Group != a.Group {
		t.Error("clean table must reuse the current binding")
	}
	if drv.allocated != 1 {
		t.Errorf("allocated = %d, want 1", drv.allocated)
	}

	// New content allocates a second group.
	table.Bind(FrequencyPerDraw, 0, UniformBufferBinding(2, 0, 256))
	c, err := m.FinishSet(1, FrequencyPerDraw, layout, &table)
	if err != nil {
		t.Fatalf("FinishSet: %v", err)
	}
	if c.Group == a.Group {
		t.Error("different content must resolve to a different group")
	}
	if drv.allocated != 2 {
		t.Errorf("allocated = %d, want 2", drv.allocated)
	}

	// Rebinding the first content finds the cached group: one live group
	// per distinct content.
	table.Bind(FrequencyPerDraw, 0, UniformBufferBinding(1, 0, 256))
	d, err := m.FinishSet(1, FrequencyPerDraw, layout, &table)
	if err != nil {
		t.Fatalf("FinishSet: %v", err)
	}
	if d.Group.NativeID() != a.Group.NativeID() {
		t.Error("returning to earlier content must reuse its cached group")
	}
	if drv.allocated != 2 {
		t.Errorf("allocated = %d, want 2", drv.allocated)
	}
}

func TestBindingManagerDynamicOffsetStability(t *testing.T) {
	drv := newMockDriver()
	device := NewDevice(drv)
	layout := testSetLayout(t, device, true)
	m := testManager(t, device)

	var table BindingTable
	table.Bind(FrequencyPerDraw, 0, UniformBufferBinding(1, 0, 256))
	a, err := m.FinishSet(1, FrequencyPerDraw, layout, &table)
	if err != nil {
		t.Fatalf("FinishSet: %v", err)
	}
	if len(a.DynamicOffsets) != 1 || a.DynamicOffsets[0] != 0 {
		t.Fatalf("offsets = %v, want [0]", a.DynamicOffsets)
	}

	// Changing only the offset reuses the group and updates the offsets.
	table.Bind(FrequencyPerDraw, 0, UniformBufferBinding(1, 4096, 256))
	b, err := m.FinishSet(1, FrequencyPerDraw, layout, &table)
	if err != nil {
		t.Fatalf("FinishSet: %v", err)
	}
	if b.Group.NativeID() != a.Group.NativeID() {
		t.Error("an offset-only change must not allocate a new group")
	}
	if len(b.DynamicOffsets) != 1 || b.DynamicOffsets[0] != 4096 {
		t.Errorf("offsets = %v, want [4096]", b.DynamicOffsets)
	}
	if drv.allocated != 1 {
		t.Errorf("allocated = %d, want 1", drv.allocated)
	}

	// Changing the bound size is a real content change.
	table.Bind(FrequencyPerDraw, 0, UniformBufferBinding(1, 0, 512))
	c, err := m.FinishSet(1, FrequencyPerDraw, layout, &table)
	if err != nil {
		t.Fatalf("FinishSet: %v", err)
	}
	if c.Group.NativeID() == a.Group.NativeID() {
		t.Error("a size change must allocate a new group")
	}
}

func TestBindingManagerEmptyLayout(t *testing.T) {
	device := NewDevice(newMockDriver())
	m := testManager(t, device)

	var table BindingTable
	table.MarkAllDirty()
	binding, err := m.FinishSet(1, FrequencyPerFrame, nil, &table)
	if err != nil {
		t.Fatalf("FinishSet: %v", err)
	}
	if binding != nil {
		t.Error("empty layout must produce no binding")
	}
	if table.Dirty(FrequencyPerFrame) != 0 {
		t.Error("empty layout must still acknowledge the dirty mask")
	}
}

func TestBindingManagerPoolGrowth(t *testing.T) {
	drv := newMockDriver()
	drv.poolCapacity = 2
	device := NewDevice(drv)
	layout := testSetLayout(t, device, false)
	m := testManager(t, device)

	var table BindingTable
	for i := uint64(1); i <= 5; i++ {
		table.Bind(FrequencyPerDraw, 0, UniformBufferBinding(BufferID(i), 0, 256))
		if _, err := m.FinishSet(1, FrequencyPerDraw, layout, &table); err != nil {
			t.Fatalf("FinishSet %d: %v", i, err)
		}
	}

	if drv.allocated != 5 {
		t.Errorf("allocated = %d, want 5", drv.allocated)
	}
	// One transient and one permanent pool to start, plus growth to fit
	// five groups of capacity two.
	if got := len(drv.poolCounts); got < 4 {
		t.Errorf("pools = %d, want at least 4 after growth", got)
	}
}

func TestBindingManagerResetClearsTransient(t *testing.T) {
	drv := newMockDriver()
	device := NewDevice(drv)
	layout := testSetLayout(t, device, false)
	m := testManager(t, device)

	var table BindingTable
	table.Bind(FrequencyPerDraw, 0, UniformBufferBinding(1, 0, 256))
	if _, err := m.FinishSet(1, FrequencyPerDraw, layout, &table); err != nil {
		t.Fatalf("FinishSet: %v", err)
	}

	m.Reset(2)
	if drv.poolResets == 0 {
		t.Error("reset must bulk-reset the transient pools")
	}

	// The same content allocates again: the transient partition is gone.
	table.MarkAllDirty()
	if _, err := m.FinishSet(2, FrequencyPerDraw, layout, &table); err != nil {
		t.Fatalf("FinishSet: %v", err)
	}
	if drv.allocated != 2 {
		t.Errorf("allocated = %d, want 2", drv.allocated)
	}
}

func TestBindingManagerPermanentSurvivesReset(t *testing.T) {
	drv := newMockDriver()
	device := NewDevice(drv)
	layout := testSetLayout(t, device, false)
	m := testManager(t, device)

	var table BindingTable
	table.Bind(FrequencyPerFrame, 0, UniformBufferBinding(1, 0, 256))
	a, err := m.FinishSet(1, FrequencyPerFrame, layout, &table)
	if err != nil {
		t.Fatalf("FinishSet: %v", err)
	}

	m.Reset(2)
	table.MarkAllDirty()
	b, err := m.FinishSet(2, FrequencyPerFrame, layout, &table)
	if err != nil {
		t.Fatalf("FinishSet: %v", err)
	}
	if b.Group.NativeID() != a.Group.NativeID() {
		t.Error("per-frame groups live in the permanent partition and must survive a reset")
	}
	if drv.allocated != 1 {
		t.Errorf("allocated = %d, want 1", drv.allocated)
	}
}

func TestBindingManagerStalenessEviction(t *testing.T) {
	drv := newMockDriver()
	device := NewDevice(drv)
	layout := testSetLayout(t, device, false)
	m := testManager(t, device)

	var table BindingTable
	table.Bind(FrequencyPerFrame, 0, UniformBufferBinding(1, 0, 256))
	a, err := m.FinishSet(1, FrequencyPerFrame, layout, &table)
	if err != nil {
		t.Fatalf("FinishSet: %v", err)
	}
	group := a.Group.NativeID()

	// Within the staleness window the group stays cached.
	m.Reset(1 + maxFramesUnused)
	if len(drv.freed) != 0 {
		t.Fatalf("freed %d groups inside the window, want 0", len(drv.freed))
	}

	// Past the window it is freed back to its pool.
	m.Reset(2 + maxFramesUnused)
	if len(drv.freed) != 1 || drv.freed[0] != group {
		t.Errorf("freed = %v, want [%d]", drv.freed, group)
	}
}

func TestBindingManagerValidation(t *testing.T) {
	drv := newMockDriver()
	device := NewDevice(drv)
	m := testManager(t, device)

	t.Run("missing binding panics", func(t *testing.T) {
		layout := testSetLayout(t, device, false)
		var table BindingTable
		table.MarkAllDirty()
		defer func() {
			if recover() == nil {
				t.Error("expected panic for unbound required slot")
			}
		}()
		m.FinishSet(1, FrequencyPerDraw, layout, &table)
	})

	t.Run("type mismatch panics", func(t *testing.T) {
		layout := testSetLayout(t, device, false)
		var table BindingTable
		table.Bind(FrequencyPerDraw, 0, SampledTextureBinding(1))
		defer func() {
			if recover() == nil {
				t.Error("expected panic for texture bound to uniform slot")
			}
		}()
		m.FinishSet(1, FrequencyPerDraw, layout, &table)
	})

	t.Run("array count mismatch", func(t *testing.T) {
		layout, err := device.SetLayout([]LayoutSlot{
			{Slot: 0, Type: shader.ResourceSampledTexture, Count: 4,
				Visibility: shader.StageFragment.Mask()},
		})
		if err != nil {
			t.Fatalf("SetLayout: %v", err)
		}
		var table BindingTable
		table.Bind(FrequencyPerMaterial, 0, SampledTextureArrayBinding([]TextureID{1, 2, 3}))
		_, err = m.FinishSet(1, FrequencyPerMaterial, layout, &table)
		if !errors.Is(err, ErrArrayCountMismatch) {
			t.Errorf("err = %v, want ErrArrayCountMismatch", err)
		}
	})
}
