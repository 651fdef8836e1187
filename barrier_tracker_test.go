package rhi

import "testing"

func sampledTexBarrier(tex TextureID, rng TextureRange, old TextureLayout, oldSync BarrierSync, oldAccess BarrierAccess) Barrier {
	return Barrier{
		Kind:      BarrierTexture,
		OldSync:   oldSync,
		NewSync:   SyncFragmentShader,
		OldAccess: oldAccess,
		NewAccess: AccessSampledRead,
		Texture:   tex,
		Range:     rng,
		OldLayout: old,
		NewLayout: LayoutSampled,
	}
}

func TestBarrierTrackerRedundantTransitionCollapses(t *testing.T) {
	drv := newMockDriver()
	device := NewDevice(drv)
	tr := NewBarrierTracker(device)

	// First transition: untracked, emitted as asserted.
	tr.Record(sampledTexBarrier(1, FirstSubresource, LayoutUndefined, SyncNone, AccessNone))
	if !tr.HasPending() {
		t.Fatal("first transition must be pending")
	}
	tr.Flush(1, drv)
	if len(drv.barriers) != 1 || len(drv.barriers[0].Textures) != 1 {
		t.Fatalf("flushed batches = %+v, want one texture barrier", drv.barriers)
	}

	// Transitioning into the state the subresource is already in emits
	// nothing.
	tr.Record(sampledTexBarrier(1, FirstSubresource, LayoutSampled, SyncFragmentShader, AccessSampledRead))
	if tr.HasPending() {
		t.Error("redundant read-to-same-state transition must collapse")
	}
	tr.Flush(1, drv)
	if len(drv.barriers) != 1 {
		t.Errorf("flushes = %d, want 1", len(drv.barriers))
	}
}

func TestBarrierTrackerWriteHazardAlwaysEmits(t *testing.T) {
	drv := newMockDriver()
	device := NewDevice(drv)
	tr := NewBarrierTracker(device)

	write := Barrier{
		Kind:      BarrierTexture,
		OldSync:   SyncComputeShader,
		NewSync:   SyncComputeShader,
		OldAccess: AccessStorageWrite,
		NewAccess: AccessStorageWrite,
		Texture:   1,
		Range:     FirstSubresource,
		OldLayout: LayoutStorage,
		NewLayout: LayoutStorage,
	}
	tr.Record(write)
	tr.Flush(1, drv)

	// Same state on both sides, but write-after-write still needs ordering.
	tr.Record(write)
	if !tr.HasPending() {
		t.Error("write-to-write transition must emit even when states match")
	}
}

func TestBarrierTrackerRangeSplitsByOldState(t *testing.T) {
	drv := newMockDriver()
	device := NewDevice(drv)
	tr := NewBarrierTracker(device)

	// Move layers 0-1 of a 4-layer texture to copy-dst.
	tr.Record(Barrier{
		Kind:      BarrierTexture,
		NewSync:   SyncCopy,
		NewAccess: AccessCopyWrite,
		Texture:   9,
		Range:     TextureRange{MipLevelCount: 1, ArrayLayerCount: 2},
		OldLayout: LayoutUndefined,
		NewLayout: LayoutCopyDst,
	})
	tr.Flush(1, drv)

	// Now move all 4 layers to sampled, asserting the whole texture is
	// still undefined. Layers 0-1 have diverged from that assertion, so
	// the range must split into two barriers grouped by tracked old state.
	tr.Record(Barrier{
		Kind:      BarrierTexture,
		NewSync:   SyncFragmentShader,
		NewAccess: AccessSampledRead,
		Texture:   9,
		Range:     TextureRange{MipLevelCount: 1, ArrayLayerCount: 4},
		OldLayout: LayoutUndefined,
		NewLayout: LayoutSampled,
	})
	tr.Flush(1, drv)

	batch := drv.barriers[len(drv.barriers)-1]
	if len(batch.Textures) != 2 {
		t.Fatalf("texture barriers = %d, want 2 (split by old state)", len(batch.Textures))
	}

	first, second := batch.Textures[0], batch.Textures[1]
	if first.OldLayout != LayoutCopyDst || first.Range.BaseArrayLayer != 0 || first.Range.ArrayLayerCount != 2 {
		t.Errorf("first barrier = layout %v layers [%d,%d), want tracked copy-dst [0,2)",
			first.OldLayout, first.Range.BaseArrayLayer, first.Range.BaseArrayLayer+first.Range.ArrayLayerCount)
	}
	if first.OldSync != SyncCopy || first.OldAccess != AccessCopyWrite {
		t.Errorf("first barrier old sync/access = %v/%v, want copy/copy-write", first.OldSync, first.OldAccess)
	}
	if second.OldLayout != LayoutUndefined || second.Range.BaseArrayLayer != 2 || second.Range.ArrayLayerCount != 2 {
		t.Errorf("second barrier = layout %v layers [%d,%d), want asserted undefined [2,4)",
			second.OldLayout, second.Range.BaseArrayLayer, second.Range.BaseArrayLayer+second.Range.ArrayLayerCount)
	}
}

func TestBarrierTrackerAccelerationStructureSplit(t *testing.T) {
	drv := newMockDriver()
	device := NewDevice(drv)
	tr := NewBarrierTracker(device)

	tr.Record(Barrier{
		Kind:      BarrierGlobal,
		OldSync:   SyncComputeShader | SyncAccelStructBuild,
		NewSync:   SyncRayTracing | SyncFragmentShader,
		OldAccess: AccessStorageWrite | AccessAccelStructWrite,
		NewAccess: AccessSampledRead | AccessAccelStructRead,
	})
	tr.Flush(1, drv)

	batch := drv.barriers[0]
	if len(batch.Globals) != 2 {
		t.Fatalf("global barriers = %d, want 2: ordinary stages and acceleration-structure stages must be separate entries", len(batch.Globals))
	}

	ordinary, accel := batch.Globals[0], batch.Globals[1]
	if ordinary.OldSync&accelSyncMask != 0 || ordinary.OldAccess&accelAccessMask != 0 {
		t.Errorf("ordinary entry carries acceleration-structure bits: %+v", ordinary)
	}
	if ordinary.OldSync != SyncComputeShader || ordinary.NewAccess != AccessSampledRead {
		t.Errorf("ordinary entry = %+v", ordinary)
	}
	if accel.OldSync != SyncAccelStructBuild || accel.NewSync != SyncRayTracing {
		t.Errorf("acceleration entry sync = %v -> %v", accel.OldSync, accel.NewSync)
	}
	if accel.OldAccess != AccessAccelStructWrite || accel.NewAccess != AccessAccelStructRead {
		t.Errorf("acceleration entry access = %v -> %v", accel.OldAccess, accel.NewAccess)
	}
}

func TestBarrierTrackerQueueTransferDegrades(t *testing.T) {
	drv := newMockDriver()
	drv.queues = []QueueType{QueueGraphics} // no transfer queue
	device := NewDevice(drv)
	tr := NewBarrierTracker(device)

	tr.Record(Barrier{
		Kind:      BarrierBuffer,
		OldSync:   SyncCopy,
		NewSync:   SyncVertexShader,
		OldAccess: AccessCopyWrite,
		NewAccess: AccessConstantRead,
		Buffer:    3,
		Size:      1024,
		Queues:    &QueueOwnershipTransfer{From: QueueTransfer, To: QueueGraphics},
	})
	tr.Flush(1, drv)

	batch := drv.barriers[0]
	if len(batch.Buffers) != 1 {
		t.Fatalf("buffer barriers = %d, want 1", len(batch.Buffers))
	}
	if batch.Buffers[0].Queues != nil {
		t.Error("transfer naming an absent queue must degrade to a plain barrier")
	}
}

func TestBarrierTrackerTrustsTrackedState(t *testing.T) {
	drv := newMockDriver()
	device := NewDevice(drv)
	tr := NewBarrierTracker(device)

	tr.Record(Barrier{
		Kind:      BarrierBuffer,
		NewSync:   SyncComputeShader,
		NewAccess: AccessStorageWrite,
		Buffer:    5,
		Size:      256,
	})
	tr.Flush(1, drv)

	// The caller asserts a stale old state; the tracker emits what it
	// tracked instead.
	tr.Record(Barrier{
		Kind:      BarrierBuffer,
		OldSync:   SyncVertexShader,
		OldAccess: AccessConstantRead,
		NewSync:   SyncFragmentShader,
		NewAccess: AccessStorageRead,
		Buffer:    5,
		Size:      256,
	})
	tr.Flush(1, drv)

	batch := drv.barriers[1]
	if len(batch.Buffers) != 1 {
		t.Fatalf("buffer barriers = %d, want 1", len(batch.Buffers))
	}
	got := batch.Buffers[0]
	if got.OldSync != SyncComputeShader || got.OldAccess != AccessStorageWrite {
		t.Errorf("old state = %v/%v, want tracked compute/storage-write", got.OldSync, got.OldAccess)
	}
}

func TestBarrierTrackerFlushEmpty(t *testing.T) {
	drv := newMockDriver()
	device := NewDevice(drv)
	tr := NewBarrierTracker(device)

	tr.Flush(1, drv)
	if len(drv.barriers) != 0 {
		t.Error("flushing an empty tracker must not reach the driver")
	}
}
