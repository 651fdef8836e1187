package rhi

// SubresourceState is the tracked synchronization state of one texture
// subresource or buffer: the stages that last touched it, the accesses they
// performed, and (for textures) the image layout it was left in.
type SubresourceState struct {
	Sync   BarrierSync
	Access BarrierAccess
	Layout TextureLayout
}

type subresourceKey struct {
	texture TextureID
	mip     uint32
	layer   uint32
}

type bufferState struct {
	Sync   BarrierSync
	Access BarrierAccess
}

// BarrierTracker accumulates barrier requests between draws and flushes them
// to the driver in batches. It keeps the last known state of every tracked
// buffer and texture subresource, so redundant transitions collapse to
// nothing and ranges whose subresources diverged are split into per-state
// groups.
//
// Callers assert the old state in each [Barrier]; the tracker trusts its own
// record when the two disagree and logs the discrepancy.
//
// A BarrierTracker is owned by a single command buffer and is not safe for
// concurrent use.
type BarrierTracker struct {
	device *Device

	textures map[subresourceKey]SubresourceState
	buffers  map[BufferID]bufferState

	// Pending global barriers occupy two fixed slots: ordinary stages in
	// globals[0] and acceleration-structure stages in globals[1]. Drivers
	// reject acceleration-structure access bits combined with ordinary
	// stages, so the two must stay separate entries.
	globals    [2]MemoryBarrier
	hasGlobals [2]bool

	pending BarrierBatch
}

// NewBarrierTracker creates a tracker bound to a device, which it consults
// for queue validation.
func NewBarrierTracker(device *Device) *BarrierTracker {
	return &BarrierTracker{
		device:   device,
		textures: make(map[subresourceKey]SubresourceState),
		buffers:  make(map[BufferID]bufferState),
	}
}

// Record accumulates one barrier. Redundant transitions, where the tracked
// state already equals the requested new state and no write hazard is
// involved, are dropped. Nothing reaches the driver until [Flush].
func (t *BarrierTracker) Record(b Barrier) {
	queues := t.validateQueues(b.Queues)
	switch b.Kind {
	case BarrierGlobal:
		t.recordGlobal(b)
	case BarrierBuffer:
		t.recordBuffer(b, queues)
	case BarrierTexture:
		t.recordTexture(b, queues)
	}
}

// validateQueues drops an ownership transfer that names a queue the device
// does not have, degrading the barrier to a plain transition.
func (t *BarrierTracker) validateQueues(q *QueueOwnershipTransfer) *QueueOwnershipTransfer {
	if q == nil {
		return nil
	}
	if !t.device.HasQueue(q.From) || !t.device.HasQueue(q.To) {
		Logger().Warn("rhi: queue ownership transfer dropped, queue not present",
			"from", q.From, "to", q.To)
		return nil
	}
	if q.From == q.To {
		return nil
	}
	return q
}

// recordGlobal merges a global barrier into the two pending memory-barrier
// slots, splitting acceleration-structure stages and accesses into the
// second slot.
func (t *BarrierTracker) recordGlobal(b Barrier) {
	normal := MemoryBarrier{
		OldSync:   b.OldSync &^ accelSyncMask,
		NewSync:   b.NewSync &^ accelSyncMask,
		OldAccess: b.OldAccess &^ accelAccessMask,
		NewAccess: b.NewAccess &^ accelAccessMask,
	}
	accel := MemoryBarrier{
		OldSync:   b.OldSync & accelSyncMask,
		NewSync:   b.NewSync & accelSyncMask,
		OldAccess: b.OldAccess & accelAccessMask,
		NewAccess: b.NewAccess & accelAccessMask,
	}
	if normal != (MemoryBarrier{}) {
		t.mergeGlobal(0, normal)
	}
	if accel != (MemoryBarrier{}) {
		t.mergeGlobal(1, accel)
	}
}

func (t *BarrierTracker) mergeGlobal(slot int, m MemoryBarrier) {
	t.globals[slot].OldSync |= m.OldSync
	t.globals[slot].NewSync |= m.NewSync
	t.globals[slot].OldAccess |= m.OldAccess
	t.globals[slot].NewAccess |= m.NewAccess
	t.hasGlobals[slot] = true
}

func (t *BarrierTracker) recordBuffer(b Barrier, queues *QueueOwnershipTransfer) {
	newState := bufferState{Sync: b.NewSync, Access: b.NewAccess}
	old := bufferState{Sync: b.OldSync, Access: b.OldAccess}
	if stored, ok := t.buffers[b.Buffer]; ok {
		if stored != old {
			Logger().Warn("rhi: buffer barrier old state disagrees with tracked state",
				"buffer", b.Buffer,
				"assertedSync", old.Sync, "trackedSync", stored.Sync,
				"assertedAccess", old.Access, "trackedAccess", stored.Access)
		}
		old = stored
		// A transition into the state the buffer is already in orders
		// nothing unless writes are involved on either side.
		if stored == newState && queues == nil &&
			!stored.Access.IsWrite() && !newState.Access.IsWrite() {
			return
		}
	}
	t.buffers[b.Buffer] = newState
	t.pending.Buffers = append(t.pending.Buffers, BufferBarrierDesc{
		MemoryBarrier: MemoryBarrier{
			OldSync:   old.Sync,
			NewSync:   b.NewSync,
			OldAccess: old.Access,
			NewAccess: b.NewAccess,
		},
		Buffer: b.Buffer,
		Offset: b.Offset,
		Size:   b.Size,
		Queues: queues,
	})
}

// recordTexture walks the requested subresource range one mip at a time and
// batches runs of layers that share a tracked old state into a single
// pending barrier each, so a range whose subresources diverged still
// transitions correctly.
func (t *BarrierTracker) recordTexture(b Barrier, queues *QueueOwnershipTransfer) {
	mips := b.Range.MipLevelCount
	layers := b.Range.ArrayLayerCount
	if mips == 0 {
		mips = 1
	}
	if layers == 0 {
		layers = 1
	}

	newState := SubresourceState{Sync: b.NewSync, Access: b.NewAccess, Layout: b.NewLayout}
	asserted := SubresourceState{Sync: b.OldSync, Access: b.OldAccess, Layout: b.OldLayout}

	for mi := uint32(0); mi < mips; mi++ {
		mip := b.Range.BaseMipLevel + mi

		runStart := uint32(0)
		var runState SubresourceState
		runLive := false

		flushRun := func(end uint32) {
			if !runLive {
				return
			}
			t.pending.Textures = append(t.pending.Textures, TextureBarrierDesc{
				MemoryBarrier: MemoryBarrier{
					OldSync:   runState.Sync,
					NewSync:   b.NewSync,
					OldAccess: runState.Access,
					NewAccess: b.NewAccess,
				},
				Texture: b.Texture,
				Range: TextureRange{
					BaseMipLevel:    mip,
					MipLevelCount:   1,
					BaseArrayLayer:  b.Range.BaseArrayLayer + runStart,
					ArrayLayerCount: end - runStart,
				},
				OldLayout: runState.Layout,
				NewLayout: b.NewLayout,
				Queues:    queues,
			})
			runLive = false
		}

		for li := uint32(0); li < layers; li++ {
			key := subresourceKey{texture: b.Texture, mip: mip, layer: b.Range.BaseArrayLayer + li}
			stored, tracked := t.textures[key]
			if !tracked {
				stored = asserted
			} else if stored != asserted {
				Logger().Warn("rhi: texture barrier old state disagrees with tracked state",
					"texture", b.Texture, "mip", mip, "layer", key.layer,
					"assertedLayout", asserted.Layout, "trackedLayout", stored.Layout)
			}

			redundant := tracked && stored == newState && queues == nil &&
				!stored.Access.IsWrite() && !newState.Access.IsWrite()
			t.textures[key] = newState
			if redundant {
				flushRun(li)
				continue
			}
			if runLive && stored == runState {
				continue
			}
			flushRun(li)
			runStart = li
			runState = stored
			runLive = true
		}
		flushRun(layers)
	}
}

// HasPending reports whether any recorded barrier awaits a flush.
func (t *BarrierTracker) HasPending() bool {
	return t.hasGlobals[0] || t.hasGlobals[1] || !t.pending.Empty()
}

// Flush hands the accumulated batch to the driver and clears it. A flush
// with nothing pending is a no-op.
func (t *BarrierTracker) Flush(cb CommandBufferID, driver Driver) {
	if !t.HasPending() {
		return
	}
	t.pending.Globals = t.pending.Globals[:0]
	for slot := range t.globals {
		if t.hasGlobals[slot] {
			t.pending.Globals = append(t.pending.Globals, t.globals[slot])
		}
	}
	driver.CmdBarrier(cb, &t.pending)
	Logger().Debug("rhi: barrier batch flushed",
		"globals", len(t.pending.Globals),
		"buffers", len(t.pending.Buffers),
		"textures", len(t.pending.Textures))

	t.pending.reset()
	t.globals = [2]MemoryBarrier{}
	t.hasGlobals = [2]bool{}
}

// Reset clears all tracked state and pending barriers. Subresources revert
// to their caller-asserted old state on the next Record.
func (t *BarrierTracker) Reset() {
	clear(t.textures)
	clear(t.buffers)
	t.pending.reset()
	t.globals = [2]MemoryBarrier{}
	t.hasGlobals = [2]bool{}
}
