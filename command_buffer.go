package rhi

import (
	"fmt"
	"slices"
)

// CommandBufferState is the lifecycle state of a [CommandBuffer].
type CommandBufferState uint8

const (
	// StateReady means the command buffer can begin recording.
	StateReady CommandBufferState = iota

	// StateRecording means commands are being recorded.
	StateRecording

	// StateFinished means recording is closed and the buffer is
	// submittable.
	StateFinished

	// StateSubmitted means the buffer is queued on the GPU and must not be
	// touched until its fence signals.
	StateSubmitted
)

// String returns the lowercase name of the state.
func (s CommandBufferState) String() string {
	switch s {
	case StateReady:
		return "ready"
	case StateRecording:
		return "recording"
	case StateFinished:
		return "finished"
	case StateSubmitted:
		return "submitted"
	default:
		return "unknown"
	}
}

// CommandBuffer records GPU work. It owns the three pieces of per-recording
// state the backends share: the binding table, the bind-group cache, and the
// barrier tracker.
//
// A command buffer is owned by one goroutine at a time. Calls in the wrong
// lifecycle state are programmer errors and panic.
type CommandBuffer struct {
	device    *Device
	driver    Driver
	native    CommandBufferID
	queue     QueueType
	secondary bool

	state CommandBufferState
	frame uint64

	table    BindingTable
	groups   *BindingManager
	barriers *BarrierTracker

	pipeline     *Pipeline
	inRenderPass bool
	inheritance  *RenderPassInheritance
	children     []*CommandBuffer

	// lastBound de-duplicates CmdBindGroup calls per set.
	lastBound        [NonBindlessSetCount]*BindGroup
	lastBoundOffsets [NonBindlessSetCount][]uint32

	fence      FenceID
	fenceValue uint64
}

func newCommandBuffer(device *Device, queue QueueType, secondary bool) (*CommandBuffer, error) {
	native, err := device.driver.CreateCommandBuffer(queue, secondary)
	if err != nil {
		return nil, err
	}
	groups, err := NewBindingManager(device)
	if err != nil {
		device.driver.DestroyCommandBuffer(native)
		return nil, err
	}
	return &CommandBuffer{
		device:    device,
		driver:    device.driver,
		native:    native,
		queue:     queue,
		secondary: secondary,
		groups:    groups,
		barriers:  NewBarrierTracker(device),
	}, nil
}

// NativeID returns the driver command buffer handle.
func (c *CommandBuffer) NativeID() CommandBufferID { return c.native }

// State returns the current lifecycle state.
func (c *CommandBuffer) State() CommandBufferState { return c.state }

// Queue returns the queue type the buffer records for.
func (c *CommandBuffer) Queue() QueueType { return c.queue }

// Secondary reports whether this is an inner command buffer recorded for
// execution inside a primary's render pass.
func (c *CommandBuffer) Secondary() bool { return c.secondary }

func (c *CommandBuffer) assertState(want CommandBufferState, op string) {
	if c.state != want {
		panic(fmt.Sprintf("rhi: %s on %v command buffer, want %v", op, c.state, want))
	}
}

func (c *CommandBuffer) assertRecording(op string) { c.assertState(StateRecording, op) }

// Begin transitions Ready to Recording for the given frame. The binding
// table is cleared, the transient half of the bind-group cache is reset, and
// stale permanent groups are pruned. inheritance must be non-nil exactly
// when the buffer is secondary.
func (c *CommandBuffer) Begin(frame uint64, inheritance *RenderPassInheritance) error {
	c.assertState(StateReady, "Begin")
	if c.secondary != (inheritance != nil) {
		panic("rhi: render pass inheritance is required for secondary command buffers and forbidden for primary ones")
	}
	if err := c.driver.Begin(c.native, inheritance); err != nil {
		return err
	}
	c.state = StateRecording
	c.frame = frame
	c.inheritance = inheritance
	c.inRenderPass = inheritance != nil
	c.pipeline = nil
	c.children = c.children[:0]
	c.table.Reset()
	c.groups.Reset(frame)
	c.barriers.Reset()
	for i := range c.lastBound {
		c.lastBound[i] = nil
		c.lastBoundOffsets[i] = c.lastBoundOffsets[i][:0]
	}
	return nil
}

// SetPipeline makes p the active pipeline. Switching to a pipeline with a
// different layout invalidates every flushed descriptor set, so the whole
// table is marked dirty. Descriptor sets are bound per bind point, so a
// graphics/compute switch rebinds even when the two pipelines intern the
// same layout.
func (c *CommandBuffer) SetPipeline(p *Pipeline) {
	c.assertRecording("SetPipeline")
	if p == nil {
		panic("rhi: SetPipeline with nil pipeline")
	}
	if c.pipeline == p {
		return
	}
	sameBinding := c.pipeline != nil && c.pipeline.layout == p.layout && c.pipeline.kind == p.kind
	c.pipeline = p
	c.driver.CmdSetPipeline(c.native, p)
	if !sameBinding {
		c.table.MarkAllDirty()
		for i := range c.lastBound {
			c.lastBound[i] = nil
		}
	}
}

// Typed binding helpers. All of them go through the binding table, so
// rebinding identical content is free.

// BindUniformBuffer binds a uniform buffer range.
func (c *CommandBuffer) BindUniformBuffer(freq BindingFrequency, slot uint32, buf BufferID, offset, size uint64) {
	c.assertRecording("BindUniformBuffer")
	c.table.Bind(freq, slot, UniformBufferBinding(buf, offset, size))
}

// BindStorageBuffer binds a storage buffer range.
func (c *CommandBuffer) BindStorageBuffer(freq BindingFrequency, slot uint32, buf BufferID, offset, size uint64) {
	c.assertRecording("BindStorageBuffer")
	c.table.Bind(freq, slot, StorageBufferBinding(buf, offset, size))
}

// BindSampledTexture binds a texture for shader sampling.
func (c *CommandBuffer) BindSampledTexture(freq BindingFrequency, slot uint32, tex TextureID) {
	c.assertRecording("BindSampledTexture")
	c.table.Bind(freq, slot, SampledTextureBinding(tex))
}

// BindStorageTexture binds a texture for image loads and stores.
func (c *CommandBuffer) BindStorageTexture(freq BindingFrequency, slot uint32, tex TextureID) {
	c.assertRecording("BindStorageTexture")
	c.table.Bind(freq, slot, StorageTextureBinding(tex))
}

// BindCombinedTextureSampler binds a texture together with its sampler.
func (c *CommandBuffer) BindCombinedTextureSampler(freq BindingFrequency, slot uint32, tex TextureID, smp SamplerID) {
	c.assertRecording("BindCombinedTextureSampler")
	c.table.Bind(freq, slot, CombinedTextureSamplerBinding(tex, smp))
}

// BindSampler binds a standalone sampler.
func (c *CommandBuffer) BindSampler(freq BindingFrequency, slot uint32, smp SamplerID) {
	c.assertRecording("BindSampler")
	c.table.Bind(freq, slot, SamplerBinding(smp))
}

// BindSampledTextureArray binds an array of sampled textures.
func (c *CommandBuffer) BindSampledTextureArray(freq BindingFrequency, slot uint32, texs []TextureID) {
	c.assertRecording("BindSampledTextureArray")
	c.table.Bind(freq, slot, SampledTextureArrayBinding(texs))
}

// BindStorageTextureArray binds an array of storage textures.
func (c *CommandBuffer) BindStorageTextureArray(freq BindingFrequency, slot uint32, texs []TextureID) {
	c.assertRecording("BindStorageTextureArray")
	c.table.Bind(freq, slot, StorageTextureArrayBinding(texs))
}

// BindAccelerationStructure binds a ray-tracing acceleration structure.
func (c *CommandBuffer) BindAccelerationStructure(freq BindingFrequency, slot uint32, as AccelerationStructureID) {
	c.assertRecording("BindAccelerationStructure")
	c.table.Bind(freq, slot, AccelerationStructureBinding(as))
}

// BindBindlessGroup binds a pre-built bind group directly at the reserved
// bindless set index, bypassing the binding table.
func (c *CommandBuffer) BindBindlessGroup(group BindGroupID) {
	c.assertRecording("BindBindlessGroup")
	if c.pipeline == nil {
		panic("rhi: BindBindlessGroup before SetPipeline")
	}
	c.driver.CmdBindGroup(c.native, c.pipeline.kind, uint32(FrequencyBindless), group, nil)
}

// FinishBinding resolves the binding table into descriptor sets for the
// active pipeline's layout and binds any set whose group or dynamic offsets
// changed. Finalizing bindings is a flush point: pending barriers reach the
// driver first. Draws and dispatches call this implicitly.
func (c *CommandBuffer) FinishBinding() error {
	c.assertRecording("FinishBinding")
	if c.pipeline == nil {
		panic("rhi: FinishBinding before SetPipeline")
	}
	if !c.inRenderPass {
		c.barriers.Flush(c.native, c.driver)
	}
	layout := c.pipeline.layout
	for freq := BindingFrequency(0); freq < NonBindlessSetCount; freq++ {
		binding, err := c.groups.FinishSet(c.frame, freq, layout.SetLayout(freq), &c.table)
		if err != nil {
			return err
		}
		if binding == nil {
			c.lastBound[freq] = nil
			continue
		}
		if binding.Group == c.lastBound[freq] &&
			slices.Equal(binding.DynamicOffsets, c.lastBoundOffsets[freq]) {
			continue
		}
		c.driver.CmdBindGroup(c.native, c.pipeline.kind, uint32(freq), binding.Group.native, binding.DynamicOffsets)
		c.lastBound[freq] = binding.Group
		c.lastBoundOffsets[freq] = append(c.lastBoundOffsets[freq][:0], binding.DynamicOffsets...)
	}
	return nil
}

// SetPushConstants uploads the push-constant block for every stage range of
// the active pipeline. len(data) must not exceed the layout's block size.
func (c *CommandBuffer) SetPushConstants(data []byte) {
	c.assertRecording("SetPushConstants")
	if c.pipeline == nil {
		panic("rhi: SetPushConstants before SetPipeline")
	}
	layout := c.pipeline.layout
	if uint32(len(data)) > layout.pushConstantSize {
		panic(fmt.Sprintf("rhi: push constant data is %d bytes, pipeline block is %d", len(data), layout.pushConstantSize))
	}
	for _, r := range layout.push {
		if r.Offset >= uint32(len(data)) {
			continue
		}
		end := min(r.Offset+r.Size, uint32(len(data)))
		c.driver.CmdPushConstants(c.native, r.Stages, r.Offset, data[r.Offset:end])
	}
}

// Barrier records synchronization requests. Barriers accumulate in the
// tracker and reach the driver in one batch at the next draw boundary.
// Recording barriers inside a render pass is not allowed.
func (c *CommandBuffer) Barrier(barriers ...Barrier) {
	c.assertRecording("Barrier")
	if c.inRenderPass {
		panic("rhi: Barrier inside a render pass")
	}
	for i := range barriers {
		c.barriers.Record(barriers[i])
	}
}

// FlushBarriers forces the pending barrier batch out immediately instead of
// waiting for the next draw boundary.
func (c *CommandBuffer) FlushBarriers() {
	c.assertRecording("FlushBarriers")
	if c.inRenderPass {
		panic("rhi: FlushBarriers inside a render pass")
	}
	c.barriers.Flush(c.native, c.driver)
}

// BeginRenderPass flushes pending barriers and opens a render pass over the
// given attachments.
func (c *CommandBuffer) BeginRenderPass(info *RenderPassInfo) {
	c.assertRecording("BeginRenderPass")
	if c.inRenderPass {
		panic("rhi: BeginRenderPass inside a render pass")
	}
	if c.secondary {
		panic("rhi: BeginRenderPass on a secondary command buffer")
	}
	c.barriers.Flush(c.native, c.driver)
	c.driver.CmdBeginRenderPass(c.native, info)
	c.inRenderPass = true
}

// EndRenderPass closes the open render pass.
func (c *CommandBuffer) EndRenderPass() {
	c.assertRecording("EndRenderPass")
	if !c.inRenderPass {
		panic("rhi: EndRenderPass outside a render pass")
	}
	c.driver.CmdEndRenderPass(c.native)
	c.inRenderPass = false
}

// ExecuteCommands runs finished secondary command buffers inside the open
// render pass. The children transition through the rest of the lifecycle
// with their parent.
func (c *CommandBuffer) ExecuteCommands(inner ...*CommandBuffer) {
	c.assertRecording("ExecuteCommands")
	if c.secondary {
		panic("rhi: ExecuteCommands on a secondary command buffer")
	}
	if !c.inRenderPass {
		panic("rhi: ExecuteCommands outside a render pass")
	}
	ids := make([]CommandBufferID, len(inner))
	for i, cb := range inner {
		if !cb.secondary {
			panic("rhi: ExecuteCommands with a primary command buffer")
		}
		cb.assertState(StateFinished, "ExecuteCommands")
		ids[i] = cb.native
		c.children = append(c.children, cb)
	}
	c.driver.CmdExecuteCommands(c.native, ids)
}

// SetViewport sets the viewport transform.
func (c *CommandBuffer) SetViewport(vp Viewport) {
	c.assertRecording("SetViewport")
	c.driver.CmdSetViewport(c.native, vp)
}

// SetScissor sets the scissor rectangle.
func (c *CommandBuffer) SetScissor(sc Scissor) {
	c.assertRecording("SetScissor")
	c.driver.CmdSetScissor(c.native, sc)
}

// SetVertexBuffer binds a vertex buffer to an input slot.
func (c *CommandBuffer) SetVertexBuffer(slot uint32, buf BufferID, offset uint64) {
	c.assertRecording("SetVertexBuffer")
	c.driver.CmdSetVertexBuffer(c.native, slot, buf, offset)
}

// SetIndexBuffer binds the index buffer.
func (c *CommandBuffer) SetIndexBuffer(buf BufferID, offset uint64, format IndexFormat) {
	c.assertRecording("SetIndexBuffer")
	c.driver.CmdSetIndexBuffer(c.native, buf, offset, format)
}

// prepareDraw enforces the draw preconditions and flushes dirty bindings.
func (c *CommandBuffer) prepareDraw(op string) error {
	c.assertRecording(op)
	if c.pipeline == nil || c.pipeline.kind != PipelineGraphics {
		panic("rhi: " + op + " without a graphics pipeline")
	}
	if !c.inRenderPass {
		panic("rhi: " + op + " outside a render pass")
	}
	if c.barriers.HasPending() {
		panic("rhi: " + op + " with pending barriers, record barriers before BeginRenderPass")
	}
	return c.FinishBinding()
}

// Draw draws non-indexed primitives.
func (c *CommandBuffer) Draw(vertexCount, instanceCount, firstVertex, firstInstance uint32) error {
	if err := c.prepareDraw("Draw"); err != nil {
		return err
	}
	c.driver.CmdDraw(c.native, vertexCount, instanceCount, firstVertex, firstInstance)
	return nil
}

// DrawIndexed draws indexed primitives.
func (c *CommandBuffer) DrawIndexed(indexCount, instanceCount, firstIndex uint32, vertexOffset int32, firstInstance uint32) error {
	if err := c.prepareDraw("DrawIndexed"); err != nil {
		return err
	}
	c.driver.CmdDrawIndexed(c.native, indexCount, instanceCount, firstIndex, vertexOffset, firstInstance)
	return nil
}

// DrawIndirect draws with GPU-supplied arguments.
func (c *CommandBuffer) DrawIndirect(buf BufferID, offset uint64, drawCount, stride uint32) error {
	if err := c.prepareDraw("DrawIndirect"); err != nil {
		return err
	}
	c.driver.CmdDrawIndirect(c.native, buf, offset, drawCount, stride)
	return nil
}

// DrawIndexedIndirect draws indexed primitives with GPU-supplied arguments.
func (c *CommandBuffer) DrawIndexedIndirect(buf BufferID, offset uint64, drawCount, stride uint32) error {
	if err := c.prepareDraw("DrawIndexedIndirect"); err != nil {
		return err
	}
	c.driver.CmdDrawIndexedIndirect(c.native, buf, offset, drawCount, stride)
	return nil
}

// Dispatch runs the active compute pipeline. Pending barriers are flushed
// first.
func (c *CommandBuffer) Dispatch(x, y, z uint32) error {
	c.assertRecording("Dispatch")
	if c.pipeline == nil || c.pipeline.kind != PipelineCompute {
		panic("rhi: Dispatch without a compute pipeline")
	}
	if c.inRenderPass {
		panic("rhi: Dispatch inside a render pass")
	}
	if err := c.FinishBinding(); err != nil {
		return err
	}
	c.driver.CmdDispatch(c.native, x, y, z)
	return nil
}

// CopyBuffer copies between buffers. Pending barriers are flushed first.
func (c *CommandBuffer) CopyBuffer(src, dst BufferID, region BufferCopy) {
	c.assertRecording("CopyBuffer")
	if c.inRenderPass {
		panic("rhi: CopyBuffer inside a render pass")
	}
	c.barriers.Flush(c.native, c.driver)
	c.driver.CmdCopyBuffer(c.native, src, dst, region)
}

// CopyBufferToTexture copies buffer contents into a texture subresource.
func (c *CommandBuffer) CopyBufferToTexture(src BufferID, dst TextureID, region BufferTextureCopy) {
	c.assertRecording("CopyBufferToTexture")
	if c.inRenderPass {
		panic("rhi: CopyBufferToTexture inside a render pass")
	}
	c.barriers.Flush(c.native, c.driver)
	c.driver.CmdCopyBufferToTexture(c.native, src, dst, region)
}

// CopyTextureToBuffer copies a texture subresource into a buffer.
func (c *CommandBuffer) CopyTextureToBuffer(src TextureID, dst BufferID, region BufferTextureCopy) {
	c.assertRecording("CopyTextureToBuffer")
	if c.inRenderPass {
		panic("rhi: CopyTextureToBuffer inside a render pass")
	}
	c.barriers.Flush(c.native, c.driver)
	c.driver.CmdCopyTextureToBuffer(c.native, src, dst, region)
}

// Blit performs a filtered copy between texture subresources.
func (c *CommandBuffer) Blit(src, dst TextureID, region TextureBlit) {
	c.assertRecording("Blit")
	if c.inRenderPass {
		panic("rhi: Blit inside a render pass")
	}
	c.barriers.Flush(c.native, c.driver)
	c.driver.CmdBlit(c.native, src, dst, region)
}

// BeginLabel opens a debug label region.
func (c *CommandBuffer) BeginLabel(label string) {
	c.assertRecording("BeginLabel")
	c.driver.CmdBeginLabel(c.native, label)
}

// EndLabel closes the innermost debug label region.
func (c *CommandBuffer) EndLabel() {
	c.assertRecording("EndLabel")
	c.driver.CmdEndLabel(c.native)
}

// Finish closes recording. An open render pass is closed and any pending
// barriers are flushed so submitted work is fully ordered.
func (c *CommandBuffer) Finish() error {
	c.assertRecording("Finish")
	if c.inRenderPass {
		c.driver.CmdEndRenderPass(c.native)
		c.inRenderPass = false
	}
	c.barriers.Flush(c.native, c.driver)
	if err := c.driver.End(c.native); err != nil {
		return err
	}
	c.state = StateFinished
	return nil
}

// MarkSubmitted records that the buffer was handed to the GPU, together
// with the fence value that signals its completion. Finished children
// executed by this buffer transition with it.
func (c *CommandBuffer) MarkSubmitted(fence FenceID, value uint64) {
	c.assertState(StateFinished, "MarkSubmitted")
	c.state = StateSubmitted
	c.fence = fence
	c.fenceValue = value
	for _, child := range c.children {
		if child.state == StateFinished {
			child.MarkSubmitted(fence, value)
		}
	}
}

// Reset returns the buffer to Ready. A submitted buffer first waits for its
// fence, so resetting never races the GPU. A finished but never submitted
// buffer is reset immediately and its recorded work abandoned; that is how
// [CommandPool.Recycle] reclaims buffers a frame decided not to submit.
// Resetting a recording buffer is a programmer error.
func (c *CommandBuffer) Reset() error {
	switch c.state {
	case StateReady:
		return nil
	case StateRecording:
		panic("rhi: Reset on recording command buffer")
	case StateSubmitted:
		if c.driver.FenceValue(c.fence) < c.fenceValue {
			if err := c.driver.WaitFence(c.fence, c.fenceValue); err != nil {
				return err
			}
		}
	}
	if err := c.driver.Reset(c.native); err != nil {
		return err
	}
	c.state = StateReady
	c.pipeline = nil
	c.inheritance = nil
	c.children = c.children[:0]
	c.barriers.Reset()
	return nil
}

// Destroy releases the command buffer and its bind-group pools. The buffer
// must not be submitted or recording.
func (c *CommandBuffer) Destroy() {
	if c.state == StateRecording || c.state == StateSubmitted {
		panic(fmt.Sprintf("rhi: Destroy on %v command buffer", c.state))
	}
	c.groups.Destroy()
	c.driver.DestroyCommandBuffer(c.native)
	c.native = InvalidID
}
