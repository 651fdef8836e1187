package vulkan

import (
	"fmt"
	"sync"
	"time"
	"unsafe"

	vk "github.com/goki/vulkan"

	"github.com/gogpu/rhi"
	"github.com/gogpu/rhi/shader"
)

// commandState is the recording state behind one rhi.CommandBufferID. The
// render pass begin is deferred to the first draw or execute-commands call,
// because Vulkan fixes the subpass contents (inline vs secondary) at begin
// time and the rhi surface only reveals which it is when work arrives.
type commandState struct {
	queue     *queueInfo
	buffer    vk.CommandBuffer
	secondary bool

	// layout and bindPoint track the pipeline bound last, for descriptor
	// set binds and push constant uploads.
	layout    vk.PipelineLayout
	bindPoint vk.PipelineBindPoint

	pendingPass *rhi.RenderPassInfo
	shape       *passShape
	passOpen    bool
}

// fenceSubmission is one in-flight binary fence tagged with its timeline
// value.
type fenceSubmission struct {
	fence vk.Fence
	value uint64
}

// fenceState emulates a timeline fence over binary VkFences: every
// submission carries its own fence, and pending fences retire in submission
// order.
type fenceState struct {
	device vk.Device

	mu      sync.Mutex
	pending []fenceSubmission
	free    []vk.Fence
	reached uint64
}

// take returns a reset fence for the next submission.
func (f *fenceState) take() (vk.Fence, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if n := len(f.free); n > 0 {
		fence := f.free[n-1]
		f.free = f.free[:n-1]
		vk.ResetFences(f.device, 1, []vk.Fence{fence})
		return fence, nil
	}
	var fence vk.Fence
	res := vk.CreateFence(f.device, &vk.FenceCreateInfo{
		SType: vk.StructureTypeFenceCreateInfo,
	}, nil, &fence)
	if err := vkError("create fence", res); err != nil {
		return nil, err
	}
	return fence, nil
}

// retire polls pending fences in submission order and advances the reached
// value past every signaled one.
func (f *fenceState) retire() uint64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	for len(f.pending) > 0 {
		sub := f.pending[0]
		if vk.GetFenceStatus(f.device, sub.fence) != vk.Success {
			break
		}
		f.reached = sub.value
		f.free = append(f.free, sub.fence)
		f.pending = f.pending[1:]
	}
	return f.reached
}

func (f *fenceState) destroy() {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, sub := range f.pending {
		vk.WaitForFences(f.device, 1, []vk.Fence{sub.fence}, vk.True, uint64(fenceWaitTimeout))
		vk.DestroyFence(f.device, sub.fence, nil)
	}
	for _, fence := range f.free {
		vk.DestroyFence(f.device, fence, nil)
	}
	f.pending = nil
	f.free = nil
}

// CreateFence creates an emulated timeline fence.
func (d *Driver) CreateFence() (rhi.FenceID, error) {
	return rhi.FenceID(d.fences.Register(&fenceState{device: d.device})), nil
}

// DestroyFence waits out in-flight submissions and releases the fence.
func (d *Driver) DestroyFence(id rhi.FenceID) {
	if fs, ok := d.fences.Resolve(uint64(id)); ok {
		fs.destroy()
		d.fences.Unregister(uint64(id))
	}
}

// WaitFence implements rhi.Driver.
func (d *Driver) WaitFence(id rhi.FenceID, value uint64) error {
	fs, ok := d.fences.Resolve(uint64(id))
	if !ok {
		return fmt.Errorf("%w: fence %d", ErrUnknownHandle, id)
	}
	deadline := time.Now().Add(fenceWaitTimeout)
	for {
		if fs.retire() >= value {
			return nil
		}
		fs.mu.Lock()
		if len(fs.pending) == 0 {
			fs.mu.Unlock()
			// Nothing in flight can ever reach the value.
			return fmt.Errorf("%w: value %d never submitted", ErrFenceTimeout, value)
		}
		fence := fs.pending[0].fence
		fs.mu.Unlock()

		remain := time.Until(deadline)
		if remain <= 0 {
			return ErrFenceTimeout
		}
		res := vk.WaitForFences(d.device, 1, []vk.Fence{fence}, vk.True, uint64(remain.Nanoseconds()))
		if res == vk.Timeout {
			return ErrFenceTimeout
		}
		if err := vkError("wait for fence", res); err != nil {
			return err
		}
	}
}

// FenceValue implements rhi.Driver.
func (d *Driver) FenceValue(id rhi.FenceID) uint64 {
	fs, ok := d.fences.Resolve(uint64(id))
	if !ok {
		return 0
	}
	return fs.retire()
}

// Submit hands a finished command buffer to its queue, tagging the
// submission with value on the emulated timeline.
func (d *Driver) Submit(cb rhi.CommandBufferID, fence rhi.FenceID, value uint64) error {
	state, ok := d.commands.Resolve(uint64(cb))
	if !ok {
		return fmt.Errorf("%w: command buffer %d", ErrUnknownHandle, cb)
	}
	fs, ok := d.fences.Resolve(uint64(fence))
	if !ok {
		return fmt.Errorf("%w: fence %d", ErrUnknownHandle, fence)
	}
	binary, err := fs.take()
	if err != nil {
		return err
	}
	res := vk.QueueSubmit(state.queue.queue, 1, []vk.SubmitInfo{{
		SType:              vk.StructureTypeSubmitInfo,
		CommandBufferCount: 1,
		PCommandBuffers:    []vk.CommandBuffer{state.buffer},
	}}, binary)
	if err := vkError("queue submit", res); err != nil {
		fs.mu.Lock()
		fs.free = append(fs.free, binary)
		fs.mu.Unlock()
		return err
	}
	fs.mu.Lock()
	fs.pending = append(fs.pending, fenceSubmission{fence: binary, value: value})
	fs.mu.Unlock()
	return nil
}

// CreateCommandBuffer implements rhi.Driver.
func (d *Driver) CreateCommandBuffer(queue rhi.QueueType, secondary bool) (rhi.CommandBufferID, error) {
	q := d.queueInfo(queue)
	if q == nil {
		return rhi.InvalidID, fmt.Errorf("%w: %v", rhi.ErrUnknownQueue, queue)
	}
	level := vk.CommandBufferLevelPrimary
	if secondary {
		level = vk.CommandBufferLevelSecondary
	}
	buffers := make([]vk.CommandBuffer, 1)
	q.mu.Lock()
	res := vk.AllocateCommandBuffers(d.device, &vk.CommandBufferAllocateInfo{
		SType:              vk.StructureTypeCommandBufferAllocateInfo,
		CommandPool:        q.pool,
		Level:              level,
		CommandBufferCount: 1,
	}, buffers)
	q.mu.Unlock()
	if err := vkError("allocate command buffer", res); err != nil {
		return rhi.InvalidID, err
	}
	return rhi.CommandBufferID(d.commands.Register(&commandState{
		queue:     q,
		buffer:    buffers[0],
		secondary: secondary,
	})), nil
}

// DestroyCommandBuffer implements rhi.Driver.
func (d *Driver) DestroyCommandBuffer(id rhi.CommandBufferID) {
	state, ok := d.commands.Resolve(uint64(id))
	if !ok {
		return
	}
	state.queue.mu.Lock()
	vk.FreeCommandBuffers(d.device, state.queue.pool, 1, []vk.CommandBuffer{state.buffer})
	state.queue.mu.Unlock()
	d.commands.Unregister(uint64(id))
}

func (d *Driver) state(id rhi.CommandBufferID) *commandState {
	state, ok := d.commands.Resolve(uint64(id))
	if !ok {
		panic(fmt.Sprintf("vulkan: unknown command buffer %d", id))
	}
	return state
}

// Begin implements rhi.Driver. Secondary command buffers begin inside the
// inherited render pass, so their pass context is resolved here.
func (d *Driver) Begin(id rhi.CommandBufferID, inheritance *rhi.RenderPassInheritance) error {
	state := d.state(id)
	info := &vk.CommandBufferBeginInfo{
		SType: vk.StructureTypeCommandBufferBeginInfo,
		Flags: vk.CommandBufferUsageFlags(vk.CommandBufferUsageOneTimeSubmitBit),
	}
	if inheritance != nil {
		shape, err := d.resolveShape(inheritance.Info)
		if err != nil {
			return err
		}
		rp, err := d.passes.renderPass(shape)
		if err != nil {
			return err
		}
		info.Flags |= vk.CommandBufferUsageFlags(vk.CommandBufferUsageRenderPassContinueBit)
		info.PInheritanceInfo = []vk.CommandBufferInheritanceInfo{{
			SType:      vk.StructureTypeCommandBufferInheritanceInfo,
			RenderPass: rp,
			Subpass:    0,
		}}
	}
	if err := vkError("begin command buffer", vk.BeginCommandBuffer(state.buffer, info)); err != nil {
		return err
	}
	state.layout = nil
	state.pendingPass = nil
	state.shape = nil
	// A secondary buffer records inside a pass it never opens itself.
	state.passOpen = inheritance != nil
	return nil
}

// End implements rhi.Driver.
func (d *Driver) End(id rhi.CommandBufferID) error {
	state := d.state(id)
	return vkError("end command buffer", vk.EndCommandBuffer(state.buffer))
}

// Reset implements rhi.Driver.
func (d *Driver) Reset(id rhi.CommandBufferID) error {
	state := d.state(id)
	state.queue.mu.Lock()
	res := vk.ResetCommandBuffer(state.buffer, 0)
	state.queue.mu.Unlock()
	state.layout = nil
	state.pendingPass = nil
	state.shape = nil
	state.passOpen = false
	return vkError("reset command buffer", res)
}

// ensurePass opens the deferred render pass with the given subpass contents.
func (d *Driver) ensurePass(state *commandState, contents vk.SubpassContents) {
	if state.passOpen || state.pendingPass == nil {
		return
	}
	rp, err := d.passes.renderPass(state.shape)
	if err != nil {
		panic(fmt.Sprintf("vulkan: render pass creation failed at draw time: %v", err))
	}
	fb, err := d.passes.framebuffer(state.shape, rp)
	if err != nil {
		panic(fmt.Sprintf("vulkan: framebuffer creation failed at draw time: %v", err))
	}
	vk.CmdBeginRenderPass(state.buffer, &vk.RenderPassBeginInfo{
		SType:       vk.StructureTypeRenderPassBeginInfo,
		RenderPass:  rp,
		Framebuffer: fb,
		RenderArea: vk.Rect2D{
			Extent: vk.Extent2D{Width: state.shape.width, Height: state.shape.height},
		},
		ClearValueCount: uint32(len(state.shape.views)),
		PClearValues:    state.shape.clearValues(state.pendingPass),
	}, contents)
	state.passOpen = true
}

// CmdSetPipeline implements rhi.Driver.
func (d *Driver) CmdSetPipeline(cb rhi.CommandBufferID, p *rhi.Pipeline) {
	state := d.state(cb)
	layout, ok := d.pipeLayouts.Resolve(uint64(p.Layout().NativeID()))
	if !ok {
		panic(fmt.Sprintf("vulkan: unknown pipeline layout %d", p.Layout().NativeID()))
	}
	var (
		pipe  vk.Pipeline
		found bool
	)
	if p.Kind() == rhi.PipelineCompute {
		pipe, found = d.computePipes.Resolve(uint64(p.NativeID()))
		state.bindPoint = vk.PipelineBindPointCompute
	} else {
		pipe, found = d.renderPipes.Resolve(uint64(p.NativeID()))
		state.bindPoint = vk.PipelineBindPointGraphics
	}
	if !found {
		panic(fmt.Sprintf("vulkan: unknown %v pipeline %d", p.Kind(), p.NativeID()))
	}
	state.layout = layout
	vk.CmdBindPipeline(state.buffer, state.bindPoint, pipe)
}

// CmdBindGroup implements rhi.Driver.
func (d *Driver) CmdBindGroup(cb rhi.CommandBufferID, kind rhi.PipelineKind, set uint32, group rhi.BindGroupID, dynamicOffsets []uint32) {
	state := d.state(cb)
	dset, ok := d.groups.Resolve(uint64(group))
	if !ok {
		panic(fmt.Sprintf("vulkan: unknown bind group %d", group))
	}
	bindPoint := vk.PipelineBindPointGraphics
	if kind == rhi.PipelineCompute {
		bindPoint = vk.PipelineBindPointCompute
	}
	vk.CmdBindDescriptorSets(state.buffer, bindPoint, state.layout, set, 1,
		[]vk.DescriptorSet{dset}, uint32(len(dynamicOffsets)), dynamicOffsets)
}

// CmdPushConstants implements rhi.Driver.
func (d *Driver) CmdPushConstants(cb rhi.CommandBufferID, stages shader.StageMask, offset uint32, data []byte) {
	state := d.state(cb)
	if len(data) == 0 {
		return
	}
	vk.CmdPushConstants(state.buffer, state.layout, convertStageMask(stages),
		offset, uint32(len(data)), unsafe.Pointer(&data[0]))
}

// CmdBarrier implements rhi.Driver. The whole batch becomes one
// vkCmdPipelineBarrier whose stage masks cover every entry.
func (d *Driver) CmdBarrier(cb rhi.CommandBufferID, batch *rhi.BarrierBatch) {
	state := d.state(cb)

	var srcStages, dstStages vk.PipelineStageFlags
	memory := make([]vk.MemoryBarrier, 0, len(batch.Globals))
	for i := range batch.Globals {
		g := &batch.Globals[i]
		srcStages |= convertSync(g.OldSync)
		dstStages |= convertSync(g.NewSync)
		memory = append(memory, vk.MemoryBarrier{
			SType:         vk.StructureTypeMemoryBarrier,
			SrcAccessMask: convertAccess(g.OldAccess),
			DstAccessMask: convertAccess(g.NewAccess),
		})
	}

	families := func(q *rhi.QueueOwnershipTransfer) (uint32, uint32) {
		if q == nil {
			return vk.QueueFamilyIgnored, vk.QueueFamilyIgnored
		}
		src, okSrc := d.familyFor(q.From)
		dst, okDst := d.familyFor(q.To)
		if !okSrc || !okDst {
			return vk.QueueFamilyIgnored, vk.QueueFamilyIgnored
		}
		return src, dst
	}

	buffers := make([]vk.BufferMemoryBarrier, 0, len(batch.Buffers))
	for i := range batch.Buffers {
		bb := &batch.Buffers[i]
		buf, ok := d.buffers.Resolve(uint64(bb.Buffer))
		if !ok {
			rhi.Logger().Warn("vulkan: barrier references unknown buffer", "buffer", bb.Buffer)
			continue
		}
		srcStages |= convertSync(bb.OldSync)
		dstStages |= convertSync(bb.NewSync)
		size := vk.DeviceSize(bb.Size)
		if bb.Size == 0 {
			size = vk.DeviceSize(vk.WholeSize)
		}
		srcFam, dstFam := families(bb.Queues)
		buffers = append(buffers, vk.BufferMemoryBarrier{
			SType:               vk.StructureTypeBufferMemoryBarrier,
			SrcAccessMask:       convertAccess(bb.OldAccess),
			DstAccessMask:       convertAccess(bb.NewAccess),
			SrcQueueFamilyIndex: srcFam,
			DstQueueFamilyIndex: dstFam,
			Buffer:              buf,
			Offset:              vk.DeviceSize(bb.Offset),
			Size:                size,
		})
	}

	images := make([]vk.ImageMemoryBarrier, 0, len(batch.Textures))
	for i := range batch.Textures {
		tb := &batch.Textures[i]
		tex, ok := d.textures.Resolve(uint64(tb.Texture))
		if !ok {
			rhi.Logger().Warn("vulkan: barrier references unknown texture", "texture", tb.Texture)
			continue
		}
		srcStages |= convertSync(tb.OldSync)
		dstStages |= convertSync(tb.NewSync)
		levels := tb.Range.MipLevelCount
		if levels == 0 {
			levels = 1
		}
		layers := tb.Range.ArrayLayerCount
		if layers == 0 {
			layers = 1
		}
		srcFam, dstFam := families(tb.Queues)
		images = append(images, vk.ImageMemoryBarrier{
			SType:               vk.StructureTypeImageMemoryBarrier,
			SrcAccessMask:       convertAccess(tb.OldAccess),
			DstAccessMask:       convertAccess(tb.NewAccess),
			OldLayout:           convertImageLayout(tb.OldLayout),
			NewLayout:           convertImageLayout(tb.NewLayout),
			SrcQueueFamilyIndex: srcFam,
			DstQueueFamilyIndex: dstFam,
			Image:               tex.image,
			SubresourceRange: vk.ImageSubresourceRange{
				AspectMask:     tex.info.Aspect,
				BaseMipLevel:   tb.Range.BaseMipLevel,
				LevelCount:     levels,
				BaseArrayLayer: tb.Range.BaseArrayLayer,
				LayerCount:     layers,
			},
		})
	}

	if len(memory) == 0 && len(buffers) == 0 && len(images) == 0 {
		return
	}
	vk.CmdPipelineBarrier(state.buffer, srcStages, dstStages, 0,
		uint32(len(memory)), memory,
		uint32(len(buffers)), buffers,
		uint32(len(images)), images)
}

// CmdBeginRenderPass implements rhi.Driver. The native begin is deferred
// until the first draw or execute-commands call fixes the subpass contents.
func (d *Driver) CmdBeginRenderPass(cb rhi.CommandBufferID, info *rhi.RenderPassInfo) {
	state := d.state(cb)
	shape, err := d.resolveShape(info)
	if err != nil {
		panic(fmt.Sprintf("vulkan: begin render pass: %v", err))
	}
	state.pendingPass = info
	state.shape = shape
	state.passOpen = false
}

// CmdEndRenderPass implements rhi.Driver. A pass nothing was recorded into
// is still opened and closed so its load and store ops execute.
func (d *Driver) CmdEndRenderPass(cb rhi.CommandBufferID) {
	state := d.state(cb)
	d.ensurePass(state, vk.SubpassContentsInline)
	if state.passOpen && state.pendingPass != nil {
		vk.CmdEndRenderPass(state.buffer)
	}
	state.pendingPass = nil
	state.shape = nil
	state.passOpen = false
}

// CmdExecuteCommands implements rhi.Driver. The enclosing pass opens with
// secondary contents, so inline draws cannot follow in the same pass;
// Vulkan forbids mixing the two anyway.
func (d *Driver) CmdExecuteCommands(cb rhi.CommandBufferID, inner []rhi.CommandBufferID) {
	state := d.state(cb)
	d.ensurePass(state, vk.SubpassContentsSecondaryCommandBuffers)
	buffers := make([]vk.CommandBuffer, 0, len(inner))
	for _, id := range inner {
		child, ok := d.commands.Resolve(uint64(id))
		if !ok {
			panic(fmt.Sprintf("vulkan: unknown inner command buffer %d", id))
		}
		buffers = append(buffers, child.buffer)
	}
	if len(buffers) > 0 {
		vk.CmdExecuteCommands(state.buffer, uint32(len(buffers)), buffers)
	}
}

// CmdSetViewport implements rhi.Driver.
func (d *Driver) CmdSetViewport(cb rhi.CommandBufferID, vp rhi.Viewport) {
	state := d.state(cb)
	vk.CmdSetViewport(state.buffer, 0, 1, []vk.Viewport{{
		X:        vp.X,
		Y:        vp.Y,
		Width:    vp.Width,
		Height:   vp.Height,
		MinDepth: vp.MinDepth,
		MaxDepth: vp.MaxDepth,
	}})
}

// CmdSetScissor implements rhi.Driver.
func (d *Driver) CmdSetScissor(cb rhi.CommandBufferID, sc rhi.Scissor) {
	state := d.state(cb)
	vk.CmdSetScissor(state.buffer, 0, 1, []vk.Rect2D{{
		Offset: vk.Offset2D{X: sc.X, Y: sc.Y},
		Extent: vk.Extent2D{Width: sc.Width, Height: sc.Height},
	}})
}

// CmdSetVertexBuffer implements rhi.Driver.
func (d *Driver) CmdSetVertexBuffer(cb rhi.CommandBufferID, slot uint32, buffer rhi.BufferID, offset uint64) {
	state := d.state(cb)
	buf, ok := d.buffers.Resolve(uint64(buffer))
	if !ok {
		panic(fmt.Sprintf("vulkan: unknown vertex buffer %d", buffer))
	}
	vk.CmdBindVertexBuffers(state.buffer, slot, 1, []vk.Buffer{buf}, []vk.DeviceSize{vk.DeviceSize(offset)})
}

// CmdSetIndexBuffer implements rhi.Driver.
func (d *Driver) CmdSetIndexBuffer(cb rhi.CommandBufferID, buffer rhi.BufferID, offset uint64, format rhi.IndexFormat) {
	state := d.state(cb)
	buf, ok := d.buffers.Resolve(uint64(buffer))
	if !ok {
		panic(fmt.Sprintf("vulkan: unknown index buffer %d", buffer))
	}
	vk.CmdBindIndexBuffer(state.buffer, buf, vk.DeviceSize(offset), convertIndexType(format))
}

// CmdDraw implements rhi.Driver.
func (d *Driver) CmdDraw(cb rhi.CommandBufferID, vertexCount, instanceCount, firstVertex, firstInstance uint32) {
	state := d.state(cb)
	d.ensurePass(state, vk.SubpassContentsInline)
	vk.CmdDraw(state.buffer, vertexCount, instanceCount, firstVertex, firstInstance)
}

// CmdDrawIndexed implements rhi.Driver.
func (d *Driver) CmdDrawIndexed(cb rhi.CommandBufferID, indexCount, instanceCount, firstIndex uint32, vertexOffset int32, firstInstance uint32) {
	state := d.state(cb)
	d.ensurePass(state, vk.SubpassContentsInline)
	vk.CmdDrawIndexed(state.buffer, indexCount, instanceCount, firstIndex, vertexOffset, firstInstance)
}

// CmdDrawIndirect implements rhi.Driver.
func (d *Driver) CmdDrawIndirect(cb rhi.CommandBufferID, buffer rhi.BufferID, offset uint64, drawCount, stride uint32) {
	state := d.state(cb)
	buf, ok := d.buffers.Resolve(uint64(buffer))
	if !ok {
		panic(fmt.Sprintf("vulkan: unknown indirect buffer %d", buffer))
	}
	d.ensurePass(state, vk.SubpassContentsInline)
	vk.CmdDrawIndirect(state.buffer, buf, vk.DeviceSize(offset), drawCount, stride)
}

// CmdDrawIndexedIndirect implements rhi.Driver.
func (d *Driver) CmdDrawIndexedIndirect(cb rhi.CommandBufferID, buffer rhi.BufferID, offset uint64, drawCount, stride uint32) {
	state := d.state(cb)
	buf, ok := d.buffers.Resolve(uint64(buffer))
	if !ok {
		panic(fmt.Sprintf("vulkan: unknown indirect buffer %d", buffer))
	}
	d.ensurePass(state, vk.SubpassContentsInline)
	vk.CmdDrawIndexedIndirect(state.buffer, buf, vk.DeviceSize(offset), drawCount, stride)
}

// CmdDispatch implements rhi.Driver.
func (d *Driver) CmdDispatch(cb rhi.CommandBufferID, x, y, z uint32) {
	state := d.state(cb)
	vk.CmdDispatch(state.buffer, x, y, z)
}

// CmdCopyBuffer implements rhi.Driver.
func (d *Driver) CmdCopyBuffer(cb rhi.CommandBufferID, src, dst rhi.BufferID, region rhi.BufferCopy) {
	state := d.state(cb)
	srcBuf, ok := d.buffers.Resolve(uint64(src))
	if !ok {
		panic(fmt.Sprintf("vulkan: unknown copy source buffer %d", src))
	}
	dstBuf, ok := d.buffers.Resolve(uint64(dst))
	if !ok {
		panic(fmt.Sprintf("vulkan: unknown copy destination buffer %d", dst))
	}
	vk.CmdCopyBuffer(state.buffer, srcBuf, dstBuf, 1, []vk.BufferCopy{{
		SrcOffset: vk.DeviceSize(region.SrcOffset),
		DstOffset: vk.DeviceSize(region.DstOffset),
		Size:      vk.DeviceSize(region.Size),
	}})
}

// CmdCopyBufferToTexture implements rhi.Driver. The destination must have
// been transitioned to the copy-destination layout by a prior barrier.
func (d *Driver) CmdCopyBufferToTexture(cb rhi.CommandBufferID, src rhi.BufferID, dst rhi.TextureID, region rhi.BufferTextureCopy) {
	state := d.state(cb)
	srcBuf, ok := d.buffers.Resolve(uint64(src))
	if !ok {
		panic(fmt.Sprintf("vulkan: unknown copy source buffer %d", src))
	}
	tex, ok := d.textures.Resolve(uint64(dst))
	if !ok {
		panic(fmt.Sprintf("vulkan: unknown copy destination texture %d", dst))
	}
	vk.CmdCopyBufferToImage(state.buffer, srcBuf, tex.image, vk.ImageLayoutTransferDstOptimal,
		1, []vk.BufferImageCopy{bufferImageCopy(tex.info.Aspect, region)})
}

// CmdCopyTextureToBuffer implements rhi.Driver.
func (d *Driver) CmdCopyTextureToBuffer(cb rhi.CommandBufferID, src rhi.TextureID, dst rhi.BufferID, region rhi.BufferTextureCopy) {
	state := d.state(cb)
	tex, ok := d.textures.Resolve(uint64(src))
	if !ok {
		panic(fmt.Sprintf("vulkan: unknown copy source texture %d", src))
	}
	dstBuf, ok := d.buffers.Resolve(uint64(dst))
	if !ok {
		panic(fmt.Sprintf("vulkan: unknown copy destination buffer %d", dst))
	}
	vk.CmdCopyImageToBuffer(state.buffer, tex.image, vk.ImageLayoutTransferSrcOptimal, dstBuf,
		1, []vk.BufferImageCopy{bufferImageCopy(tex.info.Aspect, region)})
}

// CmdBlit implements rhi.Driver.
func (d *Driver) CmdBlit(cb rhi.CommandBufferID, src, dst rhi.TextureID, region rhi.TextureBlit) {
	state := d.state(cb)
	srcTex, ok := d.textures.Resolve(uint64(src))
	if !ok {
		panic(fmt.Sprintf("vulkan: unknown blit source texture %d", src))
	}
	dstTex, ok := d.textures.Resolve(uint64(dst))
	if !ok {
		panic(fmt.Sprintf("vulkan: unknown blit destination texture %d", dst))
	}
	blit := vk.ImageBlit{
		SrcSubresource: vk.ImageSubresourceLayers{
			AspectMask:     srcTex.info.Aspect,
			MipLevel:       region.SrcMipLevel,
			BaseArrayLayer: region.SrcArrayLayer,
			LayerCount:     1,
		},
		DstSubresource: vk.ImageSubresourceLayers{
			AspectMask:     dstTex.info.Aspect,
			MipLevel:       region.DstMipLevel,
			BaseArrayLayer: region.DstArrayLayer,
			LayerCount:     1,
		},
	}
	blit.SrcOffsets[1] = vk.Offset3D{
		X: int32(region.SrcExtent[0]),
		Y: int32(region.SrcExtent[1]),
		Z: int32(max(region.SrcExtent[2], 1)),
	}
	blit.DstOffsets[1] = vk.Offset3D{
		X: int32(region.DstExtent[0]),
		Y: int32(region.DstExtent[1]),
		Z: int32(max(region.DstExtent[2], 1)),
	}
	vk.CmdBlitImage(state.buffer, srcTex.image, vk.ImageLayoutTransferSrcOptimal,
		dstTex.image, vk.ImageLayoutTransferDstOptimal, 1, []vk.ImageBlit{blit}, vk.FilterLinear)
}

// CmdBeginLabel records a debug label. Debug-utils markers need an instance
// extension the driver does not manage, so labels surface through the
// logger.
func (d *Driver) CmdBeginLabel(cb rhi.CommandBufferID, label string) {
	rhi.Logger().Debug("vulkan: label begin", "label", label)
}

// CmdEndLabel closes the innermost debug label.
func (d *Driver) CmdEndLabel(cb rhi.CommandBufferID) {
	rhi.Logger().Debug("vulkan: label end")
}
