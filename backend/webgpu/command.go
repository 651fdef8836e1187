package webgpu

import (
	"fmt"
	"slices"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/rhi"
	"github.com/gogpu/rhi/shader"
)

// pendingGroup is one descriptor set waiting to be applied to the open pass.
type pendingGroup struct {
	group   rhi.BindGroupID
	offsets []uint32
	dirty   bool
}

// pendingVertex is one vertex buffer binding waiting to be applied.
type pendingVertex struct {
	slot   uint32
	buffer hal.Buffer
	offset uint64
}

// commandState is the recording state behind one rhi.CommandBufferID.
// Pipeline, bind-group and fixed-function state is buffered and applied
// lazily at the next draw or dispatch, because rhi delivers some of it
// before the enclosing pass is open.
type commandState struct {
	queue   rhi.QueueType
	encoder hal.CommandEncoder
	encoded hal.CommandBuffer

	renderPass  hal.RenderPassEncoder
	computePass hal.ComputePassEncoder

	pipeline        *rhi.Pipeline
	pipelineApplied bool

	groups   [rhi.SetCount]pendingGroup
	vertex   []pendingVertex
	index    hal.Buffer
	indexFmt gputypes.IndexFormat
	indexOff uint64
	hasIndex bool
	viewport *rhi.Viewport
	scissor  *rhi.Scissor
}

func (s *commandState) reset() {
	s.encoder = nil
	s.encoded = nil
	s.renderPass = nil
	s.computePass = nil
	s.pipeline = nil
	s.pipelineApplied = false
	s.groups = [rhi.SetCount]pendingGroup{}
	s.vertex = s.vertex[:0]
	s.index = nil
	s.hasIndex = false
	s.viewport = nil
	s.scissor = nil
}

// CreateCommandBuffer allocates recording state for one command buffer.
func (d *Driver) CreateCommandBuffer(queue rhi.QueueType, secondary bool) (rhi.CommandBufferID, error) {
	if secondary {
		return rhi.InvalidID, ErrSecondaryUnsupported
	}
	if queue != rhi.QueueGraphics {
		return rhi.InvalidID, fmt.Errorf("%w: queue %v", rhi.ErrUnknownQueue, queue)
	}
	return rhi.CommandBufferID(d.commands.Register(&commandState{queue: queue})), nil
}

// DestroyCommandBuffer releases a command buffer.
func (d *Driver) DestroyCommandBuffer(id rhi.CommandBufferID) {
	state, ok := d.commands.Resolve(uint64(id))
	if !ok {
		return
	}
	if state.encoded != nil {
		d.device.FreeCommandBuffer(state.encoded)
	}
	d.commands.Unregister(uint64(id))
}

func (d *Driver) state(id rhi.CommandBufferID) *commandState {
	state, ok := d.commands.Resolve(uint64(id))
	if !ok {
		panic(fmt.Sprintf("webgpu: unknown command buffer %d", id))
	}
	return state
}

// Begin opens a fresh HAL encoder for the command buffer.
func (d *Driver) Begin(id rhi.CommandBufferID, inheritance *rhi.RenderPassInheritance) error {
	if inheritance != nil {
		return ErrSecondaryUnsupported
	}
	state := d.state(id)
	if state.encoded != nil {
		d.device.FreeCommandBuffer(state.encoded)
		state.encoded = nil
	}
	encoder, err := d.device.CreateCommandEncoder(&hal.CommandEncoderDescriptor{
		Label: "rhi_command_buffer",
	})
	if err != nil {
		return fmt.Errorf("webgpu: create command encoder: %w", err)
	}
	if err := encoder.BeginEncoding("rhi_command_buffer"); err != nil {
		return fmt.Errorf("webgpu: begin encoding: %w", err)
	}
	state.reset()
	state.encoder = encoder
	return nil
}

// End closes recording and stores the submittable HAL command buffer.
func (d *Driver) End(id rhi.CommandBufferID) error {
	state := d.state(id)
	d.closePasses(state)
	encoded, err := state.encoder.EndEncoding()
	if err != nil {
		return fmt.Errorf("webgpu: end encoding: %w", err)
	}
	state.encoded = encoded
	state.encoder = nil
	return nil
}

// Reset releases the encoded command buffer so the state can record again.
func (d *Driver) Reset(id rhi.CommandBufferID) error {
	state := d.state(id)
	if state.encoder != nil {
		d.closePasses(state)
		state.encoder.DiscardEncoding()
	}
	if state.encoded != nil {
		d.device.FreeCommandBuffer(state.encoded)
	}
	state.reset()
	return nil
}

func (d *Driver) closePasses(state *commandState) {
	if state.renderPass != nil {
		state.renderPass.End()
		state.renderPass = nil
	}
	if state.computePass != nil {
		state.computePass.End()
		state.computePass = nil
	}
	state.pipelineApplied = false
	for i := range state.groups {
		if state.groups[i].group != rhi.InvalidID {
			state.groups[i].dirty = true
		}
	}
}

// CmdSetPipeline buffers the pipeline switch; it is applied when the next
// draw or dispatch flushes state into the open pass.
func (d *Driver) CmdSetPipeline(cb rhi.CommandBufferID, p *rhi.Pipeline) {
	state := d.state(cb)
	state.pipeline = p
	state.pipelineApplied = false
}

// CmdBindGroup buffers one descriptor set binding.
func (d *Driver) CmdBindGroup(cb rhi.CommandBufferID, kind rhi.PipelineKind, set uint32, group rhi.BindGroupID, dynamicOffsets []uint32) {
	state := d.state(cb)
	g := &state.groups[set]
	g.group = group
	g.offsets = slices.Clone(dynamicOffsets)
	g.dirty = true
}

// CmdPushConstants drops the update: WebGPU has no push constants, and the
// zero push limit keeps well-formed pipelines from reaching this path.
func (d *Driver) CmdPushConstants(cb rhi.CommandBufferID, stages shader.StageMask, offset uint32, data []byte) {
	rhi.Logger().Warn("webgpu: push constants are not supported, update dropped",
		"offset", offset, "size", len(data))
}

// CmdBarrier emits texture layout transitions. Buffer and global barriers
// have no HAL equivalent; the WebGPU runtime tracks those hazards itself.
func (d *Driver) CmdBarrier(cb rhi.CommandBufferID, batch *rhi.BarrierBatch) {
	state := d.state(cb)
	if state.computePass != nil {
		state.computePass.End()
		state.computePass = nil
	}
	if len(batch.Textures) == 0 {
		return
	}
	barriers := make([]hal.TextureBarrier, 0, len(batch.Textures))
	for i := range batch.Textures {
		tb := &batch.Textures[i]
		tex, ok := d.textures.Resolve(uint64(tb.Texture))
		if !ok {
			rhi.Logger().Warn("webgpu: barrier references unknown texture", "texture", tb.Texture)
			continue
		}
		barriers = append(barriers, hal.TextureBarrier{
			Texture: tex.texture,
			Usage: hal.TextureUsageTransition{
				OldUsage: layoutUsage(tb.OldLayout),
				NewUsage: layoutUsage(tb.NewLayout),
			},
		})
	}
	if len(barriers) > 0 {
		state.encoder.TransitionTextures(barriers)
	}
}

// CmdBeginRenderPass opens a HAL render pass with the given attachments.
func (d *Driver) CmdBeginRenderPass(cb rhi.CommandBufferID, info *rhi.RenderPassInfo) {
	state := d.state(cb)
	if state.computePass != nil {
		state.computePass.End()
		state.computePass = nil
	}
	desc := &hal.RenderPassDescriptor{Label: info.Label}
	for i := range info.Colors {
		ca := &info.Colors[i]
		tex, ok := d.textures.Resolve(uint64(ca.Texture))
		if !ok {
			panic(fmt.Sprintf("webgpu: render pass color attachment references unknown texture %d", ca.Texture))
		}
		att := hal.RenderPassColorAttachment{
			View:    tex.view,
			LoadOp:  convertLoadOp(ca.Load),
			StoreOp: convertStoreOp(ca.Store),
			ClearValue: gputypes.Color{
				R: float64(ca.ClearColor[0]),
				G: float64(ca.ClearColor[1]),
				B: float64(ca.ClearColor[2]),
				A: float64(ca.ClearColor[3]),
			},
		}
		if ca.Resolve != rhi.InvalidID {
			resolve, ok := d.textures.Resolve(uint64(ca.Resolve))
			if !ok {
				panic(fmt.Sprintf("webgpu: render pass resolve target references unknown texture %d", ca.Resolve))
			}
			att.ResolveTarget = resolve.view
		}
		desc.ColorAttachments = append(desc.ColorAttachments, att)
	}
	if ds := info.DepthStencil; ds != nil {
		tex, ok := d.textures.Resolve(uint64(ds.Texture))
		if !ok {
			panic(fmt.Sprintf("webgpu: render pass depth attachment references unknown texture %d", ds.Texture))
		}
		desc.DepthStencilAttachment = &hal.RenderPassDepthStencilAttachment{
			View:              tex.view,
			DepthLoadOp:       convertLoadOp(ds.Load),
			DepthStoreOp:      convertStoreOp(ds.Store),
			DepthClearValue:   ds.ClearDepth,
			StencilLoadOp:     convertLoadOp(ds.StencilLoad),
			StencilStoreOp:    convertStoreOp(ds.StencilStore),
			StencilClearValue: ds.ClearStencil,
		}
	}
	state.renderPass = state.encoder.BeginRenderPass(desc)
	state.pipelineApplied = false
}

// CmdEndRenderPass closes the open render pass.
func (d *Driver) CmdEndRenderPass(cb rhi.CommandBufferID) {
	state := d.state(cb)
	if state.renderPass != nil {
		state.renderPass.End()
		state.renderPass = nil
	}
}

// CmdExecuteCommands is unsupported; secondary command buffers cannot be
// created on this backend, so the core never reaches this path.
func (d *Driver) CmdExecuteCommands(cb rhi.CommandBufferID, inner []rhi.CommandBufferID) {
	rhi.Logger().Warn("webgpu: execute-commands is not supported", "count", len(inner))
}

// CmdSetViewport buffers the viewport transform.
func (d *Driver) CmdSetViewport(cb rhi.CommandBufferID, vp rhi.Viewport) {
	state := d.state(cb)
	state.viewport = &vp
}

// CmdSetScissor buffers the scissor rectangle.
func (d *Driver) CmdSetScissor(cb rhi.CommandBufferID, sc rhi.Scissor) {
	state := d.state(cb)
	state.scissor = &sc
}

// CmdSetVertexBuffer buffers a vertex buffer binding.
func (d *Driver) CmdSetVertexBuffer(cb rhi.CommandBufferID, slot uint32, buffer rhi.BufferID, offset uint64) {
	state := d.state(cb)
	buf, ok := d.buffers.Resolve(uint64(buffer))
	if !ok {
		panic(fmt.Sprintf("webgpu: unknown vertex buffer %d", buffer))
	}
	for i := range state.vertex {
		if state.vertex[i].slot == slot {
			state.vertex[i] = pendingVertex{slot: slot, buffer: buf, offset: offset}
			return
		}
	}
	state.vertex = append(state.vertex, pendingVertex{slot: slot, buffer: buf, offset: offset})
}

// CmdSetIndexBuffer buffers the index buffer binding.
func (d *Driver) CmdSetIndexBuffer(cb rhi.CommandBufferID, buffer rhi.BufferID, offset uint64, format rhi.IndexFormat) {
	state := d.state(cb)
	buf, ok := d.buffers.Resolve(uint64(buffer))
	if !ok {
		panic(fmt.Sprintf("webgpu: unknown index buffer %d", buffer))
	}
	state.index = buf
	state.indexOff = offset
	state.hasIndex = true
	if format == rhi.IndexUint32 {
		state.indexFmt = gputypes.IndexFormatUint32
	} else {
		state.indexFmt = gputypes.IndexFormatUint16
	}
}

// flushRenderState applies buffered pipeline, descriptor and fixed-function
// state to the open render pass.
func (d *Driver) flushRenderState(state *commandState) {
	rp := state.renderPass
	if !state.pipelineApplied && state.pipeline != nil {
		pipe, ok := d.renderPipes.Resolve(uint64(state.pipeline.NativeID()))
		if !ok {
			panic(fmt.Sprintf("webgpu: unknown render pipeline %d", state.pipeline.NativeID()))
		}
		rp.SetPipeline(pipe)
		state.pipelineApplied = true
	}
	for set := range state.groups {
		g := &state.groups[set]
		if !g.dirty || g.group == rhi.InvalidID {
			continue
		}
		group, ok := d.groups.Resolve(uint64(g.group))
		if !ok {
			panic(fmt.Sprintf("webgpu: unknown bind group %d", g.group))
		}
		rp.SetBindGroup(uint32(set), group, g.offsets)
		g.dirty = false
	}
	for _, v := range state.vertex {
		rp.SetVertexBuffer(v.slot, v.buffer, v.offset)
	}
	state.vertex = state.vertex[:0]
	if state.hasIndex {
		rp.SetIndexBuffer(state.index, state.indexFmt, state.indexOff)
		state.hasIndex = false
	}
	if vp := state.viewport; vp != nil {
		rp.SetViewport(vp.X, vp.Y, vp.Width, vp.Height, vp.MinDepth, vp.MaxDepth)
		state.viewport = nil
	}
	if sc := state.scissor; sc != nil {
		rp.SetScissorRect(uint32(sc.X), uint32(sc.Y), sc.Width, sc.Height)
		state.scissor = nil
	}
}

// ensureComputePass opens a compute pass if none is open and applies the
// buffered pipeline and descriptor state.
func (d *Driver) ensureComputePass(state *commandState) hal.ComputePassEncoder {
	if state.computePass == nil {
		state.computePass = state.encoder.BeginComputePass(&hal.ComputePassDescriptor{
			Label: "rhi_compute",
		})
		state.pipelineApplied = false
	}
	pass := state.computePass
	if !state.pipelineApplied && state.pipeline != nil {
		pipe, ok := d.computePipes.Resolve(uint64(state.pipeline.NativeID()))
		if !ok {
			panic(fmt.Sprintf("webgpu: unknown compute pipeline %d", state.pipeline.NativeID()))
		}
		pass.SetPipeline(pipe)
		state.pipelineApplied = true
	}
	for set := range state.groups {
		g := &state.groups[set]
		if !g.dirty || g.group == rhi.InvalidID {
			continue
		}
		group, ok := d.groups.Resolve(uint64(g.group))
		if !ok {
			panic(fmt.Sprintf("webgpu: unknown bind group %d", g.group))
		}
		pass.SetBindGroup(uint32(set), group, g.offsets)
		g.dirty = false
	}
	return pass
}

// CmdDraw issues a non-indexed draw.
func (d *Driver) CmdDraw(cb rhi.CommandBufferID, vertexCount, instanceCount, firstVertex, firstInstance uint32) {
	state := d.state(cb)
	d.flushRenderState(state)
	state.renderPass.Draw(vertexCount, instanceCount, firstVertex, firstInstance)
}

// CmdDrawIndexed issues an indexed draw.
func (d *Driver) CmdDrawIndexed(cb rhi.CommandBufferID, indexCount, instanceCount, firstIndex uint32, vertexOffset int32, firstInstance uint32) {
	state := d.state(cb)
	d.flushRenderState(state)
	state.renderPass.DrawIndexed(indexCount, instanceCount, firstIndex, vertexOffset, firstInstance)
}

// CmdDrawIndirect is unsupported on this backend; the draw is dropped.
func (d *Driver) CmdDrawIndirect(cb rhi.CommandBufferID, buffer rhi.BufferID, offset uint64, drawCount, stride uint32) {
	rhi.Logger().Warn("webgpu: indirect draws are not supported, draw dropped",
		"buffer", buffer, "count", drawCount)
}

// CmdDrawIndexedIndirect is unsupported on this backend; the draw is
// dropped.
func (d *Driver) CmdDrawIndexedIndirect(cb rhi.CommandBufferID, buffer rhi.BufferID, offset uint64, drawCount, stride uint32) {
	rhi.Logger().Warn("webgpu: indirect draws are not supported, draw dropped",
		"buffer", buffer, "count", drawCount)
}

// CmdDispatch issues a compute dispatch, opening a compute pass if needed.
func (d *Driver) CmdDispatch(cb rhi.CommandBufferID, x, y, z uint32) {
	state := d.state(cb)
	pass := d.ensureComputePass(state)
	pass.Dispatch(x, y, z)
}

// CmdCopyBuffer copies a buffer range.
func (d *Driver) CmdCopyBuffer(cb rhi.CommandBufferID, src, dst rhi.BufferID, region rhi.BufferCopy) {
	state := d.state(cb)
	if state.computePass != nil {
		state.computePass.End()
		state.computePass = nil
	}
	srcBuf, ok := d.buffers.Resolve(uint64(src))
	if !ok {
		panic(fmt.Sprintf("webgpu: unknown copy source buffer %d", src))
	}
	dstBuf, ok := d.buffers.Resolve(uint64(dst))
	if !ok {
		panic(fmt.Sprintf("webgpu: unknown copy destination buffer %d", dst))
	}
	state.encoder.CopyBufferToBuffer(srcBuf, dstBuf, []hal.BufferCopy{{
		SrcOffset: region.SrcOffset,
		DstOffset: region.DstOffset,
		Size:      region.Size,
	}})
}

func bufferTextureRegion(tex textureEntry, region rhi.BufferTextureCopy) hal.BufferTextureCopy {
	rowTexels := region.RowLength
	if rowTexels == 0 {
		rowTexels = region.Extent[0]
	}
	rows := region.ImageHeight
	if rows == 0 {
		rows = region.Extent[1]
	}
	return hal.BufferTextureCopy{
		BufferLayout: hal.ImageDataLayout{
			Offset:       region.BufferOffset,
			BytesPerRow:  rowTexels * tex.bytesPerTexel,
			RowsPerImage: rows,
		},
		TextureBase: hal.ImageCopyTexture{
			Texture:  tex.texture,
			MipLevel: region.MipLevel,
		},
		Size: hal.Extent3D{
			Width:              region.Extent[0],
			Height:             region.Extent[1],
			DepthOrArrayLayers: region.Extent[2],
		},
	}
}

// CmdCopyBufferToTexture copies buffer contents into a texture subresource.
func (d *Driver) CmdCopyBufferToTexture(cb rhi.CommandBufferID, src rhi.BufferID, dst rhi.TextureID, region rhi.BufferTextureCopy) {
	state := d.state(cb)
	if state.computePass != nil {
		state.computePass.End()
		state.computePass = nil
	}
	srcBuf, ok := d.buffers.Resolve(uint64(src))
	if !ok {
		panic(fmt.Sprintf("webgpu: unknown copy source buffer %d", src))
	}
	tex, ok := d.textures.Resolve(uint64(dst))
	if !ok {
		panic(fmt.Sprintf("webgpu: unknown copy destination texture %d", dst))
	}
	state.encoder.CopyBufferToTexture(srcBuf, tex.texture, []hal.BufferTextureCopy{
		bufferTextureRegion(tex, region),
	})
}

// CmdCopyTextureToBuffer copies a texture subresource into a buffer.
func (d *Driver) CmdCopyTextureToBuffer(cb rhi.CommandBufferID, src rhi.TextureID, dst rhi.BufferID, region rhi.BufferTextureCopy) {
	state := d.state(cb)
	if state.computePass != nil {
		state.computePass.End()
		state.computePass = nil
	}
	tex, ok := d.textures.Resolve(uint64(src))
	if !ok {
		panic(fmt.Sprintf("webgpu: unknown copy source texture %d", src))
	}
	dstBuf, ok := d.buffers.Resolve(uint64(dst))
	if !ok {
		panic(fmt.Sprintf("webgpu: unknown copy destination buffer %d", dst))
	}
	state.encoder.CopyTextureToBuffer(tex.texture, dstBuf, []hal.BufferTextureCopy{
		bufferTextureRegion(tex, region),
	})
}

// CmdBlit is unsupported; the HAL exposes no texture-to-texture copy with
// scaling. The blit is dropped.
func (d *Driver) CmdBlit(cb rhi.CommandBufferID, src, dst rhi.TextureID, region rhi.TextureBlit) {
	rhi.Logger().Warn("webgpu: texture blits are not supported, blit dropped",
		"src", src, "dst", dst)
}

// CmdBeginLabel records a debug label. The HAL has no marker API; labels
// surface through the logger instead.
func (d *Driver) CmdBeginLabel(cb rhi.CommandBufferID, label string) {
	rhi.Logger().Debug("webgpu: label begin", "label", label)
}

// CmdEndLabel closes the innermost debug label.
func (d *Driver) CmdEndLabel(cb rhi.CommandBufferID) {
	rhi.Logger().Debug("webgpu: label end")
}
