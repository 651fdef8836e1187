package rhi

import (
	"fmt"

	"github.com/gogpu/rhi/shader"
)

// mockDriver implements Driver for tests. It hands out sequential handles,
// enforces a configurable per-pool bind group capacity, and records the
// recording calls it receives so tests can assert on the emitted stream.
type mockDriver struct {
	limits DeviceLimits
	queues []QueueType

	nextID uint64

	// Bind group pools.
	poolCapacity int
	poolCounts   map[BindGroupPoolID]int
	poolKind     map[BindGroupPoolID]bool // true = transient
	allocated    int
	freed        []BindGroupID
	poolResets   int

	// Layout caches.
	layoutsCreated         int
	pipelineLayoutsCreated int

	// Command buffers and fences.
	begun, ended, resets int
	fences               map[FenceID]uint64

	// Recording stream.
	calls    []string
	barriers []BarrierBatch
	bound    []boundSet

	// Failure injection.
	allocErr error
}

type boundSet struct {
	kind    PipelineKind
	set     uint32
	group   BindGroupID
	offsets []uint32
}

func newMockDriver() *mockDriver {
	return &mockDriver{
		limits:       DefaultLimits(),
		queues:       []QueueType{QueueGraphics, QueueCompute},
		poolCapacity: 64,
		poolCounts:   make(map[BindGroupPoolID]int),
		poolKind:     make(map[BindGroupPoolID]bool),
		fences:       make(map[FenceID]uint64),
	}
}

func (d *mockDriver) id() uint64 {
	d.nextID++
	return d.nextID
}

func (d *mockDriver) record(format string, args ...any) {
	d.calls = append(d.calls, fmt.Sprintf(format, args...))
}

func (d *mockDriver) Name() string         { return "mock" }
func (d *mockDriver) Limits() DeviceLimits { return d.limits }
func (d *mockDriver) Queues() []QueueType  { return d.queues }

func (d *mockDriver) CreateBindGroupLayout(slots []LayoutSlot) (BindGroupLayoutID, error) {
	d.layoutsCreated++
	return BindGroupLayoutID(d.id()), nil
}

func (d *mockDriver) DestroyBindGroupLayout(BindGroupLayoutID) {}

func (d *mockDriver) CreatePipelineLayout([SetCount]BindGroupLayoutID, []PushConstantRange) (PipelineLayoutID, error) {
	d.pipelineLayoutsCreated++
	return PipelineLayoutID(d.id()), nil
}

func (d *mockDriver) DestroyPipelineLayout(PipelineLayoutID) {}

func (d *mockDriver) CreateBindGroupPool(transient bool) (BindGroupPoolID, error) {
	id := BindGroupPoolID(d.id())
	d.poolCounts[id] = 0
	d.poolKind[id] = transient
	return id, nil
}

func (d *mockDriver) ResetBindGroupPool(id BindGroupPoolID) {
	d.poolCounts[id] = 0
	d.poolResets++
}

func (d *mockDriver) DestroyBindGroupPool(id BindGroupPoolID) {
	delete(d.poolCounts, id)
	delete(d.poolKind, id)
}

func (d *mockDriver) AllocateBindGroup(pool BindGroupPoolID, layout BindGroupLayoutID, slots []LayoutSlot, bindings []BoundResource) (BindGroupID, error) {
	if d.allocErr != nil {
		return InvalidID, d.allocErr
	}
	if d.poolCounts[pool] >= d.poolCapacity {
		return InvalidID, ErrPoolExhausted
	}
	d.poolCounts[pool]++
	d.allocated++
	return BindGroupID(d.id()), nil
}

func (d *mockDriver) FreeBindGroup(pool BindGroupPoolID, group BindGroupID) {
	d.poolCounts[pool]--
	d.freed = append(d.freed, group)
}

func (d *mockDriver) CreateCommandBuffer(queue QueueType, secondary bool) (CommandBufferID, error) {
	return CommandBufferID(d.id()), nil
}

func (d *mockDriver) DestroyCommandBuffer(CommandBufferID) {}

func (d *mockDriver) Begin(CommandBufferID, *RenderPassInheritance) error {
	d.begun++
	return nil
}

func (d *mockDriver) End(CommandBufferID) error {
	d.ended++
	return nil
}

func (d *mockDriver) Reset(CommandBufferID) error {
	d.resets++
	return nil
}

func (d *mockDriver) WaitFence(fence FenceID, value uint64) error {
	if d.fences[fence] < value {
		d.fences[fence] = value
	}
	return nil
}

func (d *mockDriver) FenceValue(fence FenceID) uint64 { return d.fences[fence] }

func (d *mockDriver) signal(fence FenceID, value uint64) { d.fences[fence] = value }

func (d *mockDriver) CmdSetPipeline(cb CommandBufferID, p *Pipeline) {
	d.record("setPipeline %s", p.Label())
}

func (d *mockDriver) CmdBindGroup(cb CommandBufferID, kind PipelineKind, set uint32, group BindGroupID, offsets []uint32) {
	d.record("bindGroup set=%d", set)
	d.bound = append(d.bound, boundSet{kind: kind, set: set, group: group, offsets: append([]uint32(nil), offsets...)})
}

func (d *mockDriver) CmdPushConstants(cb CommandBufferID, stages shader.StageMask, offset uint32, data []byte) {
	d.record("pushConstants %d bytes", len(data))
}

func (d *mockDriver) CmdBarrier(cb CommandBufferID, batch *BarrierBatch) {
	d.record("barrier g=%d b=%d t=%d", len(batch.Globals), len(batch.Buffers), len(batch.Textures))
	cp := BarrierBatch{
		Globals:  append([]MemoryBarrier(nil), batch.Globals...),
		Buffers:  append([]BufferBarrierDesc(nil), batch.Buffers...),
		Textures: append([]TextureBarrierDesc(nil), batch.Textures...),
	}
	d.barriers = append(d.barriers, cp)
}

func (d *mockDriver) CmdBeginRenderPass(cb CommandBufferID, info *RenderPassInfo) {
	d.record("beginRenderPass")
}

func (d *mockDriver) CmdEndRenderPass(cb CommandBufferID) { d.record("endRenderPass") }

func (d *mockDriver) CmdExecuteCommands(cb CommandBufferID, inner []CommandBufferID) {
	d.record("executeCommands %d", len(inner))
}

func (d *mockDriver) CmdSetViewport(cb CommandBufferID, vp Viewport) { d.record("setViewport") }
func (d *mockDriver) CmdSetScissor(cb CommandBufferID, sc Scissor)  { d.record("setScissor") }

func (d *mockDriver) CmdSetVertexBuffer(cb CommandBufferID, slot uint32, buf BufferID, offset uint64) {
	d.record("setVertexBuffer slot=%d", slot)
}

func (d *mockDriver) CmdSetIndexBuffer(cb CommandBufferID, buf BufferID, offset uint64, format IndexFormat) {
	d.record("setIndexBuffer")
}

func (d *mockDriver) CmdDraw(cb CommandBufferID, vertexCount, instanceCount, firstVertex, firstInstance uint32) {
	d.record("draw %d", vertexCount)
}

func (d *mockDriver) CmdDrawIndexed(cb CommandBufferID, indexCount, instanceCount, firstIndex uint32, vertexOffset int32, firstInstance uint32) {
	d.record("drawIndexed %d", indexCount)
}

func (d *mockDriver) CmdDrawIndirect(cb CommandBufferID, buf BufferID, offset uint64, drawCount, stride uint32) {
	d.record("drawIndirect")
}

func (d *mockDriver) CmdDrawIndexedIndirect(cb CommandBufferID, buf BufferID, offset uint64, drawCount, stride uint32) {
	d.record("drawIndexedIndirect")
}

func (d *mockDriver) CmdDispatch(cb CommandBufferID, x, y, z uint32) {
	d.record("dispatch %dx%dx%d", x, y, z)
}

func (d *mockDriver) CmdCopyBuffer(cb CommandBufferID, src, dst BufferID, region BufferCopy) {
	d.record("copyBuffer")
}

func (d *mockDriver) CmdCopyBufferToTexture(cb CommandBufferID, src BufferID, dst TextureID, region BufferTextureCopy) {
	d.record("copyBufferToTexture")
}

func (d *mockDriver) CmdCopyTextureToBuffer(cb CommandBufferID, src TextureID, dst BufferID, region BufferTextureCopy) {
	d.record("copyTextureToBuffer")
}

func (d *mockDriver) CmdBlit(cb CommandBufferID, src, dst TextureID, region TextureBlit) {
	d.record("blit")
}

func (d *mockDriver) CmdBeginLabel(cb CommandBufferID, label string) { d.record("beginLabel %s", label) }
func (d *mockDriver) CmdEndLabel(cb CommandBufferID)                 { d.record("endLabel") }
