package rhi

import (
	"strings"
	"testing"
)

func testCommandBuffer(t *testing.T, device *Device, secondary bool) *CommandBuffer {
	t.Helper()
	cb, err := newCommandBuffer(device, QueueGraphics, secondary)
	if err != nil {
		t.Fatalf("newCommandBuffer: %v", err)
	}
	return cb
}

func TestCommandBufferLifecycle(t *testing.T) {
	drv := newMockDriver()
	device := NewDevice(drv)
	cb := testCommandBuffer(t, device, false)

	if cb.State() != StateReady {
		t.Fatalf("initial state = %v, want ready", cb.State())
	}

	if err := cb.Begin(1, nil); err != nil {
		t.Fatalf("Begin: %v", err)
	}
	if cb.State() != StateRecording {
		t.Fatalf("state after Begin = %v, want recording", cb.State())
	}

	if err := cb.Finish(); err != nil {
		t.Fatalf("Finish: %v", err)
	}
	if cb.State() != StateFinished {
		t.Fatalf("state after Finish = %v, want finished", cb.State())
	}

	cb.MarkSubmitted(7, 5)
	if cb.State() != StateSubmitted {
		t.Fatalf("state after MarkSubmitted = %v, want submitted", cb.State())
	}

	// Reset on a submitted buffer waits for the fence before touching it.
	if err := cb.Reset(); err != nil {
		t.Fatalf("Reset: %v", err)
	}
	if cb.State() != StateReady {
		t.Fatalf("state after Reset = %v, want ready", cb.State())
	}
	if drv.fences[7] < 5 {
		t.Error("Reset must wait for the submission fence")
	}
	if drv.resets != 1 {
		t.Errorf("driver resets = %d, want 1", drv.resets)
	}
}

func TestCommandBufferStatePanics(t *testing.T) {
	tests := []struct {
		name string
		fn   func(*CommandBuffer)
	}{
		{"Begin twice", func(cb *CommandBuffer) {
			cb.Begin(1, nil)
			cb.Begin(1, nil)
		}},
		{"Finish before Begin", func(cb *CommandBuffer) {
			cb.Finish()
		}},
		{"Draw before Begin", func(cb *CommandBuffer) {
			cb.Draw(3, 1, 0, 0)
		}},
		{"MarkSubmitted while recording", func(cb *CommandBuffer) {
			cb.Begin(1, nil)
			cb.MarkSubmitted(1, 1)
		}},
		{"Reset while recording", func(cb *CommandBuffer) {
			cb.Begin(1, nil)
			cb.Reset()
		}},
		{"Barrier inside render pass", func(cb *CommandBuffer) {
			cb.Begin(1, nil)
			cb.BeginRenderPass(&RenderPassInfo{})
			cb.Barrier(Barrier{Kind: BarrierGlobal, NewAccess: AccessSampledRead})
		}},
		{"Dispatch inside render pass", func(cb *CommandBuffer) {
			cb.Begin(1, nil)
			cb.SetPipeline(NewComputePipeline(1, &PipelineLayout{}, "cs"))
			cb.BeginRenderPass(&RenderPassInfo{})
			cb.Dispatch(1, 1, 1)
		}},
		{"EndRenderPass outside render pass", func(cb *CommandBuffer) {
			cb.Begin(1, nil)
			cb.EndRenderPass()
		}},
		{"SetPushConstants before SetPipeline", func(cb *CommandBuffer) {
			cb.Begin(1, nil)
			cb.SetPushConstants([]byte{1, 2, 3, 4})
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			device := NewDevice(newMockDriver())
			cb := testCommandBuffer(t, device, false)
			defer func() {
				if recover() == nil {
					t.Error("expected panic")
				}
			}()
			tt.fn(cb)
		})
	}
}

func TestCommandBufferDrawRequiresRenderPass(t *testing.T) {
	device := NewDevice(newMockDriver())
	layout, err := device.BuildPipelineLayout(vertexMeta(), fragmentMeta())
	if err != nil {
		t.Fatalf("BuildPipelineLayout: %v", err)
	}
	cb := testCommandBuffer(t, device, false)
	cb.Begin(1, nil)
	cb.SetPipeline(NewGraphicsPipeline(1, layout, "lit"))

	defer func() {
		if recover() == nil {
			t.Error("expected panic drawing outside a render pass")
		}
	}()
	cb.Draw(3, 1, 0, 0)
}

// TestCommandBufferFrame records a full frame and checks the emitted driver
// stream: barriers flush before the render pass, descriptor sets bind once
// per distinct content, and dynamic offsets rebind without new allocations.
func TestCommandBufferFrame(t *testing.T) {
	drv := newMockDriver()
	device := NewDevice(drv)
	layout, err := device.BuildPipelineLayout(vertexMeta(), fragmentMeta())
	if err != nil {
		t.Fatalf("BuildPipelineLayout: %v", err)
	}
	pipeline := NewGraphicsPipeline(1, layout, "lit")

	cb := testCommandBuffer(t, device, false)
	if err := cb.Begin(1, nil); err != nil {
		t.Fatalf("Begin: %v", err)
	}

	cb.SetPipeline(pipeline)
	cb.BindUniformBuffer(FrequencyPerDraw, 0, 10, 0, 256)
	cb.BindCombinedTextureSampler(FrequencyPerMaterial, 0, 20, 21)
	cb.BindUniformBuffer(FrequencyPerFrame, 0, 30, 0, 512)

	cb.Barrier(sampledTexBarrier(20, FirstSubresource, LayoutUndefined, SyncNone, AccessNone))
	cb.BeginRenderPass(&RenderPassInfo{Label: "forward"})

	if err := cb.Draw(3, 1, 0, 0); err != nil {
		t.Fatalf("Draw: %v", err)
	}
	if drv.allocated != 3 {
		t.Errorf("bind groups after first draw = %d, want 3", drv.allocated)
	}
	boundAfterFirst := len(drv.bound)
	if boundAfterFirst != 3 {
		t.Errorf("bind calls after first draw = %d, want 3", boundAfterFirst)
	}

	// Identical bindings: the second draw rebinds nothing.
	if err := cb.Draw(3, 1, 0, 0); err != nil {
		t.Fatalf("Draw: %v", err)
	}
	if len(drv.bound) != boundAfterFirst {
		t.Error("a draw with unchanged bindings must not rebind any set")
	}

	// An offset-only change on a dynamic slot rebinds the same group with
	// new offsets and allocates nothing.
	cb.BindUniformBuffer(FrequencyPerDraw, 0, 10, 1024, 256)
	if err := cb.Draw(3, 1, 0, 0); err != nil {
		t.Fatalf("Draw: %v", err)
	}
	if drv.allocated != 3 {
		t.Errorf("bind groups after offset change = %d, want 3", drv.allocated)
	}
	if len(drv.bound) != boundAfterFirst+1 {
		t.Fatalf("bind calls after offset change = %d, want %d", len(drv.bound), boundAfterFirst+1)
	}
	last := drv.bound[len(drv.bound)-1]
	if last.set != uint32(FrequencyPerDraw) || len(last.offsets) != 1 || last.offsets[0] != 1024 {
		t.Errorf("rebound set = %d offsets %v, want per-draw [1024]", last.set, last.offsets)
	}

	cb.EndRenderPass()
	if err := cb.Finish(); err != nil {
		t.Fatalf("Finish: %v", err)
	}

	// The barrier must have reached the driver before the render pass.
	stream := strings.Join(drv.calls, ",")
	barrierAt := strings.Index(stream, "barrier")
	passAt := strings.Index(stream, "beginRenderPass")
	if barrierAt < 0 || passAt < 0 || barrierAt > passAt {
		t.Errorf("barrier must flush before the render pass, stream: %s", stream)
	}
}

func TestCommandBufferComputeDispatch(t *testing.T) {
	drv := newMockDriver()
	device := NewDevice(drv)

	layout, err := device.BuildPipelineLayout(computeMeta())
	if err != nil {
		t.Fatalf("BuildPipelineLayout: %v", err)
	}

	cb := testCommandBuffer(t, device, false)
	cb.Begin(1, nil)
	cb.SetPipeline(NewComputePipeline(2, layout, "cull"))
	cb.BindStorageBuffer(FrequencyPerDraw, 0, 40, 0, 4096)

	cb.Barrier(Barrier{
		Kind:      BarrierBuffer,
		NewSync:   SyncComputeShader,
		NewAccess: AccessStorageWrite,
		Buffer:    40,
		Size:      4096,
	})

	if err := cb.Dispatch(64, 1, 1); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}

	stream := strings.Join(drv.calls, ",")
	barrierAt := strings.Index(stream, "barrier")
	dispatchAt := strings.Index(stream, "dispatch")
	if barrierAt < 0 || dispatchAt < 0 || barrierAt > dispatchAt {
		t.Errorf("barrier must flush before dispatch, stream: %s", stream)
	}
}

func TestCommandBufferSecondary(t *testing.T) {
	drv := newMockDriver()
	device := NewDevice(drv)

	pass := &RenderPassInfo{Label: "forward"}

	secondary := testCommandBuffer(t, device, true)
	if err := secondary.Begin(1, &RenderPassInheritance{Info: pass}); err != nil {
		t.Fatalf("Begin secondary: %v", err)
	}
	if err := secondary.Finish(); err != nil {
		t.Fatalf("Finish secondary: %v", err)
	}

	primary := testCommandBuffer(t, device, false)
	primary.Begin(1, nil)
	primary.BeginRenderPass(pass)
	primary.ExecuteCommands(secondary)
	primary.EndRenderPass()
	if err := primary.Finish(); err != nil {
		t.Fatalf("Finish primary: %v", err)
	}

	// Children follow the parent through submission.
	primary.MarkSubmitted(3, 9)
	if secondary.State() != StateSubmitted {
		t.Errorf("secondary state = %v, want submitted with its parent", secondary.State())
	}
}

func TestCommandBufferSecondaryPanics(t *testing.T) {
	tests := []struct {
		name string
		fn   func(device *Device)
	}{
		{"secondary without inheritance", func(device *Device) {
			cb, _ := newCommandBuffer(device, QueueGraphics, true)
			cb.Begin(1, nil)
		}},
		{"primary with inheritance", func(device *Device) {
			cb, _ := newCommandBuffer(device, QueueGraphics, false)
			cb.Begin(1, &RenderPassInheritance{})
		}},
		{"execute unfinished secondary", func(device *Device) {
			sec, _ := newCommandBuffer(device, QueueGraphics, true)
			sec.Begin(1, &RenderPassInheritance{})
			pri, _ := newCommandBuffer(device, QueueGraphics, false)
			pri.Begin(1, nil)
			pri.BeginRenderPass(&RenderPassInfo{})
			pri.ExecuteCommands(sec)
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			device := NewDevice(newMockDriver())
			defer func() {
				if recover() == nil {
					t.Error("expected panic")
				}
			}()
			tt.fn(device)
		})
	}
}

func TestCommandBufferPushConstants(t *testing.T) {
	drv := newMockDriver()
	device := NewDevice(drv)
	layout, err := device.BuildPipelineLayout(vertexMeta(), fragmentMeta())
	if err != nil {
		t.Fatalf("BuildPipelineLayout: %v", err)
	}

	cb := testCommandBuffer(t, device, false)
	cb.Begin(1, nil)
	cb.SetPipeline(NewGraphicsPipeline(1, layout, "lit"))

	cb.SetPushConstants(make([]byte, 16))
	if len(drv.calls) == 0 || !strings.HasPrefix(drv.calls[len(drv.calls)-1], "pushConstants") {
		t.Error("push constant upload must reach the driver")
	}

	defer func() {
		if recover() == nil {
			t.Error("expected panic for oversized push constant data")
		}
	}()
	cb.SetPushConstants(make([]byte, 64)) // block is 16 bytes
}

func TestCommandBufferPipelineSwitchInvalidatesBindings(t *testing.T) {
	drv := newMockDriver()
	device := NewDevice(drv)

	layoutA, err := device.BuildPipelineLayout(vertexMeta(), fragmentMeta())
	if err != nil {
		t.Fatalf("BuildPipelineLayout: %v", err)
	}
	layoutB, err := device.BuildPipelineLayout(vertexMeta())
	if err != nil {
		t.Fatalf("BuildPipelineLayout: %v", err)
	}
	if layoutA == layoutB {
		t.Fatal("test needs two distinct layouts")
	}

	cb := testCommandBuffer(t, device, false)
	cb.Begin(1, nil)
	cb.BindUniformBuffer(FrequencyPerDraw, 0, 10, 0, 256)
	cb.BindCombinedTextureSampler(FrequencyPerMaterial, 0, 20, 21)
	cb.BindUniformBuffer(FrequencyPerFrame, 0, 30, 0, 512)

	cb.SetPipeline(NewGraphicsPipeline(1, layoutA, "a"))
	cb.BeginRenderPass(&RenderPassInfo{})
	if err := cb.Draw(3, 1, 0, 0); err != nil {
		t.Fatalf("Draw: %v", err)
	}
	boundBefore := len(drv.bound)

	// Same layout, different pipeline: bindings stay valid.
	cb.SetPipeline(NewGraphicsPipeline(2, layoutA, "a2"))
	if err := cb.Draw(3, 1, 0, 0); err != nil {
		t.Fatalf("Draw: %v", err)
	}
	if len(drv.bound) != boundBefore {
		t.Error("a pipeline switch within one layout must not rebind sets")
	}

	// Different layout: everything rebinds.
	cb.SetPipeline(NewGraphicsPipeline(3, layoutB, "b"))
	if err := cb.Draw(3, 1, 0, 0); err != nil {
		t.Fatalf("Draw: %v", err)
	}
	if len(drv.bound) <= boundBefore {
		t.Error("a layout change must rebind the descriptor sets")
	}
}

// A graphics and a compute pipeline can intern the same layout, but
// descriptor sets are bound per bind point, so switching between them must
// rebind even though the layout did not change.
func TestCommandBufferBindPointSwitchRebinds(t *testing.T) {
	drv := newMockDriver()
	device := NewDevice(drv)

	layout, err := device.BuildPipelineLayout(computeMeta())
	if err != nil {
		t.Fatalf("BuildPipelineLayout: %v", err)
	}
	gfx := NewGraphicsPipeline(1, layout, "prepass")
	comp := NewComputePipeline(2, layout, "cull")

	cb := testCommandBuffer(t, device, false)
	cb.Begin(1, nil)
	cb.SetPipeline(gfx)
	cb.BindStorageBuffer(FrequencyPerDraw, 0, 40, 0, 4096)

	cb.BeginRenderPass(&RenderPassInfo{})
	if err := cb.Draw(3, 1, 0, 0); err != nil {
		t.Fatalf("Draw: %v", err)
	}
	cb.EndRenderPass()
	boundBefore := len(drv.bound)

	cb.SetPipeline(comp)
	if err := cb.Dispatch(8, 1, 1); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if len(drv.bound) <= boundBefore {
		t.Fatal("a bind-point switch must rebind descriptor sets")
	}
	last := drv.bound[len(drv.bound)-1]
	if last.kind != PipelineCompute {
		t.Errorf("rebind went to kind %v, want compute", last.kind)
	}
	if last.set != uint32(FrequencyPerDraw) {
		t.Errorf("rebound set = %d, want per-draw", last.set)
	}
}

// FinishBinding is itself a barrier flush point, even when no draw or
// dispatch follows it.
func TestCommandBufferFinishBindingFlushesBarriers(t *testing.T) {
	drv := newMockDriver()
	device := NewDevice(drv)

	layout, err := device.BuildPipelineLayout(computeMeta())
	if err != nil {
		t.Fatalf("BuildPipelineLayout: %v", err)
	}

	cb := testCommandBuffer(t, device, false)
	cb.Begin(1, nil)
	cb.SetPipeline(NewComputePipeline(1, layout, "cull"))
	cb.BindStorageBuffer(FrequencyPerDraw, 0, 40, 0, 4096)
	cb.Barrier(Barrier{
		Kind:      BarrierBuffer,
		NewSync:   SyncComputeShader,
		NewAccess: AccessStorageWrite,
		Buffer:    40,
		Size:      4096,
	})

	if err := cb.FinishBinding(); err != nil {
		t.Fatalf("FinishBinding: %v", err)
	}
	if len(drv.barriers) != 1 {
		t.Fatalf("driver barrier batches = %d, want 1", len(drv.barriers))
	}
	stream := strings.Join(drv.calls, ",")
	barrierAt := strings.Index(stream, "barrier")
	bindAt := strings.Index(stream, "bindGroup")
	if barrierAt < 0 || bindAt < 0 || barrierAt > bindAt {
		t.Errorf("barrier must flush before the set binds, stream: %s", stream)
	}
}

// A finished but never submitted buffer resets immediately, abandoning its
// recorded work without touching any fence.
func TestCommandBufferResetAbandonsFinishedRecording(t *testing.T) {
	drv := newMockDriver()
	device := NewDevice(drv)
	cb := testCommandBuffer(t, device, false)

	cb.Begin(1, nil)
	if err := cb.Finish(); err != nil {
		t.Fatalf("Finish: %v", err)
	}
	if err := cb.Reset(); err != nil {
		t.Fatalf("Reset: %v", err)
	}
	if cb.State() != StateReady {
		t.Fatalf("state after Reset = %v, want ready", cb.State())
	}
	if drv.resets != 1 {
		t.Errorf("driver resets = %d, want 1", drv.resets)
	}
	if len(drv.fences) != 0 {
		t.Error("resetting an unsubmitted buffer must not touch a fence")
	}
}
