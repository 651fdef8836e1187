// Package rhi provides a backend-independent render hardware interface core
// for Go.
//
// # Overview
//
// rhi sits between a renderer and a native GPU API. It owns the stateful
// machinery every backend would otherwise duplicate: command buffer
// lifecycles, resource binding with redundancy elimination, descriptor set
// caching, barrier tracking, and pipeline layout construction from shader
// reflection. Backends implement the narrow [Driver] interface and inherit
// all of it.
//
// # Quick Start
//
//	import (
//	    "github.com/gogpu/rhi"
//	    _ "github.com/gogpu/rhi/backend/webgpu" // registers the "webgpu" driver
//	)
//
//	drv, err := rhi.NewDriver("webgpu", nil)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	device := rhi.NewDevice(drv)
//	pool := rhi.NewCommandPool(device, rhi.QueueGraphics)
//
//	cb, _ := pool.Get(frame)
//	cb.SetPipeline(pipeline)
//	cb.BindUniformBuffer(rhi.FrequencyPerFrame, 0, cameraBuf, 0, 256)
//	cb.BeginRenderPass(passInfo)
//	cb.Draw(3, 1, 0, 0)
//	cb.EndRenderPass()
//	cb.Finish()
//
// # Architecture
//
// The core is organized around the command buffer:
//   - [CommandBuffer]: lifecycle state machine and recording surface
//   - [BindingTable]: per-draw resource bindings with dirty tracking
//   - [BindingManager]: content-addressed bind group cache and pools
//   - [BarrierTracker]: per-subresource synchronization state
//   - [Device]: interned descriptor set and pipeline layouts
//   - [Driver]: the seam a backend implements
//
// Bindings are grouped by update frequency ([FrequencyPerDraw],
// [FrequencyPerMaterial], [FrequencyPerFrame]); each frequency maps to one
// descriptor set, so state that changes together flushes together. The
// shader package describes the reflection metadata pipeline layouts are
// merged from.
//
// # Concurrency
//
// Devices and their layout caches are safe for concurrent use. A command
// buffer, with its binding table, bind-group cache and barrier tracker, is
// owned by one goroutine at a time.
//
// # Logging
//
// rhi is silent by default. Call [SetLogger] with a *slog.Logger to enable
// structured logging across the core and all backends.
package rhi
