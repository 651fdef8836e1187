package rhi

// CommandPool hands out recording command buffers for one queue and recycles
// them once their submissions complete. Buffers never shrink back; a pool
// settles at the peak number of buffers in flight.
//
// A CommandPool is owned by a single goroutine, typically the one recording
// for its queue.
type CommandPool struct {
	device    *Device
	queue     QueueType
	primary   []*CommandBuffer
	secondary []*CommandBuffer
}

// NewCommandPool creates an empty pool for the given queue.
func NewCommandPool(device *Device, queue QueueType) *CommandPool {
	return &CommandPool{device: device, queue: queue}
}

// Get returns a primary command buffer in the recording state for the given
// frame, recycling a ready or completed buffer when one exists.
func (p *CommandPool) Get(frame uint64) (*CommandBuffer, error) {
	cb, err := p.acquire(&p.primary, false)
	if err != nil {
		return nil, err
	}
	if err := cb.Begin(frame, nil); err != nil {
		return nil, err
	}
	return cb, nil
}

// GetSecondary returns a secondary command buffer recording inside the given
// render pass.
func (p *CommandPool) GetSecondary(frame uint64, inheritance *RenderPassInheritance) (*CommandBuffer, error) {
	cb, err := p.acquire(&p.secondary, true)
	if err != nil {
		return nil, err
	}
	if err := cb.Begin(frame, inheritance); err != nil {
		return nil, err
	}
	return cb, nil
}

func (p *CommandPool) acquire(list *[]*CommandBuffer, secondary bool) (*CommandBuffer, error) {
	for _, cb := range *list {
		if cb.state == StateReady {
			return cb, nil
		}
	}
	// Recycle a submitted buffer whose fence already signaled; Reset does
	// not block for those.
	for _, cb := range *list {
		if cb.state == StateSubmitted && p.device.driver.FenceValue(cb.fence) >= cb.fenceValue {
			if err := cb.Reset(); err != nil {
				return nil, err
			}
			return cb, nil
		}
	}
	cb, err := newCommandBuffer(p.device, p.queue, secondary)
	if err != nil {
		return nil, err
	}
	*list = append(*list, cb)
	Logger().Debug("rhi: command buffer created", "queue", p.queue, "secondary", secondary,
		"pooled", len(p.primary)+len(p.secondary))
	return cb, nil
}

// Recycle resets a finished or submitted buffer so Get can reuse it.
// Submitted buffers wait for their fence; finished but never submitted
// buffers have their recorded work abandoned.
func (p *CommandPool) Recycle(cb *CommandBuffer) error {
	return cb.Reset()
}

// Destroy waits for outstanding submissions and releases every pooled
// buffer.
func (p *CommandPool) Destroy() error {
	for _, list := range [][]*CommandBuffer{p.primary, p.secondary} {
		for _, cb := range list {
			if err := cb.Reset(); err != nil {
				return err
			}
			cb.Destroy()
		}
	}
	p.primary = nil
	p.secondary = nil
	return nil
}
