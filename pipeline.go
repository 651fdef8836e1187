package rhi

// PipelineKind distinguishes graphics from compute pipelines.
type PipelineKind uint8

const (
	// PipelineGraphics draws inside render passes.
	PipelineGraphics PipelineKind = iota

	// PipelineCompute dispatches outside render passes.
	PipelineCompute
)

// String returns the lowercase name of the kind.
func (k PipelineKind) String() string {
	switch k {
	case PipelineGraphics:
		return "graphics"
	case PipelineCompute:
		return "compute"
	default:
		return "unknown"
	}
}

// Pipeline pairs a compiled driver pipeline with the interned layout it was
// built against. The layout is what the binding machinery flushes descriptor
// sets for.
type Pipeline struct {
	kind   PipelineKind
	native PipelineID
	layout *PipelineLayout
	label  string
}

// NewGraphicsPipeline wraps a compiled graphics pipeline.
func NewGraphicsPipeline(native PipelineID, layout *PipelineLayout, label string) *Pipeline {
	return &Pipeline{kind: PipelineGraphics, native: native, layout: layout, label: label}
}

// NewComputePipeline wraps a compiled compute pipeline.
func NewComputePipeline(native PipelineID, layout *PipelineLayout, label string) *Pipeline {
	return &Pipeline{kind: PipelineCompute, native: native, layout: layout, label: label}
}

// Kind returns whether the pipeline is graphics or compute.
func (p *Pipeline) Kind() PipelineKind { return p.kind }

// NativeID returns the driver pipeline handle.
func (p *Pipeline) NativeID() PipelineID { return p.native }

// Layout returns the interned pipeline layout.
func (p *Pipeline) Layout() *PipelineLayout { return p.layout }

// Label returns the debug label the pipeline was created with.
func (p *Pipeline) Label() string { return p.label }
