package rhi

// LoadOp selects what happens to an attachment's contents when a render pass
// begins.
type LoadOp uint8

const (
	// LoadOpLoad preserves the existing contents.
	LoadOpLoad LoadOp = iota

	// LoadOpClear clears to the attachment's clear value.
	LoadOpClear

	// LoadOpDontCare leaves the contents undefined.
	LoadOpDontCare
)

// StoreOp selects what happens to an attachment's contents when a render
// pass ends.
type StoreOp uint8

const (
	// StoreOpStore writes results back to the attachment.
	StoreOpStore StoreOp = iota

	// StoreOpDontCare discards results.
	StoreOpDontCare
)

// ColorAttachment is one color target of a render pass.
type ColorAttachment struct {
	Texture    TextureID
	MipLevel   uint32
	ArrayLayer uint32
	Load       LoadOp
	Store      StoreOp
	ClearColor [4]float32

	// Resolve is the single-sampled resolve target, InvalidID when the
	// attachment is not multisampled.
	Resolve TextureID
}

// DepthStencilAttachment is the depth/stencil target of a render pass.
type DepthStencilAttachment struct {
	Texture      TextureID
	Load         LoadOp
	Store        StoreOp
	StencilLoad  LoadOp
	StencilStore StoreOp
	ClearDepth   float32
	ClearStencil uint32

	// ReadOnly marks passes that test but never write depth/stencil.
	ReadOnly bool
}

// RenderPassInfo describes the attachments of one render pass.
type RenderPassInfo struct {
	Label        string
	Colors       []ColorAttachment
	DepthStencil *DepthStencilAttachment
}

// RenderPassInheritance tells a secondary command buffer which render pass
// it records inside.
type RenderPassInheritance struct {
	Info *RenderPassInfo
}
