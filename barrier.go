package rhi

// BarrierSync is a bitmask of pipeline stage groups a barrier orders
// against.
type BarrierSync uint32

const (
	SyncNone           BarrierSync = 0
	SyncIndirect       BarrierSync = 1 << iota // indirect argument fetch
	SyncIndexInput                             // index buffer fetch
	SyncVertexInput                            // vertex attribute fetch
	SyncVertexShader                           // vertex and geometry-style stages
	SyncFragmentShader                         // fragment stage
	SyncEarlyDepth                             // depth test before fragment
	SyncLateDepth                              // depth test after fragment
	SyncRenderTarget                           // color attachment output
	SyncComputeShader                          // compute stage
	SyncCopy                                   // transfer operations
	SyncResolve                                // multisample resolve
	SyncHost                                   // host reads and writes
	SyncAccelStructBuild                       // acceleration structure builds
	SyncRayTracing                             // ray tracing shader stages
)

// accelSyncMask selects the stages that must be split into their own memory
// barrier entry because drivers validate acceleration-structure access bits
// against these stages only.
const accelSyncMask = SyncAccelStructBuild | SyncRayTracing

// BarrierAccess is a bitmask of memory access kinds a barrier makes
// available or visible.
type BarrierAccess uint32

const (
	AccessNone              BarrierAccess = 0
	AccessIndirectRead      BarrierAccess = 1 << iota // indirect argument reads
	AccessIndexRead                                   // index buffer reads
	AccessVertexInputRead                             // vertex attribute reads
	AccessConstantRead                                // uniform buffer reads
	AccessSampledRead                                 // sampled texture reads
	AccessStorageRead                                 // storage buffer/texture reads
	AccessStorageWrite                                // storage buffer/texture writes
	AccessRenderTargetRead                            // color attachment reads
	AccessRenderTargetWrite                           // color attachment writes
	AccessDepthStencilRead                            // depth/stencil reads
	AccessDepthStencilWrite                           // depth/stencil writes
	AccessCopyRead                                    // transfer source reads
	AccessCopyWrite                                   // transfer destination writes
	AccessResolveRead                                 // resolve source reads
	AccessResolveWrite                                // resolve destination writes
	AccessHostRead                                    // host reads
	AccessHostWrite                                   // host writes
	AccessAccelStructRead                             // acceleration structure reads
	AccessAccelStructWrite                            // acceleration structure writes
)

// accessWriteMask selects every write access bit.
const accessWriteMask = AccessStorageWrite | AccessRenderTargetWrite |
	AccessDepthStencilWrite | AccessCopyWrite | AccessResolveWrite |
	AccessHostWrite | AccessAccelStructWrite

// accelAccessMask selects the acceleration-structure access bits that must
// pair with accelSyncMask stages.
const accelAccessMask = AccessAccelStructRead | AccessAccelStructWrite

// IsWrite reports whether the mask contains any write access.
func (a BarrierAccess) IsWrite() bool { return a&accessWriteMask != 0 }

// TextureLayout is the image layout of a texture subresource.
type TextureLayout uint8

const (
	// LayoutUndefined means the contents are not preserved across the next
	// transition. Every subresource starts here.
	LayoutUndefined TextureLayout = iota

	// LayoutGeneral supports every access at reduced efficiency.
	LayoutGeneral

	// LayoutSampled is optimal for shader sampling.
	LayoutSampled

	// LayoutStorage supports image loads and stores.
	LayoutStorage

	// LayoutRenderTarget is optimal for color attachment output.
	LayoutRenderTarget

	// LayoutDepthRead is optimal for read-only depth/stencil access.
	LayoutDepthRead

	// LayoutDepthWrite is optimal for depth/stencil attachment output.
	LayoutDepthWrite

	// LayoutCopySrc is required for transfer reads.
	LayoutCopySrc

	// LayoutCopyDst is required for transfer writes.
	LayoutCopyDst

	// LayoutResolveSrc is required as a multisample resolve source.
	LayoutResolveSrc

	// LayoutResolveDst is required as a multisample resolve destination.
	LayoutResolveDst

	// LayoutPresent is required for presentation to a surface.
	LayoutPresent
)

// String returns the lowercase name of the layout.
func (l TextureLayout) String() string {
	switch l {
	case LayoutUndefined:
		return "undefined"
	case LayoutGeneral:
		return "general"
	case LayoutSampled:
		return "sampled"
	case LayoutStorage:
		return "storage"
	case LayoutRenderTarget:
		return "render-target"
	case LayoutDepthRead:
		return "depth-read"
	case LayoutDepthWrite:
		return "depth-write"
	case LayoutCopySrc:
		return "copy-src"
	case LayoutCopyDst:
		return "copy-dst"
	case LayoutResolveSrc:
		return "resolve-src"
	case LayoutResolveDst:
		return "resolve-dst"
	case LayoutPresent:
		return "present"
	default:
		return "unknown"
	}
}

// TextureRange selects the subresources a texture barrier covers.
type TextureRange struct {
	BaseMipLevel    uint32
	MipLevelCount   uint32
	BaseArrayLayer  uint32
	ArrayLayerCount uint32
}

// FirstSubresource is the range covering mip 0, layer 0 only.
var FirstSubresource = TextureRange{MipLevelCount: 1, ArrayLayerCount: 1}

// QueueOwnershipTransfer moves exclusive resource ownership between queue
// families as part of a barrier.
type QueueOwnershipTransfer struct {
	From QueueType
	To   QueueType
}

// BarrierKind discriminates the payload of a [Barrier].
type BarrierKind uint8

const (
	// BarrierGlobal orders all memory of the given access classes.
	BarrierGlobal BarrierKind = iota

	// BarrierBuffer orders a buffer range and optionally transfers queue
	// ownership.
	BarrierBuffer

	// BarrierTexture orders texture subresources, transitions their layout,
	// and optionally transfers queue ownership.
	BarrierTexture
)

// Barrier is one synchronization request handed to
// [CommandBuffer.Barrier]. Only the fields selected by Kind are meaningful.
type Barrier struct {
	Kind BarrierKind

	OldSync   BarrierSync
	NewSync   BarrierSync
	OldAccess BarrierAccess
	NewAccess BarrierAccess

	// Texture barriers.
	Texture   TextureID
	Range     TextureRange
	OldLayout TextureLayout
	NewLayout TextureLayout

	// Buffer barriers.
	Buffer BufferID
	Offset uint64
	Size   uint64

	// Queues is non-nil for a queue-ownership transfer.
	Queues *QueueOwnershipTransfer
}

// MemoryBarrier is one execution+memory dependency in a flushed batch.
type MemoryBarrier struct {
	OldSync   BarrierSync
	NewSync   BarrierSync
	OldAccess BarrierAccess
	NewAccess BarrierAccess
}

// BufferBarrierDesc is a flushed buffer barrier.
type BufferBarrierDesc struct {
	MemoryBarrier
	Buffer BufferID
	Offset uint64
	Size   uint64
	Queues *QueueOwnershipTransfer
}

// TextureBarrierDesc is a flushed texture barrier covering one subresource
// range in a uniform old state.
type TextureBarrierDesc struct {
	MemoryBarrier
	Texture   TextureID
	Range     TextureRange
	OldLayout TextureLayout
	NewLayout TextureLayout
	Queues    *QueueOwnershipTransfer
}

// BarrierBatch is the accumulated set of barriers flushed to the driver in
// one call. Globals holds at most two entries: ordinary stages and, when
// acceleration structures are involved, a second entry carrying only the
// acceleration-structure stages and accesses.
type BarrierBatch struct {
	Globals  []MemoryBarrier
	Buffers  []BufferBarrierDesc
	Textures []TextureBarrierDesc
}

// Empty reports whether the batch contains no barriers.
func (b *BarrierBatch) Empty() bool {
	return len(b.Globals) == 0 && len(b.Buffers) == 0 && len(b.Textures) == 0
}

func (b *BarrierBatch) reset() {
	b.Globals = b.Globals[:0]
	b.Buffers = b.Buffers[:0]
	b.Textures = b.Textures[:0]
}
