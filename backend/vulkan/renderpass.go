package vulkan

import (
	"encoding/binary"
	"fmt"
	"sync"

	vk "github.com/goki/vulkan"

	"github.com/gogpu/rhi"
)

// passCache interns render passes and framebuffers by attachment shape.
// Vulkan wants both created up front; the rhi surface describes passes at
// record time, so the driver builds them on first use and reuses them for
// every structurally identical pass.
type passCache struct {
	device vk.Device

	mu     sync.Mutex
	passes map[string]vk.RenderPass
	frames map[string]vk.Framebuffer
}

func newPassCache(device vk.Device) *passCache {
	return &passCache{
		device: device,
		passes: map[string]vk.RenderPass{},
		frames: map[string]vk.Framebuffer{},
	}
}

func (c *passCache) destroy() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, fb := range c.frames {
		vk.DestroyFramebuffer(c.device, fb, nil)
	}
	for _, rp := range c.passes {
		vk.DestroyRenderPass(c.device, rp, nil)
	}
	c.frames = map[string]vk.Framebuffer{}
	c.passes = map[string]vk.RenderPass{}
}

// passShape is the resolved attachment description of one render pass,
// enough to build both the pass and its framebuffer.
type passShape struct {
	colors  []passColor
	depth   *passDepth
	views   []vk.ImageView
	width   uint32
	height  uint32
	samples vk.SampleCountFlagBits
}

type passColor struct {
	format  vk.Format
	load    rhi.LoadOp
	store   rhi.StoreOp
	resolve vk.Format // vk.FormatUndefined when not multisampled
}

type passDepth struct {
	format       vk.Format
	load         rhi.LoadOp
	store        rhi.StoreOp
	stencilLoad  rhi.LoadOp
	stencilStore rhi.StoreOp
	readOnly     bool
}

// resolveShape looks up every attachment texture and flattens the pass
// description.
func (d *Driver) resolveShape(info *rhi.RenderPassInfo) (*passShape, error) {
	shape := &passShape{samples: vk.SampleCount1Bit}
	for i := range info.Colors {
		ca := &info.Colors[i]
		tex, ok := d.textures.Resolve(uint64(ca.Texture))
		if !ok {
			return nil, fmt.Errorf("%w: color attachment texture %d", ErrUnknownHandle, ca.Texture)
		}
		pc := passColor{format: tex.info.Format, load: ca.Load, store: ca.Store}
		if tex.info.Samples > shape.samples {
			shape.samples = tex.info.Samples
		}
		if shape.width == 0 {
			shape.width, shape.height = tex.info.Width, tex.info.Height
		}
		shape.views = append(shape.views, tex.view)
		if ca.Resolve != rhi.InvalidID {
			rt, ok := d.textures.Resolve(uint64(ca.Resolve))
			if !ok {
				return nil, fmt.Errorf("%w: resolve texture %d", ErrUnknownHandle, ca.Resolve)
			}
			pc.resolve = rt.info.Format
		}
		shape.colors = append(shape.colors, pc)
	}
	// Resolve targets come after every color attachment so color refs keep
	// their indices.
	for i := range info.Colors {
		if info.Colors[i].Resolve == rhi.InvalidID {
			continue
		}
		rt, _ := d.textures.Resolve(uint64(info.Colors[i].Resolve))
		shape.views = append(shape.views, rt.view)
	}
	if ds := info.DepthStencil; ds != nil {
		tex, ok := d.textures.Resolve(uint64(ds.Texture))
		if !ok {
			return nil, fmt.Errorf("%w: depth attachment texture %d", ErrUnknownHandle, ds.Texture)
		}
		shape.depth = &passDepth{
			format:       tex.info.Format,
			load:         ds.Load,
			store:        ds.Store,
			stencilLoad:  ds.StencilLoad,
			stencilStore: ds.StencilStore,
			readOnly:     ds.ReadOnly,
		}
		if shape.width == 0 {
			shape.width, shape.height = tex.info.Width, tex.info.Height
		}
		shape.views = append(shape.views, tex.view)
	}
	return shape, nil
}

func (s *passShape) passKey() string {
	buf := make([]byte, 0, 64)
	buf = append(buf, byte(s.samples))
	for _, c := range s.colors {
		buf = binary.LittleEndian.AppendUint32(buf, uint32(c.format))
		buf = append(buf, byte(c.load), byte(c.store))
		buf = binary.LittleEndian.AppendUint32(buf, uint32(c.resolve))
	}
	if s.depth != nil {
		buf = append(buf, 1)
		buf = binary.LittleEndian.AppendUint32(buf, uint32(s.depth.format))
		buf = append(buf, byte(s.depth.load), byte(s.depth.store),
			byte(s.depth.stencilLoad), byte(s.depth.stencilStore))
		if s.depth.readOnly {
			buf = append(buf, 1)
		} else {
			buf = append(buf, 0)
		}
	}
	return string(buf)
}

func (s *passShape) frameKey(passKey string) string {
	buf := make([]byte, 0, len(passKey)+len(s.views)*8+8)
	buf = append(buf, passKey...)
	for _, v := range s.views {
		buf = append(buf, fmt.Sprintf("%v", v)...)
	}
	buf = binary.LittleEndian.AppendUint32(buf, s.width)
	buf = binary.LittleEndian.AppendUint32(buf, s.height)
	return string(buf)
}

// renderPass returns the interned render pass for the shape, building it on
// first use.
func (c *passCache) renderPass(s *passShape) (vk.RenderPass, error) {
	key := s.passKey()
	c.mu.Lock()
	defer c.mu.Unlock()
	if rp, ok := c.passes[key]; ok {
		return rp, nil
	}
	rp, err := buildRenderPass(c.device, s)
	if err != nil {
		return nil, err
	}
	c.passes[key] = rp
	return rp, nil
}

// framebuffer returns the interned framebuffer for the shape and pass.
func (c *passCache) framebuffer(s *passShape, rp vk.RenderPass) (vk.Framebuffer, error) {
	key := s.frameKey(s.passKey())
	c.mu.Lock()
	defer c.mu.Unlock()
	if fb, ok := c.frames[key]; ok {
		return fb, nil
	}
	var fb vk.Framebuffer
	res := vk.CreateFramebuffer(c.device, &vk.FramebufferCreateInfo{
		SType:           vk.StructureTypeFramebufferCreateInfo,
		RenderPass:      rp,
		AttachmentCount: uint32(len(s.views)),
		PAttachments:    s.views,
		Width:           s.width,
		Height:          s.height,
		Layers:          1,
	}, nil, &fb)
	if err := vkError("create framebuffer", res); err != nil {
		return nil, err
	}
	c.frames[key] = fb
	return fb, nil
}

func buildRenderPass(device vk.Device, s *passShape) (vk.RenderPass, error) {
	var (
		attachments []vk.AttachmentDescription
		colorRefs   []vk.AttachmentReference
		resolveRefs []vk.AttachmentReference
		hasResolve  bool
	)
	for _, c := range s.colors {
		initial := vk.ImageLayoutUndefined
		if c.load == rhi.LoadOpLoad {
			initial = vk.ImageLayoutColorAttachmentOptimal
		}
		colorRefs = append(colorRefs, vk.AttachmentReference{
			Attachment: uint32(len(attachments)),
			Layout:     vk.ImageLayoutColorAttachmentOptimal,
		})
		attachments = append(attachments, vk.AttachmentDescription{
			Format:         c.format,
			Samples:        s.samples,
			LoadOp:         convertLoadOp(c.load),
			StoreOp:        convertStoreOp(c.store),
			StencilLoadOp:  vk.AttachmentLoadOpDontCare,
			StencilStoreOp: vk.AttachmentStoreOpDontCare,
			InitialLayout:  initial,
			FinalLayout:    vk.ImageLayoutColorAttachmentOptimal,
		})
		if c.resolve != vk.FormatUndefined {
			hasResolve = true
		}
	}
	if hasResolve {
		for _, c := range s.colors {
			if c.resolve == vk.FormatUndefined {
				resolveRefs = append(resolveRefs, vk.AttachmentReference{
					Attachment: vk.AttachmentUnused,
					Layout:     vk.ImageLayoutColorAttachmentOptimal,
				})
				continue
			}
			resolveRefs = append(resolveRefs, vk.AttachmentReference{
				Attachment: uint32(len(attachments)),
				Layout:     vk.ImageLayoutColorAttachmentOptimal,
			})
			attachments = append(attachments, vk.AttachmentDescription{
				Format:         c.resolve,
				Samples:        vk.SampleCount1Bit,
				LoadOp:         vk.AttachmentLoadOpDontCare,
				StoreOp:        vk.AttachmentStoreOpStore,
				StencilLoadOp:  vk.AttachmentLoadOpDontCare,
				StencilStoreOp: vk.AttachmentStoreOpDontCare,
				InitialLayout:  vk.ImageLayoutUndefined,
				FinalLayout:    vk.ImageLayoutColorAttachmentOptimal,
			})
		}
	}

	subpass := vk.SubpassDescription{
		PipelineBindPoint:    vk.PipelineBindPointGraphics,
		ColorAttachmentCount: uint32(len(colorRefs)),
		PColorAttachments:    colorRefs,
	}
	if hasResolve {
		subpass.PResolveAttachments = resolveRefs
	}
	if s.depth != nil {
		layout := vk.ImageLayoutDepthStencilAttachmentOptimal
		if s.depth.readOnly {
			layout = vk.ImageLayoutDepthStencilReadOnlyOptimal
		}
		initial := vk.ImageLayoutUndefined
		if s.depth.load == rhi.LoadOpLoad {
			initial = layout
		}
		depthRef := vk.AttachmentReference{
			Attachment: uint32(len(attachments)),
			Layout:     layout,
		}
		attachments = append(attachments, vk.AttachmentDescription{
			Format:         s.depth.format,
			Samples:        s.samples,
			LoadOp:         convertLoadOp(s.depth.load),
			StoreOp:        convertStoreOp(s.depth.store),
			StencilLoadOp:  convertLoadOp(s.depth.stencilLoad),
			StencilStoreOp: convertStoreOp(s.depth.stencilStore),
			InitialLayout:  initial,
			FinalLayout:    layout,
		})
		subpass.PDepthStencilAttachment = &depthRef
	}

	dependency := vk.SubpassDependency{
		SrcSubpass:    vk.SubpassExternal,
		DstSubpass:    0,
		SrcStageMask:  vk.PipelineStageFlags(vk.PipelineStageColorAttachmentOutputBit),
		SrcAccessMask: 0,
		DstStageMask:  vk.PipelineStageFlags(vk.PipelineStageColorAttachmentOutputBit),
		DstAccessMask: vk.AccessFlags(vk.AccessColorAttachmentReadBit) |
			vk.AccessFlags(vk.AccessColorAttachmentWriteBit),
	}

	var rp vk.RenderPass
	res := vk.CreateRenderPass(device, &vk.RenderPassCreateInfo{
		SType:           vk.StructureTypeRenderPassCreateInfo,
		AttachmentCount: uint32(len(attachments)),
		PAttachments:    attachments,
		SubpassCount:    1,
		PSubpasses:      []vk.SubpassDescription{subpass},
		DependencyCount: 1,
		PDependencies:   []vk.SubpassDependency{dependency},
	}, nil, &rp)
	if err := vkError("create render pass", res); err != nil {
		return nil, err
	}
	return rp, nil
}

// clearValues builds the clear array matching the framebuffer attachment
// order: colors, resolves, then depth.
func (s *passShape) clearValues(info *rhi.RenderPassInfo) []vk.ClearValue {
	out := make([]vk.ClearValue, len(s.views))
	for i := range info.Colors {
		cc := info.Colors[i].ClearColor
		out[i].SetColor([]float32{cc[0], cc[1], cc[2], cc[3]})
	}
	if s.depth != nil && info.DepthStencil != nil {
		out[len(out)-1].SetDepthStencil(info.DepthStencil.ClearDepth, info.DepthStencil.ClearStencil)
	}
	return out
}
