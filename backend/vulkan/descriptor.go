package vulkan

import (
	"fmt"

	vk "github.com/goki/vulkan"

	"github.com/gogpu/rhi"
)

// poolSizes is the per-pool descriptor budget, sized for typical frame
// workloads: mostly buffers and sampled images, fewer dynamic and storage
// descriptors.
func poolSizes() []vk.DescriptorPoolSize {
	return []vk.DescriptorPoolSize{
		{Type: vk.DescriptorTypeUniformBuffer, DescriptorCount: poolMaxSets},
		{Type: vk.DescriptorTypeUniformBufferDynamic, DescriptorCount: poolMaxSets / 2},
		{Type: vk.DescriptorTypeStorageBuffer, DescriptorCount: poolMaxSets},
		{Type: vk.DescriptorTypeStorageBufferDynamic, DescriptorCount: poolMaxSets / 4},
		{Type: vk.DescriptorTypeSampledImage, DescriptorCount: poolMaxSets * 2},
		{Type: vk.DescriptorTypeStorageImage, DescriptorCount: poolMaxSets / 2},
		{Type: vk.DescriptorTypeCombinedImageSampler, DescriptorCount: poolMaxSets / 2},
		{Type: vk.DescriptorTypeSampler, DescriptorCount: poolMaxSets / 2},
	}
}

// CreateBindGroupPool implements rhi.Driver. Transient pools skip the
// free-descriptor-set flag: their groups are only ever released in bulk by
// ResetBindGroupPool, which lets the driver use the cheaper linear
// allocation strategy.
func (d *Driver) CreateBindGroupPool(transient bool) (rhi.BindGroupPoolID, error) {
	var flags vk.DescriptorPoolCreateFlags
	if !transient {
		flags = vk.DescriptorPoolCreateFlags(vk.DescriptorPoolCreateFreeDescriptorSetBit)
	}
	sizes := poolSizes()
	var pool vk.DescriptorPool
	res := vk.CreateDescriptorPool(d.device, &vk.DescriptorPoolCreateInfo{
		SType:         vk.StructureTypeDescriptorPoolCreateInfo,
		Flags:         flags,
		MaxSets:       poolMaxSets,
		PoolSizeCount: uint32(len(sizes)),
		PPoolSizes:    sizes,
	}, nil, &pool)
	if err := vkError("create descriptor pool", res); err != nil {
		return rhi.InvalidID, err
	}
	return rhi.BindGroupPoolID(d.pools.Register(&descriptorPool{pool: pool, transient: transient})), nil
}

// ResetBindGroupPool implements rhi.Driver.
func (d *Driver) ResetBindGroupPool(id rhi.BindGroupPoolID) {
	p, ok := d.pools.Resolve(uint64(id))
	if !ok {
		return
	}
	p.mu.Lock()
	groups := p.groups
	p.groups = nil
	p.mu.Unlock()
	for _, g := range groups {
		d.groups.Unregister(uint64(g))
	}
	vk.ResetDescriptorPool(d.device, p.pool, 0)
}

// DestroyBindGroupPool implements rhi.Driver.
func (d *Driver) DestroyBindGroupPool(id rhi.BindGroupPoolID) {
	p, ok := d.pools.Resolve(uint64(id))
	if !ok {
		return
	}
	p.mu.Lock()
	groups := p.groups
	p.groups = nil
	p.mu.Unlock()
	for _, g := range groups {
		d.groups.Unregister(uint64(g))
	}
	vk.DestroyDescriptorPool(d.device, p.pool, nil)
	d.pools.Unregister(uint64(id))
}

// AllocateBindGroup implements rhi.Driver. Pool exhaustion and
// fragmentation both surface as rhi.ErrPoolExhausted so the bind group
// cache grows a fresh pool.
func (d *Driver) AllocateBindGroup(pool rhi.BindGroupPoolID, layout rhi.BindGroupLayoutID, slots []rhi.LayoutSlot, bindings []rhi.BoundResource) (rhi.BindGroupID, error) {
	p, ok := d.pools.Resolve(uint64(pool))
	if !ok {
		return rhi.InvalidID, fmt.Errorf("%w: pool %d", ErrUnknownHandle, pool)
	}
	native, ok := d.layouts.Resolve(uint64(layout))
	if !ok {
		return rhi.InvalidID, fmt.Errorf("%w: layout %d", ErrUnknownHandle, layout)
	}

	dsets := make([]vk.DescriptorSet, 1)
	res := vk.AllocateDescriptorSets(d.device, &vk.DescriptorSetAllocateInfo{
		SType:              vk.StructureTypeDescriptorSetAllocateInfo,
		DescriptorPool:     p.pool,
		DescriptorSetCount: 1,
		PSetLayouts:        []vk.DescriptorSetLayout{native},
	}, &dsets[0])
	switch res {
	case vk.Success:
	case vk.ErrorOutOfPoolMemory, vk.ErrorFragmentedPool:
		return rhi.InvalidID, rhi.ErrPoolExhausted
	default:
		return rhi.InvalidID, vkError("allocate descriptor set", res)
	}

	writes, err := d.descriptorWrites(dsets[0], slots, bindings)
	if err != nil {
		if !p.transient {
			vk.FreeDescriptorSets(d.device, p.pool, 1, &dsets[0])
		}
		return rhi.InvalidID, err
	}
	if len(writes) > 0 {
		vk.UpdateDescriptorSets(d.device, uint32(len(writes)), writes, 0, nil)
	}

	id := rhi.BindGroupID(d.groups.Register(dsets[0]))
	p.mu.Lock()
	p.groups = append(p.groups, id)
	p.mu.Unlock()
	return id, nil
}

// FreeBindGroup implements rhi.Driver.
func (d *Driver) FreeBindGroup(pool rhi.BindGroupPoolID, group rhi.BindGroupID) {
	p, ok := d.pools.Resolve(uint64(pool))
	if !ok || p.transient {
		return
	}
	dset, ok := d.groups.Resolve(uint64(group))
	if !ok {
		return
	}
	dsets := []vk.DescriptorSet{dset}
	vk.FreeDescriptorSets(d.device, p.pool, 1, &dsets[0])
	d.groups.Unregister(uint64(group))
	p.mu.Lock()
	for i, g := range p.groups {
		if g == group {
			p.groups[i] = p.groups[len(p.groups)-1]
			p.groups = p.groups[:len(p.groups)-1]
			break
		}
	}
	p.mu.Unlock()
}

// descriptorWrites builds the update list for a freshly allocated set.
// bindings[i] corresponds to slots[i] per the driver contract.
func (d *Driver) descriptorWrites(dset vk.DescriptorSet, slots []rhi.LayoutSlot, bindings []rhi.BoundResource) ([]vk.WriteDescriptorSet, error) {
	writes := make([]vk.WriteDescriptorSet, 0, len(slots))
	for i := range slots {
		s := &slots[i]
		if i >= len(bindings) || bindings[i].Kind == rhi.BoundNone {
			continue
		}
		b := &bindings[i]
		dt, err := convertDescriptorType(s)
		if err != nil {
			return nil, err
		}
		wd := vk.WriteDescriptorSet{
			SType:           vk.StructureTypeWriteDescriptorSet,
			DstSet:          dset,
			DstBinding:      s.Slot,
			DescriptorCount: 1,
			DescriptorType:  dt,
		}
		switch b.Kind {
		case rhi.BoundUniformBuffer, rhi.BoundStorageBuffer:
			buf, ok := d.buffers.Resolve(uint64(b.Buffer.Buffer))
			if !ok {
				return nil, fmt.Errorf("%w: buffer %d", ErrUnknownHandle, b.Buffer.Buffer)
			}
			// Dynamic slots bake offset zero; the live offset rides along
			// with every descriptor set bind.
			offset := b.Buffer.Offset
			if s.DynamicOffset {
				offset = 0
			}
			size := vk.DeviceSize(b.Buffer.Size)
			if b.Buffer.Size == 0 {
				size = vk.DeviceSize(vk.WholeSize)
			}
			wd.PBufferInfo = []vk.DescriptorBufferInfo{{
				Buffer: buf,
				Offset: vk.DeviceSize(offset),
				Range:  size,
			}}

		case rhi.BoundSampledTexture, rhi.BoundStorageTexture:
			tex, ok := d.textures.Resolve(uint64(b.Texture))
			if !ok {
				return nil, fmt.Errorf("%w: texture %d", ErrUnknownHandle, b.Texture)
			}
			layout := vk.ImageLayoutShaderReadOnlyOptimal
			if b.Kind == rhi.BoundStorageTexture {
				layout = vk.ImageLayoutGeneral
			}
			wd.PImageInfo = []vk.DescriptorImageInfo{{
				ImageView:   tex.view,
				ImageLayout: layout,
			}}

		case rhi.BoundSampledTextureArray, rhi.BoundStorageTextureArray:
			layout := vk.ImageLayoutShaderReadOnlyOptimal
			if b.Kind == rhi.BoundStorageTextureArray {
				layout = vk.ImageLayoutGeneral
			}
			imgs := make([]vk.DescriptorImageInfo, len(b.Textures))
			for j, t := range b.Textures {
				tex, ok := d.textures.Resolve(uint64(t))
				if !ok {
					return nil, fmt.Errorf("%w: texture %d", ErrUnknownHandle, t)
				}
				imgs[j] = vk.DescriptorImageInfo{ImageView: tex.view, ImageLayout: layout}
			}
			wd.DescriptorCount = uint32(len(imgs))
			wd.PImageInfo = imgs

		case rhi.BoundCombinedTextureSampler:
			tex, ok := d.textures.Resolve(uint64(b.Texture))
			if !ok {
				return nil, fmt.Errorf("%w: texture %d", ErrUnknownHandle, b.Texture)
			}
			smp, ok := d.samplers.Resolve(uint64(b.Sampler))
			if !ok {
				return nil, fmt.Errorf("%w: sampler %d", ErrUnknownHandle, b.Sampler)
			}
			wd.PImageInfo = []vk.DescriptorImageInfo{{
				Sampler:     smp,
				ImageView:   tex.view,
				ImageLayout: vk.ImageLayoutShaderReadOnlyOptimal,
			}}

		case rhi.BoundSampler:
			smp, ok := d.samplers.Resolve(uint64(b.Sampler))
			if !ok {
				return nil, fmt.Errorf("%w: sampler %d", ErrUnknownHandle, b.Sampler)
			}
			wd.PImageInfo = []vk.DescriptorImageInfo{{Sampler: smp}}

		default:
			return nil, fmt.Errorf("vulkan: unsupported binding kind %s for slot type %s", b.Kind, s.Type)
		}
		writes = append(writes, wd)
	}
	return writes, nil
}
