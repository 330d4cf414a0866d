package vulkan

import (
	"github.com/vkngwrapper/core/core1_0"
)

// Layouts are the descriptor set layouts shared by every pipeline.
//
//	frame:    0 frame uniforms, 1 path mask
//	material: 0 material uniforms, 1 base color texture
//	skybox:   0 cube map
//	particle: 0 brush uniforms (draw only)
//	compute:  0 storage image or particle buffer, 1 brush uniforms
type Layouts struct {
	Frame        core1_0.DescriptorSetLayout
	Material     core1_0.DescriptorSetLayout
	Skybox       core1_0.DescriptorSetLayout
	Particle     core1_0.DescriptorSetLayout
	MaskCompute  core1_0.DescriptorSetLayout
	ParticleStep core1_0.DescriptorSetLayout
}

type binding struct {
	kind   core1_0.DescriptorType
	stages core1_0.ShaderStageFlags
}

func (c *Context) createSetLayout(bindings ...binding) (core1_0.DescriptorSetLayout, error) {
	info := core1_0.DescriptorSetLayoutCreateInfo{}
	for i, b := range bindings {
		info.Bindings = append(info.Bindings, core1_0.DescriptorSetLayoutBinding{
			Binding:         i,
			DescriptorType:  b.kind,
			DescriptorCount: 1,
			StageFlags:      b.stages,
		})
	}

	layout, res, err := c.device.CreateDescriptorSetLayout(nil, info)
	if err != nil {
		return nil, check("create descriptor set layout", res, err)
	}
	return layout, nil
}

func NewLayouts(ctx *Context) (l *Layouts, err error) {
	l = &Layouts{}
	defer func() {
		if err != nil {
			l.Destroy()
			l = nil
		}
	}()

	const (
		vertexFragment = core1_0.StageVertex | core1_0.StageFragment
		fragment       = core1_0.StageFragment
		compute        = core1_0.StageCompute
	)
	uniform := core1_0.DescriptorTypeUniformBuffer
	sampled := core1_0.DescriptorTypeCombinedImageSampler

	l.Frame, err = ctx.createSetLayout(binding{uniform, vertexFragment}, binding{sampled, fragment})
	if err != nil {
		return nil, err
	}
	l.Material, err = ctx.createSetLayout(binding{uniform, fragment}, binding{sampled, fragment})
	if err != nil {
		return nil, err
	}
	l.Skybox, err = ctx.createSetLayout(binding{sampled, fragment})
	if err != nil {
		return nil, err
	}
	l.Particle, err = ctx.createSetLayout(binding{uniform, core1_0.StageVertex})
	if err != nil {
		return nil, err
	}
	l.MaskCompute, err = ctx.createSetLayout(binding{core1_0.DescriptorTypeStorageImage, compute}, binding{uniform, compute})
	if err != nil {
		return nil, err
	}
	l.ParticleStep, err = ctx.createSetLayout(binding{core1_0.DescriptorTypeStorageBuffer, compute}, binding{uniform, compute})
	if err != nil {
		return nil, err
	}

	return l, nil
}

func (l *Layouts) Destroy() {
	for _, layout := range []core1_0.DescriptorSetLayout{l.Frame, l.Material, l.Skybox, l.Particle, l.MaskCompute, l.ParticleStep} {
		if layout != nil {
			layout.Destroy(nil)
		}
	}
	*l = Layouts{}
}

// Descriptors is a fixed-size descriptor pool. Sets are never freed
// individually; they go away with the pool.
type Descriptors struct {
	ctx  *Context
	pool core1_0.DescriptorPool
}

// DescriptorCounts sizes a Descriptors pool.
type DescriptorCounts struct {
	Sets           int
	Uniforms       int
	Samplers       int
	StorageImages  int
	StorageBuffers int
}

func NewDescriptors(ctx *Context, counts DescriptorCounts) (*Descriptors, error) {
	var sizes []core1_0.DescriptorPoolSize
	add := func(kind core1_0.DescriptorType, n int) {
		if n > 0 {
			sizes = append(sizes, core1_0.DescriptorPoolSize{Type: kind, DescriptorCount: n})
		}
	}
	add(core1_0.DescriptorTypeUniformBuffer, counts.Uniforms)
	add(core1_0.DescriptorTypeCombinedImageSampler, counts.Samplers)
	add(core1_0.DescriptorTypeStorageImage, counts.StorageImages)
	add(core1_0.DescriptorTypeStorageBuffer, counts.StorageBuffers)

	pool, res, err := ctx.device.CreateDescriptorPool(nil, core1_0.DescriptorPoolCreateInfo{
		MaxSets:   counts.Sets,
		PoolSizes: sizes,
	})
	if err != nil {
		return nil, check("create descriptor pool", res, err)
	}
	return &Descriptors{ctx: ctx, pool: pool}, nil
}

// Write is one descriptor of a set. Exactly one of Buffer or View is set.
type Write struct {
	Buffer core1_0.Buffer
	Size   int

	View    core1_0.ImageView
	Sampler core1_0.Sampler
	Layout  core1_0.ImageLayout
	Storage bool
}

// Allocate allocates a set from layout and writes bindings 0..len(writes)-1.
func (d *Descriptors) Allocate(layout core1_0.DescriptorSetLayout, writes ...Write) (core1_0.DescriptorSet, error) {
	sets, res, err := d.ctx.device.AllocateDescriptorSets(core1_0.DescriptorSetAllocateInfo{
		DescriptorPool: d.pool,
		SetLayouts:     []core1_0.DescriptorSetLayout{layout},
	})
	if err != nil {
		return nil, check("allocate descriptor set", res, err)
	}
	set := sets[0]

	var updates []core1_0.WriteDescriptorSet
	for i, w := range writes {
		update := core1_0.WriteDescriptorSet{
			DstSet:          set,
			DstBinding:      i,
			DstArrayElement: 0,
		}

		switch {
		case w.Buffer != nil && w.Storage:
			update.DescriptorType = core1_0.DescriptorTypeStorageBuffer
		case w.Buffer != nil:
			update.DescriptorType = core1_0.DescriptorTypeUniformBuffer
		case w.Storage:
			update.DescriptorType = core1_0.DescriptorTypeStorageImage
		default:
			update.DescriptorType = core1_0.DescriptorTypeCombinedImageSampler
		}

		if w.Buffer != nil {
			update.BufferInfo = []core1_0.DescriptorBufferInfo{
				{
					Buffer: w.Buffer,
					Offset: 0,
					Range:  w.Size,
				},
			}
		} else {
			update.ImageInfo = []core1_0.DescriptorImageInfo{
				{
					ImageView:   w.View,
					Sampler:     w.Sampler,
					ImageLayout: w.Layout,
				},
			}
		}
		updates = append(updates, update)
	}

	err = d.ctx.device.UpdateDescriptorSets(updates, nil)
	if err != nil {
		return nil, check("update descriptor set", core1_0.VKSuccess, err)
	}
	return set, nil
}

func (d *Descriptors) Destroy() {
	if d.pool != nil {
		d.pool.Destroy(nil)
		d.pool = nil
	}
}
