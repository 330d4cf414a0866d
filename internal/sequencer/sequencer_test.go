package sequencer_test

import (
	"reflect"
	"testing"

	"github.com/vkngwrapper/frameloop/internal/assets"
	"github.com/vkngwrapper/frameloop/internal/frame"
	"github.com/vkngwrapper/frameloop/internal/gpu"
	"github.com/vkngwrapper/frameloop/internal/gpu/gputest"
	"github.com/vkngwrapper/frameloop/internal/sequencer"
	"github.com/vkngwrapper/frameloop/internal/swapchain"
)

type uniforms struct {
	cmd     *gputest.CommandBuffer
	frames  []int
	at      []int
	compute int
}

func (u *uniforms) WriteFrameUniforms(slot int, extent gpu.Extent) error {
	u.frames = append(u.frames, slot)
	if u.cmd != nil {
		u.at = append(u.at, len(u.cmd.Commands))
	}
	return nil
}

func (u *uniforms) WriteComputeUniforms() error {
	u.compute++
	return nil
}

type fixture struct {
	dev       *gputest.Device
	manager   *swapchain.Manager
	pool      *frame.Pool
	pipelines *gputest.Pipelines
	scene     *sequencer.Scene
	uniforms  *uniforms
	seq       *sequencer.Sequencer
}

func newFixture(t *testing.T, materials int, primitives []assets.Primitive) *fixture {
	t.Helper()

	f := &fixture{dev: gputest.NewDevice(), pipelines: &gputest.Pipelines{Generation: 1}, uniforms: &uniforms{}}
	surface := gputest.NewSurface(f.dev, gpu.Extent{Width: 320, Height: 240})
	f.manager = swapchain.New(f.dev, surface, swapchain.Options{
		Format:              gpu.SurfaceFormat{Format: gputest.FormatBGRA8SRGB, ColorSpace: gputest.ColorSpaceSRGB},
		FallbackPresentMode: gputest.PresentModeFIFO,
	}, gputest.Logger(t))
	if err := f.manager.Create(gpu.Extent{Width: 320, Height: 240}); err != nil {
		t.Fatalf("Create: %+v", err)
	}

	var err error
	f.pool, err = frame.New(f.dev, 2, gputest.Logger(t))
	if err != nil {
		t.Fatalf("frame.New: %+v", err)
	}

	f.scene = &sequencer.Scene{
		FrameSets: []gpu.DescriptorSet{gputest.Handle{Name: "frame-set/0"}, gputest.Handle{Name: "frame-set/1"}},
		Skybox: sequencer.Skybox{
			Vertices:    gputest.Handle{Name: "skybox-vertices"},
			VertexCount: 36,
			Set:         gputest.Handle{Name: "skybox-set"},
		},
		Mesh: sequencer.Mesh{
			Vertices:   gputest.Handle{Name: "mesh-vertices"},
			Indices:    gputest.Handle{Name: "mesh-indices"},
			IndexCount: 90,
			Primitives: primitives,
		},
		Fallback: sequencer.MaterialBinding{Kind: gpu.PipelineOpaque, Set: gputest.Handle{Name: "default-set"}},
		Mask: sequencer.Mask{
			Image:  gputest.Handle{Name: "mask"},
			Extent: gpu.Extent{Width: 512, Height: 512},
			Set:    gputest.Handle{Name: "mask-set"},
		},
		Particles: sequencer.Particles{
			Buffer:     gputest.Handle{Name: "particles"},
			Count:      1024,
			ComputeSet: gputest.Handle{Name: "particle-compute-set"},
			DrawSet:    gputest.Handle{Name: "particle-draw-set"},
		},
		Uniforms: f.uniforms,
	}
	for i := 0; i < materials; i++ {
		kind := gpu.PipelineOpaque
		if i%2 == 1 {
			kind = gpu.PipelineBlend
		}
		f.scene.Materials = append(f.scene.Materials, sequencer.MaterialBinding{
			Kind: kind,
			Set:  gputest.Handle{Name: "material-set/" + string(rune('a'+i))},
		})
	}

	f.seq = sequencer.New(f.manager, f.pipelines, f.scene)
	return f
}

func (f *fixture) record(t *testing.T, imageIndex int) *gputest.CommandBuffer {
	t.Helper()
	slot, err := f.pool.Acquire()
	if err != nil {
		t.Fatalf("Acquire: %+v", err)
	}
	if err := f.pool.Reset(slot); err != nil {
		t.Fatalf("Reset: %+v", err)
	}
	cmd := slot.Commands.(*gputest.CommandBuffer)
	f.uniforms.cmd = cmd
	if err := f.seq.RecordFrame(slot, imageIndex); err != nil {
		t.Fatalf("RecordFrame: %+v", err)
	}
	// Nothing is submitted, so the slot fence is signaled by hand.
	f.pool.Submitted(slot)
	slot.InFlight.(*gputest.Fence).Signaled = true
	return cmd
}

func draws(cmd *gputest.CommandBuffer, op string) []gputest.Command {
	var out []gputest.Command
	for _, c := range cmd.Commands {
		if c.Op == op {
			out = append(out, c)
		}
	}
	return out
}

func TestRecordFrameOrder(t *testing.T) {
	f := newFixture(t, 2, []assets.Primitive{
		{FirstIndex: 0, IndexCount: 30, Material: 0},
		{FirstIndex: 30, IndexCount: 60, Material: 1},
	})

	cmd := f.record(t, 1)

	want := []string{
		"image-barrier", "image-barrier",
		"begin-pass",
		"bind-pipeline", "bind-vertex", "bind-sets", "draw",
		"bind-vertex", "bind-index",
		"bind-pipeline", "bind-sets", "draw-indexed",
		"bind-pipeline", "bind-sets", "draw-indexed",
		"end-pass",
		"image-barrier",
	}
	if got := cmd.Ops(); !reflect.DeepEqual(got, want) {
		t.Fatalf("ops =\n%v\nwant\n%v", got, want)
	}

	if !reflect.DeepEqual(f.uniforms.at, []int{3}) {
		t.Errorf("uniforms written after %v commands, want after begin-pass", f.uniforms.at)
	}

	depth := cmd.Commands[1].Image
	if depth.Image != f.manager.DepthImage() || depth.Aspect != gpu.AspectDepth ||
		depth.OldLayout != gpu.LayoutUndefined || depth.NewLayout != gpu.LayoutDepthAttachment {
		t.Errorf("depth barrier = %+v", depth)
	}

	pass := cmd.Commands[2].Target
	if pass.Framebuffer != f.manager.Image(1).Framebuffer || pass.Clear.Depth != 1 {
		t.Errorf("render target = %+v", pass)
	}

	if sky := cmd.Commands[6]; sky.Count != 36 {
		t.Errorf("skybox draw count = %d", sky.Count)
	}

	indexed := draws(cmd, "draw-indexed")
	if indexed[0].First != 0 || indexed[0].Count != 30 || indexed[1].First != 30 || indexed[1].Count != 60 {
		t.Errorf("indexed draws = %+v", indexed)
	}
	if cmd.Commands[12].Pipeline != f.pipelines.Pipeline(gpu.PipelineBlend) {
		t.Errorf("second primitive pipeline = %v", cmd.Commands[12].Pipeline)
	}
}

// The tracked layout of every image always equals the newLayout of the last
// transition recorded for it, and every transition starts from the tracked
// layout.
func TestLayoutTrackingFollowsTransitions(t *testing.T) {
	f := newFixture(t, 1, []assets.Primitive{{IndexCount: 90}})

	last := map[int]gpu.Layout{}
	for n := 0; n < 7; n++ {
		image := n % f.manager.ImageCount()
		before := f.manager.CurrentLayout(image)

		cmd := f.record(t, image)
		barriers := cmd.Barriers(f.manager.Image(image).Handle)
		if len(barriers) != 2 {
			t.Fatalf("frame %d: %d barriers on image %d", n, len(barriers), image)
		}
		if barriers[0].OldLayout != before {
			t.Fatalf("frame %d: first barrier from %s, tracked %s", n, barriers[0].OldLayout, before)
		}
		if barriers[0].NewLayout != barriers[1].OldLayout {
			t.Fatalf("frame %d: barriers do not chain: %+v", n, barriers)
		}
		last[image] = barriers[len(barriers)-1].NewLayout

		for i := 0; i < f.manager.ImageCount(); i++ {
			want, seen := last[i]
			if !seen {
				want = gpu.LayoutUndefined
			}
			if got := f.manager.CurrentLayout(i); got != want {
				t.Fatalf("frame %d: image %d tracked %s, want %s", n, i, got, want)
			}
		}
	}
	if last[0] != gpu.LayoutPresentSrc {
		t.Errorf("image 0 ends in %s", last[0])
	}
}

func TestUnknownMaterialUsesFallback(t *testing.T) {
	f := newFixture(t, 5, []assets.Primitive{
		{FirstIndex: 0, IndexCount: 30, Material: 2},
		{FirstIndex: 30, IndexCount: 30, Material: 7},
		{FirstIndex: 60, IndexCount: 30, Material: assets.NoMaterial},
	})

	cmd := f.record(t, 0)

	indexed := draws(cmd, "draw-indexed")
	if len(indexed) != 3 {
		t.Fatalf("recorded %d indexed draws, want 3", len(indexed))
	}
	if indexed[1].First != 30 || indexed[1].Count != 30 {
		t.Errorf("fallback draw = %+v", indexed[1])
	}

	var sets [][]gpu.DescriptorSet
	for _, c := range draws(cmd, "bind-sets") {
		sets = append(sets, c.Sets)
	}
	// Skybox, then one bind per primitive.
	if len(sets) != 4 {
		t.Fatalf("bind-sets = %v", sets)
	}
	if sets[1][1] != f.scene.Materials[2].Set {
		t.Errorf("material 2 bound %v", sets[1][1])
	}
	for _, i := range []int{2, 3} {
		if sets[i][1] != f.scene.Fallback.Set {
			t.Errorf("primitive %d bound %v, want fallback", i-1, sets[i][1])
		}
	}
	if got := f.seq.Binding(7); got != f.scene.Fallback {
		t.Errorf("Binding(7) = %+v", got)
	}
}

func TestNoPrimitivesDrawsWholeRange(t *testing.T) {
	f := newFixture(t, 3, nil)

	cmd := f.record(t, 0)

	indexed := draws(cmd, "draw-indexed")
	if len(indexed) != 1 || indexed[0].First != 0 || indexed[0].Count != 90 {
		t.Fatalf("indexed draws = %+v", indexed)
	}
	binds := draws(cmd, "bind-pipeline")
	if binds[len(binds)-1].Pipeline != f.pipelines.Pipeline(f.scene.Fallback.Kind) {
		t.Errorf("whole range drawn with %v", binds[len(binds)-1].Pipeline)
	}
}

func TestParticlesDrawnOnlyWhenEnabled(t *testing.T) {
	f := newFixture(t, 1, []assets.Primitive{{IndexCount: 90}})

	cmd := f.record(t, 0)
	for _, c := range draws(cmd, "draw") {
		if c.Count == 1024 {
			t.Fatal("particles drawn while disabled")
		}
	}

	f.scene.DrawParticles = true
	cmd = f.record(t, 1)
	found := false
	for _, c := range draws(cmd, "bind-pipeline") {
		if c.Pipeline == f.pipelines.Pipeline(gpu.PipelineParticles) {
			found = true
		}
	}
	if !found {
		t.Fatal("particles not drawn while enabled")
	}
}

func TestSlotUniformsFollowSlot(t *testing.T) {
	f := newFixture(t, 1, nil)
	for i := 0; i < 4; i++ {
		f.record(t, i%f.manager.ImageCount())
	}
	if want := []int{0, 1, 0, 1}; !reflect.DeepEqual(f.uniforms.frames, want) {
		t.Fatalf("uniform slots = %v, want %v", f.uniforms.frames, want)
	}
}

func TestRecordCompute(t *testing.T) {
	f := newFixture(t, 1, nil)
	cmds, _ := f.dev.AllocateCommandBuffers(1)
	cmd := cmds[0].(*gputest.CommandBuffer)

	if err := f.seq.RecordCompute(cmd); err != nil {
		t.Fatalf("RecordCompute: %+v", err)
	}

	want := []string{
		"image-barrier", "bind-pipeline", "bind-sets", "dispatch", "image-barrier",
		"bind-pipeline", "bind-sets", "dispatch", "memory-barrier",
	}
	if got := cmd.Ops(); !reflect.DeepEqual(got, want) {
		t.Fatalf("ops = %v, want %v", got, want)
	}
	if f.uniforms.compute != 1 {
		t.Errorf("compute uniforms written %d times", f.uniforms.compute)
	}

	mask := cmd.Barriers(f.scene.Mask.Image)
	if mask[0].OldLayout != gpu.LayoutUndefined || mask[0].NewLayout != gpu.LayoutGeneral ||
		mask[1].OldLayout != gpu.LayoutGeneral || mask[1].NewLayout != gpu.LayoutShaderReadOnly {
		t.Errorf("mask barriers = %+v", mask)
	}
	if mask[1].DstStage != gpu.StageFragmentShader || mask[1].DstAccess != gpu.AccessShaderRead {
		t.Errorf("mask not made visible to fragment reads: %+v", mask[1])
	}

	if g := cmd.Commands[3].Groups; g != [3]int{32, 32, 1} {
		t.Errorf("mask groups = %v", g)
	}
	if g := cmd.Commands[7].Groups; g != [3]int{4, 1, 1} {
		t.Errorf("particle groups = %v", g)
	}

	mem := cmd.Commands[8].Memory
	if mem.SrcAccess != gpu.AccessShaderWrite || mem.DstAccess != gpu.AccessVertexAttributeRead || mem.DstStage != gpu.StageVertexInput {
		t.Errorf("particle barrier = %+v", mem)
	}
}
