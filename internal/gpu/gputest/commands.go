package gputest

import (
	"github.com/vkngwrapper/frameloop/internal/gpu"
)

// Command is one recorded command. Only the fields relevant to Op are set.
type Command struct {
	Op string

	Image  *gpu.ImageBarrier
	Memory *gpu.MemoryBarrier
	Target *gpu.RenderTarget

	Pipeline gpu.Pipeline
	Sets     []gpu.DescriptorSet
	Buffer   gpu.Buffer

	Count  int
	First  int
	Groups [3]int

	Dst    gpu.Image
	Region gpu.Rect
}

// CommandBuffer is the fake gpu.CommandBuffer.
type CommandBuffer struct {
	Object
	dev *Device

	Commands  []Command
	Begins    int
	Resets    int
	Submitted int

	recording bool
	inFlight  int
}

// InFlight reports whether a pending submission references the buffer.
func (c *CommandBuffer) InFlight() bool { return c.inFlight > 0 }

func (c *CommandBuffer) checkIdle(op string) {
	if c.inFlight > 0 {
		c.dev.Violations = append(c.dev.Violations, op+" while in flight: "+c.Name)
	}
}

func (c *CommandBuffer) Begin() error {
	if err := c.dev.fail("Begin"); err != nil {
		return err
	}
	c.checkIdle("begin")
	c.Commands = nil
	c.Begins++
	c.recording = true
	c.dev.record("begin %s", c.Name)
	return nil
}

func (c *CommandBuffer) End() error {
	c.recording = false
	c.dev.record("end %s", c.Name)
	return c.dev.fail("End")
}

func (c *CommandBuffer) Reset() error {
	c.checkIdle("reset")
	c.Commands = nil
	c.Resets++
	c.recording = false
	c.dev.record("reset %s", c.Name)
	return c.dev.fail("Reset")
}

func (c *CommandBuffer) add(cmd Command) {
	if !c.recording {
		c.dev.Violations = append(c.dev.Violations, cmd.Op+" outside recording: "+c.Name)
	}
	c.Commands = append(c.Commands, cmd)
}

func (c *CommandBuffer) ImageBarrier(barrier gpu.ImageBarrier) error {
	c.add(Command{Op: "image-barrier", Image: &barrier})
	return nil
}

func (c *CommandBuffer) MemoryBarrier(barrier gpu.MemoryBarrier) error {
	c.add(Command{Op: "memory-barrier", Memory: &barrier})
	return nil
}

func (c *CommandBuffer) BeginRenderPass(target gpu.RenderTarget) error {
	c.add(Command{Op: "begin-pass", Target: &target})
	return nil
}

func (c *CommandBuffer) EndRenderPass() {
	c.add(Command{Op: "end-pass"})
}

func (c *CommandBuffer) BindPipeline(pipeline gpu.Pipeline) {
	c.add(Command{Op: "bind-pipeline", Pipeline: pipeline})
}

func (c *CommandBuffer) BindDescriptorSets(pipeline gpu.Pipeline, sets ...gpu.DescriptorSet) {
	c.add(Command{Op: "bind-sets", Pipeline: pipeline, Sets: sets})
}

func (c *CommandBuffer) BindVertexBuffer(buffer gpu.Buffer) {
	c.add(Command{Op: "bind-vertex", Buffer: buffer})
}

func (c *CommandBuffer) BindIndexBuffer(buffer gpu.Buffer) {
	c.add(Command{Op: "bind-index", Buffer: buffer})
}

func (c *CommandBuffer) Draw(vertexCount int) {
	c.add(Command{Op: "draw", Count: vertexCount})
}

func (c *CommandBuffer) DrawIndexed(indexCount, firstIndex int) {
	c.add(Command{Op: "draw-indexed", Count: indexCount, First: firstIndex})
}

func (c *CommandBuffer) Dispatch(x, y, z int) {
	c.add(Command{Op: "dispatch", Groups: [3]int{x, y, z}})
}

func (c *CommandBuffer) CopyBufferToImage(src gpu.Buffer, dst gpu.Image, region gpu.Rect) error {
	c.add(Command{Op: "copy-buffer-to-image", Buffer: src, Dst: dst, Region: region})
	return nil
}

// Ops returns the op names in recording order.
func (c *CommandBuffer) Ops() []string {
	ops := make([]string, 0, len(c.Commands))
	for _, cmd := range c.Commands {
		ops = append(ops, cmd.Op)
	}
	return ops
}

// Barriers returns the recorded image barriers touching image.
func (c *CommandBuffer) Barriers(image gpu.Image) []gpu.ImageBarrier {
	var barriers []gpu.ImageBarrier
	for _, cmd := range c.Commands {
		if cmd.Image != nil && cmd.Image.Image == image {
			barriers = append(barriers, *cmd.Image)
		}
	}
	return barriers
}
