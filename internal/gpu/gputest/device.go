// Package gputest provides a recording, single-threaded fake of the gpu
// interfaces. Submitted work completes in submission order, and only when the
// CPU waits for it, so tests observe exactly which wait released which
// submission.
package gputest

import (
	"fmt"
	"sort"

	"github.com/cockroachdb/errors"

	"github.com/vkngwrapper/frameloop/internal/gpu"
)

// Object is the common identity of every fake handle.
type Object struct {
	Name      string
	Destroyed bool
}

func (o *Object) String() string { return o.Name }

// Handle is a fake opaque handle (image, buffer, descriptor set, pipeline).
type Handle struct {
	Name string
}

func (h Handle) String() string { return h.Name }

type Semaphore struct {
	Object
	dev *Device
	// Signals counts how many times a completed submission signaled it.
	Signals int
}

func (s *Semaphore) Destroy() { s.dev.destroy(&s.Object) }

type Fence struct {
	Object
	dev      *Device
	Signaled bool
}

func (f *Fence) Wait() error {
	f.dev.record("wait %s", f.Name)
	if err := f.dev.fail("Fence.Wait"); err != nil {
		return err
	}
	if f.Signaled {
		return nil
	}
	f.dev.Blocked = append(f.dev.Blocked, f.Name)
	for !f.Signaled && len(f.dev.Pending) > 0 {
		f.dev.completeNext()
	}
	if !f.Signaled {
		return errors.Newf("%s would never signal", f.Name)
	}
	return nil
}

func (f *Fence) Reset() error {
	f.dev.record("reset %s", f.Name)
	f.Signaled = false
	return nil
}

func (f *Fence) Destroy() { f.dev.destroy(&f.Object) }

// View is a fake image view, render pass or framebuffer.
type View struct {
	Object
	dev    *Device
	Target gpu.Image
}

func (v *View) Destroy() { v.dev.destroy(&v.Object) }

type Attachment struct {
	Object
	dev    *Device
	Extent gpu.Extent
	image  Handle
	view   *View
}

func (a *Attachment) Image() gpu.Image    { return a.image }
func (a *Attachment) View() gpu.ImageView { return a.view }
func (a *Attachment) Destroy()            { a.view.Destroy(); a.dev.destroy(&a.Object) }

// HostBuffer is a fake gpu.HostBuffer backed by a byte slice.
type HostBuffer struct {
	Object
	dev    *Device
	handle Handle
	data   []byte
}

func (b *HostBuffer) Buffer() gpu.Buffer { return b.handle }
func (b *HostBuffer) Bytes() []byte { return b.data }
func (b *HostBuffer) Destroy() { b.dev.destroy(&b.Object) }

// Batch is one recorded queue submission.
type Batch struct {
	Seq     int
	Fence   *Fence
	Batches []gpu.Submission
}

// Device is the fake gpu.Device. Its zero value is not usable; call NewDevice.
type Device struct {
	// Trace is an ordered, human readable log of calls.
	Trace []string
	// Submits holds every submission in order; Pending those not yet complete.
	Submits []*Batch
	Pending []*Batch
	// Blocked lists the fences whose Wait found them unsignaled.
	Blocked []string
	// Violations lists recording contexts reused while still referenced by
	// pending work.
	Violations []string
	IdleWaits  int
	// Errors injects a failure for the named operation.
	Errors map[string]error

	queue   *Queue
	objects []*Object
	counter map[string]int
	seq     int
}

func NewDevice() *Device {
	d := &Device{
		Errors:  map[string]error{},
		counter: map[string]int{},
	}
	d.queue = &Queue{dev: d}
	return d
}

func (d *Device) record(format string, args ...interface{}) {
	d.Trace = append(d.Trace, fmt.Sprintf(format, args...))
}

func (d *Device) fail(op string) error {
	if err, ok := d.Errors[op]; ok && err != nil {
		return err
	}
	return nil
}

func (d *Device) name(kind string) string {
	d.counter[kind]++
	return fmt.Sprintf("%s#%d", kind, d.counter[kind])
}

func (d *Device) track(o *Object) {
	d.objects = append(d.objects, o)
}

func (d *Device) destroy(o *Object) {
	if o.Destroyed {
		d.Violations = append(d.Violations, "double destroy of "+o.Name)
		return
	}
	o.Destroyed = true
	d.record("destroy %s", o.Name)
}

// Live returns the names of created objects that were never destroyed.
func (d *Device) Live() []string {
	var live []string
	for _, o := range d.objects {
		if !o.Destroyed {
			live = append(live, o.Name)
		}
	}
	sort.Strings(live)
	return live
}

func (d *Device) completeNext() {
	b := d.Pending[0]
	d.Pending = d.Pending[1:]
	for _, batch := range b.Batches {
		for _, cmd := range batch.Commands {
			cmd.(*CommandBuffer).inFlight--
		}
		for _, sem := range batch.Signal {
			sem.(*Semaphore).Signals++
		}
	}
	if b.Fence != nil {
		b.Fence.Signaled = true
	}
	d.record("complete submit#%d", b.Seq)
}

// CompleteAll retires every pending submission.
func (d *Device) CompleteAll() {
	for len(d.Pending) > 0 {
		d.completeNext()
	}
}

func (d *Device) CreateSemaphore() (gpu.Semaphore, error) {
	if err := d.fail("CreateSemaphore"); err != nil {
		return nil, err
	}
	s := &Semaphore{Object: Object{Name: d.name("semaphore")}, dev: d}
	d.track(&s.Object)
	return s, nil
}

func (d *Device) CreateFence(signaled bool) (gpu.Fence, error) {
	if err := d.fail("CreateFence"); err != nil {
		return nil, err
	}
	f := &Fence{Object: Object{Name: d.name("fence")}, dev: d, Signaled: signaled}
	d.track(&f.Object)
	return f, nil
}

func (d *Device) AllocateCommandBuffers(count int) ([]gpu.CommandBuffer, error) {
	if err := d.fail("AllocateCommandBuffers"); err != nil {
		return nil, err
	}
	buffers := make([]gpu.CommandBuffer, 0, count)
	for i := 0; i < count; i++ {
		c := &CommandBuffer{Object: Object{Name: d.name("cmd")}, dev: d}
		d.track(&c.Object)
		buffers = append(buffers, c)
	}
	return buffers, nil
}

func (d *Device) FreeCommandBuffers(buffers []gpu.CommandBuffer) {
	for _, b := range buffers {
		d.destroy(&b.(*CommandBuffer).Object)
	}
}

func (d *Device) CreateImageView(image gpu.Image, format gpu.Format) (gpu.ImageView, error) {
	if err := d.fail("CreateImageView"); err != nil {
		return nil, err
	}
	v := &View{Object: Object{Name: d.name("view")}, dev: d, Target: image}
	d.track(&v.Object)
	return v, nil
}

func (d *Device) CreateDepthAttachment(extent gpu.Extent) (gpu.Attachment, error) {
	if err := d.fail("CreateDepthAttachment"); err != nil {
		return nil, err
	}
	a := &Attachment{Object: Object{Name: d.name("depth")}, dev: d, Extent: extent}
	a.image = Handle{Name: a.Name + "/image"}
	a.view = &View{Object: Object{Name: a.Name + "/view"}, dev: d, Target: a.image}
	d.track(&a.Object)
	d.track(&a.view.Object)
	return a, nil
}

func (d *Device) CreateRenderPass(color gpu.Format) (gpu.RenderPass, error) {
	if err := d.fail("CreateRenderPass"); err != nil {
		return nil, err
	}
	p := &View{Object: Object{Name: d.name("renderpass")}, dev: d}
	d.track(&p.Object)
	return p, nil
}

func (d *Device) CreateFramebuffer(pass gpu.RenderPass, color, depth gpu.ImageView, extent gpu.Extent) (gpu.Framebuffer, error) {
	if err := d.fail("CreateFramebuffer"); err != nil {
		return nil, err
	}
	f := &View{Object: Object{Name: d.name("framebuffer")}, dev: d, Target: color}
	d.track(&f.Object)
	return f, nil
}

func (d *Device) CreateStagingBuffer(size int) (gpu.HostBuffer, error) {
	if err := d.fail("CreateStagingBuffer"); err != nil {
		return nil, err
	}
	b := &HostBuffer{Object: Object{Name: d.name("staging")}, dev: d, data: make([]byte, size)}
	b.handle = Handle{Name: b.Name}
	d.track(&b.Object)
	return b, nil
}

func (d *Device) Queue() gpu.Queue { return d.queue }

func (d *Device) WaitIdle() error {
	d.record("wait idle")
	if err := d.fail("WaitIdle"); err != nil {
		return err
	}
	d.IdleWaits++
	d.CompleteAll()
	return nil
}

// Queue is the fake gpu.Queue.
type Queue struct {
	dev *Device
}

func (q *Queue) Submit(fence gpu.Fence, batches ...gpu.Submission) error {
	if err := q.dev.fail("Submit"); err != nil {
		return err
	}
	q.dev.seq++
	b := &Batch{Seq: q.dev.seq, Batches: batches}
	if fence != nil {
		b.Fence = fence.(*Fence)
		if b.Fence.Signaled {
			q.dev.Violations = append(q.dev.Violations, "submitted with signaled "+b.Fence.Name)
		}
	}
	for _, batch := range batches {
		for _, cmd := range batch.Commands {
			c := cmd.(*CommandBuffer)
			if c.recording {
				q.dev.Violations = append(q.dev.Violations, "submitted while recording "+c.Name)
			}
			c.inFlight++
			c.Submitted++
		}
	}
	q.dev.Submits = append(q.dev.Submits, b)
	q.dev.Pending = append(q.dev.Pending, b)
	q.dev.record("submit#%d", b.Seq)
	return nil
}

// Pipelines is a fake gpu.Pipelines. Handles carry the kind and the
// generation they were built for.
type Pipelines struct {
	Generation int
}

func (p *Pipelines) Pipeline(kind gpu.PipelineKind) gpu.Pipeline {
	return Handle{Name: fmt.Sprintf("pipeline/%s/gen%d", kind, p.Generation)}
}
