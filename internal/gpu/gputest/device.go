// Package gputest provides an in-memory graphics device and window for
// exercising the presentation packages without a GPU.
package gputest

import (
	"fmt"

	"github.com/pkg/errors"

	"Lumen/internal/gpu"
)

// Call is one recorded device operation.
type Call struct {
	Op     string
	Handle uint32
	Info   any
}

func (c Call) String() string {
	return fmt.Sprintf("%s(%d)", c.Op, c.Handle)
}

type AcquireResult struct {
	Index      uint32
	Suboptimal bool
	Err        error
}

type PresentResult struct {
	Suboptimal bool
	Err        error
}

type fenceState struct {
	signaled bool
	pending  bool
}

// Device implements every device operation used by swapchain, framesync and
// presenter. Fences behave like a GPU that finishes submitted work as soon as
// the CPU waits for it; waiting on an unsignaled fence with nothing submitted
// is reported as a deadlock error.
type Device struct {
	Support gpu.SurfaceSupport
	// Unsupported formats make FormatSupported return false.
	Unsupported map[gpu.Format]bool

	Calls []Call

	acquire  []AcquireResult
	present  []PresentResult
	failures map[string]error

	nextID     uint32
	fences     map[gpu.Fence]*fenceState
	live       map[string]map[uint32]bool
	images     map[gpu.Swapchain][]gpu.Image
	nextImage  map[gpu.Swapchain]uint32
	recording  map[gpu.CommandBuffer]bool
	renderPass map[gpu.CommandBuffer]bool
}

// NewDevice returns a device whose surface offers B8G8R8A8_SRGB, mailbox and
// fifo, a defined 800x600 extent and two minimum images.
func NewDevice() *Device {
	return &Device{
		Support: gpu.SurfaceSupport{
			Capabilities: gpu.SurfaceCapabilities{
				MinImageCount:  2,
				MaxImageCount:  0,
				CurrentExtent:  gpu.Extent{Width: 800, Height: 600},
				MinImageExtent: gpu.Extent{Width: 1, Height: 1},
				MaxImageExtent: gpu.Extent{Width: 4096, Height: 4096},
			},
			Formats: []gpu.SurfaceFormat{
				{Format: gpu.FormatB8g8r8a8Srgb, ColorSpace: gpu.ColorSpaceSrgbNonlinear},
			},
			PresentModes: []gpu.PresentMode{gpu.PresentModeFifo, gpu.PresentModeMailbox},
		},
		Unsupported: map[gpu.Format]bool{},
		failures:    map[string]error{},
		fences:      map[gpu.Fence]*fenceState{},
		live:        map[string]map[uint32]bool{},
		images:      map[gpu.Swapchain][]gpu.Image{},
		nextImage:   map[gpu.Swapchain]uint32{},
		recording:   map[gpu.CommandBuffer]bool{},
		renderPass:  map[gpu.CommandBuffer]bool{},
	}
}

// QueueAcquire scripts the next AcquireNextImage results in order. Without
// a script images are handed out round-robin.
func (d *Device) QueueAcquire(results ...AcquireResult) {
	d.acquire = append(d.acquire, results...)
}

// QueuePresent scripts the next Present results in order.
func (d *Device) QueuePresent(results ...PresentResult) {
	d.present = append(d.present, results...)
}

// FailNext makes the next call to op return err.
func (d *Device) FailNext(op string, err error) {
	d.failures[op] = err
}

// Live is the number of live objects of kind: "swapchain", "image",
// "imageView", "renderPass", "framebuffer", "fence", "semaphore" or
// "commandBuffer".
func (d *Device) Live(kind string) int {
	return len(d.live[kind])
}

// IsLive reports whether handle id of kind has not been destroyed.
func (d *Device) IsLive(kind string, id uint32) bool {
	return d.live[kind][id]
}

// FenceSignaled reports the current state of f.
func (d *Device) FenceSignaled(f gpu.Fence) bool {
	st, ok := d.fences[f]
	return ok && st.signaled
}

// Ops returns the recorded calls whose Op is one of ops.
func (d *Device) Ops(ops ...string) []Call {
	var out []Call
	for _, c := range d.Calls {
		for _, op := range ops {
			if c.Op == op {
				out = append(out, c)
				break
			}
		}
	}
	return out
}

// ResetCalls clears the call log.
func (d *Device) ResetCalls() {
	d.Calls = nil
}

func (d *Device) record(op string, handle uint32, info any) error {
	d.Calls = append(d.Calls, Call{Op: op, Handle: handle, Info: info})
	if err, ok := d.failures[op]; ok {
		delete(d.failures, op)
		return err
	}
	return nil
}

func (d *Device) create(kind string) uint32 {
	d.nextID++
	if d.live[kind] == nil {
		d.live[kind] = map[uint32]bool{}
	}
	d.live[kind][d.nextID] = true
	return d.nextID
}

func (d *Device) destroy(kind string, id uint32) {
	if !d.live[kind][id] {
		panic(fmt.Sprintf("gputest: destroy of unknown %s %d", kind, id))
	}
	delete(d.live[kind], id)
}

func (d *Device) SurfaceSupport() (gpu.SurfaceSupport, error) {
	if err := d.record("SurfaceSupport", 0, nil); err != nil {
		return gpu.SurfaceSupport{}, err
	}
	return d.Support, nil
}

func (d *Device) FormatSupported(format gpu.Format, tiling gpu.ImageTiling, features gpu.FormatFeatureFlags) bool {
	d.record("FormatSupported", uint32(format), tiling)
	return !d.Unsupported[format]
}

func (d *Device) CreateSwapchain(info gpu.SwapchainInfo) (gpu.Swapchain, error) {
	if err := d.record("CreateSwapchain", 0, info); err != nil {
		return 0, err
	}
	sc := gpu.Swapchain(d.create("swapchain"))
	images := make([]gpu.Image, info.MinImages)
	for i := range images {
		d.nextID++
		images[i] = gpu.Image(d.nextID)
	}
	d.images[sc] = images
	return sc, nil
}

func (d *Device) SwapchainImages(sc gpu.Swapchain) ([]gpu.Image, error) {
	if err := d.record("SwapchainImages", uint32(sc), nil); err != nil {
		return nil, err
	}
	return append([]gpu.Image(nil), d.images[sc]...), nil
}

func (d *Device) DestroySwapchain(sc gpu.Swapchain) {
	d.record("DestroySwapchain", uint32(sc), nil)
	d.destroy("swapchain", uint32(sc))
	delete(d.images, sc)
}

func (d *Device) CreateImage(info gpu.ImageInfo) (gpu.Image, error) {
	if err := d.record("CreateImage", 0, info); err != nil {
		return 0, err
	}
	return gpu.Image(d.create("image")), nil
}

func (d *Device) DestroyImage(img gpu.Image) {
	d.record("DestroyImage", uint32(img), nil)
	d.destroy("image", uint32(img))
}

func (d *Device) CreateImageView(info gpu.ImageViewInfo) (gpu.ImageView, error) {
	if err := d.record("CreateImageView", 0, info); err != nil {
		return 0, err
	}
	return gpu.ImageView(d.create("imageView")), nil
}

func (d *Device) DestroyImageView(v gpu.ImageView) {
	d.record("DestroyImageView", uint32(v), nil)
	d.destroy("imageView", uint32(v))
}

func (d *Device) CreateRenderPass(info gpu.RenderPassInfo) (gpu.RenderPass, error) {
	if err := d.record("CreateRenderPass", 0, info); err != nil {
		return 0, err
	}
	return gpu.RenderPass(d.create("renderPass")), nil
}

func (d *Device) DestroyRenderPass(rp gpu.RenderPass) {
	d.record("DestroyRenderPass", uint32(rp), nil)
	d.destroy("renderPass", uint32(rp))
}

func (d *Device) CreateFramebuffer(info gpu.FramebufferInfo) (gpu.Framebuffer, error) {
	if err := d.record("CreateFramebuffer", 0, info); err != nil {
		return 0, err
	}
	return gpu.Framebuffer(d.create("framebuffer")), nil
}

func (d *Device) DestroyFramebuffer(fb gpu.Framebuffer) {
	d.record("DestroyFramebuffer", uint32(fb), nil)
	d.destroy("framebuffer", uint32(fb))
}

func (d *Device) CreateSemaphore() (gpu.Semaphore, error) {
	if err := d.record("CreateSemaphore", 0, nil); err != nil {
		return 0, err
	}
	return gpu.Semaphore(d.create("semaphore")), nil
}

func (d *Device) DestroySemaphore(s gpu.Semaphore) {
	d.record("DestroySemaphore", uint32(s), nil)
	d.destroy("semaphore", uint32(s))
}

func (d *Device) CreateFence(signaled bool) (gpu.Fence, error) {
	if err := d.record("CreateFence", 0, signaled); err != nil {
		return 0, err
	}
	f := gpu.Fence(d.create("fence"))
	d.fences[f] = &fenceState{signaled: signaled}
	return f, nil
}

func (d *Device) DestroyFence(f gpu.Fence) {
	d.record("DestroyFence", uint32(f), nil)
	d.destroy("fence", uint32(f))
	delete(d.fences, f)
}

func (d *Device) WaitForFence(f gpu.Fence) error {
	if err := d.record("WaitForFence", uint32(f), nil); err != nil {
		return err
	}
	st, ok := d.fences[f]
	if !ok {
		return errors.Errorf("gputest: wait on unknown fence %d", f)
	}
	if st.signaled {
		return nil
	}
	if !st.pending {
		return errors.Errorf("gputest: deadlock, fence %d unsignaled with no work submitted", f)
	}
	st.signaled, st.pending = true, false
	return nil
}

func (d *Device) ResetFence(f gpu.Fence) error {
	if err := d.record("ResetFence", uint32(f), nil); err != nil {
		return err
	}
	st, ok := d.fences[f]
	if !ok {
		return errors.Errorf("gputest: reset of unknown fence %d", f)
	}
	st.signaled = false
	return nil
}

func (d *Device) AcquireNextImage(sc gpu.Swapchain, signal gpu.Semaphore) (uint32, bool, error) {
	if err := d.record("AcquireNextImage", uint32(sc), signal); err != nil {
		return 0, false, err
	}
	if len(d.acquire) > 0 {
		r := d.acquire[0]
		d.acquire = d.acquire[1:]
		return r.Index, r.Suboptimal, r.Err
	}
	n := uint32(len(d.images[sc]))
	if n == 0 {
		return 0, false, errors.Errorf("gputest: acquire from unknown swapchain %d", sc)
	}
	idx := d.nextImage[sc] % n
	d.nextImage[sc] = idx + 1
	return idx, false, nil
}

func (d *Device) Submit(s gpu.Submission) error {
	if err := d.record("Submit", uint32(s.CommandBuffer), s); err != nil {
		return err
	}
	if d.recording[s.CommandBuffer] {
		return errors.Errorf("gputest: submit of command buffer %d still recording", s.CommandBuffer)
	}
	if s.Fence != 0 {
		st, ok := d.fences[s.Fence]
		if !ok {
			return errors.Errorf("gputest: submit with unknown fence %d", s.Fence)
		}
		if st.signaled {
			return errors.Errorf("gputest: submit with signaled fence %d", s.Fence)
		}
		st.pending = true
	}
	return nil
}

func (d *Device) Present(p gpu.Presentation) (bool, error) {
	if err := d.record("Present", p.ImageIndex, p); err != nil {
		return false, err
	}
	if len(d.present) > 0 {
		r := d.present[0]
		d.present = d.present[1:]
		return r.Suboptimal, r.Err
	}
	return false, nil
}

func (d *Device) WaitIdle() error {
	if err := d.record("WaitIdle", 0, nil); err != nil {
		return err
	}
	for _, st := range d.fences {
		if st.pending {
			st.signaled, st.pending = true, false
		}
	}
	return nil
}

func (d *Device) AllocateCommandBuffers(count int) ([]gpu.CommandBuffer, error) {
	if err := d.record("AllocateCommandBuffers", uint32(count), nil); err != nil {
		return nil, err
	}
	cbs := make([]gpu.CommandBuffer, count)
	for i := range cbs {
		cbs[i] = gpu.CommandBuffer(d.create("commandBuffer"))
	}
	return cbs, nil
}

func (d *Device) FreeCommandBuffers(cbs []gpu.CommandBuffer) {
	d.record("FreeCommandBuffers", uint32(len(cbs)), cbs)
	for _, cb := range cbs {
		d.destroy("commandBuffer", uint32(cb))
		delete(d.recording, cb)
	}
}

func (d *Device) BeginCommandBuffer(cb gpu.CommandBuffer) error {
	if err := d.record("BeginCommandBuffer", uint32(cb), nil); err != nil {
		return err
	}
	if !d.live["commandBuffer"][uint32(cb)] {
		return errors.Errorf("gputest: begin of unknown command buffer %d", cb)
	}
	d.recording[cb] = true
	return nil
}

func (d *Device) EndCommandBuffer(cb gpu.CommandBuffer) error {
	if err := d.record("EndCommandBuffer", uint32(cb), nil); err != nil {
		return err
	}
	if !d.recording[cb] {
		return errors.Errorf("gputest: end of command buffer %d not recording", cb)
	}
	if d.renderPass[cb] {
		return errors.Errorf("gputest: end of command buffer %d inside a render pass", cb)
	}
	d.recording[cb] = false
	return nil
}

func (d *Device) CmdBeginRenderPass(cb gpu.CommandBuffer, begin gpu.RenderPassBegin) {
	d.record("CmdBeginRenderPass", uint32(cb), begin)
	d.renderPass[cb] = true
}

func (d *Device) CmdEndRenderPass(cb gpu.CommandBuffer) {
	d.record("CmdEndRenderPass", uint32(cb), nil)
	d.renderPass[cb] = false
}

func (d *Device) CmdSetViewport(cb gpu.CommandBuffer, vp gpu.Viewport) {
	d.record("CmdSetViewport", uint32(cb), vp)
}

func (d *Device) CmdSetScissor(cb gpu.CommandBuffer, r gpu.Rect) {
	d.record("CmdSetScissor", uint32(cb), r)
}
