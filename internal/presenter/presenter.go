// Package presenter drives the per-frame cycle: acquire a swap image, hand the
// application a command buffer to record into, submit and present it, and
// rebuild the swapchain whenever the surface stops matching it.
//
// A Presenter is either idle or has a frame in progress. BeginFrame moves it
// to the latter and EndFrame back; calling an operation in the wrong state is
// a programming error and panics.
package presenter

import (
	"time"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/pkg/errors"

	"Lumen/internal/framesync"
	"Lumen/internal/gpu"
	"Lumen/internal/swapchain"
)

// Device is the graphics device as seen by the presenter.
type Device interface {
	swapchain.Device
	framesync.Device
	WaitIdle() error
	AllocateCommandBuffers(count int) ([]gpu.CommandBuffer, error)
	FreeCommandBuffers(cbs []gpu.CommandBuffer)
	BeginCommandBuffer(cb gpu.CommandBuffer) error
	EndCommandBuffer(cb gpu.CommandBuffer) error
	CmdBeginRenderPass(cb gpu.CommandBuffer, begin gpu.RenderPassBegin)
	CmdEndRenderPass(cb gpu.CommandBuffer)
	CmdSetViewport(cb gpu.CommandBuffer, vp gpu.Viewport)
	CmdSetScissor(cb gpu.CommandBuffer, scissor gpu.Rect)
}

// Window is the part of the OS window the presenter reads.
type Window interface {
	FramebufferExtent() gpu.Extent
	WasResized() bool
	ResetResized()
	// WaitEvents blocks until the window has at least one event.
	WaitEvents()
}

type Options struct {
	// FramesInFlight is 2 or 3; zero means framesync.MaxFramesInFlight.
	FramesInFlight int
	VSync          bool
	// ClearColor clears the swapchain pass, OffscreenClearColor passes begun
	// with BeginCustomRenderPass.
	ClearColor          mgl32.Vec4
	OffscreenClearColor mgl32.Vec4
}

func DefaultOptions() Options {
	return Options{
		FramesInFlight:      framesync.MaxFramesInFlight,
		ClearColor:          mgl32.Vec4{0.1, 0.1, 0.1, 1},
		OffscreenClearColor: mgl32.Vec4{0, 0, 1, 1},
	}
}

type Presenter struct {
	dev  Device
	opts Options

	chain          *swapchain.Chain
	sync           *framesync.Synchronizer
	commandBuffers []gpu.CommandBuffer

	currentImageIndex uint32
	frameStarted      bool
	// acquireSuboptimal is the suboptimal flag of the frame's acquire.
	acquireSuboptimal bool

	// retried is set when the last acquire was out of date and the chain was
	// rebuilt for retriedExtent.
	retried       bool
	retriedExtent gpu.Extent

	onRecreate func(chain *swapchain.Chain, formatsChanged bool)
	stats      FrameStats
	now        func() time.Time
}

// New builds the swapchain, the frame synchronization and one command buffer
// per frame in flight. It blocks while the window has a zero-sized
// framebuffer.
func New(dev Device, win Window, opts Options) (*Presenter, error) {
	if opts.FramesInFlight == 0 {
		opts.FramesInFlight = framesync.MaxFramesInFlight
	}
	p := &Presenter{dev: dev, opts: opts, now: time.Now}

	chain, err := swapchain.New(dev, waitForExtent(win), nil, swapchain.Options{VSync: opts.VSync})
	if err != nil {
		return nil, errors.Wrap(err, "create swapchain")
	}
	p.chain = chain

	p.sync, err = framesync.New(dev, opts.FramesInFlight, chain.ImageCount())
	if err != nil {
		chain.Destroy()
		return nil, errors.Wrap(err, "create sync objects")
	}

	if err := p.allocateCommandBuffers(); err != nil {
		p.sync.Destroy()
		chain.Destroy()
		return nil, err
	}

	gpu.Logger().Info("presenter ready",
		"framesInFlight", opts.FramesInFlight,
		"images", chain.ImageCount(),
		"presentMode", chain.PresentMode().String())
	return p, nil
}

func (p *Presenter) allocateCommandBuffers() error {
	cbs, err := p.dev.AllocateCommandBuffers(p.opts.FramesInFlight)
	if err != nil {
		return errors.Wrap(err, "allocate command buffers")
	}
	if len(cbs) != p.opts.FramesInFlight {
		p.dev.FreeCommandBuffers(cbs)
		return errors.Errorf("allocated %d command buffers, want %d", len(cbs), p.opts.FramesInFlight)
	}
	p.commandBuffers = cbs
	return nil
}

// waitForExtent blocks on window events until the framebuffer has a non-zero
// size, which is never the case while the window is minimized.
func waitForExtent(win Window) gpu.Extent {
	extent := win.FramebufferExtent()
	for extent.Empty() {
		win.WaitEvents()
		extent = win.FramebufferExtent()
	}
	return extent
}

// BeginFrame acquires the next swap image and begins recording the current
// frame's command buffer. ok is false when the surface was out of date; the
// swapchain has then been rebuilt and the caller should skip this frame.
func (p *Presenter) BeginFrame(win Window) (cb gpu.CommandBuffer, ok bool, err error) {
	if p.frameStarted {
		panic("presenter: BeginFrame while a frame is already in progress")
	}
	if len(p.commandBuffers) == 0 {
		return 0, false, errors.New("no command buffers: swapchain recreation failed")
	}

	idx, suboptimal, err := p.sync.AcquireNextImage(p.chain.Swapchain())
	if gpu.IsOutOfDate(err) {
		if p.retried && win.FramebufferExtent() == p.retriedExtent {
			return 0, false, errors.Wrap(err, "surface still out of date after swapchain recreation")
		}
		if err := p.RecreateSwapchain(win); err != nil {
			return 0, false, err
		}
		p.retried = true
		p.retriedExtent = win.FramebufferExtent()
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	p.retried = false

	cb = p.commandBuffers[p.sync.CurrentFrame()]
	if err := p.dev.BeginCommandBuffer(cb); err != nil {
		return 0, false, errors.Wrap(err, "begin command buffer")
	}
	p.currentImageIndex = idx
	p.acquireSuboptimal = suboptimal
	p.frameStarted = true
	return cb, true, nil
}

// EndFrame finishes recording, submits the frame and presents it. The
// swapchain is rebuilt afterwards if acquire or presentation reported the
// surface out of date or suboptimal, or if the window was resized.
func (p *Presenter) EndFrame(win Window) error {
	p.mustBeActive("EndFrame")
	cb := p.commandBuffers[p.sync.CurrentFrame()]

	if err := p.dev.EndCommandBuffer(cb); err != nil {
		p.frameStarted = false
		return errors.Wrap(err, "record command buffer")
	}

	suboptimal, err := p.sync.SubmitAndPresent(p.chain.Swapchain(), cb, p.currentImageIndex)
	p.frameStarted = false
	outOfDate := gpu.IsOutOfDate(err)
	if err != nil && !outOfDate {
		return err
	}
	if p.stats.tick(p.now()) {
		gpu.Logger().Debug("frame rate", "fps", p.stats.FPS)
	}

	if outOfDate || suboptimal || p.acquireSuboptimal || win.WasResized() {
		win.ResetResized()
		return p.RecreateSwapchain(win)
	}
	return nil
}

// BeginRenderPass begins the swapchain render pass on the current swap image
// and sets a full-extent viewport and scissor.
func (p *Presenter) BeginRenderPass(cb gpu.CommandBuffer) {
	p.mustBeActive("BeginRenderPass")
	p.mustBeCurrent(cb)
	p.beginRenderPass(cb, p.chain.Extent(), p.chain.Framebuffer(int(p.currentImageIndex)), p.opts.ClearColor)
}

// BeginCustomRenderPass begins the swapchain render pass on a caller-owned
// framebuffer of the given extent, e.g. an off-screen target.
func (p *Presenter) BeginCustomRenderPass(cb gpu.CommandBuffer, extent gpu.Extent, fb gpu.Framebuffer) {
	p.mustBeActive("BeginCustomRenderPass")
	p.mustBeCurrent(cb)
	p.beginRenderPass(cb, extent, fb, p.opts.OffscreenClearColor)
}

func (p *Presenter) beginRenderPass(cb gpu.CommandBuffer, extent gpu.Extent, fb gpu.Framebuffer, clear mgl32.Vec4) {
	area := gpu.Rect{Extent: extent}
	p.dev.CmdBeginRenderPass(cb, gpu.RenderPassBegin{
		RenderPass:   p.chain.RenderPass(),
		Framebuffer:  fb,
		Area:         area,
		ClearColor:   clear,
		ClearDepth:   1,
		ClearStencil: 0,
	})
	p.dev.CmdSetViewport(cb, gpu.Viewport{
		Width:    float32(extent.Width),
		Height:   float32(extent.Height),
		MinDepth: 0,
		MaxDepth: 1,
	})
	p.dev.CmdSetScissor(cb, area)
}

func (p *Presenter) EndRenderPass(cb gpu.CommandBuffer) {
	p.mustBeActive("EndRenderPass")
	p.mustBeCurrent(cb)
	p.dev.CmdEndRenderPass(cb)
}

// RecreateSwapchain rebuilds the swapchain for the window's current size.
// While the window is minimized it blocks on window events.
func (p *Presenter) RecreateSwapchain(win Window) error {
	if p.frameStarted {
		panic("presenter: RecreateSwapchain while a frame is in progress")
	}
	extent := waitForExtent(win)

	if err := p.dev.WaitIdle(); err != nil {
		return errors.Wrap(err, "wait for device idle")
	}
	p.dev.FreeCommandBuffers(p.commandBuffers)
	p.commandBuffers = nil

	oldColor, oldDepth := p.chain.ImageFormat(), p.chain.DepthFormat()
	if err := p.chain.Recreate(extent); err != nil {
		// Frames can still be attempted; acquiring from a retired swapchain
		// reports out of date and triggers another rebuild.
		if allocErr := p.allocateCommandBuffers(); allocErr != nil {
			gpu.Logger().Error("reallocate command buffers", "err", allocErr)
		}
		return err
	}
	p.sync.ResetImages(p.chain.ImageCount())
	if err := p.allocateCommandBuffers(); err != nil {
		return err
	}
	p.stats.Recreations++

	formatsChanged := oldColor != p.chain.ImageFormat() || oldDepth != p.chain.DepthFormat()
	gpu.Logger().Info("swapchain recreated",
		"generation", p.chain.Generation(),
		"width", p.chain.Extent().Width,
		"height", p.chain.Extent().Height,
		"formatsChanged", formatsChanged)
	if p.onRecreate != nil {
		p.onRecreate(p.chain, formatsChanged)
	}
	return nil
}

// SetClearColor changes the clear color of later BeginRenderPass calls.
func (p *Presenter) SetClearColor(c mgl32.Vec4) {
	p.opts.ClearColor = c
}

// SetOnRecreate registers fn to run after every swapchain rebuild, e.g. to
// rebuild pipelines when formatsChanged.
func (p *Presenter) SetOnRecreate(fn func(chain *swapchain.Chain, formatsChanged bool)) {
	p.onRecreate = fn
}

// CurrentCommandBuffer is the command buffer of the frame in progress.
func (p *Presenter) CurrentCommandBuffer() gpu.CommandBuffer {
	p.mustBeActive("CurrentCommandBuffer")
	return p.commandBuffers[p.sync.CurrentFrame()]
}

// FrameIndex is the frame slot in [0, frames in flight) of the frame in
// progress, for indexing per-frame resources.
func (p *Presenter) FrameIndex() int {
	p.mustBeActive("FrameIndex")
	return p.sync.CurrentFrame()
}

// ImageIndex is the swap image the frame in progress renders to.
func (p *Presenter) ImageIndex() uint32 {
	p.mustBeActive("ImageIndex")
	return p.currentImageIndex
}

func (p *Presenter) IsFrameInProgress() bool    { return p.frameStarted }
func (p *Presenter) AspectRatio() float32       { return p.chain.AspectRatio() }
func (p *Presenter) RenderPass() gpu.RenderPass { return p.chain.RenderPass() }
func (p *Presenter) Chain() *swapchain.Chain    { return p.chain }
func (p *Presenter) Stats() FrameStats          { return p.stats }

// Destroy waits for the device to go idle and releases everything the
// presenter owns.
func (p *Presenter) Destroy() error {
	if p.frameStarted {
		panic("presenter: Destroy while a frame is in progress")
	}
	err := p.dev.WaitIdle()
	if p.commandBuffers != nil {
		p.dev.FreeCommandBuffers(p.commandBuffers)
		p.commandBuffers = nil
	}
	p.sync.Destroy()
	p.chain.Destroy()
	if err != nil {
		return errors.Wrap(err, "wait for device idle")
	}
	return nil
}

func (p *Presenter) mustBeActive(op string) {
	if !p.frameStarted {
		panic("presenter: " + op + " called with no frame in progress")
	}
}

func (p *Presenter) mustBeCurrent(cb gpu.CommandBuffer) {
	if cb != p.commandBuffers[p.sync.CurrentFrame()] {
		panic("presenter: command buffer does not belong to the frame in progress")
	}
}
