package presenter

import (
	"testing"
	"time"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"Lumen/internal/gpu"
	"Lumen/internal/gpu/gputest"
	"Lumen/internal/swapchain"
)

var allKinds = []string{
	"swapchain", "image", "imageView", "renderPass", "framebuffer",
	"fence", "semaphore", "commandBuffer",
}

func newPresenter(t *testing.T, opts Options) (*Presenter, *gputest.Device, *gputest.Window) {
	t.Helper()
	dev := gputest.NewDevice()
	win := gputest.NewWindow(800, 600)
	p, err := New(dev, win, opts)
	require.NoError(t, err)
	return p, dev, win
}

func runFrame(t *testing.T, p *Presenter, win Window) {
	t.Helper()
	cb, ok, err := p.BeginFrame(win)
	require.NoError(t, err)
	require.True(t, ok)
	p.BeginRenderPass(cb)
	p.EndRenderPass(cb)
	require.NoError(t, p.EndFrame(win))
}

func indexOf(calls []gputest.Call, op string) int {
	for i, c := range calls {
		if c.Op == op {
			return i
		}
	}
	return -1
}

func TestFrameCycleKeepsResourcesConstant(t *testing.T) {
	p, dev, win := newPresenter(t, DefaultOptions())

	for i := 0; i < 10; i++ {
		runFrame(t, p, win)
		assert.False(t, p.IsFrameInProgress())
		assert.Equal(t, 2, dev.Live("commandBuffer"))
	}
	assert.Equal(t, uint64(10), p.Stats().Frames)
	assert.Len(t, dev.Ops("Present"), 10)
	assert.Equal(t, 0, p.Chain().Generation())
}

func TestFrameIndexCycles(t *testing.T) {
	opts := DefaultOptions()
	opts.FramesInFlight = 3
	p, dev, win := newPresenter(t, opts)
	assert.Equal(t, 3, dev.Live("commandBuffer"))

	var indices []int
	seen := map[gpu.CommandBuffer]bool{}
	for i := 0; i < 6; i++ {
		cb, ok, err := p.BeginFrame(win)
		require.NoError(t, err)
		require.True(t, ok)
		assert.True(t, p.IsFrameInProgress())
		assert.Equal(t, cb, p.CurrentCommandBuffer())
		indices = append(indices, p.FrameIndex())
		seen[cb] = true
		require.NoError(t, p.EndFrame(win))
	}
	assert.Equal(t, []int{0, 1, 2, 0, 1, 2}, indices)
	assert.Len(t, seen, 3)
}

func TestCommandBufferBegunOnlyAfterSlotFenceWait(t *testing.T) {
	p, dev, win := newPresenter(t, DefaultOptions())
	dev.ResetCalls()
	for i := 0; i < 8; i++ {
		runFrame(t, p, win)
	}

	lastFence := map[uint32]gpu.Fence{}
	lastSubmit := map[uint32]int{}
	for i, call := range dev.Calls {
		switch call.Op {
		case "Submit":
			lastFence[call.Handle] = call.Info.(gpu.Submission).Fence
			lastSubmit[call.Handle] = i
		case "BeginCommandBuffer":
			fence, submitted := lastFence[call.Handle]
			if !submitted {
				continue
			}
			waited := false
			for _, prior := range dev.Calls[lastSubmit[call.Handle]:i] {
				if prior.Op == "WaitForFence" && gpu.Fence(prior.Handle) == fence {
					waited = true
				}
			}
			assert.True(t, waited, "command buffer %d re-recorded at call %d before its fence was waited on", call.Handle, i)
		}
	}
}

func TestBeginRenderPass(t *testing.T) {
	p, dev, win := newPresenter(t, DefaultOptions())

	cb, ok, err := p.BeginFrame(win)
	require.NoError(t, err)
	require.True(t, ok)
	p.BeginRenderPass(cb)

	begins := dev.Ops("CmdBeginRenderPass")
	require.Len(t, begins, 1)
	begin := begins[0].Info.(gpu.RenderPassBegin)
	extent := gpu.Extent{Width: 800, Height: 600}
	assert.Equal(t, p.RenderPass(), begin.RenderPass)
	assert.Equal(t, p.Chain().Framebuffer(int(p.ImageIndex())), begin.Framebuffer)
	assert.Equal(t, gpu.Rect{Extent: extent}, begin.Area)
	assert.Equal(t, [4]float32{0.1, 0.1, 0.1, 1}, begin.ClearColor)
	assert.Equal(t, float32(1), begin.ClearDepth)
	assert.Zero(t, begin.ClearStencil)

	viewports := dev.Ops("CmdSetViewport")
	require.Len(t, viewports, 1)
	assert.Equal(t, gpu.Viewport{Width: 800, Height: 600, MinDepth: 0, MaxDepth: 1}, viewports[0].Info)
	scissors := dev.Ops("CmdSetScissor")
	require.Len(t, scissors, 1)
	assert.Equal(t, gpu.Rect{Extent: extent}, scissors[0].Info)

	p.EndRenderPass(cb)
	require.NoError(t, p.EndFrame(win))
}

func TestSetClearColorAppliesToLaterPasses(t *testing.T) {
	p, dev, win := newPresenter(t, DefaultOptions())
	p.SetClearColor(mgl32.Vec4{0.2, 0.4, 0.6, 1})

	cb, ok, err := p.BeginFrame(win)
	require.NoError(t, err)
	require.True(t, ok)
	p.BeginRenderPass(cb)
	p.EndRenderPass(cb)
	require.NoError(t, p.EndFrame(win))

	begins := dev.Ops("CmdBeginRenderPass")
	require.Len(t, begins, 1)
	assert.Equal(t, [4]float32{0.2, 0.4, 0.6, 1}, begins[0].Info.(gpu.RenderPassBegin).ClearColor)
}

func TestBeginCustomRenderPass(t *testing.T) {
	opts := DefaultOptions()
	opts.ClearColor = mgl32.Vec4{1, 0, 0, 1}
	p, dev, win := newPresenter(t, opts)

	cb, ok, err := p.BeginFrame(win)
	require.NoError(t, err)
	require.True(t, ok)

	offscreen := gpu.Extent{Width: 256, Height: 128}
	p.BeginCustomRenderPass(cb, offscreen, gpu.Framebuffer(999))
	p.EndRenderPass(cb)
	p.BeginRenderPass(cb)
	p.EndRenderPass(cb)
	require.NoError(t, p.EndFrame(win))

	begins := dev.Ops("CmdBeginRenderPass")
	require.Len(t, begins, 2)
	custom := begins[0].Info.(gpu.RenderPassBegin)
	assert.Equal(t, gpu.Framebuffer(999), custom.Framebuffer)
	assert.Equal(t, p.RenderPass(), custom.RenderPass)
	assert.Equal(t, offscreen, custom.Area.Extent)
	assert.Equal(t, [4]float32{0, 0, 1, 1}, custom.ClearColor)
	assert.Equal(t, [4]float32{1, 0, 0, 1}, begins[1].Info.(gpu.RenderPassBegin).ClearColor)

	vp := dev.Ops("CmdSetViewport")[0].Info.(gpu.Viewport)
	assert.Equal(t, float32(256), vp.Width)
	assert.Equal(t, float32(128), vp.Height)
}

func TestContractViolationsPanic(t *testing.T) {
	p, _, win := newPresenter(t, DefaultOptions())

	assert.Panics(t, func() { _ = p.EndFrame(win) })
	assert.Panics(t, func() { p.BeginRenderPass(1) })
	assert.Panics(t, func() { p.EndRenderPass(1) })
	assert.Panics(t, func() { p.CurrentCommandBuffer() })
	assert.Panics(t, func() { p.FrameIndex() })

	cb, ok, err := p.BeginFrame(win)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Panics(t, func() { _, _, _ = p.BeginFrame(win) })
	assert.Panics(t, func() { _ = p.RecreateSwapchain(win) })
	assert.Panics(t, func() { _ = p.Destroy() })
	assert.Panics(t, func() { p.BeginRenderPass(cb + 100) })

	require.NoError(t, p.EndFrame(win))
	assert.NotPanics(t, func() { require.NoError(t, p.Destroy()) })
}

func TestAcquireOutOfDateSkipsFrame(t *testing.T) {
	p, dev, win := newPresenter(t, DefaultOptions())
	dev.QueueAcquire(gputest.AcquireResult{Err: gpu.ErrOutOfDate})

	cb, ok, err := p.BeginFrame(win)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Zero(t, cb)
	assert.False(t, p.IsFrameInProgress())
	assert.Equal(t, 1, p.Chain().Generation())
	assert.Equal(t, uint64(1), p.Stats().Recreations)
	assert.Equal(t, 2, dev.Live("commandBuffer"))

	runFrame(t, p, win)
	assert.Equal(t, 1, p.Chain().Generation())
}

func TestRepeatedOutOfDateIsFatal(t *testing.T) {
	p, dev, win := newPresenter(t, DefaultOptions())
	dev.QueueAcquire(
		gputest.AcquireResult{Err: gpu.ErrOutOfDate},
		gputest.AcquireResult{Err: gpu.ErrOutOfDate},
	)

	_, ok, err := p.BeginFrame(win)
	require.NoError(t, err)
	require.False(t, ok)

	_, ok, err = p.BeginFrame(win)
	require.Error(t, err)
	assert.False(t, ok)
	assert.True(t, gpu.IsOutOfDate(err))
	assert.Equal(t, 1, p.Chain().Generation(), "no second rebuild")
}

func TestOutOfDateWhileResizingIsRetried(t *testing.T) {
	p, dev, win := newPresenter(t, DefaultOptions())
	dev.QueueAcquire(
		gputest.AcquireResult{Err: gpu.ErrOutOfDate},
		gputest.AcquireResult{Err: gpu.ErrOutOfDate},
	)

	_, ok, err := p.BeginFrame(win)
	require.NoError(t, err)
	require.False(t, ok)

	win.Extent = gpu.Extent{Width: 1024, Height: 768}
	_, ok, err = p.BeginFrame(win)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, 2, p.Chain().Generation())

	runFrame(t, p, win)
}

func TestEndFrameRecreates(t *testing.T) {
	tests := []struct {
		name    string
		present *gputest.PresentResult
		resized bool
	}{
		{name: "out of date", present: &gputest.PresentResult{Err: gpu.ErrOutOfDate}},
		{name: "suboptimal", present: &gputest.PresentResult{Suboptimal: true}},
		{name: "window resized", resized: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, dev, win := newPresenter(t, DefaultOptions())
			if tt.present != nil {
				dev.QueuePresent(*tt.present)
			}

			cb, ok, err := p.BeginFrame(win)
			require.NoError(t, err)
			require.True(t, ok)
			p.BeginRenderPass(cb)
			win.Resized = tt.resized
			p.EndRenderPass(cb)
			require.NoError(t, p.EndFrame(win))

			assert.False(t, p.IsFrameInProgress())
			assert.False(t, win.Resized)
			assert.Equal(t, 1, p.Chain().Generation())
			assert.Equal(t, uint64(1), p.Stats().Frames)
			assert.Equal(t, 2, dev.Live("commandBuffer"))

			runFrame(t, p, win)
			assert.Equal(t, 1, p.Chain().Generation())
		})
	}
}

func TestEndFrameRecreatesAfterSuboptimalAcquire(t *testing.T) {
	p, dev, win := newPresenter(t, DefaultOptions())
	dev.QueueAcquire(gputest.AcquireResult{Index: 0, Suboptimal: true})

	cb, ok, err := p.BeginFrame(win)
	require.NoError(t, err)
	require.True(t, ok)
	p.BeginRenderPass(cb)
	p.EndRenderPass(cb)
	require.NoError(t, p.EndFrame(win))
	assert.Equal(t, 1, p.Chain().Generation())

	runFrame(t, p, win)
	assert.Equal(t, 1, p.Chain().Generation(), "flag does not carry over to the next frame")
}

func TestRecreateFailureKeepsPresenterUsable(t *testing.T) {
	p, dev, win := newPresenter(t, DefaultOptions())
	runFrame(t, p, win)
	dev.FailNext("CreateSwapchain", errors.New("transient"))

	err := p.RecreateSwapchain(win)
	require.ErrorContains(t, err, "transient")
	assert.Equal(t, 0, p.Chain().Generation())
	assert.Equal(t, 2, dev.Live("commandBuffer"))
	assert.Zero(t, p.Stats().Recreations)

	runFrame(t, p, win)
	require.NoError(t, p.RecreateSwapchain(win))
	assert.Equal(t, 1, p.Chain().Generation())
	runFrame(t, p, win)
}

func TestBeginFrameErrorsWithoutCommandBuffers(t *testing.T) {
	p, dev, win := newPresenter(t, DefaultOptions())
	dev.FailNext("CreateSwapchain", errors.New("transient"))
	dev.FailNext("AllocateCommandBuffers", errors.New("out of host memory"))

	require.Error(t, p.RecreateSwapchain(win))
	assert.Zero(t, dev.Live("commandBuffer"))

	var ok bool
	var err error
	assert.NotPanics(t, func() { _, ok, err = p.BeginFrame(win) })
	require.ErrorContains(t, err, "no command buffers")
	assert.False(t, ok)
	assert.False(t, p.IsFrameInProgress())

	require.NoError(t, p.RecreateSwapchain(win))
	runFrame(t, p, win)
	require.NoError(t, p.Destroy())
	for _, kind := range allKinds {
		assert.Zero(t, dev.Live(kind), kind)
	}
}

func TestRecreateOrder(t *testing.T) {
	p, dev, win := newPresenter(t, DefaultOptions())
	runFrame(t, p, win)
	dev.ResetCalls()

	require.NoError(t, p.RecreateSwapchain(win))

	order := []string{"WaitIdle", "FreeCommandBuffers", "CreateSwapchain", "DestroySwapchain", "AllocateCommandBuffers"}
	prev := -1
	for _, op := range order {
		i := indexOf(dev.Calls, op)
		require.GreaterOrEqual(t, i, 0, op)
		assert.Greater(t, i, prev, op)
		prev = i
	}
}

func TestRecreateWaitsWhileMinimized(t *testing.T) {
	p, dev, win := newPresenter(t, DefaultOptions())
	dev.Support.Capabilities.CurrentExtent = gpu.Extent{Width: gpu.UndefinedExtent, Height: gpu.UndefinedExtent}

	win.Extent = gpu.Extent{}
	win.OnWait = func(w *gputest.Window) {
		if w.Waits == 3 {
			w.Extent = gpu.Extent{Width: 640, Height: 480}
		}
	}
	require.NoError(t, p.RecreateSwapchain(win))

	assert.Equal(t, 3, win.Waits)
	assert.Equal(t, gpu.Extent{Width: 640, Height: 480}, p.Chain().Extent())
	assert.InDelta(t, 640.0/480.0, p.AspectRatio(), 1e-6)
}

func TestOnRecreateReportsFormatChange(t *testing.T) {
	p, dev, win := newPresenter(t, DefaultOptions())

	var changes []bool
	var chains []*swapchain.Chain
	p.SetOnRecreate(func(chain *swapchain.Chain, formatsChanged bool) {
		changes = append(changes, formatsChanged)
		chains = append(chains, chain)
	})
	oldPass := p.RenderPass()

	require.NoError(t, p.RecreateSwapchain(win))
	assert.Equal(t, oldPass, p.RenderPass())

	dev.Support.Formats = []gpu.SurfaceFormat{{Format: gpu.FormatB8g8r8a8Unorm, ColorSpace: gpu.ColorSpaceSrgbNonlinear}}
	require.NoError(t, p.RecreateSwapchain(win))
	assert.NotEqual(t, oldPass, p.RenderPass())
	assert.False(t, dev.IsLive("renderPass", uint32(oldPass)))

	assert.Equal(t, []bool{false, true}, changes)
	assert.Same(t, p.Chain(), chains[1])
	assert.Equal(t, uint64(2), p.Stats().Recreations)
}

func TestSubmitFailureIsFatal(t *testing.T) {
	p, dev, win := newPresenter(t, DefaultOptions())

	_, ok, err := p.BeginFrame(win)
	require.NoError(t, err)
	require.True(t, ok)
	dev.FailNext("Submit", errors.New("device lost"))

	err = p.EndFrame(win)
	require.ErrorContains(t, err, "device lost")
	assert.False(t, gpu.IsOutOfDate(err))
	assert.False(t, p.IsFrameInProgress())
	assert.Zero(t, p.Stats().Frames)
}

func TestNewFailureReleasesEverything(t *testing.T) {
	for _, op := range []string{"CreateFramebuffer", "CreateFence", "AllocateCommandBuffers"} {
		t.Run(op, func(t *testing.T) {
			dev := gputest.NewDevice()
			dev.FailNext(op, errors.New("out of device memory"))

			p, err := New(dev, gputest.NewWindow(800, 600), DefaultOptions())
			require.Error(t, err)
			assert.Nil(t, p)
			for _, kind := range allKinds {
				assert.Zero(t, dev.Live(kind), kind)
			}
		})
	}
}

func TestDestroyReleasesEverything(t *testing.T) {
	p, dev, win := newPresenter(t, DefaultOptions())
	for i := 0; i < 3; i++ {
		runFrame(t, p, win)
	}
	require.NoError(t, p.RecreateSwapchain(win))
	runFrame(t, p, win)

	require.NoError(t, p.Destroy())
	for _, kind := range allKinds {
		assert.Zero(t, dev.Live(kind), kind)
	}
}

func TestFrameStatsTick(t *testing.T) {
	var s FrameStats
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	assert.False(t, s.tick(start))
	updated := 0
	for i := 1; i <= 60; i++ {
		if s.tick(start.Add(time.Duration(i) * time.Second / 60)) {
			updated++
		}
	}
	assert.Equal(t, 1, updated)
	assert.Equal(t, uint64(61), s.Frames)
	assert.InDelta(t, 60.0, s.FPS, 1e-9)
	assert.Contains(t, s.String(), "FPS: 60.0")
}

func TestStatsUseClock(t *testing.T) {
	p, _, win := newPresenter(t, DefaultOptions())
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	p.now = func() time.Time {
		now = now.Add(250 * time.Millisecond)
		return now
	}
	for i := 0; i < 5; i++ {
		runFrame(t, p, win)
	}
	assert.InDelta(t, 4.0, p.Stats().FPS, 1e-9)
}
