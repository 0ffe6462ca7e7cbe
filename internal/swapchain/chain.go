// Package swapchain builds the presentable images of a surface together with
// the views, depth buffers, render pass and framebuffers bound to them, and
// rebuilds all of it as one generation when the surface changes.
package swapchain

import (
	"github.com/pkg/errors"

	"Lumen/internal/gpu"
)

// Device is the subset of the graphics device a chain needs.
type Device interface {
	FormatQuerier
	SurfaceSupport() (gpu.SurfaceSupport, error)
	CreateSwapchain(info gpu.SwapchainInfo) (gpu.Swapchain, error)
	SwapchainImages(sc gpu.Swapchain) ([]gpu.Image, error)
	DestroySwapchain(sc gpu.Swapchain)
	CreateImage(info gpu.ImageInfo) (gpu.Image, error)
	DestroyImage(img gpu.Image)
	CreateImageView(info gpu.ImageViewInfo) (gpu.ImageView, error)
	DestroyImageView(view gpu.ImageView)
	CreateRenderPass(info gpu.RenderPassInfo) (gpu.RenderPass, error)
	DestroyRenderPass(rp gpu.RenderPass)
	CreateFramebuffer(info gpu.FramebufferInfo) (gpu.Framebuffer, error)
	DestroyFramebuffer(fb gpu.Framebuffer)
}

type Options struct {
	// VSync skips mailbox and presents with fifo when the surface lists it.
	VSync bool
}

// Chain is one generation of swap images and everything bound to them.
// Per-image slices are indexed by swap image index.
type Chain struct {
	dev  Device
	opts Options

	swapchain       gpu.Swapchain
	images          []gpu.Image
	imageViews      []gpu.ImageView
	depthImages     []gpu.Image
	depthImageViews []gpu.ImageView
	framebuffers    []gpu.Framebuffer
	renderPass      gpu.RenderPass
	ownsRenderPass  bool

	imageFormat gpu.Format
	colorSpace  gpu.ColorSpace
	depthFormat gpu.Format
	presentMode gpu.PresentMode
	extent      gpu.Extent
	generation  int
}

// New builds a chain for the device's surface. requested is the window's
// framebuffer size and only matters when the surface leaves the size to the
// window. previous, when non-nil, is handed to the platform as a reuse hint
// and lends its render pass if the formats did not change; it must still be
// destroyed by the caller.
func New(dev Device, requested gpu.Extent, previous *Chain, opts Options) (*Chain, error) {
	c := &Chain{dev: dev, opts: opts}
	if previous != nil {
		c.generation = previous.generation + 1
	}
	if err := c.build(requested, previous); err != nil {
		c.Destroy()
		return nil, err
	}
	if previous != nil && previous.renderPass == c.renderPass {
		previous.ownsRenderPass = false
		c.ownsRenderPass = true
	}

	gpu.Logger().Debug("swapchain built",
		"generation", c.generation,
		"format", int(c.imageFormat),
		"depthFormat", int(c.depthFormat),
		"presentMode", c.presentMode.String(),
		"width", c.extent.Width,
		"height", c.extent.Height,
		"images", len(c.images))
	return c, nil
}

func (c *Chain) build(requested gpu.Extent, previous *Chain) error {
	support, err := c.dev.SurfaceSupport()
	if err != nil {
		return errors.Wrap(err, "query surface support")
	}
	if len(support.PresentModes) == 0 {
		return errors.New("surface reports no present modes")
	}
	surfaceFormat, err := ChooseSurfaceFormat(support.Formats)
	if err != nil {
		return err
	}
	presentMode := ChoosePresentMode(support.PresentModes, c.opts.VSync)
	extent := ChooseExtent(support.Capabilities, requested)

	info := gpu.SwapchainInfo{
		Format:       surfaceFormat,
		PresentMode:  presentMode,
		Extent:       extent,
		MinImages:    ChooseImageCount(support.Capabilities),
		PreTransform: support.Capabilities.CurrentTransform,
	}
	if previous != nil {
		info.OldSwapchain = previous.swapchain
	}
	sc, err := c.dev.CreateSwapchain(info)
	if err != nil {
		return errors.Wrap(err, "create swapchain")
	}
	c.swapchain = sc
	c.imageFormat = surfaceFormat.Format
	c.colorSpace = surfaceFormat.ColorSpace
	c.presentMode = presentMode
	c.extent = extent

	images, err := c.dev.SwapchainImages(sc)
	if err != nil {
		return errors.Wrap(err, "get swapchain images")
	}
	if len(images) == 0 {
		return errors.New("swapchain has no images")
	}
	c.images = images

	if err := c.createImageViews(); err != nil {
		return err
	}
	if err := c.createDepthResources(); err != nil {
		return err
	}
	if err := c.createRenderPass(previous); err != nil {
		return err
	}
	return c.createFramebuffers()
}

func (c *Chain) createImageViews() error {
	c.imageViews = make([]gpu.ImageView, 0, len(c.images))
	for i, img := range c.images {
		view, err := c.dev.CreateImageView(gpu.ImageViewInfo{
			Image:  img,
			Format: c.imageFormat,
			Aspect: gpu.ImageAspectColorBit,
		})
		if err != nil {
			return errors.Wrapf(err, "create image view %d", i)
		}
		c.imageViews = append(c.imageViews, view)
	}
	return nil
}

func (c *Chain) createDepthResources() error {
	depthFormat, err := FindDepthFormat(c.dev)
	if err != nil {
		return err
	}
	c.depthFormat = depthFormat

	c.depthImages = make([]gpu.Image, 0, len(c.images))
	c.depthImageViews = make([]gpu.ImageView, 0, len(c.images))
	for i := range c.images {
		img, err := c.dev.CreateImage(gpu.ImageInfo{
			Extent: c.extent,
			Format: depthFormat,
			Tiling: gpu.ImageTilingOptimal,
			Usage:  gpu.ImageUsageDepthStencilAttachmentBit,
		})
		if err != nil {
			return errors.Wrapf(err, "create depth image %d", i)
		}
		c.depthImages = append(c.depthImages, img)

		view, err := c.dev.CreateImageView(gpu.ImageViewInfo{
			Image:  img,
			Format: depthFormat,
			Aspect: gpu.ImageAspectDepthBit,
		})
		if err != nil {
			return errors.Wrapf(err, "create depth image view %d", i)
		}
		c.depthImageViews = append(c.depthImageViews, view)
	}
	return nil
}

func (c *Chain) createRenderPass(previous *Chain) error {
	if previous != nil && previous.renderPass != 0 && previous.ownsRenderPass &&
		previous.imageFormat == c.imageFormat && previous.depthFormat == c.depthFormat {
		c.renderPass = previous.renderPass
		return nil
	}
	rp, err := c.dev.CreateRenderPass(renderPassInfo(c.imageFormat, c.depthFormat))
	if err != nil {
		return errors.Wrap(err, "create render pass")
	}
	c.renderPass = rp
	c.ownsRenderPass = true
	return nil
}

// renderPassInfo describes the presentation pass: the color attachment is
// cleared, stored and left ready for presentation; depth is cleared and
// discarded. The dependency keeps the pass from writing color before the
// previous presentation of the image has finished reading it.
func renderPassInfo(color, depth gpu.Format) gpu.RenderPassInfo {
	return gpu.RenderPassInfo{
		Color: gpu.AttachmentDescription{
			Format:        color,
			LoadOp:        gpu.AttachmentLoadOpClear,
			StoreOp:       gpu.AttachmentStoreOpStore,
			InitialLayout: gpu.ImageLayoutUndefined,
			FinalLayout:   gpu.ImageLayoutPresentSrc,
		},
		Depth: gpu.AttachmentDescription{
			Format:        depth,
			LoadOp:        gpu.AttachmentLoadOpClear,
			StoreOp:       gpu.AttachmentStoreOpDontCare,
			InitialLayout: gpu.ImageLayoutUndefined,
			FinalLayout:   gpu.ImageLayoutDepthStencilAttachmentOptimal,
		},
		Dependency: gpu.SubpassDependency{
			SrcSubpass:    gpu.SubpassExternal,
			DstSubpass:    0,
			SrcStageMask:  gpu.PipelineStageColorAttachmentOutputBit,
			DstStageMask:  gpu.PipelineStageColorAttachmentOutputBit,
			SrcAccessMask: 0,
			DstAccessMask: gpu.AccessColorAttachmentReadBit | gpu.AccessColorAttachmentWriteBit,
		},
	}
}

func (c *Chain) createFramebuffers() error {
	c.framebuffers = make([]gpu.Framebuffer, 0, len(c.images))
	for i := range c.images {
		fb, err := c.dev.CreateFramebuffer(gpu.FramebufferInfo{
			RenderPass:  c.renderPass,
			Attachments: []gpu.ImageView{c.imageViews[i], c.depthImageViews[i]},
			Extent:      c.extent,
		})
		if err != nil {
			return errors.Wrapf(err, "create framebuffer %d", i)
		}
		c.framebuffers = append(c.framebuffers, fb)
	}
	return nil
}

// Recreate replaces the chain's generation with one sized for extent. The
// caller must make sure the GPU no longer uses the current generation. On
// error the chain keeps the current generation's objects so they can still be
// destroyed, but the swapchain may already be retired by the driver: acquiring
// from it can report out of date.
func (c *Chain) Recreate(extent gpu.Extent) error {
	next, err := New(c.dev, extent, c, c.opts)
	if err != nil {
		return errors.Wrap(err, "recreate swapchain")
	}
	c.Destroy()
	*c = *next
	return nil
}

// Destroy releases everything the chain created. Swap images belong to the
// surface and go away with the swapchain. Safe on a partially built chain.
func (c *Chain) Destroy() {
	for _, fb := range c.framebuffers {
		c.dev.DestroyFramebuffer(fb)
	}
	c.framebuffers = nil
	if c.renderPass != 0 && c.ownsRenderPass {
		c.dev.DestroyRenderPass(c.renderPass)
	}
	c.renderPass = 0
	c.ownsRenderPass = false
	for _, view := range c.depthImageViews {
		c.dev.DestroyImageView(view)
	}
	c.depthImageViews = nil
	for _, img := range c.depthImages {
		c.dev.DestroyImage(img)
	}
	c.depthImages = nil
	for _, view := range c.imageViews {
		c.dev.DestroyImageView(view)
	}
	c.imageViews = nil
	if c.swapchain != 0 {
		c.dev.DestroySwapchain(c.swapchain)
		c.swapchain = 0
	}
	c.images = nil
}

// CompareFormats reports whether other uses the same color and depth
// formats, i.e. whether pipelines built against other still fit c.
func (c *Chain) CompareFormats(other *Chain) bool {
	return other != nil && c.imageFormat == other.imageFormat && c.depthFormat == other.depthFormat
}

func (c *Chain) Swapchain() gpu.Swapchain          { return c.swapchain }
func (c *Chain) ImageCount() int                   { return len(c.images) }
func (c *Chain) Framebuffer(i int) gpu.Framebuffer { return c.framebuffers[i] }
func (c *Chain) ImageView(i int) gpu.ImageView     { return c.imageViews[i] }
func (c *Chain) RenderPass() gpu.RenderPass        { return c.renderPass }
func (c *Chain) ImageFormat() gpu.Format           { return c.imageFormat }
func (c *Chain) ColorSpace() gpu.ColorSpace        { return c.colorSpace }
func (c *Chain) DepthFormat() gpu.Format           { return c.depthFormat }
func (c *Chain) PresentMode() gpu.PresentMode      { return c.presentMode }
func (c *Chain) Extent() gpu.Extent                { return c.extent }

// Generation counts rebuilds; the first chain is generation 0.
func (c *Chain) Generation() int { return c.generation }

// AspectRatio is width over height of the swap images.
func (c *Chain) AspectRatio() float32 {
	if c.extent.Height == 0 {
		return 0
	}
	return float32(c.extent.Width) / float32(c.extent.Height)
}
