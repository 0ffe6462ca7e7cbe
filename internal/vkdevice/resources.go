package vkdevice

import (
	"github.com/pkg/errors"
	"github.com/vulkan-go/vulkan"

	"Lumen/internal/gpu"
)

// CreateImage creates a 2D image backed by device-local memory.
func (d *Device) CreateImage(info gpu.ImageInfo) (gpu.Image, error) {
	createInfo := vulkan.ImageCreateInfo{
		SType:     vulkan.StructureTypeImageCreateInfo,
		ImageType: vulkan.ImageType2d,
		Extent: vulkan.Extent3D{
			Width:  info.Extent.Width,
			Height: info.Extent.Height,
			Depth:  1,
		},
		MipLevels:     1,
		ArrayLayers:   1,
		Format:        vulkan.Format(info.Format),
		Tiling:        vulkan.ImageTiling(info.Tiling),
		InitialLayout: vulkan.ImageLayoutUndefined,
		Usage:         vulkan.ImageUsageFlags(info.Usage),
		Samples:       vulkan.SampleCount1Bit,
		SharingMode:   vulkan.SharingModeExclusive,
	}

	var image vulkan.Image
	if err := check(vulkan.CreateImage(d.device, &createInfo, nil, &image), "create image"); err != nil {
		return 0, err
	}

	var memRequirements vulkan.MemoryRequirements
	vulkan.GetImageMemoryRequirements(d.device, image, &memRequirements)
	memRequirements.Deref()

	memoryType, ok := d.findMemoryType(memRequirements.MemoryTypeBits, vulkan.MemoryPropertyDeviceLocalBit)
	if !ok {
		vulkan.DestroyImage(d.device, image, nil)
		return 0, errors.New("no device-local memory type for image")
	}
	allocInfo := vulkan.MemoryAllocateInfo{
		SType:           vulkan.StructureTypeMemoryAllocateInfo,
		AllocationSize:  memRequirements.Size,
		MemoryTypeIndex: memoryType,
	}

	var memory vulkan.DeviceMemory
	if err := check(vulkan.AllocateMemory(d.device, &allocInfo, nil, &memory), "allocate image memory"); err != nil {
		vulkan.DestroyImage(d.device, image, nil)
		return 0, err
	}
	if err := check(vulkan.BindImageMemory(d.device, image, memory, 0), "bind image memory"); err != nil {
		vulkan.DestroyImage(d.device, image, nil)
		vulkan.FreeMemory(d.device, memory, nil)
		return 0, err
	}
	return gpu.Image(d.images.Put(imageEntry{handle: image, memory: memory, owned: true})), nil
}

// DestroyImage frees an image made by CreateImage. Swap images are left to
// their swapchain.
func (d *Device) DestroyImage(img gpu.Image) {
	entry, ok := d.images.Get(uint32(img))
	if !ok || !entry.owned {
		return
	}
	d.images.Take(uint32(img))
	vulkan.DestroyImage(d.device, entry.handle, nil)
	vulkan.FreeMemory(d.device, entry.memory, nil)
}

func (d *Device) findMemoryType(typeFilter uint32, properties vulkan.MemoryPropertyFlagBits) (uint32, bool) {
	var memProps vulkan.PhysicalDeviceMemoryProperties
	vulkan.GetPhysicalDeviceMemoryProperties(d.physicalDevice, &memProps)
	memProps.Deref()

	want := vulkan.MemoryPropertyFlags(properties)
	for i := uint32(0); i < memProps.MemoryTypeCount; i++ {
		memoryType := memProps.MemoryTypes[i]
		memoryType.Deref()
		if typeFilter&(1<<i) != 0 && memoryType.PropertyFlags&want == want {
			return i, true
		}
	}
	return 0, false
}

func (d *Device) CreateImageView(info gpu.ImageViewInfo) (gpu.ImageView, error) {
	entry, ok := d.images.Get(uint32(info.Image))
	if !ok {
		return 0, errors.Errorf("unknown image %d", info.Image)
	}
	viewInfo := vulkan.ImageViewCreateInfo{
		SType:    vulkan.StructureTypeImageViewCreateInfo,
		Image:    entry.handle,
		ViewType: vulkan.ImageViewType2d,
		Format:   vulkan.Format(info.Format),
		Components: vulkan.ComponentMapping{
			R: vulkan.ComponentSwizzleIdentity,
			G: vulkan.ComponentSwizzleIdentity,
			B: vulkan.ComponentSwizzleIdentity,
			A: vulkan.ComponentSwizzleIdentity,
		},
		SubresourceRange: vulkan.ImageSubresourceRange{
			AspectMask: vulkan.ImageAspectFlags(info.Aspect),
			LevelCount: 1,
			LayerCount: 1,
		},
	}
	var view vulkan.ImageView
	if err := check(vulkan.CreateImageView(d.device, &viewInfo, nil, &view), "create image view"); err != nil {
		return 0, err
	}
	return gpu.ImageView(d.imageViews.Put(view)), nil
}

func (d *Device) DestroyImageView(v gpu.ImageView) {
	if view, ok := d.imageViews.Take(uint32(v)); ok {
		vulkan.DestroyImageView(d.device, view, nil)
	}
}

func attachment(a gpu.AttachmentDescription) vulkan.AttachmentDescription {
	return vulkan.AttachmentDescription{
		Format:         vulkan.Format(a.Format),
		Samples:        vulkan.SampleCount1Bit,
		LoadOp:         vulkan.AttachmentLoadOp(a.LoadOp),
		StoreOp:        vulkan.AttachmentStoreOp(a.StoreOp),
		StencilLoadOp:  vulkan.AttachmentLoadOpDontCare,
		StencilStoreOp: vulkan.AttachmentStoreOpDontCare,
		InitialLayout:  vulkan.ImageLayout(a.InitialLayout),
		FinalLayout:    vulkan.ImageLayout(a.FinalLayout),
	}
}

func (d *Device) CreateRenderPass(info gpu.RenderPassInfo) (gpu.RenderPass, error) {
	colorRef := vulkan.AttachmentReference{
		Attachment: 0,
		Layout:     vulkan.ImageLayoutColorAttachmentOptimal,
	}
	depthRef := vulkan.AttachmentReference{
		Attachment: 1,
		Layout:     vulkan.ImageLayoutDepthStencilAttachmentOptimal,
	}
	subpass := vulkan.SubpassDescription{
		PipelineBindPoint:       vulkan.PipelineBindPointGraphics,
		ColorAttachmentCount:    1,
		PColorAttachments:       []vulkan.AttachmentReference{colorRef},
		PDepthStencilAttachment: &depthRef,
	}
	dep := info.Dependency
	dependency := vulkan.SubpassDependency{
		SrcSubpass:    dep.SrcSubpass,
		DstSubpass:    dep.DstSubpass,
		SrcStageMask:  vulkan.PipelineStageFlags(dep.SrcStageMask),
		DstStageMask:  vulkan.PipelineStageFlags(dep.DstStageMask),
		SrcAccessMask: vulkan.AccessFlags(dep.SrcAccessMask),
		DstAccessMask: vulkan.AccessFlags(dep.DstAccessMask),
	}

	attachments := []vulkan.AttachmentDescription{attachment(info.Color), attachment(info.Depth)}
	createInfo := vulkan.RenderPassCreateInfo{
		SType:           vulkan.StructureTypeRenderPassCreateInfo,
		AttachmentCount: uint32(len(attachments)),
		PAttachments:    attachments,
		SubpassCount:    1,
		PSubpasses:      []vulkan.SubpassDescription{subpass},
		DependencyCount: 1,
		PDependencies:   []vulkan.SubpassDependency{dependency},
	}

	var rp vulkan.RenderPass
	if err := check(vulkan.CreateRenderPass(d.device, &createInfo, nil, &rp), "create render pass"); err != nil {
		return 0, err
	}
	return gpu.RenderPass(d.renderPasses.Put(rp)), nil
}

func (d *Device) DestroyRenderPass(rp gpu.RenderPass) {
	if pass, ok := d.renderPasses.Take(uint32(rp)); ok {
		vulkan.DestroyRenderPass(d.device, pass, nil)
	}
}

func (d *Device) CreateFramebuffer(info gpu.FramebufferInfo) (gpu.Framebuffer, error) {
	rp, ok := d.renderPasses.Get(uint32(info.RenderPass))
	if !ok {
		return 0, errors.Errorf("unknown render pass %d", info.RenderPass)
	}
	attachments := make([]vulkan.ImageView, len(info.Attachments))
	for i, v := range info.Attachments {
		view, ok := d.imageViews.Get(uint32(v))
		if !ok {
			return 0, errors.Errorf("unknown image view %d", v)
		}
		attachments[i] = view
	}
	createInfo := vulkan.FramebufferCreateInfo{
		SType:           vulkan.StructureTypeFramebufferCreateInfo,
		RenderPass:      rp,
		AttachmentCount: uint32(len(attachments)),
		PAttachments:    attachments,
		Width:           info.Extent.Width,
		Height:          info.Extent.Height,
		Layers:          1,
	}
	var fb vulkan.Framebuffer
	if err := check(vulkan.CreateFramebuffer(d.device, &createInfo, nil, &fb), "create framebuffer"); err != nil {
		return 0, err
	}
	return gpu.Framebuffer(d.framebuffers.Put(fb)), nil
}

func (d *Device) DestroyFramebuffer(fb gpu.Framebuffer) {
	if f, ok := d.framebuffers.Take(uint32(fb)); ok {
		vulkan.DestroyFramebuffer(d.device, f, nil)
	}
}
