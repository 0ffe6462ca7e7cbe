package vkdevice

import (
	"github.com/pkg/errors"
	"github.com/vulkan-go/vulkan"

	"Lumen/internal/gpu"
)

func (d *Device) SurfaceSupport() (gpu.SurfaceSupport, error) {
	return d.querySurfaceSupport(d.physicalDevice), nil
}

func (d *Device) querySurfaceSupport(device vulkan.PhysicalDevice) gpu.SurfaceSupport {
	var caps vulkan.SurfaceCapabilities
	vulkan.GetPhysicalDeviceSurfaceCapabilities(device, d.surface, &caps)
	caps.Deref()

	support := gpu.SurfaceSupport{
		Capabilities: gpu.SurfaceCapabilities{
			MinImageCount:    caps.MinImageCount,
			MaxImageCount:    caps.MaxImageCount,
			CurrentExtent:    fromExtent(caps.CurrentExtent),
			MinImageExtent:   fromExtent(caps.MinImageExtent),
			MaxImageExtent:   fromExtent(caps.MaxImageExtent),
			CurrentTransform: uint32(caps.CurrentTransform),
		},
	}

	var formatCount uint32
	vulkan.GetPhysicalDeviceSurfaceFormats(device, d.surface, &formatCount, nil)
	if formatCount > 0 {
		formats := make([]vulkan.SurfaceFormat, formatCount)
		vulkan.GetPhysicalDeviceSurfaceFormats(device, d.surface, &formatCount, formats)
		for i := range formats {
			formats[i].Deref()
			support.Formats = append(support.Formats, gpu.SurfaceFormat{
				Format:     gpu.Format(formats[i].Format),
				ColorSpace: gpu.ColorSpace(formats[i].ColorSpace),
			})
		}
	}

	var presentCount uint32
	vulkan.GetPhysicalDeviceSurfacePresentModes(device, d.surface, &presentCount, nil)
	if presentCount > 0 {
		modes := make([]vulkan.PresentMode, presentCount)
		vulkan.GetPhysicalDeviceSurfacePresentModes(device, d.surface, &presentCount, modes)
		for _, m := range modes {
			support.PresentModes = append(support.PresentModes, gpu.PresentMode(m))
		}
	}
	return support
}

func (d *Device) FormatSupported(format gpu.Format, tiling gpu.ImageTiling, features gpu.FormatFeatureFlags) bool {
	var props vulkan.FormatProperties
	vulkan.GetPhysicalDeviceFormatProperties(d.physicalDevice, vulkan.Format(format), &props)
	props.Deref()
	want := vulkan.FormatFeatureFlags(features)
	switch tiling {
	case gpu.ImageTilingLinear:
		return props.LinearTilingFeatures&want == want
	case gpu.ImageTilingOptimal:
		return props.OptimalTilingFeatures&want == want
	}
	return false
}

func (d *Device) CreateSwapchain(info gpu.SwapchainInfo) (gpu.Swapchain, error) {
	old := vulkan.Swapchain(vulkan.NullHandle)
	if info.OldSwapchain != 0 {
		entry, ok := d.swapchains.Get(uint32(info.OldSwapchain))
		if !ok {
			return 0, errors.Errorf("unknown old swapchain %d", info.OldSwapchain)
		}
		old = entry.handle
	}

	createInfo := vulkan.SwapchainCreateInfo{
		SType:            vulkan.StructureTypeSwapchainCreateInfo,
		Surface:          d.surface,
		MinImageCount:    info.MinImages,
		ImageFormat:      vulkan.Format(info.Format.Format),
		ImageColorSpace:  vulkan.ColorSpace(info.Format.ColorSpace),
		ImageExtent:      toExtent(info.Extent),
		ImageArrayLayers: 1,
		ImageUsage:       vulkan.ImageUsageFlags(vulkan.ImageUsageColorAttachmentBit),
		PreTransform:     vulkan.SurfaceTransformFlagBits(info.PreTransform),
		CompositeAlpha:   vulkan.CompositeAlphaOpaqueBit,
		PresentMode:      vulkan.PresentMode(info.PresentMode),
		Clipped:          vulkan.True,
		OldSwapchain:     old,
	}
	if d.queues.graphicsFamily != d.queues.presentFamily {
		indices := []uint32{d.queues.graphicsFamily, d.queues.presentFamily}
		createInfo.ImageSharingMode = vulkan.SharingModeConcurrent
		createInfo.QueueFamilyIndexCount = uint32(len(indices))
		createInfo.PQueueFamilyIndices = indices
	} else {
		createInfo.ImageSharingMode = vulkan.SharingModeExclusive
	}

	var sc vulkan.Swapchain
	if err := check(vulkan.CreateSwapchain(d.device, &createInfo, nil, &sc), "create swapchain"); err != nil {
		return 0, err
	}

	var count uint32
	vulkan.GetSwapchainImages(d.device, sc, &count, nil)
	handles := make([]vulkan.Image, count)
	vulkan.GetSwapchainImages(d.device, sc, &count, handles)
	images := make([]gpu.Image, len(handles))
	for i, h := range handles {
		images[i] = gpu.Image(d.images.Put(imageEntry{handle: h}))
	}
	return gpu.Swapchain(d.swapchains.Put(swapchainEntry{handle: sc, images: images})), nil
}

func (d *Device) SwapchainImages(sc gpu.Swapchain) ([]gpu.Image, error) {
	entry, ok := d.swapchains.Get(uint32(sc))
	if !ok {
		return nil, errors.Errorf("unknown swapchain %d", sc)
	}
	return append([]gpu.Image(nil), entry.images...), nil
}

func (d *Device) DestroySwapchain(sc gpu.Swapchain) {
	entry, ok := d.swapchains.Take(uint32(sc))
	if !ok {
		return
	}
	for _, img := range entry.images {
		d.images.Take(uint32(img))
	}
	vulkan.DestroySwapchain(d.device, entry.handle, nil)
}

// AcquireNextImage blocks without timeout until an image is available.
func (d *Device) AcquireNextImage(sc gpu.Swapchain, signal gpu.Semaphore) (uint32, bool, error) {
	entry, ok := d.swapchains.Get(uint32(sc))
	if !ok {
		return 0, false, errors.Errorf("unknown swapchain %d", sc)
	}
	sem, _ := d.semaphores.Get(uint32(signal))

	var imageIndex uint32
	res := vulkan.AcquireNextImage(d.device, entry.handle, vulkan.MaxUint64, sem, vulkan.Fence(vulkan.NullHandle), &imageIndex)
	suboptimal, err := presentResult(res, "acquire next image")
	return imageIndex, suboptimal, err
}

func (d *Device) Present(p gpu.Presentation) (bool, error) {
	entry, ok := d.swapchains.Get(uint32(p.Swapchain))
	if !ok {
		return false, errors.Errorf("unknown swapchain %d", p.Swapchain)
	}
	wait, _ := d.semaphores.Get(uint32(p.Wait))

	presentInfo := vulkan.PresentInfo{
		SType:              vulkan.StructureTypePresentInfo,
		WaitSemaphoreCount: 1,
		PWaitSemaphores:    []vulkan.Semaphore{wait},
		SwapchainCount:     1,
		PSwapchains:        []vulkan.Swapchain{entry.handle},
		PImageIndices:      []uint32{p.ImageIndex},
	}
	return presentResult(vulkan.QueuePresent(d.presentQueue, &presentInfo), "queue present")
}

func fromExtent(e vulkan.Extent2D) gpu.Extent {
	return gpu.Extent{Width: e.Width, Height: e.Height}
}

func toExtent(e gpu.Extent) vulkan.Extent2D {
	return vulkan.Extent2D{Width: e.Width, Height: e.Height}
}
