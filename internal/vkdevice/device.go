// Package vkdevice implements the graphics device on top of Vulkan. Vulkan
// handles never leave the package: callers get small integer ids that index
// per-kind arenas.
package vkdevice

import (
	"github.com/pkg/errors"
	"github.com/vulkan-go/glfw/v3.3/glfw"
	"github.com/vulkan-go/vulkan"

	"Lumen/internal/gpu"
)

var (
	validationLayers = []string{"VK_LAYER_KHRONOS_validation"}
	deviceExtensions = []string{"VK_KHR_swapchain"}
)

type Config struct {
	AppName string
	// Validation enables the Khronos validation layer and routes its reports
	// to the gpu logger.
	Validation bool
}

type queueFamilyIndices struct {
	graphicsFamily uint32
	presentFamily  uint32
	hasGraphics    bool
	hasPresent     bool
}

type swapchainEntry struct {
	handle vulkan.Swapchain
	images []gpu.Image
}

type imageEntry struct {
	handle vulkan.Image
	memory vulkan.DeviceMemory
	// owned is false for swap images, which die with their swapchain.
	owned bool
}

type Device struct {
	cfg    Config
	window *glfw.Window

	instance       vulkan.Instance
	debugCallback  vulkan.DebugReportCallback
	surface        vulkan.Surface
	physicalDevice vulkan.PhysicalDevice
	device         vulkan.Device
	graphicsQueue  vulkan.Queue
	presentQueue   vulkan.Queue
	queues         queueFamilyIndices
	commandPool    vulkan.CommandPool

	swapchains     gpu.Arena[swapchainEntry]
	images         gpu.Arena[imageEntry]
	imageViews     gpu.Arena[vulkan.ImageView]
	renderPasses   gpu.Arena[vulkan.RenderPass]
	framebuffers   gpu.Arena[vulkan.Framebuffer]
	semaphores     gpu.Arena[vulkan.Semaphore]
	fences         gpu.Arena[vulkan.Fence]
	commandBuffers gpu.Arena[vulkan.CommandBuffer]
}

// New creates the instance, surface, logical device and command pool for
// window. On error everything created so far is released.
func New(window *glfw.Window, cfg Config) (*Device, error) {
	d := &Device{cfg: cfg, window: window}
	if err := d.init(); err != nil {
		d.Destroy()
		return nil, err
	}
	return d, nil
}

func (d *Device) init() error {
	vulkan.SetGetInstanceProcAddr(glfw.GetVulkanGetInstanceProcAddress())
	if err := vulkan.Init(); err != nil {
		return errors.Wrap(err, "vulkan init")
	}
	if err := d.createInstance(); err != nil {
		return err
	}
	if err := vulkan.InitInstance(d.instance); err != nil {
		return errors.Wrap(err, "init instance")
	}
	if err := d.setupDebugCallback(); err != nil {
		return err
	}
	if err := d.createSurface(); err != nil {
		return err
	}
	if err := d.pickPhysicalDevice(); err != nil {
		return err
	}
	if err := d.createLogicalDevice(); err != nil {
		return err
	}
	return d.createCommandPool()
}

func (d *Device) createCommandPool() error {
	poolInfo := vulkan.CommandPoolCreateInfo{
		SType:            vulkan.StructureTypeCommandPoolCreateInfo,
		QueueFamilyIndex: d.queues.graphicsFamily,
		Flags:            vulkan.CommandPoolCreateFlags(vulkan.CommandPoolCreateResetCommandBufferBit),
	}
	return check(vulkan.CreateCommandPool(d.device, &poolInfo, nil, &d.commandPool), "create command pool")
}

// WaitIdle blocks until the device has finished all submitted work.
func (d *Device) WaitIdle() error {
	return check(vulkan.DeviceWaitIdle(d.device), "device wait idle")
}

// Destroy releases the device. Objects still alive are reported and
// destroyed first.
func (d *Device) Destroy() {
	if d.device != vulkan.Device(vulkan.NullHandle) {
		vulkan.DeviceWaitIdle(d.device)
		d.releaseLeaked()
		if d.commandPool != vulkan.CommandPool(vulkan.NullHandle) {
			vulkan.DestroyCommandPool(d.device, d.commandPool, nil)
		}
		vulkan.DestroyDevice(d.device, nil)
		d.device = vulkan.Device(vulkan.NullHandle)
	}
	if d.debugCallback != vulkan.DebugReportCallback(vulkan.NullHandle) {
		vulkan.DestroyDebugReportCallback(d.instance, d.debugCallback, nil)
		d.debugCallback = vulkan.DebugReportCallback(vulkan.NullHandle)
	}
	if d.surface != vulkan.Surface(vulkan.NullHandle) {
		vulkan.DestroySurface(d.instance, d.surface, nil)
		d.surface = vulkan.Surface(vulkan.NullHandle)
	}
	if d.instance != vulkan.Instance(vulkan.NullHandle) {
		vulkan.DestroyInstance(d.instance, nil)
		d.instance = vulkan.Instance(vulkan.NullHandle)
	}
}

func (d *Device) releaseLeaked() {
	log := gpu.Logger()
	leaked := func(kind string, id uint32) {
		log.Warn("vulkan object leaked", "kind", kind, "id", id)
	}
	d.framebuffers.Each(func(id uint32, fb vulkan.Framebuffer) {
		leaked("framebuffer", id)
		vulkan.DestroyFramebuffer(d.device, fb, nil)
	})
	d.renderPasses.Each(func(id uint32, rp vulkan.RenderPass) {
		leaked("renderPass", id)
		vulkan.DestroyRenderPass(d.device, rp, nil)
	})
	d.imageViews.Each(func(id uint32, v vulkan.ImageView) {
		leaked("imageView", id)
		vulkan.DestroyImageView(d.device, v, nil)
	})
	d.images.Each(func(id uint32, img imageEntry) {
		if !img.owned {
			return
		}
		leaked("image", id)
		vulkan.DestroyImage(d.device, img.handle, nil)
		vulkan.FreeMemory(d.device, img.memory, nil)
	})
	d.swapchains.Each(func(id uint32, sc swapchainEntry) {
		leaked("swapchain", id)
		vulkan.DestroySwapchain(d.device, sc.handle, nil)
	})
	d.semaphores.Each(func(id uint32, s vulkan.Semaphore) {
		leaked("semaphore", id)
		vulkan.DestroySemaphore(d.device, s, nil)
	})
	d.fences.Each(func(id uint32, f vulkan.Fence) {
		leaked("fence", id)
		vulkan.DestroyFence(d.device, f, nil)
	})
	// command buffers go away with the pool
	d.commandBuffers = gpu.Arena[vulkan.CommandBuffer]{}
}
