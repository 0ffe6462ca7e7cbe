package vkdevice

import (
	"unsafe"

	"github.com/pkg/errors"
	"github.com/vulkan-go/glfw/v3.3/glfw"
	"github.com/vulkan-go/vulkan"

	"Lumen/internal/gpu"
)

func (d *Device) createInstance() error {
	if d.cfg.Validation && !validationLayersSupported() {
		return errors.New("requested validation layers not available")
	}
	if !glfw.VulkanSupported() {
		return errors.New("glfw vulkan loader not found")
	}

	appInfo := vulkan.ApplicationInfo{
		SType:              vulkan.StructureTypeApplicationInfo,
		PApplicationName:   d.cfg.AppName,
		ApplicationVersion: vulkan.MakeVersion(0, 1, 0),
		PEngineName:        "Lumen",
		EngineVersion:      vulkan.MakeVersion(0, 1, 0),
		ApiVersion:         vulkan.MakeVersion(1, 1, 0),
	}

	extensions := d.window.GetRequiredInstanceExtensions()
	if d.cfg.Validation {
		extensions = append(extensions, "VK_EXT_debug_report")
	}

	createInfo := vulkan.InstanceCreateInfo{
		SType:                   vulkan.StructureTypeInstanceCreateInfo,
		PApplicationInfo:        &appInfo,
		EnabledExtensionCount:   uint32(len(extensions)),
		PpEnabledExtensionNames: extensions,
	}
	if d.cfg.Validation {
		createInfo.EnabledLayerCount = uint32(len(validationLayers))
		createInfo.PpEnabledLayerNames = validationLayers
	}
	return check(vulkan.CreateInstance(&createInfo, nil, &d.instance), "create instance")
}

func validationLayersSupported() bool {
	var count uint32
	if vulkan.EnumerateInstanceLayerProperties(&count, nil) != vulkan.Success {
		return false
	}
	props := make([]vulkan.LayerProperties, count)
	if vulkan.EnumerateInstanceLayerProperties(&count, props) != vulkan.Success {
		return false
	}
	supported := make(map[string]bool)
	for i := range props {
		props[i].Deref()
		supported[vulkan.ToString(props[i].LayerName[:])] = true
	}
	for _, l := range validationLayers {
		if !supported[l] {
			return false
		}
	}
	return true
}

func (d *Device) setupDebugCallback() error {
	if !d.cfg.Validation {
		return nil
	}
	createInfo := vulkan.DebugReportCallbackCreateInfo{
		SType: vulkan.StructureTypeDebugReportCallbackCreateInfo,
		Flags: vulkan.DebugReportFlags(
			vulkan.DebugReportErrorBit |
				vulkan.DebugReportWarningBit |
				vulkan.DebugReportPerformanceWarningBit),
		PfnCallback: debugReport,
	}
	return check(vulkan.CreateDebugReportCallback(d.instance, &createInfo, nil, &d.debugCallback), "create debug callback")
}

func debugReport(flags vulkan.DebugReportFlags, objectType vulkan.DebugReportObjectType, object uint64, location uint,
	messageCode int32, layerPrefix string, message string, userData unsafe.Pointer) vulkan.Bool32 {
	log := gpu.Logger()
	switch {
	case flags&vulkan.DebugReportFlags(vulkan.DebugReportErrorBit) != 0:
		log.Error(message, "layer", layerPrefix, "code", messageCode)
	case flags&vulkan.DebugReportFlags(vulkan.DebugReportWarningBit|vulkan.DebugReportPerformanceWarningBit) != 0:
		log.Warn(message, "layer", layerPrefix, "code", messageCode)
	default:
		log.Info(message, "layer", layerPrefix, "code", messageCode)
	}
	return vulkan.False
}

func (d *Device) createSurface() error {
	surfacePtr, err := d.window.CreateWindowSurface(d.instance, nil)
	if err != nil {
		return errors.Wrap(err, "create window surface")
	}
	d.surface = vulkan.SurfaceFromPointer(surfacePtr)
	return nil
}

func (d *Device) pickPhysicalDevice() error {
	var count uint32
	if res := vulkan.EnumeratePhysicalDevices(d.instance, &count, nil); res != vulkan.Success || count == 0 {
		if res == vulkan.Success {
			return errors.New("no vulkan devices")
		}
		return check(res, "enumerate physical devices")
	}
	devices := make([]vulkan.PhysicalDevice, count)
	if err := check(vulkan.EnumeratePhysicalDevices(d.instance, &count, devices), "enumerate physical devices"); err != nil {
		return err
	}

	var selected vulkan.PhysicalDevice
	var selectedQueues queueFamilyIndices
	var selectedName string
	bestScore := int32(-1)
	for _, dev := range devices {
		q := d.findQueueFamilies(dev)
		if !q.hasGraphics || !q.hasPresent {
			continue
		}
		if !deviceExtensionsSupported(dev) {
			continue
		}
		support := d.querySurfaceSupport(dev)
		if len(support.Formats) == 0 || len(support.PresentModes) == 0 {
			continue
		}
		score, name := deviceScore(dev)
		if score > bestScore {
			bestScore = score
			selected = dev
			selectedQueues = q
			selectedName = name
		}
	}

	if selected == (vulkan.PhysicalDevice)(unsafe.Pointer(nil)) {
		return errors.New("no suitable GPU found")
	}

	d.physicalDevice = selected
	d.queues = selectedQueues
	gpu.Logger().Info("selected GPU",
		"name", selectedName,
		"graphicsFamily", selectedQueues.graphicsFamily,
		"presentFamily", selectedQueues.presentFamily)
	return nil
}

// deviceScore prefers discrete over integrated GPUs.
func deviceScore(device vulkan.PhysicalDevice) (int32, string) {
	var props vulkan.PhysicalDeviceProperties
	vulkan.GetPhysicalDeviceProperties(device, &props)
	props.Deref()
	name := vulkan.ToString(props.DeviceName[:])

	switch props.DeviceType {
	case vulkan.PhysicalDeviceTypeDiscreteGpu:
		return 1000, name
	case vulkan.PhysicalDeviceTypeIntegratedGpu:
		return 500, name
	default:
		return 100, name
	}
}

func deviceExtensionsSupported(device vulkan.PhysicalDevice) bool {
	var count uint32
	if res := vulkan.EnumerateDeviceExtensionProperties(device, "", &count, nil); res != vulkan.Success {
		return false
	}
	props := make([]vulkan.ExtensionProperties, count)
	if res := vulkan.EnumerateDeviceExtensionProperties(device, "", &count, props); res != vulkan.Success {
		return false
	}
	supported := make(map[string]bool)
	for i := range props {
		props[i].Deref()
		supported[vulkan.ToString(props[i].ExtensionName[:])] = true
	}
	for _, ext := range deviceExtensions {
		if !supported[ext] {
			return false
		}
	}
	return true
}

func (d *Device) findQueueFamilies(device vulkan.PhysicalDevice) queueFamilyIndices {
	var count uint32
	vulkan.GetPhysicalDeviceQueueFamilyProperties(device, &count, nil)
	props := make([]vulkan.QueueFamilyProperties, count)
	vulkan.GetPhysicalDeviceQueueFamilyProperties(device, &count, props)

	var indices queueFamilyIndices
	for i := range props {
		props[i].Deref()
		if props[i].QueueFlags&vulkan.QueueFlags(vulkan.QueueGraphicsBit) != 0 {
			indices.graphicsFamily = uint32(i)
			indices.hasGraphics = true
		}
		var present vulkan.Bool32
		vulkan.GetPhysicalDeviceSurfaceSupport(device, uint32(i), d.surface, &present)
		if present == vulkan.True {
			indices.presentFamily = uint32(i)
			indices.hasPresent = true
		}
		if indices.hasGraphics && indices.hasPresent {
			break
		}
	}
	return indices
}

func (d *Device) createLogicalDevice() error {
	var queueInfos []vulkan.DeviceQueueCreateInfo
	uniqueFamilies := map[uint32]bool{
		d.queues.graphicsFamily: true,
		d.queues.presentFamily:  true,
	}
	for family := range uniqueFamilies {
		queueInfos = append(queueInfos, vulkan.DeviceQueueCreateInfo{
			SType:            vulkan.StructureTypeDeviceQueueCreateInfo,
			QueueFamilyIndex: family,
			QueueCount:       1,
			PQueuePriorities: []float32{1.0},
		})
	}

	createInfo := vulkan.DeviceCreateInfo{
		SType:                   vulkan.StructureTypeDeviceCreateInfo,
		PQueueCreateInfos:       queueInfos,
		QueueCreateInfoCount:    uint32(len(queueInfos)),
		PEnabledFeatures:        []vulkan.PhysicalDeviceFeatures{{}},
		PpEnabledExtensionNames: deviceExtensions,
		EnabledExtensionCount:   uint32(len(deviceExtensions)),
	}
	if d.cfg.Validation {
		createInfo.EnabledLayerCount = uint32(len(validationLayers))
		createInfo.PpEnabledLayerNames = validationLayers
	}

	if err := check(vulkan.CreateDevice(d.physicalDevice, &createInfo, nil, &d.device), "create logical device"); err != nil {
		return err
	}
	vulkan.GetDeviceQueue(d.device, d.queues.graphicsFamily, 0, &d.graphicsQueue)
	vulkan.GetDeviceQueue(d.device, d.queues.presentFamily, 0, &d.presentQueue)
	return nil
}
