// Package gpu holds the device-independent vocabulary shared by the frame
// presentation packages: handle ids, Vulkan-valued enums and the create/submit
// descriptions passed to a graphics device.
package gpu

import "math"

// Handles are arena ids issued by a device. The zero value is the null handle.
type (
	Fence         uint32
	Semaphore     uint32
	CommandBuffer uint32
	Swapchain     uint32
	Image         uint32
	ImageView     uint32
	RenderPass    uint32
	Framebuffer   uint32
)

// Format mirrors VkFormat.
type Format int32

const (
	FormatUndefined       Format = 0
	FormatR8g8b8a8Unorm   Format = 37
	FormatR8g8b8a8Srgb    Format = 43
	FormatB8g8r8a8Unorm   Format = 44
	FormatB8g8r8a8Srgb    Format = 50
	FormatD32Sfloat       Format = 126
	FormatD24UnormS8Uint  Format = 129
	FormatD32SfloatS8Uint Format = 130
)

// ColorSpace mirrors VkColorSpaceKHR.
type ColorSpace int32

const ColorSpaceSrgbNonlinear ColorSpace = 0

// PresentMode mirrors VkPresentModeKHR.
type PresentMode int32

const (
	PresentModeImmediate   PresentMode = 0
	PresentModeMailbox     PresentMode = 1
	PresentModeFifo        PresentMode = 2
	PresentModeFifoRelaxed PresentMode = 3
)

func (m PresentMode) String() string {
	switch m {
	case PresentModeImmediate:
		return "immediate"
	case PresentModeMailbox:
		return "mailbox"
	case PresentModeFifo:
		return "fifo"
	case PresentModeFifoRelaxed:
		return "fifo-relaxed"
	}
	return "unknown"
}

type ImageTiling int32

const (
	ImageTilingOptimal ImageTiling = 0
	ImageTilingLinear  ImageTiling = 1
)

type FormatFeatureFlags uint32

const FormatFeatureDepthStencilAttachmentBit FormatFeatureFlags = 0x00000200

type ImageUsageFlags uint32

const (
	ImageUsageColorAttachmentBit        ImageUsageFlags = 0x00000010
	ImageUsageDepthStencilAttachmentBit ImageUsageFlags = 0x00000020
)

type ImageAspectFlags uint32

const (
	ImageAspectColorBit   ImageAspectFlags = 0x00000001
	ImageAspectDepthBit   ImageAspectFlags = 0x00000002
	ImageAspectStencilBit ImageAspectFlags = 0x00000004
)

type ImageLayout int32

const (
	ImageLayoutUndefined                     ImageLayout = 0
	ImageLayoutColorAttachmentOptimal        ImageLayout = 2
	ImageLayoutDepthStencilAttachmentOptimal ImageLayout = 3
	ImageLayoutPresentSrc                    ImageLayout = 1000001002
)

type AttachmentLoadOp int32

const (
	AttachmentLoadOpLoad     AttachmentLoadOp = 0
	AttachmentLoadOpClear    AttachmentLoadOp = 1
	AttachmentLoadOpDontCare AttachmentLoadOp = 2
)

type AttachmentStoreOp int32

const (
	AttachmentStoreOpStore    AttachmentStoreOp = 0
	AttachmentStoreOpDontCare AttachmentStoreOp = 1
)

type PipelineStageFlags uint32

const (
	PipelineStageEarlyFragmentTestsBit    PipelineStageFlags = 0x00000100
	PipelineStageColorAttachmentOutputBit PipelineStageFlags = 0x00000400
)

type AccessFlags uint32

const (
	AccessColorAttachmentReadBit         AccessFlags = 0x00000080
	AccessColorAttachmentWriteBit        AccessFlags = 0x00000100
	AccessDepthStencilAttachmentWriteBit AccessFlags = 0x00000400
)

// SubpassExternal mirrors VK_SUBPASS_EXTERNAL.
const SubpassExternal = ^uint32(0)

// UndefinedExtent is the width/height a surface reports when the window
// decides the swapchain size.
const UndefinedExtent = math.MaxUint32

type Extent struct {
	Width  uint32
	Height uint32
}

// Defined reports whether e is a real surface extent rather than the
// "window decides" sentinel.
func (e Extent) Defined() bool {
	return e.Width != UndefinedExtent
}

// Empty is true for a minimized window.
func (e Extent) Empty() bool {
	return e.Width == 0 || e.Height == 0
}

type Offset struct {
	X int32
	Y int32
}

type Rect struct {
	Offset Offset
	Extent Extent
}

type Viewport struct {
	X, Y          float32
	Width, Height float32
	MinDepth      float32
	MaxDepth      float32
}

type SurfaceFormat struct {
	Format     Format
	ColorSpace ColorSpace
}

type SurfaceCapabilities struct {
	MinImageCount    uint32
	MaxImageCount    uint32
	CurrentExtent    Extent
	MinImageExtent   Extent
	MaxImageExtent   Extent
	CurrentTransform uint32
}

// SurfaceSupport is the capability triple a surface reports for a device.
type SurfaceSupport struct {
	Capabilities SurfaceCapabilities
	Formats      []SurfaceFormat
	PresentModes []PresentMode
}

type SwapchainInfo struct {
	Format       SurfaceFormat
	PresentMode  PresentMode
	Extent       Extent
	MinImages    uint32
	PreTransform uint32
	// OldSwapchain is a reuse hint; the result is always a new swapchain.
	OldSwapchain Swapchain
}

type ImageInfo struct {
	Extent Extent
	Format Format
	Tiling ImageTiling
	Usage  ImageUsageFlags
}

type ImageViewInfo struct {
	Image  Image
	Format Format
	Aspect ImageAspectFlags
}

type AttachmentDescription struct {
	Format        Format
	LoadOp        AttachmentLoadOp
	StoreOp       AttachmentStoreOp
	InitialLayout ImageLayout
	FinalLayout   ImageLayout
}

type SubpassDependency struct {
	SrcSubpass    uint32
	DstSubpass    uint32
	SrcStageMask  PipelineStageFlags
	DstStageMask  PipelineStageFlags
	SrcAccessMask AccessFlags
	DstAccessMask AccessFlags
}

// RenderPassInfo describes a single-subpass pass with one color attachment
// at index 0 and one depth attachment at index 1.
type RenderPassInfo struct {
	Color      AttachmentDescription
	Depth      AttachmentDescription
	Dependency SubpassDependency
}

type FramebufferInfo struct {
	RenderPass  RenderPass
	Attachments []ImageView
	Extent      Extent
}

type RenderPassBegin struct {
	RenderPass   RenderPass
	Framebuffer  Framebuffer
	Area         Rect
	ClearColor   [4]float32
	ClearDepth   float32
	ClearStencil uint32
}

// Submission is one command buffer submitted to the graphics queue.
type Submission struct {
	CommandBuffer CommandBuffer
	Wait          Semaphore
	WaitStage     PipelineStageFlags
	Signal        Semaphore
	Fence         Fence
}

// Presentation queues one swap image for display.
type Presentation struct {
	Swapchain  Swapchain
	Wait       Semaphore
	ImageIndex uint32
}
