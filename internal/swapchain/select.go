package swapchain

import (
	"github.com/pkg/errors"

	"Lumen/internal/gpu"
)

// depthCandidates is the depth format precedence, best first.
var depthCandidates = []gpu.Format{
	gpu.FormatD32Sfloat,
	gpu.FormatD32SfloatS8Uint,
	gpu.FormatD24UnormS8Uint,
}

// ChooseSurfaceFormat returns the first 8-bit BGRA sRGB format with a
// non-linear sRGB color space, falling back to the first format listed.
func ChooseSurfaceFormat(available []gpu.SurfaceFormat) (gpu.SurfaceFormat, error) {
	if len(available) == 0 {
		return gpu.SurfaceFormat{}, errors.New("surface reports no formats")
	}
	for _, f := range available {
		if f.Format == gpu.FormatB8g8r8a8Srgb && f.ColorSpace == gpu.ColorSpaceSrgbNonlinear {
			return f, nil
		}
	}
	return available[0], nil
}

// ChoosePresentMode prefers mailbox, then fifo, then whatever the surface
// lists first. With vsync only fifo is preferred.
func ChoosePresentMode(available []gpu.PresentMode, vsync bool) gpu.PresentMode {
	if !vsync && hasPresentMode(available, gpu.PresentModeMailbox) {
		return gpu.PresentModeMailbox
	}
	if hasPresentMode(available, gpu.PresentModeFifo) || len(available) == 0 {
		return gpu.PresentModeFifo
	}
	return available[0]
}

func hasPresentMode(available []gpu.PresentMode, mode gpu.PresentMode) bool {
	for _, m := range available {
		if m == mode {
			return true
		}
	}
	return false
}

// ChooseExtent uses the surface's current extent when it is defined and
// otherwise clamps the requested window extent to the surface limits.
func ChooseExtent(caps gpu.SurfaceCapabilities, requested gpu.Extent) gpu.Extent {
	if caps.CurrentExtent.Defined() {
		return caps.CurrentExtent
	}
	min := caps.MinImageExtent
	max := caps.MaxImageExtent
	return gpu.Extent{
		Width:  clamp(requested.Width, min.Width, max.Width),
		Height: clamp(requested.Height, min.Height, max.Height),
	}
}

// ChooseImageCount asks for one image more than the minimum. A zero maximum
// means the surface has no upper bound.
func ChooseImageCount(caps gpu.SurfaceCapabilities) uint32 {
	count := caps.MinImageCount + 1
	if caps.MaxImageCount > 0 && count > caps.MaxImageCount {
		count = caps.MaxImageCount
	}
	return count
}

// FormatQuerier reports device support for a format.
type FormatQuerier interface {
	FormatSupported(format gpu.Format, tiling gpu.ImageTiling, features gpu.FormatFeatureFlags) bool
}

// FindSupportedFormat returns the first candidate the device supports for
// tiling with all of features.
func FindSupportedFormat(dev FormatQuerier, candidates []gpu.Format, tiling gpu.ImageTiling, features gpu.FormatFeatureFlags) (gpu.Format, error) {
	for _, format := range candidates {
		if dev.FormatSupported(format, tiling, features) {
			return format, nil
		}
	}
	return gpu.FormatUndefined, errors.New("no supported format found")
}

// FindDepthFormat picks the depth attachment format.
func FindDepthFormat(dev FormatQuerier) (gpu.Format, error) {
	f, err := FindSupportedFormat(dev, depthCandidates, gpu.ImageTilingOptimal, gpu.FormatFeatureDepthStencilAttachmentBit)
	if err != nil {
		return f, errors.Wrap(err, "find depth format")
	}
	return f, nil
}

func clamp(val, min, max uint32) uint32 {
	if val < min {
		return min
	}
	if val > max {
		return max
	}
	return val
}
