package swapchain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"Lumen/internal/gpu"
	"Lumen/internal/gpu/gputest"
)

func TestChooseSurfaceFormat(t *testing.T) {
	srgb := gpu.SurfaceFormat{Format: gpu.FormatB8g8r8a8Srgb, ColorSpace: gpu.ColorSpaceSrgbNonlinear}
	unorm := gpu.SurfaceFormat{Format: gpu.FormatB8g8r8a8Unorm, ColorSpace: gpu.ColorSpaceSrgbNonlinear}
	rgba := gpu.SurfaceFormat{Format: gpu.FormatR8g8b8a8Unorm, ColorSpace: gpu.ColorSpaceSrgbNonlinear}

	tests := []struct {
		name      string
		available []gpu.SurfaceFormat
		want      gpu.SurfaceFormat
	}{
		{"preferred only", []gpu.SurfaceFormat{srgb}, srgb},
		{"preferred later", []gpu.SurfaceFormat{unorm, rgba, srgb}, srgb},
		{"fallback to first", []gpu.SurfaceFormat{rgba, unorm}, rgba},
		{"wrong color space", []gpu.SurfaceFormat{{Format: gpu.FormatB8g8r8a8Srgb, ColorSpace: 1000104001}, unorm}, gpu.SurfaceFormat{Format: gpu.FormatB8g8r8a8Srgb, ColorSpace: 1000104001}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ChooseSurfaceFormat(tt.available)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := ChooseSurfaceFormat(nil)
	assert.Error(t, err)
}

func TestChoosePresentMode(t *testing.T) {
	tests := []struct {
		name      string
		available []gpu.PresentMode
		vsync     bool
		want      gpu.PresentMode
	}{
		{"mailbox preferred", []gpu.PresentMode{gpu.PresentModeFifo, gpu.PresentModeMailbox}, false, gpu.PresentModeMailbox},
		{"fifo fallback", []gpu.PresentMode{gpu.PresentModeImmediate, gpu.PresentModeFifo}, false, gpu.PresentModeFifo},
		{"fifo only", []gpu.PresentMode{gpu.PresentModeFifo}, false, gpu.PresentModeFifo},
		{"no fifo listed", []gpu.PresentMode{gpu.PresentModeFifoRelaxed}, false, gpu.PresentModeFifoRelaxed},
		{"immediate only", []gpu.PresentMode{gpu.PresentModeImmediate}, false, gpu.PresentModeImmediate},
		{"vsync skips mailbox", []gpu.PresentMode{gpu.PresentModeMailbox, gpu.PresentModeFifo}, true, gpu.PresentModeFifo},
		{"vsync without fifo", []gpu.PresentMode{gpu.PresentModeMailbox, gpu.PresentModeImmediate}, true, gpu.PresentModeMailbox},
		{"vsync immediate only", []gpu.PresentMode{gpu.PresentModeImmediate}, true, gpu.PresentModeImmediate},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ChoosePresentMode(tt.available, tt.vsync)
			assert.Equal(t, tt.want, got)
			assert.Contains(t, tt.available, got, "mode must be one the surface reported")
		})
	}
}

func TestChooseExtent(t *testing.T) {
	caps := gpu.SurfaceCapabilities{
		CurrentExtent:  gpu.Extent{Width: gpu.UndefinedExtent, Height: gpu.UndefinedExtent},
		MinImageExtent: gpu.Extent{Width: 100, Height: 100},
		MaxImageExtent: gpu.Extent{Width: 1920, Height: 1080},
	}

	assert.Equal(t, gpu.Extent{Width: 1920, Height: 1080}, ChooseExtent(caps, gpu.Extent{Width: 5000, Height: 5000}))
	assert.Equal(t, gpu.Extent{Width: 100, Height: 100}, ChooseExtent(caps, gpu.Extent{Width: 10, Height: 10}))
	assert.Equal(t, gpu.Extent{Width: 640, Height: 480}, ChooseExtent(caps, gpu.Extent{Width: 640, Height: 480}))

	caps.CurrentExtent = gpu.Extent{Width: 800, Height: 600}
	assert.Equal(t, gpu.Extent{Width: 800, Height: 600}, ChooseExtent(caps, gpu.Extent{Width: 1024, Height: 768}))
}

func TestChooseImageCount(t *testing.T) {
	assert.Equal(t, uint32(3), ChooseImageCount(gpu.SurfaceCapabilities{MinImageCount: 2}))
	assert.Equal(t, uint32(3), ChooseImageCount(gpu.SurfaceCapabilities{MinImageCount: 2, MaxImageCount: 8}))
	assert.Equal(t, uint32(2), ChooseImageCount(gpu.SurfaceCapabilities{MinImageCount: 2, MaxImageCount: 2}))
}

func TestFindDepthFormat(t *testing.T) {
	dev := gputest.NewDevice()
	f, err := FindDepthFormat(dev)
	require.NoError(t, err)
	assert.Equal(t, gpu.FormatD32Sfloat, f)

	dev.Unsupported[gpu.FormatD32Sfloat] = true
	f, err = FindDepthFormat(dev)
	require.NoError(t, err)
	assert.Equal(t, gpu.FormatD32SfloatS8Uint, f)

	dev.Unsupported[gpu.FormatD32SfloatS8Uint] = true
	f, err = FindDepthFormat(dev)
	require.NoError(t, err)
	assert.Equal(t, gpu.FormatD24UnormS8Uint, f)

	dev.Unsupported[gpu.FormatD24UnormS8Uint] = true
	_, err = FindDepthFormat(dev)
	assert.ErrorContains(t, err, "find depth format")
}
