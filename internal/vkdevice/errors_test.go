package vkdevice

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vulkan-go/vulkan"

	"Lumen/internal/gpu"
)

func TestCheck(t *testing.T) {
	assert.NoError(t, check(vulkan.Success, "create fence"))

	err := check(vulkan.ErrorOutOfDeviceMemory, "create fence")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "create fence")
	assert.False(t, gpu.IsOutOfDate(err))
}

func TestPresentResult(t *testing.T) {
	suboptimal, err := presentResult(vulkan.Success, "queue present")
	assert.NoError(t, err)
	assert.False(t, suboptimal)

	suboptimal, err = presentResult(vulkan.Suboptimal, "queue present")
	assert.NoError(t, err)
	assert.True(t, suboptimal)

	_, err = presentResult(vulkan.ErrorOutOfDate, "queue present")
	require.Error(t, err)
	assert.True(t, gpu.IsOutOfDate(err))
	assert.Contains(t, err.Error(), "queue present")

	_, err = presentResult(vulkan.ErrorDeviceLost, "queue present")
	require.Error(t, err)
	assert.False(t, gpu.IsOutOfDate(err))
}

func TestExtentConversion(t *testing.T) {
	e := gpu.Extent{Width: 1280, Height: 720}
	assert.Equal(t, e, fromExtent(toExtent(e)))
}
