package vkdevice

import (
	"github.com/pkg/errors"
	"github.com/vulkan-go/vulkan"

	"Lumen/internal/gpu"
)

func (d *Device) CreateSemaphore() (gpu.Semaphore, error) {
	semInfo := vulkan.SemaphoreCreateInfo{
		SType: vulkan.StructureTypeSemaphoreCreateInfo,
	}
	var sem vulkan.Semaphore
	if err := check(vulkan.CreateSemaphore(d.device, &semInfo, nil, &sem), "create semaphore"); err != nil {
		return 0, err
	}
	return gpu.Semaphore(d.semaphores.Put(sem)), nil
}

func (d *Device) DestroySemaphore(s gpu.Semaphore) {
	if sem, ok := d.semaphores.Take(uint32(s)); ok {
		vulkan.DestroySemaphore(d.device, sem, nil)
	}
}

func (d *Device) CreateFence(signaled bool) (gpu.Fence, error) {
	fenceInfo := vulkan.FenceCreateInfo{
		SType: vulkan.StructureTypeFenceCreateInfo,
	}
	if signaled {
		fenceInfo.Flags = vulkan.FenceCreateFlags(vulkan.FenceCreateSignaledBit)
	}
	var fence vulkan.Fence
	if err := check(vulkan.CreateFence(d.device, &fenceInfo, nil, &fence), "create fence"); err != nil {
		return 0, err
	}
	return gpu.Fence(d.fences.Put(fence)), nil
}

func (d *Device) DestroyFence(f gpu.Fence) {
	if fence, ok := d.fences.Take(uint32(f)); ok {
		vulkan.DestroyFence(d.device, fence, nil)
	}
}

// WaitForFence blocks without timeout.
func (d *Device) WaitForFence(f gpu.Fence) error {
	fence, ok := d.fences.Get(uint32(f))
	if !ok {
		return errors.Errorf("unknown fence %d", f)
	}
	return check(vulkan.WaitForFences(d.device, 1, []vulkan.Fence{fence}, vulkan.True, vulkan.MaxUint64), "wait for fence")
}

func (d *Device) ResetFence(f gpu.Fence) error {
	fence, ok := d.fences.Get(uint32(f))
	if !ok {
		return errors.Errorf("unknown fence %d", f)
	}
	return check(vulkan.ResetFences(d.device, 1, []vulkan.Fence{fence}), "reset fence")
}

func (d *Device) Submit(s gpu.Submission) error {
	cb, ok := d.commandBuffers.Get(uint32(s.CommandBuffer))
	if !ok {
		return errors.Errorf("unknown command buffer %d", s.CommandBuffer)
	}
	wait, _ := d.semaphores.Get(uint32(s.Wait))
	signal, _ := d.semaphores.Get(uint32(s.Signal))
	fence, _ := d.fences.Get(uint32(s.Fence))

	submitInfo := vulkan.SubmitInfo{
		SType:                vulkan.StructureTypeSubmitInfo,
		WaitSemaphoreCount:   1,
		PWaitSemaphores:      []vulkan.Semaphore{wait},
		PWaitDstStageMask:    []vulkan.PipelineStageFlags{vulkan.PipelineStageFlags(s.WaitStage)},
		CommandBufferCount:   1,
		PCommandBuffers:      []vulkan.CommandBuffer{cb},
		SignalSemaphoreCount: 1,
		PSignalSemaphores:    []vulkan.Semaphore{signal},
	}
	return check(vulkan.QueueSubmit(d.graphicsQueue, 1, []vulkan.SubmitInfo{submitInfo}, fence), "queue submit")
}

// AllocateCommandBuffers allocates count primary command buffers from the
// resettable graphics pool.
func (d *Device) AllocateCommandBuffers(count int) ([]gpu.CommandBuffer, error) {
	allocInfo := vulkan.CommandBufferAllocateInfo{
		SType:              vulkan.StructureTypeCommandBufferAllocateInfo,
		CommandPool:        d.commandPool,
		Level:              vulkan.CommandBufferLevelPrimary,
		CommandBufferCount: uint32(count),
	}
	handles := make([]vulkan.CommandBuffer, count)
	if err := check(vulkan.AllocateCommandBuffers(d.device, &allocInfo, handles), "allocate command buffers"); err != nil {
		return nil, err
	}
	cbs := make([]gpu.CommandBuffer, count)
	for i, h := range handles {
		cbs[i] = gpu.CommandBuffer(d.commandBuffers.Put(h))
	}
	return cbs, nil
}

func (d *Device) FreeCommandBuffers(cbs []gpu.CommandBuffer) {
	handles := make([]vulkan.CommandBuffer, 0, len(cbs))
	for _, id := range cbs {
		if cb, ok := d.commandBuffers.Take(uint32(id)); ok {
			handles = append(handles, cb)
		}
	}
	if len(handles) == 0 {
		return
	}
	vulkan.FreeCommandBuffers(d.device, d.commandPool, uint32(len(handles)), handles)
}

// BeginCommandBuffer resets cb and starts recording.
func (d *Device) BeginCommandBuffer(id gpu.CommandBuffer) error {
	cb, ok := d.commandBuffers.Get(uint32(id))
	if !ok {
		return errors.Errorf("unknown command buffer %d", id)
	}
	if err := check(vulkan.ResetCommandBuffer(cb, 0), "reset command buffer"); err != nil {
		return err
	}
	beginInfo := vulkan.CommandBufferBeginInfo{
		SType: vulkan.StructureTypeCommandBufferBeginInfo,
	}
	return check(vulkan.BeginCommandBuffer(cb, &beginInfo), "begin command buffer")
}

func (d *Device) EndCommandBuffer(id gpu.CommandBuffer) error {
	cb, ok := d.commandBuffers.Get(uint32(id))
	if !ok {
		return errors.Errorf("unknown command buffer %d", id)
	}
	return check(vulkan.EndCommandBuffer(cb), "end command buffer")
}

func (d *Device) CmdBeginRenderPass(id gpu.CommandBuffer, begin gpu.RenderPassBegin) {
	cb, _ := d.commandBuffers.Get(uint32(id))
	rp, _ := d.renderPasses.Get(uint32(begin.RenderPass))
	fb, _ := d.framebuffers.Get(uint32(begin.Framebuffer))

	clearValues := []vulkan.ClearValue{
		vulkan.NewClearValue(begin.ClearColor[:]),
		vulkan.NewClearDepthStencil(begin.ClearDepth, begin.ClearStencil),
	}
	renderPassInfo := vulkan.RenderPassBeginInfo{
		SType:           vulkan.StructureTypeRenderPassBeginInfo,
		RenderPass:      rp,
		Framebuffer:     fb,
		RenderArea:      toRect(begin.Area),
		ClearValueCount: uint32(len(clearValues)),
		PClearValues:    clearValues,
	}
	vulkan.CmdBeginRenderPass(cb, &renderPassInfo, vulkan.SubpassContentsInline)
}

func (d *Device) CmdEndRenderPass(id gpu.CommandBuffer) {
	cb, _ := d.commandBuffers.Get(uint32(id))
	vulkan.CmdEndRenderPass(cb)
}

func (d *Device) CmdSetViewport(id gpu.CommandBuffer, vp gpu.Viewport) {
	cb, _ := d.commandBuffers.Get(uint32(id))
	vulkan.CmdSetViewport(cb, 0, 1, []vulkan.Viewport{{
		X:        vp.X,
		Y:        vp.Y,
		Width:    vp.Width,
		Height:   vp.Height,
		MinDepth: vp.MinDepth,
		MaxDepth: vp.MaxDepth,
	}})
}

func (d *Device) CmdSetScissor(id gpu.CommandBuffer, scissor gpu.Rect) {
	cb, _ := d.commandBuffers.Get(uint32(id))
	vulkan.CmdSetScissor(cb, 0, 1, []vulkan.Rect2D{toRect(scissor)})
}

func toRect(r gpu.Rect) vulkan.Rect2D {
	return vulkan.Rect2D{
		Offset: vulkan.Offset2D{X: r.Offset.X, Y: r.Offset.Y},
		Extent: toExtent(r.Extent),
	}
}
