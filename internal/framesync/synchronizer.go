// Package framesync paces the CPU against the GPU: it owns the semaphores and
// fences of every in-flight frame slot and tracks which slot last rendered to
// each swap image.
package framesync

import (
	"github.com/pkg/errors"

	"Lumen/internal/gpu"
)

// MaxFramesInFlight is the default number of frames the CPU may record ahead
// of the GPU.
const MaxFramesInFlight = 2

type Device interface {
	CreateSemaphore() (gpu.Semaphore, error)
	DestroySemaphore(s gpu.Semaphore)
	CreateFence(signaled bool) (gpu.Fence, error)
	DestroyFence(f gpu.Fence)
	WaitForFence(f gpu.Fence) error
	ResetFence(f gpu.Fence) error
	AcquireNextImage(sc gpu.Swapchain, signal gpu.Semaphore) (uint32, bool, error)
	Submit(s gpu.Submission) error
	Present(p gpu.Presentation) (bool, error)
}

// imageFence is the in-flight fence of the frame that last rendered to a swap
// image, if any.
type imageFence struct {
	fence gpu.Fence
	valid bool
}

type Synchronizer struct {
	dev Device

	imageAvailable []gpu.Semaphore
	renderFinished []gpu.Semaphore
	inFlight       []gpu.Fence
	imagesInFlight []imageFence

	currentFrame int
}

// New creates the primitives for framesInFlight slots, with every fence
// signaled so the first wait on each slot returns at once.
func New(dev Device, framesInFlight, imageCount int) (*Synchronizer, error) {
	if framesInFlight < 1 {
		return nil, errors.Errorf("invalid frames in flight %d", framesInFlight)
	}
	s := &Synchronizer{
		dev:            dev,
		imageAvailable: make([]gpu.Semaphore, 0, framesInFlight),
		renderFinished: make([]gpu.Semaphore, 0, framesInFlight),
		inFlight:       make([]gpu.Fence, 0, framesInFlight),
		imagesInFlight: make([]imageFence, imageCount),
	}
	for i := 0; i < framesInFlight; i++ {
		sem, err := dev.CreateSemaphore()
		if err != nil {
			s.Destroy()
			return nil, errors.Wrapf(err, "create image available semaphore %d", i)
		}
		s.imageAvailable = append(s.imageAvailable, sem)

		sem, err = dev.CreateSemaphore()
		if err != nil {
			s.Destroy()
			return nil, errors.Wrapf(err, "create render finished semaphore %d", i)
		}
		s.renderFinished = append(s.renderFinished, sem)

		fence, err := dev.CreateFence(true)
		if err != nil {
			s.Destroy()
			return nil, errors.Wrapf(err, "create in flight fence %d", i)
		}
		s.inFlight = append(s.inFlight, fence)
	}
	return s, nil
}

// AcquireNextImage waits until the current slot's previous submission has
// finished and then acquires the next swap image. An out-of-date surface is
// reported as gpu.ErrOutOfDate.
func (s *Synchronizer) AcquireNextImage(sc gpu.Swapchain) (uint32, bool, error) {
	if err := s.dev.WaitForFence(s.inFlight[s.currentFrame]); err != nil {
		return 0, false, errors.Wrap(err, "wait for in flight fence")
	}
	idx, suboptimal, err := s.dev.AcquireNextImage(sc, s.imageAvailable[s.currentFrame])
	if err != nil {
		return 0, false, errors.Wrap(err, "acquire next image")
	}
	return idx, suboptimal, nil
}

// SubmitAndPresent submits cb for imageIndex and queues the image for
// presentation, then moves on to the next slot. Out-of-date and suboptimal
// results of the presentation are returned to the caller.
func (s *Synchronizer) SubmitAndPresent(sc gpu.Swapchain, cb gpu.CommandBuffer, imageIndex uint32) (bool, error) {
	if int(imageIndex) >= len(s.imagesInFlight) {
		return false, errors.Errorf("image index %d out of range [0, %d)", imageIndex, len(s.imagesInFlight))
	}
	fence := s.inFlight[s.currentFrame]

	if prev := s.imagesInFlight[imageIndex]; prev.valid {
		if err := s.dev.WaitForFence(prev.fence); err != nil {
			return false, errors.Wrapf(err, "wait for image %d", imageIndex)
		}
	}
	s.imagesInFlight[imageIndex] = imageFence{fence: fence, valid: true}

	if err := s.dev.ResetFence(fence); err != nil {
		return false, errors.Wrap(err, "reset in flight fence")
	}
	err := s.dev.Submit(gpu.Submission{
		CommandBuffer: cb,
		Wait:          s.imageAvailable[s.currentFrame],
		WaitStage:     gpu.PipelineStageColorAttachmentOutputBit,
		Signal:        s.renderFinished[s.currentFrame],
		Fence:         fence,
	})
	if err != nil {
		return false, errors.Wrap(err, "submit draw command buffer")
	}

	wait := s.renderFinished[s.currentFrame]
	s.currentFrame = (s.currentFrame + 1) % len(s.inFlight)

	suboptimal, err := s.dev.Present(gpu.Presentation{
		Swapchain:  sc,
		Wait:       wait,
		ImageIndex: imageIndex,
	})
	if err != nil {
		return false, errors.Wrap(err, "present image")
	}
	return suboptimal, nil
}

// ResetImages forgets which frames used which images, for a chain with
// imageCount images.
func (s *Synchronizer) ResetImages(imageCount int) {
	s.imagesInFlight = make([]imageFence, imageCount)
}

// CurrentFrame is the slot the next acquire and submit use.
func (s *Synchronizer) CurrentFrame() int   { return s.currentFrame }
func (s *Synchronizer) FramesInFlight() int { return len(s.inFlight) }

// Destroy releases all primitives. The GPU must be idle.
func (s *Synchronizer) Destroy() {
	for _, sem := range s.renderFinished {
		s.dev.DestroySemaphore(sem)
	}
	s.renderFinished = nil
	for _, sem := range s.imageAvailable {
		s.dev.DestroySemaphore(sem)
	}
	s.imageAvailable = nil
	for _, f := range s.inFlight {
		s.dev.DestroyFence(f)
	}
	s.inFlight = nil
	s.imagesInFlight = nil
}
