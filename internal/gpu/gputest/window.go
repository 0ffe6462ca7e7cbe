package gputest

import "Lumen/internal/gpu"

// Window is a scripted window. OnWait runs on every WaitEvents call and may
// change the extent, e.g. to un-minimize.
type Window struct {
	Extent  gpu.Extent
	Resized bool
	Waits   int
	OnWait  func(w *Window)
}

func NewWindow(width, height uint32) *Window {
	return &Window{Extent: gpu.Extent{Width: width, Height: height}}
}

func (w *Window) FramebufferExtent() gpu.Extent { return w.Extent }
func (w *Window) WasResized() bool              { return w.Resized }
func (w *Window) ResetResized()                 { w.Resized = false }

func (w *Window) WaitEvents() {
	w.Waits++
	if w.OnWait != nil {
		w.OnWait(w)
	}
}
