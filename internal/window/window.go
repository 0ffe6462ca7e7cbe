// Package window wraps a GLFW window for the presenter. GLFW must be used
// from the main thread only.
package window

import (
	"github.com/pkg/errors"
	"github.com/vulkan-go/glfw/v3.3/glfw"

	"Lumen/internal/gpu"
)

type Window struct {
	win     *glfw.Window
	resized bool
}

// Init initializes GLFW. Call Terminate when done.
func Init() error {
	if err := glfw.Init(); err != nil {
		return errors.Wrap(err, "init glfw")
	}
	if !glfw.VulkanSupported() {
		glfw.Terminate()
		return errors.New("glfw reports no vulkan loader")
	}
	return nil
}

func Terminate() { glfw.Terminate() }

// New opens a resizable window with no client API; Escape closes it.
func New(title string, width, height int) (*Window, error) {
	glfw.WindowHint(glfw.ClientAPI, glfw.NoAPI)
	glfw.WindowHint(glfw.Resizable, glfw.True)
	win, err := glfw.CreateWindow(width, height, title, nil, nil)
	if err != nil {
		return nil, errors.Wrap(err, "create window")
	}

	w := &Window{win: win}
	win.SetFramebufferSizeCallback(func(_ *glfw.Window, width, height int) {
		w.resized = true
	})
	win.SetKeyCallback(func(gw *glfw.Window, key glfw.Key, _ int, action glfw.Action, _ glfw.ModifierKey) {
		if key == glfw.KeyEscape && action == glfw.Press {
			gw.SetShouldClose(true)
		}
	})
	return w, nil
}

// Handle is the underlying GLFW window, for surface creation.
func (w *Window) Handle() *glfw.Window { return w.win }

func (w *Window) FramebufferExtent() gpu.Extent {
	width, height := w.win.GetFramebufferSize()
	if width < 0 || height < 0 {
		return gpu.Extent{}
	}
	return gpu.Extent{Width: uint32(width), Height: uint32(height)}
}

// WasResized reports whether the framebuffer size changed since the last
// ResetResized.
func (w *Window) WasResized() bool { return w.resized }
func (w *Window) ResetResized()    { w.resized = false }

func (w *Window) WaitEvents()       { glfw.WaitEvents() }
func (w *Window) PollEvents()       { glfw.PollEvents() }
func (w *Window) ShouldClose() bool { return w.win.ShouldClose() }

func (w *Window) SetTitle(title string) { w.win.SetTitle(title) }

func (w *Window) Destroy() {
	w.win.Destroy()
}
