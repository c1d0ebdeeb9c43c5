// Package glfwcontext opens the preview window and implements
// graphics.Context on GLFW.
package glfwcontext

import (
	"runtime"

	glfw "github.com/go-gl/glfw/v3.3/glfw"
	"github.com/richinsley/goshadermixer/graphics"
	"github.com/richinsley/goshadermixer/logging"
)

// Context tracks mouse state for GetMouseInput and dispatches key presses.
type Context struct {
	window          *glfw.Window
	lastMouseClickX float64
	lastMouseClickY float64
	mouseWasDown    bool
	keyCallbacks    map[glfw.Key]func()
	dropCallback    func(paths []string)
}

var _ graphics.Context = (*Context)(nil)

// New creates a window with an OpenGL 4.1 core context.
func New(width, height int, title string, visible bool) (*Context, error) {
	glfw.WindowHint(glfw.ContextVersionMajor, 4)
	glfw.WindowHint(glfw.ContextVersionMinor, 1)
	glfw.WindowHint(glfw.OpenGLProfile, glfw.OpenGLCoreProfile)
	glfw.WindowHint(glfw.OpenGLForwardCompatible, glfw.True)
	if visible {
		glfw.WindowHint(glfw.Resizable, glfw.True)
	} else {
		glfw.WindowHint(glfw.Visible, glfw.False)
	}

	win, err := glfw.CreateWindow(width, height, title, nil, nil)
	if err != nil {
		return nil, &graphics.ContextError{Op: "create window", Err: err}
	}

	c := &Context{
		window:       win,
		keyCallbacks: make(map[glfw.Key]func()),
	}
	win.SetKeyCallback(c.glfwKeyCallback)
	win.SetDropCallback(func(_ *glfw.Window, names []string) {
		if c.dropCallback != nil {
			c.dropCallback(names)
		}
	})
	return c, nil
}

// RegisterKeyCallback runs f whenever key is pressed.
func (c *Context) RegisterKeyCallback(key glfw.Key, f func()) {
	c.keyCallbacks[key] = f
}

// OnDrop runs f with the paths of files dropped on the window.
func (c *Context) OnDrop(f func(paths []string)) {
	c.dropCallback = f
}

// SetTitle updates the window title.
func (c *Context) SetTitle(title string) {
	c.window.SetTitle(title)
}

func (c *Context) glfwKeyCallback(w *glfw.Window, key glfw.Key, scancode int, action glfw.Action, mods glfw.ModifierKey) {
	if action != glfw.Press {
		return
	}
	if key == glfw.KeyEscape {
		w.SetShouldClose(true)
	}
	if callback, ok := c.keyCallbacks[key]; ok {
		callback()
	}
}

// GetMouseInput returns x, y, clickX, clickY in framebuffer pixels with the
// origin at the bottom left. The click coordinates are negated while the
// left button is up.
func (c *Context) GetMouseInput() [4]float32 {
	var mouseData [4]float32
	if c.window == nil {
		return mouseData
	}

	fbWidth, fbHeight := c.GetFramebufferSize()
	winWidth, winHeight := c.window.GetSize()
	scaleX, scaleY := 1.0, 1.0
	if winWidth > 0 && winHeight > 0 {
		scaleX = float64(fbWidth) / float64(winWidth)
		scaleY = float64(fbHeight) / float64(winHeight)
	}

	cursorX, cursorY := c.window.GetCursorPos()
	pixelX := cursorX * scaleX
	pixelY := cursorY * scaleY

	isMouseDown := c.window.GetMouseButton(glfw.MouseButtonLeft) == glfw.Press
	if isMouseDown && !c.mouseWasDown {
		c.lastMouseClickX = pixelX
		c.lastMouseClickY = pixelY
	}
	c.mouseWasDown = isMouseDown

	clickX := float32(c.lastMouseClickX)
	clickY := float32(fbHeight) - float32(c.lastMouseClickY)
	if !isMouseDown {
		clickX, clickY = -clickX, -clickY
	}
	return [4]float32{float32(pixelX), float32(fbHeight) - float32(pixelY), clickX, clickY}
}

func (c *Context) MakeCurrent() { c.window.MakeContextCurrent() }

func (c *Context) Shutdown() { c.window.Destroy() }

func (c *Context) ShouldClose() bool { return c.window.ShouldClose() }

func (c *Context) EndFrame() {
	c.window.SwapBuffers()
	glfw.PollEvents()
}

func (c *Context) GetFramebufferSize() (int, int) { return c.window.GetFramebufferSize() }

func (c *Context) Time() float64 { return glfw.GetTime() }

// InitGraphics locks the calling goroutine to its thread and initializes
// GLFW. Call it from main.
func InitGraphics() error {
	runtime.LockOSThread()
	if err := glfw.Init(); err != nil {
		return &graphics.ContextError{Op: "glfw init", Err: err}
	}
	logging.Logger().Info("GLFW initialized", "version", glfw.GetVersionString())
	return nil
}

// TerminateGraphics shuts GLFW down. Call it from main.
func TerminateGraphics() {
	glfw.Terminate()
	logging.Logger().Info("GLFW terminated")
}
