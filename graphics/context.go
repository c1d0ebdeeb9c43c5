package graphics

import "fmt"

// Context defines the interface for an OpenGL context.
type Context interface {
	MakeCurrent()
	Shutdown()
	ShouldClose() bool
	EndFrame()
	GetFramebufferSize() (int, int)
	Time() float64
	// GetMouseInput returns the current mouse state: x, y, clickX, clickY
	GetMouseInput() [4]float32
}

// ContextError reports that a GPU operation could not run because no usable
// context or resource was available.
type ContextError struct {
	Op  string
	Err error
}

func (e *ContextError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("graphics context unavailable: %s", e.Op)
	}
	return fmt.Sprintf("graphics context unavailable: %s: %v", e.Op, e.Err)
}

func (e *ContextError) Unwrap() error { return e.Err }
