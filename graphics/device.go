package graphics

import "image"

// ShaderStage selects the pipeline stage a shader is compiled for.
type ShaderStage int

const (
	VertexStage ShaderStage = iota
	FragmentStage
)

func (s ShaderStage) String() string {
	if s == VertexStage {
		return "vertex"
	}
	return "fragment"
}

// Target is an offscreen color buffer: a framebuffer with one texture attached.
type Target struct {
	FBO     uint32
	Texture uint32
	Width   int
	Height  int
}

// Device is the set of GPU calls the mixer makes. The OpenGL implementation
// lives in package gldevice; graphicstest provides an in-memory one.
//
// All methods must be called from the goroutine that owns the context.
type Device interface {
	IsGLES() bool

	// CompileShader returns a shader object, or 0 and the driver's info log.
	CompileShader(stage ShaderStage, source string) (uint32, string)
	// LinkProgram returns a program object, or 0 and the driver's info log.
	LinkProgram(vertex, fragment uint32) (uint32, string)
	DeleteShader(id uint32)
	DeleteProgram(id uint32)
	UseProgram(id uint32)

	// UniformLocation returns -1 when name is not an active uniform of program.
	UniformLocation(program uint32, name string) int32
	Uniform1f(loc int32, v float32)
	Uniform1i(loc int32, v int32)
	Uniform2f(loc int32, x, y float32)
	Uniform3f(loc int32, x, y, z float32)
	Uniform4f(loc int32, x, y, z, w float32)
	// BindTexture binds a 2D texture to the given texture unit.
	BindTexture(unit int, texture uint32)

	// CreateQuad builds full-screen quad geometry for a four vertex triangle strip.
	CreateQuad() uint32
	DeleteQuad(vao uint32)
	DrawQuad(vao uint32)

	CreateTarget(width, height int) (Target, error)
	DeleteTarget(t Target)
	// BindTarget directs drawing into t and sets the viewport to its size.
	BindTarget(t Target)
	// UnbindTarget restores the default framebuffer.
	UnbindTarget()
	Clear()
	// ReadPixels copies t into dst, top row first. dst must be t's size.
	ReadPixels(t Target, dst *image.RGBA)

	CreateTexture(width, height int) uint32
	UploadTexture(texture uint32, img *image.RGBA)
	DeleteTexture(texture uint32)
}
