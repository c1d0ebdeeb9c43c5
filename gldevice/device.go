// Package gldevice implements graphics.Device on OpenGL 4.1 core (or
// OpenGL ES 3.0) through go-gl. Fragment sources written against the WebGL2
// dialect are translated for the host driver with goshadertranslator, and
// uniform names are resolved through the translator's name mapping.
package gldevice

import (
	"context"
	"fmt"
	"image"
	"regexp"
	"strings"

	"github.com/go-gl/gl/v4.1-core/gl"
	"github.com/richinsley/goshadermixer/graphics"
	"github.com/richinsley/goshadermixer/logging"
	"github.com/richinsley/goshadermixer/shader"
	"github.com/richinsley/goshadermixer/translator"
	gst "github.com/richinsley/goshadertranslator"
)

var quadVertices = []float32{
	-1, -1,
	1, -1,
	-1, 1,
	1, 1,
}

var reWebGL2 = regexp.MustCompile(`^\s*#\s*version\s+300\s+es\b`)

// Device issues GL calls. It must only be used from the thread that owns
// the current context.
type Device struct {
	gles bool

	// translated fragment shader -> original uniform name -> mapped name
	shaderNames map[uint32]map[string]string
	// program -> the names of its fragment shader
	programNames map[uint32]map[string]string
	// vao -> vbo
	quads map[uint32]uint32

	blit struct {
		program uint32
		quad    uint32
		texture uint32
		w, h    int
		loc     int32
	}
}

var _ graphics.Device = (*Device)(nil)

// New initializes the GL function pointers for the current context.
func New(gles bool) (*Device, error) {
	if err := gl.Init(); err != nil {
		return nil, &graphics.ContextError{Op: "gl init", Err: err}
	}
	logging.Logger().Info("OpenGL initialized", "version", gl.GoStr(gl.GetString(gl.VERSION)), "renderer", gl.GoStr(gl.GetString(gl.RENDERER)))
	return &Device{
		gles:         gles,
		shaderNames:  make(map[uint32]map[string]string),
		programNames: make(map[uint32]map[string]string),
		quads:        make(map[uint32]uint32),
	}, nil
}

func (d *Device) IsGLES() bool { return d.gles }

func (d *Device) CompileShader(stage graphics.ShaderStage, source string) (uint32, string) {
	var names map[string]string
	if stage == graphics.FragmentStage && reWebGL2.MatchString(source) {
		if err := translator.Init(context.Background()); err != nil {
			return 0, err.Error()
		}
		outputFormat := gst.OutputFormatGLSL410
		if d.gles {
			outputFormat = gst.OutputFormatESSL
		}
		out, err := translator.Get().TranslateShader(source, "fragment", gst.ShaderSpecWebGL2, outputFormat)
		if err != nil {
			return 0, err.Error()
		}
		source = out.Code
		names = make(map[string]string, len(out.Variables))
		for name, v := range out.Variables {
			names[name] = v.MappedName
		}
	}

	kind := uint32(gl.VERTEX_SHADER)
	if stage == graphics.FragmentStage {
		kind = gl.FRAGMENT_SHADER
	}
	id, log := compileShader(source, kind)
	if id != 0 && names != nil {
		d.shaderNames[id] = names
	}
	return id, log
}

func compileShader(source string, shaderType uint32) (uint32, string) {
	sh := gl.CreateShader(shaderType)
	csources, free := gl.Strs(source + "\x00")
	gl.ShaderSource(sh, 1, csources, nil)
	free()
	gl.CompileShader(sh)

	var status int32
	gl.GetShaderiv(sh, gl.COMPILE_STATUS, &status)
	if status == gl.FALSE {
		var logLength int32
		gl.GetShaderiv(sh, gl.INFO_LOG_LENGTH, &logLength)
		logText := strings.Repeat("\x00", int(logLength+1))
		gl.GetShaderInfoLog(sh, logLength, nil, gl.Str(logText))
		gl.DeleteShader(sh)
		return 0, strings.TrimRight(logText, "\x00")
	}
	return sh, ""
}

func (d *Device) LinkProgram(vertex, fragment uint32) (uint32, string) {
	program := gl.CreateProgram()
	gl.AttachShader(program, vertex)
	gl.AttachShader(program, fragment)
	gl.LinkProgram(program)

	var status int32
	gl.GetProgramiv(program, gl.LINK_STATUS, &status)
	if status == gl.FALSE {
		var logLength int32
		gl.GetProgramiv(program, gl.INFO_LOG_LENGTH, &logLength)
		logText := strings.Repeat("\x00", int(logLength+1))
		gl.GetProgramInfoLog(program, logLength, nil, gl.Str(logText))
		gl.DeleteProgram(program)
		return 0, strings.TrimRight(logText, "\x00")
	}
	if names, ok := d.shaderNames[fragment]; ok {
		d.programNames[program] = names
	}
	return program, ""
}

func (d *Device) DeleteShader(id uint32) {
	delete(d.shaderNames, id)
	gl.DeleteShader(id)
}

func (d *Device) DeleteProgram(id uint32) {
	delete(d.programNames, id)
	gl.DeleteProgram(id)
}

func (d *Device) UseProgram(id uint32) { gl.UseProgram(id) }

// mappedName resolves name, including array elements such as
// "iChannelResolution[2]", to the identifier in the translated source.
func (d *Device) mappedName(program uint32, name string) string {
	names, ok := d.programNames[program]
	if !ok {
		return name
	}
	if m, ok := names[name]; ok {
		return m
	}
	if i := strings.IndexByte(name, '['); i > 0 {
		if m, ok := names[name[:i]]; ok {
			return m + name[i:]
		}
	}
	return name
}

func (d *Device) UniformLocation(program uint32, name string) int32 {
	return gl.GetUniformLocation(program, gl.Str(d.mappedName(program, name)+"\x00"))
}

func (d *Device) Uniform1f(loc int32, v float32)          { gl.Uniform1f(loc, v) }
func (d *Device) Uniform1i(loc int32, v int32)            { gl.Uniform1i(loc, v) }
func (d *Device) Uniform2f(loc int32, x, y float32)       { gl.Uniform2f(loc, x, y) }
func (d *Device) Uniform3f(loc int32, x, y, z float32)    { gl.Uniform3f(loc, x, y, z) }
func (d *Device) Uniform4f(loc int32, x, y, z, w float32) { gl.Uniform4f(loc, x, y, z, w) }

func (d *Device) BindTexture(unit int, texture uint32) {
	gl.ActiveTexture(gl.TEXTURE0 + uint32(unit))
	gl.BindTexture(gl.TEXTURE_2D, texture)
}

func (d *Device) CreateQuad() uint32 {
	var vao, vbo uint32
	gl.GenVertexArrays(1, &vao)
	gl.BindVertexArray(vao)
	gl.GenBuffers(1, &vbo)
	gl.BindBuffer(gl.ARRAY_BUFFER, vbo)
	gl.BufferData(gl.ARRAY_BUFFER, len(quadVertices)*4, gl.Ptr(quadVertices), gl.STATIC_DRAW)
	gl.EnableVertexAttribArray(0)
	gl.VertexAttribPointerWithOffset(0, 2, gl.FLOAT, false, 2*4, 0)
	gl.BindVertexArray(0)
	gl.BindBuffer(gl.ARRAY_BUFFER, 0)
	d.quads[vao] = vbo
	return vao
}

func (d *Device) DeleteQuad(vao uint32) {
	if vbo, ok := d.quads[vao]; ok {
		gl.DeleteBuffers(1, &vbo)
		delete(d.quads, vao)
	}
	gl.DeleteVertexArrays(1, &vao)
}

func (d *Device) DrawQuad(vao uint32) {
	gl.BindVertexArray(vao)
	gl.DrawArrays(gl.TRIANGLE_STRIP, 0, 4)
	gl.BindVertexArray(0)
}

// CreateTarget allocates a float framebuffer so feedback shaders keep
// precision between frames.
func (d *Device) CreateTarget(width, height int) (graphics.Target, error) {
	var fbo, texture uint32
	gl.GenTextures(1, &texture)
	gl.BindTexture(gl.TEXTURE_2D, texture)
	gl.TexImage2D(gl.TEXTURE_2D, 0, gl.RGBA32F, int32(width), int32(height), 0, gl.RGBA, gl.FLOAT, nil)
	gl.TexParameteri(gl.TEXTURE_2D, gl.TEXTURE_MIN_FILTER, gl.LINEAR)
	gl.TexParameteri(gl.TEXTURE_2D, gl.TEXTURE_MAG_FILTER, gl.LINEAR)
	gl.TexParameteri(gl.TEXTURE_2D, gl.TEXTURE_WRAP_S, gl.CLAMP_TO_EDGE)
	gl.TexParameteri(gl.TEXTURE_2D, gl.TEXTURE_WRAP_T, gl.CLAMP_TO_EDGE)

	gl.GenFramebuffers(1, &fbo)
	gl.BindFramebuffer(gl.FRAMEBUFFER, fbo)
	gl.FramebufferTexture2D(gl.FRAMEBUFFER, gl.COLOR_ATTACHMENT0, gl.TEXTURE_2D, texture, 0)
	status := gl.CheckFramebufferStatus(gl.FRAMEBUFFER)
	gl.BindFramebuffer(gl.FRAMEBUFFER, 0)
	gl.BindTexture(gl.TEXTURE_2D, 0)

	if status != gl.FRAMEBUFFER_COMPLETE {
		gl.DeleteFramebuffers(1, &fbo)
		gl.DeleteTextures(1, &texture)
		return graphics.Target{}, &graphics.ContextError{
			Op:  "create target",
			Err: fmt.Errorf("framebuffer incomplete (0x%x)", status),
		}
	}
	return graphics.Target{FBO: fbo, Texture: texture, Width: width, Height: height}, nil
}

func (d *Device) DeleteTarget(t graphics.Target) {
	gl.DeleteFramebuffers(1, &t.FBO)
	gl.DeleteTextures(1, &t.Texture)
}

func (d *Device) BindTarget(t graphics.Target) {
	gl.BindFramebuffer(gl.FRAMEBUFFER, t.FBO)
	gl.Viewport(0, 0, int32(t.Width), int32(t.Height))
}

func (d *Device) UnbindTarget() { gl.BindFramebuffer(gl.FRAMEBUFFER, 0) }

func (d *Device) Clear() {
	gl.ClearColor(0, 0, 0, 0)
	gl.Clear(gl.COLOR_BUFFER_BIT)
}

// ReadPixels reads bottom-up from GL and flips into dst.
func (d *Device) ReadPixels(t graphics.Target, dst *image.RGBA) {
	w, h := t.Width, t.Height
	row := w * 4
	buf := make([]byte, row*h)
	gl.BindFramebuffer(gl.READ_FRAMEBUFFER, t.FBO)
	gl.PixelStorei(gl.PACK_ALIGNMENT, 1)
	gl.ReadPixels(0, 0, int32(w), int32(h), gl.RGBA, gl.UNSIGNED_BYTE, gl.Ptr(buf))
	gl.BindFramebuffer(gl.READ_FRAMEBUFFER, 0)

	for y := 0; y < h; y++ {
		src := buf[(h-1-y)*row : (h-y)*row]
		copy(dst.Pix[y*dst.Stride:y*dst.Stride+row], src)
	}
}

func (d *Device) CreateTexture(width, height int) uint32 {
	var tex uint32
	gl.GenTextures(1, &tex)
	gl.BindTexture(gl.TEXTURE_2D, tex)
	gl.TexImage2D(gl.TEXTURE_2D, 0, gl.RGBA8, int32(width), int32(height), 0, gl.RGBA, gl.UNSIGNED_BYTE, nil)
	gl.TexParameteri(gl.TEXTURE_2D, gl.TEXTURE_MIN_FILTER, gl.LINEAR)
	gl.TexParameteri(gl.TEXTURE_2D, gl.TEXTURE_MAG_FILTER, gl.LINEAR)
	gl.TexParameteri(gl.TEXTURE_2D, gl.TEXTURE_WRAP_S, gl.CLAMP_TO_EDGE)
	gl.TexParameteri(gl.TEXTURE_2D, gl.TEXTURE_WRAP_T, gl.CLAMP_TO_EDGE)
	gl.BindTexture(gl.TEXTURE_2D, 0)
	return tex
}

// UploadTexture copies img into texture. Row 0 of img becomes row 0 of the
// texture (v = 0).
func (d *Device) UploadTexture(texture uint32, img *image.RGBA) {
	b := img.Bounds()
	gl.BindTexture(gl.TEXTURE_2D, texture)
	gl.PixelStorei(gl.UNPACK_ALIGNMENT, 1)
	gl.PixelStorei(gl.UNPACK_ROW_LENGTH, int32(img.Stride/4))
	gl.TexSubImage2D(gl.TEXTURE_2D, 0, 0, 0, int32(b.Dx()), int32(b.Dy()), gl.RGBA, gl.UNSIGNED_BYTE, gl.Ptr(img.Pix[img.PixOffset(b.Min.X, b.Min.Y):]))
	gl.PixelStorei(gl.UNPACK_ROW_LENGTH, 0)
	gl.BindTexture(gl.TEXTURE_2D, 0)
}

func (d *Device) DeleteTexture(texture uint32) { gl.DeleteTextures(1, &texture) }

// Present draws frame to the default framebuffer, stretched to fbWidth x
// fbHeight.
func (d *Device) Present(frame *image.RGBA, fbWidth, fbHeight int) error {
	if d.blit.program == 0 {
		if err := d.initBlit(); err != nil {
			return err
		}
	}
	w, h := frame.Bounds().Dx(), frame.Bounds().Dy()
	if d.blit.texture == 0 || d.blit.w != w || d.blit.h != h {
		if d.blit.texture != 0 {
			d.DeleteTexture(d.blit.texture)
		}
		d.blit.texture = d.CreateTexture(w, h)
		d.blit.w, d.blit.h = w, h
	}
	d.UploadTexture(d.blit.texture, frame)

	gl.BindFramebuffer(gl.FRAMEBUFFER, 0)
	gl.Viewport(0, 0, int32(fbWidth), int32(fbHeight))
	gl.ClearColor(0, 0, 0, 1)
	gl.Clear(gl.COLOR_BUFFER_BIT)
	gl.UseProgram(d.blit.program)
	d.BindTexture(0, d.blit.texture)
	gl.Uniform1i(d.blit.loc, 0)
	d.DrawQuad(d.blit.quad)
	d.BindTexture(0, 0)
	return nil
}

// The composited frame is stored top row first, so the blit flips it.
func (d *Device) initBlit() error {
	vs, log := compileShader(shader.VertexSource(d.gles), gl.VERTEX_SHADER)
	if vs == 0 {
		return fmt.Errorf("blit vertex shader: %s", log)
	}
	defer gl.DeleteShader(vs)
	fs, log := compileShader(shader.BlitSource(true, d.gles), gl.FRAGMENT_SHADER)
	if fs == 0 {
		return fmt.Errorf("blit fragment shader: %s", log)
	}
	defer gl.DeleteShader(fs)
	prog, log := d.LinkProgram(vs, fs)
	if prog == 0 {
		return fmt.Errorf("blit program: %s", log)
	}
	d.blit.program = prog
	d.blit.quad = d.CreateQuad()
	d.blit.loc = gl.GetUniformLocation(prog, gl.Str("u_texture\x00"))
	return nil
}

// Release frees the objects Present created.
func (d *Device) Release() {
	if d.blit.program != 0 {
		d.DeleteProgram(d.blit.program)
		d.DeleteQuad(d.blit.quad)
	}
	if d.blit.texture != 0 {
		d.DeleteTexture(d.blit.texture)
	}
	d.blit.program, d.blit.quad, d.blit.texture = 0, 0, 0
}
