// Package graphicstest provides an in-memory graphics.Device for tests. It
// tracks every live GPU object so tests can check that nothing leaks, and
// it "draws" by filling the bound target with a per-program color.
package graphicstest

import (
	"errors"
	"image"
	"image/color"
	"image/draw"

	"github.com/richinsley/goshadermixer/graphics"
)

// Counts is the number of live objects of each kind.
type Counts struct {
	Shaders  int
	Programs int
	Quads    int
	Targets  int
	Textures int
}

type program struct {
	fragment string
	locs     map[string]int32
	values   map[int32]any
}

type target struct {
	t   graphics.Target
	img *image.RGBA
}

// Device is a fake graphics.Device. The exported fields configure failures
// and output; set them before use.
type Device struct {
	GLES bool

	// CompileLog, when it returns a non-empty string, makes CompileShader fail
	// with that log.
	CompileLog func(stage graphics.ShaderStage, source string) string
	// LinkLog works like CompileLog for LinkProgram.
	LinkLog func() string
	// Inactive names resolve to location -1.
	Inactive map[string]bool
	// Paint picks the color a program fills the bound target with.
	// Defaults to opaque white.
	Paint func(fragmentSource string) color.RGBA
	// FailTargets makes CreateTarget fail.
	FailTargets bool

	// Draws counts DrawQuad calls. Lookups counts UniformLocation calls.
	Draws   int
	Lookups int
	// Units records the last texture bound to each unit.
	Units map[int]uint32

	next     uint32
	shaders  map[uint32]string
	programs map[uint32]*program
	quads    map[uint32]bool
	targets  map[uint32]*target
	textures map[uint32]*image.RGBA
	current  uint32
	bound    uint32
}

var _ graphics.Device = (*Device)(nil)

func New() *Device {
	return &Device{
		Units:    make(map[int]uint32),
		shaders:  make(map[uint32]string),
		programs: make(map[uint32]*program),
		quads:    make(map[uint32]bool),
		targets:  make(map[uint32]*target),
		textures: make(map[uint32]*image.RGBA),
	}
}

func (d *Device) id() uint32 {
	d.next++
	return d.next
}

// Live reports the objects that have been created and not yet deleted.
func (d *Device) Live() Counts {
	return Counts{
		Shaders:  len(d.shaders),
		Programs: len(d.programs),
		Quads:    len(d.quads),
		Targets:  len(d.targets),
		Textures: len(d.textures),
	}
}

// Uniform returns the last value set for name on prog.
func (d *Device) Uniform(prog uint32, name string) (any, bool) {
	p, ok := d.programs[prog]
	if !ok {
		return nil, false
	}
	loc, ok := p.locs[name]
	if !ok || loc < 0 {
		return nil, false
	}
	v, ok := p.values[loc]
	return v, ok
}

// FragmentSource returns the fragment source prog was linked from.
func (d *Device) FragmentSource(prog uint32) string {
	if p, ok := d.programs[prog]; ok {
		return p.fragment
	}
	return ""
}

// Programs returns the ids of the live programs.
func (d *Device) Programs() []uint32 {
	ids := make([]uint32, 0, len(d.programs))
	for id := range d.programs {
		ids = append(ids, id)
	}
	return ids
}

func (d *Device) IsGLES() bool { return d.GLES }

func (d *Device) CompileShader(stage graphics.ShaderStage, source string) (uint32, string) {
	if d.CompileLog != nil {
		if log := d.CompileLog(stage, source); log != "" {
			return 0, log
		}
	}
	id := d.id()
	d.shaders[id] = source
	return id, ""
}

func (d *Device) LinkProgram(vertex, fragment uint32) (uint32, string) {
	if d.LinkLog != nil {
		if log := d.LinkLog(); log != "" {
			return 0, log
		}
	}
	id := d.id()
	d.programs[id] = &program{
		fragment: d.shaders[fragment],
		locs:     make(map[string]int32),
		values:   make(map[int32]any),
	}
	return id, ""
}

func (d *Device) DeleteShader(id uint32) { delete(d.shaders, id) }

func (d *Device) DeleteProgram(id uint32) {
	delete(d.programs, id)
	if d.current == id {
		d.current = 0
	}
}

func (d *Device) UseProgram(id uint32) { d.current = id }

func (d *Device) UniformLocation(prog uint32, name string) int32 {
	d.Lookups++
	p, ok := d.programs[prog]
	if !ok || d.Inactive[name] {
		return -1
	}
	if loc, ok := p.locs[name]; ok {
		return loc
	}
	loc := int32(len(p.locs))
	p.locs[name] = loc
	return loc
}

func (d *Device) set(loc int32, v any) {
	if p, ok := d.programs[d.current]; ok && loc >= 0 {
		p.values[loc] = v
	}
}

func (d *Device) Uniform1f(loc int32, v float32)          { d.set(loc, v) }
func (d *Device) Uniform1i(loc int32, v int32)            { d.set(loc, v) }
func (d *Device) Uniform2f(loc int32, x, y float32)       { d.set(loc, [2]float32{x, y}) }
func (d *Device) Uniform3f(loc int32, x, y, z float32)    { d.set(loc, [3]float32{x, y, z}) }
func (d *Device) Uniform4f(loc int32, x, y, z, w float32) { d.set(loc, [4]float32{x, y, z, w}) }

func (d *Device) BindTexture(unit int, texture uint32) { d.Units[unit] = texture }

func (d *Device) CreateQuad() uint32 {
	id := d.id()
	d.quads[id] = true
	return id
}

func (d *Device) DeleteQuad(vao uint32) { delete(d.quads, vao) }

func (d *Device) DrawQuad(vao uint32) {
	d.Draws++
	t, ok := d.targets[d.bound]
	if !ok {
		return
	}
	c := color.RGBA{255, 255, 255, 255}
	if p, ok := d.programs[d.current]; ok && d.Paint != nil {
		c = d.Paint(p.fragment)
	}
	draw.Draw(t.img, t.img.Bounds(), image.NewUniform(c), image.Point{}, draw.Src)
}

func (d *Device) CreateTarget(width, height int) (graphics.Target, error) {
	if d.FailTargets {
		return graphics.Target{}, &graphics.ContextError{Op: "create target", Err: errors.New("framebuffer incomplete")}
	}
	t := graphics.Target{FBO: d.id(), Texture: d.id(), Width: width, Height: height}
	d.targets[t.FBO] = &target{t: t, img: image.NewRGBA(image.Rect(0, 0, width, height))}
	return t, nil
}

func (d *Device) DeleteTarget(t graphics.Target) {
	delete(d.targets, t.FBO)
	if d.bound == t.FBO {
		d.bound = 0
	}
}

func (d *Device) BindTarget(t graphics.Target) { d.bound = t.FBO }
func (d *Device) UnbindTarget()                { d.bound = 0 }

func (d *Device) Clear() {
	if t, ok := d.targets[d.bound]; ok {
		draw.Draw(t.img, t.img.Bounds(), image.Transparent, image.Point{}, draw.Src)
	}
}

func (d *Device) ReadPixels(t graphics.Target, dst *image.RGBA) {
	if src, ok := d.targets[t.FBO]; ok {
		draw.Draw(dst, dst.Bounds(), src.img, image.Point{}, draw.Src)
	}
}

func (d *Device) CreateTexture(width, height int) uint32 {
	id := d.id()
	d.textures[id] = image.NewRGBA(image.Rect(0, 0, width, height))
	return id
}

func (d *Device) UploadTexture(texture uint32, img *image.RGBA) {
	if dst, ok := d.textures[texture]; ok {
		draw.Draw(dst, dst.Bounds(), img, img.Bounds().Min, draw.Src)
	}
}

func (d *Device) DeleteTexture(texture uint32) { delete(d.textures, texture) }

// Texture returns the contents of a live texture.
func (d *Device) Texture(id uint32) (*image.RGBA, bool) {
	img, ok := d.textures[id]
	return img, ok
}
