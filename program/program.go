// Package program owns compiled GPU programs: compile and link with typed
// errors, a per-program uniform location cache, and the full-screen quad
// every program draws.
package program

import (
	"fmt"
	"sort"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/richinsley/goshadermixer/graphics"
	"github.com/richinsley/goshadermixer/logging"
	"github.com/richinsley/goshadermixer/shader"
)

// Stage is where in the build a CompileError happened.
type Stage int

const (
	StageVertex Stage = iota
	StageFragment
	StageLink
)

func (s Stage) String() string {
	switch s {
	case StageVertex:
		return "vertex"
	case StageFragment:
		return "fragment"
	case StageLink:
		return "link"
	}
	return fmt.Sprintf("Stage(%d)", int(s))
}

// CompileError carries the driver's diagnostic for a failed build.
type CompileError struct {
	Stage Stage
	Log   string
}

func (e *CompileError) Error() string {
	if e.Stage == StageLink {
		return fmt.Sprintf("failed to link program: %s", e.Log)
	}
	return fmt.Sprintf("failed to compile %s shader: %s", e.Stage, e.Log)
}

// UniformShapeError rejects a uniform value the program cannot upload.
// The uniform set is fixed by the caller, so this is a programming error.
type UniformShapeError struct {
	Name  string
	Value any
}

func (e *UniformShapeError) Error() string {
	if v, ok := e.Value.([]float32); ok {
		return fmt.Sprintf("uniform %q: unsupported vector length %d", e.Name, len(v))
	}
	return fmt.Sprintf("uniform %q: unsupported value type %T", e.Name, e.Value)
}

// Texture is a sampler uniform value. The program assigns it a texture unit.
type Texture struct {
	ID uint32
}

// Uniforms maps uniform names to values. Accepted values are float32,
// float64, int, int32, mgl32.Vec2/3/4, [2]/[3]/[4]float32, []float32 of
// length 2 to 4, and Texture.
type Uniforms map[string]any

// Program is one linked program plus the quad it draws. A Program must not
// be used after Dispose.
type Program struct {
	dev   graphics.Device
	id    uint32
	quad  uint32
	locs  map[string]int32
	units map[string]int
}

// Compile builds a program from the fixed vertex stage and fragmentSource.
// Intermediate shader objects are released whether or not it succeeds.
func Compile(dev graphics.Device, fragmentSource string) (*Program, error) {
	vs, log := dev.CompileShader(graphics.VertexStage, shader.VertexSource(dev.IsGLES()))
	if vs == 0 {
		return nil, &CompileError{Stage: StageVertex, Log: log}
	}
	defer dev.DeleteShader(vs)

	fs, log := dev.CompileShader(graphics.FragmentStage, fragmentSource)
	if fs == 0 {
		return nil, &CompileError{Stage: StageFragment, Log: log}
	}
	defer dev.DeleteShader(fs)

	id, log := dev.LinkProgram(vs, fs)
	if id == 0 {
		return nil, &CompileError{Stage: StageLink, Log: log}
	}

	return &Program{
		dev:   dev,
		id:    id,
		quad:  dev.CreateQuad(),
		locs:  make(map[string]int32),
		units: make(map[string]int),
	}, nil
}

// ID returns the underlying program object, or 0 once disposed.
func (p *Program) ID() uint32 { return p.id }

func (p *Program) location(name string) int32 {
	if loc, ok := p.locs[name]; ok {
		return loc
	}
	loc := p.dev.UniformLocation(p.id, name)
	if loc < 0 {
		logging.Logger().Debug("uniform not active", "program", p.id, "name", name)
	}
	p.locs[name] = loc
	return loc
}

func (p *Program) unit(name string) int {
	if u, ok := p.units[name]; ok {
		return u
	}
	u := len(p.units)
	p.units[name] = u
	return u
}

func validShape(v any) bool {
	switch v := v.(type) {
	case float32, float64, int, int32,
		mgl32.Vec2, mgl32.Vec3, mgl32.Vec4,
		[2]float32, [3]float32, [4]float32,
		Texture:
		return true
	case []float32:
		return len(v) >= 2 && len(v) <= 4
	}
	return false
}

// SetUniforms uploads values. Every value is checked before anything is
// uploaded, so a *UniformShapeError leaves the program untouched. Names the
// driver does not report as active are skipped. Texture units are handed
// out in name order the first time each sampler is set, and stay fixed.
func (p *Program) SetUniforms(values Uniforms) error {
	names := make([]string, 0, len(values))
	for name, v := range values {
		if !validShape(v) {
			return &UniformShapeError{Name: name, Value: v}
		}
		names = append(names, name)
	}
	sort.Strings(names)

	p.dev.UseProgram(p.id)
	for _, name := range names {
		loc := p.location(name)
		if loc < 0 {
			continue
		}
		p.upload(name, loc, values[name])
	}
	return nil
}

func (p *Program) upload(name string, loc int32, value any) {
	d := p.dev
	switch v := value.(type) {
	case float32:
		d.Uniform1f(loc, v)
	case float64:
		d.Uniform1f(loc, float32(v))
	case int:
		d.Uniform1i(loc, int32(v))
	case int32:
		d.Uniform1i(loc, v)
	case mgl32.Vec2:
		d.Uniform2f(loc, v[0], v[1])
	case mgl32.Vec3:
		d.Uniform3f(loc, v[0], v[1], v[2])
	case mgl32.Vec4:
		d.Uniform4f(loc, v[0], v[1], v[2], v[3])
	case [2]float32:
		d.Uniform2f(loc, v[0], v[1])
	case [3]float32:
		d.Uniform3f(loc, v[0], v[1], v[2])
	case [4]float32:
		d.Uniform4f(loc, v[0], v[1], v[2], v[3])
	case []float32:
		switch len(v) {
		case 2:
			d.Uniform2f(loc, v[0], v[1])
		case 3:
			d.Uniform3f(loc, v[0], v[1], v[2])
		case 4:
			d.Uniform4f(loc, v[0], v[1], v[2], v[3])
		}
	case Texture:
		u := p.unit(name)
		d.BindTexture(u, v.ID)
		d.Uniform1i(loc, int32(u))
	}
}

// Draw issues one four-vertex triangle strip covering the bound target.
func (p *Program) Draw() {
	p.dev.UseProgram(p.id)
	p.dev.DrawQuad(p.quad)
}

// Dispose releases the program and its quad. It is safe to call twice.
func (p *Program) Dispose() {
	if p == nil || p.id == 0 {
		return
	}
	p.dev.DeleteProgram(p.id)
	p.dev.DeleteQuad(p.quad)
	p.id, p.quad = 0, 0
	p.locs = nil
	p.units = nil
}
