// Package renderer runs one shader program into its own double-buffered
// target and keeps the per-surface animation clock.
package renderer

import (
	"fmt"
	"image"
	"math"
	"time"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/richinsley/goshadermixer/effects"
	"github.com/richinsley/goshadermixer/graphics"
	"github.com/richinsley/goshadermixer/logging"
	"github.com/richinsley/goshadermixer/program"
	"github.com/richinsley/goshadermixer/shader"
)

// AssumedFrameRate converts elapsed time into iFrame.
const AssumedFrameRate = 60

// Channel is an extra texture bound to iChannelN.
type Channel struct {
	Texture uint32
	Width   int
	Height  int
}

// TickInput is everything a surface needs from the outside for one tick.
type TickInput struct {
	Playing bool
	// Pointer is x, y, clickX, clickY in target pixels; click is negative
	// while the button is up.
	Pointer [4]float32
	Effects effects.Uniforms
	// Channels 1 to 3 are bound when their texture is non-zero. Channel 0 is
	// always the surface's previous frame.
	Channels [shader.NumChannels]Channel
}

// Surface binds one program to one double-buffered target.
type Surface struct {
	dev    graphics.Device
	buf    *Buffer
	prog   *program.Program
	frame  *image.RGBA
	source string
	err    error

	epoch   time.Time
	last    time.Time
	started bool

	stats   Stats
	window  time.Time // start of the current fps window
	counted int       // frames drawn in the current window
	values  program.Uniforms
}

// Stats describes a surface's recent rendering.
type Stats struct {
	Frames    int64         // frames drawn since the last Load
	FPS       float64       // frames per second over the last full second
	FrameTime time.Duration // interval between the last two frames
	// Uniforms holds the last uploaded values, textures excluded.
	Uniforms map[string]any
}

// Stats returns the surface's rendering statistics.
func (s *Surface) Stats() Stats {
	st := s.stats
	st.Uniforms = make(map[string]any, len(s.values))
	for name, v := range s.values {
		if _, tex := v.(program.Texture); !tex {
			st.Uniforms[name] = v
		}
	}
	return st
}

func (s *Surface) resetStats() {
	s.stats, s.values, s.counted = Stats{}, nil, 0
}

// count records a frame drawn at now.
func (s *Surface) count(now time.Time, delta time.Duration) {
	if s.stats.Frames == 0 {
		s.window = now
	} else {
		s.counted++
	}
	s.stats.Frames++
	s.stats.FrameTime = delta
	if span := now.Sub(s.window); span >= time.Second {
		s.stats.FPS = float64(s.counted) / span.Seconds()
		s.window, s.counted = now, 0
	}
}

func NewSurface(dev graphics.Device, width, height int) (*Surface, error) {
	buf, err := NewBuffer(dev, width, height)
	if err != nil {
		return nil, err
	}
	return &Surface{dev: dev, buf: buf}, nil
}

// Load replaces the surface's program. The old program is disposed first.
// On failure the surface keeps showing its last frame, Err reports the
// failure, and the transformed source stays available from Source.
func (s *Surface) Load(source string, prov shader.Provenance, present effects.KindSet) error {
	s.releaseProgram()
	s.started = false
	s.resetStats()

	src, err := shader.Transform(source, prov, present)
	if err != nil {
		s.source, s.err = source, err
		logging.Logger().Debug("shader transform failed", "err", err)
		return err
	}
	s.source = src

	p, err := program.Compile(s.dev, src)
	if err != nil {
		s.err = err
		logging.Logger().Debug("shader compile failed", "err", err)
		return err
	}
	s.prog, s.err = p, nil
	logging.Logger().Debug("program compiled", "program", p.ID())
	return nil
}

// Unload drops the program and the last frame, leaving an empty surface.
func (s *Surface) Unload() {
	s.releaseProgram()
	s.frame, s.source, s.err = nil, "", nil
	s.started = false
	s.resetStats()
}

func (s *Surface) releaseProgram() {
	if s.prog != nil {
		s.prog.Dispose()
		s.prog = nil
	}
}

// Render runs one tick at now. The clock starts on the first tick after a
// Load. When in.Playing is false nothing is uploaded or drawn and the last
// frame stays current.
func (s *Surface) Render(now time.Time, in TickInput) {
	if s.prog == nil {
		return
	}
	if !s.started {
		s.epoch, s.last, s.started = now, now, true
	}
	if !in.Playing {
		return
	}

	elapsed := now.Sub(s.epoch).Seconds()
	step := now.Sub(s.last)
	delta := step.Seconds()
	s.last = now

	w, h := s.buf.Size()
	prev := program.Texture{ID: s.buf.ReadTexture()}
	res := mgl32.Vec3{float32(w), float32(h), 1}
	values := program.Uniforms{
		"iResolution":             res,
		"iTime":                   float32(elapsed),
		"iTimeDelta":              float32(delta),
		"iFrameRate":              float32(AssumedFrameRate),
		"iFrame":                  int32(math.Floor(elapsed * AssumedFrameRate)),
		"iMouse":                  mgl32.Vec4(in.Pointer),
		"iDate":                   date(now),
		"iChannel0":               prev,
		"iChannelResolution[0]":   res,
		effects.InputUniform:      prev,
		effects.TimeUniform:       float32(elapsed),
		effects.ResolutionUniform: mgl32.Vec2{float32(w), float32(h)},
	}
	for i := 1; i < shader.NumChannels; i++ {
		ch := in.Channels[i]
		if ch.Texture == 0 {
			continue
		}
		values[fmt.Sprintf("iChannel%d", i)] = program.Texture{ID: ch.Texture}
		values[fmt.Sprintf("iChannelResolution[%d]", i)] = mgl32.Vec3{float32(ch.Width), float32(ch.Height), 1}
	}
	in.Effects.Apply(values)

	if err := s.prog.SetUniforms(values); err != nil {
		panic(err)
	}

	target := s.buf.WriteTarget()
	s.dev.BindTarget(target)
	s.dev.Clear()
	s.prog.Draw()
	if s.frame == nil {
		s.frame = image.NewRGBA(image.Rect(0, 0, w, h))
	}
	s.dev.ReadPixels(target, s.frame)
	s.dev.UnbindTarget()
	s.buf.SwapBuffers()
	s.values = values
	s.count(now, step)
}

// date packs now as year, zero-based month, day, and seconds since midnight.
func date(now time.Time) mgl32.Vec4 {
	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	return mgl32.Vec4{
		float32(now.Year()),
		float32(now.Month() - 1),
		float32(now.Day()),
		float32(now.Sub(midnight).Seconds()),
	}
}

// Frame returns the last rendered frame, or nil if nothing has been drawn
// since the surface was created or unloaded.
func (s *Surface) Frame() *image.RGBA { return s.frame }

// Loaded reports whether a program is ready to draw.
func (s *Surface) Loaded() bool { return s.prog != nil }

// Err is the error from the last Load, if it failed.
func (s *Surface) Err() error { return s.err }

// Source is the source of the last Load after transformation, or the raw
// source if transformation itself failed.
func (s *Surface) Source() string { return s.source }

// Release frees every GPU object the surface owns.
func (s *Surface) Release() {
	s.releaseProgram()
	if s.buf != nil {
		s.buf.Destroy()
		s.buf = nil
	}
	s.frame = nil
}
