package renderer

import (
	"errors"
	"image/color"
	"testing"
	"time"

	"github.com/richinsley/goshadermixer/effects"
	"github.com/richinsley/goshadermixer/graphics"
	"github.com/richinsley/goshadermixer/graphics/graphicstest"
	"github.com/richinsley/goshadermixer/program"
	"github.com/richinsley/goshadermixer/shader"
)

const red = `void mainImage(out vec4 fragColor, in vec2 fragCoord) { fragColor = vec4(1.0, 0.0, 0.0, 1.0); }`

var t0 = time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)

func newSurface(t *testing.T) (*Surface, *graphicstest.Device) {
	t.Helper()
	dev := graphicstest.New()
	dev.Paint = func(string) color.RGBA { return color.RGBA{255, 0, 0, 255} }
	s, err := NewSurface(dev, 64, 32)
	if err != nil {
		t.Fatalf("NewSurface: %v", err)
	}
	return s, dev
}

func TestRenderUniforms(t *testing.T) {
	s, dev := newSurface(t)
	defer s.Release()

	if err := s.Load(red, shader.ProvenanceImage, 0); err != nil {
		t.Fatalf("Load: %v", err)
	}
	s.Render(t0, TickInput{Playing: true})
	s.Render(t0.Add(1500*time.Millisecond), TickInput{
		Playing: true,
		Pointer: [4]float32{10, 20, -10, -20},
		Effects: effects.Chain{}.Add(effects.Grayscale).Materialize(true),
	})

	id := dev.Programs()[0]
	checks := map[string]any{
		"iTime":            float32(1.5),
		"iTimeDelta":       float32(1.5),
		"iFrame":           int32(90),
		"iResolution":      [3]float32{64, 32, 1},
		"iMouse":           [4]float32{10, 20, -10, -20},
		"uEffectGrayscale": float32(effects.DefaultIntensity),
		"uEffectBlur":      float32(0),
	}
	for name, want := range checks {
		if got, _ := dev.Uniform(id, name); got != want {
			t.Errorf("%s = %v, want %v", name, got, want)
		}
	}
	if got, _ := dev.Uniform(id, "iDate"); got != [4]float32{2026, 2, 14, 12*3600 + 1.5} {
		t.Errorf("iDate = %v", got)
	}
	if dev.Draws != 2 {
		t.Errorf("Draws = %d, want 2", dev.Draws)
	}

	f := s.Frame()
	if f == nil || f.Bounds().Dx() != 64 || f.Bounds().Dy() != 32 {
		t.Fatalf("unexpected frame %v", f)
	}
	if got := f.RGBAAt(3, 3); got != (color.RGBA{255, 0, 0, 255}) {
		t.Errorf("pixel = %v, want red", got)
	}
}

func TestPreviousFrameIsChannelZero(t *testing.T) {
	s, dev := newSurface(t)
	defer s.Release()
	_ = s.Load(red, shader.ProvenanceImage, 0)

	first := s.buf.ReadTexture()
	s.Render(t0, TickInput{Playing: true})
	if dev.Units[0] != first {
		t.Errorf("iChannel0 bound to %d, want previous-frame texture %d", dev.Units[0], first)
	}
	second := s.buf.ReadTexture()
	if second == first {
		t.Fatal("buffers were not swapped")
	}
	s.Render(t0.Add(time.Second), TickInput{Playing: true})
	if dev.Units[0] != second {
		t.Errorf("iChannel0 bound to %d, want %d", dev.Units[0], second)
	}
}

func TestPausedTickSkipsDraw(t *testing.T) {
	s, dev := newSurface(t)
	defer s.Release()
	_ = s.Load(red, shader.ProvenanceImage, 0)

	s.Render(t0, TickInput{Playing: true})
	frame := s.Frame()
	s.Render(t0.Add(time.Second), TickInput{Playing: false})
	if dev.Draws != 1 {
		t.Errorf("Draws = %d, want 1", dev.Draws)
	}
	if s.Frame() != frame {
		t.Error("paused surface should keep its last frame")
	}
}

func TestEpochResetsOnLoad(t *testing.T) {
	s, dev := newSurface(t)
	defer s.Release()

	_ = s.Load(red, shader.ProvenanceImage, 0)
	s.Render(t0, TickInput{Playing: true})
	s.Render(t0.Add(10*time.Second), TickInput{Playing: true})

	_ = s.Load(red, shader.ProvenanceImage, effects.KindSet(0).With(effects.Blur))
	s.Render(t0.Add(11*time.Second), TickInput{Playing: true})
	id := dev.Programs()[0]
	if got, _ := dev.Uniform(id, "iTime"); got != float32(0) {
		t.Errorf("iTime after reload = %v, want 0", got)
	}
}

func TestReloadDoesNotLeak(t *testing.T) {
	s, dev := newSurface(t)
	baseline := dev.Live()

	for i := 0; i < 10; i++ {
		if err := s.Load(red, shader.ProvenanceImage, 0); err != nil {
			t.Fatal(err)
		}
		s.Render(t0.Add(time.Duration(i)*time.Second), TickInput{Playing: true})
	}
	if got := dev.Live(); got.Programs != 1 || got.Quads != 1 {
		t.Errorf("live after reloads = %+v", got)
	}

	s.Unload()
	if got := dev.Live(); got != baseline {
		t.Errorf("live after unload = %+v, want %+v", got, baseline)
	}
	s.Release()
	if got := dev.Live(); got != (graphicstest.Counts{}) {
		t.Errorf("live after release = %+v", got)
	}
}

func TestCompileFailureKeepsLastFrame(t *testing.T) {
	s, dev := newSurface(t)
	defer s.Release()

	_ = s.Load(red, shader.ProvenanceImage, 0)
	s.Render(t0, TickInput{Playing: true})
	frame := s.Frame()

	dev.CompileLog = func(stage graphics.ShaderStage, _ string) string {
		if stage == graphics.FragmentStage {
			return "ERROR: 0:12: syntax error"
		}
		return ""
	}
	err := s.Load(red, shader.ProvenanceImage, 0)
	var ce *program.CompileError
	if !errors.As(err, &ce) || ce.Stage != program.StageFragment {
		t.Fatalf("Load err = %v", err)
	}
	if !errors.As(s.Err(), &ce) {
		t.Error("Err() should report the compile failure")
	}
	if s.Loaded() || s.Frame() != frame || s.Source() == "" {
		t.Error("failed load should keep the old frame and the offending source")
	}
	s.Render(t0.Add(time.Second), TickInput{Playing: true})
	if dev.Draws != 1 {
		t.Errorf("Draws = %d, surface without a program must not draw", dev.Draws)
	}
}

func TestTransformFailure(t *testing.T) {
	s, _ := newSurface(t)
	defer s.Release()
	err := s.Load("float f() { return 1.0; }", shader.ProvenanceImage, 0)
	if !errors.Is(err, shader.ErrNoEntryPoint) {
		t.Errorf("err = %v, want ErrNoEntryPoint", err)
	}
}

func TestNewSurfaceContextError(t *testing.T) {
	dev := graphicstest.New()
	dev.FailTargets = true
	_, err := NewSurface(dev, 8, 8)
	var ce *graphics.ContextError
	if !errors.As(err, &ce) {
		t.Errorf("err = %v, want *graphics.ContextError", err)
	}
}

func TestStats(t *testing.T) {
	s, _ := newSurface(t)
	defer s.Release()
	_ = s.Load(red, shader.ProvenanceImage, 0)

	// 60 Hz for one second after the first frame
	for i := 0; i <= 60; i++ {
		s.Render(t0.Add(time.Duration(i)*time.Second/60), TickInput{
			Playing: true,
			Effects: effects.Chain{}.Add(effects.Blur).Materialize(true),
		})
	}
	st := s.Stats()
	if st.Frames != 61 {
		t.Errorf("Frames = %d, want 61", st.Frames)
	}
	if st.FPS < 59.5 || st.FPS > 60.5 {
		t.Errorf("FPS = %v, want 60", st.FPS)
	}
	if d := st.FrameTime - time.Second/60; d.Abs() > time.Microsecond {
		t.Errorf("FrameTime = %v", st.FrameTime)
	}
	if got := st.Uniforms["iTime"]; got != float32(1) {
		t.Errorf("iTime = %v, want 1", got)
	}
	if got := st.Uniforms["uEffectBlur"]; got != float32(effects.DefaultIntensity) {
		t.Errorf("uEffectBlur = %v", got)
	}
	if _, ok := st.Uniforms["iChannel0"]; ok {
		t.Error("texture uniforms should be excluded")
	}

	st.Uniforms["iTime"] = float32(99)
	if got := s.Stats().Uniforms["iTime"]; got != float32(1) {
		t.Error("Stats must return a copy of the uniforms")
	}

	_ = s.Load(red, shader.ProvenanceImage, 0)
	if st := s.Stats(); st.Frames != 0 || st.FPS != 0 || len(st.Uniforms) != 0 {
		t.Errorf("stats after reload = %+v", st)
	}
}

func TestPausedTickKeepsStats(t *testing.T) {
	s, _ := newSurface(t)
	defer s.Release()
	_ = s.Load(red, shader.ProvenanceImage, 0)

	s.Render(t0, TickInput{Playing: true})
	s.Render(t0.Add(time.Second), TickInput{Playing: false})
	if st := s.Stats(); st.Frames != 1 || st.FrameTime != 0 {
		t.Errorf("stats = %+v", st)
	}
}
