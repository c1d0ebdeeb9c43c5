package mixer

import (
	"errors"
	"image/color"
	"strings"
	"testing"
	"time"

	"github.com/richinsley/goshadermixer/compositor"
	"github.com/richinsley/goshadermixer/effects"
	"github.com/richinsley/goshadermixer/graphics"
	"github.com/richinsley/goshadermixer/graphics/graphicstest"
	"github.com/richinsley/goshadermixer/library"
	"github.com/richinsley/goshadermixer/program"
	"github.com/richinsley/goshadermixer/recorder"
	"github.com/richinsley/goshadermixer/renderer"
)

var (
	red   = color.RGBA{255, 0, 0, 255}
	green = color.RGBA{0, 255, 0, 255}
	blue  = color.RGBA{0, 0, 255, 255}
	white = color.RGBA{255, 255, 255, 255}
)

func paintAsset(id, paint string) library.Asset {
	return library.Asset{
		ID:     id,
		Name:   id,
		Source: "// paint:" + paint + "\nvoid mainImage(out vec4 c, in vec2 p) { c = vec4(1.0); }",
	}
}

func newDevice() *graphicstest.Device {
	dev := graphicstest.New()
	dev.Paint = func(src string) color.RGBA {
		switch {
		case strings.Contains(src, "paint:red"):
			return red
		case strings.Contains(src, "paint:green"):
			return green
		case strings.Contains(src, "paint:blue"):
			return blue
		}
		return white
	}
	return dev
}

func newTestMixer(t *testing.T, dev *graphicstest.Device, opts ...Option) *Mixer {
	t.Helper()
	opts = append([]Option{WithSize(8, 6)}, opts...)
	m, err := New(dev, library.Empty(), opts...)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { m.Close() })
	return m
}

var t0 = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func TestDefaultState(t *testing.T) {
	m := newTestMixer(t, newDevice())
	st := m.State()
	if st.Version != 0 || st.Layout != compositor.Quad || !st.Playing || st.Recording {
		t.Errorf("unexpected default state: %+v", st)
	}
	if st.TransitionType != "crossfade" || st.TransitionDuration != time.Second {
		t.Errorf("transition = %s %v", st.TransitionType, st.TransitionDuration)
	}
	if st.OutputFormat != "mp4" || st.OutputQuality != recorder.High || st.OutputFPS != 30 {
		t.Errorf("output = %s %v %d", st.OutputFormat, st.OutputQuality, st.OutputFPS)
	}
	for i, in := range st.Inputs {
		if !in.Empty() || in.Opacity != 1 || in.Blend != compositor.Normal || !in.EffectsEnabled || in.Effects.Len() != 0 {
			t.Errorf("input %d = %+v", i, in)
		}
	}
}

func TestSnapshotsAreVersioned(t *testing.T) {
	m := newTestMixer(t, newDevice())
	before := m.State()
	m.SetLayout(compositor.Stack)
	if err := m.AddEffect(1, effects.Blur); err != nil {
		t.Fatal(err)
	}
	after := m.State()
	if after.Version != before.Version+2 {
		t.Errorf("version %d -> %d", before.Version, after.Version)
	}
	if before.Layout != compositor.Quad || before.Inputs[1].Effects.Len() != 0 {
		t.Error("earlier snapshot changed")
	}
	if !after.Inputs[1].Effects.Has(effects.Blur) {
		t.Error("effect missing from new snapshot")
	}
}

func TestInputRange(t *testing.T) {
	m := newTestMixer(t, newDevice())
	calls := map[string]error{
		"assign":    m.AssignShader(4, paintAsset("a", "red")),
		"property":  m.SetInputProperty(-1, PropOpacity, 0.5),
		"effect":    m.AddEffect(7, effects.Bloom),
		"active":    m.SetActiveInput(4),
		"switch":    m.SwitchToInput(-2),
		"toggleVis": m.ToggleInputVisibility(9),
	}
	for name, err := range calls {
		if !errors.Is(err, ErrInputRange) {
			t.Errorf("%s: err = %v, want ErrInputRange", name, err)
		}
	}
	if m.State().Version != 0 {
		t.Error("failed call changed state")
	}
}

func TestQuadOutput(t *testing.T) {
	m := newTestMixer(t, newDevice())
	if err := m.AssignShader(0, paintAsset("r", "red")); err != nil {
		t.Fatal(err)
	}
	if err := m.AssignShader(1, paintAsset("g", "green")); err != nil {
		t.Fatal(err)
	}
	if err := m.AssignShader(3, paintAsset("b", "blue")); err != nil {
		t.Fatal(err)
	}
	out := m.Tick(t0, [4]float32{})

	checks := []struct {
		x, y int
		want color.RGBA
	}{
		{1, 1, red},
		{5, 1, green},
		{1, 4, color.RGBA{}},
		{6, 5, blue},
	}
	for _, ck := range checks {
		if got := out.RGBAAt(ck.x, ck.y); got != ck.want {
			t.Errorf("pixel (%d,%d) = %v, want %v", ck.x, ck.y, got, ck.want)
		}
	}
}

func TestReassignDoesNotLeak(t *testing.T) {
	dev := newDevice()
	m := newTestMixer(t, dev)
	baseline := dev.Live()

	if err := m.AssignShader(2, paintAsset("a", "red")); err != nil {
		t.Fatal(err)
	}
	m.Tick(t0, [4]float32{})
	loaded := dev.Live()
	if loaded.Programs != baseline.Programs+1 || loaded.Quads != baseline.Quads+1 {
		t.Fatalf("after load = %+v, baseline %+v", loaded, baseline)
	}

	for i := 0; i < 20; i++ {
		paint := []string{"green", "blue"}[i%2]
		if err := m.AssignShader(2, paintAsset(paint+"-asset", paint)); err != nil {
			t.Fatal(err)
		}
		m.Tick(t0.Add(time.Duration(i)*time.Millisecond), [4]float32{})
		if got := dev.Live(); got != loaded {
			t.Fatalf("swap %d: live = %+v, want %+v", i, got, loaded)
		}
	}

	if err := m.ClearInput(2); err != nil {
		t.Fatal(err)
	}
	m.Tick(t0.Add(time.Second), [4]float32{})
	if got := dev.Live(); got != baseline {
		t.Errorf("after clear = %+v, want %+v", got, baseline)
	}

	m.Close()
	if got := dev.Live(); got != (graphicstest.Counts{}) {
		t.Errorf("after close = %+v", got)
	}
}

func TestRecompileOnlyOnMembershipChange(t *testing.T) {
	dev := newDevice()
	links := 0
	dev.LinkLog = func() string { links++; return "" }
	m := newTestMixer(t, dev)

	if err := m.AssignShader(0, paintAsset("a", "red")); err != nil {
		t.Fatal(err)
	}
	m.Tick(t0, [4]float32{})
	if links != 1 {
		t.Fatalf("links = %d", links)
	}

	steps := []struct {
		name   string
		do     func() error
		relink bool
	}{
		{"add blur", func() error { return m.AddEffect(0, effects.Blur) }, true},
		{"intensity", func() error { return m.SetEffectIntensity(0, effects.Blur, 0.9) }, false},
		{"toggle", func() error { return m.ToggleEffect(0, effects.Blur) }, false},
		{"effects off", func() error { return m.SetInputProperty(0, PropEffectsEnabled, false) }, false},
		{"opacity", func() error { return m.SetInputProperty(0, PropOpacity, 0.3) }, false},
		{"add existing", func() error { return m.AddEffect(0, effects.Blur) }, false},
		{"remove blur", func() error { return m.RemoveEffect(0, effects.Blur) }, true},
		{"reassign same", func() error { return m.AssignShaderID(0, "a") }, true},
	}
	for _, s := range steps {
		before := links
		if err := s.do(); err != nil {
			t.Fatalf("%s: %v", s.name, err)
		}
		m.Tick(t0, [4]float32{})
		if relinked := links != before; relinked != s.relink {
			t.Errorf("%s: relinked = %v, want %v", s.name, relinked, s.relink)
		}
	}
}

func TestEffectUniforms(t *testing.T) {
	dev := newDevice()
	m := newTestMixer(t, dev)
	if err := m.AssignShader(0, paintAsset("a", "red")); err != nil {
		t.Fatal(err)
	}
	if err := m.AddEffect(0, effects.Vignette); err != nil {
		t.Fatal(err)
	}
	if err := m.SetEffectIntensity(0, effects.Vignette, 0.75); err != nil {
		t.Fatal(err)
	}

	vignette := func() any {
		t.Helper()
		progs := dev.Programs()
		if len(progs) != 1 {
			t.Fatalf("live programs = %d", len(progs))
		}
		v, ok := dev.Uniform(progs[0], effects.Vignette.UniformName())
		if !ok {
			t.Fatal("vignette uniform never set")
		}
		return v
	}

	m.Tick(t0, [4]float32{})
	if got := vignette(); got != float32(0.75) {
		t.Errorf("enabled = %v, want 0.75", got)
	}

	if err := m.SetInputProperty(0, PropEffectsEnabled, false); err != nil {
		t.Fatal(err)
	}
	m.Tick(t0.Add(time.Millisecond), [4]float32{})
	if got := vignette(); got != float32(0) {
		t.Errorf("effects disabled = %v, want 0", got)
	}

	if err := m.SetInputProperty(0, PropEffectsEnabled, true); err != nil {
		t.Fatal(err)
	}
	if err := m.ToggleEffect(0, effects.Vignette); err != nil {
		t.Fatal(err)
	}
	m.Tick(t0.Add(2*time.Millisecond), [4]float32{})
	if got := vignette(); got != float32(0) {
		t.Errorf("stage disabled = %v, want 0", got)
	}
}

func TestCompileFailureIsolated(t *testing.T) {
	dev := newDevice()
	dev.CompileLog = func(stage graphics.ShaderStage, src string) string {
		if stage == graphics.FragmentStage && strings.Contains(src, "paint:broken") {
			return "ERROR: 0:1: syntax error"
		}
		return ""
	}
	m := newTestMixer(t, dev)
	if err := m.AssignShader(0, paintAsset("ok", "red")); err != nil {
		t.Fatal(err)
	}
	m.Tick(t0, [4]float32{})

	if err := m.AssignShader(0, paintAsset("bad", "broken")); err != nil {
		t.Fatal(err)
	}
	if err := m.AssignShader(1, paintAsset("good", "green")); err != nil {
		t.Fatal(err)
	}
	out := m.Tick(t0.Add(time.Second), [4]float32{})

	var ce *program.CompileError
	if err := m.InputError(0); !errors.As(err, &ce) || ce.Stage != program.StageFragment {
		t.Fatalf("InputError(0) = %v", err)
	}
	if !strings.Contains(m.InputSource(0), "paint:broken") {
		t.Error("failed source not retained")
	}
	if m.InputError(1) != nil {
		t.Errorf("InputError(1) = %v", m.InputError(1))
	}
	if got := out.RGBAAt(1, 1); got != red {
		t.Errorf("failed input should keep its last frame, got %v", got)
	}
	if got := out.RGBAAt(5, 1); got != green {
		t.Errorf("healthy input = %v", got)
	}
}

func TestRemoveAssetEmptiesInputs(t *testing.T) {
	dev := newDevice()
	m := newTestMixer(t, dev)
	a := paintAsset("shared", "blue")
	for _, i := range []int{0, 2} {
		if err := m.AssignShader(i, a); err != nil {
			t.Fatal(err)
		}
	}
	m.Tick(t0, [4]float32{})
	baseline := dev.Live().Programs

	if !m.RemoveAsset("shared") {
		t.Fatal("RemoveAsset returned false")
	}
	if m.RemoveAsset("shared") {
		t.Error("second RemoveAsset returned true")
	}
	st := m.State()
	if !st.Inputs[0].Empty() || !st.Inputs[2].Empty() {
		t.Error("inputs still reference removed asset")
	}
	m.Tick(t0.Add(time.Second), [4]float32{})
	if got := dev.Live().Programs; got != baseline-2 {
		t.Errorf("programs = %d, want %d", got, baseline-2)
	}
}

func TestPausedTicksDoNotDraw(t *testing.T) {
	dev := newDevice()
	m := newTestMixer(t, dev)
	if err := m.AssignShader(0, paintAsset("a", "red")); err != nil {
		t.Fatal(err)
	}
	m.Tick(t0, [4]float32{})
	draws := dev.Draws

	m.SetPlaying(false)
	for i := 1; i <= 5; i++ {
		out := m.Tick(t0.Add(time.Duration(i)*time.Second), [4]float32{})
		if got := out.RGBAAt(0, 0); got != red {
			t.Fatalf("paused output lost its frame: %v", got)
		}
	}
	if dev.Draws != draws {
		t.Errorf("draws while paused: %d", dev.Draws-draws)
	}
	m.SetPlaying(true)
	m.Tick(t0.Add(10*time.Second), [4]float32{})
	if dev.Draws != draws+1 {
		t.Errorf("draws after resume = %d", dev.Draws-draws)
	}
}

func TestSetInputProperty(t *testing.T) {
	m := newTestMixer(t, newDevice())
	tests := []struct {
		prop    Property
		value   any
		wantErr bool
		check   func(Input) bool
	}{
		{PropOpacity, 0.25, false, func(in Input) bool { return in.Opacity == 0.25 }},
		{PropOpacity, float32(2), false, func(in Input) bool { return in.Opacity == 1 }},
		{PropOpacity, -3, false, func(in Input) bool { return in.Opacity == 0 }},
		{PropOpacity, "half", true, nil},
		{PropBlendMode, "screen", false, func(in Input) bool { return in.Blend == compositor.Screen }},
		{PropBlendMode, compositor.Difference, false, func(in Input) bool { return in.Blend == compositor.Difference }},
		{PropBlendMode, "plus-lighter", false, func(in Input) bool { return in.Blend == compositor.Normal }},
		{PropBlendMode, 3, true, nil},
		{PropEffectsEnabled, false, false, func(in Input) bool { return !in.EffectsEnabled }},
		{PropEffectsEnabled, "no", true, nil},
		{Property("shaderId"), "x", true, nil},
	}
	for _, tt := range tests {
		err := m.SetInputProperty(1, tt.prop, tt.value)
		if (err != nil) != tt.wantErr {
			t.Errorf("%s=%v: err = %v", tt.prop, tt.value, err)
			continue
		}
		if tt.check != nil && !tt.check(m.State().Inputs[1]) {
			t.Errorf("%s=%v: input = %+v", tt.prop, tt.value, m.State().Inputs[1])
		}
	}
}

func TestStackZeroOpacity(t *testing.T) {
	m := newTestMixer(t, newDevice())
	if err := m.AssignShader(0, paintAsset("base", "blue")); err != nil {
		t.Fatal(err)
	}
	if err := m.AssignShader(1, paintAsset("top", "red")); err != nil {
		t.Fatal(err)
	}
	if err := m.SetInputProperty(1, PropBlendMode, "screen"); err != nil {
		t.Fatal(err)
	}
	if err := m.SetInputProperty(1, PropOpacity, 0.0); err != nil {
		t.Fatal(err)
	}
	m.SetLayout(compositor.Stack)
	out := m.Tick(t0, [4]float32{})
	for y := 0; y < 6; y++ {
		for x := 0; x < 8; x++ {
			if got := out.RGBAAt(x, y); got != blue {
				t.Fatalf("pixel (%d,%d) = %v, want base only", x, y, got)
			}
		}
	}
}

func TestTransportHelpers(t *testing.T) {
	m := newTestMixer(t, newDevice())

	if err := m.ToggleInputVisibility(2); err != nil {
		t.Fatal(err)
	}
	if got := m.State().Inputs[2].Opacity; got != 0 {
		t.Errorf("hidden opacity = %v", got)
	}
	if err := m.SwitchToInput(2); err != nil {
		t.Fatal(err)
	}
	st := m.State()
	if st.Inputs[2].Opacity != 1 || st.ActiveInput != 2 || st.Layout != compositor.Single {
		t.Errorf("after SwitchToInput: %+v", st)
	}

	if err := m.SetInputProperty(2, PropOpacity, 0.0); err != nil {
		t.Fatal(err)
	}
	m.EnableBlending()
	st = m.State()
	if st.Inputs[2].Opacity != 1 || st.Layout != compositor.Stack {
		t.Errorf("after EnableBlending: %+v", st)
	}
}

func TestTransitionAndOutput(t *testing.T) {
	m := newTestMixer(t, newDevice())
	if err := m.SetTransition("Wipe", 10*time.Second); err != nil {
		t.Fatal(err)
	}
	if st := m.State(); st.TransitionType != "wipe" || st.TransitionDuration != MaxTransitionDuration {
		t.Errorf("transition = %s %v", st.TransitionType, st.TransitionDuration)
	}
	if err := m.SetTransition("spin", time.Second); err == nil {
		t.Error("unknown transition accepted")
	}
	if err := m.SetOutput("webm", recorder.Ultra, 120); err != nil {
		t.Fatal(err)
	}
	if st := m.State(); st.OutputFormat != "webm" || st.OutputQuality != recorder.Ultra || st.OutputFPS != recorder.MaxFPS {
		t.Errorf("output = %s %v %d", st.OutputFormat, st.OutputQuality, st.OutputFPS)
	}
	if err := m.SetOutput("avi", recorder.Low, 30); err == nil {
		t.Error("unknown format accepted")
	}
}

type nopEncoder struct{ frames int }

func (e *nopEncoder) WriteFrame([]byte) error { e.frames++; return nil }
func (e *nopEncoder) Close() (int64, error)   { return int64(e.frames) * 10, nil }

func TestRecordingThroughTick(t *testing.T) {
	now := t0
	enc := &nopEncoder{}
	m := newTestMixer(t, newDevice(), WithRecorder(
		recorder.WithClock(func() time.Time { return now }),
		recorder.WithEncoder(func(recorder.EncoderConfig) (recorder.Encoder, error) { return enc, nil }),
	))
	if err := m.AssignShader(0, paintAsset("a", "red")); err != nil {
		t.Fatal(err)
	}

	if err := m.StartRecording(recorder.Low, 30); err != nil {
		t.Fatal(err)
	}
	if !m.State().Recording {
		t.Fatal("state not recording")
	}
	for i := 0; i < 120; i++ {
		m.Tick(now, [4]float32{})
		now = now.Add(time.Second / 60)
	}
	frameInterval := time.Second / 30
	if got := m.RecordingElapsed(); (got - 2*time.Second).Abs() > frameInterval {
		t.Errorf("elapsed = %v, want 2s within %v", got, frameInterval)
	}
	a, err := m.StopRecording()
	if err != nil {
		t.Fatal(err)
	}
	if m.State().Recording {
		t.Error("state still recording")
	}
	if a.Size == 0 || (a.Duration-2*time.Second).Abs() > frameInterval {
		t.Errorf("artifact = %+v", a)
	}
	if a.Frames < 59 || a.Frames > 61 {
		t.Errorf("frames = %d, want about 60", a.Frames)
	}
	if a, err := m.StopRecording(); err != nil || a != (recorder.Artifact{}) {
		t.Errorf("second stop = %+v, %v", a, err)
	}
}

func TestRecordingUnavailable(t *testing.T) {
	m := newTestMixer(t, newDevice(), WithRecorder(
		recorder.WithEncoder(func(recorder.EncoderConfig) (recorder.Encoder, error) {
			return nil, recorder.ErrUnavailable
		}),
	))
	if err := m.AssignShader(0, paintAsset("a", "red")); err != nil {
		t.Fatal(err)
	}
	if err := m.StartRecording(recorder.High, 30); !errors.Is(err, recorder.ErrUnavailable) {
		t.Fatalf("err = %v", err)
	}
	if m.State().Recording {
		t.Error("recording flagged after failure")
	}
	if got := m.Tick(t0, [4]float32{}).RGBAAt(0, 0); got != red {
		t.Errorf("preview broken after failed recording: %v", got)
	}
}

type fakeChannel struct {
	updates int
	tex     uint32
}

func (c *fakeChannel) Update() { c.updates++ }
func (c *fakeChannel) Channel() renderer.Channel {
	return renderer.Channel{Texture: c.tex, Width: 512, Height: 2}
}

func TestChannelSource(t *testing.T) {
	dev := newDevice()
	ch := &fakeChannel{tex: 99}
	m := newTestMixer(t, dev, WithChannel(1, ch), WithChannel(0, &fakeChannel{tex: 7}))
	if err := m.AssignShader(0, paintAsset("a", "red")); err != nil {
		t.Fatal(err)
	}
	m.Tick(t0, [4]float32{})
	m.Tick(t0.Add(time.Millisecond), [4]float32{})
	if ch.updates != 2 {
		t.Errorf("updates = %d", ch.updates)
	}
	prog := dev.Programs()[0]
	if v, ok := dev.Uniform(prog, "iChannelResolution[1]"); !ok || v != [3]float32{512, 2, 1} {
		t.Errorf("iChannelResolution[1] = %v, %v", v, ok)
	}
	found := false
	for _, tex := range dev.Units {
		if tex == 99 {
			found = true
		}
		if tex == 7 {
			t.Error("channel 0 override was bound")
		}
	}
	if !found {
		t.Error("channel texture never bound")
	}
}

func TestNewFailsWithoutTargets(t *testing.T) {
	dev := newDevice()
	dev.FailTargets = true
	_, err := New(dev, nil)
	var ce *graphics.ContextError
	if !errors.As(err, &ce) {
		t.Fatalf("err = %v, want *graphics.ContextError", err)
	}
	if got := dev.Live(); got != (graphicstest.Counts{}) {
		t.Errorf("leaked %+v", got)
	}
}

func TestInputStats(t *testing.T) {
	m := newTestMixer(t, newDevice())
	if err := m.AssignShader(1, paintAsset("a", "red")); err != nil {
		t.Fatal(err)
	}
	for i := 0; i <= 30; i++ {
		m.Tick(t0.Add(time.Duration(i)*time.Second/30), [4]float32{})
	}

	st, err := m.InputStats(1)
	if err != nil {
		t.Fatal(err)
	}
	if st.Frames != 31 || st.FPS < 29.5 || st.FPS > 30.5 {
		t.Errorf("stats = %d frames at %v fps", st.Frames, st.FPS)
	}
	if d := st.FrameTime - time.Second/30; d.Abs() > time.Microsecond {
		t.Errorf("FrameTime = %v", st.FrameTime)
	}
	if got := st.Uniforms["iResolution"]; got == nil {
		t.Error("missing iResolution in last uniforms")
	}
	if empty, _ := m.InputStats(0); empty.Frames != 0 {
		t.Errorf("empty input stats = %+v", empty)
	}
	if _, err := m.InputStats(NumInputs); !errors.Is(err, ErrInputRange) {
		t.Errorf("err = %v, want ErrInputRange", err)
	}
}

func TestThumbnail(t *testing.T) {
	dev := newDevice()
	m := newTestMixer(t, dev)
	if err := m.AssignShader(0, paintAsset("g", "green")); err != nil {
		t.Fatal(err)
	}
	m.Tick(t0, [4]float32{})
	before := dev.Live()

	img, err := m.Thumbnail("g", 20, 10, time.Second)
	if err != nil {
		t.Fatal(err)
	}
	if got := img.RGBAAt(0, 0); got != green {
		t.Errorf("pixel = %v, want green", got)
	}
	if got := dev.Live(); got != before {
		t.Errorf("live after thumbnail = %+v, want %+v", got, before)
	}
	if st, _ := m.InputStats(0); st.Frames != 1 {
		t.Errorf("thumbnail touched input 0: %+v", st)
	}
	if _, err := m.Thumbnail("missing", 20, 10, 0); err == nil {
		t.Error("unknown asset accepted")
	}
}
