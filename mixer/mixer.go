// Package mixer is the facade over the shader mixing pipeline. It owns the
// versioned mixer state, one render surface per input, the compositor, and
// the recorder, and drives them from a single Tick per display refresh.
package mixer

import (
	"errors"
	"fmt"
	"image"
	"time"

	"github.com/richinsley/goshadermixer/compositor"
	"github.com/richinsley/goshadermixer/effects"
	"github.com/richinsley/goshadermixer/graphics"
	"github.com/richinsley/goshadermixer/library"
	"github.com/richinsley/goshadermixer/logging"
	"github.com/richinsley/goshadermixer/recorder"
	"github.com/richinsley/goshadermixer/renderer"
	"github.com/richinsley/goshadermixer/shader"
)

// Output canvas size used when no WithSize option is given.
const (
	DefaultWidth  = 1280
	DefaultHeight = 720
)

// ErrInputRange is returned for input indices outside [0, NumInputs).
var ErrInputRange = errors.New("input index out of range")

// ChannelSource feeds an extra texture to every surface, such as the
// microphone spectrum. Update runs once per tick before any surface renders.
type ChannelSource interface {
	Update()
	Channel() renderer.Channel
}

// Option configures a Mixer.
type Option func(*config)

type config struct {
	width, height   int
	surfW, surfH    int
	recorderOptions []recorder.Option
	channels        [shader.NumChannels]ChannelSource
}

// WithSize sets the output canvas size.
func WithSize(w, h int) Option {
	return func(c *config) { c.width, c.height = w, h }
}

// WithSurfaceSize sets the size each input renders at. It defaults to the
// output size.
func WithSurfaceSize(w, h int) Option {
	return func(c *config) { c.surfW, c.surfH = w, h }
}

// WithRecorder passes options to the recorder.
func WithRecorder(opts ...recorder.Option) Option {
	return func(c *config) { c.recorderOptions = append(c.recorderOptions, opts...) }
}

// WithChannel binds src to iChannel n for every input. n must be 1, 2 or 3;
// channel 0 is always the input's previous frame.
func WithChannel(n int, src ChannelSource) Option {
	return func(c *config) {
		if n > 0 && n < shader.NumChannels {
			c.channels[n] = src
		}
	}
}

// slot tracks what an input's surface was last loaded with.
type slot struct {
	surface *renderer.Surface
	assetID string
	source  string
	kinds   effects.KindSet
	dirty   bool
}

func (s *slot) loaded() bool { return s.assetID != "" }

// Mixer is not safe for concurrent use; every method, Tick included, must be
// called from the goroutine that owns the graphics device.
type Mixer struct {
	dev      graphics.Device
	lib      *library.Library
	comp     *compositor.Compositor
	rec      *recorder.Recorder
	channels [shader.NumChannels]ChannelSource
	state    State
	slots    [NumInputs]slot
	closed   bool
}

// New creates a mixer with four empty inputs.
func New(dev graphics.Device, lib *library.Library, opts ...Option) (*Mixer, error) {
	cfg := config{width: DefaultWidth, height: DefaultHeight}
	for _, o := range opts {
		o(&cfg)
	}
	if cfg.surfW == 0 || cfg.surfH == 0 {
		cfg.surfW, cfg.surfH = cfg.width, cfg.height
	}
	if lib == nil {
		lib = library.New()
	}

	m := &Mixer{
		dev:      dev,
		lib:      lib,
		comp:     compositor.New(cfg.width, cfg.height),
		rec:      recorder.New(cfg.width, cfg.height, cfg.recorderOptions...),
		channels: cfg.channels,
		state:    DefaultState(),
	}
	for i := range m.slots {
		s, err := renderer.NewSurface(dev, cfg.surfW, cfg.surfH)
		if err != nil {
			m.releaseSurfaces()
			return nil, fmt.Errorf("input %d: %w", i, err)
		}
		m.slots[i].surface = s
	}
	logging.Logger().Info("mixer ready", "width", cfg.width, "height", cfg.height, "surface", fmt.Sprintf("%dx%d", cfg.surfW, cfg.surfH))
	return m, nil
}

// Library returns the asset library the mixer resolves inputs against.
func (m *Mixer) Library() *library.Library { return m.lib }

// State returns the current snapshot.
func (m *Mixer) State() State { return m.state }

// Size returns the output canvas size.
func (m *Mixer) Size() (int, int) { return m.comp.Size() }

func (m *Mixer) commit(next State) {
	next.Version = m.state.Version + 1
	m.state = next
}

func checkInput(i int) error {
	if i < 0 || i >= NumInputs {
		return fmt.Errorf("input %d: %w", i, ErrInputRange)
	}
	return nil
}

// updateInput applies f to a copy of input i and commits the result.
func (m *Mixer) updateInput(i int, f func(*Input) error) error {
	if err := checkInput(i); err != nil {
		return err
	}
	next := m.state
	if err := f(&next.Inputs[i]); err != nil {
		return err
	}
	m.commit(next)
	return nil
}

// AssignShader points input i at asset and recompiles it before the next
// frame. Assets not yet in the library are added to it first.
func (m *Mixer) AssignShader(i int, asset library.Asset) error {
	if err := checkInput(i); err != nil {
		return err
	}
	if _, ok := m.lib.Get(asset.ID); !ok || asset.ID == "" {
		asset = m.lib.Add(asset)
	}
	m.slots[i].dirty = true
	return m.updateInput(i, func(in *Input) error {
		in.AssetID = asset.ID
		return nil
	})
}

// AssignShaderID assigns a library asset by ID.
func (m *Mixer) AssignShaderID(i int, id string) error {
	a, ok := m.lib.Get(id)
	if !ok {
		return fmt.Errorf("unknown shader %q", id)
	}
	return m.AssignShader(i, a)
}

// ClearInput empties input i.
func (m *Mixer) ClearInput(i int) error {
	return m.updateInput(i, func(in *Input) error {
		in.AssetID = ""
		return nil
	})
}

// RemoveAsset deletes an asset from the library. Inputs that reference it
// become empty.
func (m *Mixer) RemoveAsset(id string) bool {
	if !m.lib.Remove(id) {
		return false
	}
	next := m.state
	changed := false
	for i := range next.Inputs {
		if next.Inputs[i].AssetID == id {
			next.Inputs[i].AssetID = ""
			changed = true
		}
	}
	if changed {
		m.commit(next)
	}
	return true
}

// Property names an input property settable through SetInputProperty.
type Property string

const (
	PropOpacity        Property = "opacity"
	PropBlendMode      Property = "blendMode"
	PropEffectsEnabled Property = "effectsEnabled"
)

// SetInputProperty sets opacity (a number, clamped to [0,1]), blendMode (a
// BlendMode or a name; unknown names mean normal) or effectsEnabled (bool).
func (m *Mixer) SetInputProperty(i int, prop Property, value any) error {
	return m.updateInput(i, func(in *Input) error {
		switch prop {
		case PropOpacity:
			v, ok := toFloat(value)
			if !ok {
				return fmt.Errorf("opacity: want a number, got %T", value)
			}
			in.Opacity = clamp01(v)
		case PropBlendMode:
			switch v := value.(type) {
			case compositor.BlendMode:
				in.Blend = compositor.ParseBlendMode(v.String())
			case string:
				in.Blend = compositor.ParseBlendMode(v)
			default:
				return fmt.Errorf("blendMode: want a name, got %T", value)
			}
		case PropEffectsEnabled:
			v, ok := value.(bool)
			if !ok {
				return fmt.Errorf("effectsEnabled: want a bool, got %T", value)
			}
			in.EffectsEnabled = v
		default:
			return fmt.Errorf("unknown input property %q", prop)
		}
		return nil
	})
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	}
	return 0, false
}

func clamp01(v float64) float64 {
	switch {
	case v != v || v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}

func (m *Mixer) updateEffects(i int, k effects.Kind, f func(effects.Chain) effects.Chain) error {
	if !k.Valid() {
		return fmt.Errorf("unknown effect kind %d", int(k))
	}
	return m.updateInput(i, func(in *Input) error {
		in.Effects = f(in.Effects)
		return nil
	})
}

// AddEffect appends an enabled stage of kind k. Adding a kind already in
// the chain does nothing.
func (m *Mixer) AddEffect(i int, k effects.Kind) error {
	return m.updateEffects(i, k, func(c effects.Chain) effects.Chain { return c.Add(k) })
}

// RemoveEffect drops the stage of kind k.
func (m *Mixer) RemoveEffect(i int, k effects.Kind) error {
	return m.updateEffects(i, k, func(c effects.Chain) effects.Chain { return c.Remove(k) })
}

// SetEffectIntensity sets the intensity of kind k, clamped to [0,1].
func (m *Mixer) SetEffectIntensity(i int, k effects.Kind, v float32) error {
	return m.updateEffects(i, k, func(c effects.Chain) effects.Chain { return c.SetIntensity(k, v) })
}

// ToggleEffect flips the enabled flag of kind k.
func (m *Mixer) ToggleEffect(i int, k effects.Kind) error {
	return m.updateEffects(i, k, func(c effects.Chain) effects.Chain { return c.Toggle(k) })
}

// SetLayout selects the output layout.
func (m *Mixer) SetLayout(l compositor.Layout) {
	next := m.state
	next.Layout = l
	m.commit(next)
}

// SetActiveInput selects the input shown in the single layout.
func (m *Mixer) SetActiveInput(i int) error {
	if err := checkInput(i); err != nil {
		return err
	}
	next := m.state
	next.ActiveInput = i
	m.commit(next)
	return nil
}

// SetPlaying pauses or resumes every input's clock.
func (m *Mixer) SetPlaying(playing bool) {
	next := m.state
	next.Playing = playing
	m.commit(next)
}

// SetTransition records the transition type and duration. The duration is
// clamped to [MinTransitionDuration, MaxTransitionDuration].
func (m *Mixer) SetTransition(kind string, d time.Duration) error {
	t, ok := oneOf(kind, Transitions)
	if !ok {
		return fmt.Errorf("unknown transition %q", kind)
	}
	next := m.state
	next.TransitionType = t
	next.TransitionDuration = min(max(d, MinTransitionDuration), MaxTransitionDuration)
	m.commit(next)
	return nil
}

// SetOutput records the output format, quality and frame rate used by the
// next recording.
func (m *Mixer) SetOutput(format string, q recorder.Quality, fps int) error {
	f, ok := oneOf(format, OutputFormats)
	if !ok {
		return fmt.Errorf("unknown output format %q", format)
	}
	next := m.state
	next.OutputFormat = f
	next.OutputQuality = q
	next.OutputFPS = recorder.ClampFPS(fps)
	m.commit(next)
	return nil
}

// ToggleInputVisibility switches input i between opacity 0 and 1.
func (m *Mixer) ToggleInputVisibility(i int) error {
	return m.updateInput(i, func(in *Input) error {
		if in.Opacity > 0 {
			in.Opacity = 0
		} else {
			in.Opacity = 1
		}
		return nil
	})
}

// SwitchToInput makes input i visible, activates it and selects the single
// layout.
func (m *Mixer) SwitchToInput(i int) error {
	if err := checkInput(i); err != nil {
		return err
	}
	next := m.state
	if next.Inputs[i].Opacity == 0 {
		next.Inputs[i].Opacity = 1
	}
	next.ActiveInput = i
	next.Layout = compositor.Single
	m.commit(next)
	return nil
}

// EnableBlending selects the stack layout and makes the active input
// visible.
func (m *Mixer) EnableBlending() {
	next := m.state
	if a := next.ActiveInput; a >= 0 && a < NumInputs && next.Inputs[a].Opacity == 0 {
		next.Inputs[a].Opacity = 1
	}
	next.Layout = compositor.Stack
	m.commit(next)
}

// StartRecording begins capturing the output. It does nothing while a
// recording is active. A recorder that cannot start returns an error
// wrapping recorder.ErrUnavailable and leaves preview running.
func (m *Mixer) StartRecording(q recorder.Quality, fps int) error {
	if m.rec.Active() {
		return nil
	}
	if err := m.rec.Start(fps, q); err != nil {
		return err
	}
	next := m.state
	next.OutputQuality = q
	next.OutputFPS = recorder.ClampFPS(fps)
	next.Recording = true
	m.commit(next)
	return nil
}

// StopRecording finishes the active recording. It returns a zero Artifact
// when nothing is being recorded.
func (m *Mixer) StopRecording() (recorder.Artifact, error) {
	if !m.rec.Active() {
		return recorder.Artifact{}, nil
	}
	a, err := m.rec.Stop()
	next := m.state
	next.Recording = false
	m.commit(next)
	return a, err
}

// RecordingElapsed is the wall-clock length of the active recording.
func (m *Mixer) RecordingElapsed() time.Duration { return m.rec.Elapsed() }

// InputError returns the compile or transform error of input i, if its
// current asset failed to load.
func (m *Mixer) InputError(i int) error {
	if checkInput(i) != nil {
		return nil
	}
	return m.slots[i].surface.Err()
}

// InputSource returns the transformed source of input i's current program,
// or the raw source if transformation failed.
func (m *Mixer) InputSource(i int) string {
	if checkInput(i) != nil {
		return ""
	}
	return m.slots[i].surface.Source()
}

// InputStats returns the rendering statistics of input i's program.
func (m *Mixer) InputStats(i int) (renderer.Stats, error) {
	if err := checkInput(i); err != nil {
		return renderer.Stats{}, err
	}
	return m.slots[i].surface.Stats(), nil
}

// Thumbnail renders library asset id at shader time at into a w x h image,
// outside any input.
func (m *Mixer) Thumbnail(id string, w, h int, at time.Duration) (*image.RGBA, error) {
	a, ok := m.lib.Get(id)
	if !ok {
		return nil, fmt.Errorf("unknown shader %q", id)
	}
	return renderer.Thumbnail(m.dev, a, w, h, at)
}

// Tick runs one frame at now: channel sources update, every input is
// reconciled with the state and rendered, the compositor draws the output,
// and the recorder samples it. pointer is x, y, clickX, clickY in output
// pixels. The returned image is reused by the next Tick.
func (m *Mixer) Tick(now time.Time, pointer [4]float32) *image.RGBA {
	st := m.state

	var chans [shader.NumChannels]renderer.Channel
	for n, src := range m.channels {
		if src == nil {
			continue
		}
		src.Update()
		chans[n] = src.Channel()
	}

	var layers [NumInputs]compositor.Layer
	for i := range m.slots {
		in := st.Inputs[i]
		m.reconcile(i, in)
		sl := &m.slots[i]
		sl.surface.Render(now, renderer.TickInput{
			Playing:  st.Playing,
			Pointer:  pointer,
			Effects:  in.Effects.Materialize(in.EffectsEnabled),
			Channels: chans,
		})
		layers[i] = compositor.Layer{
			Frame:    sl.surface.Frame(),
			Opacity:  in.Opacity,
			Blend:    in.Blend,
			Assigned: sl.loaded(),
		}
	}

	out := m.comp.Compose(st.Layout, layers, st.ActiveInput)
	if m.rec.Active() {
		m.rec.Sample(out)
	}
	return out
}

// reconcile brings input i's surface in line with in. A different asset,
// changed asset source, changed effect membership or an explicit reassign
// recompiles; intensity and enable changes are uniforms only.
func (m *Mixer) reconcile(i int, in Input) {
	sl := &m.slots[i]
	a, ok := m.lib.Get(in.AssetID)
	if in.Empty() || !ok {
		if sl.loaded() {
			sl.surface.Unload()
			logging.Logger().Debug("input cleared", "input", i, "asset", sl.assetID)
		}
		sl.assetID, sl.source, sl.kinds, sl.dirty = "", "", 0, false
		return
	}

	kinds := in.Effects.Kinds()
	if !sl.dirty && sl.assetID == a.ID && sl.source == a.Source && sl.kinds == kinds {
		return
	}
	sl.assetID, sl.source, sl.kinds, sl.dirty = a.ID, a.Source, kinds, false

	if err := sl.surface.Load(a.Source, a.Provenance, kinds); err != nil {
		logging.Logger().Warn("input shader failed", "input", i, "asset", a.ID, "err", err, "source", sl.surface.Source())
		return
	}
	logging.Logger().Info("input shader loaded", "input", i, "asset", a.ID, "effects", len(kinds.Kinds()))
}

func (m *Mixer) releaseSurfaces() {
	for i := range m.slots {
		if s := m.slots[i].surface; s != nil {
			s.Release()
			m.slots[i] = slot{}
		}
	}
}

// Close stops any recording and releases every GPU object the mixer owns.
// The mixer must not be used afterwards.
func (m *Mixer) Close() error {
	if m.closed {
		return nil
	}
	m.closed = true
	var err error
	if m.rec.Active() {
		_, err = m.StopRecording()
	}
	m.releaseSurfaces()
	return err
}
