package options

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/richinsley/goshadermixer/compositor"
	"github.com/richinsley/goshadermixer/effects"
	"github.com/richinsley/goshadermixer/library"
	"github.com/richinsley/goshadermixer/logging"
	"github.com/richinsley/goshadermixer/mixer"
	"github.com/richinsley/goshadermixer/recorder"
)

// Session is the startup state of a mix. Input slots are numbered from 1.
//
//	layout = "stack"
//	active = 1
//
//	[output]
//	quality = "high"
//	fps = 30
//
//	[[input]]
//	slot = 1
//	shader = "shader3"
//	blend = "screen"
//	opacity = 0.8
//
//	  [[input.effect]]
//	  kind = "bloom"
//	  intensity = 0.6
type Session struct {
	Layout     string        `toml:"layout"`
	Active     int           `toml:"active"`
	Paused     bool          `toml:"paused"`
	Output     OutputConfig  `toml:"output"`
	Transition Transition    `toml:"transition"`
	Inputs     []InputConfig `toml:"input"`
}

type OutputConfig struct {
	Format  string `toml:"format"`
	Quality string `toml:"quality"`
	FPS     int    `toml:"fps"`
}

type Transition struct {
	Type     string `toml:"type"`
	Duration string `toml:"duration"`
}

// InputConfig assigns one slot. Shader names a library asset; File is a
// shader file or bundle imported at load time and takes precedence.
type InputConfig struct {
	Slot           int            `toml:"slot"`
	Shader         string         `toml:"shader"`
	File           string         `toml:"file"`
	Opacity        *float64       `toml:"opacity"`
	Blend          string         `toml:"blend"`
	EffectsEnabled *bool          `toml:"effects_enabled"`
	Effects        []EffectConfig `toml:"effect"`
}

type EffectConfig struct {
	Kind      string   `toml:"kind"`
	Intensity *float32 `toml:"intensity"`
	Enabled   *bool    `toml:"enabled"`
}

// LoadSession reads a session file. Relative input file paths are resolved
// against the session's directory.
func LoadSession(path string) (*Session, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	s, err := ParseSession(string(data))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	dir := filepath.Dir(path)
	for i := range s.Inputs {
		if f := s.Inputs[i].File; f != "" && !filepath.IsAbs(f) {
			s.Inputs[i].File = filepath.Join(dir, f)
		}
	}
	return s, nil
}

// ParseSession decodes and validates a session document. Unknown keys are
// rejected.
func ParseSession(doc string) (*Session, error) {
	var s Session
	md, err := toml.Decode(doc, &s)
	if err != nil {
		return nil, err
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return nil, fmt.Errorf("unknown session keys: %s", strings.Join(keys, ", "))
	}
	if err := s.validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

func (s *Session) validate() error {
	var errs []error
	if s.Layout != "" {
		if _, ok := compositor.ParseLayout(s.Layout); !ok {
			errs = append(errs, fmt.Errorf("layout %q", s.Layout))
		}
	}
	if s.Active != 0 && (s.Active < 1 || s.Active > mixer.NumInputs) {
		errs = append(errs, fmt.Errorf("active input %d out of range 1-%d", s.Active, mixer.NumInputs))
	}
	if s.Output.Quality != "" {
		if _, ok := recorder.ParseQuality(s.Output.Quality); !ok {
			errs = append(errs, fmt.Errorf("output quality %q", s.Output.Quality))
		}
	}
	if s.Transition.Duration != "" {
		if _, err := time.ParseDuration(s.Transition.Duration); err != nil {
			errs = append(errs, fmt.Errorf("transition duration: %w", err))
		}
	}
	seen := make(map[int]bool)
	for _, in := range s.Inputs {
		if in.Slot < 1 || in.Slot > mixer.NumInputs {
			errs = append(errs, fmt.Errorf("input slot %d out of range 1-%d", in.Slot, mixer.NumInputs))
			continue
		}
		if seen[in.Slot] {
			errs = append(errs, fmt.Errorf("input slot %d assigned twice", in.Slot))
		}
		seen[in.Slot] = true
		for _, e := range in.Effects {
			if _, err := effects.ParseKind(e.Kind); err != nil {
				errs = append(errs, fmt.Errorf("input %d: %w", in.Slot, err))
			}
		}
	}
	return errors.Join(errs...)
}

// setSource points slot at a library ID or, when src names an existing
// file, at that file.
func (s *Session) setSource(slot int, src string) {
	idx := -1
	for i := range s.Inputs {
		if s.Inputs[i].Slot == slot {
			idx = i
		}
	}
	if idx < 0 {
		s.Inputs = append(s.Inputs, InputConfig{Slot: slot})
		idx = len(s.Inputs) - 1
	}
	in := &s.Inputs[idx]
	if _, err := os.Stat(src); err == nil {
		in.File, in.Shader = src, ""
	} else {
		in.Shader, in.File = src, ""
	}
}

// Apply assigns the session to m. A slot whose shader cannot be found or
// imported is left empty and reported; the rest of the session still
// applies.
func (s *Session) Apply(m *mixer.Mixer) error {
	var errs []error
	lib := m.Library()
	for _, in := range s.Inputs {
		i := in.Slot - 1
		var asset library.Asset
		switch {
		case in.File != "":
			a, err := lib.ImportFile(in.File)
			if err != nil {
				errs = append(errs, fmt.Errorf("input %d: %w", in.Slot, err))
				continue
			}
			asset = a
		case in.Shader != "":
			a, ok := lib.Get(in.Shader)
			if !ok {
				errs = append(errs, fmt.Errorf("input %d: unknown shader %q", in.Slot, in.Shader))
				continue
			}
			asset = a
		default:
			continue
		}
		if err := m.AssignShader(i, asset); err != nil {
			errs = append(errs, err)
			continue
		}
		if in.Opacity != nil {
			m.SetInputProperty(i, mixer.PropOpacity, *in.Opacity)
		}
		if in.Blend != "" {
			m.SetInputProperty(i, mixer.PropBlendMode, in.Blend)
		}
		if in.EffectsEnabled != nil {
			m.SetInputProperty(i, mixer.PropEffectsEnabled, *in.EffectsEnabled)
		}
		for _, e := range in.Effects {
			k, _ := effects.ParseKind(e.Kind)
			m.AddEffect(i, k)
			if e.Intensity != nil {
				m.SetEffectIntensity(i, k, *e.Intensity)
			}
			if e.Enabled != nil && !*e.Enabled {
				m.ToggleEffect(i, k)
			}
		}
		logging.Logger().Info("session input assigned", "input", in.Slot, "asset", asset.ID, "name", asset.Name)
	}

	if s.Layout != "" {
		l, _ := compositor.ParseLayout(s.Layout)
		m.SetLayout(l)
	}
	if s.Active != 0 {
		m.SetActiveInput(s.Active - 1)
	}
	if s.Paused {
		m.SetPlaying(false)
	}
	if s.Transition.Type != "" || s.Transition.Duration != "" {
		st := m.State()
		kind, d := st.TransitionType, st.TransitionDuration
		if s.Transition.Type != "" {
			kind = s.Transition.Type
		}
		if s.Transition.Duration != "" {
			d, _ = time.ParseDuration(s.Transition.Duration)
		}
		if err := m.SetTransition(kind, d); err != nil {
			errs = append(errs, err)
		}
	}
	if s.Output.Format != "" || s.Output.Quality != "" || s.Output.FPS != 0 {
		st := m.State()
		format, q, fps := st.OutputFormat, st.OutputQuality, st.OutputFPS
		if s.Output.Format != "" {
			format = s.Output.Format
		}
		if s.Output.Quality != "" {
			q, _ = recorder.ParseQuality(s.Output.Quality)
		}
		if s.Output.FPS != 0 {
			fps = s.Output.FPS
		}
		if err := m.SetOutput(format, q, fps); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
