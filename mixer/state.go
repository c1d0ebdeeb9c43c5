package mixer

import (
	"strings"
	"time"

	"github.com/richinsley/goshadermixer/compositor"
	"github.com/richinsley/goshadermixer/effects"
	"github.com/richinsley/goshadermixer/recorder"
)

// NumInputs is the fixed number of mixer inputs.
const NumInputs = compositor.NumLayers

// Input is one mixer channel. AssetID is a weak reference into the library;
// "" means the input is empty.
type Input struct {
	AssetID        string
	Opacity        float64
	Blend          compositor.BlendMode
	Effects        effects.Chain
	EffectsEnabled bool
}

// Empty reports whether no asset is assigned.
func (in Input) Empty() bool { return in.AssetID == "" }

// Transition names accepted by SetTransition. Transitions are recorded in
// the state for hosts that animate layout changes; the compositor itself
// switches immediately.
var Transitions = []string{"cut", "crossfade", "wipe", "dissolve", "zoom", "slide"}

// Output formats accepted by SetOutput. Recordings are always WebM/VP9;
// the format is kept for hosts that transcode afterwards.
var OutputFormats = []string{"mp4", "webm", "gif", "mov"}

const (
	MinTransitionDuration = 100 * time.Millisecond
	MaxTransitionDuration = 5 * time.Second
)

// State is an immutable snapshot of the mixer. Every mutation produces a new
// snapshot with a higher Version.
type State struct {
	Version            uint64
	Inputs             [NumInputs]Input
	ActiveInput        int
	Layout             compositor.Layout
	TransitionType     string
	TransitionDuration time.Duration
	OutputFormat       string
	OutputQuality      recorder.Quality
	OutputFPS          int
	Playing            bool
	Recording          bool
}

// DefaultState is the state of a new mixer: four empty, fully opaque inputs
// in the quad layout, playing.
func DefaultState() State {
	s := State{
		ActiveInput:        0,
		Layout:             compositor.Quad,
		TransitionType:     "crossfade",
		TransitionDuration: time.Second,
		OutputFormat:       "mp4",
		OutputQuality:      recorder.High,
		OutputFPS:          recorder.DefaultFPS,
		Playing:            true,
	}
	for i := range s.Inputs {
		s.Inputs[i] = Input{Opacity: 1, Blend: compositor.Normal, EffectsEnabled: true}
	}
	return s
}

func oneOf(v string, set []string) (string, bool) {
	v = strings.ToLower(strings.TrimSpace(v))
	for _, s := range set {
		if s == v {
			return s, true
		}
	}
	return "", false
}
