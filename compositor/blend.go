package compositor

import (
	"math"
	"strings"
)

// BlendMode is the operator used when a layer is drawn over the result so
// far. The separable modes follow W3C Compositing and Blending Level 1.
type BlendMode int

const (
	Normal BlendMode = iota // source-over
	Multiply
	Screen
	Overlay
	Darken
	Lighten
	ColorDodge
	ColorBurn
	HardLight
	SoftLight
	Difference
	Exclusion

	numBlendModes
)

var blendNames = [numBlendModes]string{
	"normal",
	"multiply",
	"screen",
	"overlay",
	"darken",
	"lighten",
	"color-dodge",
	"color-burn",
	"hard-light",
	"soft-light",
	"difference",
	"exclusion",
}

func (m BlendMode) String() string {
	if m < 0 || m >= numBlendModes {
		return blendNames[Normal]
	}
	return blendNames[m]
}

// BlendModes lists every mode.
func BlendModes() []BlendMode {
	modes := make([]BlendMode, numBlendModes)
	for i := range modes {
		modes[i] = BlendMode(i)
	}
	return modes
}

// ParseBlendMode resolves a mode name. Unknown names resolve to Normal.
func ParseBlendMode(name string) BlendMode {
	n := strings.ToLower(strings.TrimSpace(name))
	if n == "source-over" {
		return Normal
	}
	for i, bn := range blendNames {
		if bn == n {
			return BlendMode(i)
		}
	}
	return Normal
}

// blendFunc is B(Cb, Cs) on unpremultiplied channels in [0,1].
type blendFunc func(cb, cs float64) float64

var blendFuncs = [numBlendModes]blendFunc{
	Multiply:   func(cb, cs float64) float64 { return cb * cs },
	Screen:     screen,
	Overlay:    func(cb, cs float64) float64 { return hardLight(cs, cb) },
	Darken:     math.Min,
	Lighten:    math.Max,
	ColorDodge: colorDodge,
	ColorBurn:  colorBurn,
	HardLight:  hardLight,
	SoftLight:  softLight,
	Difference: func(cb, cs float64) float64 { return math.Abs(cb - cs) },
	Exclusion:  func(cb, cs float64) float64 { return cb + cs - 2*cb*cs },
}

func screen(cb, cs float64) float64 { return cb + cs - cb*cs }

func hardLight(cb, cs float64) float64 {
	if cs <= 0.5 {
		return cb * 2 * cs
	}
	return screen(cb, 2*cs-1)
}

func colorDodge(cb, cs float64) float64 {
	switch {
	case cb == 0:
		return 0
	case cs >= 1:
		return 1
	}
	return math.Min(1, cb/(1-cs))
}

func colorBurn(cb, cs float64) float64 {
	switch {
	case cb >= 1:
		return 1
	case cs == 0:
		return 0
	}
	return 1 - math.Min(1, (1-cb)/cs)
}

func softLight(cb, cs float64) float64 {
	if cs <= 0.5 {
		return cb - (1-2*cs)*cb*(1-cb)
	}
	var d float64
	if cb <= 0.25 {
		d = ((16*cb-12)*cb + 4) * cb
	} else {
		d = math.Sqrt(cb)
	}
	return cb + (2*cs-1)*(d-cb)
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
