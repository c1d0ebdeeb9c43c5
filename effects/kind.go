// Package effects models the per-input post-processing chain: twelve fixed
// effect kinds, the stages a user attaches to an input, and the uniform
// values and GLSL library the injected shader code consumes.
package effects

import (
	"fmt"
	"strings"
)

// Kind identifies one of the fixed effects. The numeric order is the order
// the effects are applied in the shader, regardless of the order a user
// added them.
type Kind int

const (
	Blur Kind = iota
	Sharpen
	Noise
	Pixelate
	EdgeDetection
	Bloom
	ChromaticAberration
	Vignette
	ColorShift
	Invert
	Grayscale
	Sepia

	NumKinds = int(Sepia) + 1
)

var kindNames = [NumKinds]string{
	"blur",
	"sharpen",
	"noise",
	"pixelate",
	"edge-detection",
	"bloom",
	"chromatic-aberration",
	"vignette",
	"color-shift",
	"invert",
	"grayscale",
	"sepia",
}

var uniformNames = [NumKinds]string{
	"uEffectBlur",
	"uEffectSharpen",
	"uEffectNoise",
	"uEffectPixelate",
	"uEffectEdgeDetection",
	"uEffectBloom",
	"uEffectChromatic",
	"uEffectVignette",
	"uEffectColorShift",
	"uEffectInvert",
	"uEffectGrayscale",
	"uEffectSepia",
}

// AllKinds lists every kind in application order.
func AllKinds() []Kind {
	kinds := make([]Kind, NumKinds)
	for i := range kinds {
		kinds[i] = Kind(i)
	}
	return kinds
}

func (k Kind) Valid() bool { return k >= 0 && int(k) < NumKinds }

func (k Kind) String() string {
	if !k.Valid() {
		return fmt.Sprintf("Kind(%d)", int(k))
	}
	return kindNames[k]
}

// UniformName is the float uniform the shader reads this effect's intensity from.
func (k Kind) UniformName() string {
	if !k.Valid() {
		return ""
	}
	return uniformNames[k]
}

// ParseKind resolves an effect name such as "edge-detection". Matching is
// case-insensitive and accepts underscores in place of dashes.
func ParseKind(name string) (Kind, error) {
	n := strings.ReplaceAll(strings.ToLower(strings.TrimSpace(name)), "_", "-")
	for i, kn := range kindNames {
		if kn == n {
			return Kind(i), nil
		}
	}
	return 0, fmt.Errorf("unknown effect %q", name)
}

// KindSet is a bitmask of effect kinds. It is the part of a chain that the
// generated shader source depends on.
type KindSet uint16

func (s KindSet) Has(k Kind) bool { return k.Valid() && s&(1<<uint(k)) != 0 }

func (s KindSet) With(k Kind) KindSet {
	if !k.Valid() {
		return s
	}
	return s | 1<<uint(k)
}

// Kinds returns the members in application order.
func (s KindSet) Kinds() []Kind {
	var kinds []Kind
	for i := 0; i < NumKinds; i++ {
		if s.Has(Kind(i)) {
			kinds = append(kinds, Kind(i))
		}
	}
	return kinds
}
