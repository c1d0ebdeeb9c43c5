package effects

// DefaultIntensity is the intensity given to a newly added stage.
const DefaultIntensity = 0.5

// Stage is one effect attached to an input.
type Stage struct {
	Kind      Kind
	Enabled   bool
	Intensity float32
}

// Chain is an immutable list of stages with at most one stage per kind.
// Every mutator returns a new Chain; the receiver is never modified, so a
// Chain can be shared between state snapshots.
type Chain struct {
	stages []Stage
}

// NewChain builds a chain from stages, dropping invalid kinds and later
// duplicates and clamping intensities.
func NewChain(stages ...Stage) Chain {
	var c Chain
	for _, s := range stages {
		if !s.Kind.Valid() || c.Has(s.Kind) {
			continue
		}
		s.Intensity = clamp01(s.Intensity)
		c.stages = append(c.stages, s)
	}
	return c
}

func (c Chain) Len() int { return len(c.stages) }

// Stages returns a copy of the stages in the order they were added.
func (c Chain) Stages() []Stage {
	out := make([]Stage, len(c.stages))
	copy(out, c.stages)
	return out
}

func (c Chain) index(k Kind) int {
	for i, s := range c.stages {
		if s.Kind == k {
			return i
		}
	}
	return -1
}

func (c Chain) Has(k Kind) bool { return c.index(k) >= 0 }

// Stage returns the stage for k, if present.
func (c Chain) Stage(k Kind) (Stage, bool) {
	if i := c.index(k); i >= 0 {
		return c.stages[i], true
	}
	return Stage{}, false
}

// Kinds reports which kinds are present, enabled or not.
func (c Chain) Kinds() KindSet {
	var set KindSet
	for _, s := range c.stages {
		set = set.With(s.Kind)
	}
	return set
}

func (c Chain) with(stages []Stage) Chain { return Chain{stages: stages} }

// Add appends an enabled stage of kind k at DefaultIntensity. Adding a kind
// that is already present returns c unchanged.
func (c Chain) Add(k Kind) Chain {
	if !k.Valid() || c.Has(k) {
		return c
	}
	stages := make([]Stage, len(c.stages), len(c.stages)+1)
	copy(stages, c.stages)
	return c.with(append(stages, Stage{Kind: k, Enabled: true, Intensity: DefaultIntensity}))
}

func (c Chain) Remove(k Kind) Chain {
	i := c.index(k)
	if i < 0 {
		return c
	}
	stages := make([]Stage, 0, len(c.stages)-1)
	stages = append(stages, c.stages[:i]...)
	stages = append(stages, c.stages[i+1:]...)
	return c.with(stages)
}

func (c Chain) update(k Kind, f func(*Stage)) Chain {
	i := c.index(k)
	if i < 0 {
		return c
	}
	stages := c.Stages()
	f(&stages[i])
	return c.with(stages)
}

// SetIntensity sets the intensity of the k stage, clamped to [0,1].
func (c Chain) SetIntensity(k Kind, v float32) Chain {
	return c.update(k, func(s *Stage) { s.Intensity = clamp01(v) })
}

// Toggle flips the enabled flag of the k stage.
func (c Chain) Toggle(k Kind) Chain {
	return c.update(k, func(s *Stage) { s.Enabled = !s.Enabled })
}

// Materialize computes the value of every effect uniform. A kind contributes
// its intensity only when its stage exists and is enabled and effectsEnabled
// is set; every other kind is exactly zero.
func (c Chain) Materialize(effectsEnabled bool) Uniforms {
	var u Uniforms
	if !effectsEnabled {
		return u
	}
	for _, s := range c.stages {
		if s.Enabled {
			u[s.Kind] = s.Intensity
		}
	}
	return u
}

// Uniforms holds one value per kind, indexed by Kind.
type Uniforms [NumKinds]float32

// Apply writes every effect uniform into dst under its uniform name.
func (u Uniforms) Apply(dst map[string]any) {
	for i, v := range u {
		dst[uniformNames[i]] = v
	}
}

func clamp01(v float32) float32 {
	switch {
	case v != v: // NaN
		return 0
	case v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}
