package library

import (
	"embed"
	"fmt"

	"github.com/richinsley/goshadermixer/shader"
)

//go:embed builtin/*.glsl
var builtinFS embed.FS

var builtinMeta = []struct {
	file, name, category, description string
}{
	{"plasma-wave", "Plasma Wave", "abstract", "Colorful plasma waves with dynamic movement"},
	{"fractal-noise", "Fractal Noise", "fractal", "Procedural fractal noise patterns"},
	{"fire", "Fire Effect", "elements", "Realistic fire simulation"},
	{"ocean-waves", "Ocean Waves", "elements", "Realistic ocean wave simulation"},
	{"starfield", "Starfield", "space", "Dynamic star field with parallax effect"},
	{"audio-visualizer", "Audio Visualizer", "audio", "Audio reactive visualization"},
	{"geometric-patterns", "Geometric Patterns", "geometric", "Animated geometric patterns"},
	{"neon-glow", "Neon Glow", "effects", "Glowing neon effect with bloom"},
}

// Builtins returns the sample assets, with IDs shader1 through shader8.
func Builtins() []Asset {
	out := make([]Asset, 0, len(builtinMeta))
	for i, m := range builtinMeta {
		src, err := builtinFS.ReadFile("builtin/" + m.file + ".glsl")
		if err != nil {
			panic(fmt.Sprintf("library: missing builtin %s: %v", m.file, err))
		}
		out = append(out, Asset{
			ID:          fmt.Sprintf("shader%d", i+1),
			Name:        m.name,
			Category:    m.category,
			Description: m.description,
			Source:      string(src),
			Provenance:  shader.DetectProvenance(string(src)),
		})
	}
	return out
}
