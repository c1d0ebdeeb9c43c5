package effects

import (
	"fmt"
	"strings"
)

// Names of the support uniforms declared next to the per-kind intensities.
const (
	TimeUniform       = "uEffectTime"
	ResolutionUniform = "uEffectResolution"
	InputUniform      = "uEffectInput"
)

// ApplyFunc is the GLSL function the transformer splices around the final
// color write: vec4 applyEffects(vec4 color, vec2 uv, sampler2D tex).
const ApplyFunc = "applyEffects"

const effectFunctions = `
vec2 effectTexel() {
    return 1.0 / max(uEffectResolution, vec2(1.0));
}

vec4 effectBlur(vec2 uv, sampler2D tex, float intensity) {
    float s = intensity * 0.02;
    vec4 sum = vec4(0.0);
    sum += texture(tex, vec2(uv.x - 4.0 * s, uv.y)) * 0.05;
    sum += texture(tex, vec2(uv.x - 3.0 * s, uv.y)) * 0.09;
    sum += texture(tex, vec2(uv.x - 2.0 * s, uv.y)) * 0.12;
    sum += texture(tex, vec2(uv.x - s, uv.y)) * 0.15;
    sum += texture(tex, uv) * 0.16;
    sum += texture(tex, vec2(uv.x + s, uv.y)) * 0.15;
    sum += texture(tex, vec2(uv.x + 2.0 * s, uv.y)) * 0.12;
    sum += texture(tex, vec2(uv.x + 3.0 * s, uv.y)) * 0.09;
    sum += texture(tex, vec2(uv.x + 4.0 * s, uv.y)) * 0.05;
    return sum;
}

vec4 effectSharpen(vec2 uv, sampler2D tex, float intensity) {
    vec2 t = effectTexel();
    vec4 c = texture(tex, uv);
    vec4 n = texture(tex, uv + vec2(0.0, -t.y)) + texture(tex, uv + vec2(0.0, t.y))
           + texture(tex, uv + vec2(-t.x, 0.0)) + texture(tex, uv + vec2(t.x, 0.0));
    return c + (c - n * 0.25) * intensity;
}

vec4 effectNoise(vec2 uv, vec4 color, float intensity, float time) {
    float n = fract(sin(dot(uv + time * 0.01, vec2(12.9898, 78.233))) * 43758.5453);
    return mix(color, vec4(n), intensity);
}

vec4 effectPixelate(vec2 uv, sampler2D tex, float intensity) {
    float cells = intensity * 100.0;
    if (cells <= 1.0) return texture(tex, uv);
    return texture(tex, floor(uv * cells) / cells);
}

vec4 effectEdgeDetection(vec2 uv, sampler2D tex, float intensity) {
    vec2 t = effectTexel();
    vec4 c = texture(tex, uv);
    vec4 ring = texture(tex, uv + vec2(-t.x, -t.y)) + texture(tex, uv + vec2(0.0, -t.y))
              + texture(tex, uv + vec2(t.x, -t.y)) + texture(tex, uv + vec2(-t.x, 0.0))
              + texture(tex, uv + vec2(t.x, 0.0)) + texture(tex, uv + vec2(-t.x, t.y))
              + texture(tex, uv + vec2(0.0, t.y)) + texture(tex, uv + vec2(t.x, t.y));
    vec4 edge = 8.0 * c - ring;
    return mix(c, vec4(edge.rgb, c.a), intensity);
}

vec4 effectBloom(vec2 uv, sampler2D tex, float intensity) {
    vec4 c = texture(tex, uv);
    vec4 b = effectBlur(uv, tex, intensity);
    float lum = dot(c.rgb, vec3(0.299, 0.587, 0.114));
    return c + b * intensity * max(lum - 0.6, 0.0) * 2.0;
}

vec4 effectChromatic(vec2 uv, sampler2D tex, float intensity) {
    float a = intensity * 0.01;
    vec4 c = texture(tex, uv);
    c.r = texture(tex, uv + vec2(a, 0.0)).r;
    c.b = texture(tex, uv - vec2(a, 0.0)).b;
    return c;
}

vec4 effectVignette(vec2 uv, vec4 color, float intensity) {
    float v = smoothstep(0.5, 0.2, length(uv - 0.5) * intensity);
    return vec4(color.rgb * v, color.a);
}

vec4 effectColorShift(vec4 color, float intensity, float time) {
    float a = time * intensity;
    mat3 rot = mat3(
        vec3(cos(a), sin(a), 0.0),
        vec3(-sin(a), cos(a), 0.0),
        vec3(0.0, 0.0, 1.0)
    );
    return vec4(rot * color.rgb, color.a);
}

vec4 effectInvert(vec4 color, float intensity) {
    return mix(color, vec4(1.0 - color.rgb, color.a), intensity);
}

vec4 effectGrayscale(vec4 color, float intensity) {
    float lum = dot(color.rgb, vec3(0.299, 0.587, 0.114));
    return mix(color, vec4(vec3(lum), color.a), intensity);
}

vec4 effectSepia(vec4 color, float intensity) {
    vec3 s = vec3(
        dot(color.rgb, vec3(0.393, 0.769, 0.189)),
        dot(color.rgb, vec3(0.349, 0.686, 0.168)),
        dot(color.rgb, vec3(0.272, 0.534, 0.131))
    );
    return mix(color, vec4(s, color.a), intensity);
}
`

// Per-kind statement inside applyEffects; %s is the intensity uniform.
var applyStatements = [NumKinds]string{
	"r = effectBlur(uv, tex, %s);",
	"r = effectSharpen(uv, tex, %s);",
	"r = effectNoise(uv, r, %s, uEffectTime);",
	"r = effectPixelate(uv, tex, %s);",
	"r = effectEdgeDetection(uv, tex, %s);",
	"r = effectBloom(uv, tex, %s);",
	"r = effectChromatic(uv, tex, %s);",
	"r = effectVignette(uv, r, %s);",
	"r = effectColorShift(r, %s, uEffectTime);",
	"r = effectInvert(r, %s);",
	"r = effectGrayscale(r, %s);",
	"r = effectSepia(r, %s);",
}

// Library returns the GLSL declarations and functions for the effect chain.
// Every intensity uniform is always declared; applyEffects only contains a
// guarded application for the kinds in present, in application order.
func Library(present KindSet) string {
	var b strings.Builder
	b.WriteString("\n// effect chain\n")
	for _, name := range uniformNames {
		fmt.Fprintf(&b, "uniform float %s;\n", name)
	}
	fmt.Fprintf(&b, "uniform float %s;\n", TimeUniform)
	fmt.Fprintf(&b, "uniform vec2  %s;\n", ResolutionUniform)
	fmt.Fprintf(&b, "uniform sampler2D %s;\n", InputUniform)
	b.WriteString(effectFunctions)
	fmt.Fprintf(&b, "\nvec4 %s(vec4 color, vec2 uv, sampler2D tex) {\n    vec4 r = color;\n", ApplyFunc)
	for _, k := range present.Kinds() {
		name := uniformNames[k]
		fmt.Fprintf(&b, "    if (%s > 0.0) ", name)
		fmt.Fprintf(&b, applyStatements[k], name)
		b.WriteString("\n")
	}
	b.WriteString("    return r;\n}\n\n")
	return b.String()
}
