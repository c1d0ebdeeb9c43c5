package shader

import (
	"errors"
	"strings"
	"testing"

	"github.com/richinsley/goshadermixer/effects"
)

const plasma = `
void mainImage( out vec4 fragColor, in vec2 fragCoord )
{
  vec2 uv = fragCoord/iResolution.xy;
  vec3 col = 0.5 + 0.5*cos(iTime+uv.xyx+vec3(0,2,4));
  fragColor = vec4(col,1.0);
}
`

const program = `#version 300 es
precision highp float;
uniform float iTime;
out vec4 outColor;
void main() {
    outColor = vec4(0.0);
    // outColor = vec4(1.0); commented out
    outColor = vec4(sin(iTime), mix(0.1, 0.2, 0.5), 0.0, 1.0);
    /* outColor = vec4(2.0); */
}
`

const legacy = `precision mediump float;
uniform float iTime;
varying vec2 v_uv;
void main() {
    gl_FragColor = vec4(v_uv, sin(iTime), 1.0);
}
`

func TestTransformImage(t *testing.T) {
	out, err := Transform(plasma, ProvenanceImage, 0)
	if err != nil {
		t.Fatalf("Transform: %v", err)
	}
	if !strings.HasPrefix(out, "#version 300 es") {
		t.Error("wrapped source must start with the version directive")
	}
	for _, want := range []string{
		"uniform vec3 iResolution;",
		"uniform int iFrame;",
		"uniform sampler2D iChannel3;",
		"mainImage(color, gl_FragCoord.xy);",
		"fragColor = applyEffects((color), gl_FragCoord.xy / uEffectResolution, uEffectInput);",
		"uniform float uEffectSepia;",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q", want)
		}
	}
	// the write inside mainImage is left alone
	if !strings.Contains(out, "fragColor = vec4(col,1.0);") {
		t.Error("mainImage body was rewritten")
	}
}

func TestTransformIsDeterministic(t *testing.T) {
	set := effects.KindSet(0).With(effects.Blur).With(effects.Vignette)
	for _, src := range []string{plasma, program, legacy} {
		a, err := Transform(src, ProvenanceProgram, set)
		if err != nil {
			t.Fatalf("Transform: %v", err)
		}
		b, _ := Transform(src, ProvenanceProgram, set)
		if a != b {
			t.Error("Transform produced different output for the same input")
		}
	}
}

func TestTransformProgramWrapsLastWrite(t *testing.T) {
	out, err := Transform(program, ProvenanceProgram, 0)
	if err != nil {
		t.Fatalf("Transform: %v", err)
	}
	want := "outColor = applyEffects((vec4(sin(iTime), mix(0.1, 0.2, 0.5), 0.0, 1.0)), gl_FragCoord.xy / uEffectResolution, uEffectInput);"
	if !strings.Contains(out, want) {
		t.Errorf("last write not wrapped:\n%s", out)
	}
	if !strings.Contains(out, "outColor = vec4(0.0);") {
		t.Error("earlier write should be untouched")
	}
	if !strings.Contains(out, "/* outColor = vec4(2.0); */") {
		t.Error("comments should be preserved")
	}
	if strings.Count(out, "#version") != 1 {
		t.Error("versioned program should not get a second header")
	}
	lib := strings.Index(out, "uniform float uEffectBlur;")
	main := strings.Index(out, "void main()")
	if lib < 0 || lib > main {
		t.Error("effect library must be injected before main")
	}
}

func TestTransformProgramFiltersAfterLaterWrites(t *testing.T) {
	const apply = "applyEffects(outColor, gl_FragCoord.xy / uEffectResolution, uEffectInput);"
	tests := []struct {
		name string
		body string
		want string
	}{
		{
			name: "compound",
			body: "outColor = vec4(1.0);\n    outColor *= 0.5;",
			want: "outColor *= 0.5; outColor = " + apply,
		},
		{
			name: "add",
			body: "outColor = vec4(0.2);\n    outColor += vec4(0.1) ;",
			want: "outColor += vec4(0.1) ; outColor = " + apply,
		},
		{
			name: "swizzle",
			body: "outColor = vec4(1.0);\n    outColor.rgb = vec3(0.5);",
			want: "outColor.rgb = vec3(0.5); outColor = " + apply,
		},
		{
			name: "compound before plain",
			body: "outColor = vec4(1.0);\n    outColor *= 0.5;\n    outColor = vec4(0.3);",
			want: "outColor = applyEffects((vec4(0.3)), gl_FragCoord.xy / uEffectResolution, uEffectInput);",
		},
		{
			name: "comparison is not a write",
			body: "outColor = vec4(1.0);\n    if (outColor == vec4(1.0)) { discard; }",
			want: "outColor = applyEffects((vec4(1.0)), gl_FragCoord.xy / uEffectResolution, uEffectInput);",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src := "#version 300 es\nprecision highp float;\nout vec4 outColor;\nvoid main() {\n    " + tt.body + "\n}\n"
			out, err := Transform(src, ProvenanceProgram, 0)
			if err != nil {
				t.Fatalf("Transform: %v", err)
			}
			if !strings.Contains(out, tt.want) {
				t.Errorf("want %q in:\n%s", tt.want, out)
			}
			if strings.Count(out, "applyEffects(") != strings.Count(effects.Library(0), "applyEffects(")+1 {
				t.Errorf("effects applied more than once:\n%s", out)
			}
		})
	}
}

func TestTransformLegacyProgram(t *testing.T) {
	out, err := Transform(legacy, ProvenanceProgram, 0)
	if err != nil {
		t.Fatalf("Transform: %v", err)
	}
	if !strings.HasPrefix(out, "#version 300 es") {
		t.Error("legacy program should be upgraded")
	}
	if strings.Contains(out, "gl_FragColor") {
		t.Error("gl_FragColor should be mapped to the declared output")
	}
	if !strings.Contains(out, "fragColor = applyEffects((vec4(v_uv, sin(iTime), 1.0))") {
		t.Errorf("legacy write not wrapped:\n%s", out)
	}
}

func TestTransformImageTaggedProgram(t *testing.T) {
	// a complete program tagged as an image shader is not wrapped twice
	out, err := Transform(program, ProvenanceImage, 0)
	if err != nil {
		t.Fatalf("Transform: %v", err)
	}
	if strings.Count(out, "void main") != 1 {
		t.Error("expected exactly one main")
	}
}

func TestTransformErrors(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want error
	}{
		{"empty", "", ErrNoEntryPoint},
		{"helpers only", "float f(float x) { return x; }", ErrNoEntryPoint},
		{"commented main", "// void main() { gl_FragColor = vec4(1.0); }", ErrNoEntryPoint},
		{"no write", "#version 300 es\nout vec4 c;\nvoid main() { float x = 1.0; }", ErrNoColorWrite},
		{"comparison only", "#version 300 es\nout vec4 c;\nvoid main() { if (c == vec4(0.0)) {} }", ErrNoColorWrite},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Transform(tt.src, ProvenanceProgram, 0)
			if !errors.Is(err, tt.want) {
				t.Errorf("err = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestMaskCommentsKeepsOffsets(t *testing.T) {
	src := "a // b\nc /* d\ne */ f"
	got := maskComments(src)
	if len(got) != len(src) {
		t.Fatalf("length changed: %d != %d", len(got), len(src))
	}
	if strings.ContainsAny(got, "bde/*") {
		t.Errorf("comment text survived: %q", got)
	}
	if strings.Count(got, "\n") != 2 || !strings.HasSuffix(got, " f") {
		t.Errorf("unexpected mask %q", got)
	}
}

func TestParseProvenance(t *testing.T) {
	if p, err := ParseProvenance("Program"); err != nil || p != ProvenanceProgram {
		t.Errorf("ParseProvenance(Program) = %v, %v", p, err)
	}
	if p, err := ParseProvenance(""); err != nil || p != ProvenanceImage {
		t.Errorf("ParseProvenance(\"\") = %v, %v", p, err)
	}
	if _, err := ParseProvenance("sound"); err == nil {
		t.Error("expected error for unknown provenance")
	}
}

func TestDetectProvenance(t *testing.T) {
	tests := []struct {
		src  string
		want Provenance
	}{
		{"void mainImage(out vec4 c, in vec2 p) { c = vec4(1.0); }", ProvenanceImage},
		{"out vec4 o; void main() { o = vec4(1.0); }", ProvenanceProgram},
		{"// void main() {}\nvoid mainImage(out vec4 c, in vec2 p) {}", ProvenanceImage},
		{"", ProvenanceImage},
	}
	for _, tt := range tests {
		if got := DetectProvenance(tt.src); got != tt.want {
			t.Errorf("DetectProvenance(%q) = %v, want %v", tt.src, got, tt.want)
		}
	}
}
