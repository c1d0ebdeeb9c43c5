package shader

import (
	"fmt"
	"strings"
)

// header is the version line (and default precision on GLES) of the fixed
// quad and blit stages, which are compiled natively without translation.
func header(isGLES bool) string {
	if isGLES {
		return "#version 300 es\nprecision mediump float;\n"
	}
	return "#version 410 core\n"
}

// VertexSource is the fixed full-screen quad vertex stage shared by every program.
// frag_uv spans [0,1] with v = 0 at the bottom edge.
func VertexSource(isGLES bool) string {
	return header(isGLES) + `layout (location = 0) in vec2 in_vert;
out vec2 frag_uv;
void main() {
	frag_uv = in_vert * 0.5 + 0.5;
	gl_Position = vec4(in_vert, 0.0, 1.0);
}
`
}

// BlitSource copies u_texture to the bound framebuffer. flip mirrors vertically,
// which is needed when presenting a frame that was read back top-down.
func BlitSource(flip, isGLES bool) string {
	uv := "frag_uv"
	if flip {
		uv = "vec2(frag_uv.x, 1.0 - frag_uv.y)"
	}
	return header(isGLES) + `in vec2 frag_uv;
out vec4 fragColor;
uniform sampler2D u_texture;
void main() { fragColor = texture(u_texture, ` + uv + `); }
`
}

// NumChannels is the number of iChannelN samplers every image shader sees.
const NumChannels = 4

// OutputName is the fragment output declared by the image preamble.
const OutputName = "fragColor"

// uniforms is the ShaderToy uniform interface, in declaration order.
var uniforms = []struct{ typ, name string }{
	{"vec3", "iResolution"},
	{"float", "iTime"},
	{"float", "iTimeDelta"},
	{"float", "iFrameRate"},
	{"int", "iFrame"},
	{"float", "iChannelTime[4]"},
	{"vec3", "iChannelResolution[4]"},
	{"vec4", "iMouse"},
	{"vec4", "iDate"},
	{"float", "iSampleRate"},
}

// Preamble declares the standard uniform interface for mainImage shaders.
func Preamble() string {
	var b strings.Builder
	b.WriteString(legacyHeader)
	b.WriteString("\n#define HW_PERFORMANCE 1\n\n")
	for _, u := range uniforms {
		fmt.Fprintf(&b, "uniform %s %s;\n", u.typ, u.name)
	}
	for i := 0; i < NumChannels; i++ {
		fmt.Fprintf(&b, "uniform sampler2D iChannel%d;\n", i)
	}
	b.WriteString(`
out vec4 ` + OutputName + `;

`)
	// some drivers lack a precise tanh; a rational approximation is close enough
	b.WriteString("#define TANH_APPROX(x) ((x) * (27.0 + (x)*(x)) / (27.0 + 9.0*(x)*(x)))\n")
	for _, t := range []string{"float", "vec2", "vec3", "vec4"} {
		fmt.Fprintf(&b, "%s tanh_approx(%s x) { return TANH_APPROX(x); }\n", t, t)
	}
	b.WriteString(`#define tanh tanh_approx

`)
	return b.String()
}

// mainWrapper calls mainImage once per pixel and then writes the output in a
// single statement so the effect call can be spliced around it.
const mainWrapper = `
void main() {
	vec4 color = vec4(0.0);
	mainImage(color, gl_FragCoord.xy);
	` + OutputName + ` = color;
}
`

// legacyHeader upgrades an unversioned GLSL ES 1.00 program to 3.00.
const legacyHeader = `#version 300 es
precision highp float;
precision highp int;
`
